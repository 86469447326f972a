package geyser

import (
	"bytes"
	"testing"
)

func TestDialValidation(t *testing.T) {
	if _, err := Dial(DialConfig{Codec: JSONCodec{}}); err == nil {
		t.Error("expected an error without an endpoint")
	}
	if _, err := Dial(DialConfig{Endpoint: "localhost:10000"}); err == nil {
		t.Error("expected an error without a wire codec")
	}
}

func TestRawCodecRoundTrip(t *testing.T) {
	codec := rawCodec{}
	in := rawFrame([]byte{0x01, 0x02, 0x03})

	data, err := codec.Marshal(&in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out rawFrame
	if err := codec.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
}

func TestRawCodecRejectsOtherTypes(t *testing.T) {
	codec := rawCodec{}
	if _, err := codec.Marshal("not a frame"); err == nil {
		t.Error("marshal must reject non-frame values")
	}
	if err := codec.Unmarshal(nil, &struct{}{}); err == nil {
		t.Error("unmarshal must reject non-frame targets")
	}
}
