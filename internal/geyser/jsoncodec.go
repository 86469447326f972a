package geyser

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Update kind tags used by the JSON wire format.
const (
	kindAccount           = "account"
	kindSlot              = "slot"
	kindTransaction       = "transaction"
	kindTransactionStatus = "transaction_status"
	kindEntry             = "entry"
	kindBlock             = "block"
	kindBlockMeta         = "block_meta"
	kindPing              = "ping"
	kindPong              = "pong"
)

var jsonAPI = sonic.ConfigStd

// JSONCodec is the WireCodec for feeds configured with format "json". Each
// inbound frame is an envelope {"type": <kind>, "data": {...}}; outbound
// requests are the structured request serialized as-is.
type JSONCodec struct{}

func (JSONCodec) EncodeSubscribeRequest(req *SubscribeRequest) ([]byte, error) {
	return jsonAPI.Marshal(req)
}

func (JSONCodec) EncodeSlotRequest(commitment CommitmentLevel) ([]byte, error) {
	return jsonAPI.Marshal(struct {
		Commitment string `json:"commitment"`
	}{Commitment: commitment.String()})
}

func (JSONCodec) DecodeSlotResponse(frame []byte) (uint64, error) {
	var resp struct {
		Slot uint64 `json:"slot"`
	}
	if err := jsonAPI.Unmarshal(frame, &resp); err != nil {
		return 0, fmt.Errorf("geyser: decode slot response: %w", err)
	}
	return resp.Slot, nil
}

func (JSONCodec) DecodeUpdate(frame []byte) (Update, error) {
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := jsonAPI.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("geyser: decode update envelope: %w", err)
	}

	var (
		upd Update
		err error
	)
	switch env.Type {
	case kindAccount:
		upd, err = decodeInto(&AccountUpdate{}, env.Data)
	case kindSlot:
		upd, err = decodeInto(&SlotUpdate{}, env.Data)
	case kindTransaction:
		upd, err = decodeInto(&TransactionUpdate{}, env.Data)
	case kindTransactionStatus:
		upd, err = decodeInto(&TransactionStatusUpdate{}, env.Data)
	case kindEntry:
		upd, err = decodeInto(&EntryUpdate{}, env.Data)
	case kindBlock:
		upd, err = decodeInto(&BlockUpdate{}, env.Data)
	case kindBlockMeta:
		upd, err = decodeInto(&BlockMetaUpdate{}, env.Data)
	case kindPing:
		upd, err = decodeInto(&PingUpdate{}, env.Data)
	case kindPong:
		upd, err = decodeInto(&PongUpdate{}, env.Data)
	default:
		return nil, fmt.Errorf("geyser: unknown update kind %q", env.Type)
	}
	if err != nil {
		return nil, err
	}
	return upd, nil
}

func decodeInto[T Update](target T, data json.RawMessage) (T, error) {
	if len(data) == 0 {
		return target, nil
	}
	if err := jsonAPI.Unmarshal(data, target); err != nil {
		var zero T
		return zero, fmt.Errorf("geyser: decode update payload: %w", err)
	}
	return target, nil
}
