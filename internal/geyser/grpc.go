package geyser

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	subscribeMethod = "/geyser.Geyser/Subscribe"
	getSlotMethod   = "/geyser.Geyser/GetSlot"
)

var subscribeStreamDesc = &grpc.StreamDesc{
	StreamName:    "Subscribe",
	ServerStreams: true,
	ClientStreams: true,
}

// WireCodec translates between structured requests/updates and the raw frames
// moved over the connection. The geyser wire protocol is owned by the feed;
// this package only transports opaque frames through it.
type WireCodec interface {
	EncodeSubscribeRequest(req *SubscribeRequest) ([]byte, error)
	DecodeUpdate(frame []byte) (Update, error)
	EncodeSlotRequest(commitment CommitmentLevel) ([]byte, error)
	DecodeSlotResponse(frame []byte) (uint64, error)
}

// DialConfig carries the connection settings for a gRPC geyser endpoint.
type DialConfig struct {
	Endpoint string
	// XToken is attached as x-token metadata on every call when non-empty.
	XToken string
	// MaxDecodingMessageSize bounds inbound frame size. Zero keeps the gRPC
	// default.
	MaxDecodingMessageSize int
	Insecure               bool
	Codec                  WireCodec
}

// GRPCClient implements Client over a gRPC connection with a pluggable wire
// codec.
type GRPCClient struct {
	conn   *grpc.ClientConn
	codec  WireCodec
	xToken string
}

// Dial connects to the endpoint. The connection itself is lazy; failures
// surface on the first call.
func Dial(cfg DialConfig) (*GRPCClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("geyser: endpoint is required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("geyser: wire codec is required")
	}

	creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	if cfg.Insecure {
		creds = insecure.NewCredentials()
	}

	callOpts := []grpc.CallOption{grpc.ForceCodec(rawCodec{})}
	if cfg.MaxDecodingMessageSize > 0 {
		callOpts = append(callOpts, grpc.MaxCallRecvMsgSize(cfg.MaxDecodingMessageSize))
	}

	conn, err := grpc.NewClient(
		cfg.Endpoint,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(callOpts...),
	)
	if err != nil {
		return nil, fmt.Errorf("geyser: dial %s: %w", cfg.Endpoint, err)
	}

	return &GRPCClient{conn: conn, codec: cfg.Codec, xToken: cfg.XToken}, nil
}

// Subscribe opens the bidirectional stream and sends the subscription request.
func (c *GRPCClient) Subscribe(ctx context.Context, req *SubscribeRequest) (UpdateStream, error) {
	frame, err := c.codec.EncodeSubscribeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("geyser: encode subscribe request: %w", err)
	}

	stream, err := c.conn.NewStream(c.callContext(ctx), subscribeStreamDesc, subscribeMethod)
	if err != nil {
		return nil, fmt.Errorf("geyser: open subscribe stream: %w", err)
	}

	out := rawFrame(frame)
	if err := stream.SendMsg(&out); err != nil {
		return nil, fmt.Errorf("geyser: send subscribe request: %w", err)
	}

	return &grpcUpdateStream{stream: stream, codec: c.codec}, nil
}

// GetSlot queries the most recent slot known at the given commitment level.
func (c *GRPCClient) GetSlot(ctx context.Context, commitment CommitmentLevel) (uint64, error) {
	reqFrame, err := c.codec.EncodeSlotRequest(commitment)
	if err != nil {
		return 0, fmt.Errorf("geyser: encode slot request: %w", err)
	}

	in := rawFrame(reqFrame)
	var out rawFrame
	if err := c.conn.Invoke(c.callContext(ctx), getSlotMethod, &in, &out); err != nil {
		return 0, fmt.Errorf("geyser: get slot: %w", err)
	}

	return c.codec.DecodeSlotResponse(out)
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) callContext(ctx context.Context) context.Context {
	if c.xToken == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "x-token", c.xToken)
}

type grpcUpdateStream struct {
	stream grpc.ClientStream
	codec  WireCodec
}

func (s *grpcUpdateStream) Recv() (Update, error) {
	var frame rawFrame
	if err := s.stream.RecvMsg(&frame); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	upd, err := s.codec.DecodeUpdate(frame)
	if err != nil {
		// A frame that fails to decode is a per-item failure; the stream
		// itself is still healthy.
		return nil, &TransportError{Err: err}
	}
	return upd, nil
}

// rawFrame moves opaque bytes through gRPC without protobuf marshaling.
type rawFrame []byte

type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	frame, ok := v.(*rawFrame)
	if !ok {
		return nil, fmt.Errorf("geyser: raw codec cannot marshal %T", v)
	}
	return *frame, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	frame, ok := v.(*rawFrame)
	if !ok {
		return fmt.Errorf("geyser: raw codec cannot unmarshal into %T", v)
	}
	*frame = append((*frame)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return "geyserflow-raw" }
