package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"gocampus/internal/common"
)

// The gRPC transport carries the same {"event","data"} frames as the websocket,
// encoded as google.protobuf.Struct so no generated code is needed.
const (
	GatewayServiceName = "gocampus.realtime.v1.Gateway"
	ConnectMethod      = "/" + GatewayServiceName + "/Connect"
)

type GatewayServer interface {
	Connect(stream grpc.ServerStream) error
}

func connectHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(GatewayServer).Connect(stream)
}

var gatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: GatewayServiceName,
	HandlerType: (*GatewayServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "gocampus/realtime/v1/gateway.proto",
}

func RegisterGatewayServer(s grpc.ServiceRegistrar, srv GatewayServer) {
	s.RegisterService(&gatewayServiceDesc, srv)
}

// OpenStream starts a Connect stream from the client side.
func OpenStream(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	return cc.NewStream(ctx, &gatewayServiceDesc.Streams[0], ConnectMethod, opts...)
}

// EncodeEvent converts an event to its wire struct.
func EncodeEvent(ev Event) (*structpb.Struct, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.Name, err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.Name, err)
	}
	return structpb.NewStruct(m)
}

// DecodeFrame converts a wire struct to a frame.
func DecodeFrame(st *structpb.Struct) (Frame, error) {
	var f Frame
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return f, err
	}
	err = json.Unmarshal(raw, &f)
	return f, err
}

type streamTransport struct {
	stream grpc.ServerStream
}

func (t *streamTransport) WriteEvent(ctx context.Context, ev Event) error {
	st, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- t.stream.SendMsg(st) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", common.ErrDelivery, ctx.Err())
	}
}

// Close is a no-op: the stream ends when Connect returns.
func (t *streamTransport) Close() error {
	return nil
}

// StreamServer serves the gateway over a gRPC bidi stream.
type StreamServer struct {
	hub    *Hub
	router *Router
	logger *slog.Logger
}

func NewStreamServer(hub *Hub, router *Router, logger *slog.Logger) *StreamServer {
	return &StreamServer{hub: hub, router: router, logger: logger.With("component", "gateway-grpc")}
}

func (s *StreamServer) Connect(stream grpc.ServerStream) error {
	id, ok := common.IdentityFrom(stream.Context())
	if !ok {
		return status.Error(codes.Unauthenticated, "authorization required")
	}

	client := s.hub.NewClient(id.UserID, id.Handle, &streamTransport{stream: stream})
	s.hub.Register(client)
	defer s.hub.Unregister(client)
	s.logger.Info("stream connected", "client_id", client.ID, "user_id", client.UserID)

	recvErr := make(chan error, 1)
	go func() {
		for {
			var st structpb.Struct
			if err := stream.RecvMsg(&st); err != nil {
				recvErr <- err
				return
			}
			f, err := DecodeFrame(&st)
			if err != nil {
				s.logger.Debug("malformed frame dropped", "client_id", client.ID, "error", err)
				continue
			}
			s.router.Dispatch(stream.Context(), client, f)
		}
	}()

	select {
	case err := <-recvErr:
		s.logger.Info("stream disconnected", "client_id", client.ID, "user_id", client.UserID)
		if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
			return nil
		}
		return err
	case <-client.Done():
		return status.Error(codes.Unavailable, "connection closed by server")
	}
}
