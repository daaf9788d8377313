package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yitech/candlechart/protocol"
	"github.com/yitech/candlechart/transport"
)

// Server forwards every inbound Struct to the surface and streams the
// surface's events back to the host.
type Server struct {
	sub transport.Submitter
	hub *transport.Hub
	log *slog.Logger
}

func NewServer(sub transport.Submitter, hub *transport.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{sub: sub, hub: hub, log: logger.With("transport", "grpc")}
}

func (s *Server) Connect(stream grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	session := s.hub.Join()
	defer s.hub.Leave(session)
	log := s.log.With("session", session.ID.String())

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- s.sendEvents(ctx, stream, session)
	}()

	err := s.receive(ctx, stream, log)
	cancel()
	if serr := <-sendErr; err == nil && serr != nil && !errors.Is(serr, context.Canceled) {
		err = serr
	}
	return err
}

func (s *Server) receive(ctx context.Context, stream grpc.BidiStreamingServer[structpb.Struct, structpb.Struct], log *slog.Logger) error {
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Info("host closed stream")
			return nil
		}
		if err != nil {
			if status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		if err := s.sub.Submit(ctx, protocol.Record(msg.AsMap())); err != nil {
			return status.Errorf(codes.Unavailable, "surface stopped: %v", err)
		}
	}
}

// sendEvents is the only goroutine calling stream.Send.
func (s *Server) sendEvents(ctx context.Context, stream grpc.BidiStreamingServer[structpb.Struct, structpb.Struct], session *transport.Session) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-session.Events:
			if !ok {
				return nil
			}
			msg, err := structpb.NewStruct(rec)
			if err != nil {
				return fmt.Errorf("rpc: encode %v event: %w", rec["type"], err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}
