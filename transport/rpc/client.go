package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yitech/candlechart/protocol"
)

// Client is the host side of a Connect stream. Send and Recv may be used
// from two different goroutines, but neither concurrently with itself.
type Client struct {
	conn   *grpc.ClientConn
	stream grpc.BidiStreamingClient[structpb.Struct, structpb.Struct]
}

// Dial opens a Connect stream to addr. Without options the connection is
// insecure, matching the surface's plain listener.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("rpc: new client %s: %w", addr, err)
	}
	s, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], ConnectMethod)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rpc: open stream: %w", err)
	}
	return &Client{
		conn:   conn,
		stream: &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: s},
	}, nil
}

// Send encodes and sends one command.
func (c *Client) Send(cmd protocol.Command) error {
	return c.SendRecord(protocol.EncodeCommand(cmd))
}

// SendRecord sends a raw record, which the surface validates.
func (c *Client) SendRecord(rec protocol.Record) error {
	msg, err := structpb.NewStruct(rec)
	if err != nil {
		return fmt.Errorf("rpc: encode %v: %w", rec["type"], err)
	}
	return c.stream.Send(msg)
}

// Recv blocks for the next event.
func (c *Client) Recv() (protocol.Event, error) {
	msg, err := c.stream.Recv()
	if err != nil {
		return nil, err
	}
	return protocol.DecodeEvent(protocol.Record(msg.AsMap()))
}

// Close half-closes the stream and tears down the connection.
func (c *Client) Close() error {
	c.stream.CloseSend()
	return c.conn.Close()
}
