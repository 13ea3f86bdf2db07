//go:build grpc

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// grpcCallMethod is the unary method a gRPC gateway exposes for the
// interpreter; request and reply bodies are encoded protocol messages.
const grpcCallMethod = "/cryptol.Interpreter/Call"

func init() {
	// Register gRPC transport when build tag is enabled
	registerTransport(SchemeGRPC, dialGRPC)
}

// rawCodec passes already-encoded messages through gRPC untouched
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("grpc raw codec: cannot marshal %T", v)
	}
	return *b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("grpc raw codec: cannot unmarshal into %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return "cryptol-raw" }

func dialGRPC(ctx context.Context, endpoint string, o *dialOptions) (Transport, error) {
	_, addr, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	lifetime, cancel := context.WithCancel(context.Background())
	return &grpcTransport{conn: conn, ctx: lifetime, cancel: cancel}, nil
}

// grpcTransport runs each request as one unary call in the background so a
// cancelled Recv leaves the reply for the next one.
type grpcTransport struct {
	conn   *grpc.ClientConn
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	mu      sync.Mutex
	pending chan frameResult
}

func (t *grpcTransport) invoke(data []byte) ([]byte, error) {
	var reply []byte
	if err := t.conn.Invoke(t.ctx, grpcCallMethod, &data, &reply); err != nil {
		return nil, fmt.Errorf("grpc invoke: %w", err)
	}
	return reply, nil
}

func (t *grpcTransport) Send(ctx context.Context, data []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		return fmt.Errorf("grpc send: previous reply not received")
	}
	pending := make(chan frameResult, 1)
	t.pending = pending
	go func() {
		reply, err := t.invoke(data)
		pending <- frameResult{data: reply, err: err}
	}()
	return nil
}

func (t *grpcTransport) Recv(ctx context.Context) ([]byte, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	t.mu.Lock()
	pending := t.pending
	t.mu.Unlock()
	if pending == nil {
		return nil, errNoRequest
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-pending:
		t.mu.Lock()
		t.pending = nil
		t.mu.Unlock()
		return result.data, result.err
	}
}

func (t *grpcTransport) Notify(ctx context.Context, data []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	go t.invoke(data)
	return nil
}

func (t *grpcTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.cancel()
	return t.conn.Close()
}
