// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-zeromq/zmq4"
)

// zmqTransport speaks to the server over a ZeroMQ REQ socket, the protocol of
// the stock cryptol-server. The socket's Recv cannot be cancelled, so each
// Send starts one receiver whose result waits in pending until a Recv
// collects it.
type zmqTransport struct {
	endpoint string
	sock     zmq4.Socket
	cancel   context.CancelFunc
	closed   atomic.Bool

	mu      sync.Mutex
	pending chan frameResult
}

var errNoRequest = errors.New("cryptol: receive without a request in flight")

func dialZMQ(ctx context.Context, endpoint string, o *dialOptions) (Transport, error) {
	// The socket outlives the dial context; it is torn down by Close.
	socketCtx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewReq(socketCtx)
	if err := sock.Dial(endpoint); err != nil {
		cancel()
		sock.Close()
		return nil, fmt.Errorf("zmq dial %s: %w", endpoint, err)
	}
	return &zmqTransport{
		endpoint: endpoint,
		sock:     sock,
		cancel:   cancel,
	}, nil
}

func (t *zmqTransport) Send(ctx context.Context, data []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		return fmt.Errorf("zmq send to %s: previous reply not received", t.endpoint)
	}
	if err := t.sock.Send(zmq4.NewMsg(data)); err != nil {
		return fmt.Errorf("zmq send to %s: %w", t.endpoint, err)
	}

	pending := make(chan frameResult, 1)
	t.pending = pending
	go func() {
		msg, err := t.sock.Recv()
		if err != nil {
			pending <- frameResult{err: fmt.Errorf("zmq recv from %s: %w", t.endpoint, err)}
			return
		}
		pending <- frameResult{data: msg.Bytes()}
	}()
	return nil
}

func (t *zmqTransport) Recv(ctx context.Context) ([]byte, error) {
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

// Notify sends without starting a receiver. A REQ socket refuses further
// sends until the reply is read, so Notify is only used right before Close.
func (t *zmqTransport) Notify(ctx context.Context, data []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.sock.Send(zmq4.NewMsg(data)); err != nil {
		return fmt.Errorf("zmq notify %s: %w", t.endpoint, err)
	}
	return nil
}

func (t *zmqTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	err := t.sock.Close()
	t.cancel()
	return err
}
