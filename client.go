// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"context"
	"io"
	"time"
)

// Codec encodes/decodes protocol messages
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// Transport is one request/reply channel to the server. Requests and replies
// strictly alternate: every Send is followed by exactly one reply.
//
// A Recv that returns because ctx ended does not consume the pending reply;
// the next Recv returns it. This is what lets a module drain the reply of an
// interrupted request and keep the channel consistent.
//
// A Transport is owned by one caller at a time.
type Transport interface {
	io.Closer

	// Send writes one request.
	Send(ctx context.Context, data []byte) error

	// Recv waits for the reply to the last request.
	Recv(ctx context.Context) ([]byte, error)

	// Notify sends a one-way message. Its reply, if the server sends one,
	// is never read; callers close the transport afterwards.
	Notify(ctx context.Context, data []byte) error
}

// dialOptions configures transports for one endpoint
type dialOptions struct {
	codec       Codec
	dialTimeout time.Duration
}

const defaultDialTimeout = 5 * time.Second
