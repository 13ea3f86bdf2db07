// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DialOption configures a transport connection
type DialOption func(*dialOptions)

// WithDialCodec sets the message codec the transport must carry. Only
// transports with constraints on the codec look at it.
func WithDialCodec(c Codec) DialOption {
	return func(o *dialOptions) { o.codec = c }
}

// WithDialTimeout bounds the connect phase
func WithDialTimeout(d time.Duration) DialOption {
	return func(o *dialOptions) { o.dialTimeout = d }
}

// Dial connects a transport to endpoint ("scheme://host:port"). The scheme
// selects the implementation; see AvailableTransports.
func Dial(ctx context.Context, endpoint string, opts ...DialOption) (Transport, error) {
	o := &dialOptions{
		codec:       defaultCodec,
		dialTimeout: defaultDialTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	scheme, _, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	dial, ok := lookupTransport(scheme)
	if !ok {
		return nil, fmt.Errorf("unknown transport: %s", scheme)
	}
	return dial(ctx, endpoint, o)
}

// Endpoint joins a session address ("tcp://127.0.0.1") and a port.
func Endpoint(address string, port int) string {
	return strings.TrimSuffix(address, "/") + ":" + strconv.Itoa(port)
}

func splitEndpoint(endpoint string) (scheme, hostport string, err error) {
	scheme, hostport, ok := strings.Cut(endpoint, "://")
	if !ok || scheme == "" || hostport == "" {
		return "", "", fmt.Errorf("invalid endpoint %q: want scheme://host:port", endpoint)
	}
	return scheme, hostport, nil
}
