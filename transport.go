// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"context"
	"sort"
	"sync"
)

// Transport schemes
const (
	SchemeTCP    = "tcp"    // ZeroMQ REQ over TCP, the server's native protocol
	SchemeIPC    = "ipc"    // ZeroMQ REQ over a Unix socket
	SchemeFrame  = "frame"  // length-prefixed frames over TCP
	SchemeHTTP   = "http"   // JSON-RPC 2.0 over HTTP
	SchemeHTTPS  = "https"  // JSON-RPC 2.0 over HTTPS
	SchemeGRPC   = "grpc"   // gRPC, requires build tag
	SchemeInproc = "inproc" // ZeroMQ in-process, for embedding
)

type dialFunc func(ctx context.Context, endpoint string, o *dialOptions) (Transport, error)

var (
	transportsMu sync.RWMutex
	transports   = map[string]dialFunc{
		SchemeTCP:    dialZMQ,
		SchemeIPC:    dialZMQ,
		SchemeInproc: dialZMQ,
		SchemeFrame:  dialFrame,
		SchemeHTTP:   dialHTTP,
		SchemeHTTPS:  dialHTTP,
	}
)

// registerTransport registers a new transport (used by build tags)
func registerTransport(scheme string, dial dialFunc) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[scheme] = dial
}

func lookupTransport(scheme string) (dialFunc, bool) {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	dial, ok := transports[scheme]
	return dial, ok
}

// AvailableTransports returns the registered address schemes, sorted.
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	result := make([]string, 0, len(transports))
	for name := range transports {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// HasTransport checks if a transport is available
func HasTransport(scheme string) bool {
	_, ok := lookupTransport(scheme)
	return ok
}
