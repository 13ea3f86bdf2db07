// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"context"
	"slices"
	"testing"
)

func TestAvailableTransports(t *testing.T) {
	schemes := AvailableTransports()
	for _, scheme := range []string{SchemeTCP, SchemeIPC, SchemeInproc, SchemeFrame, SchemeHTTP, SchemeHTTPS} {
		if !slices.Contains(schemes, scheme) {
			t.Errorf("AvailableTransports() = %v, missing %s", schemes, scheme)
		}
		if !HasTransport(scheme) {
			t.Errorf("HasTransport(%s) = false", scheme)
		}
	}
	if !slices.IsSorted(schemes) {
		t.Errorf("AvailableTransports() = %v, not sorted", schemes)
	}
	if HasTransport("carrier-pigeon") {
		t.Error("HasTransport(carrier-pigeon) = true")
	}
}

func TestDialRejectsBadEndpoints(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"127.0.0.1:5555", "://127.0.0.1", "tcp://", "carrier-pigeon://127.0.0.1:1"} {
		if conn, err := Dial(ctx, endpoint); err == nil {
			conn.Close()
			t.Errorf("Dial(%q) succeeded", endpoint)
		}
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		address string
		port    int
		want    string
	}{
		{"tcp://127.0.0.1", 5555, "tcp://127.0.0.1:5555"},
		{"frame://localhost/", 6000, "frame://localhost:6000"},
	}
	for _, tt := range tests {
		if got := Endpoint(tt.address, tt.port); got != tt.want {
			t.Errorf("Endpoint(%q, %d) = %q, want %q", tt.address, tt.port, got, tt.want)
		}
	}
}
