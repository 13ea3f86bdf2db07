// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// jsonRPCGateway answers every JSON-RPC call with a reply tagged after the
// called method.
func jsonRPCGateway(t *testing.T, release <-chan struct{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call struct {
			Version string          `json:"jsonrpc"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params"`
			ID      json.RawMessage `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var req request
		if err := json.Unmarshal(call.Params, &req); err != nil || req.Tag != call.Method {
			http.Error(w, "params do not match method", http.StatusBadRequest)
			return
		}
		if release != nil && req.Tag == tagEvalExpr {
			<-release
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      call.ID,
			"result":  reply{Tag: tagOK, Message: req.Tag + ":" + req.Expr},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPTransport(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := jsonRPCGateway(t, nil)
	conn, err := Dial(ctx, server.URL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	data, _ := defaultCodec.Encode(request{Tag: tagTypeOf, Expr: "0x01"})
	if err := conn.Send(ctx, data); err != nil {
		t.Fatalf("Send: %v", err)
	}
	raw, err := conn.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	var rep reply
	if err := defaultCodec.Decode(raw, &rep); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rep.Tag != tagOK || rep.Message != "typeOf:0x01" {
		t.Errorf("reply = %+v", rep)
	}
}

func TestHTTPTransportAbandonedRecv(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	release := make(chan struct{})
	server := jsonRPCGateway(t, release)
	conn, err := Dial(ctx, server.URL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	data, _ := defaultCodec.Encode(request{Tag: tagEvalExpr, Expr: "loop"})
	if err := conn.Send(ctx, data); err != nil {
		t.Fatalf("Send: %v", err)
	}
	short, cancelShort := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancelShort()
	if _, err := conn.Recv(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Recv error = %v, want deadline exceeded", err)
	}

	close(release)
	if _, err := conn.Recv(ctx); err != nil {
		t.Fatalf("Recv after abandon: %v", err)
	}
}

func TestHTTPTransportRequiresJSON(t *testing.T) {
	_, err := Dial(context.Background(), "http://127.0.0.1:1", WithDialCodec(CBORCodec{}))
	if err == nil {
		t.Fatal("Dial with CBOR codec succeeded")
	}
}

type trackedBody struct {
	io.Reader
	closed bool
}

func (b *trackedBody) Close() error {
	b.closed = true
	return nil
}

func TestCloseBodyDrains(t *testing.T) {
	body := &trackedBody{Reader: strings.NewReader("unread reply")}
	if err := closeBody(body); err != nil {
		t.Fatalf("closeBody: %v", err)
	}
	if !body.closed {
		t.Error("body not closed")
	}
	if n, _ := body.Read(make([]byte, 1)); n != 0 {
		t.Error("body not drained before close")
	}
	if err := closeBody(nil); err != nil {
		t.Errorf("closeBody(nil) = %v", err)
	}
}
