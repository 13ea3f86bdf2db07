// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	rpc "github.com/gorilla/rpc/v2/json2"
)

// httpTimeout bounds one JSON-RPC exchange. Proofs can run long, so it is
// generous; cancellation normally comes from the caller's context.
const httpTimeout = 30 * time.Minute

// newHTTPClient creates an HTTP client with connection reuse disabled: each
// request is an independent exchange and a drained interrupted request must
// not share a connection with the next one.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: httpTimeout,
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
}

// closeBody reads what is left of a response body before closing it.
func closeBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// httpTransport carries each request as a JSON-RPC 2.0 call whose method is
// the request tag and whose params are the request object. The exchange runs
// under the transport's lifetime, not the caller's context, so the reply of an
// interrupted request can still be drained.
type httpTransport struct {
	uri    string
	client *http.Client
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	mu      sync.Mutex
	pending chan frameResult
}

func dialHTTP(ctx context.Context, endpoint string, o *dialOptions) (Transport, error) {
	if _, ok := o.codec.(JSONCodec); !ok {
		return nil, fmt.Errorf("http transport requires the json codec, got %T", o.codec)
	}
	uri, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if uri.Path == "" {
		uri.Path = "/"
	}
	lifetime, cancel := context.WithCancel(context.Background())
	return &httpTransport{
		uri:    uri.String(),
		client: newHTTPClient(),
		ctx:    lifetime,
		cancel: cancel,
	}, nil
}

func (t *httpTransport) Send(ctx context.Context, data []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	body, method, err := encodeJSONRPC(data)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		return fmt.Errorf("json-rpc %s: previous reply not received", method)
	}
	pending := make(chan frameResult, 1)
	t.pending = pending
	go func() {
		reply, err := t.post(method, body)
		pending <- frameResult{data: reply, err: err}
	}()
	return nil
}

func (t *httpTransport) Recv(ctx context.Context) ([]byte, error) {
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

func (t *httpTransport) Notify(ctx context.Context, data []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	body, method, err := encodeJSONRPC(data)
	if err != nil {
		return err
	}
	go t.post(method, body)
	return nil
}

func (t *httpTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.cancel()
	return nil
}

func encodeJSONRPC(data []byte) (body []byte, method string, err error) {
	var header struct {
		Tag string `json:"tag"`
	}
	if err := json.Unmarshal(data, &header); err != nil || header.Tag == "" {
		return nil, "", fmt.Errorf("json-rpc: request has no tag")
	}
	body, err = rpc.EncodeClientRequest(header.Tag, json.RawMessage(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode client params: %w", err)
	}
	return body, header.Tag, nil
}

func (t *httpTransport) post(method string, body []byte) ([]byte, error) {
	request, err := http.NewRequestWithContext(t.ctx, http.MethodPost, t.uri, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("json-rpc %s: %w", method, err)
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("json-rpc %s: received status code: %d", method, resp.StatusCode)
	}

	var result json.RawMessage
	if err := rpc.DecodeClientResponse(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("json-rpc %s: failed to decode client response: %w", method, err)
	}
	return result, nil
}
