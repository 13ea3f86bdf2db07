// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
)

func startFrameServer(t *testing.T, handler FrameHandlerFunc) *FrameServer {
	t.Helper()
	server, err := ListenFrame("127.0.0.1:0", handler)
	if err != nil {
		t.Fatalf("ListenFrame: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	go server.Serve(context.Background())
	return server
}

func TestFrameRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := startFrameServer(t, func(ctx context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	})

	conn, err := Dial(ctx, "frame://127.0.0.1:"+strconv.Itoa(server.Port()))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	for _, payload := range [][]byte{[]byte(`{"tag":"browse"}`), bytes.Repeat([]byte("x"), 1<<20)} {
		if err := conn.Send(ctx, payload); err != nil {
			t.Fatalf("Send: %v", err)
		}
		reply, err := conn.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if !bytes.Equal(reply, payload) {
			t.Errorf("got %d bytes, want %d", len(reply), len(payload))
		}
	}
}

func TestFrameAbandonedRecvKeepsReply(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	release := make(chan struct{})
	server := startFrameServer(t, func(ctx context.Context, payload []byte) ([]byte, error) {
		<-release
		return payload, nil
	})
	conn, err := DialFrame(ctx, server.Addr().String())
	if err != nil {
		t.Fatalf("DialFrame: %v", err)
	}
	defer conn.Close()

	if err := conn.Send(ctx, []byte("slow")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	short, cancelShort := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancelShort()
	if _, err := conn.Recv(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Recv error = %v, want deadline exceeded", err)
	}

	close(release)
	reply, err := conn.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv after abandon: %v", err)
	}
	if string(reply) != "slow" {
		t.Errorf("got %q, want the abandoned reply", reply)
	}
}

func TestFrameServerError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	notified := make(chan string, 1)
	server := startFrameServer(t, func(ctx context.Context, payload []byte) ([]byte, error) {
		if string(payload) == "notice" {
			notified <- string(payload)
			return nil, nil
		}
		return nil, errors.New("bad request")
	})
	conn, err := DialFrame(ctx, server.Addr().String())
	if err != nil {
		t.Fatalf("DialFrame: %v", err)
	}
	defer conn.Close()

	if err := conn.Send(ctx, []byte("anything")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := conn.Recv(ctx); err == nil {
		t.Fatal("Recv succeeded for an error frame")
	}

	if err := conn.Notify(ctx, []byte("notice")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	select {
	case <-notified:
	case <-ctx.Done():
		t.Fatal("notice not handled")
	}
}

func TestFrameClosed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := startFrameServer(t, func(ctx context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	})
	conn, err := DialFrame(ctx, server.Addr().String())
	if err != nil {
		t.Fatalf("DialFrame: %v", err)
	}
	conn.Close()

	if err := conn.Send(ctx, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if _, err := conn.Recv(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Recv after Close = %v, want ErrClosed", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func BenchmarkFrameRoundTrip(b *testing.B) {
	ctx := context.Background()

	server, err := ListenFrame("127.0.0.1:0", FrameHandlerFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	}))
	if err != nil {
		b.Fatalf("ListenFrame: %v", err)
	}
	defer server.Close()
	go server.Serve(ctx)

	conn, err := DialFrame(ctx, server.Addr().String())
	if err != nil {
		b.Fatalf("DialFrame: %v", err)
	}
	defer conn.Close()

	payload := make([]byte, 1024)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := conn.Send(ctx, payload); err != nil {
			b.Fatal(err)
		}
		if _, err := conn.Recv(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
