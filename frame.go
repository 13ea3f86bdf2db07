// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// maxFrameSize bounds a single frame payload
const maxFrameSize = 64 * 1024 * 1024

// frameType identifies frame kinds
type frameType uint8

const (
	frameRequest frameType = 0x01
	frameReply   frameType = 0x02
	frameError   frameType = 0x03
	frameNotify  frameType = 0x04
)

// FrameConn is a Transport speaking length-prefixed frames over a stream
// connection: [4 len][1 type][payload]. A background reader hands replies
// to Recv, so a reply that arrives after its Recv was abandoned waits for
// the next one.
type FrameConn struct {
	conn     net.Conn
	writeMu  sync.Mutex
	replies  chan frameResult
	closed   atomic.Bool
	done     chan struct{}
	readDone chan struct{}
}

type frameResult struct {
	data []byte
	err  error
}

// DialFrame connects to a frame server at addr (host:port)
func DialFrame(ctx context.Context, addr string) (*FrameConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("frame dial: %w", err)
	}
	return newFrameConn(conn), nil
}

func newFrameConn(conn net.Conn) *FrameConn {
	fc := &FrameConn{
		conn:     conn,
		replies:  make(chan frameResult, 1),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go fc.readLoop()
	return fc
}

func dialFrame(ctx context.Context, endpoint string, o *dialOptions) (Transport, error) {
	_, addr, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.dialTimeout)
	defer cancel()
	return DialFrame(ctx, addr)
}

// Send writes a request frame
func (f *FrameConn) Send(ctx context.Context, data []byte) error {
	return f.write(ctx, frameRequest, data)
}

// Notify writes a one-way frame; the server sends no reply
func (f *FrameConn) Notify(ctx context.Context, data []byte) error {
	return f.write(ctx, frameNotify, data)
}

func (f *FrameConn) write(ctx context.Context, kind frameType, payload []byte) error {
	if f.closed.Load() {
		return ErrClosed
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		f.conn.SetWriteDeadline(deadline)
		defer f.conn.SetWriteDeadline(time.Time{})
	}
	if err := writeFrame(f.conn, kind, payload); err != nil {
		return fmt.Errorf("frame write: %w", err)
	}
	return nil
}

// Recv waits for the next reply frame
func (f *FrameConn) Recv(ctx context.Context) ([]byte, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-f.replies:
		return result.data, result.err
	case <-f.readDone:
		// The reader may have queued a reply just before the peer hung up.
		select {
		case result := <-f.replies:
			return result.data, result.err
		default:
		}
		return nil, ErrClosed
	}
}

func (f *FrameConn) readLoop() {
	defer close(f.readDone)

	for {
		kind, payload, err := readFrame(f.conn)
		if err != nil {
			return
		}

		var result frameResult
		switch kind {
		case frameReply:
			result.data = payload
		case frameError:
			result.err = fmt.Errorf("frame: server error: %s", payload)
		default:
			continue
		}

		select {
		case f.replies <- result:
		case <-f.done:
			return
		}
	}
}

// Close closes the connection
func (f *FrameConn) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	close(f.done)
	return f.conn.Close()
}

func writeFrame(w io.Writer, kind frameType, payload []byte) error {
	if len(payload)+1 > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", len(payload))
	}
	buf := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(1+len(payload)))
	buf[4] = byte(kind)
	copy(buf[5:], payload)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) (frameType, []byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	msgLen := binary.BigEndian.Uint32(header)
	if msgLen == 0 || msgLen > maxFrameSize {
		return 0, nil, fmt.Errorf("invalid frame length %d", msgLen)
	}
	msg := make([]byte, msgLen)
	if _, err := io.ReadFull(r, msg); err != nil {
		return 0, nil, err
	}
	return frameType(msg[0]), msg[1:], nil
}

// FrameHandler handles one request payload and returns the reply payload
type FrameHandler interface {
	HandleFrame(ctx context.Context, payload []byte) ([]byte, error)
}

// FrameHandlerFunc is a function adapter for FrameHandler
type FrameHandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (fn FrameHandlerFunc) HandleFrame(ctx context.Context, payload []byte) ([]byte, error) {
	return fn(ctx, payload)
}

// FrameServer serves the frame protocol. Each connection is handled
// sequentially: one request, one reply. Notify frames are handled and
// produce no reply.
type FrameServer struct {
	listener net.Listener
	handler  FrameHandler
	conns    sync.Map
	closed   atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// ListenFrame listens on addr (host:port, port 0 for any)
func ListenFrame(addr string, handler FrameHandler) (*FrameServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FrameServer{
		listener: listener,
		handler:  handler,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Serve accepts connections until the server is closed or ctx ends
func (s *FrameServer) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.ctx.Done():
		}
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *FrameServer) handleConn(conn net.Conn) {
	defer conn.Close()
	s.conns.Store(conn, struct{}{})
	defer s.conns.Delete(conn)

	for {
		kind, payload, err := readFrame(conn)
		if err != nil {
			return
		}

		switch kind {
		case frameRequest:
			reply, err := s.handler.HandleFrame(s.ctx, payload)
			if err != nil {
				err = writeFrame(conn, frameError, []byte(err.Error()))
			} else {
				err = writeFrame(conn, frameReply, reply)
			}
			if err != nil {
				return
			}
		case frameNotify:
			s.handler.HandleFrame(s.ctx, payload)
		}
	}
}

// Close stops the server and drops its connections
func (s *FrameServer) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()
	s.conns.Range(func(key, _ any) bool {
		key.(net.Conn).Close()
		return true
	})
	return s.listener.Close()
}

// Addr returns the listener address
func (s *FrameServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Port returns the TCP port the server listens on
func (s *FrameServer) Port() int {
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
