// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is a connection to one Cryptol server. It owns the control
// transport, from which a worker transport is spawned for every loaded
// module, and optionally the server process itself.
//
// Callers must call Exit when done; there is no finalizer.
type Session struct {
	id      string
	address string
	opts    sessionOptions
	logger  *slog.Logger

	controlMu sync.Mutex
	control   Transport

	server *serverProcess

	mu      sync.Mutex
	modules []*Module

	closed   atomic.Bool
	exitOnce sync.Once
	exitErr  error
}

type serverProcess struct {
	executable string
	cmd        *exec.Cmd
	done       chan struct{}
	err        error
}

// Connect opens a session with the server at address ("tcp://127.0.0.1").
// With WithLaunch the server is started first.
func Connect(ctx context.Context, address string, opts ...Option) (*Session, error) {
	o := defaultSessionOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if _, _, err := splitEndpoint(address + ":0"); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s := &Session{
		id:      id,
		address: address,
		opts:    o,
		logger:  o.logger.With("session", id),
	}

	if o.launch != nil {
		server, err := s.launch(ctx)
		if err != nil {
			return nil, err
		}
		s.server = server
	}

	control, err := s.dial(ctx, o.controlPort)
	if err != nil {
		if s.server != nil {
			s.server.stop(o.launch.stopTimeout)
		}
		return nil, fmt.Errorf("connecting to control port %d: %w", o.controlPort, err)
	}
	s.control = control
	s.logger.Info("session connected", "address", address, "port", o.controlPort)
	return s, nil
}

// ID returns the session's unique identifier, also attached to its logs.
func (s *Session) ID() string { return s.id }

// Address returns the server address the session was opened with.
func (s *Session) Address() string { return s.address }

// LoadModule loads the Cryptol source file at path into a fresh module
// context on the server.
func (s *Session) LoadModule(ctx context.Context, path string) (*Module, error) {
	return s.open(ctx, request{Tag: tagLoadModule, FilePath: path})
}

// Prelude opens a module context holding only the Cryptol prelude.
func (s *Session) Prelude(ctx context.Context) (*Module, error) {
	return s.open(ctx, request{Tag: tagLoadPrelude})
}

// Modules returns the modules that have not exited, in load order.
func (s *Session) Modules() []*Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.modules)
}

func (s *Session) open(ctx context.Context, load request) (*Module, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	port, err := s.connectWorker(ctx)
	if err != nil {
		return nil, err
	}
	transport, err := s.dial(ctx, port)
	if err != nil {
		return nil, fmt.Errorf("connecting to worker port %d: %w", port, err)
	}

	m := newModule(s, transport, port, load.FilePath)
	if err := m.load(ctx, load); err != nil {
		m.close()
		return nil, err
	}
	s.register(m)
	return m, nil
}

func (s *Session) dial(ctx context.Context, port int) (Transport, error) {
	return Dial(ctx, Endpoint(s.address, port),
		WithDialCodec(s.opts.codec),
		WithDialTimeout(s.opts.connectTimeout),
	)
}

// connectWorker asks the control socket for a fresh worker port.
func (s *Session) connectWorker(ctx context.Context) (int, error) {
	rep, err := s.controlCall(ctx, request{Tag: tagConnect})
	if err != nil {
		return 0, err
	}
	if rep.Tag != tagOK {
		return 0, protocolFault(tagConnect, rep.Tag, "expected %q", tagOK)
	}
	if rep.Port <= 0 {
		return 0, protocolFault(tagConnect, rep.Tag, "no worker port assigned")
	}
	s.logger.Debug("worker assigned", "port", rep.Port)
	return rep.Port, nil
}

// interrupt cancels the request in flight on the worker at port and waits
// for the server's acknowledgement.
func (s *Session) interrupt(ctx context.Context, port int) error {
	rep, err := s.controlCall(ctx, request{Tag: tagInterrupt, Port: port})
	if err != nil {
		return err
	}
	if rep.Tag != tagOK {
		return protocolFault(tagInterrupt, rep.Tag, "expected %q", tagOK)
	}
	return nil
}

// controlCall performs one exchange on the control transport. A reply
// abandoned because ctx ended is drained before the lock is released.
func (s *Session) controlCall(ctx context.Context, req request) (*reply, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	data, err := s.opts.codec.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", req.Tag, err)
	}

	s.controlMu.Lock()
	defer s.controlMu.Unlock()

	s.logger.Debug("control request", "tag", req.Tag, "port", req.Port)
	if err := s.control.Send(ctx, data); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Tag, err)
	}
	data, err = s.control.Recv(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.interruptTimeout)
			defer cancel()
			if _, drainErr := s.control.Recv(drainCtx); drainErr != nil {
				// A reply left in flight would answer the next request.
				s.logger.Error("control transport out of sync, closing it", "tag", req.Tag, "error", drainErr)
				s.control.Close()
			}
			return nil, fmt.Errorf("%s: %w", req.Tag, ctxErr)
		}
		return nil, fmt.Errorf("%s: %w", req.Tag, err)
	}

	var rep reply
	if err := s.opts.codec.Decode(data, &rep); err != nil {
		return nil, protocolFault(req.Tag, "", "undecodable reply: %v", err)
	}
	return &rep, nil
}

func (s *Session) register(m *Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules = append(s.modules, m)
}

func (s *Session) deregister(m *Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules = slices.DeleteFunc(s.modules, func(other *Module) bool { return other == m })
}

// Exit tears the session down: every module still registered exits, the
// control transport closes and a launched server is stopped. It is safe to
// call more than once; later calls return the first result.
func (s *Session) Exit() error {
	s.exitOnce.Do(func() {
		s.exitErr = s.exit()
	})
	return s.exitErr
}

func (s *Session) exit() error {
	var errs []error
	ctx := context.Background()
	for _, m := range s.Modules() {
		if err := m.Exit(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closed.Store(true)

	if s.server != nil && s.controlMu.TryLock() {
		notice, err := s.opts.codec.Encode(request{Tag: tagExit})
		if err == nil {
			noticeCtx, cancel := context.WithTimeout(ctx, exitNoticeTimeout)
			err = s.control.Notify(noticeCtx, notice)
			cancel()
		}
		if err != nil {
			s.logger.Debug("exit notice not delivered", "error", err)
		}
		s.controlMu.Unlock()
	}
	if err := s.control.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing control transport: %w", err))
	}

	if s.server != nil {
		if err := s.server.stop(s.opts.launch.stopTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	s.logger.Info("session exited")
	return errors.Join(errs...)
}

func (s *Session) launch(ctx context.Context) (*serverProcess, error) {
	l := s.opts.launch
	executable := l.executable
	if executable == "" {
		executable = DefaultServerExecutable
	}
	args := l.args
	if len(args) == 0 {
		args = []string{"--port", strconv.Itoa(s.opts.controlPort)}
	}

	path, err := exec.LookPath(executable)
	if err != nil {
		return nil, &ServerUnavailableError{Executable: executable, Err: err}
	}
	// The server outlives ctx; it is stopped by Exit.
	cmd := exec.Command(path, args...)
	cmd.Stderr = l.stderr
	if err := cmd.Start(); err != nil {
		return nil, &ServerUnavailableError{Executable: executable, Err: err}
	}

	p := &serverProcess{executable: executable, cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	s.logger.Info("server launched", "executable", path, "pid", cmd.Process.Pid)

	grace := time.NewTimer(l.grace)
	defer grace.Stop()
	select {
	case <-p.done:
		if code := cmd.ProcessState.ExitCode(); code != 0 {
			return nil, &ServerUnavailableError{Executable: executable, ExitCode: code}
		}
		s.logger.Warn("server exited during startup", "executable", path)
	case <-ctx.Done():
		p.stop(0)
		return nil, ctx.Err()
	case <-grace.C:
	}
	return p, nil
}

// stop interrupts the process and kills it if it has not exited within
// timeout.
func (p *serverProcess) stop(timeout time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if timeout > 0 {
		if err := p.cmd.Process.Signal(os.Interrupt); err == nil {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			select {
			case <-p.done:
				return nil
			case <-timer.C:
			}
		}
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("stopping %s: %w", p.executable, err)
	}
	<-p.done
	return nil
}
