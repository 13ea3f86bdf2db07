// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
)

// Option keys understood by the server's setOpt request.
const (
	optBase   = "base"
	optASCII  = "ascii"
	optProver = "prover"
	optSatNum = "satNum"
	optTests  = "tests"
)

// Module is one module context on the server, reached over its own worker
// transport. Requests on a module are serialized; a second caller waits for
// the first reply.
type Module struct {
	session   *Session
	transport Transport
	port      int
	path      string
	codec     Codec
	logger    *slog.Logger

	mu sync.Mutex

	optMu   sync.Mutex
	wanted  map[string]string
	applied map[string]string

	decls        map[string]any
	members      map[string]any
	declarations []Declaration

	closed   atomic.Bool
	exitOnce sync.Once
}

func newModule(s *Session, t Transport, port int, path string) *Module {
	logger := s.logger.With("port", port)
	if path != "" {
		logger = logger.With("module", path)
	}
	return &Module{
		session:   s,
		transport: t,
		port:      port,
		path:      path,
		codec:     s.opts.codec,
		logger:    logger,
		wanted:    make(map[string]string),
		applied:   make(map[string]string),
		decls:     make(map[string]any),
		members:   make(map[string]any),
	}
}

// Port returns the worker port the module is connected to.
func (m *Module) Port() int { return m.port }

// Path returns the loaded file, or "" for the prelude.
func (m *Module) Path() string { return m.path }

// Eval evaluates expr, after filling its %s placeholders with args. A
// function-typed result is returned as a *Function.
func (m *Module) Eval(ctx context.Context, expr string, args ...any) (any, error) {
	rep, err := m.query(ctx, tagEvalExpr, expr, args, optBase, optASCII)
	if err != nil {
		return nil, err
	}
	return m.valueFromReply(tagEvalExpr, rep)
}

// TypeOf returns the pretty-printed type of expr.
func (m *Module) TypeOf(ctx context.Context, expr string, args ...any) (string, error) {
	rep, err := m.query(ctx, tagTypeOf, expr, args, optBase, optASCII)
	if err != nil {
		return "", err
	}
	switch rep.Tag {
	case tagType:
		if rep.PP == "" {
			return "", protocolFault(tagTypeOf, rep.Tag, "no pretty-printed type")
		}
		return rep.PP, nil
	default:
		return "", m.replyError(tagTypeOf, rep)
	}
}

// Check tests the property expr on random inputs, up to the test limit set
// with SetTestLimit.
func (m *Module) Check(ctx context.Context, expr string, args ...any) (*CheckReport, error) {
	return m.report(ctx, tagCheck, expr, args, optBase, optASCII, optTests)
}

// Exhaust tests the property expr on every possible input.
func (m *Module) Exhaust(ctx context.Context, expr string, args ...any) (*CheckReport, error) {
	return m.report(ctx, tagExhaust, expr, args, optBase, optASCII)
}

func (m *Module) report(ctx context.Context, tag, expr string, args []any, opts ...string) (*CheckReport, error) {
	rep, err := m.query(ctx, tag, expr, args, opts...)
	if err != nil {
		return nil, err
	}
	if rep.Tag != tagCheck {
		return nil, m.replyError(tag, rep)
	}
	if rep.Report == nil {
		return nil, protocolFault(tag, rep.Tag, "missing report")
	}
	return newCheckReport(tag, rep.Report)
}

// Prove asks prover to prove the property expr valid. An empty prover uses
// the one set with SetProver, or the server's default.
func (m *Module) Prove(ctx context.Context, prover Prover, expr string, args ...any) (ProofResult, error) {
	if prover != "" {
		m.want(optProver, string(prover))
	}
	rep, err := m.query(ctx, tagProve, expr, args, optBase, optASCII, optProver)
	if err != nil {
		return ProofResult{}, err
	}
	switch rep.Tag {
	case tagProve:
	case tagProverError:
		return ProofResult{}, &ProverError{Prover: m.prover(), Message: rep.diagnostic()}
	default:
		return ProofResult{}, m.replyError(tagProve, rep)
	}

	if rep.Valid == nil {
		return ProofResult{}, protocolFault(tagProve, rep.Tag, "missing validity")
	}
	if *rep.Valid {
		if rep.Counterexample != nil {
			return ProofResult{}, protocolFault(tagProve, rep.Tag, "valid result carries a counterexample")
		}
		return Proved(), nil
	}
	if rep.Counterexample == nil {
		return ProofResult{}, protocolFault(tagProve, rep.Tag, "invalid result without counterexample")
	}
	counterexample, err := decodeTuple(*rep.Counterexample)
	if err != nil {
		return ProofResult{}, err
	}
	return Refuted(counterexample), nil
}

// Sat asks prover for one assignment satisfying expr.
func (m *Module) Sat(ctx context.Context, prover Prover, expr string, args ...any) (SatResult, error) {
	assignments, err := m.sat(ctx, prover, 1, expr, args)
	if err != nil {
		return SatResult{}, err
	}
	switch len(assignments) {
	case 0:
		return Unsatisfiable(), nil
	case 1:
		return Satisfied(assignments[0]), nil
	default:
		return SatResult{}, protocolFault(tagSat, tagSat, "%d assignments for a single-witness query", len(assignments))
	}
}

// AllSat asks prover for up to count satisfying assignments; 0 asks for all
// of them.
func (m *Module) AllSat(ctx context.Context, prover Prover, count int, expr string, args ...any) (AllSatResult, error) {
	if count < 0 {
		return AllSatResult{}, fmt.Errorf("invalid assignment count %d", count)
	}
	assignments, err := m.sat(ctx, prover, count, expr, args)
	if err != nil {
		return AllSatResult{}, err
	}
	if count > 0 && len(assignments) > count {
		return AllSatResult{}, protocolFault(tagSat, tagSat, "%d assignments, %d requested", len(assignments), count)
	}
	return AllSatisfied(assignments...), nil
}

func (m *Module) sat(ctx context.Context, prover Prover, count int, expr string, args []any) ([]Tuple, error) {
	if prover != "" {
		m.want(optProver, string(prover))
	}
	if count == 0 {
		m.want(optSatNum, "all")
	} else {
		m.want(optSatNum, strconv.Itoa(count))
	}

	rep, err := m.query(ctx, tagSat, expr, args, optBase, optASCII, optProver, optSatNum)
	if err != nil {
		return nil, err
	}
	switch rep.Tag {
	case tagSat:
	case tagProverError:
		return nil, &ProverError{Prover: m.prover(), Message: rep.diagnostic()}
	default:
		return nil, m.replyError(tagSat, rep)
	}

	assignments := make([]Tuple, 0, len(rep.Assignments))
	for _, wires := range rep.Assignments {
		assignment, err := decodeTuple(wires)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, assignment)
	}
	return assignments, nil
}

// SetOpt sets a REPL option on the server immediately. The value is sent in
// its string form and replaces any value set lazily for the same key.
func (m *Module) SetOpt(ctx context.Context, key string, value any) error {
	s := fmt.Sprint(value)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setOpt(ctx, key, s); err != nil {
		return err
	}
	m.optMu.Lock()
	defer m.optMu.Unlock()
	m.wanted[key] = s
	m.applied[key] = s
	return nil
}

// Browse lists the module's top-level declarations, including the ones that
// were not bound.
func (m *Module) Browse(ctx context.Context) ([]Declaration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Load() {
		return nil, ErrClosed
	}
	return m.browse(ctx)
}

func (m *Module) browse(ctx context.Context) ([]Declaration, error) {
	rep, err := m.roundTrip(ctx, request{Tag: tagBrowse})
	if err != nil {
		return nil, err
	}
	if rep.Decls == nil {
		return nil, m.replyError(tagBrowse, rep)
	}
	return rep.Decls.IfDecls, nil
}

// SetBase sets the radix the server uses to print words: 2, 8, 10 or 16.
func (m *Module) SetBase(base int) error {
	switch base {
	case 2, 8, 10, 16:
	default:
		return fmt.Errorf("unsupported base %d", base)
	}
	m.want(optBase, strconv.Itoa(base))
	return nil
}

// SetASCII makes the server print byte sequences as strings.
func (m *Module) SetASCII(ascii bool) {
	if ascii {
		m.want(optASCII, "on")
	} else {
		m.want(optASCII, "off")
	}
}

// SetProver sets the prover used by Prove, Sat and AllSat when none is given.
func (m *Module) SetProver(prover Prover) {
	m.want(optProver, string(prover))
}

// SetSatCount sets the default number of satisfying assignments; 0 means all.
func (m *Module) SetSatCount(count int) error {
	if count < 0 {
		return fmt.Errorf("invalid assignment count %d", count)
	}
	if count == 0 {
		m.want(optSatNum, "all")
	} else {
		m.want(optSatNum, strconv.Itoa(count))
	}
	return nil
}

// SetTestLimit sets the number of random tests Check runs.
func (m *Module) SetTestLimit(tests int) error {
	if tests <= 0 {
		return fmt.Errorf("invalid test limit %d", tests)
	}
	m.want(optTests, strconv.Itoa(tests))
	return nil
}

func (m *Module) want(key, value string) {
	m.optMu.Lock()
	defer m.optMu.Unlock()
	m.wanted[key] = value
}

func (m *Module) prover() Prover {
	m.optMu.Lock()
	defer m.optMu.Unlock()
	return Prover(m.wanted[optProver])
}

// flushOptions sends the options among keys whose wanted value differs from
// what the server last acknowledged. The caller holds m.mu.
func (m *Module) flushOptions(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		m.optMu.Lock()
		value, ok := m.wanted[key]
		stale := ok && m.applied[key] != value
		m.optMu.Unlock()
		if !stale {
			continue
		}

		if err := m.setOpt(ctx, key, value); err != nil {
			return err
		}
		m.optMu.Lock()
		m.applied[key] = value
		m.optMu.Unlock()
	}
	return nil
}

func (m *Module) setOpt(ctx context.Context, key string, value any) error {
	if m.closed.Load() {
		return ErrClosed
	}
	rep, err := m.roundTrip(ctx, request{Tag: tagSetOpt, Key: key, Value: value})
	if err != nil {
		return err
	}
	if rep.Tag != tagOK {
		return m.replyError(tagSetOpt, rep)
	}
	return nil
}

// query templates expr, flushes the options it depends on and performs the
// request.
func (m *Module) query(ctx context.Context, tag, expr string, args []any, opts ...string) (*reply, error) {
	src, err := Template(expr, args...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if err := m.flushOptions(ctx, opts...); err != nil {
		return nil, err
	}
	return m.roundTrip(ctx, request{Tag: tag, Expr: src})
}

// apply performs an applyFun request for a function handle of this module.
func (m *Module) apply(ctx context.Context, handle any, arg any) (any, error) {
	wire, err := Encode(arg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	rep, err := func() (*reply, error) {
		defer m.mu.Unlock()
		if m.closed.Load() {
			return nil, ErrClosed
		}
		return m.roundTrip(ctx, request{Tag: tagApplyFun, Handle: handle, Arg: &wire})
	}()
	if err != nil {
		return nil, err
	}
	return m.valueFromReply(tagApplyFun, rep)
}

// roundTrip sends req and receives its reply. The caller holds m.mu.
func (m *Module) roundTrip(ctx context.Context, req request) (*reply, error) {
	data, err := m.codec.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", req.Tag, err)
	}
	m.logger.Debug("request", "tag", req.Tag)
	if err := m.transport.Send(ctx, data); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Tag, err)
	}
	return m.receive(ctx, req.Tag)
}

// receive waits for the reply to the request tagged tag. If ctx ends first,
// the request is interrupted through the session's control transport and
// its reply drained, leaving the transport ready for the next request.
func (m *Module) receive(ctx context.Context, tag string) (*reply, error) {
	data, err := m.transport.Recv(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, m.interrupted(ctx, tag, ctxErr)
		}
		return nil, fmt.Errorf("%s: %w", tag, err)
	}

	var rep reply
	if err := m.codec.Decode(data, &rep); err != nil {
		return nil, protocolFault(tag, "", "undecodable reply: %v", err)
	}
	return &rep, nil
}

func (m *Module) interrupted(ctx context.Context, tag string, cause error) error {
	m.logger.Info("interrupting request", "tag", tag, "cause", cause)

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.session.opts.interruptTimeout)
	defer cancel()
	if err := m.session.interrupt(drainCtx, m.port); err != nil {
		m.logger.Warn("interrupt failed, closing module", "tag", tag, "error", err)
		m.close()
		return fmt.Errorf("%s: %w: %w (interrupt failed: %v)", tag, ErrInterrupted, cause, err)
	}
	if _, err := m.transport.Recv(drainCtx); err != nil {
		m.logger.Warn("drain failed, closing module", "tag", tag, "error", err)
		m.close()
		return fmt.Errorf("%s: %w: %w (drain failed: %v)", tag, ErrInterrupted, cause, err)
	}
	return fmt.Errorf("%s: %w: %w", tag, ErrInterrupted, cause)
}

// valueFromReply decodes a value or funValue reply.
func (m *Module) valueFromReply(op string, rep *reply) (any, error) {
	switch rep.Tag {
	case tagValue:
		if rep.Value == nil {
			return nil, protocolFault(op, rep.Tag, "missing value")
		}
		return Decode(*rep.Value)
	case tagFunValue:
		if rep.Handle == nil {
			return nil, protocolFault(op, rep.Tag, "missing handle")
		}
		return &Function{handle: rep.Handle, module: m}, nil
	default:
		return nil, m.replyError(op, rep)
	}
}

// replyError turns an error reply into a *CryptolError or *ProverError and
// anything else into a *ProtocolError.
func (m *Module) replyError(op string, rep *reply) error {
	switch rep.Tag {
	case tagInteractiveError:
		return &CryptolError{Message: rep.diagnostic()}
	case tagProverError:
		return &ProverError{Prover: m.prover(), Message: rep.diagnostic()}
	default:
		return protocolFault(op, rep.Tag, "unexpected reply")
	}
}

// Exit sends a best-effort exit notice to the worker, closes the module and
// removes it from its session. Later calls do nothing.
func (m *Module) Exit(ctx context.Context) error {
	var err error
	m.exitOnce.Do(func() {
		if m.closed.Load() {
			m.session.deregister(m)
			return
		}
		// A request still in flight keeps the worker busy; skip the notice.
		if m.mu.TryLock() {
			if notice, encErr := m.codec.Encode(request{Tag: tagExit}); encErr == nil {
				noticeCtx, cancel := context.WithTimeout(ctx, exitNoticeTimeout)
				if notifyErr := m.transport.Notify(noticeCtx, notice); notifyErr != nil {
					m.logger.Debug("exit notice not delivered", "error", notifyErr)
				}
				cancel()
			}
			m.mu.Unlock()
		}
		err = m.close()
		m.logger.Debug("module exited")
	})
	return err
}

func (m *Module) close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.session.deregister(m)
	if err := m.transport.Close(); err != nil && !errors.Is(err, ErrClosed) {
		return fmt.Errorf("closing module transport: %w", err)
	}
	return nil
}
