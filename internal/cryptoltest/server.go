// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cryptoltest provides an in-process fake of the Cryptol server
// speaking the frame transport. It implements the control and worker
// protocols closely enough to exercise a client end to end, with modules,
// values and properties defined in Go.
package cryptoltest

import (
	"context"
	"fmt"
	"math/big"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/cryptol"
)

// Request is a decoded client request.
type Request struct {
	Tag      string             `json:"tag"`
	FilePath string             `json:"filePath,omitempty"`
	Expr     string             `json:"expr,omitempty"`
	Handle   int64              `json:"handle,omitempty"`
	Arg      *cryptol.WireValue `json:"arg,omitempty"`
	Key      string             `json:"key,omitempty"`
	Value    any                `json:"value,omitempty"`
	Port     int                `json:"port,omitempty"`
}

// Reply is a server reply.
type Reply struct {
	Tag            string                `json:"tag"`
	Port           int                   `json:"port,omitempty"`
	Value          *cryptol.WireValue    `json:"value,omitempty"`
	Handle         int64                 `json:"handle,omitempty"`
	Type           string                `json:"type,omitempty"`
	PP             string                `json:"pp,omitempty"`
	Message        string                `json:"message,omitempty"`
	Valid          *bool                 `json:"valid,omitempty"`
	Counterexample *[]cryptol.WireValue  `json:"counterexample,omitempty"`
	Assignments    [][]cryptol.WireValue `json:"assignments,omitempty"`
	Report         *Report               `json:"report,omitempty"`
	Decls          *Decls                `json:"decls,omitempty"`
}

// Report is the payload of a check reply.
type Report struct {
	Passed         bool                 `json:"passed"`
	TestsRun       uint64               `json:"testsRun"`
	TestsPossible  *big.Int             `json:"testsPossible,omitempty"`
	Counterexample *[]cryptol.WireValue `json:"counterexample,omitempty"`
	Error          *string              `json:"error,omitempty"`
}

// Decls is the payload of a browse reply.
type Decls struct {
	IfDecls []cryptol.Declaration `json:"ifDecls"`
}

func interactiveError(format string, args ...any) Reply {
	return Reply{Tag: "interactiveError", PP: fmt.Sprintf(format, args...)}
}

// Config describes what the fake server knows.
type Config struct {
	// Modules are the loadable files, by path.
	Modules map[string]*Module

	// Prelude is loaded by loadPrelude. Nil means an empty module.
	Prelude *Module

	// Provers are the solvers that can be invoked. Nil means any and z3.
	Provers []cryptol.Prover

	// Codec must match the client's. Nil means JSON.
	Codec cryptol.Codec

	// ControlDelay holds back the reply to control requests by tag.
	ControlDelay map[string]time.Duration

	// RefuseInterrupts answers every interrupt request with an error.
	RefuseInterrupts bool
}

// Server is a fake Cryptol server: a control frame server that spawns one
// worker frame server per connect request.
type Server struct {
	cfg     Config
	codec   cryptol.Codec
	control *cryptol.FrameServer

	mu         sync.Mutex
	workers    map[int]*worker
	spawned    []int
	interrupts []int
	exits      int
}

// Start runs a fake server on a loopback port until the test ends.
func Start(t testing.TB, cfg Config) *Server {
	t.Helper()
	s, err := Listen(cfg)
	if err != nil {
		t.Fatalf("cryptoltest: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Listen starts a fake server on a loopback port.
func Listen(cfg Config) (*Server, error) {
	if cfg.Prelude == nil {
		cfg.Prelude = &Module{}
	}
	if cfg.Provers == nil {
		cfg.Provers = []cryptol.Prover{cryptol.ProverAny, cryptol.ProverZ3}
	}
	if cfg.Codec == nil {
		cfg.Codec = cryptol.JSONCodec{}
	}
	s := &Server{cfg: cfg, codec: cfg.Codec, workers: make(map[int]*worker)}
	control, err := cryptol.ListenFrame("127.0.0.1:0", cryptol.FrameHandlerFunc(s.handleControl))
	if err != nil {
		return nil, err
	}
	s.control = control
	go control.Serve(context.Background())
	return s, nil
}

// Address returns the session address for cryptol.Connect.
func (s *Server) Address() string { return cryptol.SchemeFrame + "://127.0.0.1" }

// ControlPort returns the port for cryptol.WithControlPort.
func (s *Server) ControlPort() int { return s.control.Port() }

// Interrupts returns the worker ports named by interrupt requests so far.
func (s *Server) Interrupts() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.interrupts)
}

// Spawned returns the ports of every worker started, in order.
func (s *Server) Spawned() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.spawned)
}

// Exits returns the number of exit notices received on the control socket.
func (s *Server) Exits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exits
}

// Options returns the options set on the worker at port.
func (s *Server) Options(port int) map[string]string {
	s.mu.Lock()
	w := s.workers[port]
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	opts := make(map[string]string, len(w.options))
	for k, v := range w.options {
		opts[k] = v
	}
	return opts
}

// Workers returns the number of workers that have not exited.
func (s *Server) Workers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// Close stops the control server and every worker.
func (s *Server) Close() error {
	s.mu.Lock()
	workers := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()
	for _, w := range workers {
		w.server.Close()
	}
	return s.control.Close()
}

func (s *Server) handleControl(ctx context.Context, payload []byte) ([]byte, error) {
	var req Request
	if err := s.codec.Decode(payload, &req); err != nil {
		return nil, err
	}

	if d := s.cfg.ControlDelay[req.Tag]; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var rep Reply
	switch req.Tag {
	case "connect":
		port, err := s.spawn()
		if err != nil {
			return nil, err
		}
		rep = Reply{Tag: "ok", Port: port}
	case "interrupt":
		s.mu.Lock()
		w := s.workers[req.Port]
		s.interrupts = append(s.interrupts, req.Port)
		s.mu.Unlock()
		if w == nil {
			rep = interactiveError("no worker on port %d", req.Port)
			break
		}
		if s.cfg.RefuseInterrupts {
			rep = interactiveError("interrupts are disabled")
			break
		}
		select {
		case w.interrupt <- struct{}{}:
		default:
		}
		rep = Reply{Tag: "ok"}
	case "exit":
		s.mu.Lock()
		s.exits++
		s.mu.Unlock()
		rep = Reply{Tag: "ok"}
	default:
		rep = interactiveError("unknown control request %q", req.Tag)
	}
	return s.codec.Encode(rep)
}

func (s *Server) spawn() (int, error) {
	w := &worker{
		srv:       s,
		interrupt: make(chan struct{}, 1),
		options:   make(map[string]string),
		handles:   make(map[int64]partial),
	}
	server, err := cryptol.ListenFrame("127.0.0.1:0", cryptol.FrameHandlerFunc(w.handle))
	if err != nil {
		return 0, err
	}
	w.server = server
	w.port = server.Port()

	s.mu.Lock()
	s.workers[w.port] = w
	s.spawned = append(s.spawned, w.port)
	s.mu.Unlock()
	go server.Serve(context.Background())
	return w.port, nil
}

func (s *Server) retire(w *worker) {
	s.mu.Lock()
	delete(s.workers, w.port)
	s.mu.Unlock()
	go w.server.Close()
}

type partial struct {
	fn   *Func
	args []any
}

// worker serves one module context. The frame server handles its
// connection sequentially, so requests never overlap.
type worker struct {
	srv       *Server
	server    *cryptol.FrameServer
	port      int
	interrupt chan struct{}

	mu      sync.Mutex
	module  *Module
	options map[string]string
	handles map[int64]partial
	next    int64
}

func (w *worker) handle(ctx context.Context, payload []byte) ([]byte, error) {
	var req Request
	if err := w.srv.codec.Decode(payload, &req); err != nil {
		return nil, err
	}
	if req.Tag == "exit" {
		w.srv.retire(w)
		return nil, nil
	}
	rep := w.dispatch(ctx, req)
	return w.srv.codec.Encode(rep)
}

func (w *worker) dispatch(ctx context.Context, req Request) Reply {
	w.mu.Lock()
	module := w.module
	w.mu.Unlock()

	switch req.Tag {
	case "loadModule":
		m, ok := w.srv.cfg.Modules[req.FilePath]
		if !ok {
			return interactiveError("Could not find module file %s", req.FilePath)
		}
		return w.load(m)
	case "loadPrelude":
		return w.load(w.srv.cfg.Prelude)
	case "setOpt":
		return w.setOpt(req)
	}

	if module == nil {
		return interactiveError("no module loaded")
	}
	switch req.Tag {
	case "browse":
		return Reply{Tag: "ok", Decls: &Decls{IfDecls: module.Decls}}
	case "evalExpr":
		if slices.Contains(module.Diverge, req.Expr) {
			return w.diverge(ctx)
		}
		if slices.Contains(module.Hang, req.Expr) {
			<-ctx.Done()
			return interactiveError("server shutting down")
		}
		value, err := w.eval(module, req.Expr)
		if err != nil {
			return interactiveError("%v", err)
		}
		return w.valueReply(value)
	case "applyFun":
		return w.apply(req)
	case "typeOf":
		typ, ok := module.Types[req.Expr]
		if !ok {
			return interactiveError("Value not in scope: %s", req.Expr)
		}
		return Reply{Tag: "type", Type: typ, PP: typ}
	case "check", "exhaust", "prove", "sat":
		prop, ok := module.Properties[req.Expr]
		if !ok {
			return interactiveError("Value not in scope: %s", req.Expr)
		}
		return w.query(req.Tag, prop)
	default:
		return interactiveError("unknown request %q", req.Tag)
	}
}

func (w *worker) load(m *Module) Reply {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.module = m
	return Reply{Tag: "ok"}
}

func (w *worker) setOpt(req Request) Reply {
	switch req.Key {
	case "base", "ascii", "prover", "satNum", "tests":
	default:
		return interactiveError("Unknown env option %s", req.Key)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.options[req.Key] = fmt.Sprint(req.Value)
	return Reply{Tag: "ok"}
}

func (w *worker) option(key string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.options[key]
}

func (w *worker) diverge(ctx context.Context) Reply {
	select {
	case <-w.interrupt:
		return interactiveError("Ctrl-C")
	case <-ctx.Done():
		return interactiveError("server shutting down")
	}
}

func (w *worker) eval(m *Module, expr string) (any, error) {
	if value, ok := m.Values[expr]; ok {
		return value, nil
	}
	if m.Eval != nil {
		return m.Eval(expr)
	}
	return nil, fmt.Errorf("Value not in scope: %s", expr)
}

func (w *worker) valueReply(value any) Reply {
	if fn, ok := value.(*Func); ok {
		return w.funValue(partial{fn: fn})
	}
	wire, err := cryptol.Encode(value)
	if err != nil {
		return interactiveError("%v", err)
	}
	return Reply{Tag: "value", Value: &wire}
}

func (w *worker) funValue(p partial) Reply {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next++
	w.handles[w.next] = p
	return Reply{Tag: "funValue", Handle: w.next}
}

func (w *worker) apply(req Request) Reply {
	w.mu.Lock()
	p, ok := w.handles[req.Handle]
	w.mu.Unlock()
	if !ok {
		return interactiveError("unknown function handle %d", req.Handle)
	}
	if req.Arg == nil {
		return interactiveError("applyFun without argument")
	}
	arg, err := cryptol.Decode(*req.Arg)
	if err != nil {
		return interactiveError("%v", err)
	}

	args := append(slices.Clone(p.args), arg)
	if len(args) < p.fn.Arity {
		return w.funValue(partial{fn: p.fn, args: args})
	}
	result, err := p.fn.Apply(args)
	if err != nil {
		return interactiveError("%v", err)
	}
	return w.valueReply(result)
}

func (w *worker) query(tag string, prop Property) Reply {
	switch tag {
	case "check":
		return w.check(prop)
	case "exhaust":
		return w.exhaust(prop)
	}

	prover := cryptol.Prover(w.option("prover"))
	if prover == "" {
		prover = cryptol.ProverAny
	}
	if !slices.Contains(w.srv.cfg.Provers, prover) {
		return Reply{Tag: "proverError", Message: fmt.Sprintf("%s is not installed", prover)}
	}
	if tag == "prove" {
		return w.prove(prop)
	}
	return w.sat(prop)
}

func (w *worker) check(prop Property) Reply {
	tests := uint64(100)
	if limit, err := strconv.ParseUint(w.option("tests"), 10, 64); err == nil {
		tests = limit
	}
	if tests >= prop.possible() {
		return w.exhaust(prop)
	}

	report := &Report{Passed: true, TestsPossible: new(big.Int).SetUint64(prop.possible())}
	if prop.Error != "" {
		report.Passed = false
		report.TestsRun = 1
		report.Error = &prop.Error
		return Reply{Tag: "check", Report: report}
	}
	for range tests {
		x := rand.Uint64N(prop.possible())
		report.TestsRun++
		if !prop.Holds(x) {
			cex := prop.witness(x)
			report.Passed = false
			report.Counterexample = &cex
			break
		}
	}
	return Reply{Tag: "check", Report: report}
}

func (w *worker) exhaust(prop Property) Reply {
	report := &Report{Passed: true, TestsPossible: new(big.Int).SetUint64(prop.possible())}
	if prop.Error != "" {
		report.Passed = false
		report.TestsRun = 1
		report.Error = &prop.Error
		return Reply{Tag: "check", Report: report}
	}
	for x := range prop.possible() {
		report.TestsRun++
		if !prop.Holds(x) {
			cex := prop.witness(x)
			report.Passed = false
			report.Counterexample = &cex
			break
		}
	}
	return Reply{Tag: "check", Report: report}
}

func (w *worker) prove(prop Property) Reply {
	valid := true
	for x := range prop.possible() {
		if !prop.Holds(x) {
			valid = false
			cex := prop.witness(x)
			return Reply{Tag: "prove", Valid: &valid, Counterexample: &cex}
		}
	}
	return Reply{Tag: "prove", Valid: &valid}
}

func (w *worker) sat(prop Property) Reply {
	limit := uint64(1)
	switch n := w.option("satNum"); n {
	case "", "1":
	case "all":
		limit = prop.possible()
	default:
		parsed, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			return interactiveError("bad satNum %q", n)
		}
		limit = parsed
	}

	var assignments [][]cryptol.WireValue
	for x := range prop.possible() {
		if uint64(len(assignments)) == limit {
			break
		}
		if prop.Holds(x) {
			assignments = append(assignments, prop.witness(x))
		}
	}
	return Reply{Tag: "sat", Assignments: assignments}
}
