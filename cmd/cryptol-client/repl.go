// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"

	"github.com/luxfi/cryptol"
)

var errQuit = errors.New("quit")

type repl struct {
	ctx    context.Context
	module *cryptol.Module
	out    io.Writer
	logger *slog.Logger

	signals chan os.Signal

	mu     sync.Mutex
	cancel context.CancelFunc
}

// watchInterrupts turns SIGINT into cancellation of the running query.
func (r *repl) watchInterrupts() {
	r.signals = make(chan os.Signal, 1)
	signal.Notify(r.signals, os.Interrupt)
	go func() {
		for range r.signals {
			r.mu.Lock()
			if r.cancel != nil {
				r.cancel()
			}
			r.mu.Unlock()
		}
	}()
}

func (r *repl) stopWatching() {
	signal.Stop(r.signals)
	close(r.signals)
}

func (r *repl) loop(in io.Reader, interactive bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(r.out, "cryptol> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		err := r.execute(line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case r.ctx.Err() != nil:
			return r.ctx.Err()
		case errors.Is(err, cryptol.ErrInterrupted):
			fmt.Fprintln(r.out, "Interrupted")
		case err != nil:
			var protocolErr *cryptol.ProtocolError
			if errors.As(err, &protocolErr) || errors.Is(err, cryptol.ErrClosed) {
				return err
			}
			fmt.Fprintln(r.out, err)
		}
	}
}

// execute runs one command under a context that SIGINT cancels.
func (r *repl) execute(line string) error {
	ctx, cancel := context.WithCancel(r.ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		cancel()
	}()

	command, rest := line, ""
	if strings.HasPrefix(line, ":") {
		command, rest, _ = strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)
	}
	r.logger.Debug("command", "command", command)

	switch command {
	case ":q", ":quit":
		return errQuit
	case ":t", ":type":
		typ, err := r.module.TypeOf(ctx, rest)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s : %s\n", rest, typ)
	case ":check", ":exhaust":
		check := r.module.Check
		if command == ":exhaust" {
			check = r.module.Exhaust
		}
		report, err := check(ctx, rest)
		if err != nil {
			return err
		}
		r.printReport(report)
	case ":prove":
		result, err := r.module.Prove(ctx, "", rest)
		if err != nil {
			return err
		}
		if result.IsValid() {
			fmt.Fprintln(r.out, "Q.E.D.")
		} else {
			fmt.Fprintf(r.out, "Counterexample: %s\n", display(result.Counterexample()))
		}
	case ":sat":
		result, err := r.module.Sat(ctx, "", rest)
		if err != nil {
			return err
		}
		if result.IsSat() {
			fmt.Fprintf(r.out, "Satisfiable: %s\n", display(result.Assignment()))
		} else {
			fmt.Fprintln(r.out, "Unsatisfiable")
		}
	case ":allsat":
		result, err := r.module.AllSat(ctx, "", 0, rest)
		if err != nil {
			return err
		}
		if !result.IsSat() {
			fmt.Fprintln(r.out, "Unsatisfiable")
		}
		for _, assignment := range result.Assignments() {
			fmt.Fprintln(r.out, display(assignment))
		}
	case ":browse":
		decls, err := r.module.Browse(ctx)
		if err != nil {
			return err
		}
		for _, decl := range decls {
			fmt.Fprintln(r.out, decl.Name)
		}
	case ":set":
		key, value, ok := strings.Cut(rest, "=")
		if !ok {
			return fmt.Errorf("usage: :set KEY=VALUE")
		}
		return r.module.SetOpt(ctx, strings.TrimSpace(key), strings.TrimSpace(value))
	default:
		if strings.HasPrefix(command, ":") {
			return fmt.Errorf("unknown command %s", command)
		}
		value, err := r.module.Eval(ctx, line)
		if err != nil {
			return err
		}
		fmt.Fprintln(r.out, display(value))
	}
	return nil
}

func (r *repl) printReport(report *cryptol.CheckReport) {
	switch {
	case report.HasError():
		fmt.Fprintf(r.out, "Evaluation error: %s\n", report.ErrorMessage())
	case report.HasCounterexample():
		fmt.Fprintf(r.out, "Counterexample: %s\n", display(report.Counterexample()))
	case report.IsExhaustive():
		fmt.Fprintf(r.out, "Q.E.D. (%d tests)\n", report.TestsRun())
	default:
		fmt.Fprintf(r.out, "Passed %d tests (%.2f%% coverage)\n", report.TestsRun(), 100*report.Coverage())
	}
}

// display renders a value the way the interpreter prints it.
func display(v any) string {
	switch v := v.(type) {
	case nil:
		return "()"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case cryptol.BitVector:
		return v.String()
	case *cryptol.Function:
		return "<function>"
	case cryptol.Tuple:
		return "(" + displayAll(v) + ")"
	case cryptol.Sequence:
		return "[" + displayAll(v) + "]"
	case cryptol.Record:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		fields := make([]string, len(names))
		for i, name := range names {
			fields[i] = name + " = " + display(v[name])
		}
		return "{" + strings.Join(fields, ", ") + "}"
	default:
		return fmt.Sprint(v)
	}
}

func displayAll(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = display(v)
	}
	return strings.Join(parts, ", ")
}
