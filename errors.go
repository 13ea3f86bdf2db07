// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on an exited session, module or
	// transport.
	ErrClosed = errors.New("cryptol: connection closed")

	// ErrInterrupted is wrapped into the error of a call whose context was
	// cancelled while it waited for the server. The context's own error is
	// wrapped alongside it.
	ErrInterrupted = errors.New("cryptol: request interrupted")
)

// ServerUnavailableError is returned by Connect when a launched server
// executable cannot be found or exits during the startup grace interval.
type ServerUnavailableError struct {
	Executable string
	ExitCode   int
	Err        error
}

func (e *ServerUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cryptol server %q unavailable: %v", e.Executable, e.Err)
	}
	return fmt.Sprintf("cryptol server %q exited immediately with status %d", e.Executable, e.ExitCode)
}

func (e *ServerUnavailableError) Unwrap() error { return e.Err }

// ModuleLoadError is returned when the server rejects a loadModule or
// loadPrelude request. The module connection is closed and unusable.
type ModuleLoadError struct {
	Path    string // empty for the prelude
	Message string
}

func (e *ModuleLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("loading prelude: %s", e.Message)
	}
	return fmt.Sprintf("loading module %s: %s", e.Path, e.Message)
}

// CryptolError carries a language-level failure reported by the server
// (parse, type check or evaluation). Message is the server's pretty-printed
// diagnostic.
type CryptolError struct {
	Message string
}

func (e *CryptolError) Error() string { return "cryptol: " + e.Message }

// ProverError is returned when the server could not invoke the requested
// solver. It is distinct from CryptolError so callers can retry with a
// different prover.
type ProverError struct {
	Prover  Prover
	Message string
}

func (e *ProverError) Error() string {
	return fmt.Sprintf("prover %s: %s", e.Prover, e.Message)
}

// NotInScopeError is returned by Decl and Call for names that were not bound
// when the module was loaded.
type NotInScopeError struct {
	Name string
}

func (e *NotInScopeError) Error() string {
	return fmt.Sprintf("%q is not in scope", e.Name)
}

// TemplateArityError reports a mismatch between the %s placeholders of an
// expression template and the arguments supplied for it.
type TemplateArityError struct {
	Expr         string
	Placeholders int
	Args         int
}

func (e *TemplateArityError) Error() string {
	return fmt.Sprintf("template %q has %d placeholders but %d arguments were given",
		e.Expr, e.Placeholders, e.Args)
}

// UnsupportedValueError is returned when a Go value has no Cryptol
// representation.
type UnsupportedValueError struct {
	Value any
}

func (e *UnsupportedValueError) Error() string {
	return fmt.Sprintf("unable to convert %T value %v into a Cryptol value", e.Value, e.Value)
}

// ProtocolError means the server sent a reply the client cannot interpret,
// or a reply that violates a result invariant. It indicates a client/server
// version mismatch or a bug and is not expected in correct operation.
type ProtocolError struct {
	Op     string
	Tag    string
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("cryptol protocol fault in %s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("cryptol protocol fault in %s: reply %q: %s", e.Op, e.Tag, e.Detail)
}

func protocolFault(op, tag, format string, args ...any) *ProtocolError {
	return &ProtocolError{Op: op, Tag: tag, Detail: fmt.Sprintf(format, args...)}
}
