// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"math/big"
)

// Request tags
const (
	tagConnect     = "connect"
	tagLoadModule  = "loadModule"
	tagLoadPrelude = "loadPrelude"
	tagBrowse      = "browse"
	tagEvalExpr    = "evalExpr"
	tagApplyFun    = "applyFun"
	tagTypeOf      = "typeOf"
	tagCheck       = "check"
	tagExhaust     = "exhaust"
	tagProve       = "prove"
	tagSat         = "sat"
	tagSetOpt      = "setOpt"
	tagExit        = "exit"
	tagInterrupt   = "interrupt"
)

// Reply tags
const (
	tagOK               = "ok"
	tagValue            = "value"
	tagFunValue         = "funValue"
	tagType             = "type"
	tagInteractiveError = "interactiveError"
	tagProverError      = "proverError"
)

// request is the envelope of every message sent to the server. Only the
// fields relevant to Tag are set.
type request struct {
	Tag      string     `json:"tag"`
	FilePath string     `json:"filePath,omitempty"`
	Expr     string     `json:"expr,omitempty"`
	Handle   any        `json:"handle,omitempty"`
	Arg      *WireValue `json:"arg,omitempty"`
	Key      string     `json:"key,omitempty"`
	Value    any        `json:"value,omitempty"`
	Port     int        `json:"port,omitempty"`
}

// reply is the envelope of every message received from the server.
type reply struct {
	Tag            string        `json:"tag"`
	Port           int           `json:"port,omitempty"`
	Value          *WireValue    `json:"value,omitempty"`
	Handle         any           `json:"handle,omitempty"`
	PP             string        `json:"pp,omitempty"`
	Message        string        `json:"message,omitempty"`
	Valid          *bool         `json:"valid,omitempty"`
	Counterexample *[]WireValue  `json:"counterexample,omitempty"`
	Assignments    [][]WireValue `json:"assignments,omitempty"`
	Report         *wireReport   `json:"report,omitempty"`
	Decls          *browseDecls  `json:"decls,omitempty"`
}

// diagnostic returns the server's human-readable text for an error reply.
func (r *reply) diagnostic() string {
	if r.PP != "" {
		return r.PP
	}
	return r.Message
}

type browseDecls struct {
	IfDecls []Declaration `json:"ifDecls"`
}

// Declaration describes one top-level declaration of a loaded module.
type Declaration struct {
	// Name is the unqualified name, which may be an operator such as ⊕.
	Name          string   `json:"name"`
	QualifiedName string   `json:"qualifiedName,omitempty"`
	Infix         bool     `json:"infix,omitempty"`
	TypeVars      []string `json:"typeVars,omitempty"`
	Doc           string   `json:"doc,omitempty"`
}

// Polymorphic reports whether the declaration has type parameters. Such
// declarations have no single value and are never bound.
func (d Declaration) Polymorphic() bool { return len(d.TypeVars) > 0 }

type wireReport struct {
	Passed         bool         `json:"passed"`
	TestsRun       uint64       `json:"testsRun"`
	TestsPossible  *big.Int     `json:"testsPossible,omitempty"`
	Counterexample *[]WireValue `json:"counterexample,omitempty"`
	Error          *string      `json:"error,omitempty"`
}
