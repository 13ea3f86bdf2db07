// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptoltest

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"

	"github.com/luxfi/cryptol"
)

// Module is a source file the fake server can load.
type Module struct {
	// Decls is the browse listing.
	Decls []cryptol.Declaration

	// Values maps expressions to local values or *Func.
	Values map[string]any

	// Types maps expressions to their pretty-printed types.
	Types map[string]string

	// Properties are answered by check, exhaust, prove and sat.
	Properties map[string]Property

	// Diverge lists expressions whose evaluation never finishes unless
	// interrupted.
	Diverge []string

	// Hang lists expressions whose evaluation ignores interrupts and only
	// ends when the server closes.
	Hang []string

	// Eval answers evalExpr requests not found in Values. A non-nil error
	// becomes an interactiveError reply.
	Eval func(expr string) (any, error)
}

// Func is a curried function of Arity arguments.
type Func struct {
	Arity int
	Apply func(args []any) (any, error)
}

// Property is a predicate over one word of Width bits.
type Property struct {
	Width uint
	Holds func(x uint64) bool

	// Error, when set, is reported by check and exhaust as an evaluation
	// failure.
	Error string
}

func (p Property) possible() uint64 { return 1 << p.Width }

func (p Property) witness(x uint64) []cryptol.WireValue {
	return []cryptol.WireValue{cryptol.WordWire(p.Width, new(big.Int).SetUint64(x))}
}

var literal = regexp.MustCompile(`^(\d+) : \[(\d+)\]$`)

// ParseLiteral parses a word rendered by cryptol.ToExpr.
func ParseLiteral(s string) (cryptol.BitVector, error) {
	m := literal.FindStringSubmatch(s)
	if m == nil {
		return cryptol.BitVector{}, fmt.Errorf("not a word literal: %q", s)
	}
	value, ok := new(big.Int).SetString(m[1], 10)
	if !ok {
		return cryptol.BitVector{}, fmt.Errorf("bad magnitude %q", m[1])
	}
	width, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return cryptol.BitVector{}, err
	}
	return cryptol.NewBitVector(uint(width), value), nil
}
