// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"errors"
	"math/big"
	"testing"
)

func TestToExpr(t *testing.T) {
	wide, _ := new(big.Int).SetString("340282366920938463463374607431768211455", 10)
	tests := []struct {
		value any
		want  string
	}{
		{true, "True"},
		{false, "False"},
		{42, "42"},
		{int64(-3), "-3"},
		{uint8(255), "255"},
		{wide, "340282366920938463463374607431768211455"},
		{BitVectorFromUint64(8, 19), "19 : [8]"},
		{Tuple{true, 1}, "(True, 1)"},
		{Sequence{1, 2, 3}, "[1, 2, 3]"},
		{[]any{}, "[]"},
		{Record{"y": false, "x": BitVectorFromUint64(4, 2)}, "{x = 2 : [4], y = False}"},
		{Tuple{Record{"k": Sequence{true}}}, "({k = [True]})"},
	}
	for _, tt := range tests {
		got, err := ToExpr(tt.value)
		if err != nil {
			t.Fatalf("ToExpr(%v): %v", tt.value, err)
		}
		if got != tt.want {
			t.Errorf("ToExpr(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}

	_, err := ToExpr(Tuple{"text"})
	var unsupported *UnsupportedValueError
	if !errors.As(err, &unsupported) {
		t.Errorf("ToExpr(string) error = %v, want UnsupportedValueError", err)
	}
}

func TestTemplate(t *testing.T) {
	got, err := Template("f %s %s", BitVectorFromUint64(8, 1), true)
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	if got != "f 1 : [8] True" {
		t.Errorf("Template = %q", got)
	}

	got, err = Template("x %% 3 == %s", 1)
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	if got != "x % 3 == 1" {
		t.Errorf("Template = %q", got)
	}

	got, err = Template("x % 3")
	if err != nil || got != "x % 3" {
		t.Errorf("Template without placeholders = %q, %v", got, err)
	}
}

func TestTemplateArity(t *testing.T) {
	tests := []struct {
		expr string
		args []any
		want int
	}{
		{"f %s", nil, 1},
		{"f", []any{true}, 0},
		{"%s %s %%s", []any{true}, 2},
	}
	for _, tt := range tests {
		_, err := Template(tt.expr, tt.args...)
		var arity *TemplateArityError
		if !errors.As(err, &arity) {
			t.Fatalf("Template(%q) error = %v, want TemplateArityError", tt.expr, err)
		}
		if arity.Placeholders != tt.want || arity.Args != len(tt.args) {
			t.Errorf("Template(%q): %d placeholders, %d args", tt.expr, arity.Placeholders, arity.Args)
		}
	}
}
