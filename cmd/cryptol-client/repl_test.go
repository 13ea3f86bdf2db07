// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/luxfi/cryptol"
	"github.com/luxfi/cryptol/internal/cryptoltest"
)

func TestDisplay(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{nil, "()"},
		{true, "True"},
		{cryptol.BitVectorFromUint64(8, 10), "0x0a"},
		{cryptol.BitVectorFromUint64(12, 0xabc), "0xabc"},
		{cryptol.Tuple{false, cryptol.BitVectorFromUint64(4, 1)}, "(False, 0x1)"},
		{cryptol.Sequence{cryptol.BitVectorFromUint64(4, 1), cryptol.BitVectorFromUint64(4, 2)}, "[0x1, 0x2]"},
		{cryptol.Record{"y": true, "x": cryptol.Sequence{}}, "{x = [], y = True}"},
		{&cryptol.Function{}, "<function>"},
	}
	for _, tt := range tests {
		if got := display(tt.value); got != tt.want {
			t.Errorf("display(%#v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestREPL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := cryptoltest.Start(t, cryptoltest.Config{
		Modules: map[string]*cryptoltest.Module{
			"Demo.cry": {
				Decls:  []cryptol.Declaration{{Name: "x"}},
				Values: map[string]any{"x": cryptol.BitVectorFromUint64(8, 0x2a)},
				Types:  map[string]string{"x": "[8]"},
				Properties: map[string]cryptoltest.Property{
					`\x -> x < 0xc`:  {Width: 4, Holds: func(x uint64) bool { return x < 12 }},
					`\x -> x == 0x5`: {Width: 4, Holds: func(x uint64) bool { return x == 5 }},
				},
			},
		},
	})
	session, err := cryptol.Connect(ctx, server.Address(), cryptol.WithControlPort(server.ControlPort()))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer session.Exit()
	module, err := session.LoadModule(ctx, "Demo.cry")
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}

	var out bytes.Buffer
	r := &repl{
		ctx:    ctx,
		module: module,
		out:    &out,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	input := strings.Join([]string{
		"x",
		"",
		":t x",
		`:exhaust \x -> x < 0xc`,
		`:prove \x -> x < 0xc`,
		`:sat \x -> x == 0x5`,
		":browse",
		":set base=16",
		":set base",
		":frobnicate",
		"y",
		":q",
		"x",
	}, "\n")
	if err := r.loop(strings.NewReader(input), false); err != nil {
		t.Fatalf("loop: %v", err)
	}

	want := strings.Join([]string{
		"0x2a",
		"x : [8]",
		"Counterexample: (0xc)",
		"Counterexample: (0xc)",
		"Satisfiable: (0x5)",
		"x",
		"usage: :set KEY=VALUE",
		"unknown command :frobnicate",
		"cryptol: Value not in scope: y",
	}, "\n") + "\n"
	if got := out.String(); got != want {
		t.Errorf("output:\n%s\nwant:\n%s", got, want)
	}
	if got := server.Options(module.Port())["base"]; got != "16" {
		t.Errorf("base option = %q, want 16", got)
	}
}
