// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"errors"
	"math/big"
	"testing"
)

func TestProofResult(t *testing.T) {
	proved := Proved()
	if !proved.IsValid() || proved.HasCounterexample() || proved.Counterexample() != nil {
		t.Errorf("Proved() = %+v", proved)
	}

	cex := Tuple{BitVectorFromUint64(4, 3)}
	refuted := Refuted(cex)
	if refuted.IsValid() || !refuted.HasCounterexample() {
		t.Errorf("Refuted() = %+v", refuted)
	}
	if !Equal(refuted.Counterexample(), cex) {
		t.Errorf("Counterexample() = %v", refuted.Counterexample())
	}
}

func TestSatResult(t *testing.T) {
	unsat := Unsatisfiable()
	if unsat.IsSat() || unsat.HasAssignment() || unsat.Assignment() != nil {
		t.Errorf("Unsatisfiable() = %+v", unsat)
	}
	if unsat.String() != "Unsatisfiable" {
		t.Errorf("String() = %q", unsat.String())
	}

	sat := Satisfied(Tuple{true})
	if !sat.IsSat() || !sat.HasAssignment() || !Equal(sat.Assignment(), Tuple{true}) {
		t.Errorf("Satisfied() = %+v", sat)
	}
}

func TestAllSatResult(t *testing.T) {
	if AllSatisfied().IsSat() {
		t.Error("AllSatisfied() with no witnesses is satisfiable")
	}
	all := AllSatisfied(Tuple{true}, Tuple{false})
	if !all.IsSat() || all.Len() != 2 {
		t.Errorf("AllSatisfied = %+v", all)
	}
}

func TestParseProver(t *testing.T) {
	for _, p := range Provers {
		got, err := ParseProver(string(p))
		if err != nil || got != p {
			t.Errorf("ParseProver(%q) = %q, %v", p, got, err)
		}
	}
	if got, err := ParseProver("Z3"); err != nil || got != ProverZ3 {
		t.Errorf("ParseProver(Z3) = %q, %v", got, err)
	}
	if _, err := ParseProver("minisat"); err == nil {
		t.Error("ParseProver(minisat) succeeded")
	}
}

func TestCheckReport(t *testing.T) {
	cex := []WireValue{WordWire(4, big.NewInt(3))}
	message := "division by zero"

	passed, err := newCheckReport(tagCheck, &wireReport{Passed: true, TestsRun: 100, TestsPossible: big.NewInt(256)})
	if err != nil {
		t.Fatalf("newCheckReport: %v", err)
	}
	if !passed.Passed() || passed.IsExhaustive() || passed.HasCounterexample() || passed.HasError() {
		t.Errorf("passing report = %+v", passed)
	}
	if got := passed.Coverage(); got < 0.39 || got > 0.40 {
		t.Errorf("Coverage() = %v, want 100/256", got)
	}

	exhaustive, err := newCheckReport(tagExhaust, &wireReport{Passed: true, TestsRun: 16, TestsPossible: big.NewInt(16)})
	if err != nil {
		t.Fatalf("newCheckReport: %v", err)
	}
	if !exhaustive.IsExhaustive() || exhaustive.Coverage() != 1 {
		t.Errorf("exhaustive report = %+v", exhaustive)
	}

	failed, err := newCheckReport(tagExhaust, &wireReport{TestsRun: 4, TestsPossible: big.NewInt(16), Counterexample: &cex})
	if err != nil {
		t.Fatalf("newCheckReport: %v", err)
	}
	if failed.Passed() || !failed.HasCounterexample() || !Equal(failed.Counterexample(), Tuple{BitVectorFromUint64(4, 3)}) {
		t.Errorf("failing report = %+v", failed)
	}

	errored, err := newCheckReport(tagCheck, &wireReport{TestsRun: 1, Error: &message})
	if err != nil {
		t.Fatalf("newCheckReport: %v", err)
	}
	if !errored.HasError() || errored.ErrorMessage() != message || errored.Coverage() != 0 {
		t.Errorf("error report = %+v", errored)
	}
	if _, ok := errored.TestsPossible(); ok {
		t.Error("TestsPossible known for report without it")
	}
}

func TestCheckReportInconsistent(t *testing.T) {
	cex := []WireValue{BitWire(true)}
	for _, w := range []*wireReport{
		{Passed: true, Counterexample: &cex},
		{Passed: false},
	} {
		_, err := newCheckReport(tagCheck, w)
		var protocolErr *ProtocolError
		if !errors.As(err, &protocolErr) {
			t.Errorf("newCheckReport(%+v) error = %v, want ProtocolError", w, err)
		}
	}
}
