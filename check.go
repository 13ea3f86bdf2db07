// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"math/big"
)

// CheckReport is the outcome of a check (random testing) or exhaust query.
type CheckReport struct {
	passed         bool
	testsRun       uint64
	testsPossible  *big.Int
	counterexample Tuple
	failed         bool
	err            string
	hasErr         bool
}

func newCheckReport(op string, w *wireReport) (*CheckReport, error) {
	report := &CheckReport{
		passed:        w.Passed,
		testsRun:      w.TestsRun,
		testsPossible: w.TestsPossible,
	}
	if w.Error != nil {
		report.err = *w.Error
		report.hasErr = true
	}
	if w.Counterexample != nil {
		counterexample, err := decodeTuple(*w.Counterexample)
		if err != nil {
			return nil, err
		}
		report.counterexample = counterexample
		report.failed = true
	}

	switch {
	case report.passed && (report.failed || report.hasErr):
		return nil, protocolFault(op, tagCheck, "passing report carries a counterexample or error")
	case !report.passed && !report.failed && !report.hasErr:
		return nil, protocolFault(op, tagCheck, "failing report has neither counterexample nor error")
	}
	return report, nil
}

// Passed reports whether every test succeeded.
func (r *CheckReport) Passed() bool { return r.passed }

// TestsRun returns the number of test cases evaluated.
func (r *CheckReport) TestsRun() uint64 { return r.testsRun }

// TestsPossible returns the size of the property's input domain, when the
// server could compute it.
func (r *CheckReport) TestsPossible() (*big.Int, bool) {
	if r.testsPossible == nil {
		return nil, false
	}
	return new(big.Int).Set(r.testsPossible), true
}

// IsExhaustive reports whether every possible input was tested.
func (r *CheckReport) IsExhaustive() bool {
	if r.testsPossible == nil {
		return false
	}
	return new(big.Int).SetUint64(r.testsRun).Cmp(r.testsPossible) >= 0
}

// Coverage returns the fraction of the input domain tested, in [0, 1]. It
// is 0 when the domain size is unknown.
func (r *CheckReport) Coverage() float64 {
	if r.testsPossible == nil {
		return 0
	}
	if r.testsPossible.Sign() == 0 || r.IsExhaustive() {
		return 1
	}
	ratio := new(big.Float).Quo(
		new(big.Float).SetUint64(r.testsRun),
		new(big.Float).SetInt(r.testsPossible),
	)
	coverage, _ := ratio.Float64()
	return coverage
}

// HasCounterexample reports whether a test case falsified the property.
func (r *CheckReport) HasCounterexample() bool { return r.failed }

// Counterexample returns the falsifying arguments, or nil.
func (r *CheckReport) Counterexample() Tuple { return r.counterexample }

// HasError reports whether evaluating a test case raised an error.
func (r *CheckReport) HasError() bool { return r.hasErr }

// ErrorMessage returns the evaluation error raised by a test case.
func (r *CheckReport) ErrorMessage() string { return r.err }

func decodeTuple(wires []WireValue) (Tuple, error) {
	values, err := decodeAll(wires)
	if err != nil {
		return nil, err
	}
	return Tuple(values), nil
}
