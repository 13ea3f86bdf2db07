// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"fmt"
	"strings"
)

// Prover names a solver the server can invoke for prove and sat queries.
type Prover string

const (
	ProverAny       Prover = "any"
	ProverABC       Prover = "abc"
	ProverBoolector Prover = "boolector"
	ProverCVC4      Prover = "cvc4"
	ProverMathSAT   Prover = "mathsat"
	ProverYices     Prover = "yices"
	ProverZ3        Prover = "z3"
)

// Provers lists the solvers the server knows by name.
var Provers = []Prover{ProverAny, ProverABC, ProverBoolector, ProverCVC4, ProverMathSAT, ProverYices, ProverZ3}

// ParseProver returns the prover called name.
func ParseProver(name string) (Prover, error) {
	for _, p := range Provers {
		if string(p) == strings.ToLower(name) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown prover %q", name)
}

func (p Prover) String() string {
	if p == "" {
		return "default"
	}
	return string(p)
}

// ProofResult is the outcome of a prove query: either valid, or refuted by a
// counterexample holding one value per argument of the property.
type ProofResult struct {
	refuted        bool
	counterexample Tuple
}

// Proved returns a valid proof result.
func Proved() ProofResult { return ProofResult{} }

// Refuted returns an invalid proof result with its counterexample.
func Refuted(counterexample Tuple) ProofResult {
	return ProofResult{refuted: true, counterexample: counterexample}
}

func (r ProofResult) IsValid() bool           { return !r.refuted }
func (r ProofResult) HasCounterexample() bool { return r.refuted }

// Counterexample returns the refuting arguments, or nil for a valid result.
func (r ProofResult) Counterexample() Tuple { return r.counterexample }

func (r ProofResult) String() string {
	if !r.refuted {
		return "Q.E.D."
	}
	return fmt.Sprintf("counterexample %v", r.counterexample)
}

// SatResult is the outcome of a sat query asking for one assignment.
type SatResult struct {
	sat        bool
	assignment Tuple
}

// Unsatisfiable returns an unsatisfiable sat result.
func Unsatisfiable() SatResult { return SatResult{} }

// Satisfied returns a satisfiable sat result with its witness.
func Satisfied(assignment Tuple) SatResult {
	return SatResult{sat: true, assignment: assignment}
}

func (r SatResult) IsSat() bool         { return r.sat }
func (r SatResult) HasAssignment() bool { return r.sat }

// Assignment returns the satisfying arguments, or nil when unsatisfiable.
func (r SatResult) Assignment() Tuple { return r.assignment }

func (r SatResult) String() string {
	if !r.sat {
		return "Unsatisfiable"
	}
	return fmt.Sprintf("satisfiable %v", r.assignment)
}

// AllSatResult is the outcome of a sat query asking for several assignments.
type AllSatResult struct {
	assignments []Tuple
}

// AllSatisfied returns a result holding the given witnesses; none means
// unsatisfiable.
func AllSatisfied(assignments ...Tuple) AllSatResult {
	return AllSatResult{assignments: assignments}
}

func (r AllSatResult) IsSat() bool { return len(r.assignments) > 0 }

// Len returns the number of witnesses found.
func (r AllSatResult) Len() int { return len(r.assignments) }

// Assignments returns the witnesses in the order the server found them.
func (r AllSatResult) Assignments() []Tuple { return r.assignments }

func (r AllSatResult) String() string {
	if len(r.assignments) == 0 {
		return "Unsatisfiable"
	}
	return fmt.Sprintf("%d satisfying assignments", len(r.assignments))
}
