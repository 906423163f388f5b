package runner

import (
	"time"

	"github.com/tapforge/harness/types"
)

// Suite is an explicit builder for a named group of cases. It replaces an
// ambient "current suite" cursor: callers hold the builder, register cases
// on it, and hand the finished definition to a runner or registry. Suites
// cannot nest.
type Suite struct {
	name  string
	kind  types.SuiteKind
	cases []types.Case
}

// NewSuite creates a suite builder. Registration order is execution order.
func NewSuite(name string, kind types.SuiteKind) *Suite {
	return &Suite{name: name, kind: kind}
}

// Register adds a case with the suite's default timeout.
func (s *Suite) Register(name string, fn types.TestFn) *Suite {
	s.cases = append(s.cases, types.Case{Name: name, Fn: fn})
	return s
}

// RegisterTimeout adds a case with an explicit timeout.
func (s *Suite) RegisterTimeout(name string, timeout time.Duration, fn types.TestFn) *Suite {
	s.cases = append(s.cases, types.Case{Name: name, Fn: fn, Timeout: timeout})
	return s
}

// Skip adds a case that is recorded as skipped and never executed.
func (s *Suite) Skip(name string, fn types.TestFn) *Suite {
	s.cases = append(s.cases, types.Case{Name: name, Fn: fn, Skip: true})
	return s
}

// Name returns the suite name.
func (s *Suite) Name() string { return s.name }

// Len returns the number of registered cases.
func (s *Suite) Len() int { return len(s.cases) }

// Def finalizes the builder into an immutable suite definition.
func (s *Suite) Def() types.SuiteDef {
	cases := make([]types.Case, len(s.cases))
	copy(cases, s.cases)
	return types.SuiteDef{Name: s.name, Kind: s.kind, Cases: cases}
}
