// Package exitcodes defines the standard exit codes used by the harness.
package exitcodes

// * Success (0): Used when all selected components pass
// * TestFailure (1): Used when one or more tests or sessions fail
// * RuntimeErr (2): Used for runtime errors such as panics or bad configuration
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
