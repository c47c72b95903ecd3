// Package exitcodes defines the standard exit codes used by testharbor.
package exitcodes

// Exit code constants used by the testharbor binary in one-shot mode:
//
// * Success (0): the execution completed and the test passed
// * TestFailure (1): the execution completed and the test failed
// * RuntimeErr (2): admission, environment or spawn errors
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
