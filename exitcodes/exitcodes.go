// Package exitcodes defines the standard exit codes used by op-harness.
package exitcodes

// Exit code constants used by op-harness.
// Discovery, analysis and test failures are reported on the error channel
// and still exit with Success; only defects, such as panics or errors no
// component knows how to report, exit with Defect.
const (
	Success = 0 // Command completed, possibly reporting a failure
	Defect  = 2 // Unexpected failure
)
