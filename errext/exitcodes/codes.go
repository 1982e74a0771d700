// Package exitcodes contains the constants representing the possible gridrun exit error codes.
package exitcodes

// ExitCode is just a type representing a process exit code for gridrun.
type ExitCode uint8

// List of exit codes used by gridrun. TestsFailed deliberately maps to 1,
// CI systems treat the run's exit status as the suite verdict.
const (
	TestsFailed   ExitCode = 1
	InvalidConfig ExitCode = 104
	ExternalAbort ExitCode = 105
	SetupFailed   ExitCode = 106
	GenericError  ExitCode = 107
)
