package types

// Status is the result Status
type Status int

// Result Status for a traced run
const (
	StatusInvalid Status = iota // 0 not initialized
	// Normal
	StatusNormal // 1 normal

	// Unauthorized Access
	StatusDisallowedSyscall // 2 a syscall was denied

	// Runtime Error
	StatusSignalled         // 3 signalled
	StatusNonzeroExitStatus // 4 nonzero exit status

	// Tracer Error
	StatusRunnerError // 5 runner or tracer error
)

var (
	statusString = []string{
		"Invalid",
		"",
		"Disallowed Syscall",
		"Signalled",
		"Nonzero Exit Status",
		"Runner Error",
	}
)

func (t Status) String() string {
	i := int(t)
	if i >= 0 && i < len(statusString) {
		return statusString[i]
	}
	return statusString[0]
}

func (t Status) Error() string {
	return t.String()
}
