package ptracer

import (
	"errors"
	"fmt"
	"syscall"
)

// Errors returned by the policy table
var (
	ErrOutOfPolicies = errors.New("out of policies")
	ErrBadPolicy     = errors.New("policy handle out of range")
	ErrUnusedPolicy  = errors.New("policy handle not allocated")
	ErrBadSyscall    = errors.New("syscall number out of range")
)

// ErrElevationUnsupported is returned by kernels that cannot override
// the effective uid/gid of a tracee
var ErrElevationUnsupported = errors.New("privilege elevation unsupported")

// FatalError reports a broken tracer invariant. After a FatalError the
// tracer state cannot be trusted and every tracee must be killed.
type FatalError struct {
	Op  string
	Pid int
	Err error
}

func (e *FatalError) Error() string {
	if e.Pid > 0 {
		return fmt.Sprintf("%s: pid %d: %v", e.Op, e.Pid, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// fatal aborts the current event; recovered by Tracer.Handle
func fatal(op string, pid int, err error) {
	panic(&FatalError{Op: op, Pid: pid, Err: err})
}

func fatalf(op string, pid int, format string, args ...interface{}) {
	fatal(op, pid, fmt.Errorf(format, args...))
}

// isGone reports whether a kernel call failed because the tracee vanished
func isGone(err error) bool {
	return errors.Is(err, syscall.ESRCH)
}
