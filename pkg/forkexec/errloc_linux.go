package forkexec

import (
	"fmt"
	"syscall"
)

// ErrorLocation defines the location where child process failed to exec
type ErrorLocation int

// ChildError defines the specific error and location where it failed
type ChildError struct {
	Err      syscall.Errno
	Location ErrorLocation
	Index    int
}

// Location constants
const (
	LocClone ErrorLocation = iota + 1
	LocCloseWrite
	LocDup3
	LocFcntl
	LocSetSid
	LocChdir
	LocSetRlimit
	LocSetNoNewPrivs
	LocSyncWrite
	LocSyncRead
	LocPtraceMe
	LocSeccomp
	LocExecve
)

var locToString = []string{
	"unknown",
	"clone",
	"close_write",
	"dup3",
	"fcntl",
	"setsid",
	"chdir",
	"setrlimit",
	"set_no_new_privs",
	"sync_write",
	"sync_read",
	"ptrace_me",
	"seccomp",
	"execve",
}

func (e ErrorLocation) String() string {
	if e >= LocClone && e <= LocExecve {
		return locToString[e]
	}
	return "unknown"
}

func (e ChildError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("%s(%d): %s", e.Location.String(), e.Index, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Location.String(), e.Err.Error())
}

// Unwrap exposes the errno to errors.Is
func (e ChildError) Unwrap() error {
	return e.Err
}
