package forkexec

import (
	"golang.org/x/sys/unix"

	"github.com/criyle/go-systrace/pkg/rlimit"
)

// Runner is the configuration including the exec path, argv and resource
// limits. It creates the root tracee for the ptrace-based tracer.
type Runner struct {
	// argv and env for execve syscall for the child process
	Args []string
	Env  []string

	// POSIX Resource limit set by prlimit
	RLimits []rlimit.RLimit

	// file disriptors map for new process, from 0 to len - 1
	Files []uintptr

	// work path set by chdir(dir) (current working directory for child)
	WorkDir string

	// seccomp syscall filter applied to child after PTRACE_TRACEME
	Seccomp *unix.SockFprog

	// ptrace controls child process to call ptrace(PTRACE_TRACEME)
	// runtime.LockOSThread is required for tracer to call ptrace syscalls
	Ptrace bool

	// no_new_privs calls prctl(PR_SET_NO_NEW_PRIVS) to disable calls to
	// setuid processes. It is automatically enabled when seccomp filter is provided
	NoNewPrivs bool

	// Parent and child process with sync status through a socket pair.
	// SyncFunc will invoke with the child pid. If SyncFunc return some error,
	// parent will kill the child and report the error
	SyncFunc func(int) error
}
