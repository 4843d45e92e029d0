package forkexec

import (
	"syscall"
	"unsafe" // required for go:linkname.

	"golang.org/x/sys/unix"
)

//go:linkname beforeFork syscall.runtime_BeforeFork
func beforeFork()

//go:linkname afterFork syscall.runtime_AfterFork
func afterFork()

//go:linkname afterForkInChild syscall.runtime_AfterForkInChild
func afterForkInChild()

// Start will fork, apply limits, load seccomp and execve, being traced by
// ptrace if requested. It returns the pid once execve succeeded.
// The runtime OS thread must be locked before calling this function
// if ptrace is set to true
func (r *Runner) Start() (int, error) {
	if len(r.Args) == 0 {
		return 0, syscall.EINVAL
	}
	argv0, argv, env, err := prepareExec(r.Args, r.Env)
	if err != nil {
		return 0, err
	}

	// prepare work dir
	workdir, err := syscallStringFromString(r.WorkDir)
	if err != nil {
		return 0, err
	}

	// socketpair p is used to sync with parent before final execve
	// p[0] is used by parent and p[1] is used by child
	p, err := syscall.Socketpair(syscall.AF_LOCAL, syscall.SOCK_STREAM|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}

	// fork in child
	pid, err1 := forkAndExecInChild(r, argv0, argv, env, workdir, p)

	// restore all signals
	afterFork()
	syscall.ForkLock.Unlock()

	return syncWithChild(r, p, int(pid), err1)
}

func syncWithChild(r *Runner, p [2]int, pid int, err1 syscall.Errno) (int, error) {
	var (
		r1         uintptr
		childError ChildError
		err        error
	)

	// sync with child
	unix.Close(p[1])

	// clone syscall failed
	if err1 != 0 {
		unix.Close(p[0])
		return 0, ChildError{Err: err1, Location: LocClone}
	}

	r1, _, err1 = syscall.RawSyscall(syscall.SYS_READ, uintptr(p[0]), uintptr(unsafe.Pointer(&childError)), uintptr(unsafe.Sizeof(childError)))
	// child returned error code
	if r1 != unsafe.Sizeof(childError) || childError.Err != 0 || err1 != 0 {
		err = handlePipeError(r1, childError)
		goto fail
	}

	// if syncfunc return error, then fail child immediately
	if r.SyncFunc != nil {
		if err = r.SyncFunc(pid); err != nil {
			goto fail
		}
	}
	// otherwise, ack child (err1 == 0)
	syscall.RawSyscall(syscall.SYS_WRITE, uintptr(p[0]), uintptr(unsafe.Pointer(&err1)), uintptr(unsafe.Sizeof(err1)))

	// the socket is close on exec, so reading anything means the child
	// failed before its execve returned. The SIGTRAP stop of a traced child
	// comes after the close, so this read does not wait for the tracer.
	r1, _, err1 = syscall.RawSyscall(syscall.SYS_READ, uintptr(p[0]), uintptr(unsafe.Pointer(&childError)), uintptr(unsafe.Sizeof(childError)))
	unix.Close(p[0])
	if r1 != 0 || err1 != 0 {
		err = handlePipeError(r1, childError)
		goto failAfterClose
	}
	return pid, nil

fail:
	unix.Close(p[0])

failAfterClose:
	handleChildFailed(pid)
	return 0, err
}

// check pipe error
func handlePipeError(r1 uintptr, childError ChildError) error {
	if r1 == unsafe.Sizeof(childError) {
		return childError
	}
	return syscall.EPIPE
}

func handleChildFailed(pid int) {
	var wstatus syscall.WaitStatus
	// make sure not blocked
	syscall.Kill(pid, syscall.SIGKILL)
	// child failed; wait for it to exit, to make sure the zombies don't accumulate
	_, err := syscall.Wait4(pid, &wstatus, 0, nil)
	for err == syscall.EINTR {
		_, err = syscall.Wait4(pid, &wstatus, 0, nil)
	}
}

// prepareExec prepares execve parameters
func prepareExec(args, env []string) (*byte, []*byte, []*byte, error) {
	argv0, err := syscall.BytePtrFromString(args[0])
	if err != nil {
		return nil, nil, nil, err
	}
	argv, err := syscall.SlicePtrFromStrings(args)
	if err != nil {
		return nil, nil, nil, err
	}
	envv, err := syscall.SlicePtrFromStrings(env)
	if err != nil {
		return nil, nil, nil, err
	}
	return argv0, argv, envv, nil
}

// prepareFds prepares fd array
func prepareFds(files []uintptr) ([]int, int) {
	fd := make([]int, len(files))
	nextfd := len(files)
	for i, ufd := range files {
		if nextfd < int(ufd) {
			nextfd = int(ufd)
		}
		fd[i] = int(ufd)
	}
	nextfd++
	return fd, nextfd
}

// syscallStringFromString prepares *byte if string is not empty, other wise nil
func syscallStringFromString(str string) (*byte, error) {
	if str != "" {
		return syscall.BytePtrFromString(str)
	}
	return nil, nil
}
