package ptracer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/criyle/go-systrace/types"
)

// Trace starts new goroutine and trace runner with ptrace
func (t *Tracer) Trace(c context.Context) <-chan types.Result {
	result := make(chan types.Result, 1)
	go func() {
		result <- t.TraceRun(c)
	}()
	return result
}

// TraceRun starts the runner and traces it and all its descendants in the
// calling goroutine until no tracee is left
func (t *Tracer) TraceRun(c context.Context) (result types.Result) {
	var (
		wstatus unix.WaitStatus      // wait4 wait status
		rusage  unix.Rusage          // wait4 rusage
		traced  = make(map[int]bool) // store all process that have set ptrace options
		sTime   = time.Now()         // records start time for trace process
		fTime   time.Time            // records the time the tracee started
		exited  bool                 // whether the root tracee exited
	)

	// ptrace is thread based (kernel proc)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pid, err := t.Runner.Start()
	t.log().Debug("tracee started", "pid", pid, "err", err)
	if err != nil {
		result.Status = types.StatusRunnerError
		result.Error = err.Error()
		return
	}
	fTime = time.Now()

	cc, cancel := context.WithCancel(c)
	defer cancel()

	// entity table is owned by this thread, cancel with the process group
	go func() {
		<-cc.Done()
		if c.Err() != nil {
			unix.Kill(-pid, unix.SIGKILL)
		}
	}()

	// ensure tracees are terminated on every return path
	defer func() {
		if err := recover(); err != nil {
			t.log().Error("panic", "err", err)
			result.Status = types.StatusRunnerError
			result.Error = fmt.Sprintf("%v", err)
		}
		t.KillAll()
		collectZombie()
		result.SetUpTime = fTime.Sub(sTime)
		result.RunningTime = time.Since(fTime)
	}()

	if err := t.Register(pid, t.Policy); err != nil {
		result.Status = types.StatusRunnerError
		result.Error = err.Error()
		return
	}

	for {
		wpid, err := unix.Wait4(-1, &wstatus, unix.WALL, &rusage)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.ECHILD) {
			return
		}
		if err != nil {
			result.Status = types.StatusRunnerError
			result.Error = err.Error()
			return
		}

		var ev Event
		switch {
		case wstatus.Exited(), wstatus.Signaled():
			delete(traced, wpid)
			ev = Event{Kind: EventExit, Pid: wpid, Status: uint32(wstatus)}
			if wpid == pid {
				exited = true
				result.UserTime = uint64(time.Duration(rusage.Utime.Nano()) / time.Millisecond)
				result.UserMem = uint64(rusage.Maxrss)
				if wstatus.Exited() {
					result.ExitStatus = wstatus.ExitStatus()
					result.Status = types.StatusNormal
					if result.ExitStatus != 0 {
						result.Status = types.StatusNonzeroExitStatus
					}
				} else {
					result.ExitStatus = int(wstatus.Signal())
					result.Status = types.StatusSignalled
				}
			}

		case wstatus.Stopped():
			if !traced[wpid] {
				traced[wpid] = true
				if err := setPtraceOption(wpid); err != nil && !isGone(err) {
					result.Status = types.StatusRunnerError
					result.Error = err.Error()
					return
				}
			}
			if sig := wstatus.StopSignal(); sig == unix.SIGTRAP|0x80 {
				ev = Event{Kind: EventSyscall, Pid: wpid}
			} else {
				ev = Event{Kind: EventSignal, Pid: wpid, Signal: sig}
			}

		default:
			continue
		}

		if err := t.Handle(ev); err != nil {
			result.Status = types.StatusRunnerError
			result.Error = err.Error()
			return
		}
		if exited && t.Entities.Len() == 0 {
			return
		}
	}
}

// collect died child processes
func collectZombie() {
	var wstatus unix.WaitStatus
	for {
		if pid, err := unix.Wait4(-1, &wstatus, unix.WALL|unix.WNOHANG, nil); err != nil || pid <= 0 {
			break
		}
	}
}
