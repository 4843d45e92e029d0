package ptracer

import (
	"errors"
	"syscall"
)

// abortNr replaces the syscall number of a denied call
const abortNr = 0xbadca11

func isFork(name string) bool {
	return name == "fork" || name == "vfork" || name == "clone"
}

func isWait(name string) bool {
	return name == "wait4" || name == "waitpid"
}

func isExec(name string) bool {
	return name == "execve" || name == "execveat"
}

func (t *Tracer) name(conv CallConv, nr int) string {
	return t.Resolver.SyscallName(conv == Linux32, nr)
}

func (t *Tracer) number(conv CallConv, name string) int {
	nr, ok := t.Resolver.SyscallNumber(conv == Linux32, name)
	if !ok {
		fatalf("syscall number", 0, "%s has no number in %s", name, conv.Emulation())
	}
	return nr
}

func (t *Tracer) handleSyscall(e *Entity) {
	regs, err := t.Kernel.GetRegs(e.Pid)
	if err != nil {
		if isGone(err) {
			return
		}
		fatal("get registers", e.Pid, err)
	}

	if e.phase == phaseStart {
		if regs.Nr == -1 {
			t.log().Debug("spurious syscall -1", "pid", e.Pid)
			t.resume(e, 0)
			return
		}
		if regs.Ret != -int64(syscall.ENOSYS) {
			if !t.ForceEnd || (e.Flags&FlagSkipStop == 0 && e.Policy != NoPolicy) {
				fatalf("syscall start", e.Pid, "return register %d, expected -ENOSYS", regs.Ret)
			}
			t.log().Debug("syscall end without start", "pid", e.Pid, "nr", regs.Nr)
			e.phase = phaseEnd
			e.regs = regs
			e.call = callInfo{nr: int(regs.Nr), name: t.name(regs.Conv, int(regs.Nr))}
			t.syscallEnd(e)
			return
		}
		e.regs = regs
		e.call = callInfo{nr: int(regs.Nr), name: t.name(regs.Conv, int(regs.Nr))}
		t.syscallStart(e)
		return
	}

	e.regs.Ret = regs.Ret
	t.syscallEnd(e)
}

func (t *Tracer) syscallStart(e *Entity) {
	nr, name := e.call.nr, e.call.name
	e.phase = phaseEnd
	e.Flags &^= FlagResult
	t.log().Debug("syscall", "pid", e.Pid, "phase", "start", "syscall", name, "nr", nr)

	switch {
	case name == "clone3":
		// children would escape CLONE_PTRACE; libc falls back to clone
		t.abort(e, -int64(syscall.ENOSYS))
		t.resume(e, 0)
		return
	case isFork(name):
		t.rewriteFork(e)
	case isWait(name):
		t.rewriteWait(e)
	}

	if e.Policy != NoPolicy && (e.regs.Conv == Linux64 || t.CompatPolicy) {
		v := t.Policies.lookup(e, nr)
		switch v.Kind {
		case VerdictPermit:
			if isFork(name) {
				e.Flags |= FlagSawFork
			}
			t.resume(e, 0)
			return
		case VerdictDeny:
			t.deny(e, v.Errno)
			t.resume(e, 0)
			return
		}
	}
	t.ask(e)
}

func (t *Tracer) ask(e *Entity) {
	t.seq++
	e.seq = t.seq
	req := &Request{
		Pid:       e.Pid,
		Seq:       e.seq,
		Nr:        e.call.nr,
		Name:      e.call.name,
		Emulation: e.regs.Conv.Emulation(),
		Args:      e.regs.Args(),
		Policy:    e.Policy,
		k:         t.Kernel,
	}
	a := Answer{Verdict: Deny(syscall.EPERM)}
	if t.Decider != nil {
		a = t.Decider.Ask(req)
	}
	t.answer(e, req.Seq, a)
}

func (t *Tracer) answer(e *Entity, seq uint64, a Answer) {
	if seq != e.seq || e.phase != phaseEnd {
		fatalf("answer", e.Pid, "answer %d does not match pending request %d", seq, e.seq)
	}
	t.log().Debug("answer", "pid", e.Pid, "syscall", e.call.name, "verdict", a.Verdict.String())
	if a.WantResult {
		e.Flags |= FlagResult
	}
	if a.Elevate != nil {
		if err := t.Kernel.Elevate(e.Pid, a.Elevate); err != nil {
			switch {
			case errors.Is(err, ErrElevationUnsupported):
				t.log().Warn("elevation ignored", "pid", e.Pid, "err", err)
			case isGone(err):
				return
			default:
				fatal("elevate", e.Pid, err)
			}
		}
	}
	if a.Verdict.Kind == VerdictDeny {
		t.deny(e, a.Verdict.Errno)
	} else if isFork(e.call.name) {
		e.Flags |= FlagSawFork
	}
	t.resume(e, 0)
}

// deny drops any wait emulation in progress and aborts the call
func (t *Tracer) deny(e *Entity, errno uint16) {
	t.log().Debug("deny", "pid", e.Pid, "syscall", e.call.name, "errno", errno)
	t.cancelWait(e)
	t.abort(e, -int64(errno))
	if t.Observer != nil {
		t.Observer.Denied(e.Pid, e.call.name, errno)
	}
}

// setReturn forces the return value written at syscall end
func (t *Tracer) setReturn(e *Entity, code int64) {
	e.errorCode = code
	e.Flags |= FlagErrorCode
}

// abort replaces the syscall with an invalid number and forces code
func (t *Tracer) abort(e *Entity, code int64) {
	t.setReturn(e, code)
	r := e.regs
	r.Nr = abortNr
	t.setRegs(e, &r)
}

func (t *Tracer) syscallEnd(e *Entity) {
	name := e.call.name
	e.phase = phaseStart
	t.log().Debug("syscall", "pid", e.Pid, "phase", "end", "syscall", name, "ret", e.regs.Ret)

	if e.Flags&FlagPausing != 0 {
		e.Flags |= FlagParked
		if st, ok := t.Entities.Find(e, e.waitTarget); ok {
			t.completeWait(e, st)
			t.resumePaused(e)
			return
		}
		t.log().Debug("paused in wait", "pid", e.Pid, "target", e.waitTarget)
		return
	}

	if e.Flags&FlagSawWait != 0 {
		e.Flags &^= FlagSawWait
		if st, ok := t.Entities.Find(e, e.waitTarget); ok {
			t.completeWait(e, st)
		} else {
			t.log().Debug("queued status consumed by another waiter", "pid", e.Pid, "target", e.waitTarget)
			e.waitTarget = -1
		}
	}

	switch {
	case e.Flags&FlagErrorCode != 0:
		e.Flags &^= FlagErrorCode
		e.regs.Ret = e.errorCode
		r := e.regs
		t.setRegs(e, &r)
	case isExec(name) && e.regs.Ret == 0:
		e.Flags |= FlagSawExec
	case e.Flags&FlagSawFork != 0:
		e.Flags &^= FlagSawFork
		t.forkReturn(e)
	case name == "setsid" && e.regs.Ret >= 0:
		e.Pgid = e.Pid
	case name == "setpgid" && e.regs.Ret == 0:
		t.setpgid(e)
	}

	t.reportResult(e)
	t.resume(e, 0)
}

// reportResult hands the final return value to the decider once, if the
// answer asked for it
func (t *Tracer) reportResult(e *Entity) {
	if e.Flags&FlagResult == 0 {
		return
	}
	e.Flags &^= FlagResult
	if t.Decider == nil {
		return
	}
	t.Decider.Result(&SyscallResult{
		Pid:       e.Pid,
		Seq:       e.seq,
		Nr:        e.call.nr,
		Name:      e.call.name,
		Emulation: e.regs.Conv.Emulation(),
		Args:      e.regs.Args(),
		Return:    e.regs.Ret,
	})
}

func (t *Tracer) setpgid(e *Entity) {
	a0, _ := e.regs.Arg(0)
	a1, _ := e.regs.Arg(1)
	pid := int(int32(a0))
	if pid == 0 {
		pid = e.Pid
	}
	target, ok := t.Entities.Lookup(pid)
	if !ok {
		return
	}
	pgid := int(int32(a1))
	if pgid == 0 {
		pgid = pid
	}
	target.Pgid = pgid
}
