package ptracer

import (
	"syscall"

	"golang.org/x/sys/unix"
)

const waitOptions = unix.WNOHANG | unix.WUNTRACED | unix.WCLONE | unix.WALL

// rewriteWait emulates wait4 / waitpid from the queued statuses. The call
// is either satisfied from the queue, returns at once, or is parked on
// getpid until a child status arrives.
func (t *Tracer) rewriteWait(e *Entity) {
	r := &e.regs
	a0, _ := r.Arg(0)
	a1, _ := r.Arg(1)
	a2, _ := r.Arg(2)
	opts := uint32(a2)
	if opts&^uint32(waitOptions) != 0 {
		t.abort(e, -int64(syscall.EINVAL))
		return
	}
	target := int(int32(a0))
	e.statusAddr = a1

	if st, ok := t.Entities.Find(e, target); ok {
		// the real call still runs and may reap reparented descendants,
		// its result is replaced at syscall end
		e.waitTarget = st.Pid
		e.Flags |= FlagSawWait
		return
	}
	if opts&unix.WNOHANG != 0 {
		t.setReturn(e, 0)
		return
	}
	e.waitTarget = target
	if !t.haveWaitChildren(e, target) {
		r.SetArg(2, uint64(opts|unix.WNOHANG))
		t.setRegs(e, r)
		t.setReturn(e, -int64(syscall.ECHILD))
		return
	}

	e.Flags |= FlagPausing
	if e.Flags&FlagThread != 0 {
		t.Entities.QueueOwner(e).nThreadsWaiting++
	}
	p := *r
	p.Nr = int64(t.number(r.Conv, "getpid"))
	t.setRegs(e, &p)
	t.log().Debug("wait parked", "pid", e.Pid, "target", target)
}

// haveWaitChildren reports whether a wait on target can ever be satisfied.
// Threads are never reported to wait, detached ones included.
func (t *Tracer) haveWaitChildren(e *Entity, target int) bool {
	owner := t.Entities.QueueOwner(e)
	threads := owner.nThreads
	if owner.nThreadsDetached > threads {
		threads = owner.nThreadsDetached
	}
	if owner.nChildren-threads <= 0 {
		return false
	}
	if target == -1 {
		return true
	}
	if target > 0 {
		c, ok := t.Entities.Lookup(target)
		return ok && c.Ppid == owner.Pid && c.Flags&FlagThread == 0
	}
	pgid := -target
	if target == 0 {
		pgid = e.Pgid
	}
	for _, pid := range t.Entities.Pids() {
		c, _ := t.Entities.Lookup(pid)
		if c.Ppid == owner.Pid && c.Flags&FlagThread == 0 && c.Pgid == pgid {
			return true
		}
	}
	return false
}

// completeWait makes the wait call of e return st
func (t *Tracer) completeWait(e *Entity, st WaitStatus) {
	r := e.regs
	r.Ret = int64(st.Pid)
	r.Nr = int64(e.call.nr)
	if !t.setRegs(e, &r) {
		return
	}
	e.regs = r
	if e.statusAddr != 0 {
		if err := t.Kernel.PokeStatus(e.Pid, e.statusAddr, st.Status); err != nil && !isGone(err) {
			fatal("write wait status", e.Pid, err)
		}
	}
	e.Flags &^= FlagErrorCode
	e.waitTarget = -1
	t.Entities.Remove(e, st.Pid)
	t.log().Debug("wait completed", "pid", e.Pid, "child", st.Pid, "status", st.Status)
}

// resumePaused releases an entity parked in a wait
func (t *Tracer) resumePaused(e *Entity) {
	t.unpause(e)
	t.reportResult(e)
	t.resume(e, 0)
}

func (t *Tracer) unpause(e *Entity) {
	if e.Flags&FlagPausing == 0 {
		return
	}
	e.Flags &^= FlagPausing | FlagParked
	if e.Flags&FlagThread != 0 {
		if p, ok := t.Entities.Lookup(e.Ppid); ok && p.nThreadsWaiting > 0 {
			p.nThreadsWaiting--
		}
	}
}

// cancelWait drops the wait emulation of a denied call
func (t *Tracer) cancelWait(e *Entity) {
	t.unpause(e)
	e.Flags &^= FlagSawWait
	e.waitTarget = -1
}

// wake completes the waits that a new status on owner's queue satisfies:
// owner itself first, then its threads waiting on pid, then the threads
// waiting on any child.
func (t *Tracer) wake(owner *Entity, pid int) {
	try := func(c *Entity) {
		if c.Flags&(FlagPausing|FlagParked) != FlagPausing|FlagParked {
			return
		}
		st, ok := t.Entities.Find(c, c.waitTarget)
		if !ok {
			return
		}
		t.completeWait(c, st)
		t.resumePaused(c)
	}

	try(owner)
	if owner.nThreadsWaiting == 0 {
		return
	}
	var direct, other []*Entity
	for _, p := range t.Entities.Pids() {
		c, _ := t.Entities.Lookup(p)
		if c.Ppid != owner.Pid || c.Flags&FlagThread == 0 || !c.Paused() {
			continue
		}
		if c.waitTarget == pid {
			direct = append(direct, c)
		} else {
			other = append(other, c)
		}
	}
	for _, c := range append(direct, other...) {
		try(c)
	}
}
