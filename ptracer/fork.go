package ptracer

import "golang.org/x/sys/unix"

// rewriteFork turns fork, vfork and clone into clone with CLONE_PTRACE
func (t *Tracer) rewriteFork(e *Entity) {
	r := &e.regs
	switch e.call.name {
	case "fork":
		r.SetArg(0, uint64(unix.SIGCHLD)|unix.CLONE_PTRACE)
		r.SetArg(1, 0)
	case "vfork":
		r.SetArg(0, uint64(unix.SIGCHLD)|unix.CLONE_PTRACE|unix.CLONE_VFORK)
		r.SetArg(1, 0)
	default:
		flags, _ := r.Arg(0)
		if flags&unix.CLONE_PTRACE == 0 {
			r.SetArg(0, flags|unix.CLONE_PTRACE)
		}
	}
	r.Nr = int64(t.number(r.Conv, "clone"))
	t.setRegs(e, r)
}

// forkReturn registers the child of a completed fork family call
func (t *Tracer) forkReturn(e *Entity) {
	if e.regs.Ret < 0 {
		return
	}
	cpid := int(e.regs.Ret)
	if cpid == 0 {
		fatalf("fork return", e.Pid, "clone returned 0 in the parent")
	}
	flags, _ := e.regs.Arg(0)

	parent := t.Entities.QueueOwner(e)
	if flags&unix.CLONE_PARENT != 0 && flags&unix.CLONE_THREAD == 0 {
		if gp, ok := t.Entities.Lookup(parent.Ppid); ok {
			parent = gp
		}
	}

	prev, existed := t.Entities.Lookup(cpid)
	held := existed && prev.Flags&FlagStopWaiting != 0

	c, _ := t.Entities.Clone(e.Pid, cpid)
	c.Ppid = parent.Pid
	c.Flags &^= transientFlags | FlagThread | FlagDetached
	parent.nChildren++
	if flags&unix.CLONE_THREAD != 0 {
		c.Flags |= FlagThread
		parent.nThreads++
	}
	if flags&unix.CLONE_DETACHED != 0 {
		c.Flags |= FlagDetached
		parent.nThreadsDetached++
	}
	t.log().Debug("child registered", "pid", cpid, "parent", parent.Pid, "flags", flags)
	if t.Observer != nil {
		t.Observer.ChildRegistered(parent.Pid, cpid)
	}

	if status, ok := t.early[cpid]; ok {
		delete(t.early, cpid)
		t.childDead(cpid, status)
		return
	}
	if held {
		t.resume(c, 0)
	} else {
		c.Flags |= FlagSkipStop
	}
}
