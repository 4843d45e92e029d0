package ptracer

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// EventKind classifies a wait4 report
type EventKind int

// Event kinds
const (
	EventSyscall EventKind = iota + 1 // syscall entry or exit stop
	EventSignal                       // signal delivery stop
	EventExit                         // exited or killed
)

// Event is one stop or exit of a tracee
type Event struct {
	Kind   EventKind
	Pid    int
	Signal syscall.Signal
	Status uint32 // wait status for exits
}

// Handle processes one event to completion. A FatalError is returned
// when a tracer invariant broke; the caller must then kill all tracees.
func (t *Tracer) Handle(ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fe, ok := r.(*FatalError)
			if !ok {
				panic(r)
			}
			t.log().Error("fatal", "op", fe.Op, "pid", fe.Pid, "err", fe.Err)
			err = fe
		}
	}()

	switch ev.Kind {
	case EventExit:
		if _, ok := t.Entities.Lookup(ev.Pid); !ok {
			t.log().Debug("exit of untracked pid", "pid", ev.Pid)
			return nil
		}
		t.childDead(ev.Pid, ev.Status)

	case EventSyscall:
		delete(t.early, ev.Pid)
		t.handleSyscall(t.Entities.Get(ev.Pid))

	case EventSignal:
		delete(t.early, ev.Pid)
		t.signal(t.Entities.Get(ev.Pid), ev.Signal)

	default:
		fatalf("handle", ev.Pid, "unknown event kind %d", ev.Kind)
	}
	return nil
}

func (t *Tracer) signal(e *Entity, sig syscall.Signal) {
	switch {
	case sig == unix.SIGTRAP && e.Flags&FlagSawExec != 0:
		e.Flags &^= FlagSawExec
		t.log().Debug("swallow exec trap", "pid", e.Pid)
		t.resume(e, 0)

	case sig == unix.SIGSTOP && e.Flags&FlagSkipStop != 0:
		e.Flags &^= FlagSkipStop
		t.log().Debug("swallow first stop", "pid", e.Pid)
		t.resume(e, 0)

	case sig == unix.SIGSTOP && e.Policy == NoPolicy && !e.root:
		// released by the parent's fork completion
		e.Flags |= FlagStopWaiting
		t.log().Debug("hold until fork returns", "pid", e.Pid)

	default:
		t.log().Debug("deliver signal", "pid", e.Pid, "signal", sig)
		t.resume(e, sig)
	}
}

func (t *Tracer) resume(e *Entity, sig syscall.Signal) {
	if err := t.Kernel.Resume(e.Pid, sig); err != nil && !isGone(err) {
		fatal("resume", e.Pid, err)
	}
}

func (t *Tracer) detach(pid int) {
	if err := t.Kernel.Detach(pid); err != nil && !isGone(err) {
		fatal("detach", pid, err)
	}
}

// setRegs returns false if the tracee vanished
func (t *Tracer) setRegs(e *Entity, r *Regs) bool {
	if err := t.Kernel.SetRegs(e.Pid, r); err != nil {
		if isGone(err) {
			return false
		}
		fatal("set registers", e.Pid, err)
	}
	return true
}
