package ptracer

type exitItem struct {
	pid    int
	status uint32
}

// childDead accounts for a terminated entity. A group leader with live
// threads is kept until its last thread exits; that exit then finishes
// the leader through the work list.
func (t *Tracer) childDead(pid int, status uint32) {
	work := []exitItem{{pid: pid, status: status}}
	for len(work) > 0 {
		x := work[0]
		work = work[1:]

		e, ok := t.Entities.Lookup(x.pid)
		if !ok {
			fatalf("child exit", x.pid, "entity not tracked")
		}
		detached := e.Flags&FlagExiting != 0

		if e.nThreads > 0 {
			t.log().Debug("group leader exiting", "pid", e.Pid, "threads", e.nThreads)
			e.Flags |= FlagExiting
			e.exitStatus = x.status
			if !detached {
				t.detach(e.Pid)
			}
			continue
		}

		if e.fresh && !e.root {
			// exited before its parent's fork returned
			t.early[e.Pid] = x.status
			t.drop(e, detached)
			continue
		}

		t.cancelWait(e)
		var reap *Entity
		if p, ok := t.Entities.Lookup(e.Ppid); ok {
			p.nChildren--
			if e.Flags&FlagThread != 0 {
				p.nThreads--
			}
			if e.Flags&FlagDetached != 0 {
				p.nThreadsDetached--
			}
			if e.Flags&FlagThread == 0 {
				if !t.Entities.Enqueue(p, e.Pid, e.Pgid, x.status) {
					t.log().Debug("status dropped for detached parent", "pid", e.Pid, "parent", p.Pid)
				}
				t.wake(p, e.Pid)
			}
			if p.Flags&FlagExiting != 0 && p.nThreads == 0 {
				reap = p
			}
		}
		t.log().Debug("entity exited", "pid", e.Pid, "status", x.status)
		t.drop(e, detached)
		if reap != nil {
			work = append(work, exitItem{pid: reap.Pid, status: reap.exitStatus})
		}
	}
}

func (t *Tracer) drop(e *Entity, detached bool) {
	t.Entities.Destroy(e.Pid)
	if t.Observer != nil {
		t.Observer.EntityGone(e.Pid)
	}
	if !detached {
		t.detach(e.Pid)
	}
}
