package ptracer

import "errors"

// WaitStatus is a child status not yet consumed by a wait call
type WaitStatus struct {
	Pid    int
	Pgid   int
	Status uint32 // encoded as by wait(2)
}

var errNoStatus = errors.New("wait status not queued")

// QueueOwner returns the entity owning e's wait queue. Threads share the
// queue of their logical parent.
func (t *Table) QueueOwner(e *Entity) *Entity {
	if e.Flags&FlagThread == 0 {
		return e
	}
	p, ok := t.entities[e.Ppid]
	if !ok {
		fatalf("wait queue", e.Pid, "thread parent %d not tracked", e.Ppid)
	}
	return p
}

// Enqueue appends a status to owner's queue. Statuses for detached
// owners are dropped.
func (t *Table) Enqueue(owner *Entity, pid, pgid int, status uint32) bool {
	if owner.Flags&FlagDetached != 0 {
		return false
	}
	owner.waitq = append(owner.waitq, WaitStatus{Pid: pid, Pgid: pgid, Status: status})
	return true
}

// Find returns the first queued status matching target as seen by e.
// target > 0 names a child, -1 any child, 0 the caller's process group
// and < -1 the process group -target.
func (t *Table) Find(e *Entity, target int) (WaitStatus, bool) {
	owner := t.QueueOwner(e)
	for _, s := range owner.waitq {
		if matchTarget(s, target, e.Pgid) {
			return s, true
		}
	}
	return WaitStatus{}, false
}

func matchTarget(s WaitStatus, target, pgid int) bool {
	switch {
	case target > 0:
		return s.Pid == target
	case target == -1:
		return true
	case target == 0:
		return s.Pgid == pgid
	default:
		return s.Pgid == -target
	}
}

// Remove deletes the status of pid from e's queue
func (t *Table) Remove(e *Entity, pid int) {
	owner := t.QueueOwner(e)
	for i, s := range owner.waitq {
		if s.Pid == pid {
			owner.waitq = append(owner.waitq[:i], owner.waitq[i+1:]...)
			return
		}
	}
	fatal("wait queue remove", pid, errNoStatus)
}
