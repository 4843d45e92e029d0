package ptracer

import "sort"

// Flag is the per entity state bitset
type Flag uint32

// Entity flags
const (
	FlagResult      Flag = 1 << iota // result interception requested for the call in flight
	FlagSawExec                      // execve succeeded, swallow the following SIGTRAP
	FlagSawFork                      // permitted fork family call, complete at syscall end
	FlagSkipStop                     // swallow the next SIGSTOP
	FlagSawWait                      // wait call satisfied from the queue at syscall start
	FlagErrorCode                    // forced return value pending
	FlagPausing                      // parked in a wait emulation
	FlagStopWaiting                  // stopped by SIGSTOP before the parent's fork returned
	FlagThread                       // thread of a thread group
	FlagDetached                     // created with CLONE_DETACHED
	FlagExiting                      // group leader exited while threads are alive
	FlagParked                       // paused entity reached its placeholder syscall end
)

// transient flags describe the syscall in flight and are not inherited
const transientFlags = FlagResult | FlagSawExec | FlagSawFork | FlagSkipStop | FlagSawWait |
	FlagErrorCode | FlagPausing | FlagStopWaiting | FlagExiting | FlagParked

type phase int

const (
	phaseStart phase = iota
	phaseEnd
)

func (p phase) String() string {
	if p == phaseStart {
		return "start"
	}
	return "end"
}

// NoPolicy marks an entity without an assigned policy
const NoPolicy = -1

// Entity is a traced process or thread
type Entity struct {
	Pid    int
	Ppid   int // logical parent, 0 if untracked
	Pgid   int
	Flags  Flag
	Policy int

	phase      phase
	errorCode  int64
	statusAddr uint64
	exitStatus uint32
	waitTarget int
	regs       Regs
	call       callInfo // syscall as seen at start, before any rewrite
	seq        uint64
	root       bool
	fresh      bool // created by an event, not yet attributed to a parent

	// reset on clone
	nChildren        int
	nThreads         int
	nThreadsWaiting  int
	nThreadsDetached int
	waitq            []WaitStatus
}

type callInfo struct {
	nr   int
	name string
}

// Paused reports whether the entity is parked in a wait emulation
func (e *Entity) Paused() bool {
	return e.Flags&FlagPausing != 0
}

// WaitTarget returns the pid the entity waits on, -1 when none
func (e *Entity) WaitTarget() int {
	return e.waitTarget
}

// Children returns the number of direct children
func (e *Entity) Children() int {
	return e.nChildren
}

// Threads returns the number of live threads in the group
func (e *Entity) Threads() int {
	return e.nThreads
}

// ThreadsWaiting returns the number of threads paused in a wait
func (e *Entity) ThreadsWaiting() int {
	return e.nThreadsWaiting
}

// ThreadsDetached returns the number of detached threads
func (e *Entity) ThreadsDetached() int {
	return e.nThreadsDetached
}

// Queue returns a copy of the pending wait statuses
func (e *Entity) Queue() []WaitStatus {
	return append([]WaitStatus(nil), e.waitq...)
}

// Table maps pids to entities
type Table struct {
	entities map[int]*Entity
}

// NewTable creates an empty entity table
func NewTable() *Table {
	return &Table{entities: make(map[int]*Entity)}
}

func newEntity(pid int) *Entity {
	return &Entity{
		Pid:        pid,
		Pgid:       -1,
		Policy:     NoPolicy,
		waitTarget: -1,
		fresh:      true,
	}
}

// Lookup finds the entity for pid
func (t *Table) Lookup(pid int) (*Entity, bool) {
	e, ok := t.entities[pid]
	return e, ok
}

// Get returns the entity for pid, creating it on first touch
func (t *Table) Get(pid int) *Entity {
	if e, ok := t.entities[pid]; ok {
		return e
	}
	e := newEntity(pid)
	t.entities[pid] = e
	return e
}

// Destroy removes pid from the table. Its queue is drained and every
// entity that names it as logical parent is orphaned.
func (t *Table) Destroy(pid int) {
	e, ok := t.entities[pid]
	if !ok {
		return
	}
	e.waitq = nil
	for _, c := range t.entities {
		if c.Ppid == pid {
			c.Ppid = 0
		}
	}
	delete(t.entities, pid)
}

// Clone duplicates the parent's entity into child. Counters and the queue
// start empty and the child is expecting a syscall start.
func (t *Table) Clone(parent, child int) (*Entity, bool) {
	p, ok := t.entities[parent]
	if !ok {
		return nil, false
	}
	c := *p
	c.Pid = child
	c.Ppid = parent
	c.root = false
	c.fresh = false
	c.phase = phaseStart
	c.waitTarget = -1
	c.statusAddr = 0
	c.nChildren = 0
	c.nThreads = 0
	c.nThreadsWaiting = 0
	c.nThreadsDetached = 0
	c.waitq = nil
	t.entities[child] = &c
	return &c, true
}

// Len returns the number of tracked entities
func (t *Table) Len() int {
	return len(t.entities)
}

// Pids returns the tracked pids in ascending order
func (t *Table) Pids() []int {
	pids := make([]int, 0, len(t.entities))
	for pid := range t.entities {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}
