// Package ptracer tracks traced processes and threads and intercepts
// their syscalls under ptrace. Fork family calls are rewritten to clone
// with CLONE_PTRACE so that every descendant stays traced, and wait
// family calls are emulated from the exit statuses the tracer observes.
package ptracer

import (
	"log/slog"
	"syscall"
)

// Kernel is the control surface over stopped tracees
type Kernel interface {
	// GetRegs reads the syscall registers of a stopped tracee
	GetRegs(pid int) (Regs, error)
	// SetRegs writes syscall number, return value and arguments
	SetRegs(pid int, r *Regs) error
	// PokeStatus writes a wait status into tracee memory
	PokeStatus(pid int, addr uint64, status uint32) error
	// ReadString reads a NUL terminated string from tracee memory
	ReadString(pid int, addr uint64) (string, error)
	// Resume continues a tracee until its next syscall stop
	Resume(pid int, sig syscall.Signal) error
	Detach(pid int) error
	Kill(pid int) error
	Elevate(pid int, e *Elevation) error
}

// Resolver maps syscall numbers to names for the 64-bit and the 32-bit
// compat tables
type Resolver interface {
	// SyscallName returns "unknown-N" for numbers it does not know
	SyscallName(compat bool, nr int) string
	SyscallNumber(compat bool, name string) (int, bool)
}

// Decider answers syscalls whose policy verdict is ask. It is called on
// the trace thread while the tracee is stopped.
type Decider interface {
	Ask(req *Request) Answer
	Result(res *SyscallResult)
}

// Observer receives bookkeeping notifications
type Observer interface {
	ChildRegistered(parent, child int)
	EntityGone(pid int)
	PolicyFreed(handle int)
	// Denied is called for every call refused by a deny verdict
	Denied(pid int, name string, errno uint16)
}

// Runner represents the process runner
type Runner interface {
	// Start starts the tracee stopped under ptrace and returns its pid
	Start() (int, error)
}

// Elevation overrides the effective uid / gid of the tracee for one call
type Elevation struct {
	UID *int
	GID *int
}

// Answer is the Decider's decision for a request
type Answer struct {
	Verdict    Verdict
	WantResult bool
	Elevate    *Elevation
}

// Request describes a syscall waiting for a decision
type Request struct {
	Pid       int
	Seq       uint64
	Nr        int
	Name      string
	Emulation string
	Args      [NumArgs]uint64
	Policy    int

	k Kernel
}

// ReadString reads a string argument from the tracee
func (r *Request) ReadString(addr uint64) (string, error) {
	return r.k.ReadString(r.Pid, addr)
}

// SyscallResult is sent at syscall end when result interception was
// requested
type SyscallResult struct {
	Pid       int
	Seq       uint64
	Nr        int
	Name      string
	Emulation string
	Args      [NumArgs]uint64
	Return    int64
}

// Tracer is the interception state machine over all traced entities.
// It is not safe for concurrent use; every method must run on the
// thread that owns the ptrace relation.
type Tracer struct {
	Kernel   Kernel
	Decider  Decider
	Resolver Resolver
	Observer Observer
	Runner   Runner
	Logger   *slog.Logger

	// Policy is assigned to the root tracee
	Policy int

	Entities *Table
	Policies *PolicyTable

	// ForceEnd turns a syscall start without -ENOSYS into a syscall end
	// for entities that skip their next stop or have no policy
	ForceEnd bool

	// CompatPolicy applies policy records to 32-bit calls as well. Records
	// are indexed by the 64-bit numbers, so by default 32-bit calls are
	// always asked.
	CompatPolicy bool

	seq   uint64
	early map[int]uint32 // exits observed before the parent's fork returned
}

// New creates a tracer with empty tables
func New(k Kernel, d Decider, r Resolver) *Tracer {
	return &Tracer{
		Kernel:   k,
		Decider:  d,
		Resolver: r,
		Entities: NewTable(),
		Policies: NewPolicyTable(),
		Policy:   NoPolicy,
		ForceEnd: true,
		early:    make(map[int]uint32),
	}
}

var discard = slog.New(discardHandler{})

func (t *Tracer) log() *slog.Logger {
	if t.Logger == nil {
		return discard
	}
	return t.Logger
}

// Register starts tracking the root tracee. The tracee is expected to be
// stopped after exec, so its first SIGTRAP is swallowed.
func (t *Tracer) Register(pid, policy int) error {
	e := t.Entities.Get(pid)
	e.root = true
	e.fresh = false
	e.Pgid = pid
	e.Flags |= FlagSawExec
	if policy != NoPolicy {
		return t.Assign(pid, policy)
	}
	return nil
}

// Assign sets the policy of a tracked entity
func (t *Tracer) Assign(pid, policy int) error {
	e, ok := t.Entities.Lookup(pid)
	if !ok {
		return &FatalError{Op: "assign", Pid: pid, Err: syscall.ESRCH}
	}
	if _, err := t.Policies.Rule(policy, 0); err != nil {
		return err
	}
	e.Policy = policy
	return nil
}

// FreePolicy releases a policy record and notifies the observer
func (t *Tracer) FreePolicy(h int) error {
	if err := t.Policies.Free(h); err != nil {
		return err
	}
	if t.Observer != nil {
		t.Observer.PolicyFreed(h)
	}
	return nil
}

// KillAll kills every tracked entity
func (t *Tracer) KillAll() {
	for _, pid := range t.Entities.Pids() {
		if err := t.Kernel.Kill(pid); err != nil && !isGone(err) {
			t.log().Warn("kill failed", "pid", pid, "err", err)
		}
	}
}
