package replay

import (
	"io"
	"log/slog"

	"github.com/criyle/go-systrace/ptracer"
)

// MaxDenials bounds the denials kept for the report
const MaxDenials = 16

// Denial is a syscall refused during replay
type Denial struct {
	Pid       int
	Name      string
	Emulation string
}

// Enforcer answers the calls the policy fast path does not cover, which
// are the 32-bit ones, and keeps the first denials of the run. It
// implements ptracer.Observer to see the fast path denials too.
type Enforcer struct {
	Profile *Profile
	Logger  *slog.Logger

	denials []Denial
	total   int
	pending *Denial // denied by Ask, not yet echoed through Denied
}

// NewEnforcer enforces p
func NewEnforcer(p *Profile, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Enforcer{Profile: p, Logger: logger}
}

// Ask implements ptracer.Decider
func (e *Enforcer) Ask(req *ptracer.Request) ptracer.Answer {
	if e.Profile.Has(req.Emulation, req.Name) {
		return ptracer.Answer{Verdict: ptracer.Permit()}
	}
	e.deny(req.Pid, req.Name, req.Emulation)
	e.pending = &Denial{Pid: req.Pid, Name: req.Name, Emulation: req.Emulation}
	return ptracer.Answer{Verdict: ptracer.Deny(eperm)}
}

// Result implements ptracer.Decider
func (e *Enforcer) Result(*ptracer.SyscallResult) {}

// ChildRegistered implements ptracer.Observer
func (e *Enforcer) ChildRegistered(parent, child int) {}

// EntityGone implements ptracer.Observer
func (e *Enforcer) EntityGone(pid int) {}

// PolicyFreed implements ptracer.Observer
func (e *Enforcer) PolicyFreed(handle int) {}

// Denied implements ptracer.Observer. The tracer reports a denial of Ask
// right after it, any other denial drops the pending one.
func (e *Enforcer) Denied(pid int, name string, errno uint16) {
	p := e.pending
	e.pending = nil
	if p != nil && p.Pid == pid && p.Name == name {
		return
	}
	e.deny(pid, name, ptracer.Linux64.Emulation())
}

func (e *Enforcer) deny(pid int, name, emulation string) {
	e.total++
	if len(e.denials) < MaxDenials {
		e.denials = append(e.denials, Denial{Pid: pid, Name: name, Emulation: emulation})
		e.Logger.Warn("syscall not in profile", "pid", pid, "syscall", name, "emulation", emulation)
	}
}

// Denials returns the first denials in order and the total count
func (e *Enforcer) Denials() ([]Denial, int) {
	return append([]Denial(nil), e.denials...), e.total
}
