package ptracer

import (
	"fmt"
	"syscall"
)

// Policy table bounds
const (
	MaxPolicies = 500
	MaxSyscalls = 2048
)

// VerdictKind is the decision for a syscall
type VerdictKind uint16

// Verdict kinds, the zero value asks
const (
	VerdictAsk VerdictKind = iota
	VerdictPermit
	VerdictDeny
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictAsk:
		return "ask"
	case VerdictPermit:
		return "permit"
	case VerdictDeny:
		return "deny"
	}
	return fmt.Sprintf("verdict-%d", uint16(k))
}

// Verdict is a policy decision, with the error returned on deny
type Verdict struct {
	Kind  VerdictKind
	Errno uint16
}

// Ask defers the decision to the Decider
func Ask() Verdict { return Verdict{Kind: VerdictAsk} }

// Permit lets the call run
func Permit() Verdict { return Verdict{Kind: VerdictPermit} }

// Deny fails the call with errno
func Deny(errno syscall.Errno) Verdict {
	return Verdict{Kind: VerdictDeny, Errno: uint16(errno)}
}

func (v Verdict) String() string {
	if v.Kind == VerdictDeny {
		return fmt.Sprintf("deny(%d)", v.Errno)
	}
	return v.Kind.String()
}

type policyRecord [MaxSyscalls]Verdict

// PolicyTable holds the per syscall verdicts referenced by entities
type PolicyTable struct {
	records [MaxPolicies]*policyRecord
}

// NewPolicyTable creates an empty table
func NewPolicyTable() *PolicyTable {
	return &PolicyTable{}
}

// New allocates the first free policy record
func (p *PolicyTable) New() (int, error) {
	for i, r := range p.records {
		if r == nil {
			p.records[i] = new(policyRecord)
			return i, nil
		}
	}
	return NoPolicy, ErrOutOfPolicies
}

func (p *PolicyTable) record(h int) (*policyRecord, error) {
	if h < 0 || h >= MaxPolicies {
		return nil, fmt.Errorf("%w: %d", ErrBadPolicy, h)
	}
	r := p.records[h]
	if r == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnusedPolicy, h)
	}
	return r, nil
}

// Free releases a policy record. Entities still referencing it fail
// their next lookup.
func (p *PolicyTable) Free(h int) error {
	if _, err := p.record(h); err != nil {
		return err
	}
	p.records[h] = nil
	return nil
}

// Allocated reports whether h names a live record
func (p *PolicyTable) Allocated(h int) bool {
	_, err := p.record(h)
	return err == nil
}

// SetRule sets the verdict of syscall nr in policy h
func (p *PolicyTable) SetRule(h, nr int, v Verdict) error {
	r, err := p.record(h)
	if err != nil {
		return err
	}
	if nr < 0 || nr >= MaxSyscalls {
		return fmt.Errorf("%w: %d", ErrBadSyscall, nr)
	}
	r[nr] = v
	return nil
}

// Rule returns the verdict of syscall nr in policy h
func (p *PolicyTable) Rule(h, nr int) (Verdict, error) {
	r, err := p.record(h)
	if err != nil {
		return Verdict{}, err
	}
	if nr < 0 || nr >= MaxSyscalls {
		return Verdict{}, fmt.Errorf("%w: %d", ErrBadSyscall, nr)
	}
	return r[nr], nil
}

// Each calls fn for every non ask rule of policy h in syscall order
func (p *PolicyTable) Each(h int, fn func(nr int, v Verdict)) error {
	r, err := p.record(h)
	if err != nil {
		return err
	}
	for nr, v := range r {
		if v.Kind != VerdictAsk {
			fn(nr, v)
		}
	}
	return nil
}

// lookup is the event path lookup, where a bad handle or number is fatal
func (p *PolicyTable) lookup(e *Entity, nr int) Verdict {
	if e.Policy == NoPolicy {
		fatalf("policy lookup", e.Pid, "no policy assigned")
	}
	v, err := p.Rule(e.Policy, nr)
	if err != nil {
		fatal("policy lookup", e.Pid, err)
	}
	return v
}
