package config

import (
	"fmt"
	"sort"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/criyle/go-systrace/pkg/seccomp"
	"github.com/criyle/go-systrace/ptracer"
)

// Emulations accepted by policy.emulation
const (
	EmulationLinux64 = "linux64"
	EmulationBoth    = "both"
)

// PresetSafe permits the syscalls that need no argument checks
const PresetSafe = "safe"

// maxErrno bounds the errno values a syscall can return
const maxErrno = 4095

var (
	errnoOnce  sync.Once
	errnoNames map[string]syscall.Errno
)

// Errno resolves an errno name such as "EPERM"
func Errno(name string) (syscall.Errno, error) {
	errnoOnce.Do(func() {
		errnoNames = make(map[string]syscall.Errno)
		for e := syscall.Errno(1); e <= maxErrno; e++ {
			if n := unix.ErrnoName(e); n != "" {
				if _, ok := errnoNames[n]; !ok {
					errnoNames[n] = e
				}
			}
		}
	})
	e, ok := errnoNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown errno %q", name)
	}
	return e, nil
}

func (p *Policy) validate() error {
	switch p.Preset {
	case "", PresetSafe:
	default:
		return fmt.Errorf("unknown preset %q", p.Preset)
	}
	if _, err := p.Verdict(); err != nil {
		return err
	}
	switch p.Emulation {
	case EmulationLinux64, EmulationBoth:
	default:
		return fmt.Errorf("unknown emulation %q", p.Emulation)
	}
	asked := make(map[string]bool)
	for _, n := range p.askNames() {
		asked[n] = true
	}
	for _, d := range p.Deny {
		if _, err := p.errno(d); err != nil {
			return err
		}
		if asked[d.Name] {
			return fmt.Errorf("%s is both denied and asked", d.Name)
		}
	}
	for n, c := range p.Count {
		if c < 0 {
			return fmt.Errorf("negative count for %s", n)
		}
	}
	return nil
}

// Verdict returns the verdict of syscalls not named by any rule
func (p *Policy) Verdict() (ptracer.Verdict, error) {
	switch p.Default {
	case "ask":
		return ptracer.Ask(), nil
	case "permit":
		return ptracer.Permit(), nil
	case "deny":
		e, err := Errno(p.DefaultErrno)
		if err != nil {
			return ptracer.Verdict{}, err
		}
		return ptracer.Deny(e), nil
	}
	return ptracer.Verdict{}, fmt.Errorf("unknown default %q", p.Default)
}

func (p *Policy) errno(d DenyRule) (syscall.Errno, error) {
	if d.Errno == "" {
		return Errno(p.DefaultErrno)
	}
	return Errno(d.Errno)
}

// askNames are the syscalls the decider must see: asked, counted and
// result intercepted ones
func (p *Policy) askNames() []string {
	names := append(append([]string{}, p.Ask...), p.Result...)
	for n := range p.Count {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Apply writes the rules into policy record h. Later rules override
// earlier ones: default, preset, permit, deny, then asked names.
func (p *Policy) Apply(policies *ptracer.PolicyTable, h int, r ptracer.Resolver) error {
	def, err := p.Verdict()
	if err != nil {
		return err
	}
	for nr := 0; nr < ptracer.MaxSyscalls; nr++ {
		if err := policies.SetRule(h, nr, def); err != nil {
			return err
		}
	}
	set := func(name string, v ptracer.Verdict, strict bool) error {
		nr, ok := r.SyscallNumber(false, name)
		if !ok {
			if strict {
				return fmt.Errorf("unknown syscall %q", name)
			}
			return nil
		}
		return policies.SetRule(h, nr, v)
	}
	if p.Preset == PresetSafe {
		for _, n := range SafeSyscalls() {
			if err := set(n, ptracer.Permit(), false); err != nil {
				return err
			}
		}
	}
	for _, n := range p.Permit {
		if err := set(n, ptracer.Permit(), true); err != nil {
			return err
		}
	}
	for _, d := range p.Deny {
		e, err := p.errno(d)
		if err != nil {
			return err
		}
		if err := set(d.Name, ptracer.Deny(e), true); err != nil {
			return err
		}
	}
	for _, n := range p.askNames() {
		if err := set(n, ptracer.Ask(), true); err != nil {
			return err
		}
	}
	return nil
}

// Seccomp returns the prefilter builder for the deny rules. Every other
// syscall is allowed by the filter and left to the tracer.
func (p *Policy) Seccomp() (*seccomp.Builder, error) {
	b := &seccomp.Builder{
		Actions: make(map[string]seccomp.Action),
		Default: seccomp.ActionAllow,
	}
	for _, d := range p.Deny {
		e, err := p.errno(d)
		if err != nil {
			return nil, err
		}
		b.Actions[d.Name] = seccomp.ActionErrno.WithReturnCode(int16(e))
	}
	return b, nil
}
