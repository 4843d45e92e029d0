// Package replay records the syscalls of a trusted run into a profile and
// enforces the profile as an allow list on later runs.
package replay

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/criyle/go-systrace/ptracer"
)

// Profile is the set of syscalls observed over one or more recorded runs,
// keyed by emulation
type Profile struct {
	Command    []string            `yaml:"command,omitempty"`
	ExitStatus int                 `yaml:"exit_status"`
	Runs       int                 `yaml:"runs"`
	Syscalls   map[string][]string `yaml:"syscalls"`
}

// NewProfile creates an empty profile
func NewProfile() *Profile {
	return &Profile{Syscalls: make(map[string][]string)}
}

// Load reads a profile from path
func Load(path string) (*Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := NewProfile()
	if err := yaml.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	if p.Syscalls == nil {
		p.Syscalls = make(map[string][]string)
	}
	for emu := range p.Syscalls {
		p.Syscalls[emu] = normalize(p.Syscalls[emu])
	}
	return p, nil
}

// LoadOrNew reads a profile, returning an empty one if path does not exist
func LoadOrNew(path string) (*Profile, error) {
	p, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewProfile(), nil
	}
	return p, err
}

// Save writes the profile to path
func (p *Profile) Save(path string) error {
	b, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Has reports whether the syscall was recorded
func (p *Profile) Has(emulation, name string) bool {
	names := p.Syscalls[emulation]
	i := sort.SearchStrings(names, name)
	return i < len(names) && names[i] == name
}

// Add records a syscall and reports whether it was new
func (p *Profile) Add(emulation, name string) bool {
	if p.Has(emulation, name) {
		return false
	}
	names := p.Syscalls[emulation]
	i := sort.SearchStrings(names, name)
	names = append(names, "")
	copy(names[i+1:], names[i:])
	names[i] = name
	p.Syscalls[emulation] = names
	return true
}

// Merge adds every syscall of o into p. The run count accumulates and the
// command and exit status of o replace the ones of p.
func (p *Profile) Merge(o *Profile) {
	for emu, names := range o.Syscalls {
		for _, n := range names {
			p.Add(emu, n)
		}
	}
	p.Runs += o.Runs
	if len(o.Command) > 0 {
		p.Command = o.Command
		p.ExitStatus = o.ExitStatus
	}
}

// Len returns the number of recorded syscalls
func (p *Profile) Len() int {
	n := 0
	for _, names := range p.Syscalls {
		n += len(names)
	}
	return n
}

// Apply writes the profile into policy h: every recorded 64-bit syscall
// is permitted and every other number is denied with EPERM. 32-bit calls
// are left to the Enforcer.
func (p *Profile) Apply(policies *ptracer.PolicyTable, h int, r ptracer.Resolver) error {
	deny := ptracer.Deny(eperm)
	for nr := 0; nr < ptracer.MaxSyscalls; nr++ {
		if err := policies.SetRule(h, nr, deny); err != nil {
			return err
		}
	}
	for _, name := range p.Syscalls[ptracer.Linux64.Emulation()] {
		nr, ok := r.SyscallNumber(false, name)
		if !ok {
			return fmt.Errorf("profile: unknown syscall %q", name)
		}
		if err := policies.SetRule(h, nr, ptracer.Permit()); err != nil {
			return err
		}
	}
	return nil
}

func normalize(names []string) []string {
	sort.Strings(names)
	out := names[:0]
	for i, n := range names {
		if i == 0 || n != names[i-1] {
			out = append(out, n)
		}
	}
	return out
}
