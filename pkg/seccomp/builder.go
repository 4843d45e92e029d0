package seccomp

import (
	"fmt"
	"sort"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"
)

// Builder builds a seccomp filter for the native architecture. Syscalls
// not named in Actions get Default.
type Builder struct {
	Actions map[string]Action
	Default Action
}

// Policy groups the syscalls by action
func (b *Builder) Policy() (*libseccomp.Policy, error) {
	if b.Default.Action() == 0 {
		return nil, fmt.Errorf("invalid default action")
	}
	groups := make(map[Action][]string)
	for name, a := range b.Actions {
		if a.Action() == 0 {
			return nil, fmt.Errorf("invalid action for %s", name)
		}
		if a == b.Default {
			continue
		}
		groups[a] = append(groups[a], name)
	}
	actions := make([]Action, 0, len(groups))
	for a := range groups {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	policy := &libseccomp.Policy{DefaultAction: ToSeccompAction(b.Default)}
	for _, a := range actions {
		names := groups[a]
		sort.Strings(names)
		policy.Syscalls = append(policy.Syscalls, libseccomp.SyscallGroup{
			Action: ToSeccompAction(a),
			Names:  names,
		})
	}
	return policy, nil
}

// Build assembles the filter
func (b *Builder) Build() (Filter, error) {
	policy, err := b.Policy()
	if err != nil {
		return nil, err
	}
	insts, err := policy.Assemble()
	if err != nil {
		return nil, err
	}
	raw, err := bpf.Assemble(insts)
	if err != nil {
		return nil, err
	}
	return newFilter(raw), nil
}
