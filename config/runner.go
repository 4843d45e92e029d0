package config

import (
	"os"

	"github.com/criyle/go-systrace/pkg/forkexec"
	"github.com/criyle/go-systrace/pkg/rlimit"
)

// RLimits converts the limits for the runner
func (l Limits) RLimits() rlimit.RLimits {
	return rlimit.RLimits{
		CPU:          l.CPU,
		CPUHard:      l.CPUHard,
		Data:         l.Data.Byte(),
		FileSize:     l.FileSize.Byte(),
		Stack:        l.Stack.Byte(),
		AddressSpace: l.AddressSpace.Byte(),
		OpenFile:     l.OpenFiles,
		DisableCore:  l.DisableCore,
	}
}

// NewRunner builds the runner of the root tracee for args. It shares the
// standard files of the calling process and loads the deny rules as a
// seccomp prefilter when enabled.
func (c *Config) NewRunner(args []string) (*forkexec.Runner, error) {
	env := c.Runner.Env
	if len(env) == 0 {
		env = os.Environ()
	}
	rl := c.Runner.Limits.RLimits()
	r := &forkexec.Runner{
		Args:    args,
		Env:     env,
		RLimits: rl.PrepareRLimit(),
		Files:   []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd()},
		WorkDir: c.Runner.WorkDir,
		Ptrace:  true,
	}
	if !c.Runner.Seccomp || len(c.Policy.Deny) == 0 {
		return r, nil
	}
	b, err := c.Policy.Seccomp()
	if err != nil {
		return nil, err
	}
	filter, err := b.Build()
	if err != nil {
		return nil, err
	}
	r.Seccomp = filter.SockFprog()
	return r, nil
}
