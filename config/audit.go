package config

import (
	"log/slog"
	"os"

	"github.com/criyle/go-systrace/audit"
	"github.com/criyle/go-systrace/ptracer"
)

func (f Files) enabled() bool {
	return f.Defaults || len(f.Read) > 0 || len(f.Write) > 0 || len(f.Stat) > 0
}

// Apply writes the policy into record h. With file restrictions the file
// access syscalls without a deny rule are asked.
func (c *Config) Apply(policies *ptracer.PolicyTable, h int, r ptracer.Resolver) error {
	if err := c.Policy.Apply(policies, h, r); err != nil {
		return err
	}
	if !c.Files.enabled() {
		return nil
	}
	denied := make(map[string]bool)
	for _, d := range c.Policy.Deny {
		denied[d.Name] = true
	}
	for _, n := range audit.PathSyscalls() {
		nr, ok := r.SyscallNumber(false, n)
		if !ok || denied[n] {
			continue
		}
		if err := policies.SetRule(h, nr, ptracer.Ask()); err != nil {
			return err
		}
	}
	return nil
}

// Audit builds the decider answering the asked syscalls
func (c *Config) Audit(logger *slog.Logger) (*audit.Decider, error) {
	def, err := c.Policy.Verdict()
	if err != nil {
		return nil, err
	}
	d := audit.New(def, logger)
	d.Counter.AddRange(c.Policy.Count)
	for _, n := range c.Policy.Result {
		d.Results[n] = true
	}
	d.Compat = c.Policy.Emulation == EmulationBoth

	f := c.Files
	if !f.enabled() {
		return d, nil
	}
	workDir := c.Runner.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	d.Files = audit.NewFiles()
	if f.Defaults {
		d.Files.Read.AddRange(ReadableFiles(), workDir)
		d.Files.Write.AddRange(WritableFiles(), workDir)
	}
	d.Files.Read.AddRange(f.Read, workDir)
	d.Files.Write.AddRange(f.Write, workDir)
	d.Files.Stat.AddRange(f.Stat, workDir)
	d.Files.Grant(workDir, audit.AccessRead)
	return d, nil
}
