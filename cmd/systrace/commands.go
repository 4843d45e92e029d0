package main

import (
	"fmt"

	"github.com/criyle/go-systrace/pkg/sysname"
	"github.com/criyle/go-systrace/ptracer"
	"github.com/criyle/go-systrace/replay"
	"github.com/criyle/go-systrace/types"
)

func runCmd(e *env, args []string) (int, error) {
	fs := newFlagSet("run", e.stderr)
	prog, err := parseProgram(fs, args)
	if err != nil {
		return exitUsage, err
	}
	d, err := e.config.Audit(e.logger)
	if err != nil {
		return exitUsage, err
	}
	o := &logObserver{logger: e.logger}
	rt, err := e.trace(session{
		args:     prog,
		decider:  d,
		observer: o,
		policy:   e.config.Apply,
	})
	if err != nil {
		return exitFailed, err
	}
	e.logger.Info("finished", "result", rt.String(), "denied", o.denied)
	return exitCode(rt), nil
}

func recordCmd(e *env, args []string) (int, error) {
	fs := newFlagSet("record", e.stderr)
	path := fs.StringP("profile", "p", "profile.yaml", "profile to record into, merged when it exists")
	prog, err := parseProgram(fs, args)
	if err != nil {
		return exitUsage, err
	}
	p, err := replay.LoadOrNew(*path)
	if err != nil {
		return exitUsage, err
	}
	before := p.Len()

	run := replay.NewProfile()
	rt, err := e.trace(session{
		args:     prog,
		decider:  replay.NewRecorder(run, e.logger),
		observer: &logObserver{logger: e.logger},
		// a fresh record asks every syscall
		policy: func(*ptracer.PolicyTable, int, ptracer.Resolver) error { return nil },
	})
	if err != nil {
		return exitFailed, err
	}
	if rt.Status == types.StatusRunnerError {
		return exitCode(rt), fmt.Errorf("record: %s", rt.Error)
	}
	run.Command = prog
	run.ExitStatus = rt.ExitStatus
	run.Runs = 1
	p.Merge(run)
	if err := p.Save(*path); err != nil {
		return exitFailed, err
	}
	e.logger.Info("recorded", "profile", *path, "syscalls", p.Len(), "new", p.Len()-before, "result", rt.String())
	return exitCode(rt), nil
}

func replayCmd(e *env, args []string) (int, error) {
	fs := newFlagSet("replay", e.stderr)
	path := fs.StringP("profile", "p", "profile.yaml", "profile recorded by systrace record")
	prog, err := parseProgram(fs, args)
	if err != nil {
		return exitUsage, err
	}
	p, err := replay.Load(*path)
	if err != nil {
		return exitUsage, err
	}
	enf := replay.NewEnforcer(p, e.logger)
	rt, err := e.trace(session{
		args:     prog,
		decider:  enf,
		observer: enf,
		policy:   p.Apply,
	})
	if err != nil {
		return exitFailed, err
	}
	denials, total := enf.Denials()
	for _, d := range denials {
		fmt.Fprintf(e.stderr, "denied %s (%s) in pid %d\n", d.Name, d.Emulation, d.Pid)
	}
	if total > len(denials) {
		fmt.Fprintf(e.stderr, "... %d more denials\n", total-len(denials))
	}
	if total > 0 && rt.Status != types.StatusRunnerError {
		rt.Status = types.StatusDisallowedSyscall
	}
	e.logger.Info("replayed", "profile", *path, "result", rt.String(), "denied", total)
	return exitCode(rt), nil
}

func filterCmd(e *env, args []string) (int, error) {
	fs := newFlagSet("filter", e.stderr)
	if err := fs.Parse(args); err != nil {
		return exitUsage, err
	}
	b, err := e.config.Policy.Seccomp()
	if err != nil {
		return exitUsage, err
	}
	filter, err := b.Build()
	if err != nil {
		return exitFailed, err
	}
	insts, err := filter.Disassemble()
	if err != nil {
		return exitFailed, err
	}
	for i, inst := range insts {
		fmt.Fprintf(e.stdout, "%3d: %v\n", i, inst)
	}
	return 0, nil
}

func syscallsCmd(e *env, args []string) (int, error) {
	fs := newFlagSet("syscalls", e.stderr)
	compat := fs.Bool("compat", false, "list the 32-bit compat table")
	if err := fs.Parse(args); err != nil {
		return exitUsage, err
	}
	if fs.NArg() > 0 {
		return exitUsage, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	r, err := sysname.New()
	if err != nil {
		return exitFailed, err
	}
	t, err := r.Table(*compat)
	if err != nil {
		return exitUsage, err
	}
	for _, name := range t.Names() {
		nr, _ := t.Number(name)
		fmt.Fprintf(e.stdout, "%d\t%s\n", nr, name)
	}
	return 0, nil
}
