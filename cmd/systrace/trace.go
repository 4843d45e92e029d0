package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/criyle/go-systrace/pkg/sysname"
	"github.com/criyle/go-systrace/ptracer"
	"github.com/criyle/go-systrace/types"
)

// session is one traced run of a program
type session struct {
	args     []string
	decider  ptracer.Decider
	observer ptracer.Observer
	// policy fills the record of the root tracee
	policy func(p *ptracer.PolicyTable, h int, r ptracer.Resolver) error
}

// exit codes besides the exit status of the program
const (
	exitUsage      = 2
	exitDisallowed = 125
	exitFailed     = 126
	exitSignalBase = 128
)

func exitCode(r types.Result) int {
	switch r.Status {
	case types.StatusNormal:
		return 0
	case types.StatusNonzeroExitStatus:
		return r.ExitStatus
	case types.StatusSignalled:
		return exitSignalBase + r.ExitStatus
	case types.StatusDisallowedSyscall:
		return exitDisallowed
	default:
		return exitFailed
	}
}

func (e *env) trace(s session) (types.Result, error) {
	resolver, err := sysname.New()
	if err != nil {
		return types.Result{}, err
	}
	runner, err := e.config.NewRunner(s.args)
	if err != nil {
		return types.Result{}, err
	}

	t := ptracer.New(ptracer.Ptrace{}, s.decider, resolver)
	t.Runner = runner
	t.Observer = s.observer
	t.Logger = e.logger
	t.ForceEnd = e.config.Tracer.ForceEndWithoutENOSYS

	h, err := t.Policies.New()
	if err != nil {
		return types.Result{}, err
	}
	if err := s.policy(t.Policies, h, resolver); err != nil {
		return types.Result{}, err
	}
	t.Policy = h

	// gracefully shutdown, the whole process group is killed
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e.logger.Debug("tracing", "args", s.args, "workdir", runner.WorkDir, "seccomp", runner.Seccomp != nil)
	rt := t.TraceRun(ctx)
	if ctx.Err() != nil && rt.Status != types.StatusRunnerError {
		rt.Status = types.StatusRunnerError
		rt.Error = "interrupted"
	}
	e.logger.Debug("traced", "result", rt.String(), "setup", rt.SetUpTime, "running", rt.RunningTime)
	return rt, nil
}

// logObserver logs the bookkeeping notifications of a run
type logObserver struct {
	logger *slog.Logger
	denied int
}

func (o *logObserver) ChildRegistered(parent, child int) {
	o.logger.Debug("child registered", "parent", parent, "pid", child)
}

func (o *logObserver) EntityGone(pid int) {
	o.logger.Debug("entity gone", "pid", pid)
}

func (o *logObserver) PolicyFreed(handle int) {
	o.logger.Debug("policy freed", "handle", handle)
}

func (o *logObserver) Denied(pid int, name string, errno uint16) {
	o.denied++
	o.logger.Info("denied", "pid", pid, "syscall", name, "errno", syscall.Errno(errno).Error())
}
