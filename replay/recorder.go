package replay

import (
	"log/slog"
	"syscall"

	"github.com/criyle/go-systrace/ptracer"
)

var eperm = syscall.EPERM

// Recorder permits every syscall and adds it to the profile. The policy
// of the recorded run must leave every syscall at ask.
type Recorder struct {
	Profile *Profile
	Logger  *slog.Logger
}

// NewRecorder records into p
func NewRecorder(p *Profile, logger *slog.Logger) *Recorder {
	return &Recorder{Profile: p, Logger: logger}
}

// Ask implements ptracer.Decider
func (r *Recorder) Ask(req *ptracer.Request) ptracer.Answer {
	if r.Profile.Add(req.Emulation, req.Name) && r.Logger != nil {
		r.Logger.Debug("recorded", "pid", req.Pid, "syscall", req.Name, "emulation", req.Emulation)
	}
	return ptracer.Answer{Verdict: ptracer.Permit()}
}

// Result implements ptracer.Decider
func (r *Recorder) Result(*ptracer.SyscallResult) {}
