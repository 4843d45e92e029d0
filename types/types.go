package types

import (
	"fmt"
	"time"
)

// Result is the result returned by a trace run
type Result struct {
	Status            // the final status for the root tracee
	ExitStatus int    // exit status or terminating signal
	Error      string // potential detailed error message
	UserTime   uint64 // used user CPU time (in ms)
	UserMem    uint64 // peak resident memory (in kb)
	// collects time usage for the tracer
	SetUpTime   time.Duration
	RunningTime time.Duration
}

func (r Result) String() string {
	switch r.Status {
	case StatusNormal:
		return fmt.Sprintf("Result[%dms %dkb][%v %v]", r.UserTime, r.UserMem, r.SetUpTime, r.RunningTime)

	case StatusSignalled:
		return fmt.Sprintf("Result[Signalled(%d)][%dms %dkb][%v %v]", r.ExitStatus, r.UserTime, r.UserMem, r.SetUpTime, r.RunningTime)

	case StatusRunnerError:
		return fmt.Sprintf("Result[RunnerFailed(%s)][%dms %dkb][%v %v]", r.Error, r.UserTime, r.UserMem, r.SetUpTime, r.RunningTime)

	default:
		return fmt.Sprintf("Result[%v(%s %d)][%dms %dkb][%v %v]", r.Status, r.Error, r.ExitStatus, r.UserTime, r.UserMem, r.SetUpTime, r.RunningTime)
	}
}
