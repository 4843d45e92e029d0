package seccomp

import (
	"fmt"

	libseccomp "github.com/elastic/go-seccomp-bpf"
)

// Action is seccomp trap action
type Action uint32

// Action defines seccomp action to the syscall
// default value 0 is invalid
const (
	ActionAllow Action = iota + 1
	ActionErrno
	ActionTrace
	ActionKill
)

// WithReturnCode set the return code when action is errno or trace
func (a Action) WithReturnCode(code int16) Action {
	return a.Action() | Action(code)<<16
}

// ReturnCode get the return code
func (a Action) ReturnCode() int16 {
	return int16(a >> 16)
}

// Action get the basic action
func (a Action) Action() Action {
	return Action(a & 0xffff)
}

func (a Action) String() string {
	switch a.Action() {
	case ActionAllow:
		return "allow"
	case ActionErrno:
		return fmt.Sprintf("errno(%d)", a.ReturnCode())
	case ActionTrace:
		return fmt.Sprintf("trace(%d)", a.ReturnCode())
	case ActionKill:
		return "kill"
	}
	return "invalid"
}

// ToSeccompAction converts action to the filter assembler action
func ToSeccompAction(a Action) libseccomp.Action {
	var action libseccomp.Action
	switch a.Action() {
	case ActionAllow:
		return libseccomp.ActionAllow
	case ActionErrno:
		action = libseccomp.ActionErrno
	case ActionTrace:
		action = libseccomp.ActionTrace
	default:
		return libseccomp.ActionKillProcess
	}
	// the least 16 bit of ret value is SECCOMP_RET_DATA
	return action | libseccomp.Action(uint16(a.ReturnCode()))
}
