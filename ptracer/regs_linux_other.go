//go:build linux && !amd64

package ptracer

import (
	"errors"

	"golang.org/x/sys/unix"
)

var errArch = errors.New("syscall interception is only implemented on amd64")

func fromPtrace(*unix.PtraceRegs) (Regs, error) {
	return Regs{}, errArch
}

func toPtrace(*unix.PtraceRegs, *Regs) {}
