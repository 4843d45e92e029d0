package ptracer

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

const ntPrstatus = 1

func ptrace(request int, pid int, addr uintptr, data uintptr) error {
	_, _, e1 := unix.Syscall6(unix.SYS_PTRACE, uintptr(request), uintptr(pid), addr, data, 0, 0)
	if e1 != 0 {
		return e1
	}
	return nil
}

func getIovec(base *byte, l int) unix.Iovec {
	iov := unix.Iovec{Base: base}
	iov.SetLen(l)
	return iov
}

func ptraceGetRegSet(pid int, regs *unix.PtraceRegs) error {
	iov := getIovec((*byte)(unsafe.Pointer(regs)), int(unsafe.Sizeof(*regs)))
	return ptrace(unix.PTRACE_GETREGSET, pid, ntPrstatus, uintptr(unsafe.Pointer(&iov)))
}

func ptraceSetRegSet(pid int, regs *unix.PtraceRegs) error {
	iov := getIovec((*byte)(unsafe.Pointer(regs)), int(unsafe.Sizeof(*regs)))
	return ptrace(unix.PTRACE_SETREGSET, pid, ntPrstatus, uintptr(unsafe.Pointer(&iov)))
}

// set ptrace options on the first stop of every tracee
func setPtraceOption(pid int) error {
	const ptraceFlags = unix.PTRACE_O_TRACESYSGOOD | unix.PTRACE_O_EXITKILL
	return unix.PtraceSetOptions(pid, ptraceFlags)
}

// Ptrace implements Kernel with ptrace(2) on the calling thread
type Ptrace struct{}

var _ Kernel = Ptrace{}

// GetRegs implements Kernel
func (Ptrace) GetRegs(pid int) (Regs, error) {
	var p unix.PtraceRegs
	if err := ptraceGetRegSet(pid, &p); err != nil {
		return Regs{}, err
	}
	return fromPtrace(&p)
}

// SetRegs overlays r on the live register set
func (Ptrace) SetRegs(pid int, r *Regs) error {
	var p unix.PtraceRegs
	if err := ptraceGetRegSet(pid, &p); err != nil {
		return err
	}
	toPtrace(&p, r)
	return ptraceSetRegSet(pid, &p)
}

// PokeStatus writes the 4 byte status only
func (Ptrace) PokeStatus(pid int, addr uint64, status uint32) error {
	b := (*[4]byte)(unsafe.Pointer(&status))
	_, err := unix.PtracePokeData(pid, uintptr(addr), b[:])
	return err
}

// ReadString implements Kernel
func (Ptrace) ReadString(pid int, addr uint64) (string, error) {
	buff := make([]byte, unix.PathMax)
	if err := vmReadStr(pid, uintptr(addr), buff); err != nil {
		return "", err
	}
	return string(buff[:clen(buff)]), nil
}

// Resume implements Kernel
func (Ptrace) Resume(pid int, sig unix.Signal) error {
	return unix.PtraceSyscall(pid, int(sig))
}

// Detach tolerates tracees that already exited
func (Ptrace) Detach(pid int) error {
	err := unix.PtraceDetach(pid)
	if !errors.Is(err, unix.ESRCH) {
		return err
	}
	if err := unix.Kill(pid, 0); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// Kill implements Kernel
func (Ptrace) Kill(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}

// Elevate is not possible from a ptrace tracer
func (Ptrace) Elevate(int, *Elevation) error {
	return ErrElevationUnsupported
}
