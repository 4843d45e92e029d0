package seccomp

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// SockFprog converts Filter to SockFprog for seccomp syscall
func (f Filter) SockFprog() *unix.SockFprog {
	b := []byte(f)
	return &unix.SockFprog{
		Len:    uint16(len(b) / 8),
		Filter: (*unix.SockFilter)(unsafe.Pointer(&b[0])),
	}
}

// Load installs the filter on the calling thread with no_new_privs set
func (f Filter) Load() error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return err
	}
	prog := f.SockFprog()
	_, _, errno := unix.RawSyscall(unix.SYS_SECCOMP, unix.SECCOMP_SET_MODE_FILTER, 0, uintptr(unsafe.Pointer(prog)))
	if errno != 0 {
		return errno
	}
	return nil
}
