package ptracer

import (
	"os"

	"golang.org/x/sys/unix"
)

var pageSize = os.Getpagesize()

func vmRead(pid int, addr uintptr, buff []byte) (int, error) {
	localIov := []unix.Iovec{getIovec(&buff[0], len(buff))}
	remoteIov := []unix.RemoteIovec{{Base: addr, Len: len(buff)}}
	return unix.ProcessVMReadv(pid, localIov, remoteIov, 0)
}

// vmReadStr reads up to len(buff) bytes, one page at a time so that an
// unmapped page after the string does not fail the read
func vmReadStr(pid int, addr uintptr, buff []byte) error {
	totalRead := 0
	nextRead := pageSize - int(addr%uintptr(pageSize))
	for len(buff) > 0 {
		if restToRead := len(buff); restToRead < nextRead {
			nextRead = restToRead
		}
		curRead, err := vmRead(pid, addr+uintptr(totalRead), buff[:nextRead])
		if err != nil {
			return err
		}
		if curRead == 0 || hasNull(buff[:curRead]) {
			break
		}
		totalRead += curRead
		buff = buff[curRead:]
		nextRead = pageSize
	}
	return nil
}

func hasNull(buff []byte) bool {
	for _, b := range buff {
		if b == 0 {
			return true
		}
	}
	return false
}

// clen returns the length of the NUL terminated string in b
func clen(b []byte) int {
	for i := 0; i < len(b); i++ {
		if b[i] == 0 {
			return i
		}
	}
	return len(b)
}
