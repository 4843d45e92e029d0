package forkexec

import (
	"golang.org/x/sys/unix"
)

// defines missing consts from syscall package
const (
	SECCOMP_SET_MODE_FILTER   = 1
	SECCOMP_FILTER_FLAG_TSYNC = 1
)

// retry interval of execve returning ETXTBSY
var etxtbsyRetryInterval = unix.Timespec{Nsec: 20 * 1000 * 1000}
