package config

// default file permissions when files.defaults is set
var (
	defaultReadableFiles = []string{
		"/etc/ld.so.nohwcap",
		"/etc/ld.so.preload",
		"/etc/ld.so.cache",
		"/usr/lib/locale/locale-archive",
		"/proc/self/exe",
		"/etc/timezone",
		"/usr/share/zoneinfo/",
		"/dev/random",
		"/dev/urandom",
		"/proc/meminfo",
		"/etc/localtime",
	}

	defaultWritableFiles = []string{"/dev/null"}
)

// syscalls permitted by the safe preset
var defaultSafeSyscalls = []string{
	// file access through fd
	"read",
	"write",
	"readv",
	"writev",
	"close",
	"fstat",
	"lseek",
	"dup",
	"dup3",
	"ioctl",
	"fcntl",
	"fadvise64",
	"pread64",
	"pwrite64",

	// memory
	"mmap",
	"mprotect",
	"munmap",
	"brk",
	"mremap",
	"msync",
	"mincore",
	"madvise",

	// signal
	"rt_sigaction",
	"rt_sigprocmask",
	"rt_sigreturn",
	"rt_sigpending",
	"sigaltstack",

	"getcwd",
	"exit",
	"exit_group",

	"gettimeofday",
	"getrlimit",
	"getrusage",
	"times",
	"clock_gettime",
	"restart_syscall",
	"futex",
	"gettid",
	"getpid",
	"prlimit64",
	"getrandom",
	"set_tid_address",
	"set_robust_list",
	"rseq",
}

// ReadableFiles returns the files readable with files.defaults
func ReadableFiles() []string {
	return append(append([]string{}, defaultReadableFiles...), archReadableFiles...)
}

// WritableFiles returns the files writable with files.defaults
func WritableFiles() []string {
	return append([]string{}, defaultWritableFiles...)
}

// SafeSyscalls returns the syscalls permitted by the safe preset
func SafeSyscalls() []string {
	return append(append([]string{}, defaultSafeSyscalls...), archSafeSyscalls...)
}
