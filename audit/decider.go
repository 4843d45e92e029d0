// Package audit decides the syscalls a policy leaves to ask: file access
// syscalls are checked against path sets, counted syscalls against their
// budget, and everything else gets the default verdict.
package audit

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/criyle/go-systrace/ptracer"
)

// BanErrno is returned for denied file accesses
var BanErrno = syscall.EACCES

// a path argument at index > 0 is preceded by the directory fd it is
// relative to
type pathArg struct {
	path   int
	flags  int // open flags argument, -1 if the access is fixed
	access Access
}

var pathSyscalls = map[string]pathArg{
	"open":       {0, 1, 0},
	"openat":     {1, 2, 0},
	"creat":      {0, -1, AccessWrite},
	"readlink":   {0, -1, AccessRead},
	"readlinkat": {1, -1, AccessRead},
	"unlink":     {0, -1, AccessWrite},
	"unlinkat":   {1, -1, AccessWrite},
	"access":     {0, -1, AccessStat},
	"faccessat":  {1, -1, AccessStat},
	"faccessat2": {1, -1, AccessStat},
	"newfstatat": {1, -1, AccessStat},
	"statx":      {1, -1, AccessStat},
	"stat":       {0, -1, AccessStat},
	"stat64":     {0, -1, AccessStat},
	"lstat":      {0, -1, AccessStat},
	"lstat64":    {0, -1, AccessStat},
	"execve":     {0, -1, AccessRead},
	"execveat":   {1, -1, AccessRead},
	"chmod":      {0, -1, AccessWrite},
	"rename":     {0, -1, AccessWrite},
	"mkdir":      {0, -1, AccessWrite},
	"rmdir":      {0, -1, AccessWrite},
}

// Decider implements ptracer.Decider
type Decider struct {
	// Files restricts file access syscalls, nil leaves them to Default
	Files   *Files
	Counter Counter
	Default ptracer.Verdict
	// Results names the syscalls whose return value is logged
	Results map[string]bool
	// Compat accepts 32-bit calls, which are otherwise denied with ENOSYS
	Compat bool
	Logger *slog.Logger

	cwd    func(pid int) string
	fdPath func(pid, fd int) string
}

// New creates a decider answering def for unrestricted syscalls
func New(def ptracer.Verdict, logger *slog.Logger) *Decider {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Decider{
		Counter: NewCounter(),
		Default: def,
		Results: make(map[string]bool),
		Logger:  logger,
		cwd:     procCwd,
		fdPath:  procFd,
	}
}

// Ask implements ptracer.Decider
func (d *Decider) Ask(req *ptracer.Request) ptracer.Answer {
	a := ptracer.Answer{Verdict: d.decide(req), WantResult: d.Results[req.Name]}
	if a.Verdict.Kind == ptracer.VerdictAsk {
		a.Verdict = ptracer.Deny(syscall.EPERM)
	}
	return a
}

func (d *Decider) decide(req *ptracer.Request) ptracer.Verdict {
	l := d.Logger.With("pid", req.Pid, "syscall", req.Name, "emulation", req.Emulation)
	if req.Emulation != ptracer.Linux64.Emulation() && !d.Compat {
		l.Info("32-bit syscall denied")
		return ptracer.Deny(syscall.ENOSYS)
	}

	if p, ok := pathSyscalls[req.Name]; ok && d.Files != nil {
		name, err := req.ReadString(req.Args[p.path])
		if err != nil {
			l.Warn("read path argument", "err", err)
			return ptracer.Deny(BanErrno)
		}
		dirfd := unix.AT_FDCWD
		if p.path > 0 {
			dirfd = int(int32(req.Args[p.path-1]))
		}
		name, ok = d.absPath(req.Pid, dirfd, name)
		if !ok {
			l.Info("relative path with unresolvable directory", "path", name, "dirfd", dirfd)
			return ptracer.Deny(BanErrno)
		}
		access := p.access
		if p.flags >= 0 {
			access = openAccess(req.Args[p.flags])
		}
		if !d.Files.Allowed(name, access) {
			l.Info("file access denied", "path", name, "access", access.String())
			return ptracer.Deny(BanErrno)
		}
		l.Debug("file access", "path", name, "access", access.String())
		return ptracer.Permit()
	}

	if counted, allow := d.Counter.Check(req.Name); counted {
		if !allow {
			l.Info("syscall budget exhausted")
			return ptracer.Deny(syscall.EPERM)
		}
		return ptracer.Permit()
	}
	l.Debug("syscall", "verdict", d.Default.String(), "args", fmt.Sprintf("%#x", req.Args))
	return d.Default
}

// Result implements ptracer.Decider
func (d *Decider) Result(res *ptracer.SyscallResult) {
	d.Logger.Info("syscall result", "pid", res.Pid, "syscall", res.Name, "ret", res.Return)
}

func openAccess(flags uint64) Access {
	f := int(flags)
	if f&syscall.O_ACCMODE == syscall.O_RDONLY && f&(syscall.O_CREAT|syscall.O_EXCL|syscall.O_TRUNC) == 0 {
		return AccessRead
	}
	return AccessWrite
}

// absPath resolves p against the cwd or the directory open as dirfd. It
// fails when that directory has no absolute path, e.g. a socket fd.
func (d *Decider) absPath(pid, dirfd int, p string) (string, bool) {
	if path.IsAbs(p) {
		return path.Clean(p), true
	}
	var dir string
	if dirfd == unix.AT_FDCWD {
		cwd := d.cwd
		if cwd == nil {
			cwd = procCwd
		}
		dir = cwd(pid)
	} else {
		fdPath := d.fdPath
		if fdPath == nil {
			fdPath = procFd
		}
		dir = fdPath(pid, dirfd)
	}
	if !path.IsAbs(dir) {
		return p, false
	}
	return path.Join(dir, p), true
}

func procCwd(pid int) string {
	return procLink(fmt.Sprintf("/proc/%d/cwd", pid))
}

func procFd(pid, fd int) string {
	if fd < 0 {
		return ""
	}
	return procLink(fmt.Sprintf("/proc/%d/fd/%d", pid, fd))
}

func procLink(name string) string {
	s, err := os.Readlink(name)
	if err != nil {
		return ""
	}
	return s
}

// PathSyscalls returns the names of the file access syscalls checked
// against Files
func PathSyscalls() []string {
	names := make([]string, 0, len(pathSyscalls))
	for n := range pathSyscalls {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
