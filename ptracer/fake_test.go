package ptracer

import (
	"errors"
	"strconv"
	"syscall"
	"testing"

	"golang.org/x/sys/unix"
)

var (
	numbers64 = map[string]int{
		"read": 0, "open": 2, "getpid": 39, "socket": 41, "clone": 56, "fork": 57,
		"vfork": 58, "execve": 59, "exit": 60, "wait4": 61, "setpgid": 109,
		"setsid": 112, "clone3": 435,
	}
	numbers32 = map[string]int{
		"exit": 1, "fork": 2, "read": 3, "waitpid": 7, "getpid": 20, "clone": 120,
	}
)

type fakeResolver struct{}

func (fakeResolver) table(compat bool) map[string]int {
	if compat {
		return numbers32
	}
	return numbers64
}

func (r fakeResolver) SyscallName(compat bool, nr int) string {
	for name, n := range r.table(compat) {
		if n == nr {
			return name
		}
	}
	return "unknown-" + strconv.Itoa(nr)
}

func (r fakeResolver) SyscallNumber(compat bool, name string) (int, bool) {
	nr, ok := r.table(compat)[name]
	return nr, ok
}

type directive struct {
	op  string
	pid int
	sig syscall.Signal
}

// fakeKernel keeps one register file per pid and logs every directive
type fakeKernel struct {
	regs     map[int]Regs
	mem      map[uint64]uint32
	strs     map[uint64]string
	gone     map[int]bool
	log      []directive
	setRegs  int
	elevated []int
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{
		regs: make(map[int]Regs),
		mem:  make(map[uint64]uint32),
		strs: make(map[uint64]string),
		gone: make(map[int]bool),
	}
}

func (k *fakeKernel) GetRegs(pid int) (Regs, error) {
	r, ok := k.regs[pid]
	if !ok || k.gone[pid] {
		return Regs{}, syscall.ESRCH
	}
	return r, nil
}

func (k *fakeKernel) SetRegs(pid int, r *Regs) error {
	if k.gone[pid] {
		return syscall.ESRCH
	}
	k.regs[pid] = *r
	k.setRegs++
	return nil
}

func (k *fakeKernel) PokeStatus(pid int, addr uint64, status uint32) error {
	k.mem[addr] = status
	return nil
}

func (k *fakeKernel) ReadString(pid int, addr uint64) (string, error) {
	s, ok := k.strs[addr]
	if !ok {
		return "", syscall.EFAULT
	}
	return s, nil
}

func (k *fakeKernel) Resume(pid int, sig syscall.Signal) error {
	k.log = append(k.log, directive{"resume", pid, sig})
	if k.gone[pid] {
		return syscall.ESRCH
	}
	return nil
}

func (k *fakeKernel) Detach(pid int) error {
	k.log = append(k.log, directive{"detach", pid, 0})
	return nil
}

func (k *fakeKernel) Kill(pid int) error {
	k.log = append(k.log, directive{"kill", pid, 0})
	return nil
}

func (k *fakeKernel) Elevate(pid int, e *Elevation) error {
	k.elevated = append(k.elevated, pid)
	return ErrElevationUnsupported
}

// enter puts pid at the entry of a syscall
func (k *fakeKernel) enter(pid int, conv CallConv, nr int, args ...uint64) {
	r := Regs{Conv: conv, Nr: int64(nr), Ret: -int64(syscall.ENOSYS)}
	for i, a := range args {
		r.SetArg(i, a)
	}
	k.regs[pid] = r
}

// exit completes the syscall of pid with ret
func (k *fakeKernel) exit(pid int, ret int64) {
	r := k.regs[pid]
	r.Ret = ret
	k.regs[pid] = r
}

func (k *fakeKernel) count(op string, pid int) int {
	n := 0
	for _, d := range k.log {
		if d.op == op && d.pid == pid {
			n++
		}
	}
	return n
}

type fakeDecider struct {
	answer  Answer
	asks    []Request
	results []SyscallResult
}

func (d *fakeDecider) Ask(req *Request) Answer {
	d.asks = append(d.asks, *req)
	return d.answer
}

func (d *fakeDecider) Result(res *SyscallResult) {
	d.results = append(d.results, *res)
}

type fakeObserver struct {
	children [][2]int
	gone     []int
	freed    []int
	denied   []string
}

func (o *fakeObserver) ChildRegistered(parent, child int) {
	o.children = append(o.children, [2]int{parent, child})
}
func (o *fakeObserver) EntityGone(pid int) { o.gone = append(o.gone, pid) }
func (o *fakeObserver) PolicyFreed(h int)  { o.freed = append(o.freed, h) }
func (o *fakeObserver) Denied(pid int, name string, errno uint16) {
	o.denied = append(o.denied, name+":"+strconv.Itoa(int(errno)))
}

type testEnv struct {
	t   *testing.T
	tr  *Tracer
	k   *fakeKernel
	d   *fakeDecider
	obs *fakeObserver
}

const rootPid = 100

// newEnv registers rootPid under a policy permitting every syscall
// except the ones listed in asks
func newEnv(t *testing.T, asks ...string) *testEnv {
	k := newFakeKernel()
	d := &fakeDecider{answer: Answer{Verdict: Permit()}}
	obs := &fakeObserver{}
	tr := New(k, d, fakeResolver{})
	tr.Observer = obs
	h, err := tr.Policies.New()
	if err != nil {
		t.Fatal(err)
	}
	for nr := 0; nr < MaxSyscalls; nr++ {
		tr.Policies.SetRule(h, nr, Permit())
	}
	for _, name := range asks {
		tr.Policies.SetRule(h, numbers64[name], Ask())
	}
	if err := tr.Register(rootPid, h); err != nil {
		t.Fatal(err)
	}
	return &testEnv{t: t, tr: tr, k: k, d: d, obs: obs}
}

func (env *testEnv) handle(ev Event) {
	env.t.Helper()
	if err := env.tr.Handle(ev); err != nil {
		env.t.Fatalf("Handle(%+v): %v", ev, err)
	}
}

func (env *testEnv) entity(pid int) *Entity {
	env.t.Helper()
	e, ok := env.tr.Entities.Lookup(pid)
	if !ok {
		env.t.Fatalf("pid %d not tracked", pid)
	}
	return e
}

// call runs one syscall of pid from entry to exit
func (env *testEnv) call(pid int, name string, ret int64, args ...uint64) {
	env.t.Helper()
	env.enter(pid, name, args...)
	env.k.exit(pid, ret)
	env.handle(Event{Kind: EventSyscall, Pid: pid})
}

func (env *testEnv) enter(pid int, name string, args ...uint64) {
	env.t.Helper()
	nr, ok := numbers64[name]
	if !ok {
		env.t.Fatalf("no number for %s", name)
	}
	env.k.enter(pid, Linux64, nr, args...)
	env.handle(Event{Kind: EventSyscall, Pid: pid})
}

// spawn makes parent create child through a fork family call and
// delivers the child's initial SIGSTOP
func (env *testEnv) spawn(parent, child int, name string, flags uint64) {
	env.t.Helper()
	env.call(parent, name, int64(child), flags)
	env.handle(Event{Kind: EventSignal, Pid: child, Signal: unix.SIGSTOP})
}

func (env *testEnv) exit(pid int, status uint32) {
	env.t.Helper()
	env.handle(Event{Kind: EventExit, Pid: pid, Status: status})
}

func isFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
