package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"github.com/criyle/go-systrace/pkg/seccomp"
	"github.com/criyle/go-systrace/ptracer"
)

type mapResolver map[string]int

func (m mapResolver) SyscallName(compat bool, nr int) string {
	for n, v := range m {
		if v == nr {
			return n
		}
	}
	return "unknown-" + strconv.Itoa(nr)
}

func (m mapResolver) SyscallNumber(compat bool, name string) (int, bool) {
	nr, ok := m[name]
	return nr, ok
}

var testResolver = mapResolver{
	"read": 0, "write": 1, "open": 2, "stat": 4, "socket": 41, "clone": 56,
	"fork": 57, "execve": 59, "kill": 62, "openat": 257,
}

func TestParseDefaults(t *testing.T) {
	c, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if c.Policy.Default != "ask" || c.Policy.Emulation != EmulationLinux64 || !c.Runner.Seccomp {
		t.Errorf("defaults = %+v", c)
	}
	if !c.Tracer.ForceEndWithoutENOSYS || c.Log.Level != "info" {
		t.Errorf("defaults = %+v", c)
	}
}

func TestParse(t *testing.T) {
	c, err := Parse(strings.NewReader(`
log: {level: debug, file: /tmp/systrace.log}
policy:
  default: permit
  permit: [read]
  deny: [{name: socket, errno: EACCES}, {name: kill}]
  result: [execve]
  count: {fork: 3}
files:
  read: [/etc/passwd]
runner:
  seccomp: false
  workdir: /work
  limits: {cpu: 2, data: 256m, open_files: 64, file_size: 1024}
tracer: {force_end_without_enosys: false}
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Log.Level != "debug" || c.Log.MaxBackups != 3 {
		t.Errorf("log = %+v", c.Log)
	}
	if len(c.Policy.Deny) != 2 || c.Policy.Count["fork"] != 3 {
		t.Errorf("policy = %+v", c.Policy)
	}
	if c.Runner.Seccomp || c.Runner.WorkDir != "/work" || c.Tracer.ForceEndWithoutENOSYS {
		t.Errorf("runner %+v tracer %+v", c.Runner, c.Tracer)
	}
	if l := c.Runner.Limits; l.CPU != 2 || l.Data != 256<<20 || l.OpenFiles != 64 || l.FileSize != 1024 {
		t.Errorf("limits = %+v", l)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "policy: {defualt: permit}"},
		{"bad level", "log: {level: loud}"},
		{"bad default", "policy: {default: maybe}"},
		{"bad errno", "policy: {deny: [{name: socket, errno: ENOTANERRNO}]}"},
		{"bad default errno", "policy: {default: deny, default_errno: EWHAT}"},
		{"bad emulation", "policy: {emulation: linux16}"},
		{"bad preset", "policy: {preset: paranoid}"},
		{"denied and asked", "policy: {deny: [{name: open}], ask: [open]}"},
		{"negative count", "policy: {count: {fork: -1}}"},
		{"seccomp with compat", "policy: {emulation: both}"},
		{"negative rotation", "log: {max_size_mb: -1}"},
		{"bad size", "runner: {limits: {data: 12q}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.yaml)); err == nil {
				t.Errorf("Parse(%q) succeeded", tt.yaml)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "systrace.yaml")
	if err := os.WriteFile(path, []byte("policy: {default: deny}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Policy.Verdict(); v != ptracer.Deny(syscall.EPERM) {
		t.Errorf("verdict = %v", v)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file loaded")
	}
}

func TestPolicyApply(t *testing.T) {
	c := Default()
	c.Policy.Default = "deny"
	c.Policy.Permit = []string{"read", "write", "socket"}
	c.Policy.Deny = []DenyRule{{Name: "socket", Errno: "EACCES"}}
	c.Policy.Count = map[string]int{"fork": 2}
	c.Policy.Result = []string{"execve"}

	policies := ptracer.NewPolicyTable()
	h, _ := policies.New()
	if err := c.Apply(policies, h, testResolver); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		want ptracer.Verdict
	}{
		{"read", ptracer.Permit()},
		{"socket", ptracer.Deny(syscall.EACCES)},
		{"fork", ptracer.Ask()},
		{"execve", ptracer.Ask()},
		{"open", ptracer.Deny(syscall.EPERM)},
	}
	for _, tt := range tests {
		if v, _ := policies.Rule(h, testResolver[tt.name]); v != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, v, tt.want)
		}
	}

	c.Files.Read = []string{"/etc/"}
	c.Policy.Deny = append(c.Policy.Deny, DenyRule{Name: "stat"})
	if err := c.Apply(policies, h, testResolver); err != nil {
		t.Fatal(err)
	}
	if v, _ := policies.Rule(h, testResolver["open"]); v != ptracer.Ask() {
		t.Errorf("open with file rules = %v, want ask", v)
	}
	if v, _ := policies.Rule(h, testResolver["stat"]); v.Kind != ptracer.VerdictDeny {
		t.Errorf("denied stat with file rules = %v", v)
	}

	c.Policy.Permit = []string{"no_such_call"}
	if err := c.Apply(policies, h, testResolver); err == nil {
		t.Error("unknown syscall applied")
	}
}

func TestPresetSafe(t *testing.T) {
	c := Default()
	c.Policy.Preset = PresetSafe
	policies := ptracer.NewPolicyTable()
	h, _ := policies.New()
	if err := c.Policy.Apply(policies, h, testResolver); err != nil {
		t.Fatal(err)
	}
	if v, _ := policies.Rule(h, testResolver["read"]); v != ptracer.Permit() {
		t.Errorf("read = %v", v)
	}
	if v, _ := policies.Rule(h, testResolver["socket"]); v != ptracer.Ask() {
		t.Errorf("socket = %v", v)
	}
}

func TestPolicySeccomp(t *testing.T) {
	c := Default()
	c.Policy.Deny = []DenyRule{{Name: "socket", Errno: "EACCES"}, {Name: "kill"}}
	b, err := c.Policy.Seccomp()
	if err != nil {
		t.Fatal(err)
	}
	if b.Default != seccomp.ActionAllow {
		t.Errorf("default = %v", b.Default)
	}
	if a := b.Actions["socket"]; a.Action() != seccomp.ActionErrno || a.ReturnCode() != int16(syscall.EACCES) {
		t.Errorf("socket = %v", a)
	}
	if a := b.Actions["kill"]; a.ReturnCode() != int16(syscall.EPERM) {
		t.Errorf("kill = %v", a)
	}
}

func TestAudit(t *testing.T) {
	c := Default()
	c.Policy.Default = "permit"
	c.Policy.Count = map[string]int{"fork": 1}
	c.Policy.Result = []string{"execve"}
	d, err := c.Audit(nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Files != nil || d.Compat || d.Default != ptracer.Permit() || !d.Results["execve"] {
		t.Errorf("decider = %+v", d)
	}
	if counted, _ := d.Counter.Check("fork"); !counted {
		t.Error("fork not counted")
	}

	c.Files = Files{Defaults: true, Write: []string{"out"}}
	c.Runner.WorkDir = "/work"
	if d, err = c.Audit(nil); err != nil {
		t.Fatal(err)
	}
	if !d.Files.Read.Contains("/etc/ld.so.cache") || !d.Files.Write.Contains("/dev/null") {
		t.Error("default files missing")
	}
	if !d.Files.Write.Contains("/work/out/a") || !d.Files.Read.Contains("/work") {
		t.Error("work directory files missing")
	}
}

func TestNewLogger(t *testing.T) {
	var sb strings.Builder
	logger, closer, err := Log{Level: "warn"}.NewLogger(false, &sb)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	closer.Close()
	if strings.Contains(sb.String(), "hidden") || !strings.Contains(sb.String(), "shown") {
		t.Errorf("output = %q", sb.String())
	}

	sb.Reset()
	logger, _, _ = Log{Level: "warn"}.NewLogger(true, &sb)
	logger.Debug("verbose")
	if !strings.Contains(sb.String(), "verbose") {
		t.Error("verbose did not lower the level")
	}

	path := filepath.Join(t.TempDir(), "systrace.log")
	logger, closer, err = Log{Level: "info", File: path, MaxSizeMB: 1}.NewLogger(false, &sb)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("to file", "pid", 7)
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rec map[string]any
	if err := json.Unmarshal(b, &rec); err != nil {
		t.Fatalf("log line %q: %v", b, err)
	}
	if rec["msg"] != "to file" || rec["pid"] != float64(7) {
		t.Errorf("record = %v", rec)
	}
}

func TestNewRunner(t *testing.T) {
	c := Default()
	c.Runner.WorkDir = "/work"
	c.Runner.Env = []string{"PATH=/bin"}
	c.Runner.Limits = Limits{CPU: 1, AddressSpace: 1 << 30, DisableCore: true}

	r, err := c.NewRunner([]string{"/bin/true"})
	if err != nil {
		t.Fatal(err)
	}
	if !r.Ptrace || r.WorkDir != "/work" || len(r.Env) != 1 || len(r.Files) != 3 {
		t.Errorf("runner = %+v", r)
	}
	if len(r.RLimits) != 3 {
		t.Errorf("rlimits = %v", r.RLimits)
	}
	if r.Seccomp != nil {
		t.Error("prefilter without deny rules")
	}

	c.Policy.Deny = []DenyRule{{Name: "socket"}}
	if r, err = c.NewRunner([]string{"/bin/true"}); err != nil {
		t.Fatal(err)
	}
	if r.Seccomp == nil || r.Seccomp.Len == 0 {
		t.Error("deny rules not loaded as prefilter")
	}

	c.Runner.Seccomp = false
	if r, err = c.NewRunner([]string{"/bin/true"}); err != nil {
		t.Fatal(err)
	}
	if r.Seccomp != nil {
		t.Error("prefilter loaded while disabled")
	}
}

func TestErrno(t *testing.T) {
	tests := []struct {
		name string
		want syscall.Errno
		err  bool
	}{
		{name: "EPERM", want: syscall.EPERM},
		{name: "EACCES", want: syscall.EACCES},
		{name: "ENOSYS", want: syscall.ENOSYS},
		{name: "EAGAIN", want: syscall.EAGAIN},
		{name: "eperm", err: true},
		{name: "ENOTANERRNO", err: true},
		{name: "", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Errno(tt.name)
			if (err != nil) != tt.err {
				t.Fatalf("Errno(%q) err = %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("Errno(%q) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}
