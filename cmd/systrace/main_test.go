package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/criyle/go-systrace/types"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		r    types.Result
		want int
	}{
		{types.Result{Status: types.StatusNormal}, 0},
		{types.Result{Status: types.StatusNonzeroExitStatus, ExitStatus: 3}, 3},
		{types.Result{Status: types.StatusSignalled, ExitStatus: 9}, 137},
		{types.Result{Status: types.StatusDisallowedSyscall}, exitDisallowed},
		{types.Result{Status: types.StatusRunnerError}, exitFailed},
		{types.Result{}, exitFailed},
	}
	for _, tt := range tests {
		if got := exitCode(tt.r); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.r, got, tt.want)
		}
	}
}

func TestRunUsage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
		err  bool
	}{
		{"no command", nil, exitUsage, false},
		{"help", []string{"--help"}, 0, false},
		{"unknown command", []string{"frobnicate"}, exitUsage, true},
		{"unknown flag", []string{"--loud", "run"}, exitUsage, true},
		{"missing config", []string{"--config", "/nonexistent/systrace.yaml", "filter"}, exitUsage, true},
		{"run without program", []string{"run"}, exitUsage, true},
		{"record without program", []string{"record", "--profile", "p.yaml"}, exitUsage, true},
		{"syscalls extra argument", []string{"syscalls", "read"}, exitUsage, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code, err := run(tt.args, &stdout, &stderr)
			if code != tt.code || (err != nil) != tt.err {
				t.Errorf("run(%q) = %d, %v", tt.args, code, err)
			}
		})
	}
}

func TestRunSyscalls(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code, err := run([]string{"syscalls"}, &stdout, &stderr)
	if err != nil || code != 0 {
		t.Fatalf("syscalls = %d, %v: %s", code, err, stderr.String())
	}
	found := false
	for _, line := range strings.Split(stdout.String(), "\n") {
		if strings.HasSuffix(line, "\texecve") {
			found = true
		}
	}
	if !found {
		t.Errorf("execve not listed:\n%s", stdout.String())
	}
}

func TestRunFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "systrace.yaml")
	conf := "policy: {deny: [{name: socket, errno: EACCES}]}\n"
	if err := os.WriteFile(path, []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	code, err := run([]string{"--config", path, "filter"}, &stdout, &stderr)
	if err != nil || code != 0 {
		t.Fatalf("filter = %d, %v: %s", code, err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "ret") {
		t.Errorf("no return instruction in:\n%s", stdout.String())
	}
}
