// Package sysname resolves syscall numbers to names and back for the
// native table and, on amd64, the 32-bit compat table
package sysname

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/elastic/go-seccomp-bpf/arch"
)

// Table is the syscall table of one architecture
type Table struct {
	Arch    string
	names   map[int]string
	numbers map[string]int
}

// NewTable loads the table of the named GOARCH
func NewTable(goarch string) (*Table, error) {
	info, err := arch.GetInfo(goarch)
	if err != nil {
		return nil, err
	}
	return newTable(info.Name, info.SyscallNumbers), nil
}

func newTable(name string, names map[int]string) *Table {
	t := &Table{
		Arch:    name,
		names:   make(map[int]string, len(names)),
		numbers: make(map[string]int, len(names)),
	}
	for nr, n := range names {
		t.names[nr] = n
		t.numbers[n] = nr
	}
	return t
}

// Name returns the name of nr, or "unknown-N"
func (t *Table) Name(nr int) string {
	if n, ok := t.names[nr]; ok {
		return n
	}
	return "unknown-" + strconv.Itoa(nr)
}

// Number returns the number of a syscall name. "unknown-N" names parse
// back to N.
func (t *Table) Number(name string) (int, bool) {
	if nr, ok := t.numbers[name]; ok {
		return nr, true
	}
	if s := strings.TrimPrefix(name, "unknown-"); s != name {
		if nr, err := strconv.Atoi(s); err == nil && nr >= 0 {
			return nr, true
		}
	}
	return 0, false
}

// Names returns every known name in syscall number order
func (t *Table) Names() []string {
	nrs := make([]int, 0, len(t.names))
	for nr := range t.names {
		nrs = append(nrs, nr)
	}
	sort.Ints(nrs)
	names := make([]string, len(nrs))
	for i, nr := range nrs {
		names[i] = t.names[nr]
	}
	return names
}

// Resolver holds the native and compat tables
type Resolver struct {
	Native *Table
	Compat *Table // nil without a compat ABI
}

// New loads the tables for the running architecture
func New() (*Resolver, error) {
	native, err := NewTable(runtime.GOARCH)
	if err != nil {
		return nil, fmt.Errorf("native syscall table: %w", err)
	}
	r := &Resolver{Native: native}
	if runtime.GOARCH == "amd64" {
		if r.Compat, err = NewTable("386"); err != nil {
			return nil, fmt.Errorf("compat syscall table: %w", err)
		}
	}
	return r, nil
}

// Table returns the native or compat table
func (r *Resolver) Table(compat bool) (*Table, error) {
	if !compat {
		return r.Native, nil
	}
	if r.Compat == nil {
		return nil, fmt.Errorf("no compat syscall table on %s", r.Native.Arch)
	}
	return r.Compat, nil
}

// SyscallName implements ptracer.Resolver
func (r *Resolver) SyscallName(compat bool, nr int) string {
	t, err := r.Table(compat)
	if err != nil {
		return "unknown-" + strconv.Itoa(nr)
	}
	return t.Name(nr)
}

// SyscallNumber implements ptracer.Resolver
func (r *Resolver) SyscallNumber(compat bool, name string) (int, bool) {
	t, err := r.Table(compat)
	if err != nil {
		return 0, false
	}
	return t.Number(name)
}
