package audit

import (
	"path/filepath"
	"strings"
)

// PathSet is a hierarchical set of paths. An entry "dir/" matches the
// whole subtree, "dir/*" matches the direct children of dir and any other
// entry matches exactly. "/" matches every path.
type PathSet struct {
	entries map[string]bool
	root    bool
}

// NewPathSet creates an empty set
func NewPathSet() *PathSet {
	return &PathSet{entries: make(map[string]bool)}
}

// Add adds a single entry
func (s *PathSet) Add(name string) {
	if name == "/" {
		s.root = true
		return
	}
	s.entries[name] = true
}

// AddRange adds entries. Relative entries name subtrees of workDir.
func (s *PathSet) AddRange(names []string, workDir string) {
	for _, n := range names {
		if filepath.IsAbs(n) {
			s.Add(n)
		} else {
			s.entries[filepath.Join(workDir, n)+"/"] = true
		}
	}
}

// Contains reports whether name is covered by the set
func (s *PathSet) Contains(name string) bool {
	if s.entries[name] || s.root {
		return true
	}
	level := 0
	for cur := name; cur != ""; cur = dirname(cur) {
		if level == 1 && s.entries[cur+"/*"] {
			return true
		}
		if s.entries[cur+"/"] {
			return true
		}
		level++
	}
	return level == 1 && s.entries["/*"]
}

// Len returns the number of entries
func (s *PathSet) Len() int {
	n := len(s.entries)
	if s.root {
		n++
	}
	return n
}

// Access is the kind of file access a syscall performs
type Access int

// Accesses, each implying the ones before it
const (
	AccessStat Access = iota + 1
	AccessRead
	AccessWrite
)

func (a Access) String() string {
	switch a {
	case AccessStat:
		return "stat"
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	}
	return "none"
}

// Files holds the path sets per access kind
type Files struct {
	Write, Read, Stat *PathSet
}

// NewFiles creates empty path sets
func NewFiles() *Files {
	return &Files{NewPathSet(), NewPathSet(), NewPathSet()}
}

// Grant allows access a on name and stat on every parent directory
func (f *Files) Grant(name string, a Access) {
	switch a {
	case AccessWrite:
		f.Write.Add(name)
	case AccessRead:
		f.Read.Add(name)
	case AccessStat:
		f.Stat.Add(name)
	}
	for name = dirname(name); name != ""; name = dirname(name) {
		f.Stat.Add(name)
	}
}

// Allowed reports whether access a on name is granted, by its path or by
// its resolved path
func (f *Files) Allowed(name string, a Access) bool {
	sets := []*PathSet{f.Write}
	if a <= AccessRead {
		sets = append(sets, f.Read)
	}
	if a <= AccessStat {
		sets = append(sets, f.Stat)
	}
	resolved := realPath(name)
	for _, s := range sets {
		if s.Contains(name) || (resolved != "" && resolved != name && s.Contains(resolved)) {
			return true
		}
	}
	return false
}

// dirname returns path without its last element and slash
func dirname(path string) string {
	if p := strings.LastIndex(path, "/"); p >= 0 {
		return path[:p]
	}
	return ""
}

func realPath(p string) string {
	f, err := filepath.EvalSymlinks(p)
	if err != nil {
		return ""
	}
	return f
}
