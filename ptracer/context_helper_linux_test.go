package ptracer

import (
	"os"
	"runtime"
	"strings"
	"testing"
	"unsafe"
)

func TestHasNull(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"empty buffer", []byte{}, false},
		{"no null", []byte("hello"), false},
		{"null at start", []byte{0, 1, 2, 3}, true},
		{"null at end", []byte{1, 2, 3, 0}, true},
		{"null in middle", []byte{1, 0, 3, 4}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasNull(tt.data); got != tt.want {
				t.Errorf("hasNull() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClen(t *testing.T) {
	tests := []struct {
		data []byte
		want int
	}{
		{[]byte("abc\x00def"), 3},
		{[]byte("\x00"), 0},
		{[]byte("abc"), 3},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := clen(tt.data); got != tt.want {
			t.Errorf("clen(%q) = %d, want %d", tt.data, got, tt.want)
		}
	}
}

// TestVmReadStr reads strings out of this process, placed at different
// offsets from a page boundary
func TestVmReadStr(t *testing.T) {
	mem := make([]byte, 3*pageSize)
	base := uintptr(unsafe.Pointer(&mem[0]))
	// first page boundary inside mem
	boundary := int((base+uintptr(pageSize)-1)&^uintptr(pageSize-1) - base)

	tests := []struct {
		name   string
		offset int
		str    string
		buff   int
	}{
		{"aligned", boundary, "/etc/passwd", 64},
		{"unaligned", boundary + 1, "/usr/lib", 64},
		{"cross page boundary", boundary + pageSize - 4, "/tmp/crossing", 64},
		{"buffer smaller than string", boundary + 10, strings.Repeat("a", 100), 16},
	}
	pid := os.Getpid()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := range mem {
				mem[i] = 0xff
			}
			copy(mem[tt.offset:], tt.str)
			mem[tt.offset+len(tt.str)] = 0

			buff := make([]byte, tt.buff)
			if err := vmReadStr(pid, base+uintptr(tt.offset), buff); err != nil {
				t.Fatalf("vmReadStr: %v", err)
			}
			want := tt.str
			if len(want) > tt.buff {
				want = want[:tt.buff]
			}
			if got := string(buff[:clen(buff)]); got != want {
				t.Errorf("read %q, want %q", got, want)
			}
		})
	}
	runtime.KeepAlive(mem)
}

func TestPtraceReadString(t *testing.T) {
	s := []byte("/proc/self/status\x00")
	got, err := Ptrace{}.ReadString(os.Getpid(), uint64(uintptr(unsafe.Pointer(&s[0]))))
	runtime.KeepAlive(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != "/proc/self/status" {
		t.Errorf("ReadString = %q", got)
	}
}
