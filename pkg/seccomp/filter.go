// Package seccomp compiles static syscall verdicts into a seccomp BPF
// filter that a tracee loads before exec
package seccomp

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/net/bpf"
)

// Filter is the BPF seccomp filter value
type Filter []byte

// Instructions returns the raw instructions of the filter
func (f Filter) Instructions() ([]bpf.RawInstruction, error) {
	if len(f)%8 != 0 {
		return nil, fmt.Errorf("filter length %d is not a multiple of 8", len(f))
	}
	raw := make([]bpf.RawInstruction, len(f)/8)
	for i := range raw {
		b := f[i*8:]
		raw[i] = bpf.RawInstruction{
			Op: binary.NativeEndian.Uint16(b[0:]),
			Jt: b[2],
			Jf: b[3],
			K:  binary.NativeEndian.Uint32(b[4:]),
		}
	}
	return raw, nil
}

// Disassemble decodes the filter for display
func (f Filter) Disassemble() ([]bpf.Instruction, error) {
	raw, err := f.Instructions()
	if err != nil {
		return nil, err
	}
	insts, ok := bpf.Disassemble(raw)
	if !ok {
		return insts, fmt.Errorf("filter contains undecodable instructions")
	}
	return insts, nil
}

func newFilter(raw []bpf.RawInstruction) Filter {
	f := make(Filter, len(raw)*8)
	for i, r := range raw {
		b := f[i*8:]
		binary.NativeEndian.PutUint16(b[0:], r.Op)
		b[2] = r.Jt
		b[3] = r.Jf
		binary.NativeEndian.PutUint32(b[4:], r.K)
	}
	return f
}
