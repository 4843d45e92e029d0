package ptracer

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// code segment selectors of the two syscall ABIs
const (
	cs64 = 0x33
	cs32 = 0x23
)

func fromPtrace(p *unix.PtraceRegs) (Regs, error) {
	var r Regs
	switch p.Cs {
	case cs64:
		r.Conv = Linux64
		r.Nr = int64(p.Orig_rax)
		r.Ret = int64(p.Rax)
	case cs32:
		r.Conv = Linux32
		r.Nr = int64(int32(p.Orig_rax))
		r.Ret = int64(int32(p.Rax))
	default:
		return r, fmt.Errorf("unknown code segment %#x", p.Cs)
	}
	r.Gpr = [numRegs]uint64{
		RegDI: p.Rdi,
		RegSI: p.Rsi,
		RegDX: p.Rdx,
		Reg10: p.R10,
		Reg8:  p.R8,
		Reg9:  p.R9,
		RegBX: p.Rbx,
		RegCX: p.Rcx,
		RegBP: p.Rbp,
	}
	return r, nil
}

func toPtrace(p *unix.PtraceRegs, r *Regs) {
	p.Orig_rax = uint64(r.Nr)
	p.Rax = uint64(r.Ret)
	p.Rdi = r.Gpr[RegDI]
	p.Rsi = r.Gpr[RegSI]
	p.Rdx = r.Gpr[RegDX]
	p.R10 = r.Gpr[Reg10]
	p.R8 = r.Gpr[Reg8]
	p.R9 = r.Gpr[Reg9]
	p.Rbx = r.Gpr[RegBX]
	p.Rcx = r.Gpr[RegCX]
	p.Rbp = r.Gpr[RegBP]
}
