package ptracer

import "fmt"

// CallConv is the calling convention of a syscall stop
type CallConv int

// Calling conventions on amd64
const (
	Linux64 CallConv = iota
	Linux32
)

// Emulation returns the emulation name used in notifications
func (c CallConv) Emulation() string {
	switch c {
	case Linux64:
		return "linux64"
	case Linux32:
		return "linux"
	}
	return fmt.Sprintf("conv-%d", int(c))
}

// Reg names a general purpose register slot that can carry an argument
type Reg int

// Argument register slots
const (
	RegDI Reg = iota
	RegSI
	RegDX
	Reg10
	Reg8
	Reg9
	RegBX
	RegCX
	RegBP
	numRegs
)

// NumArgs is the number of syscall arguments
const NumArgs = 6

// argRegs maps argument index to register slot per calling convention
var argRegs = [...][NumArgs]Reg{
	Linux64: {RegDI, RegSI, RegDX, Reg10, Reg8, Reg9},
	Linux32: {RegBX, RegCX, RegDX, RegSI, RegDI, RegBP},
}

// Regs is the register image of a syscall stop
type Regs struct {
	Conv CallConv
	Nr   int64 // syscall number (orig_ax)
	Ret  int64 // return value (ax), sign extended
	Gpr  [numRegs]uint64
}

func (r *Regs) argReg(i int) (Reg, error) {
	if int(r.Conv) < 0 || int(r.Conv) >= len(argRegs) {
		return 0, fmt.Errorf("unknown calling convention %d", r.Conv)
	}
	if i < 0 || i >= NumArgs {
		return 0, fmt.Errorf("argument index %d out of range", i)
	}
	return argRegs[r.Conv][i], nil
}

// Arg reads the i-th syscall argument. Arguments of 32-bit calls are
// truncated to 32 bits.
func (r *Regs) Arg(i int) (uint64, error) {
	reg, err := r.argReg(i)
	if err != nil {
		return 0, err
	}
	v := r.Gpr[reg]
	if r.Conv == Linux32 {
		v = uint64(uint32(v))
	}
	return v, nil
}

// SetArg writes the i-th syscall argument
func (r *Regs) SetArg(i int, v uint64) error {
	reg, err := r.argReg(i)
	if err != nil {
		return err
	}
	if r.Conv == Linux32 {
		v = uint64(uint32(v))
	}
	r.Gpr[reg] = v
	return nil
}

// Args returns all six arguments
func (r *Regs) Args() (args [NumArgs]uint64) {
	for i := range args {
		args[i], _ = r.Arg(i)
	}
	return
}
