package vm

import "github.com/typthon/rvm-toolchain/pkg/isa"

// Registers is the 32-entry register file. R0 always reads as zero
// regardless of writes: after every VM step, R0 == 0.
type Registers struct {
	words [isa.NumRegs]uint16
}

func (r *Registers) Get(reg isa.Reg) uint16 {
	return r.words[reg]
}

func (r *Registers) Set(reg isa.Reg, value uint16) {
	r.words[reg] = value
}

// ZeroR0 re-zeros R0 after every step, regardless of what the step wrote
// to it.
func (r *Registers) ZeroR0() {
	r.words[isa.R0] = 0
}

// Dump returns every register's value in the canonical enumeration order,
// for the BRK debug dump.
func (r *Registers) Dump() [isa.NumRegs]uint16 {
	return r.words
}
