package vm

import (
	"fmt"
	"strings"

	"github.com/typthon/rvm-toolchain/pkg/isa"
)

// dump prints the full register file plus a data-section memory window to
// stdout on a non-debug BRK, in the canonical register enumeration order.
// The window spans isa.DataSectionOffset through bank_size-1 of bank 0,
// since that is where a loaded program's globals live.
func (v *VM) dump() {
	fmt.Println(v.DumpString())
}

// DumpString formats the same dump produced by a non-debug BRK as a
// string; dump prints it, and tests inspect it directly.
func (v *VM) DumpString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- BRK at bank %d pc %d (%s) ---\n",
		v.Regs.Get(isa.PCB), v.Regs.Get(isa.PC), v.symbolFor(v.currentLinear()))

	regs := v.Regs.Dump()
	for i := 0; i < isa.NumRegs; i++ {
		fmt.Fprintf(&b, "%-4s = 0x%04X\n", isa.Reg(i).String(), regs[i])
	}

	fmt.Fprintf(&b, "--- data section (bank 0, from %d) ---\n", isa.DataSectionOffset)
	for addr := uint16(isa.DataSectionOffset); addr < v.Mem.BankSize; addr++ {
		word, ok := v.Mem.Read(0, addr)
		if !ok || word == 0 {
			continue
		}
		fmt.Fprintf(&b, "[%d] = 0x%04X\n", addr, word)
	}
	return b.String()
}

func (v *VM) currentLinear() int {
	return compose(v.Regs.Get(isa.PCB), v.Regs.Get(isa.PC), v.Mem.BankSize)
}

// symbolFor looks up the nearest named debug symbol at or before linear,
// tolerating an absent or sparse DEBUG section.
func (v *VM) symbolFor(linear int) string {
	if v.symbols == nil {
		return "?"
	}
	if name, ok := v.symbols[linear]; ok {
		return name
	}
	best, bestIdx := "?", -1
	for idx, name := range v.symbols {
		if idx <= linear && idx > bestIdx {
			best, bestIdx = name, idx
		}
	}
	return best
}
