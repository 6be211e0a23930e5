// Package globals implements the global manager: it assigns each module
// global a word address in a dedicated global bank and, for the main
// module only, emits a one-time `_init_globals` routine.
package globals

import (
	"github.com/typthon/rvm-toolchain/pkg/ir"
	"github.com/typthon/rvm-toolchain/pkg/isa"
)

// InitGlobalsLabel is the well-known label emitted in exactly one module
// per program: the one defining main.
const InitGlobalsLabel = "_init_globals"

// Manager assigns addresses to module globals within the global bank.
type Manager struct {
	addresses map[string]uint16
	next      uint16
}

func NewManager() *Manager {
	return &Manager{addresses: make(map[string]uint16)}
}

// Allocate assigns addresses to every global in the module in declaration
// order, growing by each global's type size.
func (m *Manager) Allocate(mod *ir.Module) {
	for _, g := range mod.Globals {
		m.addresses[g.Name] = m.next
		size := g.Typ.Size()
		if size == 0 {
			size = 1
		}
		m.next += uint16(size)
	}
}

// Address returns the assigned address for a global, and whether it was found.
func (m *Manager) Address(name string) (uint16, bool) {
	addr, ok := m.addresses[name]
	return addr, ok
}

// EmitInitGlobals builds the `_init_globals` body: for each global with a
// constant initializer, `LI` the value into a scratch register then
// `STORE` it at (GP, address). Called only for the main module.
// `_init_globals` is the program's entry routine, not a callable
// function: it never returns to a caller, and the lowering driver
// appends the jump into `main` that follows this code.
func EmitInitGlobals(mod *ir.Module, m *Manager) []isa.Instruction {
	var code []isa.Instruction
	for _, g := range mod.Globals {
		if g.Initializer == nil {
			continue
		}
		c, ok := g.Initializer.(ir.Constant)
		if !ok {
			continue
		}
		addr, ok := m.Address(g.Name)
		if !ok {
			continue
		}
		code = append(code,
			isa.LoadImm(isa.T0, uint16(c.Val)),
			isa.LoadImm(isa.SC, addr),
			isa.StoreMem(isa.T0, isa.GP, isa.SC),
		)
	}
	return code
}

// ShouldEmitInitGlobals reports whether this module is responsible for the
// program-wide globals-initialization routine: only the module defining
// main is, avoiding duplicate labels at link time.
func ShouldEmitInitGlobals(mod *ir.Module) bool {
	return mod.IsMain()
}
