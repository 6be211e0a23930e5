// Package rpm implements the register pressure manager: LRU register
// allocation, spill slots, Sethi-Ullman evaluation ordering, alloca
// recomputation and callee-saved tracking.
package rpm

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/typthon/rvm-toolchain/pkg/ir"
	"github.com/typthon/rvm-toolchain/pkg/isa"
)

// SpillSlot indexes a word in the current stack frame reserved for an
// evicted SSA value.
type SpillSlot int

// Manager is the single-threaded, per-function register pressure manager.
// A fresh Manager is created per function by the module lowering driver
// (pkg/lower).
type Manager struct {
	available []isa.Reg

	free []isa.Reg   // FIFO free list
	lru  []isa.Reg   // LRU queue; front (index 0) is least recently used

	regToValue map[isa.Reg]ir.TempID
	valueToReg map[ir.TempID]isa.Reg

	spillSlots    map[ir.TempID]SpillSlot
	nextSpillSlot SpillSlot

	allocaOffsets map[ir.TempID]int

	usedCalleeSaved map[isa.Reg]bool

	localCount int // local-slot count, for spill-slot address materialization
}

// NewManager creates an RPM over the given allocatable register set,
// typically isa.Allocatable. localCount is the function's local-slot
// count (from pkg/lower's compute_alloca_offsets-equivalent pass), used to
// place spill slots after locals in the frame.
func NewManager(available []isa.Reg, localCount int) *Manager {
	free := make([]isa.Reg, len(available))
	copy(free, available)
	return &Manager{
		available:       available,
		free:            free,
		regToValue:      make(map[isa.Reg]ir.TempID),
		valueToReg:      make(map[ir.TempID]isa.Reg),
		spillSlots:      make(map[ir.TempID]SpillSlot),
		allocaOffsets:   make(map[ir.TempID]int),
		usedCalleeSaved: make(map[isa.Reg]bool),
		localCount:      localCount,
	}
}

// RegisterAlloca records the precomputed frame offset of an alloca result.
// Alloca addresses are never spilled as ordinary values; they are always
// recomputed from FP+offset.
func (m *Manager) RegisterAlloca(id ir.TempID, offset int) {
	m.allocaOffsets[id] = offset
}

func (m *Manager) isAlloca(id ir.TempID) (int, bool) {
	off, ok := m.allocaOffsets[id]
	return off, ok
}

// touchMRU moves reg to the most-recently-used end of the LRU queue,
// inserting it if absent.
func (m *Manager) touchMRU(reg isa.Reg) {
	m.removeFromLRU(reg)
	m.lru = append(m.lru, reg)
}

func (m *Manager) removeFromLRU(reg isa.Reg) {
	for i, r := range m.lru {
		if r == reg {
			m.lru = append(m.lru[:i], m.lru[i+1:]...)
			return
		}
	}
}

func (m *Manager) popFree() (isa.Reg, bool) {
	if len(m.free) == 0 {
		return 0, false
	}
	reg := m.free[0]
	m.free = m.free[1:]
	return reg, true
}

// evictLRU picks the least-recently-used in-use register and returns it
// along with the value it currently holds.
func (m *Manager) evictLRU() (isa.Reg, ir.TempID, bool) {
	if len(m.lru) == 0 {
		return 0, 0, false
	}
	reg := m.lru[0]
	m.lru = m.lru[1:]
	val, ok := m.regToValue[reg]
	return reg, val, ok
}

// spillSlotFor returns the slot for id, allocating one on first spill and
// reusing it on every subsequent spill of the same value.
func (m *Manager) spillSlotFor(id ir.TempID) SpillSlot {
	if slot, ok := m.spillSlots[id]; ok {
		return slot
	}
	slot := m.nextSpillSlot
	m.nextSpillSlot++
	m.spillSlots[id] = slot
	return slot
}

// spillOffset computes the frame offset of a spill slot, placed
// immediately after the function's local-variable region.
func (m *Manager) spillOffset(slot SpillSlot) int {
	return m.localCount + int(slot)
}

// evict spills the register's current occupant (if it holds a value worth
// preserving) and returns the instructions to do so, plus frees the
// register's bookkeeping. Alloca addresses are dropped rather than
// spilled: they are simply recomputed on next use.
func (m *Manager) evict(reg isa.Reg) []isa.Instruction {
	val, ok := m.regToValue[reg]
	if !ok {
		return nil
	}
	delete(m.regToValue, reg)
	delete(m.valueToReg, val)

	if _, isAlloca := m.isAlloca(val); isAlloca {
		return nil
	}

	slot := m.spillSlotFor(val)
	offset := m.spillOffset(slot)
	logrus.WithFields(logrus.Fields{"value": val, "reg": reg, "slot": slot}).Debug("rpm: spilling register")
	return []isa.Instruction{
		isa.IType(isa.OpAddi, isa.SC, isa.FP, uint16(offset)),
		isa.StoreMem(reg, isa.SB, isa.SC),
	}
}

// obtain returns a free register if one exists, otherwise evicts the LRU
// victim and returns that register instead, along with any spill code
// that eviction required.
func (m *Manager) obtain() (isa.Reg, []isa.Instruction) {
	if reg, ok := m.popFree(); ok {
		return reg, nil
	}
	reg, _, ok := m.evictLRU()
	if !ok {
		// Register set is tiny but the frame always reserves spill
		// slots, so this should never happen; fail loud rather than
		// silently misallocate.
		panic("rpm: no register available to evict")
	}
	code := m.evict(reg)
	return reg, code
}

func (m *Manager) bind(id ir.TempID, reg isa.Reg) {
	m.regToValue[reg] = id
	m.valueToReg[id] = reg
	m.touchMRU(reg)
	for _, cs := range isa.CalleeSaved {
		if cs == reg {
			m.usedCalleeSaved[reg] = true
		}
	}
}

// GetRegister locates a value that already exists: (a) a resident value
// is promoted to MRU; (b) a known alloca is rematerialized as FP+offset;
// (c) a spilled value is reloaded from its slot. Cases (b) and (c) take a
// register from the free list, or evict the LRU victim when the list is
// empty. A value with none of these origins is an error; registers for
// new values come from Obtain. It returns the register now holding the
// value plus any instructions emitted to put it there.
func (m *Manager) GetRegister(id ir.TempID) (isa.Reg, []isa.Instruction, error) {
	// (a) already resident: promote to MRU.
	if reg, ok := m.valueToReg[id]; ok {
		m.touchMRU(reg)
		return reg, nil, nil
	}

	// (b) known alloca: materialize FP+offset into a register.
	if offset, ok := m.isAlloca(id); ok {
		reg, spillCode := m.obtain()
		var code []isa.Instruction
		code = append(code, spillCode...)
		if offset == 0 {
			code = append(code, isa.RType(isa.OpAdd, reg, isa.FP, isa.R0))
		} else {
			code = append(code, isa.IType(isa.OpAddi, reg, isa.FP, uint16(offset)))
		}
		m.bind(id, reg)
		return reg, code, nil
	}

	// (c) has a spill slot: reload.
	if slot, ok := m.spillSlots[id]; ok {
		reg, spillCode := m.obtain()
		offset := m.spillOffset(slot)
		var code []isa.Instruction
		code = append(code, spillCode...)
		code = append(code,
			isa.IType(isa.OpAddi, isa.SC, isa.FP, uint16(offset)),
			isa.LoadMem(reg, isa.SB, isa.SC),
		)
		m.bind(id, reg)
		return reg, code, nil
	}

	return 0, nil, errors.Errorf("rpm: value %%t%d has no known origin (not resident, alloca, or spilled)", id)
}

// Obtain hands back a register from the free list, or evicts and spills
// the LRU victim when the free list is empty, without binding it to any
// value yet. Lowering uses it for new results, constants and other
// scratch values; GetRegister only locates values that already exist.
// Any spill code the eviction required is returned for the caller to
// splice in first.
func (m *Manager) Obtain() (isa.Reg, []isa.Instruction) {
	return m.obtain()
}

// BindValueToRegister forces id into reg directly, for call-return
// binding (RV0/RV1) and parameter loading, bypassing GetRegister's
// materialize/reload logic. reg is taken off the free list so Obtain
// cannot hand it out while it holds id.
func (m *Manager) BindValueToRegister(id ir.TempID, reg isa.Reg) {
	if old, ok := m.regToValue[reg]; ok && old != id {
		delete(m.valueToReg, old)
	}
	for i, r := range m.free {
		if r == reg {
			m.free = append(m.free[:i], m.free[i+1:]...)
			break
		}
	}
	m.bind(id, reg)
}

// FreeRegister releases reg back to the free list without spilling,
// for use when a value's last use has been reached.
func (m *Manager) FreeRegister(reg isa.Reg) {
	if val, ok := m.regToValue[reg]; ok {
		delete(m.regToValue, reg)
		delete(m.valueToReg, val)
	}
	m.removeFromLRU(reg)
	m.free = append(m.free, reg)
}

// SpillAll conservatively spills every live register ahead of a call and
// returns the combined spill code. Registers remain allocatable afterward
// (freed, not held). Registers are visited in isa.Allocatable order, not
// map iteration order, so the emitted spill sequence is reproducible
// across runs.
func (m *Manager) SpillAll() []isa.Instruction {
	var code []isa.Instruction
	for _, reg := range isa.Allocatable {
		if _, live := m.regToValue[reg]; !live {
			continue
		}
		code = append(code, m.evict(reg)...)
		m.removeFromLRU(reg)
		m.free = append(m.free, reg)
	}
	return code
}

// UsedCalleeSaved returns the callee-saved registers this manager ever
// allocated, for the epilogue to restore exactly these.
func (m *Manager) UsedCalleeSaved() []isa.Reg {
	var out []isa.Reg
	for _, reg := range isa.CalleeSaved {
		if m.usedCalleeSaved[reg] {
			out = append(out, reg)
		}
	}
	return out
}

// SpillCount returns the number of distinct spill slots allocated so far,
// for frame-size computation.
func (m *Manager) SpillCount() int {
	return int(m.nextSpillSlot)
}
