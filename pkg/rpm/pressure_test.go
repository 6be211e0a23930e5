package rpm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/typthon/rvm-toolchain/pkg/ir"
	"github.com/typthon/rvm-toolchain/pkg/isa"
)

func TestGetRegisterUnknownValueErrors(t *testing.T) {
	m := NewManager(isa.Allocatable, 0)
	_, _, err := m.GetRegister(ir.TempID(99))
	require.Error(t, err)
}

func TestGetRegisterAllocaMaterializes(t *testing.T) {
	m := NewManager(isa.Allocatable, 4)
	m.RegisterAlloca(ir.TempID(1), 2)

	reg, code, err := m.GetRegister(ir.TempID(1))
	require.NoError(t, err)
	require.NotEmpty(t, code)
	require.Contains(t, isa.Allocatable, reg)

	// Resident now; second call promotes to MRU without new code.
	reg2, code2, err := m.GetRegister(ir.TempID(1))
	require.NoError(t, err)
	require.Equal(t, reg, reg2)
	require.Empty(t, code2)
}

func TestSpillSlotReusedOnRepeatedSpill(t *testing.T) {
	m := NewManager([]isa.Reg{isa.T0, isa.T1}, 0)
	m.BindValueToRegister(ir.TempID(1), isa.T0)
	m.BindValueToRegister(ir.TempID(2), isa.T1)

	// Forces eviction of %t1 from T0 (the LRU register) when a third
	// value needs a register.
	m.RegisterAlloca(ir.TempID(3), 0)
	_, _, err := m.GetRegister(ir.TempID(3))
	require.NoError(t, err)

	slotA, spilled := m.spillSlots[ir.TempID(1)]
	require.True(t, spilled)

	// Reload %t1 into T1, make T1 the LRU register again, and force a
	// second eviction of %t1.
	m.FreeRegister(isa.T1)
	_, _, err = m.GetRegister(ir.TempID(1))
	require.NoError(t, err)
	m.BindValueToRegister(ir.TempID(4), isa.T0)
	m.RegisterAlloca(ir.TempID(5), 0)
	_, _, err = m.GetRegister(ir.TempID(5))
	require.NoError(t, err)

	slotB, spilled := m.spillSlots[ir.TempID(1)]
	require.True(t, spilled)
	require.Equal(t, slotA, slotB)
	require.Equal(t, 1, m.SpillCount())
}

func TestSpillAllFreesEveryRegister(t *testing.T) {
	m := NewManager([]isa.Reg{isa.T0, isa.T1}, 0)
	m.BindValueToRegister(ir.TempID(1), isa.T0)
	m.BindValueToRegister(ir.TempID(2), isa.T1)

	code := m.SpillAll()
	require.NotEmpty(t, code)
	require.Empty(t, m.regToValue)
	require.Len(t, m.free, 2)
}

func TestUsedCalleeSavedTracksOnlyAllocated(t *testing.T) {
	m := NewManager(isa.Allocatable, 0)
	m.BindValueToRegister(ir.TempID(1), isa.S0)
	require.Equal(t, []isa.Reg{isa.S0}, m.UsedCalleeSaved())
}

func TestNeedLeafsAndFatPointers(t *testing.T) {
	m := NewManager(isa.Allocatable, 0)
	require.Equal(t, 1, m.Need(ir.Constant{Val: 5, Typ: ir.I16Type{}}))
	require.Equal(t, 2, m.Need(ir.FatPtr{Addr: ir.Constant{Val: 0, Typ: ir.I16Type{}}, Bank: ir.BankStack}))

	m.BindValueToRegister(ir.TempID(7), isa.T0)
	require.Equal(t, 0, m.Need(ir.Temp{ID: 7, Typ: ir.I16Type{}}))
}

func TestOrderPicksHeavierOperandFirst(t *testing.T) {
	lhs := ir.Temp{ID: 1, Typ: ir.I16Type{}}
	rhs := ir.FatPtr{Addr: ir.Constant{Val: 0, Typ: ir.I16Type{}}, Bank: ir.BankStack}

	first, second, swapped, _ := Order(ir.OpSub, lhs, rhs, 1, 2)
	require.Equal(t, rhs, first)
	require.Equal(t, lhs, second)
	require.True(t, swapped, "non-commutative op evaluated out of source order must swap")
}

func TestOrderCommutativeNoSwapNeeded(t *testing.T) {
	lhs := ir.Temp{ID: 1, Typ: ir.I16Type{}}
	rhs := ir.FatPtr{Addr: ir.Constant{Val: 0, Typ: ir.I16Type{}}, Bank: ir.BankStack}

	first, second, swapped, _ := Order(ir.OpAdd, lhs, rhs, 1, 2)
	require.Equal(t, rhs, first)
	require.Equal(t, lhs, second)
	require.False(t, swapped)
}
