package callconv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/typthon/rvm-toolchain/pkg/ir"
	"github.com/typthon/rvm-toolchain/pkg/isa"
)

func TestAssignParametersScalarsUseARegisters(t *testing.T) {
	params := []ir.Param{{ID: 0, Typ: ir.I16Type{}}, {ID: 1, Typ: ir.I16Type{}}}
	locs := AssignParameters(params)
	require.Equal(t, isa.A0, locs[0].AddrReg)
	require.Equal(t, isa.A1, locs[1].AddrReg)
	require.False(t, locs[0].IsPointer)
}

func TestAssignParametersFatPointerConsumesTwoRegisters(t *testing.T) {
	params := []ir.Param{
		{ID: 0, Typ: ir.PtrType{Elem: ir.I16Type{}}},
		{ID: 1, Typ: ir.I16Type{}},
	}
	locs := AssignParameters(params)
	require.True(t, locs[0].IsPointer)
	require.Equal(t, isa.A0, locs[0].AddrReg)
	require.Equal(t, isa.A1, locs[0].BankReg)
	require.Equal(t, isa.A2, locs[1].AddrReg)
}

func TestAssignParametersOverflowToStack(t *testing.T) {
	params := []ir.Param{
		{ID: 0, Typ: ir.I16Type{}},
		{ID: 1, Typ: ir.I16Type{}},
		{ID: 2, Typ: ir.I16Type{}},
		{ID: 3, Typ: ir.I16Type{}},
		{ID: 4, Typ: ir.I16Type{}},
	}
	locs := AssignParameters(params)
	require.False(t, locs[3].IsStack)
	require.True(t, locs[4].IsStack)
	require.Equal(t, 0, locs[4].StackSlot)
}

func TestPrologueEpilogueRoundTrip(t *testing.T) {
	pro := Prologue(3)
	require.NotEmpty(t, pro)
	epi := Epilogue(3, 0, nil)
	require.NotEmpty(t, epi)
	last := epi[len(epi)-1]
	require.Equal(t, isa.OpJalr, last.Op)
}
