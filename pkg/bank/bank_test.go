package bank

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/typthon/rvm-toolchain/pkg/ir"
	"github.com/typthon/rvm-toolchain/pkg/isa"
)

func TestTableLookupMissingIsError(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Lookup(ir.TempID(3))
	require.Error(t, err)
}

func TestTableBindAndLookup(t *testing.T) {
	tbl := NewTable()
	tbl.Bind(ir.TempID(1), Info{Kind: Stack})
	tbl.Bind(ir.TempID(2), Info{Kind: Register, Reg: isa.A1})

	info, err := tbl.Lookup(ir.TempID(1))
	require.NoError(t, err)
	require.Equal(t, Stack, info.Kind)

	info, err = tbl.Lookup(ir.TempID(2))
	require.NoError(t, err)
	require.Equal(t, Register, info.Kind)
	require.Equal(t, isa.A1, info.Reg)
}

func TestRebindOverwrites(t *testing.T) {
	tbl := NewTable()
	tbl.Bind(ir.TempID(1), Info{Kind: Stack})
	tbl.Bind(ir.TempID(1), Info{Kind: Register, Reg: isa.T0})

	info, err := tbl.Lookup(ir.TempID(1))
	require.NoError(t, err)
	require.Equal(t, Register, info.Kind)
}

func TestFromTag(t *testing.T) {
	info, ok := FromTag(ir.BankStack)
	require.True(t, ok)
	require.Equal(t, Stack, info.Kind)

	_, ok = FromTag(ir.BankMixed)
	require.False(t, ok)
}
