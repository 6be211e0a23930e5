package globals

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/typthon/rvm-toolchain/pkg/ir"
)

func TestAllocateAssignsGrowingAddresses(t *testing.T) {
	mod := &ir.Module{
		Functions: []*ir.Function{{Name: "main"}},
		Globals: []*ir.GlobalVariable{
			{Name: "g1", Typ: ir.I16Type{}, Initializer: ir.Constant{Val: 42, Typ: ir.I16Type{}}},
			{Name: "g2", Typ: ir.I16Type{}},
		},
	}
	m := NewManager()
	m.Allocate(mod)

	a1, ok := m.Address("g1")
	require.True(t, ok)
	a2, ok := m.Address("g2")
	require.True(t, ok)
	require.Greater(t, a2, a1)
}

func TestShouldEmitInitGlobalsOnlyForMain(t *testing.T) {
	mainMod := &ir.Module{Functions: []*ir.Function{{Name: "main"}}}
	require.True(t, ShouldEmitInitGlobals(mainMod))

	libMod := &ir.Module{Functions: []*ir.Function{{Name: "helper"}}}
	require.False(t, ShouldEmitInitGlobals(libMod))
}

func TestEmitInitGlobalsStoresConstantInitializers(t *testing.T) {
	mod := &ir.Module{
		Functions: []*ir.Function{{Name: "main"}},
		Globals: []*ir.GlobalVariable{
			{Name: "g", Typ: ir.I16Type{}, Initializer: ir.Constant{Val: 42, Typ: ir.I16Type{}}},
		},
	}
	m := NewManager()
	m.Allocate(mod)
	code := EmitInitGlobals(mod, m)
	require.NotEmpty(t, code)
}
