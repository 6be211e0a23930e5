package linker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/typthon/rvm-toolchain/pkg/binary"
	"github.com/typthon/rvm-toolchain/pkg/ir"
	"github.com/typthon/rvm-toolchain/pkg/isa"
)

func buildMainReturningConstant(val int64) *ir.Module {
	b := ir.NewBuilder("m")
	b.CreateFunction("main", ir.I16Type{}, false, false)
	b.CreateBlock("entry")
	_ = b.BuildReturn(ir.Constant{Val: val, Typ: ir.I16Type{}})
	_ = b.FinishFunction()
	return b.Module()
}

func TestLinkResolvesMainEntryPoint(t *testing.T) {
	mod := buildMainReturningConstant(7)
	l := New(256)

	img, err := l.Link(mod)
	require.NoError(t, err)
	require.NotEmpty(t, img.Instructions)
	require.Equal(t, uint16(256), img.BankSize)

	decoded, err := binary.Decode(binary.Encode(img))
	require.NoError(t, err)
	require.Equal(t, img.EntryPoint, decoded.EntryPoint)
	require.Equal(t, img.Instructions, decoded.Instructions)
}

func TestLinkUndefinedEntrySymbolFails(t *testing.T) {
	b := ir.NewBuilder("m")
	b.CreateFunction("not_main", ir.VoidType{}, false, false)
	b.CreateBlock("entry")
	_ = b.BuildReturn(nil)
	_ = b.FinishFunction()

	l := New(256)
	_, err := l.Link(b.Module())
	require.Error(t, err)
}

func TestLinkEmitsDebugSymbolsWhenRequested(t *testing.T) {
	mod := buildMainReturningConstant(1)
	l := New(256)
	l.EmitDebug = true

	img, err := l.Link(mod)
	require.NoError(t, err)
	require.NotNil(t, img.Debug)

	found := false
	for _, name := range img.Debug {
		if name == "main" {
			found = true
		}
	}
	require.True(t, found)
}

func TestDebugSymbolsExcludeInternalLabels(t *testing.T) {
	labels := map[string]int{"main": 0, "main.epilogue": 5, "f": 10}
	out := debugSymbols(labels)
	require.Len(t, out, 2)
	for _, name := range out {
		require.NotContains(t, name, ".")
	}
}

func TestOpcodeSanityAfterLink(t *testing.T) {
	mod := buildMainReturningConstant(3)
	l := New(256)
	img, err := l.Link(mod)
	require.NoError(t, err)

	foundReturn := false
	for _, inst := range img.Instructions {
		if inst.Op == isa.OpJalr {
			foundReturn = true
		}
	}
	require.True(t, foundReturn)
}
