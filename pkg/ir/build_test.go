package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilderEmptyFunction(t *testing.T) {
	b := NewBuilder("test")
	fn := b.CreateFunction("f", VoidType{}, false, false)
	b.CreateBlock("entry")
	require.NoError(t, b.BuildReturn(nil))
	require.NoError(t, b.FinishFunction())

	require.Equal(t, "f", fn.Name)
	require.Len(t, fn.Blocks, 1)
	require.True(t, fn.Entry().HasTerminator())
}

func TestBuilderAddParameterOccupiesLowestIDs(t *testing.T) {
	b := NewBuilder("test")
	b.CreateFunction("add", I16Type{}, false, false)
	a := b.AddParameter(I16Type{})
	c := b.AddParameter(I16Type{})
	require.Equal(t, TempID(0), a.ID)
	require.Equal(t, TempID(1), c.ID)

	b.CreateBlock("entry")
	sum, err := b.BuildBinary(OpAdd, a, c, I16Type{})
	require.NoError(t, err)
	require.NoError(t, b.BuildReturn(sum))
	require.NoError(t, b.FinishFunction())
}

func TestBuilderRefusesEmitAfterTerminator(t *testing.T) {
	b := NewBuilder("test")
	b.CreateFunction("f", VoidType{}, false, false)
	b.CreateBlock("entry")
	require.NoError(t, b.BuildReturn(nil))

	_, err := b.BuildBinary(OpAdd, Constant{Val: 1, Typ: I16Type{}}, Constant{Val: 2, Typ: I16Type{}}, I16Type{})
	require.Error(t, err)
}

func TestBuildCallVoidReturnsNoResult(t *testing.T) {
	b := NewBuilder("test")
	b.CreateFunction("caller", VoidType{}, false, false)
	b.CreateBlock("entry")
	callee := Function{Name: "sideeffect", Typ: FunctionType{Return: VoidType{}}}

	_, ok, err := b.BuildCall(callee, nil, VoidType{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBuildCallNonVoidReturnsResult(t *testing.T) {
	b := NewBuilder("test")
	b.CreateFunction("caller", I16Type{}, false, false)
	b.CreateBlock("entry")
	callee := Function{Name: "add", Typ: FunctionType{Return: I16Type{}}}

	res, ok, err := b.BuildCall(callee, []Value{Constant{Val: 5, Typ: I16Type{}}, Constant{Val: 10, Typ: I16Type{}}}, I16Type{})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, b.BuildReturn(res))
}

func TestModuleIsMain(t *testing.T) {
	b := NewBuilder("lib")
	b.CreateFunction("helper", VoidType{}, false, false)
	b.CreateBlock("entry")
	require.NoError(t, b.BuildReturn(nil))
	require.NoError(t, b.FinishFunction())
	require.False(t, b.Module().IsMain())

	b2 := NewBuilder("app")
	b2.CreateFunction("main", I16Type{}, false, false)
	b2.CreateBlock("entry")
	require.NoError(t, b2.BuildReturn(Constant{Val: 0, Typ: I16Type{}}))
	require.NoError(t, b2.FinishFunction())
	require.True(t, b2.Module().IsMain())
}

func TestTypesEqualStructural(t *testing.T) {
	require.True(t, TypesEqual(I16Type{}, I16Type{}))
	require.True(t, TypesEqual(PtrType{Elem: I16Type{}}, PtrType{Elem: I16Type{}}))
	require.False(t, TypesEqual(I16Type{}, I32Type{}))
}
