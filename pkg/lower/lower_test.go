package lower

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/typthon/rvm-toolchain/pkg/globals"
	"github.com/typthon/rvm-toolchain/pkg/ir"
	"github.com/typthon/rvm-toolchain/pkg/isa"
)

// buildEmptyVoidFunction builds a function returning void with a single
// empty entry block.
func buildEmptyVoidFunction(name string) *ir.Function {
	b := ir.NewBuilder("m")
	fn := b.CreateFunction(name, ir.VoidType{}, false, false)
	b.CreateBlock("entry")
	_ = b.BuildReturn(nil)
	_ = b.FinishFunction()
	return fn
}

func TestLowerEmptyFunctionEmitsPrologueEpilogueReturn(t *testing.T) {
	fn := buildEmptyVoidFunction("f")
	gm := globals.NewManager()

	chunks, err := LowerFunction(fn, gm)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	code, labels, err := Link(chunks)
	require.NoError(t, err)
	require.NotEmpty(t, code)
	_, ok := labels["f"]
	require.True(t, ok)
	_, ok = labels["f.epilogue"]
	require.True(t, ok)

	last := code[len(code)-1]
	require.Equal(t, isa.OpJalr, last.Op, "epilogue must end by returning to caller")
}

func TestLowerAddTwoParameters(t *testing.T) {
	b := ir.NewBuilder("m")
	b.CreateFunction("add", ir.I16Type{}, false, false)
	a := b.AddParameter(ir.I16Type{})
	c := b.AddParameter(ir.I16Type{})
	b.CreateBlock("entry")
	sum, err := b.BuildBinary(ir.OpAdd, a, c, ir.I16Type{})
	require.NoError(t, err)
	require.NoError(t, b.BuildReturn(sum))
	require.NoError(t, b.FinishFunction())

	fn := b.Module().Functions[0]
	gm := globals.NewManager()
	chunks, err := LowerFunction(fn, gm)
	require.NoError(t, err)

	code, _, err := Link(chunks)
	require.NoError(t, err)

	foundAdd := false
	for _, inst := range code {
		if inst.Op == isa.OpAdd {
			foundAdd = true
		}
	}
	require.True(t, foundAdd, "expected an ADD machine instruction")
}

func TestLowerModuleCallWithConstants(t *testing.T) {
	b := ir.NewBuilder("m")
	b.CreateFunction("add", ir.I16Type{}, false, false)
	a := b.AddParameter(ir.I16Type{})
	c := b.AddParameter(ir.I16Type{})
	b.CreateBlock("entry")
	sum, err := b.BuildBinary(ir.OpAdd, a, c, ir.I16Type{})
	require.NoError(t, err)
	require.NoError(t, b.BuildReturn(sum))
	require.NoError(t, b.FinishFunction())

	b.CreateFunction("main", ir.I16Type{}, false, false)
	b.CreateBlock("entry")
	callee := ir.Function{Name: "add", Typ: ir.FunctionType{Return: ir.I16Type{}, Params: []ir.Type{ir.I16Type{}, ir.I16Type{}}}}
	res, ok, err := b.BuildCall(callee, []ir.Value{
		ir.Constant{Val: 5, Typ: ir.I16Type{}},
		ir.Constant{Val: 10, Typ: ir.I16Type{}},
	}, ir.I16Type{})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, b.BuildReturn(res))
	require.NoError(t, b.FinishFunction())

	mod := b.Module()
	code, labels, err := LowerModule(mod, 65536)
	require.NoError(t, err)
	require.NotEmpty(t, code)

	addrOfAdd, ok := labels["add"]
	require.True(t, ok)

	foundCall := false
	for _, inst := range code {
		if inst.Op == isa.OpJal && int(inst.W3) == addrOfAdd {
			foundCall = true
		}
	}
	require.True(t, foundCall, "expected a JAL targeting add's resolved address")
}

func TestComputeAllocaOffsetsRunningSum(t *testing.T) {
	b := ir.NewBuilder("m")
	b.CreateFunction("f", ir.VoidType{}, false, false)
	b.CreateBlock("entry")
	_, err := b.BuildAlloca(ir.I16Type{}, nil)
	require.NoError(t, err)
	_, err = b.BuildAlloca(ir.I32Type{}, nil)
	require.NoError(t, err)
	require.NoError(t, b.BuildReturn(nil))
	require.NoError(t, b.FinishFunction())

	fn := b.Module().Functions[0]
	offsets, total := ComputeAllocaOffsets(fn)
	require.Equal(t, 0, offsets[0])
	require.Equal(t, 1, offsets[1]) // i16 alloca occupies 1 word
	require.Greater(t, total, 0)
}
