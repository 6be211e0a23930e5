package lower

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/typthon/rvm-toolchain/pkg/bank"
	"github.com/typthon/rvm-toolchain/pkg/callconv"
	"github.com/typthon/rvm-toolchain/pkg/globals"
	"github.com/typthon/rvm-toolchain/pkg/ir"
	"github.com/typthon/rvm-toolchain/pkg/isa"
	"github.com/typthon/rvm-toolchain/pkg/rpm"
)

// LowerModule is the module lowering driver: for each non-external
// function it creates a fresh RPM and naming context, runs the function
// builder, and appends the result to the module instruction stream. For
// the main module only, it also emits `_init_globals`.
func LowerModule(mod *ir.Module, bankSize int) ([]isa.Instruction, map[string]int, error) {
	gm := globals.NewManager()
	gm.Allocate(mod)

	var chunks []Chunk

	if globals.ShouldEmitInitGlobals(mod) {
		code := globals.EmitInitGlobals(mod, gm)
		code = append(code, isa.Jal(isa.R0, 0))
		chunks = append(chunks, Chunk{
			Label: globals.InitGlobalsLabel,
			Code:  code,
			Patches: []Patch{
				{InstIndex: len(code) - 1, Target: "main", Kind: PatchCall},
			},
		})
	}

	for _, fn := range mod.Functions {
		if fn.IsExternal {
			continue
		}
		fnChunks, err := LowerFunction(fn, gm)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "lower: function %q", fn.Name)
		}
		chunks = append(chunks, fnChunks...)
	}

	return Link(chunks)
}

// LowerFunction runs the full per-function pipeline: compute alloca
// offsets, compute local slot count, emit the function label, prologue,
// parameter binding, per-block lowering, and the common epilogue.
func LowerFunction(fn *ir.Function, gm *globals.Manager) ([]Chunk, error) {
	offsets, localCount := ComputeAllocaOffsets(fn)

	mgr := rpm.NewManager(isa.Allocatable, localCount)
	for id, off := range offsets {
		mgr.RegisterAlloca(id, off)
	}
	banks := bank.NewTable()
	naming := NewNameGenerator(fn.Name)

	fl := &funcLowerer{fn: fn, mgr: mgr, banks: banks, naming: naming, globals: gm}

	var chunks []Chunk

	entryCode := callconv.Prologue(localCount)
	paramLocs := callconv.AssignParameters(fn.Parameters)
	for i, p := range fn.Parameters {
		entryCode = append(entryCode, callconv.LoadParam(p.ID, paramLocs[i], mgr, banks)...)
	}

	chunks = append(chunks, Chunk{Label: fn.Name, Code: entryCode})

	for _, blk := range fn.Blocks {
		blkChunk := Chunk{Label: naming.BlockLabel(int(blk.ID))}
		for _, inst := range blk.Instructions {
			code, patches, err := fl.lowerInst(inst)
			if err != nil {
				return nil, err
			}
			base := len(blkChunk.Code)
			for _, p := range patches {
				p.InstIndex += base
				blkChunk.Patches = append(blkChunk.Patches, p)
			}
			blkChunk.Code = append(blkChunk.Code, code...)
		}

		termCode, termPatches, err := lowerTerminator(fl, blk.Term, fn, naming)
		if err != nil {
			return nil, err
		}
		base := len(blkChunk.Code)
		for _, p := range termPatches {
			p.InstIndex += base
			blkChunk.Patches = append(blkChunk.Patches, p)
		}
		blkChunk.Code = append(blkChunk.Code, termCode...)

		chunks = append(chunks, blkChunk)
	}

	epilogueCode := callconv.Epilogue(localCount, mgr.SpillCount(), mgr.UsedCalleeSaved())
	chunks = append(chunks, Chunk{Label: naming.EpilogueLabel(), Code: epilogueCode})

	logrus.WithFields(logrus.Fields{"function": fn.Name, "locals": localCount, "spills": mgr.SpillCount()}).
		Debug("lower: function lowering complete")

	return chunks, nil
}

// lowerTerminator handles Return/Branch/BranchCond. Unconditional
// branches lower to an always-taken zero-equality test against R0;
// conditional branches test the condition register against R0.
func lowerTerminator(fl *funcLowerer, term ir.Terminator, fn *ir.Function, naming *NameGenerator) ([]isa.Instruction, []Patch, error) {
	switch t := term.(type) {
	case ir.Return:
		var code []isa.Instruction
		if t.HasValue {
			reg, vcode, err := fl.materializeValue(t.Value)
			if err != nil {
				return nil, nil, err
			}
			code = append(code, vcode...)
			code = append(code, isa.RType(isa.OpAdd, isa.RV0, reg, isa.R0))
			if isPointer(t.Value.Type()) {
				bankReg, bcode, err := fl.pointerBankReg(t.Value)
				if err == nil {
					code = append(code, bcode...)
					code = append(code, isa.RType(isa.OpAdd, isa.RV1, bankReg, isa.R0))
				}
			}
		}
		code = append(code, isa.Jal(isa.R0, 0))
		patch := Patch{InstIndex: len(code) - 1, Target: naming.EpilogueLabel(), Kind: PatchCall}
		return code, []Patch{patch}, nil

	case ir.Branch:
		code := []isa.Instruction{isa.Branch(isa.OpBeq, isa.R0, isa.R0, 0)}
		patch := Patch{InstIndex: 0, Target: naming.BlockLabel(int(t.Target)), Kind: PatchBranch}
		return code, []Patch{patch}, nil

	case ir.BranchCond:
		condReg, code, err := fl.materializeValue(t.Cond)
		if err != nil {
			return nil, nil, err
		}
		branchIdx := len(code)
		code = append(code, isa.Branch(isa.OpBne, condReg, isa.R0, 0))
		patches := []Patch{{InstIndex: branchIdx, Target: naming.BlockLabel(int(t.TrueLabel)), Kind: PatchBranch}}
		jmpIdx := len(code)
		code = append(code, isa.Branch(isa.OpBeq, isa.R0, isa.R0, 0))
		patches = append(patches, Patch{InstIndex: jmpIdx, Target: naming.BlockLabel(int(t.FalseLabel)), Kind: PatchBranch})
		return code, patches, nil

	default:
		return nil, nil, errors.Errorf("lower: unsupported terminator %T", term)
	}
}
