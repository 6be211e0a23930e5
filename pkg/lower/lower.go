package lower

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/typthon/rvm-toolchain/pkg/bank"
	"github.com/typthon/rvm-toolchain/pkg/callconv"
	"github.com/typthon/rvm-toolchain/pkg/globals"
	"github.com/typthon/rvm-toolchain/pkg/ir"
	"github.com/typthon/rvm-toolchain/pkg/isa"
	"github.com/typthon/rvm-toolchain/pkg/logger"
	"github.com/typthon/rvm-toolchain/pkg/rpm"
)

// funcLowerer holds the per-function state threaded through instruction
// lowering: its own fresh RPM and naming context, the shared bank-info
// table, and the global manager for Load/Store rewriting of Global
// bases.
type funcLowerer struct {
	fn      *ir.Function
	mgr     *rpm.Manager
	banks   *bank.Table
	naming  *NameGenerator
	globals *globals.Manager
}

func isPointer(t ir.Type) bool {
	_, ok := t.(ir.PtrType)
	return ok
}

// materializeValue gets v into a register, resolving Global bases to a
// fat pointer at the global's resolved address first: a Load/Store whose
// pointer operand is a Global(name) is rewritten to a fat pointer with
// bank = Global.
func (fl *funcLowerer) materializeValue(v ir.Value) (isa.Reg, []isa.Instruction, error) {
	switch val := v.(type) {
	case ir.Temp:
		return fl.mgr.GetRegister(val.ID)
	case ir.Constant:
		reg, spill := fl.mgr.Obtain()
		code := append([]isa.Instruction{}, spill...)
		code = append(code, isa.LoadImm(reg, uint16(val.Val)))
		return reg, code, nil
	case ir.Global:
		addr, ok := fl.globals.Address(val.Name)
		if !ok {
			return 0, nil, errors.Errorf("lower: unknown global %q", val.Name)
		}
		reg, spill := fl.mgr.Obtain()
		code := append([]isa.Instruction{}, spill...)
		code = append(code, isa.LoadImm(reg, addr))
		return reg, code, nil
	case ir.FatPtr:
		return fl.materializeValue(val.Addr)
	default:
		return 0, nil, errors.Errorf("lower: cannot materialize value %v", v)
	}
}

// pointerBankReg resolves the bank register (or a known static bank, which
// the caller maps to GP/SB as appropriate) for a pointer value.
func (fl *funcLowerer) pointerBankReg(v ir.Value) (isa.Reg, []isa.Instruction, error) {
	switch val := v.(type) {
	case ir.Temp:
		info, err := fl.banks.Lookup(val.ID)
		if err != nil {
			return 0, nil, errors.WithStack(err)
		}
		switch info.Kind {
		case bank.Stack:
			return isa.SB, nil, nil
		case bank.Global:
			return isa.GP, nil, nil
		case bank.Register:
			return info.Reg, nil, nil
		}
	case ir.Global:
		return isa.GP, nil, nil
	case ir.FatPtr:
		switch val.Bank {
		case ir.BankStack:
			return isa.SB, nil, nil
		case ir.BankGlobal:
			return isa.GP, nil, nil
		}
	}
	return 0, nil, errors.Errorf("lower: cannot resolve bank for %v", v)
}

// lowerInst dispatches one IR instruction to its machine lowering.
// Returns the emitted code and any forward-reference patches, with
// InstIndex relative to the start of the returned code slice: the caller
// (block lowering) rebases them to the chunk's cumulative offset.
func (fl *funcLowerer) lowerInst(inst ir.Inst) ([]isa.Instruction, []Patch, error) {
	logger.TraceValue("lower: instruction", inst)
	switch in := inst.(type) {
	case ir.Binary:
		code, err := fl.lowerBinary(in)
		return code, nil, err
	case ir.Unary:
		code, err := fl.lowerUnary(in)
		return code, nil, err
	case ir.Load:
		code, err := fl.lowerLoad(in)
		return code, nil, err
	case ir.Store:
		code, err := fl.lowerStore(in)
		return code, nil, err
	case ir.GetElementPtr:
		code, err := fl.lowerGEP(in)
		return code, nil, err
	case ir.Alloca:
		code, err := fl.lowerAlloca(in)
		return code, nil, err
	case ir.Cast:
		code, err := fl.lowerCast(in)
		return code, nil, err
	case ir.Select:
		code, err := fl.lowerSelect(in)
		return code, nil, err
	case ir.Phi:
		code, err := fl.lowerPhi(in)
		return code, nil, err
	case ir.InlineAsm:
		code, err := fl.lowerInlineAsm(in)
		return code, nil, err
	case ir.Intrinsic:
		logrus.WithField("name", in.Name).Warn("lower: intrinsic lowering is unimplemented, emitting no code")
		return nil, nil, nil
	case ir.DebugLoc:
		return nil, nil, nil
	case ir.Comment:
		return nil, nil, nil
	case ir.Call:
		return fl.lowerCall(in)
	default:
		return nil, nil, errors.Errorf("lower: unsupported IR instruction %T", inst)
	}
}

// lowerBinary materializes operands via the RPM using Sethi-Ullman
// ordering, emits the machine op reusing the first operand's register as
// destination, and frees the second. Division and modulo by zero are VM
// semantics (silent zero), not a compile-time concern.
func (fl *funcLowerer) lowerBinary(in ir.Binary) ([]isa.Instruction, error) {
	needL := fl.mgr.Need(in.Lhs)
	needR := fl.mgr.Need(in.Rhs)
	first, second, swapped, tie := rpm.Order(in.Op, in.Lhs, in.Rhs, needL, needR)

	// On a tie, both operands need the same number of registers to
	// materialize; hold one extra register for the join so evaluating
	// the second operand can't evict something the first still needs.
	var reserved isa.Reg
	var code []isa.Instruction
	if tie {
		reserved, code = fl.mgr.Obtain()
	}

	firstReg, code1, err := fl.materializeValue(first)
	if err != nil {
		return nil, err
	}
	secondReg, code2, err := fl.materializeValue(second)
	if err != nil {
		return nil, err
	}

	code = append(code, code1...)
	code = append(code, code2...)
	if tie {
		fl.mgr.FreeRegister(reserved)
	}

	lhsReg, rhsReg := firstReg, secondReg
	if swapped {
		lhsReg, rhsReg = secondReg, firstReg
	}

	if isComparisonOp(in.Op) {
		cmpCode, err := lowerComparison(in.Op, firstReg, lhsReg, rhsReg)
		if err != nil {
			return nil, err
		}
		code = append(code, cmpCode...)
	} else {
		op, err := binaryOpcode(in.Op)
		if err != nil {
			return nil, err
		}
		code = append(code, isa.RType(op, firstReg, lhsReg, rhsReg))
	}

	fl.mgr.BindValueToRegister(in.Result.ID, firstReg)
	fl.mgr.FreeRegister(secondReg)
	return code, nil
}

func isComparisonOp(op ir.BinaryOp) bool {
	switch op {
	case ir.OpEq, ir.OpNe, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
		return true
	default:
		return false
	}
}

// lowerComparison synthesizes the six comparison ops the ISA has no
// direct opcode for from OpSlt/OpSltu/OpXor/OpXori, writing a 0/1 result
// into dst. OpLt and OpGt are a single SLT with operands possibly
// swapped; OpLe/OpGe negate the opposite SLT; OpEq/OpNe test whether an
// XOR of the operands is zero.
func lowerComparison(op ir.BinaryOp, dst, lhs, rhs isa.Reg) ([]isa.Instruction, error) {
	switch op {
	case ir.OpLt:
		return []isa.Instruction{isa.RType(isa.OpSlt, dst, lhs, rhs)}, nil
	case ir.OpGt:
		return []isa.Instruction{isa.RType(isa.OpSlt, dst, rhs, lhs)}, nil
	case ir.OpGe:
		return []isa.Instruction{
			isa.RType(isa.OpSlt, dst, lhs, rhs),
			isa.IType(isa.OpXori, dst, dst, 1),
		}, nil
	case ir.OpLe:
		return []isa.Instruction{
			isa.RType(isa.OpSlt, dst, rhs, lhs),
			isa.IType(isa.OpXori, dst, dst, 1),
		}, nil
	case ir.OpNe:
		return []isa.Instruction{
			isa.RType(isa.OpXor, dst, lhs, rhs),
			isa.RType(isa.OpSltu, dst, isa.R0, dst),
		}, nil
	case ir.OpEq:
		return []isa.Instruction{
			isa.RType(isa.OpXor, dst, lhs, rhs),
			isa.RType(isa.OpSltu, dst, isa.R0, dst),
			isa.IType(isa.OpXori, dst, dst, 1),
		}, nil
	default:
		return nil, errors.Errorf("lower: %v is not a comparison op", op)
	}
}

func binaryOpcode(op ir.BinaryOp) (isa.Opcode, error) {
	switch op {
	case ir.OpAdd:
		return isa.OpAdd, nil
	case ir.OpSub:
		return isa.OpSub, nil
	case ir.OpMul:
		return isa.OpMul, nil
	case ir.OpDiv:
		return isa.OpDiv, nil
	case ir.OpMod:
		return isa.OpMod, nil
	case ir.OpAnd:
		return isa.OpAnd, nil
	case ir.OpOr:
		return isa.OpOr, nil
	case ir.OpXor:
		return isa.OpXor, nil
	case ir.OpShl:
		return isa.OpSll, nil
	case ir.OpShr:
		return isa.OpSrl, nil
	default:
		return 0, errors.Errorf("lower: unsupported binary op %v", op)
	}
}

func (fl *funcLowerer) lowerUnary(in ir.Unary) ([]isa.Instruction, error) {
	reg, code, err := fl.materializeValue(in.Operand)
	if err != nil {
		return nil, err
	}
	switch in.Op {
	case ir.OpNeg:
		dst, spill := fl.mgr.Obtain()
		code = append(code, spill...)
		code = append(code, isa.RType(isa.OpSub, dst, isa.R0, reg))
		fl.mgr.BindValueToRegister(in.Result.ID, dst)
	case ir.OpNot:
		dst, spill := fl.mgr.Obtain()
		code = append(code, spill...)
		code = append(code, isa.IType(isa.OpXori, dst, reg, 0xFFFF))
		fl.mgr.BindValueToRegister(in.Result.ID, dst)
	default:
		// sext/zext/trunc are moves at this width; unary applies the
		// same permissive default.
		fl.mgr.BindValueToRegister(in.Result.ID, reg)
	}
	return code, nil
}

func (fl *funcLowerer) lowerLoad(in ir.Load) ([]isa.Instruction, error) {
	addrReg, code, err := fl.materializeValue(in.Ptr)
	if err != nil {
		return nil, err
	}
	bankReg, bcode, err := fl.pointerBankReg(in.Ptr)
	if err != nil {
		return nil, err
	}
	code = append(code, bcode...)

	dst, spill := fl.mgr.Obtain()
	code = append(code, spill...)
	code = append(code, isa.LoadMem(dst, bankReg, addrReg))
	fl.mgr.BindValueToRegister(in.Result.ID, dst)
	return code, nil
}

func (fl *funcLowerer) lowerStore(in ir.Store) ([]isa.Instruction, error) {
	valReg, code, err := fl.materializeValue(in.Value)
	if err != nil {
		return nil, err
	}
	addrReg, acode, err := fl.materializeValue(in.Ptr)
	if err != nil {
		return nil, err
	}
	code = append(code, acode...)
	bankReg, bcode, err := fl.pointerBankReg(in.Ptr)
	if err != nil {
		return nil, err
	}
	code = append(code, bcode...)
	code = append(code, isa.StoreMem(valReg, bankReg, addrReg))
	return code, nil
}

// lowerGEP computes base + Σ index_i * stride_i, where the innermost
// stride is the element size of the result type, and inherits the base's
// bank.
func (fl *funcLowerer) lowerGEP(in ir.GetElementPtr) ([]isa.Instruction, error) {
	baseReg, code, err := fl.materializeValue(in.Ptr)
	if err != nil {
		return nil, err
	}

	elemSize := 1
	if pt, ok := in.Result.Typ.(ir.PtrType); ok {
		if sz := pt.Elem.Size(); sz > 0 {
			elemSize = sz
		}
	}

	dst, spill := fl.mgr.Obtain()
	code = append(code, spill...)
	code = append(code, isa.RType(isa.OpAdd, dst, baseReg, isa.R0))

	for _, idx := range in.Indices {
		idxReg, icode, err := fl.materializeValue(idx)
		if err != nil {
			return nil, err
		}
		code = append(code, icode...)
		scaled, sspill := fl.mgr.Obtain()
		code = append(code, sspill...)
		code = append(code, isa.IType(isa.OpMuli, scaled, idxReg, uint16(elemSize)))
		code = append(code, isa.RType(isa.OpAdd, dst, dst, scaled))
		fl.mgr.FreeRegister(scaled)
	}

	fl.mgr.BindValueToRegister(in.Result.ID, dst)
	if bankReg, bcode, err := fl.pointerBankReg(in.Ptr); err == nil {
		code = append(code, bcode...)
		fl.banks.Bind(in.Result.ID, bank.Info{Kind: bank.Register, Reg: bankReg})
	} else if info, lerr := fl.inheritedBankInfo(in.Ptr); lerr == nil {
		fl.banks.Bind(in.Result.ID, info)
	}
	return code, nil
}

func (fl *funcLowerer) inheritedBankInfo(ptr ir.Value) (bank.Info, error) {
	if t, ok := ptr.(ir.Temp); ok {
		return fl.banks.Lookup(t.ID)
	}
	return bank.Info{}, errors.New("lower: no bank info to inherit")
}

// lowerAlloca looks up the precomputed offset and emits reg = FP (+
// offset if nonzero); bank is always Stack.
func (fl *funcLowerer) lowerAlloca(in ir.Alloca) ([]isa.Instruction, error) {
	_, code, err := fl.mgr.GetRegister(in.Result.ID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	fl.banks.Bind(in.Result.ID, bank.Info{Kind: bank.Stack})
	return code, nil
}

func (fl *funcLowerer) lowerCast(in ir.Cast) ([]isa.Instruction, error) {
	srcReg, code, err := fl.materializeValue(in.Value)
	if err != nil {
		return nil, err
	}
	fromSize := in.Value.Type().Size()
	toSize := in.TargetType.Size()
	if toSize <= fromSize {
		// Default: move/truncate-by-reinterpretation. Most casts at this
		// width are treated as moves.
		fl.mgr.BindValueToRegister(in.Result.ID, srcReg)
		return code, nil
	}
	dst, spill := fl.mgr.Obtain()
	code = append(code, spill...)
	code = append(code, isa.RType(isa.OpAdd, dst, srcReg, isa.R0))
	fl.mgr.BindValueToRegister(in.Result.ID, dst)
	return code, nil
}

// lowerSelect emits a conditional branch, two assignment arms, and a jump
// past the false arm to the join point.
func (fl *funcLowerer) lowerSelect(in ir.Select) ([]isa.Instruction, error) {
	condReg, code, err := fl.materializeValue(in.Cond)
	if err != nil {
		return nil, err
	}
	dst, spill := fl.mgr.Obtain()
	code = append(code, spill...)

	// Both arms live in this single instruction's code slice, so the
	// join is patched in place below rather than through named labels.
	branchIdx := len(code)
	code = append(code, isa.Branch(isa.OpBeq, condReg, isa.R0, 0))

	trueReg, tcode, err := fl.materializeValue(in.TrueVal)
	if err != nil {
		return nil, err
	}
	code = append(code, tcode...)
	code = append(code, isa.RType(isa.OpAdd, dst, trueReg, isa.R0))
	jmpIdx := len(code)
	code = append(code, isa.Branch(isa.OpBeq, isa.R0, isa.R0, 0))

	falseIdx := len(code)
	falseReg, fcode, err := fl.materializeValue(in.FalseVal)
	if err != nil {
		return nil, err
	}
	code = append(code, fcode...)
	code = append(code, isa.RType(isa.OpAdd, dst, falseReg, isa.R0))

	code[branchIdx].W3 = uint16(int16(falseIdx - branchIdx - 1))
	code[jmpIdx].W3 = uint16(int16(len(code) - jmpIdx - 1))

	fl.mgr.BindValueToRegister(in.Result.ID, dst)
	return code, nil
}

// lowerPhi is known-lossy: it copies only the first incoming value.
func (fl *funcLowerer) lowerPhi(in ir.Phi) ([]isa.Instruction, error) {
	if len(in.Incoming) == 0 {
		return nil, errors.Errorf("lower: phi %%t%d has no incoming values", in.Result.ID)
	}
	reg, code, err := fl.materializeValue(in.Incoming[0].Value)
	if err != nil {
		return nil, err
	}
	fl.mgr.BindValueToRegister(in.Result.ID, reg)
	return code, nil
}

// lowerInlineAsm emits no instructions: the payload is only logged at
// debug level. Its lines are neither assembled nor passed through to the
// machine instruction stream.
func (fl *funcLowerer) lowerInlineAsm(in ir.InlineAsm) ([]isa.Instruction, error) {
	logrus.WithField("asm", in.Assembly).Debug("lower: inline asm passthrough is a no-op in the direct machine-code backend")
	return nil, nil
}

// lowerCall builds CallArgs from IR args honoring the bank-info table,
// spills all live registers conservatively, places args, and dispatches
// through callconv.
func (fl *funcLowerer) lowerCall(in ir.Call) ([]isa.Instruction, []Patch, error) {
	var code []isa.Instruction
	var args []callconv.CallArg
	for _, a := range in.Args {
		reg, acode, err := fl.materializeValue(a)
		if err != nil {
			return nil, nil, err
		}
		code = append(code, acode...)
		arg := callconv.CallArg{AddrReg: reg}
		if isPointer(a.Type()) {
			bankReg, bcode, err := fl.pointerBankReg(a)
			if err != nil {
				return nil, nil, err
			}
			code = append(code, bcode...)
			arg.IsPointer = true
			arg.BankReg = bankReg
		}
		args = append(args, arg)
	}

	code = append(code, fl.mgr.SpillAll()...)
	code = append(code, callconv.PlaceArgs(args)...)

	callee, ok := in.Callee.(ir.Function)
	if !ok {
		return nil, nil, errors.Errorf("lower: call target %v is not a direct function reference", in.Callee)
	}
	code = append(code, isa.Jal(isa.RA, 0))
	patchIdx := len(code) - 1

	if in.HasResult {
		callconv.BindReturn(in.Result.ID, isPointer(in.Result.Typ), fl.mgr, fl.banks)
	}

	patches := []Patch{{InstIndex: patchIdx, Target: callee.Name, Kind: PatchCall}}
	return code, patches, nil
}
