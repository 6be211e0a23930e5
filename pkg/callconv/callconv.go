// Package callconv implements the banked-memory calling convention:
// parameter/return register assignment, fat-pointer argument packing,
// prologue/epilogue emission and the call sequence.
package callconv

import (
	"github.com/typthon/rvm-toolchain/pkg/bank"
	"github.com/typthon/rvm-toolchain/pkg/ir"
	"github.com/typthon/rvm-toolchain/pkg/isa"
	"github.com/typthon/rvm-toolchain/pkg/rpm"
)

// StackSlotWords is the size in words of one overflow parameter slot.
const StackSlotWords = 1

// ParamLocation describes where one parameter lives after loading:
// either entirely in a register (scalar) or a register pair (fat pointer),
// or on the stack beyond the A-register window.
type ParamLocation struct {
	IsPointer bool
	IsStack   bool
	AddrReg   isa.Reg // unused if IsStack; the slot is in StackSlot
	BankReg   isa.Reg
	StackSlot int
}

// AssignParameters walks fn's parameters in order and assigns each a
// location: scalars take the next free A-register, fat pointers consume
// two, and once the four-register window is exhausted, parameters overflow
// to adjacent stack slots (address, then bank for pointers). Mixed
// scalar/pointer overflow ordering is an implementation choice; this one
// keeps overflow parameters in declaration order, each consuming 1 stack
// slot (scalar) or 2 (fat pointer).
func AssignParameters(params []ir.Param) []ParamLocation {
	locs := make([]ParamLocation, len(params))
	nextArg := 0
	nextSlot := 0

	for i, p := range params {
		isPtr := isPointerType(p.Typ)
		regsNeeded := 1
		if isPtr {
			regsNeeded = 2
		}

		if nextArg+regsNeeded <= len(isa.ArgRegs) {
			loc := ParamLocation{IsPointer: isPtr, AddrReg: isa.ArgRegs[nextArg]}
			if isPtr {
				loc.BankReg = isa.ArgRegs[nextArg+1]
			}
			nextArg += regsNeeded
			locs[i] = loc
			continue
		}

		loc := ParamLocation{IsPointer: isPtr, IsStack: true, StackSlot: nextSlot}
		nextSlot += regsNeeded
		locs[i] = loc
	}
	return locs
}

func isPointerType(t ir.Type) bool {
	_, ok := t.(ir.PtrType)
	return ok
}

// LoadParam emits the callee-entry code that binds a parameter's SSA name
// to its assigned location and records its bank binding. Stack-resident
// parameters are loaded relative to FP at a fixed offset above the saved
// return address and frame pointer.
func LoadParam(id ir.TempID, loc ParamLocation, mgr *rpm.Manager, banks *bank.Table) []isa.Instruction {
	if !loc.IsStack {
		mgr.BindValueToRegister(id, loc.AddrReg)
		if loc.IsPointer {
			banks.Bind(id, bank.Info{Kind: bank.Register, Reg: loc.BankReg})
		}
		return nil
	}

	// Stack parameters sit above the FP/RA save area; callers of LoadParam
	// supply StackSlot relative to that fixed base. The RPM's free list
	// hands us a register to materialize into directly.
	reg, spillCode := mgr.Obtain()
	offset := stackParamBaseOffset + loc.StackSlot
	code := append([]isa.Instruction{}, spillCode...)
	code = append(code,
		isa.IType(isa.OpAddi, isa.SC, isa.FP, uint16(offset)),
		isa.LoadMem(reg, isa.SB, isa.SC),
	)
	mgr.BindValueToRegister(id, reg)
	if loc.IsPointer {
		bankReg, bankSpillCode := mgr.Obtain()
		code = append(code, bankSpillCode...)
		code = append(code,
			isa.IType(isa.OpAddi, isa.SC, isa.FP, uint16(offset+1)),
			isa.LoadMem(bankReg, isa.SB, isa.SC),
		)
		banks.Bind(id, bank.Info{Kind: bank.Register, Reg: bankReg})
	}
	return code
}

// stackParamBaseOffset is the frame offset (in words, from FP) of the
// first stack-overflow parameter: above the saved RA/RAB and old FP that
// the prologue pushes.
const stackParamBaseOffset = 4

// BindReturn rebinds the caller-side result SSA name to RV0, and records
// RV1 as the bank register for pointer results.
func BindReturn(id ir.TempID, isPointer bool, mgr *rpm.Manager, banks *bank.Table) {
	mgr.BindValueToRegister(id, isa.RV0)
	if isPointer {
		banks.Bind(id, bank.Info{Kind: bank.Register, Reg: isa.RV1})
	}
}

// Prologue emits the fixed function entry sequence: push RA/RAB, push old
// FP, set FP = SP, reserve localCount slots. It does not write SB; the
// pushes use whatever stack bank SB already holds.
func Prologue(localCount int) []isa.Instruction {
	return []isa.Instruction{
		isa.StoreMem(isa.RA, isa.SB, isa.SP),
		isa.IType(isa.OpAddi, isa.SP, isa.SP, 1),
		isa.StoreMem(isa.RAB, isa.SB, isa.SP),
		isa.IType(isa.OpAddi, isa.SP, isa.SP, 1),
		isa.StoreMem(isa.FP, isa.SB, isa.SP),
		isa.IType(isa.OpAddi, isa.SP, isa.SP, 1),
		isa.RType(isa.OpAdd, isa.FP, isa.SP, isa.R0),
		isa.IType(isa.OpAddi, isa.SP, isa.SP, uint16(localCount)),
	}
}

// Epilogue emits the single common function-exit sequence: restore the
// callee-saved registers the RPM flagged as used, tear down locals and
// spills, restore FP, pop RA/RAB, and return.
func Epilogue(localCount, spillCount int, usedCalleeSaved []isa.Reg) []isa.Instruction {
	var code []isa.Instruction
	frame := localCount + spillCount
	code = append(code, isa.IType(isa.OpAddi, isa.SP, isa.SP, uint16(0-uint16(frame))))
	for i := len(usedCalleeSaved) - 1; i >= 0; i-- {
		code = append(code,
			isa.IType(isa.OpAddi, isa.SP, isa.SP, 0xFFFF),
			isa.LoadMem(usedCalleeSaved[i], isa.SB, isa.SP),
		)
	}
	code = append(code,
		isa.RType(isa.OpAdd, isa.SP, isa.FP, isa.R0),
		isa.IType(isa.OpAddi, isa.SP, isa.SP, 0xFFFF),
		isa.LoadMem(isa.FP, isa.SB, isa.SP),
		isa.IType(isa.OpAddi, isa.SP, isa.SP, 0xFFFF),
		isa.LoadMem(isa.RAB, isa.SB, isa.SP),
		isa.IType(isa.OpAddi, isa.SP, isa.SP, 0xFFFF),
		isa.LoadMem(isa.RA, isa.SB, isa.SP),
		isa.Jalr(isa.R0, isa.RA),
	)
	return code
}

// CallArg is one argument to a call, already materialized into registers.
type CallArg struct {
	IsPointer bool
	AddrReg   isa.Reg
	BankReg   isa.Reg
}

// callOverflowBaseOffset is the offset from SP at the call site to the
// first overflow argument slot, as the callee's prologue will see it.
// Prologue pushes RA, RAB and the old FP between the call-site SP and
// the callee's new FP, so this must track stackParamBaseOffset plus
// those three pushes for LoadParam's FP-relative reads to land on the
// values stored here.
const callOverflowBaseOffset = stackParamBaseOffset + 3

// PlaceArgs emits the moves that copy already-materialized CallArgs into
// the argument register window, storing the overflow beyond it to the
// stack slots LoadParam reads back on entry.
func PlaceArgs(args []CallArg) []isa.Instruction {
	var code []isa.Instruction
	next := 0
	slot := 0
	for _, a := range args {
		need := 1
		if a.IsPointer {
			need = 2
		}
		if next+need <= len(isa.ArgRegs) {
			code = append(code, isa.RType(isa.OpAdd, isa.ArgRegs[next], a.AddrReg, isa.R0))
			if a.IsPointer {
				code = append(code, isa.RType(isa.OpAdd, isa.ArgRegs[next+1], a.BankReg, isa.R0))
			}
			next += need
			continue
		}

		offset := callOverflowBaseOffset + slot
		code = append(code,
			isa.IType(isa.OpAddi, isa.SC, isa.SP, uint16(offset)),
			isa.StoreMem(a.AddrReg, isa.SB, isa.SC),
		)
		if a.IsPointer {
			code = append(code,
				isa.IType(isa.OpAddi, isa.SC, isa.SP, uint16(offset+1)),
				isa.StoreMem(a.BankReg, isa.SB, isa.SC),
			)
		}
		slot += need
	}
	return code
}
