package isa

// Reg identifies one of the 32 architectural registers by index. The order
// is load-bearing: it is the order the VM's BRK dump prints registers in,
// and the order the backend assigns indices in.
type Reg uint8

const (
	R0 Reg = iota
	PC
	PCB
	RA
	RAB
	RV0
	RV1
	A0
	A1
	A2
	A3
	X0
	X1
	X2
	X3
	T0
	T1
	T2
	T3
	T4
	T5
	T6
	T7
	S0
	S1
	S2
	S3
	SC
	SB
	SP
	FP
	GP

	NumRegs = int(GP) + 1
)

var regNames = [NumRegs]string{
	R0: "R0", PC: "PC", PCB: "PCB", RA: "RA", RAB: "RAB",
	RV0: "RV0", RV1: "RV1",
	A0: "A0", A1: "A1", A2: "A2", A3: "A3",
	X0: "X0", X1: "X1", X2: "X2", X3: "X3",
	T0: "T0", T1: "T1", T2: "T2", T3: "T3", T4: "T4", T5: "T5", T6: "T6", T7: "T7",
	S0: "S0", S1: "S1", S2: "S2", S3: "S3",
	SC: "SC", SB: "SB", SP: "SP", FP: "FP", GP: "GP",
}

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return "?"
}

// ArgRegs is the fixed window of registers available for scalar/fat-pointer
// argument passing before overflow to the stack.
var ArgRegs = [4]Reg{A0, A1, A2, A3}

// CalleeSaved is the set of registers the calling convention preserves
// across calls; the epilogue restores exactly the subset the RPM actually
// allocated.
var CalleeSaved = [4]Reg{S0, S1, S2, S3}

// Allocatable is the register set the register pressure manager may hand
// out for general values, excluding fixed-role registers (R0, PC/PCB,
// RA/RAB, RV0/RV1, SC, SB, SP, FP, GP) and the A-registers, which are
// reserved for argument passing at call boundaries.
var Allocatable = []Reg{X0, X1, X2, X3, T0, T1, T2, T3, T4, T5, T6, T7, S0, S1, S2, S3}
