package vm

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/typthon/rvm-toolchain/pkg/isa"
)

// VM is the banked-memory interpreter.
type VM struct {
	Regs    Registers
	Mem     *Memory
	Code    []isa.Instruction
	State   State
	LastErr *Fault

	TTY     *TTY
	RNG     *RNG
	Keys    *Keyboard
	Disp    *Display

	// Debug is whether BRK pauses execution (debugger attached) instead
	// of dumping state and halting.
	Debug bool

	symbols map[int]string // instruction index -> name, from the loader's DEBUG section
}

// New constructs a VM over code with bankSize-word banks and numBanks
// banks of data memory.
func New(code []isa.Instruction, bankSize uint16, numBanks int) *VM {
	return &VM{
		Regs:  Registers{},
		Mem:   NewMemory(bankSize, numBanks),
		Code:  code,
		State: StateSetup,
		TTY:   NewTTY(nil),
		RNG:   &RNG{},
		Keys:  NewKeyboard(),
		Disp:  NewDisplay(NewText40Backend(), NewRGB565Backend()),
	}
}

// SetSymbols installs the optional debug-symbol map parsed from the
// loader's DEBUG section. Absence is not an error, so a nil map is valid.
func (v *VM) SetSymbols(symbols map[int]string) {
	v.symbols = symbols
}

// SetEntry sets the initial PC/PCB from a linear instruction index.
func (v *VM) SetEntry(linearIndex int) {
	pcb, pc := decompose(linearIndex, v.Mem.BankSize)
	v.Regs.Set(isa.PCB, pcb)
	v.Regs.Set(isa.PC, pc)
	v.State = StateRunning
}

func decompose(linear int, bankSize uint16) (bank, offset uint16) {
	if bankSize == 0 {
		return 0, uint16(linear)
	}
	return uint16(linear / int(bankSize)), uint16(linear % int(bankSize))
}

func compose(bank, offset, bankSize uint16) int {
	return int(bank)*int(bankSize) + int(offset)
}

// Step fetches, decodes, and executes exactly one instruction, advancing
// PC/PCB with carry at bank_size boundaries unless the instruction
// requested a skip, and always re-zeroing R0 afterward.
func (v *VM) Step() error {
	if v.State != StateRunning {
		return nil
	}

	bankSize := v.Mem.BankSize
	linear := compose(v.Regs.Get(isa.PCB), v.Regs.Get(isa.PC), bankSize)
	if linear < 0 || linear >= len(v.Code) {
		return v.fault(fmt.Sprintf("PC out of bounds: %d", linear))
	}
	inst := v.Code[linear]

	if inst.IsHalt() {
		v.State = StateHalted
		return nil
	}

	skipIncrement, err := v.execute(inst)
	if err != nil {
		return err
	}

	if v.State == StateRunning && !skipIncrement {
		nextLinear := linear + 1
		pcb, pc := decompose(nextLinear, bankSize)
		v.Regs.Set(isa.PCB, pcb)
		v.Regs.Set(isa.PC, pc)
	}
	v.Regs.ZeroR0()

	v.TTY.statusAfterCycle()
	return nil
}

// Run steps until the VM leaves StateRunning. It guards the entire run,
// not just each Render call, so a panic anywhere in the loop still leaves
// the terminal (if TEXT40 is active) restored before the panic propagates.
func (v *VM) Run() error {
	defer func() {
		if r := recover(); r != nil {
			_ = v.Disp.SetMode(DisplayOff)
			panic(r)
		}
	}()
	for v.State == StateRunning {
		if err := v.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (v *VM) fault(condition string) error {
	f := &Fault{PC: v.Regs.Get(isa.PC), Bank: v.Regs.Get(isa.PCB), Condition: condition}
	v.LastErr = f
	v.State = StateError
	logrus.WithFields(logrus.Fields{"pc": f.PC, "bank": f.Bank}).Error(condition)
	return f
}

// execute dispatches one instruction. Returns skipPCIncrement true for
// branches/jumps that already set PC/PCB themselves.
func (v *VM) execute(inst isa.Instruction) (bool, error) {
	switch {
	case inst.Op.IsRType():
		return false, v.execRType(inst)
	case inst.Op.IsIType():
		return false, v.execIType(inst)
	case inst.Op == isa.OpLi:
		v.Regs.Set(isa.Reg(inst.W1), inst.W2)
		return false, nil
	case inst.Op == isa.OpSlli || inst.Op == isa.OpSrli:
		return false, v.execShiftImm(inst)
	case inst.Op == isa.OpLoad:
		return false, v.execLoad(inst)
	case inst.Op == isa.OpStore:
		return false, v.execStore(inst)
	case inst.Op == isa.OpJal:
		v.Regs.Set(isa.Reg(inst.W1), uint16(compose(v.Regs.Get(isa.PCB), v.Regs.Get(isa.PC), v.Mem.BankSize)+1))
		v.jumpLinear(int(inst.W3))
		return true, nil
	case inst.Op == isa.OpJalr:
		v.Regs.Set(isa.Reg(inst.W1), uint16(compose(v.Regs.Get(isa.PCB), v.Regs.Get(isa.PC), v.Mem.BankSize)+1))
		v.jumpLinear(int(v.Regs.Get(isa.Reg(inst.W3))))
		return true, nil
	case inst.Op.IsBranch():
		return v.execBranch(inst)
	case inst.Op == isa.OpBrk:
		v.execBrk()
		return true, nil
	default:
		return false, v.fault(fmt.Sprintf("unknown opcode 0x%02X", uint8(inst.Op)))
	}
}

func (v *VM) jumpLinear(linear int) {
	pcb, pc := decompose(linear, v.Mem.BankSize)
	v.Regs.Set(isa.PCB, pcb)
	v.Regs.Set(isa.PC, pc)
}

func (v *VM) execRType(inst isa.Instruction) error {
	rd, rs, rt := isa.Reg(inst.W1), isa.Reg(inst.W2), isa.Reg(inst.W3)
	a, b := v.Regs.Get(rs), v.Regs.Get(rt)
	var result uint16
	switch inst.Op {
	case isa.OpAdd:
		result = a + b
	case isa.OpSub:
		result = a - b
	case isa.OpAnd:
		result = a & b
	case isa.OpOr:
		result = a | b
	case isa.OpXor:
		result = a ^ b
	case isa.OpSll:
		result = a << (b & 0xF)
	case isa.OpSrl:
		result = a >> (b & 0xF)
	case isa.OpSlt:
		if int16(a) < int16(b) {
			result = 1
		}
	case isa.OpSltu:
		if a < b {
			result = 1
		}
	case isa.OpMul:
		result = a * b
	case isa.OpDiv:
		result = divOrZero(a, b)
	case isa.OpMod:
		result = modOrZero(a, b)
	default:
		return v.fault(fmt.Sprintf("unhandled R-type opcode 0x%02X", uint8(inst.Op)))
	}
	v.Regs.Set(rd, result)
	return nil
}

func (v *VM) execIType(inst isa.Instruction) error {
	rd, rs, imm := isa.Reg(inst.W1), isa.Reg(inst.W2), inst.W3
	a := v.Regs.Get(rs)
	var result uint16
	switch inst.Op {
	case isa.OpAddi:
		result = a + imm
	case isa.OpAndi:
		result = a & imm
	case isa.OpOri:
		result = a | imm
	case isa.OpXori:
		result = a ^ imm
	case isa.OpMuli:
		result = a * imm
	case isa.OpDivi:
		result = divOrZero(a, imm)
	case isa.OpModi:
		result = modOrZero(a, imm)
	default:
		return v.fault(fmt.Sprintf("unhandled I-type opcode 0x%02X", uint8(inst.Op)))
	}
	v.Regs.Set(rd, result)
	return nil
}

func (v *VM) execShiftImm(inst isa.Instruction) error {
	rd, rs := isa.Reg(inst.W1), isa.Reg(inst.W2)
	amount := inst.W3 & 0xF
	a := v.Regs.Get(rs)
	if inst.Op == isa.OpSlli {
		v.Regs.Set(rd, a<<amount)
	} else {
		v.Regs.Set(rd, a>>amount)
	}
	return nil
}

func (v *VM) execBranch(inst isa.Instruction) (bool, error) {
	rs, rt := isa.Reg(inst.W1), isa.Reg(inst.W2)
	offset := int16(inst.W3)
	a, b := v.Regs.Get(rs), v.Regs.Get(rt)
	taken := false
	switch inst.Op {
	case isa.OpBeq:
		taken = a == b
	case isa.OpBne:
		taken = a != b
	case isa.OpBlt:
		taken = int16(a) < int16(b)
	case isa.OpBge:
		taken = int16(a) >= int16(b)
	}
	if !taken {
		return false, nil
	}
	linear := compose(v.Regs.Get(isa.PCB), v.Regs.Get(isa.PC), v.Mem.BankSize)
	v.jumpLinear(linear + 1 + int(offset))
	return true, nil
}

// divOrZero and modOrZero implement the VM's silent-zero semantics for
// division/modulo by zero, matching IR lowering.
func divOrZero(a, b uint16) uint16 {
	if b == 0 {
		return 0
	}
	return a / b
}

func modOrZero(a, b uint16) uint16 {
	if b == 0 {
		return 0
	}
	return a % b
}
