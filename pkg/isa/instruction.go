package isa

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// InstructionSize is the fixed width in bytes of one machine instruction.
const InstructionSize = 8

// Instruction is the fixed 8-byte machine instruction layout:
// {opcode:u8, w0:u8, w1:u16, w2:u16, w3:u16}, little-endian.
type Instruction struct {
	Op Opcode
	W0 uint8
	W1 uint16
	W2 uint16
	W3 uint16
}

// Halt is the all-zero instruction that the VM interprets as a halt.
var Halt = Instruction{}

// IsHalt reports whether this instruction is the all-zero halt encoding.
func (i Instruction) IsHalt() bool {
	return i.Op == OpNop && i.W0 == 0 && i.W1 == 0 && i.W2 == 0 && i.W3 == 0
}

// Encode writes the 8-byte wire representation of i.
func (i Instruction) Encode() [InstructionSize]byte {
	var buf [InstructionSize]byte
	buf[0] = uint8(i.Op)
	buf[1] = i.W0
	binary.LittleEndian.PutUint16(buf[2:4], i.W1)
	binary.LittleEndian.PutUint16(buf[4:6], i.W2)
	binary.LittleEndian.PutUint16(buf[6:8], i.W3)
	return buf
}

// Decode parses an 8-byte instruction. Opcodes outside 0x00-0x1F are a
// decode error.
func Decode(buf []byte) (Instruction, error) {
	if len(buf) < InstructionSize {
		return Instruction{}, errors.Errorf("isa: short instruction buffer: %d bytes", len(buf))
	}
	op := Opcode(buf[0])
	if !op.Valid() {
		return Instruction{}, errors.Errorf("isa: invalid opcode 0x%02X", buf[0])
	}
	return Instruction{
		Op: op,
		W0: buf[1],
		W1: binary.LittleEndian.Uint16(buf[2:4]),
		W2: binary.LittleEndian.Uint16(buf[4:6]),
		W3: binary.LittleEndian.Uint16(buf[6:8]),
	}, nil
}

// Constructors for readability at lowering call sites (pkg/lower).

func RType(op Opcode, rd, rs, rt Reg) Instruction {
	return Instruction{Op: op, W1: uint16(rd), W2: uint16(rs), W3: uint16(rt)}
}

func IType(op Opcode, rd, rs Reg, imm uint16) Instruction {
	return Instruction{Op: op, W1: uint16(rd), W2: uint16(rs), W3: imm}
}

func LoadImm(rd Reg, imm uint16) Instruction {
	return Instruction{Op: OpLi, W1: uint16(rd), W2: imm}
}

func ShiftImm(op Opcode, rd, rs Reg, amount uint16) Instruction {
	return Instruction{Op: op, W1: uint16(rd), W2: uint16(rs), W3: amount & 0xF}
}

func LoadMem(rd, bankReg, addrReg Reg) Instruction {
	return Instruction{Op: OpLoad, W1: uint16(rd), W2: uint16(bankReg), W3: uint16(addrReg)}
}

func StoreMem(rs, bankReg, addrReg Reg) Instruction {
	return Instruction{Op: OpStore, W1: uint16(rs), W2: uint16(bankReg), W3: uint16(addrReg)}
}

func Jal(rd Reg, addr uint16) Instruction {
	return Instruction{Op: OpJal, W1: uint16(rd), W3: addr}
}

func Jalr(rd, rs Reg) Instruction {
	return Instruction{Op: OpJalr, W1: uint16(rd), W3: uint16(rs)}
}

func Branch(op Opcode, rs, rt Reg, offset int16) Instruction {
	return Instruction{Op: op, W1: uint16(rs), W2: uint16(rt), W3: uint16(offset)}
}

func Brk() Instruction {
	return Instruction{Op: OpBrk}
}
