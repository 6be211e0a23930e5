package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/typthon/rvm-toolchain/pkg/isa"
)

func newTestVM(code []isa.Instruction) *VM {
	v := New(code, 256, 2)
	v.SetEntry(0)
	return v
}

func TestInstructionEncodeDecodeRoundTrip(t *testing.T) {
	inst := isa.RType(isa.OpAdd, isa.T0, isa.T1, isa.T2)
	buf := inst.Encode()
	decoded, err := isa.Decode(buf[:])
	require.NoError(t, err)
	require.Equal(t, inst, decoded)
}

func TestR0AlwaysZeroAfterStep(t *testing.T) {
	code := []isa.Instruction{
		isa.LoadImm(isa.R0, 0xBEEF),
		isa.Halt,
	}
	v := newTestVM(code)
	require.NoError(t, v.Step())
	require.Equal(t, uint16(0), v.Regs.Get(isa.R0))
}

func TestDivideByZeroYieldsZeroAndContinues(t *testing.T) {
	code := []isa.Instruction{
		isa.LoadImm(isa.T0, 10),
		isa.LoadImm(isa.T1, 0),
		isa.RType(isa.OpDiv, isa.T2, isa.T0, isa.T1),
		isa.RType(isa.OpMod, isa.T3, isa.T0, isa.T1),
		isa.Halt,
	}
	v := newTestVM(code)
	require.NoError(t, v.Run())
	require.Equal(t, StateHalted, v.State)
	require.Equal(t, uint16(0), v.Regs.Get(isa.T2))
	require.Equal(t, uint16(0), v.Regs.Get(isa.T3))
}

func TestHaltStopsExecution(t *testing.T) {
	code := []isa.Instruction{
		isa.Halt,
		isa.LoadImm(isa.T0, 1), // never reached
	}
	v := newTestVM(code)
	require.NoError(t, v.Run())
	require.Equal(t, StateHalted, v.State)
	require.Equal(t, uint16(0), v.Regs.Get(isa.T0))
}

func TestPCOutOfBoundsFaults(t *testing.T) {
	code := []isa.Instruction{isa.RType(isa.OpAdd, isa.T0, isa.T0, isa.T0)}
	v := newTestVM(code)
	v.Regs.Set(isa.PC, 5)
	err := v.Step()
	require.Error(t, err)
	require.Equal(t, StateError, v.State)
}

func TestBranchTakenAdjustsPC(t *testing.T) {
	code := []isa.Instruction{
		isa.LoadImm(isa.T0, 1),
		isa.LoadImm(isa.T1, 1),
		isa.Branch(isa.OpBeq, isa.T0, isa.T1, 1), // skip the next instruction
		isa.LoadImm(isa.T2, 0xFFFF),              // skipped
		isa.LoadImm(isa.T3, 7),
		isa.Halt,
	}
	v := newTestVM(code)
	require.NoError(t, v.Run())
	require.Equal(t, uint16(0), v.Regs.Get(isa.T2))
	require.Equal(t, uint16(7), v.Regs.Get(isa.T3))
}

func TestJalAndJalrLinkReturnAddress(t *testing.T) {
	code := []isa.Instruction{
		isa.Jal(isa.RA, 3),        // 0: call linear index 3, links RA=1
		isa.Halt,                  // 1: returned to via RA below
		isa.Halt,                  // 2
		isa.LoadImm(isa.T0, 42),   // 3: callee body
		isa.Jalr(isa.RAB, isa.RA), // 4: return via RA (linear index 1)
	}
	v := newTestVM(code)
	require.NoError(t, v.Run())
	require.Equal(t, uint16(42), v.Regs.Get(isa.T0))
	require.Equal(t, StateHalted, v.State)
}

func TestRNGSeedRoundTrip(t *testing.T) {
	v := newTestVM([]isa.Instruction{isa.Halt})
	v.RNG.SetSeed(0x1234)
	require.Equal(t, uint16(0x1234), v.RNG.Seed())
}

func TestTEXT40VRAMWriteReadRoundTrip(t *testing.T) {
	v := newTestVM([]isa.Instruction{isa.Halt})
	addr := uint16(isa.TEXT40BaseWord + 10)
	v.Mem.Write(0, addr, 0x4120) // 'A' with attribute
	word, ok := v.Mem.Read(0, addr)
	require.True(t, ok)
	require.Equal(t, uint16(0x4120), word)
}

func TestMMIOTTYOutWriteDoesNotTouchRAM(t *testing.T) {
	var captured []byte
	v := newTestVM([]isa.Instruction{isa.Halt})
	v.TTY.Out = func(b byte) { captured = append(captured, b) }

	v.writeMMIO(isa.TTYOut, uint16('H'))
	require.Equal(t, []byte{'H'}, captured)
	require.Equal(t, uint16(0), v.TTY.status())
	word, ok := v.Mem.Read(0, isa.TTYOut)
	require.True(t, ok)
	require.Equal(t, uint16(0), word)
}

func TestBrkNonDebugHaltsAndDumps(t *testing.T) {
	code := []isa.Instruction{
		isa.LoadImm(isa.T0, 99),
		isa.Brk(),
	}
	v := newTestVM(code)
	require.NoError(t, v.Run())
	require.Equal(t, StateHalted, v.State)
	require.Contains(t, v.DumpString(), "T0")
}

func TestBrkDebugModePauses(t *testing.T) {
	v := newTestVM([]isa.Instruction{isa.Brk(), isa.Halt})
	v.Debug = true
	require.NoError(t, v.Run())
	require.Equal(t, StateBreakpoint, v.State)
}

func TestKeyboardAutoClear(t *testing.T) {
	pressed := true
	v := newTestVM([]isa.Instruction{isa.Halt})
	v.Keys.KeySource = func(name string) bool { return pressed }

	require.Equal(t, uint16(1), v.Keys.Poll("up"))
	pressed = false
	for i := 0; i < keyAutoClearReads; i++ {
		require.Equal(t, uint16(1), v.Keys.Poll("up"))
	}
	require.Equal(t, uint16(0), v.Keys.Poll("up"))
}
