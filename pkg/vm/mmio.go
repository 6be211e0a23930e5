package vm

import (
	"strconv"

	"github.com/typthon/rvm-toolchain/pkg/isa"
)

// execLoad and execStore implement OpLoad/OpStore, dispatching through the
// MMIO register table when the effective address aliases bank 0's device
// window.
func (v *VM) execLoad(inst isa.Instruction) error {
	rd, bankReg, addrReg := isa.Reg(inst.W1), isa.Reg(inst.W2), isa.Reg(inst.W3)
	bank, addr := v.Regs.Get(bankReg), v.Regs.Get(addrReg)

	if bank == 0 && isa.IsMMIO(addr) {
		v.Regs.Set(rd, v.readMMIO(addr))
		return nil
	}
	word, ok := v.Mem.Read(bank, addr)
	if !ok {
		return v.fault(fmtOOB("load", bank, addr))
	}
	v.Regs.Set(rd, word)
	return nil
}

func (v *VM) execStore(inst isa.Instruction) error {
	rs, bankReg, addrReg := isa.Reg(inst.W1), isa.Reg(inst.W2), isa.Reg(inst.W3)
	bank, addr := v.Regs.Get(bankReg), v.Regs.Get(addrReg)
	value := v.Regs.Get(rs)

	if bank == 0 && isa.IsMMIO(addr) {
		v.writeMMIO(addr, value)
		return nil
	}
	if !v.Mem.Write(bank, addr, value) {
		return v.fault(fmtOOB("store", bank, addr))
	}
	return nil
}

func fmtOOB(op string, bank, addr uint16) string {
	return op + " out of bounds: bank=" + strconv.Itoa(int(bank)) + " addr=" + strconv.Itoa(int(addr))
}

// readMMIO dispatches an MMIO register read. Reserved addresses and the
// write-only registers (TTY_OUT, DISP_CTL, DISP_FLUSH) read as zero.
func (v *VM) readMMIO(addr uint16) uint16 {
	switch addr {
	case isa.TTYOut:
		return 0
	case isa.TTYStatus:
		return v.TTY.status()
	case isa.TTYInPop:
		return v.TTY.popIn()
	case isa.TTYInStatus:
		return v.TTY.inStatus()
	case isa.RNG:
		return v.RNG.Next()
	case isa.RNGSeed:
		return v.RNG.Seed()
	case isa.DispMode:
		return uint16(v.Disp.Mode())
	case isa.DispStatus:
		return v.Disp.Status()
	case isa.DispCtl:
		return 0
	case isa.DispFlush:
		return 0
	case isa.KeyUp:
		return v.Keys.Poll("up")
	case isa.KeyDown:
		return v.Keys.Poll("down")
	case isa.KeyLeft:
		return v.Keys.Poll("left")
	case isa.KeyRight:
		return v.Keys.Poll("right")
	case isa.KeyZ:
		return v.Keys.Poll("z")
	case isa.KeyX:
		return v.Keys.Poll("x")
	case isa.DispResolution:
		return v.Disp.Resolution()
	default:
		return 0
	}
}

// writeMMIO dispatches an MMIO register write. Writes to read-only
// registers (TTY_STATUS, keyboard rows, DISP_STATUS) are ignored.
func (v *VM) writeMMIO(addr, value uint16) {
	switch addr {
	case isa.TTYOut:
		v.TTY.writeOut(byte(value))
	case isa.RNGSeed:
		v.RNG.SetSeed(value)
	case isa.DispMode:
		_ = v.Disp.SetMode(Mode(value))
	case isa.DispCtl:
		v.Disp.Control(value, v.Mem)
	case isa.DispFlush:
		v.Disp.Flush(value, v.Mem)
	case isa.DispResolution:
		v.Disp.SetResolution(value)
	default:
		// reserved or read-only; ignored
	}
}

// execBrk implements BRK: in debug mode it pauses execution at
// StateBreakpoint for a debugger to inspect and resume; otherwise it
// dumps full VM state and halts.
func (v *VM) execBrk() {
	if v.Debug {
		v.State = StateBreakpoint
		return
	}
	v.dump()
	v.State = StateHalted
}
