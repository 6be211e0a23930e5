package vm

import "github.com/typthon/rvm-toolchain/pkg/isa"

// Mode is the display device's mode register.
type Mode int

const (
	DisplayOff Mode = iota
	DisplayText40
	DisplayRGB565
)

// Backend is satisfied by a concrete display implementation: TEXT40 (tcell)
// or RGB565 (ebiten). Acquisition/release model a scoped, panic-safe
// terminal resource.
type Backend interface {
	Enter() error
	Leave() error
	Clear()
	Render(mem *Memory, resW, resH uint16)
}

// Display is the MMIO-facing device controller for DISP_MODE, DISP_STATUS,
// DISP_CTL, DISP_FLUSH, and DISP_RESOLUTION.
type Display struct {
	Text40 Backend
	RGB565 Backend

	mode     Mode
	active   Backend
	enabled  bool
	lastCtl  uint16 // previous DISP_CTL write, for CLEAR edge detection
	resW     uint16
	resH     uint16
}

func NewDisplay(text40, rgb565 Backend) *Display {
	return &Display{Text40: text40, RGB565: rgb565, resW: 256, resH: 256}
}

// SetMode transitions between OFF, TEXT40, and RGB565, entering/leaving
// the corresponding backend as a side effect.
func (d *Display) SetMode(mode Mode) error {
	if d.active != nil {
		if err := d.active.Leave(); err != nil {
			return err
		}
		d.active = nil
	}
	d.mode = mode
	switch mode {
	case DisplayText40:
		d.active = d.Text40
	case DisplayRGB565:
		d.active = d.RGB565
	}
	if d.active != nil {
		return d.active.Enter()
	}
	return nil
}

func (d *Display) Mode() Mode { return d.mode }

func (d *Display) Status() uint16 {
	if d.active != nil {
		return 1
	}
	return 0
}

// Control handles DISP_CTL: bit 0 enables, an edge-triggered bit 1 clears
// the text grid.
func (d *Display) Control(value uint16, mem *Memory) {
	d.enabled = value&0x1 != 0
	rising := value&0x2 != 0 && d.lastCtl&0x2 == 0
	d.lastCtl = value
	if rising && d.active != nil {
		d.active.Clear()
		for i := 0; i < isa.TEXT40WordCount; i++ {
			mem.Write(0, uint16(isa.TEXT40BaseWord+i), 0)
		}
	}
}

// Flush triggers rendering of the current mode on a write of any nonzero
// value.
func (d *Display) Flush(value uint16, mem *Memory) {
	if value == 0 || d.active == nil {
		return
	}
	d.active.Render(mem, d.resW, d.resH)
}

// Resolution packs width (hi8) and height (lo8) for RGB565.
func (d *Display) Resolution() uint16 {
	return (d.resW&0xFF)<<8 | (d.resH & 0xFF)
}

func (d *Display) SetResolution(packed uint16) {
	d.resW = (packed >> 8) & 0xFF
	d.resH = packed & 0xFF
}
