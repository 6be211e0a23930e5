package vm

import (
	"github.com/gdamore/tcell/v2"
	"github.com/sirupsen/logrus"

	"github.com/typthon/rvm-toolchain/pkg/isa"
)

// text40Palette maps the VM's 4-bit color attribute onto a themed
// tcell.Color, recovered loosely from the terminal theme the original's
// TEXT40 renderer used (ANSI 16-color palette).
var text40Palette = [16]tcell.Color{
	tcell.ColorBlack, tcell.ColorMaroon, tcell.ColorGreen, tcell.ColorOlive,
	tcell.ColorNavy, tcell.ColorPurple, tcell.ColorTeal, tcell.ColorSilver,
	tcell.ColorGray, tcell.ColorRed, tcell.ColorLime, tcell.ColorYellow,
	tcell.ColorBlue, tcell.ColorFuchsia, tcell.ColorAqua, tcell.ColorWhite,
}

// Text40Backend implements the TEXT40 40x25 character display mode as a
// scoped, panic-safe terminal resource: acquisition enters the alternate
// screen, raw mode, and hides the cursor; release reverses all three,
// and a defer/recover
// wrapper guarantees release even across a panic, since this package
// avoids mutating Go's global panic handler.
type Text40Backend struct {
	screen tcell.Screen
}

func NewText40Backend() *Text40Backend {
	return &Text40Backend{}
}

func (b *Text40Backend) Enter() error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	screen.EnableMouse()
	screen.HideCursor()
	screen.Clear()
	b.screen = screen
	logrus.Debug("vm: TEXT40 terminal session acquired")
	return nil
}

func (b *Text40Backend) Leave() error {
	if b.screen == nil {
		return nil
	}
	b.screen.ShowCursor(0, 0)
	b.screen.Fini()
	b.screen = nil
	logrus.Debug("vm: TEXT40 terminal session released")
	return nil
}

func (b *Text40Backend) Clear() {
	if b.screen != nil {
		b.screen.Clear()
	}
}

// Render reads the 40x25 VRAM grid from bank 0 and paints it. Each word
// packs a character in the low byte and a 4-bit fg/bg attribute pair in
// the high byte.
func (b *Text40Backend) Render(mem *Memory, _, _ uint16) {
	if b.screen == nil {
		return
	}
	defer b.guardPanic()

	const cols, rows = 40, 25
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			word, _ := mem.Read(0, uint16(isa.TEXT40BaseWord+y*cols+x))
			ch := rune(word & 0xFF)
			if ch == 0 {
				ch = ' '
			}
			attr := (word >> 8) & 0xFF
			fg := text40Palette[attr&0xF]
			bg := text40Palette[(attr>>4)&0xF]
			style := tcell.StyleDefault.Foreground(fg).Background(bg)
			b.screen.SetContent(x, y, ch, nil, style)
		}
	}
	b.screen.Show()
}

// guardPanic ensures the terminal is released even if a render call
// panics mid-frame, restoring the terminal without installing a
// process-global hook.
func (b *Text40Backend) guardPanic() {
	if r := recover(); r != nil {
		_ = b.Leave()
		panic(r)
	}
}
