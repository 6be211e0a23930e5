package vm

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/sirupsen/logrus"

	"github.com/typthon/rvm-toolchain/pkg/isa"
)

// RGB565Backend implements the RGB565 framebuffer display mode: 16-bit
// pixels with 5-bit red, 6-bit green, 5-bit blue, swapped into an
// *ebiten.Image on DISP_FLUSH.
type RGB565Backend struct {
	game *rgb565Game
}

func NewRGB565Backend() *RGB565Backend {
	return &RGB565Backend{}
}

func (b *RGB565Backend) Enter() error {
	b.game = &rgb565Game{}
	logrus.Debug("vm: RGB565 framebuffer session acquired")
	return nil
}

func (b *RGB565Backend) Leave() error {
	b.game = nil
	logrus.Debug("vm: RGB565 framebuffer session released")
	return nil
}

func (b *RGB565Backend) Clear() {
	if b.game != nil && b.game.image != nil {
		b.game.image.Clear()
	}
}

// Render converts the framebuffer window of bank 0, starting at
// isa.DataSectionOffset - sized by resW*resH - into RGBA8888 and swaps it
// into the backing ebiten image.
func (b *RGB565Backend) Render(mem *Memory, resW, resH uint16) {
	if b.game == nil {
		return
	}
	if b.game.image == nil || b.game.width != int(resW) || b.game.height != int(resH) {
		b.game.image = ebiten.NewImage(int(resW), int(resH))
		b.game.width, b.game.height = int(resW), int(resH)
	}

	pixels := make([]byte, int(resW)*int(resH)*4)
	for i := 0; i < int(resW)*int(resH); i++ {
		word, _ := mem.Read(0, uint16(isa.DataSectionOffset+i))
		r, g, bch := unpackRGB565(word)
		pixels[i*4+0] = r
		pixels[i*4+1] = g
		pixels[i*4+2] = bch
		pixels[i*4+3] = 0xFF
	}
	b.game.image.WritePixels(pixels)
}

func unpackRGB565(word uint16) (r, g, b byte) {
	r5 := (word >> 11) & 0x1F
	g6 := (word >> 5) & 0x3F
	b5 := word & 0x1F
	return byte(r5 << 3), byte(g6 << 2), byte(b5 << 3)
}

// rgb565Game is the minimal ebiten.Game driving the framebuffer window.
type rgb565Game struct {
	image         *ebiten.Image
	width, height int
}

func (g *rgb565Game) Update() error { return nil }

func (g *rgb565Game) Draw(screen *ebiten.Image) {
	if g.image != nil {
		screen.DrawImage(g.image, nil)
	}
}

func (g *rgb565Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	if g.width == 0 || g.height == 0 {
		return 256, 256
	}
	return g.width, g.height
}
