package binary

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/typthon/rvm-toolchain/pkg/isa"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	img := &Image{
		BankSize:   256,
		EntryPoint: 0,
		Instructions: []isa.Instruction{
			isa.LoadImm(isa.T0, 42),
			isa.Halt,
		},
		Data: []byte{0x01, 0x02, 0x03},
	}
	decoded, err := Decode(Encode(img))
	require.NoError(t, err)
	require.Equal(t, img.BankSize, decoded.BankSize)
	require.Equal(t, img.EntryPoint, decoded.EntryPoint)
	require.Equal(t, img.Instructions, decoded.Instructions)
	require.Equal(t, img.Data, decoded.Data)
	require.Nil(t, decoded.Debug)
}

func TestEncodeDecodeWithDebugSection(t *testing.T) {
	img := &Image{
		BankSize:     256,
		EntryPoint:   0,
		Instructions: []isa.Instruction{isa.Halt},
		Data:         nil,
		Debug:        map[int]string{0: "main"},
	}
	decoded, err := Decode(Encode(img))
	require.NoError(t, err)
	require.Equal(t, "main", decoded.Debug[0])
}

func TestDecodeBadMagic(t *testing.T) {
	_, err := Decode([]byte("NOPE!extra bytes here"))
	require.Error(t, err)
}

func TestDecodeTruncatedInstructionStream(t *testing.T) {
	var w writer
	w.bytes([]byte(Magic))
	w.u16(256)
	w.u32(0)
	w.u32(2) // claims 2 instructions
	w.bytes(isaEncodeOne())
	_, err := Decode(w.buf)
	require.Error(t, err)
}

func isaEncodeOne() []byte {
	enc := isa.Halt.Encode()
	return enc[:]
}

func TestDecodeMissingDebugSectionIsNotAnError(t *testing.T) {
	img := &Image{BankSize: 64, Instructions: []isa.Instruction{isa.Halt}}
	decoded, err := Decode(Encode(img))
	require.NoError(t, err)
	require.Nil(t, decoded.Debug)
}
