// Package binary reads and writes the RLINK linked-binary format consumed
// by the VM loader.
package binary

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/typthon/rvm-toolchain/pkg/isa"
)

// Magic is the fixed 5-byte file signature.
const Magic = "RLINK"

const debugMagic = "DEBUG"

// Image is a fully linked program ready to load into the VM.
type Image struct {
	BankSize      uint16
	EntryPoint    uint32
	Instructions  []isa.Instruction
	Data          []byte
	Debug         map[int]string // instruction index -> symbol name, nil if absent
}

// Decode parses an RLINK image, failing on bad magic, a truncated section,
// or an inconsistent instruction count.
func Decode(buf []byte) (*Image, error) {
	r := &reader{buf: buf}

	magic, err := r.take(5)
	if err != nil {
		return nil, errors.Wrap(err, "binary: truncated magic")
	}
	if string(magic) != Magic {
		return nil, errors.Errorf("binary: bad magic %q, want %q", magic, Magic)
	}

	bankSize, err := r.u16()
	if err != nil {
		return nil, errors.Wrap(err, "binary: truncated bank_size")
	}
	entry, err := r.u32()
	if err != nil {
		return nil, errors.Wrap(err, "binary: truncated entry_point")
	}
	count, err := r.u32()
	if err != nil {
		return nil, errors.Wrap(err, "binary: truncated instruction_count")
	}

	instructions := make([]isa.Instruction, 0, count)
	for i := uint32(0); i < count; i++ {
		raw, err := r.take(isa.InstructionSize)
		if err != nil {
			return nil, errors.Wrapf(err, "binary: truncated instruction stream at %d/%d", i, count)
		}
		inst, err := isa.Decode(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "binary: instruction %d", i)
		}
		instructions = append(instructions, inst)
	}
	if uint32(len(instructions)) != count {
		return nil, errors.Errorf("binary: inconsistent instruction count: header says %d, read %d", count, len(instructions))
	}

	dataSize, err := r.u32()
	if err != nil {
		return nil, errors.Wrap(err, "binary: truncated data_section_size")
	}
	data, err := r.take(int(dataSize))
	if err != nil {
		return nil, errors.Wrap(err, "binary: truncated data section")
	}

	img := &Image{
		BankSize:     bankSize,
		EntryPoint:   entry,
		Instructions: instructions,
		Data:         data,
	}

	// The DEBUG section is optional; its absence (EOF here) is not an
	// error.
	if r.remaining() == 0 {
		return img, nil
	}

	tag, err := r.take(5)
	if err != nil {
		return img, nil
	}
	if string(tag) != debugMagic {
		return nil, errors.Errorf("binary: bad DEBUG section tag %q", tag)
	}

	debugCount, err := r.u32()
	if err != nil {
		return nil, errors.Wrap(err, "binary: truncated debug_count")
	}
	debug := make(map[int]string, debugCount)
	for i := uint32(0); i < debugCount; i++ {
		nameLen, err := r.u32()
		if err != nil {
			return nil, errors.Wrapf(err, "binary: truncated debug entry %d name_len", i)
		}
		name, err := r.take(int(nameLen))
		if err != nil {
			return nil, errors.Wrapf(err, "binary: truncated debug entry %d name", i)
		}
		idx, err := r.u32()
		if err != nil {
			return nil, errors.Wrapf(err, "binary: truncated debug entry %d instruction_index", i)
		}
		debug[int(idx)] = string(name)
	}
	img.Debug = debug
	return img, nil
}

// Encode serializes img to the RLINK wire format.
func Encode(img *Image) []byte {
	var w writer
	w.bytes([]byte(Magic))
	w.u16(img.BankSize)
	w.u32(img.EntryPoint)
	w.u32(uint32(len(img.Instructions)))
	for _, inst := range img.Instructions {
		enc := inst.Encode()
		w.bytes(enc[:])
	}
	w.u32(uint32(len(img.Data)))
	w.bytes(img.Data)

	if img.Debug != nil {
		w.bytes([]byte(debugMagic))
		w.u32(uint32(len(img.Debug)))
		for idx, name := range img.Debug {
			w.u32(uint32(len(name)))
			w.bytes([]byte(name))
			w.u32(uint32(idx))
		}
	}
	return w.buf
}

// reader is a small little-endian cursor over a byte slice.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, errors.Errorf("unexpected end of buffer wanting %d bytes, have %d", n, r.remaining())
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

type writer struct {
	buf []byte
}

func (w *writer) bytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *writer) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.bytes(b[:])
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.bytes(b[:])
}
