// Package linker turns a lowered module into a linked RLINK binary image.
// It replaces shelling out to a system linker: the banked VM's own loader
// is the only consumer of this format.
package linker

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/typthon/rvm-toolchain/pkg/binary"
	"github.com/typthon/rvm-toolchain/pkg/ir"
	"github.com/typthon/rvm-toolchain/pkg/lower"
)

// EntrySymbol is the function name the linker resolves to the program's
// entry point. If the module emits `_init_globals`, the program starts
// there instead so globals are initialized before main runs.
const EntrySymbol = "main"

// initGlobalsLabel mirrors globals.InitGlobalsLabel; duplicated here as a
// constant rather than importing pkg/globals, since the linker only needs
// the label's resolved address from the lowering driver's label table.
const initGlobalsLabel = "_init_globals"

// Linker drives lowering and assembles the result into an Image, and
// optionally attaches a debug-symbol table.
type Linker struct {
	BankSize    uint16
	EmitDebug   bool
	DataSection []byte
}

func New(bankSize uint16) *Linker {
	return &Linker{BankSize: bankSize}
}

// Link lowers mod and produces a linked binary.Image, returning a linking
// error if the entry symbol is undefined.
func (l *Linker) Link(mod *ir.Module) (*binary.Image, error) {
	code, labels, err := lower.LowerModule(mod, int(l.BankSize))
	if err != nil {
		return nil, errors.Wrap(err, "linker: lowering failed")
	}

	entryLabel := EntrySymbol
	if _, ok := labels[initGlobalsLabel]; ok {
		entryLabel = initGlobalsLabel
	}
	entry, ok := labels[entryLabel]
	if !ok {
		return nil, errors.Errorf("linker: undefined entry symbol %q", entryLabel)
	}

	img := &binary.Image{
		BankSize:     l.BankSize,
		EntryPoint:   uint32(entry),
		Instructions: code,
		Data:         l.DataSection,
	}

	if l.EmitDebug {
		img.Debug = debugSymbols(labels)
	}

	logrus.WithFields(logrus.Fields{
		"instructions": len(code),
		"entry":        entry,
		"functions":    len(mod.Functions),
	}).Info("linker: linked module")

	return img, nil
}

// debugSymbols keeps only function-entry labels (excludes internal block
// and epilogue labels) so the DEBUG section stays readable in a dump.
func debugSymbols(labels map[string]int) map[int]string {
	out := make(map[int]string)
	for name, idx := range labels {
		if isInternalLabel(name) {
			continue
		}
		out[idx] = name
	}
	return out
}

func isInternalLabel(name string) bool {
	for _, r := range name {
		if r == '.' {
			return true
		}
	}
	return false
}
