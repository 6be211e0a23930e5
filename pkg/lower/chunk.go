package lower

import (
	"github.com/pkg/errors"

	"github.com/typthon/rvm-toolchain/pkg/isa"
)

// PatchKind distinguishes how a forward reference is resolved once every
// label's final address is known.
type PatchKind int

const (
	// PatchCall resolves to the absolute linear instruction index of the
	// target label, written into the instruction's W3 field (JAL).
	PatchCall PatchKind = iota
	// PatchBranch resolves to a signed offset relative to the instruction
	// after the branch (target - index - 1), written into W3
	// (BEQ/BNE/BLT/BGE).
	PatchBranch
)

// Patch records that one emitted instruction's operand still needs a
// label resolved to a concrete address.
type Patch struct {
	InstIndex int
	Target    string
	Kind      PatchKind
}

// Chunk is a labeled run of instructions with any forward-reference
// patches it still owes. Module lowering concatenates chunks into one
// flat instruction stream and resolves patches against the resulting
// label->index table.
type Chunk struct {
	Label   string
	Code    []isa.Instruction
	Patches []Patch
}

// Link concatenates chunks into a single instruction stream, builds the
// label->index table, and resolves every patch. Returns an error if a
// patch names an unknown label.
func Link(chunks []Chunk) ([]isa.Instruction, map[string]int, error) {
	labels := make(map[string]int)
	var code []isa.Instruction
	for _, c := range chunks {
		if c.Label != "" {
			if _, dup := labels[c.Label]; dup {
				return nil, nil, errors.Errorf("lower: duplicate label %q", c.Label)
			}
			labels[c.Label] = len(code)
		}
		code = append(code, c.Code...)
	}

	offset := 0
	for _, c := range chunks {
		for _, p := range c.Patches {
			idx := offset + p.InstIndex
			target, ok := labels[p.Target]
			if !ok {
				return nil, nil, errors.Errorf("lower: undefined symbol %q", p.Target)
			}
			switch p.Kind {
			case PatchCall:
				code[idx].W3 = uint16(target)
			case PatchBranch:
				code[idx].W3 = uint16(int16(target - idx - 1))
			}
		}
		offset += len(c.Code)
	}
	return code, labels, nil
}
