// Package bank tracks the bank origin of every pointer SSA value in a
// side table, kept separate from pkg/ir's value representation so that
// values stay small and lookups stay explicit.
package bank

import (
	"github.com/pkg/errors"

	"github.com/typthon/rvm-toolchain/pkg/ir"
	"github.com/typthon/rvm-toolchain/pkg/isa"
)

// Kind classifies how a pointer's bank is known.
type Kind int

const (
	Stack Kind = iota
	Global
	Register
)

func (k Kind) String() string {
	switch k {
	case Stack:
		return "stack"
	case Global:
		return "global"
	case Register:
		return "register"
	default:
		return "?"
	}
}

// Info is the bank binding for one pointer SSA name: Stack, Global, or
// Register(r) where r holds the runtime bank value.
type Info struct {
	Kind Kind
	Reg  isa.Reg // valid iff Kind == Register
}

// Table is the per-function mapping from pointer SSA name to Info. Every
// pointer-typed Temp in registerized form must have an entry before use;
// absence is a compiler bug.
type Table struct {
	bindings map[ir.TempID]Info
}

func NewTable() *Table {
	return &Table{bindings: make(map[ir.TempID]Info)}
}

// Bind records id's bank binding, overwriting any prior entry. Pointers
// may be rebound as they move between registers (e.g. on reload).
func (t *Table) Bind(id ir.TempID, info Info) {
	t.bindings[id] = info
}

// Lookup returns id's bank binding. Using a pointer without a bank
// binding is a fatal compile-time error, so a missing entry returns one.
func (t *Table) Lookup(id ir.TempID) (Info, error) {
	info, ok := t.bindings[id]
	if !ok {
		return Info{}, errors.Errorf("bank: pointer %%t%d has no bank binding", id)
	}
	return info, nil
}

// Has reports whether id has a recorded binding, without erroring.
func (t *Table) Has(id ir.TempID) bool {
	_, ok := t.bindings[id]
	return ok
}

// FromTag converts a static ir.BankTag (known at IR-construction time)
// into a bank.Info where possible. BankMixed and BankUnknown have no
// static Info and must be resolved to Register(r) during lowering.
func FromTag(tag ir.BankTag) (Info, bool) {
	switch tag {
	case ir.BankStack:
		return Info{Kind: Stack}, true
	case ir.BankGlobal:
		return Info{Kind: Global}, true
	default:
		return Info{}, false
	}
}
