// Package lower implements per-IR-instruction lowering to machine
// instructions and the module lowering driver that walks a module's
// functions applying it.
package lower

import "fmt"

// NameGenerator mints fresh symbolic labels for a single function's
// lowering pass (branch joins, select arms, call epilogues). A fresh
// generator is created per function.
type NameGenerator struct {
	prefix  string
	counter int
}

func NewNameGenerator(functionName string) *NameGenerator {
	return &NameGenerator{prefix: functionName}
}

func (n *NameGenerator) Fresh(kind string) string {
	n.counter++
	return fmt.Sprintf("%s.%s.%d", n.prefix, kind, n.counter)
}

// BlockLabel names the symbolic label for an IR basic block id.
func (n *NameGenerator) BlockLabel(id int) string {
	return fmt.Sprintf("%s.bb%d", n.prefix, id)
}

// EpilogueLabel is the single common exit label per function.
func (n *NameGenerator) EpilogueLabel() string {
	return n.prefix + ".epilogue"
}
