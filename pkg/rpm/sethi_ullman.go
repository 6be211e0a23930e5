package rpm

import (
	"github.com/typthon/rvm-toolchain/pkg/ir"
)

// Need estimates the register pressure of materializing v: 1 for leaves
// and temps not yet resident, 2 for literal fat pointers (address + bank),
// 0 for a temp already resident in a register.
func (m *Manager) Need(v ir.Value) int {
	switch val := v.(type) {
	case ir.Temp:
		if _, resident := m.valueToReg[val.ID]; resident {
			return 0
		}
		return 1
	case ir.FatPtr:
		return 2
	default:
		return 1
	}
}

// Order returns the evaluation order for a binary op's operands: the
// heavier-need operand first. On a tie, the left operand is evaluated
// first and the caller must reserve one extra register for the join.
// Swapped reports whether the machine-level operand order must be
// reversed, which is required for non-commutative ops when evaluation
// order differs from source order.
func Order(op ir.BinaryOp, lhs, rhs ir.Value, needLhs, needRhs int) (first, second ir.Value, swapped, tie bool) {
	if needRhs > needLhs {
		if !op.Commutative() {
			return rhs, lhs, true, needLhs == needRhs
		}
		return rhs, lhs, false, needLhs == needRhs
	}
	return lhs, rhs, false, needLhs == needRhs
}
