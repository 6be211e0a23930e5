package lower

import "github.com/typthon/rvm-toolchain/pkg/ir"

// smallBuffer is the fixed slack the frame reserves beyond the sum of
// alloca sizes, for the Sethi-Ullman join and other incidental scratch use.
const smallBuffer = 4

// ComputeAllocaOffsets performs a linear scan of every block in
// declaration order; each alloca's offset is the running sum of prior
// allocas' sizes. Returns the offset table and the total local-slot
// count.
func ComputeAllocaOffsets(fn *ir.Function) (map[ir.TempID]int, int) {
	offsets := make(map[ir.TempID]int)
	running := 0
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Instructions {
			alloca, ok := inst.(ir.Alloca)
			if !ok {
				continue
			}
			offsets[alloca.Result.ID] = running
			running += allocaSize(alloca)
		}
	}
	return offsets, running + smallBuffer
}

func allocaSize(a ir.Alloca) int {
	size := a.AllocType.Size()
	if size == 0 {
		size = 1
	}
	if c, ok := a.Count.(ir.Constant); ok && c.Val > 1 {
		size *= int(c.Val)
	}
	// Every value occupies whole words in this architecture.
	words := (size + 1) / 2
	if words < 1 {
		words = 1
	}
	return words
}
