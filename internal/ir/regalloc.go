package ir

import "github.com/samber/lo"

// interval is a vreg's live range expressed as [start, end] instruction
// indices in a single linearized numbering over the function's reverse
// postorder block order, spec.md §4.5 "linear-scan over live intervals
// computed from liveness".
type interval struct {
	vreg       int
	start, end int
}

// LinearScan assigns each vreg a physical register from regs, spilling the
// interval whose end is furthest in the future when the free pool runs
// out, spec.md §4.5 "linear-scan register allocation: process intervals in
// increasing start order, keep a free-pool of physical registers, and
// spill the interval ending furthest in the future when the pool is
// empty". Requires BuildCFG to have run first; each interval runs from a
// vreg's first to its last def/use index in reverse-postorder and is not
// taken from ComputeLiveness. Results are written to f.VregToPhys and
// f.Spilled.
func LinearScan(f *Function, regs []string) {
	intervals := computeIntervals(f)

	f.VregToPhys = make(map[int]string)
	f.Spilled = make(map[int]int)

	var active []interval
	free := append([]string(nil), regs...)
	nextSpillSlot := 0

	for _, iv := range intervals {
		expired := lo.Filter(active, func(a interval, _ int) bool { return a.end < iv.start })
		for _, a := range expired {
			free = append(free, f.VregToPhys[a.vreg])
		}
		active = lo.Filter(active, func(a interval, _ int) bool { return a.end >= iv.start })

		if len(free) == 0 {
			furthest := lo.MaxBy(active, func(a, b interval) bool { return a.end > b.end })
			if furthest.end > iv.end {
				idx := lo.IndexOf(active, furthest)
				reg := f.VregToPhys[furthest.vreg]
				delete(f.VregToPhys, furthest.vreg)
				f.Spilled[furthest.vreg] = nextSpillSlot
				nextSpillSlot++
				active = append(active[:idx], active[idx+1:]...)
				f.VregToPhys[iv.vreg] = reg
				active = append(active, iv)
			} else {
				f.Spilled[iv.vreg] = nextSpillSlot
				nextSpillSlot++
			}
			continue
		}

		reg := free[0]
		free = free[1:]
		f.VregToPhys[iv.vreg] = reg
		active = append(active, iv)
	}
}

// computeIntervals linearizes instructions in reverse-postorder block
// order and, for each vreg, records the first definition/use index as
// start and the last use index as end.
func computeIntervals(f *Function) []interval {
	order := ReversePostorder(f)

	type span struct{ start, end int }
	spans := make(map[int]*span)
	idx := 0

	touch := func(v int, i int) {
		s, ok := spans[v]
		if !ok {
			spans[v] = &span{start: i, end: i}
			return
		}
		if i < s.start {
			s.start = i
		}
		if i > s.end {
			s.end = i
		}
	}

	for _, b := range order {
		for _, in := range b.Instrs {
			if definesValue(in) {
				touch(in.Dst, idx)
			}
			for _, v := range operandVregs(in) {
				touch(v, idx)
			}
			idx++
		}
	}

	out := make([]interval, 0, len(spans))
	for v, s := range spans {
		out = append(out, interval{vreg: v, start: s.start, end: s.end})
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].start < out[i].start {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}
