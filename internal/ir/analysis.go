package ir

// BlockDefUse holds one block's local def/use sets over vreg ids, spec.md
// §4.5 "compute_def_use builds per-block bitsets".
type BlockDefUse struct {
	Def map[int]bool // defined in this block before any use
	Use map[int]bool // used in this block before any local def
}

// ComputeDefUse builds the per-block def/use sets ComputeLiveness iterates
// on top of.
func ComputeDefUse(f *Function) map[int]*BlockDefUse {
	out := make(map[int]*BlockDefUse, len(f.Blocks))
	for _, b := range f.Blocks {
		du := &BlockDefUse{Def: map[int]bool{}, Use: map[int]bool{}}
		for _, in := range b.Instrs {
			for _, a := range operandVregs(in) {
				if !du.Def[a] {
					du.Use[a] = true
				}
			}
			if definesValue(in) {
				du.Def[in.Dst] = true
			}
		}
		out[b.ID] = du
	}
	return out
}

func operandVregs(in *Instr) []int {
	var out []int
	for _, a := range in.Args {
		if !a.IsConst && a.VarRef == "" {
			out = append(out, a.Vreg)
		}
	}
	for _, a := range in.PhiArgs {
		if !a.IsConst && a.VarRef == "" {
			out = append(out, a.Vreg)
		}
	}
	if in.Op == OpBr && !in.Cond.IsConst {
		out = append(out, in.Cond.Vreg)
	}
	return out
}

// LiveSets is live-in/live-out per block, keyed by block ID.
type LiveSets struct {
	In  map[int]map[int]bool
	Out map[int]map[int]bool
}

// ComputeLiveness runs the standard backward dataflow to a fixed point
// over reverse postorder, spec.md §4.5 "compute_liveness iterates
// backward dataflow to fixed point over reverse postorder".
func ComputeLiveness(f *Function) *LiveSets {
	du := ComputeDefUse(f)
	rpo := ReversePostorder(f)

	sets := &LiveSets{In: map[int]map[int]bool{}, Out: map[int]map[int]bool{}}
	for _, b := range f.Blocks {
		sets.In[b.ID] = map[int]bool{}
		sets.Out[b.ID] = map[int]bool{}
	}

	changed := true
	for changed {
		changed = false
		for i := len(rpo) - 1; i >= 0; i-- {
			b := rpo[i]
			out := map[int]bool{}
			for _, s := range b.Succs {
				for v := range sets.In[s.ID] {
					out[v] = true
				}
			}

			in := map[int]bool{}
			for v := range du[b.ID].Use {
				in[v] = true
			}
			for v := range out {
				if !du[b.ID].Def[v] {
					in[v] = true
				}
			}

			if !sameSet(in, sets.In[b.ID]) || !sameSet(out, sets.Out[b.ID]) {
				sets.In[b.ID] = in
				sets.Out[b.ID] = out
				changed = true
			}
		}
	}
	return sets
}

func sameSet(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// ReachingDefs maps each block to the set of defining instructions
// reaching its entry, keyed by (vreg, defining-block-ID) pairs so the same
// vreg defined in two blocks (pre-SSA) is tracked separately, spec.md §4.5
// "compute_reaching_defs is a forward dataflow".
type ReachingDefs map[int]map[[2]int]bool // blockID -> set of (vreg, defBlockID)

func ComputeReachingDefs(f *Function) ReachingDefs {
	gen := make(map[int]map[[2]int]bool, len(f.Blocks))
	kill := make(map[int]map[int]bool, len(f.Blocks)) // blockID -> vregs it redefines

	for _, b := range f.Blocks {
		g := map[[2]int]bool{}
		k := map[int]bool{}
		for _, in := range b.Instrs {
			if definesValue(in) {
				g[[2]int{in.Dst, b.ID}] = true
				k[in.Dst] = true
			}
		}
		gen[b.ID] = g
		kill[b.ID] = k
	}

	rpo := ReversePostorder(f)
	out := make(ReachingDefs, len(f.Blocks))
	for _, b := range f.Blocks {
		out[b.ID] = map[[2]int]bool{}
	}

	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			in := map[[2]int]bool{}
			for _, p := range b.Preds {
				for d := range out[p.ID] {
					in[d] = true
				}
			}

			next := map[[2]int]bool{}
			for d := range in {
				if !kill[b.ID][d[0]] {
					next[d] = true
				}
			}
			for d := range gen[b.ID] {
				next[d] = true
			}

			if !sameDefSet(next, out[b.ID]) {
				out[b.ID] = next
				changed = true
			}
		}
	}
	return out
}

func sameDefSet(a, b map[[2]int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// Loop is one natural loop: a header block dominating every block in its
// body, plus the back edge's source.
type Loop struct {
	Header *Block
	Latch  *Block
	Body   map[int]*Block
	Depth  int
}

// DetectLoops finds back edges (an edge whose target dominates its
// source) and computes each natural loop's body by walking predecessors
// backward from the latch until the header is reached, spec.md §4.5
// "detect_loops finds back edges... and computes each natural loop's body
// and nesting depth". Requires ComputeDominators to have run first.
func DetectLoops(f *Function) []*Loop {
	var loops []*Loop
	for _, b := range f.Blocks {
		for _, s := range b.Succs {
			if Dominates(s, b) {
				loops = append(loops, natural(s, b))
			}
		}
	}
	assignDepths(loops)
	return loops
}

func natural(header, latch *Block) *Loop {
	body := map[int]*Block{header.ID: header}
	stack := []*Block{latch}
	body[latch.ID] = latch
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range b.Preds {
			if _, ok := body[p.ID]; !ok {
				body[p.ID] = p
				stack = append(stack, p)
			}
		}
	}
	return &Loop{Header: header, Latch: latch, Body: body}
}

// assignDepths sets each loop's nesting depth by counting how many other
// loops' bodies fully contain it.
func assignDepths(loops []*Loop) {
	for _, l := range loops {
		depth := 1
		for _, other := range loops {
			if other == l {
				continue
			}
			if containsLoop(other, l) {
				depth++
			}
		}
		l.Depth = depth
	}
}

func containsLoop(outer, inner *Loop) bool {
	if outer.Header == inner.Header {
		return false
	}
	for id := range inner.Body {
		if _, ok := outer.Body[id]; !ok {
			return false
		}
	}
	return true
}
