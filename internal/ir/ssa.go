package ir

// InsertPhis places an OpPhi at the dominance-frontier closure of every
// block that assigns a tracked variable, spec.md §4.5 "insert φ nodes at
// each variable's dominance frontier closure". Requires ComputeDomFrontiers
// to have run first. vars is every variable name RenameVars should later
// rename; callers normally collect it from each Instr.DefVar.
func InsertPhis(f *Function, vars []string) {
	for _, v := range vars {
		defBlocks := blocksDefining(f, v)
		hasPhi := make(map[int]bool)

		worklist := append([]*Block(nil), defBlocks...)
		for len(worklist) > 0 {
			b := worklist[0]
			worklist = worklist[1:]
			for _, d := range b.DomFrontier {
				if hasPhi[d.ID] {
					continue
				}
				hasPhi[d.ID] = true
				phi := &Instr{Op: OpPhi, DefVar: v, PhiArgs: make([]Value, len(d.Preds))}
				for i := range phi.PhiArgs {
					phi.PhiArgs[i] = VarRead(v)
				}
				d.Instrs = append([]*Instr{phi}, d.Instrs...)
				worklist = append(worklist, d)
			}
		}
	}
}

func blocksDefining(f *Function, v string) []*Block {
	var out []*Block
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.DefVar == v {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// renameState is the per-variable stack RenameVars threads down and back
// up the dominator tree, spec.md §4.5 "a stack-per-variable walk of the
// dominator tree, renaming reads on the way down and popping on the way
// up".
type renameState struct {
	f      *Function
	stacks map[string][]int
	kids   map[int][]*Block // dominator-tree children, keyed by idom block ID
}

// RenameVars converts every DefVar-tagged instruction and VarRef operand
// into plain vreg form. Requires ComputeDominators and InsertPhis to have
// run first.
func RenameVars(f *Function) {
	st := &renameState{f: f, stacks: make(map[string][]int), kids: make(map[int][]*Block)}
	for _, b := range f.Blocks {
		if b == f.Entry {
			continue
		}
		if b.IDom != nil {
			st.kids[b.IDom.ID] = append(st.kids[b.IDom.ID], b)
		}
	}
	st.renameBlock(f.Entry)
}

func (st *renameState) renameBlock(b *Block) {
	defined := map[string]int{} // var -> push count, so we pop exactly what we pushed

	for _, in := range b.Instrs {
		if in.Op != OpPhi {
			for i, a := range in.Args {
				if a.VarRef != "" {
					in.Args[i] = VReg(st.top(a.VarRef))
				}
			}
		}
		if in.DefVar != "" {
			id := st.f.NewVreg()
			in.Dst = id
			st.push(in.DefVar, id)
			defined[in.DefVar]++
		}
	}

	// Fill phi slots in every successor that corresponds to this block's
	// position in the successor's Preds list.
	for _, succ := range b.Succs {
		predIdx := -1
		for i, p := range succ.Preds {
			if p == b {
				predIdx = i
				break
			}
		}
		if predIdx < 0 {
			continue
		}
		for _, in := range succ.Instrs {
			if in.Op != OpPhi {
				continue
			}
			if predIdx < len(in.PhiArgs) && in.PhiArgs[predIdx].VarRef != "" {
				in.PhiArgs[predIdx] = VReg(st.top(in.PhiArgs[predIdx].VarRef))
			}
		}
	}

	for _, child := range st.kids[b.ID] {
		st.renameBlock(child)
	}

	for v, n := range defined {
		for i := 0; i < n; i++ {
			st.pop(v)
		}
	}
}

func (st *renameState) push(v string, id int) {
	st.stacks[v] = append(st.stacks[v], id)
}

func (st *renameState) pop(v string) {
	s := st.stacks[v]
	st.stacks[v] = s[:len(s)-1]
}

func (st *renameState) top(v string) int {
	s := st.stacks[v]
	if len(s) == 0 {
		return -1 // read before any definition reaches this path: undefined value
	}
	return s[len(s)-1]
}

// ValidateSSA reports whether every vreg has exactly one defining
// instruction (a φ counts as one), spec.md §4.5.
func ValidateSSA(f *Function) bool {
	defCount := make(map[int]int)
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if definesValue(in) {
				defCount[in.Dst]++
			}
		}
	}
	for _, n := range defCount {
		if n != 1 {
			return false
		}
	}
	return true
}

func definesValue(in *Instr) bool {
	switch in.Op {
	case OpJmp, OpBr, OpRet, OpStore:
		return false
	}
	return true
}
