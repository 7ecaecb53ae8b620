package ir

import "fmt"

// latticeState is SCCP's per-vreg lattice value: undefined until proven
// otherwise, a known constant, or overdefined once two different constants
// (or a non-constant def) reach it, spec.md §4.5 "SCCP tracks a lattice of
// {undef, constant(v), overdefined} together with executable CFG edges".
type latticeState int

const (
	latUndef latticeState = iota
	latConst
	latOverdefined
)

type lattice struct {
	state latticeState
	value int64
}

// SCCP runs sparse conditional constant propagation: it tracks which CFG
// edges are executable alongside each vreg's lattice value, and only
// evaluates an instruction once the block containing it is reached via an
// executable edge. The result is the per-vreg lattice map; SCCP does not
// rewrite Instr.Args and does not fold branches, so every terminator is
// left as it was. Requires BuildCFG to have run first.
func SCCP(f *Function) map[int]lattice {
	vals := make(map[int]lattice)
	executable := make(map[[2]int]bool) // (fromBlockID, toBlockID)
	blockReached := map[int]bool{}

	// A pseudo-edge into the entry block makes the entry's own instructions
	// get evaluated and lets its terminator pick the executable out-edges.
	cfgWork := [][2]int{{-1, f.Entry.ID}}
	ssaWork := []int{}

	get := func(v Value) lattice {
		if v.IsConst {
			return lattice{state: latConst, value: v.Const}
		}
		return vals[v.Vreg]
	}
	meet := func(cur lattice, v lattice) lattice {
		if v.state == latOverdefined {
			return lattice{state: latOverdefined}
		}
		if cur.state == latUndef {
			return v
		}
		if cur.state == latConst && v.state == latConst && cur.value != v.value {
			return lattice{state: latOverdefined}
		}
		return cur
	}

	blocksByID := make(map[int]*Block, len(f.Blocks))
	for _, b := range f.Blocks {
		blocksByID[b.ID] = b
	}

	visitInstr := func(b *Block, in *Instr) {
		if !definesValue(in) {
			return
		}
		var result lattice
		switch in.Op {
		case OpConst:
			result = lattice{state: latConst, value: in.Args[0].Const}
		case OpCopy:
			result = get(in.Args[0])
		case OpPhi:
			result = lattice{state: latUndef}
			for i, a := range in.PhiArgs {
				if i >= len(b.Preds) {
					break
				}
				if !executable[[2]int{b.Preds[i].ID, b.ID}] {
					continue
				}
				result = meet(result, get(a))
			}
		case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpAnd, OpOr, OpXor, OpShl, OpShr,
			OpCmpEq, OpCmpNe, OpCmpLt, OpCmpLe, OpCmpGt, OpCmpGe:
			a, bb := get(in.Args[0]), get(in.Args[1])
			if a.state == latOverdefined || bb.state == latOverdefined {
				result = lattice{state: latOverdefined}
			} else if a.state == latUndef || bb.state == latUndef {
				result = lattice{state: latUndef}
			} else {
				v, ok := foldBinOp(in.Op, a.value, bb.value)
				if ok {
					result = lattice{state: latConst, value: v}
				} else {
					result = lattice{state: latOverdefined}
				}
			}
		case OpNeg:
			a := get(in.Args[0])
			if a.state == latConst {
				result = lattice{state: latConst, value: -a.value}
			} else {
				result = lattice{state: a.state}
			}
		case OpNot:
			a := get(in.Args[0])
			if a.state == latConst {
				result = lattice{state: latConst, value: ^a.value}
			} else {
				result = lattice{state: a.state}
			}
		default:
			result = lattice{state: latOverdefined}
		}

		old := vals[in.Dst]
		merged := meet(old, result)
		if merged != old {
			vals[in.Dst] = merged
			ssaWork = append(ssaWork, in.Dst)
		}
	}

	vregUsers := make(map[int][]*Instr)
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			for _, a := range operandVregs(in) {
				vregUsers[a] = append(vregUsers[a], in)
			}
		}
	}

	for len(cfgWork) > 0 || len(ssaWork) > 0 {
		for len(cfgWork) > 0 {
			e := cfgWork[0]
			cfgWork = cfgWork[1:]
			if executable[e] {
				continue
			}
			executable[e] = true
			toBlock := blocksByID[e[1]]
			firstVisit := !blockReached[toBlock.ID]
			blockReached[toBlock.ID] = true

			for _, in := range toBlock.Instrs {
				visitInstr(toBlock, in)
			}
			if firstVisit {
				switch toBlock.Term.Op {
				case OpJmp:
					cfgWork = append(cfgWork, [2]int{toBlock.ID, toBlock.Term.Target.ID})
				case OpBr:
					cond := get(toBlock.Term.Cond)
					if cond.state == latConst {
						if cond.value != 0 {
							cfgWork = append(cfgWork, [2]int{toBlock.ID, toBlock.Term.Then.ID})
						} else {
							cfgWork = append(cfgWork, [2]int{toBlock.ID, toBlock.Term.Else.ID})
						}
					} else {
						cfgWork = append(cfgWork, [2]int{toBlock.ID, toBlock.Term.Then.ID})
						cfgWork = append(cfgWork, [2]int{toBlock.ID, toBlock.Term.Else.ID})
					}
				}
			}
		}
		for len(ssaWork) > 0 {
			v := ssaWork[0]
			ssaWork = ssaWork[1:]
			for _, user := range vregUsers[v] {
				owner := ownerBlock(f, user)
				if owner != nil && blockReached[owner.ID] {
					visitInstr(owner, user)
				}
			}
		}
	}
	return vals
}

func ownerBlock(f *Function, target *Instr) *Block {
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in == target {
				return b
			}
		}
	}
	return nil
}

func foldBinOp(op Opcode, a, b int64) (int64, bool) {
	switch op {
	case OpAdd:
		return a + b, true
	case OpSub:
		return a - b, true
	case OpMul:
		return a * b, true
	case OpDiv:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case OpMod:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case OpAnd:
		return a & b, true
	case OpOr:
		return a | b, true
	case OpXor:
		return a ^ b, true
	case OpShl:
		return a << uint(b), true
	case OpShr:
		return a >> uint(b), true
	case OpCmpEq:
		return boolInt(a == b), true
	case OpCmpNe:
		return boolInt(a != b), true
	case OpCmpLt:
		return boolInt(a < b), true
	case OpCmpLe:
		return boolInt(a <= b), true
	case OpCmpGt:
		return boolInt(a > b), true
	case OpCmpGe:
		return boolInt(a >= b), true
	}
	return 0, false
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// valueKey hashes a pure instruction's opcode and operand value numbers so
// identical computations collapse to one, spec.md §4.5 "GVN/CSE hashes
// opcode + operand value numbers during a dominator-tree walk".
func valueKey(in *Instr) string {
	key := in.Op.String()
	for _, a := range in.Args {
		if a.IsConst {
			key += fmt.Sprintf(",c%d", a.Const)
		} else {
			key += fmt.Sprintf(",v%d", a.Vreg)
		}
	}
	if in.Op == OpCall {
		key += ",call:" + in.Callee
	}
	return key
}

// GVNCSE walks the dominator tree top-down, replacing any pure instruction
// whose (opcode, operand value numbers) it has already seen in a
// dominating block with a copy of the earlier result — a combined
// global-value-numbering and common-subexpression pass. Requires
// ComputeDominators to have run first. Returns the number of instructions
// eliminated.
func GVNCSE(f *Function) int {
	kids := make(map[int][]*Block)
	for _, b := range f.Blocks {
		if b == f.Entry || b.IDom == nil {
			continue
		}
		kids[b.IDom.ID] = append(kids[b.IDom.ID], b)
	}

	seen := make(map[string]int) // valueKey -> vreg holding the earlier result
	replace := make(map[int]int) // dead vreg -> surviving vreg
	eliminated := 0

	var walk func(b *Block)
	walk = func(b *Block) {
		pushed := []string{}
		for _, in := range b.Instrs {
			if definesValue(in) {
				for i, a := range in.Args {
					if r, ok := replace[a.Vreg]; ok && !a.IsConst {
						in.Args[i] = VReg(r)
					}
				}
			}
			if !in.Op.isPure() {
				continue
			}
			key := valueKey(in)
			if existing, ok := seen[key]; ok {
				replace[in.Dst] = existing
				in.Op = OpCopy
				in.Args = []Value{VReg(existing)}
				eliminated++
				continue
			}
			seen[key] = in.Dst
			pushed = append(pushed, key)
		}
		for _, child := range kids[b.ID] {
			walk(child)
		}
		for _, key := range pushed {
			delete(seen, key)
		}
	}
	walk(f.Entry)
	return eliminated
}

// LICM hoists pure instructions whose operands are all defined outside the
// loop into an inserted-if-missing preheader, processing innermost loops
// first, spec.md §4.5 "LICM hoists pure instructions whose operands are
// all defined outside the loop to a preheader, innermost loop first".
// Requires ComputeDominators and DetectLoops to have run first.
func LICM(f *Function, loops []*Loop) int {
	ordered := append([]*Loop(nil), loops...)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].Depth > ordered[i].Depth {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}

	hoisted := 0
	for _, l := range ordered {
		definedOutside := func(v Value) bool {
			if v.IsConst {
				return true
			}
			for id := range l.Body {
				b := l.Body[id]
				for _, in := range b.Instrs {
					if definesValue(in) && in.Dst == v.Vreg {
						return false
					}
				}
			}
			return true
		}

		pre := findOrInsertPreheader(f, l)

		for id := range l.Body {
			b := l.Body[id]
			if b == l.Header {
				continue
			}
			var kept []*Instr
			for _, in := range b.Instrs {
				if in == b.Term {
					kept = append(kept, in)
					continue
				}
				canHoist := in.Op.isPure()
				for _, a := range in.Args {
					if !definedOutside(a) {
						canHoist = false
					}
				}
				if canHoist {
					if k := len(pre.Instrs); k > 0 && pre.Instrs[k-1] == pre.Term {
						pre.Instrs = append(pre.Instrs[:k-1], in, pre.Term)
					} else {
						pre.Instrs = append(pre.Instrs, in)
					}
					hoisted++
					continue
				}
				kept = append(kept, in)
			}
			b.Instrs = kept
		}
	}
	return hoisted
}

// findOrInsertPreheader returns l's preheader, synthesizing one and
// splicing it between every outside-the-loop predecessor of the header and
// the header itself if one does not already exist (a block with exactly
// one successor, the header, and not itself in the loop body).
func findOrInsertPreheader(f *Function, l *Loop) *Block {
	var outside []*Block
	for _, p := range l.Header.Preds {
		if _, in := l.Body[p.ID]; !in {
			outside = append(outside, p)
		}
	}
	if len(outside) == 1 && len(outside[0].Succs) == 1 {
		return outside[0]
	}

	pre := f.NewBlock(l.Header.Name + ".preheader")
	pre.SetTerm(&Instr{Op: OpJmp, Target: l.Header})
	f.Blocks = append(f.Blocks, pre)

	for _, p := range outside {
		for i, s := range p.Succs {
			if s == l.Header {
				p.Succs[i] = pre
			}
		}
		if p.Term.Target == l.Header {
			p.Term.Target = pre
		}
		if p.Term.Then == l.Header {
			p.Term.Then = pre
		}
		if p.Term.Else == l.Header {
			p.Term.Else = pre
		}
		pre.Preds = append(pre.Preds, p)
	}
	pre.Succs = []*Block{l.Header}

	var newPreds []*Block
	for _, p := range l.Header.Preds {
		if _, in := l.Body[p.ID]; in {
			newPreds = append(newPreds, p)
		}
	}
	newPreds = append(newPreds, pre)
	l.Header.Preds = newPreds

	return pre
}
