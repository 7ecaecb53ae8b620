package ir

// BuildCFG wires Preds/Succs for every block in f by reading each block's
// terminator, spec.md §4.5 "every function runs build_cfg which reads
// each block's terminator and adds successor/predecessor edges".
func BuildCFG(f *Function) {
	for _, b := range f.Blocks {
		b.Succs = nil
		b.Preds = nil
	}
	for _, b := range f.Blocks {
		switch b.Term.Op {
		case OpJmp:
			addEdge(b, b.Term.Target)
		case OpBr:
			addEdge(b, b.Term.Then)
			addEdge(b, b.Term.Else)
		case OpRet:
			// no successors
		}
	}
}

func addEdge(from, to *Block) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
}

// ReversePostorder returns f's blocks in reverse-postorder from the entry
// block, the traversal order both dominator computation and liveness
// analysis iterate in, spec.md §4.5.
func ReversePostorder(f *Function) []*Block {
	visited := make(map[int]bool)
	var post []*Block
	var visit func(b *Block)
	visit = func(b *Block) {
		if visited[b.ID] {
			return
		}
		visited[b.ID] = true
		for _, s := range b.Succs {
			visit(s)
		}
		post = append(post, b)
	}
	visit(f.Entry)

	rpo := make([]*Block, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	return rpo
}

// ComputeDominators implements the Cooper-Harvey-Kennedy iterative
// dominator algorithm over reverse postorder, spec.md §4.5. Requires
// BuildCFG to have run first. Returns a block-ID-keyed idom map and also
// stamps each Block.IDom.
func ComputeDominators(f *Function) map[int]*Block {
	rpo := ReversePostorder(f)
	rpoIndex := make(map[int]int, len(rpo))
	for i, b := range rpo {
		rpoIndex[b.ID] = i
	}

	idom := make(map[int]*Block, len(rpo))
	idom[f.Entry.ID] = f.Entry

	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			if b == f.Entry {
				continue
			}
			var newIdom *Block
			for _, p := range b.Preds {
				if idom[p.ID] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p, idom, rpoIndex)
			}
			if newIdom != nil && idom[b.ID] != newIdom {
				idom[b.ID] = newIdom
				changed = true
			}
		}
	}

	for _, b := range rpo {
		b.IDom = idom[b.ID]
	}
	return idom
}

func intersect(a, b *Block, idom map[int]*Block, rpoIndex map[int]int) *Block {
	for a.ID != b.ID {
		for rpoIndex[a.ID] > rpoIndex[b.ID] {
			a = idom[a.ID]
		}
		for rpoIndex[b.ID] > rpoIndex[a.ID] {
			b = idom[b.ID]
		}
	}
	return a
}

// ComputeDomFrontiers walks each block's predecessors the standard way
// (Cytron et al.), spec.md §4.5 "compute_dom_frontiers walks predecessors
// for each join block". Requires ComputeDominators to have run first.
func ComputeDomFrontiers(f *Function) {
	for _, b := range f.Blocks {
		b.DomFrontier = nil
	}
	for _, b := range f.Blocks {
		if len(b.Preds) < 2 {
			continue
		}
		for _, p := range b.Preds {
			runner := p
			for runner != nil && runner != b.IDom {
				if !containsBlock(runner.DomFrontier, b) {
					runner.DomFrontier = append(runner.DomFrontier, b)
				}
				runner = runner.IDom
			}
		}
	}
}

func containsBlock(list []*Block, b *Block) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}

// Dominates reports whether a dominates b (a == b counts), by walking b's
// idom chain.
func Dominates(a, b *Block) bool {
	for cur := b; cur != nil; cur = cur.IDom {
		if cur == a {
			return true
		}
		if cur == cur.IDom {
			break
		}
	}
	return false
}
