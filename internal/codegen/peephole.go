package codegen

import "github.com/minic-lang/minicc/internal/encoder"

// pendingInst is one not-yet-encoded instruction sitting in the peephole
// optimizer's lookback window.
type pendingInst struct {
	mnemonic string
	ops      []encoder.Operand
}

// peepholeState is the optimizer's state, carried across emit calls within
// one function, spec.md §4.4 "Peephole optimizer": "State is maintained
// across emit_inst calls; every call first cooperatively flushes any
// pending state, then optionally buffers the new instruction."
type peepholeState struct {
	buf         []pendingInst
	unreachable bool // true after an unconditional jmp was encoded, until the next label
	inFlush     bool // recursion guard: flushers must not re-enter the optimizer
}

// peepholeEnabled reports whether the optimizer runs at all, spec.md §4.4
// "enabled at -O1+ unless noted".
func (s *Session) peepholeEnabled() bool {
	return s.Opt != OptO0
}

// peepholeEmit is the sole entry point emit() funnels every instruction
// through.
func (s *Session) peepholeEmit(mnemonic string, ops []encoder.Operand) {
	if !s.peepholeEnabled() || s.peep.inFlush {
		s.Enc.Emit(mnemonic, ops...)
		return
	}

	// Rule 1: unreachable code elimination.
	if s.peep.unreachable {
		return
	}

	for _, in := range s.simplifyALU(mnemonic, ops) {
		s.bufferOne(in.mnemonic, in.ops)
	}
}

// bufferOne appends one already-simplified instruction to the lookback
// window, applying the purely-local (no-label-lookahead) patterns: push/pop
// collapse (rule 4) and the setCC chain collapse (rule 5).
func (s *Session) bufferOne(mnemonic string, ops []encoder.Operand) {
	buf := s.peep.buf

	// Rule 4: push/pop collapse.
	if mnemonic == "pop" && len(buf) >= 1 && buf[len(buf)-1].mnemonic == "push" {
		pushOp := buf[len(buf)-1].ops[0]
		s.peep.buf = buf[:len(buf)-1]
		if pushOp.Reg != ops[0].Reg {
			s.bufferOne("mov", []encoder.Operand{pushOp, ops[0]})
		}
		return
	}

	// Rule 5: setCC chain collapse, before treating the incoming jcc as a
	// branch subject to rules 2/3.
	if cc, ok := jccCond(mnemonic); ok && mnemonic != "jmp" && len(buf) >= 3 {
		if setReg, setCC, ok2 := matchSetccChain(buf[len(buf)-3:]); ok2 {
			s.peep.buf = buf[:len(buf)-3]
			_ = setReg
			finalCC := setCC
			if isZeroTestJump(mnemonic) {
				if inv, ok3 := encoder.InverseCondition(setCC); ok3 {
					finalCC = inv
				}
			}
			_ = cc
			s.peep.buf = append(s.peep.buf, pendingInst{mnemonic: "j" + finalCC, ops: ops})
			return
		}
	}

	s.peep.buf = append(s.peep.buf, pendingInst{mnemonic: mnemonic, ops: ops})

	// An unconditional jmp makes everything after it unreachable the moment
	// it enters the window, not only once it's physically flushed — rule 1
	// must see this before the window cap below ever runs.
	if mnemonic == "jmp" {
		s.peep.unreachable = true
	}

	// Cap the lookback window at three entries: rule 5 needs the
	// setCC/movz/test triple still buffered when the jcc arrives, rules 2/3
	// look at the last two entries and rule 4 at the last one. Anything
	// older is flushed immediately, oldest first.
	for len(s.peep.buf) > 3 {
		s.flushOldest()
	}
}

func jccCond(mnemonic string) (string, bool) {
	if len(mnemonic) > 1 && mnemonic[0] == 'j' {
		return mnemonic[1:], true
	}
	return "", false
}

func isZeroTestJump(mnemonic string) bool {
	return mnemonic == "je" || mnemonic == "jz"
}

// matchSetccChain checks whether three consecutive pending instructions are
// "setCC reg8; movzx reg8,reg32; test reg32,reg32", spec.md §4.4 rule 5.
func matchSetccChain(win []pendingInst) (reg, cc string, ok bool) {
	set, movz, test := win[0], win[1], win[2]
	if len(set.mnemonic) <= 3 || set.mnemonic[:3] != "set" {
		return "", "", false
	}
	cc = set.mnemonic[3:]
	if len(set.ops) != 1 || set.ops[0].Kind != encoder.OpReg {
		return "", "", false
	}
	if movz.mnemonic != "movz" && movz.mnemonic != "movzb" && movz.mnemonic != "movzbl" {
		return "", "", false
	}
	if len(movz.ops) != 2 || movz.ops[0].Reg != set.ops[0].Reg {
		return "", "", false
	}
	if test.mnemonic != "test" || len(test.ops) != 2 {
		return "", "", false
	}
	if test.ops[0].Reg != movz.ops[1].Reg || test.ops[1].Reg != movz.ops[1].Reg {
		return "", "", false
	}
	return set.ops[0].Reg, cc, true
}

// flushOldest encodes the single oldest pending instruction and advances
// the unreachable-code tracker for it.
func (s *Session) flushOldest() {
	if len(s.peep.buf) == 0 {
		return
	}
	in := s.peep.buf[0]
	s.peep.buf = s.peep.buf[1:]
	s.encodeDirect(in.mnemonic, in.ops)
}

// encodeDirect hands one instruction straight to the encoder, updating the
// reachability tracker.
func (s *Session) encodeDirect(mnemonic string, ops []encoder.Operand) {
	s.peep.inFlush = true
	s.Enc.Emit(mnemonic, ops...)
	s.peep.inFlush = false
	if mnemonic == "jmp" {
		s.peep.unreachable = true
	}
}

// peepholeFlushAll drains the lookback window in the documented fixed
// order (setcc → push → jcc → jcc+jmp pair → jmp) — in this window-based
// implementation every remaining entry is already past any pattern that
// needed a label lookahead, so a plain oldest-first drain satisfies that
// ordering.
func (s *Session) peepholeFlushAll() {
	for len(s.peep.buf) > 0 {
		s.flushOldest()
	}
}

// peepholeOnLabel implements rules 2 and 3, which need to see the label
// that follows a pending branch before deciding whether to keep it.
func (s *Session) peepholeOnLabel(name string) {
	buf := s.peep.buf

	// Rule 3: jcc L1; jmp L2; L1: -> j<invCC> L2.
	if len(buf) >= 2 {
		jcc, jmp := buf[len(buf)-2], buf[len(buf)-1]
		if cc, ok := jccCond(jcc.mnemonic); ok && jmp.mnemonic == "jmp" {
			if len(jcc.ops) == 1 && jcc.ops[0].Kind == encoder.OpLabel && jcc.ops[0].Label == name {
				if inv, ok2 := encoder.InverseCondition(cc); ok2 {
					s.peep.buf = buf[:len(buf)-2]
					s.bufferOne("j"+inv, jmp.ops)
					buf = s.peep.buf
				}
			}
		}
	}

	// Rule 2: branch-to-next — a pending jmp L or jcc L immediately
	// followed by L: is dropped.
	if len(buf) >= 1 {
		last := buf[len(buf)-1]
		isBranch := last.mnemonic == "jmp"
		if _, ok := jccCond(last.mnemonic); ok {
			isBranch = true
		}
		if isBranch && len(last.ops) == 1 && last.ops[0].Kind == encoder.OpLabel && last.ops[0].Label == name {
			s.peep.buf = buf[:len(buf)-1]
		}
	}

	s.peepholeFlushAll()
	s.peep.unreachable = false
}

// simplifyALU applies the purely-local algebraic simplification (rule 6)
// and integer-multiply strength reduction (rule 7) transforms, returning
// the replacement instruction list (0, 1, or several entries).
func (s *Session) simplifyALU(mnemonic string, ops []encoder.Operand) []pendingInst {
	one := func(m string, o ...encoder.Operand) []pendingInst {
		return []pendingInst{{mnemonic: m, ops: o}}
	}
	none := func() []pendingInst { return nil }

	switch mnemonic {
	case "add", "sub":
		if len(ops) == 2 && ops[0].Kind == encoder.OpImm && ops[0].Imm == 0 {
			return none()
		}
	case "cmp":
		if len(ops) == 2 && ops[0].Kind == encoder.OpImm && ops[0].Imm == 0 && ops[1].Kind == encoder.OpReg {
			return one("test", ops[1], ops[1])
		}
	case "mov":
		if len(ops) == 2 && ops[0].Kind == encoder.OpReg && ops[1].Kind == encoder.OpReg && ops[0].Reg == ops[1].Reg {
			return none()
		}
	// imul imm=1/imm=0 is rule 6 (algebraic simplification): an in-place
	// reg *= imm that folds away at every level the peephole optimizer
	// runs (-O1+) with no further gate, just like the add/sub/cmp/mov
	// cases above.
	case "imul":
		if len(ops) == 2 && ops[0].Kind == encoder.OpImm && ops[1].Kind == encoder.OpReg {
			switch ops[0].Imm {
			case 1:
				return none()
			case 0:
				return one("xor", ops[1], ops[1])
			}
		}
		if len(ops) == 3 && ops[0].Kind == encoder.OpImm {
			imm, src, dst := ops[0].Imm, ops[1], ops[2]
			switch imm {
			case 1:
				return one("mov", src, dst)
			case 0:
				return one("xor", dst, dst)
			case 2:
				return append(one("mov", src, dst), pendingInst{mnemonic: "add", ops: []encoder.Operand{dst, dst}}...)
			case 4:
				return append(one("mov", src, dst), pendingInst{mnemonic: "shl", ops: []encoder.Operand{encoder.Imm(2), dst}}...)
			case 8:
				return append(one("mov", src, dst), pendingInst{mnemonic: "shl", ops: []encoder.Operand{encoder.Imm(3), dst}}...)
			case 3, 5, 9:
				scale := int(imm) - 1
				return one("lea", encoder.SIB(src.Reg, src.Reg, scale, 0), dst)
			case 6, 7:
				// Rule 7's two-lea chain, -O2+ and not size-preferring:
				// dst = src*(1+s1), then dst = dst + src*s2, so
				// dst = src*(1+s1+s2). ×6 = 1+1+4, ×7 = 1+2+4.
				if s.gateLevel() < OptO2 || s.sizePref() {
					break
				}
				s1, s2 := 1, 4
				if imm == 7 {
					s1 = 2
				}
				return []pendingInst{
					{mnemonic: "lea", ops: []encoder.Operand{encoder.SIB(src.Reg, src.Reg, s1, 0), dst}},
					{mnemonic: "lea", ops: []encoder.Operand{encoder.SIB(dst.Reg, src.Reg, s2, 0), dst}},
				}
			}
		}
	}
	return one(mnemonic, ops...)
}
