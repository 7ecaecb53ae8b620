package ir

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// blockIDs sorts a block slice's IDs for order-independent diffing via cmp.
func blockIDs(blocks []*Block) []int {
	ids := make([]int, len(blocks))
	for i, b := range blocks {
		ids[i] = b.ID
	}
	sort.Ints(ids)
	return ids
}

// buildDiamond returns entry -> {b1, b2} -> b3.
func buildDiamond() (f *Function, b1, b2, b3 *Block) {
	f = NewFunction("diamond")
	b1 = f.NewBlock("b1")
	b2 = f.NewBlock("b2")
	b3 = f.NewBlock("b3")
	f.Blocks = append(f.Blocks, b1, b2, b3)

	f.Entry.SetTerm(&Instr{Op: OpBr, Then: b1, Else: b2, Cond: ConstVal(1)})
	b1.SetTerm(&Instr{Op: OpJmp, Target: b3})
	b2.SetTerm(&Instr{Op: OpJmp, Target: b3})
	b3.SetTerm(&Instr{Op: OpRet})

	BuildCFG(f)
	return f, b1, b2, b3
}

func TestDominatorsDiamond(t *testing.T) {
	f, b1, b2, b3 := buildDiamond()
	ComputeDominators(f)
	ComputeDomFrontiers(f)

	require.Equal(t, f.Entry, b1.IDom)
	require.Equal(t, f.Entry, b2.IDom)
	require.Equal(t, f.Entry, b3.IDom)
	require.True(t, Dominates(f.Entry, b3))
	require.False(t, Dominates(b1, b3))

	if diff := cmp.Diff([]int{b3.ID}, blockIDs(b1.DomFrontier)); diff != "" {
		t.Errorf("b1 dominance frontier mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{b3.ID}, blockIDs(b2.DomFrontier)); diff != "" {
		t.Errorf("b2 dominance frontier mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, b3.DomFrontier)
}

func TestPhiInsertionAndRename(t *testing.T) {
	f, b1, b2, b3 := buildDiamond()

	b1.Instrs = append([]*Instr{{Op: OpConst, DefVar: "x", Args: []Value{ConstVal(1)}}}, b1.Instrs...)
	b2.Instrs = append([]*Instr{{Op: OpConst, DefVar: "x", Args: []Value{ConstVal(2)}}}, b2.Instrs...)
	use := &Instr{Op: OpCopy, Dst: f.NewVreg(), Args: []Value{VarRead("x")}}
	b3.Instrs = append([]*Instr{use}, b3.Instrs...)

	ComputeDominators(f)
	ComputeDomFrontiers(f)
	InsertPhis(f, []string{"x"})
	RenameVars(f)

	require.True(t, ValidateSSA(f))
	require.Equal(t, OpPhi, b3.Instrs[0].Op)
	require.Equal(t, "x", b3.Instrs[0].DefVar)
	require.Len(t, b3.Instrs[0].PhiArgs, 2)

	phiDst := b3.Instrs[0].Dst
	require.Equal(t, phiDst, use.Args[0].Vreg)
	require.False(t, use.Args[0].IsConst)
}

func TestDetectLoops(t *testing.T) {
	f := NewFunction("loop")
	header := f.NewBlock("header")
	body := f.NewBlock("body")
	exit := f.NewBlock("exit")
	f.Blocks = append(f.Blocks, header, body, exit)

	f.Entry.SetTerm(&Instr{Op: OpJmp, Target: header})
	header.SetTerm(&Instr{Op: OpBr, Then: body, Else: exit, Cond: ConstVal(1)})
	body.SetTerm(&Instr{Op: OpJmp, Target: header})
	exit.SetTerm(&Instr{Op: OpRet})

	BuildCFG(f)
	ComputeDominators(f)

	loops := DetectLoops(f)
	require.Len(t, loops, 1)
	require.Equal(t, header, loops[0].Header)
	require.Equal(t, body, loops[0].Latch)
	require.Contains(t, loops[0].Body, header.ID)
	require.Contains(t, loops[0].Body, body.ID)
	require.NotContains(t, loops[0].Body, exit.ID)
	require.Equal(t, 1, loops[0].Depth)
}

func TestLivenessDiamond(t *testing.T) {
	f, b1, b2, b3 := buildDiamond()

	def := &Instr{Op: OpConst, Dst: 0, Args: []Value{ConstVal(7)}}
	f.Entry.Instrs = append([]*Instr{def}, f.Entry.Instrs...)
	b1.Instrs = append([]*Instr{{Op: OpCopy, Dst: 1, Args: []Value{VReg(0)}}}, b1.Instrs...)
	use := &Instr{Op: OpCopy, Dst: 2, Args: []Value{VReg(0)}}
	b3.Instrs = append([]*Instr{use}, b3.Instrs...)

	BuildCFG(f)
	live := ComputeLiveness(f)

	require.True(t, live.Out[f.Entry.ID][0], "vreg 0 must stay live out of entry: both b1 and b3 read it")
	require.True(t, live.In[b1.ID][0])
	require.True(t, live.Out[b2.ID][0], "vreg 0 passes live through b2 on its way to b3's use")
	require.False(t, live.In[f.Entry.ID][0], "vreg 0 is defined in entry, not read before its own definition")
}

func TestSCCPFoldsConstantAdd(t *testing.T) {
	f := NewFunction("sccp")
	a := &Instr{Op: OpConst, Dst: 0, Args: []Value{ConstVal(2)}}
	b := &Instr{Op: OpConst, Dst: 1, Args: []Value{ConstVal(3)}}
	sum := &Instr{Op: OpAdd, Dst: 2, Args: []Value{VReg(0), VReg(1)}}
	f.Entry.Instrs = append(f.Entry.Instrs, a, b, sum)
	f.Entry.SetTerm(&Instr{Op: OpRet})

	BuildCFG(f)
	vals := SCCP(f)

	require.Equal(t, latConst, vals[2].state)
	require.Equal(t, int64(5), vals[2].value)
}

func TestGVNCSEEliminatesDuplicateAdd(t *testing.T) {
	f := NewFunction("gvncse")
	a := &Instr{Op: OpConst, Dst: 0, Args: []Value{ConstVal(1)}}
	b := &Instr{Op: OpConst, Dst: 1, Args: []Value{ConstVal(2)}}
	sum1 := &Instr{Op: OpAdd, Dst: 2, Args: []Value{VReg(0), VReg(1)}}
	sum2 := &Instr{Op: OpAdd, Dst: 3, Args: []Value{VReg(0), VReg(1)}}
	f.Entry.Instrs = append(f.Entry.Instrs, a, b, sum1, sum2)
	f.Entry.SetTerm(&Instr{Op: OpRet})

	BuildCFG(f)
	ComputeDominators(f)
	n := GVNCSE(f)

	require.Equal(t, 1, n)
	require.Equal(t, OpCopy, sum2.Op)
	require.Equal(t, 2, sum2.Args[0].Vreg)
}

func TestLinearScanSpillsWhenOutOfRegisters(t *testing.T) {
	f := NewFunction("regalloc")
	// Five vregs with up to four live at once, only two physical registers.
	a := &Instr{Op: OpConst, Dst: 0, Args: []Value{ConstVal(1)}}
	b := &Instr{Op: OpConst, Dst: 1, Args: []Value{ConstVal(2)}}
	c := &Instr{Op: OpConst, Dst: 2, Args: []Value{ConstVal(3)}}
	use := &Instr{Op: OpAdd, Dst: 3, Args: []Value{VReg(0), VReg(1)}}
	use2 := &Instr{Op: OpAdd, Dst: 4, Args: []Value{VReg(2), VReg(3)}}
	f.Entry.Instrs = append(f.Entry.Instrs, a, b, c, use, use2)
	f.Entry.SetTerm(&Instr{Op: OpRet})

	BuildCFG(f)
	LinearScan(f, []string{"r0", "r1"})

	assigned := len(f.VregToPhys)
	spilled := len(f.Spilled)
	require.Equal(t, 5, assigned+spilled)
	require.GreaterOrEqual(t, spilled, 1, "five vregs, up to four live at once, over two registers must spill at least one")
}
