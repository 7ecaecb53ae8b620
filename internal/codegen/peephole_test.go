package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minic-lang/minicc/internal/buffer"
	"github.com/minic-lang/minicc/internal/encoder"
	"github.com/minic-lang/minicc/internal/object"
)

func newPeepholeSession(opt OptLevel) (*Session, *buffer.Buffer) {
	buf := buffer.New(64)
	enc := encoder.New(buf, 64)
	obj := object.New(object.MachineAMD64, "test.s", "/tmp")
	s := &Session{Opt: opt, Enc: enc, Obj: obj}
	return s, buf
}

// emitDirect runs mnemonic/ops straight through the encoder into a
// separate buffer, giving an expected-bytes baseline for peephole
// transforms that should collapse to a single known instruction.
func emitDirect(mnemonic string, ops ...encoder.Operand) []byte {
	buf := buffer.New(16)
	encoder.New(buf, 64).Emit(mnemonic, ops...)
	return buf.Bytes()
}

func TestPeepholeDropsNoOpMovAndZeroAdd(t *testing.T) {
	s, buf := newPeepholeSession(OptO1)
	s.emit("mov", encoder.Reg("rax"), encoder.Reg("rax"))
	s.emit("add", encoder.Imm(0), encoder.Reg("rax"))
	s.peepholeFlushAll()

	require.Empty(t, buf.Bytes())
}

func TestPeepholeCollapsesPushPopToMov(t *testing.T) {
	s, buf := newPeepholeSession(OptO1)
	s.emit("push", encoder.Reg("rax"))
	s.emit("pop", encoder.Reg("rbx"))
	s.peepholeFlushAll()

	require.Equal(t, emitDirect("mov", encoder.Reg("rax"), encoder.Reg("rbx")), buf.Bytes())
}

func TestPeepholeDropsSameRegPushPop(t *testing.T) {
	s, buf := newPeepholeSession(OptO1)
	s.emit("push", encoder.Reg("rax"))
	s.emit("pop", encoder.Reg("rax"))
	s.peepholeFlushAll()

	require.Empty(t, buf.Bytes())
}

func TestPeepholeRewritesCmpZeroToTest(t *testing.T) {
	s, buf := newPeepholeSession(OptO1)
	s.emit("cmp", encoder.Imm(0), encoder.Reg("eax"))
	s.peepholeFlushAll()

	require.Equal(t, emitDirect("test", encoder.Reg("eax"), encoder.Reg("eax")), buf.Bytes())
}

func TestPeepholeBranchToNextIsDropped(t *testing.T) {
	s, buf := newPeepholeSession(OptO1)
	s.emit("jmp", encoder.Label("L1"))
	s.emitLabel("L1")

	require.Empty(t, buf.Bytes())
}

func TestPeepholeSkipsUnreachableCodeAfterJmp(t *testing.T) {
	s, buf := newPeepholeSession(OptO1)
	s.emit("jmp", encoder.Label("elsewhere"))
	s.emit("mov", encoder.Imm(1), encoder.Reg("eax")) // dead: falls after an unconditional jmp
	s.peepholeFlushAll()

	require.Equal(t, emitDirect("jmp", encoder.Label("elsewhere")), buf.Bytes())
}

func TestPeepholeDisabledAtO0(t *testing.T) {
	s, buf := newPeepholeSession(OptO0)
	s.emit("mov", encoder.Reg("rax"), encoder.Reg("rax"))

	require.Equal(t, emitDirect("mov", encoder.Reg("rax"), encoder.Reg("rax")), buf.Bytes())
}

func TestSimplifyALUImulStrengthReduction(t *testing.T) {
	s, _ := newPeepholeSession(OptO2)
	out := s.simplifyALU("imul", []encoder.Operand{encoder.Imm(4), encoder.Reg("rdi"), encoder.Reg("rax")})
	require.Len(t, out, 2)
	require.Equal(t, "mov", out[0].mnemonic)
	require.Equal(t, "shl", out[1].mnemonic)
}

func TestSimplifyALUImulTwoLeaChainForSixAndSeven(t *testing.T) {
	s, _ := newPeepholeSession(OptO2)

	six := s.simplifyALU("imul", []encoder.Operand{encoder.Imm(6), encoder.Reg("rdi"), encoder.Reg("rax")})
	require.Len(t, six, 2)
	require.Equal(t, "lea", six[0].mnemonic)
	require.Equal(t, "lea", six[1].mnemonic)

	seven := s.simplifyALU("imul", []encoder.Operand{encoder.Imm(7), encoder.Reg("rdi"), encoder.Reg("rax")})
	require.Len(t, seven, 2)
	require.Equal(t, "lea", seven[0].mnemonic)
	require.Equal(t, "lea", seven[1].mnemonic)
}

func TestSimplifyALUImulTwoLeaChainSkippedBelowO2AndUnderSizePref(t *testing.T) {
	atO1, _ := newPeepholeSession(OptO1)
	out := atO1.simplifyALU("imul", []encoder.Operand{encoder.Imm(6), encoder.Reg("rdi"), encoder.Reg("rax")})
	require.Len(t, out, 1)
	require.Equal(t, "imul", out[0].mnemonic)

	atOs, _ := newPeepholeSession(OptOs)
	out = atOs.simplifyALU("imul", []encoder.Operand{encoder.Imm(6), encoder.Reg("rdi"), encoder.Reg("rax")})
	require.Len(t, out, 1)
	require.Equal(t, "imul", out[0].mnemonic, "Os gates as O2 but keeps its own size preference, which rule 7's two-lea chain defers to")
}

func TestSimplifyALUImulInPlaceImmForms(t *testing.T) {
	s, _ := newPeepholeSession(OptO1)

	one := s.simplifyALU("imul", []encoder.Operand{encoder.Imm(1), encoder.Reg("rax")})
	require.Empty(t, one)

	zero := s.simplifyALU("imul", []encoder.Operand{encoder.Imm(0), encoder.Reg("rax")})
	require.Len(t, zero, 1)
	require.Equal(t, "xor", zero[0].mnemonic)
}
