package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minic-lang/minicc/internal/ast"
	"github.com/minic-lang/minicc/internal/buffer"
	"github.com/minic-lang/minicc/internal/diag"
	"github.com/minic-lang/minicc/internal/encoder"
	"github.com/minic-lang/minicc/internal/object"
)

func newExprSession() *Session {
	obj := object.New(object.MachineAMD64, "test.c", "/tmp")
	enc := encoder.New(buffer.New(64), 64)
	return NewSession(TargetLinuxX64, OptO0, false, false, enc, obj, diag.NewSession())
}

func TestLoadWidthFromMemZeroExtendsByWidth(t *testing.T) {
	s := newExprSession()
	s.loadWidthFromMem(encoder.Mem(s.bpReg(), -1), ast.TypeChar)
	s.peepholeFlushAll()
	require.Equal(t, emitDirect("movzb", encoder.Mem(s.bpReg(), -1), encoder.Reg(s.accReg())), s.Enc.Buf.Bytes())

	s2 := newExprSession()
	s2.loadWidthFromMem(encoder.Mem(s2.bpReg(), -2), ast.TypeShort)
	s2.peepholeFlushAll()
	require.Equal(t, emitDirect("movzw", encoder.Mem(s2.bpReg(), -2), encoder.Reg(s2.accReg())), s2.Enc.Buf.Bytes())

	s3 := newExprSession()
	s3.loadWidthFromMem(encoder.Mem(s3.bpReg(), -4), ast.TypeInt)
	s3.peepholeFlushAll()
	require.Equal(t, emitDirect("mov", encoder.Mem(s3.bpReg(), -4), encoder.Reg("eax")), s3.Enc.Buf.Bytes(),
		"a 4-byte load reads exactly 4 bytes and zero-extends via the 32-bit GPR write")

	s4 := newExprSession()
	s4.loadWidthFromMem(encoder.Mem(s4.bpReg(), -8), ast.TypeLong)
	s4.peepholeFlushAll()
	require.Equal(t, emitDirect("mov", encoder.Mem(s4.bpReg(), -8), encoder.Reg("rax")), s4.Enc.Buf.Bytes())
}

func TestMovRegToAccZeroExtendsByWidth(t *testing.T) {
	s := newExprSession()
	s.movRegToAcc("rbx", ast.TypeChar)
	s.peepholeFlushAll()
	require.Equal(t, emitDirect("movzb", encoder.Reg("bl"), encoder.Reg("rax")), s.Enc.Buf.Bytes())

	s2 := newExprSession()
	s2.movRegToAcc("rbx", ast.TypeShort)
	s2.peepholeFlushAll()
	require.Equal(t, emitDirect("movzw", encoder.Reg("bx"), encoder.Reg("rax")), s2.Enc.Buf.Bytes())

	s3 := newExprSession()
	s3.movRegToAcc("rbx", ast.TypeInt)
	s3.peepholeFlushAll()
	require.Equal(t, emitDirect("mov", encoder.Reg("ebx"), encoder.Reg("eax")), s3.Enc.Buf.Bytes())
}
