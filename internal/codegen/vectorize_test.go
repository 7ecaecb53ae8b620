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

func newVecSession() *Session {
	obj := object.New(object.MachineAMD64, "test.c", "/tmp")
	enc := encoder.New(buffer.New(256), 64)
	s := NewSession(TargetLinuxX64, OptO2, false, false, enc, obj, diag.NewSession())
	s.resetFunction("f")
	return s
}

func TestVecOpAndRegNaming(t *testing.T) {
	s := newVecSession()

	sse := &ast.VecInfo{Width: 4, ElemSize: 4, IsFloat: false, Op: ast.Add}
	require.Equal(t, "paddd", s.vecOp(sse))
	require.Equal(t, "xmm0", s.vecReg(sse, 0))
	require.Equal(t, "movdqu", s.vecPackedMov(sse))

	avx := &ast.VecInfo{Width: 8, ElemSize: 4, IsFloat: true, Op: ast.Mul}
	require.Equal(t, "vmulps", s.vecOp(avx))
	require.Equal(t, "ymm1", s.vecReg(avx, 1))
	require.Equal(t, "vmovups", s.vecPackedMov(avx))
}

func TestGenVectorizedLoopElementwiseEmitsCode(t *testing.T) {
	s := newVecSession()
	n := &ast.Node{Vec: &ast.VecInfo{
		Mode: ast.VecElementwise, Width: 4, ElemSize: 4, Iterations: 16,
		Op: ast.Add, Dst: "dst", Src1: "a", Src2: "b",
	}}
	s.genVectorizedLoop(n)
	s.peepholeFlushAll()

	require.NotEmpty(t, s.Enc.Buf.Bytes())
}

func TestGenVectorizedLoopReductionEmitsCode(t *testing.T) {
	s := newVecSession()
	n := &ast.Node{Vec: &ast.VecInfo{
		Mode: ast.VecReduction, Width: 4, ElemSize: 4, Iterations: 10,
		Op: ast.Add, Src1: "a", AccumVar: "total",
	}}
	s.genVectorizedLoop(n)
	s.peepholeFlushAll()

	require.NotEmpty(t, s.Enc.Buf.Bytes())
}

func TestGenVectorizedLoopInitBroadcastAndStride(t *testing.T) {
	broadcast := newVecSession()
	broadcast.genVectorizedLoop(&ast.Node{Vec: &ast.VecInfo{
		Mode: ast.VecInit, Width: 4, ElemSize: 4, Iterations: 8, Dst: "arr", InitOffset: 5,
	}})
	broadcast.peepholeFlushAll()
	require.NotEmpty(t, broadcast.Enc.Buf.Bytes())

	stride := newVecSession()
	stride.genVectorizedLoop(&ast.Node{Vec: &ast.VecInfo{
		Mode: ast.VecInit, Width: 4, ElemSize: 4, Iterations: 8, Dst: "arr", InitScale: 2, InitOffset: 1,
	}})
	stride.peepholeFlushAll()
	require.NotEmpty(t, stride.Enc.Buf.Bytes())
}
