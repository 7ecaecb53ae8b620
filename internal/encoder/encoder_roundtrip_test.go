package encoder

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"

	"github.com/minic-lang/minicc/internal/buffer"
)

// decodeOne runs the real x86 disassembler over the tail of buf written by
// a single Emit call, verifying the bytes decode as valid 64-bit machine
// code at all (Testable Property 1, spec.md §8).
func decodeOne(t *testing.T, buf *buffer.Buffer, startOff int) x86asm.Inst {
	t.Helper()
	inst, err := x86asm.Decode(buf.Bytes()[startOff:], 64)
	require.NoError(t, err, "decoded bytes: % x", buf.Bytes()[startOff:])
	require.Equal(t, len(buf.Bytes())-startOff, inst.Len, "decoder consumed fewer bytes than were emitted")
	return inst
}

func emitOne(t *testing.T, bits int, mnemonic string, ops ...Operand) (x86asm.Inst, *Encoder) {
	t.Helper()
	buf := buffer.New(16)
	enc := New(buf, bits)
	enc.Emit(mnemonic, ops...)
	return decodeOne(t, buf, 0), enc
}

func TestRoundtripALU(t *testing.T) {
	cases := []struct {
		name string
		op   string
		ops  []Operand
	}{
		{"add reg reg 64", "add", []Operand{Reg("rcx"), Reg("rax")}},
		{"sub reg reg 32", "sub", []Operand{Reg("edx"), Reg("eax")}},
		{"xor reg imm", "xor", []Operand{Imm(5), Reg("rbx")}},
		{"cmp mem reg", "cmp", []Operand{Mem("rbp", -8), Reg("eax")}},
		{"and reg mem", "and", []Operand{Reg("rax"), Mem("rbp", -16)}},
		{"or reg imm big", "or", []Operand{Imm(70000), Reg("eax")}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			inst, _ := emitOne(t, 64, c.op, c.ops...)
			require.Contains(t, inst.Op.String(), opBaseName(c.op))
		})
	}
}

func opBaseName(mnemonic string) string {
	switch mnemonic {
	case "add":
		return "ADD"
	case "sub":
		return "SUB"
	case "xor":
		return "XOR"
	case "cmp":
		return "CMP"
	case "and":
		return "AND"
	case "or":
		return "OR"
	}
	return ""
}

func TestRoundtripMovForms(t *testing.T) {
	t.Run("reg reg", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "mov", Reg("rdi"), Reg("rax"))
		require.Equal(t, "MOV", inst.Op.String())
	})
	t.Run("movabs imm64", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "mov", Imm(0x1122334455), Reg("rax"))
		require.Equal(t, "MOV", inst.Op.String())
		require.Equal(t, 10, inst.Len)
	})
	t.Run("mov imm32 to r64 uses c7", func(t *testing.T) {
		_, enc := emitOne(t, 64, "mov", Imm(42), Reg("rax"))
		require.Equal(t, byte(0xc7), enc.Buf.Bytes()[1])
	})
	t.Run("movzbl", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "movzb", Reg("al"), Reg("eax"))
		require.Equal(t, "MOVZX", inst.Op.String())
	})
	t.Run("movsbq", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "movsb", Reg("al"), Reg("rax"))
		require.Equal(t, "MOVSX", inst.Op.String())
	})
}

func TestRoundtripLeaImulShift(t *testing.T) {
	t.Run("lea", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "lea", SIB("rbp", "rax", 4, -8), Reg("rcx"))
		require.Equal(t, "LEA", inst.Op.String())
	})
	t.Run("imul 2-operand", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "imul", Reg("rcx"), Reg("rax"))
		require.Equal(t, "IMUL", inst.Op.String())
	})
	t.Run("imul 3-operand imm8", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "imul", Imm(3), Reg("rcx"), Reg("rax"))
		require.Equal(t, "IMUL", inst.Op.String())
	})
	t.Run("shl by cl", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "shl", Reg("cl"), Reg("rax"))
		require.Equal(t, "SHL", inst.Op.String())
	})
	t.Run("sar imm", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "sar", Imm(3), Reg("rax"))
		require.Equal(t, "SAR", inst.Op.String())
	})
}

func TestRoundtripControlFlow(t *testing.T) {
	t.Run("call indirect", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "call", Reg("rax"))
		require.Equal(t, "CALL", inst.Op.String())
	})
	t.Run("jmp label leaves a patchable rel32", func(t *testing.T) {
		buf := buffer.New(16)
		enc := New(buf, 64)
		enc.Emit("jmp", Label("loop_top"))
		require.Len(t, enc.Relocs(), 1)
		require.Equal(t, FixupPC32, enc.Relocs()[0].Fixup)
		require.Equal(t, "loop_top", enc.Relocs()[0].Symbol)
		buf.WriteDwordAt(enc.Relocs()[0].Offset, 0)
		inst := decodeOne(t, buf, 0)
		require.Equal(t, "JMP", inst.Op.String())
	})
	t.Run("je label", func(t *testing.T) {
		buf := buffer.New(16)
		enc := New(buf, 64)
		enc.Emit("je", Label("done"))
		buf.WriteDwordAt(enc.Relocs()[0].Offset, 0)
		inst := decodeOne(t, buf, 0)
		require.Equal(t, "JE", inst.Op.String())
	})
	t.Run("setne", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "setne", Reg("al"))
		require.Equal(t, "SETNE", inst.Op.String())
	})
	t.Run("push pop", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "push", Reg("r12"))
		require.Equal(t, "PUSH", inst.Op.String())
		inst, _ = emitOne(t, 64, "pop", Reg("r12"))
		require.Equal(t, "POP", inst.Op.String())
	})
}

func TestRoundtripSSE(t *testing.T) {
	t.Run("movsd reg reg", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "movsd", Reg("xmm1"), Reg("xmm0"))
		require.Equal(t, "MOVSD", inst.Op.String())
	})
	t.Run("addss mem", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "addss", Mem("rbp", -4), Reg("xmm0"))
		require.Equal(t, "ADDSS", inst.Op.String())
	})
	t.Run("cvtsi2sd", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "cvtsi2sd", Reg("rax"), Reg("xmm0"))
		require.Equal(t, "CVTSI2SD", inst.Op.String())
	})
	t.Run("cvttsd2si", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "cvttsd2si", Reg("xmm0"), Reg("rax"))
		require.Equal(t, "CVTTSD2SI", inst.Op.String())
	})
	t.Run("pxor", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "pxor", Reg("xmm1"), Reg("xmm0"))
		require.Equal(t, "PXOR", inst.Op.String())
	})
}

func TestRoundtripAVX(t *testing.T) {
	t.Run("vmovups ymm reg reg", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "vmovups", Reg("ymm1"), Reg("ymm0"))
		require.Equal(t, "VMOVUPS", inst.Op.String())
	})
	t.Run("vaddps 3-operand", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "vaddps", Reg("ymm2"), Reg("ymm1"), Reg("ymm0"))
		require.Equal(t, "VADDPS", inst.Op.String())
	})
	t.Run("vpaddd mem src2", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "vpaddd", Mem("rbp", -32), Reg("ymm1"), Reg("ymm0"))
		require.Equal(t, "VPADDD", inst.Op.String())
	})
	t.Run("vzeroupper", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "vzeroupper")
		require.Equal(t, "VZEROUPPER", inst.Op.String())
	})
	t.Run("vextracti128", func(t *testing.T) {
		inst, _ := emitOne(t, 64, "vextracti128", Reg("xmm0"), Reg("ymm1"), Imm(1))
		require.Equal(t, "VEXTRACTI128", inst.Op.String())
	})
}

func TestRoundtripREXExtendedRegisters(t *testing.T) {
	inst, _ := emitOne(t, 64, "add", Reg("r15"), Reg("r8"))
	require.Equal(t, "ADD", inst.Op.String())
}

func TestRoundtripRIPRelative(t *testing.T) {
	buf := buffer.New(16)
	enc := New(buf, 64)
	enc.Emit("mov", RIP("global_counter", 0), Reg("eax"))
	require.Len(t, enc.Relocs(), 1)
	buf.WriteDwordAt(enc.Relocs()[0].Offset, 0)
	inst := decodeOne(t, buf, 0)
	require.Equal(t, "MOV", inst.Op.String())
}
