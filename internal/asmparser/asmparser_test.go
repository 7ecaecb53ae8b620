package asmparser

import (
	"strings"
	"testing"

	"github.com/minic-lang/minicc/internal/object"
	"github.com/stretchr/testify/require"
)

func newObj() *object.Writer {
	return object.New(object.MachineAMD64, "test.s", "/tmp")
}

func TestParseSimpleFunction(t *testing.T) {
	src := `
.global add
.section .text
add:
	mov %rdi, %rax
	add %rsi, %rax
	ret
`
	obj := newObj()
	require.NoError(t, New(obj).Parse(strings.NewReader(src)))

	require.NotEmpty(t, obj.Text.Bytes())
	require.Len(t, obj.Symbols, 1)
	require.Equal(t, "add", obj.Symbols[0].Name)
	require.Equal(t, uint8(object.StorageExternal), obj.Symbols[0].StorageClass)
}

func TestParseDataDirectives(t *testing.T) {
	src := `
.section .data
buf:
	.byte 1, 2, 0xff
	.word 0x1234
	.long 0xdeadbeef
`
	obj := newObj()
	require.NoError(t, New(obj).Parse(strings.NewReader(src)))

	want := []byte{1, 2, 0xff, 0x34, 0x12, 0xef, 0xbe, 0xad, 0xde}
	require.Equal(t, want, obj.Data.Bytes())
}

func TestParseImmediateAndMemoryOperands(t *testing.T) {
	src := `
foo:
	mov $10, %eax
	mov [rbx+4], %eax
	mov [rbx], %eax
`
	obj := newObj()
	require.NoError(t, New(obj).Parse(strings.NewReader(src)))
	require.NotEmpty(t, obj.Text.Bytes())
}

func TestParseCommentsAndCharLiteral(t *testing.T) {
	src := `
// this is a comment
foo:
	mov 'A', %al /* inline comment */
	ret
`
	obj := newObj()
	require.NoError(t, New(obj).Parse(strings.NewReader(src)))
	require.NotEmpty(t, obj.Text.Bytes())
}

func TestIntelSyntaxReversesOperands(t *testing.T) {
	src := `
.intel_syntax noprefix
foo:
	mov eax, 5
`
	obj := newObj()
	require.NoError(t, New(obj).Parse(strings.NewReader(src)))
	require.NotEmpty(t, obj.Text.Bytes())
}

func TestUnknownDirectiveFails(t *testing.T) {
	obj := newObj()
	err := New(obj).Parse(strings.NewReader(".bogus foo\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 1")
}

func TestCode16SwitchesEncoderBits(t *testing.T) {
	src := `
.code16
foo:
	mov $1, %ax
`
	obj := newObj()
	p := New(obj)
	require.NoError(t, p.Parse(strings.NewReader(src)))
	require.Equal(t, 16, p.textEnc.Bits)
}

func TestSplitOperandsRespectsBrackets(t *testing.T) {
	parts := splitOperands("[rax+4], %rbx")
	require.Equal(t, []string{"[rax+4]", " %rbx"}, parts)
}

func TestParseIntLiteralBases(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int64
	}{
		{"10", 10},
		{"0x1f", 31},
		{"010", 8},
	} {
		v, err := parseIntLiteral(tc.in)
		require.NoError(t, err)
		require.Equal(t, tc.want, v)
	}
}
