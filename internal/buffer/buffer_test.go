package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteHelpers(t *testing.T) {
	buf := New(0)
	buf.WriteByte(0x12)
	buf.WriteWord(0x3456)
	buf.WriteDword(0x789abcde)
	buf.WriteQword(0x0102030405060708)
	buf.WriteBytes([]byte{0xff, 0xee})

	want := []byte{
		0x12,
		0x56, 0x34,
		0xde, 0xbc, 0x9a, 0x78,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
		0xff, 0xee,
	}
	require.Equal(t, want, buf.Bytes())
	require.Equal(t, len(want), buf.Len())
}

func TestPatchAt(t *testing.T) {
	buf := New(0)
	buf.WriteDword(0)
	buf.WriteQword(0)
	buf.WriteDwordAt(0, 0xdeadbeef)
	buf.WriteQwordAt(4, 0x1122334455667788)

	require.Equal(t, uint32(0xdeadbeef), leU32(buf.Bytes()[0:4]))
	require.Equal(t, uint64(0x1122334455667788), leU64(buf.Bytes()[4:12]))
}

func TestAlignTo(t *testing.T) {
	buf := New(0)
	buf.WriteByte(1)
	buf.WriteByte(2)
	buf.WriteByte(3)
	buf.AlignTo(8)
	require.Equal(t, 8, buf.Len())
	buf.AlignTo(8)
	require.Equal(t, 8, buf.Len())
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
