// Package buffer provides a growable little-endian byte vector used by the
// instruction encoder and the object-file writers.
package buffer

import "encoding/binary"

// Buffer is a growable byte vector with little-endian write helpers. The
// zero value is ready to use.
type Buffer struct {
	b []byte
}

// New returns an empty Buffer with cap reserved up front.
func New(cap int) *Buffer {
	return &Buffer{b: make([]byte, 0, cap)}
}

// Len returns the number of bytes written so far.
func (buf *Buffer) Len() int { return len(buf.b) }

// Bytes returns the underlying slice. The caller must not retain it across
// further writes.
func (buf *Buffer) Bytes() []byte { return buf.b }

// WriteByte appends a single byte.
func (buf *Buffer) WriteByte(v byte) {
	buf.b = append(buf.b, v)
}

// WriteBytes appends raw bytes verbatim.
func (buf *Buffer) WriteBytes(src []byte) {
	buf.b = append(buf.b, src...)
}

// WriteWord appends a 16-bit value, little-endian.
func (buf *Buffer) WriteWord(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	buf.b = append(buf.b, tmp[:]...)
}

// WriteDword appends a 32-bit value, little-endian.
func (buf *Buffer) WriteDword(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.b = append(buf.b, tmp[:]...)
}

// WriteQword appends a 64-bit value, little-endian.
func (buf *Buffer) WriteQword(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.b = append(buf.b, tmp[:]...)
}

// WriteDwordAt overwrites 4 bytes at offset off, little-endian. Used by
// relocation patching once a final address is known.
func (buf *Buffer) WriteDwordAt(off int, v uint32) {
	binary.LittleEndian.PutUint32(buf.b[off:off+4], v)
}

// WriteQwordAt overwrites 8 bytes at offset off, little-endian.
func (buf *Buffer) WriteQwordAt(off int, v uint64) {
	binary.LittleEndian.PutUint64(buf.b[off:off+8], v)
}

// Pad appends n zero bytes, e.g. for section alignment.
func (buf *Buffer) Pad(n int) {
	for i := 0; i < n; i++ {
		buf.b = append(buf.b, 0)
	}
}

// AlignTo pads with zero bytes until Len() is a multiple of align.
func (buf *Buffer) AlignTo(align int) {
	if align <= 1 {
		return
	}
	rem := len(buf.b) % align
	if rem != 0 {
		buf.Pad(align - rem)
	}
}
