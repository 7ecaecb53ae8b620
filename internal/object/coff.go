package object

import "github.com/minic-lang/minicc/internal/buffer"

// COFF relocation type codes, spec.md §7 "Relocation types use the AMD64
// codes REL32 = 0x4 and ADDR64 = 0x1."
const (
	coffRelAddr64 = 0x1
	coffRelRel32  = 0x4
)

// Section characteristics, spec.md §7.
const (
	coffCntCode            = 0x00000020
	coffCntInitializedData = 0x00000040
	coffMemExecute         = 0x20000000
	coffMemRead            = 0x40000000
	coffMemWrite           = 0x80000000
	coffAlign16            = 0x00500000
	coffAlign8             = 0x00400000
)

type coffSection struct {
	name  string
	bytes []byte
	flags uint32
	relocs []Reloc
}

// WriteCOFF serializes w into a Microsoft COFF (.obj) relocatable object
// file, spec.md §7 "COFF file layout".
func WriteCOFF(w *Writer) []byte {
	machine := uint16(0x014c)
	if w.Machine == MachineAMD64 {
		machine = 0x8664
	}

	sections := []coffSection{
		{name: ".text", bytes: w.Text.Bytes(), flags: coffCntCode | coffMemExecute | coffMemRead | coffAlign16, relocs: w.Relocs[SectionText]},
		{name: ".data", bytes: w.Data.Bytes(), flags: coffCntInitializedData | coffMemRead | coffMemWrite | coffAlign8, relocs: w.Relocs[SectionData]},
	}

	var longNames []byte // string table body, built as sections/symbols are laid out
	longNames = append(longNames, 0, 0, 0, 0) // placeholder for the 4-byte size prefix

	out := buffer.New(4096)

	headerSize := 20
	sectionHeaderSize := 40 * len(sections)
	cursor := headerSize + sectionHeaderSize

	type laidOutSection struct {
		coffSection
		dataOff  int
		relocOff int
	}
	laid := make([]laidOutSection, len(sections))
	for i, s := range sections {
		laid[i].coffSection = s
		laid[i].dataOff = cursor
		cursor += len(s.bytes)
	}
	for i := range laid {
		laid[i].relocOff = cursor
		cursor += 10 * len(laid[i].relocs)
	}
	symtabOff := cursor
	numSymbols := len(w.Symbols)
	cursor += 18 * numSymbols
	_ = cursor // string table follows immediately; no further fixed-size regions after it

	// --- file header ---
	out.WriteWord(machine)
	out.WriteWord(uint16(len(sections)))
	out.WriteDword(0) // TimeDateStamp
	out.WriteDword(uint32(symtabOff))
	out.WriteDword(uint32(numSymbols))
	out.WriteWord(0) // SizeOfOptionalHeader
	out.WriteWord(0) // Characteristics

	// --- section headers ---
	for _, s := range laid {
		writeCoffSectionName(out, s.name)
		out.WriteDword(0) // VirtualSize
		out.WriteDword(0) // VirtualAddress
		out.WriteDword(uint32(len(s.bytes)))
		out.WriteDword(uint32(s.dataOff))
		if len(s.relocs) > 0 {
			out.WriteDword(uint32(s.relocOff))
		} else {
			out.WriteDword(0)
		}
		out.WriteDword(0) // PointerToLinenumbers
		out.WriteWord(uint16(len(s.relocs)))
		out.WriteWord(0) // NumberOfLinenumbers
		out.WriteDword(s.flags)
	}

	// --- raw section bytes ---
	for _, s := range laid {
		out.WriteBytes(s.bytes)
	}

	// --- per-section relocation tables ---
	for _, s := range laid {
		for _, r := range s.relocs {
			out.WriteDword(r.Offset)
			out.WriteDword(uint32(r.SymIndex))
			out.WriteWord(coffRelocType(r.Fixup))
		}
	}

	// --- symbol table ---
	for _, sym := range w.Symbols {
		if len(sym.Name) <= 8 {
			var nameBuf [8]byte
			copy(nameBuf[:], sym.Name)
			out.WriteBytes(nameBuf[:])
		} else {
			out.WriteDword(0)
			out.WriteDword(uint32(len(longNames)))
			longNames = append(longNames, []byte(sym.Name)...)
			longNames = append(longNames, 0)
		}
		out.WriteDword(uint32(sym.Value))
		out.WriteWord(uint16(sym.Section))
		out.WriteWord(sym.Type)
		out.WriteByte(sym.StorageClass)
		out.WriteByte(0) // NumberOfAuxSymbols
	}

	// --- string table (4-byte size prefix, including itself) ---
	putCoffU32(longNames, uint32(len(longNames)))
	out.WriteBytes(longNames)

	return out.Bytes()
}

func writeCoffSectionName(out *buffer.Buffer, name string) {
	var nameBuf [8]byte
	copy(nameBuf[:], name)
	out.WriteBytes(nameBuf[:])
}

func putCoffU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func coffRelocType(fx FixupType) uint16 {
	switch fx {
	case FixupAbs64:
		return coffRelAddr64
	default:
		return coffRelRel32
	}
}
