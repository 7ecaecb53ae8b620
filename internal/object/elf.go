package object

import "github.com/minic-lang/minicc/internal/buffer"

// ELF64 relocation type codes, spec.md §7 "Relocation mapping".
const (
	elfRX8664_64     = 1
	elfRX8664PC32    = 2
	elfRX8664PLT32   = 4
)

// ELF64 section types/flags used by the sections this writer emits.
const (
	elfSHTNull    = 0
	elfSHTProgbits = 1
	elfSHTSymtab  = 2
	elfSHTStrtab  = 3
	elfSHTRela    = 4
	elfSHTNobits  = 8

	elfSHFWrite     = 0x1
	elfSHFAlloc     = 0x2
	elfSHFExecinstr = 0x4
)

const (
	elfSTBLocal  = 0
	elfSTBGlobal = 1

	elfSTTNotype = 0
	elfSTTFunc   = 2
)

type elfShdr struct {
	name      string
	shType    uint32
	flags     uint64
	offset    uint64
	size      uint64
	link      uint32
	info      uint32
	addralign uint64
	entsize   uint64
	bytes     []byte // nil for SHT_NOBITS
}

// WriteELF serializes w into an ELF64 relocatable (ET_REL) object file,
// spec.md §7 "ELF file layout".
func WriteELF(w *Writer) []byte {
	var shstrtab []byte
	shstrtab = append(shstrtab, 0)
	nameOff := func(s string) uint32 {
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, []byte(s)...)
		shstrtab = append(shstrtab, 0)
		return off
	}

	// shndx[our Section constant] -> final ELF section header index, filled
	// in as sections are appended below.
	shndx := map[int]uint32{}

	var shdrs []elfShdr
	shdrs = append(shdrs, elfShdr{}) // index 0: SHT_NULL, all-zero

	shdrs = append(shdrs, elfShdr{name: ".text", shType: elfSHTProgbits, flags: elfSHFAlloc | elfSHFExecinstr, bytes: w.Text.Bytes(), addralign: 16})
	shndx[SectionText] = uint32(len(shdrs) - 1)

	shdrs = append(shdrs, elfShdr{name: ".data", shType: elfSHTProgbits, flags: elfSHFAlloc | elfSHFWrite, bytes: w.Data.Bytes(), addralign: 8})
	shndx[SectionData] = uint32(len(shdrs) - 1)

	shdrs = append(shdrs, elfShdr{name: ".bss", shType: elfSHTNobits, flags: elfSHFAlloc | elfSHFWrite, addralign: 8})
	shndx[SectionBSS] = uint32(len(shdrs) - 1)

	shdrs = append(shdrs, elfShdr{name: ".note.GNU-stack", shType: elfSHTProgbits, flags: 0, addralign: 1})

	textRelocs := w.Relocs[SectionText]
	dataRelocs := w.Relocs[SectionData]

	// --- symbol table: locals first, then globals, per spec.md §8 "ELF
	// local/global partition" ---
	type elfSym struct {
		nameOff uint32
		info    byte
		shndx   uint16
		value   uint64
		size    uint64
	}
	var strtab []byte
	strtab = append(strtab, 0)
	symNameOff := func(s string) uint32 {
		off := uint32(len(strtab))
		strtab = append(strtab, []byte(s)...)
		strtab = append(strtab, 0)
		return off
	}

	origIndexToFinal := make([]int, len(w.Symbols))
	var locals, globals []elfSym
	for i, sym := range w.Symbols {
		typ := byte(elfSTTNotype)
		if sym.Type == TypeFunction {
			typ = elfSTTFunc
		}
		var bind byte = elfSTBGlobal
		if sym.StorageClass == StorageStatic {
			bind = elfSTBLocal
		}
		var sh uint16
		if sym.Section == SectionUndefined {
			sh = 0
		} else {
			sh = uint16(shndx[sym.Section])
		}
		es := elfSym{nameOff: symNameOff(sym.Name), info: (bind << 4) | typ, shndx: sh, value: sym.Value}
		if bind == elfSTBLocal {
			locals = append(locals, es)
			origIndexToFinal[i] = len(locals) // len after append: index 0 is the null entry
		} else {
			globals = append(globals, es)
			origIndexToFinal[i] = -len(globals) // negative marker, resolved below
		}
	}
	firstGlobal := 1 + len(locals)
	for i := range origIndexToFinal {
		if origIndexToFinal[i] < 0 {
			origIndexToFinal[i] = firstGlobal + (-origIndexToFinal[i] - 1)
		}
	}

	symtabBuf := buffer.New(24 * (1 + len(locals) + len(globals)))
	writeElfSym := func(s elfSym) {
		symtabBuf.WriteDword(s.nameOff)
		symtabBuf.WriteByte(s.info)
		symtabBuf.WriteByte(0)
		symtabBuf.WriteWord(s.shndx)
		symtabBuf.WriteQword(s.value)
		symtabBuf.WriteQword(s.size)
	}
	writeElfSym(elfSym{})
	for _, s := range locals {
		writeElfSym(s)
	}
	for _, s := range globals {
		writeElfSym(s)
	}

	writeRela := func(name string, relocs []Reloc, targetShndx uint32) {
		if len(relocs) == 0 {
			return
		}
		buf := buffer.New(24 * len(relocs))
		for _, r := range relocs {
			relType, addend := elfRelocType(r.Fixup)
			symFinal := uint64(origIndexToFinal[r.SymIndex])
			buf.WriteQword(uint64(r.Offset))
			buf.WriteQword((symFinal << 32) | uint64(relType))
			buf.WriteQword(uint64(int64(addend)))
		}
		shdrs = append(shdrs, elfShdr{
			name: name, shType: elfSHTRela, flags: 0, bytes: buf.Bytes(),
			link: 0 /* patched below to .symtab index */, info: targetShndx, entsize: 24, addralign: 8,
		})
	}
	writeRela(".rela.text", textRelocs, shndx[SectionText])
	writeRela(".rela.data", dataRelocs, shndx[SectionData])

	if w.HasDebugInfo() {
		shdrs = append(shdrs, elfShdr{name: ".fadors_debug", shType: elfSHTProgbits, bytes: buildDebugSection(w), addralign: 1})
	}

	symtabIdx := uint32(len(shdrs))
	shdrs = append(shdrs, elfShdr{name: ".symtab", shType: elfSHTSymtab, bytes: symtabBuf.Bytes(), entsize: 24, info: uint32(firstGlobal), addralign: 8})
	// .symtab.link must point at .strtab, which we append next.
	strtabIdx := uint32(len(shdrs))
	shdrs = append(shdrs, elfShdr{name: ".strtab", shType: elfSHTStrtab, bytes: strtab, addralign: 1})
	shdrs[symtabIdx].link = strtabIdx

	for i := range shdrs {
		if shdrs[i].shType == elfSHTRela {
			shdrs[i].link = symtabIdx
		}
	}

	shdrs = append(shdrs, elfShdr{name: ".shstrtab", shType: elfSHTStrtab, addralign: 1})
	shstrtabIdx := uint32(len(shdrs) - 1)

	shdrNameOff := make([]uint32, len(shdrs))
	for i := range shdrs {
		if i == 0 {
			continue
		}
		shdrNameOff[i] = nameOff(shdrs[i].name)
	}
	shdrs[shstrtabIdx].bytes = shstrtab

	// --- lay out file offsets: Ehdr, then each section's raw bytes in
	// order (NOBITS sections contribute no file bytes), then the section
	// header table ---
	ehdrSize := 64
	cursor := ehdrSize
	for i := range shdrs {
		if shdrs[i].shType == elfSHTNobits || shdrs[i].shType == elfSHTNull {
			continue
		}
		if shdrs[i].addralign > 1 {
			rem := uint64(cursor) % shdrs[i].addralign
			if rem != 0 {
				cursor += int(shdrs[i].addralign - rem)
			}
		}
		shdrs[i].offset = uint64(cursor)
		shdrs[i].size = uint64(len(shdrs[i].bytes))
		cursor += len(shdrs[i].bytes)
	}
	shoff := cursor

	out := buffer.New(cursor + 64*len(shdrs))

	// --- Elf64_Ehdr ---
	out.WriteBytes([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}) // EI_MAG, ELFCLASS64, ELFDATA2LSB, EV_CURRENT, OSABI=SysV(0)
	out.Pad(8)                                              // e_ident padding
	out.WriteWord(1)                                        // e_type = ET_REL
	machine := uint16(0x3e)                                 // EM_X86_64
	if w.Machine == MachineI386 {
		machine = 0x03 // EM_386
	}
	out.WriteWord(machine)
	out.WriteDword(1) // e_version = EV_CURRENT
	out.WriteQword(0) // e_entry
	out.WriteQword(0) // e_phoff
	out.WriteQword(uint64(shoff))
	out.WriteDword(0) // e_flags
	out.WriteWord(64) // e_ehsize
	out.WriteWord(0)  // e_phentsize
	out.WriteWord(0)  // e_phnum
	out.WriteWord(64) // e_shentsize
	out.WriteWord(uint16(len(shdrs)))
	out.WriteWord(uint16(shstrtabIdx))

	// --- section bytes, in the order laid out above ---
	for _, s := range shdrs {
		if s.shType == elfSHTNobits || s.shType == elfSHTNull {
			continue
		}
		for uint64(out.Len()) < s.offset {
			out.WriteByte(0)
		}
		out.WriteBytes(s.bytes)
	}

	// --- section header table ---
	for i, s := range shdrs {
		if i == 0 {
			out.Pad(64)
			continue
		}
		out.WriteDword(shdrNameOff[i])
		out.WriteDword(s.shType)
		out.WriteQword(s.flags)
		out.WriteQword(0) // sh_addr
		out.WriteQword(s.offset)
		out.WriteQword(s.size)
		out.WriteDword(s.link)
		out.WriteDword(s.info)
		out.WriteQword(s.addralign)
		out.WriteQword(s.entsize)
	}

	return out.Bytes()
}

func elfRelocType(fx FixupType) (uint32, int32) {
	switch fx {
	case FixupAbs64:
		return elfRX8664_64, 0
	case FixupPLT32:
		return elfRX8664PLT32, -4
	default: // FixupPC32, FixupAbs32: data references prefer R_X86_64_PC32
		return elfRX8664PC32, -4
	}
}

// buildDebugSection serializes the custom debug section, spec.md §7:
// "(source-name-length, source name, comp-dir-length, comp-dir,
// entry-count, entries)".
func buildDebugSection(w *Writer) []byte {
	buf := buffer.New(256)
	buf.WriteDword(uint32(len(w.SourceFile)))
	buf.WriteBytes([]byte(w.SourceFile))
	buf.WriteDword(uint32(len(w.CompDir)))
	buf.WriteBytes([]byte(w.CompDir))
	buf.WriteDword(uint32(len(w.DebugLines)))
	for _, l := range w.DebugLines {
		buf.WriteDword(l.Offset)
		buf.WriteDword(uint32(l.Line))
		flags := byte(0)
		if l.IsStmt {
			flags |= 1
		}
		if l.EndSequence {
			flags |= 2
		}
		buf.WriteByte(flags)
	}
	buf.WriteDword(uint32(len(w.DebugFuncs)))
	for _, f := range w.DebugFuncs {
		buf.WriteDword(uint32(len(f.Name)))
		buf.WriteBytes([]byte(f.Name))
		buf.WriteDword(f.EntryOff)
		buf.WriteDword(f.ExitOff)
		buf.WriteDword(uint32(len(f.Vars)))
		for _, v := range f.Vars {
			buf.WriteDword(uint32(len(v.Name)))
			buf.WriteBytes([]byte(v.Name))
			buf.WriteDword(uint32(v.FrameOff))
			flags := byte(0)
			if v.IsParam {
				flags = 1
			}
			buf.WriteByte(flags)
			buf.WriteDword(uint32(len(v.TypeKind)))
			buf.WriteBytes([]byte(v.TypeKind))
			buf.WriteDword(uint32(v.Size))
			buf.WriteDword(uint32(len(v.TypeName)))
			buf.WriteBytes([]byte(v.TypeName))
		}
	}
	return buf.Bytes()
}
