package object

import "github.com/minic-lang/minicc/internal/encoder"

// FixupType mirrors internal/encoder's relocation kinds at the object-file
// level, spec.md §3 "Relocation record". Lowering to the concrete COFF/ELF
// constant happens in coff.go/elf.go.
type FixupType = encoder.FixupType

const (
	FixupAbs64 = encoder.FixupAbs64
	FixupPC32  = encoder.FixupPC32
	FixupPLT32 = encoder.FixupPLT32
	FixupAbs32 = encoder.FixupAbs32
)

// Reloc is one relocation record against a section, spec.md §3/§4.3
// "add_reloc(offset, sym_index, fixup_type, section)".
type Reloc struct {
	Offset   uint32
	SymIndex int
	Fixup    FixupType
	Section  int
}

// AddReloc appends a relocation to the given section's list. The caller
// (codegen) is responsible for resolving the symbol name to an index via
// InternSymbol first.
func (w *Writer) AddReloc(offset uint32, symIndex int, fixup FixupType, section int) {
	w.Relocs[section] = append(w.Relocs[section], Reloc{Offset: offset, SymIndex: symIndex, Fixup: fixup, Section: section})
}

// AddRelocsFromEncoder lowers a batch of encoder.Reloc values (offsets
// relative to the start of a just-emitted function body) into the writer's
// section-relative relocation lists, auto-interning unknown symbols per
// spec.md §4.2.
func (w *Writer) AddRelocsFromEncoder(relocs []encoder.Reloc, baseOffset uint32, section int) {
	for _, r := range relocs {
		idx := w.InternSymbol(r.Symbol)
		w.AddReloc(baseOffset+uint32(r.Offset), idx, r.Fixup, section)
	}
}
