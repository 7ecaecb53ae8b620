// Package object accumulates text/data bytes, symbols, relocations, and
// optional debug records for one compilation unit, and serializes the
// result to a COFF (.obj) or ELF (.o) relocatable object file. It
// implements spec.md §4.3.
package object

// Section numbers for Symbol.Section, spec.md §3 "Symbol record": 0 =
// undefined, 1 = text, 2 = data; SectionBSS is ELF-only.
const (
	SectionUndefined = 0
	SectionText      = 1
	SectionData      = 2
	SectionBSS       = 3
)

// Symbol type bits and storage classes, spec.md §7 "COFF file layout".
const (
	TypeNone     = 0x0000
	TypeFunction = 0x0020 // complex type DT_FCN (2) in bits 4-7

	StorageExternal = 2
	StorageStatic   = 3
)

// Symbol is one entry of the object writer's symbol table, spec.md §3.
type Symbol struct {
	Name         string
	Value        uint64 // section-relative byte offset
	Section      int
	Type         uint16
	StorageClass uint8
}

// AddSymbol appends a record and returns its index, spec.md §4.3
// "add_symbol(name, value, section, type, storage_class)". Long names (over
// eight bytes) are interned into the writer's string table at
// serialization time; the symbol record itself just carries the name.
func (w *Writer) AddSymbol(name string, value uint64, section int, typ uint16, storage uint8) int {
	w.Symbols = append(w.Symbols, Symbol{Name: name, Value: value, Section: section, Type: typ, StorageClass: storage})
	return len(w.Symbols) - 1
}

// FindSymbol does a linear search for name, returning its index or -1,
// spec.md §4.3 "find_symbol(name) — linear search".
func (w *Writer) FindSymbol(name string) int {
	for i, s := range w.Symbols {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// InternSymbol finds an existing symbol by name or creates a new external,
// undefined one — the auto-interning behavior spec.md §4.2 requires when
// the encoder's relocation references an unknown symbol.
func (w *Writer) InternSymbol(name string) int {
	if idx := w.FindSymbol(name); idx >= 0 {
		return idx
	}
	return w.AddSymbol(name, 0, SectionUndefined, TypeNone, StorageExternal)
}
