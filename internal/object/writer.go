package object

import "github.com/minic-lang/minicc/internal/buffer"

// Machine identifies the target instruction set for the serialized object,
// spec.md §4.3 "a machine identifier (i386 or AMD64)".
type Machine int

const (
	MachineI386 Machine = iota
	MachineAMD64
)

// Writer owns a whole compilation unit's object-file state: the text and
// data buffers, the symbol table, per-section relocation lists, and the
// optional debug-line/debug-variable records, spec.md §4.3. It persists for
// the whole compilation unit (unlike backend per-function state) and is
// consumed once by WriteCOFF or WriteELF.
type Writer struct {
	Machine    Machine
	SourceFile string
	CompDir    string

	Text *buffer.Buffer
	Data *buffer.Buffer

	Symbols []Symbol
	Relocs  map[int][]Reloc // section -> relocation list

	DebugLines []DebugLine
	DebugFuncs []DebugFunc

	currentDebugFunc *DebugFunc
}

// New returns a Writer ready to accept symbols and relocations for a unit
// targeting machine, with source/compDir recorded for optional debug
// records.
func New(machine Machine, sourceFile, compDir string) *Writer {
	return &Writer{
		Machine:    machine,
		SourceFile: sourceFile,
		CompDir:    compDir,
		Text:       buffer.New(4096),
		Data:       buffer.New(1024),
		Relocs:     make(map[int][]Reloc),
	}
}

// HasDebugInfo reports whether any debug record has been collected, used
// by WriteELF to decide whether to emit the debug section at all;
// WriteCOFF emits no debug section.
func (w *Writer) HasDebugInfo() bool {
	return len(w.DebugLines) > 0 || len(w.DebugFuncs) > 0
}
