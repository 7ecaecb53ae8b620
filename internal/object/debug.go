package object

// DebugLine is one (text-section offset, source line, is-statement,
// end-of-sequence) entry, spec.md §3 "Debug records".
type DebugLine struct {
	Offset      uint32
	Line        int
	IsStmt      bool
	EndSequence bool
}

// DebugVar is one (variable name, frame-pointer offset, is-parameter,
// type-kind, size, optional type name) entry, grouped under a DebugFunc.
type DebugVar struct {
	Name       string
	FrameOff   int32
	IsParam    bool
	TypeKind   string
	Size       int
	TypeName   string
}

// DebugFunc groups the variables declared within one function's entry/exit
// text offsets, spec.md §3 "grouped by function with entry/exit text
// offsets".
type DebugFunc struct {
	Name       string
	EntryOff   uint32
	ExitOff    uint32
	Vars       []DebugVar
}

// AddDebugLine appends a source-line mapping entry. Called once per
// statement boundary by the backend when debug info is requested.
func (w *Writer) AddDebugLine(offset uint32, line int, isStmt bool) {
	w.DebugLines = append(w.DebugLines, DebugLine{Offset: offset, Line: line, IsStmt: isStmt})
}

// EndDebugLineSequence appends the terminating end-of-sequence marker for
// the current function's line table.
func (w *Writer) EndDebugLineSequence(offset uint32) {
	w.DebugLines = append(w.DebugLines, DebugLine{Offset: offset, EndSequence: true})
}

// BeginDebugFunc opens a new debug-variable group for a function starting
// at entryOff. Must be paired with EndDebugFunc before the next
// BeginDebugFunc, per spec.md §3's "per-function state ... destroyed at
// function exit" lifetime.
func (w *Writer) BeginDebugFunc(name string, entryOff uint32) {
	w.currentDebugFunc = &DebugFunc{Name: name, EntryOff: entryOff}
}

// AddDebugVar appends one variable record to the currently open debug
// function group.
func (w *Writer) AddDebugVar(v DebugVar) {
	if w.currentDebugFunc == nil {
		return
	}
	w.currentDebugFunc.Vars = append(w.currentDebugFunc.Vars, v)
}

// EndDebugFunc closes the current debug-variable group at exitOff and
// files it into the writer's function list.
func (w *Writer) EndDebugFunc(exitOff uint32) {
	if w.currentDebugFunc == nil {
		return
	}
	w.currentDebugFunc.ExitOff = exitOff
	w.DebugFuncs = append(w.DebugFuncs, *w.currentDebugFunc)
	w.currentDebugFunc = nil
}
