// Package codegen implements the x86 (32-bit) and x86-64 machine backends:
// per-AST-kind code emission, the inline peephole optimizer, the local
// register allocator, and vectorized-loop codegen, spec.md §4.4.
package codegen

import (
	"strconv"

	"github.com/minic-lang/minicc/internal/ast"
	"github.com/minic-lang/minicc/internal/diag"
	"github.com/minic-lang/minicc/internal/encoder"
	"github.com/minic-lang/minicc/internal/object"
	"github.com/minic-lang/minicc/internal/pgo"
)

// Target selects the ABI and object-file format, spec.md §6.
type Target int

const (
	TargetLinuxX64 Target = iota
	TargetWindowsX64
	TargetDOSX86
)

// OptLevel mirrors spec.md §6's -O0..-O3/-Os/-Og flag surface.
type OptLevel int

const (
	OptO0 OptLevel = iota
	OptO1
	OptO2
	OptO3
	OptOs
	OptOg
)

// local describes one name's storage home within the current function,
// spec.md §4.4 Identifier.
type localKind int

const (
	localStack localKind = iota
	localReg
	localStatic
)

type local struct {
	name       string
	typ        *ast.Type
	kind       localKind
	stackOff   int32  // localStack: signed offset from bp
	reg        string // localReg: callee-saved register name as widthName keys it (e.g. "rbx", or "ebx" on 32-bit)
	staticName string // localStatic: data-section label
	isParam    bool
}

// Global is one file-scope variable, keyed by name so double registration
// (spec.md §9 Open Question) is structurally impossible.
type Global struct {
	Name string
	Typ  *ast.Type
}

// Session holds every piece of mutable state one compilation unit's
// backend needs, replacing the module-scope globals spec.md's Design
// Notes call out (`locals`, `string_literals`, `label_count`, `peep_*`) —
// see SPEC_FULL.md "SUPPLEMENTED FEATURES / BackendSession".
type Session struct {
	Target Target
	Opt    OptLevel
	Debug  bool

	abi abiInfo

	Enc *encoder.Encoder
	Obj *object.Writer

	// Per-function state; reset at function entry (spec.md §3 "Backend
	// per-function state is created at function entry and destroyed at
	// function exit").
	locals      map[string]*local
	stackOffset int32 // always <= 0, bytes relative to saved frame pointer
	localsCount int
	labelCount  int
	funcName    string
	funcEnd     string
	retReg      string
	retType     *ast.Type
	sretPtrSlot int32
	hasSret     bool
	savedRegs   []savedReg

	breakTargets   []loopFrame // pushed by loops AND switches, in lexical nesting order
	continueLabels []loopFrame // pushed by loops only

	// switch-label side table, keyed by *ast.Node (supplemented feature,
	// SPEC_FULL.md) instead of overloading ResolvedType.
	switchLabels map[*ast.Node]string

	// Persist across functions within a compilation unit, spec.md §3.
	stringLits map[string]string // literal value -> .LC<n> label
	floatLits  map[uint64]string // bit pattern -> .LF<n> label
	litCounter int
	globals    map[string]*Global

	peep peepholeState

	// PGOGenerate gates the instrumentation hooks in func.go/stmt.go,
	// spec.md §6 "PGO instrumentation surface".
	PGOGenerate bool
	pgoAlloc    *pgo.Allocator

	sess *diag.Session
}

// gateLevel normalizes Opt to the tier optimization gates actually compare
// against, spec.md §6: "Os is treated as O2 ... Og is treated as O1" for
// every O-tier gate in the backend. Callers that need Os's size preference
// or Og's debug-preserving restraint specifically use sizePref/debugPreserve
// instead of comparing Opt directly.
func (s *Session) gateLevel() OptLevel {
	switch s.Opt {
	case OptOs:
		return OptO2
	case OptOg:
		return OptO1
	default:
		return s.Opt
	}
}

// sizePref reports whether -Os's prefer-smaller-code bit is set.
func (s *Session) sizePref() bool {
	return s.Opt == OptOs
}

// debugPreserve reports whether -Og's preserve-debuggability bit is set,
// spec.md §6: Og optimizes like O1 but must not apply a transform that
// would make source-level stepping or locals misleading.
func (s *Session) debugPreserve() bool {
	return s.Opt == OptOg
}

func (s *Session) pgoTarget() pgo.Target {
	switch s.Target {
	case TargetWindowsX64:
		return pgo.TargetWindowsX64
	case TargetDOSX86:
		return pgo.TargetDOSX86
	default:
		return pgo.TargetLinuxX64
	}
}

// pgoEnabled reports whether instrumentation hooks should fire: the flag
// is set and the target carries a profile-write shim (not true on DOS).
func (s *Session) pgoEnabled() bool {
	return s.PGOGenerate && pgo.Enabled(s.pgoTarget())
}

type savedReg struct {
	name     string
	slotOff  int32
	wasParam bool
}

type loopFrame struct {
	savedStackOff int32
	breakLabel    string
	continueLabel string // empty for a switch frame, which has no continue target
}

// NewSession returns a Session ready to compile a whole translation unit
// for target, writing into enc/obj.
func NewSession(target Target, opt OptLevel, debug bool, pgoGenerate bool, enc *encoder.Encoder, obj *object.Writer, sess *diag.Session) *Session {
	return &Session{
		Target:       target,
		Opt:          opt,
		Debug:        debug,
		PGOGenerate:  pgoGenerate,
		abi:          abiFor(target),
		Enc:          enc,
		Obj:          obj,
		stringLits:   make(map[string]string),
		floatLits:    make(map[uint64]string),
		globals:      make(map[string]*Global),
		switchLabels: make(map[*ast.Node]string),
		pgoAlloc:     pgo.NewAllocator(obj),
		sess:         sess,
	}
}

// resetFunction clears per-function state at function entry, spec.md §3.
func (s *Session) resetFunction(name string) {
	s.locals = make(map[string]*local)
	s.stackOffset = 0
	s.localsCount = 0
	s.labelCount = 0
	s.funcName = name
	s.funcEnd = s.newLabel("end")
	s.savedRegs = nil
	s.breakTargets = nil
	s.continueLabels = nil
	s.hasSret = false
	s.peep = peepholeState{}
}

// newLabel allocates a fresh, function-scoped local label.
func (s *Session) newLabel(prefix string) string {
	s.labelCount++
	return ".L" + prefix + "_" + s.funcName + "_" + strconv.Itoa(s.labelCount)
}

// emit is the single choke point every emission path funnels through: it
// feeds the peephole optimizer (spec.md §4.4 "runs inline during
// emission") before handing the instruction to the encoder.
func (s *Session) emit(mnemonic string, ops ...encoder.Operand) {
	s.peepholeEmit(mnemonic, ops)
}

// emitLabel defines a text-section label, forcing the peephole optimizer
// to flush in the documented fixed order first.
func (s *Session) emitLabel(name string) {
	if s.peepholeEnabled() {
		s.peepholeOnLabel(name)
	} else {
		s.peepholeFlushAll()
	}
	s.Obj.AddSymbol(name, uint64(s.Enc.Buf.Len()), object.SectionText, object.TypeNone, object.StorageStatic)
}

func (s *Session) fail(format string, args ...interface{}) {
	s.sess.Fail(diag.Internal, format, args...)
}
