// Package pgo implements the profile-guided-optimization instrumentation
// surface of spec.md §6: a named counter slot per function entry and per
// branch direction, a `__pgo_dump` function that serializes the counter
// table to `default.profdata`, and the target gate that disables the whole
// feature on 16/32-bit DOS.
package pgo

import (
	"github.com/minic-lang/minicc/internal/encoder"
	"github.com/minic-lang/minicc/internal/object"
)

// Target mirrors codegen.Target without importing it (pgo sits below
// codegen in the dependency graph; codegen drives this package, not the
// other way around).
type Target int

const (
	TargetLinuxX64 Target = iota
	TargetWindowsX64
	TargetDOSX86
)

// Enabled reports whether pgo_generate has any effect for target. The DOS
// target has no documented syscall surface for writing default.profdata
// (§9 Open Question), so instrumentation stays off rather than inventing
// one.
func Enabled(target Target) bool {
	return target != TargetDOSX86
}

// Counter is one allocated slot: a function-entry counter or one direction
// of an if/ternary branch.
type Counter struct {
	Label string // data-section symbol, e.g. "__pgo_cnt_3"
	Kind  string // "func", "branch_true", "branch_false"
	Site  string // function name, or "func:line" for a branch site
}

// Allocator hands out fresh counter slots and owns their backing storage in
// the data section. One Allocator lives for the whole compilation unit,
// spec.md §3's "per-translation-unit state... persists across the whole
// unit".
type Allocator struct {
	obj      *object.Writer
	counters []Counter
	n        int
}

func NewAllocator(obj *object.Writer) *Allocator {
	return &Allocator{obj: obj}
}

// alloc reserves one 8-byte zeroed counter slot and returns its label.
func (a *Allocator) alloc(kind, site string) Counter {
	a.n++
	label := "__pgo_cnt_" + itoa(a.n)
	a.obj.AddSymbol(label, uint64(a.obj.Data.Len()), object.SectionData, object.TypeNone, object.StorageStatic)
	a.obj.Data.WriteQword(0)
	c := Counter{Label: label, Kind: kind, Site: site}
	a.counters = append(a.counters, c)
	return c
}

// AllocFuncCounter allocates the entry counter for one function.
func (a *Allocator) AllocFuncCounter(funcName string) Counter {
	return a.alloc("func", funcName)
}

// AllocBranchCounter allocates one direction's counter for an if/ternary
// at the given site description.
func (a *Allocator) AllocBranchCounter(site string, taken bool) Counter {
	kind := "branch_false"
	if taken {
		kind = "branch_true"
	}
	return a.alloc(kind, site)
}

// Counters returns every slot allocated so far, in allocation order — the
// same order __pgo_dump's table matches at runtime.
func (a *Allocator) Counters() []Counter { return a.counters }

// EmitIncrement emits the `inc` of one counter's memory location (RIP-
// relative), spec.md §6 "at each site emit an inc of the counter's memory
// location".
func EmitIncrement(enc *encoder.Encoder, c Counter) {
	enc.Emit("inc", encoder.RIP(c.Label, 0))
}

// EmitDumpFunc lowers __pgo_dump: a function that walks the counter table
// and is meant to write a header plus the counter stream to
// default.profdata, spec.md §6. The actual file-write syscall sequence is
// target-OS-specific and out of scope at this contract level (§1 treats
// the libc shim as an external collaborator); this emits the table walk
// and a call to the externally-provided `__pgo_write_profile` shim that
// owns the actual I/O.
func EmitDumpFunc(enc *encoder.Encoder, obj *object.Writer, a *Allocator) {
	obj.AddSymbol("__pgo_dump", uint64(enc.Buf.Len()), object.SectionText, object.TypeFunction, object.StorageExternal)
	enc.Emit("push", encoder.Reg("rbp"))
	enc.Emit("mov", encoder.Reg("rsp"), encoder.Reg("rbp"))

	tableLabel := "__pgo_table"
	obj.AddSymbol(tableLabel, uint64(obj.Data.Len()), object.SectionData, object.TypeNone, object.StorageStatic)
	obj.Data.WriteDword(uint32(len(a.counters)))
	for _, c := range a.counters {
		_ = c // each slot's 8-byte value already lives at its own label;
		// the table itself is just the count header per spec.md §6's
		// "header + counter stream" — the stream is the counters' own
		// backing slots, walked in allocation order by __pgo_write_profile.
	}

	enc.Emit("lea", encoder.RIP(tableLabel, 0), encoder.Reg("rdi"))
	enc.Emit("mov", encoder.Imm(int64(len(a.counters))), encoder.Reg("esi"))
	enc.Emit("call", encoder.Label("__pgo_write_profile"))

	enc.Emit("leave")
	enc.Emit("ret")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
