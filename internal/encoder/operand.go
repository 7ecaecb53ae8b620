package encoder

import "fmt"

// OperandKind discriminates the Operand variants of spec.md §3 "Operand".
type OperandKind int

const (
	OpReg OperandKind = iota
	OpImm
	OpMem    // base register + signed displacement
	OpLabel  // symbol name
	OpSIB    // base + index*scale + disp
	OpRIP    // rip-relative label (base-less memory operand referencing a symbol)
)

// Operand is a short-lived value describing one instruction operand.
type Operand struct {
	Kind OperandKind

	Reg string // OpReg

	Imm int64 // OpImm, 64-bit signed

	Base  string // OpMem, OpSIB: base register name
	Disp  int32  // OpMem, OpSIB; OpRIP stores it but the encoder does not apply it (the RIP placeholder is always zero)
	Index string // OpSIB
	Scale int    // OpSIB: 1, 2, 4, 8

	Label string // OpLabel, OpRIP
}

func Reg(name string) Operand { return Operand{Kind: OpReg, Reg: name} }
func Imm(v int64) Operand     { return Operand{Kind: OpImm, Imm: v} }
func Mem(base string, disp int32) Operand {
	return Operand{Kind: OpMem, Base: base, Disp: disp}
}
func SIB(base, index string, scale int, disp int32) Operand {
	return Operand{Kind: OpSIB, Base: base, Index: index, Scale: scale, Disp: disp}
}
func Label(name string) Operand { return Operand{Kind: OpLabel, Label: name} }
func RIP(name string, disp int32) Operand {
	return Operand{Kind: OpRIP, Label: name, Disp: disp}
}

// regInfo describes one physical register name: its id (0-15 for GP/XMM/YMM),
// width in bits, whether it's a "high byte" legacy alias (ah/bh/ch/dh, only
// valid with no REX prefix), and whether encoding it forces a REX prefix to
// exist at all (spl/bpl/sil/dil and r8b-r15b; other registers with id >= 8
// get their REX prefix through extended()).
type regInfo struct {
	id       int
	width    int
	high     bool
	forceRex bool
	isXMM    bool
	isYMM    bool
}

var gpNames64 = []string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}
var gpNames32 = []string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
	"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d"}
var gpNames16 = []string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di",
	"r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w"}
var gpNames8L = []string{"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
	"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b"}
var gpNames8H = []string{"ah", "ch", "dh", "bh"} // aliases for id 0-3 only, no REX allowed

var regTable map[string]regInfo

func init() {
	regTable = make(map[string]regInfo)
	for id, n := range gpNames64 {
		regTable[n] = regInfo{id: id, width: 64}
	}
	for id, n := range gpNames32 {
		regTable[n] = regInfo{id: id, width: 32}
	}
	for id, n := range gpNames16 {
		regTable[n] = regInfo{id: id, width: 16}
	}
	for id, n := range gpNames8L {
		forceRex := id >= 4 // spl/bpl/sil/dil and r8b.. all need a REX byte present
		regTable[n] = regInfo{id: id, width: 8, forceRex: forceRex}
	}
	for id, n := range gpNames8H {
		regTable[n] = regInfo{id: id, width: 8, high: true}
	}
	for id := 0; id < 16; id++ {
		regTable[fmt.Sprintf("xmm%d", id)] = regInfo{id: id, width: 128, isXMM: true}
		regTable[fmt.Sprintf("ymm%d", id)] = regInfo{id: id, width: 256, isYMM: true}
	}
}

func lookupReg(name string) (regInfo, bool) {
	r, ok := regTable[name]
	return r, ok
}

// IsRegisterName reports whether name is one of the fixed allowlisted
// register names this encoder recognizes — the textual-assembly parser
// uses this to distinguish a register operand from a bare label.
func IsRegisterName(name string) bool {
	_, ok := regTable[name]
	return ok
}

func (r regInfo) extended() bool { return r.id >= 8 }
func (r regInfo) low3() byte     { return byte(r.id & 7) }
