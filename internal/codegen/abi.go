package codegen

// abiInfo captures the calling-convention shape spec.md §4.4 "ABI
// selection by target" lists.
type abiInfo struct {
	intArgRegs    []string // 64-bit names, in argument order
	xmmArgRegs    []string
	shadowSpace   int32
	slotSize      int32
	bits          int
	calleeSaved   []string // candidates for the register allocator, in preference order
	variadicALTrick bool   // Linux: AL = number of XMM args used before a variadic call
}

func abiFor(t Target) abiInfo {
	switch t {
	case TargetWindowsX64:
		return abiInfo{
			intArgRegs:  []string{"rcx", "rdx", "r8", "r9"},
			xmmArgRegs:  []string{"xmm0", "xmm1", "xmm2", "xmm3"},
			shadowSpace: 32,
			slotSize:    8,
			bits:        64,
			calleeSaved: []string{"rbx", "rsi", "rdi", "r12", "r13", "r14", "r15"},
		}
	case TargetDOSX86:
		return abiInfo{
			intArgRegs:  nil, // cdecl: all args on the stack
			xmmArgRegs:  nil,
			shadowSpace: 0,
			slotSize:    4,
			bits:        32,
			calleeSaved: []string{"ebx", "esi", "edi"},
		}
	default: // TargetLinuxX64
		return abiInfo{
			intArgRegs:      []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"},
			xmmArgRegs:      []string{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7"},
			shadowSpace:     0,
			slotSize:        8,
			bits:            64,
			calleeSaved:     []string{"rbx", "r12", "r13", "r14", "r15"},
			variadicALTrick: true,
		}
	}
}

// regAllocTrio is the "N = 3 for the 32-bit backend using BX/SI/DI, or the
// equivalent callee-saved trio on 64-bit" the register allocator assigns,
// spec.md §4.4 step 4.
func (a abiInfo) regAllocTrio() []string {
	if len(a.calleeSaved) <= 3 {
		return a.calleeSaved
	}
	return a.calleeSaved[:3]
}

// widthName returns the register name at the given bit width for a
// callee-saved base register name (itself given at 64-bit/32-bit width
// depending on abi.bits).
func widthName(base string, width int) string {
	table := map[string][4]string{
		"rbx": {"bl", "bx", "ebx", "rbx"},
		"rsi": {"sil", "si", "esi", "rsi"},
		"rdi": {"dil", "di", "edi", "rdi"},
		"r12": {"r12b", "r12w", "r12d", "r12"},
		"r13": {"r13b", "r13w", "r13d", "r13"},
		"r14": {"r14b", "r14w", "r14d", "r14"},
		"r15": {"r15b", "r15w", "r15d", "r15"},
		"ebx": {"bl", "bx", "ebx", "ebx"},
		"esi": {"sil", "si", "esi", "esi"},
		"edi": {"dil", "di", "edi", "edi"},
		"rax": {"al", "ax", "eax", "rax"},
		"eax": {"al", "ax", "eax", "eax"},
	}
	row, ok := table[base]
	if !ok {
		return base
	}
	switch width {
	case 8:
		return row[0]
	case 16:
		return row[1]
	case 32:
		return row[2]
	default:
		return row[3]
	}
}

func (s *Session) accReg() string {
	if s.abi.bits == 64 {
		return "rax"
	}
	return "eax"
}

func (s *Session) secReg() string {
	if s.abi.bits == 64 {
		return "rcx"
	}
	return "ecx"
}

func (s *Session) bpReg() string {
	if s.abi.bits == 64 {
		return "rbp"
	}
	return "ebp"
}

func (s *Session) spReg() string {
	if s.abi.bits == 64 {
		return "rsp"
	}
	return "esp"
}
