package ast

// Kind discriminates the statement/expression/declaration variants listed in
// spec.md §3 "AST node".
type Kind int

const (
	// Expressions
	IntLit Kind = iota
	FloatLit
	StringLit
	Ident
	Unary
	Cast
	Binary
	Assign
	Index
	Member
	Call
	Ternary // an If node with a non-nil Else doubles as this, per spec.md §3

	// Statements
	Block
	If
	While
	DoWhile
	For
	Switch
	Case
	Default
	Break
	Continue
	Goto
	Label
	Return
	VarDecl
	FuncDecl
	Assert
)

// UnaryOp enumerates the unary operators spec.md §3 lists.
type UnaryOp int

const (
	Neg UnaryOp = iota
	Not
	BitNot
	AddrOf
	Deref
	PreInc
	PreDec
	PostInc
	PostDec
)

// BinaryOp enumerates the binary operators spec.md §3 lists (arithmetic,
// bitwise, shift, comparison, logical, comma).
type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Mod
	BitAnd
	BitOr
	BitXor
	Shl
	Shr
	CmpEq
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
	LogAnd
	LogOr
	Comma
)

// VecMode enumerates the optimizer-assigned vectorized-loop modes in
// spec.md §4.4 "Vectorized-loop codegen".
type VecMode int

const (
	VecElementwise VecMode = iota
	VecReduction
	VecInit
)

// VecInfo carries optimizer-assigned vectorization metadata attached to a
// loop node, spec.md §4.4.
type VecInfo struct {
	Width      int // 4 (SSE) or 8 (AVX) elements per iteration
	ElemSize   int
	IsFloat    bool
	Op         BinaryOp
	Iterations int
	Dst        string
	Src1       string
	Src2       string
	AccumVar   string
	InitScale  int64
	InitOffset int64
	Mode       VecMode
}

// InitElem is one element of a var-decl initializer list: either a constant
// expression or a nested initializer list (for nested aggregates).
type InitElem struct {
	Index int // destination index/offset slot within the aggregate
	Value *Node
	List  []InitElem
}

// Node is a discriminated record over statement and expression kinds plus
// declarations (spec.md §3 "AST node"). Every node carries a kind tag, an
// optional resolved type, a source line, optional vectorization metadata,
// and kind-specific payload fields below.
type Node struct {
	Kind         Kind
	ResolvedType *Type
	Line         int
	Vec          *VecInfo // non-nil only on annotated loop nodes

	// Literals / identifiers
	IntVal    int64
	FloatVal  float64
	StrVal    string
	Name      string

	// Unary / binary / cast
	UnaryOp  UnaryOp
	BinaryOp BinaryOp
	Lhs, Rhs *Node // Binary, Assign (Lhs=target), Cast (Rhs=operand)
	Operand  *Node // Unary

	// Index / Member
	Base    *Node
	Idx     *Node  // Index
	Field   string // Member
	Arrow   bool   // Member: -> vs .

	// Call
	Callee *Node
	Args   []*Node

	// Block / control flow
	Stmts    []*Node // Block
	Cond     *Node   // If/While/DoWhile/For/Switch/Ternary
	Then     *Node   // If/Ternary then-branch; While/DoWhile body
	Else     *Node   // If/Ternary else-branch (non-nil => Ternary per spec.md §3)
	Init     *Node   // For
	Post     *Node   // For
	Body     *Node   // Switch/For body; Case/Default body owner
	CaseVal  int64   // Case
	IsDefault bool

	// Goto/Label
	Label string

	// Return
	RetExpr *Node

	// VarDecl
	IsStatic   bool
	IsExtern   bool
	VarType    *Type
	Init1      *Node      // scalar initializer
	InitList   []InitElem // aggregate initializer

	// FuncDecl
	Params      []*Node // VarDecl children
	FuncBody    *Node   // Block
	IsStaticFn  bool
	ReturnType  *Type

	// Assert
	AssertExpr *Node

	// Children, used by generic walkers (collect_cases etc.)
	Children []*Node
}

// Walk calls fn for n and every descendant reachable through the
// kind-specific payload fields, depth first. It's the generic traversal the
// register allocator's scan table (spec.md §4.4) and the switch-case
// collector (spec.md §5) both need.
func Walk(n *Node, fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.childList() {
		Walk(c, fn)
	}
}

func (n *Node) childList() []*Node {
	var out []*Node
	add := func(c *Node) {
		if c != nil {
			out = append(out, c)
		}
	}
	add(n.Lhs)
	add(n.Rhs)
	add(n.Operand)
	add(n.Base)
	add(n.Idx)
	add(n.Callee)
	out = append(out, n.Args...)
	out = append(out, n.Stmts...)
	add(n.Cond)
	add(n.Then)
	add(n.Else)
	add(n.Init)
	add(n.Post)
	add(n.Body)
	add(n.RetExpr)
	add(n.Init1)
	add(n.FuncBody)
	add(n.AssertExpr)
	out = append(out, n.Params...)
	out = append(out, n.Children...)
	return out
}
