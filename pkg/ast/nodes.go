package ast

// DeclID, ExprID and StmtID are handles into a Unit's arenas.
type (
	DeclID int32
	ExprID int32
	StmtID int32
)

// Sentinel handles for absent nodes.
const (
	NoDecl DeclID = -1
	NoExpr ExprID = -1
	NoStmt StmtID = -1
)

// DeclKind tags a declaration.
type DeclKind int

const (
	DeclVar DeclKind = iota
	DeclParam
	DeclField
	DeclFunc
)

func (k DeclKind) String() string {
	switch k {
	case DeclVar:
		return "var"
	case DeclParam:
		return "param"
	case DeclField:
		return "field"
	case DeclFunc:
		return "func"
	default:
		return "unknown"
	}
}

// Decl is a named declaration: a variable, parameter, record field or
// function.
type Decl struct {
	ID   DeclID
	Kind DeclKind
	Name string
	Type *Type
	Loc  Location

	// Global marks file-scope declarations; Static marks internal linkage.
	Global bool
	Static bool
	// Extern is set for functions and variables declared extern or without a
	// body. Implicit marks functions synthesized for undeclared callees.
	Extern   bool
	Implicit bool

	HasBody bool
	Params  []DeclID
	Body    StmtID

	Init ExprID

	// Parent is the enclosing function for params and locals.
	Parent DeclID
	// Record is the tag of the struct or union owning a field.
	Record string
	// Index is the parameter or field position.
	Index int

	// Bounds is the annotation written after the declarator, if any.
	Bounds *BoundsDecl
}

// BoundsDecl is a Checked C bounds annotation such as ": count(n)".
type BoundsDecl struct {
	// Kind is count, byte_count or bounds.
	Kind string
	Arg  string
}

// BoundsAnnotated reports whether the programmer wrote bounds for d.
func (d *Decl) BoundsAnnotated() bool {
	return d.Bounds != nil
}

// IsFunction reports whether the declaration names a function.
func (d *Decl) IsFunction() bool {
	return d.Kind == DeclFunc
}

// ExprKind is the closed set of expression forms the resolver handles.
type ExprKind int

const (
	ExprDeclRef ExprKind = iota
	ExprMember
	ExprIntLit
	ExprFloatLit
	ExprCharLit
	ExprStringLit
	ExprNull
	ExprImplicitCast
	ExprExplicitCast
	ExprAssign
	ExprCompoundAssign
	ExprBinary
	ExprUnary
	ExprAddrOf
	ExprDeref
	ExprIncDec
	ExprSubscript
	ExprCall
	ExprConditional
	ExprInitList
	ExprCompoundLiteral
	ExprSizeOf
	ExprParen
	ExprComma
	ExprUnsupported
)

var exprKindNames = [...]string{
	ExprDeclRef:         "DeclRef",
	ExprMember:          "Member",
	ExprIntLit:          "IntLit",
	ExprFloatLit:        "FloatLit",
	ExprCharLit:         "CharLit",
	ExprStringLit:       "StringLit",
	ExprNull:            "Null",
	ExprImplicitCast:    "ImplicitCast",
	ExprExplicitCast:    "ExplicitCast",
	ExprAssign:          "Assign",
	ExprCompoundAssign:  "CompoundAssign",
	ExprBinary:          "Binary",
	ExprUnary:           "Unary",
	ExprAddrOf:          "AddrOf",
	ExprDeref:           "Deref",
	ExprIncDec:          "IncDec",
	ExprSubscript:       "Subscript",
	ExprCall:            "Call",
	ExprConditional:     "Conditional",
	ExprInitList:        "InitList",
	ExprCompoundLiteral: "CompoundLiteral",
	ExprSizeOf:          "SizeOf",
	ExprParen:           "Paren",
	ExprComma:           "Comma",
	ExprUnsupported:     "Unsupported",
}

func (k ExprKind) String() string {
	if int(k) < len(exprKindNames) {
		return exprKindNames[k]
	}
	return "Unknown"
}

// Expr is one expression node.
//
// Operand layout by kind:
//   - Member, AddrOf, Deref, Unary, IncDec, casts, Paren, SizeOf(expr): Subs[0]
//   - Assign, CompoundAssign, Binary, Comma, Subscript: Subs[0], Subs[1]
//   - Call: Subs[0] is the callee, Subs[1:] the arguments
//   - Conditional: condition, then, else
//   - InitList, CompoundLiteral: elements
type Expr struct {
	ID   ExprID
	Kind ExprKind
	Type *Type
	Loc  Location
	Op   string
	Subs []ExprID
	// Decl is the referenced declaration for DeclRef, the field for Member
	// and the direct callee for Call.
	Decl DeclID
	// Operand is the sizeof or cast target type.
	Operand *Type
	Value   int64
	Text    string
}

// Sub returns the i-th operand or NoExpr.
func (e *Expr) Sub(i int) ExprID {
	if i < 0 || i >= len(e.Subs) {
		return NoExpr
	}
	return e.Subs[i]
}

// Args returns the arguments of a call expression.
func (e *Expr) Args() []ExprID {
	if e.Kind != ExprCall || len(e.Subs) == 0 {
		return nil
	}
	return e.Subs[1:]
}

// StmtKind tags a statement.
type StmtKind int

const (
	StmtCompound StmtKind = iota
	StmtDecl
	StmtExpr
	StmtReturn
	StmtIf
	StmtSwitch
	StmtWhile
	StmtDo
	StmtFor
	StmtOther
)

// Stmt is one statement node. Cond is set for if, switch and loop
// statements; Exprs holds expression statements, return values and for-loop
// updates; Body holds nested statements in source order.
type Stmt struct {
	ID    StmtID
	Kind  StmtKind
	Loc   Location
	Cond  ExprID
	Exprs []ExprID
	Decls []DeclID
	Body  []StmtID
}

// NewDecl returns a declaration with every handle field set to its sentinel.
func NewDecl(kind DeclKind, name string, typ *Type, loc Location) Decl {
	return Decl{Kind: kind, Name: name, Type: typ, Loc: loc, Body: NoStmt, Init: NoExpr, Parent: NoDecl}
}

// NewExpr returns an expression with no referenced declaration.
func NewExpr(kind ExprKind, typ *Type, loc Location, subs ...ExprID) Expr {
	return Expr{Kind: kind, Type: typ, Loc: loc, Subs: subs, Decl: NoDecl}
}

// NewStmt returns a statement without a condition.
func NewStmt(kind StmtKind, loc Location) Stmt {
	return Stmt{Kind: kind, Loc: loc, Cond: NoExpr}
}
