package ast

import "fmt"

// Unit is one translation unit. All nodes are owned by its arenas.
type Unit struct {
	File  string
	decls []Decl
	exprs []Expr
	stmts []Stmt

	// TopLevel lists file-scope declarations in source order.
	TopLevel []DeclID
	// Records maps a struct/union tag to its fields in declaration order.
	Records map[string][]DeclID
	// SyntaxErrors holds the locations the parser could not make sense of.
	SyntaxErrors []Location
}

// NewUnit creates an empty unit for file.
func NewUnit(file string) *Unit {
	return &Unit{File: file, Records: make(map[string][]DeclID)}
}

// AddDecl stores d and returns its handle.
func (u *Unit) AddDecl(d Decl) DeclID {
	d.ID = DeclID(len(u.decls))
	if d.Type == nil {
		d.Type = IntType
	}
	u.decls = append(u.decls, d)
	return d.ID
}

// AddExpr stores e and returns its handle.
func (u *Unit) AddExpr(e Expr) ExprID {
	e.ID = ExprID(len(u.exprs))
	u.exprs = append(u.exprs, e)
	return e.ID
}

// AddStmt stores s and returns its handle.
func (u *Unit) AddStmt(s Stmt) StmtID {
	s.ID = StmtID(len(u.stmts))
	u.stmts = append(u.stmts, s)
	return s.ID
}

// Decl returns the declaration for id. An invalid handle is a programming
// error.
func (u *Unit) Decl(id DeclID) *Decl {
	if id < 0 || int(id) >= len(u.decls) {
		panic(fmt.Sprintf("ast: invalid declaration handle %d in %s", id, u.File))
	}
	return &u.decls[id]
}

// Expr returns the expression for id.
func (u *Unit) Expr(id ExprID) *Expr {
	if id < 0 || int(id) >= len(u.exprs) {
		panic(fmt.Sprintf("ast: invalid expression handle %d in %s", id, u.File))
	}
	return &u.exprs[id]
}

// Stmt returns the statement for id.
func (u *Unit) Stmt(id StmtID) *Stmt {
	if id < 0 || int(id) >= len(u.stmts) {
		panic(fmt.Sprintf("ast: invalid statement handle %d in %s", id, u.File))
	}
	return &u.stmts[id]
}

// NumDecls returns the number of declarations in the unit.
func (u *Unit) NumDecls() int { return len(u.decls) }

// NumExprs returns the number of expressions in the unit.
func (u *Unit) NumExprs() int { return len(u.exprs) }

// Functions returns every function declaration at file scope.
func (u *Unit) Functions() []DeclID {
	var out []DeclID
	for _, id := range u.TopLevel {
		if u.decls[id].Kind == DeclFunc {
			out = append(out, id)
		}
	}
	return out
}

// AddField appends field to the record tag.
func (u *Unit) AddField(tag string, field DeclID) {
	u.Records[tag] = append(u.Records[tag], field)
}

// Strip skips parentheses and implicit conversions.
func (u *Unit) Strip(id ExprID) ExprID {
	for id != NoExpr {
		e := u.Expr(id)
		if e.Kind != ExprParen && e.Kind != ExprImplicitCast {
			return id
		}
		id = e.Sub(0)
	}
	return id
}

// StripAll skips parentheses and every cast, implicit or explicit.
func (u *Unit) StripAll(id ExprID) ExprID {
	for id != NoExpr {
		e := u.Expr(id)
		if e.Kind != ExprParen && e.Kind != ExprImplicitCast && e.Kind != ExprExplicitCast {
			return id
		}
		id = e.Sub(0)
	}
	return id
}

// InspectExpr calls fn for id and, while fn returns true, its operands in
// depth-first order.
func (u *Unit) InspectExpr(id ExprID, fn func(*Expr) bool) {
	if id == NoExpr {
		return
	}
	e := u.Expr(id)
	if !fn(e) {
		return
	}
	for _, sub := range e.Subs {
		u.InspectExpr(sub, fn)
	}
}

// StmtVisitor receives statements, declarations and top-level expressions
// during WalkStmt.
type StmtVisitor interface {
	VisitStmt(s *Stmt)
	VisitDecl(d *Decl)
	VisitExpr(id ExprID)
}

// WalkStmt visits id and its nested statements in source order. Local
// declarations are visited before their initializers are handed to
// VisitExpr by the visitor itself.
func (u *Unit) WalkStmt(id StmtID, v StmtVisitor) {
	if id == NoStmt {
		return
	}
	s := u.Stmt(id)
	v.VisitStmt(s)
	for _, d := range s.Decls {
		v.VisitDecl(u.Decl(d))
	}
	if s.Cond != NoExpr {
		v.VisitExpr(s.Cond)
	}
	for _, e := range s.Exprs {
		v.VisitExpr(e)
	}
	for _, child := range s.Body {
		u.WalkStmt(child, v)
	}
}
