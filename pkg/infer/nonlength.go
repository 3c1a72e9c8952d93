package infer

import (
	"github.com/2000jedi/checkedc-clang/pkg/ast"
)

// nonLengthParams returns the parameters of fn that cannot be array
// lengths: enum-typed parameters, and parameters the body tests for
// equality, switches on, or uses as a ternary condition.
func nonLengthParams(u *ast.Unit, fn *ast.Decl) map[ast.DeclID]bool {
	c := &condCollector{u: u, params: make(map[ast.DeclID]bool), out: make(map[ast.DeclID]bool)}
	for _, pid := range fn.Params {
		c.params[pid] = true
		if u.Decl(pid).Type.Kind == ast.TypeEnum {
			c.out[pid] = true
		}
	}
	if fn.HasBody && fn.Body != ast.NoStmt {
		u.WalkStmt(fn.Body, c)
	}
	return c.out
}

type condCollector struct {
	u      *ast.Unit
	params map[ast.DeclID]bool
	out    map[ast.DeclID]bool
}

func (c *condCollector) VisitStmt(s *ast.Stmt) {
	switch s.Kind {
	case ast.StmtIf:
		c.equality(s.Cond)
	case ast.StmtSwitch:
		c.mark(s.Cond)
	}
}

func (c *condCollector) VisitDecl(d *ast.Decl) {
	if d.Init != ast.NoExpr {
		c.VisitExpr(d.Init)
	}
}

func (c *condCollector) VisitExpr(id ast.ExprID) {
	c.u.InspectExpr(id, func(e *ast.Expr) bool {
		if e.Kind == ast.ExprConditional {
			c.mark(e.Sub(0))
			c.equality(e.Sub(0))
		}
		return true
	})
}

// equality marks the operands of == and != tests, looking through && and ||.
func (c *condCollector) equality(id ast.ExprID) {
	if id == ast.NoExpr {
		return
	}
	e := c.u.Expr(c.u.Strip(id))
	if e.Kind != ast.ExprBinary {
		return
	}
	switch e.Op {
	case "==", "!=":
		c.mark(e.Sub(0))
		c.mark(e.Sub(1))
	case "&&", "||":
		c.equality(e.Sub(0))
		c.equality(e.Sub(1))
	}
}

func (c *condCollector) mark(id ast.ExprID) {
	if id == ast.NoExpr {
		return
	}
	e := c.u.Expr(c.u.StripAll(id))
	if e.Kind == ast.ExprDeclRef && c.params[e.Decl] {
		c.out[e.Decl] = true
	}
}
