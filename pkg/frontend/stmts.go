package frontend

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
)

func (c *converter) addStmt(s ast.Stmt) ast.StmtID { return c.u.AddStmt(s) }

// stmt lowers a statement. Statements with nothing to analyse lower to
// NoStmt.
func (c *converter) stmt(n *sitter.Node) ast.StmtID {
	if n == nil {
		return ast.NoStmt
	}
	loc := c.loc(n)
	switch n.Type() {
	case "compound_statement":
		s := ast.NewStmt(ast.StmtCompound, loc)
		c.push()
		s.Body = c.stmts(namedChildren(n))
		c.pop()
		return c.addStmt(s)

	case "declaration":
		s := ast.NewStmt(ast.StmtDecl, loc)
		s.Decls = c.declaration(n, false)
		return c.addStmt(s)

	case "type_definition":
		c.typeDefinition(n)
		return ast.NoStmt

	case "struct_specifier", "union_specifier", "enum_specifier":
		c.typeSpecifier(n)
		return ast.NoStmt

	case "expression_statement":
		kids := namedChildren(n)
		if len(kids) == 0 {
			return ast.NoStmt
		}
		s := ast.NewStmt(ast.StmtExpr, loc)
		s.Exprs = []ast.ExprID{c.expr(kids[0])}
		return c.addStmt(s)

	case "return_statement":
		s := ast.NewStmt(ast.StmtReturn, loc)
		if kids := namedChildren(n); len(kids) > 0 {
			e := c.expr(kids[0])
			if c.fn != ast.NoDecl {
				e = c.convertTo(e, c.u.Decl(c.fn).Type.Return)
			}
			s.Exprs = []ast.ExprID{e}
		}
		return c.addStmt(s)

	case "if_statement":
		s := ast.NewStmt(ast.StmtIf, loc)
		s.Cond = c.expr(n.ChildByFieldName("condition"))
		s.Body = c.stmts([]*sitter.Node{n.ChildByFieldName("consequence")})
		if alt := n.ChildByFieldName("alternative"); alt != nil {
			if alt.Type() == "else_clause" {
				kids := namedChildren(alt)
				if len(kids) == 0 {
					return c.addStmt(s)
				}
				alt = kids[len(kids)-1]
			}
			s.Body = append(s.Body, c.stmts([]*sitter.Node{alt})...)
		}
		return c.addStmt(s)

	case "switch_statement":
		s := ast.NewStmt(ast.StmtSwitch, loc)
		s.Cond = c.expr(n.ChildByFieldName("condition"))
		s.Body = c.stmts([]*sitter.Node{n.ChildByFieldName("body")})
		return c.addStmt(s)

	case "while_statement":
		s := ast.NewStmt(ast.StmtWhile, loc)
		s.Cond = c.expr(n.ChildByFieldName("condition"))
		s.Body = c.stmts([]*sitter.Node{n.ChildByFieldName("body")})
		return c.addStmt(s)

	case "do_statement":
		s := ast.NewStmt(ast.StmtDo, loc)
		s.Body = c.stmts([]*sitter.Node{n.ChildByFieldName("body")})
		s.Cond = c.expr(n.ChildByFieldName("condition"))
		return c.addStmt(s)

	case "for_statement":
		return c.forStmt(n)

	case "case_statement", "labeled_statement":
		s := ast.NewStmt(ast.StmtOther, loc)
		var body []*sitter.Node
		for i := 0; i < int(n.ChildCount()); i++ {
			switch n.FieldNameForChild(i) {
			case "value", "label":
				continue
			}
			ch := n.Child(i)
			if ch.IsNamed() && ch.Type() != "comment" {
				body = append(body, ch)
			}
		}
		s.Body = c.stmts(body)
		return c.addStmt(s)

	case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif":
		s := ast.NewStmt(ast.StmtCompound, loc)
		s.Body = c.stmts(namedChildren(n))
		return c.addStmt(s)

	default:
		return ast.NoStmt
	}
}

func (c *converter) stmts(nodes []*sitter.Node) []ast.StmtID {
	var out []ast.StmtID
	for _, n := range nodes {
		if id := c.stmt(n); id != ast.NoStmt {
			out = append(out, id)
		}
	}
	return out
}

func (c *converter) forStmt(n *sitter.Node) ast.StmtID {
	s := ast.NewStmt(ast.StmtFor, c.loc(n))
	c.push()
	defer c.pop()
	for _, init := range fieldChildren(n, "initializer") {
		if init.Type() == "declaration" {
			s.Decls = append(s.Decls, c.declaration(init, false)...)
		} else {
			s.Exprs = append(s.Exprs, c.expr(init))
		}
	}
	// Older grammars attach the declaration without a field name.
	if len(s.Decls) == 0 {
		for _, ch := range namedChildren(n) {
			if ch.Type() == "declaration" {
				s.Decls = append(s.Decls, c.declaration(ch, false)...)
			}
		}
	}
	s.Cond = c.expr(n.ChildByFieldName("condition"))
	for _, upd := range fieldChildren(n, "update") {
		s.Exprs = append(s.Exprs, c.expr(upd))
	}
	s.Body = c.stmts([]*sitter.Node{n.ChildByFieldName("body")})
	return c.addStmt(s)
}
