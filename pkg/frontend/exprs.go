package frontend

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
)

func (c *converter) add(e ast.Expr) ast.ExprID { return c.u.AddExpr(e) }

func (c *converter) typeOf(id ast.ExprID) *ast.Type {
	if id == ast.NoExpr {
		return ast.IntType
	}
	if t := c.u.Expr(id).Type; t != nil {
		return t
	}
	return ast.IntType
}

// expr lowers an expression and computes its static type.
func (c *converter) expr(n *sitter.Node) ast.ExprID {
	if n == nil {
		return ast.NoExpr
	}
	loc := c.loc(n)
	switch n.Type() {
	case "identifier":
		return c.identifier(n)

	case "number_literal":
		lit := c.text(n)
		if isFloatLiteral(lit) {
			e := ast.NewExpr(ast.ExprFloatLit, ast.DoubleType, loc)
			e.Text = lit
			return c.add(e)
		}
		e := ast.NewExpr(ast.ExprIntLit, ast.IntType, loc)
		e.Value, _ = parseInt(lit)
		e.Text = lit
		return c.add(e)

	case "char_literal":
		e := ast.NewExpr(ast.ExprCharLit, ast.IntType, loc)
		e.Value = charValue(c.text(n))
		return c.add(e)

	case "string_literal", "concatenated_string":
		s := c.stringValue(n)
		e := ast.NewExpr(ast.ExprStringLit, ast.ArrayOf(ast.CharType, len(s)+1), loc)
		e.Text = s
		return c.add(e)

	case "true", "false":
		e := ast.NewExpr(ast.ExprIntLit, ast.IntType, loc)
		if n.Type() == "true" {
			e.Value = 1
		}
		return c.add(e)

	case "null":
		return c.add(ast.NewExpr(ast.ExprNull, ast.PointerTo(ast.VoidType), loc))

	case "parenthesized_expression":
		kids := namedChildren(n)
		if len(kids) == 0 {
			return ast.NoExpr
		}
		sub := c.expr(kids[len(kids)-1])
		return c.add(ast.NewExpr(ast.ExprParen, c.typeOf(sub), loc, sub))

	case "assignment_expression":
		lhs := c.expr(n.ChildByFieldName("left"))
		rhs := c.expr(n.ChildByFieldName("right"))
		lt := c.typeOf(lhs)
		op := n.ChildByFieldName("operator").Type()
		if op == "=" {
			rhs = c.convertTo(rhs, lt)
			return c.add(ast.NewExpr(ast.ExprAssign, lt, loc, lhs, rhs))
		}
		e := ast.NewExpr(ast.ExprCompoundAssign, lt, loc, lhs, rhs)
		e.Op = op
		return c.add(e)

	case "binary_expression":
		l := c.expr(n.ChildByFieldName("left"))
		r := c.expr(n.ChildByFieldName("right"))
		op := n.ChildByFieldName("operator").Type()
		e := ast.NewExpr(ast.ExprBinary, binaryType(op, c.typeOf(l), c.typeOf(r)), loc, l, r)
		e.Op = op
		return c.add(e)

	case "unary_expression":
		sub := c.expr(n.ChildByFieldName("argument"))
		op := n.ChildByFieldName("operator").Type()
		t := c.typeOf(sub)
		if op == "!" || t.IsPointer() {
			t = ast.IntType
		}
		e := ast.NewExpr(ast.ExprUnary, t, loc, sub)
		e.Op = op
		return c.add(e)

	case "pointer_expression":
		sub := c.expr(n.ChildByFieldName("argument"))
		t := c.typeOf(sub)
		if n.ChildByFieldName("operator").Type() == "&" {
			return c.add(ast.NewExpr(ast.ExprAddrOf, ast.PointerTo(t), loc, sub))
		}
		switch {
		case t.IsFunction():
		case t.IsPointer():
			t = t.Elem
		default:
			t = ast.IntType
		}
		return c.add(ast.NewExpr(ast.ExprDeref, t, loc, sub))

	case "update_expression":
		sub := c.expr(n.ChildByFieldName("argument"))
		e := ast.NewExpr(ast.ExprIncDec, c.typeOf(sub), loc, sub)
		e.Op = n.ChildByFieldName("operator").Type()
		return c.add(e)

	case "subscript_expression":
		base := c.expr(n.ChildByFieldName("argument"))
		idx := c.expr(n.ChildByFieldName("index"))
		if idx == ast.NoExpr {
			// Some grammar versions wrap the index in a subscript_argument_list.
			if kids := namedChildren(n); len(kids) > 1 {
				idx = c.expr(kids[1])
			}
		}
		t := ast.IntType
		switch bt, it := c.typeOf(base), c.typeOf(idx); {
		case bt.IsPointer():
			t = bt.Elem
		case it.IsPointer():
			t = it.Elem
		}
		return c.add(ast.NewExpr(ast.ExprSubscript, t, loc, base, idx))

	case "call_expression":
		return c.call(n)

	case "field_expression":
		return c.member(n)

	case "conditional_expression":
		cond := c.expr(n.ChildByFieldName("condition"))
		then := c.expr(n.ChildByFieldName("consequence"))
		els := c.expr(n.ChildByFieldName("alternative"))
		if then == ast.NoExpr {
			then = cond
		}
		t := c.typeOf(then)
		if et := c.typeOf(els); !t.IsPointer() && et.IsPointer() || isNullExpr(c.u, then) {
			t = et
		}
		return c.add(ast.NewExpr(ast.ExprConditional, t, loc, cond, then, els))

	case "cast_expression":
		t := c.typeDescriptor(n.ChildByFieldName("type"))
		sub := c.expr(n.ChildByFieldName("value"))
		e := ast.NewExpr(ast.ExprExplicitCast, t, loc, sub)
		e.Operand = t
		return c.add(e)

	case "sizeof_expression":
		return c.sizeof(n)

	case "comma_expression":
		l := c.expr(n.ChildByFieldName("left"))
		r := c.expr(n.ChildByFieldName("right"))
		return c.add(ast.NewExpr(ast.ExprComma, c.typeOf(r), loc, l, r))

	case "compound_literal_expression":
		t := c.typeDescriptor(n.ChildByFieldName("type"))
		list := c.initList(n.ChildByFieldName("value"), t)
		return c.add(ast.NewExpr(ast.ExprCompoundLiteral, t, loc, c.u.Expr(list).Subs...))

	case "initializer_list":
		return c.initList(n, nil)

	default:
		e := ast.NewExpr(ast.ExprUnsupported, ast.IntType, loc)
		e.Text = n.Type()
		return c.add(e)
	}
}

func (c *converter) declRef(id ast.DeclID, loc ast.Location) ast.ExprID {
	d := c.u.Decl(id)
	e := ast.NewExpr(ast.ExprDeclRef, d.Type, loc)
	e.Decl = id
	e.Text = d.Name
	return c.add(e)
}

func (c *converter) identifier(n *sitter.Node) ast.ExprID {
	name := c.text(n)
	loc := c.loc(n)
	if id, ok := c.lookup(name); ok {
		return c.declRef(id, loc)
	}
	if v, ok := c.enumConst(name); ok {
		e := ast.NewExpr(ast.ExprIntLit, ast.IntType, loc)
		e.Value = v
		e.Text = name
		return c.add(e)
	}
	if name == "NULL" {
		return c.add(ast.NewExpr(ast.ExprNull, ast.PointerTo(ast.VoidType), loc))
	}
	e := ast.NewExpr(ast.ExprDeclRef, ast.IntType, loc)
	e.Text = name
	return c.add(e)
}

func (c *converter) call(n *sitter.Node) ast.ExprID {
	loc := c.loc(n)
	fnNode := n.ChildByFieldName("function")
	if fnNode == nil {
		c.syntaxError(n)
		return c.add(ast.NewExpr(ast.ExprUnsupported, ast.IntType, loc))
	}
	if fnNode.Type() == "identifier" {
		name := c.text(fnNode)
		if _, declared := c.lookup(name); !declared {
			if _, isEnum := c.enumConst(name); !isEnum {
				c.implicitFunc(name, c.loc(fnNode))
			}
		}
	}
	callee := c.expr(fnNode)

	ft := c.typeOf(callee).FunctionType()
	ret := ast.IntType
	if ft != nil && ft.Return != nil {
		ret = ft.Return
	}
	subs := []ast.ExprID{callee}
	for i, an := range namedChildren(n.ChildByFieldName("arguments")) {
		a := c.expr(an)
		if ft != nil && ft.HasProto && i < len(ft.Params) {
			a = c.convertTo(a, ft.Params[i])
		}
		subs = append(subs, a)
	}
	e := ast.NewExpr(ast.ExprCall, ret, loc, subs...)
	if direct := c.u.Expr(c.u.Strip(callee)); direct.Kind == ast.ExprDeclRef && direct.Decl != ast.NoDecl {
		if c.u.Decl(direct.Decl).Kind == ast.DeclFunc {
			e.Decl = direct.Decl
		}
	}
	return c.add(e)
}

func (c *converter) member(n *sitter.Node) ast.ExprID {
	base := c.expr(n.ChildByFieldName("argument"))
	op := "."
	if opNode := n.ChildByFieldName("operator"); opNode != nil {
		op = opNode.Type()
	}
	bt := c.typeOf(base)
	if op == "->" {
		bt = bt.Pointee()
	}
	e := ast.NewExpr(ast.ExprMember, ast.IntType, c.loc(n), base)
	e.Op = op
	if f := n.ChildByFieldName("field"); f != nil {
		e.Text = c.text(f)
	}
	if bt != nil && bt.Kind == ast.TypeRecord {
		if fid, ok := c.field(bt.Name, e.Text); ok {
			e.Decl = fid
			e.Type = c.u.Decl(fid).Type
		}
	}
	return c.add(e)
}

func (c *converter) sizeof(n *sitter.Node) ast.ExprID {
	e := ast.NewExpr(ast.ExprSizeOf, ast.LongType, c.loc(n))
	if tn := n.ChildByFieldName("type"); tn != nil {
		e.Operand = c.typeDescriptor(tn)
		return c.add(e)
	}
	v := n.ChildByFieldName("value")
	// sizeof(T) with a typedef name parses as a parenthesized identifier.
	if v != nil && v.Type() == "parenthesized_expression" {
		if kids := namedChildren(v); len(kids) == 1 && kids[0].Type() == "identifier" {
			name := c.text(kids[0])
			if _, isVar := c.lookup(name); !isVar {
				if t, ok := c.typedef(name); ok {
					e.Operand = t
					return c.add(e)
				}
			}
		}
	}
	sub := c.expr(v)
	e.Subs = []ast.ExprID{sub}
	e.Operand = c.typeOf(sub)
	return c.add(e)
}

// initializer lowers the initializer of a declaration of type target.
func (c *converter) initializer(n *sitter.Node, target *ast.Type) ast.ExprID {
	if n.Type() == "initializer_list" {
		return c.initList(n, target)
	}
	return c.convertTo(c.expr(n), target)
}

func (c *converter) initList(n *sitter.Node, target *ast.Type) ast.ExprID {
	if n == nil {
		return c.add(ast.NewExpr(ast.ExprInitList, target, ast.Location{}))
	}
	var subs []ast.ExprID
	for i, ch := range namedChildren(n) {
		v := ch
		et := c.elementType(target, i)
		if ch.Type() == "initializer_pair" {
			v = ch.ChildByFieldName("value")
			if name := c.designatedField(ch); name != "" && target != nil && target.Kind == ast.TypeRecord {
				if fid, ok := c.field(target.Name, name); ok {
					et = c.u.Decl(fid).Type
				}
			}
		}
		if v == nil {
			continue
		}
		if et != nil {
			subs = append(subs, c.initializer(v, et))
		} else if v.Type() == "initializer_list" {
			subs = append(subs, c.initList(v, nil))
		} else {
			subs = append(subs, c.expr(v))
		}
	}
	t := target
	if t == nil {
		t = ast.IntType
	}
	return c.add(ast.NewExpr(ast.ExprInitList, t, c.loc(n), subs...))
}

func (c *converter) elementType(t *ast.Type, i int) *ast.Type {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case ast.TypeArray:
		return t.Elem
	case ast.TypeRecord:
		fields := c.u.Records[t.Name]
		if i < len(fields) {
			return c.u.Decl(fields[i]).Type
		}
	}
	return nil
}

func (c *converter) designatedField(pair *sitter.Node) string {
	for _, d := range fieldChildren(pair, "designator") {
		if d.Type() == "field_designator" {
			if kids := namedChildren(d); len(kids) > 0 {
				return c.text(kids[0])
			}
		}
	}
	return ""
}

// convertTo inserts an implicit conversion of id to a pointer target type
// when the types differ. Null constants convert to any pointer.
func (c *converter) convertTo(id ast.ExprID, target *ast.Type) ast.ExprID {
	if id == ast.NoExpr || !target.IsPointer() || isNullExpr(c.u, id) {
		return id
	}
	e := c.u.Expr(id)
	src := c.typeOf(id)
	if src.IsFunction() {
		if ast.Identical(ast.PointerTo(src), target) {
			return id
		}
	} else if ast.Identical(src, target) {
		return id
	}
	return c.add(ast.NewExpr(ast.ExprImplicitCast, target.Decay(), e.Loc, id))
}

func isNullExpr(u *ast.Unit, id ast.ExprID) bool {
	if id == ast.NoExpr {
		return false
	}
	e := u.Expr(u.StripAll(id))
	switch e.Kind {
	case ast.ExprNull:
		return true
	case ast.ExprIntLit:
		return e.Value == 0
	}
	return false
}

func binaryType(op string, l, r *ast.Type) *ast.Type {
	switch op {
	case "==", "!=", "<", ">", "<=", ">=", "&&", "||":
		return ast.IntType
	case "+":
		if l.IsPointer() {
			return l.Decay()
		}
		if r.IsPointer() {
			return r.Decay()
		}
	case "-":
		if l.IsPointer() && r.IsPointer() {
			return ast.LongType
		}
		if l.IsPointer() {
			return l.Decay()
		}
	}
	if l.Kind == ast.TypeFloat {
		return l
	}
	if r.Kind == ast.TypeFloat {
		return r
	}
	if l.Kind == ast.TypeInt {
		return l
	}
	return ast.IntType
}

func (c *converter) stringValue(n *sitter.Node) string {
	if n.Type() == "concatenated_string" {
		var b strings.Builder
		for _, ch := range namedChildren(n) {
			if ch.Type() == "string_literal" {
				b.WriteString(c.stringValue(ch))
			}
		}
		return b.String()
	}
	raw := c.text(n)
	if i := strings.IndexByte(raw, '"'); i >= 0 {
		raw = raw[i+1:]
	}
	raw = strings.TrimSuffix(raw, `"`)
	return unescape(raw)
}

// unescape decodes C escape sequences.
func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' || i+1 >= len(s) {
			b.WriteByte(ch)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case 'x':
			v, j := 0, i+1
			for ; j < len(s) && isHex(s[j]); j++ {
				v = v*16 + hexVal(s[j])
			}
			b.WriteByte(byte(v))
			i = j - 1
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v, j := 0, i
			for ; j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7'; j++ {
				v = v*8 + int(s[j]-'0')
			}
			b.WriteByte(byte(v))
			i = j - 1
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func isHex(ch byte) bool {
	return ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'f' || ch >= 'A' && ch <= 'F'
}

func hexVal(ch byte) int {
	switch {
	case ch >= '0' && ch <= '9':
		return int(ch - '0')
	case ch >= 'a' && ch <= 'f':
		return int(ch-'a') + 10
	default:
		return int(ch-'A') + 10
	}
}

func charValue(lit string) int64 {
	i := strings.IndexByte(lit, '\'')
	j := strings.LastIndexByte(lit, '\'')
	if i < 0 || j <= i {
		return 0
	}
	s := unescape(lit[i+1 : j])
	if s == "" {
		return 0
	}
	return int64(s[0])
}
