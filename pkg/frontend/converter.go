package frontend

import (
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
)

type scope struct {
	names    map[string]ast.DeclID
	typedefs map[string]*ast.Type
	enums    map[string]int64
}

func newScope() *scope {
	return &scope{
		names:    make(map[string]ast.DeclID),
		typedefs: make(map[string]*ast.Type),
		enums:    make(map[string]int64),
	}
}

type record struct {
	typ    *ast.Type
	fields map[string]ast.DeclID
}

// converter lowers one tree-sitter tree into an ast.Unit.
type converter struct {
	u       *ast.Unit
	src     []byte
	scopes  []*scope
	records map[string]*record
	fn      ast.DeclID
	marks   *checkedMarks
}

func newConverter(path string, src []byte, marks *checkedMarks) *converter {
	return &converter{
		u:       ast.NewUnit(path),
		src:     src,
		scopes:  []*scope{newScope()},
		records: make(map[string]*record),
		fn:      ast.NoDecl,
		marks:   marks,
	}
}

func (c *converter) text(n *sitter.Node) string { return n.Content(c.src) }

func (c *converter) loc(n *sitter.Node) ast.Location {
	p := n.StartPoint()
	return ast.Location{File: c.u.File, Line: int(p.Row) + 1, Col: int(p.Column) + 1}
}

func (c *converter) push() { c.scopes = append(c.scopes, newScope()) }
func (c *converter) pop()  { c.scopes = c.scopes[:len(c.scopes)-1] }

func (c *converter) top() *scope { return c.scopes[len(c.scopes)-1] }

func (c *converter) bind(name string, id ast.DeclID) {
	if name != "" {
		c.top().names[name] = id
	}
}

func (c *converter) lookup(name string) (ast.DeclID, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if id, ok := c.scopes[i].names[name]; ok {
			return id, true
		}
	}
	return ast.NoDecl, false
}

func (c *converter) typedef(name string) (*ast.Type, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if t, ok := c.scopes[i].typedefs[name]; ok {
			return t, true
		}
	}
	return nil, false
}

func (c *converter) enumConst(name string) (int64, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i].enums[name]; ok {
			return v, true
		}
	}
	return 0, false
}

// namedChildren returns the named children of n, skipping comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		ch := n.NamedChild(i)
		if ch.Type() != "comment" {
			out = append(out, ch)
		}
	}
	return out
}

// fieldChildren returns every child of n attached to field.
func fieldChildren(n *sitter.Node, field string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == field {
			out = append(out, n.Child(i))
		}
	}
	return out
}

func (c *converter) syntaxError(n *sitter.Node) {
	c.u.SyntaxErrors = append(c.u.SyntaxErrors, c.loc(n))
}

func (c *converter) translationUnit(root *sitter.Node) {
	c.topLevel(root)
	if root.HasError() {
		c.collectErrors(root)
	}
}

// collectErrors records every ERROR and MISSING node under n.
func (c *converter) collectErrors(n *sitter.Node) {
	if n.Type() == "ERROR" || n.IsMissing() {
		c.syntaxError(n)
		return
	}
	if !n.HasError() {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c.collectErrors(n.Child(i))
	}
}

// topLevel lowers the file-scope items under n. Preprocessor conditionals
// are entered so that every branch is seen.
func (c *converter) topLevel(n *sitter.Node) {
	for _, ch := range namedChildren(n) {
		switch ch.Type() {
		case "function_definition":
			c.functionDefinition(ch)
		case "declaration":
			c.declaration(ch, true)
		case "type_definition":
			c.typeDefinition(ch)
		case "struct_specifier", "union_specifier", "enum_specifier":
			c.typeSpecifier(ch)
		case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif", "preproc_elifdef",
			"linkage_specification", "declaration_list":
			c.topLevel(ch)
		}
	}
}

// storage reports the storage-class specifiers of a declaration.
func (c *converter) storage(n *sitter.Node) (static, extern bool) {
	for i := 0; i < int(n.ChildCount()); i++ {
		ch := n.Child(i)
		if ch.Type() != "storage_class_specifier" {
			continue
		}
		switch c.text(ch) {
		case "static":
			static = true
		case "extern":
			extern = true
		}
	}
	return static, extern
}

// specType returns the base type of a declaration-like node, applying a
// const qualifier.
func (c *converter) specType(n *sitter.Node) *ast.Type {
	t := c.typeSpecifier(n.ChildByFieldName("type"))
	for i := 0; i < int(n.ChildCount()); i++ {
		ch := n.Child(i)
		if ch.Type() == "type_qualifier" && c.text(ch) == "const" && !t.Const {
			cp := *t
			cp.Const = true
			t = &cp
		}
	}
	return t
}

func scalar(kind ast.TypeKind, name string) *ast.Type {
	return &ast.Type{Kind: kind, Name: name, Size: ast.Unsized}
}

func (c *converter) typeSpecifier(n *sitter.Node) *ast.Type {
	if n == nil {
		return ast.IntType
	}
	switch n.Type() {
	case "primitive_type":
		name := c.text(n)
		switch name {
		case "void":
			return ast.VoidType
		case "float", "double":
			return scalar(ast.TypeFloat, name)
		default:
			return scalar(ast.TypeInt, name)
		}
	case "sized_type_specifier":
		name := strings.Join(strings.Fields(c.text(n)), " ")
		if strings.Contains(name, "double") {
			return scalar(ast.TypeFloat, name)
		}
		return scalar(ast.TypeInt, name)
	case "type_identifier":
		name := c.text(n)
		if t, ok := c.typedef(name); ok {
			return t
		}
		return scalar(ast.TypeRecord, name)
	case "struct_specifier", "union_specifier":
		return c.recordSpecifier(n)
	case "enum_specifier":
		return c.enumSpecifier(n)
	default:
		return ast.IntType
	}
}

func (c *converter) tagName(kw string, n *sitter.Node) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return kw + " " + c.text(name)
	}
	p := n.StartPoint()
	return fmt.Sprintf("%s <anonymous@%d:%d>", kw, p.Row+1, p.Column+1)
}

func (c *converter) recordSpecifier(n *sitter.Node) *ast.Type {
	kw := "struct"
	if n.Type() == "union_specifier" {
		kw = "union"
	}
	tag := c.tagName(kw, n)
	rec, ok := c.records[tag]
	if !ok {
		rec = &record{typ: scalar(ast.TypeRecord, tag), fields: make(map[string]ast.DeclID)}
		c.records[tag] = rec
	}
	body := n.ChildByFieldName("body")
	if body == nil || len(c.u.Records[tag]) > 0 {
		return rec.typ
	}
	for _, fd := range namedChildren(body) {
		if fd.Type() != "field_declaration" {
			continue
		}
		base := c.specType(fd)
		decls := fieldChildren(fd, "declarator")
		if len(decls) == 0 {
			// Anonymous member: its fields are reachable through the parent.
			if inner, ok := c.records[base.Name]; ok && base.Kind == ast.TypeRecord {
				for name, id := range inner.fields {
					rec.fields[name] = id
				}
			}
			continue
		}
		for _, d := range decls {
			info := c.declarator(d, base)
			loc := c.loc(d)
			if info.nameNode != nil {
				loc = c.loc(info.nameNode)
			}
			decl := ast.NewDecl(ast.DeclField, info.name, info.typ, loc)
			decl.Bounds = info.bounds
			decl.Record = tag
			decl.Index = len(c.u.Records[tag])
			id := c.u.AddDecl(decl)
			c.u.AddField(tag, id)
			rec.fields[info.name] = id
		}
	}
	return rec.typ
}

func (c *converter) field(tag, name string) (ast.DeclID, bool) {
	rec, ok := c.records[tag]
	if !ok {
		return ast.NoDecl, false
	}
	id, ok := rec.fields[name]
	return id, ok
}

func (c *converter) enumSpecifier(n *sitter.Node) *ast.Type {
	t := scalar(ast.TypeEnum, c.tagName("enum", n))
	body := n.ChildByFieldName("body")
	if body == nil {
		return t
	}
	var next int64
	for _, en := range namedChildren(body) {
		if en.Type() != "enumerator" {
			continue
		}
		if v := en.ChildByFieldName("value"); v != nil {
			if val, ok := c.constValue(v); ok {
				next = val
			}
		}
		c.top().enums[c.text(en.ChildByFieldName("name"))] = next
		next++
	}
	return t
}

// constValue folds simple integer constant expressions.
func (c *converter) constValue(n *sitter.Node) (int64, bool) {
	switch n.Type() {
	case "number_literal":
		return parseInt(c.text(n))
	case "char_literal":
		return charValue(c.text(n)), true
	case "identifier":
		return c.enumConst(c.text(n))
	case "parenthesized_expression":
		if kids := namedChildren(n); len(kids) == 1 {
			return c.constValue(kids[0])
		}
	case "unary_expression":
		v, ok := c.constValue(n.ChildByFieldName("argument"))
		if !ok {
			return 0, false
		}
		switch n.ChildByFieldName("operator").Type() {
		case "-":
			return -v, true
		case "+":
			return v, true
		case "~":
			return ^v, true
		}
	case "binary_expression":
		l, lok := c.constValue(n.ChildByFieldName("left"))
		r, rok := c.constValue(n.ChildByFieldName("right"))
		if !lok || !rok {
			return 0, false
		}
		switch n.ChildByFieldName("operator").Type() {
		case "+":
			return l + r, true
		case "-":
			return l - r, true
		case "*":
			return l * r, true
		case "<<":
			return l << uint(r), true
		case "|":
			return l | r, true
		case "/":
			if r != 0 {
				return l / r, true
			}
		}
	}
	return 0, false
}

func parseInt(lit string) (int64, bool) {
	s := strings.TrimRight(lit, "uUlL")
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, true
	}
	if v, err := strconv.ParseUint(s, 0, 64); err == nil {
		return int64(v), true
	}
	return 0, false
}

func isFloatLiteral(lit string) bool {
	if strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X") {
		return strings.ContainsAny(lit, "pP.")
	}
	return strings.ContainsAny(lit, ".eE")
}

// declInfo is the result of applying a declarator to a base type.
type declInfo struct {
	name     string
	typ      *ast.Type
	nameNode *sitter.Node
	// params is the parameter list of the function being declared.
	params *sitter.Node
	bounds *ast.BoundsDecl
}

// declarator applies the declarator chain n to base, outermost first.
func (c *converter) declarator(n *sitter.Node, base *ast.Type) declInfo {
	info := declInfo{typ: base, bounds: c.annotation(n)}
	for n != nil {
		switch n.Type() {
		case "identifier", "field_identifier", "type_identifier", "primitive_type":
			info.name = c.text(n)
			info.nameNode = n
			return info
		case "init_declarator":
			n = n.ChildByFieldName("declarator")
		case "pointer_declarator", "abstract_pointer_declarator":
			info.typ = ast.PointerTo(info.typ)
			info.typ.Checked = c.marks.pointers[n.StartByte()]
			n = n.ChildByFieldName("declarator")
		case "array_declarator", "abstract_array_declarator":
			info.typ = ast.ArrayOf(info.typ, c.arraySize(n.ChildByFieldName("size")))
			info.typ.Checked = c.checkedArray(n)
			n = n.ChildByFieldName("declarator")
		case "function_declarator", "abstract_function_declarator":
			params := n.ChildByFieldName("parameters")
			info.typ = c.funcType(info.typ, params)
			n = n.ChildByFieldName("declarator")
			if isName(unparen(n)) {
				info.params = params
			}
		case "parenthesized_declarator", "abstract_parenthesized_declarator", "attributed_declarator":
			kids := namedChildren(n)
			if len(kids) == 0 {
				return info
			}
			n = kids[0]
		default:
			return info
		}
	}
	return info
}

// annotation returns the bounds annotation written after declarator n.
func (c *converter) annotation(n *sitter.Node) *ast.BoundsDecl {
	if n != nil && n.Type() == "init_declarator" {
		n = n.ChildByFieldName("declarator")
	}
	if n == nil {
		return nil
	}
	return c.marks.annotations[n.EndByte()]
}

func (c *converter) checkedArray(n *sitter.Node) ast.Checkedness {
	for i := 0; i < int(n.ChildCount()); i++ {
		if ch := n.Child(i); ch.Type() == "[" {
			return c.marks.arrays[ch.StartByte()]
		}
	}
	return ast.Unchecked
}

func unparen(n *sitter.Node) *sitter.Node {
	for n != nil && n.Type() == "parenthesized_declarator" {
		kids := namedChildren(n)
		if len(kids) == 0 {
			return nil
		}
		n = kids[0]
	}
	return n
}

func isName(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "identifier", "field_identifier":
		return true
	}
	return false
}

func (c *converter) arraySize(n *sitter.Node) int {
	if n == nil {
		return ast.Unsized
	}
	if v, ok := c.constValue(n); ok && v >= 0 {
		return int(v)
	}
	return ast.VariableSize
}

type paramSpec struct {
	name   string
	typ    *ast.Type
	loc    ast.Location
	bounds *ast.BoundsDecl
}

// paramSpecs reads a parameter list. An empty list declares no prototype;
// (void) declares a prototype with no parameters.
func (c *converter) paramSpecs(list *sitter.Node) (specs []paramSpec, variadic, proto bool) {
	if list == nil {
		return nil, false, false
	}
	for i := 0; i < int(list.ChildCount()); i++ {
		ch := list.Child(i)
		switch ch.Type() {
		case "...", "variadic_parameter":
			variadic, proto = true, true
		case "parameter_declaration", "optional_parameter_declaration":
			proto = true
			base := c.specType(ch)
			d := ch.ChildByFieldName("declarator")
			if d == nil && base.Kind == ast.TypeVoid {
				continue
			}
			info := c.declarator(d, base)
			t := info.typ
			switch t.Kind {
			case ast.TypeArray:
				t = t.Decay()
			case ast.TypeFunction:
				t = ast.PointerTo(t)
			}
			loc := c.loc(ch)
			if info.nameNode != nil {
				loc = c.loc(info.nameNode)
			}
			specs = append(specs, paramSpec{name: info.name, typ: t, loc: loc, bounds: info.bounds})
		case "identifier":
			specs = append(specs, paramSpec{name: c.text(ch), typ: ast.IntType, loc: c.loc(ch)})
		}
	}
	return specs, variadic, proto
}

func (c *converter) funcType(ret *ast.Type, params *sitter.Node) *ast.Type {
	specs, variadic, proto := c.paramSpecs(params)
	t := &ast.Type{Kind: ast.TypeFunction, Return: ret, Variadic: variadic, HasProto: proto, Size: ast.Unsized}
	for _, s := range specs {
		t.Params = append(t.Params, s.typ)
	}
	return t
}

func (c *converter) typeDefinition(n *sitter.Node) {
	base := c.specType(n)
	for _, d := range fieldChildren(n, "declarator") {
		info := c.declarator(d, base)
		if info.name != "" {
			c.top().typedefs[info.name] = info.typ
		}
	}
}

// typeDescriptor reads the type of a cast, sizeof or compound literal.
func (c *converter) typeDescriptor(n *sitter.Node) *ast.Type {
	if n == nil {
		return ast.IntType
	}
	base := c.specType(n)
	return c.declarator(n.ChildByFieldName("declarator"), base).typ
}

// declaration lowers a declaration statement and returns the variables it
// declares.
func (c *converter) declaration(n *sitter.Node, global bool) []ast.DeclID {
	static, extern := c.storage(n)
	base := c.specType(n)
	var out []ast.DeclID
	for _, d := range fieldChildren(n, "declarator") {
		info := c.declarator(d, base)
		if info.name == "" {
			continue
		}
		loc := c.loc(info.nameNode)
		if info.typ.IsFunction() {
			c.declareFunction(info, static, false, loc)
			continue
		}
		var value *sitter.Node
		if d.Type() == "init_declarator" {
			value = d.ChildByFieldName("value")
		}
		if info.typ.Kind == ast.TypeArray && info.typ.Size == ast.Unsized && value != nil {
			if size, ok := c.initLength(value); ok {
				sized := *info.typ
				sized.Size = size
				info.typ = &sized
			}
		}
		decl := ast.NewDecl(ast.DeclVar, info.name, info.typ, loc)
		decl.Bounds = info.bounds
		decl.Global = global
		decl.Static = static
		decl.Extern = extern
		decl.Parent = c.fn
		id := c.u.AddDecl(decl)
		c.bind(info.name, id)
		if global {
			c.u.TopLevel = append(c.u.TopLevel, id)
		}
		if value != nil {
			init := c.initializer(value, info.typ)
			c.u.Decl(id).Init = init
		}
		out = append(out, id)
	}
	return out
}

// declareFunction records a function declaration or definition and its
// parameters.
func (c *converter) declareFunction(info declInfo, static, hasBody bool, loc ast.Location) ast.DeclID {
	decl := ast.NewDecl(ast.DeclFunc, info.name, info.typ, loc)
	decl.Bounds = info.bounds
	decl.Global = true
	decl.Static = static
	decl.Extern = !hasBody
	decl.HasBody = hasBody
	id := c.u.AddDecl(decl)
	specs, _, _ := c.paramSpecs(info.params)
	params := make([]ast.DeclID, 0, len(specs))
	for i, s := range specs {
		p := ast.NewDecl(ast.DeclParam, s.name, s.typ, s.loc)
		p.Bounds = s.bounds
		p.Parent = id
		p.Index = i
		params = append(params, c.u.AddDecl(p))
	}
	c.u.Decl(id).Params = params
	c.bind(info.name, id)
	if c.fn == ast.NoDecl {
		c.u.TopLevel = append(c.u.TopLevel, id)
	}
	return id
}

func (c *converter) functionDefinition(n *sitter.Node) {
	static, _ := c.storage(n)
	base := c.specType(n)
	info := c.declarator(n.ChildByFieldName("declarator"), base)
	if info.name == "" || !info.typ.IsFunction() {
		c.syntaxError(n)
		return
	}
	id := c.declareFunction(info, static, true, c.loc(info.nameNode))
	c.oldStyleParams(n, id)

	c.fn = id
	c.push()
	for _, pid := range c.u.Decl(id).Params {
		p := c.u.Decl(pid)
		c.bind(p.Name, pid)
	}
	body := c.stmt(n.ChildByFieldName("body"))
	c.pop()
	c.fn = ast.NoDecl
	c.u.Decl(id).Body = body
}

// initLength returns the element count an initializer gives an array of
// unspecified size.
func (c *converter) initLength(v *sitter.Node) (int, bool) {
	switch v.Type() {
	case "string_literal", "concatenated_string":
		return len(c.stringValue(v)) + 1, true
	case "initializer_list":
		next, size := 0, 0
		for _, ch := range namedChildren(v) {
			if ch.Type() == "initializer_pair" {
				for _, d := range fieldChildren(ch, "designator") {
					if d.Type() != "subscript_designator" {
						continue
					}
					if kids := namedChildren(d); len(kids) > 0 {
						if idx, ok := c.constValue(kids[0]); ok && idx >= 0 {
							next = int(idx)
						}
					}
					break
				}
			}
			next++
			size = max(size, next)
		}
		return size, true
	}
	return 0, false
}

// oldStyleParams applies the parameter declarations of a K&R definition,
// which sit between the declarator and the body.
func (c *converter) oldStyleParams(n *sitter.Node, fn ast.DeclID) {
	byName := make(map[string]ast.DeclID)
	for _, pid := range c.u.Decl(fn).Params {
		byName[c.u.Decl(pid).Name] = pid
	}
	for _, ch := range namedChildren(n) {
		if ch.Type() != "declaration" {
			continue
		}
		base := c.specType(ch)
		for _, d := range fieldChildren(ch, "declarator") {
			info := c.declarator(d, base)
			pid, ok := byName[info.name]
			if !ok {
				c.syntaxError(d)
				continue
			}
			t := info.typ
			switch t.Kind {
			case ast.TypeArray:
				t = t.Decay()
			case ast.TypeFunction:
				t = ast.PointerTo(t)
			}
			p := c.u.Decl(pid)
			p.Type = t
			p.Bounds = info.bounds
			if info.nameNode != nil {
				p.Loc = c.loc(info.nameNode)
			}
			if ft := c.u.Decl(fn).Type; p.Index < len(ft.Params) {
				ft.Params[p.Index] = t
			}
		}
	}
}

// implicitFunc declares an undeclared callee at file scope, using a
// built-in prototype when one is known.
func (c *converter) implicitFunc(name string, loc ast.Location) ast.DeclID {
	typ, ok := builtinPrototype(name)
	if !ok {
		typ = &ast.Type{Kind: ast.TypeFunction, Return: ast.IntType, Size: ast.Unsized}
	}
	decl := ast.NewDecl(ast.DeclFunc, name, typ, loc)
	decl.Global = true
	decl.Extern = true
	decl.Implicit = true
	id := c.u.AddDecl(decl)
	c.scopes[0].names[name] = id
	return id
}
