package infer

import (
	"fmt"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
	"github.com/2000jedi/checkedc-clang/pkg/bounds"
	"github.com/2000jedi/checkedc-clang/pkg/constraints"
)

// resolve returns the constraint variables of an expression, generating
// its constraints on first visit.
func (b *builder) resolve(id ast.ExprID) *constraints.VarSet {
	if id == ast.NoExpr {
		return constraints.NewVarSet()
	}
	if vs, ok := b.memo[id]; ok {
		return vs
	}
	vs := b.resolveExpr(b.u.Expr(id))
	b.memo[id] = vs
	return vs
}

func (b *builder) resolveExpr(e *ast.Expr) *constraints.VarSet {
	g := b.graph
	switch e.Kind {
	case ast.ExprDeclRef:
		if e.Decl == ast.NoDecl {
			return constraints.NewVarSet()
		}
		return constraints.NewVarSet(b.declVar(e.Decl))

	case ast.ExprMember:
		b.resolve(e.Sub(0))
		if e.Decl == ast.NoDecl {
			if e.Type.IsPointer() {
				return constraints.NewVarSet(b.wildVar(e, fmt.Sprintf("Access to unknown field %s", e.Text)))
			}
			return constraints.NewVarSet()
		}
		return constraints.NewVarSet(b.declVar(e.Decl))

	case ast.ExprIntLit, ast.ExprFloatLit, ast.ExprCharLit, ast.ExprNull, ast.ExprSizeOf:
		return constraints.NewVarSet()

	case ast.ExprStringLit:
		pv := constraints.NewPVar(g, "<string literal>", ast.PointerTo(ast.CharType), e.Loc)
		constraints.ConstrainOuterTo(g, pv, constraints.NTArr, "", e.Loc)
		return constraints.NewVarSet(pv)

	case ast.ExprImplicitCast:
		return b.resolveImplicitCast(e)

	case ast.ExprExplicitCast:
		return b.resolveExplicitCast(e)

	case ast.ExprAssign:
		b.constrainAssign(e.Sub(0), e.Sub(1), constraints.Same, e.Loc)
		return b.resolve(e.Sub(0))

	case ast.ExprCompoundAssign:
		lv := b.resolve(e.Sub(0))
		b.resolve(e.Sub(1))
		if e.Type.IsPointer() && (e.Op == "+=" || e.Op == "-=") {
			b.constrainArith(lv, e.Loc)
		}
		return lv

	case ast.ExprBinary:
		return b.resolveBinary(e)

	case ast.ExprUnary:
		b.resolve(e.Sub(0))
		return constraints.NewVarSet()

	case ast.ExprIncDec:
		vs := b.resolve(e.Sub(0))
		if e.Type.IsPointer() {
			b.constrainArith(vs, e.Loc)
		}
		return vs

	case ast.ExprAddrOf:
		return b.resolveAddrOf(e)

	case ast.ExprDeref:
		return b.deref(b.resolve(e.Sub(0)))

	case ast.ExprSubscript:
		base, idx := e.Sub(0), e.Sub(1)
		if !b.u.Expr(base).Type.IsPointer() && b.u.Expr(idx).Type.IsPointer() {
			base, idx = idx, base
		}
		vs := b.resolve(base)
		b.resolve(idx)
		b.constrainArith(vs, e.Loc)
		return b.deref(vs)

	case ast.ExprCall:
		return b.resolveCall(e)

	case ast.ExprConditional:
		b.resolve(e.Sub(0))
		out := constraints.NewVarSet()
		for i := 1; i < len(e.Subs); i++ {
			branch := e.Subs[i]
			for _, v := range b.resolve(branch).Slice() {
				out.Insert(v)
			}
		}
		return out

	case ast.ExprInitList:
		out := constraints.NewVarSet()
		for _, sub := range e.Subs {
			for _, v := range b.resolve(sub).Slice() {
				if pv, ok := v.(*constraints.PVar); ok && e.Type != nil && e.Type.Kind == ast.TypeArray {
					v = constraints.AddIndirection(g, pv, constraints.Arr, e.Loc)
				}
				out.Insert(v)
			}
		}
		return out

	case ast.ExprCompoundLiteral:
		var elems []constraints.Var
		for _, sub := range e.Subs {
			elems = append(elems, b.resolve(sub).Slice()...)
		}
		if !e.Type.IsPointer() {
			return constraints.NewVarSet()
		}
		pv := constraints.NewPVar(g, "<compound literal>", e.Type, e.Loc)
		for _, v := range elems {
			if ev, ok := v.(*constraints.PVar); ok {
				constraints.Link(g, pv, constraints.AddIndirection(g, ev, constraints.Arr, e.Loc), constraints.Same, "", e.Loc)
			}
		}
		return constraints.NewVarSet(pv)

	case ast.ExprParen:
		return b.resolve(e.Sub(0))

	case ast.ExprComma:
		b.resolve(e.Sub(0))
		return b.resolve(e.Sub(1))

	default:
		b.log.Warn("unsupported expression", "kind", e.Kind, "node", e.Text, "loc", e.Loc)
		b.diag(SeverityNote, DiagUnsupported, e.Loc, "unsupported expression %s", e.Text)
		for _, sub := range e.Subs {
			b.resolve(sub)
		}
		return constraints.NewVarSet()
	}
}

func (b *builder) resolveBinary(e *ast.Expr) *constraints.VarSet {
	l, r := b.resolve(e.Sub(0)), b.resolve(e.Sub(1))
	lt, rt := b.u.Expr(e.Sub(0)).Type, b.u.Expr(e.Sub(1)).Type
	if e.Op == "+" || e.Op == "-" {
		switch {
		case lt.IsPointer() && rt.IsPointer():
			// Pointer difference is an integer.
		case lt.IsPointer():
			b.constrainArith(l, e.Loc)
			return l
		case rt.IsPointer():
			b.constrainArith(r, e.Loc)
			return r
		}
	}
	return constraints.NewVarSet(constraints.NewNonPointer(b.graph, "", e.Type.String()))
}

func (b *builder) resolveAddrOf(e *ast.Expr) *constraints.VarSet {
	operand := b.u.Expr(b.u.Strip(e.Sub(0)))
	switch operand.Kind {
	case ast.ExprDeref:
		return b.resolve(operand.Sub(0))
	case ast.ExprSubscript:
		base, idx := operand.Sub(0), operand.Sub(1)
		if !b.u.Expr(base).Type.IsPointer() && b.u.Expr(idx).Type.IsPointer() {
			base, idx = idx, base
		}
		vs := b.resolve(base)
		b.resolve(idx)
		b.constrainArith(vs, e.Loc)
		return vs
	}
	out := constraints.NewVarSet()
	for _, v := range b.resolve(e.Sub(0)).Slice() {
		switch v := v.(type) {
		case *constraints.FVar:
			out.Insert(v)
		case *constraints.PVar:
			out.Insert(constraints.AddIndirection(b.graph, v, constraints.Ptr, e.Loc))
		}
	}
	return out
}

func (b *builder) deref(vs *constraints.VarSet) *constraints.VarSet {
	out := constraints.NewVarSet()
	for _, v := range vs.Slice() {
		switch v := v.(type) {
		case *constraints.FVar:
			// (*f)() on a function designator.
			out.Insert(v)
		case *constraints.PVar:
			if v.IsPointer() {
				out.Insert(constraints.Dereference(b.graph, v))
			}
		}
	}
	return out
}

// constrainArith caps pointers used in arithmetic at Arr.
func (b *builder) constrainArith(vs *constraints.VarSet, loc ast.Location) {
	for _, v := range vs.Slice() {
		if pv, ok := v.(*constraints.PVar); ok {
			constraints.ConstrainOuterTo(b.graph, pv, constraints.Arr, "", loc)
		}
	}
}

func (b *builder) resolveImplicitCast(e *ast.Expr) *constraints.VarSet {
	sub := e.Sub(0)
	vs := b.resolve(sub)
	if !e.Type.IsPointer() || b.isNull(sub) {
		return constraints.NewVarSet()
	}
	src := b.u.Expr(sub).Type
	if !src.IsPointer() && !src.IsFunction() {
		return constraints.NewVarSet(b.wildVar(e, fmt.Sprintf("Conversion from %s to %s", src, e.Type)))
	}
	if e.Type.IsVoidPointer() && !src.IsVoidPointer() {
		// The void* side is Wild by default; the flow ends here.
		return constraints.NewVarSet()
	}
	if castSafe(e.Type, src) {
		return vs
	}
	reason := fmt.Sprintf("Unsafe implicit conversion from %s to %s", src, e.Type)
	for _, v := range vs.Slice() {
		constraints.ConstrainToWild(b.graph, v, reason, e.Loc)
	}
	return constraints.NewVarSet(constraints.NewPVar(b.graph, "<conversion>", e.Type, e.Loc))
}

func (b *builder) resolveExplicitCast(e *ast.Expr) *constraints.VarSet {
	sub := e.Sub(0)
	vs := b.resolve(sub)
	if !e.Type.IsPointer() || b.isNull(sub) {
		return constraints.NewVarSet()
	}
	src := b.u.Expr(sub).Type
	if !src.IsPointer() && !src.IsFunction() {
		return constraints.NewVarSet(b.wildVar(e, fmt.Sprintf("Cast from %s to %s", src, e.Type)))
	}
	pv := constraints.NewPVar(b.graph, "<cast>", e.Type, e.Loc)
	if castSafe(e.Type, src) {
		constraints.LinkSets(b.graph, []constraints.Var{pv}, vs.Slice(), constraints.Same, "Cast", e.Loc)
	} else {
		constraints.ConstrainToWild(b.graph, pv, fmt.Sprintf("Unsafe cast from %s to %s", src, e.Type), e.Loc)
	}
	return constraints.NewVarSet(pv)
}

// castSafe reports whether converting src to dst preserves the pointee
// type. Conversions out of void* are trusted.
func castSafe(dst, src *ast.Type) bool {
	if src.IsVoidPointer() {
		return true
	}
	sf, df := src.FunctionType(), dst.FunctionType()
	if sf != nil || df != nil {
		return sf != nil && df != nil && ast.Identical(sf, df)
	}
	return ast.Identical(dst.Decay(), src.Decay())
}

func (b *builder) isNull(id ast.ExprID) bool {
	e := b.u.Expr(b.u.StripAll(id))
	switch e.Kind {
	case ast.ExprNull:
		return true
	case ast.ExprIntLit:
		return e.Value == 0
	default:
		return false
	}
}

// wildVar returns a fresh variable of e's type forced to Wild.
func (b *builder) wildVar(e *ast.Expr, reason string) *constraints.PVar {
	typ := e.Type
	if !typ.IsPointer() {
		typ = ast.PointerTo(ast.VoidType)
	}
	pv := constraints.NewPVar(b.graph, "<"+e.Kind.String()+">", typ, e.Loc)
	constraints.ConstrainToWild(b.graph, pv, reason, e.Loc)
	return pv
}

func (b *builder) resolveCall(e *ast.Expr) *constraints.VarSet {
	args := e.Args()
	argVars := make([]*constraints.VarSet, len(args))
	for i, a := range args {
		argVars[i] = b.resolve(a)
	}

	if e.Decl != ast.NoDecl {
		callee := b.u.Decl(e.Decl)
		if b.opts.isAllocator(callee.Name) {
			return b.resolveAllocator(e, callee.Name)
		}
		if fv, ok := b.declVar(e.Decl).(*constraints.FVar); ok {
			b.linkArgs(callee.Name, fv, argVars, e.Loc)
			return b.callResult(e, callee.Name, fv)
		}
	}

	var fvs []*constraints.FVar
	for _, v := range b.resolve(e.Sub(0)).Slice() {
		switch v := v.(type) {
		case *constraints.FVar:
			fvs = append(fvs, v)
		case *constraints.PVar:
			if v.FV() != nil {
				fvs = append(fvs, v.FV())
			}
		}
	}
	if len(fvs) == 0 {
		reason := "Call through an unresolvable function expression"
		for _, av := range argVars {
			for _, v := range av.Slice() {
				constraints.ConstrainToWild(b.graph, v, reason, e.Loc)
			}
		}
		if e.Type.IsPointer() {
			return constraints.NewVarSet(b.wildVar(e, reason))
		}
		return constraints.NewVarSet()
	}
	out := constraints.NewVarSet()
	for _, fv := range fvs {
		b.linkArgs(fv.Name(), fv, argVars, e.Loc)
		for _, v := range b.callResult(e, fv.Name(), fv).Slice() {
			out.Insert(v)
		}
	}
	return out
}

// linkArgs flows each argument into the callee's parameter.
func (b *builder) linkArgs(name string, fv *constraints.FVar, argVars []*constraints.VarSet, loc ast.Location) {
	if b.opts.skipsArgs(name) {
		return
	}
	for i, av := range argVars {
		if i < fv.NumParams() {
			var params []constraints.Var
			for _, p := range fv.Param(i) {
				params = append(params, p)
			}
			constraints.LinkSets(b.graph, params, av.Slice(), constraints.WildToSafe,
				fmt.Sprintf("Argument %d of call to %s", i, name), loc)
			continue
		}
		var reason string
		switch {
		case !fv.HasProto:
			reason = fmt.Sprintf("Argument %d of call to %s, which has no prototype", i, name)
		case fv.Variadic && b.opts.HandleVarargs:
			reason = fmt.Sprintf("Argument %d passed to variadic function %s", i, name)
		default:
			continue
		}
		for _, v := range av.Slice() {
			constraints.ConstrainToWild(b.graph, v, reason, loc)
		}
	}
}

// callResult copies the callee's return so caller-side uses never alias the
// declaration. Wildness flows from the declared return into the copy only.
func (b *builder) callResult(e *ast.Expr, name string, fv *constraints.FVar) *constraints.VarSet {
	ret := fv.Ret()
	if !ret.IsPointer() && ret.FV() == nil {
		return constraints.NewVarSet()
	}
	c := constraints.CopyLinked(b.graph, ret, constraints.SafeToWild,
		fmt.Sprintf("Return value of %s", name), e.Loc).(*constraints.PVar)
	c.BoundsKey = bounds.ContextKey(e.Loc.String(), ret.BoundsKey)
	return constraints.NewVarSet(c)
}

// resolveAllocator types an allocator result from its size argument.
func (b *builder) resolveAllocator(e *ast.Expr, name string) *constraints.VarSet {
	args := e.Args()
	var (
		elem    *ast.Type
		isArray bool
		ok      bool
	)
	switch {
	case name == "calloc" && len(args) == 2:
		elem, ok = b.sizeofType(args[1])
		if !ok {
			elem, ok = b.sizeofType(args[0])
		}
		isArray = true
	case name == "realloc" && len(args) == 2:
		elem, isArray, ok = b.allocShape(args[1])
	case len(args) >= 1:
		elem, isArray, ok = b.allocShape(args[0])
	}
	if !ok {
		b.diag(SeverityNote, DiagAllocator, e.Loc, "cannot classify the size argument of %s", name)
		return constraints.NewVarSet(b.wildVar(e, fmt.Sprintf("Unclassifiable allocation by %s", name)))
	}
	pv := constraints.NewPVar(b.graph, name, ast.PointerTo(elem), e.Loc)
	if isArray {
		constraints.ConstrainOuterTo(b.graph, pv, constraints.Arr, "", e.Loc)
	}
	if name == "realloc" && len(args) > 0 {
		// The argument converts to void*, which carries no variables;
		// the flow starts at the pointer being reallocated.
		in := b.resolve(b.u.Strip(args[0]))
		constraints.LinkSets(b.graph, []constraints.Var{pv}, in.Slice(), constraints.WildToSafe,
			"Reallocated by realloc", e.Loc)
	}
	return constraints.NewVarSet(pv)
}

// allocShape decomposes a size argument into its element type and whether
// it allocates a count of elements.
func (b *builder) allocShape(id ast.ExprID) (*ast.Type, bool, bool) {
	if t, ok := b.sizeofType(id); ok {
		return t, false, true
	}
	e := b.u.Expr(b.u.StripAll(id))
	if e.Kind != ast.ExprBinary || e.Op != "*" {
		return nil, false, false
	}
	if t, ok := b.sizeofType(e.Sub(1)); ok {
		return t, true, true
	}
	if t, ok := b.sizeofType(e.Sub(0)); ok {
		return t, true, true
	}
	return nil, false, false
}

func (b *builder) sizeofType(id ast.ExprID) (*ast.Type, bool) {
	e := b.u.Expr(b.u.StripAll(id))
	if e.Kind != ast.ExprSizeOf || e.Operand == nil {
		return nil, false
	}
	return e.Operand, true
}
