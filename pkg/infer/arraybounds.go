package infer

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
	"github.com/2000jedi/checkedc-clang/pkg/bounds"
	"github.com/2000jedi/checkedc-clang/pkg/constraints"
)

// inferBounds binds a length source to every array-classified pointer.
// Annotations written in the source come first. Rules then run from most
// to least specific: allocation sites and string literals, neighbouring
// parameters, names, then main's argv. Whatever is left is recorded as
// unbounded.
func (p *Program) inferBounds() {
	info := p.bounds
	for _, r := range p.units {
		for i := 0; i < r.Unit.NumDecls(); i++ {
			d := r.Unit.Decl(ast.DeclID(i))
			if d.Name == "" || d.Kind == ast.DeclFunc {
				continue
			}
			info.Register(bounds.ProgramVar{Key: declKey(d), Name: d.Name, Scope: scopeOf(r.Unit, d)})
		}
	}
	for _, r := range p.units {
		p.declaredBounds(r)
	}
	for _, r := range p.units {
		p.allocationBounds(r)
	}
	for _, r := range p.units {
		p.paramBounds(r)
		p.fieldBounds(r)
	}
	for _, r := range p.units {
		p.mainBounds(r)
	}
	for _, r := range p.units {
		p.unbounded(r)
	}
	p.opts.Logger.Debug("inferred bounds", "bindings", len(info.Keys()))
}

// needsBounds reports whether v was solved to an array kind that carries
// no declared size or annotation.
func (p *Program) needsBounds(v constraints.Var) (*constraints.PVar, bool) {
	pv, ok := v.(*constraints.PVar)
	if !ok || !pv.IsPointer() || pv.ArrPresent || pv.BoundsAnnotated {
		return nil, false
	}
	return pv, p.graph.Assignment(pv.Outer()).IsArray()
}

// scopeOf names the region a declaration's value is visible in. Locals and
// parameters of one function share a scope, as do fields of one record.
func scopeOf(u *ast.Unit, d *ast.Decl) string {
	switch {
	case d.Kind == ast.DeclField:
		return "record:" + d.Record
	case d.Parent != ast.NoDecl:
		return "func:" + funcKey(u, u.Decl(d.Parent))
	default:
		return "global"
	}
}

// declaredBounds records count and byte_count annotations whose argument
// names a constant or a variable in the annotated declaration's scope.
func (p *Program) declaredBounds(r *UnitResult) {
	u := r.Unit
	for i := 0; i < u.NumDecls(); i++ {
		d := u.Decl(ast.DeclID(i))
		if d.Bounds == nil || (d.Bounds.Kind != "count" && d.Bounds.Kind != "byte_count") {
			continue
		}
		var pv *constraints.PVar
		scope := scopeOf(u, d)
		switch v := r.decls[d.ID].(type) {
		case *constraints.PVar:
			pv = v
		case *constraints.FVar:
			pv = v.Ret()
			scope = "func:" + funcKey(u, d)
		}
		if pv == nil || !pv.IsPointer() {
			continue
		}
		key, ok := p.annotationKey(u, d.Bounds.Arg, scope)
		if !ok {
			continue
		}
		b := bounds.Elements(key)
		if d.Bounds.Kind == "byte_count" {
			b = bounds.Bytes(key)
		}
		p.bounds.Merge(pv.BoundsKey, b, bounds.Declared)
	}
}

func (p *Program) annotationKey(u *ast.Unit, arg, scope string) (bounds.Key, bool) {
	if v, err := strconv.ParseInt(arg, 0, 64); err == nil {
		return p.bounds.ConstKey(v), true
	}
	for i := 0; i < u.NumDecls(); i++ {
		q := u.Decl(ast.DeclID(i))
		if q.Name == arg && q.Kind != ast.DeclFunc && q.Type.IsIntegral() && scopeOf(u, q) == scope {
			return declKey(q), true
		}
	}
	return bounds.NoKey, false
}

func (p *Program) allocationBounds(r *UnitResult) {
	u := r.Unit
	for _, f := range r.flows {
		d := u.Decl(f.target)
		pv, ok := p.needsBounds(r.decls[f.target])
		if !ok || p.bounds.Has(pv.BoundsKey) {
			continue
		}
		src := u.Expr(u.StripAll(f.src))
		switch src.Kind {
		case ast.ExprStringLit:
			p.bounds.Merge(pv.BoundsKey, bounds.Bytes(p.bounds.ConstKey(int64(len(src.Text)+1))), bounds.StringLiteral)
		case ast.ExprCall:
			if b, ok := p.allocSiteBounds(u, d, src); ok {
				p.bounds.Merge(pv.BoundsKey, b, bounds.Allocator)
			}
		}
	}
}

// allocSiteBounds derives the bounds of target from an allocator call
// assigned to it. The count must be a constant or a variable of the
// target's own scope.
func (p *Program) allocSiteBounds(u *ast.Unit, target *ast.Decl, call *ast.Expr) (bounds.Bounds, bool) {
	callee := u.Expr(u.StripAll(call.Sub(0)))
	if callee.Kind != ast.ExprDeclRef || callee.Decl == ast.NoDecl {
		return bounds.Bounds{}, false
	}
	name := u.Decl(callee.Decl).Name
	args := call.Args()
	if !p.opts.isAllocator(name) || len(args) == 0 {
		return bounds.Bounds{}, false
	}

	var count ast.ExprID
	var sized *ast.Type
	switch {
	case name == "calloc" && len(args) == 2:
		count = args[0]
		sized, _ = sizeofOperand(u, args[1])
	case name == "realloc" && len(args) == 2:
		count, sized = splitSize(u, args[1])
	default:
		count, sized = splitSize(u, args[0])
	}

	var key bounds.Key
	if count == ast.NoExpr {
		key = p.bounds.ConstKey(1)
	} else {
		k, ok := p.countKey(u, count, scopeOf(u, target))
		if !ok {
			return bounds.Bounds{}, false
		}
		key = k
	}
	elem := target.Type.Pointee()
	if sized != nil && elem != nil && ast.Identical(sized, elem) {
		return bounds.Elements(key), true
	}
	return bounds.Bytes(key), true
}

// splitSize decomposes a size argument into a count and a sizeof operand.
// A bare sizeof has no count; a bare expression has no sizeof.
func splitSize(u *ast.Unit, id ast.ExprID) (ast.ExprID, *ast.Type) {
	if t, ok := sizeofOperand(u, id); ok {
		return ast.NoExpr, t
	}
	e := u.Expr(u.StripAll(id))
	if e.Kind == ast.ExprBinary && e.Op == "*" {
		if t, ok := sizeofOperand(u, e.Sub(1)); ok {
			return e.Sub(0), t
		}
		if t, ok := sizeofOperand(u, e.Sub(0)); ok {
			return e.Sub(1), t
		}
	}
	return id, nil
}

func sizeofOperand(u *ast.Unit, id ast.ExprID) (*ast.Type, bool) {
	e := u.Expr(u.StripAll(id))
	if e.Kind != ast.ExprSizeOf || e.Operand == nil {
		return nil, false
	}
	return e.Operand, true
}

func (p *Program) countKey(u *ast.Unit, id ast.ExprID, scope string) (bounds.Key, bool) {
	e := u.Expr(u.StripAll(id))
	switch e.Kind {
	case ast.ExprIntLit:
		return p.bounds.ConstKey(e.Value), true
	case ast.ExprDeclRef, ast.ExprMember:
		if e.Decl == ast.NoDecl {
			return bounds.NoKey, false
		}
		d := u.Decl(e.Decl)
		if d.Kind == ast.DeclFunc || scopeOf(u, d) != scope {
			return bounds.NoKey, false
		}
		return declKey(d), true
	}
	return bounds.NoKey, false
}

func (p *Program) paramBounds(r *UnitResult) {
	u := r.Unit
	for _, fid := range u.Functions() {
		fn := u.Decl(fid)
		nonLen := nonLengthParams(u, fn)
		for i, pid := range fn.Params {
			pd := u.Decl(pid)
			pv, ok := p.needsBounds(r.decls[pid])
			if !ok || p.bounds.Has(pv.BoundsKey) {
				continue
			}
			if i+1 < len(fn.Params) {
				next := u.Decl(fn.Params[i+1])
				if next.Type.IsIntegral() && !nonLen[next.ID] {
					p.bounds.Merge(pv.BoundsKey, bounds.Elements(declKey(next)), bounds.NeighbourParam)
					continue
				}
			}
			var cands []bounds.Candidate
			for _, qid := range fn.Params {
				q := u.Decl(qid)
				if qid == pid || !q.Type.IsIntegral() || nonLen[qid] {
					continue
				}
				cands = append(cands, bounds.Candidate{Key: declKey(q), Name: q.Name})
			}
			if c, h, ok := p.opts.Names.MatchName(pd.Name, cands); ok {
				p.bounds.Merge(pv.BoundsKey, bounds.Elements(c.Key), h)
			}
		}
	}
}

func (p *Program) fieldBounds(r *UnitResult) {
	u := r.Unit
	tags := make([]string, 0, len(u.Records))
	for tag := range u.Records {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		fields := u.Records[tag]
		for _, fid := range fields {
			fd := u.Decl(fid)
			pv, ok := p.needsBounds(r.decls[fid])
			if !ok || p.bounds.Has(pv.BoundsKey) {
				continue
			}
			var cands []bounds.Candidate
			for _, qid := range fields {
				q := u.Decl(qid)
				if qid == fid || !q.Type.IsIntegral() || q.Type.Kind == ast.TypeEnum {
					continue
				}
				cands = append(cands, bounds.Candidate{Key: declKey(q), Name: q.Name})
			}
			if c, h, ok := p.opts.Names.MatchName(fd.Name, cands); ok {
				p.bounds.Merge(pv.BoundsKey, bounds.Elements(c.Key), h)
			}
		}
	}
}

// mainBounds binds argv to argc in every definition of main.
func (p *Program) mainBounds(r *UnitResult) {
	u := r.Unit
	for _, fid := range u.Functions() {
		fn := u.Decl(fid)
		if fn.Name != "main" || !fn.HasBody || len(fn.Params) < 2 {
			continue
		}
		argc, argv := u.Decl(fn.Params[0]), fn.Params[1]
		pv, ok := r.decls[argv].(*constraints.PVar)
		if !ok || !pv.IsPointer() || !argc.Type.IsIntegral() {
			continue
		}
		p.bounds.Replace(pv.BoundsKey, bounds.Elements(declKey(argc)), bounds.MainArgs)
	}
}

func (p *Program) unbounded(r *UnitResult) {
	u := r.Unit
	for i := 0; i < u.NumDecls(); i++ {
		d := u.Decl(ast.DeclID(i))
		if d.Kind == ast.DeclFunc {
			continue
		}
		pv, ok := p.needsBounds(r.decls[d.ID])
		if !ok || !p.bounds.Merge(pv.BoundsKey, bounds.None(), bounds.NoHeuristic) {
			continue
		}
		p.diags = append(p.diags, Diagnostic{
			Severity: SeverityWarning,
			Kind:     DiagUnbounded,
			Loc:      d.Loc,
			Message:  fmt.Sprintf("no bounds inferred for array %s", d.Name),
		})
	}
}
