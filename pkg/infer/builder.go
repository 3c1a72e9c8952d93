package infer

import (
	"fmt"

	"github.com/2000jedi/checkedc-clang/internal/log"
	"github.com/2000jedi/checkedc-clang/pkg/ast"
	"github.com/2000jedi/checkedc-clang/pkg/bounds"
	"github.com/2000jedi/checkedc-clang/pkg/constraints"
)

// Prototypes maps an external function name to the prototyped type seen
// for it anywhere in the program.
type Prototypes map[string]*ast.Type

// CollectPrototypes gathers the prototyped type of every non-static
// function. Definitions take precedence over declarations.
func CollectPrototypes(units []*ast.Unit) Prototypes {
	protos := make(Prototypes)
	defined := make(map[string]bool)
	for _, u := range units {
		for _, id := range u.Functions() {
			d := u.Decl(id)
			if d.Static || d.Implicit || !d.Type.HasProto {
				continue
			}
			if _, ok := protos[d.Name]; ok && (defined[d.Name] || !d.HasBody) {
				continue
			}
			protos[d.Name] = d.Type
			defined[d.Name] = defined[d.Name] || d.HasBody
		}
	}
	return protos
}

// flow is an assignment or initialization of a declared target, kept for
// the allocation-site heuristics.
type flow struct {
	target ast.DeclID
	src    ast.ExprID
	loc    ast.Location
}

// UnitResult is the constraint state generated for one translation unit.
// Its graph is merged into a Program before solving.
type UnitResult struct {
	Unit  *ast.Unit
	graph *constraints.Graph
	decls map[ast.DeclID]constraints.Var
	memo  map[ast.ExprID]*constraints.VarSet
	flows []flow
	diags []Diagnostic
}

// DeclVar returns the constraint variable of a declaration of this unit.
// Every declaration has one once generation finished.
func (r *UnitResult) DeclVar(id ast.DeclID) constraints.Var {
	v, ok := r.decls[id]
	if !ok {
		d := r.Unit.Decl(id)
		panic(fmt.Sprintf("infer: no constraint variable for %s %s at %s", d.Kind, d.Name, d.Loc))
	}
	return v
}

// ExprVars returns the memoized variables of an expression.
func (r *UnitResult) ExprVars(id ast.ExprID) []constraints.Var {
	vs, ok := r.memo[id]
	if !ok {
		return nil
	}
	return vs.Slice()
}

// Diagnostics returns the diagnostics raised while generating the unit.
func (r *UnitResult) Diagnostics() []Diagnostic { return r.diags }

type builder struct {
	*UnitResult
	u      *ast.Unit
	opts   *Options
	protos Prototypes
	log    log.Logger
	fn     *ast.Decl
}

// Generate walks every declaration and function body of u and records the
// resulting constraints in a graph private to the unit.
func Generate(u *ast.Unit, protos Prototypes, opts Options) *UnitResult {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	b := &builder{
		UnitResult: &UnitResult{
			Unit:  u,
			graph: constraints.NewGraph(),
			decls: make(map[ast.DeclID]constraints.Var),
			memo:  make(map[ast.ExprID]*constraints.VarSet),
		},
		u:      u,
		opts:   &opts,
		protos: protos,
		log:    opts.Logger.With("file", u.File),
	}
	for i := 0; i < u.NumDecls(); i++ {
		b.declVar(ast.DeclID(i))
	}
	for _, id := range u.TopLevel {
		b.topLevel(u.Decl(id))
	}
	for _, loc := range u.SyntaxErrors {
		b.diag(SeverityWarning, DiagSyntax, loc, "syntax error; the enclosing construct was skipped")
	}
	b.log.Debug("generated constraints",
		"atoms", b.graph.NumUnknowns(), "constraints", b.graph.NumConstraints())
	return b.UnitResult
}

func (b *builder) topLevel(d *ast.Decl) {
	switch d.Kind {
	case ast.DeclFunc:
		if !d.HasBody {
			return
		}
		b.fn = d
		b.u.WalkStmt(d.Body, b)
		b.fn = nil
	case ast.DeclVar:
		if d.Init != ast.NoExpr {
			b.constrainInit(d, d.Init)
		}
	}
}

// declVar returns the variable of a declaration, creating it on first use.
func (b *builder) declVar(id ast.DeclID) constraints.Var {
	if v, ok := b.decls[id]; ok {
		return v
	}
	d := b.u.Decl(id)
	if d.Kind == ast.DeclFunc {
		fv := b.funcVar(d)
		b.decls[id] = fv
		return fv
	}
	if !d.Type.IsPointer() {
		v := constraints.NewNonPointer(b.graph, d.Name, d.Type.String())
		b.decls[id] = v
		return v
	}
	pv := constraints.NewPVar(b.graph, d.Name, d.Type, d.Loc)
	pv.BoundsKey = declKey(d)
	pv.BoundsAnnotated = d.BoundsAnnotated()
	b.decls[id] = pv
	b.defaultWild(pv, d.Type, d.Loc)
	return pv
}

func (b *builder) defaultWild(pv *constraints.PVar, typ *ast.Type, loc ast.Location) {
	if typ.IsPointer() && typ.Base().Kind == ast.TypeVoid {
		constraints.ConstrainToWild(b.graph, pv, "Default void* type", loc)
	}
}

func (b *builder) funcVar(d *ast.Decl) *constraints.FVar {
	typ := d.Type
	synthesized := d.Implicit
	if d.Implicit {
		if proto, ok := b.protos[d.Name]; ok {
			typ = proto
		}
	}
	ret := constraints.NewPVar(b.graph, d.Name, typ.Return, d.Loc)
	ret.BoundsKey = returnKey(d)
	ret.BoundsAnnotated = d.BoundsAnnotated()
	b.defaultWild(ret, typ.Return, d.Loc)

	var params []*constraints.PVar
	if synthesized {
		for i, pt := range typ.Params {
			pv := constraints.NewPVar(b.graph, fmt.Sprintf("%s#%d", d.Name, i), pt, d.Loc)
			b.defaultWild(pv, pt, d.Loc)
			params = append(params, pv)
		}
	} else {
		for _, pid := range d.Params {
			params = append(params, b.declVar(pid).(*constraints.PVar))
		}
	}
	fv := constraints.NewFVar(b.graph, d.Name, ret, params)
	fv.HasBody = d.HasBody
	fv.HasProto = typ.HasProto
	fv.Variadic = typ.Variadic
	return fv
}

// VisitStmt links return values to the enclosing function's return.
func (b *builder) VisitStmt(s *ast.Stmt) {
	if s.Kind != ast.StmtReturn || b.fn == nil || len(s.Exprs) == 0 {
		return
	}
	fv := b.decls[b.fn.ID].(*constraints.FVar)
	vars := b.resolve(s.Exprs[0])
	constraints.LinkSets(b.graph, []constraints.Var{fv.Ret()}, vars.Slice(), constraints.Same,
		fmt.Sprintf("Return from %s", b.fn.Name), s.Loc)
}

// VisitDecl links a local declaration to its initializer.
func (b *builder) VisitDecl(d *ast.Decl) {
	b.declVar(d.ID)
	if d.Init != ast.NoExpr {
		b.constrainInit(d, d.Init)
	}
}

// VisitExpr resolves a full expression for its side effects.
func (b *builder) VisitExpr(id ast.ExprID) {
	b.resolve(id)
}

// constrainInit links declaration d to its initializer.
func (b *builder) constrainInit(d *ast.Decl, src ast.ExprID) {
	target := b.declVar(d.ID)
	vars := b.resolve(src)
	constraints.LinkSets(b.graph, []constraints.Var{target}, vars.Slice(), constraints.Same,
		fmt.Sprintf("Initialization of %s", d.Name), d.Loc)
	b.flows = append(b.flows, flow{target: d.ID, src: src, loc: d.Loc})
}

// constrainAssign links the target expression lhs to rhs with policy p.
func (b *builder) constrainAssign(lhs, rhs ast.ExprID, p constraints.Policy, loc ast.Location) {
	lv := b.resolve(lhs)
	rv := b.resolve(rhs)
	reason := "Assignment"
	target := b.targetDecl(lhs)
	if target != ast.NoDecl {
		reason = fmt.Sprintf("Assignment to %s", b.u.Decl(target).Name)
		b.flows = append(b.flows, flow{target: target, src: rhs, loc: loc})
	}
	constraints.LinkSets(b.graph, lv.Slice(), rv.Slice(), p, reason, loc)
}

// targetDecl returns the variable or field an l-value names directly.
func (b *builder) targetDecl(id ast.ExprID) ast.DeclID {
	e := b.u.Expr(b.u.Strip(id))
	switch e.Kind {
	case ast.ExprDeclRef, ast.ExprMember:
		return e.Decl
	default:
		return ast.NoDecl
	}
}

func (b *builder) diag(sev Severity, kind DiagKind, loc ast.Location, format string, args ...interface{}) {
	b.diags = append(b.diags, Diagnostic{Severity: sev, Kind: kind, Loc: loc, Message: fmt.Sprintf(format, args...)})
}

// declKey is the bounds identity of a declaration.
func declKey(d *ast.Decl) bounds.Key {
	return bounds.Key(fmt.Sprintf("%s:%d:%d:%s", d.Loc.File, d.Loc.Line, d.Loc.Col, d.Name))
}

func returnKey(d *ast.Decl) bounds.Key {
	return declKey(d) + "#ret"
}
