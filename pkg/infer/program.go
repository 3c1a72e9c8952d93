package infer

import (
	"fmt"
	"sort"

	"github.com/2000jedi/checkedc-clang/internal/log"
	"github.com/2000jedi/checkedc-clang/pkg/ast"
	"github.com/2000jedi/checkedc-clang/pkg/bounds"
	"github.com/2000jedi/checkedc-clang/pkg/constraints"
)

// Program is the whole-program analysis: every unit's constraints merged
// into one graph. Units are merged serially; Link must run after the last
// merge and before Solve.
type Program struct {
	opts   Options
	graph  *constraints.Graph
	units  []*UnitResult
	bounds *bounds.Info
	diags  []Diagnostic

	linked bool
}

// NewProgram returns an empty program.
func NewProgram(opts Options) *Program {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Program{
		opts:   opts,
		graph:  constraints.NewGraph(),
		bounds: bounds.NewInfo(),
	}
}

// Merge absorbs a unit's graph, renumbering its atoms and variables.
func (p *Program) Merge(r *UnitResult) {
	if p.linked {
		panic("infer: Merge after Link")
	}
	rb := constraints.NewRebaser(p.graph.Merge(r.graph))
	for i := 0; i < r.Unit.NumDecls(); i++ {
		rb.Rebase(r.decls[ast.DeclID(i)])
	}
	for i := 0; i < r.Unit.NumExprs(); i++ {
		if vs, ok := r.memo[ast.ExprID(i)]; ok {
			for _, v := range vs.Slice() {
				rb.Rebase(v)
			}
		}
	}
	r.graph = p.graph
	p.units = append(p.units, r)
	p.diags = append(p.diags, r.diags...)
}

type funcEntry struct {
	unit *UnitResult
	decl *ast.Decl
	fv   *constraints.FVar
}

type funcGroup struct {
	name  string
	defs  []funcEntry
	decls []funcEntry
}

// Link unifies declarations that name the same entity across units and
// constrains external functions the program never defines.
func (p *Program) Link() {
	if p.linked {
		return
	}
	p.linked = true
	g := p.graph

	byLoc := make(map[ast.Location][]constraints.Var)
	var locs []ast.Location
	globals := make(map[string][]constraints.Var)
	var globalNames []string
	funcs := make(map[string]*funcGroup)
	var funcKeys []string

	for _, r := range p.units {
		u := r.Unit
		for i := 0; i < u.NumDecls(); i++ {
			d := u.Decl(ast.DeclID(i))
			v := r.decls[d.ID]
			if d.Kind == ast.DeclFunc {
				key := funcKey(u, d)
				grp, ok := funcs[key]
				if !ok {
					grp = &funcGroup{name: d.Name}
					funcs[key] = grp
					funcKeys = append(funcKeys, key)
				}
				e := funcEntry{unit: r, decl: d, fv: v.(*constraints.FVar)}
				if d.HasBody {
					grp.defs = append(grp.defs, e)
				} else {
					grp.decls = append(grp.decls, e)
				}
				continue
			}
			if d.Loc.IsValid() {
				if _, ok := byLoc[d.Loc]; !ok {
					locs = append(locs, d.Loc)
				}
				byLoc[d.Loc] = append(byLoc[d.Loc], v)
			}
			if d.Kind == ast.DeclVar && d.Global && !d.Static {
				if _, ok := globals[d.Name]; !ok {
					globalNames = append(globalNames, d.Name)
				}
				globals[d.Name] = append(globals[d.Name], v)
			}
		}
	}

	for _, loc := range locs {
		vars := byLoc[loc]
		for _, v := range vars[1:] {
			constraints.Link(g, vars[0], v, constraints.Same, "Same declaration in multiple translation units", loc)
		}
	}
	for _, name := range globalNames {
		vars := globals[name]
		for _, v := range vars[1:] {
			constraints.Link(g, vars[0], v, constraints.Same, fmt.Sprintf("Global variable %s", name), ast.Location{})
		}
	}
	for _, key := range funcKeys {
		p.linkFunction(funcs[key])
	}
}

func (p *Program) linkFunction(grp *funcGroup) {
	g := p.graph
	name := grp.name
	for _, d := range grp.decls[min(1, len(grp.decls)):] {
		first := grp.decls[0]
		if conflicting(first.fv, d.fv) {
			p.conflict(name, first, d)
			continue
		}
		constraints.Link(g, first.fv, d.fv, constraints.Same, fmt.Sprintf("Redeclaration of %s", name), d.decl.Loc)
	}
	for _, def := range grp.defs[min(1, len(grp.defs)):] {
		constraints.Link(g, grp.defs[0].fv, def.fv, constraints.Same, fmt.Sprintf("Duplicate definition of %s", name), def.decl.Loc)
	}
	for _, def := range grp.defs {
		for _, d := range grp.decls {
			if conflicting(def.fv, d.fv) {
				p.conflict(name, def, d)
				continue
			}
			reason := fmt.Sprintf("Declaration of %s linked to its definition", name)
			constraints.Link(g, d.fv.Ret(), def.fv.Ret(), constraints.SafeToWild, reason, d.decl.Loc)
			n := min(d.fv.NumParams(), def.fv.NumParams())
			// A Wild definition parameter lowers the declaration's, and
			// with it every caller bound to the declaration.
			for i := 0; i < n; i++ {
				for _, dp := range d.fv.Param(i) {
					for _, fp := range def.fv.Param(i) {
						constraints.Link(g, fp, dp, constraints.WildToSafe, reason, d.decl.Loc)
					}
				}
			}
		}
	}
	if len(grp.defs) > 0 || p.opts.isSafeExtern(name) {
		return
	}
	for _, d := range grp.decls {
		constraints.ConstrainToWild(g, d.fv.Ret(), fmt.Sprintf("Return value of external function %s", name), d.decl.Loc)
		for i := 0; i < d.fv.NumParams(); i++ {
			reason := fmt.Sprintf("Parameter %d of external function %s", i, name)
			for _, pv := range d.fv.Param(i) {
				constraints.ConstrainToWild(g, pv, reason, d.decl.Loc)
			}
		}
	}
}

func conflicting(a, b *constraints.FVar) bool {
	if !a.HasProto || !b.HasProto || a.Variadic || b.Variadic {
		return false
	}
	return a.NumParams() != b.NumParams()
}

func (p *Program) conflict(name string, a, b funcEntry) {
	reason := fmt.Sprintf("Conflicting declarations of function %s", name)
	constraints.ConstrainToWild(p.graph, a.fv, reason, a.decl.Loc)
	constraints.ConstrainToWild(p.graph, b.fv, reason, b.decl.Loc)
	p.diags = append(p.diags, Diagnostic{
		Severity: SeverityWarning,
		Kind:     DiagWild,
		Loc:      b.decl.Loc,
		Message:  fmt.Sprintf("%s: declared with %d and %d parameters", reason, a.fv.NumParams(), b.fv.NumParams()),
	})
}

// funcKey names a function across units; static functions are private to
// their file.
func funcKey(u *ast.Unit, d *ast.Decl) string {
	if d.Static {
		return u.File + "::" + d.Name
	}
	return d.Name
}

// Solve links the program if needed, solves the graph and runs the array
// bounds pass over the solution.
func (p *Program) Solve() {
	p.Link()
	p.graph.Solve()
	p.inferBounds()
	p.opts.Logger.Debug("solved program", "units", len(p.units),
		"atoms", p.graph.NumUnknowns(), "constraints", p.graph.NumConstraints())
}

// Graph returns the program's constraint graph.
func (p *Program) Graph() *constraints.Graph { return p.graph }

// Units returns the merged units in merge order.
func (p *Program) Units() []*UnitResult { return p.units }

// Bounds returns the bounds store.
func (p *Program) Bounds() *bounds.Info { return p.bounds }

// Diagnostics returns every diagnostic raised so far, sorted by location.
func (p *Program) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(p.diags))
	copy(out, p.diags)
	SortDiagnostics(out)
	return out
}

// DeclInfo is one declaration together with its constraint variable.
type DeclInfo struct {
	File string
	Decl *ast.Decl
	Var  constraints.Var
}

// Decls returns every named variable, parameter, field and function.
// A declaration seen by several units is reported once.
func (p *Program) Decls() []DeclInfo {
	var out []DeclInfo
	seen := make(map[bounds.Key]bool)
	for _, r := range p.units {
		for i := 0; i < r.Unit.NumDecls(); i++ {
			d := r.Unit.Decl(ast.DeclID(i))
			if d.Name == "" || d.Implicit {
				continue
			}
			k := declKey(d)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, DeclInfo{File: r.Unit.File, Decl: d, Var: r.decls[d.ID]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Decl.Loc, out[j].Decl.Loc
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Col < b.Col
	})
	return out
}

// Lookup returns the declarations named name.
func (p *Program) Lookup(name string) []DeclInfo {
	var out []DeclInfo
	for _, di := range p.Decls() {
		if di.Decl.Name == name {
			out = append(out, di)
		}
	}
	return out
}

// Classes returns the solved class of every level of v.
func (p *Program) Classes(v *constraints.PVar) []constraints.Class {
	return v.Classes(p.graph)
}

// BoundsOf returns the bounds inferred for v.
func (p *Program) BoundsOf(v *constraints.PVar) (bounds.Bounds, bool) {
	return p.bounds.Lookup(v.BoundsKey)
}

// ParamClasses returns the outermost class of each parameter of a
// function and of its return.
func (p *Program) ParamClasses(fv *constraints.FVar) (ret []constraints.Class, params [][]constraints.Class) {
	ret = fv.Ret().Classes(p.graph)
	for i := 0; i < fv.NumParams(); i++ {
		var level []constraints.Class
		for _, pv := range fv.Param(i) {
			if pv.IsPointer() {
				level = append(level, p.graph.Assignment(pv.Outer()))
			}
		}
		params = append(params, level)
	}
	return ret, params
}
