package constraints

import (
	"fmt"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
)

// Policy selects the inequalities a flow between two variables generates.
type Policy int

const (
	// Same makes both sides equal.
	Same Policy = iota
	// SafeToWild lets wildness flow from the right side to the left side
	// only: Link(lhs, rhs, SafeToWild) adds lhs <= rhs.
	SafeToWild
	// WildToSafe lets wildness flow from the left side to the right side
	// only: Link(lhs, rhs, WildToSafe) adds rhs <= lhs.
	WildToSafe
)

func (p Policy) String() string {
	switch p {
	case Same:
		return "Same"
	case SafeToWild:
		return "SafeToWild"
	case WildToSafe:
		return "WildToSafe"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Dereference drops the outermost level of v. Dereferencing a function
// variable or a non-pointer is a programming error.
func Dereference(g *Graph, v Var) *PVar {
	pv, ok := v.(*PVar)
	if !ok {
		panic(fmt.Sprintf("constraints: dereference of function variable %s", v.Name()))
	}
	if !pv.IsPointer() {
		panic(fmt.Sprintf("constraints: dereference of non-pointer %s", pv.name))
	}
	inner := make([]AtomID, len(pv.atoms)-1)
	copy(inner, pv.atoms[1:])
	return &PVar{
		seq:      g.nextSeq(),
		name:     pv.name,
		loc:      pv.loc,
		atoms:    inner,
		baseType: pv.baseType,
		fv:       pv.fv,
	}
}

// AddIndirection wraps v in a fresh outer level no safer than bound. If
// the previous outer level is an unknown, making the new level Wild makes
// it Wild too.
func AddIndirection(g *Graph, v *PVar, bound Class, loc ast.Location) *PVar {
	a := g.FreshUnknown("&"+v.name, loc)
	if bound != Ptr {
		g.AddGeq(a, Const(bound), "", loc)
	}
	if v.IsPointer() && v.atoms[0].IsUnknown() {
		g.AddImplies(
			Geq{Lhs: a, Rhs: WildAtom, Loc: loc},
			Geq{Lhs: v.atoms[0], Rhs: WildAtom, Reason: "Address of an unchecked pointer", Loc: loc},
		)
	}
	atoms := make([]AtomID, 0, len(v.atoms)+1)
	atoms = append(atoms, a)
	atoms = append(atoms, v.atoms...)
	return &PVar{
		seq:      g.nextSeq(),
		name:     v.name,
		loc:      loc,
		atoms:    atoms,
		baseType: v.baseType,
		fv:       v.fv,
	}
}

// ConstrainToWild forces every atom v owns, including those of nested
// function variables, to Wild.
func ConstrainToWild(g *Graph, v Var, reason string, loc ast.Location) {
	constrainToWild(g, v, reason, loc, make(map[Var]bool))
}

func constrainToWild(g *Graph, v Var, reason string, loc ast.Location, seen map[Var]bool) {
	if v == nil || seen[v] {
		return
	}
	seen[v] = true
	switch v := v.(type) {
	case *PVar:
		for _, a := range v.atoms {
			if a.IsUnknown() {
				g.AddGeq(a, WildAtom, reason, loc)
			}
		}
		if v.fv != nil {
			constrainToWild(g, v.fv, reason, loc, seen)
		}
	case *FVar:
		constrainToWild(g, v.ret, reason, loc, seen)
		for _, ps := range v.params {
			for _, p := range ps.Slice() {
				constrainToWild(g, p, reason, loc, seen)
			}
		}
	}
}

// ConstrainOuterTo caps the outermost level of v at class c.
func ConstrainOuterTo(g *Graph, v *PVar, c Class, reason string, loc ast.Location) {
	if v.IsPointer() && v.atoms[0].IsUnknown() {
		g.AddGeq(v.atoms[0], Const(c), reason, loc)
	}
}

// Copy returns a variable with the shape of v and fresh unknowns in place of
// v's unknowns. Constant levels are kept. The copy is not linked to v.
func Copy(g *Graph, v Var) Var {
	switch v := v.(type) {
	case *PVar:
		return copyPVar(g, v)
	case *FVar:
		return copyFVar(g, v)
	default:
		panic(fmt.Sprintf("constraints: copy of unexpected variable %T", v))
	}
}

func copyPVar(g *Graph, v *PVar) *PVar {
	c := &PVar{
		seq:               g.nextSeq(),
		name:              v.name,
		loc:               v.loc,
		baseType:          v.baseType,
		ArrPresent:        v.ArrPresent,
		BoundsAnnotated:   v.BoundsAnnotated,
		OriginallyChecked: v.OriginallyChecked,
		BoundsKey:         v.BoundsKey,
	}
	c.atoms = make([]AtomID, len(v.atoms))
	for i, a := range v.atoms {
		if a.IsConst() {
			c.atoms[i] = a
			continue
		}
		c.atoms[i] = g.FreshUnknown(g.AtomName(a), g.AtomLoc(a))
	}
	if v.fv != nil {
		c.fv = copyFVar(g, v.fv)
	}
	return c
}

func copyFVar(g *Graph, f *FVar) *FVar {
	c := &FVar{
		seq:      g.nextSeq(),
		name:     f.name,
		ret:      copyPVar(g, f.ret),
		HasBody:  f.HasBody,
		HasProto: f.HasProto,
		Variadic: f.Variadic,
	}
	for i, ps := range f.params {
		if ps.Size() == 0 {
			c.AddParam(i, NewNonPointer(g, f.name, ""))
			continue
		}
		c.AddParam(i, copyPVar(g, ps.Slice()[0]))
	}
	return c
}

// CopyLinked copies v and links the copy to v with the given policy, the
// copy on the left.
func CopyLinked(g *Graph, v Var, p Policy, reason string, loc ast.Location) Var {
	c := Copy(g, v)
	Link(g, c, v, p, reason, loc)
	return c
}

// Link relates lhs to rhs. Only the outermost level uses p; inner levels
// are always Same. Pointers of different depth are both forced Wild.
// Function variables link returns covariantly and parameters
// contravariantly.
func Link(g *Graph, lhs, rhs Var, p Policy, reason string, loc ast.Location) {
	if lhs == nil || rhs == nil || lhs == rhs {
		return
	}
	switch l := lhs.(type) {
	case *PVar:
		switch r := rhs.(type) {
		case *PVar:
			linkPVars(g, l, r, p, reason, loc)
		case *FVar:
			if l.fv != nil {
				linkFVars(g, l.fv, r, p, reason, loc)
			}
		}
	case *FVar:
		switch r := rhs.(type) {
		case *FVar:
			linkFVars(g, l, r, p, reason, loc)
		case *PVar:
			if r.fv != nil {
				linkFVars(g, l, r.fv, p, reason, loc)
			}
		}
	}
}

// LinkSets links every pair drawn from lhs and rhs.
func LinkSets(g *Graph, lhs, rhs []Var, p Policy, reason string, loc ast.Location) {
	for _, l := range lhs {
		for _, r := range rhs {
			Link(g, l, r, p, reason, loc)
		}
	}
}

func linkPVars(g *Graph, l, r *PVar, p Policy, reason string, loc ast.Location) {
	if l.fv != nil && r.fv != nil {
		linkFVars(g, l.fv, r.fv, Same, reason, loc)
	}
	if !l.IsPointer() || !r.IsPointer() {
		return
	}
	if len(l.atoms) != len(r.atoms) {
		why := reason
		if why == "" {
			why = fmt.Sprintf("Incompatible pointer depth between %s and %s", l.name, r.name)
		}
		ConstrainToWild(g, l, why, loc)
		ConstrainToWild(g, r, why, loc)
		return
	}
	for i := range l.atoms {
		policy := p
		if i > 0 {
			policy = Same
		}
		linkAtoms(g, l.atoms[i], r.atoms[i], policy, reason, loc)
	}
}

func linkAtoms(g *Graph, l, r AtomID, p Policy, reason string, loc ast.Location) {
	switch p {
	case Same:
		g.AddGeq(l, r, reason, loc)
		g.AddGeq(r, l, reason, loc)
	case SafeToWild:
		g.AddGeq(l, r, reason, loc)
	case WildToSafe:
		g.AddGeq(r, l, reason, loc)
	}
}

func linkFVars(g *Graph, l, r *FVar, p Policy, reason string, loc ast.Location) {
	if l == r {
		return
	}
	if l.HasProto && r.HasProto && len(l.params) != len(r.params) && !l.Variadic && !r.Variadic {
		why := fmt.Sprintf("Incompatible function types %s and %s", l.name, r.name)
		ConstrainToWild(g, l, why, loc)
		ConstrainToWild(g, r, why, loc)
		return
	}
	linkPVars(g, l.ret, r.ret, p, reason, loc)
	n := min(len(l.params), len(r.params))
	for i := 0; i < n; i++ {
		for _, lp := range l.params[i].Slice() {
			for _, rp := range r.params[i].Slice() {
				linkPVars(g, rp, lp, p, reason, loc)
			}
		}
	}
}
