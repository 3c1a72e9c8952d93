package constraints

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
	"github.com/2000jedi/checkedc-clang/pkg/bounds"
)

// Var is a constraint variable: a *PVar or an *FVar.
type Var interface {
	// Seq orders variables within a graph; sets of variables iterate in
	// this order.
	Seq() int
	Name() string
	rebase(r Renumbering, seen map[Var]bool)
}

// VarSet is an ordered set of constraint variables.
type VarSet = set.TreeSet[Var]

func compareSeq[T Var](a, b T) int {
	return cmp.Compare(a.Seq(), b.Seq())
}

// NewVarSet returns an ordered set holding vs.
func NewVarSet(vs ...Var) *VarSet {
	return set.TreeSetFrom[Var](vs, compareSeq[Var])
}

// PVar describes a pointer-shaped value: one atom per level of
// indirection, outermost first. A PVar without atoms is the non-pointer
// marker for scalar and record values.
type PVar struct {
	seq      int
	name     string
	loc      ast.Location
	atoms    []AtomID
	baseType string
	fv       *FVar

	// ArrPresent is set when the outermost level was declared as an
	// array with a constant size.
	ArrPresent      bool
	BoundsAnnotated bool
	// OriginallyChecked is set when some level was written with a
	// checked type. Those levels hold constant atoms.
	OriginallyChecked bool
	BoundsKey         bounds.Key
}

var checkedClass = map[ast.Checkedness]Class{
	ast.CheckedPtr:     Ptr,
	ast.CheckedArray:   Arr,
	ast.CheckedNTArray: NTArr,
}

// NewPVar builds the variable for a value of type typ, allocating one
// unknown per pointer level. Declared arrays constrain their level to at
// most Arr. Levels with a checked type get the constant of their class.
// Function pointer types get a nested FVar.
func NewPVar(g *Graph, name string, typ *ast.Type, loc ast.Location) *PVar {
	v := &PVar{seq: g.nextSeq(), name: name, loc: loc}
	cur := typ
	level := 0
	for cur.IsPointer() {
		if c, ok := checkedClass[cur.Checked]; ok {
			v.atoms = append(v.atoms, Const(c))
			v.OriginallyChecked = true
			if level == 0 && cur.Kind == ast.TypeArray && cur.Size >= 0 {
				v.ArrPresent = true
			}
			cur = cur.Elem
			level++
			continue
		}
		a := g.FreshUnknown(levelName(name, level), loc)
		v.atoms = append(v.atoms, a)
		if cur.Kind == ast.TypeArray {
			if level == 0 && cur.Size >= 0 {
				v.ArrPresent = true
			}
			g.AddGeq(a, ArrAtom, "", loc)
		}
		cur = cur.Elem
		level++
	}
	if cur != nil && cur.Kind == ast.TypeFunction {
		v.fv = FVarFromType(g, name, cur, loc)
	}
	v.baseType = cur.String()
	return v
}

// NewNonPointer returns the marker variable for a value of non-pointer type.
func NewNonPointer(g *Graph, name string, base string) *PVar {
	return &PVar{seq: g.nextSeq(), name: name, baseType: base}
}

func levelName(name string, level int) string {
	if level == 0 {
		return name
	}
	return name + strings.Repeat("*", level)
}

func (v *PVar) Seq() int            { return v.seq }
func (v *PVar) Name() string        { return v.name }
func (v *PVar) Loc() ast.Location   { return v.loc }
func (v *PVar) BaseType() string    { return v.baseType }
func (v *PVar) FV() *FVar           { return v.fv }
func (v *PVar) Depth() int          { return len(v.atoms) }
func (v *PVar) IsPointer() bool     { return len(v.atoms) > 0 }
func (v *PVar) Atoms() []AtomID     { return v.atoms }
func (v *PVar) AtomAt(i int) AtomID { return v.atoms[i] }
func (v *PVar) String() string      { return fmt.Sprintf("%s%v", v.name, v.atoms) }

// SetBoundsKey attaches the key the bounds engine stores this array under.
func (v *PVar) SetBoundsKey(k bounds.Key) { v.BoundsKey = k }

// Outer returns the outermost atom. It panics on the non-pointer marker.
func (v *PVar) Outer() AtomID {
	if len(v.atoms) == 0 {
		panic(fmt.Sprintf("constraints: %s has no pointer level", v.name))
	}
	return v.atoms[0]
}

// Classes returns the solved class of every level.
func (v *PVar) Classes(g *Graph) []Class {
	out := make([]Class, len(v.atoms))
	for i, a := range v.atoms {
		out[i] = g.Assignment(a)
	}
	return out
}

// Changed reports whether solving promoted any level of a legacy pointer
// to a checked class.
func (v *PVar) Changed(g *Graph) bool {
	if v.OriginallyChecked {
		return false
	}
	for _, a := range v.atoms {
		if g.Assignment(a).Checked() {
			return true
		}
	}
	return false
}

func (v *PVar) rebase(r Renumbering, seen map[Var]bool) {
	if seen[v] {
		return
	}
	seen[v] = true
	v.seq += r.seqOffset
	for i, a := range v.atoms {
		v.atoms[i] = r.Atom(a)
	}
	if v.fv != nil {
		v.fv.rebase(r, seen)
	}
}

// FVar describes a function: its return variable and one set of variables
// per parameter position. A position holds several variables when more
// than one declaration contributed to it.
type FVar struct {
	seq    int
	name   string
	ret    *PVar
	params []*set.TreeSet[*PVar]

	HasBody  bool
	HasProto bool
	Variadic bool
}

// NewFVar assembles a function variable from existing parts.
func NewFVar(g *Graph, name string, ret *PVar, params []*PVar) *FVar {
	f := &FVar{seq: g.nextSeq(), name: name, ret: ret, HasProto: true}
	for _, p := range params {
		f.params = append(f.params, set.TreeSetFrom[*PVar]([]*PVar{p}, compareSeq[*PVar]))
	}
	return f
}

// FVarFromType builds a function variable for the function type typ.
func FVarFromType(g *Graph, name string, typ *ast.Type, loc ast.Location) *FVar {
	ret := NewPVar(g, name+"#ret", typ.Return, loc)
	params := make([]*PVar, len(typ.Params))
	for i, p := range typ.Params {
		params[i] = NewPVar(g, fmt.Sprintf("%s#%d", name, i), p, loc)
	}
	f := NewFVar(g, name, ret, params)
	f.HasProto = typ.HasProto
	f.Variadic = typ.Variadic
	return f
}

func (f *FVar) Seq() int     { return f.seq }
func (f *FVar) Name() string { return f.name }
func (f *FVar) Ret() *PVar   { return f.ret }
func (f *FVar) NumParams() int {
	return len(f.params)
}

// Param returns the variables at parameter position i.
func (f *FVar) Param(i int) []*PVar {
	if i < 0 || i >= len(f.params) {
		return nil
	}
	return f.params[i].Slice()
}

// AddParam adds v to parameter position i, growing the list as needed.
func (f *FVar) AddParam(i int, v *PVar) {
	for len(f.params) <= i {
		f.params = append(f.params, set.NewTreeSet[*PVar](compareSeq[*PVar]))
	}
	f.params[i].Insert(v)
}

func (f *FVar) String() string {
	return fmt.Sprintf("%s(%d params)", f.name, len(f.params))
}

func (f *FVar) rebase(r Renumbering, seen map[Var]bool) {
	if seen[f] {
		return
	}
	seen[f] = true
	f.seq += r.seqOffset
	f.ret.rebase(r, seen)
	for _, ps := range f.params {
		for _, p := range ps.Slice() {
			p.rebase(r, seen)
		}
	}
}

// Rebaser translates variables built against a merged graph. Variables
// reachable from several roots are translated once.
type Rebaser struct {
	r    Renumbering
	seen map[Var]bool
}

// NewRebaser returns a rebaser for r.
func NewRebaser(r Renumbering) *Rebaser {
	return &Rebaser{r: r, seen: make(map[Var]bool)}
}

// Rebase translates v unless it was already translated.
func (rb *Rebaser) Rebase(v Var) {
	if v != nil {
		v.rebase(rb.r, rb.seen)
	}
}
