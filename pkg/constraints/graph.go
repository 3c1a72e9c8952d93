package constraints

import (
	"fmt"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
)

// Geq constrains Lhs to be no safer than Rhs: after solving,
// class(Lhs) <= class(Rhs). Geq(a, WildAtom) forces a to Wild.
type Geq struct {
	Lhs    AtomID       `json:"lhs" msgpack:"lhs"`
	Rhs    AtomID       `json:"rhs" msgpack:"rhs"`
	Reason string       `json:"reason,omitempty" msgpack:"reason,omitempty"`
	Loc    ast.Location `json:"loc" msgpack:"loc"`
}

func (e Geq) String() string {
	return fmt.Sprintf("%s <= %s", e.Lhs, e.Rhs)
}

// Implies adds Conclusion once Premise is active, that is once the
// premise's left side has been lowered to the class of its right side.
type Implies struct {
	Premise    Geq `json:"premise" msgpack:"premise"`
	Conclusion Geq `json:"conclusion" msgpack:"conclusion"`
}

func (i Implies) String() string {
	return fmt.Sprintf("(%s) => (%s)", i.Premise, i.Conclusion)
}

type atomInfo struct {
	name string
	loc  ast.Location
}

type graphState int

const (
	stateBuilding graphState = iota
	stateSolved
	stateMerged
)

// Graph owns every unknown atom and constraint edge of an analysis.
// Generation mutates it; Solve freezes it.
type Graph struct {
	atoms   []atomInfo
	geqs    []Geq
	implies []Implies
	state   graphState

	values []Class
	fired  []Geq
	seq    int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// FreshUnknown allocates a new solver variable.
func (g *Graph) FreshUnknown(name string, loc ast.Location) AtomID {
	g.mustBuild("FreshUnknown")
	id := firstUnknown + AtomID(len(g.atoms))
	g.atoms = append(g.atoms, atomInfo{name: name, loc: loc})
	return id
}

// AddGeq records lhs <= rhs. Edges with a constant left side carry no
// information for the solver and are dropped, as are self edges.
func (g *Graph) AddGeq(lhs, rhs AtomID, reason string, loc ast.Location) {
	g.mustBuild("AddGeq")
	g.checkAtom(lhs)
	g.checkAtom(rhs)
	if lhs.IsConst() || lhs == rhs {
		return
	}
	g.geqs = append(g.geqs, Geq{Lhs: lhs, Rhs: rhs, Reason: reason, Loc: loc})
}

// AddImplies records a conditional edge.
func (g *Graph) AddImplies(premise, conclusion Geq) {
	g.mustBuild("AddImplies")
	g.checkAtom(premise.Lhs)
	g.checkAtom(premise.Rhs)
	g.checkAtom(conclusion.Lhs)
	g.checkAtom(conclusion.Rhs)
	if premise.Lhs.IsConst() || conclusion.Lhs.IsConst() {
		return
	}
	g.implies = append(g.implies, Implies{Premise: premise, Conclusion: conclusion})
}

// NumUnknowns returns the number of solver variables.
func (g *Graph) NumUnknowns() int { return len(g.atoms) }

// NumConstraints returns the number of unconditional and conditional edges.
func (g *Graph) NumConstraints() int { return len(g.geqs) + len(g.implies) }

// Unknowns returns every unknown atom in allocation order.
func (g *Graph) Unknowns() []AtomID {
	out := make([]AtomID, len(g.atoms))
	for i := range g.atoms {
		out[i] = firstUnknown + AtomID(i)
	}
	return out
}

// Edges returns the unconditional edges. The slice must not be modified.
func (g *Graph) Edges() []Geq { return g.geqs }

// Implications returns the conditional edges.
func (g *Graph) Implications() []Implies { return g.implies }

// Fired returns the conclusions materialized by the last solve.
func (g *Graph) Fired() []Geq {
	g.mustSolved("Fired")
	return g.fired
}

// AtomName returns the diagnostic name of an atom.
func (g *Graph) AtomName(a AtomID) string {
	if a.IsConst() {
		return a.String()
	}
	g.checkAtom(a)
	return g.atoms[a-firstUnknown].name
}

// AtomLoc returns the source location recorded for an atom.
func (g *Graph) AtomLoc(a AtomID) ast.Location {
	if a.IsConst() {
		return ast.Location{}
	}
	g.checkAtom(a)
	return g.atoms[a-firstUnknown].loc
}

// Solved reports whether Solve has run.
func (g *Graph) Solved() bool { return g.state == stateSolved }

// Assignment returns the solved class of a. Querying before Solve or with
// an atom the graph does not own panics.
func (g *Graph) Assignment(a AtomID) Class {
	if a.IsConst() {
		return Class(a)
	}
	g.mustSolved("Assignment")
	g.checkAtom(a)
	return g.values[a-firstUnknown]
}

func (g *Graph) nextSeq() int {
	g.seq++
	return g.seq
}

// Renumbering maps atoms and variable sequence numbers of a merged graph
// into the receiving graph.
type Renumbering struct {
	atomOffset AtomID
	seqOffset  int
}

// Atom translates an atom of the merged graph.
func (r Renumbering) Atom(a AtomID) AtomID {
	if a.IsConst() {
		return a
	}
	return a + r.atomOffset
}

func (r Renumbering) edge(e Geq) Geq {
	e.Lhs = r.Atom(e.Lhs)
	e.Rhs = r.Atom(e.Rhs)
	return e
}

// Merge absorbs other into g. Every variable built against other must be
// passed through Rebase with the returned renumbering before further use.
// other is unusable afterwards.
func (g *Graph) Merge(other *Graph) Renumbering {
	g.mustBuild("Merge")
	other.mustBuild("Merge")
	r := Renumbering{atomOffset: AtomID(len(g.atoms)), seqOffset: g.seq}
	g.atoms = append(g.atoms, other.atoms...)
	for _, e := range other.geqs {
		g.geqs = append(g.geqs, r.edge(e))
	}
	for _, imp := range other.implies {
		g.implies = append(g.implies, Implies{Premise: r.edge(imp.Premise), Conclusion: r.edge(imp.Conclusion)})
	}
	g.seq += other.seq
	other.state = stateMerged
	return r
}

func (g *Graph) mustBuild(op string) {
	switch g.state {
	case stateSolved:
		panic(fmt.Sprintf("constraints: %s after the graph was solved", op))
	case stateMerged:
		panic(fmt.Sprintf("constraints: %s on a graph merged into another", op))
	}
}

func (g *Graph) mustSolved(op string) {
	if g.state != stateSolved {
		panic(fmt.Sprintf("constraints: %s before the graph was solved", op))
	}
}

func (g *Graph) checkAtom(a AtomID) {
	if a < 0 || a-firstUnknown >= AtomID(len(g.atoms)) {
		panic(fmt.Sprintf("constraints: atom %d is not owned by this graph", int32(a)))
	}
}
