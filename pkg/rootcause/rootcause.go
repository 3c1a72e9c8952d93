// Package rootcause explains a solved constraint graph: it clusters the
// atoms that were lowered to Wild around the atoms that were forced there
// directly, and reconstructs the edge chain behind each one.
package rootcause

import (
	"cmp"
	"slices"
	"sort"

	"github.com/hashicorp/go-set/v3"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
	"github.com/2000jedi/checkedc-clang/pkg/constraints"
)

// Cause is one direct forcing of an atom to Wild.
type Cause struct {
	Atom   constraints.AtomID `json:"atom" msgpack:"atom"`
	Reason string             `json:"reason" msgpack:"reason"`
	Loc    ast.Location       `json:"loc" msgpack:"loc"`
}

// Group is a wild cluster led by a directly forced member.
type Group struct {
	Leader  constraints.AtomID   `json:"leader" msgpack:"leader"`
	Members []constraints.AtomID `json:"members" msgpack:"members"`
	Causes  []Cause              `json:"causes" msgpack:"causes"`
}

// Step is one edge on the path from an atom to its root cause.
type Step struct {
	From   constraints.AtomID `json:"from" msgpack:"from"`
	To     constraints.AtomID `json:"to" msgpack:"to"`
	Reason string             `json:"reason" msgpack:"reason"`
	Loc    ast.Location       `json:"loc" msgpack:"loc"`
}

// ReasonCount summarises how many Wild atoms trace back to a reason.
type ReasonCount struct {
	Reason   string `json:"reason" msgpack:"reason"`
	Direct   int    `json:"direct" msgpack:"direct"`
	Affected int    `json:"affected" msgpack:"affected"`
}

// Analysis is the root-cause view of a solved graph.
type Analysis struct {
	g       *constraints.Graph
	direct  map[constraints.AtomID][]Cause
	leader  map[constraints.AtomID]constraints.AtomID
	groups  []Group
	wild    *set.TreeSet[constraints.AtomID]
	forward map[constraints.AtomID][]constraints.Geq
}

// Compute analyses g, which must be solved.
//
// Only edges whose right side solved to Wild are unioned, so every member
// of a group led by a direct cause is itself Wild.
func Compute(g *constraints.Graph) *Analysis {
	if !g.Solved() {
		panic("rootcause: graph is not solved")
	}
	a := &Analysis{
		g:       g,
		direct:  make(map[constraints.AtomID][]Cause),
		leader:  make(map[constraints.AtomID]constraints.AtomID),
		wild:    set.NewTreeSet[constraints.AtomID](cmp.Compare[constraints.AtomID]),
		forward: make(map[constraints.AtomID][]constraints.Geq),
	}
	ds := newDisjointSet()
	edges := append(slices.Clone(g.Edges()), g.Fired()...)
	for _, e := range edges {
		if !e.Lhs.IsUnknown() {
			continue
		}
		switch {
		case e.Rhs == constraints.WildAtom:
			a.direct[e.Lhs] = append(a.direct[e.Lhs], Cause{Atom: e.Lhs, Reason: e.Reason, Loc: e.Loc})
			ds.add(e.Lhs)
		case e.Rhs.IsUnknown() && g.Assignment(e.Rhs) == constraints.Wild:
			ds.union(e.Lhs, e.Rhs)
			a.forward[e.Lhs] = append(a.forward[e.Lhs], e)
		}
	}

	for _, members := range ds.groups() {
		var lead constraints.AtomID = -1
		var causes []Cause
		for _, m := range members.Slice() {
			if cs, ok := a.direct[m]; ok {
				if lead < 0 {
					lead = m
				}
				causes = append(causes, cs...)
			}
		}
		if lead < 0 {
			continue
		}
		for _, m := range members.Slice() {
			a.leader[m] = lead
			a.wild.Insert(m)
		}
		a.groups = append(a.groups, Group{Leader: lead, Members: members.Slice(), Causes: causes})
	}
	sort.Slice(a.groups, func(i, j int) bool { return a.groups[i].Leader < a.groups[j].Leader })
	return a
}

// IsWild reports whether atom solved to Wild.
func (a *Analysis) IsWild(atom constraints.AtomID) bool {
	return a.g.Assignment(atom) == constraints.Wild
}

// Groups returns the wild clusters ordered by leader.
func (a *Analysis) Groups() []Group { return a.groups }

// Leader returns the directly forced atom leading atom's cluster.
func (a *Analysis) Leader(atom constraints.AtomID) (constraints.AtomID, bool) {
	l, ok := a.leader[atom]
	return l, ok
}

// Direct returns every direct forcing ordered by atom.
func (a *Analysis) Direct() []Cause {
	atoms := make([]constraints.AtomID, 0, len(a.direct))
	for at := range a.direct {
		atoms = append(atoms, at)
	}
	slices.Sort(atoms)
	var out []Cause
	for _, at := range atoms {
		out = append(out, a.direct[at]...)
	}
	return out
}

// Causes returns the direct forcings of atom itself.
func (a *Analysis) Causes(atom constraints.AtomID) []Cause { return a.direct[atom] }

// IsDirect reports whether atom was forced to Wild directly.
func (a *Analysis) IsDirect(atom constraints.AtomID) bool {
	_, ok := a.direct[atom]
	return ok
}

// IndirectWild returns the members of wild clusters that were not forced
// directly.
func (a *Analysis) IndirectWild() []constraints.AtomID {
	var out []constraints.AtomID
	for _, at := range a.wild.Slice() {
		if !a.IsDirect(at) {
			out = append(out, at)
		}
	}
	return out
}

// Explain returns the shortest chain of edges leading from atom to a
// directly forced atom, ending with the direct forcing itself. It returns
// nil for atoms that are not Wild.
func (a *Analysis) Explain(atom constraints.AtomID) []Step {
	if !atom.IsUnknown() || !a.IsWild(atom) {
		return nil
	}
	type visit struct {
		prev constraints.AtomID
		edge constraints.Geq
	}
	seen := map[constraints.AtomID]visit{atom: {prev: -1}}
	queue := []constraints.AtomID{atom}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cs, ok := a.direct[cur]; ok {
			var path []Step
			for at := cur; at != atom; at = seen[at].prev {
				e := seen[at].edge
				path = append(path, Step{From: e.Lhs, To: e.Rhs, Reason: e.Reason, Loc: e.Loc})
			}
			slices.Reverse(path)
			return append(path, Step{From: cur, To: constraints.WildAtom, Reason: cs[0].Reason, Loc: cs[0].Loc})
		}
		for _, e := range a.forward[cur] {
			if _, ok := seen[e.Rhs]; ok {
				continue
			}
			seen[e.Rhs] = visit{prev: cur, edge: e}
			queue = append(queue, e.Rhs)
		}
	}
	return nil
}

// Summary counts direct forcings and affected atoms per reason, most
// affected first.
func (a *Analysis) Summary() []ReasonCount {
	counts := make(map[string]*ReasonCount)
	for _, grp := range a.groups {
		reasons := set.NewTreeSet[string](cmp.Compare[string])
		for _, c := range grp.Causes {
			rc, ok := counts[c.Reason]
			if !ok {
				rc = &ReasonCount{Reason: c.Reason}
				counts[c.Reason] = rc
			}
			rc.Direct++
			reasons.Insert(c.Reason)
		}
		for _, r := range reasons.Slice() {
			counts[r].Affected += len(grp.Members)
		}
	}
	out := make([]ReasonCount, 0, len(counts))
	for _, rc := range counts {
		out = append(out, *rc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Affected != out[j].Affected {
			return out[i].Affected > out[j].Affected
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}
