package rootcause

import (
	"cmp"

	"github.com/hashicorp/go-set/v3"

	"github.com/2000jedi/checkedc-clang/pkg/constraints"
)

// disjointSet is a union-find over atom ids with path compression and
// union by size. Members are added lazily.
type disjointSet struct {
	parent map[constraints.AtomID]constraints.AtomID
	size   map[constraints.AtomID]int
}

func newDisjointSet() *disjointSet {
	return &disjointSet{
		parent: make(map[constraints.AtomID]constraints.AtomID),
		size:   make(map[constraints.AtomID]int),
	}
}

func (d *disjointSet) add(a constraints.AtomID) {
	if _, ok := d.parent[a]; !ok {
		d.parent[a] = a
		d.size[a] = 1
	}
}

func (d *disjointSet) find(a constraints.AtomID) constraints.AtomID {
	d.add(a)
	root := a
	for d.parent[root] != root {
		root = d.parent[root]
	}
	for a != root {
		next := d.parent[a]
		d.parent[a] = root
		a = next
	}
	return root
}

func (d *disjointSet) union(a, b constraints.AtomID) {
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		return
	}
	if d.size[ra] < d.size[rb] {
		ra, rb = rb, ra
	}
	d.parent[rb] = ra
	d.size[ra] += d.size[rb]
}

// groups returns the members of every set keyed by representative.
func (d *disjointSet) groups() map[constraints.AtomID]*set.TreeSet[constraints.AtomID] {
	out := make(map[constraints.AtomID]*set.TreeSet[constraints.AtomID])
	for a := range d.parent {
		r := d.find(a)
		s, ok := out[r]
		if !ok {
			s = set.NewTreeSet[constraints.AtomID](cmp.Compare[constraints.AtomID])
			out[r] = s
		}
		s.Insert(a)
	}
	return out
}
