package rootcause

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
	"github.com/2000jedi/checkedc-clang/pkg/constraints"
)

func at(line int) ast.Location { return ast.Location{File: "rc.c", Line: line, Col: 1} }

// chain builds a <= b <= c <= WILD, d <= WILD and an untouched e.
func chain(t *testing.T) (*constraints.Graph, []constraints.AtomID) {
	t.Helper()
	g := constraints.NewGraph()
	atoms := make([]constraints.AtomID, 5)
	for i, name := range []string{"a", "b", "c", "d", "e"} {
		atoms[i] = g.FreshUnknown(name, at(i+1))
	}
	a, b, c, d := atoms[0], atoms[1], atoms[2], atoms[3]
	g.AddGeq(a, b, "Assignment a = b", at(10))
	g.AddGeq(b, c, "Assignment b = c", at(11))
	g.AddGeq(c, constraints.WildAtom, "Cast from int", at(12))
	g.AddGeq(d, constraints.WildAtom, "Inline assembly", at(13))
	g.Solve()
	return g, atoms
}

func TestComputeRequiresSolvedGraph(t *testing.T) {
	g := constraints.NewGraph()
	g.FreshUnknown("x", at(1))
	assert.Panics(t, func() { Compute(g) })
}

func TestGroupsAndLeaders(t *testing.T) {
	g, atoms := chain(t)
	a, b, c, d, e := atoms[0], atoms[1], atoms[2], atoms[3], atoms[4]
	rc := Compute(g)

	groups := rc.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, c, groups[0].Leader)
	assert.Equal(t, []constraints.AtomID{a, b, c}, groups[0].Members)
	assert.Equal(t, d, groups[1].Leader)

	lead, ok := rc.Leader(a)
	require.True(t, ok)
	assert.Equal(t, c, lead)

	_, ok = rc.Leader(e)
	assert.False(t, ok)
	assert.False(t, rc.IsWild(e))

	assert.True(t, rc.IsDirect(c))
	assert.False(t, rc.IsDirect(a))
	assert.Equal(t, []constraints.AtomID{a, b}, rc.IndirectWild())
	require.Len(t, rc.Direct(), 2)
	assert.Equal(t, "Cast from int", rc.Causes(c)[0].Reason)
}

func TestEveryGroupMemberIsWild(t *testing.T) {
	g := constraints.NewGraph()
	x := g.FreshUnknown("x", at(1))
	y := g.FreshUnknown("y", at(2))
	z := g.FreshUnknown("z", at(3))
	// y <= x and x <= y: a Same link. z <= y only, but y stays Ptr.
	g.AddGeq(x, y, "", at(4))
	g.AddGeq(y, x, "", at(4))
	g.AddGeq(z, y, "", at(5))
	g.AddGeq(z, constraints.WildAtom, "z forced", at(6))
	g.Solve()

	rc := Compute(g)
	for _, grp := range rc.Groups() {
		for _, m := range grp.Members {
			assert.True(t, rc.IsWild(m), "member %s", m)
		}
	}
	_, ok := rc.Leader(y)
	assert.False(t, ok)
}

func TestExplain(t *testing.T) {
	g, atoms := chain(t)
	a, c, e := atoms[0], atoms[2], atoms[4]
	rc := Compute(g)

	steps := rc.Explain(a)
	require.Len(t, steps, 3)
	assert.Equal(t, "Assignment a = b", steps[0].Reason)
	assert.Equal(t, "Assignment b = c", steps[1].Reason)
	assert.Equal(t, c, steps[2].From)
	assert.Equal(t, constraints.WildAtom, steps[2].To)
	assert.Equal(t, "Cast from int", steps[2].Reason)

	direct := rc.Explain(c)
	require.Len(t, direct, 1)
	assert.Equal(t, "Cast from int", direct[0].Reason)

	assert.Nil(t, rc.Explain(e))
	assert.Nil(t, rc.Explain(constraints.WildAtom))
}

func TestExplainFollowsFiredImplications(t *testing.T) {
	g := constraints.NewGraph()
	p := g.FreshUnknown("p", at(1))
	addr := g.FreshUnknown("&p", at(2))
	g.AddImplies(
		constraints.Geq{Lhs: addr, Rhs: constraints.WildAtom},
		constraints.Geq{Lhs: p, Rhs: constraints.WildAtom, Reason: "Address of an unchecked pointer", Loc: at(2)},
	)
	g.AddGeq(addr, constraints.WildAtom, "Passed to an external function", at(3))
	g.Solve()

	rc := Compute(g)
	assert.True(t, rc.IsDirect(p))
	steps := rc.Explain(p)
	require.Len(t, steps, 1)
	assert.Equal(t, "Address of an unchecked pointer", steps[0].Reason)
}

func TestSummary(t *testing.T) {
	g, _ := chain(t)
	summary := Compute(g).Summary()

	require.Len(t, summary, 2)
	assert.Equal(t, ReasonCount{Reason: "Cast from int", Direct: 1, Affected: 3}, summary[0])
	assert.Equal(t, ReasonCount{Reason: "Inline assembly", Direct: 1, Affected: 1}, summary[1])
}

func TestDisjointSet(t *testing.T) {
	ds := newDisjointSet()
	ds.union(10, 11)
	ds.union(12, 13)
	ds.union(11, 13)
	ds.add(20)

	assert.Equal(t, ds.find(10), ds.find(12))
	assert.NotEqual(t, ds.find(10), ds.find(20))

	groups := ds.groups()
	assert.Len(t, groups, 2)
	assert.Equal(t, 4, groups[ds.find(10)].Size())
}
