package constraints

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
)

func intPtr(depth int) *ast.Type {
	t := ast.IntType
	for i := 0; i < depth; i++ {
		t = ast.PointerTo(t)
	}
	return t
}

func TestNewPVarShape(t *testing.T) {
	g := NewGraph()

	scalar := NewPVar(g, "n", ast.IntType, loc)
	assert.False(t, scalar.IsPointer())
	assert.Panics(t, func() { scalar.Outer() })

	pp := NewPVar(g, "pp", intPtr(2), loc)
	assert.Equal(t, 2, pp.Depth())
	assert.False(t, pp.ArrPresent)

	arr := NewPVar(g, "buf", ast.ArrayOf(ast.CharType, 16), loc)
	assert.True(t, arr.ArrPresent)

	vla := NewPVar(g, "v", ast.ArrayOf(ast.CharType, ast.VariableSize), loc)
	assert.False(t, vla.ArrPresent)

	g.Solve()
	assert.Equal(t, []Class{Arr}, arr.Classes(g))
	assert.Equal(t, []Class{Ptr, Ptr}, pp.Classes(g))
}

func TestFunctionPointerGetsFVar(t *testing.T) {
	g := NewGraph()
	fn := &ast.Type{Kind: ast.TypeFunction, Return: intPtr(1), Params: []*ast.Type{intPtr(1), ast.IntType}, HasProto: true}
	v := NewPVar(g, "cb", ast.PointerTo(fn), loc)

	fv := v.FV()
	if assert.NotNil(t, fv) {
		assert.Equal(t, 2, fv.NumParams())
		assert.True(t, fv.Param(0)[0].IsPointer())
		assert.False(t, fv.Param(1)[0].IsPointer())
		assert.Nil(t, fv.Param(5))
	}
}

func TestLinkPolicies(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		wildLeft  bool
		wantLeft  Class
		wantRight Class
	}{
		{"same from left", Same, true, Wild, Wild},
		{"same from right", Same, false, Wild, Wild},
		{"safe to wild, wild right flows left", SafeToWild, false, Wild, Wild},
		{"safe to wild, wild left stays left", SafeToWild, true, Wild, Ptr},
		{"wild to safe, wild left flows right", WildToSafe, true, Wild, Wild},
		{"wild to safe, wild right stays right", WildToSafe, false, Ptr, Wild},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			l := NewPVar(g, "l", intPtr(1), loc)
			r := NewPVar(g, "r", intPtr(1), loc)
			Link(g, l, r, tt.policy, "link", loc)
			if tt.wildLeft {
				ConstrainToWild(g, l, "forced", loc)
			} else {
				ConstrainToWild(g, r, "forced", loc)
			}
			g.Solve()
			assert.Equal(t, tt.wantLeft, g.Assignment(l.Outer()))
			assert.Equal(t, tt.wantRight, g.Assignment(r.Outer()))
		})
	}
}

func TestLinkInnerLevelsAreSame(t *testing.T) {
	g := NewGraph()
	l := NewPVar(g, "l", intPtr(2), loc)
	r := NewPVar(g, "r", intPtr(2), loc)
	Link(g, l, r, SafeToWild, "assign", loc)
	// Wildness on the left's inner level reaches the right despite the
	// one-way outer policy.
	g.AddGeq(l.AtomAt(1), WildAtom, "inner", loc)
	g.Solve()

	assert.Equal(t, Ptr, g.Assignment(r.Outer()))
	assert.Equal(t, Wild, g.Assignment(r.AtomAt(1)))
}

func TestLinkDepthMismatchIsWild(t *testing.T) {
	g := NewGraph()
	l := NewPVar(g, "l", intPtr(1), loc)
	r := NewPVar(g, "r", intPtr(2), loc)
	n := NewPVar(g, "n", ast.IntType, loc)
	Link(g, l, r, Same, "", loc)
	Link(g, l, n, Same, "", loc)
	g.Solve()

	assert.Equal(t, []Class{Wild}, l.Classes(g))
	assert.Equal(t, []Class{Wild, Wild}, r.Classes(g))
	assert.Equal(t, 0, n.Depth())
}

func TestLinkIsOrderIndependent(t *testing.T) {
	solve := func(order []int) []Class {
		g := NewGraph()
		vars := []*PVar{
			NewPVar(g, "a", intPtr(1), loc),
			NewPVar(g, "b", intPtr(1), loc),
			NewPVar(g, "c", intPtr(1), loc),
		}
		links := []func(){
			func() { Link(g, vars[0], vars[1], SafeToWild, "", loc) },
			func() { Link(g, vars[1], vars[2], WildToSafe, "", loc) },
			func() { ConstrainOuterTo(g, vars[2], Arr, "", loc) },
			func() { ConstrainToWild(g, vars[1], "forced", loc) },
		}
		for _, i := range order {
			links[i]()
		}
		g.Solve()
		return []Class{g.Assignment(vars[0].Outer()), g.Assignment(vars[1].Outer()), g.Assignment(vars[2].Outer())}
	}

	want := solve([]int{0, 1, 2, 3})
	assert.Equal(t, want, solve([]int{3, 2, 1, 0}))
	assert.Equal(t, want, solve([]int{2, 0, 3, 1}))
	assert.Equal(t, []Class{Wild, Wild, Wild}, want)
}

func TestLinkFunctionsContravariantParams(t *testing.T) {
	g := NewGraph()
	fn := &ast.Type{Kind: ast.TypeFunction, Return: intPtr(1), Params: []*ast.Type{intPtr(1)}, HasProto: true}
	decl := FVarFromType(g, "decl", fn, loc)
	def := FVarFromType(g, "def", fn, loc)
	// Parameters link in the opposite direction: a Wild parameter in the
	// definition leaves the declaration's parameter checked.
	Link(g, decl, def, SafeToWild, "", loc)
	ConstrainToWild(g, def.Param(0)[0], "def param", loc)
	g.Solve()

	assert.Equal(t, Ptr, g.Assignment(decl.Param(0)[0].Outer()))

	g2 := NewGraph()
	decl2 := FVarFromType(g2, "decl", fn, loc)
	def2 := FVarFromType(g2, "def", fn, loc)
	Link(g2, decl2, def2, SafeToWild, "", loc)
	ConstrainToWild(g2, decl2.Param(0)[0], "decl param", loc)
	g2.Solve()

	assert.Equal(t, Wild, g2.Assignment(def2.Param(0)[0].Outer()))
}

func TestLinkFunctionsArityMismatch(t *testing.T) {
	g := NewGraph()
	one := &ast.Type{Kind: ast.TypeFunction, Return: intPtr(1), Params: []*ast.Type{intPtr(1)}, HasProto: true}
	two := &ast.Type{Kind: ast.TypeFunction, Return: intPtr(1), Params: []*ast.Type{intPtr(1), intPtr(1)}, HasProto: true}
	a := FVarFromType(g, "a", one, loc)
	b := FVarFromType(g, "b", two, loc)
	Link(g, a, b, Same, "", loc)
	g.Solve()

	assert.Equal(t, Wild, g.Assignment(a.Ret().Outer()))
	assert.Equal(t, Wild, g.Assignment(b.Param(1)[0].Outer()))
}

func TestAddIndirectionAndDereference(t *testing.T) {
	g := NewGraph()
	p := NewPVar(g, "p", intPtr(1), loc)
	addr := AddIndirection(g, p, Ptr, loc)
	assert.Equal(t, 2, addr.Depth())
	assert.Equal(t, p.Outer(), addr.AtomAt(1))

	back := Dereference(g, addr)
	assert.Equal(t, p.Atoms(), back.Atoms())

	// Making &p Wild makes p Wild.
	g.AddGeq(addr.Outer(), WildAtom, "address escapes", loc)
	g.Solve()
	assert.Equal(t, Wild, g.Assignment(p.Outer()))
	assert.Len(t, g.Fired(), 1)

	n := NewNonPointer(NewGraph(), "n", "int")
	assert.Panics(t, func() { Dereference(g, n) })
}

func TestCopyLinked(t *testing.T) {
	g := NewGraph()
	src := NewPVar(g, "src", intPtr(1), loc)
	c := CopyLinked(g, src, SafeToWild, "copy", loc).(*PVar)
	assert.NotEqual(t, src.Outer(), c.Outer())

	ConstrainToWild(g, src, "src wild", loc)
	g.Solve()
	assert.Equal(t, Wild, g.Assignment(c.Outer()))
}

func TestVarSetOrder(t *testing.T) {
	g := NewGraph()
	a := NewPVar(g, "a", intPtr(1), loc)
	b := NewPVar(g, "b", intPtr(1), loc)
	s := NewVarSet(b, a, b)
	assert.Equal(t, 2, s.Size())
	assert.Equal(t, []Var{a, b}, s.Slice())
}
