package infer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2000jedi/checkedc-clang/internal/log"
	"github.com/2000jedi/checkedc-clang/pkg/ast"
	"github.com/2000jedi/checkedc-clang/pkg/bounds"
	"github.com/2000jedi/checkedc-clang/pkg/constraints"
	"github.com/2000jedi/checkedc-clang/pkg/frontend"
	"github.com/2000jedi/checkedc-clang/pkg/rootcause"
)

type source struct {
	path string
	code string
}

func analyze(t *testing.T, opts []Option, srcs ...source) *Program {
	t.Helper()
	var units []*ast.Unit
	for _, s := range srcs {
		u, err := frontend.Parse(context.Background(), s.path, []byte(s.code))
		require.NoError(t, err)
		units = append(units, u)
	}
	prog, err := Analyze(context.Background(), units, append([]Option{WithLogger(log.Discard())}, opts...)...)
	require.NoError(t, err)
	return prog
}

func pvar(t *testing.T, prog *Program, name string) *constraints.PVar {
	t.Helper()
	infos := prog.Lookup(name)
	require.NotEmpty(t, infos, "no declaration named %q", name)
	pv, ok := infos[0].Var.(*constraints.PVar)
	require.True(t, ok, "%q is not a pointer variable", name)
	return pv
}

func fvar(t *testing.T, prog *Program, name string) *constraints.FVar {
	t.Helper()
	infos := prog.Lookup(name)
	require.NotEmpty(t, infos, "no declaration named %q", name)
	fv, ok := infos[0].Var.(*constraints.FVar)
	require.True(t, ok, "%q is not a function", name)
	return fv
}

func heuristicOf(t *testing.T, prog *Program, pv *constraints.PVar) (string, bounds.Heuristic) {
	t.Helper()
	b, by, ok := prog.Bounds().Get(pv.BoundsKey)
	require.True(t, ok, "no bounds for %s", pv.Name())
	return prog.Bounds().Describe(b), by
}

func TestAnalyzeSafePointers(t *testing.T) {
	prog := analyze(t, nil, source{"safe.c", `
int deref(int *p) { return *p; }
void touch(void) {
	int x = 1;
	int *q = &x;
	deref(q);
}
`})

	assert.Equal(t, []constraints.Class{constraints.Ptr}, prog.Classes(pvar(t, prog, "p")))
	assert.Equal(t, []constraints.Class{constraints.Ptr}, prog.Classes(pvar(t, prog, "q")))

	ret, params := prog.ParamClasses(fvar(t, prog, "deref"))
	assert.Empty(t, ret)
	assert.Equal(t, [][]constraints.Class{{constraints.Ptr}}, params)
}

func TestAnalyzeAllocatorBounds(t *testing.T) {
	prog := analyze(t, nil, source{"alloc.c", `
void fill(int n) {
	int *p = malloc(n * sizeof(int));
	p[0] = 1;
	free(p);
}
`})

	p := pvar(t, prog, "p")
	assert.Equal(t, []constraints.Class{constraints.Arr}, prog.Classes(p))
	desc, by := heuristicOf(t, prog, p)
	assert.Equal(t, "count(n)", desc)
	assert.Equal(t, bounds.Allocator, by)
}

func TestAnalyzeFreeKeepsArgumentChecked(t *testing.T) {
	prog := analyze(t, nil, source{"free.c", `
void release(char *s) { free(s); }
`})
	assert.Equal(t, []constraints.Class{constraints.Ptr}, prog.Classes(pvar(t, prog, "s")))
}

func TestAnalyzeStringLiteral(t *testing.T) {
	prog := analyze(t, nil, source{"str.c", `
void greet(void) {
	char *msg = "hello";
	msg[1] = 'a';
}
`})

	msg := pvar(t, prog, "msg")
	assert.True(t, prog.Classes(msg)[0].IsArray())
	desc, by := heuristicOf(t, prog, msg)
	assert.Equal(t, "byte_count(6)", desc)
	assert.Equal(t, bounds.StringLiteral, by)
}

func TestAnalyzeParamHeuristics(t *testing.T) {
	prog := analyze(t, nil, source{"params.c", `
void neighbour(int *buf, int n) { buf[n - 1] = 0; }
void flagged(int *arr, int mode) {
	if (mode == 1)
		arr[0] = 0;
}
`})

	desc, by := heuristicOf(t, prog, pvar(t, prog, "buf"))
	assert.Equal(t, "count(n)", desc)
	assert.Equal(t, bounds.NeighbourParam, by)

	desc, by = heuristicOf(t, prog, pvar(t, prog, "arr"))
	assert.Equal(t, "unbounded", desc)
	assert.Equal(t, bounds.NoHeuristic, by)

	var unbounded []string
	for _, d := range prog.Diagnostics() {
		if d.Kind == DiagUnbounded {
			unbounded = append(unbounded, d.Message)
		}
	}
	assert.Equal(t, []string{"no bounds inferred for array arr"}, unbounded)
}

func TestAnalyzeFieldKeyword(t *testing.T) {
	prog := analyze(t, nil, source{"field.c", `
struct vec {
	int *data;
	int count;
};
int at(struct vec *v, int i) { return v->data[i]; }
`})

	data := pvar(t, prog, "data")
	assert.Equal(t, []constraints.Class{constraints.Arr}, prog.Classes(data))
	desc, by := heuristicOf(t, prog, data)
	assert.Equal(t, "count(count)", desc)
	assert.Equal(t, bounds.NameKeyword, by)
}

func TestAnalyzeMainArgs(t *testing.T) {
	prog := analyze(t, nil, source{"main.c", `
int main(int argc, char **argv) {
	return argv[1][0];
}
`})

	argv := pvar(t, prog, "argv")
	classes := prog.Classes(argv)
	require.Len(t, classes, 2)
	assert.Equal(t, constraints.Arr, classes[0])
	desc, by := heuristicOf(t, prog, argv)
	assert.Equal(t, "count(argc)", desc)
	assert.Equal(t, bounds.MainArgs, by)
}

func TestAnalyzeExternalCallRootCause(t *testing.T) {
	src := source{"copy.c", `
void copy(char *dst, const char *src) {
	strcpy(dst, src);
}
`}
	prog := analyze(t, nil, src)
	dst := pvar(t, prog, "dst")
	require.Equal(t, []constraints.Class{constraints.Wild}, prog.Classes(dst))

	rc := rootcause.Compute(prog.Graph())
	steps := rc.Explain(dst.Outer())
	require.NotEmpty(t, steps)
	assert.Equal(t, "Argument 0 of call to strcpy", steps[0].Reason)
	assert.Equal(t, "Parameter 0 of external function strcpy", steps[len(steps)-1].Reason)
	assert.Equal(t, constraints.WildAtom, steps[len(steps)-1].To)
	assert.False(t, rc.IsDirect(dst.Outer()))

	trusted := analyze(t, []Option{WithSafeExterns("strcpy")}, src)
	assert.Equal(t, []constraints.Class{constraints.Ptr}, trusted.Classes(pvar(t, trusted, "dst")))
}

func TestAnalyzeUnsafeCast(t *testing.T) {
	prog := analyze(t, nil, source{"cast.c", `
void poke(void) {
	int *p = (int *)4096;
	*p = 0;
}
`})

	p := pvar(t, prog, "p")
	assert.Equal(t, []constraints.Class{constraints.Wild}, prog.Classes(p))
	steps := rootcause.Compute(prog.Graph()).Explain(p.Outer())
	require.NotEmpty(t, steps)
	assert.True(t, strings.HasPrefix(steps[len(steps)-1].Reason, "Cast from int"), steps[len(steps)-1].Reason)
}

func TestAnalyzeLinksGlobalsAcrossUnits(t *testing.T) {
	prog := analyze(t, nil,
		source{"a.c", "extern int *g;\nvoid set(void) { g = (int *)5; }\n"},
		source{"b.c", "int *g;\nint get(void) { return *g; }\n"},
	)

	infos := prog.Lookup("g")
	require.Len(t, infos, 2)
	for _, di := range infos {
		assert.Equal(t, []constraints.Class{constraints.Wild}, prog.Classes(di.Var.(*constraints.PVar)), di.File)
	}
}

func TestAnalyzeLinksDeclarationToDefinition(t *testing.T) {
	prog := analyze(t, nil,
		source{"api.c", "int *first(int *xs);\nint use(int *v) { return *first(v); }\n"},
		source{"impl.c", "int *first(int *xs) { return xs; }\n"},
	)

	assert.Equal(t, []constraints.Class{constraints.Ptr}, prog.Classes(pvar(t, prog, "v")))
	assert.Equal(t, []constraints.Class{constraints.Ptr}, prog.Classes(pvar(t, prog, "xs")))
}

func TestAnalyzeConflictingDeclarations(t *testing.T) {
	prog := analyze(t, nil,
		source{"decl.c", "int f(int *a);\n"},
		source{"def.c", "int f(int *a, int *b) { return *a + *b; }\n"},
	)

	var conflicts []Diagnostic
	for _, d := range prog.Diagnostics() {
		if strings.Contains(d.Message, "Conflicting declarations of function f") {
			conflicts = append(conflicts, d)
		}
	}
	require.NotEmpty(t, conflicts)
	assert.Equal(t, DiagWild, conflicts[0].Kind)
	assert.Equal(t, SeverityWarning, conflicts[0].Severity)

	for _, di := range prog.Lookup("a") {
		assert.Equal(t, []constraints.Class{constraints.Wild}, prog.Classes(di.Var.(*constraints.PVar)), di.File)
	}
}

func TestAnalyzeVarargs(t *testing.T) {
	src := source{"log.c", `
void report(int *p) {
	printf("%p", p);
}
`}

	relaxed := analyze(t, nil, src)
	assert.Equal(t, []constraints.Class{constraints.Ptr}, relaxed.Classes(pvar(t, relaxed, "p")))

	strict := analyze(t, []Option{WithVarargs(true), WithSafeExterns("printf")}, src)
	assert.Equal(t, []constraints.Class{constraints.Wild}, strict.Classes(pvar(t, strict, "p")))
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	srcs := []source{
		{"one.c", "int *g;\nvoid a(int *p) { g = p; }\n"},
		{"two.c", "extern int *g;\nvoid b(int *q) { q = (int *)1; g = q; }\n"},
		{"three.c", "void c(char *s, int n) { s[n] = 0; }\n"},
	}
	classes := func(prog *Program) map[string][]constraints.Class {
		out := make(map[string][]constraints.Class)
		for _, di := range prog.Decls() {
			if pv, ok := di.Var.(*constraints.PVar); ok && pv.IsPointer() {
				out[di.Decl.Loc.String()] = prog.Classes(pv)
			}
		}
		return out
	}

	want := classes(analyze(t, []Option{WithWorkers(1)}, srcs...))
	for i := 0; i < 5; i++ {
		assert.Equal(t, want, classes(analyze(t, nil, srcs...)))
	}
}

func TestAnalyzeCanceled(t *testing.T) {
	u, err := frontend.Parse(context.Background(), "c.c", []byte("int x;\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Analyze(ctx, []*ast.Unit{u}, WithLogger(log.Discard()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewOptions(t *testing.T) {
	o := NewOptions(WithAllocators("xmalloc"), WithSkipArgFunctions(), WithWorkers(3))
	assert.True(t, o.isAllocator("xmalloc"))
	assert.False(t, o.isAllocator("malloc"))
	assert.False(t, o.skipsArgs("realloc"))
	assert.True(t, o.isSafeExtern("free"))
	assert.Equal(t, 3, o.Workers)
	assert.NotNil(t, o.Logger)
}

func reasons(steps []rootcause.Step) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Reason)
	}
	return out
}

func TestAnalyzeWildDefinitionReachesCallers(t *testing.T) {
	check := func(t *testing.T, prog *Program) {
		infos := prog.Lookup("q")
		require.Len(t, infos, 2)
		for _, di := range infos {
			assert.Equal(t, []constraints.Class{constraints.Wild}, prog.Classes(di.Var.(*constraints.PVar)), di.Decl.Loc.String())
		}
		x := pvar(t, prog, "x")
		assert.Equal(t, []constraints.Class{constraints.Wild}, prog.Classes(x))
		steps := rootcause.Compute(prog.Graph()).Explain(x.Outer())
		assert.Contains(t, reasons(steps), "Declaration of g linked to its definition")
	}

	t.Run("one unit", func(t *testing.T) {
		check(t, analyze(t, nil, source{"p.c", `
void g(char *q);
void f(char *x) { g(x); }
void g(char *q) { q = (char *)5; }
`}))
	})
	t.Run("two units", func(t *testing.T) {
		check(t, analyze(t, nil,
			source{"a.c", "void g(char *q);\nvoid f(char *x) { g(x); }\n"},
			source{"b.c", "void g(char *q) { q = (char *)5; }\n"},
		))
	})
}

func TestAnalyzeReallocInput(t *testing.T) {
	prog := analyze(t, nil, source{"grow.c", `
void grow(int n) {
	int *p = malloc(n * sizeof(int));
	int *q = realloc(p, 2 * n * sizeof(int));
	q = (int *)7;
}
`})

	p := pvar(t, prog, "p")
	require.Equal(t, []constraints.Class{constraints.Wild}, prog.Classes(p))
	assert.Contains(t, reasons(rootcause.Compute(prog.Graph()).Explain(p.Outer())), "Reallocated by realloc")

	// Wildness of the input does not reach the result.
	prog = analyze(t, nil, source{"keep.c", `
void keep(int *p, int n) {
	p = (int *)3;
	int *q = realloc(p, n * sizeof(int));
	q[1] = 0;
}
`})
	assert.Equal(t, []constraints.Class{constraints.Wild}, prog.Classes(pvar(t, prog, "p")))
	assert.Equal(t, []constraints.Class{constraints.Arr}, prog.Classes(pvar(t, prog, "q")))
}

func TestAnalyzeUnsafeCastKeepsOperand(t *testing.T) {
	prog := analyze(t, nil, source{"launder.c", `
void launder(int *src) {
	char *c = (char *)src;
	*src = 1;
}
`})

	assert.Equal(t, []constraints.Class{constraints.Ptr}, prog.Classes(pvar(t, prog, "src")))
	c := pvar(t, prog, "c")
	require.Equal(t, []constraints.Class{constraints.Wild}, prog.Classes(c))
	steps := rootcause.Compute(prog.Graph()).Explain(c.Outer())
	require.NotEmpty(t, steps)
	last := steps[len(steps)-1].Reason
	assert.True(t, strings.HasPrefix(last, "Unsafe cast from"), last)
}

func TestAnalyzeDeclaredExternalRootCause(t *testing.T) {
	prog := analyze(t, nil, source{"decl.c", `
char *strcpy(char *dst, const char *src);
void f(char *p) {
	strcpy(p, "hi");
}
`})

	p := pvar(t, prog, "p")
	require.Equal(t, []constraints.Class{constraints.Wild}, prog.Classes(p))
	steps := rootcause.Compute(prog.Graph()).Explain(p.Outer())
	require.NotEmpty(t, steps)
	assert.Equal(t, "Argument 0 of call to strcpy", steps[0].Reason)
	assert.Equal(t, "Parameter 0 of external function strcpy", steps[len(steps)-1].Reason)

	strcpy := fvar(t, prog, "strcpy")
	_, params := prog.ParamClasses(strcpy)
	assert.Equal(t, [][]constraints.Class{{constraints.Wild}, {constraints.Wild}}, params)
}

func TestAnalyzeUnionOfSources(t *testing.T) {
	for name, code := range map[string]string{
		"ternary": `
void pick(int *a, int *b, int k) {
	int *r = k ? a : b;
	r = (int *)9;
}
`,
		"initializer list": `
void both(int *a, int *b) {
	int *arr[2] = {a, b};
	arr[1] = (int *)3;
}
`,
	} {
		t.Run(name, func(t *testing.T) {
			prog := analyze(t, nil, source{"union.c", code})
			assert.Equal(t, []constraints.Class{constraints.Wild}, prog.Classes(pvar(t, prog, "a")))
			assert.Equal(t, []constraints.Class{constraints.Wild}, prog.Classes(pvar(t, prog, "b")))
		})
	}
}

func TestAnalyzeInitializedArrayIsBounded(t *testing.T) {
	prog := analyze(t, nil, source{"table.c", `
int m[] = {1, 2, 3};
char *names[] = {"a", "b"};
int sum(void) { return m[0] + m[2]; }
char first(int i) { return names[i][0]; }
`})

	assert.True(t, pvar(t, prog, "m").ArrPresent)
	assert.True(t, pvar(t, prog, "names").ArrPresent)
	for _, d := range prog.Diagnostics() {
		if d.Kind == DiagUnbounded {
			assert.NotEqual(t, "no bounds inferred for array m", d.Message)
			assert.NotEqual(t, "no bounds inferred for array names", d.Message)
		}
	}
}

func TestAnalyzeOldStyleDefinition(t *testing.T) {
	prog := analyze(t, nil, source{"kr.c", `
void kr(a, b)
	int *a;
	char *b;
{
	a[1] = 0;
	b = (char *)5;
}
`})

	assert.Equal(t, []constraints.Class{constraints.Arr}, prog.Classes(pvar(t, prog, "a")))
	assert.Equal(t, []constraints.Class{constraints.Wild}, prog.Classes(pvar(t, prog, "b")))
	_, params := prog.ParamClasses(fvar(t, prog, "kr"))
	assert.Len(t, params, 2)
}

func TestAnalyzeCheckedDeclarations(t *testing.T) {
	prog := analyze(t, nil, source{"checked.c", `
int grid _Checked[10];
void use(_Ptr<int> p, _Array_ptr<int> buf : count(n), int n, int *plain) {
	p = (int *)5;
	buf[1] = *plain;
}
`})

	p := pvar(t, prog, "p")
	assert.Equal(t, []constraints.Class{constraints.Ptr}, prog.Classes(p))
	assert.True(t, p.OriginallyChecked)
	assert.False(t, p.Changed(prog.Graph()))

	buf := pvar(t, prog, "buf")
	assert.Equal(t, []constraints.Class{constraints.Arr}, prog.Classes(buf))
	assert.True(t, buf.BoundsAnnotated)
	desc, by := heuristicOf(t, prog, buf)
	assert.Equal(t, "count(n)", desc)
	assert.Equal(t, bounds.Declared, by)

	grid := pvar(t, prog, "grid")
	assert.Equal(t, []constraints.Class{constraints.Arr}, prog.Classes(grid))
	assert.True(t, grid.OriginallyChecked)

	plain := pvar(t, prog, "plain")
	assert.False(t, plain.OriginallyChecked)
	assert.True(t, plain.Changed(prog.Graph()))

	for _, d := range prog.Diagnostics() {
		assert.NotEqual(t, DiagUnbounded, d.Kind, d.Message)
	}
}
