package frontend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
)

func parse(t *testing.T, src string) *ast.Unit {
	t.Helper()
	u, err := Parse(context.Background(), "test.c", []byte(src))
	require.NoError(t, err)
	return u
}

// declsNamed returns every declaration called name, in arena order.
func declsNamed(u *ast.Unit, name string) []*ast.Decl {
	var out []*ast.Decl
	for i := 0; i < u.NumDecls(); i++ {
		if d := u.Decl(ast.DeclID(i)); d.Name == name {
			out = append(out, d)
		}
	}
	return out
}

func one(t *testing.T, u *ast.Unit, name string) *ast.Decl {
	t.Helper()
	ds := declsNamed(u, name)
	require.Len(t, ds, 1, "declarations named %q", name)
	return ds[0]
}

func TestParseEmptySource(t *testing.T) {
	_, err := Parse(context.Background(), "empty.c", nil)
	assert.True(t, errors.Is(err, ErrEmptySource))
}

func TestParseFunctionsAndParams(t *testing.T) {
	u := parse(t, `
int g;
static char *name;
int add(int *a, int n) { return a[n]; }
int proto(void);
int old();
int vararg(const char *fmt, ...);
`)

	g := one(t, u, "g")
	assert.Equal(t, ast.DeclVar, g.Kind)
	assert.True(t, g.Global)
	assert.Equal(t, ast.NoDecl, g.Parent)

	name := one(t, u, "name")
	assert.True(t, name.Static)
	assert.Equal(t, "char *", name.Type.String())

	add := one(t, u, "add")
	require.True(t, add.IsFunction())
	assert.True(t, add.HasBody)
	assert.False(t, add.Extern)
	require.Len(t, add.Params, 2)
	for i, pid := range add.Params {
		p := u.Decl(pid)
		assert.Equal(t, ast.DeclParam, p.Kind)
		assert.Equal(t, add.ID, p.Parent)
		assert.Equal(t, i, p.Index)
	}
	assert.Equal(t, 1, u.Decl(add.Params[0]).Type.Depth())

	p := one(t, u, "proto")
	assert.True(t, p.Type.HasProto)
	assert.Empty(t, p.Type.Params)
	assert.True(t, p.Extern)

	assert.False(t, one(t, u, "old").Type.HasProto)
	assert.True(t, one(t, u, "vararg").Type.Variadic)

	assert.Equal(t, []ast.DeclID{add.ID, p.ID, one(t, u, "old").ID, one(t, u, "vararg").ID}, u.Functions())
}

func TestParseRecords(t *testing.T) {
	u := parse(t, `
struct s {
	int *data;
	int count;
};
struct s *make(void);
`)

	fields := u.Records["struct s"]
	require.Len(t, fields, 2)
	data := u.Decl(fields[0])
	assert.Equal(t, "data", data.Name)
	assert.Equal(t, ast.DeclField, data.Kind)
	assert.Equal(t, "struct s", data.Record)
	assert.Equal(t, 0, data.Index)
	assert.Equal(t, 1, u.Decl(fields[1]).Index)

	mk := one(t, u, "make")
	assert.Equal(t, "struct s", mk.Type.Return.Pointee().Name)
}

func TestParseImplicitBuiltin(t *testing.T) {
	u := parse(t, `
void f(int n) {
	int *p = malloc(n * sizeof(int));
	free(p);
	mystery(p);
}
`)

	malloc := one(t, u, "malloc")
	assert.True(t, malloc.Implicit)
	assert.True(t, malloc.Extern)
	assert.True(t, malloc.Type.HasProto)
	assert.True(t, malloc.Type.Return.IsVoidPointer())
	assert.NotContains(t, u.TopLevel, malloc.ID)

	free := one(t, u, "free")
	require.Len(t, free.Type.Params, 1)
	assert.True(t, free.Type.Params[0].IsVoidPointer())

	// Unknown callees get an unprototyped int-returning declaration.
	mystery := one(t, u, "mystery")
	assert.False(t, mystery.Type.HasProto)
	assert.Equal(t, ast.IntType, mystery.Type.Return)

	p := one(t, u, "p")
	require.NotEqual(t, ast.NoExpr, p.Init)
	var calls []ast.DeclID
	u.InspectExpr(p.Init, func(e *ast.Expr) bool {
		if e.Kind == ast.ExprCall {
			calls = append(calls, e.Decl)
		}
		return true
	})
	assert.Equal(t, []ast.DeclID{malloc.ID}, calls)
}

func TestParseTypedefAndEnum(t *testing.T) {
	u := parse(t, `
typedef char *string;
enum color { RED, GREEN = 5, BLUE };
string s;
int arr[BLUE];
`)

	assert.Equal(t, "char *", one(t, u, "s").Type.String())
	arr := one(t, u, "arr")
	assert.Equal(t, ast.TypeArray, arr.Type.Kind)
	assert.Equal(t, 6, arr.Type.Size)
}

func TestParseSyntaxErrors(t *testing.T) {
	u := parse(t, "int x = ;\nint ok;\n")
	assert.NotEmpty(t, u.SyntaxErrors)
	assert.Len(t, declsNamed(u, "ok"), 1)
}

func TestParseFilesKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"b.c", "a.c", "c.c"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("int "+name[:1]+";\n"), 0o644))
		paths = append(paths, path)
	}

	units, err := ParseFiles(context.Background(), paths, 2)
	require.NoError(t, err)
	require.Len(t, units, 3)
	for i, u := range units {
		assert.Equal(t, paths[i], u.File)
	}

	_, err = ParseFiles(context.Background(), append(paths, filepath.Join(dir, "missing.c")), 0)
	assert.Error(t, err)
}

func TestParseCheckedPointers(t *testing.T) {
	src := `
int sum(_Array_ptr<int> buf : count(n), int n, _Ptr<_Array_ptr<char>> names);
void own(_Nt_array_ptr<char> s : byte_count(8), int *plain : itype(_Ptr<int>));
int grid _Checked[4];
char tag _Nt_checked[3];
`
	u := parse(t, src)
	assert.Empty(t, u.SyntaxErrors)

	buf := one(t, u, "buf")
	assert.Equal(t, ast.TypePointer, buf.Type.Kind)
	assert.Equal(t, ast.CheckedArray, buf.Type.Checked)
	require.NotNil(t, buf.Bounds)
	assert.Equal(t, &ast.BoundsDecl{Kind: "count", Arg: "n"}, buf.Bounds)
	assert.True(t, buf.BoundsAnnotated())

	n := one(t, u, "n")
	assert.Nil(t, n.Bounds)
	assert.Equal(t, ast.IntType.Kind, n.Type.Kind)

	names := one(t, u, "names")
	require.Equal(t, 2, names.Type.Depth())
	assert.Equal(t, ast.CheckedPtr, names.Type.Checked)
	assert.Equal(t, ast.CheckedArray, names.Type.Elem.Checked)
	assert.Equal(t, "char", names.Type.Elem.Elem.Name)

	s := one(t, u, "s")
	assert.Equal(t, ast.CheckedNTArray, s.Type.Checked)
	assert.Equal(t, &ast.BoundsDecl{Kind: "byte_count", Arg: "8"}, s.Bounds)

	// An interop type leaves the declaration unchecked and unannotated.
	plain := one(t, u, "plain")
	assert.Equal(t, ast.Unchecked, plain.Type.Checked)
	assert.Nil(t, plain.Bounds)

	grid := one(t, u, "grid")
	assert.Equal(t, ast.TypeArray, grid.Type.Kind)
	assert.Equal(t, 4, grid.Type.Size)
	assert.Equal(t, ast.CheckedArray, grid.Type.Checked)
	assert.Equal(t, ast.CheckedNTArray, one(t, u, "tag").Type.Checked)

	// Locations point into the text as written.
	assert.Equal(t, 2, buf.Loc.Line)
	assert.Equal(t, strings.Index(strings.Split(src, "\n")[1], "buf")+1, buf.Loc.Col)
	assert.Equal(t, strings.Index(strings.Split(src, "\n")[1], "names")+1, names.Loc.Col)
}

func TestRewriteCheckedKeepsLength(t *testing.T) {
	src := []byte("_Array_ptr<_Ptr<int>> q;\nint x = c ? a : count(b);\nswitch (k) { case 1: count(k); }\n")
	out, marks := rewriteChecked(src)
	require.Len(t, out, len(src))
	lines := strings.Split(string(out), "\n")
	assert.Equal(t, "int*     *"+strings.Repeat(" ", 11)+" q;", lines[0])
	assert.Equal(t, map[uint32]ast.Checkedness{3: ast.CheckedPtr, 9: ast.CheckedArray}, marks.pointers)
	assert.Equal(t, "int x = c ? a : count(b);", lines[1])
	assert.Equal(t, "switch (k) { case 1: count(k); }", lines[2])
	assert.Empty(t, marks.annotations)
	assert.Equal(t, "_Array_ptr<_Ptr<int>> q;", strings.Split(string(src), "\n")[0])

	plain := []byte("int main(void) { return 0; }\n")
	same, _ := rewriteChecked(plain)
	assert.Equal(t, plain, same)
}

func TestParseSizesArrayFromInitializer(t *testing.T) {
	u := parse(t, `
int m[] = {1, 2, 3};
char *names[] = {"a", "b"};
char word[] = "hello";
int sparse[] = {[5] = 1, 2};
int fixed[8] = {1};
`)

	assert.Equal(t, 3, one(t, u, "m").Type.Size)
	assert.Equal(t, 2, one(t, u, "names").Type.Size)
	assert.Equal(t, 6, one(t, u, "word").Type.Size)
	assert.Equal(t, 7, one(t, u, "sparse").Type.Size)
	assert.Equal(t, 8, one(t, u, "fixed").Type.Size)
}

func TestParseOldStyleDefinition(t *testing.T) {
	u := parse(t, `
void kr(a, b, n)
	int *a;
	char b[];
{
	a[n] = b[0];
}
`)

	kr := one(t, u, "kr")
	require.Len(t, kr.Params, 3)
	assert.False(t, kr.Type.HasProto)

	a := u.Decl(kr.Params[0])
	assert.Equal(t, "a", a.Name)
	assert.Equal(t, "int *", a.Type.String())
	assert.Equal(t, 3, a.Loc.Line)

	b := u.Decl(kr.Params[1])
	assert.Equal(t, ast.TypePointer, b.Type.Kind)
	assert.Equal(t, "char", b.Type.Elem.Name)

	// Undeclared K&R parameters default to int.
	assert.Equal(t, ast.IntType, u.Decl(kr.Params[2]).Type)
	require.Len(t, kr.Type.Params, 3)
	assert.Equal(t, a.Type, kr.Type.Params[0])
	assert.Empty(t, u.SyntaxErrors)
}
