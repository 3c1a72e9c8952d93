package frontend

import "github.com/2000jedi/checkedc-clang/pkg/ast"

// builtinPrototype returns the standard prototype of a common C library
// function, used when a unit calls it without a visible declaration.
func builtinPrototype(name string) (*ast.Type, bool) {
	mk, ok := builtins[name]
	if !ok {
		return nil, false
	}
	return mk(), true
}

func proto(ret *ast.Type, variadic bool, params ...*ast.Type) *ast.Type {
	return &ast.Type{Kind: ast.TypeFunction, Return: ret, Params: params, Variadic: variadic, HasProto: true, Size: ast.Unsized}
}

func voidPtr() *ast.Type { return ast.PointerTo(ast.VoidType) }
func charPtr() *ast.Type { return ast.PointerTo(ast.CharType) }

func constCharPtr() *ast.Type {
	return ast.PointerTo(&ast.Type{Kind: ast.TypeInt, Name: "char", Size: ast.Unsized, Const: true})
}

func sizeT() *ast.Type { return scalar(ast.TypeInt, "size_t") }

var builtins = map[string]func() *ast.Type{
	"malloc":  func() *ast.Type { return proto(voidPtr(), false, sizeT()) },
	"calloc":  func() *ast.Type { return proto(voidPtr(), false, sizeT(), sizeT()) },
	"realloc": func() *ast.Type { return proto(voidPtr(), false, voidPtr(), sizeT()) },
	"free":    func() *ast.Type { return proto(ast.VoidType, false, voidPtr()) },
	"memcpy":  func() *ast.Type { return proto(voidPtr(), false, voidPtr(), voidPtr(), sizeT()) },
	"memmove": func() *ast.Type { return proto(voidPtr(), false, voidPtr(), voidPtr(), sizeT()) },
	"memset":  func() *ast.Type { return proto(voidPtr(), false, voidPtr(), ast.IntType, sizeT()) },
	"strlen":  func() *ast.Type { return proto(sizeT(), false, constCharPtr()) },
	"strcpy":  func() *ast.Type { return proto(charPtr(), false, charPtr(), constCharPtr()) },
	"strncpy": func() *ast.Type { return proto(charPtr(), false, charPtr(), constCharPtr(), sizeT()) },
	"strcat":  func() *ast.Type { return proto(charPtr(), false, charPtr(), constCharPtr()) },
	"strcmp":  func() *ast.Type { return proto(ast.IntType, false, constCharPtr(), constCharPtr()) },
	"strncmp": func() *ast.Type { return proto(ast.IntType, false, constCharPtr(), constCharPtr(), sizeT()) },
	"strdup":  func() *ast.Type { return proto(charPtr(), false, constCharPtr()) },
	"strchr":  func() *ast.Type { return proto(charPtr(), false, constCharPtr(), ast.IntType) },
	"atoi":    func() *ast.Type { return proto(ast.IntType, false, constCharPtr()) },
	"puts":    func() *ast.Type { return proto(ast.IntType, false, constCharPtr()) },
	"printf":  func() *ast.Type { return proto(ast.IntType, true, constCharPtr()) },
	"sprintf": func() *ast.Type { return proto(ast.IntType, true, charPtr(), constCharPtr()) },
	"snprintf": func() *ast.Type {
		return proto(ast.IntType, true, charPtr(), sizeT(), constCharPtr())
	},
	"exit":  func() *ast.Type { return proto(ast.VoidType, false, ast.IntType) },
	"abort": func() *ast.Type { return proto(ast.VoidType, false) },
}
