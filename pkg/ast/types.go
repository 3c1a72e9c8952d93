// Package ast holds the arena-allocated C program model the inference engine
// consumes. Declarations, expressions and statements live in per-unit slices
// and are referenced by integer handles, which double as memoization keys.
package ast

import (
	"fmt"
	"strings"
)

// Location identifies a source position. It is comparable and used as a map
// key when linking declarations across translation units.
type Location struct {
	File string `json:"file" msgpack:"file"`
	Line int    `json:"line" msgpack:"line"`
	Col  int    `json:"col" msgpack:"col"`
}

// IsValid reports whether the location points into a file.
func (l Location) IsValid() bool {
	return l.File != "" && l.Line > 0
}

func (l Location) String() string {
	if !l.IsValid() {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

// TypeKind classifies a C type.
type TypeKind int

const (
	TypeVoid TypeKind = iota
	TypeInt
	TypeFloat
	TypeEnum
	TypeRecord
	TypePointer
	TypeArray
	TypeFunction
)

// Checkedness is the pointer kind a Checked C type spells explicitly.
type Checkedness int

const (
	Unchecked Checkedness = iota
	CheckedPtr
	CheckedArray
	CheckedNTArray
)

// Type describes a static C type. Pointer and array types chain through Elem;
// function types carry Return and Params.
type Type struct {
	Kind TypeKind
	// Name is the spelling of scalar, enum and record types ("int",
	// "struct node", "enum color").
	Name string
	Elem *Type
	// Size is the declared array length, -1 when absent.
	Size     int
	Return   *Type
	Params   []*Type
	Variadic bool
	HasProto bool
	Const    bool
	// Checked is set on pointer and array levels written as _Ptr,
	// _Array_ptr, _Nt_array_ptr, _Checked[] or _Nt_checked[].
	Checked Checkedness
}

var (
	VoidType   = &Type{Kind: TypeVoid, Name: "void"}
	IntType    = &Type{Kind: TypeInt, Name: "int"}
	LongType   = &Type{Kind: TypeInt, Name: "unsigned long"}
	CharType   = &Type{Kind: TypeInt, Name: "char"}
	DoubleType = &Type{Kind: TypeFloat, Name: "double"}
)

// Array sizes that are not literal lengths.
const (
	Unsized      = -1
	VariableSize = -2
)

// PointerTo returns a pointer type to elem.
func PointerTo(elem *Type) *Type {
	return &Type{Kind: TypePointer, Elem: elem, Size: -1}
}

// ArrayOf returns an array type of size elements (-1 for unsized).
func ArrayOf(elem *Type, size int) *Type {
	return &Type{Kind: TypeArray, Elem: elem, Size: size}
}

// IsPointer reports whether t has at least one level of indirection,
// counting arrays.
func (t *Type) IsPointer() bool {
	return t != nil && (t.Kind == TypePointer || t.Kind == TypeArray)
}

// IsIntegral reports whether t is an integer or enumeration type.
func (t *Type) IsIntegral() bool {
	return t != nil && (t.Kind == TypeInt || t.Kind == TypeEnum)
}

// IsScalar reports whether t is a non-pointer arithmetic type.
func (t *Type) IsScalar() bool {
	return t != nil && (t.Kind == TypeInt || t.Kind == TypeEnum || t.Kind == TypeFloat)
}

// IsFunction reports whether t is a function type.
func (t *Type) IsFunction() bool {
	return t != nil && t.Kind == TypeFunction
}

// IsVoidPointer reports whether t is exactly one level of pointer to void.
func (t *Type) IsVoidPointer() bool {
	return t != nil && t.Kind == TypePointer && t.Elem != nil && t.Elem.Kind == TypeVoid
}

// Depth returns the number of pointer or array levels.
func (t *Type) Depth() int {
	n := 0
	for cur := t; cur.IsPointer(); cur = cur.Elem {
		n++
	}
	return n
}

// Base strips every pointer and array level.
func (t *Type) Base() *Type {
	cur := t
	for cur.IsPointer() {
		cur = cur.Elem
	}
	return cur
}

// Pointee returns the element type, or nil for non-pointers.
func (t *Type) Pointee() *Type {
	if !t.IsPointer() {
		return nil
	}
	return t.Elem
}

// Decay converts an array type to the equivalent pointer type.
func (t *Type) Decay() *Type {
	if t != nil && t.Kind == TypeArray {
		p := PointerTo(t.Elem)
		p.Checked = t.Checked
		return p
	}
	return t
}

// FunctionType returns the function type t denotes, looking through one
// pointer level for function pointers.
func (t *Type) FunctionType() *Type {
	if t == nil {
		return nil
	}
	if t.Kind == TypeFunction {
		return t
	}
	if t.Kind == TypePointer && t.Elem != nil && t.Elem.Kind == TypeFunction {
		return t.Elem
	}
	return nil
}

// Identical reports structural type equality ignoring qualifiers. Arrays
// compare equal to pointers with the same element type.
func Identical(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	ka, kb := a.Kind, b.Kind
	if ka == TypeArray {
		ka = TypePointer
	}
	if kb == TypeArray {
		kb = TypePointer
	}
	if ka != kb {
		return false
	}
	switch ka {
	case TypePointer:
		return Identical(a.Elem, b.Elem)
	case TypeFunction:
		if !Identical(a.Return, b.Return) || len(a.Params) != len(b.Params) {
			return false
		}
		for i := range a.Params {
			if !Identical(a.Params[i], b.Params[i]) {
				return false
			}
		}
		return true
	case TypeVoid:
		return true
	default:
		return a.Name == b.Name
	}
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case TypePointer:
		if t.Elem != nil && t.Elem.Kind == TypeFunction {
			return t.Elem.funcString("(*)")
		}
		return t.Elem.String() + " *"
	case TypeArray:
		if t.Size >= 0 {
			return fmt.Sprintf("%s [%d]", t.Elem, t.Size)
		}
		return t.Elem.String() + " []"
	case TypeFunction:
		return t.funcString("")
	default:
		if t.Const {
			return "const " + t.Name
		}
		return t.Name
	}
}

func (t *Type) funcString(inner string) string {
	params := make([]string, 0, len(t.Params)+1)
	for _, p := range t.Params {
		params = append(params, p.String())
	}
	if t.Variadic {
		params = append(params, "...")
	}
	return fmt.Sprintf("%s %s(%s)", t.Return, inner, strings.Join(params, ", "))
}
