// Package constraints implements the safety-class lattice, the constraint
// graph over pointer atoms, its fixpoint solver and the constraint variables
// that describe the pointer shape of declarations and expressions.
package constraints

import "fmt"

// Class is a pointer safety class. Classes are totally ordered from least
// to most safe: Wild < Arr < NTArr < Ptr.
type Class uint8

const (
	Wild Class = iota
	Arr
	NTArr
	Ptr
)

func (c Class) String() string {
	switch c {
	case Wild:
		return "WILD"
	case Arr:
		return "ARR"
	case NTArr:
		return "NTARR"
	case Ptr:
		return "PTR"
	default:
		return fmt.Sprintf("Class(%d)", uint8(c))
	}
}

// Checked reports whether the class is one of the checked pointer kinds.
func (c Class) Checked() bool { return c != Wild }

// IsArray reports whether the class admits bounds-checked arithmetic.
func (c Class) IsArray() bool { return c == Arr || c == NTArr }

// AtomID identifies an atom. The four constant atoms have the IDs of their
// class; unknowns are numbered from firstUnknown.
type AtomID int32

const (
	WildAtom  = AtomID(Wild)
	ArrAtom   = AtomID(Arr)
	NTArrAtom = AtomID(NTArr)
	PtrAtom   = AtomID(Ptr)

	firstUnknown AtomID = 4
)

// Const returns the constant atom for c.
func Const(c Class) AtomID { return AtomID(c) }

// IsConst reports whether a is one of the four constant atoms.
func (a AtomID) IsConst() bool { return a >= 0 && a < firstUnknown }

// IsUnknown reports whether a is a solver variable.
func (a AtomID) IsUnknown() bool { return a >= firstUnknown }

func (a AtomID) String() string {
	if a.IsConst() {
		return Class(a).String()
	}
	return fmt.Sprintf("q_%d", int32(a))
}
