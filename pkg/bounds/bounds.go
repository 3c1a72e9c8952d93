// Package bounds stores the array bounds the inference engine attaches to
// checked array pointers, keyed by opaque bounds keys, together with the
// naming heuristics used to pair arrays with their length variables.
package bounds

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Key identifies a program variable for the bounds engine. Keys are derived
// from declaration locations, so every translation unit that sees the same
// declaration agrees on its key.
type Key string

// NoKey marks a variable without a bounds identity.
const NoKey Key = ""

const (
	contextSep  = "@"
	constPrefix = "const:"
)

// ContextKey qualifies k with a call-site context.
func ContextKey(ctx string, k Key) Key {
	if k == NoKey {
		return NoKey
	}
	return Key(ctx + contextSep + string(k))
}

// Base strips a call-site context.
func (k Key) Base() Key {
	if i := strings.Index(string(k), contextSep); i >= 0 {
		return k[i+len(contextSep):]
	}
	return k
}

// HasContext reports whether the key is context qualified.
func (k Key) HasContext() bool {
	return strings.Contains(string(k), contextSep)
}

// Kind is the shape of a bounds expression.
type Kind int

const (
	Unbounded Kind = iota
	ByteCount
	ElementCount
)

func (k Kind) String() string {
	switch k {
	case ByteCount:
		return "byte_count"
	case ElementCount:
		return "count"
	default:
		return "unbounded"
	}
}

// Bounds is the length expression of an array: the number of bytes or
// elements held in the variable named by Source.
type Bounds struct {
	Kind   Kind `json:"kind" msgpack:"kind"`
	Source Key  `json:"source,omitempty" msgpack:"source,omitempty"`
}

// Elements returns ElementCount(src).
func Elements(src Key) Bounds { return Bounds{Kind: ElementCount, Source: src} }

// Bytes returns ByteCount(src).
func Bytes(src Key) Bounds { return Bounds{Kind: ByteCount, Source: src} }

// None returns the unbounded value.
func None() Bounds { return Bounds{Kind: Unbounded} }

// ProgramVar is a variable that may serve as a length.
type ProgramVar struct {
	Key      Key    `json:"key" msgpack:"key"`
	Name     string `json:"name" msgpack:"name"`
	Scope    string `json:"scope" msgpack:"scope"`
	Constant bool   `json:"constant,omitempty" msgpack:"constant,omitempty"`
}

// Heuristic names the rule that produced a binding.
type Heuristic string

const (
	Declared       Heuristic = "declared"
	Allocator      Heuristic = "allocator"
	StringLiteral  Heuristic = "string_literal"
	NeighbourParam Heuristic = "neighbour_param"
	NamePrefix     Heuristic = "name_prefix"
	NameKeyword    Heuristic = "name_keyword"
	NameSubseq     Heuristic = "name_subsequence"
	MainArgs       Heuristic = "main_args"
	NoHeuristic    Heuristic = "none"
)

type binding struct {
	bounds Bounds
	by     Heuristic
}

// Info is the bounds store of one analysis.
type Info struct {
	vars     map[Key]ProgramVar
	bindings map[Key]binding
	stats    map[Heuristic]int
}

// NewInfo returns an empty store.
func NewInfo() *Info {
	return &Info{
		vars:     make(map[Key]ProgramVar),
		bindings: make(map[Key]binding),
		stats:    make(map[Heuristic]int),
	}
}

// Register records a program variable. Registering a key twice keeps the
// first record.
func (in *Info) Register(pv ProgramVar) {
	if pv.Key == NoKey {
		return
	}
	if _, ok := in.vars[pv.Key]; ok {
		return
	}
	in.vars[pv.Key] = pv
}

// ConstKey returns the key of the numeric constant v, registering it on
// first use.
func (in *Info) ConstKey(v int64) Key {
	k := Key(constPrefix + strconv.FormatInt(v, 10))
	in.Register(ProgramVar{Key: k, Name: strconv.FormatInt(v, 10), Scope: "const", Constant: true})
	return k
}

// Var returns the program variable registered under k.
func (in *Info) Var(k Key) (ProgramVar, bool) {
	pv, ok := in.vars[k.Base()]
	return pv, ok
}

// Merge binds k to b unless k already has a binding.
func (in *Info) Merge(k Key, b Bounds, by Heuristic) bool {
	if k == NoKey {
		return false
	}
	if _, ok := in.bindings[k]; ok {
		return false
	}
	in.bindings[k] = binding{bounds: b, by: by}
	in.stats[by]++
	return true
}

// Replace binds k to b, overriding earlier heuristic matches. Declared
// bindings and bindings confirmed by an allocation site are never replaced
// by another rule.
func (in *Info) Replace(k Key, b Bounds, by Heuristic) bool {
	if k == NoKey {
		return false
	}
	if old, ok := in.bindings[k]; ok {
		if (old.by == Allocator || old.by == Declared) && by != old.by {
			return false
		}
		in.stats[old.by]--
	}
	in.bindings[k] = binding{bounds: b, by: by}
	in.stats[by]++
	return true
}

// Get returns the binding of k exactly as stored.
func (in *Info) Get(k Key) (Bounds, Heuristic, bool) {
	bd, ok := in.bindings[k]
	return bd.bounds, bd.by, ok
}

// Lookup returns the binding of k, falling back to the key without its
// call-site context.
func (in *Info) Lookup(k Key) (Bounds, bool) {
	if bd, ok := in.bindings[k]; ok {
		return bd.bounds, true
	}
	if k.HasContext() {
		if bd, ok := in.bindings[k.Base()]; ok {
			return bd.bounds, true
		}
	}
	return Bounds{}, false
}

// Has reports whether k has a binding of any kind.
func (in *Info) Has(k Key) bool {
	_, ok := in.bindings[k]
	return ok
}

// Keys returns every bound key in sorted order.
func (in *Info) Keys() []Key {
	keys := make([]Key, 0, len(in.bindings))
	for k := range in.bindings {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Stats returns the number of live bindings per heuristic.
func (in *Info) Stats() map[Heuristic]int {
	out := make(map[Heuristic]int, len(in.stats))
	for h, n := range in.stats {
		if n > 0 {
			out[h] = n
		}
	}
	return out
}

// Describe renders b using the names of its source variable.
func (in *Info) Describe(b Bounds) string {
	if b.Kind == Unbounded {
		return b.Kind.String()
	}
	name := string(b.Source)
	if pv, ok := in.Var(b.Source); ok {
		name = pv.Name
	}
	return fmt.Sprintf("%s(%s)", b.Kind, name)
}
