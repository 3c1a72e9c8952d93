// Package report turns a solved program into a serializable dump and
// renders it as JSON, msgpack or text.
package report

import (
	"sort"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
	"github.com/2000jedi/checkedc-clang/pkg/constraints"
	"github.com/2000jedi/checkedc-clang/pkg/infer"
	"github.com/2000jedi/checkedc-clang/pkg/rootcause"
)

// Variable is the solution for one declaration.
type Variable struct {
	Name      string       `json:"name" msgpack:"name"`
	Kind      string       `json:"kind" msgpack:"kind"`
	Type      string       `json:"type" msgpack:"type"`
	Loc       ast.Location `json:"loc" msgpack:"loc"`
	Classes   []string     `json:"classes,omitempty" msgpack:"classes,omitempty"`
	Atoms     []int        `json:"atoms,omitempty" msgpack:"atoms,omitempty"`
	Bounds    string       `json:"bounds,omitempty" msgpack:"bounds,omitempty"`
	Heuristic string       `json:"heuristic,omitempty" msgpack:"heuristic,omitempty"`
	Return    []string     `json:"return,omitempty" msgpack:"return,omitempty"`
	Params    [][]string   `json:"params,omitempty" msgpack:"params,omitempty"`
	Root      string       `json:"root_cause,omitempty" msgpack:"root_cause,omitempty"`
	// Changed is set when inference made a legacy pointer checked.
	Changed bool `json:"changed,omitempty" msgpack:"changed,omitempty"`
	Checked bool `json:"originally_checked,omitempty" msgpack:"originally_checked,omitempty"`
}

// Binding is one entry of the bounds store.
type Binding struct {
	Key       string `json:"key" msgpack:"key"`
	Name      string `json:"name" msgpack:"name"`
	Bounds    string `json:"bounds" msgpack:"bounds"`
	Heuristic string `json:"heuristic" msgpack:"heuristic"`
}

// FileStats counts pointer levels per class in one file.
type FileStats struct {
	File        string `json:"file" msgpack:"file"`
	Constraints int    `json:"constraints" msgpack:"constraints"`
	Ptr         int    `json:"ptr" msgpack:"ptr"`
	NTArr       int    `json:"ntarr" msgpack:"ntarr"`
	Arr         int    `json:"arr" msgpack:"arr"`
	Wild        int    `json:"wild" msgpack:"wild"`
}

func (f *FileStats) add(c constraints.Class) {
	switch c {
	case constraints.Ptr:
		f.Ptr++
	case constraints.NTArr:
		f.NTArr++
	case constraints.Arr:
		f.Arr++
	case constraints.Wild:
		f.Wild++
	}
}

// Summary aggregates the whole program.
type Summary struct {
	Units        int `json:"units" msgpack:"units"`
	Atoms        int `json:"atoms" msgpack:"atoms"`
	Constraints  int `json:"constraints" msgpack:"constraints"`
	Ptr          int `json:"ptr" msgpack:"ptr"`
	NTArr        int `json:"ntarr" msgpack:"ntarr"`
	Arr          int `json:"arr" msgpack:"arr"`
	Wild         int `json:"wild" msgpack:"wild"`
	DirectWild   int `json:"direct_wild" msgpack:"direct_wild"`
	IndirectWild int `json:"indirect_wild" msgpack:"indirect_wild"`
}

// Cause is a direct Wild forcing attributed to a named atom.
type Cause struct {
	Atom   string       `json:"atom" msgpack:"atom"`
	Reason string       `json:"reason" msgpack:"reason"`
	Loc    ast.Location `json:"loc" msgpack:"loc"`
}

// Edge is a serialized constraint.
type Edge struct {
	Lhs    string       `json:"lhs" msgpack:"lhs"`
	Rhs    string       `json:"rhs" msgpack:"rhs"`
	Reason string       `json:"reason,omitempty" msgpack:"reason,omitempty"`
	Loc    ast.Location `json:"loc" msgpack:"loc"`
}

// Dump is the complete, serializable result of an analysis.
type Dump struct {
	Summary     Summary                 `json:"summary" msgpack:"summary"`
	Files       []FileStats             `json:"files" msgpack:"files"`
	Variables   []Variable              `json:"variables" msgpack:"variables"`
	Bounds      []Binding               `json:"bounds" msgpack:"bounds"`
	Heuristics  map[string]int          `json:"heuristics" msgpack:"heuristics"`
	Diagnostics []infer.Diagnostic      `json:"diagnostics" msgpack:"diagnostics"`
	RootCauses  []rootcause.ReasonCount `json:"root_causes" msgpack:"root_causes"`
	Causes      []Cause                 `json:"causes" msgpack:"causes"`
	Edges       []Edge                  `json:"edges,omitempty" msgpack:"edges,omitempty"`
}

type buildConfig struct {
	edges bool
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

// WithEdges includes every constraint edge in the dump.
func WithEdges() BuildOption {
	return func(c *buildConfig) {
		c.edges = true
	}
}

// Build assembles the dump of a solved program.
func Build(prog *infer.Program, rc *rootcause.Analysis, opts ...BuildOption) *Dump {
	var cfg buildConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	g := prog.Graph()
	d := &Dump{
		Heuristics:  make(map[string]int),
		Diagnostics: prog.Diagnostics(),
		RootCauses:  rc.Summary(),
	}
	d.Summary.Units = len(prog.Units())
	d.Summary.Atoms = g.NumUnknowns()
	d.Summary.Constraints = g.NumConstraints()

	files := make(map[string]*FileStats)
	fileStats := func(name string) *FileStats {
		fs, ok := files[name]
		if !ok {
			fs = &FileStats{File: name}
			files[name] = fs
		}
		return fs
	}
	for _, r := range prog.Units() {
		fileStats(r.Unit.File)
	}
	for _, e := range g.Edges() {
		if e.Loc.IsValid() {
			fileStats(e.Loc.File).Constraints++
		}
	}

	info := prog.Bounds()
	for _, di := range prog.Decls() {
		v := Variable{
			Name: di.Decl.Name,
			Kind: di.Decl.Kind.String(),
			Type: di.Decl.Type.String(),
			Loc:  di.Decl.Loc,
		}
		fs := fileStats(di.File)
		switch tv := di.Var.(type) {
		case *constraints.PVar:
			if !tv.IsPointer() {
				continue
			}
			for _, a := range tv.Atoms() {
				c := g.Assignment(a)
				v.Atoms = append(v.Atoms, int(a))
				v.Classes = append(v.Classes, c.String())
				fs.add(c)
				d.Summary.add(c)
			}
			v.Changed = tv.Changed(g)
			v.Checked = tv.OriginallyChecked
			if b, by, ok := info.Get(tv.BoundsKey); ok {
				v.Bounds = info.Describe(b)
				v.Heuristic = string(by)
			}
			if lead, ok := rc.Leader(tv.Outer()); ok {
				if cs := rc.Causes(lead); len(cs) > 0 {
					v.Root = cs[0].Reason
				}
			}
		case *constraints.FVar:
			ret, params := prog.ParamClasses(tv)
			if len(ret) == 0 && !anyPointer(params) {
				continue
			}
			v.Return = classNames(ret)
			for _, lvl := range params {
				v.Params = append(v.Params, classNames(lvl))
			}
			for _, c := range ret {
				fs.add(c)
				d.Summary.add(c)
			}
		}
		d.Variables = append(d.Variables, v)
	}

	for _, k := range info.Keys() {
		b, by, _ := info.Get(k)
		name := string(k)
		if pv, ok := info.Var(k); ok {
			name = pv.Name
		}
		d.Bounds = append(d.Bounds, Binding{Key: string(k), Name: name, Bounds: info.Describe(b), Heuristic: string(by)})
	}
	for h, n := range info.Stats() {
		d.Heuristics[string(h)] = n
	}

	for _, c := range rc.Direct() {
		d.Causes = append(d.Causes, Cause{Atom: g.AtomName(c.Atom), Reason: c.Reason, Loc: c.Loc})
	}
	d.Summary.DirectWild = len(d.Causes)
	d.Summary.IndirectWild = len(rc.IndirectWild())

	if cfg.edges {
		for _, e := range g.Edges() {
			d.Edges = append(d.Edges, Edge{Lhs: g.AtomName(e.Lhs), Rhs: g.AtomName(e.Rhs), Reason: e.Reason, Loc: e.Loc})
		}
	}

	for _, fs := range files {
		d.Files = append(d.Files, *fs)
	}
	sort.Slice(d.Files, func(i, j int) bool { return d.Files[i].File < d.Files[j].File })
	return d
}

func (s *Summary) add(c constraints.Class) {
	switch c {
	case constraints.Ptr:
		s.Ptr++
	case constraints.NTArr:
		s.NTArr++
	case constraints.Arr:
		s.Arr++
	case constraints.Wild:
		s.Wild++
	}
}

func classNames(cs []constraints.Class) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}

func anyPointer(params [][]constraints.Class) bool {
	for _, p := range params {
		if len(p) > 0 {
			return true
		}
	}
	return false
}
