package infer

import (
	"fmt"
	"sort"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
)

// Severity grades a diagnostic. Diagnostics never stop the analysis.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityNote    Severity = "note"
)

// DiagKind classifies a diagnostic.
type DiagKind string

const (
	DiagWild        DiagKind = "wild"
	DiagUnbounded   DiagKind = "unbounded"
	DiagUnsupported DiagKind = "unsupported"
	DiagAllocator   DiagKind = "allocator"
	DiagSyntax      DiagKind = "syntax"
)

// Diagnostic is one advisory message about the analysed program.
type Diagnostic struct {
	Severity Severity     `json:"severity" msgpack:"severity"`
	Kind     DiagKind     `json:"kind" msgpack:"kind"`
	Message  string       `json:"message" msgpack:"message"`
	Loc      ast.Location `json:"loc" msgpack:"loc"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Loc, d.Severity, d.Message)
}

// SortDiagnostics orders diagnostics by location, then message.
func SortDiagnostics(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i].Loc, ds[j].Loc
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Col != b.Col {
			return a.Col < b.Col
		}
		return ds[i].Message < ds[j].Message
	})
}
