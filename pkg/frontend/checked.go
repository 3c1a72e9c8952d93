package frontend

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
)

// Checked C spellings are not C, so tree-sitter cannot parse them. Before
// parsing they are rewritten in place to plain C of the same length, which
// keeps every node offset and location pointing into the original file.
// The offsets of what was rewritten are kept so the converter can restore
// the checked kinds and bounds annotations.

var (
	checkedPtrRe = regexp.MustCompile(`\b(_Ptr|_Array_ptr|_Nt_array_ptr)[ \t]*<([^<>;{}]*)>`)
	checkedKwRe  = regexp.MustCompile(`\b(_Checked|_Nt_checked|_Unchecked)\b`)
	annotationRe = regexp.MustCompile(`:\s*(count|byte_count|bounds|itype)\s*\(`)
)

var pointerKinds = map[string]ast.Checkedness{
	"_Ptr":          ast.CheckedPtr,
	"_Array_ptr":    ast.CheckedArray,
	"_Nt_array_ptr": ast.CheckedNTArray,
}

// checkedMarks records the Checked C syntax removed from a source.
type checkedMarks struct {
	// pointers maps the offset of a synthesized '*' to its kind.
	pointers map[uint32]ast.Checkedness
	// arrays maps the offset of the '[' after _Checked or _Nt_checked.
	arrays map[uint32]ast.Checkedness
	// annotations maps the end offset of an annotated declarator.
	annotations map[uint32]*ast.BoundsDecl
}

// rewriteChecked returns src with Checked C syntax replaced by C. src is
// not modified.
func rewriteChecked(src []byte) ([]byte, *checkedMarks) {
	m := &checkedMarks{
		pointers:    make(map[uint32]ast.Checkedness),
		arrays:      make(map[uint32]ast.Checkedness),
		annotations: make(map[uint32]*ast.BoundsDecl),
	}
	if !bytes.Contains(src, []byte("_")) && !bytes.Contains(src, []byte(":")) {
		return src, m
	}
	out := bytes.Clone(src)
	m.stripAnnotations(out)
	m.stripKeywords(out)
	m.rewritePointers(out)
	return out, m
}

func (m *checkedMarks) stripAnnotations(out []byte) {
	for _, loc := range annotationRe.FindAllSubmatchIndex(out, -1) {
		colon, open := loc[0], loc[1]-1
		if out[colon] != ':' {
			// Blanked by an earlier annotation.
			continue
		}
		end := declaratorEnd(out, colon)
		if end < 0 || !declarationContext(out, end) {
			continue
		}
		closing := matchParen(out, open)
		if closing < 0 {
			continue
		}
		kind := string(out[loc[2]:loc[3]])
		if kind != "itype" {
			m.annotations[uint32(end)] = &ast.BoundsDecl{
				Kind: kind,
				Arg:  strings.TrimSpace(string(out[open+1 : closing])),
			}
		}
		blank(out, colon, closing+1)
	}
}

func (m *checkedMarks) stripKeywords(out []byte) {
	for _, loc := range checkedKwRe.FindAllIndex(out, -1) {
		kw := string(out[loc[0]:loc[1]])
		blank(out, loc[0], loc[1])
		if kw == "_Unchecked" {
			continue
		}
		i := loc[1]
		for i < len(out) && isSpace(out[i]) {
			i++
		}
		if i < len(out) && out[i] == '[' {
			kind := ast.CheckedArray
			if kw == "_Nt_checked" {
				kind = ast.CheckedNTArray
			}
			m.arrays[uint32(i)] = kind
		}
	}
}

// rewritePointers turns _Ptr<T> into "T*" padded with spaces, innermost
// first, so nested checked pointers become consecutive stars.
func (m *checkedMarks) rewritePointers(out []byte) {
	for {
		loc := checkedPtrRe.FindSubmatchIndex(out)
		if loc == nil {
			return
		}
		kind := pointerKinds[string(out[loc[2]:loc[3]])]
		inner := string(out[loc[4]:loc[5]])
		star := loc[0] + len(inner)
		shift(m.pointers, loc[4], loc[5], loc[4]-loc[0])
		shift(m.arrays, loc[4], loc[5], loc[4]-loc[0])
		copy(out[loc[0]:], inner)
		out[star] = '*'
		for i := star + 1; i < loc[1]; i++ {
			out[i] = ' '
		}
		m.pointers[uint32(star)] = kind
	}
}

// shift moves the marks in [from, to) by delta bytes to the left, following
// text copied out of a checked pointer's angle brackets.
func shift(marks map[uint32]ast.Checkedness, from, to, delta int) {
	moved := make(map[uint32]ast.Checkedness)
	for off, kind := range marks {
		if int(off) >= from && int(off) < to {
			moved[off-uint32(delta)] = kind
			delete(marks, off)
		}
	}
	for off, kind := range moved {
		marks[off] = kind
	}
}

// declaratorEnd returns the offset just past the declarator that precedes
// the colon at i, or -1 when no declarator ends there.
func declaratorEnd(out []byte, i int) int {
	j := i - 1
	for j >= 0 && isSpace(out[j]) {
		j--
	}
	if j < 0 || !(isIdent(out[j]) || out[j] == ')' || out[j] == ']') {
		return -1
	}
	return j + 1
}

// declarationContext reports whether the text ending at end reads as a
// declaration: a type and a declarator in the same statement, parameter
// or field, and not the middle of a conditional expression or a label.
func declarationContext(out []byte, end int) bool {
	depth := 0
	start := 0
scan:
	for j := end - 1; j >= 0; j-- {
		switch out[j] {
		case ')', ']':
			depth++
		case '(', '[':
			if depth == 0 {
				start = j + 1
				break scan
			}
			depth--
		case ';', '{', '}', ',':
			if depth == 0 {
				start = j + 1
				break scan
			}
		}
	}
	region := string(out[start:end])
	if strings.Contains(region, "?") {
		return false
	}
	fields := strings.Fields(region)
	if len(fields) < 2 {
		return false
	}
	switch fields[0] {
	case "case", "default", "return", "goto":
		return false
	}
	return true
}

func matchParen(out []byte, open int) int {
	depth := 0
	for i := open; i < len(out); i++ {
		switch out[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// blank overwrites out[from:to] with spaces, keeping line breaks.
func blank(out []byte, from, to int) {
	for i := from; i < to; i++ {
		if out[i] != '\n' && out[i] != '\r' {
			out[i] = ' '
		}
	}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isIdent(ch byte) bool {
	return ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9'
}
