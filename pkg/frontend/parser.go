// Package frontend parses C source with tree-sitter and lowers it to the
// typed arena AST the inference engine consumes. No preprocessing is done:
// directives are skipped and well-known library functions get built-in
// prototypes when a unit calls them undeclared. Checked C pointer types,
// checked arrays and bounds annotations are recognized.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"golang.org/x/sync/errgroup"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
)

// ErrEmptySource is returned for a file with no content.
var ErrEmptySource = errors.New("empty source")

// parserPool holds reusable tree-sitter parsers for C.
var parserPool = sync.Pool{
	New: func() interface{} {
		parser := sitter.NewParser()
		parser.SetLanguage(c.GetLanguage())
		return parser
	},
}

// Parse lowers src, the content of path, to a unit. Syntax errors are
// recorded on the unit rather than returned.
func Parse(ctx context.Context, path string, src []byte) (*ast.Unit, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("parsing %s: %w", path, ErrEmptySource)
	}
	parser := parserPool.Get().(*sitter.Parser)
	defer parserPool.Put(parser)

	text, marks := rewriteChecked(src)
	tree, err := parser.ParseCtx(ctx, nil, text)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	conv := newConverter(path, text, marks)
	conv.translationUnit(tree.RootNode())
	return conv.u, nil
}

// ParseFile reads and parses one file.
func ParseFile(ctx context.Context, path string) (*ast.Unit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return Parse(ctx, path, src)
}

// ParseFiles parses paths concurrently with at most workers parsers at a
// time; zero means no limit. Units are returned in the order of paths.
func ParseFiles(ctx context.Context, paths []string, workers int) ([]*ast.Unit, error) {
	units := make([]*ast.Unit, len(paths))
	eg, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for i, path := range paths {
		eg.Go(func() error {
			u, err := ParseFile(ctx, path)
			if err != nil {
				return err
			}
			units[i] = u
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return units, nil
}
