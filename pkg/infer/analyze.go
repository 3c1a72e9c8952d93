package infer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
)

// Analyze generates constraints for every unit concurrently, then merges,
// links and solves them on the calling goroutine. Units are merged in the
// order given, so the result does not depend on scheduling.
func Analyze(ctx context.Context, units []*ast.Unit, opts ...Option) (*Program, error) {
	o := NewOptions(opts...)
	protos := CollectPrototypes(units)

	results := make([]*UnitResult, len(units))
	eg, gctx := errgroup.WithContext(ctx)
	if o.Workers > 0 {
		eg.SetLimit(o.Workers)
	}
	for i, u := range units {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = Generate(u, protos, o)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("generating constraints: %w", err)
	}

	prog := NewProgram(o)
	for _, r := range results {
		prog.Merge(r)
	}
	prog.Link()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("linking program: %w", err)
	}
	prog.Solve()
	o.Logger.Info("analysis complete", "units", len(units),
		"atoms", prog.Graph().NumUnknowns(), "constraints", prog.Graph().NumConstraints())
	return prog, nil
}
