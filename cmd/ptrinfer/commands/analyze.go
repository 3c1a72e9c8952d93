package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2000jedi/checkedc-clang/internal/config"
	"github.com/2000jedi/checkedc-clang/internal/log"
	"github.com/2000jedi/checkedc-clang/internal/scanner"
	"github.com/2000jedi/checkedc-clang/pkg/frontend"
	"github.com/2000jedi/checkedc-clang/pkg/infer"
	"github.com/2000jedi/checkedc-clang/pkg/rootcause"
)

// analysis is a solved program together with its root-cause view.
type analysis struct {
	cfg   *config.Config
	files []string
	prog  *infer.Program
	rc    *rootcause.Analysis
}

// analyze runs the whole pipeline over the files and directories in
// paths: discovery, parsing, per-unit generation, merge, solve and
// root-cause analysis.
func analyze(cmd *cobra.Command, paths []string) (*analysis, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	files, err := scanner.Collect(paths)
	if err != nil {
		return nil, fmt.Errorf("scanning sources: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no C sources found in %v", paths)
	}
	logger.Debug("collected sources", "count", len(files))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	spinner := log.NewProgressSpinner(fmt.Sprintf("Parsing %d files...", len(files)))
	spinner.Start()
	defer spinner.Stop()

	units, err := frontend.ParseFiles(ctx, files, cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("parsing sources: %w", err)
	}

	spinner.Message("Solving constraints...")
	opts := append(cfg.InferOptions(), infer.WithLogger(logger))
	prog, err := infer.Analyze(ctx, units, opts...)
	if err != nil {
		return nil, err
	}

	return &analysis{
		cfg:   cfg,
		files: files,
		prog:  prog,
		rc:    rootcause.Compute(prog.Graph()),
	}, nil
}
