package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/2000jedi/checkedc-clang/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize ptrinfer configuration interactively",
	Long: `Guides you through setting up ptrinfer: allocator and trusted external
functions, the array-length naming heuristics and the default output
format. The result is written as YAML to the global or project config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd)
	},
}

func runInit(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	cfg := config.DefaultConfig()

	// === SECTION 1: Functions ===
	allocators := strings.Join(cfg.Allocators, ", ")
	safeExterns := strings.Join(cfg.SafeExterns, ", ")
	skipArgs := strings.Join(cfg.SkipArgFunctions, ", ")
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Allocator functions").
				Description("Comma separated; their size argument types the result").
				Value(&allocators).
				Validate(func(s string) error {
					if len(splitCSV(s)) == 0 {
						return fmt.Errorf("at least one allocator is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Trusted external functions").
				Description("Comma separated; kept checked without a definition").
				Value(&safeExterns),
			huh.NewInput().
				Title("Functions whose arguments are not linked").
				Value(&skipArgs),
			huh.NewConfirm().
				Title("Force arguments passed through ... to Wild?").
				Value(&cfg.HandleVarargs),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Bounds heuristics ===
	prefixes := strings.Join(cfg.LengthPrefixes, ", ")
	substrings := strings.Join(cfg.LengthSubstrings, ", ")
	threshold := strconv.Itoa(cfg.SubsequenceThreshold)
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Length name prefixes").
				Placeholder("len, count, size").
				Value(&prefixes),
			huh.NewInput().
				Title("Length name substrings").
				Placeholder("length").
				Value(&substrings),
			huh.NewInput().
				Title("Common subsequence threshold (percent)").
				Value(&threshold).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n <= 0 || n > 100 {
						return fmt.Errorf("enter a number between 1 and 100")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 3: Output and location ===
	location := "project"
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default output format").
				Options(
					huh.NewOption("Text tables", config.FormatText),
					huh.NewOption("JSON", config.FormatJSON),
					huh.NewOption("MessagePack", config.FormatMsgpack),
				).
				Value(&cfg.OutputFormat),
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Project (./.ptrinfer/config.yaml)", "project"),
					huh.NewOption("Global (~/.ptrinfer/config.yaml)", "global"),
				).
				Value(&location),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectPath()
	if location == "global" {
		configPath = config.GlobalPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	cfg.Allocators = splitCSV(allocators)
	cfg.SafeExterns = splitCSV(safeExterns)
	cfg.SkipArgFunctions = splitCSV(skipArgs)
	cfg.LengthPrefixes = splitCSV(prefixes)
	cfg.LengthSubstrings = splitCSV(substrings)
	cfg.SubsequenceThreshold, _ = strconv.Atoi(strings.TrimSpace(threshold))

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Fprintln(out, "\n=== Configuration Preview ===")
	fmt.Fprintf(out, "Config path: %s\n", configPath)
	fmt.Fprintf(out, "Allocators: %s\n", strings.Join(cfg.Allocators, ", "))
	fmt.Fprintf(out, "Trusted externs: %s\n", strings.Join(cfg.SafeExterns, ", "))
	fmt.Fprintf(out, "Length prefixes: %s\n", strings.Join(cfg.LengthPrefixes, ", "))
	fmt.Fprintf(out, "Output format: %s\n", cfg.OutputFormat)
	fmt.Fprintln(out, "================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(out, "Configuration saved to: %s\n", configPath)
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
