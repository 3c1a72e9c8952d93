package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2000jedi/checkedc-clang/internal/config"
	"github.com/2000jedi/checkedc-clang/internal/log"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "ptrinfer",
	Short: "ptrinfer - checked pointer inference for C",
	Long: `ptrinfer classifies every pointer of a C program as a safe single-object
pointer (Ptr), a null-terminated array (NTArr), a bounded array (Arr) or an
unchecked pointer (Wild), infers array bounds and explains why pointers
ended up Wild.

Commands:
  infer       Print the inferred class and bounds of each declaration
  stats       Per-file class counts, bounds heuristics and root causes
  dump        Write the solved state as JSON or msgpack
  explain     Show why the declarations with a given name are Wild
  init        Create a configuration file interactively

Use "ptrinfer [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (default: project then global config)")
	RootCmd.PersistentFlags().BoolP("verbose", "V", false, "Verbose logging")
	RootCmd.PersistentFlags().Int("workers", -1, "Parallel units (0 = one per unit)")
	RootCmd.PersistentFlags().Bool("varargs", false, "Force arguments passed through ... to Wild")

	RootCmd.AddCommand(inferCmd)
	RootCmd.AddCommand(statsCmd)
	RootCmd.AddCommand(dumpCmd)
	RootCmd.AddCommand(explainCmd)
	RootCmd.AddCommand(initCmd)
}

// loadConfig reads the configuration and applies the persistent flag
// overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if v, _ := cmd.Flags().GetBool("verbose"); v {
		cfg.Verbose = true
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("varargs") {
		cfg.HandleVarargs, _ = cmd.Flags().GetBool("varargs")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) log.Logger {
	return log.New(log.LoggerConfig{
		Level:      cfg.LogLevel(),
		JSONOutput: cfg.JSONLogs,
	})
}
