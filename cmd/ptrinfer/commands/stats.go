package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2000jedi/checkedc-clang/pkg/report"
	"github.com/2000jedi/checkedc-clang/pkg/rootcause"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats <paths...>",
	Short: "Show per-file pointer statistics",
	Long: `Prints a table of constraint and class counts for each file, the number of
arrays bounded by each heuristic and the root causes that made the most
pointers Wild.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		a, err := analyze(cmd, args)
		if err != nil {
			return err
		}
		d := report.Build(a.prog, a.rc)

		if jsonOutput {
			out := struct {
				Summary    report.Summary          `json:"summary"`
				Files      []report.FileStats      `json:"files"`
				Heuristics map[string]int          `json:"heuristics"`
				RootCauses []rootcause.ReasonCount `json:"root_causes"`
			}{d.Summary, d.Files, d.Heuristics, d.RootCauses}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling output: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		return report.WriteStats(cmd.OutOrStdout(), d)
	},
}

func init() {
	statsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
