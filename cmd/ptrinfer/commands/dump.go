package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2000jedi/checkedc-clang/pkg/report"
)

// dumpCmd represents the dump command
var dumpCmd = &cobra.Command{
	Use:   "dump <paths...>",
	Short: "Write the solved analysis state",
	Long: `Serializes the solved program: class of every atom, bounds, heuristic
counts, diagnostics and root causes. With --edges the full constraint
graph is included.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		edges, _ := cmd.Flags().GetBool("edges")

		a, err := analyze(cmd, args)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("format") && a.cfg.OutputFormat != "text" {
			formatName = a.cfg.OutputFormat
		}
		format, err := report.ParseFormat(formatName)
		if err != nil {
			return err
		}

		var opts []report.BuildOption
		if edges {
			opts = append(opts, report.WithEdges())
		}
		d := report.Build(a.prog, a.rc, opts...)

		if output == "" || output == "-" {
			return report.Write(cmd.OutOrStdout(), d, format)
		}
		if err := report.WriteFile(output, d, format); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s dump of %d files to %s\n", format, len(a.files), output)
		return nil
	},
}

func init() {
	dumpCmd.Flags().StringP("format", "f", "json", "Output format (json or msgpack)")
	dumpCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	dumpCmd.Flags().Bool("edges", false, "Include every constraint edge")
}
