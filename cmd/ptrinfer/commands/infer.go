package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2000jedi/checkedc-clang/pkg/report"
)

// inferCmd represents the infer command
var inferCmd = &cobra.Command{
	Use:   "infer <paths...>",
	Short: "Infer pointer classes and array bounds",
	Long: `Analyses the given C files and directories as one program and prints
every pointer declaration with the class of each of its levels, its
inferred bounds and, for Wild pointers, the root cause.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		diags, _ := cmd.Flags().GetBool("diagnostics")

		a, err := analyze(cmd, args)
		if err != nil {
			return err
		}
		d := report.Build(a.prog, a.rc)
		out := cmd.OutOrStdout()

		if jsonOutput || a.cfg.OutputFormat == "json" {
			data, err := json.MarshalIndent(d.Variables, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling output: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		if err := writeVariables(out, d.Variables); err != nil {
			return err
		}
		if diags {
			return report.WriteDiagnostics(cmd.ErrOrStderr(), d.Diagnostics)
		}
		return nil
	},
}

func init() {
	inferCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	inferCmd.Flags().BoolP("diagnostics", "d", false, "Print diagnostics to stderr")
}

// writeVariables prints one line per declaration:
//
//	file:line:col name: Ptr, Arr bounds=count(n) [wild: reason]
func writeVariables(w io.Writer, vars []report.Variable) error {
	for _, v := range vars {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s %s: ", v.Loc, v.Name)
		if v.Kind == "func" {
			fmt.Fprintf(&sb, "returns %s", levels(v.Return))
			for i, p := range v.Params {
				if len(p) > 0 {
					fmt.Fprintf(&sb, ", param %d %s", i, levels(p))
				}
			}
		} else {
			sb.WriteString(levels(v.Classes))
		}
		if v.Bounds != "" {
			fmt.Fprintf(&sb, " bounds=%s", v.Bounds)
		}
		if v.Root != "" {
			fmt.Fprintf(&sb, " [wild: %s]", v.Root)
		}
		if v.Checked {
			sb.WriteString(" (declared checked)")
		}
		if _, err := fmt.Fprintln(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

func levels(cs []string) string {
	if len(cs) == 0 {
		return "-"
	}
	return strings.Join(cs, ", ")
}
