package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/2000jedi/checkedc-clang/pkg/ast"
	"github.com/2000jedi/checkedc-clang/pkg/constraints"
	"github.com/2000jedi/checkedc-clang/pkg/rootcause"
)

// ExplainStep is one edge on the way to a direct cause.
type ExplainStep struct {
	From   string       `json:"from"`
	To     string       `json:"to"`
	Reason string       `json:"reason"`
	Loc    ast.Location `json:"loc"`
}

// ExplainLevel is the explanation of one pointer level.
type ExplainLevel struct {
	Atom   string        `json:"atom"`
	Class  string        `json:"class"`
	Direct []string      `json:"direct,omitempty"`
	Path   []ExplainStep `json:"path,omitempty"`
}

// ExplainEntry groups the levels of one declaration.
type ExplainEntry struct {
	Name   string         `json:"name"`
	Kind   string         `json:"kind"`
	Loc    ast.Location   `json:"loc"`
	Levels []ExplainLevel `json:"levels"`
}

// explainCmd represents the explain command
var explainCmd = &cobra.Command{
	Use:   "explain <paths...> --name NAME",
	Short: "Explain why a declaration is Wild",
	Long: `For every declaration called NAME, prints the class of each pointer level.
Wild levels are followed by their direct reasons and the chain of
constraints that carried Wild to them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if name == "" {
			return fmt.Errorf("--name is required")
		}

		a, err := analyze(cmd, args)
		if err != nil {
			return err
		}
		entries := explainName(a, name)
		if len(entries) == 0 {
			return fmt.Errorf("no declaration named %q", name)
		}

		if jsonOutput {
			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling output: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		return writeExplain(cmd.OutOrStdout(), entries)
	},
}

func init() {
	explainCmd.Flags().StringP("name", "n", "", "Declaration name to explain")
	explainCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}

func explainName(a *analysis, name string) []ExplainEntry {
	g := a.prog.Graph()
	var out []ExplainEntry
	for _, di := range a.prog.Lookup(name) {
		e := ExplainEntry{Name: name, Kind: di.Decl.Kind.String(), Loc: di.Decl.Loc}
		for _, atom := range declAtoms(di.Var) {
			e.Levels = append(e.Levels, explainAtom(g, a.rc, atom))
		}
		if len(e.Levels) > 0 {
			out = append(out, e)
		}
	}
	return out
}

// declAtoms lists the atoms of a variable, or of a function's return and
// parameters.
func declAtoms(v constraints.Var) []constraints.AtomID {
	switch tv := v.(type) {
	case *constraints.PVar:
		return tv.Atoms()
	case *constraints.FVar:
		atoms := append([]constraints.AtomID(nil), tv.Ret().Atoms()...)
		for i := 0; i < tv.NumParams(); i++ {
			for _, pv := range tv.Param(i) {
				atoms = append(atoms, pv.Atoms()...)
			}
		}
		return atoms
	}
	return nil
}

func explainAtom(g *constraints.Graph, rc *rootcause.Analysis, atom constraints.AtomID) ExplainLevel {
	lvl := ExplainLevel{Atom: g.AtomName(atom), Class: g.Assignment(atom).String()}
	if !rc.IsWild(atom) {
		return lvl
	}
	if lead, ok := rc.Leader(atom); ok {
		for _, c := range rc.Causes(lead) {
			lvl.Direct = append(lvl.Direct, fmt.Sprintf("%s (%s)", c.Reason, c.Loc))
		}
	}
	for _, s := range rc.Explain(atom) {
		lvl.Path = append(lvl.Path, ExplainStep{
			From:   g.AtomName(s.From),
			To:     g.AtomName(s.To),
			Reason: s.Reason,
			Loc:    s.Loc,
		})
	}
	return lvl
}

func writeExplain(w io.Writer, entries []ExplainEntry) error {
	for _, e := range entries {
		fmt.Fprintf(w, "%s %s (%s)\n", e.Loc, e.Name, e.Kind)
		for _, lvl := range e.Levels {
			fmt.Fprintf(w, "  %s: %s\n", lvl.Atom, lvl.Class)
			for _, d := range lvl.Direct {
				fmt.Fprintf(w, "    root cause: %s\n", d)
			}
			for i, s := range lvl.Path {
				fmt.Fprintf(w, "    %d. %s -> %s: %s (%s)\n", i+1, s.From, s.To, s.Reason, s.Loc)
			}
		}
	}
	return nil
}
