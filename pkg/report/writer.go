package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/2000jedi/checkedc-clang/pkg/infer"
)

// Format is an output encoding for a dump.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
	FormatText    Format = "text"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatMsgpack, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// Write encodes d to w in format f.
func Write(w io.Writer, d *Dump, f Format) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, d)
	case FormatMsgpack:
		return WriteMsgpack(w, d)
	case FormatText:
		return WriteStats(w, d)
	default:
		return fmt.Errorf("unsupported format: %s", f)
	}
}

// WriteFile encodes d to the named file.
func WriteFile(path string, d *Dump, f Format) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()
	if err := Write(file, d, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes d as indented JSON.
func WriteJSON(w io.Writer, d *Dump) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dump: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// WriteMsgpack writes d as msgpack.
func WriteMsgpack(w io.Writer, d *Dump) error {
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	return enc.Encode(d)
}

// ReadMsgpack decodes a dump written by WriteMsgpack.
func ReadMsgpack(r io.Reader) (*Dump, error) {
	var d Dump
	if err := msgpack.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode dump: %w", err)
	}
	return &d, nil
}

// ReadFile decodes a dump file, choosing the decoder by extension.
func ReadFile(path string) (*Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if strings.HasSuffix(path, ".json") {
		var d Dump
		if err := json.NewDecoder(f).Decode(&d); err != nil {
			return nil, fmt.Errorf("failed to decode dump: %w", err)
		}
		return &d, nil
	}
	return ReadMsgpack(f)
}

var headerStyle = lipgloss.NewStyle().Bold(true)

// WriteStats renders the per-file class counts, the heuristic counts and
// the leading root causes as text tables.
func WriteStats(w io.Writer, d *Dump) error {
	files := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle()
		}).
		Headers("FILE", "CONSTRAINTS", "PTR", "NTARR", "ARR", "WILD")
	for _, fs := range d.Files {
		files.Row(fs.File, itoa(fs.Constraints), itoa(fs.Ptr), itoa(fs.NTArr), itoa(fs.Arr), itoa(fs.Wild))
	}
	s := d.Summary
	files.Row("total", itoa(s.Constraints), itoa(s.Ptr), itoa(s.NTArr), itoa(s.Arr), itoa(s.Wild))
	if _, err := fmt.Fprintln(w, files.Render()); err != nil {
		return err
	}

	if len(d.Heuristics) > 0 {
		names := make([]string, 0, len(d.Heuristics))
		for h := range d.Heuristics {
			names = append(names, h)
		}
		sort.Strings(names)
		heur := table.New().Border(lipgloss.NormalBorder()).Headers("HEURISTIC", "ARRAYS")
		for _, h := range names {
			heur.Row(h, itoa(d.Heuristics[h]))
		}
		if _, err := fmt.Fprintln(w, heur.Render()); err != nil {
			return err
		}
	}

	if len(d.RootCauses) > 0 {
		rc := table.New().Border(lipgloss.NormalBorder()).Headers("ROOT CAUSE", "DIRECT", "AFFECTED")
		for _, c := range d.RootCauses {
			rc.Row(c.Reason, itoa(c.Direct), itoa(c.Affected))
		}
		if _, err := fmt.Fprintln(w, rc.Render()); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d atoms, %d directly wild, %d indirectly wild\n",
		s.Atoms, s.DirectWild, s.IndirectWild)
	return err
}

// WriteDiagnostics prints one diagnostic per line.
func WriteDiagnostics(w io.Writer, diags []infer.Diagnostic) error {
	for _, d := range diags {
		if _, err := fmt.Fprintln(w, d.String()); err != nil {
			return err
		}
	}
	return nil
}

func itoa(n int) string { return strconv.Itoa(n) }
