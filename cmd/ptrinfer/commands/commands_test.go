package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2000jedi/checkedc-clang/pkg/report"
)

const copySource = `
void copy(char *dst, const char *src) {
	strcpy(dst, src);
}

int sum(int *xs, int n) {
	int s = 0;
	for (int i = 0; i < n; i++)
		s += xs[i];
	return s;
}
`

// workspace writes a small C project into a fresh directory that also
// serves as HOME and working directory, so no user config leaks in.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("NO_COLOR", "1")
	t.Chdir(dir)
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "copy.c"), []byte(copySource), 0o644))
	return dir
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	RootCmd.SetOut(&stdout)
	RootCmd.SetErr(&stderr)
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestInferCommand(t *testing.T) {
	dir := workspace(t)
	out, _, err := run(t, "infer", filepath.Join(dir, "src"))
	require.NoError(t, err)

	assert.Contains(t, out, "dst: WILD [wild: Parameter 0 of external function strcpy]")
	assert.Contains(t, out, "xs: ARR bounds=count(n)")
	assert.Contains(t, out, "sum: returns -, param 0 ARR")
}

func TestStatsCommand(t *testing.T) {
	dir := workspace(t)
	out, _, err := run(t, "stats", "--json", filepath.Join(dir, "src"))
	require.NoError(t, err)

	var got struct {
		Summary    report.Summary `json:"summary"`
		Files      []report.FileStats
		Heuristics map[string]int `json:"heuristics"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1, got.Summary.Units)
	assert.Positive(t, got.Summary.Wild)
	assert.Equal(t, 1, got.Heuristics["neighbour_param"])
	require.Len(t, got.Files, 1)
}

func TestDumpCommand(t *testing.T) {
	dir := workspace(t)
	path := filepath.Join(dir, "out.msgpack")
	_, stderr, err := run(t, "dump", "--format", "msgpack", "--output", path, "--edges", filepath.Join(dir, "src"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "Wrote msgpack dump of 1 files")

	d, err := report.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, d.Edges)
	assert.NotEmpty(t, d.Causes)
}

func TestExplainCommand(t *testing.T) {
	dir := workspace(t)
	out, _, err := run(t, "explain", "--name", "dst", filepath.Join(dir, "src"))
	require.NoError(t, err)
	assert.Contains(t, out, "dst (param)")
	assert.Contains(t, out, "root cause: Parameter 0 of external function strcpy")
	assert.Contains(t, out, "Argument 0 of call to strcpy")

	_, _, err = run(t, "explain", "--name", "nothing", filepath.Join(dir, "src"))
	assert.ErrorContains(t, err, `no declaration named "nothing"`)
}

func TestAnalyzeRejectsEmptyInput(t *testing.T) {
	dir := workspace(t)
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.MkdirAll(empty, 0o755))

	_, _, err := run(t, "infer", empty)
	assert.ErrorContains(t, err, "no C sources found")
}
