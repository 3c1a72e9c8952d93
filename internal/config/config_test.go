package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2000jedi/checkedc-clang/internal/log"
	"github.com/2000jedi/checkedc-clang/pkg/infer"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, []string{"malloc", "calloc", "realloc"}, cfg.Allocators)
	assert.Contains(t, cfg.SafeExterns, "free")
	assert.Equal(t, []string{"realloc"}, cfg.SkipArgFunctions)
	assert.False(t, cfg.HandleVarargs)
	assert.Equal(t, 80, cfg.SubsequenceThreshold)
	assert.Equal(t, FormatText, cfg.OutputFormat)
	assert.Zero(t, cfg.Workers)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"json output", func(c *Config) { c.OutputFormat = FormatJSON }, true},
		{"threshold of 100", func(c *Config) { c.SubsequenceThreshold = 100 }, true},
		{"no allocators", func(c *Config) { c.Allocators = nil }, false},
		{"zero threshold", func(c *Config) { c.SubsequenceThreshold = 0 }, false},
		{"threshold above 100", func(c *Config) { c.SubsequenceThreshold = 101 }, false},
		{"negative workers", func(c *Config) { c.Workers = -1 }, false},
		{"unknown format", func(c *Config) { c.OutputFormat = "xml" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `allocators: [xmalloc]
length_prefixes: [n]
subsequence_threshold: 60
workers: 4
output_format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"xmalloc"}, cfg.Allocators)
	assert.Equal(t, []string{"n"}, cfg.LengthPrefixes)
	assert.Equal(t, 60, cfg.SubsequenceThreshold)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, FormatJSON, cfg.OutputFormat)
	// Untouched keys keep their defaults.
	assert.Equal(t, []string{"realloc"}, cfg.SkipArgFunctions)
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("allocators: [unterminated"), 0644))
	_, err = LoadFromFile(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("workers: -2\n"), 0644))
	_, err = LoadFromFile(invalid)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PTRINFER_ALLOCATORS", "my_alloc, other_alloc ,")
	t.Setenv("PTRINFER_WORKERS", "3")
	t.Setenv("PTRINFER_HANDLE_VARARGS", "yes")
	t.Setenv("PTRINFER_OUTPUT_FORMAT", "MSGPACK")
	t.Setenv("PTRINFER_VERBOSE", "1")

	cfg := DefaultConfig()
	require.NoError(t, applyEnvOverrides(cfg))

	assert.Equal(t, []string{"my_alloc", "other_alloc"}, cfg.Allocators)
	assert.Equal(t, 3, cfg.Workers)
	assert.True(t, cfg.HandleVarargs)
	assert.Equal(t, FormatMsgpack, cfg.OutputFormat)
	assert.Equal(t, log.DebugLevel, cfg.LogLevel())
}

func TestApplyEnvOverridesBadInt(t *testing.T) {
	t.Setenv("PTRINFER_WORKERS", "many")
	err := applyEnvOverrides(DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadPriority(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(project)

	global := DefaultConfig()
	global.Workers = 2
	global.OutputFormat = FormatJSON
	require.NoError(t, global.Save(filepath.Join(home, ".ptrinfer", "config.yaml")))

	local := DefaultConfig()
	local.Workers = 5
	local.OutputFormat = FormatJSON
	require.NoError(t, local.Save(filepath.Join(project, ".ptrinfer", "config.yaml")))

	t.Setenv("PTRINFER_OUTPUT_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, FormatText, cfg.OutputFormat)
}

func TestConfigSaveCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "config.yaml")
	cfg := DefaultConfig()
	cfg.SafeExterns = []string{"free", "strlen"}
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.SafeExterns, loaded.SafeExterns)
}

func TestInferOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Allocators = []string{"xmalloc"}
	cfg.LengthSubstrings = []string{"cnt"}
	cfg.Workers = 7

	opts := infer.NewOptions(cfg.InferOptions()...)
	assert.Equal(t, []string{"xmalloc"}, opts.Allocators)
	assert.Equal(t, []string{"cnt"}, opts.Names.Substrings)
	assert.Equal(t, 80, opts.Names.SubseqThreshold)
	assert.Equal(t, 7, opts.Workers)
}
