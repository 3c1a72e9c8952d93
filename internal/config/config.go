package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/2000jedi/checkedc-clang/internal/log"
	"github.com/2000jedi/checkedc-clang/pkg/bounds"
	"github.com/2000jedi/checkedc-clang/pkg/infer"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Output formats accepted by output_format.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Config holds all configuration for ptrinfer
type Config struct {
	// Functions whose size argument types the returned pointer.
	Allocators []string `yaml:"allocators" env:"PTRINFER_ALLOCATORS"`
	// External functions trusted without a definition.
	SafeExterns []string `yaml:"safe_externs" env:"PTRINFER_SAFE_EXTERNS"`
	// Callees whose arguments are not linked to their parameters.
	SkipArgFunctions []string `yaml:"skip_arg_functions" env:"PTRINFER_SKIP_ARG_FUNCTIONS"`
	HandleVarargs    bool     `yaml:"handle_varargs" env:"PTRINFER_HANDLE_VARARGS"`

	// Length-name heuristics
	LengthPrefixes       []string `yaml:"length_prefixes" env:"PTRINFER_LENGTH_PREFIXES"`
	LengthSubstrings     []string `yaml:"length_substrings" env:"PTRINFER_LENGTH_SUBSTRINGS"`
	SubsequenceThreshold int      `yaml:"subsequence_threshold" env:"PTRINFER_SUBSEQUENCE_THRESHOLD"`

	// Workers bounds parsing and per-unit generation; 0 uses one per unit.
	Workers      int    `yaml:"workers" env:"PTRINFER_WORKERS"`
	OutputFormat string `yaml:"output_format" env:"PTRINFER_OUTPUT_FORMAT"`

	// Logging
	Verbose  bool `yaml:"verbose" env:"PTRINFER_VERBOSE"`
	JSONLogs bool `yaml:"json_logs" env:"PTRINFER_JSON_LOGS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	opts := infer.DefaultOptions()
	return &Config{
		Allocators:           opts.Allocators,
		SafeExterns:          opts.SafeExterns,
		SkipArgFunctions:     opts.SkipArgFunctions,
		HandleVarargs:        opts.HandleVarargs,
		LengthPrefixes:       opts.Names.Prefixes,
		LengthSubstrings:     opts.Names.Substrings,
		SubsequenceThreshold: opts.Names.SubseqThreshold,
		Workers:              0,
		OutputFormat:         FormatText,
	}
}

// GlobalPath returns the global config file path (~/.ptrinfer/config.yaml)
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ptrinfer", "config.yaml")
	}
	return filepath.Join(home, ".ptrinfer", "config.yaml")
}

// ProjectPath returns the project-level config file path (./.ptrinfer/config.yaml)
func ProjectPath() string {
	return filepath.Join(".ptrinfer", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.ptrinfer/config.yaml)
// 3. Global config (~/.ptrinfer/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()
	for _, path := range []string{GlobalPath(), ProjectPath()} {
		if err := mergeFile(cfg, path, true); err != nil {
			return nil, err
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := mergeFile(cfg, path, false); err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile unmarshals path over cfg. Missing files are skipped when
// optional is set.
func mergeFile(cfg *Config, path string, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to the specified YAML file path,
// creating parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies PTRINFER_* environment variables. Lists are
// comma separated.
func applyEnvOverrides(cfg *Config) error {
	lists := map[string]*[]string{
		"PTRINFER_ALLOCATORS":         &cfg.Allocators,
		"PTRINFER_SAFE_EXTERNS":       &cfg.SafeExterns,
		"PTRINFER_SKIP_ARG_FUNCTIONS": &cfg.SkipArgFunctions,
		"PTRINFER_LENGTH_PREFIXES":    &cfg.LengthPrefixes,
		"PTRINFER_LENGTH_SUBSTRINGS":  &cfg.LengthSubstrings,
	}
	for key, dst := range lists {
		if v, ok := os.LookupEnv(key); ok {
			*dst = splitList(v)
		}
	}

	ints := map[string]*int{
		"PTRINFER_SUBSEQUENCE_THRESHOLD": &cfg.SubsequenceThreshold,
		"PTRINFER_WORKERS":               &cfg.Workers,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"PTRINFER_HANDLE_VARARGS": &cfg.HandleVarargs,
		"PTRINFER_VERBOSE":        &cfg.Verbose,
		"PTRINFER_JSON_LOGS":      &cfg.JSONLogs,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			*dst = parseBool(v)
		}
	}

	if v := os.Getenv("PTRINFER_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = strings.ToLower(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if len(c.Allocators) == 0 {
		return fmt.Errorf("%w: allocators must not be empty", ErrInvalid)
	}
	if c.SubsequenceThreshold <= 0 || c.SubsequenceThreshold > 100 {
		return fmt.Errorf("%w: subsequence_threshold must be between 1 and 100", ErrInvalid)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative", ErrInvalid)
	}
	switch c.OutputFormat {
	case FormatText, FormatJSON, FormatMsgpack:
	default:
		return fmt.Errorf("%w: unknown output_format %q (must be text, json or msgpack)", ErrInvalid, c.OutputFormat)
	}
	return nil
}

// LogLevel returns the level implied by Verbose.
func (c *Config) LogLevel() log.Level {
	if c.Verbose {
		return log.DebugLevel
	}
	return log.InfoLevel
}

// InferOptions converts the configuration into analysis options.
func (c *Config) InferOptions() []infer.Option {
	return []infer.Option{
		infer.WithAllocators(c.Allocators...),
		infer.WithSafeExterns(c.SafeExterns...),
		infer.WithSkipArgFunctions(c.SkipArgFunctions...),
		infer.WithVarargs(c.HandleVarargs),
		infer.WithNameConfig(bounds.NameConfig{
			Prefixes:        c.LengthPrefixes,
			Substrings:      c.LengthSubstrings,
			SubseqThreshold: c.SubsequenceThreshold,
		}),
		infer.WithWorkers(c.Workers),
	}
}
