package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: WarnLevel, Stderr: &buf})

	l.Info("dropped")
	l.Warn("kept", "file", "a.c")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "WARN: kept file=a.c")

	buf.Reset()
	l.SetLevel(DebugLevel)
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "DEBUG: now visible")
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: InfoLevel, Stderr: &buf})
	l.SetJSONOutput(true)
	l.Error("solve failed", "atoms", 12)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "solve failed", entry["message"])
	assert.Equal(t, "12", entry["atoms"])
}

func TestFormatMessage(t *testing.T) {
	assert.Equal(t, "plain", formatMessage("plain"))
	assert.Equal(t, "msg k=v", formatMessage("msg", "k", "v"))
	assert.Equal(t, "msg k=v value=7", formatMessage("msg", "k", "v", 7))
}

func TestWithSharesOutput(t *testing.T) {
	var buf bytes.Buffer
	parent := New(LoggerConfig{Level: InfoLevel, Stderr: &buf})
	child := parent.With("file", "a.c")
	parent.SetLevel(ErrorLevel)

	child.Warn("hidden")
	child.Error("unsupported expression", "kind", "Asm")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "unsupported expression file=a.c kind=Asm")
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("nothing")
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}

func TestSpinnerOnNonTerminal(t *testing.T) {
	s := NewProgressSpinner("parsing")
	s.enabled = false
	s.out = &bytes.Buffer{}
	s.Start()
	s.Message("solving")
	s.Stop()
	s.Stop()
}
