package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFormat(t *testing.T) {
	log := NewWithOptions("obsplan-test", "1.0.0", Options{JSONFormat: true, Level: "INFO"})
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.Infof("ingested TLE for norad %d", 28485)

	line := strings.TrimRight(buf.String(), "\n")
	require.NotEmpty(t, line)
	assert.NotContains(t, line, "\n", "one JSON object per line")

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "obsplan-test", entry.Service)
	assert.Equal(t, "ingested TLE for norad 28485", entry.Message)
	assert.False(t, entry.Time.IsZero())
}

func TestJSONFormatWithFields(t *testing.T) {
	log := NewWithOptions("obsplan-test", "1.0.0", Options{JSONFormat: true, Level: "INFO"})
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.WithFields(map[string]string{
		"http.method":     "GET",
		"http.url":        "/healthz",
		"http.request_id": "abc-123",
	}).Info("access")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "access", entry.Message)
	assert.Equal(t, "GET", entry.Fields["http.method"])
	assert.Equal(t, "/healthz", entry.Fields["http.url"])
	assert.Equal(t, "abc-123", entry.Fields["http.request_id"])
}

func TestLevelFiltering(t *testing.T) {
	log := NewWithOptions("obsplan-test", "1.0.0", Options{Level: "WARN"})
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.Debugf("hidden")
	log.Infof("hidden too")
	assert.Empty(t, buf.String())

	log.Warnf("visible")
	log.Errorf("visible too")
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "visible")
}

func TestConsoleFormat(t *testing.T) {
	log := New("obsplan-test", "1.0.0")
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.Infof("hello")

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "obsplan-test")
	assert.Contains(t, out, "hello")
	assert.NotContains(t, out, "\x1b[", "colors disabled for non-terminal output")
}
