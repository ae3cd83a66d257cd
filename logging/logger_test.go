package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		out = append(out, m)
	}
	return out
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "json", Output: &buf, Component: "gigachat"})

	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("kept", "k", 1)

	entries := lines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0]["msg"])
	assert.Equal(t, "gigachat", entries[0]["component"])
	assert.EqualValues(t, 1, entries[0]["k"])
}

func TestWith_BindsAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&LoggerConfig{Level: LogLevelDebug, Output: &buf})

	With(base, "conversation_id", "c1").Info("hello")
	entries := lines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "c1", entries[0]["conversation_id"])

	assert.Equal(t, NoOpLogger{}, With(nil))
	assert.Equal(t, NoOpLogger{}, With(NoOpLogger{}, "a", 1))
}

type recorder struct{ args [][]any }

func (r *recorder) Debug(_ string, args ...any) { r.args = append(r.args, args) }
func (r *recorder) Info(_ string, args ...any)  { r.args = append(r.args, args) }
func (r *recorder) Warn(_ string, args ...any)  { r.args = append(r.args, args) }
func (r *recorder) Error(_ string, args ...any) { r.args = append(r.args, args) }

func TestWith_CustomLogger(t *testing.T) {
	rec := &recorder{}
	With(rec, "a", 1).Warn("x", "b", 2)
	require.Len(t, rec.args, 1)
	assert.Equal(t, []any{"a", 1, "b", 2}, rec.args[0])
}

func TestLogHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Output: &buf})

	LogCompletion(l, "GigaChat", 12, time.Second, nil)
	LogAuthentication(l, "https://auth", time.Millisecond, errors.New("boom"))

	entries := lines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "completion finished", entries[0]["msg"])
	assert.EqualValues(t, 12, entries[0]["token_count"])
	assert.Equal(t, "ERROR", entries[1]["level"])
	assert.Equal(t, "boom", entries[1]["error"])
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelInfo, ParseLevel("nope"))
}
