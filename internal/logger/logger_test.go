package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestLogger(t *testing.T, cfg *LoggingConfig) (*CentralLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cl, err := NewCentralLoggerWithWriter(cfg, &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })
	return cl, &buf
}

func TestModuleLevelFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		level     string
		logFunc   func(Logger)
		wantEntry bool
	}{
		{"debug suppressed at info", "info", func(l Logger) { l.Debug("hidden") }, false},
		{"info passes at info", "info", func(l Logger) { l.Info("shown") }, true},
		{"trace passes at trace", "trace", func(l Logger) { l.Trace("shown") }, true},
		{"warn suppressed at error", "error", func(l Logger) { l.Warn("hidden") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &LoggingConfig{
				DefaultLevel: tt.level,
				Console:      &ConsoleOutput{Enabled: true, Level: "trace"},
			}
			cl, buf := newTestLogger(t, cfg)
			tt.logFunc(cl.Module("training"))

			if tt.wantEntry {
				assert.Contains(t, buf.String(), "module=training")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestModuleLevelOverride(t *testing.T) {
	t.Parallel()

	cfg := &LoggingConfig{
		DefaultLevel: "info",
		Console:      &ConsoleOutput{Enabled: true, Level: "trace"},
		ModuleLevels: map[string]string{"feed": "debug"},
	}
	cl, buf := newTestLogger(t, cfg)

	cl.Module("feed").Debug("loaded file")
	cl.Module("scoring").Debug("not shown")

	out := buf.String()
	assert.Contains(t, out, "loaded file")
	assert.NotContains(t, out, "not shown")
}

func TestWithFieldsAndTraceID(t *testing.T) {
	t.Parallel()

	cfg := &LoggingConfig{Console: &ConsoleOutput{Enabled: true, Level: "info"}}
	cl, buf := newTestLogger(t, cfg)

	ctx := WithTraceID(context.Background(), "run-42")
	log := cl.Module("training").With(Int("split", 1)).WithContext(ctx)
	log.Info("epoch finished", Float64("seld", 0.123456), Duration("elapsed", 1500*time.Millisecond))

	out := buf.String()
	assert.Contains(t, out, "split=1")
	assert.Contains(t, out, "trace_id=run-42")
	assert.Contains(t, out, "seld=0.123")
	assert.Contains(t, out, "elapsed=1.5s")
}

func TestSubModuleName(t *testing.T) {
	t.Parallel()

	cfg := &LoggingConfig{Console: &ConsoleOutput{Enabled: true, Level: "info"}}
	cl, buf := newTestLogger(t, cfg)

	cl.Module("training").Module("runner").Info("split started")
	assert.Contains(t, buf.String(), "module=training.runner")
}

func TestFileOutputIsJSON(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "nested", "seld.log")
	cfg := &LoggingConfig{
		Console:    &ConsoleOutput{Enabled: false},
		FileOutput: &FileOutput{Enabled: true, Path: logPath, Level: "debug"},
	}
	cl, _ := newTestLogger(t, cfg)

	cl.Module("model").Debug("checkpoint saved", String("path", "models/x.ckpt"))
	require.NoError(t, cl.Close())

	content, err := os.ReadFile(logPath) //nolint:gosec // test file path from t.TempDir()
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry))
	assert.Equal(t, "checkpoint saved", entry["msg"])
	assert.Equal(t, "model", entry["module"])
	assert.Equal(t, "models/x.ckpt", entry["path"])
}

func TestFanoutRespectsPerOutputLevel(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "seld.log")
	cfg := &LoggingConfig{
		DefaultLevel: "debug",
		Console:      &ConsoleOutput{Enabled: true, Level: "info"},
		FileOutput:   &FileOutput{Enabled: true, Path: logPath, Level: "debug"},
	}
	cl, buf := newTestLogger(t, cfg)

	cl.Module("feed").Debug("only in file")
	require.NoError(t, cl.Flush())

	assert.NotContains(t, buf.String(), "only in file")
	content, err := os.ReadFile(logPath) //nolint:gosec // test file path from t.TempDir()
	require.NoError(t, err)
	assert.Contains(t, string(content), "only in file")
}

func TestInvalidTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLoggerWithWriter(&LoggingConfig{Timezone: "Mars/Olympus"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestBufferedFileWriterCloseStopsFlushLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	logPath := filepath.Join(t.TempDir(), "buffered.log")
	w, err := NewBufferedFileWriter(logPath, WithFlushInterval(10*time.Millisecond))
	require.NoError(t, err)

	_, err = w.Write([]byte("line\n"))
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close must be idempotent")

	_, err = w.Write([]byte("late\n"))
	require.Error(t, err)

	content, err := os.ReadFile(logPath) //nolint:gosec // test file path from t.TempDir()
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(content))
}
