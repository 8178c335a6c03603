package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Setenv("CAUSES_HOME", t.TempDir())

	logger := NewLogger("test-component")
	if logger == nil {
		t.Fatal("Expected logger to be created")
	}
	if logger.Data["component"] != "test-component" {
		t.Errorf("Expected component to be 'test-component', got %v", logger.Data["component"])
	}

	// Same component, same logger.
	assert.Same(t, logger, NewLogger("test-component"))
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&TextFormatter{Config: FormatConfig{}})

	logger.WithField("component", "test").Info("Test message")

	output := buf.String()
	for _, want := range []string{"[INFO]", "test", "Test message"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, got: %s", want, output)
		}
	}
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name    string
		config  FormatConfig
		level   logrus.Level
		fields  logrus.Fields
		want    []string
		notWant []string
	}{
		{
			name:   "default shows timestamp and component",
			level:  logrus.InfoLevel,
			fields: logrus.Fields{"component": "livesync", "collection": "ngos"},
			want:   []string{"2026-01-02 03:04:05", "[INFO]", "livesync", "collection=ngos"},
		},
		{
			name:    "disabled timestamp and component",
			config:  FormatConfig{DisableTimestamp: true, DisableComponent: true},
			level:   logrus.WarnLevel,
			fields:  logrus.Fields{"component": "livesync"},
			want:    []string{"[WARN]"},
			notWant: []string{"2026-01-02", "livesync"},
		},
		{
			name:   "fields in key order",
			config: FormatConfig{DisableTimestamp: true},
			level:  logrus.ErrorLevel,
			fields: logrus.Fields{"b": 2, "a": 1},
			want:   []string{"[ERROR] hello a=1 b=2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := logrus.NewEntry(logrus.New()).WithFields(tt.fields)
			entry.Time = mustTime(t)
			entry.Level = tt.level
			entry.Message = "hello"

			out, err := (&TextFormatter{Config: tt.config}).Format(entry)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, string(out), w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, string(out), nw)
			}
			assert.True(t, strings.HasSuffix(string(out), "\n"))
		})
	}
}

func TestBuildLevels(t *testing.T) {
	t.Setenv("CAUSES_LOG_LEVEL", "")
	assert.Equal(t, logrus.InfoLevel, Build("c", Config{}).Logger.GetLevel())
	assert.Equal(t, logrus.DebugLevel, Build("c", Config{Level: "debug"}).Logger.GetLevel())
	assert.Equal(t, logrus.InfoLevel, Build("c", Config{Level: "nonsense"}).Logger.GetLevel())

	t.Setenv("CAUSES_LOG_LEVEL", "error")
	assert.Equal(t, logrus.ErrorLevel, Build("c", Config{Level: "debug"}).Logger.GetLevel())
}

func TestBuildCaller(t *testing.T) {
	t.Setenv("CAUSES_LOG_CALLER", "true")
	assert.True(t, Build("c", Config{}).Logger.ReportCaller)
}

func TestJSONPresetToGlobalOutput(t *testing.T) {
	var buf bytes.Buffer
	prev := SetGlobalOutput(&buf)
	t.Cleanup(func() { SetGlobalOutput(prev) })

	log := Build("daemon", Config{Format: FormatConfig{Preset: "json", StructuredToStderr: "always"}})
	log.WithField("seq", 3).Info("applied")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "daemon", line["component"])
	assert.Equal(t, "applied", line["msg"])
	assert.Equal(t, float64(3), line["seq"])
}

func TestStructuredToStderrNever(t *testing.T) {
	var buf bytes.Buffer
	prev := SetGlobalOutput(&buf)
	t.Cleanup(func() { SetGlobalOutput(prev) })

	Build("quiet", Config{Format: FormatConfig{StructuredToStderr: "never"}}).Error("dropped")
	assert.Empty(t, buf.String())
}

func TestFileSink(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CAUSES_HOME", root)

	explicit := filepath.Join(root, "custom", "causes.log")
	Build("file", Config{
		File:   FileSinkConfig{Enabled: true, Path: explicit},
		Format: FormatConfig{StructuredToStderr: "never"},
	}).Info("to file")
	data, err := os.ReadFile(explicit)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")

	Build("daemon", Config{
		File:   FileSinkConfig{Enabled: true},
		Format: FormatConfig{StructuredToStderr: "never"},
	}).Info("default path")
	matches, err := filepath.Glob(filepath.Join(root, "state", "logs", "daemon-*.log"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestPrettyLogger(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrettyLogger().WithWriter(&buf)
	p.Success("stored 1")
	p.WarnPretty("stale")
	p.ErrorPretty("failed", assert.AnError)
	p.Field("seq", 4)
	p.Path("db", "/tmp/causes.db")

	out := buf.String()
	for _, want := range []string{"stored 1", "stale", "failed", assert.AnError.Error(), "seq", "4", "/tmp/causes.db"} {
		assert.Contains(t, out, want)
	}
}

func mustTime(t *testing.T) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04:05", "2026-01-02 03:04:05")
	require.NoError(t, err)
	return ts
}

func TestGlobalOutputSwap(t *testing.T) {
	var first, second bytes.Buffer
	prev := SetGlobalOutput(&first)
	t.Cleanup(func() { SetGlobalOutput(prev) })

	out := GetGlobalOutput()
	_, _ = out.Write([]byte("a"))
	assert.Same(t, &first, SetGlobalOutput(&second))
	_, _ = out.Write([]byte("b"))
	assert.Equal(t, "a", first.String())
	assert.Equal(t, "b", second.String())

	SetGlobalOutput(nil)
	n, err := out.Write([]byte("c"))
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
