package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"ERROR", zapcore.ErrorLevel, false},
		{"verbose", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, level.Level())
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWithWriter_Encoding(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(zap.NewAtomicLevelAt(zap.InfoLevel), zapcore.AddSync(&buf))

	logger.Debug("hidden")
	logger.Info("Scrape finished", zap.String("scrape_id", "abc"))
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "Scrape finished", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "abc", entry["scrape_id"])
	ts, ok := entry["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse("2006-01-02T15:04:05.000Z0700", ts)
	assert.NoError(t, err, "timestamp %q is not ISO8601", ts)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "exporter.log")

	logger, err := New(Config{Level: "debug", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Debug("written to file")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}
