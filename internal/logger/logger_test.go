package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zapcore.Level
		err      bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"silly", zapcore.DebugLevel, false},
		{"", zapcore.InfoLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			level, err := ParseLevel(tc.level)
			if tc.err {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.expected, level)
		})
	}
}

func TestFileOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "info", Logger: &buf, Quiet: true})

	Debugf("hidden %d", 1)
	Infof("visible %d", 2)
	WithPrefix("alice").Warnf("polling %s", "/swaps")
	Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "visible 2", entry["msg"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	require.Equal(t, "[alice] polling /swaps", entry["msg"])
	require.Equal(t, "warn", entry["level"])
}
