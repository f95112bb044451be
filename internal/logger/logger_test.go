package logger

import (
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  log.Level
	}{
		{"debug", log.DebugLevel},
		{"info", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"fatal", log.FatalLevel},
		{"DEBUG", log.DebugLevel},
		{"unknown", log.InfoLevel},
		{"", log.InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.input), "level %q", tt.input)
	}
}

func TestNewStyledLoggerInheritsLevel(t *testing.T) {
	require.NoError(t, Configure("debug", "", false))
	defer func() {
		require.NoError(t, Configure("info", "", false))
	}()

	lg := NewStyledLogger("Voice")
	assert.Equal(t, log.DebugLevel, lg.GetLevel())
	assert.Equal(t, "Voice ", lg.GetPrefix())
}
