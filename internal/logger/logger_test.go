package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		name        string
		level       string
		format      string
		enabled     zapcore.Level
		expectError bool
	}{
		{name: "Console debug", level: "debug", format: "console", enabled: zapcore.DebugLevel},
		{name: "JSON warn", level: "warn", format: "JSON", enabled: zapcore.WarnLevel},
		{name: "Empty level defaults to info", level: "", format: "json", enabled: zapcore.InfoLevel},
		{name: "Unknown level", level: "loud", format: "json", expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			log, err := NewLogger(tc.level, tc.format)
			if tc.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tc.enabled))
			assert.False(t, log.Core().Enabled(tc.enabled-1))
		})
	}
}
