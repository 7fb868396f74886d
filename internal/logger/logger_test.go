package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	testCases := []struct {
		name        string
		level       string
		verbose     bool
		enabled     zapcore.Level
		expectNop   bool
		expectError bool
	}{
		{name: "quiet by default", level: "debug", verbose: false, expectNop: true},
		{name: "verbose debug", level: "debug", verbose: true, enabled: zapcore.DebugLevel},
		{name: "verbose defaults to info", level: "", verbose: true, enabled: zapcore.InfoLevel},
		{name: "verbose warn", level: "warn", verbose: true, enabled: zapcore.WarnLevel},
		{name: "unknown level", level: "chatty", verbose: true, expectError: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := New(tc.level, tc.verbose)
			if tc.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tc.expectNop {
				assert.False(t, l.Core().Enabled(zapcore.ErrorLevel))
				return
			}
			assert.True(t, l.Core().Enabled(tc.enabled))
			if tc.enabled > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tc.enabled-1))
			}
		})
	}
}
