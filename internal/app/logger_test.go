package app

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		format    string
		level     string
		wantLevel zapcore.Level
		errMsg    string
	}{
		"defaults": {
			wantLevel: zapcore.InfoLevel,
		},
		"console debug": {
			format:    LogFormatConsole,
			level:     "debug",
			wantLevel: zapcore.DebugLevel,
		},
		"json warn": {
			format:    LogFormatJSON,
			level:     "warn",
			wantLevel: zapcore.WarnLevel,
		},
		"bad level": {
			level:  "loud",
			errMsg: `invalid log level "loud"`,
		},
		"bad format": {
			format: "xml",
			errMsg: `invalid log format "xml"`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tc.format, tc.level)
			if tc.errMsg != "" {
				require.ErrorContains(t, err, tc.errMsg)
				return
			}
			require.NoError(t, err)
			require.True(t, logger.Core().Enabled(tc.wantLevel))
			require.False(t, logger.Core().Enabled(tc.wantLevel-1))
		})
	}
}
