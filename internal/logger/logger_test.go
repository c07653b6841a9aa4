package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		wantErr bool
	}{
		{name: "debug", level: "debug"},
		{name: "info", level: "info"},
		{name: "error", level: "error"},
		{name: "unknown level", level: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLogger(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, l)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, l)
		})
	}
}

func TestZeroValueLoggerDoesNotPanic(t *testing.T) {
	var l Logger
	assert.NotPanics(t, func() {
		l.Debug("debug")
		l.Info("info", zap.String("k", "v"))
		l.Warn("warn")
		l.Error("error")
		l.With(zap.Int("n", 1)).Info("child")
	})
	assert.NoError(t, NewNop().Sync())
}
