package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	l, level, err := NewLogger("")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, zapcore.InfoLevel, level.Level())

	_, level, err = NewLogger(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	level.SetLevel(zapcore.WarnLevel)
	assert.False(t, level.Enabled(zapcore.InfoLevel))
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, _, err := NewLogger("verbose")
	assert.Error(t, err)
}
