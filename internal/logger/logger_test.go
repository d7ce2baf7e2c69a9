package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatConsole, ""} {
		l, err := New("debug", format)
		require.NoError(t, err, "format %q", format)
		assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	}
}

func TestNew_Level(t *testing.T) {
	l, err := New("warn", FormatJSON)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("loud", FormatJSON)
	assert.Error(t, err)

	_, err = New("info", "xml")
	assert.Error(t, err)
}

func TestNamed_NilBase(t *testing.T) {
	l := Named(nil, "records")
	require.NotNil(t, l)
	l.Info("dropped")
}
