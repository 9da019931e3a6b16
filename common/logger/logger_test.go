package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLevelFor(t *testing.T) {
	assert.Equal(t, zapcore.FatalLevel, levelFor(0))
	assert.Equal(t, zapcore.ErrorLevel, levelFor(1))
	assert.Equal(t, zapcore.WarnLevel, levelFor(2))
	assert.Equal(t, zapcore.InfoLevel, levelFor(3))
	assert.Equal(t, zapcore.DebugLevel, levelFor(4))
	assert.Equal(t, zapcore.DebugLevel, levelFor(5))
}

func TestNewLogfile(t *testing.T) {
	log, err := New(Config{
		Type:  "logfile",
		File:  filepath.Join(t.TempDir(), "logs", "imageforge.log"),
		Level: 3,
	})
	require.NoError(t, err)
	log.Info("hello")
	assert.NoError(t, log.Sync())
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(Config{Type: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNewDeveloper(t *testing.T) {
	log, err := New(Config{Developer: true})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}
