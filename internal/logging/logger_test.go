package logging

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitCreatesLogDir(t *testing.T) {
	dir := t.TempDir() + "/logs"

	logger, atom, err := Init(dir, "warn")
	require.NoError(t, err)
	defer logger.Sync() //nolint:errcheck

	_, statErr := os.Stat(dir)
	assert.NoError(t, statErr)
	assert.Equal(t, zapcore.WarnLevel, atom.Level())
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestSetLevel(t *testing.T) {
	atom := zap.NewAtomicLevel()

	require.NoError(t, SetLevel(atom, "debug"))
	assert.Equal(t, zapcore.DebugLevel, atom.Level())

	require.NoError(t, SetLevel(atom, ""))
	assert.Equal(t, zapcore.InfoLevel, atom.Level())

	assert.Error(t, SetLevel(atom, "loud"))
	assert.Equal(t, zapcore.InfoLevel, atom.Level())
}
