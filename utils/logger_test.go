package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoggerConfig(t *testing.T) {
	t.Run("Debug", func(t *testing.T) {
		config := loggerConfig(true, "-")
		assert.Equal(t, zapcore.DebugLevel, config.Level.Level())
		assert.Equal(t, []string{"stdout"}, config.OutputPaths)
		assert.Equal(t, "timestamp", config.EncoderConfig.TimeKey)
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run.log")
		config := loggerConfig(false, path)
		assert.Equal(t, zapcore.InfoLevel, config.Level.Level())
		assert.Equal(t, []string{"stdout", path}, config.OutputPaths)

		logger, err := config.Build()
		require.NoError(t, err)
		logger.Info("written")
		_ = logger.Sync()
		assert.FileExists(t, path)
	})
}
