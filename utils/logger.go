package utils

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLogFile names the file every run is appended to; "-" logs to the
// standard streams only
const EnvLogFile = "BRACKETBOT_LOG_FILE"

const defaultLogFile = "bracketbot.log"

var (
	log  *zap.Logger
	once sync.Once
)

// loggerConfig returns the production config used by every command. Runs are
// audited from the log file, so it always carries ISO8601 timestamps and the
// proposing command's fields.
func loggerConfig(debug bool, logFile string) zap.Config {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	if logFile != "-" {
		config.OutputPaths = append(config.OutputPaths, logFile)
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.StacktraceKey = "stacktrace"
	config.InitialFields = map[string]interface{}{"app": "bracketbot"}
	return config
}

// InitLogger initializes the global logger instance. Later calls return the
// first logger.
func InitLogger(debug bool) *zap.Logger {
	once.Do(func() {
		logFile := os.Getenv(EnvLogFile)
		if logFile == "" {
			logFile = defaultLogFile
		}

		logger, err := loggerConfig(debug, logFile).Build(
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
		if err != nil {
			panic(err)
		}

		log = logger
	})

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(false)
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
