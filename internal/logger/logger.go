package logger

import (
	"github.com/entbill/entbill/internal/config"
	"github.com/entbill/entbill/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger to provide logging functionality
type Logger struct {
	*zap.SugaredLogger
}

// Global logger for convenience in scripts; everywhere else prefer
// dependency injection.
var L *Logger

// NewLogger creates and returns a new Logger instance
func NewLogger(cfg *config.Configuration) (*Logger, error) {
	var zapConfig zap.Config
	if cfg.Deployment.Mode == types.ModeLocal {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(getZapLogLevel(cfg.Logging.Level))
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{
		SugaredLogger: zapLogger.Sugar(),
	}, nil
}

func getZapLogLevel(level types.LogLevel) zapcore.Level {
	switch level {
	case types.LogLevelDebug:
		return zapcore.DebugLevel
	case types.LogLevelInfo:
		return zapcore.InfoLevel
	case types.LogLevelWarn:
		return zapcore.WarnLevel
	case types.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// With returns a child logger with the given structured context attached.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...)}
}

func init() {
	zl, _ := zap.NewDevelopment()
	L = &Logger{SugaredLogger: zl.Sugar()}
}
