// Package zaplogger is the zap-backed implementation of backend.Logger.
package zaplogger

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const (
	InstanceIDKey contextKey = "instance_id"
	RequestIDKey  contextKey = "request_id"
)

// Config holds the viper-bindable logger settings.
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Logger wraps zap.Logger/zap.SugaredLogger, implementing backend.Logger's
// Debugf/Infof/Warnf/Errorf surface via the sugared logger while still
// exposing structured zap.Field helpers for callers that want them.
type Logger struct {
	zap   *zap.Logger
	sugar *zap.SugaredLogger
}

var (
	defaultLogger     *Logger
	defaultLoggerOnce sync.Once
)

// Default returns the process-wide default logger, initialized lazily
// with info level and a format chosen by detectLogFormat.
func Default() *Logger {
	defaultLoggerOnce.Do(func() {
		logger, err := New(Config{Level: "info", Format: detectLogFormat(), OutputPath: "stdout"})
		if err != nil {
			zapLogger, _ := zap.NewProduction()
			logger = &Logger{zap: zapLogger, sugar: zapLogger.Sugar()}
		}
		defaultLogger = logger
	})
	return defaultLogger
}

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" || cfg.Format == "text" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var writeSyncer zapcore.WriteSyncer
	switch cfg.OutputPath {
	case "", "stdout":
		writeSyncer = zapcore.AddSync(os.Stdout)
	case "stderr":
		writeSyncer = zapcore.AddSync(os.Stderr)
	default:
		file, err := os.OpenFile(cfg.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		writeSyncer = zapcore.AddSync(file)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)
	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{zap: zapLogger, sugar: zapLogger.Sugar()}, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	err := l.UnmarshalText([]byte(level))
	return l, err
}

func detectLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("DURABLETASK_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

func (l *Logger) Sync() error { return l.zap.Sync() }

func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(fields...), sugar: l.zap.With(fields...).Sugar()}
}

func (l *Logger) WithContext(ctx context.Context) *Logger {
	var fields []zap.Field
	if instanceID, ok := ctx.Value(InstanceIDKey).(string); ok && instanceID != "" {
		fields = append(fields, zap.String("instance_id", instanceID))
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if len(fields) == 0 {
		return l
	}
	return l.WithFields(fields...)
}

func (l *Logger) WithError(err error) *Logger {
	return l.WithFields(zap.Error(err))
}

func (l *Logger) WithInstanceID(instanceID string) *Logger {
	return l.WithFields(zap.String("instance_id", instanceID))
}

// Debugf, Infof, Warnf, and Errorf satisfy backend.Logger.
func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

func (l *Logger) Zap() *zap.Logger          { return l.zap }
func (l *Logger) Sugar() *zap.SugaredLogger { return l.sugar }
