// File: internal/observability/logger.go
package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// ANSI color codes for the terminal.
const (
	colorBlack   = "\x1b[30m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorWhite   = "\x1b[37m"
	colorReset   = "\x1b[0m"
)

// colorMap translates friendly names to ANSI codes.
var colorMap = map[string]string{
	"black":   colorBlack,
	"red":     colorRed,
	"green":   colorGreen,
	"yellow":  colorYellow,
	"blue":    colorBlue,
	"magenta": colorMagenta,
	"cyan":    colorCyan,
	"white":   colorWhite,
}

// NewLogger builds a logger that writes human-readable lines to consoleWriter and,
// when cfg.LogFile is set, structured JSON to a rotating file.
// The caller owns the returned logger and should call Sync before exiting.
func NewLogger(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	consoleCore := zapcore.NewCore(getEncoder(cfg), consoleWriter, level)
	cores := []zapcore.Core{consoleCore}

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		// File encoder is always JSON for structured logging.
		fileEncoder := getEncoder(config.LoggerConfig{Format: "json"})
		// lumberjack handles file rotation and thread-safe writes.
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(fileEncoder, fileWriter, level))
	}

	options := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.AddSource {
		options = append(options, zap.AddCaller())
	}

	logger := zap.New(zapcore.NewTee(cores...), options...)
	if cfg.ServiceName != "" {
		logger = logger.Named(cfg.ServiceName)
	}
	return logger, nil
}

// NewConsoleLogger is a convenience wrapper around NewLogger for production use.
// It defaults console output to a locked Stderr so stdout stays free for task results.
func NewConsoleLogger(cfg config.LoggerConfig) (*zap.Logger, error) {
	return NewLogger(cfg, zapcore.Lock(os.Stderr))
}

// newColorizedLevelEncoder creates a zapcore.LevelEncoder that colorizes the log level.
func newColorizedLevelEncoder(colors config.ColorConfig) zapcore.LevelEncoder {
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		var color string
		levelStr := strings.ToUpper(level.String())

		switch level {
		case zapcore.DebugLevel:
			color = colorMap[colors.Debug]
		case zapcore.InfoLevel:
			color = colorMap[colors.Info]
		case zapcore.WarnLevel:
			color = colorMap[colors.Warn]
		case zapcore.ErrorLevel:
			color = colorMap[colors.Error]
		case zapcore.DPanicLevel:
			color = colorMap[colors.DPanic]
		case zapcore.PanicLevel:
			color = colorMap[colors.Panic]
		case zapcore.FatalLevel:
			color = colorMap[colors.Fatal]
		default:
			color = colorReset
		}

		if color != "" {
			enc.AppendString(fmt.Sprintf("%s%s%s", color, levelStr, colorReset))
		} else {
			enc.AppendString(levelStr)
		}
	}
}

// getEncoder selects the console or JSON encoder based on cfg.Format.
func getEncoder(cfg config.LoggerConfig) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")

	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = newColorizedLevelEncoder(cfg.Colors)
		// Suffix the component name with a dot so it reads apart from the message.
		encoderConfig.EncodeName = func(loggerName string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(loggerName + ".")
		}
		return zapcore.NewConsoleEncoder(encoderConfig)
	}

	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

// Sync flushes any buffered log entries. Applications should call this before exiting.
func Sync(logger *zap.Logger) {
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil {
		// Writing to a closed or non-syncable stdout/stderr is expected on some OSes.
		errMsg := err.Error()
		if !strings.Contains(errMsg, "sync /dev/stdout") &&
			!strings.Contains(errMsg, "sync /dev/stderr") &&
			!strings.Contains(errMsg, "invalid argument") &&
			!strings.Contains(errMsg, "operation not supported") &&
			!strings.Contains(errMsg, "inappropriate ioctl") {
			fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
		}
	}
}
