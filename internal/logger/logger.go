// Package logger builds the zap logger shared by every vigil command.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps "debug", "info", "warn" and "error" to a zap level.
// Anything else is info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New creates a logger.
// format is "console" or "json" (default "console").
// Logs always go to stderr; stdout is reserved for command output.
func New(level, format, service string) (*zap.Logger, error) {
	jsonFormat := isJSON(format)

	var config zap.Config
	if jsonFormat {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.DisableStacktrace = true
	}
	config.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	base, err := config.Build()
	if err != nil {
		return nil, err
	}
	return base.With(baseFields(jsonFormat, service)...), nil
}

func isJSON(format string) bool {
	return strings.EqualFold(strings.TrimSpace(format), "json")
}

// baseFields are attached to every entry. JSON output also names the host.
func baseFields(jsonFormat bool, service string) []zap.Field {
	var fields []zap.Field
	if service != "" {
		fields = append(fields, zap.String("service", service))
	}
	if jsonFormat {
		if hostname, err := os.Hostname(); err == nil && hostname != "" {
			fields = append(fields, zap.String("hostname", hostname))
		}
	}
	return fields
}
