package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production logger. Console encoding is used unless json is set.
func New(level string, json bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if level != "" && err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	if level == "" {
		lvl = zapcore.WarnLevel
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	if !json {
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	config.OutputPaths = []string{"stderr"}
	return config.Build()
}
