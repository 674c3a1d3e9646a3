// Package logger builds the zap loggers of the back office and carries the
// request-scoped logger through contexts.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, encoding and destination.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path

	// Service and Env are stamped on every entry when set.
	Service string
	Env     string
}

// New builds the application logger. Extra cores, such as the OTEL log
// bridge, receive every entry the stdout/file core does.
func New(cfg Config, extra ...zapcore.Core) (*zap.Logger, error) {
	core, err := NewCore(cfg)
	if err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		core = zapcore.NewTee(append([]zapcore.Core{core}, extra...)...)
	}

	var stamps []zap.Field
	if cfg.Service != "" {
		stamps = append(stamps, zap.String("service", cfg.Service))
	}
	if cfg.Env != "" {
		stamps = append(stamps, zap.String("env", cfg.Env))
	}
	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(stamps...),
	), nil
}

// NewCore builds the core that writes to cfg.Output.
func NewCore(cfg Config) (zapcore.Core, error) {
	target := cfg.Output
	switch strings.ToLower(target) {
	case "", "stdout":
		target = "stdout"
	case "stderr":
		target = "stderr"
	}
	sink, _, err := zap.Open(target)
	if err != nil {
		return nil, fmt.Errorf("open log output %s: %w", cfg.Output, err)
	}
	return zapcore.NewCore(encoderFor(cfg.Format), sink, ParseLevel(cfg.Level)), nil
}

// ParseLevel reads a configured level name; unknown names mean info.
func ParseLevel(name string) zapcore.Level {
	name = strings.ToLower(name)
	if name == "warning" {
		name = "warn"
	}
	level, err := zapcore.ParseLevel(name)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func encoderFor(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	ec.EncodeDuration = zapcore.MillisDurationEncoder

	if strings.EqualFold(format, "console") {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}
