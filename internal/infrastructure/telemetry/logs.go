package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogsConfig holds the OTLP log export settings.
type LogsConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	Insecure          bool
	// MinLevel is the lowest level shipped to the collector. Entries below
	// it still reach the local log output.
	MinLevel zapcore.Level
}

// LogExporter ships zap entries to an OTLP collector.
type LogExporter struct {
	provider *sdklog.LoggerProvider
	cfg      LogsConfig
	logger   *zap.Logger
}

// NewLogExporter sets up OTLP log export. A disabled exporter hands out a
// no-op core and its Shutdown does nothing.
func NewLogExporter(ctx context.Context, cfg LogsConfig, logger *zap.Logger) (*LogExporter, error) {
	e := &LogExporter{cfg: cfg, logger: logger}
	if !cfg.Enabled {
		logger.Info("OTEL log export disabled")
		return e, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP logs exporter: %w", err)
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	e.provider = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(e.provider)

	logger.Info("OTEL log export enabled",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.Stringer("min_level", cfg.MinLevel),
	)
	return e, nil
}

// Enabled reports whether entries are being exported.
func (e *LogExporter) Enabled() bool {
	return e.provider != nil
}

// Core returns the zap core feeding the exporter, for logger.New to tee
// behind the local output.
func (e *LogExporter) Core() zapcore.Core {
	if !e.Enabled() {
		return zapcore.NewNopCore()
	}
	core := otelzap.NewCore(e.cfg.ServiceName, otelzap.WithLoggerProvider(e.provider))
	if e.cfg.MinLevel <= zapcore.DebugLevel {
		return core
	}
	return &minLevelCore{Core: core, min: e.cfg.MinLevel}
}

// Shutdown flushes pending entries and stops the exporter.
func (e *LogExporter) Shutdown(ctx context.Context) error {
	if e.provider == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := e.provider.Shutdown(shutdownCtx); err != nil {
		e.logger.Error("Error shutting down log exporter", zap.Error(err))
		return fmt.Errorf("failed to shutdown log exporter: %w", err)
	}
	e.provider = nil
	return nil
}

// minLevelCore gives the otelzap core, which has no level of its own, a floor.
type minLevelCore struct {
	zapcore.Core
	min zapcore.Level
}

func (c *minLevelCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && c.Core.Enabled(lvl)
}

func (c *minLevelCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return c.Core.Check(entry, ce)
}

func (c *minLevelCore) With(fields []zapcore.Field) zapcore.Core {
	return &minLevelCore{Core: c.Core.With(fields), min: c.min}
}
