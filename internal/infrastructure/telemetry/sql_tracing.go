package telemetry

import (
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	defaultSlowStatement = 200 * time.Millisecond
	statementStartKey    = "casaviva:statement_start"
)

// SQLTracingConfig tunes the statement spans.
type SQLTracingConfig struct {
	// System is reported as db.system, "postgresql" when empty.
	System string
	// IncludeVars keeps bound parameters in db.statement. Payment amounts and
	// buyer names end up in the trace backend, so development only.
	IncludeVars bool
	// SlowThreshold marks statements at or above it with db.slow_query.
	SlowThreshold time.Duration
}

// SQLTracing is a gorm.Plugin that installs otelgorm and annotates each
// statement span with the table, affected rows and slow statement marker.
type SQLTracing struct {
	system      string
	includeVars bool
	slow        time.Duration
}

// NewSQLTracing builds the plugin. Pass it to gorm.DB.Use.
func NewSQLTracing(cfg SQLTracingConfig) *SQLTracing {
	t := &SQLTracing{system: cfg.System, includeVars: cfg.IncludeVars, slow: cfg.SlowThreshold}
	if t.system == "" {
		t.system = "postgresql"
	}
	if t.slow <= 0 {
		t.slow = defaultSlowStatement
	}
	return t
}

// Name implements gorm.Plugin.
func (*SQLTracing) Name() string { return "casaviva:sql_tracing" }

// Initialize implements gorm.Plugin.
func (t *SQLTracing) Initialize(db *gorm.DB) error {
	opts := []otelgorm.Option{otelgorm.WithDBName(t.system)}
	if !t.includeVars {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	type register func(string, func(*gorm.DB)) error
	cb := db.Callback()
	// finish has to run before otelgorm ends the span.
	hooks := []struct {
		op            string
		before, after register
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Before("otel:after:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Before("otel:after:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Before("otel:after:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Before("otel:after:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Before("otel:after:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Before("otel:after:raw").Register},
	}
	for _, h := range hooks {
		if err := h.before("casaviva:start_"+h.op, t.start); err != nil {
			return err
		}
		if err := h.after("casaviva:finish_"+h.op, t.finish); err != nil {
			return err
		}
	}
	return nil
}

func (t *SQLTracing) start(tx *gorm.DB) {
	tx.InstanceSet(statementStartKey, time.Now())
}

func (t *SQLTracing) finish(tx *gorm.DB) {
	if tx.Statement.Context == nil {
		return
	}
	span := trace.SpanFromContext(tx.Statement.Context)
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{attribute.Int64("db.rows_affected", tx.Statement.RowsAffected)}
	if tx.Statement.Table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", tx.Statement.Table))
	}
	if v, ok := tx.InstanceGet(statementStartKey); ok {
		if elapsed := time.Since(v.(time.Time)); elapsed >= t.slow {
			attrs = append(attrs,
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.duration_ms", elapsed.Milliseconds()),
			)
		}
	}
	span.SetAttributes(attrs...)

	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		span.RecordError(tx.Error)
		span.SetStatus(codes.Error, tx.Error.Error())
	}
}
