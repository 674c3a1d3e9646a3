package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type house struct {
	ID   uint   `gorm:"primaryKey"`
	Code string `gorm:"size:40"`
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&house{}))
	return db
}

func recordSpans(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, sr
}

func attrsOf(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(span.Attributes()))
	for _, kv := range span.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestNewSQLTracing_Defaults(t *testing.T) {
	tr := NewSQLTracing(SQLTracingConfig{})
	assert.Equal(t, "postgresql", tr.system)
	assert.Equal(t, defaultSlowStatement, tr.slow)
	assert.False(t, tr.includeVars)

	tr = NewSQLTracing(SQLTracingConfig{System: "sqlite", SlowThreshold: time.Second, IncludeVars: true})
	assert.Equal(t, "sqlite", tr.system)
	assert.Equal(t, time.Second, tr.slow)
	assert.True(t, tr.includeVars)
}

func TestSQLTracing_Initialize(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, db.Use(NewSQLTracing(SQLTracingConfig{System: "sqlite"})))

	assert.Contains(t, db.Config.Plugins, "casaviva:sql_tracing")
	assert.NotNil(t, db.Callback().Query().Get("casaviva:start_query"))
	assert.NotNil(t, db.Callback().Query().Get("casaviva:finish_query"))
	assert.NotNil(t, db.Callback().Update().Get("casaviva:finish_update"))
	assert.NotNil(t, db.Callback().Raw().Get("casaviva:start_raw"))
}

func TestSQLTracing_TracesStatements(t *testing.T) {
	tp, sr := recordSpans(t)
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(original) })

	db := openSQLite(t)
	require.NoError(t, db.Use(NewSQLTracing(SQLTracingConfig{System: "sqlite"})))

	ctx, parent := tp.Tracer("test").Start(context.Background(), "ledger.register_payment")
	require.NoError(t, db.WithContext(ctx).Create(&house{Code: "A-101"}).Error)
	var found house
	require.NoError(t, db.WithContext(ctx).First(&found, "code = ?", "A-101").Error)
	parent.End()

	assert.Equal(t, "A-101", found.Code)
	assert.GreaterOrEqual(t, len(sr.Ended()), 3)
}

func TestSQLTracing_Finish(t *testing.T) {
	tp, sr := recordSpans(t)
	db := openSQLite(t)
	tr := NewSQLTracing(SQLTracingConfig{})

	ctx, span := tp.Tracer("test").Start(context.Background(), "statement")
	tx := db.WithContext(ctx).InstanceSet(statementStartKey, time.Now())
	tx.Statement.Table = "payments"
	tx.Error = errors.New("write conflict")

	tr.finish(tx)
	span.End()

	recorded := sr.Ended()[0]
	attrs := attrsOf(recorded)
	assert.Equal(t, int64(0), attrs["db.rows_affected"].AsInt64())
	assert.Equal(t, "payments", attrs["db.sql.table"].AsString())
	assert.NotContains(t, attrs, attribute.Key("db.slow_query"))
	assert.Equal(t, codes.Error, recorded.Status().Code)
	assert.Equal(t, "write conflict", recorded.Status().Description)
}

func TestSQLTracing_FinishSlowStatement(t *testing.T) {
	tp, sr := recordSpans(t)
	db := openSQLite(t)
	tr := NewSQLTracing(SQLTracingConfig{SlowThreshold: 50 * time.Millisecond})

	ctx, span := tp.Tracer("test").Start(context.Background(), "statement")
	tx := db.WithContext(ctx).InstanceSet(statementStartKey, time.Now().Add(-time.Second))

	tr.finish(tx)
	span.End()

	attrs := attrsOf(sr.Ended()[0])
	assert.True(t, attrs["db.slow_query"].AsBool())
	assert.GreaterOrEqual(t, attrs["db.duration_ms"].AsInt64(), int64(1000))
}

func TestSQLTracing_FinishRecordNotFound(t *testing.T) {
	tp, sr := recordSpans(t)
	db := openSQLite(t)

	ctx, span := tp.Tracer("test").Start(context.Background(), "statement")
	tx := db.WithContext(ctx)
	tx.Error = gorm.ErrRecordNotFound

	NewSQLTracing(SQLTracingConfig{}).finish(tx)
	span.End()

	assert.Equal(t, codes.Unset, sr.Ended()[0].Status().Code)
}

func TestSQLTracing_FinishWithoutSpan(t *testing.T) {
	db := openSQLite(t)
	assert.NotPanics(t, func() {
		NewSQLTracing(SQLTracingConfig{}).finish(db.WithContext(context.Background()))
	})
}
