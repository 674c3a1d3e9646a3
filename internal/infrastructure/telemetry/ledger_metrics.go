package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// LedgerMetrics records how ledger transactions fare. A nil *LedgerMetrics
// is valid and records nothing.
type LedgerMetrics struct {
	operations   Counter
	retries      Counter
	auditFailure Counter
	duration     DurationHistogram
}

// NewLedgerMetrics registers the ledger instruments on meter.
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrNoMeter
	}
	var (
		m   LedgerMetrics
		err error
	)
	if m.operations, err = NewCounter(meter, "ledger_operations_total",
		"Ledger operations by outcome", "{operation}"); err != nil {
		return nil, err
	}
	if m.retries, err = NewCounter(meter, "ledger_conflict_retries_total",
		"Ledger attempts rolled back by a concurrent modification", "{retry}"); err != nil {
		return nil, err
	}
	if m.auditFailure, err = NewCounter(meter, "ledger_audit_append_failures_total",
		"Audit entries that could not be written", "{entry}"); err != nil {
		return nil, err
	}
	if m.duration, err = NewDurationHistogram(meter, "ledger_operation_duration_seconds",
		"Ledger operation latency including retries", LedgerDurationBuckets); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordOperation counts a finished operation. outcome is "ok" or an error
// code.
func (m *LedgerMetrics) RecordOperation(ctx context.Context, operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.operations.Inc(ctx, AttrOperation.String(operation), AttrOutcome.String(outcome))
	m.duration.Observe(ctx, d, AttrOperation.String(operation))
}

// RecordConflictRetry counts an attempt lost to a concurrent commit.
func (m *LedgerMetrics) RecordConflictRetry(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.retries.Inc(ctx, AttrOperation.String(operation))
}

// RecordAuditFailure counts an audit entry that was dropped.
func (m *LedgerMetrics) RecordAuditFailure(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.auditFailure.Inc(ctx, AttrAction.String(action))
}
