package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/casaviva/backoffice/internal/infrastructure/logger"
	"github.com/casaviva/backoffice/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// RetryPolicy bounds how often an operation is re-run after an optimistic
// concurrency conflict.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     250 * time.Millisecond,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxRetries)), ctx)
}

// atomicRunner executes a unit of work in a transaction, re-running it
// from fresh reads when a concurrent commit wins.
type atomicRunner struct {
	scope   TransactionScope
	policy  RetryPolicy
	logger  *zap.Logger
	metrics *telemetry.LedgerMetrics
}

// run executes fn inside one transaction. Conflicts are retried with
// exponential backoff; exhaustion surfaces shared.ErrConcurrencyConflict.
// A record that is missing when read inside the transaction is reported as
// shared.ErrStaleReference, unless fn marked the miss with addressed.
// fn must start from fresh reads on every call.
func (r *atomicRunner) run(ctx context.Context, operation string, fn func(repos TransactionalRepositories) error) error {
	span := telemetry.SpanFromContext(ctx)
	log := logger.FromContext(ctx, r.logger)
	started := time.Now()
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := r.scope.Execute(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			r.metrics.RecordConflictRetry(ctx, operation)
			log.Debug("Concurrent modification, retrying",
				zap.String("operation", operation),
				zap.Int("attempt", attempts),
			)
			return err
		}
		return backoff.Permanent(err)
	}, r.policy.backOff(ctx))

	telemetry.SetAttribute(span, "attempts", attempts)
	err = translateStoreError(err, attempts)
	r.metrics.RecordOperation(ctx, operation, outcomeOf(err), time.Since(started))
	if err != nil {
		telemetry.RecordError(span, err)
		log.Warn("Ledger operation rejected",
			zap.String("operation", operation),
			zap.String("code", outcomeOf(err)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return err
	}
	log.Info("Ledger operation committed",
		zap.String("operation", operation),
		zap.Int("attempts", attempts),
		zap.Duration("duration", time.Since(started)),
	)
	return nil
}

// missingTarget is a miss on the record a command names directly.
type missingTarget struct{ err error }

func (e missingTarget) Error() string { return e.err.Error() }
func (e missingTarget) Unwrap() error { return e.err }

// addressed marks a shared.ErrNotFound from the command's own lookup, so
// the runner reports it as not found rather than as a stale reference.
func addressed(err error) error {
	if isNotFound(err) {
		return missingTarget{err: err}
	}
	return err
}

func translateStoreError(err error, attempts int) error {
	var miss missingTarget
	switch {
	case err == nil:
		return nil
	case errors.As(err, &miss):
		return miss.err
	case errors.Is(err, shared.ErrConcurrencyConflict):
		return shared.ErrConcurrencyConflict.WithMessage(
			fmt.Sprintf("The records changed concurrently; gave up after %d attempts", attempts))
	case errors.Is(err, shared.ErrNotFound):
		var de *shared.DomainError
		errors.As(err, &de)
		return shared.ErrStaleReference.WithMessage(de.Message)
	}
	return err
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "error"
}
