package agents

import (
	"context"
	"errors"
	"time"

	"mealgen/internal/domain"
	"mealgen/internal/infra"
)

// RetryPolicy controls how Run retries a failing operation.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns 3 attempts with 500ms doubling backoff capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
		if p.MaxDelay > 0 && delay >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	d := time.Duration(delay)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var p *permanentError
	if errors.As(err, &p) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Worker carries the retry policy, metrics and logger shared by one agent type.
type Worker struct {
	name    domain.AgentName
	policy  RetryPolicy
	metrics *MetricsRegistry
	logger  infra.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewWorker builds a worker for the named agent. A nil registry gets a private one.
func NewWorker(name domain.AgentName, policy RetryPolicy, metrics *MetricsRegistry, logger infra.Logger) *Worker {
	if metrics == nil {
		metrics = NewMetricsRegistry(nil)
	}
	return &Worker{
		name:    name,
		policy:  policy.normalized(),
		metrics: metrics,
		logger:  logger.With().Str("agent", string(name)).Logger(),
		sleep:   sleepCtx,
	}
}

func (w *Worker) Name() domain.AgentName { return w.name }

func (w *Worker) Logger() *infra.Logger { return &w.logger }

func (w *Worker) Metrics() *MetricsRegistry { return w.metrics }

func (w *Worker) Policy() RetryPolicy { return w.policy }

// Run executes fn under the worker's retry policy. Every attempt and the
// final outcome are recorded in the worker's metrics, including failures.
// The last error is returned when all attempts are exhausted.
func Run[T any](ctx context.Context, w *Worker, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= w.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		w.metrics.RecordAttempt(w.name)
		v, err := fn(ctx)
		if err == nil {
			w.metrics.RecordOperation(w.name, time.Since(start), nil)
			if attempt > 1 {
				w.logger.Debug().Str("op", op).Int("attempt", attempt).Msg("operation succeeded after retry")
			}
			return v, nil
		}
		lastErr = err

		if IsPermanent(err) || ctx.Err() != nil || attempt == w.policy.MaxAttempts {
			break
		}

		delay := w.policy.Backoff(attempt)
		w.logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", delay).Msg("operation failed, retrying")
		if err := w.sleep(ctx, delay); err != nil {
			break
		}
	}

	w.metrics.RecordOperation(w.name, time.Since(start), lastErr)
	return zero, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
