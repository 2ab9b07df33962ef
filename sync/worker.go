package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-ledger-sync/core"
)

const (
	defaultMaxAttempts  = 5
	defaultBaseDelay    = 2 * time.Second
	defaultMaxDelay     = 2 * time.Minute
	defaultDequeueDelay = time.Second
)

// JobExecutor runs one decoded job message. core.Service satisfies it.
type JobExecutor interface {
	ExecuteJob(ctx context.Context, msg *core.JobExecutionMessage) (any, error)
}

// attemptNacker is implemented by deliveries that bound retries per attempt.
type attemptNacker interface {
	NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error
}

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
	}
}

// Backoff doubles BaseDelay per attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	if delay <= 0 {
		delay = defaultBaseDelay
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Retryable reports whether a failed job may succeed when run again.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case core.IsValidationFailure(err),
		core.IsAuthenticationExpired(err),
		core.IsVersionConflict(err),
		errors.Is(err, core.ErrNotFoundLocal),
		errors.Is(err, core.ErrNotConnected),
		errors.Is(err, core.ErrOAuthStateInvalid),
		errors.Is(err, core.ErrInvalidRequest):
		return false
	case errors.Is(err, core.ErrLockUnavailable):
		return true
	}
	var external *core.ExternalServiceError
	if errors.As(err, &external) {
		return external.StatusCode == 0 || external.StatusCode == 429 || external.StatusCode >= 500
	}
	return true
}

type Option func(*Worker)

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(w *Worker) {
		w.policy = policy
	}
}

func WithHooks(hooks ...core.JobWorkerHook) Option {
	return func(w *Worker) {
		for _, hook := range hooks {
			if hook != nil {
				w.hooks = append(w.hooks, hook)
			}
		}
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// Worker drains pull-sync and push jobs from a queue. Attempts are tracked
// per idempotency key for the lifetime of the worker.
type Worker struct {
	dequeuer core.JobDequeuer
	executor JobExecutor
	policy   RetryPolicy
	hooks    []core.JobWorkerHook
	logger   glog.Logger
	now      func() time.Time

	mu       gosync.Mutex
	attempts map[string]int
}

func NewWorker(dequeuer core.JobDequeuer, executor JobExecutor, opts ...Option) (*Worker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("sync: job dequeuer is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("sync: job executor is required")
	}
	worker := &Worker{
		dequeuer: dequeuer,
		executor: executor,
		policy:   DefaultRetryPolicy(),
		logger:   glog.Nop(),
		now:      func() time.Time { return time.Now().UTC() },
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(worker)
		}
	}
	return worker, nil
}

// Run processes deliveries until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		delivery, err := w.dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("job dequeue failed", "error", err.Error())
			if !sleep(ctx, defaultDequeueDelay) {
				return nil
			}
			continue
		}
		if delivery == nil {
			continue
		}
		if err := w.Process(ctx, delivery); err != nil {
			w.logger.Error("job settlement failed", "error", err.Error())
		}
	}
}

// Process executes one delivery and acks or nacks it. The returned error only
// reports a failure to settle the delivery.
func (w *Worker) Process(ctx context.Context, delivery core.JobDelivery) error {
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "empty job message"})
	}
	key := attemptKey(msg)
	attempt := w.nextAttempt(key)
	startedAt := w.now()
	event := core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: startedAt}
	w.emit(ctx, event, core.JobWorkerHook.OnStart)

	_, runErr := w.executor.ExecuteJob(ctx, msg)
	event.Duration = w.now().Sub(startedAt)

	if runErr == nil {
		w.forget(key)
		w.emit(ctx, event, core.JobWorkerHook.OnSuccess)
		w.logger.Info("job succeeded", "job_id", msg.JobID, "attempt", attempt, "duration_ms", event.Duration.Milliseconds())
		return delivery.Ack(ctx)
	}

	event.Err = runErr
	maxAttempts := w.policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if !Retryable(runErr) || attempt >= maxAttempts {
		w.forget(key)
		w.emit(ctx, event, core.JobWorkerHook.OnFailure)
		w.logger.Error("job failed", "job_id", msg.JobID, "attempt", attempt, "error", runErr.Error())
		return w.nack(ctx, delivery, core.JobNackOptions{DeadLetter: true, Reason: runErr.Error()}, attempt)
	}

	event.Delay = w.policy.Backoff(attempt)
	w.emit(ctx, event, core.JobWorkerHook.OnRetry)
	w.logger.Warn("job retry scheduled", "job_id", msg.JobID, "attempt", attempt, "delay_ms", event.Delay.Milliseconds(), "error", runErr.Error())
	return w.nack(ctx, delivery, core.JobNackOptions{Requeue: true, Delay: event.Delay, Reason: runErr.Error()}, attempt)
}

func (w *Worker) nack(ctx context.Context, delivery core.JobDelivery, opts core.JobNackOptions, attempt int) error {
	if bounded, ok := delivery.(attemptNacker); ok {
		return bounded.NackForAttempt(ctx, opts, attempt)
	}
	return delivery.Nack(ctx, opts)
}

func (w *Worker) emit(ctx context.Context, event core.JobWorkerEvent, fn func(core.JobWorkerHook, context.Context, core.JobWorkerEvent)) {
	for _, hook := range w.hooks {
		fn(hook, ctx, event)
	}
}

func (w *Worker) nextAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *Worker) forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

func attemptKey(msg *core.JobExecutionMessage) string {
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(msg.JobID) + ":" + fmt.Sprint(msg.Parameters)
}

func sleep(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
