package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-ledger-sync/core"
)

type stubExecutor struct {
	errs  []error
	calls []*core.JobExecutionMessage
}

func (s *stubExecutor) ExecuteJob(_ context.Context, msg *core.JobExecutionMessage) (any, error) {
	s.calls = append(s.calls, msg)
	index := len(s.calls) - 1
	if index < len(s.errs) {
		return nil, s.errs[index]
	}
	return nil, nil
}

type stubDelivery struct {
	msg   *core.JobExecutionMessage
	acked bool
	nacks []core.JobNackOptions
}

func (d *stubDelivery) Message() *core.JobExecutionMessage { return d.msg }

func (d *stubDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *stubDelivery) Nack(_ context.Context, opts core.JobNackOptions) error {
	d.nacks = append(d.nacks, opts)
	return nil
}

type boundedDelivery struct {
	stubDelivery
	attempts []int
}

func (d *boundedDelivery) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	d.attempts = append(d.attempts, attempt)
	return d.Nack(ctx, opts)
}

type stubDequeuer struct {
	deliveries []core.JobDelivery
	cancel     context.CancelFunc
}

func (q *stubDequeuer) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if len(q.deliveries) == 0 {
		q.cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	next := q.deliveries[0]
	q.deliveries = q.deliveries[1:]
	return next, nil
}

type recordingHook struct {
	events []string
}

func (h *recordingHook) OnStart(_ context.Context, event core.JobWorkerEvent) {
	h.events = append(h.events, fmt.Sprintf("start:%d", event.Attempt))
}

func (h *recordingHook) OnSuccess(_ context.Context, event core.JobWorkerEvent) {
	h.events = append(h.events, fmt.Sprintf("success:%d", event.Attempt))
}

func (h *recordingHook) OnFailure(_ context.Context, event core.JobWorkerEvent) {
	h.events = append(h.events, fmt.Sprintf("failure:%d", event.Attempt))
}

func (h *recordingHook) OnRetry(_ context.Context, event core.JobWorkerEvent) {
	h.events = append(h.events, fmt.Sprintf("retry:%d:%s", event.Attempt, event.Delay))
}

func pullMessage() *core.JobExecutionMessage {
	return &core.JobExecutionMessage{
		JobID:          core.JobIDPullSync,
		Parameters:     map[string]any{"tenant_id": "tenant-1", "integration_id": "int-1"},
		IdempotencyKey: core.JobIDPullSync + ":int-1",
	}
}

func TestWorker_AcksSuccessfulJob(t *testing.T) {
	executor := &stubExecutor{}
	hook := &recordingHook{}
	worker, err := NewWorker(&stubDequeuer{}, executor, WithHooks(hook))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	delivery := &stubDelivery{msg: pullMessage()}
	if err := worker.Process(context.Background(), delivery); err != nil {
		t.Fatalf("process: %v", err)
	}
	if !delivery.acked || len(delivery.nacks) != 0 {
		t.Fatalf("expected ack only, got acked=%v nacks=%v", delivery.acked, delivery.nacks)
	}
	if len(hook.events) != 2 || hook.events[0] != "start:1" || hook.events[1] != "success:1" {
		t.Fatalf("unexpected hook events %v", hook.events)
	}
}

func TestWorker_RequeuesTransientFailuresWithBackoff(t *testing.T) {
	executor := &stubExecutor{errs: []error{
		&core.ExternalServiceError{Operation: "list", StatusCode: 503, Cause: errors.New("unavailable")},
		fmt.Errorf("push: %w", core.ErrLockUnavailable),
	}}
	hook := &recordingHook{}
	worker, err := NewWorker(&stubDequeuer{}, executor,
		WithHooks(hook),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Minute}),
	)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	first := &boundedDelivery{stubDelivery: stubDelivery{msg: pullMessage()}}
	if err := worker.Process(context.Background(), first); err != nil {
		t.Fatalf("process first: %v", err)
	}
	second := &boundedDelivery{stubDelivery: stubDelivery{msg: pullMessage()}}
	if err := worker.Process(context.Background(), second); err != nil {
		t.Fatalf("process second: %v", err)
	}

	if len(first.nacks) != 1 || !first.nacks[0].Requeue || first.nacks[0].Delay != time.Second {
		t.Fatalf("expected requeue after 1s, got %+v", first.nacks)
	}
	if len(second.nacks) != 1 || second.nacks[0].Delay != 2*time.Second {
		t.Fatalf("expected doubled delay, got %+v", second.nacks)
	}
	if len(second.attempts) != 1 || second.attempts[0] != 2 {
		t.Fatalf("expected bounded nack at attempt 2, got %v", second.attempts)
	}
	if hook.events[1] != "retry:1:1s" || hook.events[3] != "retry:2:2s" {
		t.Fatalf("unexpected hook events %v", hook.events)
	}

	third := &stubDelivery{msg: pullMessage()}
	if err := worker.Process(context.Background(), third); err != nil {
		t.Fatalf("process third: %v", err)
	}
	if !third.acked {
		t.Fatalf("expected third attempt to succeed")
	}
}

func TestWorker_DeadLettersPermanentFailures(t *testing.T) {
	cases := map[string]error{
		"validation":   core.NewValidationFailure([]core.ValidationIssue{{Field: "CustomerRef", Message: "is required"}}),
		"auth expired": fmt.Errorf("refresh: %w", core.ErrAuthenticationExpired),
		"not found":    fmt.Errorf("%w: document doc-1", core.ErrNotFoundLocal),
		"conflict":     &core.VersionConflictError{EntityKind: "Invoice", ExternalID: "130"},
		"bad request":  &core.ExternalServiceError{Operation: "create", StatusCode: 400},
		"invalid job":  fmt.Errorf("%w: unknown job id \"nope\"", core.ErrInvalidRequest),
	}
	for name, cause := range cases {
		t.Run(name, func(t *testing.T) {
			hook := &recordingHook{}
			worker, err := NewWorker(&stubDequeuer{}, &stubExecutor{errs: []error{cause}}, WithHooks(hook))
			if err != nil {
				t.Fatalf("new worker: %v", err)
			}
			delivery := &stubDelivery{msg: pullMessage()}
			if err := worker.Process(context.Background(), delivery); err != nil {
				t.Fatalf("process: %v", err)
			}
			if len(delivery.nacks) != 1 || !delivery.nacks[0].DeadLetter || delivery.nacks[0].Requeue {
				t.Fatalf("expected dead letter, got %+v", delivery.nacks)
			}
			if hook.events[len(hook.events)-1] != "failure:1" {
				t.Fatalf("expected failure hook, got %v", hook.events)
			}
		})
	}
}

func TestWorker_DeadLettersAfterMaxAttempts(t *testing.T) {
	transient := errors.New("connection reset")
	executor := &stubExecutor{errs: []error{transient, transient}}
	worker, err := NewWorker(&stubDequeuer{}, executor, WithRetryPolicy(RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	first := &stubDelivery{msg: pullMessage()}
	_ = worker.Process(context.Background(), first)
	second := &stubDelivery{msg: pullMessage()}
	_ = worker.Process(context.Background(), second)

	if !first.nacks[0].Requeue {
		t.Fatalf("expected first failure to requeue, got %+v", first.nacks)
	}
	if !second.nacks[0].DeadLetter {
		t.Fatalf("expected second failure to dead letter, got %+v", second.nacks)
	}
}

func TestWorker_RunDrainsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := &stubDelivery{msg: pullMessage()}
	second := &stubDelivery{msg: &core.JobExecutionMessage{
		JobID:          core.JobIDPushInvoice,
		Parameters:     map[string]any{"document_id": "doc-1"},
		IdempotencyKey: core.JobIDPushInvoice + ":doc-1",
	}}
	dequeuer := &stubDequeuer{deliveries: []core.JobDelivery{first, second}, cancel: cancel}
	executor := &stubExecutor{}
	worker, err := NewWorker(dequeuer, executor)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if err := worker.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !first.acked || !second.acked {
		t.Fatalf("expected both deliveries acked")
	}
	if len(executor.calls) != 2 || executor.calls[1].JobID != core.JobIDPushInvoice {
		t.Fatalf("unexpected executions %+v", executor.calls)
	}
}

func TestRetryPolicy_BackoffIsCapped(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	if got := policy.Backoff(1); got != time.Second {
		t.Fatalf("attempt 1: got %s", got)
	}
	if got := policy.Backoff(3); got != 4*time.Second {
		t.Fatalf("attempt 3: got %s", got)
	}
	if got := policy.Backoff(10); got != 5*time.Second {
		t.Fatalf("attempt 10: got %s", got)
	}
}

func TestNewWorker_RequiresCollaborators(t *testing.T) {
	if _, err := NewWorker(nil, &stubExecutor{}); err == nil {
		t.Fatalf("expected missing dequeuer to fail")
	}
	if _, err := NewWorker(&stubDequeuer{}, nil); err == nil {
		t.Fatalf("expected missing executor to fail")
	}
}
