// Package gojob runs ledger jobs over go-job queues: messages, deliveries and
// worker hooks are translated in both directions.
package gojob

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"

	"github.com/goliatone/go-ledger-sync/core"
)

// QueueLimits caps what a failed delivery may ask of the queue. A zero value
// imposes no limits.
type QueueLimits struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// Clamp bounds the retry delay and stops requeueing once attempt reaches
// MaxAttempts. The result always either requeues or dead-letters.
func (l QueueLimits) Clamp(opts core.JobNackOptions, attempt int) queue.NackOptions {
	out := queue.NackOptions{
		Delay:      max(opts.Delay, 0),
		Requeue:    opts.Requeue && !opts.DeadLetter,
		DeadLetter: opts.DeadLetter,
		Reason:     strings.TrimSpace(opts.Reason),
	}
	if l.MaxDelay > 0 {
		out.Delay = min(out.Delay, l.MaxDelay)
	}
	if l.MaxAttempts > 0 && attempt >= l.MaxAttempts {
		out.Requeue = false
		out.DeadLetter = out.DeadLetter || l.DeadLetterOnMax
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// EncodeMessage converts a ledger job into a go-job execution message.
func EncodeMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// DecodeMessage is the inverse of EncodeMessage.
func DecodeMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

func cloneParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	return out
}

// Enqueuer publishes ledger jobs on a go-job queue.
type Enqueuer struct {
	queue queue.Enqueuer
}

func NewEnqueuer(q queue.Enqueuer) *Enqueuer {
	return &Enqueuer{queue: q}
}

func (e *Enqueuer) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if e == nil || e.queue == nil {
		return fmt.Errorf("gojob: queue is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: job message is required")
	}
	return e.queue.Enqueue(ctx, EncodeMessage(msg))
}

// Dequeuer hands go-job deliveries to the ledger worker.
type Dequeuer struct {
	queue  queue.Dequeuer
	limits QueueLimits
}

func NewDequeuer(q queue.Dequeuer, limits QueueLimits) *Dequeuer {
	return &Dequeuer{queue: q, limits: limits}
}

func (d *Dequeuer) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if d == nil || d.queue == nil {
		return nil, fmt.Errorf("gojob: queue is not configured")
	}
	delivery, err := d.queue.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return &Delivery{raw: delivery, limits: d.limits}, nil
}

type Delivery struct {
	raw    queue.Delivery
	limits QueueLimits
}

func NewDelivery(raw queue.Delivery, limits QueueLimits) *Delivery {
	return &Delivery{raw: raw, limits: limits}
}

func (d *Delivery) Message() *core.JobExecutionMessage {
	if d == nil || d.raw == nil {
		return nil
	}
	return DecodeMessage(d.raw.Message())
}

func (d *Delivery) Ack(ctx context.Context) error {
	if d == nil || d.raw == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.raw.Ack(ctx)
}

func (d *Delivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

// NackForAttempt applies the queue limits for the given attempt number.
func (d *Delivery) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.raw == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.raw.Nack(ctx, d.limits.Clamp(opts, attempt))
}

// HookBridge lets go-job worker hooks observe the ledger job worker.
type HookBridge struct {
	hook worker.Hook
}

func NewHookBridge(hook worker.Hook) *HookBridge {
	return &HookBridge{hook: hook}
}

func (b *HookBridge) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	b.forward(ctx, event, worker.Hook.OnStart)
}

func (b *HookBridge) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	b.forward(ctx, event, worker.Hook.OnSuccess)
}

func (b *HookBridge) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	b.forward(ctx, event, worker.Hook.OnFailure)
}

func (b *HookBridge) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	b.forward(ctx, event, worker.Hook.OnRetry)
}

func (b *HookBridge) forward(ctx context.Context, event core.JobWorkerEvent, fn func(worker.Hook, context.Context, worker.Event)) {
	if b == nil || b.hook == nil {
		return
	}
	fn(b.hook, ctx, worker.Event{
		Message:   EncodeMessage(event.Message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	})
}

var (
	_ core.JobEnqueuer   = (*Enqueuer)(nil)
	_ core.JobDequeuer   = (*Dequeuer)(nil)
	_ core.JobDelivery   = (*Delivery)(nil)
	_ core.JobWorkerHook = (*HookBridge)(nil)
)
