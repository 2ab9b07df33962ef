package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ledger-sync/core"
)

type AuthService interface {
	StartAuth(ctx context.Context, req core.StartAuthRequest) (core.StartAuthResponse, error)
	CompleteAuth(ctx context.Context, req core.CompleteAuthRequest) (core.CompleteAuthResponse, error)
	Disconnect(ctx context.Context, tenantID, integrationID string) error
}

type SyncService interface {
	PullSync(ctx context.Context, req core.PullSyncRequest) (core.SyncReport, error)
	PushInvoice(ctx context.Context, documentID string) (core.PushResult, error)
	PushExpense(ctx context.Context, documentID string) (core.PushResult, error)
}

// JobService schedules work on the job queue instead of running it inline.
type JobService interface {
	EnqueuePullSync(ctx context.Context, tenantID, integrationID, trigger string) error
	EnqueuePush(ctx context.Context, documentID string, docType core.DocumentType) error
}

type StartAuthCommand struct {
	service AuthService
}

func NewStartAuthCommand(service AuthService) *StartAuthCommand {
	return &StartAuthCommand{service: service}
}

func (c *StartAuthCommand) Execute(ctx context.Context, msg StartAuthMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: auth service is required")
	}
	out, err := c.service.StartAuth(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteAuthCommand struct {
	service AuthService
}

func NewCompleteAuthCommand(service AuthService) *CompleteAuthCommand {
	return &CompleteAuthCommand{service: service}
}

func (c *CompleteAuthCommand) Execute(ctx context.Context, msg CompleteAuthMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: auth service is required")
	}
	out, err := c.service.CompleteAuth(ctx, msg.Request)
	// a failed initial pull still connects the integration, so keep the outcome
	if out.IntegrationID != "" {
		storeResult(ctx, out)
	}
	return err
}

type DisconnectCommand struct {
	service AuthService
}

func NewDisconnectCommand(service AuthService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: auth service is required")
	}
	return c.service.Disconnect(ctx, msg.TenantID, msg.IntegrationID)
}

type PullSyncCommand struct {
	service SyncService
}

func NewPullSyncCommand(service SyncService) *PullSyncCommand {
	return &PullSyncCommand{service: service}
}

func (c *PullSyncCommand) Execute(ctx context.Context, msg PullSyncMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.PullSync(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PushInvoiceCommand struct {
	service SyncService
}

func NewPushInvoiceCommand(service SyncService) *PushInvoiceCommand {
	return &PushInvoiceCommand{service: service}
}

func (c *PushInvoiceCommand) Execute(ctx context.Context, msg PushInvoiceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.PushInvoice(ctx, msg.DocumentID)
	storePushResult(ctx, out)
	return err
}

type PushExpenseCommand struct {
	service SyncService
}

func NewPushExpenseCommand(service SyncService) *PushExpenseCommand {
	return &PushExpenseCommand{service: service}
}

func (c *PushExpenseCommand) Execute(ctx context.Context, msg PushExpenseMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.PushExpense(ctx, msg.DocumentID)
	storePushResult(ctx, out)
	return err
}

type EnqueuePullSyncCommand struct {
	service JobService
}

func NewEnqueuePullSyncCommand(service JobService) *EnqueuePullSyncCommand {
	return &EnqueuePullSyncCommand{service: service}
}

func (c *EnqueuePullSyncCommand) Execute(ctx context.Context, msg EnqueuePullSyncMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: job service is required")
	}
	return c.service.EnqueuePullSync(ctx, msg.TenantID, msg.IntegrationID, msg.Trigger)
}

type EnqueuePushCommand struct {
	service JobService
}

func NewEnqueuePushCommand(service JobService) *EnqueuePushCommand {
	return &EnqueuePushCommand{service: service}
}

func (c *EnqueuePushCommand) Execute(ctx context.Context, msg EnqueuePushMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: job service is required")
	}
	return c.service.EnqueuePush(ctx, msg.DocumentID, msg.DocumentType)
}

// storePushResult keeps the document outcome even when the push failed.
func storePushResult(ctx context.Context, out core.PushResult) {
	if out.DocumentID == "" {
		return
	}
	storeResult(ctx, out)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
