package core

import (
	"context"
	"fmt"
	"strings"
)

const (
	JobIDPullSync    = "ledgersync.pull_sync"
	JobIDPushInvoice = "ledgersync.push_invoice"
	JobIDPushExpense = "ledgersync.push_expense"
)

// EnqueuePullSync schedules a pull-sync for integrationID on the job queue.
func (s *Service) EnqueuePullSync(ctx context.Context, tenantID, integrationID, trigger string) error {
	if s.jobs == nil {
		return fmt.Errorf("core: job enqueuer is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	integrationID = strings.TrimSpace(integrationID)
	if tenantID == "" || integrationID == "" {
		return fmt.Errorf("%w: tenant id and integration id are required", ErrInvalidRequest)
	}
	return s.jobs.Enqueue(ctx, &JobExecutionMessage{
		JobID: JobIDPullSync,
		Parameters: map[string]any{
			"tenant_id":      tenantID,
			"integration_id": integrationID,
			"trigger":        strings.TrimSpace(trigger),
		},
		IdempotencyKey: JobIDPullSync + ":" + integrationID,
		DedupPolicy:    "drop",
	})
}

// EnqueuePush schedules the push of one document.
func (s *Service) EnqueuePush(ctx context.Context, documentID string, docType DocumentType) error {
	if s.jobs == nil {
		return fmt.Errorf("core: job enqueuer is not configured")
	}
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidRequest)
	}
	jobID := JobIDPushInvoice
	if docType == DocumentTypeReceipt {
		jobID = JobIDPushExpense
	}
	return s.jobs.Enqueue(ctx, &JobExecutionMessage{
		JobID:          jobID,
		Parameters:     map[string]any{"document_id": documentID},
		IdempotencyKey: jobID + ":" + documentID,
		DedupPolicy:    "drop",
	})
}

// ExecuteJob runs one queued job message against the service.
func (s *Service) ExecuteJob(ctx context.Context, msg *JobExecutionMessage) (any, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: job message is required", ErrInvalidRequest)
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDPullSync:
		return s.PullSync(ctx, PullSyncRequest{
			TenantID:      stringParam(msg.Parameters, "tenant_id"),
			IntegrationID: stringParam(msg.Parameters, "integration_id"),
			Trigger:       firstNonBlank(stringParam(msg.Parameters, "trigger"), "job"),
		})
	case JobIDPushInvoice:
		return s.PushInvoice(ctx, stringParam(msg.Parameters, "document_id"))
	case JobIDPushExpense:
		return s.PushExpense(ctx, stringParam(msg.Parameters, "document_id"))
	default:
		return nil, fmt.Errorf("%w: unknown job id %q", ErrInvalidRequest, msg.JobID)
	}
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
