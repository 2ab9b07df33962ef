package command

import "github.com/goliatone/go-ledger-sync/core"

const (
	TypeStartAuth       = "ledgersync.command.auth.start"
	TypeCompleteAuth    = "ledgersync.command.auth.complete"
	TypeDisconnect      = "ledgersync.command.integration.disconnect"
	TypePullSync        = "ledgersync.command.sync.pull"
	TypePushInvoice     = "ledgersync.command.push.invoice"
	TypePushExpense     = "ledgersync.command.push.expense"
	TypeEnqueuePullSync = "ledgersync.command.sync.pull.enqueue"
	TypeEnqueuePush     = "ledgersync.command.push.enqueue"
)

type StartAuthMessage struct {
	Request core.StartAuthRequest
}

func (StartAuthMessage) Type() string { return TypeStartAuth }

func (m StartAuthMessage) Validate() error {
	return fieldErrors{}.
		require("tenant_id", m.Request.TenantID).
		require("user_id", m.Request.UserID).
		err()
}

type CompleteAuthMessage struct {
	Request core.CompleteAuthRequest
}

func (CompleteAuthMessage) Type() string { return TypeCompleteAuth }

func (m CompleteAuthMessage) Validate() error {
	return fieldErrors{}.
		require("state", m.Request.State).
		require("code", m.Request.Code).
		require("realm_id", m.Request.RealmID).
		err()
}

type DisconnectMessage struct {
	TenantID      string
	IntegrationID string
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	return validateIntegrationRef(m.TenantID, m.IntegrationID)
}

type PullSyncMessage struct {
	Request core.PullSyncRequest
}

func (PullSyncMessage) Type() string { return TypePullSync }

func (m PullSyncMessage) Validate() error {
	return validateIntegrationRef(m.Request.TenantID, m.Request.IntegrationID)
}

type PushInvoiceMessage struct {
	DocumentID string
}

func (PushInvoiceMessage) Type() string { return TypePushInvoice }

func (m PushInvoiceMessage) Validate() error {
	return validateDocumentID(m.DocumentID)
}

type PushExpenseMessage struct {
	DocumentID string
}

func (PushExpenseMessage) Type() string { return TypePushExpense }

func (m PushExpenseMessage) Validate() error {
	return validateDocumentID(m.DocumentID)
}

type EnqueuePullSyncMessage struct {
	TenantID      string
	IntegrationID string
	Trigger       string
}

func (EnqueuePullSyncMessage) Type() string { return TypeEnqueuePullSync }

func (m EnqueuePullSyncMessage) Validate() error {
	return validateIntegrationRef(m.TenantID, m.IntegrationID)
}

type EnqueuePushMessage struct {
	DocumentID   string
	DocumentType core.DocumentType
}

func (EnqueuePushMessage) Type() string { return TypeEnqueuePush }

func (m EnqueuePushMessage) Validate() error {
	errs := fieldErrors{}.require("document_id", m.DocumentID)
	switch m.DocumentType {
	case core.DocumentTypeInvoice, core.DocumentTypeReceipt:
	default:
		errs = errs.add("document_type", "document type must be Invoice or Receipt")
	}
	return errs.err()
}

func validateIntegrationRef(tenantID, integrationID string) error {
	return fieldErrors{}.
		require("tenant_id", tenantID).
		require("integration_id", integrationID).
		err()
}

func validateDocumentID(documentID string) error {
	return fieldErrors{}.require("document_id", documentID).err()
}
