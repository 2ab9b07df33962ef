package query

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ledger-sync/core"
)

const (
	TypeIntegrationStatus = "ledgersync.query.integration.status"
	TypeListSyncRuns      = "ledgersync.query.sync_runs.list"
	TypeFindMapping       = "ledgersync.query.mapping.find"

	MaxSyncRunsLimit = 100
)

type IntegrationStatusMessage struct {
	TenantID string
}

func (IntegrationStatusMessage) Type() string { return TypeIntegrationStatus }

func (m IntegrationStatusMessage) Validate() error {
	return invalid(missing(map[string]string{"tenant_id": m.TenantID})...)
}

type ListSyncRunsMessage struct {
	TenantID      string
	IntegrationID string
	Limit         int
}

func (ListSyncRunsMessage) Type() string { return TypeListSyncRuns }

func (m ListSyncRunsMessage) Validate() error {
	fields := missing(map[string]string{"tenant_id": m.TenantID, "integration_id": m.IntegrationID})
	if m.Limit < 0 || m.Limit > MaxSyncRunsLimit {
		fields = append(fields, goerrors.FieldError{Field: "limit", Message: fmt.Sprintf("limit must be between 0 and %d", MaxSyncRunsLimit)})
	}
	return invalid(fields...)
}

type FindMappingMessage struct {
	Lookup core.MappingLookup
}

func (FindMappingMessage) Type() string { return TypeFindMapping }

func (m FindMappingMessage) Validate() error {
	return wrapInvalid(m.Lookup.Validate(), "query: invalid mapping lookup")
}

// MappingResult reports a lookup that found nothing with Found set to false.
type MappingResult struct {
	Mapping core.EntityMapping
	Found   bool
}
