package query

import (
	"context"

	"github.com/goliatone/go-ledger-sync/core"
)

type IntegrationStatusReader interface {
	IntegrationStatus(ctx context.Context, tenantID string) (core.IntegrationStatusReport, error)
}

type SyncRunReader interface {
	ListSyncRuns(ctx context.Context, tenantID, integrationID string, limit int) ([]core.SyncRun, error)
}

type MappingReader interface {
	FindMapping(ctx context.Context, lookup core.MappingLookup) (core.EntityMapping, bool, error)
}

type IntegrationStatusQuery struct {
	reader IntegrationStatusReader
}

func NewIntegrationStatusQuery(reader IntegrationStatusReader) *IntegrationStatusQuery {
	return &IntegrationStatusQuery{reader: reader}
}

func (q *IntegrationStatusQuery) Query(
	ctx context.Context,
	msg IntegrationStatusMessage,
) (core.IntegrationStatusReport, error) {
	if q == nil || q.reader == nil {
		return core.IntegrationStatusReport{}, queryDependencyError("query: integration status reader is required")
	}
	return q.reader.IntegrationStatus(ctx, msg.TenantID)
}

type ListSyncRunsQuery struct {
	reader SyncRunReader
}

func NewListSyncRunsQuery(reader SyncRunReader) *ListSyncRunsQuery {
	return &ListSyncRunsQuery{reader: reader}
}

func (q *ListSyncRunsQuery) Query(ctx context.Context, msg ListSyncRunsMessage) ([]core.SyncRun, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: sync run reader is required")
	}
	return q.reader.ListSyncRuns(ctx, msg.TenantID, msg.IntegrationID, msg.Limit)
}

type FindMappingQuery struct {
	reader MappingReader
}

func NewFindMappingQuery(reader MappingReader) *FindMappingQuery {
	return &FindMappingQuery{reader: reader}
}

func (q *FindMappingQuery) Query(ctx context.Context, msg FindMappingMessage) (MappingResult, error) {
	if q == nil || q.reader == nil {
		return MappingResult{}, queryDependencyError("query: mapping reader is required")
	}
	mapping, found, err := q.reader.FindMapping(ctx, msg.Lookup)
	if err != nil {
		return MappingResult{}, err
	}
	return MappingResult{Mapping: mapping, Found: found}, nil
}
