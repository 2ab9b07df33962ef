package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ledger-sync/core"
)

var (
	_ gocmd.Querier[IntegrationStatusMessage, core.IntegrationStatusReport] = (*IntegrationStatusQuery)(nil)
	_ gocmd.Querier[ListSyncRunsMessage, []core.SyncRun]                    = (*ListSyncRunsQuery)(nil)
	_ gocmd.Querier[FindMappingMessage, MappingResult]                      = (*FindMappingQuery)(nil)
)
