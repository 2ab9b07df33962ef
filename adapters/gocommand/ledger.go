package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"

	ledgercommand "github.com/goliatone/go-ledger-sync/command"
	"github.com/goliatone/go-ledger-sync/core"
	ledgerquery "github.com/goliatone/go-ledger-sync/query"
)

// LedgerService is the surface the ledger command and query handlers need.
// core.Service satisfies it.
type LedgerService interface {
	ledgercommand.AuthService
	ledgercommand.SyncService
	ledgercommand.JobService
	ledgerquery.IntegrationStatusReader
	ledgerquery.SyncRunReader
	ledgerquery.MappingReader
}

type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// RegisterLedgerHandlers registers and subscribes every ledger command and
// query. On error the handlers already subscribed are removed again.
func RegisterLedgerHandlers(
	bus *Bus,
	svc LedgerService,
	runnerOpts ...runner.Option,
) (Subscriptions, error) {
	if svc == nil {
		return nil, fmt.Errorf("gocommand: ledger service is required")
	}
	var (
		subs Subscriptions
		err  error
	)
	track := func(sub commanddispatcher.Subscription, regErr error) bool {
		if regErr != nil {
			err = regErr
			return false
		}
		subs = append(subs, sub)
		return true
	}
	ok := track(Register[ledgercommand.StartAuthMessage](bus, ledgercommand.NewStartAuthCommand(svc), runnerOpts...)) &&
		track(Register[ledgercommand.CompleteAuthMessage](bus, ledgercommand.NewCompleteAuthCommand(svc), runnerOpts...)) &&
		track(Register[ledgercommand.DisconnectMessage](bus, ledgercommand.NewDisconnectCommand(svc), runnerOpts...)) &&
		track(Register[ledgercommand.PullSyncMessage](bus, ledgercommand.NewPullSyncCommand(svc), runnerOpts...)) &&
		track(Register[ledgercommand.PushInvoiceMessage](bus, ledgercommand.NewPushInvoiceCommand(svc), runnerOpts...)) &&
		track(Register[ledgercommand.PushExpenseMessage](bus, ledgercommand.NewPushExpenseCommand(svc), runnerOpts...)) &&
		track(Register[ledgercommand.EnqueuePullSyncMessage](bus, ledgercommand.NewEnqueuePullSyncCommand(svc), runnerOpts...)) &&
		track(Register[ledgercommand.EnqueuePushMessage](bus, ledgercommand.NewEnqueuePushCommand(svc), runnerOpts...)) &&
		track(RegisterQuery[ledgerquery.IntegrationStatusMessage, core.IntegrationStatusReport](bus, ledgerquery.NewIntegrationStatusQuery(svc), runnerOpts...)) &&
		track(RegisterQuery[ledgerquery.ListSyncRunsMessage, []core.SyncRun](bus, ledgerquery.NewListSyncRunsQuery(svc), runnerOpts...)) &&
		track(RegisterQuery[ledgerquery.FindMappingMessage, ledgerquery.MappingResult](bus, ledgerquery.NewFindMappingQuery(svc), runnerOpts...))
	if !ok {
		subs.Unsubscribe()
		return nil, err
	}
	return subs, nil
}
