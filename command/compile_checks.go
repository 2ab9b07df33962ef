package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[StartAuthMessage]       = (*StartAuthCommand)(nil)
	_ gocmd.Commander[CompleteAuthMessage]    = (*CompleteAuthCommand)(nil)
	_ gocmd.Commander[DisconnectMessage]      = (*DisconnectCommand)(nil)
	_ gocmd.Commander[PullSyncMessage]        = (*PullSyncCommand)(nil)
	_ gocmd.Commander[PushInvoiceMessage]     = (*PushInvoiceCommand)(nil)
	_ gocmd.Commander[PushExpenseMessage]     = (*PushExpenseCommand)(nil)
	_ gocmd.Commander[EnqueuePullSyncMessage] = (*EnqueuePullSyncCommand)(nil)
	_ gocmd.Commander[EnqueuePushMessage]     = (*EnqueuePushCommand)(nil)
)
