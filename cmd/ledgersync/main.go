package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"

	gocmd "github.com/goliatone/go-command"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-ledger-sync/adapters/gocommand"
	ledgercommand "github.com/goliatone/go-ledger-sync/command"
	"github.com/goliatone/go-ledger-sync/core"
	ledgermigrations "github.com/goliatone/go-ledger-sync/migrations"
	ledgerquery "github.com/goliatone/go-ledger-sync/query"
)

var Version = "dev"

func main() {
	if err := loadEnvIfExists(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	rootCmd := &cobra.Command{
		Use:           "ledgersync",
		Short:         "Sync a tenant's QuickBooks Online company with the document store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")
	flags.StringVar(&opts.DatabaseURL, "database-url", "", "Postgres DSN (default $LEDGERSYNC_DATABASE_URL)")
	flags.StringVar(&opts.RedisAddr, "redis-addr", "", "Redis address for locks and OAuth state (default $LEDGERSYNC_REDIS_ADDR)")
	flags.StringVar(&opts.AppKey, "app-key", "", "Credential encryption key (default $LEDGERSYNC_APP_KEY)")
	flags.BoolVar(&opts.Debug, "debug", false, "Log SQL statements")

	rootCmd.AddCommand(migrateCmd(opts))
	rootCmd.AddCommand(authURLCmd(opts))
	rootCmd.AddCommand(completeAuthCmd(opts))
	rootCmd.AddCommand(pullSyncCmd(opts))
	rootCmd.AddCommand(pushCmd(opts, core.DocumentTypeInvoice))
	rootCmd.AddCommand(pushCmd(opts, core.DocumentTypeReceipt))
	rootCmd.AddCommand(disconnectCmd(opts))
	rootCmd.AddCommand(statusCmd(opts))
	rootCmd.AddCommand(runsCmd(opts))

	return rootCmd
}

func migrateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openPersistence(opts.withEnv(os.LookupEnv))
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			if _, err := ledgermigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
				if dialect == ledgermigrations.DialectPostgres {
					client.RegisterSQLMigrations(fsys)
				}
				return nil
			}, ledgermigrations.WithValidationTargets(ledgermigrations.DialectPostgres)); err != nil {
				return err
			}
			if err := client.Migrate(ctx); err != nil {
				return fmt.Errorf("ledgersync: migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func authURLCmd(opts *cliOptions) *cobra.Command {
	var tenantID, userID string
	cmd := &cobra.Command{
		Use:   "auth-url",
		Short: "Create a pending integration and print the consent URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context) (any, error) {
				return gocommand.DispatchWithResult[ledgercommand.StartAuthMessage, core.StartAuthResponse](ctx, ledgercommand.StartAuthMessage{
					Request: core.StartAuthRequest{TenantID: tenantID, UserID: userID},
				})
			})
		},
	}
	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant ID")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User starting the connection")
	return cmd
}

func completeAuthCmd(opts *cliOptions) *cobra.Command {
	var code, state, realmID string
	cmd := &cobra.Command{
		Use:   "complete-auth",
		Short: "Exchange the callback code and run the initial sync",
		Long: `Exchange the OAuth callback code for tokens, activate the integration and
run the initial customer and vendor sync. auth-url and complete-auth only
share OAuth state across processes when --redis-addr is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context) (any, error) {
				return gocommand.DispatchWithResult[ledgercommand.CompleteAuthMessage, core.CompleteAuthResponse](ctx, ledgercommand.CompleteAuthMessage{
					Request: core.CompleteAuthRequest{Code: code, State: state, RealmID: realmID},
				})
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "Authorization code from the callback")
	cmd.Flags().StringVar(&state, "state", "", "State parameter from the callback")
	cmd.Flags().StringVar(&realmID, "realm-id", "", "realmId parameter from the callback")
	return cmd
}

func pullSyncCmd(opts *cliOptions) *cobra.Command {
	var tenantID, integrationID, trigger string
	cmd := &cobra.Command{
		Use:   "pull-sync",
		Short: "Pull customers and vendors into the mapping store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context) (any, error) {
				return gocommand.DispatchWithResult[ledgercommand.PullSyncMessage, core.SyncReport](ctx, ledgercommand.PullSyncMessage{
					Request: core.PullSyncRequest{TenantID: tenantID, IntegrationID: integrationID, Trigger: trigger},
				})
			})
		},
	}
	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant ID")
	cmd.Flags().StringVarP(&integrationID, "integration", "i", "", "Integration ID")
	cmd.Flags().StringVar(&trigger, "trigger", "manual", "Trigger recorded on the sync run")
	return cmd
}

func pushCmd(opts *cliOptions, docType core.DocumentType) *cobra.Command {
	use, short := "push-invoice", "Push an invoice document to QuickBooks"
	if docType == core.DocumentTypeReceipt {
		use, short = "push-expense", "Push a receipt document to QuickBooks as a purchase"
	}
	return &cobra.Command{
		Use:   use + " [document-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context) (any, error) {
				if docType == core.DocumentTypeReceipt {
					return gocommand.DispatchWithResult[ledgercommand.PushExpenseMessage, core.PushResult](ctx, ledgercommand.PushExpenseMessage{DocumentID: args[0]})
				}
				return gocommand.DispatchWithResult[ledgercommand.PushInvoiceMessage, core.PushResult](ctx, ledgercommand.PushInvoiceMessage{DocumentID: args[0]})
			})
		},
	}
}

func disconnectCmd(opts *cliOptions) *cobra.Command {
	var tenantID, integrationID string
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Revoke tokens and deactivate an integration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context) (any, error) {
				err := gocommand.Dispatch(ctx, ledgercommand.DisconnectMessage{TenantID: tenantID, IntegrationID: integrationID})
				if err != nil {
					return nil, err
				}
				return map[string]string{"integration_id": integrationID, "status": "disconnected"}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant ID")
	cmd.Flags().StringVarP(&integrationID, "integration", "i", "", "Integration ID")
	return cmd
}

func statusCmd(opts *cliOptions) *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the tenant's integration and last sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context) (any, error) {
				return gocommand.Query[ledgerquery.IntegrationStatusMessage, core.IntegrationStatusReport](ctx, ledgerquery.IntegrationStatusMessage{TenantID: tenantID})
			})
		},
	}
	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant ID")
	return cmd
}

func runsCmd(opts *cliOptions) *cobra.Command {
	var tenantID, integrationID string
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent sync runs for an integration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context) (any, error) {
				return gocommand.Query[ledgerquery.ListSyncRunsMessage, []core.SyncRun](ctx, ledgerquery.ListSyncRunsMessage{
					TenantID:      tenantID,
					IntegrationID: integrationID,
					Limit:         limit,
				})
			})
		},
	}
	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant ID")
	cmd.Flags().StringVarP(&integrationID, "integration", "i", "", "Integration ID")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs")
	return cmd
}

// withSession opens the runtime, subscribes the handlers for the duration of
// fn and prints its result as JSON. A partial result is printed before the
// error is returned.
func withSession(cmd *cobra.Command, opts *cliOptions, fn func(ctx context.Context) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sess, err := openSession(ctx, opts.withEnv(os.LookupEnv))
	if err != nil {
		return err
	}
	defer sess.Close()

	subs, err := sess.runtime.RegisterHandlers(gocmd.NewRegistry())
	if err != nil {
		return err
	}
	defer subs.Unsubscribe()

	out, runErr := fn(ctx)
	if out != nil && !isZeroResult(out) {
		if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	}
	return runErr
}

func isZeroResult(out any) bool {
	switch v := out.(type) {
	case core.PushResult:
		return v.DocumentID == ""
	case core.CompleteAuthResponse:
		return v.IntegrationID == ""
	case core.StartAuthResponse:
		return v.IntegrationID == ""
	case core.SyncReport:
		return v.RunID == ""
	}
	return false
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
