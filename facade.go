package ledgersync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-command/runner"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-sync/adapters/gocommand"
	"github.com/goliatone/go-ledger-sync/adapters/gojob"
	"github.com/goliatone/go-ledger-sync/adapters/gologger"
	ledgercommand "github.com/goliatone/go-ledger-sync/command"
	"github.com/goliatone/go-ledger-sync/core"
	"github.com/goliatone/go-ledger-sync/providers/quickbooks"
	ledgerquery "github.com/goliatone/go-ledger-sync/query"
	"github.com/goliatone/go-ledger-sync/ratelimit"
	"github.com/goliatone/go-ledger-sync/security"
	sqlstore "github.com/goliatone/go-ledger-sync/store/sql"
	"github.com/goliatone/go-ledger-sync/store/redislock"
	jobworker "github.com/goliatone/go-ledger-sync/sync"
	"github.com/goliatone/go-ledger-sync/transport"
)

// Dependencies are the host-owned resources a Runtime is built on. Only DB
// is required.
type Dependencies struct {
	DB         *bun.DB
	HTTPClient transport.HTTPDoer
	// Redis, when set, backs the advisory locks and the OAuth state store.
	Redis redis.UniversalClient
	// AppKey encrypts the credential blob at rest.
	AppKey string
	// MappingCacheTTL enables the read-through mapping cache when positive.
	MappingCacheTTL time.Duration
	Storage         core.StorageService
	Extraction      core.ExtractionService
	Queue           queue.Enqueuer
	Logger          glog.Logger
	LoggerProvider  glog.LoggerProvider
}

type Commands struct {
	StartAuth       *ledgercommand.StartAuthCommand
	CompleteAuth    *ledgercommand.CompleteAuthCommand
	Disconnect      *ledgercommand.DisconnectCommand
	PullSync        *ledgercommand.PullSyncCommand
	PushInvoice     *ledgercommand.PushInvoiceCommand
	PushExpense     *ledgercommand.PushExpenseCommand
	EnqueuePullSync *ledgercommand.EnqueuePullSyncCommand
	EnqueuePush     *ledgercommand.EnqueuePushCommand
}

type Queries struct {
	IntegrationStatus *ledgerquery.IntegrationStatusQuery
	ListSyncRuns      *ledgerquery.ListSyncRunsQuery
	FindMapping       *ledgerquery.FindMappingQuery
}

// Runtime is a fully wired ledger sync engine.
type Runtime struct {
	service  *core.Service
	stores   *sqlstore.RepositoryFactory
	commands Commands
	queries  Queries
	logger   glog.Logger
	provider glog.LoggerProvider
}

// Setup resolves cfg over the defaults and wires the QuickBooks gateway,
// the bun stores and the optional redis, cache and queue collaborators into
// a core.Service. Extra opts are applied last and win.
func Setup(cfg Config, deps Dependencies, opts ...Option) (*Runtime, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("ledgersync: bun db is required")
	}
	resolved, err := core.GoOptionsResolver{}.Resolve(core.DefaultConfig(), core.Config{}, cfg)
	if err != nil {
		return nil, err
	}
	provider, logger := gologger.Resolve(resolved.ServiceName, deps.LoggerProvider, deps.Logger)

	rest := transport.NewRESTAdapter(deps.HTTPClient)
	throttle := ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())
	transportLogger := gologger.Component("transport", provider, logger)
	apiTransport := ratelimit.NewThrottleAdapter(
		transport.NewBreakerAdapter("quickbooks-api", rest, resolved.API.Breaker, transportLogger),
		throttle,
		transportLogger,
	)
	oauthTransport := ratelimit.NewThrottleAdapter(
		transport.NewBreakerAdapter("quickbooks-oauth", rest, resolved.API.Breaker, transportLogger),
		throttle,
		transportLogger,
	)
	gateway, err := quickbooks.NewGateway(quickbooks.GatewayConfig{
		BaseURL:        resolved.APIBaseURL(),
		MinorVersion:   resolved.API.MinorVersion,
		RequestTimeout: resolved.API.RequestTimeout,
		Transport:      apiTransport,
		Logger:         gologger.Component("gateway", provider, logger),
	})
	if err != nil {
		return nil, err
	}
	oauthClient, err := quickbooks.NewOAuthClient(quickbooks.OAuthConfig{
		ClientID:       resolved.OAuth.ClientID,
		ClientSecret:   resolved.OAuth.ClientSecret,
		RedirectURI:    resolved.OAuth.RedirectURI,
		AuthURL:        resolved.OAuth.AuthURL,
		TokenURL:       resolved.OAuth.TokenURL,
		RevokeURL:      resolved.OAuth.RevokeURL,
		Scopes:         resolved.OAuth.Scopes,
		RequestTimeout: resolved.OAuth.RequestTimeout,
		Transport:      oauthTransport,
	})
	if err != nil {
		return nil, err
	}

	var factoryOpts []sqlstore.FactoryOption
	if deps.MappingCacheTTL > 0 {
		cacheConfig := repositorycache.DefaultConfig()
		cacheConfig.TTL = deps.MappingCacheTTL
		cacheService, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			return nil, fmt.Errorf("ledgersync: mapping cache: %w", err)
		}
		factoryOpts = append(factoryOpts, sqlstore.WithMappingCache(cacheService))
	}
	factory, err := sqlstore.NewRepositoryFactoryFromDB(deps.DB, factoryOpts...)
	if err != nil {
		return nil, err
	}
	stores, err := factory.Stores()
	if err != nil {
		return nil, err
	}

	serviceOpts := []Option{
		core.WithLoggerProvider(provider),
		core.WithLogger(logger),
		core.WithStores(stores),
		core.WithExternalAPI(gateway),
		core.WithOAuthClient(oauthClient),
		core.WithStorageService(deps.Storage),
		core.WithExtractionService(deps.Extraction),
	}
	if key := strings.TrimSpace(deps.AppKey); key != "" {
		secrets, err := security.NewAppKeySecretProviderFromString(key)
		if err != nil {
			return nil, err
		}
		serviceOpts = append(serviceOpts, core.WithSecretProvider(secrets))
	}
	if deps.Redis != nil {
		locker, err := redislock.New(deps.Redis)
		if err != nil {
			return nil, err
		}
		states, err := redislock.NewStateStore(deps.Redis, resolved.OAuth.StateTTL)
		if err != nil {
			return nil, err
		}
		serviceOpts = append(serviceOpts, core.WithLocker(locker), core.WithOAuthStateStore(states))
	}
	if deps.Queue != nil {
		serviceOpts = append(serviceOpts, core.WithJobEnqueuer(gojob.NewEnqueuer(deps.Queue)))
	}

	service, err := core.NewService(resolved, append(serviceOpts, opts...)...)
	if err != nil {
		return nil, err
	}
	return newRuntime(service, factory, provider, logger), nil
}

func newRuntime(service *core.Service, factory *sqlstore.RepositoryFactory, provider glog.LoggerProvider, logger glog.Logger) *Runtime {
	return &Runtime{
		service: service,
		stores:  factory,
		commands: Commands{
			StartAuth:       ledgercommand.NewStartAuthCommand(service),
			CompleteAuth:    ledgercommand.NewCompleteAuthCommand(service),
			Disconnect:      ledgercommand.NewDisconnectCommand(service),
			PullSync:        ledgercommand.NewPullSyncCommand(service),
			PushInvoice:     ledgercommand.NewPushInvoiceCommand(service),
			PushExpense:     ledgercommand.NewPushExpenseCommand(service),
			EnqueuePullSync: ledgercommand.NewEnqueuePullSyncCommand(service),
			EnqueuePush:     ledgercommand.NewEnqueuePushCommand(service),
		},
		queries: Queries{
			IntegrationStatus: ledgerquery.NewIntegrationStatusQuery(service),
			ListSyncRuns:      ledgerquery.NewListSyncRunsQuery(service),
			FindMapping:       ledgerquery.NewFindMappingQuery(service),
		},
		logger:   logger,
		provider: provider,
	}
}

func (r *Runtime) Service() *core.Service {
	if r == nil {
		return nil
	}
	return r.service
}

func (r *Runtime) Stores() *sqlstore.RepositoryFactory {
	if r == nil {
		return nil
	}
	return r.stores
}

func (r *Runtime) Commands() Commands {
	if r == nil {
		return Commands{}
	}
	return r.commands
}

func (r *Runtime) Queries() Queries {
	if r == nil {
		return Queries{}
	}
	return r.queries
}

// RegisterHandlers subscribes every ledger command and query on the
// go-command dispatcher and registers them with registry.
func (r *Runtime) RegisterHandlers(registry *gocmd.Registry, runnerOpts ...runner.Option) (gocommand.Subscriptions, error) {
	if r == nil || r.service == nil {
		return nil, fmt.Errorf("ledgersync: runtime is not initialized")
	}
	return gocommand.RegisterLedgerHandlers(gocommand.NewBus(registry), r.service, runnerOpts...)
}

// JobLoggers returns the runtime loggers for hosts that run ledger jobs on a
// go-job queue runtime.
func (r *Runtime) JobLoggers() (job.LoggerProvider, job.Logger) {
	if r == nil {
		return nil, nil
	}
	return gologger.ToJobProvider(r.provider), gologger.ToJobLogger(r.logger)
}

// NewWorker builds a job worker draining dequeuer into the service.
func (r *Runtime) NewWorker(dequeuer queue.Dequeuer, limits gojob.QueueLimits, opts ...jobworker.Option) (*jobworker.Worker, error) {
	if r == nil || r.service == nil {
		return nil, fmt.Errorf("ledgersync: runtime is not initialized")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("ledgersync: job dequeuer is required")
	}
	base := []jobworker.Option{
		jobworker.WithLogger(gologger.Component("worker", r.provider, r.logger)),
	}
	return jobworker.NewWorker(gojob.NewDequeuer(dequeuer, limits), r.service, append(base, opts...)...)
}

// RunWorker drains dequeuer until ctx is cancelled.
func (r *Runtime) RunWorker(ctx context.Context, dequeuer queue.Dequeuer, limits gojob.QueueLimits, opts ...jobworker.Option) error {
	worker, err := r.NewWorker(dequeuer, limits, opts...)
	if err != nil {
		return err
	}
	return worker.Run(ctx)
}
