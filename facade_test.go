package ledgersync_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	gosync "sync"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	ledgersync "github.com/goliatone/go-ledger-sync"
	"github.com/goliatone/go-ledger-sync/adapters/gocommand"
	"github.com/goliatone/go-ledger-sync/adapters/gojob"
	ledgercommand "github.com/goliatone/go-ledger-sync/command"
	"github.com/goliatone/go-ledger-sync/core"
	ledgermigrations "github.com/goliatone/go-ledger-sync/migrations"
	ledgerquery "github.com/goliatone/go-ledger-sync/query"
)

const testRealm = "9130350000000001"

func TestSetup_RequiresDB(t *testing.T) {
	if _, err := ledgersync.Setup(ledgersync.Config{}, ledgersync.Dependencies{}); err == nil {
		t.Fatalf("expected missing db to fail")
	}
}

func TestRuntime_ConnectPullAndReport(t *testing.T) {
	provider := newFakeQuickBooks(t)
	runtime := newTestRuntime(t, provider, ledgersync.Dependencies{})
	ctx := context.Background()

	start, err := runtime.Service().StartAuth(ctx, ledgersync.StartAuthRequest{TenantID: "tenant-1", UserID: "user-1"})
	if err != nil {
		t.Fatalf("start auth: %v", err)
	}
	redirect, err := url.Parse(start.RedirectURL)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	if redirect.Query().Get("state") != start.State || redirect.Query().Get("client_id") != "client-1" {
		t.Fatalf("unexpected redirect url: %s", start.RedirectURL)
	}

	completed, err := runtime.Service().CompleteAuth(ctx, ledgersync.CompleteAuthRequest{
		Code:    "auth-code",
		State:   start.State,
		RealmID: testRealm,
	})
	if err != nil {
		t.Fatalf("complete auth: %v", err)
	}
	if completed.CompanyName != "Sandbox Company_US_1" {
		t.Fatalf("expected company name from provider, got %q", completed.CompanyName)
	}
	if completed.Report == nil || completed.Report.Kinds[core.EntityTypeCustomer].Created != 1 {
		t.Fatalf("expected one created customer, got %#v", completed.Report)
	}

	status, err := runtime.Queries().IntegrationStatus.Query(ctx, ledgerquery.IntegrationStatusMessage{TenantID: "tenant-1"})
	if err != nil {
		t.Fatalf("integration status: %v", err)
	}
	if !status.HasActiveIntegration || status.RealmID != testRealm {
		t.Fatalf("unexpected status: %#v", status)
	}

	mapping, err := runtime.Queries().FindMapping.Query(ctx, ledgerquery.FindMappingMessage{Lookup: core.MappingLookup{
		TenantID:      "tenant-1",
		IntegrationID: completed.IntegrationID,
		EntityType:    core.EntityTypeCustomer,
		ExternalID:    "58",
	}})
	if err != nil {
		t.Fatalf("find mapping: %v", err)
	}
	if !mapping.Found || mapping.Mapping.LocalID == "" {
		t.Fatalf("expected customer mapping, got %#v", mapping)
	}

	runs, err := runtime.Queries().ListSyncRuns.Query(ctx, ledgerquery.ListSyncRunsMessage{
		TenantID: "tenant-1", IntegrationID: completed.IntegrationID, Limit: 5,
	})
	if err != nil {
		t.Fatalf("list sync runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != core.SyncRunSynced {
		t.Fatalf("expected one synced run, got %#v", runs)
	}

	if got := provider.tokenCalls(); got != 1 {
		t.Fatalf("expected one token exchange, got %d", got)
	}
}

func TestRuntime_RegisterHandlersDispatchesThroughCommandBus(t *testing.T) {
	runtime := newTestRuntime(t, newFakeQuickBooks(t), ledgersync.Dependencies{})

	subs, err := runtime.RegisterHandlers(gocmd.NewRegistry())
	if err != nil {
		t.Fatalf("register handlers: %v", err)
	}
	defer subs.Unsubscribe()

	ctx := context.Background()
	start, err := gocommand.DispatchWithResult[ledgercommand.StartAuthMessage, core.StartAuthResponse](ctx, ledgercommand.StartAuthMessage{
		Request: core.StartAuthRequest{TenantID: "tenant-2", UserID: "user-2"},
	})
	if err != nil {
		t.Fatalf("dispatch start auth: %v", err)
	}
	if start.IntegrationID == "" || start.State == "" {
		t.Fatalf("expected start auth result, got %#v", start)
	}

	status, err := gocommand.Query[ledgerquery.IntegrationStatusMessage, core.IntegrationStatusReport](ctx, ledgerquery.IntegrationStatusMessage{TenantID: "tenant-2"})
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status.HasActiveIntegration {
		t.Fatalf("expected pending integration to be inactive")
	}
}

func TestRuntime_JobLoggersBridgeRuntimeLogger(t *testing.T) {
	runtime := newTestRuntime(t, newFakeQuickBooks(t), ledgersync.Dependencies{})
	if _, logger := runtime.JobLoggers(); logger == nil {
		t.Fatalf("expected go-job logger bridge")
	}
	var empty *ledgersync.Runtime
	if provider, logger := empty.JobLoggers(); provider != nil || logger != nil {
		t.Fatalf("expected nil bridges from nil runtime")
	}
}

func TestRuntime_QueuedInitialSyncRunsOnWorker(t *testing.T) {
	provider := newFakeQuickBooks(t)
	jobs := &memoryQueue{}
	cfg := testConfig(provider)
	cfg.Sync.InitialSyncAsync = true
	runtime := newTestRuntimeWithConfig(t, cfg, ledgersync.Dependencies{Queue: jobs, AppKey: "test-app-key"})
	ctx := context.Background()

	start, err := runtime.Service().StartAuth(ctx, ledgersync.StartAuthRequest{TenantID: "tenant-3", UserID: "user-3"})
	if err != nil {
		t.Fatalf("start auth: %v", err)
	}
	completed, err := runtime.Service().CompleteAuth(ctx, ledgersync.CompleteAuthRequest{
		Code: "auth-code", State: start.State, RealmID: testRealm,
	})
	if err != nil {
		t.Fatalf("complete auth: %v", err)
	}
	if !completed.SyncQueued || completed.Report != nil {
		t.Fatalf("expected queued initial sync, got %#v", completed)
	}
	if jobs.len() != 1 {
		t.Fatalf("expected one queued job, got %d", jobs.len())
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	jobs.onEmpty = cancel
	if err := runtime.RunWorker(runCtx, jobs, gojob.QueueLimits{MaxAttempts: 3}); err != nil {
		t.Fatalf("run worker: %v", err)
	}
	if jobs.acked != 1 {
		t.Fatalf("expected queued pull sync to be acked, got acked=%d nacked=%d", jobs.acked, jobs.nacked)
	}

	runs, err := runtime.Service().ListSyncRuns(ctx, "tenant-3", completed.IntegrationID, 0)
	if err != nil {
		t.Fatalf("list sync runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Trigger != "initial" {
		t.Fatalf("expected one initial run, got %#v", runs)
	}
}

type fakeQuickBooks struct {
	server *httptest.Server
	mu     gosync.Mutex
	tokens int
}

func newFakeQuickBooks(t *testing.T) *fakeQuickBooks {
	t.Helper()
	fake := &fakeQuickBooks{}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/v1/tokens/bearer", func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		fake.tokens++
		fake.mu.Unlock()
		_, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"access-1","refresh_token":"refresh-1","token_type":"bearer","expires_in":3600,"x_refresh_token_expires_in":8726400}`)
	})
	mux.HandleFunc("/oauth2/v1/tokens/revoke", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	prefix := "/v3/company/" + testRealm
	mux.HandleFunc(prefix+"/companyinfo/"+testRealm, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"CompanyInfo":{"Id":"1","CompanyName":"Sandbox Company_US_1","Country":"US"}}`)
	})
	mux.HandleFunc(prefix+"/query", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		statement := r.URL.Query().Get("query")
		switch {
		case statement == "select count(*) from Customer":
			fmt.Fprint(w, `{"QueryResponse":{"totalCount":1}}`)
		case strings.HasPrefix(statement, "select * from Customer startposition"):
			fmt.Fprint(w, `{"QueryResponse":{"Customer":[{"Id":"58","SyncToken":"0","DisplayName":"Amy's Bird Sanctuary","PrimaryEmailAddr":{"Address":"birds@intuit.com"}}],"startPosition":1,"maxResults":1}}`)
		default:
			fmt.Fprint(w, `{"QueryResponse":{}}`)
		}
	})
	fake.server = httptest.NewServer(mux)
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeQuickBooks) tokenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens
}

func testConfig(provider *fakeQuickBooks) ledgersync.Config {
	cfg := ledgersync.DefaultConfig()
	cfg.OAuth.ClientID = "client-1"
	cfg.OAuth.ClientSecret = "secret-1"
	cfg.OAuth.RedirectURI = "https://app.example.com/quickbooks/callback"
	cfg.OAuth.TokenURL = provider.server.URL + "/oauth2/v1/tokens/bearer"
	cfg.OAuth.RevokeURL = provider.server.URL + "/oauth2/v1/tokens/revoke"
	cfg.API.BaseURL = provider.server.URL + "/v3/company"
	return cfg
}

func newTestRuntime(t *testing.T, provider *fakeQuickBooks, deps ledgersync.Dependencies) *ledgersync.Runtime {
	t.Helper()
	return newTestRuntimeWithConfig(t, testConfig(provider), deps)
}

func newTestRuntimeWithConfig(t *testing.T, cfg ledgersync.Config, deps ledgersync.Dependencies) *ledgersync.Runtime {
	t.Helper()
	deps.DB = newMigratedSQLite(t)
	if deps.MappingCacheTTL == 0 {
		deps.MappingCacheTTL = time.Minute
	}
	runtime, err := ledgersync.Setup(cfg, deps)
	if err != nil {
		t.Fatalf("setup runtime: %v", err)
	}
	return runtime
}

type testPersistenceConfig struct {
	server string
}

func (testPersistenceConfig) GetDebug() bool { return false }

func (testPersistenceConfig) GetDriver() string { return "sqlite3" }

func (c testPersistenceConfig) GetServer() string { return c.server }

func (testPersistenceConfig) GetPingTimeout() time.Duration { return time.Second }

func (testPersistenceConfig) GetOtelIdentifier() string { return "go-ledger-sync-tests" }

func newMigratedSQLite(t *testing.T) *bun.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger-sync-facade-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	client, err := persistence.New(testPersistenceConfig{server: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	if _, err := ledgermigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect == ledgermigrations.DialectSQLite {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, ledgermigrations.WithValidationTargets(ledgermigrations.DialectSQLite)); err != nil {
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return client.DB()
}

// memoryQueue is a single-process go-job queue for the worker test.
type memoryQueue struct {
	mu      gosync.Mutex
	pending []*job.ExecutionMessage
	acked   int
	nacked  int
	onEmpty func()
}

func (q *memoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, msg)
	return nil
}

func (q *memoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		if q.onEmpty != nil {
			q.onEmpty()
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	q.mu.Unlock()
	return &memoryDelivery{queue: q, msg: msg}, nil
}

func (q *memoryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

type memoryDelivery struct {
	queue *memoryQueue
	msg   *job.ExecutionMessage
}

func (d *memoryDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *memoryDelivery) Ack(context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.queue.acked++
	return nil
}

func (d *memoryDelivery) Nack(context.Context, queue.NackOptions) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.queue.nacked++
	return nil
}
