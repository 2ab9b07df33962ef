package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-ledger-sync/transform"
)

func TestStartAndCompleteAuthConnectsAndRunsInitialPull(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.api.countFn = customerCount(3)
	h.api.listFn = pagedCustomers(3)
	h.api.companyFn = func() (transform.CompanyInfo, error) {
		return transform.CompanyInfo{CompanyName: "Sandbox Company_US_1"}, nil
	}

	start, err := h.svc.StartAuth(ctx, StartAuthRequest{TenantID: "tenant-1", UserID: "user-1"})
	if err != nil {
		t.Fatalf("start auth: %v", err)
	}
	if start.State == "" || !strings.Contains(start.RedirectURL, start.State) {
		t.Fatalf("expected redirect carrying state, got %+v", start)
	}
	pending, _ := h.integrations.Get(ctx, start.IntegrationID)
	if pending.Status != IntegrationDisconnected {
		t.Fatalf("expected pre-created integration to be disconnected, got %q", pending.Status)
	}

	done, err := h.svc.CompleteAuth(ctx, CompleteAuthRequest{Code: "code-1", State: start.State, RealmID: "realm-1"})
	if err != nil {
		t.Fatalf("complete auth: %v", err)
	}
	if done.IntegrationID != start.IntegrationID || done.TenantID != "tenant-1" {
		t.Fatalf("unexpected completion: %+v", done)
	}
	if done.Report == nil || done.Report.Kinds[EntityTypeCustomer].Created != 3 {
		t.Fatalf("expected initial pull to create 3 customers, got %+v", done.Report)
	}
	connected, _ := h.integrations.Get(ctx, start.IntegrationID)
	if connected.Status != IntegrationConnected || connected.RealmID != "realm-1" || connected.Name != "Sandbox Company_US_1" {
		t.Fatalf("unexpected integration after connect: %+v", connected)
	}
	cred, found, err := h.svc.credentials.Load(ctx, start.IntegrationID)
	if err != nil || !found || cred.RealmID != "realm-1" {
		t.Fatalf("expected stored credential, found=%v err=%v cred=%+v", found, err, cred)
	}
	if blob := string(h.blobs.blobs[start.IntegrationID]); !strings.HasPrefix(blob, "enc:") {
		t.Fatalf("expected credential blob to be sealed, got %q", blob)
	}

	_, err = h.svc.CompleteAuth(ctx, CompleteAuthRequest{Code: "code-2", State: start.State, RealmID: "realm-1"})
	if !errors.Is(err, ErrOAuthStateInvalid) {
		t.Fatalf("expected consumed state to be rejected, got %v", err)
	}
}

func TestStartAuthDisconnectsPreviousIntegration(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	previous := h.connect(t, "tenant-1", validCredential("realm-1"))

	if _, err := h.svc.StartAuth(ctx, StartAuthRequest{TenantID: "tenant-1"}); err != nil {
		t.Fatalf("start auth: %v", err)
	}
	stored, _ := h.integrations.Get(ctx, previous.ID)
	if stored.Status != IntegrationDisconnected {
		t.Fatalf("expected previous integration to be disconnected, got %q", stored.Status)
	}
	if _, found, _ := h.svc.credentials.Load(ctx, previous.ID); found {
		t.Fatalf("expected previous credential to be cleared")
	}
}

func TestCompleteAuthExchangeFailureLeavesIntegrationDisconnected(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.oauth.exchangeFn = func(code, realmID string) (IntegrationCredential, error) {
		return IntegrationCredential{}, errors.New("invalid_grant")
	}

	start, err := h.svc.StartAuth(ctx, StartAuthRequest{TenantID: "tenant-1"})
	if err != nil {
		t.Fatalf("start auth: %v", err)
	}
	if _, err := h.svc.CompleteAuth(ctx, CompleteAuthRequest{Code: "bad", State: start.State, RealmID: "realm-1"}); err == nil {
		t.Fatalf("expected exchange failure")
	}
	stored, _ := h.integrations.Get(ctx, start.IntegrationID)
	if stored.Status != IntegrationDisconnected {
		t.Fatalf("expected integration to stay disconnected, got %q", stored.Status)
	}
	if _, found, _ := h.svc.credentials.Load(ctx, start.IntegrationID); found {
		t.Fatalf("expected no credential after failed exchange")
	}
}

func TestCompleteAuthInitialPullFailureKeepsConnection(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.api.countFn = func(transform.EntityName) (int, error) {
		return 0, &ExternalServiceError{Operation: "count", StatusCode: 503}
	}
	start, _ := h.svc.StartAuth(ctx, StartAuthRequest{TenantID: "tenant-1"})

	done, err := h.svc.CompleteAuth(ctx, CompleteAuthRequest{Code: "code-1", State: start.State, RealmID: "realm-1"})
	if err == nil {
		t.Fatalf("expected initial pull error")
	}
	if done.Report == nil {
		t.Fatalf("expected partial report on failure")
	}
	stored, _ := h.integrations.Get(ctx, start.IntegrationID)
	if stored.Status != IntegrationConnected {
		t.Fatalf("expected integration to remain connected, got %q", stored.Status)
	}
}

type recordingEnqueuer struct {
	messages []*JobExecutionMessage
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	r.messages = append(r.messages, msg)
	return nil
}

func TestCompleteAuthQueuesInitialPullWhenAsync(t *testing.T) {
	ctx := context.Background()
	jobs := &recordingEnqueuer{}
	h := newTestHarness(t, WithJobEnqueuer(jobs))
	h.svc.config.Sync.InitialSyncAsync = true

	start, _ := h.svc.StartAuth(ctx, StartAuthRequest{TenantID: "tenant-1"})
	done, err := h.svc.CompleteAuth(ctx, CompleteAuthRequest{Code: "code-1", State: start.State, RealmID: "realm-1"})
	if err != nil {
		t.Fatalf("complete auth: %v", err)
	}
	if !done.SyncQueued || done.Report != nil {
		t.Fatalf("expected queued initial sync, got %+v", done)
	}
	if len(jobs.messages) != 1 || jobs.messages[0].JobID != JobIDPullSync {
		t.Fatalf("expected one pull job, got %+v", jobs.messages)
	}
	if h.api.count("Count:Customer") != 0 {
		t.Fatalf("expected no inline pull")
	}
}

func TestDisconnectRevokesAndClearsCredential(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	integration := h.connect(t, "tenant-1", validCredential("realm-1"))

	if err := h.svc.Disconnect(ctx, "tenant-1", integration.ID); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if len(h.oauth.revoked) != 1 || h.oauth.revoked[0] != "refresh-1" {
		t.Fatalf("expected refresh token revocation, got %v", h.oauth.revoked)
	}
	stored, _ := h.integrations.Get(ctx, integration.ID)
	if stored.Status != IntegrationDisconnected || stored.DisconnectedAt == nil {
		t.Fatalf("expected disconnected integration, got %+v", stored)
	}
	if _, found, _ := h.svc.credentials.Load(ctx, integration.ID); found {
		t.Fatalf("expected credential to be cleared")
	}
	if err := h.svc.Disconnect(ctx, "tenant-2", integration.ID); !errors.Is(err, ErrNotFoundLocal) {
		t.Fatalf("expected cross-tenant disconnect to be rejected, got %v", err)
	}
}

func TestIntegrationStatusReportsActiveLink(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)

	empty, err := h.svc.IntegrationStatus(ctx, "tenant-1")
	if err != nil || empty.HasActiveIntegration || empty.Integration != nil {
		t.Fatalf("expected empty status, got %+v err=%v", empty, err)
	}

	integration := h.connect(t, "tenant-1", validCredential("realm-1"))
	if _, err := h.svc.PullSync(ctx, PullSyncRequest{TenantID: "tenant-1", IntegrationID: integration.ID}); err != nil {
		t.Fatalf("pull sync: %v", err)
	}
	status, err := h.svc.IntegrationStatus(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("integration status: %v", err)
	}
	if !status.HasActiveIntegration || status.RealmID != "realm-1" {
		t.Fatalf("expected active integration, got %+v", status)
	}
	if status.LastSync == nil || status.LastSync.Status != SyncRunSynced {
		t.Fatalf("expected last sync run, got %+v", status.LastSync)
	}

	runs, err := h.svc.ListSyncRuns(ctx, "tenant-1", integration.ID, 5)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one sync run, got %d err=%v", len(runs), err)
	}
}

func TestExecuteJobDispatchesByID(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	integration := h.connect(t, "tenant-1", validCredential("realm-1"))
	h.addDocument(invoiceDocument("doc-1", "tenant-1", widgetInvoice))

	out, err := h.svc.ExecuteJob(ctx, &JobExecutionMessage{
		JobID:      JobIDPullSync,
		Parameters: map[string]any{"tenant_id": "tenant-1", "integration_id": integration.ID},
	})
	if err != nil {
		t.Fatalf("pull job: %v", err)
	}
	if _, ok := out.(SyncReport); !ok {
		t.Fatalf("expected sync report, got %T", out)
	}
	if h.runs.rows[0].Trigger != "job" {
		t.Fatalf("expected job trigger, got %q", h.runs.rows[0].Trigger)
	}

	out, err = h.svc.ExecuteJob(ctx, &JobExecutionMessage{
		JobID:      JobIDPushInvoice,
		Parameters: map[string]any{"document_id": "doc-1"},
	})
	if err != nil {
		t.Fatalf("push job: %v", err)
	}
	if result, ok := out.(PushResult); !ok || result.Status != DocumentProcessed {
		t.Fatalf("expected processed push result, got %#v", out)
	}

	if _, err := h.svc.ExecuteJob(ctx, &JobExecutionMessage{JobID: "other"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected unknown job to be an invalid request, got %v", err)
	}
	if _, err := h.svc.ExecuteJob(ctx, &JobExecutionMessage{JobID: JobIDPushInvoice}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected push without document id to be an invalid request, got %v", err)
	}
}
