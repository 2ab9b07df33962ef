package core

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-ledger-sync/transform"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	return []byte("enc:" + base64.StdEncoding.EncodeToString(plaintext)), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := strings.TrimSpace(string(ciphertext))
	if !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
}

type memoryIntegrationStore struct {
	mu   sync.Mutex
	next int
	byID map[string]Integration
}

func newMemoryIntegrationStore() *memoryIntegrationStore {
	return &memoryIntegrationStore{byID: map[string]Integration{}}
}

func (s *memoryIntegrationStore) Create(_ context.Context, in Integration) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	in.ID = fmt.Sprintf("int_%d", s.next)
	in.CreatedAt = testNow.Add(time.Duration(s.next) * time.Second)
	in.UpdatedAt = in.CreatedAt
	s.byID[in.ID] = in
	return in, nil
}

func (s *memoryIntegrationStore) Get(_ context.Context, id string) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return Integration{}, fmt.Errorf("%w: integration %s", ErrNotFoundLocal, id)
	}
	return record, nil
}

func (s *memoryIntegrationStore) Update(_ context.Context, in Integration) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[in.ID]; !ok {
		return Integration{}, fmt.Errorf("%w: integration %s", ErrNotFoundLocal, in.ID)
	}
	s.byID[in.ID] = in
	return in, nil
}

func (s *memoryIntegrationStore) ListByTenant(_ context.Context, tenantID string) ([]Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Integration{}
	for _, record := range s.byID {
		if record.TenantID == tenantID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryIntegrationStore) FindConnected(ctx context.Context, tenantID string, serviceType ServiceType) (Integration, bool, error) {
	records, _ := s.ListByTenant(ctx, tenantID)
	for _, record := range records {
		if record.ServiceType == serviceType && record.Connected() {
			return record, true, nil
		}
	}
	return Integration{}, false, nil
}

type memoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{blobs: map[string][]byte{}}
}

func (s *memoryBlobStore) LoadCredentialBlob(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.blobs[id]...), nil
}

func (s *memoryBlobStore) SaveCredentialBlob(_ context.Context, id string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = append([]byte(nil), blob...)
	return nil
}

func (s *memoryBlobStore) ClearCredentialBlob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, id)
	return nil
}

type memoryMappingStore struct {
	mu           sync.Mutex
	next         int
	rows         []EntityMapping
	beforeCreate func(EntityMapping) error
}

func (s *memoryMappingStore) Find(_ context.Context, lookup MappingLookup) (EntityMapping, bool, error) {
	if err := lookup.Validate(); err != nil {
		return EntityMapping{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.TenantID != lookup.TenantID || row.IntegrationID != lookup.IntegrationID || row.EntityType != lookup.EntityType {
			continue
		}
		if (lookup.ExternalID != "" && row.ExternalID == lookup.ExternalID) ||
			(lookup.LocalID != "" && row.LocalID == lookup.LocalID) {
			return row, true, nil
		}
	}
	return EntityMapping{}, false, nil
}

func (s *memoryMappingStore) Create(_ context.Context, mapping EntityMapping) (EntityMapping, error) {
	if s.beforeCreate != nil {
		if err := s.beforeCreate(mapping); err != nil {
			return EntityMapping{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.TenantID != mapping.TenantID || row.IntegrationID != mapping.IntegrationID || row.EntityType != mapping.EntityType {
			continue
		}
		if row.LocalID == mapping.LocalID || row.ExternalID == mapping.ExternalID {
			return EntityMapping{}, ErrMappingExists
		}
	}
	s.next++
	mapping.ID = fmt.Sprintf("map_%d", s.next)
	s.rows = append(s.rows, mapping)
	return mapping, nil
}

func (s *memoryMappingStore) count(kind EntityType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.rows {
		if row.EntityType == kind {
			n++
		}
	}
	return n
}

type memoryCustomerStore struct {
	mu   sync.Mutex
	next int
	byID map[string]Customer
}

func newMemoryCustomerStore() *memoryCustomerStore {
	return &memoryCustomerStore{byID: map[string]Customer{}}
}

func (s *memoryCustomerStore) Create(_ context.Context, in Customer) (Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	in.ID = fmt.Sprintf("cus_%d", s.next)
	s.byID[in.ID] = in
	return in, nil
}

func (s *memoryCustomerStore) Get(_ context.Context, tenantID, id string) (Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok || record.TenantID != tenantID {
		return Customer{}, fmt.Errorf("%w: customer %s", ErrNotFoundLocal, id)
	}
	return record, nil
}

func (s *memoryCustomerStore) Update(_ context.Context, in Customer) (Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[in.ID] = in
	return in, nil
}

func (s *memoryCustomerStore) FindByName(_ context.Context, tenantID, name string) (Customer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.byID {
		if record.TenantID == tenantID && record.Name == name {
			return record, true, nil
		}
	}
	return Customer{}, false, nil
}

func (s *memoryCustomerStore) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byID[id]
	return ok
}

type memoryVendorStore struct {
	mu   sync.Mutex
	next int
	byID map[string]Vendor
}

func newMemoryVendorStore() *memoryVendorStore {
	return &memoryVendorStore{byID: map[string]Vendor{}}
}

func (s *memoryVendorStore) Create(_ context.Context, in Vendor) (Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	in.ID = fmt.Sprintf("ven_%d", s.next)
	s.byID[in.ID] = in
	return in, nil
}

func (s *memoryVendorStore) Get(_ context.Context, tenantID, id string) (Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok || record.TenantID != tenantID {
		return Vendor{}, fmt.Errorf("%w: vendor %s", ErrNotFoundLocal, id)
	}
	return record, nil
}

func (s *memoryVendorStore) Update(_ context.Context, in Vendor) (Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[in.ID] = in
	return in, nil
}

func (s *memoryVendorStore) FindByName(_ context.Context, tenantID, name string) (Vendor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.byID {
		if record.TenantID == tenantID && record.Name == name {
			return record, true, nil
		}
	}
	return Vendor{}, false, nil
}

type memoryInvoiceStore struct {
	mu   sync.Mutex
	next int
	rows []Invoice
}

func (s *memoryInvoiceStore) Create(_ context.Context, in Invoice) (Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	in.ID = fmt.Sprintf("inv_%d", s.next)
	s.rows = append(s.rows, in)
	return in, nil
}

func (s *memoryInvoiceStore) Update(_ context.Context, in Invoice) (Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for index, row := range s.rows {
		if row.ID == in.ID && row.TenantID == in.TenantID {
			s.rows[index] = in
			return in, nil
		}
	}
	return Invoice{}, fmt.Errorf("%w: invoice %s", ErrNotFoundLocal, in.ID)
}

func (s *memoryInvoiceStore) FindByDocument(_ context.Context, tenantID, documentID string) (Invoice, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.TenantID == tenantID && row.DocumentID == documentID {
			return row, true, nil
		}
	}
	return Invoice{}, false, nil
}

type memoryPurchaseStore struct {
	mu   sync.Mutex
	next int
	rows []Purchase
}

func (s *memoryPurchaseStore) Create(_ context.Context, in Purchase) (Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	in.ID = fmt.Sprintf("pur_%d", s.next)
	s.rows = append(s.rows, in)
	return in, nil
}

func (s *memoryPurchaseStore) Update(_ context.Context, in Purchase) (Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for index, row := range s.rows {
		if row.ID == in.ID && row.TenantID == in.TenantID {
			s.rows[index] = in
			return in, nil
		}
	}
	return Purchase{}, fmt.Errorf("%w: purchase %s", ErrNotFoundLocal, in.ID)
}

func (s *memoryPurchaseStore) FindByDocument(_ context.Context, tenantID, documentID string) (Purchase, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.TenantID == tenantID && row.DocumentID == documentID {
			return row, true, nil
		}
	}
	return Purchase{}, false, nil
}

type memoryDocumentStore struct {
	mu      sync.Mutex
	byID    map[string]Document
	history map[string][]DocumentStatus
}

func newMemoryDocumentStore(docs ...Document) *memoryDocumentStore {
	store := &memoryDocumentStore{byID: map[string]Document{}, history: map[string][]DocumentStatus{}}
	for _, doc := range docs {
		store.byID[doc.ID] = doc
	}
	return store
}

func (s *memoryDocumentStore) Get(_ context.Context, id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.byID[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: document %s", ErrNotFoundLocal, id)
	}
	return doc, nil
}

func (s *memoryDocumentStore) UpdateStatus(_ context.Context, id string, status DocumentStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: document %s", ErrNotFoundLocal, id)
	}
	doc.Status = status
	doc.ErrorMessage = message
	s.byID[id] = doc
	s.history[id] = append(s.history[id], status)
	return nil
}

func (s *memoryDocumentStore) SaveExtraction(_ context.Context, id string, processed, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.byID[id]
	doc.ProcessedData = processed
	doc.RawData = raw
	s.byID[id] = doc
	return nil
}

func (s *memoryDocumentStore) doc(id string) Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

type memorySyncRunStore struct {
	mu   sync.Mutex
	next int
	rows []SyncRun
}

func (s *memorySyncRunStore) Create(_ context.Context, run SyncRun) (SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	run.ID = fmt.Sprintf("run_%d", s.next)
	s.rows = append(s.rows, run)
	return run, nil
}

func (s *memorySyncRunStore) Update(_ context.Context, run SyncRun) (SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == run.ID {
			s.rows[i] = run
			return run, nil
		}
	}
	return SyncRun{}, fmt.Errorf("%w: sync run %s", ErrNotFoundLocal, run.ID)
}

func (s *memorySyncRunStore) ListByIntegration(_ context.Context, tenantID, integrationID string, limit int) ([]SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []SyncRun{}
	for i := len(s.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if s.rows[i].TenantID == tenantID && s.rows[i].IntegrationID == integrationID {
			out = append(out, s.rows[i])
		}
	}
	return out, nil
}

// stubAPI is a scriptable gateway that counts calls per "<op>:<entity>".
type stubAPI struct {
	mu        sync.Mutex
	calls     map[string]int
	payloads  map[string][]any
	countFn   func(kind transform.EntityName) (int, error)
	listFn    func(kind transform.EntityName, page, pageSize int) (ExternalPage, error)
	getFn     func(kind transform.EntityName, id string) (ExternalRecord, error)
	findFn    func(kind transform.EntityName, name string) (ExternalRecord, bool, error)
	createFn  func(kind transform.EntityName, payload any) (ExternalRecord, error)
	updateFn  func(kind transform.EntityName, payload any) (ExternalRecord, error)
	companyFn func() (transform.CompanyInfo, error)
	tokens    []string
}

func newStubAPI() *stubAPI {
	return &stubAPI{calls: map[string]int{}, payloads: map[string][]any{}}
}

func (a *stubAPI) track(op string, kind transform.EntityName, cred IntegrationCredential, payload any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := op + ":" + string(kind)
	a.calls[key]++
	if payload != nil {
		a.payloads[key] = append(a.payloads[key], payload)
	}
	a.tokens = append(a.tokens, cred.AccessToken)
}

func (a *stubAPI) count(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[key]
}

func (a *stubAPI) lastPayload(key string) any {
	a.mu.Lock()
	defer a.mu.Unlock()
	items := a.payloads[key]
	if len(items) == 0 {
		return nil
	}
	return items[len(items)-1]
}

func (a *stubAPI) Count(_ context.Context, cred IntegrationCredential, kind transform.EntityName) (int, error) {
	a.track("Count", kind, cred, nil)
	if a.countFn == nil {
		return 0, nil
	}
	return a.countFn(kind)
}

func (a *stubAPI) List(_ context.Context, cred IntegrationCredential, kind transform.EntityName, page, pageSize int) (ExternalPage, error) {
	a.track("List", kind, cred, nil)
	if a.listFn == nil {
		return ExternalPage{CurrentPage: page, PageSize: pageSize}, nil
	}
	return a.listFn(kind, page, pageSize)
}

func (a *stubAPI) GetByID(_ context.Context, cred IntegrationCredential, kind transform.EntityName, id string) (ExternalRecord, error) {
	a.track("GetByID", kind, cred, nil)
	if a.getFn == nil {
		return ExternalRecord{ID: id, SyncToken: "0"}, nil
	}
	return a.getFn(kind, id)
}

func (a *stubAPI) FindByName(_ context.Context, cred IntegrationCredential, kind transform.EntityName, name string) (ExternalRecord, bool, error) {
	a.track("FindByName", kind, cred, nil)
	if a.findFn == nil {
		return ExternalRecord{}, false, nil
	}
	return a.findFn(kind, name)
}

func (a *stubAPI) Create(_ context.Context, cred IntegrationCredential, kind transform.EntityName, payload any) (ExternalRecord, error) {
	a.track("Create", kind, cred, payload)
	if a.createFn == nil {
		return ExternalRecord{ID: "ext-" + strings.ToLower(string(kind)), SyncToken: "0"}, nil
	}
	return a.createFn(kind, payload)
}

func (a *stubAPI) Update(_ context.Context, cred IntegrationCredential, kind transform.EntityName, payload any) (ExternalRecord, error) {
	a.track("Update", kind, cred, payload)
	if a.updateFn == nil {
		return ExternalRecord{ID: "updated", SyncToken: "1"}, nil
	}
	return a.updateFn(kind, payload)
}

func (a *stubAPI) CompanyInfo(_ context.Context, cred IntegrationCredential) (transform.CompanyInfo, error) {
	a.track("CompanyInfo", transform.EntityCompanyInfo, cred, nil)
	if a.companyFn == nil {
		return transform.CompanyInfo{CompanyName: "Test Co"}, nil
	}
	return a.companyFn()
}

type stubOAuth struct {
	mu           sync.Mutex
	refreshCalls int
	revoked      []string
	refreshFn    func(cred IntegrationCredential) (IntegrationCredential, error)
	exchangeFn   func(code, realmID string) (IntegrationCredential, error)
}

func (o *stubOAuth) AuthorizationURL(state string) (string, error) {
	return "https://appcenter.example/connect?state=" + state, nil
}

func (o *stubOAuth) ExchangeCode(_ context.Context, code, realmID string) (IntegrationCredential, error) {
	if o.exchangeFn != nil {
		return o.exchangeFn(code, realmID)
	}
	return validCredential(realmID), nil
}

func (o *stubOAuth) Refresh(_ context.Context, cred IntegrationCredential) (IntegrationCredential, error) {
	o.mu.Lock()
	o.refreshCalls++
	o.mu.Unlock()
	if o.refreshFn != nil {
		return o.refreshFn(cred)
	}
	expires := testNow.Add(time.Hour)
	return IntegrationCredential{
		TokenType:            "bearer",
		AccessToken:          "refreshed-access",
		AccessTokenExpiresAt: &expires,
	}, nil
}

func (o *stubOAuth) Revoke(_ context.Context, token string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.revoked = append(o.revoked, token)
	return nil
}

func (o *stubOAuth) refreshes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.refreshCalls
}

func validCredential(realmID string) IntegrationCredential {
	expires := testNow.Add(time.Hour)
	refreshExpires := testNow.Add(100 * 24 * time.Hour)
	return IntegrationCredential{
		RealmID:               realmID,
		TokenType:             "bearer",
		AccessToken:           "access-1",
		AccessTokenExpiresAt:  &expires,
		RefreshToken:          "refresh-1",
		RefreshTokenExpiresAt: &refreshExpires,
	}
}

func expiredCredential(realmID string) IntegrationCredential {
	cred := validCredential(realmID)
	expired := testNow.Add(-time.Minute)
	cred.AccessTokenExpiresAt = &expired
	return cred
}

type testHarness struct {
	svc          *Service
	api          *stubAPI
	oauth        *stubOAuth
	integrations *memoryIntegrationStore
	blobs        *memoryBlobStore
	mappings     *memoryMappingStore
	customers    *memoryCustomerStore
	vendors      *memoryVendorStore
	invoices     *memoryInvoiceStore
	purchases    *memoryPurchaseStore
	documents    *memoryDocumentStore
	runs         *memorySyncRunStore
}

func newTestHarness(t *testing.T, opts ...Option) *testHarness {
	t.Helper()
	h := &testHarness{
		api:          newStubAPI(),
		oauth:        &stubOAuth{},
		integrations: newMemoryIntegrationStore(),
		blobs:        newMemoryBlobStore(),
		mappings:     &memoryMappingStore{},
		customers:    newMemoryCustomerStore(),
		vendors:      newMemoryVendorStore(),
		invoices:     &memoryInvoiceStore{},
		purchases:    &memoryPurchaseStore{},
		documents:    newMemoryDocumentStore(),
		runs:         &memorySyncRunStore{},
	}
	base := []Option{
		WithClock(testClock),
		WithStores(Stores{
			Integrations:    h.integrations,
			CredentialBlobs: h.blobs,
			Mappings:        h.mappings,
			Customers:       h.customers,
			Vendors:         h.vendors,
			Invoices:        h.invoices,
			Purchases:       h.purchases,
			Documents:       h.documents,
			SyncRuns:        h.runs,
		}),
		WithExternalAPI(h.api),
		WithOAuthClient(h.oauth),
		WithSecretProvider(testSecretProvider{}),
	}
	svc, err := NewService(Config{}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}

// connect stores a Connected integration for tenant with cred.
func (h *testHarness) connect(t *testing.T, tenantID string, cred IntegrationCredential) Integration {
	t.Helper()
	ctx := context.Background()
	integration, err := h.integrations.Create(ctx, Integration{
		TenantID:    tenantID,
		ServiceType: ServiceTypeQuickBooks,
		Status:      IntegrationConnected,
		RealmID:     cred.RealmID,
	})
	if err != nil {
		t.Fatalf("create integration: %v", err)
	}
	if err := h.svc.credentials.Save(ctx, integration.ID, cred); err != nil {
		t.Fatalf("save credential: %v", err)
	}
	return integration
}

func (h *testHarness) addDocument(doc Document) {
	h.documents.mu.Lock()
	defer h.documents.mu.Unlock()
	h.documents.byID[doc.ID] = doc
}

func customerRecord(id, name string) ExternalRecord {
	raw, _ := json.Marshal(transform.Customer{ID: id, SyncToken: "0", DisplayName: name})
	return ExternalRecord{ID: id, SyncToken: "0", Raw: raw}
}
