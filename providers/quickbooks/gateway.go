package quickbooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-ledger-sync/core"
	"github.com/goliatone/go-ledger-sync/transform"
)

const (
	defaultMinorVersion   = "70"
	defaultRequestTimeout = 30 * time.Second
)

var errRecordNotFound = errors.New("quickbooks: record not found")

type GatewayConfig struct {
	// BaseURL is the company API root without the realm segment.
	BaseURL        string
	MinorVersion   string
	RequestTimeout time.Duration
	Transport      core.TransportAdapter
	Logger         glog.Logger
}

// Gateway implements core.ExternalAPI over the QuickBooks Online v3 REST API.
type Gateway struct {
	baseURL      string
	minorVersion string
	timeout      time.Duration
	transport    core.TransportAdapter
	logger       glog.Logger
}

func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("quickbooks: gateway base url is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("quickbooks: gateway transport is required")
	}
	minor := strings.TrimSpace(cfg.MinorVersion)
	if minor == "" {
		minor = defaultMinorVersion
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Gateway{
		baseURL:      baseURL,
		minorVersion: minor,
		timeout:      timeout,
		transport:    cfg.Transport,
		logger:       glog.Ensure(cfg.Logger),
	}, nil
}

type call struct {
	operation  string
	kind       transform.EntityName
	externalID string
	syncToken  string
	method     string
	path       string
	query      map[string]string
	body       []byte
}

type queryEnvelope struct {
	QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
}

type recordIdentity struct {
	ID        string `json:"Id"`
	SyncToken string `json:"SyncToken"`
}

func (g *Gateway) Count(ctx context.Context, cred core.IntegrationCredential, kind transform.EntityName) (int, error) {
	response, err := g.query(ctx, cred, "count", kind, countStatement(kind))
	if err != nil {
		return 0, err
	}
	return readTotalCount(response), nil
}

// List returns one page. TotalCount is only populated when the provider
// reports it; callers that need it use Count.
func (g *Gateway) List(ctx context.Context, cred core.IntegrationCredential, kind transform.EntityName, page, pageSize int) (core.ExternalPage, error) {
	if pageSize <= 0 {
		return core.ExternalPage{}, fmt.Errorf("quickbooks: page size must be positive")
	}
	if page < 1 {
		page = 1
	}
	response, err := g.query(ctx, cred, "list", kind, listStatement(kind, page, pageSize))
	if err != nil {
		return core.ExternalPage{}, err
	}
	items, err := readRecords(response, kind)
	if err != nil {
		return core.ExternalPage{}, &core.ExternalServiceError{Operation: "list", EntityKind: string(kind), Cause: err}
	}
	return core.ExternalPage{
		Items:       items,
		CurrentPage: page,
		PageSize:    pageSize,
		TotalCount:  readTotalCount(response),
	}, nil
}

func (g *Gateway) GetByID(ctx context.Context, cred core.IntegrationCredential, kind transform.EntityName, id string) (core.ExternalRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return core.ExternalRecord{}, fmt.Errorf("quickbooks: external id is required")
	}
	response, err := g.query(ctx, cred, "get", kind, byIDStatement(kind, id))
	if err != nil {
		return core.ExternalRecord{}, err
	}
	items, err := readRecords(response, kind)
	if err != nil {
		return core.ExternalRecord{}, &core.ExternalServiceError{Operation: "get", EntityKind: string(kind), ExternalID: id, Cause: err}
	}
	if len(items) == 0 {
		return core.ExternalRecord{}, &core.ExternalServiceError{
			Operation:  "get",
			EntityKind: string(kind),
			ExternalID: id,
			StatusCode: http.StatusNotFound,
			Cause:      errRecordNotFound,
		}
	}
	return items[0], nil
}

func (g *Gateway) FindByName(ctx context.Context, cred core.IntegrationCredential, kind transform.EntityName, name string) (core.ExternalRecord, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.ExternalRecord{}, false, nil
	}
	response, err := g.query(ctx, cred, "find_by_name", kind, byNameStatement(kind, name))
	if err != nil {
		return core.ExternalRecord{}, false, err
	}
	items, err := readRecords(response, kind)
	if err != nil {
		return core.ExternalRecord{}, false, &core.ExternalServiceError{Operation: "find_by_name", EntityKind: string(kind), Cause: err}
	}
	if len(items) == 0 {
		return core.ExternalRecord{}, false, nil
	}
	return items[0], true, nil
}

func (g *Gateway) Create(ctx context.Context, cred core.IntegrationCredential, kind transform.EntityName, payload any) (core.ExternalRecord, error) {
	return g.write(ctx, cred, "create", kind, payload)
}

// Update posts a full or sparse payload. The payload must carry the live Id
// and SyncToken; a stale token surfaces as *core.VersionConflictError.
func (g *Gateway) Update(ctx context.Context, cred core.IntegrationCredential, kind transform.EntityName, payload any) (core.ExternalRecord, error) {
	return g.write(ctx, cred, "update", kind, payload)
}

func (g *Gateway) CompanyInfo(ctx context.Context, cred core.IntegrationCredential) (transform.CompanyInfo, error) {
	realm := strings.TrimSpace(cred.RealmID)
	body, err := g.do(ctx, cred, call{
		operation: "company_info",
		kind:      transform.EntityCompanyInfo,
		method:    http.MethodGet,
		path:      "companyinfo/" + realm,
	})
	if err != nil {
		return transform.CompanyInfo{}, err
	}
	raw, err := unwrapEntity(body, transform.EntityCompanyInfo)
	if err != nil {
		return transform.CompanyInfo{}, &core.ExternalServiceError{Operation: "company_info", Cause: err}
	}
	info := transform.CompanyInfo{}
	if err := json.Unmarshal(raw, &info); err != nil {
		return transform.CompanyInfo{}, &core.ExternalServiceError{Operation: "company_info", Cause: err}
	}
	return info, nil
}

func (g *Gateway) write(ctx context.Context, cred core.IntegrationCredential, operation string, kind transform.EntityName, payload any) (core.ExternalRecord, error) {
	if payload == nil {
		return core.ExternalRecord{}, fmt.Errorf("quickbooks: %s payload is required", operation)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return core.ExternalRecord{}, fmt.Errorf("quickbooks: encode %s payload: %w", kind, err)
	}
	identity := recordIdentity{}
	_ = json.Unmarshal(encoded, &identity)
	if operation == "update" && (identity.ID == "" || identity.SyncToken == "") {
		return core.ExternalRecord{}, fmt.Errorf("quickbooks: update of %s requires Id and SyncToken", kind)
	}

	body, err := g.do(ctx, cred, call{
		operation:  operation,
		kind:       kind,
		externalID: identity.ID,
		syncToken:  identity.SyncToken,
		method:     http.MethodPost,
		path:       resourcePath(kind),
		body:       encoded,
	})
	if err != nil {
		return core.ExternalRecord{}, err
	}
	raw, err := unwrapEntity(body, kind)
	if err != nil {
		return core.ExternalRecord{}, &core.ExternalServiceError{Operation: operation, EntityKind: string(kind), ExternalID: identity.ID, Cause: err}
	}
	return recordOf(raw)
}

func (g *Gateway) query(ctx context.Context, cred core.IntegrationCredential, operation string, kind transform.EntityName, statement string) (queryEnvelope, error) {
	body, err := g.do(ctx, cred, call{
		operation: operation,
		kind:      kind,
		method:    http.MethodGet,
		path:      "query",
		query:     map[string]string{"query": statement},
	})
	if err != nil {
		return queryEnvelope{}, err
	}
	envelope := queryEnvelope{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return queryEnvelope{}, &core.ExternalServiceError{Operation: operation, EntityKind: string(kind), Cause: err}
	}
	return envelope, nil
}

func (g *Gateway) do(ctx context.Context, cred core.IntegrationCredential, c call) ([]byte, error) {
	realm := strings.TrimSpace(cred.RealmID)
	if realm == "" {
		return nil, fmt.Errorf("%w: credential has no realm id", core.ErrAuthenticationExpired)
	}
	query := map[string]string{"minorversion": g.minorVersion}
	for key, value := range c.query {
		query[key] = value
	}
	headers := map[string]string{
		"Authorization": cred.AuthorizationHeader(),
		"Accept":        "application/json",
	}
	if len(c.body) > 0 {
		headers["Content-Type"] = "application/json"
	}

	res, err := g.transport.Do(ctx, core.TransportRequest{
		Method:  c.method,
		URL:     g.baseURL + "/" + realm + "/" + c.path,
		Headers: headers,
		Query:   query,
		Body:    c.body,
		Timeout: g.timeout,
	})
	if err != nil {
		wrapped := &core.ExternalServiceError{
			Operation:  c.operation,
			EntityKind: string(c.kind),
			ExternalID: c.externalID,
			Cause:      err,
		}
		g.logFailure(c, 0, wrapped)
		return nil, wrapped
	}

	var providerFault *ProviderFault
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		providerFault = decodeFault(res.StatusCode, res.Body)
	} else {
		providerFault = bodyFault(res.StatusCode, res.Body)
	}
	if providerFault != nil {
		classified := classify(providerFault, c.operation, string(c.kind), c.externalID, c.syncToken)
		g.logFailure(c, res.StatusCode, classified)
		return nil, classified
	}

	g.logger.Debug("quickbooks request completed",
		"operation", c.operation,
		"entity_kind", string(c.kind),
		"external_id", c.externalID,
		"status_code", res.StatusCode,
		"duration_ms", res.Duration.Milliseconds(),
		"intuit_tid", res.Headers["Intuit_tid"],
	)
	return res.Body, nil
}

func (g *Gateway) logFailure(c call, status int, err error) {
	args := []any{
		"operation", c.operation,
		"entity_kind", string(c.kind),
		"external_id", c.externalID,
		"status_code", status,
		"error", err,
	}
	if core.IsVersionConflict(err) || core.IsAuthenticationExpired(err) {
		g.logger.Warn("quickbooks request rejected", args...)
		return
	}
	g.logger.Error("quickbooks request failed", args...)
}

func readRecords(envelope queryEnvelope, kind transform.EntityName) ([]core.ExternalRecord, error) {
	raw, ok := envelope.QueryResponse[string(kind)]
	if !ok || len(raw) == 0 {
		return []core.ExternalRecord{}, nil
	}
	items := []json.RawMessage{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("quickbooks: decode %s query items: %w", kind, err)
	}
	out := make([]core.ExternalRecord, 0, len(items))
	for _, item := range items {
		record, err := recordOf(item)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

func readTotalCount(envelope queryEnvelope) int {
	raw, ok := envelope.QueryResponse["totalCount"]
	if !ok {
		return 0
	}
	total, err := strconv.Atoi(strings.Trim(strings.TrimSpace(string(raw)), `"`))
	if err != nil {
		return 0
	}
	return total
}

func recordOf(raw json.RawMessage) (core.ExternalRecord, error) {
	identity := recordIdentity{}
	if err := json.Unmarshal(raw, &identity); err != nil {
		return core.ExternalRecord{}, fmt.Errorf("quickbooks: decode record identity: %w", err)
	}
	return core.ExternalRecord{
		ID:        identity.ID,
		SyncToken: identity.SyncToken,
		Raw:       append(json.RawMessage(nil), raw...),
	}, nil
}

func unwrapEntity(body []byte, kind transform.EntityName) (json.RawMessage, error) {
	wrapper := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("quickbooks: decode %s response: %w", kind, err)
	}
	raw, ok := wrapper[string(kind)]
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("quickbooks: response has no %s object", kind)
	}
	return raw, nil
}

var _ core.ExternalAPI = (*Gateway)(nil)
