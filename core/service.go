package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-ledger-sync/transform"
)

// Service is the sync orchestrator. Operations return the typed errors
// declared in this package; MapError turns them into transport envelopes.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	obs             observer
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	states          OAuthStateStore
	locker          Locker
	credentials     CredentialStore
	tokens          *TokenManager
	stores          Stores
	api             ExternalAPI
	oauth           OAuthClient
	transformer     *transform.Transformer
	validator       *transform.Validator
	storage         StorageService
	extraction      ExtractionService
	jobs            JobEnqueuer
	now             func() time.Time
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("ledgersync", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("ledgersync"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.oauthStateStore == nil {
		builder.oauthStateStore = NewMemoryOAuthStateStoreWithClock(finalConfig.OAuth.StateTTL, builder.clock)
	}
	if builder.locker == nil {
		builder.locker = NewMemoryLocker()
	}
	if builder.transformer == nil {
		builder.transformer = transform.New(
			transform.WithDefaults(finalConfig.TransformDefaults()),
			transform.WithClock(builder.clock),
			transform.WithLogger(logger),
		)
	}
	if builder.validator == nil {
		validator, err := transform.DefaultValidator()
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		builder.validator = validator
	}

	credentials := NewCredentialVault(builder.stores.CredentialBlobs, builder.credentialCodec, builder.secretProvider)
	tokens := NewTokenManager(TokenManagerDeps{
		Credentials: credentials,
		OAuth:       builder.oauthClient,
		Locker:      builder.locker,
		Config:      finalConfig.Tokens,
		Clock:       builder.clock,
		Logger:      logger,
		Metrics:     builder.metricsRecorder,
	})

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		obs:             observer{logger: logger, metrics: builder.metricsRecorder, prefix: finalConfig.ServiceName},
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		states:          builder.oauthStateStore,
		locker:          builder.locker,
		credentials:     credentials,
		tokens:          tokens,
		stores:          builder.stores,
		api:             builder.externalAPI,
		oauth:           builder.oauthClient,
		transformer:     builder.transformer,
		validator:       builder.validator,
		storage:         builder.storage,
		extraction:      builder.extraction,
		jobs:            builder.jobEnqueuer,
		now:             builder.clock,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) Tokens() *TokenManager {
	if s == nil {
		return nil
	}
	return s.tokens
}

// MapError renders err with the configured error mapper.
func (s *Service) MapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

type StartAuthRequest struct {
	TenantID string
	UserID   string
}

type StartAuthResponse struct {
	IntegrationID string
	State         string
	RedirectURL   string
}

// StartAuth disconnects any connected integration of the tenant, pre-creates
// a Disconnected one keyed by a fresh state token and returns the provider
// consent URL.
func (s *Service) StartAuth(ctx context.Context, req StartAuthRequest) (response StartAuthResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"tenant_id": req.TenantID, "user_id": req.UserID}
	defer func() {
		if response.IntegrationID != "" {
			fields["integration_id"] = response.IntegrationID
		}
		s.obs.observeOperation(ctx, startedAt, "start_auth", err, fields)
	}()

	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		return StartAuthResponse{}, fmt.Errorf("%w: tenant id is required", ErrInvalidRequest)
	}
	if s.stores.Integrations == nil {
		return StartAuthResponse{}, fmt.Errorf("core: integration store is not configured")
	}
	if s.oauth == nil {
		return StartAuthResponse{}, fmt.Errorf("core: oauth client is not configured")
	}

	existing, err := s.stores.Integrations.ListByTenant(ctx, tenantID)
	if err != nil {
		return StartAuthResponse{}, err
	}
	for _, integration := range existing {
		if integration.ServiceType != ServiceTypeQuickBooks || !integration.Connected() {
			continue
		}
		if err := s.markDisconnected(ctx, integration); err != nil {
			return StartAuthResponse{}, err
		}
	}

	created, err := s.stores.Integrations.Create(ctx, Integration{
		TenantID:    tenantID,
		UserID:      strings.TrimSpace(req.UserID),
		ServiceType: ServiceTypeQuickBooks,
		Name:        "QuickBooks",
		Status:      IntegrationDisconnected,
	})
	if err != nil {
		return StartAuthResponse{}, err
	}

	state, err := generateOAuthState()
	if err != nil {
		return StartAuthResponse{}, err
	}
	now := s.now()
	if err := s.states.Save(ctx, OAuthStateRecord{
		State:         state,
		TenantID:      tenantID,
		UserID:        created.UserID,
		IntegrationID: created.ID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.config.OAuth.StateTTL),
	}); err != nil {
		return StartAuthResponse{}, err
	}
	redirect, err := s.oauth.AuthorizationURL(state)
	if err != nil {
		return StartAuthResponse{}, err
	}
	return StartAuthResponse{IntegrationID: created.ID, State: state, RedirectURL: redirect}, nil
}

type CompleteAuthRequest struct {
	Code    string
	State   string
	RealmID string
}

type CompleteAuthResponse struct {
	IntegrationID string
	TenantID      string
	CompanyName   string
	Report        *SyncReport
	SyncQueued    bool
}

// CompleteAuth consumes the state token, exchanges the code, connects the
// integration and runs the initial pull-sync. A failed exchange leaves the
// integration Disconnected with no credential. A failed initial pull leaves
// it Connected and returns the pull error.
func (s *Service) CompleteAuth(ctx context.Context, req CompleteAuthRequest) (response CompleteAuthResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"realm_id": req.RealmID}
	defer func() {
		if response.IntegrationID != "" {
			fields["integration_id"] = response.IntegrationID
		}
		s.obs.observeOperation(ctx, startedAt, "complete_auth", err, fields)
	}()

	if s.stores.Integrations == nil {
		return CompleteAuthResponse{}, fmt.Errorf("core: integration store is not configured")
	}
	record, err := s.states.Consume(ctx, req.State)
	if err != nil {
		return CompleteAuthResponse{}, err
	}
	integration, err := s.stores.Integrations.Get(ctx, record.IntegrationID)
	if err != nil {
		return CompleteAuthResponse{}, err
	}
	response.IntegrationID = integration.ID
	response.TenantID = integration.TenantID

	cred, err := s.tokens.ExchangeAuthorizationCode(ctx, req.Code, req.RealmID)
	if err != nil {
		if clearErr := s.markDisconnected(ctx, integration); clearErr != nil {
			s.logger.Warn("failed to reset integration after exchange failure",
				"integration_id", integration.ID, "error", clearErr)
		}
		return response, err
	}
	if err := s.credentials.Save(ctx, integration.ID, cred); err != nil {
		return response, err
	}

	now := s.now()
	integration.Status = IntegrationConnected
	integration.RealmID = cred.RealmID
	integration.ConnectedAt = timePointer(now)
	integration.DisconnectedAt = nil
	if s.api != nil {
		if company, infoErr := s.api.CompanyInfo(ctx, cred); infoErr == nil {
			if name := strings.TrimSpace(company.CompanyName); name != "" {
				integration.Name = name
				response.CompanyName = name
			}
		} else {
			s.logger.Warn("company info lookup failed", "integration_id", integration.ID, "error", infoErr)
		}
	}
	integration, err = s.stores.Integrations.Update(ctx, integration)
	if err != nil {
		return response, err
	}

	if s.config.Sync.InitialSyncAsync && s.jobs != nil {
		if err := s.EnqueuePullSync(ctx, integration.TenantID, integration.ID, "initial"); err != nil {
			return response, err
		}
		response.SyncQueued = true
		return response, nil
	}
	report, err := s.PullSync(ctx, PullSyncRequest{
		TenantID:      integration.TenantID,
		IntegrationID: integration.ID,
		Trigger:       "initial",
	})
	response.Report = &report
	return response, err
}

// Disconnect revokes the refresh token on a best-effort basis, clears the
// stored credential and marks the integration Disconnected.
func (s *Service) Disconnect(ctx context.Context, tenantID, integrationID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"tenant_id": tenantID, "integration_id": integrationID}
	defer func() {
		s.obs.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	integration, err := s.tenantIntegration(ctx, tenantID, integrationID)
	if err != nil {
		return err
	}
	if s.oauth != nil {
		if cred, found, loadErr := s.credentials.Load(ctx, integration.ID); loadErr == nil && found && cred.HasRefreshToken() {
			if revokeErr := s.oauth.Revoke(ctx, cred.RefreshToken); revokeErr != nil {
				fields["revoke_error"] = revokeErr.Error()
			}
		}
	}
	return s.markDisconnected(ctx, integration)
}

// IntegrationStatus reports the tenant's current provider link.
func (s *Service) IntegrationStatus(ctx context.Context, tenantID string) (IntegrationStatusReport, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return IntegrationStatusReport{}, fmt.Errorf("%w: tenant id is required", ErrInvalidRequest)
	}
	if s.stores.Integrations == nil {
		return IntegrationStatusReport{}, fmt.Errorf("core: integration store is not configured")
	}
	report := IntegrationStatusReport{TenantID: tenantID}
	integrations, err := s.stores.Integrations.ListByTenant(ctx, tenantID)
	if err != nil {
		return IntegrationStatusReport{}, err
	}
	if len(integrations) == 0 {
		return report, nil
	}
	sort.SliceStable(integrations, func(i, j int) bool {
		if integrations[i].Connected() != integrations[j].Connected() {
			return integrations[i].Connected()
		}
		return integrations[i].CreatedAt.After(integrations[j].CreatedAt)
	})
	current := integrations[0]
	report.Integration = &current
	report.RealmID = current.RealmID
	if current.Connected() {
		cred, found, err := s.credentials.Load(ctx, current.ID)
		if err != nil {
			return IntegrationStatusReport{}, err
		}
		report.HasActiveIntegration = found && cred.Active()
	}
	if s.stores.SyncRuns != nil {
		runs, err := s.stores.SyncRuns.ListByIntegration(ctx, tenantID, current.ID, 1)
		if err != nil {
			return IntegrationStatusReport{}, err
		}
		if len(runs) > 0 {
			report.LastSync = &runs[0]
		}
	}
	return report, nil
}

func (s *Service) ListSyncRuns(ctx context.Context, tenantID, integrationID string, limit int) ([]SyncRun, error) {
	if s.stores.SyncRuns == nil {
		return nil, fmt.Errorf("core: sync run store is not configured")
	}
	if _, err := s.tenantIntegration(ctx, tenantID, integrationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	return s.stores.SyncRuns.ListByIntegration(ctx, tenantID, integrationID, limit)
}

func (s *Service) FindMapping(ctx context.Context, lookup MappingLookup) (EntityMapping, bool, error) {
	if s.stores.Mappings == nil {
		return EntityMapping{}, false, fmt.Errorf("core: mapping store is not configured")
	}
	if err := lookup.Validate(); err != nil {
		return EntityMapping{}, false, err
	}
	return s.stores.Mappings.Find(ctx, lookup)
}

func (s *Service) tenantIntegration(ctx context.Context, tenantID, integrationID string) (Integration, error) {
	if s.stores.Integrations == nil {
		return Integration{}, fmt.Errorf("core: integration store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	integrationID = strings.TrimSpace(integrationID)
	if tenantID == "" || integrationID == "" {
		return Integration{}, fmt.Errorf("%w: tenant id and integration id are required", ErrInvalidRequest)
	}
	integration, err := s.stores.Integrations.Get(ctx, integrationID)
	if err != nil {
		return Integration{}, err
	}
	if integration.TenantID != tenantID {
		return Integration{}, fmt.Errorf("%w: integration %s", ErrNotFoundLocal, integrationID)
	}
	return integration, nil
}

// markDisconnected clears the credential and flips the integration to
// Disconnected. Safe to call on an already disconnected integration.
func (s *Service) markDisconnected(ctx context.Context, integration Integration) error {
	if err := s.credentials.Clear(ctx, integration.ID); err != nil {
		return err
	}
	integration.Status = IntegrationDisconnected
	integration.DisconnectedAt = timePointer(s.now())
	_, err := s.stores.Integrations.Update(ctx, integration)
	return err
}
