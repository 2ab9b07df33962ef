package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-ledger-sync/transform"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	secretProvider  SecretProvider
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	oauthStateStore OAuthStateStore
	locker          Locker
	credentialCodec CredentialCodec
	stores          Stores
	externalAPI     ExternalAPI
	oauthClient     OAuthClient
	transformer     *transform.Transformer
	validator       *transform.Validator
	storage         StorageService
	extraction      ExtractionService
	jobEnqueuer     JobEnqueuer
	clock           func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithSecretProvider(provider SecretProvider) Option {
	return func(b *serviceBuilder) {
		b.secretProvider = provider
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithOAuthStateStore(store OAuthStateStore) Option {
	return func(b *serviceBuilder) {
		b.oauthStateStore = store
	}
}

func WithLocker(locker Locker) Option {
	return func(b *serviceBuilder) {
		b.locker = locker
	}
}

func WithCredentialCodec(codec CredentialCodec) Option {
	return func(b *serviceBuilder) {
		b.credentialCodec = codec
	}
}

func WithStores(stores Stores) Option {
	return func(b *serviceBuilder) {
		b.stores = stores
	}
}

func WithExternalAPI(api ExternalAPI) Option {
	return func(b *serviceBuilder) {
		b.externalAPI = api
	}
}

func WithOAuthClient(client OAuthClient) Option {
	return func(b *serviceBuilder) {
		b.oauthClient = client
	}
}

func WithTransformer(transformer *transform.Transformer) Option {
	return func(b *serviceBuilder) {
		b.transformer = transformer
	}
}

func WithValidator(validator *transform.Validator) Option {
	return func(b *serviceBuilder) {
		b.validator = validator
	}
}

func WithStorageService(storage StorageService) Option {
	return func(b *serviceBuilder) {
		b.storage = storage
	}
}

func WithExtractionService(extraction ExtractionService) Option {
	return func(b *serviceBuilder) {
		b.extraction = extraction
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("ledgersync", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		credentialCodec: JSONCredentialCodec{},
		clock:           func() time.Time { return time.Now().UTC() },
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// FileConfigLoader reads a YAML document into a raw config map. A missing file
// yields an empty map when Optional is set.
type FileConfigLoader struct {
	Path     string
	Optional bool
}

func (l FileConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if l.Optional && os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config file %s: %w", path, err)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("core: parse config file %s: %w", path, err)
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap emits only set fields unless includeZero, so a sparse
// runtime Config overrides nothing it leaves blank.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString(layer, "service_name", cfg.ServiceName, includeZero)

	oauth := map[string]any{}
	setString(oauth, "client_id", cfg.OAuth.ClientID, includeZero)
	setString(oauth, "client_secret", cfg.OAuth.ClientSecret, includeZero)
	setString(oauth, "redirect_uri", cfg.OAuth.RedirectURI, includeZero)
	setString(oauth, "auth_url", cfg.OAuth.AuthURL, includeZero)
	setString(oauth, "token_url", cfg.OAuth.TokenURL, includeZero)
	setString(oauth, "revoke_url", cfg.OAuth.RevokeURL, includeZero)
	setStrings(oauth, "scopes", cfg.OAuth.Scopes, includeZero)
	setDuration(oauth, "state_ttl", cfg.OAuth.StateTTL, includeZero)
	setDuration(oauth, "request_timeout", cfg.OAuth.RequestTimeout, includeZero)
	setSection(layer, "oauth", oauth)

	breaker := map[string]any{}
	setUint(breaker, "max_requests", cfg.API.Breaker.MaxRequests, includeZero)
	setDuration(breaker, "interval", cfg.API.Breaker.Interval, includeZero)
	setDuration(breaker, "timeout", cfg.API.Breaker.Timeout, includeZero)
	setUint(breaker, "consecutive_failures", cfg.API.Breaker.ConsecutiveFailures, includeZero)
	api := map[string]any{}
	setString(api, "environment", cfg.API.Environment, includeZero)
	setString(api, "base_url", cfg.API.BaseURL, includeZero)
	setString(api, "minor_version", cfg.API.MinorVersion, includeZero)
	setDuration(api, "request_timeout", cfg.API.RequestTimeout, includeZero)
	setSection(api, "breaker", breaker)
	setSection(layer, "api", api)

	tokens := map[string]any{}
	setDuration(tokens, "refresh_lead_window", cfg.Tokens.RefreshLeadWindow, includeZero)
	setDuration(tokens, "lock_ttl", cfg.Tokens.LockTTL, includeZero)
	setDuration(tokens, "lock_wait", cfg.Tokens.LockWait, includeZero)
	setSection(layer, "tokens", tokens)

	sync := map[string]any{}
	if includeZero || cfg.Sync.PageSize > 0 {
		sync["page_size"] = cfg.Sync.PageSize
	}
	setStrings(sync, "entities", cfg.Sync.Entities, includeZero)
	setDuration(sync, "run_timeout", cfg.Sync.RunTimeout, includeZero)
	setDuration(sync, "push_lock_ttl", cfg.Sync.PushLockTTL, includeZero)
	if includeZero || cfg.Sync.InitialSyncAsync {
		sync["initial_sync_async"] = cfg.Sync.InitialSyncAsync
	}
	setSection(layer, "sync", sync)

	tf := map[string]any{}
	setString(tf, "item_ref_value", cfg.Transform.ItemRefValue, includeZero)
	setString(tf, "tax_code_ref", cfg.Transform.TaxCodeRef, includeZero)
	setString(tf, "expense_account_ref", cfg.Transform.ExpenseAccountRef, includeZero)
	setString(tf, "payment_account_ref", cfg.Transform.PaymentAccountRef, includeZero)
	setString(tf, "billable_status", cfg.Transform.BillableStatus, includeZero)
	setString(tf, "default_currency", cfg.Transform.DefaultCurrency, includeZero)
	if includeZero || cfg.Transform.DocNumberMaxLength > 0 {
		tf["doc_number_max_length"] = cfg.Transform.DocNumberMaxLength
	}
	setSection(layer, "transform", tf)
	return layer
}

func setString(layer map[string]any, key, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func setStrings(layer map[string]any, key string, values []string, includeZero bool) {
	if includeZero || len(values) > 0 {
		layer[key] = append([]string(nil), values...)
	}
}

func setDuration(layer map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value > 0 {
		layer[key] = value
	}
}

func setUint(layer map[string]any, key string, value uint32, includeZero bool) {
	if includeZero || value > 0 {
		layer[key] = value
	}
}

func setSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
