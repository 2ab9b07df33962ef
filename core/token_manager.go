package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TokenManager guarantees a usable access token before each provider call.
// Refreshes for one integration are serialized through the locker, and the
// stored credential is re-read once the lock is held so a refresh won by a
// concurrent caller is reused instead of repeated.
type TokenManager struct {
	credentials CredentialStore
	oauth       OAuthClient
	locker      Locker
	config      TokenConfig
	now         func() time.Time
	obs         observer
}

type TokenManagerDeps struct {
	Credentials CredentialStore
	OAuth       OAuthClient
	Locker      Locker
	Config      TokenConfig
	Clock       func() time.Time
	Logger      Logger
	Metrics     MetricsRecorder
}

func NewTokenManager(deps TokenManagerDeps) *TokenManager {
	now := deps.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	locker := deps.Locker
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &TokenManager{
		credentials: deps.Credentials,
		oauth:       deps.OAuth,
		locker:      locker,
		config:      deps.Config,
		now:         now,
		obs:         observer{logger: deps.Logger, metrics: metrics, prefix: "ledgersync.tokens"},
	}
}

// EnsureValidToken returns cred untouched when its access token is still
// valid, otherwise refreshes and persists it.
func (m *TokenManager) EnsureValidToken(ctx context.Context, integrationID string, cred IntegrationCredential) (IntegrationCredential, error) {
	if m == nil {
		return IntegrationCredential{}, fmt.Errorf("core: token manager is not configured")
	}
	if cred.AccessTokenValid(m.now(), m.config.RefreshLeadWindow) {
		return cred, nil
	}
	if !cred.HasRefreshToken() {
		return IntegrationCredential{}, ErrMissingRefreshToken
	}
	return m.refresh(ctx, integrationID, cred)
}

func (m *TokenManager) refresh(ctx context.Context, integrationID string, cred IntegrationCredential) (out IntegrationCredential, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"integration_id": integrationID, "realm_id": cred.RealmID}
	defer func() {
		m.obs.observeOperation(ctx, startedAt, "refresh_token", err, fields)
	}()

	if m.oauth == nil {
		return IntegrationCredential{}, fmt.Errorf("core: oauth client is not configured")
	}
	if m.credentials == nil {
		return IntegrationCredential{}, fmt.Errorf("core: credential store is not configured")
	}

	handle, err := acquireWithWait(ctx, m.locker, "ledgersync:token:"+strings.TrimSpace(integrationID), m.config.LockTTL, m.config.LockWait)
	if err != nil {
		return IntegrationCredential{}, err
	}
	defer releaseLock(ctx, handle)

	base := cred
	stored, found, err := m.credentials.Load(ctx, integrationID)
	if err != nil {
		return IntegrationCredential{}, err
	}
	if found {
		if stored.AccessTokenValid(m.now(), m.config.RefreshLeadWindow) {
			fields["reused"] = true
			return stored, nil
		}
		if stored.HasRefreshToken() {
			base = stored
		}
	}
	if base.RefreshTokenExpired(m.now()) {
		return IntegrationCredential{}, fmt.Errorf("%w: refresh token expired", ErrAuthenticationExpired)
	}

	refreshed, err := m.oauth.Refresh(ctx, base)
	if err != nil {
		return IntegrationCredential{}, classifyRefreshError(err)
	}
	out = mergeRefreshedCredential(base, refreshed)
	if err := m.credentials.Save(ctx, integrationID, out); err != nil {
		return IntegrationCredential{}, err
	}
	return out, nil
}

// ExchangeAuthorizationCode trades a one-time authorization code for a
// credential bound to realmID. The caller persists the result.
func (m *TokenManager) ExchangeAuthorizationCode(ctx context.Context, code, realmID string) (out IntegrationCredential, err error) {
	if m == nil || m.oauth == nil {
		return IntegrationCredential{}, fmt.Errorf("core: oauth client is not configured")
	}
	startedAt := time.Now().UTC()
	fields := map[string]any{"realm_id": realmID}
	defer func() {
		m.obs.observeOperation(ctx, startedAt, "exchange_code", err, fields)
	}()

	code = strings.TrimSpace(code)
	if code == "" {
		return IntegrationCredential{}, fmt.Errorf("core: authorization code is required")
	}
	realmID = strings.TrimSpace(realmID)
	if realmID == "" {
		return IntegrationCredential{}, fmt.Errorf("core: realm id is required")
	}
	cred, err := m.oauth.ExchangeCode(ctx, code, realmID)
	if err != nil {
		return IntegrationCredential{}, err
	}
	if strings.TrimSpace(cred.AccessToken) == "" {
		return IntegrationCredential{}, fmt.Errorf("core: token exchange returned no access token")
	}
	cred.RealmID = realmID
	if cred.IssuedAt == nil {
		cred.IssuedAt = timePointer(m.now())
	}
	return cred, nil
}

// mergeRefreshedCredential keeps the realm and identity token of previous and
// the previous refresh token when the provider did not rotate it.
func mergeRefreshedCredential(previous, refreshed IntegrationCredential) IntegrationCredential {
	out := refreshed.clone()
	if strings.TrimSpace(out.RealmID) == "" {
		out.RealmID = previous.RealmID
	}
	if strings.TrimSpace(out.IDToken) == "" {
		out.IDToken = previous.IDToken
	}
	if strings.TrimSpace(out.RefreshToken) == "" {
		out.RefreshToken = previous.RefreshToken
		if out.RefreshTokenExpiresAt == nil {
			out.RefreshTokenExpiresAt = cloneTimePointer(previous.RefreshTokenExpiresAt)
		}
	}
	if len(out.Scopes) == 0 {
		out.Scopes = append([]string(nil), previous.Scopes...)
	}
	return out
}

func classifyRefreshError(err error) error {
	if IsAuthenticationExpired(err) {
		return err
	}
	var external *ExternalServiceError
	if errors.As(err, &external) {
		return err
	}
	return &ExternalServiceError{Operation: "refresh_token", Cause: err}
}
