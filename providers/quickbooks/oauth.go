package quickbooks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-ledger-sync/core"
)

const (
	defaultAuthURL   = "https://appcenter.intuit.com/connect/oauth2"
	defaultTokenURL  = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	defaultRevokeURL = "https://developer.api.intuit.com/v2/oauth2/tokens/revoke"

	defaultTokenRequestTimeout = 15 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20 // 1 MiB
)

type OAuthConfig struct {
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	AuthURL        string
	TokenURL       string
	RevokeURL      string
	Scopes         []string
	RequestTimeout time.Duration
	Transport      core.TransportAdapter
	Now            func() time.Time
}

// OAuthClient implements core.OAuthClient against the Intuit authorization
// server.
type OAuthClient struct {
	cfg OAuthConfig
}

type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	TokenType             string `json:"token_type"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"x_refresh_token_expires_in"`
	IDToken               string `json:"id_token"`
	Scope                 string `json:"scope"`
	ErrorCode             string `json:"error"`
	ErrorDescription      string `json:"error_description"`
}

func NewOAuthClient(cfg OAuthConfig) (*OAuthClient, error) {
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.RedirectURI = strings.TrimSpace(cfg.RedirectURI)
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("quickbooks: oauth client id is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("quickbooks: oauth transport is required")
	}
	if strings.TrimSpace(cfg.AuthURL) == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if strings.TrimSpace(cfg.RevokeURL) == "" {
		cfg.RevokeURL = defaultRevokeURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"com.intuit.quickbooks.accounting"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultTokenRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &OAuthClient{cfg: cfg}, nil
}

func (c *OAuthClient) AuthorizationURL(state string) (string, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return "", fmt.Errorf("quickbooks: oauth state is required")
	}
	if c.cfg.RedirectURI == "" {
		return "", fmt.Errorf("quickbooks: oauth redirect uri is required")
	}
	values := url.Values{}
	values.Set("client_id", c.cfg.ClientID)
	values.Set("response_type", "code")
	values.Set("scope", strings.Join(c.cfg.Scopes, " "))
	values.Set("redirect_uri", c.cfg.RedirectURI)
	values.Set("state", state)

	authURL := strings.TrimSpace(c.cfg.AuthURL)
	if strings.Contains(authURL, "?") {
		return authURL + "&" + values.Encode(), nil
	}
	return authURL + "?" + values.Encode(), nil
}

func (c *OAuthClient) ExchangeCode(ctx context.Context, code, realmID string) (core.IntegrationCredential, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return core.IntegrationCredential{}, fmt.Errorf("quickbooks: authorization code is required")
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)

	token, latency, err := c.tokenRequest(ctx, "exchange_code", form)
	if err != nil {
		return core.IntegrationCredential{}, err
	}
	cred := c.credentialFrom(token, latency)
	cred.RealmID = strings.TrimSpace(realmID)
	return cred, nil
}

// Refresh returns the provider's answer as-is; merging with the previous
// credential is the token manager's job.
func (c *OAuthClient) Refresh(ctx context.Context, cred core.IntegrationCredential) (core.IntegrationCredential, error) {
	refreshToken := strings.TrimSpace(cred.RefreshToken)
	if refreshToken == "" {
		return core.IntegrationCredential{}, core.ErrMissingRefreshToken
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	token, latency, err := c.tokenRequest(ctx, "refresh_token", form)
	if err != nil {
		return core.IntegrationCredential{}, err
	}
	refreshed := c.credentialFrom(token, latency)
	refreshed.RealmID = cred.RealmID
	return refreshed, nil
}

func (c *OAuthClient) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return err
	}
	res, err := c.cfg.Transport.Do(ctx, core.TransportRequest{
		Method: http.MethodPost,
		URL:    c.cfg.RevokeURL,
		Headers: map[string]string{
			"Authorization": c.basicAuth(),
			"Content-Type":  "application/json",
			"Accept":        "application/json",
		},
		Body:    body,
		Timeout: c.cfg.RequestTimeout,
	})
	if err != nil {
		return &core.ExternalServiceError{Operation: "revoke_token", Cause: err}
	}
	if res.StatusCode != http.StatusOK {
		return &core.ExternalServiceError{
			Operation:  "revoke_token",
			StatusCode: res.StatusCode,
			Cause:      fmt.Errorf("quickbooks: revoke returned %s", strings.TrimSpace(truncate(string(res.Body), 256))),
		}
	}
	return nil
}

func (c *OAuthClient) tokenRequest(ctx context.Context, operation string, form url.Values) (tokenResponse, int64, error) {
	startedAt := time.Now()
	res, err := c.cfg.Transport.Do(ctx, core.TransportRequest{
		Method: http.MethodPost,
		URL:    c.cfg.TokenURL,
		Headers: map[string]string{
			"Authorization": c.basicAuth(),
			"Content-Type":  "application/x-www-form-urlencoded",
			"Accept":        "application/json",
		},
		Body:                 []byte(form.Encode()),
		Timeout:              c.cfg.RequestTimeout,
		MaxResponseBodyBytes: maxTokenResponseBodyBytes,
	})
	latency := time.Since(startedAt).Milliseconds()
	if err != nil {
		return tokenResponse{}, latency, &core.ExternalServiceError{Operation: operation, Cause: err}
	}

	token := tokenResponse{}
	decodeErr := json.Unmarshal(res.Body, &token)
	if res.StatusCode == http.StatusBadRequest || res.StatusCode == http.StatusUnauthorized {
		if token.ErrorCode == "invalid_grant" || res.StatusCode == http.StatusUnauthorized {
			return tokenResponse{}, latency, fmt.Errorf("%w: %s", core.ErrAuthenticationExpired, describeTokenError(token, res.StatusCode))
		}
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return tokenResponse{}, latency, &core.ExternalServiceError{
			Operation:  operation,
			StatusCode: res.StatusCode,
			Cause:      fmt.Errorf("quickbooks: token endpoint error: %s", describeTokenError(token, res.StatusCode)),
		}
	}
	if decodeErr != nil {
		return tokenResponse{}, latency, &core.ExternalServiceError{Operation: operation, Cause: fmt.Errorf("quickbooks: decode token response: %w", decodeErr)}
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return tokenResponse{}, latency, &core.ExternalServiceError{Operation: operation, Cause: fmt.Errorf("quickbooks: token response missing access token")}
	}
	return token, latency, nil
}

func (c *OAuthClient) credentialFrom(token tokenResponse, latency int64) core.IntegrationCredential {
	now := c.cfg.Now().UTC()
	cred := core.IntegrationCredential{
		TokenType:    strings.TrimSpace(token.TokenType),
		AccessToken:  strings.TrimSpace(token.AccessToken),
		RefreshToken: strings.TrimSpace(token.RefreshToken),
		IDToken:      strings.TrimSpace(token.IDToken),
		Scopes:       strings.Fields(token.Scope),
		LatencyMs:    latency,
		IssuedAt:     &now,
	}
	if token.ExpiresIn > 0 {
		expires := now.Add(time.Duration(token.ExpiresIn) * time.Second)
		cred.AccessTokenExpiresAt = &expires
	}
	if token.RefreshTokenExpiresIn > 0 && cred.RefreshToken != "" {
		expires := now.Add(time.Duration(token.RefreshTokenExpiresIn) * time.Second)
		cred.RefreshTokenExpiresAt = &expires
	}
	return cred
}

func (c *OAuthClient) basicAuth() string {
	raw := c.cfg.ClientID + ":" + c.cfg.ClientSecret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

func describeTokenError(token tokenResponse, status int) string {
	if strings.TrimSpace(token.ErrorDescription) != "" {
		return strings.TrimSpace(token.ErrorDescription)
	}
	if strings.TrimSpace(token.ErrorCode) != "" {
		return strings.TrimSpace(token.ErrorCode)
	}
	return fmt.Sprintf("status %d", status)
}

var _ core.OAuthClient = (*OAuthClient)(nil)
