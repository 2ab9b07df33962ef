package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	CredentialPayloadFormatJSONV1 = "integration_credential_json"
	CredentialPayloadVersionV1    = 1
)

// IntegrationCredential is the OAuth bundle of one integration. It is passed
// explicitly to every provider call; nothing caches it process-wide.
type IntegrationCredential struct {
	RealmID               string
	TokenType             string
	AccessToken           string
	AccessTokenExpiresAt  *time.Time
	RefreshToken          string
	RefreshTokenExpiresAt *time.Time
	IDToken               string
	Scopes                []string
	LatencyMs             int64
	IssuedAt              *time.Time
}

// AccessTokenValid reports whether the access token is present and does not
// expire within lead of now. A credential without a stored expiry is treated
// as expired.
func (c IntegrationCredential) AccessTokenValid(now time.Time, lead time.Duration) bool {
	if strings.TrimSpace(c.AccessToken) == "" || c.AccessTokenExpiresAt == nil {
		return false
	}
	if lead < 0 {
		lead = 0
	}
	return c.AccessTokenExpiresAt.UTC().After(now.UTC().Add(lead))
}

func (c IntegrationCredential) HasRefreshToken() bool {
	return strings.TrimSpace(c.RefreshToken) != ""
}

// RefreshTokenExpired is false when the refresh expiry is unknown.
func (c IntegrationCredential) RefreshTokenExpired(now time.Time) bool {
	if c.RefreshTokenExpiresAt == nil {
		return false
	}
	return !c.RefreshTokenExpiresAt.UTC().After(now.UTC())
}

// Active reports whether the credential can address a provider company.
func (c IntegrationCredential) Active() bool {
	return strings.TrimSpace(c.RealmID) != "" && strings.TrimSpace(c.AccessToken) != ""
}

func (c IntegrationCredential) AuthorizationHeader() string {
	tokenType := strings.TrimSpace(c.TokenType)
	if tokenType == "" || strings.EqualFold(tokenType, "bearer") {
		tokenType = "Bearer"
	}
	return tokenType + " " + strings.TrimSpace(c.AccessToken)
}

func (c IntegrationCredential) clone() IntegrationCredential {
	out := c
	out.AccessTokenExpiresAt = cloneTimePointer(c.AccessTokenExpiresAt)
	out.RefreshTokenExpiresAt = cloneTimePointer(c.RefreshTokenExpiresAt)
	out.IssuedAt = cloneTimePointer(c.IssuedAt)
	out.Scopes = append([]string(nil), c.Scopes...)
	return out
}

type CredentialCodec interface {
	Format() string
	Version() int
	Encode(credential IntegrationCredential) ([]byte, error)
	Decode(payload []byte) (IntegrationCredential, error)
}

type JSONCredentialCodec struct{}

func (JSONCredentialCodec) Format() string {
	return CredentialPayloadFormatJSONV1
}

func (JSONCredentialCodec) Version() int {
	return CredentialPayloadVersionV1
}

type jsonCredentialPayload struct {
	Format                string     `json:"format"`
	Version               int        `json:"version"`
	RealmID               string     `json:"realm_id,omitempty"`
	TokenType             string     `json:"token_type,omitempty"`
	AccessToken           string     `json:"access_token,omitempty"`
	AccessTokenExpiresAt  *time.Time `json:"access_token_expires_at,omitempty"`
	RefreshToken          string     `json:"refresh_token,omitempty"`
	RefreshTokenExpiresAt *time.Time `json:"refresh_token_expires_at,omitempty"`
	IDToken               string     `json:"id_token,omitempty"`
	Scopes                []string   `json:"scopes,omitempty"`
	LatencyMs             int64      `json:"latency_ms,omitempty"`
	IssuedAt              *time.Time `json:"issued_at,omitempty"`
}

func (c JSONCredentialCodec) Encode(credential IntegrationCredential) ([]byte, error) {
	payload := jsonCredentialPayload{
		Format:                c.Format(),
		Version:               c.Version(),
		RealmID:               strings.TrimSpace(credential.RealmID),
		TokenType:             strings.TrimSpace(credential.TokenType),
		AccessToken:           strings.TrimSpace(credential.AccessToken),
		AccessTokenExpiresAt:  cloneTimePointer(credential.AccessTokenExpiresAt),
		RefreshToken:          strings.TrimSpace(credential.RefreshToken),
		RefreshTokenExpiresAt: cloneTimePointer(credential.RefreshTokenExpiresAt),
		IDToken:               strings.TrimSpace(credential.IDToken),
		Scopes:                append([]string(nil), credential.Scopes...),
		LatencyMs:             credential.LatencyMs,
		IssuedAt:              cloneTimePointer(credential.IssuedAt),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode credential payload: %w", err)
	}
	return encoded, nil
}

func (c JSONCredentialCodec) Decode(payload []byte) (IntegrationCredential, error) {
	if len(payload) == 0 {
		return IntegrationCredential{}, fmt.Errorf("core: credential payload is empty")
	}
	decoded := jsonCredentialPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return IntegrationCredential{}, fmt.Errorf("core: decode credential payload: %w", err)
	}
	if decoded.Format != "" && decoded.Format != c.Format() {
		return IntegrationCredential{}, fmt.Errorf("core: unsupported credential payload format %q", decoded.Format)
	}
	return IntegrationCredential{
		RealmID:               strings.TrimSpace(decoded.RealmID),
		TokenType:             strings.TrimSpace(decoded.TokenType),
		AccessToken:           strings.TrimSpace(decoded.AccessToken),
		AccessTokenExpiresAt:  cloneTimePointer(decoded.AccessTokenExpiresAt),
		RefreshToken:          strings.TrimSpace(decoded.RefreshToken),
		RefreshTokenExpiresAt: cloneTimePointer(decoded.RefreshTokenExpiresAt),
		IDToken:               strings.TrimSpace(decoded.IDToken),
		Scopes:                append([]string(nil), decoded.Scopes...),
		LatencyMs:             decoded.LatencyMs,
		IssuedAt:              cloneTimePointer(decoded.IssuedAt),
	}, nil
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := value.UTC()
	return &clone
}

func timePointer(value time.Time) *time.Time {
	clone := value.UTC()
	return &clone
}
