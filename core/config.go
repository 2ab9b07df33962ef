package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-ledger-sync/transform"
)

const (
	EnvironmentProduction = "production"
	EnvironmentSandbox    = "sandbox"
)

type OAuthConfig struct {
	ClientID       string        `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret   string        `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI    string        `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	AuthURL        string        `koanf:"auth_url" mapstructure:"auth_url"`
	TokenURL       string        `koanf:"token_url" mapstructure:"token_url"`
	RevokeURL      string        `koanf:"revoke_url" mapstructure:"revoke_url"`
	Scopes         []string      `koanf:"scopes" mapstructure:"scopes"`
	StateTTL       time.Duration `koanf:"state_ttl" mapstructure:"state_ttl"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

type BreakerConfig struct {
	MaxRequests         uint32        `koanf:"max_requests" mapstructure:"max_requests"`
	Interval            time.Duration `koanf:"interval" mapstructure:"interval"`
	Timeout             time.Duration `koanf:"timeout" mapstructure:"timeout"`
	ConsecutiveFailures uint32        `koanf:"consecutive_failures" mapstructure:"consecutive_failures"`
}

type APIConfig struct {
	Environment    string        `koanf:"environment" mapstructure:"environment"`
	BaseURL        string        `koanf:"base_url" mapstructure:"base_url"`
	MinorVersion   string        `koanf:"minor_version" mapstructure:"minor_version"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	Breaker        BreakerConfig `koanf:"breaker" mapstructure:"breaker"`
}

type TokenConfig struct {
	RefreshLeadWindow time.Duration `koanf:"refresh_lead_window" mapstructure:"refresh_lead_window"`
	LockTTL           time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl"`
	LockWait          time.Duration `koanf:"lock_wait" mapstructure:"lock_wait"`
}

type SyncConfig struct {
	PageSize         int           `koanf:"page_size" mapstructure:"page_size"`
	Entities         []string      `koanf:"entities" mapstructure:"entities"`
	RunTimeout       time.Duration `koanf:"run_timeout" mapstructure:"run_timeout"`
	InitialSyncAsync bool          `koanf:"initial_sync_async" mapstructure:"initial_sync_async"`
	PushLockTTL      time.Duration `koanf:"push_lock_ttl" mapstructure:"push_lock_ttl"`
}

type TransformConfig struct {
	ItemRefValue       string `koanf:"item_ref_value" mapstructure:"item_ref_value"`
	TaxCodeRef         string `koanf:"tax_code_ref" mapstructure:"tax_code_ref"`
	ExpenseAccountRef  string `koanf:"expense_account_ref" mapstructure:"expense_account_ref"`
	PaymentAccountRef  string `koanf:"payment_account_ref" mapstructure:"payment_account_ref"`
	BillableStatus     string `koanf:"billable_status" mapstructure:"billable_status"`
	DefaultCurrency    string `koanf:"default_currency" mapstructure:"default_currency"`
	DocNumberMaxLength int    `koanf:"doc_number_max_length" mapstructure:"doc_number_max_length"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	OAuth       OAuthConfig     `koanf:"oauth" mapstructure:"oauth"`
	API         APIConfig       `koanf:"api" mapstructure:"api"`
	Tokens      TokenConfig     `koanf:"tokens" mapstructure:"tokens"`
	Sync        SyncConfig      `koanf:"sync" mapstructure:"sync"`
	Transform   TransformConfig `koanf:"transform" mapstructure:"transform"`
}

func DefaultConfig() Config {
	defaults := transform.DefaultSettings()
	return Config{
		ServiceName: "ledgersync",
		OAuth: OAuthConfig{
			AuthURL:        "https://appcenter.intuit.com/connect/oauth2",
			TokenURL:       "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer",
			RevokeURL:      "https://developer.api.intuit.com/v2/oauth2/tokens/revoke",
			Scopes:         []string{"com.intuit.quickbooks.accounting", "openid"},
			StateTTL:       10 * time.Minute,
			RequestTimeout: 15 * time.Second,
		},
		API: APIConfig{
			Environment:    EnvironmentProduction,
			MinorVersion:   "70",
			RequestTimeout: 30 * time.Second,
			Breaker: BreakerConfig{
				MaxRequests:         1,
				Interval:            60 * time.Second,
				Timeout:             30 * time.Second,
				ConsecutiveFailures: 5,
			},
		},
		Tokens: TokenConfig{
			RefreshLeadWindow: 0,
			LockTTL:           30 * time.Second,
			LockWait:          10 * time.Second,
		},
		Sync: SyncConfig{
			PageSize:    10,
			Entities:    []string{string(EntityTypeCustomer), string(EntityTypeVendor)},
			RunTimeout:  10 * time.Minute,
			PushLockTTL: 2 * time.Minute,
		},
		Transform: TransformConfig{
			ItemRefValue:       defaults.ItemRefValue,
			TaxCodeRef:         defaults.TaxCodeRef,
			ExpenseAccountRef:  defaults.ExpenseAccountRef,
			PaymentAccountRef:  defaults.PaymentAccountRef,
			BillableStatus:     defaults.BillableStatus,
			DefaultCurrency:    defaults.DefaultCurrency,
			DocNumberMaxLength: defaults.DocNumberMaxLength,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	switch strings.TrimSpace(c.API.Environment) {
	case "", EnvironmentProduction, EnvironmentSandbox:
	default:
		return fmt.Errorf("core: api.environment %q is invalid", c.API.Environment)
	}
	if base := strings.TrimSpace(c.API.BaseURL); base != "" {
		if _, err := url.ParseRequestURI(base); err != nil {
			return fmt.Errorf("core: api.base_url is invalid: %w", err)
		}
	}
	if c.Sync.PageSize < 0 || c.Sync.PageSize > 1000 {
		return fmt.Errorf("core: sync.page_size must be between 0 and 1000")
	}
	for _, entity := range c.Sync.Entities {
		kind, err := ParseEntityType(entity)
		if err != nil {
			return err
		}
		if kind != EntityTypeCustomer && kind != EntityTypeVendor {
			return fmt.Errorf("core: sync.entities supports Customer and Vendor, got %q", entity)
		}
	}
	if c.Tokens.RefreshLeadWindow < 0 {
		return fmt.Errorf("core: tokens.refresh_lead_window must not be negative")
	}
	if c.Transform.DocNumberMaxLength < 0 {
		return fmt.Errorf("core: transform.doc_number_max_length must not be negative")
	}
	return nil
}

// APIBaseURL resolves the company API root for the configured environment.
func (c Config) APIBaseURL() string {
	if base := strings.TrimSpace(c.API.BaseURL); base != "" {
		return strings.TrimRight(base, "/")
	}
	if c.API.Environment == EnvironmentSandbox {
		return "https://sandbox-quickbooks.api.intuit.com/v3/company"
	}
	return "https://quickbooks.api.intuit.com/v3/company"
}

func (c Config) PullEntities() []EntityType {
	out := make([]EntityType, 0, len(c.Sync.Entities))
	for _, entity := range c.Sync.Entities {
		if kind, err := ParseEntityType(entity); err == nil {
			out = append(out, kind)
		}
	}
	if len(out) == 0 {
		return []EntityType{EntityTypeCustomer, EntityTypeVendor}
	}
	return out
}

func (c Config) TransformDefaults() transform.Defaults {
	return transform.Defaults{
		ItemRefValue:       c.Transform.ItemRefValue,
		TaxCodeRef:         c.Transform.TaxCodeRef,
		ExpenseAccountRef:  c.Transform.ExpenseAccountRef,
		PaymentAccountRef:  c.Transform.PaymentAccountRef,
		BillableStatus:     c.Transform.BillableStatus,
		DefaultCurrency:    c.Transform.DefaultCurrency,
		DocNumberMaxLength: c.Transform.DocNumberMaxLength,
	}
}
