package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func TestNewServiceDefaults(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "ledgersync" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.Sync.PageSize != 10 || cfg.API.MinorVersion != "70" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if svc.Logger() == nil || svc.Tokens() == nil {
		t.Fatalf("expected logger and token manager defaults")
	}
	if svc.states == nil || svc.locker == nil || svc.transformer == nil || svc.validator == nil {
		t.Fatalf("expected in-memory collaborators by default")
	}
}

func TestNewServiceLayersRuntimeOverConfigOverDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(staticRawConfigLoader{Values: map[string]any{
		"api":  map[string]any{"environment": "sandbox"},
		"sync": map[string]any{"page_size": 50},
	}})
	svc, err := NewService(Config{Sync: SyncConfig{PageSize: 25}}, WithConfigProvider(provider))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := svc.Config()
	if cfg.Sync.PageSize != 25 {
		t.Fatalf("expected runtime page size 25, got %d", cfg.Sync.PageSize)
	}
	if cfg.API.Environment != EnvironmentSandbox {
		t.Fatalf("expected config environment sandbox, got %q", cfg.API.Environment)
	}
	if cfg.OAuth.TokenURL == "" || cfg.Transform.DocNumberMaxLength != 21 {
		t.Fatalf("expected defaults to survive layering: %+v", cfg)
	}
	if cfg.APIBaseURL() != "https://sandbox-quickbooks.api.intuit.com/v3/company" {
		t.Fatalf("unexpected sandbox base url %q", cfg.APIBaseURL())
	}
}

func TestNewServiceUsesInjectedConfigCollaborators(t *testing.T) {
	resolved := DefaultConfig()
	resolved.ServiceName = "resolved"
	svc, err := NewService(Config{ServiceName: "runtime"},
		WithConfigProvider(&fixedConfigProvider{cfg: DefaultConfig()}),
		WithOptionsResolver(&fixedOptionsResolver{cfg: resolved}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.Config().ServiceName != "resolved" {
		t.Fatalf("expected resolver output, got %q", svc.Config().ServiceName)
	}
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	if _, err := NewService(Config{Sync: SyncConfig{PageSize: 5000}}); err == nil {
		t.Fatalf("expected oversized page to be rejected")
	}
	if _, err := NewService(Config{API: APIConfig{Environment: "staging"}}); err == nil {
		t.Fatalf("expected unknown environment to be rejected")
	}
	if _, err := NewService(Config{Sync: SyncConfig{Entities: []string{"Invoice"}}}); err == nil {
		t.Fatalf("expected non-pullable entity to be rejected")
	}
}

func TestFileConfigLoaderReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgersync.yaml")
	content := "service_name: books\nsync:\n  page_size: 40\n  entities:\n    - Vendor\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	svc, err := NewService(Config{}, WithConfigProvider(NewCfgxConfigProvider(FileConfigLoader{Path: path})))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "books" || cfg.Sync.PageSize != 40 {
		t.Fatalf("expected file values, got %+v", cfg)
	}
	kinds := cfg.PullEntities()
	if len(kinds) != 1 || kinds[0] != EntityTypeVendor {
		t.Fatalf("expected vendor-only pull, got %v", kinds)
	}
}

func TestFileConfigLoaderMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	raw, err := FileConfigLoader{Path: missing, Optional: true}.LoadRaw(context.Background())
	if err != nil || len(raw) != 0 {
		t.Fatalf("expected optional missing file to be empty, raw=%v err=%v", raw, err)
	}
	if _, err := (FileConfigLoader{Path: missing}).LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected required missing file to fail")
	}
}

func TestConfigAPIBaseURLOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.BaseURL = "http://127.0.0.1:8080/v3/company/"
	if got := cfg.APIBaseURL(); got != "http://127.0.0.1:8080/v3/company" {
		t.Fatalf("unexpected base url %q", got)
	}
	if got := DefaultConfig().APIBaseURL(); got != "https://quickbooks.api.intuit.com/v3/company" {
		t.Fatalf("unexpected production base url %q", got)
	}
}
