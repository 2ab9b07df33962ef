package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun/dialect/pgdialect"

	ledgersync "github.com/goliatone/go-ledger-sync"
	"github.com/goliatone/go-ledger-sync/core"
	"github.com/goliatone/go-ledger-sync/store/redislock"
)

const envPrefix = "LEDGERSYNC_"

// cliOptions are the connection settings shared by every subcommand.
type cliOptions struct {
	ConfigPath  string
	DatabaseURL string
	RedisAddr   string
	AppKey      string
	Debug       bool
}

func loadEnvIfExists() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load()
	}
	return nil
}

func (o cliOptions) withEnv(lookup func(string) (string, bool)) cliOptions {
	if o.DatabaseURL == "" {
		o.DatabaseURL = envValue(lookup, "DATABASE_URL")
	}
	if o.RedisAddr == "" {
		o.RedisAddr = envValue(lookup, "REDIS_ADDR")
	}
	if o.AppKey == "" {
		o.AppKey = envValue(lookup, "APP_KEY")
	}
	if o.ConfigPath == "" {
		o.ConfigPath = envValue(lookup, "CONFIG")
	}
	return o
}

// loadConfig reads the optional YAML file over the defaults and lets
// LEDGERSYNC_* variables win.
func loadConfig(ctx context.Context, path string, lookup func(string) (string, bool)) (core.Config, error) {
	provider := core.NewCfgxConfigProvider(core.FileConfigLoader{Path: path, Optional: true})
	cfg, err := provider.Load(ctx, core.DefaultConfig())
	if err != nil {
		return core.Config{}, err
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return core.Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *core.Config, lookup func(string) (string, bool)) error {
	setString(&cfg.OAuth.ClientID, lookup, "CLIENT_ID")
	setString(&cfg.OAuth.ClientSecret, lookup, "CLIENT_SECRET")
	setString(&cfg.OAuth.RedirectURI, lookup, "REDIRECT_URI")
	setString(&cfg.API.Environment, lookup, "ENVIRONMENT")
	setString(&cfg.API.BaseURL, lookup, "API_BASE_URL")
	setString(&cfg.API.MinorVersion, lookup, "MINOR_VERSION")
	setString(&cfg.Transform.DefaultCurrency, lookup, "DEFAULT_CURRENCY")

	if raw := envValue(lookup, "SYNC_PAGE_SIZE"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("ledgersync: %sSYNC_PAGE_SIZE: %w", envPrefix, err)
		}
		cfg.Sync.PageSize = size
	}
	if raw := envValue(lookup, "SYNC_ENTITIES"); raw != "" {
		entities := make([]string, 0, 2)
		for _, entity := range strings.Split(raw, ",") {
			if entity = strings.TrimSpace(entity); entity != "" {
				entities = append(entities, entity)
			}
		}
		cfg.Sync.Entities = entities
	}
	if raw := envValue(lookup, "REFRESH_LEAD_WINDOW"); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("ledgersync: %sREFRESH_LEAD_WINDOW: %w", envPrefix, err)
		}
		cfg.Tokens.RefreshLeadWindow = window
	}
	return nil
}

func setString(target *string, lookup func(string) (string, bool), key string) {
	if value := envValue(lookup, key); value != "" {
		*target = value
	}
}

func envValue(lookup func(string) (string, bool), key string) string {
	if lookup == nil {
		return ""
	}
	value, _ := lookup(envPrefix + key)
	return strings.TrimSpace(value)
}

type postgresConfig struct {
	dsn   string
	debug bool
}

func (c postgresConfig) GetDebug() bool {
	return c.debug
}

func (postgresConfig) GetDriver() string {
	return "postgres"
}

func (c postgresConfig) GetServer() string {
	return c.dsn
}

func (postgresConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (postgresConfig) GetOtelIdentifier() string {
	return "go-ledger-sync"
}

func openPersistence(opts cliOptions) (*persistence.Client, error) {
	if opts.DatabaseURL == "" {
		return nil, fmt.Errorf("ledgersync: %sDATABASE_URL is required", envPrefix)
	}
	sqlDB, err := sql.Open("postgres", opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("ledgersync: open database: %w", err)
	}
	client, err := persistence.New(postgresConfig{dsn: opts.DatabaseURL, debug: opts.Debug}, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ledgersync: connect database: %w", err)
	}
	return client, nil
}

// session owns the runtime and the connections behind it.
type session struct {
	runtime *ledgersync.Runtime
	client  *persistence.Client
	redis   *redis.Client
}

func openSession(ctx context.Context, opts cliOptions) (*session, error) {
	cfg, err := loadConfig(ctx, opts.ConfigPath, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	client, err := openPersistence(opts)
	if err != nil {
		return nil, err
	}
	out := &session{client: client}
	deps := ledgersync.Dependencies{
		DB:              client.DB(),
		AppKey:          opts.AppKey,
		MappingCacheTTL: time.Minute,
	}
	if opts.RedisAddr != "" {
		redisCfg := redislock.DefaultConfig()
		redisCfg.Addr = opts.RedisAddr
		out.redis = redislock.NewClient(redisCfg)
		deps.Redis = out.redis
	}
	runtime, err := ledgersync.Setup(cfg, deps)
	if err != nil {
		out.Close()
		return nil, err
	}
	out.runtime = runtime
	return out, nil
}

func (s *session) Close() {
	if s == nil {
		return
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.client != nil {
		_ = s.client.Close()
	}
}
