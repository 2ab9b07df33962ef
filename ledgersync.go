package ledgersync

import "github.com/goliatone/go-ledger-sync/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type Stores = core.Stores
type OAuthStateStore = core.OAuthStateStore
type Locker = core.Locker
type SecretProvider = core.SecretProvider
type StorageService = core.StorageService
type ExtractionService = core.ExtractionService

type StartAuthRequest = core.StartAuthRequest
type StartAuthResponse = core.StartAuthResponse
type CompleteAuthRequest = core.CompleteAuthRequest
type CompleteAuthResponse = core.CompleteAuthResponse
type PullSyncRequest = core.PullSyncRequest
type SyncReport = core.SyncReport
type PushResult = core.PushResult
type MappingLookup = core.MappingLookup

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithSecretProvider    = core.WithSecretProvider
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithOAuthStateStore   = core.WithOAuthStateStore
	WithLocker            = core.WithLocker
	WithStores            = core.WithStores
	WithExternalAPI       = core.WithExternalAPI
	WithOAuthClient       = core.WithOAuthClient
	WithStorageService    = core.WithStorageService
	WithExtractionService = core.WithExtractionService
	WithJobEnqueuer       = core.WithJobEnqueuer
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
