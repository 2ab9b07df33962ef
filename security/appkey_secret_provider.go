package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goliatone/go-ledger-sync/core"
)

type Option func(*AppKeySecretProvider)

// AppKeySecretProvider seals credential blobs with AES-GCM under an
// application key. Retired keys registered with WithPreviousKey stay valid
// for decryption so stored credentials survive a key rotation.
type AppKeySecretProvider struct {
	active  appKey
	retired []appKey
	window  KeyRotationWindow
	now     func() time.Time
}

type appKey struct {
	material []byte
	keyID    string
	version  int
}

func (k appKey) matches(keyID string, version int) bool {
	if keyID != "" && keyID != k.keyID {
		return false
	}
	return version <= 0 || version == k.version
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			provider.active.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.active.version = version
		}
	}
}

// WithPreviousKey registers a decrypt-only key.
func WithPreviousKey(keyMaterial []byte, keyID string, version int) Option {
	return func(provider *AppKeySecretProvider) {
		key := bytes.TrimSpace(keyMaterial)
		keyID = strings.TrimSpace(keyID)
		if len(key) == 0 || keyID == "" {
			return
		}
		if version <= 0 {
			version = 1
		}
		provider.retired = append(provider.retired, appKey{
			material: normalizeKey(key),
			keyID:    keyID,
			version:  version,
		})
	}
}

// WithRotationWindow limits when the active key may seal new blobs.
func WithRotationWindow(window KeyRotationWindow) Option {
	return func(provider *AppKeySecretProvider) {
		provider.window = window
	}
}

func WithClock(now func() time.Time) Option {
	return func(provider *AppKeySecretProvider) {
		if now != nil {
			provider.now = now
		}
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	provider := &AppKeySecretProvider{
		active: appKey{
			material: normalizeKey(key),
			keyID:    "app-key",
			version:  1,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	if !p.window.Allows(p.now()) {
		return nil, fmt.Errorf("security: key %s v%d is outside its rotation window", p.active.keyID, p.active.version)
	}
	gcm, err := newGCM(p.active.material)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}

	return sealedBlob{
		KeyID:   p.active.keyID,
		Version: p.active.version,
		Nonce:   nonce,
		Data:    gcm.Seal(nil, nonce, plaintext, nil),
	}.marshal()
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	blob, err := unmarshalBlob(ciphertext)
	if err != nil {
		return nil, err
	}
	key, ok := p.keyFor(blob.KeyID, blob.Version)
	if !ok {
		return nil, fmt.Errorf("security: no key for %q v%d", blob.KeyID, blob.Version)
	}
	gcm, err := newGCM(key.material)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, blob.Nonce, blob.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.active.keyID
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.active.version
}

func (p *AppKeySecretProvider) keyFor(keyID string, version int) (appKey, bool) {
	if p.active.matches(keyID, version) {
		return p.active, true
	}
	for _, key := range p.retired {
		if key.matches(keyID, version) {
			return key, true
		}
	}
	return appKey{}, false
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)
