package core

import (
	"context"
	"fmt"
	"strings"
)

// CredentialVault persists credentials as codec-encoded blobs on the
// integration row, sealed by the secret provider when one is configured.
type CredentialVault struct {
	blobs   CredentialBlobStore
	codec   CredentialCodec
	secrets SecretProvider
}

func NewCredentialVault(blobs CredentialBlobStore, codec CredentialCodec, secrets SecretProvider) *CredentialVault {
	if codec == nil {
		codec = JSONCredentialCodec{}
	}
	return &CredentialVault{blobs: blobs, codec: codec, secrets: secrets}
}

func (v *CredentialVault) Load(ctx context.Context, integrationID string) (IntegrationCredential, bool, error) {
	if v == nil || v.blobs == nil {
		return IntegrationCredential{}, false, fmt.Errorf("core: credential blob store is not configured")
	}
	integrationID = strings.TrimSpace(integrationID)
	if integrationID == "" {
		return IntegrationCredential{}, false, fmt.Errorf("core: integration id is required")
	}
	blob, err := v.blobs.LoadCredentialBlob(ctx, integrationID)
	if err != nil {
		return IntegrationCredential{}, false, err
	}
	if len(blob) == 0 {
		return IntegrationCredential{}, false, nil
	}
	if v.secrets != nil {
		blob, err = v.secrets.Decrypt(ctx, blob)
		if err != nil {
			return IntegrationCredential{}, false, fmt.Errorf("core: decrypt credential: %w", err)
		}
	}
	credential, err := v.codec.Decode(blob)
	if err != nil {
		return IntegrationCredential{}, false, err
	}
	return credential, true, nil
}

func (v *CredentialVault) Save(ctx context.Context, integrationID string, credential IntegrationCredential) error {
	if v == nil || v.blobs == nil {
		return fmt.Errorf("core: credential blob store is not configured")
	}
	integrationID = strings.TrimSpace(integrationID)
	if integrationID == "" {
		return fmt.Errorf("core: integration id is required")
	}
	blob, err := v.codec.Encode(credential)
	if err != nil {
		return err
	}
	if v.secrets != nil {
		blob, err = v.secrets.Encrypt(ctx, blob)
		if err != nil {
			return fmt.Errorf("core: encrypt credential: %w", err)
		}
	}
	return v.blobs.SaveCredentialBlob(ctx, integrationID, blob)
}

func (v *CredentialVault) Clear(ctx context.Context, integrationID string) error {
	if v == nil || v.blobs == nil {
		return fmt.Errorf("core: credential blob store is not configured")
	}
	return v.blobs.ClearCredentialBlob(ctx, strings.TrimSpace(integrationID))
}

var _ CredentialStore = (*CredentialVault)(nil)
