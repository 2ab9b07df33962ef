package core

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestJSONCredentialCodecRoundTrip(t *testing.T) {
	expires := testNow.Add(time.Hour)
	refreshExpires := testNow.Add(100 * 24 * time.Hour)

	codec := JSONCredentialCodec{}
	encoded, err := codec.Encode(IntegrationCredential{
		RealmID:               " realm-1 ",
		TokenType:             "bearer",
		AccessToken:           "access-1",
		AccessTokenExpiresAt:  &expires,
		RefreshToken:          "refresh-1",
		RefreshTokenExpiresAt: &refreshExpires,
		Scopes:                []string{"com.intuit.quickbooks.accounting"},
		LatencyMs:             120,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(encoded), CredentialPayloadFormatJSONV1) {
		t.Fatalf("expected format marker in payload: %s", encoded)
	}

	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.RealmID != "realm-1" || decoded.AccessToken != "access-1" || decoded.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected decoded credential: %+v", decoded)
	}
	if decoded.AccessTokenExpiresAt == nil || !decoded.AccessTokenExpiresAt.Equal(expires) {
		t.Fatalf("expected access expiry roundtrip")
	}
	if decoded.RefreshTokenExpiresAt == nil || !decoded.RefreshTokenExpiresAt.Equal(refreshExpires) {
		t.Fatalf("expected refresh expiry roundtrip")
	}
	if decoded.AuthorizationHeader() != "Bearer access-1" {
		t.Fatalf("unexpected authorization header %q", decoded.AuthorizationHeader())
	}
}

func TestJSONCredentialCodecRejectsForeignFormat(t *testing.T) {
	codec := JSONCredentialCodec{}
	if _, err := codec.Decode([]byte(`{"format":"other","version":1}`)); err == nil {
		t.Fatalf("expected unknown format to fail")
	}
	if _, err := codec.Decode(nil); err == nil {
		t.Fatalf("expected empty payload to fail")
	}
}

func TestCredentialTokenWindows(t *testing.T) {
	expires := testNow.Add(5 * time.Minute)
	cred := IntegrationCredential{AccessToken: "a", AccessTokenExpiresAt: &expires}
	if !cred.AccessTokenValid(testNow, 0) {
		t.Fatalf("expected token to be valid without lead")
	}
	if cred.AccessTokenValid(testNow, 10*time.Minute) {
		t.Fatalf("expected token inside lead window to need refresh")
	}
	if (IntegrationCredential{AccessToken: "a"}).AccessTokenValid(testNow, 0) {
		t.Fatalf("expected unknown expiry to count as expired")
	}
	if (IntegrationCredential{}).RefreshTokenExpired(testNow) {
		t.Fatalf("expected unknown refresh expiry to count as live")
	}
	past := testNow.Add(-time.Second)
	if !(IntegrationCredential{RefreshTokenExpiresAt: &past}).RefreshTokenExpired(testNow) {
		t.Fatalf("expected past refresh expiry to be expired")
	}
}

func TestCredentialVaultSealsBlobs(t *testing.T) {
	ctx := context.Background()
	blobs := newMemoryBlobStore()
	vault := NewCredentialVault(blobs, nil, testSecretProvider{})

	if _, found, err := vault.Load(ctx, "int-1"); err != nil || found {
		t.Fatalf("expected empty vault, found=%v err=%v", found, err)
	}
	if err := vault.Save(ctx, "int-1", validCredential("realm-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, _ := blobs.LoadCredentialBlob(ctx, "int-1")
	if !strings.HasPrefix(string(raw), "enc:") || strings.Contains(string(raw), "access-1") {
		t.Fatalf("expected sealed blob, got %q", raw)
	}

	loaded, found, err := vault.Load(ctx, "int-1")
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if loaded.AccessToken != "access-1" || loaded.RealmID != "realm-1" {
		t.Fatalf("unexpected credential: %+v", loaded)
	}

	if err := vault.Clear(ctx, "int-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, found, _ := vault.Load(ctx, "int-1"); found {
		t.Fatalf("expected credential to be cleared")
	}
}

func TestCredentialVaultRejectsTamperedBlob(t *testing.T) {
	ctx := context.Background()
	blobs := newMemoryBlobStore()
	_ = blobs.SaveCredentialBlob(ctx, "int-1", []byte(`{"access_token":"plain"}`))
	vault := NewCredentialVault(blobs, JSONCredentialCodec{}, testSecretProvider{})
	if _, _, err := vault.Load(ctx, "int-1"); err == nil {
		t.Fatalf("expected unsealed blob to fail decryption")
	}
}
