package security

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	blobPrefix    = "ledgersync.credential.v1:"
	blobAlgorithm = "aes-256-gcm"
)

// sealedBlob is the stored form of an encrypted credential. Byte fields are
// base64 encoded by encoding/json.
type sealedBlob struct {
	KeyID     string `json:"kid"`
	Version   int    `json:"ver"`
	Algorithm string `json:"alg"`
	Nonce     []byte `json:"nonce"`
	Data      []byte `json:"data"`
}

func (b sealedBlob) marshal() ([]byte, error) {
	b.KeyID = strings.TrimSpace(b.KeyID)
	if b.Algorithm == "" {
		b.Algorithm = blobAlgorithm
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("security: encode sealed blob: %w", err)
	}
	return append([]byte(blobPrefix), payload...), nil
}

func unmarshalBlob(raw []byte) (sealedBlob, error) {
	payload, ok := bytes.CutPrefix(raw, []byte(blobPrefix))
	switch {
	case len(raw) == 0:
		return sealedBlob{}, fmt.Errorf("security: ciphertext is required")
	case !ok:
		return sealedBlob{}, fmt.Errorf("security: ciphertext is not a sealed credential blob")
	}

	var blob sealedBlob
	if err := json.Unmarshal(payload, &blob); err != nil {
		return sealedBlob{}, fmt.Errorf("security: decode sealed blob: %w", err)
	}
	blob.KeyID = strings.TrimSpace(blob.KeyID)
	blob.Algorithm = strings.ToLower(strings.TrimSpace(blob.Algorithm))
	if blob.Algorithm == "" {
		blob.Algorithm = blobAlgorithm
	}
	if blob.Algorithm != blobAlgorithm {
		return sealedBlob{}, fmt.Errorf("security: unsupported algorithm %q", blob.Algorithm)
	}
	if len(blob.Nonce) == 0 || len(blob.Data) == 0 {
		return sealedBlob{}, fmt.Errorf("security: sealed blob is missing nonce or data")
	}
	return blob, nil
}

// EnvelopeMetadata describes a sealed credential blob without opening it.
type EnvelopeMetadata struct {
	KeyID     string
	Version   int
	Algorithm string
}

func ParseEnvelopeMetadata(ciphertext []byte) (EnvelopeMetadata, error) {
	blob, err := unmarshalBlob(ciphertext)
	if err != nil {
		return EnvelopeMetadata{}, err
	}
	return EnvelopeMetadata{KeyID: blob.KeyID, Version: blob.Version, Algorithm: blob.Algorithm}, nil
}

// KeyRotationWindow bounds when the active application key may seal new
// blobs. A zero bound is open.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	if !w.NotBefore.IsZero() && at.Before(w.NotBefore) {
		return false
	}
	return w.NotAfter.IsZero() || !at.After(w.NotAfter)
}
