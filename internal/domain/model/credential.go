package model

import (
	"errors"
	"log/slog"
	"strings"
)

// ErrIncompleteCredential is returned by NewCredentialRecord when either the
// key ID or the secret is blank. Export files commonly contain such rows, so
// callers treat it as "skip this row" rather than a failure.
var ErrIncompleteCredential = errors.New("credential record is missing a required field")

// CredentialRecord is one access key pair taken from a credential-export file.
// It only supplies bearer authority for identity lookups; the export file
// carries no timestamps that are trusted.
type CredentialRecord struct {
	KeyID  string
	Secret string
}

// NewCredentialRecord validates an untyped row's fields and returns a record,
// or ErrIncompleteCredential when either field is blank. The key ID is
// trimmed; the secret is opaque and kept exactly as given.
func NewCredentialRecord(keyID, secret string) (CredentialRecord, error) {
	keyID = strings.TrimSpace(keyID)
	if keyID == "" || strings.TrimSpace(secret) == "" {
		return CredentialRecord{}, ErrIncompleteCredential
	}
	return CredentialRecord{KeyID: keyID, Secret: secret}, nil
}

// String returns the key ID only. The secret is never rendered.
func (c CredentialRecord) String() string {
	return c.KeyID
}

// LogValue implements slog.LogValuer so that logging a record never leaks its secret.
func (c CredentialRecord) LogValue() slog.Value {
	return slog.StringValue(c.KeyID)
}

// MaskKeyID obscures all but the first and last two characters of an access
// key ID for audit output. IDs shorter than five characters are fully masked.
func MaskKeyID(id string) string {
	if len(id) < 5 {
		return "****"
	}
	return id[:2] + strings.Repeat("*", len(id)-4) + id[len(id)-2:]
}
