package model

import "time"

// OwnerIdentity is the account resolved by authenticating as a credential.
type OwnerIdentity struct {
	Username string
}

// ManagedCredential is the identity system's authoritative view of one access
// key belonging to an owner. CreatedAt is always UTC.
type ManagedCredential struct {
	ID        string
	CreatedAt time.Time
}

// StaleResult identifies an access key older than the requested threshold.
type StaleResult struct {
	OwnerID      string
	CredentialID string
}

// IsStale reports whether a credential created at createdAt is strictly older
// than threshold at the reference time now.
func IsStale(now, createdAt time.Time, threshold time.Duration) bool {
	return now.UTC().Sub(createdAt.UTC()) > threshold
}
