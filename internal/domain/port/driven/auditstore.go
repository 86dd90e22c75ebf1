package driven

import (
	"context"

	"github.com/ericfisherdev/iamkeycheck/internal/domain/model"
)

// AuditStore defines the driven port for the stale-key request audit trail.
type AuditStore interface {
	// Record appends an entry and returns it with ID populated.
	Record(ctx context.Context, entry model.AuditEntry) (model.AuditEntry, error)

	// ListRecent returns at most limit entries, newest first.
	ListRecent(ctx context.Context, limit int) ([]model.AuditEntry, error)
}
