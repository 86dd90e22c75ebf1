package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ericfisherdev/iamkeycheck/internal/domain/model"
	"github.com/ericfisherdev/iamkeycheck/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AuditStore = (*AuditRepo)(nil)

// AuditRepo is the SQLite implementation of the AuditStore port interface.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates a new AuditRepo backed by the given DB.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Record inserts entry and returns it with its assigned ID. A zero CreatedAt
// is set to the current time. Masked keys are serialized as a JSON array in
// the TEXT column.
func (r *AuditRepo) Record(ctx context.Context, entry model.AuditEntry) (model.AuditEntry, error) {
	const query = `
		INSERT INTO audit_entries (
			request_id, remote_addr, user_agent, threshold, status,
			result_count, masked_keys, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	if entry.MaskedKeys == nil {
		entry.MaskedKeys = []string{}
	}
	keysJSON, err := json.Marshal(entry.MaskedKeys)
	if err != nil {
		return model.AuditEntry{}, fmt.Errorf("marshal masked keys: %w", err)
	}

	res, err := r.db.Writer.ExecContext(ctx, query,
		entry.RequestID, entry.RemoteAddr, entry.UserAgent, entry.Threshold, string(entry.Status),
		entry.ResultCount, string(keysJSON), entry.Error, entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return model.AuditEntry{}, fmt.Errorf("insert audit entry: %w", err)
	}

	entry.ID, err = res.LastInsertId()
	if err != nil {
		return model.AuditEntry{}, fmt.Errorf("get audit entry id: %w", err)
	}

	return entry, nil
}

// ListRecent returns at most limit entries, newest first.
func (r *AuditRepo) ListRecent(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	const query = `
		SELECT id, request_id, remote_addr, user_agent, threshold, status,
			result_count, masked_keys, error, created_at
		FROM audit_entries
		ORDER BY id DESC
		LIMIT ?
	`

	if limit <= 0 {
		return []model.AuditEntry{}, nil
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []model.AuditEntry{}
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuditEntry(s scanner) (*model.AuditEntry, error) {
	var entry model.AuditEntry
	var status, keysJSON, createdAt string

	err := s.Scan(
		&entry.ID, &entry.RequestID, &entry.RemoteAddr, &entry.UserAgent, &entry.Threshold, &status,
		&entry.ResultCount, &keysJSON, &entry.Error, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Status = model.AuditStatus(status)

	if err := json.Unmarshal([]byte(keysJSON), &entry.MaskedKeys); err != nil {
		return nil, fmt.Errorf("unmarshal masked keys: %w", err)
	}
	if entry.MaskedKeys == nil {
		entry.MaskedKeys = []string{}
	}

	entry.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &entry, nil
}

func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
