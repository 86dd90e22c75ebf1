package model

import "time"

// AuditStatus is the outcome recorded for an audited stale-key request.
type AuditStatus string

// AuditStatus values.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry is one audited call to the stale-key check. MaskedKeys holds
// access key IDs already passed through MaskKeyID; raw IDs are never stored.
type AuditEntry struct {
	ID          int64
	RequestID   string
	RemoteAddr  string
	UserAgent   string
	Threshold   int
	Status      AuditStatus
	ResultCount int
	MaskedKeys  []string
	Error       string
	CreatedAt   time.Time
}
