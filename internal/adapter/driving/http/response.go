package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/iamkeycheck/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// StaleKeysResponse is the body of GET /stale-keys. StaleKeys is never null.
type StaleKeysResponse struct {
	StaleKeys []StaleKeyResponse `json:"stale_keys"`
}

// StaleKeyResponse is one stale access key and its owner.
type StaleKeyResponse struct {
	UserID      string `json:"user_id"`
	AccessKeyID string `json:"access_key_id"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// AuditEntryResponse is the JSON representation of a persisted audit entry.
type AuditEntryResponse struct {
	ID             int64    `json:"id"`
	RequestID      string   `json:"request_id"`
	RemoteAddr     string   `json:"remote_addr"`
	UserAgent      string   `json:"user_agent"`
	ThresholdHours int      `json:"threshold_hours"`
	Status         string   `json:"status"`
	ResultCount    int      `json:"result_count"`
	MaskedKeys     []string `json:"masked_keys"`
	Error          string   `json:"error,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

// NewStaleKeysResponse converts check results to the GET /stale-keys body.
func NewStaleKeysResponse(results []model.StaleResult) StaleKeysResponse {
	keys := make([]StaleKeyResponse, 0, len(results))
	for _, r := range results {
		keys = append(keys, StaleKeyResponse{UserID: r.OwnerID, AccessKeyID: r.CredentialID})
	}
	return StaleKeysResponse{StaleKeys: keys}
}

// toAuditEntryResponse converts a domain AuditEntry to its JSON representation.
func toAuditEntryResponse(e model.AuditEntry) AuditEntryResponse {
	keys := e.MaskedKeys
	if keys == nil {
		keys = []string{}
	}

	return AuditEntryResponse{
		ID:             e.ID,
		RequestID:      e.RequestID,
		RemoteAddr:     e.RemoteAddr,
		UserAgent:      e.UserAgent,
		ThresholdHours: e.Threshold,
		Status:         string(e.Status),
		ResultCount:    e.ResultCount,
		MaskedKeys:     keys,
		Error:          e.Error,
		CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339),
	}
}
