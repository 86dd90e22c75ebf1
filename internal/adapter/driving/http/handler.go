package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/ericfisherdev/iamkeycheck/internal/application"
	"github.com/ericfisherdev/iamkeycheck/internal/domain/model"
	"github.com/ericfisherdev/iamkeycheck/internal/domain/port/driven"
)

const (
	defaultThresholdHours = 24
	defaultAuditLimit     = 50
	maxAuditLimit         = 500
)

// redactedHeaders are never written to the audit log.
var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
}

// StaleKeyChecker runs a stale-key check for a threshold in hours.
type StaleKeyChecker interface {
	CheckStale(ctx context.Context, thresholdHours int) ([]model.StaleResult, error)
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	checker    StaleKeyChecker
	auditStore driven.AuditStore
	metrics    http.Handler
	logger     *slog.Logger
}

// NewHandler creates a Handler. auditStore and metrics may be nil, in which
// case audit rows are not persisted and /metrics is not served.
func NewHandler(
	checker StaleKeyChecker,
	auditStore driven.AuditStore,
	metrics http.Handler,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		checker:    checker,
		auditStore: auditStore,
		metrics:    metrics,
		logger:     logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with recovery, request ID, and logging middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /stale-keys", h.StaleKeys)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /audit", h.ListAudit)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = requestIDMiddleware(wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// StaleKeys returns every managed key older than n hours (default 24). The
// caller is audited before the query is validated.
func (h *Handler) StaleKeys(w http.ResponseWriter, r *http.Request) {
	h.auditRequest(r)

	threshold := defaultThresholdHours
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		threshold = n
	}

	results, err := h.checker.CheckStale(r.Context(), threshold)
	if err != nil {
		h.logger.Error("[AUDIT][ERROR] stale key check failed",
			"request_id", requestIDFrom(r.Context()),
			"threshold_hours", threshold,
			"error", err,
		)
		h.persistAudit(r, model.AuditEntry{
			Threshold: threshold,
			Status:    model.AuditStatusError,
			Error:     err.Error(),
		})

		if errors.Is(err, application.ErrNegativeThreshold) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	masked := make([]string, 0, len(results))
	for _, res := range results {
		masked = append(masked, model.MaskKeyID(res.CredentialID))
	}

	h.logger.Info("[AUDIT] stale key check",
		"request_id", requestIDFrom(r.Context()),
		"status", model.AuditStatusSuccess,
		"threshold_hours", threshold,
		"result_count", len(results),
		"keys", masked,
	)
	h.persistAudit(r, model.AuditEntry{
		Threshold:   threshold,
		Status:      model.AuditStatusSuccess,
		ResultCount: len(results),
		MaskedKeys:  masked,
	})

	writeJSON(w, http.StatusOK, NewStaleKeysResponse(results))
}

// Health reports liveness without touching the checker.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ListAudit returns the most recent audit entries, newest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.auditStore == nil {
		writeError(w, http.StatusNotFound, "audit persistence is not configured")
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	entries, err := h.auditStore.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list audit entries", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toAuditEntryResponse(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

// auditRequest logs who is asking: client IP, user agent, and every header
// except credentials.
func (h *Handler) auditRequest(r *http.Request) {
	headers := make([]string, 0, len(r.Header))
	for name, values := range r.Header {
		if redactedHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		headers = append(headers, name+": "+strings.Join(values, ", "))
	}
	sort.Strings(headers)

	h.logger.Info("[AUDIT][HEADER] stale key request",
		"request_id", requestIDFrom(r.Context()),
		"client_ip", clientIP(r),
		"user_agent", r.UserAgent(),
		"headers", headers,
	)
}

// persistAudit stores entry when an audit store is configured. Failures are
// logged and never reach the caller.
func (h *Handler) persistAudit(r *http.Request, entry model.AuditEntry) {
	if h.auditStore == nil {
		return
	}

	entry.RequestID = requestIDFrom(r.Context())
	entry.RemoteAddr = clientIP(r)
	entry.UserAgent = r.UserAgent()

	// Detached from the request so a client disconnect does not drop the row.
	ctx := context.WithoutCancel(r.Context())
	if _, err := h.auditStore.Record(ctx, entry); err != nil {
		h.logger.Error("failed to persist audit entry", "request_id", entry.RequestID, "error", err)
	}
}

// clientIP returns the first X-Forwarded-For hop, falling back to the
// connection's remote host.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
