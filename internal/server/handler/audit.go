package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// AuditReader is the read side of the audit log.
type AuditReader interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AdminSource reports the current fee schedule admin.
type AdminSource interface {
	FeeSchedule(ctx context.Context) (domain.FeeSchedule, error)
}

// AuditHandler serves the audit log to the fee schedule admin.
type AuditHandler struct {
	audit  AuditReader
	admins AdminSource
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit AuditReader, admins AdminSource, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, admins: admins, logger: logger}
}

type auditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// List returns audit entries newest first. Admin only.
// GET /api/audit?since=2025-01-01T00:00:00Z&until=...&limit=50&offset=0
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	fs, err := h.admins.FeeSchedule(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "audit admin", err)
		return
	}
	if fs.Admin != who {
		writeError(w, http.StatusForbidden, domain.ErrNotAdmin.Msg, domain.ErrNotAdmin.Code)
		return
	}

	opts := parseListOpts(r)
	for _, b := range []struct {
		key string
		dst **time.Time
	}{{"since", &opts.Since}, {"until", &opts.Until}} {
		v := r.URL.Query().Get(b.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+b.key+" time", "BadRequest")
			return
		}
		*b.dst = &t
	}

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list audit", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, auditResponse{Entries: entries, Limit: opts.Limit, Offset: opts.Offset})
}
