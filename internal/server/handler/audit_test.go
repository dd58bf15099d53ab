package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
	"github.com/alanyoungcy/peerstake/internal/server/middleware"
)

type fakeAudit struct {
	opts    domain.ListOpts
	entries []domain.AuditEntry
}

func (f *fakeAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	f.opts = opts
	return f.entries, nil
}

type fixedAdmin domain.Identity

func (a fixedAdmin) FeeSchedule(context.Context) (domain.FeeSchedule, error) {
	return domain.FeeSchedule{Admin: domain.Identity(a)}, nil
}

func TestAuditHandler_List(t *testing.T) {
	admin, other := domain.Identity{0xa1}, domain.Identity{0xb2}
	audit := &fakeAudit{entries: []domain.AuditEntry{{ID: 3, Event: "market_settled"}}}
	h := NewAuditHandler(audit, fixedAdmin(admin), slog.New(slog.DiscardHandler))

	tests := []struct {
		name   string
		who    *domain.Identity
		query  string
		status int
	}{
		{"unsigned", nil, "", http.StatusUnauthorized},
		{"not admin", &other, "", http.StatusForbidden},
		{"bad since", &admin, "?since=yesterday", http.StatusBadRequest},
		{"admin", &admin, "?since=2025-01-01T00:00:00Z&limit=10", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/audit"+tt.query, nil)
			if tt.who != nil {
				req = req.WithContext(middleware.WithCaller(req.Context(), *tt.who))
			}
			rec := httptest.NewRecorder()
			h.List(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}

	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if audit.opts.Limit != 10 || audit.opts.Since == nil || !audit.opts.Since.Equal(since) || audit.opts.Until != nil {
		t.Errorf("opts = %+v", audit.opts)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
	req = req.WithContext(middleware.WithCaller(req.Context(), admin))
	rec := httptest.NewRecorder()
	h.List(rec, req)
	var resp auditResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Event != "market_settled" || resp.Limit != 50 {
		t.Errorf("response = %+v", resp)
	}
}
