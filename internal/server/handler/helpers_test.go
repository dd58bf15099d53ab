package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

func TestWriteDomainError(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrStakeTooSmall, http.StatusBadRequest, "StakeTooSmall"},
		{domain.ErrBettingClosed, http.StatusConflict, "BettingClosed"},
		{domain.ErrNotAdmin, http.StatusForbidden, "NotAdmin"},
		{domain.ErrMarketNotFound, http.StatusNotFound, "MarketNotFound"},
		{domain.ErrOverflow, http.StatusUnprocessableEntity, "Overflow"},
		{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "InsufficientFunds"},
		{fmt.Errorf("postgres: get market: %w", domain.ErrMarketNotFound), http.StatusNotFound, "MarketNotFound"},
		{errors.New("connection reset"), http.StatusInternalServerError, "Internal"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/markets/1", nil)
		writeDomainError(rec, req, logger, "test", tt.err)
		if rec.Code != tt.status {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.status)
		}
		if !strings.Contains(rec.Body.String(), `"code":"`+tt.code+`"`) {
			t.Errorf("%v: body = %s", tt.err, rec.Body.String())
		}
	}
}

func TestParseListOpts(t *testing.T) {
	tests := []struct {
		query         string
		limit, offset int
	}{
		{"", 50, 0},
		{"limit=10&offset=20", 10, 20},
		{"limit=9999", 500, 0},
		{"limit=-1&offset=-5", 50, 0},
	}
	for _, tt := range tests {
		opts := parseListOpts(httptest.NewRequest(http.MethodGet, "/api/markets?"+tt.query, nil))
		if opts.Limit != tt.limit || opts.Offset != tt.offset {
			t.Errorf("%q: got %d/%d, want %d/%d", tt.query, opts.Limit, opts.Offset, tt.limit, tt.offset)
		}
	}
}
