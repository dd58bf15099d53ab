package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// FeeScheduleService is the fee schedule surface of the service layer.
type FeeScheduleService interface {
	FeeSchedule(ctx context.Context) (domain.FeeSchedule, error)
	InitializeFeeSchedule(ctx context.Context, caller, admin domain.Identity, rates domain.FeeRates) (domain.FeeSchedule, error)
	UpdateFeeSchedule(ctx context.Context, caller domain.Identity, rates domain.FeeRates) (domain.FeeSchedule, error)
	SetAdmin(ctx context.Context, caller, newAdmin domain.Identity) (domain.FeeSchedule, error)
}

// FeeScheduleHandler serves the protocol configuration endpoints.
type FeeScheduleHandler struct {
	fees   FeeScheduleService
	logger *slog.Logger
}

// NewFeeScheduleHandler creates a FeeScheduleHandler.
func NewFeeScheduleHandler(fees FeeScheduleService, logger *slog.Logger) *FeeScheduleHandler {
	return &FeeScheduleHandler{fees: fees, logger: logger}
}

type initFeeScheduleRequest struct {
	Admin domain.Identity `json:"admin"`
	domain.FeeRates
}

type setAdminRequest struct {
	Admin domain.Identity `json:"admin"`
}

// Get returns the fee schedule.
// GET /api/fee-schedule
func (h *FeeScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	fs, err := h.fees.FeeSchedule(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "get fee schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, fs)
}

// Initialize creates the fee schedule. It succeeds once.
// POST /api/fee-schedule
func (h *FeeScheduleHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req initFeeScheduleRequest
	if !decodeOr400(w, r, &req) {
		return
	}
	fs, err := h.fees.InitializeFeeSchedule(r.Context(), who, req.Admin, req.FeeRates)
	if err != nil {
		writeDomainError(w, r, h.logger, "initialize fee schedule", err)
		return
	}
	writeJSON(w, http.StatusCreated, fs)
}

// Update replaces the fee sink and rates. Admin only.
// PUT /api/fee-schedule
func (h *FeeScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var rates domain.FeeRates
	if !decodeOr400(w, r, &rates) {
		return
	}
	fs, err := h.fees.UpdateFeeSchedule(r.Context(), who, rates)
	if err != nil {
		writeDomainError(w, r, h.logger, "update fee schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, fs)
}

// SetAdmin hands the admin role to another identity. Admin only.
// PUT /api/fee-schedule/admin
func (h *FeeScheduleHandler) SetAdmin(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req setAdminRequest
	if !decodeOr400(w, r, &req) {
		return
	}
	fs, err := h.fees.SetAdmin(r.Context(), who, req.Admin)
	if err != nil {
		writeDomainError(w, r, h.logger, "set admin", err)
		return
	}
	writeJSON(w, http.StatusOK, fs)
}
