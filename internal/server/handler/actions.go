package handler

import (
	"net/http"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// Market actions. Every route requires a signed request; the signer is the
// caller the engine authorizes against.

type betRequest struct {
	Option int           `json:"option"`
	Amount domain.Amount `json:"amount"`
}

type outcomeRequest struct {
	Outcome *int `json:"outcome"`
}

type priceRequest struct {
	Price uint64 `json:"price"`
}

type forceCloseRequest struct {
	Entries []domain.RefundEntry `json:"entries"`
}

type amountResponse struct {
	MarketID uint64        `json:"market_id"`
	Amount   domain.Amount `json:"amount"`
}

// actionArgs resolves the caller and market id, writing the error response
// itself when either is missing.
func actionArgs(w http.ResponseWriter, r *http.Request) (domain.Identity, uint64, bool) {
	who, ok := caller(w, r)
	if !ok {
		return domain.Identity{}, 0, false
	}
	id, ok := marketID(w, r)
	return who, id, ok
}

func decodeOr400(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSON(r, v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "BadRequest")
		return false
	}
	return true
}

// PlaceBet stakes on an option.
// POST /api/markets/{id}/bets
func (h *MarketHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	who, id, ok := actionArgs(w, r)
	if !ok {
		return
	}
	var req betRequest
	if !decodeOr400(w, r, &req) {
		return
	}
	pos, err := h.markets.PlaceBet(r.Context(), who, id, req.Option, req.Amount)
	if err != nil {
		writeDomainError(w, r, h.logger, "place bet", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// outcome decodes a required outcome index.
func outcome(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req outcomeRequest
	if !decodeOr400(w, r, &req) {
		return 0, false
	}
	if req.Outcome == nil {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidOptionIndex.Msg, domain.ErrInvalidOptionIndex.Code)
		return 0, false
	}
	return *req.Outcome, true
}

// ProposeOutcome opens the challenge window on a proposed outcome.
// POST /api/markets/{id}/propose
func (h *MarketHandler) ProposeOutcome(w http.ResponseWriter, r *http.Request) {
	who, id, ok := actionArgs(w, r)
	if !ok {
		return
	}
	idx, ok := outcome(w, r)
	if !ok {
		return
	}
	m, err := h.markets.ProposeOutcome(r.Context(), who, id, idx)
	if err != nil {
		writeDomainError(w, r, h.logger, "propose outcome", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ChallengeOutcome disputes the proposal.
// POST /api/markets/{id}/challenge
func (h *MarketHandler) ChallengeOutcome(w http.ResponseWriter, r *http.Request) {
	who, id, ok := actionArgs(w, r)
	if !ok {
		return
	}
	m, err := h.markets.ChallengeOutcome(r.Context(), who, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "challenge outcome", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// FinalizeSettlement settles an unchallenged proposal.
// POST /api/markets/{id}/finalize
func (h *MarketHandler) FinalizeSettlement(w http.ResponseWriter, r *http.Request) {
	who, id, ok := actionArgs(w, r)
	if !ok {
		return
	}
	m, err := h.markets.FinalizeSettlement(r.Context(), who, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "finalize settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ResolveDispute settles a disputed market. Admin only.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	who, id, ok := actionArgs(w, r)
	if !ok {
		return
	}
	idx, ok := outcome(w, r)
	if !ok {
		return
	}
	m, err := h.markets.ResolveDispute(r.Context(), who, id, idx)
	if err != nil {
		writeDomainError(w, r, h.logger, "resolve dispute", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// SubmitPrice settles an oracle market. Only the market's oracle may call.
// POST /api/markets/{id}/oracle
func (h *MarketHandler) SubmitPrice(w http.ResponseWriter, r *http.Request) {
	who, id, ok := actionArgs(w, r)
	if !ok {
		return
	}
	var req priceRequest
	if !decodeOr400(w, r, &req) {
		return
	}
	m, err := h.markets.SubmitPrice(r.Context(), who, id, req.Price)
	if err != nil {
		writeDomainError(w, r, h.logger, "submit price", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ClaimPrize pays the caller's winnings.
// POST /api/markets/{id}/claim
func (h *MarketHandler) ClaimPrize(w http.ResponseWriter, r *http.Request) {
	who, id, ok := actionArgs(w, r)
	if !ok {
		return
	}
	p, err := h.markets.ClaimPrize(r.Context(), who, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "claim prize", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RefundExpired returns principal from a market nobody resolved in time.
// POST /api/markets/{id}/refund
func (h *MarketHandler) RefundExpired(w http.ResponseWriter, r *http.Request) {
	who, id, ok := actionArgs(w, r)
	if !ok {
		return
	}
	amt, err := h.markets.RefundExpired(r.Context(), who, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "refund expired", err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{MarketID: id, Amount: amt})
}

// CancelMarket cancels a market. Admin only.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) CancelMarket(w http.ResponseWriter, r *http.Request) {
	who, id, ok := actionArgs(w, r)
	if !ok {
		return
	}
	m, err := h.markets.AdminCancelMarket(r.Context(), who, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "cancel market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ClaimCancelledRefund returns principal from a cancelled market.
// POST /api/markets/{id}/cancelled-refund
func (h *MarketHandler) ClaimCancelledRefund(w http.ResponseWriter, r *http.Request) {
	who, id, ok := actionArgs(w, r)
	if !ok {
		return
	}
	amt, err := h.markets.ClaimCancelledRefund(r.Context(), who, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "claim cancelled refund", err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{MarketID: id, Amount: amt})
}

// ForceClose cancels a market and refunds a batch of positions in one
// transaction. Admin only.
// POST /api/markets/{id}/force-close
func (h *MarketHandler) ForceClose(w http.ResponseWriter, r *http.Request) {
	who, id, ok := actionArgs(w, r)
	if !ok {
		return
	}
	var req forceCloseRequest
	if !decodeOr400(w, r, &req) {
		return
	}
	res, err := h.markets.AdminForceClose(r.Context(), who, id, req.Entries)
	if err != nil {
		writeDomainError(w, r, h.logger, "force close", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
