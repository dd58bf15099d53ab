package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// LedgerService reads balances and, in development, mints funds.
type LedgerService interface {
	Balance(ctx context.Context, account domain.Account) (domain.Amount, error)
	Deposit(ctx context.Context, user domain.Identity, amount domain.Amount) (domain.Amount, error)
}

// BalanceHandler serves ledger endpoints.
type BalanceHandler struct {
	ledger LedgerService
	logger *slog.Logger
}

// NewBalanceHandler creates a BalanceHandler.
func NewBalanceHandler(ledger LedgerService, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{ledger: ledger, logger: logger}
}

type balanceResponse struct {
	Account domain.Account `json:"account"`
	Balance domain.Amount  `json:"balance"`
}

// GetBalance returns the balance of an account. A bare address is read as
// the user account of that identity.
// GET /api/balances/{account}
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("account")
	var account domain.Account
	if id, err := domain.ParseIdentity(raw); err == nil {
		account = domain.UserAccount(id)
	} else if account, err = domain.ParseAccount(raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "InvalidAccount")
		return
	}

	bal, err := h.ledger.Balance(r.Context(), account)
	if err != nil {
		writeDomainError(w, r, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Account: account, Balance: bal})
}

type depositRequest struct {
	User   domain.Identity `json:"user"`
	Amount domain.Amount   `json:"amount"`
}

// Deposit credits a user account. Only routed when the dev faucet is on.
// POST /api/dev/deposit
func (h *BalanceHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !decodeOr400(w, r, &req) {
		return
	}
	if req.User == domain.ZeroIdentity {
		writeError(w, http.StatusBadRequest, "user required", "InvalidIdentity")
		return
	}
	bal, err := h.ledger.Deposit(r.Context(), req.User, req.Amount)
	if err != nil {
		writeDomainError(w, r, h.logger, "deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Account: domain.UserAccount(req.User), Balance: bal})
}
