package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
	"github.com/alanyoungcy/peerstake/internal/settlement"
)

// MarketService defines the methods that the market handlers require from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	GetMarket(ctx context.Context, id uint64) (domain.Market, error)
	ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error)
	Positions(ctx context.Context, marketID uint64) ([]domain.Position, error)
	Position(ctx context.Context, marketID uint64, user domain.Identity) (domain.Position, error)
	CreateMarket(ctx context.Context, creator domain.Identity, p settlement.MarketParams) (domain.Market, error)

	PlaceBet(ctx context.Context, caller domain.Identity, marketID uint64, option int, amount domain.Amount) (domain.Position, error)
	ProposeOutcome(ctx context.Context, caller domain.Identity, marketID uint64, outcome int) (domain.Market, error)
	ChallengeOutcome(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Market, error)
	FinalizeSettlement(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Market, error)
	ResolveDispute(ctx context.Context, caller domain.Identity, marketID uint64, outcome int) (domain.Market, error)
	SubmitPrice(ctx context.Context, caller domain.Identity, marketID uint64, price uint64) (domain.Market, error)
	ClaimPrize(ctx context.Context, caller domain.Identity, marketID uint64) (settlement.Payout, error)
	RefundExpired(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Amount, error)
	AdminCancelMarket(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Market, error)
	ClaimCancelledRefund(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Amount, error)
	AdminForceClose(ctx context.Context, caller domain.Identity, marketID uint64, entries []domain.RefundEntry) (settlement.ForceCloseResult, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets in id order.
// GET /api/markets?status=open,closed&creator=0x...&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	f := domain.MarketFilter{ListOpts: parseListOpts(r)}
	q := r.URL.Query()

	if v := q.Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			st := domain.MarketStatus(strings.TrimSpace(s))
			if !st.Valid() {
				writeError(w, http.StatusBadRequest, "unknown status "+string(st), "InvalidStatus")
				return
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if v := q.Get("creator"); v != "" {
		id, err := domain.ParseIdentity(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "InvalidIdentity")
			return
		}
		f.Creator = &id
	}

	markets, err := h.markets.ListMarkets(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, h.logger, "list markets", err)
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: markets, Limit: f.Limit, Offset: f.Offset})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	m, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ListPositions returns every position of a market.
// GET /api/markets/{id}/positions
func (h *MarketHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	positions, err := h.markets.Positions(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "list positions", err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// GetPosition returns one user's position.
// GET /api/markets/{id}/positions/{user}
func (h *MarketHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	user, err := domain.ParseIdentity(r.PathValue("user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "InvalidIdentity")
		return
	}
	pos, err := h.markets.Position(r.Context(), id, user)
	if err != nil {
		writeDomainError(w, r, h.logger, "get position", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// createMarketRequest is the body of POST /api/markets. Times are RFC 3339;
// challenge_window is a Go duration string such as "24h".
type createMarketRequest struct {
	Question        string                `json:"question"`
	Options         []string              `json:"options"`
	StakeAmount     domain.Amount         `json:"stake_amount"`
	BetDeadline     time.Time             `json:"bet_deadline"`
	ResolveTime     time.Time             `json:"resolve_time"`
	ChallengeWindow string                `json:"challenge_window"`
	Resolution      domain.ResolutionMode `json:"resolution"`
	Oracle          *domain.OracleTerms   `json:"oracle"`
}

// CreateMarket creates a market owned by the caller.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	creator, ok := caller(w, r)
	if !ok {
		return
	}
	var req createMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "BadRequest")
		return
	}

	var window time.Duration
	if req.ChallengeWindow != "" {
		d, err := time.ParseDuration(req.ChallengeWindow)
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.ErrInvalidChallengeWindow.Msg, domain.ErrInvalidChallengeWindow.Code)
			return
		}
		window = d
	}

	m, err := h.markets.CreateMarket(r.Context(), creator, settlement.MarketParams{
		Question:        req.Question,
		Options:         req.Options,
		StakeAmount:     req.StakeAmount,
		BetDeadline:     req.BetDeadline,
		ResolveTime:     req.ResolveTime,
		ChallengeWindow: window,
		Resolution:      req.Resolution,
		Oracle:          req.Oracle,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}
