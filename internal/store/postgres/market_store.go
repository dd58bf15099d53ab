package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

const marketColumns = `id::text, creator, question, options, option_totals, option_participants,
	stake_amount::text, bet_deadline, resolve_time, challenge_window_ns, resolution, oracle,
	status, proposed_outcome, proposer, challenge_end_time, final_outcome,
	settle_price::text, settled_by, resolved_by_admin, total_pool::text, created_at, updated_at`

func (t *tx) Market(ctx context.Context, id uint64) (domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = $1::numeric` + t.forUpdate()
	m, err := scanMarket(t.q.QueryRow(ctx, query, strconv.FormatUint(id, 10)))
	if err != nil {
		return domain.Market{}, notFound(err, domain.ErrMarketNotFound)
	}
	return m, nil
}

func (t *tx) SaveMarket(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, creator, question, options, option_totals, option_participants,
			stake_amount, bet_deadline, resolve_time, challenge_window_ns, resolution, oracle,
			status, proposed_outcome, proposer, challenge_end_time, final_outcome,
			settle_price, settled_by, resolved_by_admin, total_pool, created_at, updated_at
		) VALUES (
			$1::numeric, $2, $3, $4, $5, $6,
			$7::numeric, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18::numeric, $19, $20, $21::numeric, $22, $23
		)
		ON CONFLICT (id) DO UPDATE SET
			option_totals       = EXCLUDED.option_totals,
			option_participants = EXCLUDED.option_participants,
			status              = EXCLUDED.status,
			proposed_outcome    = EXCLUDED.proposed_outcome,
			proposer            = EXCLUDED.proposer,
			challenge_end_time  = EXCLUDED.challenge_end_time,
			final_outcome       = EXCLUDED.final_outcome,
			settle_price        = EXCLUDED.settle_price,
			settled_by          = EXCLUDED.settled_by,
			resolved_by_admin   = EXCLUDED.resolved_by_admin,
			total_pool          = EXCLUDED.total_pool,
			updated_at          = EXCLUDED.updated_at`

	options, err := json.Marshal(m.Options)
	if err != nil {
		return fmt.Errorf("postgres: marshal options: %w", err)
	}
	totals, err := json.Marshal(m.OptionTotals)
	if err != nil {
		return fmt.Errorf("postgres: marshal option totals: %w", err)
	}
	participants, err := json.Marshal(m.OptionParticipants)
	if err != nil {
		return fmt.Errorf("postgres: marshal option participants: %w", err)
	}
	var oracle []byte
	if m.Oracle != nil {
		if oracle, err = json.Marshal(m.Oracle); err != nil {
			return fmt.Errorf("postgres: marshal oracle terms: %w", err)
		}
	}

	var settlePrice *string
	if m.SettlePrice != nil {
		s := strconv.FormatUint(*m.SettlePrice, 10)
		settlePrice = &s
	}

	_, err = t.q.Exec(ctx, query,
		strconv.FormatUint(m.ID, 10), m.Creator.Hex(), m.Question, options, totals, participants,
		m.StakeAmount.String(), m.BetDeadline, m.ResolveTime, int64(m.ChallengeWindow), string(m.Resolution), oracle,
		string(m.Status), m.ProposedOutcome, identityPtr(m.Proposer), m.ChallengeEndTime, m.FinalOutcome,
		settlePrice, identityPtr(m.SettledBy), m.ResolvedByAdmin, m.TotalPool.String(), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save market %d: %w", m.ID, err)
	}
	return nil
}

// ListMarkets returns markets matching f ordered by id. List reads never lock.
func (t *tx) ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argIdx)
		args = append(args, statuses)
		argIdx++
	}
	if f.Creator != nil {
		query += fmt.Sprintf(" AND creator = $%d", argIdx)
		args = append(args, f.Creator.Hex())
		argIdx++
	}

	query += " ORDER BY id"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m                                domain.Market
		id, creator, stake, total        string
		options, totals, participants    []byte
		oracle                           []byte
		windowNS                         int64
		resolution, status               string
		proposedOutcome, finalOutcome    *int16
		proposer, settlePrice, settledBy *string
		challengeEnd                     *time.Time
	)
	err := row.Scan(
		&id, &creator, &m.Question, &options, &totals, &participants,
		&stake, &m.BetDeadline, &m.ResolveTime, &windowNS, &resolution, &oracle,
		&status, &proposedOutcome, &proposer, &challengeEnd, &finalOutcome,
		&settlePrice, &settledBy, &m.ResolvedByAdmin, &total, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	if m.ID, err = strconv.ParseUint(id, 10, 64); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: market id %q: %w", id, err)
	}
	if m.Creator, err = domain.ParseIdentity(creator); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: market %d creator: %w", m.ID, err)
	}
	if m.StakeAmount, err = domain.ParseAmount(stake); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: market %d stake: %w", m.ID, err)
	}
	if m.TotalPool, err = domain.ParseAmount(total); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: market %d total pool: %w", m.ID, err)
	}
	if err := json.Unmarshal(options, &m.Options); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: market %d options: %w", m.ID, err)
	}
	if err := json.Unmarshal(totals, &m.OptionTotals); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: market %d option totals: %w", m.ID, err)
	}
	if err := json.Unmarshal(participants, &m.OptionParticipants); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: market %d option participants: %w", m.ID, err)
	}
	if oracle != nil {
		m.Oracle = &domain.OracleTerms{}
		if err := json.Unmarshal(oracle, m.Oracle); err != nil {
			return domain.Market{}, fmt.Errorf("postgres: market %d oracle terms: %w", m.ID, err)
		}
	}

	m.ChallengeWindow = time.Duration(windowNS)
	m.Resolution = domain.ResolutionMode(resolution)
	m.Status = domain.MarketStatus(status)
	m.ChallengeEndTime = challengeEnd
	m.ProposedOutcome = intPtr(proposedOutcome)
	m.FinalOutcome = intPtr(finalOutcome)

	if m.Proposer, err = parseIdentityPtr(proposer); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: market %d proposer: %w", m.ID, err)
	}
	if m.SettledBy, err = parseIdentityPtr(settledBy); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: market %d settled_by: %w", m.ID, err)
	}
	if settlePrice != nil {
		p, err := strconv.ParseUint(*settlePrice, 10, 64)
		if err != nil {
			return domain.Market{}, fmt.Errorf("postgres: market %d settle price: %w", m.ID, err)
		}
		m.SettlePrice = &p
	}
	return m, nil
}

func intPtr(v *int16) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

func identityPtr(id *domain.Identity) *string {
	if id == nil {
		return nil
	}
	s := id.Hex()
	return &s
}

func parseIdentityPtr(s *string) (*domain.Identity, error) {
	if s == nil {
		return nil, nil
	}
	id, err := domain.ParseIdentity(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
