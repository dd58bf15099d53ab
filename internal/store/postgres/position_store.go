package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

const positionColumns = `market_id::text, user_id, option_index, amount::text, claimed, bet_count, created_at, updated_at`

func (t *tx) Position(ctx context.Context, marketID uint64, user domain.Identity) (domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions
		WHERE market_id = $1::numeric AND user_id = $2` + t.forUpdate()
	p, err := scanPosition(t.q.QueryRow(ctx, query, strconv.FormatUint(marketID, 10), user.Hex()))
	if err != nil {
		return domain.Position{}, notFound(err, domain.ErrPositionNotFound)
	}
	return p, nil
}

func (t *tx) SavePosition(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (market_id, user_id, option_index, amount, claimed, bet_count, created_at, updated_at)
		VALUES ($1::numeric, $2, $3, $4::numeric, $5, $6, $7, $8)
		ON CONFLICT (market_id, user_id) DO UPDATE SET
			amount     = EXCLUDED.amount,
			claimed    = EXCLUDED.claimed,
			bet_count  = EXCLUDED.bet_count,
			updated_at = EXCLUDED.updated_at`

	_, err := t.q.Exec(ctx, query,
		strconv.FormatUint(p.MarketID, 10), p.User.Hex(), int16(p.OptionIndex),
		p.Amount.String(), p.Claimed, int64(p.BetCount), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save position %d/%s: %w", p.MarketID, p.User.Hex(), err)
	}
	return nil
}

// Positions lists a market's positions in the order they were opened.
func (t *tx) Positions(ctx context.Context, marketID uint64) ([]domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions
		WHERE market_id = $1::numeric ORDER BY created_at, user_id`

	rows, err := t.q.Query(ctx, query, strconv.FormatUint(marketID, 10))
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for market %d: %w", marketID, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p                      domain.Position
		marketID, user, amount string
		option                 int16
		betCount               int64
	)
	if err := row.Scan(&marketID, &user, &option, &amount, &p.Claimed, &betCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Position{}, err
	}

	var err error
	if p.MarketID, err = strconv.ParseUint(marketID, 10, 64); err != nil {
		return domain.Position{}, fmt.Errorf("postgres: position market id %q: %w", marketID, err)
	}
	if p.User, err = domain.ParseIdentity(user); err != nil {
		return domain.Position{}, fmt.Errorf("postgres: position user: %w", err)
	}
	if p.Amount, err = domain.ParseAmount(amount); err != nil {
		return domain.Position{}, fmt.Errorf("postgres: position amount: %w", err)
	}
	p.OptionIndex = int(option)
	p.BetCount = uint32(betCount)
	return p, nil
}
