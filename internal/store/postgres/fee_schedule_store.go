package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

func (t *tx) FeeSchedule(ctx context.Context) (domain.FeeSchedule, error) {
	query := `SELECT admin, fee_sink, create_fee::text, join_fee_bps, clearing_fee_bps,
		settle_fee_bps, next_market_id::text
		FROM fee_schedule WHERE id = 1` + t.forUpdate()

	var (
		fs                      domain.FeeSchedule
		admin, sink             string
		createFee, nextMarketID string
	)
	err := t.q.QueryRow(ctx, query).Scan(
		&admin, &sink, &createFee,
		&fs.JoinFeeBps, &fs.ClearingFeeBps, &fs.SettleFeeBps,
		&nextMarketID,
	)
	if err != nil {
		return domain.FeeSchedule{}, notFound(err, domain.ErrNotInitialized)
	}

	if fs.Admin, err = domain.ParseIdentity(admin); err != nil {
		return domain.FeeSchedule{}, fmt.Errorf("postgres: fee schedule admin: %w", err)
	}
	if fs.FeeSink, err = domain.ParseIdentity(sink); err != nil {
		return domain.FeeSchedule{}, fmt.Errorf("postgres: fee schedule sink: %w", err)
	}
	if fs.CreateFee, err = domain.ParseAmount(createFee); err != nil {
		return domain.FeeSchedule{}, fmt.Errorf("postgres: fee schedule create_fee: %w", err)
	}
	if fs.NextMarketID, err = strconv.ParseUint(nextMarketID, 10, 64); err != nil {
		return domain.FeeSchedule{}, fmt.Errorf("postgres: fee schedule next_market_id: %w", err)
	}
	return fs, nil
}

// CreateFeeSchedule relies on the primary key rather than a row lock: a
// SELECT FOR UPDATE on the missing row locks nothing, while a concurrent
// INSERT on the same key waits for the first to commit and then conflicts.
func (t *tx) CreateFeeSchedule(ctx context.Context, fs domain.FeeSchedule) error {
	const query = `
		INSERT INTO fee_schedule (id, admin, fee_sink, create_fee, join_fee_bps,
			clearing_fee_bps, settle_fee_bps, next_market_id, updated_at)
		VALUES (1, $1, $2, $3::numeric, $4, $5, $6, $7::numeric, NOW())
		ON CONFLICT (id) DO NOTHING`

	tag, err := t.q.Exec(ctx, query, feeScheduleArgs(fs)...)
	if err != nil {
		return fmt.Errorf("postgres: create fee schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyInitialized
	}
	return nil
}

// SaveFeeSchedule updates the existing fee schedule row.
func (t *tx) SaveFeeSchedule(ctx context.Context, fs domain.FeeSchedule) error {
	const query = `
		UPDATE fee_schedule SET
			admin            = $1,
			fee_sink         = $2,
			create_fee       = $3::numeric,
			join_fee_bps     = $4,
			clearing_fee_bps = $5,
			settle_fee_bps   = $6,
			next_market_id   = $7::numeric,
			updated_at       = NOW()
		WHERE id = 1`

	tag, err := t.q.Exec(ctx, query, feeScheduleArgs(fs)...)
	if err != nil {
		return fmt.Errorf("postgres: save fee schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotInitialized
	}
	return nil
}

func feeScheduleArgs(fs domain.FeeSchedule) []any {
	return []any{
		fs.Admin.Hex(), fs.FeeSink.Hex(), fs.CreateFee.String(),
		int32(fs.JoinFeeBps), int32(fs.ClearingFeeBps), int32(fs.SettleFeeBps),
		strconv.FormatUint(fs.NextMarketID, 10),
	}
}
