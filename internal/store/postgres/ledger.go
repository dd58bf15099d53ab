package postgres

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

func (t *tx) Balance(ctx context.Context, account domain.Account) (domain.Amount, error) {
	const query = `SELECT COALESCE((SELECT amount::text FROM balances WHERE account = $1), '0')`

	var raw string
	if err := t.q.QueryRow(ctx, query, account.String()).Scan(&raw); err != nil {
		return 0, fmt.Errorf("postgres: balance of %s: %w", account, err)
	}
	amount, err := domain.ParseAmount(raw)
	if err != nil {
		return 0, fmt.Errorf("postgres: balance of %s: %w", account, err)
	}
	return amount, nil
}

// Transfer debits from with a guarded UPDATE so the balance can never go
// negative, then credits to. Both statements run in the caller's transaction.
func (t *tx) Transfer(ctx context.Context, from, to domain.Account, amount domain.Amount) error {
	if amount == 0 || from == to {
		return nil
	}

	const debit = `
		UPDATE balances SET amount = amount - $2::numeric, updated_at = NOW()
		WHERE account = $1 AND amount >= $2::numeric`

	tag, err := t.q.Exec(ctx, debit, from.String(), amount.String())
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	if err := credit(ctx, t.q, to, amount); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", to, err)
	}
	return nil
}

// credit adds amount to account, creating the row if needed. Overflow past
// the u64 domain surfaces as a check violation.
func credit(ctx context.Context, q querier, account domain.Account, amount domain.Amount) error {
	const query = `
		INSERT INTO balances (account, amount, updated_at) VALUES ($1, $2::numeric, NOW())
		ON CONFLICT (account) DO UPDATE SET
			amount     = balances.amount + EXCLUDED.amount,
			updated_at = NOW()`

	_, err := q.Exec(ctx, query, account.String(), amount.String())
	return err
}
