package point

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ApplyDelta adds delta to one balance in a single conditional statement.
// The row is never read and written separately, so concurrent deltas on the
// same customer serialize on the row lock and none of them can go negative.
func (t *pgTx) ApplyDelta(ctx context.Context, customerID uuid.UUID, category Category, delta int64) (Balance, error) {
	var column string
	switch category {
	case CategoryGeneral:
		column = "general_points"
	case CategoryBetting:
		column = "betting_points"
	default:
		return Balance{}, fmt.Errorf("%w: unknown category %q", ErrValidation, category)
	}

	var b Balance
	err := t.tx.GetContext(ctx, &b, fmt.Sprintf(`
		UPDATE customers
		SET %[1]s = %[1]s + $2, updated_at = now()
		WHERE id = $1 AND %[1]s + $2 >= 0
		RETURNING id, general_points, betting_points, updated_at
	`, column), customerID, delta)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Balance{}, mapWriteError(err, "apply delta")
	}

	var exists bool
	if err := t.tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)`, customerID); err != nil {
		return Balance{}, fmt.Errorf("%w: check customer: %v", ErrInternal, err)
	}
	if !exists {
		return Balance{}, ErrCustomerNotFound
	}
	return Balance{}, fmt.Errorf("%w: %s points of customer %s cannot absorb %d", ErrInsufficientBalance, category, customerID, delta)
}

func (r *PostgresRepository) GetBalance(ctx context.Context, customerID uuid.UUID) (Balance, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return getBalance(ctx2, r.db, customerID)
}

func (r *PostgresRepository) ListCustomerIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0)
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM customers ORDER BY id`); err != nil {
		return nil, fmt.Errorf("%w: list customers: %v", ErrInternal, err)
	}
	return ids, nil
}

func getBalance(ctx context.Context, q sqlx.QueryerContext, customerID uuid.UUID) (Balance, error) {
	var b Balance
	err := sqlx.GetContext(ctx, q, &b, `
		SELECT id, general_points, betting_points, updated_at
		FROM customers
		WHERE id = $1
	`, customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrCustomerNotFound
		}
		return Balance{}, fmt.Errorf("%w: get balance: %v", ErrInternal, err)
	}
	return b, nil
}
