package point

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const transactionColumns = `
	id, customer_id, amount, category, tx_type, status, reason, requested_by,
	approved_by, decided_at, correlation_id, reference_id,
	is_reversed, reversed_at, reversed_by, reversal_reason, created_at`

func (t *pgTx) LockGroup(ctx context.Context, id uuid.UUID) ([]Transaction, error) {
	// correlation_id never changes after insert, so it can be read before locking
	var correlationID uuid.NullUUID
	err := t.tx.GetContext(ctx, &correlationID, `SELECT correlation_id FROM point_transactions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("%w: read correlation: %v", ErrInternal, err)
	}

	legs := make([]Transaction, 0, 2)
	if !correlationID.Valid {
		err = t.tx.SelectContext(ctx, &legs, `SELECT `+transactionColumns+`
			FROM point_transactions
			WHERE id = $1
			FOR UPDATE`, id)
	} else {
		err = t.tx.SelectContext(ctx, &legs, `SELECT `+transactionColumns+`
			FROM point_transactions
			WHERE correlation_id = $1
			ORDER BY id
			FOR UPDATE`, correlationID.UUID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lock transaction: %v", ErrInternal, err)
	}
	if len(legs) == 0 {
		return nil, ErrTransactionNotFound
	}

	return legs, nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, txn *Transaction) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO point_transactions (
			id, customer_id, amount, category, tx_type, status, reason, requested_by,
			approved_by, decided_at, correlation_id, reference_id, is_reversed, created_at
		)
		VALUES (
			:id, :customer_id, :amount, :category, :tx_type, :status, :reason, :requested_by,
			:approved_by, :decided_at, :correlation_id, :reference_id, :is_reversed, :created_at
		)
	`, txn)
	if err != nil {
		return mapWriteError(err, "insert transaction")
	}
	return nil
}

// UpdateTransaction writes the decision and reversal columns. Everything else is immutable.
func (t *pgTx) UpdateTransaction(ctx context.Context, txn *Transaction) error {
	res, err := t.tx.NamedExecContext(ctx, `
		UPDATE point_transactions
		SET status = :status,
			reason = :reason,
			approved_by = :approved_by,
			decided_at = :decided_at,
			is_reversed = :is_reversed,
			reversed_at = :reversed_at,
			reversed_by = :reversed_by,
			reversal_reason = :reversal_reason
		WHERE id = :id
	`, txn)
	if err != nil {
		return mapWriteError(err, "update transaction")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrInternal, err)
	}
	if rows == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *PostgresRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var txn Transaction
	err := r.db.GetContext(ctx2, &txn, `SELECT `+transactionColumns+` FROM point_transactions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("%w: get transaction: %v", ErrInternal, err)
	}
	return &txn, nil
}

func (r *PostgresRepository) GetByReference(ctx context.Context, txType TxType, category Category, referenceID string) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var txn Transaction
	err := r.db.GetContext(ctx2, &txn, `SELECT `+transactionColumns+`
		FROM point_transactions
		WHERE tx_type = $1 AND category = $2 AND reference_id = $3`, txType, category, referenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("%w: get transaction by reference: %v", ErrInternal, err)
	}
	return &txn, nil
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, customerID uuid.UUID, filter HistoryFilter) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	base := `SELECT ` + transactionColumns + ` FROM point_transactions WHERE customer_id = $1`
	args := []interface{}{customerID}
	idx := 2

	if filter.Category != nil {
		base += fmt.Sprintf(" AND category = $%d", idx)
		args = append(args, string(*filter.Category))
		idx++
	}
	if filter.Status != nil {
		base += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, string(*filter.Status))
		idx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	base = strings.TrimSpace(base) + fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, filter.Offset)

	transactions := make([]Transaction, 0)
	if err := r.db.SelectContext(ctx2, &transactions, base, args...); err != nil {
		return nil, fmt.Errorf("%w: list transactions: %v", ErrInternal, err)
	}
	return transactions, nil
}
