package point

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

// Repository persists the ledger and the balance snapshot.
// Every mutation happens inside WithinTx so that a ledger status change and
// its balance delta commit or roll back together.
type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListTransactions(ctx context.Context, customerID uuid.UUID, filter HistoryFilter) ([]Transaction, error)
	GetBalance(ctx context.Context, customerID uuid.UUID) (Balance, error)

	// Replay returns the stored balance and the balance derived from approved,
	// non-reversed transactions, read from one consistent snapshot.
	Replay(ctx context.Context, customerID uuid.UUID) (stored Balance, derived Balance, err error)
	ListCustomerIDs(ctx context.Context) ([]uuid.UUID, error)

	// GetByReference returns the entry holding (type, category, reference id).
	GetByReference(ctx context.Context, txType TxType, category Category, referenceID string) (*Transaction, error)
}

// Tx is the unit of work handed to WithinTx.
type Tx interface {
	// LockGroup locks the transaction and, for exchanges, every leg sharing its
	// correlation id. Legs are locked in id order.
	LockGroup(ctx context.Context, id uuid.UUID) ([]Transaction, error)
	InsertTransaction(ctx context.Context, t *Transaction) error
	UpdateTransaction(ctx context.Context, t *Transaction) error

	// ApplyDelta is the only way a balance changes.
	ApplyDelta(ctx context.Context, customerID uuid.UUID, category Category, delta int64) (Balance, error)
}

// PostgresRepository is the sqlx-backed Repository.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type pgTx struct {
	tx *sqlx.Tx
}

func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrInternal, err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx: %v", ErrInternal, err)
	}
	return nil
}

func (r *PostgresRepository) Replay(ctx context.Context, customerID uuid.UUID) (Balance, Balance, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return Balance{}, Balance{}, fmt.Errorf("%w: begin snapshot: %v", ErrInternal, err)
	}
	defer tx.Rollback()

	stored, err := getBalance(ctx2, tx, customerID)
	if err != nil {
		return Balance{}, Balance{}, err
	}

	var sums []struct {
		Category Category `db:"category"`
		Total    int64    `db:"total"`
	}
	err = tx.SelectContext(ctx2, &sums, `
		SELECT category, COALESCE(SUM(amount), 0) AS total
		FROM point_transactions
		WHERE customer_id = $1 AND status = 'approved' AND NOT is_reversed
		GROUP BY category
	`, customerID)
	if err != nil {
		return Balance{}, Balance{}, fmt.Errorf("%w: replay ledger: %v", ErrInternal, err)
	}

	derived := Balance{CustomerID: customerID, UpdatedAt: stored.UpdatedAt}
	for _, s := range sums {
		switch s.Category {
		case CategoryGeneral:
			derived.GeneralPoints = s.Total
		case CategoryBetting:
			derived.BettingPoints = s.Total
		}
	}

	return stored, derived, nil
}

// mapWriteError converts constraint violations into domain errors.
func mapWriteError(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrDuplicateReference, pqErr.Constraint)
		case "23503": // foreign_key_violation
			return ErrCustomerNotFound
		case "23514": // check_violation
			return ErrInsufficientBalance
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrInternal, op, err)
}
