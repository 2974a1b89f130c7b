package betting

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

// Repository persists matches and bets.
type Repository interface {
	CreateMatch(ctx context.Context, m *Match) error
	GetMatch(ctx context.Context, id uuid.UUID) (*Match, error)

	// UpdateScore records the feed's score. Settled matches are refused.
	UpdateScore(ctx context.Context, matchID uuid.UUID, home, away int, finished bool) (*Match, error)

	// InsertBet stores a pending bet unless the match is finished or settled.
	InsertBet(ctx context.Context, b *Bet) error
	ListBets(ctx context.Context, matchID uuid.UUID) ([]Bet, error)

	// ClaimSettlement marks the match settled and every pending bet won or lost
	// in one unit of work, returning all bets of the match. It fails with
	// ErrAlreadySettled if the match was claimed before or any bet was decided.
	ClaimSettlement(ctx context.Context, matchID uuid.UUID, outcome Choice, at time.Time) ([]Bet, error)
}

const matchColumns = `id, home_team, away_team, odds_home, odds_draw, odds_away,
	home_score, away_score, is_finished, starts_at, settled_at, created_at, updated_at`

const betColumns = `id, match_id, customer_id, amount, choice, odds, potential_win, status, created_at, settled_at`

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateMatch(ctx context.Context, m *Match) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx2, `
		INSERT INTO matches (id, home_team, away_team, odds_home, odds_draw, odds_away, is_finished, starts_at, created_at, updated_at)
		VALUES (:id, :home_team, :away_team, :odds_home, :odds_draw, :odds_away, :is_finished, :starts_at, :created_at, :updated_at)
	`, m)
	if err != nil {
		return mapWriteError(err, "create match")
	}
	return nil
}

func (r *PostgresRepository) GetMatch(ctx context.Context, id uuid.UUID) (*Match, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var m Match
	if err := r.db.GetContext(ctx2, &m, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("%w: get match: %v", ErrInternal, err)
	}
	return &m, nil
}

func (r *PostgresRepository) UpdateScore(ctx context.Context, matchID uuid.UUID, home, away int, finished bool) (*Match, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var m Match
	err := r.db.GetContext(ctx2, &m, `
		UPDATE matches
		SET home_score = $2, away_score = $3, is_finished = $4, updated_at = now()
		WHERE id = $1 AND settled_at IS NULL
		RETURNING `+matchColumns, matchID, home, away, finished)
	if err == nil {
		return &m, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: update score: %v", ErrInternal, err)
	}

	if _, err := r.GetMatch(ctx, matchID); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: match %s is settled, score is final", ErrAlreadySettled, matchID)
}

func (r *PostgresRepository) InsertBet(ctx context.Context, b *Bet) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrInternal, err)
	}
	defer tx.Rollback()

	// FOR SHARE serializes placement against ClaimSettlement's FOR UPDATE
	var state struct {
		IsFinished bool       `db:"is_finished"`
		SettledAt  *time.Time `db:"settled_at"`
	}
	err = tx.GetContext(ctx2, &state, `SELECT is_finished, settled_at FROM matches WHERE id = $1 FOR SHARE`, b.MatchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMatchNotFound
		}
		return fmt.Errorf("%w: lock match: %v", ErrInternal, err)
	}
	if state.IsFinished || state.SettledAt != nil {
		return fmt.Errorf("%w: match %s", ErrBettingClosed, b.MatchID)
	}

	_, err = tx.NamedExecContext(ctx2, `
		INSERT INTO bets (`+betColumns+`)
		VALUES (:id, :match_id, :customer_id, :amount, :choice, :odds, :potential_win, :status, :created_at, :settled_at)
	`, b)
	if err != nil {
		return mapWriteError(err, "insert bet")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx: %v", ErrInternal, err)
	}
	return nil
}

func (r *PostgresRepository) ListBets(ctx context.Context, matchID uuid.UUID) ([]Bet, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	bets := make([]Bet, 0)
	if err := r.db.SelectContext(ctx2, &bets, `SELECT `+betColumns+` FROM bets WHERE match_id = $1 ORDER BY created_at, id`, matchID); err != nil {
		return nil, fmt.Errorf("%w: list bets: %v", ErrInternal, err)
	}
	return bets, nil
}

func (r *PostgresRepository) ClaimSettlement(ctx context.Context, matchID uuid.UUID, outcome Choice, at time.Time) ([]Bet, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", ErrInternal, err)
	}
	defer tx.Rollback()

	var settledAt *time.Time
	if err := tx.GetContext(ctx, &settledAt, `SELECT settled_at FROM matches WHERE id = $1 FOR UPDATE`, matchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("%w: lock match: %v", ErrInternal, err)
	}
	if settledAt != nil {
		return nil, fmt.Errorf("%w: match %s was settled at %s", ErrAlreadySettled, matchID, settledAt.Format(time.RFC3339))
	}

	var decided int
	err = tx.GetContext(ctx, &decided, `SELECT COUNT(*) FROM bets WHERE match_id = $1 AND status IN ('won', 'lost')`, matchID)
	if err != nil {
		return nil, fmt.Errorf("%w: check bets: %v", ErrInternal, err)
	}
	if decided > 0 {
		return nil, fmt.Errorf("%w: match %s has %d decided bets", ErrAlreadySettled, matchID, decided)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE bets
		SET status = CASE WHEN choice = $2 THEN 'won' ELSE 'lost' END,
			settled_at = $3
		WHERE match_id = $1 AND status = 'pending'
	`, matchID, string(outcome), at)
	if err != nil {
		return nil, fmt.Errorf("%w: decide bets: %v", ErrInternal, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE matches SET settled_at = $2, updated_at = now() WHERE id = $1`, matchID, at); err != nil {
		return nil, fmt.Errorf("%w: mark settled: %v", ErrInternal, err)
	}

	bets := make([]Bet, 0)
	if err := tx.SelectContext(ctx, &bets, `SELECT `+betColumns+` FROM bets WHERE match_id = $1 ORDER BY created_at, id`, matchID); err != nil {
		return nil, fmt.Errorf("%w: read bets: %v", ErrInternal, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx: %v", ErrInternal, err)
	}
	return bets, nil
}

func mapWriteError(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s references a missing row (%s)", ErrValidation, op, pqErr.Constraint)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s violates %s", ErrValidation, op, pqErr.Constraint)
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrInternal, op, err)
}
