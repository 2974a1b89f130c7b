package betting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository implements Repository in memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	matches map[uuid.UUID]*Match
	bets    map[uuid.UUID][]*Bet
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		matches: make(map[uuid.UUID]*Match),
		bets:    make(map[uuid.UUID][]*Bet),
	}
}

func (r *MemoryRepository) CreateMatch(_ context.Context, m *Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.matches[m.ID]; exists {
		return fmt.Errorf("%w: match %s already exists", ErrValidation, m.ID)
	}
	stored := *m
	r.matches[m.ID] = &stored
	return nil
}

func (r *MemoryRepository) GetMatch(_ context.Context, id uuid.UUID) (*Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	out := *m
	return &out, nil
}

func (r *MemoryRepository) UpdateScore(_ context.Context, matchID uuid.UUID, home, away int, finished bool) (*Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[matchID]
	if !ok {
		return nil, ErrMatchNotFound
	}
	if m.SettledAt != nil {
		return nil, fmt.Errorf("%w: match %s is settled, score is final", ErrAlreadySettled, matchID)
	}

	m.HomeScore = &home
	m.AwayScore = &away
	m.IsFinished = finished
	m.UpdatedAt = time.Now().UTC()
	out := *m
	return &out, nil
}

// InsertBet stores b. Tests may seed bets with arbitrary status and odds.
func (r *MemoryRepository) InsertBet(_ context.Context, b *Bet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[b.MatchID]
	if !ok {
		return ErrMatchNotFound
	}
	if m.IsFinished || m.SettledAt != nil {
		return fmt.Errorf("%w: match %s", ErrBettingClosed, b.MatchID)
	}

	stored := *b
	r.bets[b.MatchID] = append(r.bets[b.MatchID], &stored)
	return nil
}

func (r *MemoryRepository) ListBets(_ context.Context, matchID uuid.UUID) ([]Bet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.copyBets(matchID), nil
}

func (r *MemoryRepository) ClaimSettlement(_ context.Context, matchID uuid.UUID, outcome Choice, at time.Time) ([]Bet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[matchID]
	if !ok {
		return nil, ErrMatchNotFound
	}
	if m.SettledAt != nil {
		return nil, fmt.Errorf("%w: match %s was settled at %s", ErrAlreadySettled, matchID, m.SettledAt.Format(time.RFC3339))
	}
	for _, b := range r.bets[matchID] {
		if b.Status == BetStatusWon || b.Status == BetStatusLost {
			return nil, fmt.Errorf("%w: match %s has decided bets", ErrAlreadySettled, matchID)
		}
	}

	for _, b := range r.bets[matchID] {
		if b.Status != BetStatusPending {
			continue
		}
		if b.Choice == outcome {
			b.Status = BetStatusWon
		} else {
			b.Status = BetStatusLost
		}
		settledAt := at
		b.SettledAt = &settledAt
	}
	settledAt := at
	m.SettledAt = &settledAt
	m.UpdatedAt = at

	return r.copyBets(matchID), nil
}

func (r *MemoryRepository) copyBets(matchID uuid.UUID) []Bet {
	bets := make([]Bet, 0, len(r.bets[matchID]))
	for _, b := range r.bets[matchID] {
		bets = append(bets, *b)
	}
	sort.SliceStable(bets, func(i, j int) bool {
		return bets[i].CreatedAt.Before(bets[j].CreatedAt)
	})
	return bets
}
