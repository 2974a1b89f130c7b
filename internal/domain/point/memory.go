package point

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository implements Repository in memory.
// A unit of work holds the store lock and keeps an undo log, so a failing
// WithinTx leaves no trace.
type MemoryRepository struct {
	mu           sync.Mutex
	balances     map[uuid.UUID]*Balance
	transactions map[uuid.UUID]*Transaction
	order        []uuid.UUID
	references   map[string]uuid.UUID
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		balances:     make(map[uuid.UUID]*Balance),
		transactions: make(map[uuid.UUID]*Transaction),
		references:   make(map[string]uuid.UUID),
	}
}

// AddCustomer registers a customer with zero balances (the registration
// collaborator owns customer records in production).
func (r *MemoryRepository) AddCustomer(customerID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.balances[customerID]; !ok {
		r.balances[customerID] = &Balance{CustomerID: customerID, UpdatedAt: time.Now().UTC()}
	}
}

// SetBalanceUnsafe overwrites a stored balance without a ledger entry (for drift tests)
func (r *MemoryRepository) SetBalanceUnsafe(customerID uuid.UUID, general, betting int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.balances[customerID] = &Balance{CustomerID: customerID, GeneralPoints: general, BettingPoints: betting, UpdatedAt: time.Now().UTC()}
}

type memTx struct {
	repo *MemoryRepository

	balanceUndo map[uuid.UUID]Balance
	txUndo      map[uuid.UUID]*Transaction // nil value: row was inserted
	orderLen    int
	refsAdded   []string
}

func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{
		repo:        r,
		balanceUndo: make(map[uuid.UUID]Balance),
		txUndo:      make(map[uuid.UUID]*Transaction),
		orderLen:    len(r.order),
	}

	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (t *memTx) rollback() {
	r := t.repo
	for id, b := range t.balanceUndo {
		restored := b
		r.balances[id] = &restored
	}
	for id, prev := range t.txUndo {
		if prev == nil {
			delete(r.transactions, id)
			continue
		}
		r.transactions[id] = prev
	}
	for _, ref := range t.refsAdded {
		delete(r.references, ref)
	}
	r.order = r.order[:t.orderLen]
}

func (t *memTx) LockGroup(_ context.Context, id uuid.UUID) ([]Transaction, error) {
	r := t.repo
	txn, ok := r.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	if txn.CorrelationID == nil {
		return []Transaction{*txn}, nil
	}

	legs := make([]Transaction, 0, 2)
	for _, other := range r.transactions {
		if other.CorrelationID != nil && *other.CorrelationID == *txn.CorrelationID {
			legs = append(legs, *other)
		}
	}
	sort.Slice(legs, func(i, j int) bool {
		return legs[i].ID.String() < legs[j].ID.String()
	})
	return legs, nil
}

func referenceKey(txType TxType, category Category, referenceID string) string {
	return fmt.Sprintf("%s|%s|%s", txType, category, referenceID)
}

func (t *memTx) InsertTransaction(_ context.Context, txn *Transaction) error {
	r := t.repo
	if _, ok := r.balances[txn.CustomerID]; !ok {
		return ErrCustomerNotFound
	}
	if _, exists := r.transactions[txn.ID]; exists {
		return fmt.Errorf("%w: transaction id %s", ErrDuplicateReference, txn.ID)
	}
	if txn.ReferenceID != nil {
		key := referenceKey(txn.Type, txn.Category, *txn.ReferenceID)
		if _, exists := r.references[key]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateReference, *txn.ReferenceID)
		}
		r.references[key] = txn.ID
		t.refsAdded = append(t.refsAdded, key)
	}

	stored := *txn
	r.transactions[txn.ID] = &stored
	r.order = append(r.order, txn.ID)
	t.txUndo[txn.ID] = nil
	return nil
}

func (t *memTx) UpdateTransaction(_ context.Context, txn *Transaction) error {
	r := t.repo
	current, ok := r.transactions[txn.ID]
	if !ok {
		return ErrTransactionNotFound
	}
	if _, seen := t.txUndo[txn.ID]; !seen {
		prev := *current
		t.txUndo[txn.ID] = &prev
	}

	current.Status = txn.Status
	current.Reason = txn.Reason
	current.ApprovedBy = txn.ApprovedBy
	current.DecidedAt = txn.DecidedAt
	current.IsReversed = txn.IsReversed
	current.ReversedAt = txn.ReversedAt
	current.ReversedBy = txn.ReversedBy
	current.ReversalReason = txn.ReversalReason
	return nil
}

func (t *memTx) ApplyDelta(_ context.Context, customerID uuid.UUID, category Category, delta int64) (Balance, error) {
	if !category.Valid() {
		return Balance{}, fmt.Errorf("%w: unknown category %q", ErrValidation, category)
	}

	r := t.repo
	b, ok := r.balances[customerID]
	if !ok {
		return Balance{}, ErrCustomerNotFound
	}

	next := b.Of(category) + delta
	if next < 0 {
		return Balance{}, fmt.Errorf("%w: %s points of customer %s cannot absorb %d", ErrInsufficientBalance, category, customerID, delta)
	}

	if _, seen := t.balanceUndo[customerID]; !seen {
		t.balanceUndo[customerID] = *b
	}
	if category == CategoryBetting {
		b.BettingPoints = next
	} else {
		b.GeneralPoints = next
	}
	b.UpdatedAt = time.Now().UTC()
	return *b, nil
}

func (r *MemoryRepository) GetTransaction(_ context.Context, id uuid.UUID) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	txn, ok := r.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	out := *txn
	return &out, nil
}

func (r *MemoryRepository) GetByReference(_ context.Context, txType TxType, category Category, referenceID string) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.references[referenceKey(txType, category, referenceID)]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	out := *r.transactions[id]
	return &out, nil
}

func (r *MemoryRepository) ListTransactions(_ context.Context, customerID uuid.UUID, filter HistoryFilter) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	out := make([]Transaction, 0)
	skipped := 0
	// newest first
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		txn := r.transactions[r.order[i]]
		if txn.CustomerID != customerID {
			continue
		}
		if filter.Category != nil && txn.Category != *filter.Category {
			continue
		}
		if filter.Status != nil && txn.Status != *filter.Status {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, *txn)
	}
	return out, nil
}

func (r *MemoryRepository) GetBalance(_ context.Context, customerID uuid.UUID) (Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.balances[customerID]
	if !ok {
		return Balance{}, ErrCustomerNotFound
	}
	return *b, nil
}

func (r *MemoryRepository) Replay(_ context.Context, customerID uuid.UUID) (Balance, Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.balances[customerID]
	if !ok {
		return Balance{}, Balance{}, ErrCustomerNotFound
	}

	derived := Balance{CustomerID: customerID, UpdatedAt: b.UpdatedAt}
	for _, txn := range r.transactions {
		if txn.CustomerID != customerID || !txn.Effective() {
			continue
		}
		if txn.Category == CategoryBetting {
			derived.BettingPoints += txn.Amount
		} else {
			derived.GeneralPoints += txn.Amount
		}
	}
	return *b, derived, nil
}

func (r *MemoryRepository) ListCustomerIDs(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(r.balances))
	for id := range r.balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}
