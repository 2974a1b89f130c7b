package point_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointline/pointline-api/internal/domain/point"
)

// These tests need a migrated database (cmd/migrator) at POINTLINE_TEST_DATABASE_URL.
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("POINTLINE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("POINTLINE_TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("db not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestCustomer(t *testing.T, db *sqlx.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(`INSERT INTO customers (id, display_name) VALUES ($1, $2)`, id, "test-"+id.String()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Exec(`DELETE FROM point_transactions WHERE customer_id = $1`, id)
		db.Exec(`DELETE FROM customers WHERE id = $1`, id)
	})
	return id
}

func TestPostgresConcurrentUseNeverOverdraws(t *testing.T) {
	db := setupTestDB(t)
	customerID := createTestCustomer(t, db)
	svc := point.NewService(point.NewPostgresRepository(db))
	ctx := context.Background()

	_, err := svc.Issue(ctx, point.RequestInput{
		CustomerID: customerID, Category: point.CategoryGeneral, Type: point.TxTypeCharge,
		Amount: 5, RequestedBy: "seed",
	})
	require.NoError(t, err)

	const workers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Issue(ctx, point.RequestInput{
				CustomerID: customerID, Category: point.CategoryGeneral, Type: point.TxTypeUse,
				Amount: 1, Reason: fmt.Sprintf("item-%d", i), RequestedBy: "op-1",
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, point.ErrInsufficientBalance)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, success)
	b, err := svc.GetBalance(ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.GeneralPoints)

	rec, err := svc.Reconcile(ctx, customerID)
	require.NoError(t, err)
	assert.False(t, rec.Drift)
}

func TestPostgresExchangeRollsBackBothLegs(t *testing.T) {
	db := setupTestDB(t)
	customerID := createTestCustomer(t, db)
	svc := point.NewService(point.NewPostgresRepository(db))
	ctx := context.Background()

	legs, err := svc.Request(ctx, point.RequestInput{
		CustomerID: customerID, Category: point.CategoryGeneral, Type: point.TxTypeExchange,
		Amount: 1000, Reason: "betting top-up", RequestedBy: "op-1",
	})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, legs[0].ID, "op-2")
	require.ErrorIs(t, err, point.ErrInsufficientBalance)

	for _, leg := range legs {
		got, err := svc.Get(ctx, leg.ID)
		require.NoError(t, err)
		assert.Equal(t, point.StatusPending, got.Status)
	}
	b, err := svc.GetBalance(ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.BettingPoints)
}

func TestPostgresDuplicateReference(t *testing.T) {
	db := setupTestDB(t)
	customerID := createTestCustomer(t, db)
	svc := point.NewService(point.NewPostgresRepository(db))
	ctx := context.Background()

	in := point.RequestInput{
		CustomerID: customerID, Category: point.CategoryBetting, Type: point.TxTypeWin,
		Amount: 40, Reason: "win", RequestedBy: "settlement", ReferenceID: point.WinReferencePrefix + uuid.NewString(),
	}
	legs, err := svc.IssueSystem(ctx, in)
	require.NoError(t, err)
	_, err = svc.IssueSystem(ctx, in)
	require.ErrorIs(t, err, point.ErrDuplicateReference)

	found, err := svc.FindByReference(ctx, point.TxTypeWin, point.CategoryBetting, in.ReferenceID)
	require.NoError(t, err)
	assert.Equal(t, legs[0].ID, found.ID)
	assert.Equal(t, int64(40), found.Amount)
}
