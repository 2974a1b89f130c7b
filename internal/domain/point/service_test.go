package point_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointline/pointline-api/internal/domain/point"
)

func newTestService(t *testing.T) (*point.Service, *point.MemoryRepository, uuid.UUID) {
	t.Helper()
	repo := point.NewMemoryRepository()
	customerID := uuid.New()
	repo.AddCustomer(customerID)
	return point.NewService(repo), repo, customerID
}

func seed(t *testing.T, svc *point.Service, customerID uuid.UUID, category point.Category, amount int64) {
	t.Helper()
	_, err := svc.Issue(context.Background(), point.RequestInput{
		CustomerID:  customerID,
		Category:    category,
		Type:        point.TxTypeCharge,
		Amount:      amount,
		RequestedBy: "seed",
	})
	require.NoError(t, err)
}

func balanceOf(t *testing.T, svc *point.Service, customerID uuid.UUID) point.Balance {
	t.Helper()
	b, err := svc.GetBalance(context.Background(), customerID)
	require.NoError(t, err)
	return b
}

func TestRequestLeavesBalanceUntilApproval(t *testing.T) {
	ctx := context.Background()
	svc, _, customerID := newTestService(t)

	legs, err := svc.Request(ctx, point.RequestInput{
		CustomerID:  customerID,
		Category:    point.CategoryGeneral,
		Type:        point.TxTypeCharge,
		Amount:      500,
		RequestedBy: "op-1",
	})
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, point.StatusPending, legs[0].Status)
	assert.Equal(t, int64(500), legs[0].Amount)
	assert.Equal(t, int64(0), balanceOf(t, svc, customerID).GeneralPoints)

	approved, err := svc.Approve(ctx, legs[0].ID, "op-2")
	require.NoError(t, err)
	assert.Equal(t, point.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, "op-2", *approved.ApprovedBy)
	assert.NotNil(t, approved.DecidedAt)

	b := balanceOf(t, svc, customerID)
	assert.Equal(t, int64(500), b.GeneralPoints)
	assert.Equal(t, int64(0), b.BettingPoints)
}

func TestRequestValidation(t *testing.T) {
	svc, _, customerID := newTestService(t)

	valid := point.RequestInput{
		CustomerID:  customerID,
		Category:    point.CategoryGeneral,
		Type:        point.TxTypeUse,
		Amount:      10,
		Reason:      "canteen",
		RequestedBy: "op-1",
	}

	tests := []struct {
		name   string
		mutate func(in *point.RequestInput)
	}{
		{"zero amount", func(in *point.RequestInput) { in.Amount = 0 }},
		{"negative amount", func(in *point.RequestInput) { in.Amount = -5 }},
		{"use without reason", func(in *point.RequestInput) { in.Reason = "  " }},
		{"exchange without reason", func(in *point.RequestInput) { in.Type = point.TxTypeExchange; in.Reason = "" }},
		{"unknown category", func(in *point.RequestInput) { in.Category = "bonus" }},
		{"unknown type", func(in *point.RequestInput) { in.Type = "gift" }},
		{"missing customer", func(in *point.RequestInput) { in.CustomerID = uuid.Nil }},
		{"missing requester", func(in *point.RequestInput) { in.RequestedBy = "" }},
		{"manual win", func(in *point.RequestInput) { in.Type = point.TxTypeWin; in.Category = point.CategoryBetting }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := svc.Request(context.Background(), in)
			assert.ErrorIs(t, err, point.ErrValidation)
		})
	}

	_, err := svc.Request(context.Background(), valid)
	assert.NoError(t, err)
}

func TestApproveUseWithoutFundsFails(t *testing.T) {
	ctx := context.Background()
	svc, _, customerID := newTestService(t)
	seed(t, svc, customerID, point.CategoryGeneral, 50)

	legs, err := svc.Request(ctx, point.RequestInput{
		CustomerID:  customerID,
		Category:    point.CategoryGeneral,
		Type:        point.TxTypeUse,
		Amount:      100,
		Reason:      "commissary order",
		RequestedBy: "op-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-100), legs[0].Amount)

	_, err = svc.Approve(ctx, legs[0].ID, "op-2")
	require.ErrorIs(t, err, point.ErrInsufficientBalance)

	txn, err := svc.Get(ctx, legs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, point.StatusPending, txn.Status)
	assert.Equal(t, int64(50), balanceOf(t, svc, customerID).GeneralPoints)
}

func TestApproveIsSingleShot(t *testing.T) {
	ctx := context.Background()
	svc, _, customerID := newTestService(t)

	legs, err := svc.Request(ctx, point.RequestInput{
		CustomerID: customerID, Category: point.CategoryBetting, Type: point.TxTypeRefund,
		Amount: 30, RequestedBy: "op-1",
	})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, legs[0].ID, "op-2")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, legs[0].ID, "op-2")
	assert.ErrorIs(t, err, point.ErrInvalidTransition)
	assert.Equal(t, int64(30), balanceOf(t, svc, customerID).BettingPoints)
}

func TestRejectHasNoBalanceEffect(t *testing.T) {
	ctx := context.Background()
	svc, _, customerID := newTestService(t)

	legs, err := svc.Request(ctx, point.RequestInput{
		CustomerID: customerID, Category: point.CategoryGeneral, Type: point.TxTypeCharge,
		Amount: 200, Reason: "letter deposit", RequestedBy: "op-1",
	})
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, legs[0].ID, "op-2", "duplicate letter")
	require.NoError(t, err)
	assert.Equal(t, point.StatusRejected, rejected.Status)
	assert.Equal(t, "letter deposit | rejected: duplicate letter", rejected.Reason)
	assert.Equal(t, int64(0), balanceOf(t, svc, customerID).GeneralPoints)

	_, err = svc.Approve(ctx, legs[0].ID, "op-2")
	assert.ErrorIs(t, err, point.ErrInvalidTransition)
	_, err = svc.Reverse(ctx, legs[0].ID, "op-2", "cleanup")
	assert.ErrorIs(t, err, point.ErrInvalidTransition)
}

func TestExchangeMovesPointsBetweenCategories(t *testing.T) {
	ctx := context.Background()
	svc, _, customerID := newTestService(t)
	seed(t, svc, customerID, point.CategoryGeneral, 1000)

	legs, err := svc.Request(ctx, point.RequestInput{
		CustomerID: customerID, Category: point.CategoryGeneral, Type: point.TxTypeExchange,
		Amount: 1000, Reason: "betting top-up", RequestedBy: "op-1",
	})
	require.NoError(t, err)
	require.Len(t, legs, 2)
	require.NotNil(t, legs[0].CorrelationID)
	require.NotNil(t, legs[1].CorrelationID)
	assert.Equal(t, *legs[0].CorrelationID, *legs[1].CorrelationID)
	assert.Equal(t, point.CategoryGeneral, legs[0].Category)
	assert.Equal(t, int64(-1000), legs[0].Amount)
	assert.Equal(t, point.CategoryBetting, legs[1].Category)
	assert.Equal(t, int64(1000), legs[1].Amount)

	// approving either leg applies both
	_, err = svc.Approve(ctx, legs[1].ID, "op-2")
	require.NoError(t, err)

	b := balanceOf(t, svc, customerID)
	assert.Equal(t, int64(0), b.GeneralPoints)
	assert.Equal(t, int64(1000), b.BettingPoints)

	for _, leg := range legs {
		got, err := svc.Get(ctx, leg.ID)
		require.NoError(t, err)
		assert.Equal(t, point.StatusApproved, got.Status)
	}
}

func TestExchangeIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	svc, _, customerID := newTestService(t)
	seed(t, svc, customerID, point.CategoryGeneral, 500)

	legs, err := svc.Request(ctx, point.RequestInput{
		CustomerID: customerID, Category: point.CategoryGeneral, Type: point.TxTypeExchange,
		Amount: 1000, Reason: "betting top-up", RequestedBy: "op-1",
	})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, legs[0].ID, "op-2")
	require.ErrorIs(t, err, point.ErrInsufficientBalance)

	b := balanceOf(t, svc, customerID)
	assert.Equal(t, int64(500), b.GeneralPoints)
	assert.Equal(t, int64(0), b.BettingPoints)
	for _, leg := range legs {
		got, err := svc.Get(ctx, leg.ID)
		require.NoError(t, err)
		assert.Equal(t, point.StatusPending, got.Status)
	}
}

func TestReverseRestoresPriorBalance(t *testing.T) {
	ctx := context.Background()
	svc, _, customerID := newTestService(t)

	legs, err := svc.Issue(ctx, point.RequestInput{
		CustomerID: customerID, Category: point.CategoryGeneral, Type: point.TxTypeCharge,
		Amount: 300, RequestedBy: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300), balanceOf(t, svc, customerID).GeneralPoints)

	_, err = svc.Reverse(ctx, legs[0].ID, "admin", "")
	require.ErrorIs(t, err, point.ErrValidation)

	reversed, err := svc.Reverse(ctx, legs[0].ID, "admin", "entered twice")
	require.NoError(t, err)
	assert.True(t, reversed.IsReversed)
	assert.Equal(t, point.StatusApproved, reversed.Status)
	require.NotNil(t, reversed.ReversalReason)
	assert.Equal(t, "entered twice", *reversed.ReversalReason)
	assert.Equal(t, int64(0), balanceOf(t, svc, customerID).GeneralPoints)

	_, err = svc.Reverse(ctx, legs[0].ID, "admin", "again")
	assert.ErrorIs(t, err, point.ErrInvalidTransition)
}

func TestReversePendingIsRefused(t *testing.T) {
	ctx := context.Background()
	svc, _, customerID := newTestService(t)

	legs, err := svc.Request(ctx, point.RequestInput{
		CustomerID: customerID, Category: point.CategoryGeneral, Type: point.TxTypeCharge,
		Amount: 10, RequestedBy: "op-1",
	})
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, legs[0].ID, "admin", "mistake")
	assert.ErrorIs(t, err, point.ErrInvalidTransition)
}

func TestReverseAfterSpendFails(t *testing.T) {
	ctx := context.Background()
	svc, _, customerID := newTestService(t)

	charge, err := svc.Issue(ctx, point.RequestInput{
		CustomerID: customerID, Category: point.CategoryGeneral, Type: point.TxTypeCharge,
		Amount: 100, RequestedBy: "admin",
	})
	require.NoError(t, err)
	_, err = svc.Issue(ctx, point.RequestInput{
		CustomerID: customerID, Category: point.CategoryGeneral, Type: point.TxTypeUse,
		Amount: 80, Reason: "canteen", RequestedBy: "admin",
	})
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, charge[0].ID, "admin", "wrong customer")
	require.ErrorIs(t, err, point.ErrInsufficientBalance)

	got, err := svc.Get(ctx, charge[0].ID)
	require.NoError(t, err)
	assert.False(t, got.IsReversed)
	assert.Equal(t, int64(20), balanceOf(t, svc, customerID).GeneralPoints)
}

func TestReverseExchangeReturnsBothLegs(t *testing.T) {
	ctx := context.Background()
	svc, _, customerID := newTestService(t)
	seed(t, svc, customerID, point.CategoryBetting, 400)

	legs, err := svc.Issue(ctx, point.RequestInput{
		CustomerID: customerID, Category: point.CategoryBetting, Type: point.TxTypeExchange,
		Amount: 150, Reason: "cash out", RequestedBy: "admin",
	})
	require.NoError(t, err)
	b := balanceOf(t, svc, customerID)
	assert.Equal(t, int64(150), b.GeneralPoints)
	assert.Equal(t, int64(250), b.BettingPoints)

	_, err = svc.Reverse(ctx, legs[0].ID, "admin", "customer changed mind")
	require.NoError(t, err)
	b = balanceOf(t, svc, customerID)
	assert.Equal(t, int64(0), b.GeneralPoints)
	assert.Equal(t, int64(400), b.BettingPoints)
}

func TestIssueWinRequiresBettingCategory(t *testing.T) {
	svc, _, customerID := newTestService(t)

	_, err := svc.IssueSystem(context.Background(), point.RequestInput{
		CustomerID: customerID, Category: point.CategoryGeneral, Type: point.TxTypeWin,
		Amount: 10, RequestedBy: "settlement", ReferenceID: point.WinReferencePrefix + uuid.NewString(),
	})
	assert.ErrorIs(t, err, point.ErrValidation)
}

func TestIssueSystemWithReferenceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, customerID := newTestService(t)

	ref := point.WinReferencePrefix + uuid.NewString()
	in := point.RequestInput{
		CustomerID: customerID, Category: point.CategoryBetting, Type: point.TxTypeWin,
		Amount: 200, Reason: "win: A vs B", RequestedBy: "settlement", ReferenceID: ref,
	}
	legs, err := svc.IssueSystem(ctx, in)
	require.NoError(t, err)
	_, err = svc.IssueSystem(ctx, in)
	require.ErrorIs(t, err, point.ErrDuplicateReference)

	assert.Equal(t, int64(200), balanceOf(t, svc, customerID).BettingPoints)

	found, err := svc.FindByReference(ctx, point.TxTypeWin, point.CategoryBetting, ref)
	require.NoError(t, err)
	assert.Equal(t, legs[0].ID, found.ID)
	assert.Equal(t, customerID, found.CustomerID)

	_, err = svc.FindByReference(ctx, point.TxTypeWin, point.CategoryBetting, point.WinReferencePrefix+uuid.NewString())
	assert.ErrorIs(t, err, point.ErrTransactionNotFound)
}

func TestIssueSystemRequiresReservedReference(t *testing.T) {
	svc, _, customerID := newTestService(t)

	for _, ref := range []string{"", uuid.NewString(), "manual-42"} {
		_, err := svc.IssueSystem(context.Background(), point.RequestInput{
			CustomerID: customerID, Category: point.CategoryBetting, Type: point.TxTypeWin,
			Amount: 10, RequestedBy: "settlement", ReferenceID: ref,
		})
		assert.ErrorIs(t, err, point.ErrValidation, ref)
	}
}

func TestOperatorCannotIssueWinsOrReservedReferences(t *testing.T) {
	ctx := context.Background()
	svc, _, customerID := newTestService(t)
	betID := uuid.NewString()

	cases := []struct {
		name string
		in   point.RequestInput
	}{
		{"win with bet id", point.RequestInput{Type: point.TxTypeWin, ReferenceID: betID}},
		{"win without reference", point.RequestInput{Type: point.TxTypeWin}},
		{"charge under win namespace", point.RequestInput{Type: point.TxTypeCharge, ReferenceID: "win:" + betID}},
		{"refund under stake namespace", point.RequestInput{Type: point.TxTypeRefund, ReferenceID: " BET:" + betID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := tc.in
			in.CustomerID = customerID
			in.Category = point.CategoryBetting
			in.Amount = 1
			in.Reason = "manual"
			in.RequestedBy = "officer-1"

			_, err := svc.Issue(ctx, in)
			assert.ErrorIs(t, err, point.ErrValidation)
			_, err = svc.Request(ctx, in)
			assert.ErrorIs(t, err, point.ErrValidation)
		})
	}

	assert.Equal(t, int64(0), balanceOf(t, svc, customerID).BettingPoints)

	// a plain bet id is an ordinary operator reference
	_, err := svc.Issue(ctx, point.RequestInput{
		CustomerID: customerID, Category: point.CategoryBetting, Type: point.TxTypeCharge,
		Amount: 1, RequestedBy: "officer-1", ReferenceID: betID,
	})
	require.NoError(t, err)
}

func TestConcurrentApprovalsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	svc, _, customerID := newTestService(t)
	seed(t, svc, customerID, point.CategoryGeneral, 5)

	const workers = 10
	ids := make([]uuid.UUID, 0, workers)
	for i := 0; i < workers; i++ {
		legs, err := svc.Request(ctx, point.RequestInput{
			CustomerID: customerID, Category: point.CategoryGeneral, Type: point.TxTypeUse,
			Amount: 1, Reason: fmt.Sprintf("item-%d", i), RequestedBy: "op-1",
		})
		require.NoError(t, err)
		ids = append(ids, legs[0].ID)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := svc.Approve(ctx, id, "op-2")
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, point.ErrInsufficientBalance)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 5, success)
	assert.Equal(t, int64(0), balanceOf(t, svc, customerID).GeneralPoints)
}

func TestHistoryNewestFirstWithFilters(t *testing.T) {
	ctx := context.Background()
	svc, _, customerID := newTestService(t)
	seed(t, svc, customerID, point.CategoryGeneral, 100)
	seed(t, svc, customerID, point.CategoryBetting, 40)
	_, err := svc.Request(ctx, point.RequestInput{
		CustomerID: customerID, Category: point.CategoryGeneral, Type: point.TxTypeRefund,
		Amount: 5, RequestedBy: "op-1",
	})
	require.NoError(t, err)

	all, err := svc.History(ctx, customerID, point.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, point.TxTypeRefund, all[0].Type)
	assert.Equal(t, int64(100), all[2].Amount)

	betting := point.CategoryBetting
	onlyBetting, err := svc.History(ctx, customerID, point.HistoryFilter{Category: &betting})
	require.NoError(t, err)
	require.Len(t, onlyBetting, 1)
	assert.Equal(t, int64(40), onlyBetting[0].Amount)

	pending := point.StatusPending
	onlyPending, err := svc.History(ctx, customerID, point.HistoryFilter{Status: &pending})
	require.NoError(t, err)
	require.Len(t, onlyPending, 1)
}

func TestBalanceMatchesLedgerReplay(t *testing.T) {
	ctx := context.Background()
	svc, repo, customerID := newTestService(t)

	seed(t, svc, customerID, point.CategoryGeneral, 700)
	exchange, err := svc.Issue(ctx, point.RequestInput{
		CustomerID: customerID, Category: point.CategoryGeneral, Type: point.TxTypeExchange,
		Amount: 300, Reason: "betting top-up", RequestedBy: "admin",
	})
	require.NoError(t, err)
	_, err = svc.Issue(ctx, point.RequestInput{
		CustomerID: customerID, Category: point.CategoryGeneral, Type: point.TxTypeUse,
		Amount: 50, Reason: "canteen", RequestedBy: "admin",
	})
	require.NoError(t, err)
	_, err = svc.Reverse(ctx, exchange[1].ID, "admin", "undo")
	require.NoError(t, err)

	rec, err := svc.Reconcile(ctx, customerID)
	require.NoError(t, err)
	assert.False(t, rec.Drift)
	assert.Equal(t, int64(650), rec.StoredGeneral)
	assert.Equal(t, rec.StoredGeneral, rec.DerivedGeneral)
	assert.Equal(t, int64(0), rec.DerivedBetting)

	repo.SetBalanceUnsafe(customerID, 999, 0)
	rec, err = svc.Reconcile(ctx, customerID)
	require.NoError(t, err)
	assert.True(t, rec.Drift)

	assert.Equal(t, 1, point.NewReconcileJob(svc).RunOnce(ctx))
}

func TestUnknownCustomer(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Issue(context.Background(), point.RequestInput{
		CustomerID: uuid.New(), Category: point.CategoryGeneral, Type: point.TxTypeCharge,
		Amount: 1, RequestedBy: "admin",
	})
	assert.ErrorIs(t, err, point.ErrCustomerNotFound)

	_, err = svc.Approve(context.Background(), uuid.New(), "admin")
	assert.ErrorIs(t, err, point.ErrTransactionNotFound)
}
