package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pustakbazzar/pustak-backend/pkg/db/dbtest"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
)

func TestRepositoryBalanceOperations(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	seller := models.User{ID: uuid.New(), Email: "seller@pustak.test", FullName: "Seller"}
	require.NoError(t, conn.Create(&seller).Error)

	ok, err := repo.CreditBalance(ctx, seller.ID, 120000)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.CreditBalance(ctx, seller.ID, 500)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CreditBalance(ctx, uuid.New(), 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := repo.SellersWithBalance(ctx, 100000)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{seller.ID}, ids)

	ok, err = repo.DrainBalance(ctx, seller.ID, 120000)
	require.NoError(t, err)
	assert.False(t, ok, "stale expected balance must not drain")

	ok, err = repo.DrainBalance(ctx, seller.ID, 120500)
	require.NoError(t, err)
	assert.True(t, ok)

	account, err := repo.FindAccount(ctx, seller.ID)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, int64(0), account.BalanceCents)
	assert.Equal(t, int64(120500), account.EarningCents)
}

func TestRepositoryEarnings(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	sellerID := uuid.New()
	txnID := uuid.New()

	for _, fee := range []int64{20, 5} {
		require.NoError(t, repo.CreateEarning(ctx, &models.PlatformEarning{
			TransactionID:       uuid.New(),
			OrderID:             uuid.New(),
			SellerID:            sellerID,
			PlatformFeeCents:    fee,
			SellerEarningsCents: fee * 9,
			EarnedAt:            time.Now().UTC(),
		}))
	}
	dup := &models.PlatformEarning{TransactionID: txnID, OrderID: uuid.New(), SellerID: sellerID, EarnedAt: time.Now().UTC()}
	require.NoError(t, repo.CreateEarning(ctx, dup))
	again := *dup
	again.ID = uuid.Nil
	assert.Error(t, repo.CreateEarning(ctx, &again), "one earning per transaction and seller")

	total, err := repo.SumPlatformFees(ctx, sellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)

	rows, err := repo.ListByTransaction(ctx, txnID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
