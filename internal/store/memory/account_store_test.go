package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/kodama/internal/domain"
	"github.com/davidbz/kodama/internal/store/memory"
)

func testAccount(id string) domain.Account {
	now := time.Now().UTC()
	return domain.Account{
		ID:           id,
		Email:        id + "@example.com",
		Role:         domain.RoleUser,
		StoragePlan:  domain.FreePlan(),
		CreatedAt:    now,
		LastActivity: now,
	}
}

func TestEnsure(t *testing.T) {
	ctx := context.Background()

	t.Run("should create an account once", func(t *testing.T) {
		store := memory.NewAccountStore()

		first, created, err := store.Ensure(ctx, testAccount("acc-1"))
		require.NoError(t, err)
		require.True(t, created)
		require.Equal(t, "acc-1", first.ID)

		second, created, err := store.Ensure(ctx, testAccount("acc-1"))
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, first.ID, second.ID)
	})

	t.Run("should fail Get for missing accounts", func(t *testing.T) {
		store := memory.NewAccountStore()

		_, err := store.Get(ctx, "missing")
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	})
}

func TestApplyTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("should commit account and transaction together", func(t *testing.T) {
		store := memory.NewAccountStore()
		_, _, err := store.Ensure(ctx, testAccount("acc-1"))
		require.NoError(t, err)

		tx, err := store.ApplyTransaction(ctx, "acc-1", func(a *domain.Account) (domain.Transaction, error) {
			a.CreditBalance += 5
			a.TotalCreditsEver += 5
			a.TxSequence++
			return domain.Transaction{
				ID:           "tx-1",
				AccountID:    a.ID,
				Type:         domain.TxTopUp,
				Amount:       5,
				BalanceAfter: a.CreditBalance,
				Sequence:     a.TxSequence,
			}, nil
		})
		require.NoError(t, err)
		require.Equal(t, int64(5), tx.BalanceAfter)

		account, err := store.Get(ctx, "acc-1")
		require.NoError(t, err)
		require.Equal(t, int64(5), account.CreditBalance)

		txns, err := store.Transactions(ctx, "acc-1", 10)
		require.NoError(t, err)
		require.Len(t, txns, 1)
	})

	t.Run("should roll back entirely when the mutation fails", func(t *testing.T) {
		store := memory.NewAccountStore()
		_, _, err := store.Ensure(ctx, testAccount("acc-1"))
		require.NoError(t, err)

		boom := errors.New("boom")
		_, err = store.ApplyTransaction(ctx, "acc-1", func(a *domain.Account) (domain.Transaction, error) {
			a.CreditBalance = 999
			return domain.Transaction{}, boom
		})
		require.ErrorIs(t, err, boom)

		account, err := store.Get(ctx, "acc-1")
		require.NoError(t, err)
		require.Zero(t, account.CreditBalance)

		txns, err := store.Transactions(ctx, "acc-1", 10)
		require.NoError(t, err)
		require.Empty(t, txns)
	})

	t.Run("should serialize concurrent mutations", func(t *testing.T) {
		store := memory.NewAccountStore()
		_, _, err := store.Ensure(ctx, testAccount("acc-1"))
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = store.ApplyTransaction(ctx, "acc-1", func(a *domain.Account) (domain.Transaction, error) {
					a.CreditBalance++
					a.TxSequence++
					return domain.Transaction{Sequence: a.TxSequence}, nil
				})
			}()
		}
		wg.Wait()

		account, err := store.Get(ctx, "acc-1")
		require.NoError(t, err)
		require.Equal(t, int64(50), account.CreditBalance)
		require.Equal(t, uint64(50), account.TxSequence)

		txns, err := store.Transactions(ctx, "acc-1", 0)
		require.NoError(t, err)
		require.Len(t, txns, 50)
		seen := make(map[uint64]bool)
		for _, tx := range txns {
			require.False(t, seen[tx.Sequence], "duplicate sequence %d", tx.Sequence)
			seen[tx.Sequence] = true
		}
	})
}

func TestGenerations(t *testing.T) {
	ctx := context.Background()

	t.Run("should list newest first with a limit", func(t *testing.T) {
		store := memory.NewAccountStore()
		_, _, err := store.Ensure(ctx, testAccount("acc-1"))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			require.NoError(t, store.SaveGeneration(ctx, domain.GenerationRecord{
				ID:        fmt.Sprintf("gen-%d", i),
				AccountID: "acc-1",
				ExpiresAt: time.Now().Add(time.Hour),
			}))
		}

		records, err := store.Generations(ctx, "acc-1", 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		require.Equal(t, "gen-2", records[0].ID)
		require.Equal(t, "gen-1", records[1].ID)
	})

	t.Run("should purge only expired records", func(t *testing.T) {
		store := memory.NewAccountStore()
		_, _, err := store.Ensure(ctx, testAccount("acc-1"))
		require.NoError(t, err)

		now := time.Now().UTC()
		require.NoError(t, store.SaveGeneration(ctx, domain.GenerationRecord{
			ID: "old", AccountID: "acc-1", ExpiresAt: now.Add(-time.Hour),
		}))
		require.NoError(t, store.SaveGeneration(ctx, domain.GenerationRecord{
			ID: "fresh", AccountID: "acc-1", ExpiresAt: now.Add(time.Hour),
		}))

		purged, err := store.PurgeExpired(ctx, now)
		require.NoError(t, err)
		require.Equal(t, 1, purged)

		records, err := store.Generations(ctx, "acc-1", 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Equal(t, "fresh", records[0].ID)
	})
}
