package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidbz/kodama/internal/observability"
)

// CreditLedger maintains per-account credit balances with strict, auditable
// mutation. Every transition appends exactly one transaction, durable
// before the caller sees success; the store serializes mutations per
// account so two racing deductions can never both spend the same credits.
type CreditLedger struct {
	store         AccountStore
	startingGrant int64
}

// NewCreditLedger creates a ledger over the given account store.
// startingGrant is credited to every newly opened account.
func NewCreditLedger(store AccountStore, startingGrant int64) *CreditLedger {
	return &CreditLedger{
		store:         store,
		startingGrant: startingGrant,
	}
}

// Open ensures the account exists, creating it with the starting credit
// grant on first authentication. Repeat calls return the existing account.
func (l *CreditLedger) Open(ctx context.Context, id, email, displayName string) (Account, error) {
	now := time.Now().UTC()
	account, created, err := l.store.Ensure(ctx, Account{
		ID:           id,
		Email:        email,
		DisplayName:  displayName,
		Role:         RoleUser,
		StoragePlan:  FreePlan(),
		CreatedAt:    now,
		LastActivity: now,
	})
	if err != nil {
		return Account{}, fmt.Errorf("failed to ensure account: %w", err)
	}

	if !created || l.startingGrant <= 0 {
		return account, nil
	}

	logger := observability.FromContext(ctx)
	logger.Info("granting welcome credits",
		observability.String("account_id", id),
		observability.Int64("credits", l.startingGrant))

	if _, err := l.TopUp(ctx, id, l.startingGrant, "Welcome bonus - free starting credits"); err != nil {
		return Account{}, fmt.Errorf("failed to grant starting credits: %w", err)
	}

	return l.store.Get(ctx, id)
}

// TopUp adds credits to an account. Always succeeds for a positive amount
// on an existing account.
func (l *CreditLedger) TopUp(ctx context.Context, accountID string, amount int64, description string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, fmt.Errorf("top-up amount must be positive, got %d", amount)
	}

	return l.store.ApplyTransaction(ctx, accountID, func(a *Account) (Transaction, error) {
		a.CreditBalance += amount
		a.TotalCreditsEver += amount
		a.TxSequence++
		a.LastActivity = time.Now().UTC()

		return Transaction{
			ID:           uuid.NewString(),
			AccountID:    accountID,
			Type:         TxTopUp,
			Amount:       amount,
			Description:  description,
			BalanceAfter: a.CreditBalance,
			Sequence:     a.TxSequence,
			Timestamp:    a.LastActivity,
		}, nil
	})
}

// Deduct removes credits from an account. Fails with
// ErrInsufficientCredits, leaving balance and history unchanged, when the
// balance does not cover the amount. generationID optionally links the
// transaction to a generation record.
func (l *CreditLedger) Deduct(ctx context.Context, accountID string, amount int64, description, generationID string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, fmt.Errorf("deduction amount must be positive, got %d", amount)
	}

	return l.store.ApplyTransaction(ctx, accountID, func(a *Account) (Transaction, error) {
		if a.CreditBalance < amount {
			return Transaction{}, fmt.Errorf("%w: need %d, have %d", ErrInsufficientCredits, amount, a.CreditBalance)
		}

		a.CreditBalance -= amount
		a.TotalSpentCredits += amount
		a.TxSequence++
		a.LastActivity = time.Now().UTC()

		return Transaction{
			ID:           uuid.NewString(),
			AccountID:    accountID,
			Type:         TxDeduction,
			Amount:       -amount,
			Description:  description,
			BalanceAfter: a.CreditBalance,
			Sequence:     a.TxSequence,
			GenerationID: generationID,
			Timestamp:    a.LastActivity,
		}, nil
	})
}

// Balance returns the current credit balance.
func (l *CreditLedger) Balance(ctx context.Context, accountID string) (int64, error) {
	account, err := l.store.Get(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.CreditBalance, nil
}

// HasSufficientCredits reports whether the account can cover amount. The
// store serves reads at least as current as any deduction that already
// returned success.
func (l *CreditLedger) HasSufficientCredits(ctx context.Context, accountID string, amount int64) (bool, error) {
	balance, err := l.Balance(ctx, accountID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// History returns an account's transactions newest-first, a gap-free
// prefix of the true history up to limit.
func (l *CreditLedger) History(ctx context.Context, accountID string, limit int) ([]Transaction, error) {
	return l.store.Transactions(ctx, accountID, limit)
}
