// Package memory provides an in-process AccountStore used by tests and
// development setups without a Redis instance.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/davidbz/kodama/internal/domain"
)

type accountState struct {
	mu          sync.Mutex // serializes mutations for one account
	account     domain.Account
	txns        []domain.Transaction      // append order == issue order
	generations []domain.GenerationRecord // append order
}

// AccountStore keeps all account documents in memory. Mutations on one
// account are serialized by a per-account lock; accounts are independent.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*accountState
}

// NewAccountStore creates an empty in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[string]*accountState),
	}
}

func (s *AccountStore) state(accountID string) (*accountState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.accounts[accountID]
	return st, ok
}

// Get implements domain.AccountStore.
func (s *AccountStore) Get(_ context.Context, accountID string) (domain.Account, error) {
	st, ok := s.state(accountID)
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.account, nil
}

// Ensure implements domain.AccountStore.
func (s *AccountStore) Ensure(_ context.Context, account domain.Account) (domain.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.accounts[account.ID]; ok {
		st.mu.Lock()
		existing := st.account
		st.mu.Unlock()
		return existing, false, nil
	}

	s.accounts[account.ID] = &accountState{account: account}
	return account, true, nil
}

// ApplyTransaction implements domain.AccountStore. The account write and
// the transaction append happen under one lock, so callers never observe
// a spent-but-not-recorded state.
func (s *AccountStore) ApplyTransaction(
	_ context.Context,
	accountID string,
	fn func(*domain.Account) (domain.Transaction, error),
) (domain.Transaction, error) {
	st, ok := s.state(accountID)
	if !ok {
		return domain.Transaction{}, domain.ErrAccountNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	next := st.account
	tx, err := fn(&next)
	if err != nil {
		return domain.Transaction{}, err
	}

	st.account = next
	st.txns = append(st.txns, tx)
	return tx, nil
}

// Transactions implements domain.AccountStore.
func (s *AccountStore) Transactions(_ context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	st, ok := s.state(accountID)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	n := len(st.txns)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]domain.Transaction, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, st.txns[i])
	}
	return out, nil
}

// SaveGeneration implements domain.AccountStore.
func (s *AccountStore) SaveGeneration(_ context.Context, rec domain.GenerationRecord) error {
	st, ok := s.state(rec.AccountID)
	if !ok {
		return domain.ErrAccountNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.generations = append(st.generations, rec)
	return nil
}

// Generations implements domain.AccountStore.
func (s *AccountStore) Generations(_ context.Context, accountID string, limit int) ([]domain.GenerationRecord, error) {
	st, ok := s.state(accountID)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	n := len(st.generations)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]domain.GenerationRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, st.generations[i])
	}
	return out, nil
}

// PurgeExpired implements domain.AccountStore.
func (s *AccountStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	states := make([]*accountState, 0, len(s.accounts))
	for _, st := range s.accounts {
		states = append(states, st)
	}
	s.mu.RUnlock()

	purged := 0
	for _, st := range states {
		st.mu.Lock()
		kept := st.generations[:0]
		for _, rec := range st.generations {
			if rec.ExpiresAt.After(now) {
				kept = append(kept, rec)
			} else {
				purged++
			}
		}
		st.generations = kept
		st.mu.Unlock()
	}
	return purged, nil
}
