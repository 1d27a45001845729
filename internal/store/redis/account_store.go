// Package redis implements the AccountStore on a Redis instance. Account
// documents are JSON strings, transaction logs are lists pushed
// newest-first, and generation bodies carry a native TTL so expiry is
// enforced by Redis itself.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/kodama/internal/domain"
	"github.com/davidbz/kodama/internal/observability"
)

const (
	accountKeyPrefix    = "account:"
	generationKeyPrefix = "generation:"

	// maxTxRetries bounds the optimistic-concurrency retry loop when two
	// mutations race on the same account.
	maxTxRetries = 8

	scanBatch = 100
)

// AccountStore is a Redis-backed domain.AccountStore.
type AccountStore struct {
	client *redis.Client
}

// NewAccountStore creates a new Redis account store.
func NewAccountStore(client *redis.Client) *AccountStore {
	return &AccountStore{client: client}
}

func accountKey(id string) string    { return accountKeyPrefix + id }
func txnsKey(id string) string       { return accountKey(id) + ":txns" }
func gensKey(id string) string       { return accountKey(id) + ":gens" }
func generationKey(id string) string { return generationKeyPrefix + id }

// Get implements domain.AccountStore.
func (s *AccountStore) Get(ctx context.Context, accountID string) (domain.Account, error) {
	raw, err := s.client.Get(ctx, accountKey(accountID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("failed to load account: %w", err)
	}

	var account domain.Account
	if err := json.Unmarshal([]byte(raw), &account); err != nil {
		return domain.Account{}, fmt.Errorf("failed to decode account: %w", err)
	}
	return account, nil
}

// Ensure implements domain.AccountStore.
func (s *AccountStore) Ensure(ctx context.Context, account domain.Account) (domain.Account, bool, error) {
	data, err := json.Marshal(account)
	if err != nil {
		return domain.Account{}, false, fmt.Errorf("failed to encode account: %w", err)
	}

	created, err := s.client.SetNX(ctx, accountKey(account.ID), data, 0).Result()
	if err != nil {
		return domain.Account{}, false, fmt.Errorf("failed to create account: %w", err)
	}
	if created {
		return account, true, nil
	}

	existing, err := s.Get(ctx, account.ID)
	return existing, false, err
}

// ApplyTransaction implements domain.AccountStore using a WATCH-based
// optimistic transaction: the account write and the transaction append
// commit atomically or not at all. fn may run more than once on conflict.
func (s *AccountStore) ApplyTransaction(
	ctx context.Context,
	accountID string,
	fn func(*domain.Account) (domain.Transaction, error),
) (domain.Transaction, error) {
	var applied domain.Transaction

	txFn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, accountKey(accountID)).Result()
		if errors.Is(err, redis.Nil) {
			return domain.ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load account: %w", err)
		}

		var account domain.Account
		if err := json.Unmarshal([]byte(raw), &account); err != nil {
			return fmt.Errorf("failed to decode account: %w", err)
		}

		applied, err = fn(&account)
		if err != nil {
			return err
		}

		accountData, err := json.Marshal(account)
		if err != nil {
			return fmt.Errorf("failed to encode account: %w", err)
		}
		txnData, err := json.Marshal(applied)
		if err != nil {
			return fmt.Errorf("failed to encode transaction: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, accountKey(accountID), accountData, 0)
			pipe.LPush(ctx, txnsKey(accountID), txnData)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txFn, accountKey(accountID))
		if err == nil {
			return applied, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			observability.FromContext(ctx).Debug("account transaction conflict, retrying",
				observability.String("account_id", accountID),
				observability.Int("attempt", attempt+1))
			continue
		}
		return domain.Transaction{}, err
	}

	return domain.Transaction{}, fmt.Errorf("account %s: transaction conflict persisted after %d retries", accountID, maxTxRetries)
}

// Transactions implements domain.AccountStore.
func (s *AccountStore) Transactions(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	if _, err := s.Get(ctx, accountID); err != nil {
		return nil, err
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	items, err := s.client.LRange(ctx, txnsKey(accountID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	out := make([]domain.Transaction, 0, len(items))
	for _, raw := range items {
		var txn domain.Transaction
		if err := json.Unmarshal([]byte(raw), &txn); err != nil {
			return nil, fmt.Errorf("failed to decode transaction: %w", err)
		}
		out = append(out, txn)
	}
	return out, nil
}

// SaveGeneration implements domain.AccountStore. The record body expires
// with the record's retention window; the per-account id list keeps only
// references.
func (s *AccountStore) SaveGeneration(ctx context.Context, rec domain.GenerationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode generation record: %w", err)
	}

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, generationKey(rec.ID), data, ttl)
	pipe.LPush(ctx, gensKey(rec.AccountID), rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save generation record: %w", err)
	}
	return nil
}

// Generations implements domain.AccountStore. Ids whose body already
// expired are skipped.
func (s *AccountStore) Generations(ctx context.Context, accountID string, limit int) ([]domain.GenerationRecord, error) {
	if _, err := s.Get(ctx, accountID); err != nil {
		return nil, err
	}

	ids, err := s.client.LRange(ctx, gensKey(accountID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load generation ids: %w", err)
	}

	out := make([]domain.GenerationRecord, 0, len(ids))
	for _, id := range ids {
		if limit > 0 && len(out) == limit {
			break
		}

		raw, err := s.client.Get(ctx, generationKey(id)).Result()
		if errors.Is(err, redis.Nil) {
			continue // expired body, reference cleaned up by PurgeExpired
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load generation record: %w", err)
		}

		var rec domain.GenerationRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode generation record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// PurgeExpired implements domain.AccountStore. Redis already expired the
// record bodies; this sweeps dangling ids out of the per-account lists.
func (s *AccountStore) PurgeExpired(ctx context.Context, _ time.Time) (int, error) {
	purged := 0

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, accountKeyPrefix+"*:gens", scanBatch).Result()
		if err != nil {
			return purged, fmt.Errorf("failed to scan generation lists: %w", err)
		}

		for _, listKey := range keys {
			ids, err := s.client.LRange(ctx, listKey, 0, -1).Result()
			if err != nil {
				return purged, fmt.Errorf("failed to load generation ids: %w", err)
			}

			for _, id := range ids {
				exists, err := s.client.Exists(ctx, generationKey(id)).Result()
				if err != nil {
					return purged, fmt.Errorf("failed to check generation record: %w", err)
				}
				if exists == 0 {
					if err := s.client.LRem(ctx, listKey, 0, id).Err(); err != nil {
						return purged, fmt.Errorf("failed to remove dangling id: %w", err)
					}
					purged++
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return purged, nil
}
