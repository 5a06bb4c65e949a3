package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"orthobox-backend/internal/models"
	"orthobox-backend/internal/store"
)

// NonceRepo remembers OAuth nonces per consumer for the replay window.
type NonceRepo struct {
	backend store.Backend
	nonces  *store.Dict[models.NonceRecord]
}

func NewNonceRepo(backend store.Backend) *NonceRepo {
	return &NonceRepo{
		backend: backend,
		nonces:  store.NewDict[models.NonceRecord](backend, store.Nonces),
	}
}

func nonceKey(consumerKey, nonce string) string {
	return consumerKey + ":" + nonce
}

// Remember records the nonce and reports whether it was unseen within
// window. A record older than window is replaced.
func (r *NonceRepo) Remember(ctx context.Context, consumerKey, nonce string, now time.Time, window time.Duration) (bool, error) {
	key := nonceKey(consumerKey, nonce)
	rec := models.NonceRecord{Timestamp: now.Unix()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}

	inserted, err := r.backend.PutIfAbsent(ctx, store.Nonces, key, raw)
	if err != nil || inserted {
		return inserted, err
	}

	seen, err := r.nonces.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		// Pruned between the two calls.
		return r.backend.PutIfAbsent(ctx, store.Nonces, key, raw)
	}
	if err != nil {
		return false, err
	}
	if now.Unix()-seen.Timestamp > int64(window/time.Second) {
		return true, r.nonces.Set(ctx, key, rec)
	}
	return false, nil
}

// Prune deletes nonce records older than window and returns how many went.
func (r *NonceRepo) Prune(ctx context.Context, now time.Time, window time.Duration) (int, error) {
	items, err := r.nonces.Items(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-window).Unix()
	pruned := 0
	for key, rec := range items {
		if rec.Timestamp >= cutoff {
			continue
		}
		if err := r.nonces.Delete(ctx, key); err != nil && !errors.Is(err, store.ErrNotFound) {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}
