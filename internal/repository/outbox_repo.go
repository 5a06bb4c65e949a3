package repository

import (
	"context"
	"sort"

	"orthobox-backend/internal/models"
	"orthobox-backend/internal/store"
)

// OutboxRepo holds grade deliveries the LMS has not acknowledged.
type OutboxRepo struct {
	outbox *store.Dict[models.PendingGrade]
}

func NewOutboxRepo(backend store.Backend) *OutboxRepo {
	return &OutboxRepo{outbox: store.NewDict[models.PendingGrade](backend, store.Outbox)}
}

func (r *OutboxRepo) Get(ctx context.Context, sessionID string) (models.PendingGrade, error) {
	return r.outbox.Get(ctx, sessionID)
}

func (r *OutboxRepo) Save(ctx context.Context, g models.PendingGrade) error {
	return r.outbox.Set(ctx, g.SessionID, g)
}

func (r *OutboxRepo) Delete(ctx context.Context, sessionID string) error {
	return r.outbox.Delete(ctx, sessionID)
}

// Pending returns entries in order of their next attempt.
func (r *OutboxRepo) Pending(ctx context.Context) ([]models.PendingGrade, error) {
	items, err := r.outbox.Items(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.PendingGrade, 0, len(items))
	for _, g := range items {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextAttemptAt.Before(out[j].NextAttemptAt)
	})
	return out, nil
}
