package repository

import (
	"context"

	"orthobox-backend/internal/evaluation"
	"orthobox-backend/internal/store"
)

// CriteriaRepo keeps per-activity evaluation thresholds. Activities that
// were never configured use the defaults.
type CriteriaRepo struct {
	criteria *store.Dict[evaluation.Criteria]
}

func NewCriteriaRepo(backend store.Backend) *CriteriaRepo {
	return &CriteriaRepo{criteria: store.NewDict[evaluation.Criteria](backend, store.Criteria)}
}

func (r *CriteriaRepo) Get(ctx context.Context, a evaluation.ActivityType) (evaluation.Criteria, error) {
	c, ok, err := r.criteria.Lookup(ctx, string(a))
	if err != nil {
		return c, err
	}
	if !ok {
		return evaluation.DefaultCriteria(a), nil
	}
	return c, nil
}

func (r *CriteriaRepo) Update(ctx context.Context, a evaluation.ActivityType, patch evaluation.CriteriaPatch) (evaluation.Criteria, error) {
	current, err := r.Get(ctx, a)
	if err != nil {
		return current, err
	}
	updated, err := current.Apply(patch)
	if err != nil {
		return current, err
	}
	if err := r.criteria.Set(ctx, string(a), updated); err != nil {
		return current, err
	}
	return updated, nil
}
