package repository

import (
	"context"

	"orthobox-backend/internal/models"
	"orthobox-backend/internal/store"
)

type UserRepo struct {
	users *store.Dict[models.User]
}

func NewUserRepo(backend store.Backend) *UserRepo {
	return &UserRepo{users: store.NewDict[models.User](backend, store.Users)}
}

func (r *UserRepo) Get(ctx context.Context, uid string) (models.User, error) {
	return r.users.Get(ctx, uid)
}

func (r *UserRepo) Lookup(ctx context.Context, uid string) (models.User, bool, error) {
	return r.users.Lookup(ctx, uid)
}

func (r *UserRepo) All(ctx context.Context) (map[string]models.User, error) {
	return r.users.Items(ctx)
}
