package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"orthobox-backend/internal/models"
	"orthobox-backend/internal/secrets"
	"orthobox-backend/internal/store"
)

// CredentialRepo owns OAuth consumer credentials. Secrets are sealed
// before they are written.
type CredentialRepo struct {
	sealer       *secrets.Sealer
	registered   *store.Dict[string]
	unregistered *store.Dict[string]
	resources    *store.Dict[models.ConsumerCredential]
}

func NewCredentialRepo(backend store.Backend, sealer *secrets.Sealer) *CredentialRepo {
	return &CredentialRepo{
		sealer:       sealer,
		registered:   store.NewDict[string](backend, store.OAuth),
		unregistered: store.NewDict[string](backend, store.UnregisteredOAuth),
		resources:    store.NewDict[models.ConsumerCredential](backend, store.Resources),
	}
}

func newHexID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewCredentials mints an unregistered key/secret pair. It becomes
// registered the first time an LMS resource launches with it.
func (r *CredentialRepo) NewCredentials(ctx context.Context) (string, string, error) {
	key, secret := newHexID(), newHexID()
	sealed, err := r.sealer.Seal(secret)
	if err != nil {
		return "", "", err
	}
	if err := r.unregistered.Set(ctx, key, sealed); err != nil {
		return "", "", err
	}
	return key, secret, nil
}

// Secret finds the consumer secret for key, registered first. It returns
// store.ErrNotFound for unknown keys.
func (r *CredentialRepo) Secret(ctx context.Context, key string) (string, bool, error) {
	sealed, ok, err := r.registered.Lookup(ctx, key)
	if err != nil {
		return "", false, err
	}
	registered := ok
	if !ok {
		sealed, err = r.unregistered.Get(ctx, key)
		if err != nil {
			return "", false, err
		}
	}
	secret, err := r.sealer.Open(sealed)
	if err != nil {
		return "", false, fmt.Errorf("open secret for %s: %w", key, err)
	}
	return secret, registered, nil
}

// Register stores key/secret directly as registered credentials.
func (r *CredentialRepo) Register(ctx context.Context, key, secret string) error {
	sealed, err := r.sealer.Seal(secret)
	if err != nil {
		return err
	}
	return r.registered.Set(ctx, key, sealed)
}

// Resource returns the credentials bound to an LMS resource link.
func (r *CredentialRepo) Resource(ctx context.Context, resourceID string) (models.ConsumerCredential, bool, error) {
	cred, ok, err := r.resources.Lookup(ctx, resourceID)
	if err != nil || !ok {
		return cred, ok, err
	}
	cred.ConsumerSecret, err = r.sealer.Open(cred.ConsumerSecret)
	if err != nil {
		return cred, false, fmt.Errorf("open resource secret: %w", err)
	}
	return cred, true, nil
}

// StageBind adds the resource binding to b.
func (r *CredentialRepo) StageBind(b *store.Batch, resourceID string, cred models.ConsumerCredential) error {
	sealed, err := r.sealer.Seal(cred.ConsumerSecret)
	if err != nil {
		return err
	}
	b.Put(store.Resources, resourceID, models.ConsumerCredential{
		ConsumerKey:    cred.ConsumerKey,
		ConsumerSecret: sealed,
	})
	return nil
}

// StagePromote moves an unregistered key to the registered partition.
func (r *CredentialRepo) StagePromote(b *store.Batch, key, secret string) error {
	sealed, err := r.sealer.Seal(secret)
	if err != nil {
		return err
	}
	b.Put(store.OAuth, key, sealed)
	b.Delete(store.UnregisteredOAuth, key)
	return nil
}
