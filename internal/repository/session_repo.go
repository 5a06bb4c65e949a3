package repository

import (
	"context"

	"orthobox-backend/internal/models"
	"orthobox-backend/internal/store"
)

// SessionRepo reads the per-session partitions. Writes go through batches
// built by the services.
type SessionRepo struct {
	sessions *store.Dict[models.Session]
	data     *store.Dict[models.ActivityData]
	metadata *store.Dict[models.SessionMetadata]
}

func NewSessionRepo(backend store.Backend) *SessionRepo {
	return &SessionRepo{
		sessions: store.NewDict[models.Session](backend, store.Sessions),
		data:     store.NewDict[models.ActivityData](backend, store.Data),
		metadata: store.NewDict[models.SessionMetadata](backend, store.Metadata),
	}
}

// Get returns store.ErrNotFound once the session's results were uploaded.
func (r *SessionRepo) Get(ctx context.Context, sessionID string) (models.Session, error) {
	return r.sessions.Get(ctx, sessionID)
}

func (r *SessionRepo) GetUploadToken(ctx context.Context, sessionID string) (string, error) {
	s, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return s.UploadToken, nil
}

func (r *SessionRepo) GetParams(ctx context.Context, sessionID string) (map[string]string, error) {
	s, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Params, nil
}

func (r *SessionRepo) GetMetadata(ctx context.Context, sessionID string) (models.SessionMetadata, error) {
	return r.metadata.Get(ctx, sessionID)
}

func (r *SessionRepo) GetActivityData(ctx context.Context, sessionID string) (models.ActivityData, error) {
	return r.data.Get(ctx, sessionID)
}

// Dump is every stored session for offline analysis. Launch parameters
// and credentials are left out.
type Dump struct {
	Sessions []string                          `json:"open_sessions"`
	Data     map[string]models.ActivityData    `json:"data"`
	Metadata map[string]models.SessionMetadata `json:"metadata"`
}

func (r *SessionRepo) Dump(ctx context.Context) (*Dump, error) {
	open, err := r.sessions.Keys(ctx)
	if err != nil {
		return nil, err
	}
	data, err := r.data.Items(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := r.metadata.Items(ctx)
	if err != nil {
		return nil, err
	}
	if open == nil {
		open = []string{}
	}
	return &Dump{Sessions: open, Data: data, Metadata: meta}, nil
}
