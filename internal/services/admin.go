package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"orthobox-backend/internal/evaluation"
	"orthobox-backend/internal/models"
	"orthobox-backend/internal/repository"
)

// AdminService backs the operator endpoints: credential minting, criteria
// and the session dump.
type AdminService struct {
	creds    *repository.CredentialRepo
	criteria *repository.CriteriaRepo
	sessions *repository.SessionRepo
	users    *repository.UserRepo
	nonces   *repository.NonceRepo
}

func NewAdminService(
	creds *repository.CredentialRepo,
	criteria *repository.CriteriaRepo,
	sessions *repository.SessionRepo,
	users *repository.UserRepo,
	nonces *repository.NonceRepo,
) *AdminService {
	return &AdminService{creds: creds, criteria: criteria, sessions: sessions, users: users, nonces: nonces}
}

type OAuthCredentials struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

func (s *AdminService) NewOAuthCredentials(ctx context.Context) (*OAuthCredentials, error) {
	key, secret, err := s.creds.NewCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("mint credentials: %w", err)
	}
	log.Printf("Minted unregistered consumer key %s", key)
	return &OAuthCredentials{ConsumerKey: key, ConsumerSecret: secret}, nil
}

func (s *AdminService) activity(versionString string) (evaluation.ActivityType, error) {
	a, ok := evaluation.ParseActivityType(versionString)
	if !ok {
		return "", &NotFoundError{Message: fmt.Sprintf("unknown activity %q", versionString)}
	}
	return a, nil
}

func (s *AdminService) Criteria(ctx context.Context, versionString string) (evaluation.Criteria, error) {
	a, err := s.activity(versionString)
	if err != nil {
		return evaluation.Criteria{}, err
	}
	return s.criteria.Get(ctx, a)
}

// UpdateCriteria overwrites only the fields present in patch.
func (s *AdminService) UpdateCriteria(ctx context.Context, versionString string, patch evaluation.CriteriaPatch) (evaluation.Criteria, error) {
	a, err := s.activity(versionString)
	if err != nil {
		return evaluation.Criteria{}, err
	}
	c, err := s.criteria.Update(ctx, a, patch)
	if errors.Is(err, evaluation.ErrInvalidCriteria) {
		return c, &ValidationError{Fields: map[string]string{"criteria": err.Error()}}
	}
	return c, err
}

// SessionData is the full dump served to analysts.
type SessionData struct {
	*repository.Dump
	Users map[string]models.User `json:"users"`
}

func (s *AdminService) SessionData(ctx context.Context) (*SessionData, error) {
	dump, err := s.sessions.Dump(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.users.All(ctx)
	if err != nil {
		return nil, err
	}
	return &SessionData{Dump: dump, Users: users}, nil
}

// SweepNonces prunes expired nonces every interval until ctx ends.
func (s *AdminService) SweepNonces(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.nonces.Prune(ctx, now, ReplayWindow)
			if err != nil {
				log.Printf("nonce sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Pruned %d expired nonces", n)
			}
		}
	}
}
