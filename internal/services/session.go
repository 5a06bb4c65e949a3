package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"orthobox-backend/internal/evaluation"
	"orthobox-backend/internal/middleware"
	"orthobox-backend/internal/models"
	"orthobox-backend/internal/repository"
	"orthobox-backend/internal/store"
)

const defaultUsername = "beautiful"

// HashID derives the pseudonymous identifiers stored instead of LMS ids.
func HashID(instanceID, id string) string {
	sum := sha1.Sum([]byte(instanceID + id))
	return hex.EncodeToString(sum[:])
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

type SessionService struct {
	backend       store.Backend
	users         *repository.UserRepo
	creds         *repository.CredentialRepo
	jwt           *middleware.JWTAuth
	videoBaseURL  string
	tokenLifetime time.Duration
	now           func() time.Time
}

func NewSessionService(
	backend store.Backend,
	users *repository.UserRepo,
	creds *repository.CredentialRepo,
	jwt *middleware.JWTAuth,
	videoBaseURL string,
	tokenLifetime time.Duration,
) *SessionService {
	return &SessionService{
		backend:       backend,
		users:         users,
		creds:         creds,
		jwt:           jwt,
		videoBaseURL:  strings.TrimRight(videoBaseURL, "/"),
		tokenLifetime: tokenLifetime,
		now:           time.Now,
	}
}

// VideoURL is where the recording of a session is published.
func (s *SessionService) VideoURL(sessionID string) string {
	return s.videoBaseURL + "/" + sessionID + ".mp4"
}

// NewSession records a validated launch and returns the new session id.
// The resource binding, user record and the three session records are
// written in a single batch.
func (s *SessionService) NewSession(ctx context.Context, tp *ToolProvider) (string, error) {
	uid := HashID(tp.InstanceGUID, tp.UserID)
	resourceID := HashID(tp.InstanceGUID, tp.ResourceLinkID)
	contextID := HashID(tp.InstanceGUID, tp.ContextID)

	b := store.NewBatch()

	bound, ok, err := s.creds.Resource(ctx, resourceID)
	if err != nil {
		return "", fmt.Errorf("lookup resource: %w", err)
	}
	if ok {
		if bound.ConsumerKey != tp.ConsumerKey || bound.ConsumerSecret != tp.ConsumerSecret {
			return "", ErrCredentialMismatch
		}
	} else {
		cred := models.ConsumerCredential{ConsumerKey: tp.ConsumerKey, ConsumerSecret: tp.ConsumerSecret}
		if err := s.creds.StageBind(b, resourceID, cred); err != nil {
			return "", err
		}
	}
	if !tp.Registered {
		if err := s.creds.StagePromote(b, tp.ConsumerKey, tp.ConsumerSecret); err != nil {
			return "", err
		}
	}

	username := tp.Username(defaultUsername)
	user, found, err := s.users.Lookup(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if !found {
		user = newUser(username)
	}
	if user.Grades == nil {
		user.Grades = make(map[string]float64)
	}
	if user.ActivitySessions == nil {
		user.ActivitySessions = make(map[string][]string)
	}
	user.Username = username

	sessionID := newSessionID()
	token, err := s.jwt.GenerateUploadToken(sessionID, s.tokenLifetime)
	if err != nil {
		return "", fmt.Errorf("upload token: %w", err)
	}

	activity := ""
	if a, ok := tp.ActivityType(); ok {
		activity = string(a)
		user.ActivitySessions[activity] = append(user.ActivitySessions[activity], sessionID)
	}
	user.Sessions = append(user.Sessions, sessionID)

	now := s.now().UTC()
	video := s.VideoURL(sessionID)

	b.Put(store.Users, uid, user)
	b.Put(store.Sessions, sessionID, models.Session{
		UploadToken: token,
		ConsumerKey: tp.ConsumerKey,
		Params:      tp.Params,
		CreatedAt:   now,
	})
	b.Put(store.Metadata, sessionID, models.SessionMetadata{
		UID:          uid,
		ContextID:    contextID,
		Activity:     activity,
		ActivityName: evaluation.ActivityName(tp.BoxVersion),
		Username:     username,
		Video:        video,
		Result:       models.ResultIncomplete,
		Grade:        0,
		ReturnURL:    tp.ReturnURL,
		CreatedAt:    now,
	})
	b.Put(store.Data, sessionID, models.ActivityData{UID: uid, Video: video})

	if err := s.backend.Apply(ctx, b); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return sessionID, nil
}

func newUser(username string) models.User {
	u := models.User{
		Username:         username,
		Sessions:         []string{},
		Grades:           make(map[string]float64),
		ActivitySessions: make(map[string][]string),
	}
	for _, a := range evaluation.ActivityTypes() {
		u.Grades[string(a)] = 0
		u.ActivitySessions[string(a)] = []string{}
	}
	return u
}
