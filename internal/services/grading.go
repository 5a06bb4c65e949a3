package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"time"

	"orthobox-backend/internal/evaluation"
	"orthobox-backend/internal/middleware"
	"orthobox-backend/internal/models"
	"orthobox-backend/internal/repository"
	"orthobox-backend/internal/store"
)

// ResultPublisher is told about every evaluated submission.
type ResultPublisher interface {
	PublishResult(ctx context.Context, event models.ResultEvent)
}

// SubmitResult is what the client gets back after uploading its data.
type SubmitResult struct {
	SessionID   string                `json:"session_id"`
	Result      string                `json:"result"`
	Grade       float64               `json:"grade"`
	Completed   int                   `json:"completed"`
	Total       int                   `json:"total"`
	GradePosted bool                  `json:"grade_posted"`
	Data        evaluation.Submission `json:"data"`
}

type GradingService struct {
	backend   store.Backend
	sessions  *repository.SessionRepo
	users     *repository.UserRepo
	criteria  *repository.CriteriaRepo
	delivery  *GradeDelivery
	jwt       *middleware.JWTAuth
	publisher ResultPublisher
	now       func() time.Time
}

func NewGradingService(
	backend store.Backend,
	sessions *repository.SessionRepo,
	users *repository.UserRepo,
	criteria *repository.CriteriaRepo,
	delivery *GradeDelivery,
	jwt *middleware.JWTAuth,
	publisher ResultPublisher,
) *GradingService {
	return &GradingService{
		backend:   backend,
		sessions:  sessions,
		users:     users,
		criteria:  criteria,
		delivery:  delivery,
		jwt:       jwt,
		publisher: publisher,
		now:       time.Now,
	}
}

// Submit evaluates uploaded activity data. The session is consumed by a
// successful call, so the upload token only works once.
func (s *GradingService) Submit(ctx context.Context, sessionID, uploadToken string, body []byte) (*SubmitResult, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownSession
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if uploadToken == "" || subtle.ConstantTimeCompare([]byte(uploadToken), []byte(sess.UploadToken)) != 1 {
		return nil, newError(KindUnknownSession, "unknown session", errors.New("upload token mismatch"))
	}
	if err := s.jwt.VerifyUploadToken(uploadToken, sessionID); err != nil {
		return nil, newError(KindUnknownSession, "unknown session", err)
	}

	sub, err := evaluation.ParseSubmission(body)
	if err != nil {
		return nil, newError(KindMalformedPayload, "malformed JSON", err)
	}
	activity, err := sub.ActivityType()
	if err != nil {
		return nil, newError(KindUnknownActivityType, "unknown activity type", err)
	}

	meta, err := s.sessions.GetMetadata(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lookup metadata: %w", err)
	}
	if meta.Activity != "" && meta.Activity != string(activity) {
		return nil, newError(KindUnknownActivityType,
			fmt.Sprintf("data from %s box, session was launched for %s", activity, meta.Activity), nil)
	}

	criteria, err := s.criteria.Get(ctx, activity)
	if err != nil {
		return nil, fmt.Errorf("load criteria: %w", err)
	}
	result, err := evaluation.Evaluate(activity, criteria, sub)
	if err != nil {
		return nil, newError(KindUnknownActivityType, "unknown activity type", err)
	}

	user, found, err := s.users.Lookup(ctx, meta.UID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !found {
		user = newUser(meta.Username)
	}
	if user.Grades == nil {
		user.Grades = make(map[string]float64)
	}
	grade := evaluation.NextGrade(user.Grades[string(activity)], result)
	user.Grades[string(activity)] = grade

	now := s.now().UTC()
	meta.Activity = string(activity)
	meta.Result = result
	meta.Grade = grade
	meta.SubmittedAt = &now

	data, err := s.sessions.GetActivityData(ctx, sessionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup activity data: %w", err)
	}
	data.UID = meta.UID
	data.Video = meta.Video
	data.Data = append([]byte(nil), body...)

	tp := NewToolProvider(sess.ConsumerKey, "", sess.Params)
	pending := s.delivery.Lease(models.PendingGrade{
		SessionID:   sessionID,
		ServiceURL:  tp.OutcomeServiceURL,
		SourcedID:   tp.ResultSourcedID,
		ConsumerKey: sess.ConsumerKey,
		Score:       evaluation.OutcomeScore(grade),
		CreatedAt:   now,
	}, now)

	b := store.NewBatch().
		Put(store.Data, sessionID, data).
		Put(store.Metadata, sessionID, meta).
		Put(store.Users, meta.UID, user).
		Delete(store.Sessions, sessionID)
	if tp.IsOutcomeService() {
		b.Put(store.Outbox, sessionID, pending)
	}
	if err := s.backend.Apply(ctx, b); err != nil {
		return nil, fmt.Errorf("store result: %w", err)
	}

	posted := false
	if tp.IsOutcomeService() {
		if err := s.delivery.DeliverLeased(ctx, pending); err != nil {
			log.Printf("Grade for session %s queued for retry: %v", sessionID, err)
		} else {
			posted = true
		}
	} else {
		log.Printf("Session %s: %v, grade kept locally", sessionID, ErrNotAnOutcomeService)
	}

	completed, total := evaluation.ProgressCount(grade)
	if s.publisher != nil {
		s.publisher.PublishResult(ctx, models.ResultEvent{
			SessionID:   sessionID,
			Result:      result,
			Grade:       grade,
			GradePosted: posted,
		})
	}

	return &SubmitResult{
		SessionID:   sessionID,
		Result:      result,
		Grade:       grade,
		Completed:   completed,
		Total:       total,
		GradePosted: posted,
		Data:        sub,
	}, nil
}

// Progress reports the grade of the activity a session belongs to.
type Progress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Grade     float64 `json:"grade"`
	Result    string  `json:"result"`
	Submitted bool    `json:"submitted"`
}

func (s *GradingService) Progress(ctx context.Context, sessionID string) (*Progress, error) {
	meta, err := s.sessions.GetMetadata(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownSession
	}
	if err != nil {
		return nil, err
	}

	grade := meta.Grade
	if !meta.Submitted() && meta.Activity != "" {
		if user, ok, err := s.users.Lookup(ctx, meta.UID); err == nil && ok {
			grade = user.Grades[meta.Activity]
		}
	}
	completed, total := evaluation.ProgressCount(grade)
	return &Progress{
		Completed: completed,
		Total:     total,
		Grade:     grade,
		Result:    meta.Result,
		Submitted: meta.Submitted(),
	}, nil
}

// ResultView is the data behind the results page.
type ResultView struct {
	Metadata    models.SessionMetadata
	Duration    int
	ErrorNumber int
	Pokes       int
	Drops       int
	Completion  string
}

// Results assembles the results page for a submitted session.
func (s *GradingService) Results(ctx context.Context, sessionID string) (*ResultView, error) {
	meta, err := s.sessions.GetMetadata(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownSession
	}
	if err != nil {
		return nil, err
	}
	if !meta.Submitted() {
		return nil, newError(KindUnknownSession, "no results for session yet", nil)
	}
	data, err := s.sessions.GetActivityData(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lookup activity data: %w", err)
	}
	sub, err := evaluation.ParseSubmission(data.Data)
	if err != nil {
		return nil, newError(KindMalformedPayload, "stored data unreadable", err)
	}

	cutoff := evaluation.DefaultCriteria(evaluation.Pokey).ErrorCutoff
	if a, err := sub.ActivityType(); err == nil {
		if c, err := s.criteria.Get(ctx, a); err == nil {
			cutoff = c.ErrorCutoff
		}
	}

	completed, total := evaluation.ProgressCount(meta.Grade)
	return &ResultView{
		Metadata:    meta,
		Duration:    sub.DurationSeconds(),
		ErrorNumber: sub.QualifyingErrors(cutoff),
		Pokes:       int(sub.Pokes),
		Drops:       int(sub.Drops),
		Completion:  fmt.Sprintf("%d of %d", completed, total),
	}, nil
}
