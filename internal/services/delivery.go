package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"orthobox-backend/internal/models"
	"orthobox-backend/internal/outcome"
	"orthobox-backend/internal/repository"
	"orthobox-backend/internal/store"
)

// GradePoster sends a replaceResult request to the LMS.
type GradePoster interface {
	ReplaceResult(ctx context.Context, r outcome.Request) (*outcome.Response, error)
}

// GradeDelivery drains the outbox. Entries stay until the LMS acknowledges
// them or they run out of attempts.
type GradeDelivery struct {
	creds       *repository.CredentialRepo
	outbox      *repository.OutboxRepo
	poster      GradePoster
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
}

func NewGradeDelivery(creds *repository.CredentialRepo, outbox *repository.OutboxRepo, poster GradePoster, maxAttempts int, backoff time.Duration) *GradeDelivery {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &GradeDelivery{
		creds:       creds,
		outbox:      outbox,
		poster:      poster,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		now:         time.Now,
	}
}

// Lease stamps g so Due skips it for one backoff period, leaving the
// entry to the caller's own attempt.
func (d *GradeDelivery) Lease(g models.PendingGrade, now time.Time) models.PendingGrade {
	g.NextAttemptAt = now.Add(d.backoff)
	return g
}

// DeliverLeased makes the first attempt for a grade stamped by Lease. The
// post is cut off a quarter backoff before the lease runs out, so it never
// overlaps a retry of the same entry.
func (d *GradeDelivery) DeliverLeased(ctx context.Context, g models.PendingGrade) error {
	postCtx, cancel := context.WithDeadline(ctx, g.NextAttemptAt.Add(-d.backoff/4))
	defer cancel()
	return d.deliver(ctx, postCtx, g)
}

// Deliver posts one pending grade and updates its outbox entry.
func (d *GradeDelivery) Deliver(ctx context.Context, g models.PendingGrade) error {
	return d.deliver(ctx, ctx, g)
}

func (d *GradeDelivery) deliver(ctx, postCtx context.Context, g models.PendingGrade) error {
	err := d.post(postCtx, g)
	if err == nil {
		if err := d.outbox.Delete(ctx, g.SessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("clear outbox entry %s: %w", g.SessionID, err)
		}
		log.Printf("Grade %.2f posted for session %s", g.Score, g.SessionID)
		return nil
	}

	g.Attempts++
	g.LastError = err.Error()
	if g.Attempts >= d.maxAttempts {
		log.Printf("Grade for session %s failed permanently after %d attempts: %v", g.SessionID, g.Attempts, err)
		if delErr := d.outbox.Delete(ctx, g.SessionID); delErr != nil && !errors.Is(delErr, store.ErrNotFound) {
			log.Printf("failed to drop outbox entry %s: %v", g.SessionID, delErr)
		}
		return err
	}

	g.NextAttemptAt = d.now().Add(d.backoff * time.Duration(1<<uint(g.Attempts-1)))
	log.Printf("Grade for session %s failed (attempt %d): %v; retrying at %s", g.SessionID, g.Attempts, err, g.NextAttemptAt.Format(time.RFC3339))
	if saveErr := d.outbox.Save(ctx, g); saveErr != nil {
		return fmt.Errorf("reschedule grade %s: %w", g.SessionID, saveErr)
	}
	return err
}

func (d *GradeDelivery) post(ctx context.Context, g models.PendingGrade) error {
	secret, _, err := d.creds.Secret(ctx, g.ConsumerKey)
	if err != nil {
		return fmt.Errorf("consumer secret for %s: %w", g.ConsumerKey, err)
	}
	_, err = d.poster.ReplaceResult(ctx, outcome.Request{
		ServiceURL:     g.ServiceURL,
		SourcedID:      g.SourcedID,
		ConsumerKey:    g.ConsumerKey,
		ConsumerSecret: secret,
		MessageID:      g.SessionID,
		Score:          g.Score,
	})
	return err
}

// Due returns the outbox entries whose next attempt time has passed.
func (d *GradeDelivery) Due(ctx context.Context) ([]models.PendingGrade, error) {
	pending, err := d.outbox.Pending(ctx)
	if err != nil {
		return nil, err
	}
	now := d.now()
	due := pending[:0]
	for _, g := range pending {
		if g.NextAttemptAt.After(now) {
			break
		}
		due = append(due, g)
	}
	return due, nil
}
