package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"orthobox-backend/internal/models"
	"orthobox-backend/internal/services"
)

// Pool redelivers grades left in the outbox. A scheduler goroutine picks up
// due entries every interval and hands them to workerCount workers. When a
// Redis client is configured, a lock keeps two instances from posting the
// same grade.
type Pool struct {
	delivery    *services.GradeDelivery
	redis       *redis.Client
	workerCount int
	interval    time.Duration
	lockTTL     time.Duration

	jobs     chan models.PendingGrade
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewPool(delivery *services.GradeDelivery, redisClient *redis.Client, workerCount int, interval time.Duration) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		delivery:    delivery,
		redis:       redisClient,
		workerCount: workerCount,
		interval:    interval,
		lockTTL:     5 * time.Minute,
		jobs:        make(chan models.PendingGrade),
		stopChan:    make(chan struct{}),
		inFlight:    make(map[string]bool),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.wg.Add(1)
	go p.schedule()

	log.Printf("Started %d grade retry workers", p.workerCount)
}

// Stop waits for in-progress deliveries to finish.
func (p *Pool) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

func (p *Pool) schedule() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
		}

		due, err := p.delivery.Due(context.Background())
		if err != nil {
			log.Printf("grade outbox scan failed: %v", err)
			continue
		}
		for _, g := range due {
			if !p.claim(g.SessionID) {
				continue
			}
			select {
			case p.jobs <- g:
			case <-p.stopChan:
				p.release(g.SessionID)
				return
			}
		}
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			log.Printf("Grade worker %d shutting down", id)
			return
		case g := <-p.jobs:
			p.process(context.Background(), id, g)
			p.release(g.SessionID)
		}
	}
}

// RunOnce delivers every due entry on the calling goroutine and returns
// how many were acknowledged.
func (p *Pool) RunOnce(ctx context.Context) (int, error) {
	due, err := p.delivery.Due(ctx)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, g := range due {
		if p.process(ctx, -1, g) {
			delivered++
		}
	}
	return delivered, nil
}

func (p *Pool) process(ctx context.Context, id int, g models.PendingGrade) bool {
	if p.redis != nil {
		lockKey := "grade_lock:" + g.SessionID
		locked, err := p.redis.SetNX(ctx, lockKey, "1", p.lockTTL).Result()
		if err != nil || !locked {
			return false
		}
		defer p.redis.Del(ctx, lockKey)
	}

	log.Printf("Worker %d: retrying grade for session %s (attempt %d)", id, g.SessionID, g.Attempts+1)
	return p.delivery.Deliver(ctx, g) == nil
}

func (p *Pool) claim(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight[sessionID] {
		return false
	}
	p.inFlight[sessionID] = true
	return true
}

func (p *Pool) release(sessionID string) {
	p.mu.Lock()
	delete(p.inFlight, sessionID)
	p.mu.Unlock()
}
