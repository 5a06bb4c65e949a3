package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"orthobox-backend/internal/config"
	"orthobox-backend/internal/database"
	"orthobox-backend/internal/evaluation"
	"orthobox-backend/internal/handlers"
	"orthobox-backend/internal/middleware"
	"orthobox-backend/internal/outcome"
	"orthobox-backend/internal/repository"
	"orthobox-backend/internal/router"
	"orthobox-backend/internal/secrets"
	"orthobox-backend/internal/services"
	"orthobox-backend/internal/store"
	"orthobox-backend/internal/websocket"
	"orthobox-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting Orthobox LTI tool...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Connect Redis (optional) ────
	var redisClients *database.RedisClients
	if cfg.RedisURL != "" {
		var err error
		redisClients, err = database.NewRedisClients(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer redisClients.Close()
		log.Println("✓ Redis connected")
	}

	// ──── Step 3: Open Session Store ────
	backend, closeStore, err := openStore(cfg, redisClients)
	if err != nil {
		log.Fatalf("✗ Session store failed: %v", err)
	}
	defer closeStore()
	log.Printf("✓ Session store ready (%s)", cfg.StoreDriver)

	// ──── Initialize Repositories ────
	sealer := secrets.NewSealer(cfg.SecretKey)
	credentialRepo := repository.NewCredentialRepo(backend, sealer)
	nonceRepo := repository.NewNonceRepo(backend)
	sessionRepo := repository.NewSessionRepo(backend)
	userRepo := repository.NewUserRepo(backend)
	criteriaRepo := repository.NewCriteriaRepo(backend)
	outboxRepo := repository.NewOutboxRepo(backend)

	if cfg.CriteriaFile != "" {
		if err := seedCriteria(criteriaRepo, cfg.CriteriaFile); err != nil {
			log.Fatalf("✗ Criteria file failed: %v", err)
		}
		log.Printf("✓ Evaluation criteria loaded from %s", cfg.CriteriaFile)
	}

	// ──── Step 4: Start WebSocket Hub ────
	var pubsub *redis.Client
	if redisClients != nil {
		pubsub = redisClients.PubSub
	}
	wsHub := websocket.NewHub(pubsub)
	log.Println("✓ WebSocket hub started")

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.SecretKey)
	poster := outcome.NewPoster(cfg.OutcomeTimeout)
	delivery := services.NewGradeDelivery(credentialRepo, outboxRepo, poster, cfg.GradeRetryAttempts, cfg.GradeRetryInterval)
	authorizer := services.NewAuthorizer(credentialRepo, nonceRepo)
	sessionService := services.NewSessionService(backend, userRepo, credentialRepo, jwtAuth, cfg.VideoBaseURL, cfg.UploadTokenLifetime)
	gradingService := services.NewGradingService(backend, sessionRepo, userRepo, criteriaRepo, delivery, jwtAuth, wsHub)
	adminService := services.NewAdminService(credentialRepo, criteriaRepo, sessionRepo, userRepo, nonceRepo)

	// ──── Initialize Handlers ────
	ltiHandler := handlers.NewLTIHandler(authorizer, sessionService, sessionRepo, cfg.BaseURL)
	activityHandler := handlers.NewActivityHandler(gradingService, sessionRepo, wsHub, cfg.BaseURL)
	adminHandler := handlers.NewAdminHandler(adminService)

	// ──── Step 5: Start Background Workers ────
	var lockClient *redis.Client
	if redisClients != nil {
		lockClient = redisClients.Store
	}
	workerPool := worker.NewPool(delivery, lockClient, cfg.GradeRetryWorkers, cfg.GradeRetryInterval)
	workerPool.Start()
	log.Printf("✓ Grade retry pool started (%d goroutines)", cfg.GradeRetryWorkers)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go adminService.SweepNonces(sweepCtx, 10*time.Minute)
	log.Println("✓ Nonce sweeper started")

	// ──── Step 6: Start HTTP Server ────
	credsLimiter := middleware.NewRateLimiter(10, time.Minute)
	r := router.New(jwtAuth, credsLimiter, ltiHandler, activityHandler, adminHandler, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		stopSweeper()
		workerPool.Stop()
		credsLimiter.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Orthobox ready on http://localhost:%s", cfg.Port)
	log.Printf("  Launch: http://localhost:%s/launch", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

func seedCriteria(repo *repository.CriteriaRepo, path string) error {
	patches, err := evaluation.LoadCriteriaFile(path)
	if err != nil {
		return err
	}
	for a, patch := range patches {
		if _, err := repo.Update(context.Background(), a, patch); err != nil {
			return fmt.Errorf("%s: %w", a, err)
		}
	}
	return nil
}

// openStore selects the backend named by STORE_DRIVER.
func openStore(cfg *config.Config, redisClients *database.RedisClients) (store.Backend, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case "sqlite":
		db, err := database.OpenSQLite(cfg.StoreDir)
		if err != nil {
			return nil, nil, err
		}
		backend, err := store.NewSQLiteBackend(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return backend, func() { backend.Close() }, nil

	case "postgres":
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		backend, err := store.NewPostgresBackend(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return backend, pool.Close, nil

	case "redis":
		if redisClients == nil {
			return nil, nil, fmt.Errorf("redis store needs REDIS_URL")
		}
		return store.NewRedisBackend(redisClients.Store), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}
