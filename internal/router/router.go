package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"

	"orthobox-backend/internal/handlers"
	"orthobox-backend/internal/middleware"
)

func New(
	jwtAuth *middleware.JWTAuth,
	credsLimiter *middleware.RateLimiter,
	ltiHandler *handlers.LTIHandler,
	activityHandler *handlers.ActivityHandler,
	adminHandler *handlers.AdminHandler,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// ──── LTI launch (OAuth signed by the LMS) ────
	r.Post("/launch", ltiHandler.Launch)

	// ──── Per-session routes ────
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/launch.jnlp", activityHandler.JNLP)
		r.Get("/view_results", activityHandler.ViewResults)
		r.Get("/results", activityHandler.Results)
		r.Post("/results", activityHandler.SubmitResults) // upload token
		r.Get("/progress", activityHandler.Progress)
		r.Get("/ws", activityHandler.Watch)
	})

	// ──── Operator routes ────
	r.Group(func(r chi.Router) {
		r.Use(jwtAuth.AdminMiddleware)
		r.Get("/configure/{versionString}", adminHandler.GetCriteria)
		r.Post("/configure/{versionString}", adminHandler.SetCriteria)
		r.With(gzip).Get("/session_data", adminHandler.SessionData)
		r.With(credsLimiter.Middleware).Get("/new_oauth_creds", adminHandler.NewOAuthCreds)
	})

	return r
}

func gzip(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
