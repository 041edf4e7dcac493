package api

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"mchatbot.io/support-backend/internal/metrics"
	"mchatbot.io/support-backend/internal/ratelimit"
)

func NewRouter(apiHandler *APIHandler, chatSocket *ChatSocket, limiter *ratelimit.Limiter, m *metrics.Metrics,
	allowedOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(m.Instrument)
	r.Use(CORS(allowedOrigins))

	limit := func(endpoint, action string) func(http.Handler) http.Handler {
		return limiter.Middleware(endpoint, action, requestSubject)
	}

	r.Handle("/metrics", m.Handler())
	r.Get("/ws/chat", chatSocket.ServeHTTP)

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", apiHandler.HealthHandler)
		r.With(limit("auth", "register")).Post("/auth/register", apiHandler.RegisterHandler)
		r.With(limit("auth", "login")).Post("/auth/login", apiHandler.LoginHandler)

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.With(limit("chat", "message")).Post("/chat/message", apiHandler.PostMessageHandler)
			r.With(limit("chat", "history")).Get("/chat/history", apiHandler.ChatHistoryHandler)

			r.With(limit("mood", "entry")).Post("/mood/entry", apiHandler.MoodEntryHandler)
			r.With(limit("mood", "analytics")).Get("/mood/analytics", apiHandler.MoodAnalyticsHandler)
			r.With(limit("mood", "history")).Get("/mood/history", apiHandler.MoodHistoryHandler)
		})
	})

	return r
}

// RequestLogger logs one line per request with zap.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// CORS allows credentialed cross-origin requests from allowedOrigins and
// answers their preflight requests.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !slices.Contains(allowedOrigins, origin) {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Expose-Headers", "X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", strings.TrimSpace(reqHeaders))
				}
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
