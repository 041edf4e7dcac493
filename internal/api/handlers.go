package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"mchatbot.io/support-backend/internal/auth"
	"mchatbot.io/support-backend/internal/core"
	"mchatbot.io/support-backend/internal/store"
)

const Version = "1.0.0"

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type APIHandler struct {
	users  *core.UserService
	chat   *core.ChatService
	mood   *core.MoodService
	db     Pinger
	logger *zap.Logger
	now    func() time.Time
}

func NewAPIHandler(users *core.UserService, chat *core.ChatService, mood *core.MoodService, db Pinger, logger *zap.Logger) *APIHandler {
	return &APIHandler{users: users, chat: chat, mood: mood, db: db, logger: logger, now: time.Now}
}

type contextKey int

const userContextKey contextKey = iota

// UserFromContext returns the user stored by JWTAuthMiddleware.
func UserFromContext(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(userContextKey).(*store.User)
	return u, ok
}

// requestSubject is the rate-limit subject of r: the authenticated user id
// or zero.
func requestSubject(r *http.Request) int64 {
	if u, ok := UserFromContext(r.Context()); ok {
		return u.ID
	}
	return 0
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			h.writeError(w, http.StatusUnauthorized, "Authorization header is required", "NOT_AUTHENTICATED")
			return
		}

		user, err := h.users.Authenticate(r.Context(), tokenString)
		if err != nil {
			switch {
			case errors.Is(err, core.ErrUserInactive):
				h.writeError(w, http.StatusForbidden, "Account is deactivated", "ACCOUNT_INACTIVE")
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, core.ErrUserNotFound):
				h.writeError(w, http.StatusUnauthorized, "Could not validate credentials", "INVALID_TOKEN")
			default:
				h.logger.Error("failed to authenticate request", zap.Error(err))
				h.writeError(w, http.StatusUnauthorized, "Could not validate credentials", "INVALID_TOKEN")
			}
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ErrorResponse is the body of every non-2xx response except 429.
type ErrorResponse struct {
	Detail    string    `json:"detail"`
	ErrorCode string    `json:"error_code"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, detail, code string) {
	writeJSON(w, status, ErrorResponse{Detail: detail, ErrorCode: code, Timestamp: h.now().UTC()})
}

// writeServiceError maps validation failures to 422 and everything else
// to status with the given code.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, status int, detail, code string) bool {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		h.writeError(w, http.StatusUnprocessableEntity, verr.Error(), "VALIDATION_ERROR")
		return true
	}
	h.writeError(w, status, detail, code)
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, "Invalid request body: "+err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func (h *APIHandler) queryInt(w http.ResponseWriter, r *http.Request, name string, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		h.writeError(w, http.StatusUnprocessableEntity, name+" must be an integer between 1 and "+strconv.Itoa(max), "VALIDATION_ERROR")
		return 0, false
	}
	return n, true
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req core.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.users.Register(r.Context(), req)
	if err != nil {
		if !h.writeServiceError(w, err, http.StatusBadRequest, "Registration failed", "REGISTRATION_FAILED") &&
			!errors.Is(err, core.ErrEmailTaken) {
			h.logger.Error("registration failed", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrUserInactive):
			h.writeError(w, http.StatusForbidden, "Account is deactivated", "ACCOUNT_INACTIVE")
		case errors.Is(err, core.ErrInvalidCredentials):
			h.writeError(w, http.StatusUnauthorized, "Invalid credentials", "INVALID_CREDENTIALS")
		default:
			h.logger.Error("login failed", zap.Error(err))
			h.writeError(w, http.StatusUnauthorized, "Invalid credentials", "INVALID_CREDENTIALS")
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req PostMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	reply, err := h.chat.SendMessage(r.Context(), user.ID, req.Content)
	if err != nil {
		if !h.writeServiceError(w, err, http.StatusInternalServerError, "Failed to process message", "CHAT_ERROR") {
			h.logger.Error("chat message failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *APIHandler) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	limit, ok := h.queryInt(w, r, "limit", core.MaxHistoryLimit)
	if !ok {
		return
	}

	messages, err := h.chat.History(r.Context(), user.ID, limit)
	if err != nil {
		if !h.writeServiceError(w, err, http.StatusInternalServerError, "Failed to retrieve chat history", "HISTORY_ERROR") {
			h.logger.Error("chat history failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

type MoodEntryCreated struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

func (h *APIHandler) MoodEntryHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req core.MoodEntryRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.mood.CreateEntry(r.Context(), user.ID, req)
	if err != nil {
		if !h.writeServiceError(w, err, http.StatusInternalServerError, "Failed to create mood entry", "MOOD_ENTRY_ERROR") {
			h.logger.Error("mood entry failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusCreated, MoodEntryCreated{ID: entry.ID, Message: "Mood entry created successfully"})
}

func (h *APIHandler) MoodAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	days, ok := h.queryInt(w, r, "days", 365)
	if !ok {
		return
	}

	report, err := h.mood.Analytics(r.Context(), user.ID, days)
	if err != nil {
		h.logger.Error("mood analytics failed", zap.Int64("user_id", user.ID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to retrieve mood analytics", "ANALYTICS_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *APIHandler) MoodHistoryHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	days, ok := h.queryInt(w, r, "days", 365)
	if !ok {
		return
	}

	entries, err := h.mood.History(r.Context(), user.ID, days)
	if err != nil {
		h.logger.Error("mood history failed", zap.Int64("user_id", user.ID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to retrieve mood history", "MOOD_HISTORY_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Timestamp: h.now().UTC(), Version: Version}
	status := http.StatusOK
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Warn("health check: database unreachable", zap.Error(err))
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
