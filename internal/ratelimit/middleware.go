package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Exceeded is the 429 response body.
type Exceeded struct {
	Error             string `json:"error"`
	Endpoint          string `json:"endpoint"`
	Action            string `json:"action"`
	RetryAfter        int    `json:"retry_after"`
	RemainingRequests int    `json:"remaining_requests"`
}

// Middleware limits requests to endpoint/action. subject extracts the
// caller's user id from the request; zero means anonymous.
func (l *Limiter) Middleware(endpoint, action string, subject func(*http.Request) int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := SubjectKey(subject(r), endpoint, action)
			d := l.Admit(r.Context(), key)
			WriteHeaders(w, d)
			if !d.Allowed {
				WriteExceeded(w, key, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WriteHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
}

func WriteExceeded(w http.ResponseWriter, key Key, d Decision) {
	retry := int(d.RetryAfter.Seconds())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(ExceededBody(key, d))
}

func ExceededBody(key Key, d Decision) Exceeded {
	return Exceeded{
		Error:             "Rate limit exceeded",
		Endpoint:          key.Endpoint,
		Action:            key.Action,
		RetryAfter:        int(d.RetryAfter.Seconds()),
		RemainingRequests: d.Remaining,
	}
}
