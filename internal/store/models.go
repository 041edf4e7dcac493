package store

import "time"

type User struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	PreferredName *string   `json:"preferred_name"`
	AgeRange      *string   `json:"age_range,omitempty"`
	PasswordHash  string    `json:"-"` // Do not expose this in JSON responses
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// DisplayName is the name replies should address the user by.
func (u *User) DisplayName() string {
	if u.PreferredName != nil && *u.PreferredName != "" {
		return *u.PreferredName
	}
	return u.Name
}

type ChatMessage struct {
	ID                  string             `json:"id"` // UUID
	UserID              int64              `json:"user_id"`
	Content             string             `json:"content"`
	IsUser              bool               `json:"is_user"`
	Timestamp           time.Time          `json:"timestamp"`
	Sentiment           *string            `json:"sentiment,omitempty"`
	EmotionScore        *float64           `json:"emotion_score,omitempty"` // distress level of user messages
	DetectedEmotions    map[string]float64 `json:"detected_emotions,omitempty"`
	ResponseType        *string            `json:"response_type,omitempty"`
	EscalationTriggered bool               `json:"escalation_triggered"`
}
