package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

const chatColumns = "id, user_id, content, is_user, timestamp, sentiment, emotion_score, detected_emotions, response_type, escalation_triggered"

// CreateChatMessage assigns msg an ID and timestamp and stores it.
func (s *SQLiteStore) CreateChatMessage(ctx context.Context, msg *ChatMessage) error {
	msg.ID = uuid.NewString()
	msg.Timestamp = time.Now().UTC()

	var emotions *string
	if len(msg.DetectedEmotions) > 0 {
		b, err := json.Marshal(msg.DetectedEmotions)
		if err != nil {
			return fmt.Errorf("failed to marshal detected emotions: %w", err)
		}
		encoded := string(b)
		emotions = &encoded
	}

	stmt, err := s.db.PrepareContext(ctx, "INSERT INTO chat_messages ("+chatColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, msg.ID, msg.UserID, msg.Content, msg.IsUser, msg.Timestamp,
		msg.Sentiment, msg.EmotionScore, emotions, msg.ResponseType, msg.EscalationTriggered)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

// RecentChatMessages returns the user's last n messages, oldest first.
func (s *SQLiteStore) RecentChatMessages(ctx context.Context, userID int64, n int) ([]ChatMessage, error) {
	query := "SELECT " + chatColumns + " FROM chat_messages WHERE user_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?"
	rows, err := s.db.QueryContext(ctx, query, userID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		msg, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

func scanChatMessage(rows *sql.Rows) (ChatMessage, error) {
	var (
		msg       ChatMessage
		sentiment sql.NullString
		score     sql.NullFloat64
		emotions  sql.NullString
		respType  sql.NullString
	)
	err := rows.Scan(&msg.ID, &msg.UserID, &msg.Content, &msg.IsUser, &msg.Timestamp,
		&sentiment, &score, &emotions, &respType, &msg.EscalationTriggered)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("failed to scan message row: %w", err)
	}
	if sentiment.Valid {
		msg.Sentiment = &sentiment.String
	}
	if score.Valid {
		msg.EmotionScore = &score.Float64
	}
	if respType.Valid {
		msg.ResponseType = &respType.String
	}
	if emotions.Valid && emotions.String != "" {
		if err := json.Unmarshal([]byte(emotions.String), &msg.DetectedEmotions); err != nil {
			return ChatMessage{}, fmt.Errorf("failed to decode detected emotions for message %s: %w", msg.ID, err)
		}
	}
	return msg, nil
}
