package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mchatbot.io/support-backend/internal/mood"
)

const moodColumns = "id, user_id, mood_score, emotions, notes, energy_level, stress_level, sleep_quality, triggers, activities, location, timestamp"

// CreateMoodEntry stores e, stamping it with the current time when its
// Timestamp is zero.
func (s *SQLiteStore) CreateMoodEntry(ctx context.Context, e *mood.Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC()

	emotions, err := encodeList(e.Emotions)
	if err != nil {
		return err
	}
	triggers, err := encodeList(e.Triggers)
	if err != nil {
		return err
	}
	activities, err := encodeList(e.Activities)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO mood_entries (user_id, mood_score, emotions, notes, energy_level, stress_level, sleep_quality, triggers, activities, location, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		e.UserID, e.MoodScore, emotions, e.Notes, e.EnergyLevel, e.StressLevel, e.SleepQuality, triggers, activities, e.Location, e.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert mood entry: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read mood entry id: %w", err)
	}
	return nil
}

// MoodEntriesSince returns the user's entries at or after since, newest first.
func (s *SQLiteStore) MoodEntriesSince(ctx context.Context, userID int64, since time.Time) ([]mood.Entry, error) {
	query := "SELECT " + moodColumns + " FROM mood_entries WHERE user_id = ? AND timestamp >= ? ORDER BY timestamp DESC"
	rows, err := s.db.QueryContext(ctx, query, userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query mood entries: %w", err)
	}
	defer rows.Close()

	entries := []mood.Entry{}
	for rows.Next() {
		var (
			e                              mood.Entry
			emotions, triggers, activities sql.NullString
			notes, location                sql.NullString
			energy, stress, sleep          sql.NullInt64
		)
		err := rows.Scan(&e.ID, &e.UserID, &e.MoodScore, &emotions, &notes, &energy, &stress, &sleep,
			&triggers, &activities, &location, &e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mood entry row: %w", err)
		}
		if e.Emotions, err = decodeList(emotions); err != nil {
			return nil, err
		}
		if e.Triggers, err = decodeList(triggers); err != nil {
			return nil, err
		}
		if e.Activities, err = decodeList(activities); err != nil {
			return nil, err
		}
		e.Notes = nullString(notes)
		e.Location = nullString(location)
		e.EnergyLevel = nullInt(energy)
		e.StressLevel = nullInt(stress)
		e.SleepQuality = nullInt(sleep)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mood entries: %w", err)
	}
	return entries, nil
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to marshal list: %w", err)
	}
	return string(b), nil
}

func decodeList(v sql.NullString) ([]string, error) {
	out := []string{}
	if !v.Valid || v.String == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil, fmt.Errorf("failed to decode list %q: %w", v.String, err)
	}
	return out, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
