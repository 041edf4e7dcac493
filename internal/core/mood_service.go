package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"mchatbot.io/support-backend/internal/mood"
)

type MoodStore interface {
	mood.EntryStore
	CreateMoodEntry(ctx context.Context, e *mood.Entry) error
}

type MoodService struct {
	dbStore    MoodStore
	aggregator *mood.Aggregator
	logger     *zap.Logger
	now        func() time.Time
}

func NewMoodService(db MoodStore, aggregator *mood.Aggregator, logger *zap.Logger) *MoodService {
	return &MoodService{dbStore: db, aggregator: aggregator, logger: logger, now: time.Now}
}

type MoodEntryRequest struct {
	MoodScore    int      `json:"mood_score"`
	Emotions     []string `json:"emotions"`
	Notes        *string  `json:"notes"`
	EnergyLevel  *int     `json:"energy_level"`
	StressLevel  *int     `json:"stress_level"`
	SleepQuality *int     `json:"sleep_quality"`
	Triggers     []string `json:"triggers"`
	Activities   []string `json:"activities"`
	Location     *string  `json:"location"`
}

func (r MoodEntryRequest) validate() error {
	if r.MoodScore < 1 || r.MoodScore > 10 {
		return invalid("mood_score", "must be between 1 and 10")
	}
	levels := []struct {
		field string
		value *int
	}{
		{"energy_level", r.EnergyLevel},
		{"stress_level", r.StressLevel},
		{"sleep_quality", r.SleepQuality},
	}
	for _, l := range levels {
		if l.value != nil && (*l.value < 1 || *l.value > 10) {
			return invalid(l.field, "must be between 1 and 10")
		}
	}
	return nil
}

func (s *MoodService) CreateEntry(ctx context.Context, userID int64, req MoodEntryRequest) (*mood.Entry, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	entry := &mood.Entry{
		UserID:       userID,
		MoodScore:    req.MoodScore,
		Emotions:     cleanLabels(req.Emotions),
		Notes:        trimmedOrNil(req.Notes),
		EnergyLevel:  req.EnergyLevel,
		StressLevel:  req.StressLevel,
		SleepQuality: req.SleepQuality,
		Triggers:     cleanLabels(req.Triggers),
		Activities:   cleanLabels(req.Activities),
		Location:     trimmedOrNil(req.Location),
		Timestamp:    s.now(),
	}
	if err := s.dbStore.CreateMoodEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create mood entry: %w", err)
	}
	s.logger.Debug("mood entry created", zap.Int64("user_id", userID), zap.Int64("entry_id", entry.ID))
	return entry, nil
}

// History returns the user's entries in the trailing window, newest first.
func (s *MoodService) History(ctx context.Context, userID int64, days int) ([]mood.Entry, error) {
	if days <= 0 {
		days = mood.DefaultWindowDays
	}
	entries, err := s.dbStore.MoodEntriesSince(ctx, userID, s.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, fmt.Errorf("failed to get mood history: %w", err)
	}
	return entries, nil
}

func (s *MoodService) Analytics(ctx context.Context, userID int64, days int) (mood.Report, error) {
	return s.aggregator.Report(ctx, userID, days)
}

// cleanLabels lowercases and trims labels, dropping empty ones and
// duplicates. First-seen order is kept.
func cleanLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" && !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}
