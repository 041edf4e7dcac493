package mood

import (
	"context"
	"time"
)

type Entry struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	MoodScore    int       `json:"mood_score"`
	Emotions     []string  `json:"emotions"`
	Notes        *string   `json:"notes"`
	EnergyLevel  *int      `json:"energy_level"`
	StressLevel  *int      `json:"stress_level"`
	SleepQuality *int      `json:"sleep_quality"`
	Triggers     []string  `json:"triggers"`
	Activities   []string  `json:"activities"`
	Location     *string   `json:"location"`
	Timestamp    time.Time `json:"timestamp"`
}

// EntryStore is the read path for analytics. Ordering of the returned
// entries is not significant.
type EntryStore interface {
	MoodEntriesSince(ctx context.Context, userID int64, since time.Time) ([]Entry, error)
}

type Trend string

const (
	Improving        Trend = "improving"
	Stable           Trend = "stable"
	Declining        Trend = "declining"
	InsufficientData Trend = "insufficient_data"
)

type Report struct {
	CurrentAverage   float64            `json:"current_average"`
	Trend            Trend              `json:"trend"`
	Distribution     map[string]int     `json:"mood_distribution"`
	EmotionFrequency map[string]int     `json:"emotion_frequency"`
	Correlations     map[string]float64 `json:"correlations"`
	Insights         []string           `json:"insights"`
	Recommendations  []string           `json:"recommendations"`
}

func emptyReport() Report {
	return Report{
		Trend:            InsufficientData,
		Distribution:     map[string]int{},
		EmotionFrequency: map[string]int{},
		Correlations:     map[string]float64{},
		Insights:         []string{},
		Recommendations:  []string{},
	}
}
