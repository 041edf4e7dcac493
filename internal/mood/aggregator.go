package mood

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultWindowDays is used when a caller asks for a non-positive window.
const DefaultWindowDays = 30

type Aggregator struct {
	store  EntryStore
	logger *zap.Logger
	now    func() time.Time
}

type AggregatorOption func(*Aggregator)

func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

func NewAggregator(store EntryStore, logger *zap.Logger, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Report analyses the subject's entries in the trailing days-day window.
func (a *Aggregator) Report(ctx context.Context, subjectID int64, days int) (Report, error) {
	if days <= 0 {
		days = DefaultWindowDays
	}
	since := a.now().AddDate(0, 0, -days)

	entries, err := a.store.MoodEntriesSince(ctx, subjectID, since)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load mood entries: %w", err)
	}

	report := Analyze(entries)
	a.logger.Debug("mood report built",
		zap.Int64("user_id", subjectID),
		zap.Int("days", days),
		zap.Int("entries", len(entries)),
		zap.String("trend", string(report.Trend)))
	return report, nil
}
