package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"mchatbot.io/support-backend/internal/cache"
)

func TestSentimentAnalyzer(t *testing.T) {
	a := NewSentimentAnalyzer(cache.New[Sentiment](), zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		text  string
		label string
	}{
		{"I feel great today!", SentimentPositive},
		{"I'm really happy with how things went", SentimentPositive},
		{"This week has been terrible and I'm so tired", SentimentNegative},
		{"I am not happy", SentimentNegative},
		{"The meeting is at three", SentimentNeutral},
		{"", SentimentNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := a.Analyze(ctx, tt.text)
			assert.Equal(t, tt.label, got.Label)
			assert.GreaterOrEqual(t, got.Compound, -1.0)
			assert.LessOrEqual(t, got.Compound, 1.0)
			assert.InDelta(t, abs(got.Compound), got.Confidence, 1e-9)
		})
	}
}

func TestSentimentIntensifier(t *testing.T) {
	a := NewSentimentAnalyzer(cache.New[Sentiment](), zap.NewNop())
	plain := a.Analyze(context.Background(), "I am happy")
	boosted := a.Analyze(context.Background(), "I am very happy")
	assert.Greater(t, boosted.Compound, plain.Compound)
	assert.Equal(t, vaderSource, boosted.Source)
}

func TestSentimentUsesOwnCacheKind(t *testing.T) {
	sentiments := cache.New[Sentiment]()
	a := NewSentimentAnalyzer(sentiments, zap.NewNop())

	a.Analyze(context.Background(), "good day")

	_, ok := sentiments.Get(cache.Key(cache.KindSentiment, "good day"))
	assert.True(t, ok)
	_, ok = sentiments.Get(cache.Key(cache.KindEmotion, "good day"))
	assert.False(t, ok)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
