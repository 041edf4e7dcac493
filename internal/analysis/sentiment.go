package analysis

import (
	"context"
	"math"

	"github.com/jonreiter/govader"
	"go.uber.org/zap"

	"mchatbot.io/support-backend/internal/cache"
)

const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"

	sentimentThreshold = 0.05
	fallbackConfidence = 0.1
	vaderSource        = "vader"
)

// Sentiment is the polarity of an utterance.
type Sentiment struct {
	Label      string  `json:"sentiment"`
	Compound   float64 `json:"compound"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"model_used"`
}

// SentimentAnalyzer assigns a positive/negative/neutral polarity from the
// VADER compound score.
type SentimentAnalyzer struct {
	vader  *govader.SentimentIntensityAnalyzer
	cache  *cache.TTL[Sentiment]
	logger *zap.Logger
}

func NewSentimentAnalyzer(sentimentCache *cache.TTL[Sentiment], logger *zap.Logger) *SentimentAnalyzer {
	if sentimentCache == nil {
		sentimentCache = cache.New[Sentiment]()
	}
	return &SentimentAnalyzer{
		vader:  govader.NewSentimentIntensityAnalyzer(),
		cache:  sentimentCache,
		logger: logger,
	}
}

func (a *SentimentAnalyzer) Analyze(_ context.Context, text string) (result Sentiment) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("sentiment analysis panicked", zap.Any("panic", r))
			result = Sentiment{Label: SentimentNeutral, Confidence: fallbackConfidence, Source: string(SourceFallback)}
		}
	}()

	key := cache.Key(cache.KindSentiment, text)
	if cached, ok := a.cache.Get(key); ok {
		return cached
	}

	compound := round(a.vader.PolarityScores(text).Compound, 4)
	result = Sentiment{
		Label:      SentimentNeutral,
		Compound:   compound,
		Confidence: math.Abs(compound),
		Source:     vaderSource,
	}
	switch {
	case compound >= sentimentThreshold:
		result.Label = SentimentPositive
	case compound <= -sentimentThreshold:
		result.Label = SentimentNegative
	}

	a.cache.Put(key, result)
	return result
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
