package analysis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mchatbot.io/support-backend/internal/cache"
)

type stubScorer struct {
	scores map[string]float64
	err    error
	delay  time.Duration
	panics bool
	calls  atomic.Int32
}

func (s *stubScorer) Name() string   { return "stub" }
func (s *stubScorer) Source() Source { return SourceModel }

func (s *stubScorer) Score(ctx context.Context, _ string) (map[string]float64, error) {
	s.calls.Add(1)
	if s.panics {
		panic("model exploded")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]float64, len(s.scores))
	for k, v := range s.scores {
		out[k] = v
	}
	return out, nil
}

func newTestClassifier(scorer Scorer, opts ...ClassifierOption) *Classifier {
	return NewClassifier(scorer, cache.New[Result](), zap.NewNop(), opts...)
}

func TestClassifierCrisis(t *testing.T) {
	tests := []string{
		"I want to end it all",
		"I want to kill myself",
		"Sometimes I think about SUICIDE but I'm happy today",
		"I've been thinking about self-harm",
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			scorer := &stubScorer{scores: map[string]float64{"joy": 1}}
			c := newTestClassifier(scorer)

			r := c.Classify(context.Background(), text)

			assert.True(t, r.CrisisDetected)
			assert.Equal(t, 1.0, r.DistressLevel)
			assert.Equal(t, LabelCrisis, r.DominantLabel)
			assert.Equal(t, SourceCrisisRule, r.Source)
			assert.Equal(t, 0.95, r.Confidence)
			assert.Zero(t, scorer.calls.Load(), "crisis must short-circuit scoring")
		})
	}
}

func TestClassifierCrisisCheckedBeforeCache(t *testing.T) {
	resultCache := cache.New[Result]()
	text := "I want to end it all"
	resultCache.Put(cache.Key(cache.KindEmotion, text), Result{DominantLabel: "joy", DistressLevel: 0})

	c := NewClassifier(NewRuleScorer(), resultCache, zap.NewNop())
	r := c.Classify(context.Background(), text)

	assert.True(t, r.CrisisDetected)
	cached, ok := resultCache.Get(cache.Key(cache.KindEmotion, text))
	require.True(t, ok)
	assert.True(t, cached.CrisisDetected)
}

func TestClassifierRuleBased(t *testing.T) {
	c := newTestClassifier(NewRuleScorer())

	t.Run("no keywords yields neutral", func(t *testing.T) {
		r := c.Classify(context.Background(), "The train leaves at noon")
		assert.Equal(t, LabelNeutral, r.DominantLabel)
		assert.Equal(t, 0.3, r.DistressLevel)
		assert.Equal(t, SourceRuleBased, r.Source)
		assert.InDelta(t, 0.7, r.Confidence, 1e-9)
		assert.False(t, r.CrisisDetected)
	})

	t.Run("negative keywords yield full distress", func(t *testing.T) {
		r := c.Classify(context.Background(), "I feel sad and hopeless")
		assert.Equal(t, "sadness", r.DominantLabel)
		assert.InDelta(t, 2.0/7.0, r.Scores["sadness"], 1e-9)
		assert.Equal(t, 1.0, r.DistressLevel)
		assert.InDelta(t, 2.0/7.0*0.7, r.Confidence, 1e-9)
	})
}

func TestClassifierModelScores(t *testing.T) {
	scorer := &stubScorer{scores: map[string]float64{"joy": 0.9}}
	c := newTestClassifier(scorer)

	r := c.Classify(context.Background(), "I feel great today!")

	assert.Equal(t, "joy", r.DominantLabel)
	assert.Equal(t, 0.0, r.DistressLevel)
	assert.Equal(t, SourceModel, r.Source)
	assert.InDelta(t, 1.0, r.Confidence, 1e-9)
}

func TestClassifierCachesResults(t *testing.T) {
	scorer := &stubScorer{scores: map[string]float64{"sadness": 0.6, "joy": 0.2}}
	c := newTestClassifier(scorer)

	first := c.Classify(context.Background(), "Rough week")
	second := c.Classify(context.Background(), "  ROUGH WEEK ")

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), scorer.calls.Load())

	second.Scores["sadness"] = 0
	third := c.Classify(context.Background(), "rough week")
	assert.Equal(t, 0.6, third.Scores["sadness"], "callers must not mutate cached results")
}

func TestClassifierCollapsesConcurrentMisses(t *testing.T) {
	scorer := &stubScorer{scores: map[string]float64{"anger": 0.8}, delay: 50 * time.Millisecond}
	c := newTestClassifier(scorer)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := c.Classify(context.Background(), "so frustrating")
			assert.Equal(t, "anger", r.DominantLabel)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), scorer.calls.Load())
}

func TestClassifierScorerFailures(t *testing.T) {
	tests := []struct {
		name   string
		scorer *stubScorer
		opts   []ClassifierOption
	}{
		{name: "error", scorer: &stubScorer{err: errors.New("quota exceeded")}},
		{name: "panic", scorer: &stubScorer{panics: true}},
		{
			name:   "timeout",
			scorer: &stubScorer{scores: map[string]float64{"joy": 1}, delay: time.Second},
			opts:   []ClassifierOption{WithScorerTimeout(20 * time.Millisecond)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(tt.scorer, tt.opts...)

			r := c.Classify(context.Background(), "I am so worried and nervous")

			assert.Equal(t, SourceFallback, r.Source)
			assert.Equal(t, 0.3, r.Confidence)
			assert.Equal(t, "anxiety", r.DominantLabel)
			assert.Equal(t, 1.0, r.DistressLevel)
		})
	}
}

func TestClassifierCancelledCallerStillCaches(t *testing.T) {
	scorer := &stubScorer{scores: map[string]float64{"fear": 0.7}, delay: 50 * time.Millisecond}
	resultCache := cache.New[Result]()
	c := NewClassifier(scorer, resultCache, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := c.Classify(ctx, "dark alley")
	assert.Equal(t, SourceFallback, r.Source)

	require.Eventually(t, func() bool {
		_, ok := resultCache.Get(cache.Key(cache.KindEmotion, "dark alley"))
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestDistressLevel(t *testing.T) {
	t.Run("no polarised emotion gives baseline", func(t *testing.T) {
		assert.Equal(t, 0.3, DistressLevel(map[string]float64{"surprise": 0.9}))
		assert.Equal(t, 0.3, DistressLevel(nil))
	})

	t.Run("ratio of negative to total", func(t *testing.T) {
		got := DistressLevel(map[string]float64{"sadness": 0.3, "anger": 0.3, "joy": 0.4})
		assert.InDelta(t, 0.6, got, 1e-9)
	})

	t.Run("increasing a negative score never lowers distress", func(t *testing.T) {
		base := map[string]float64{"sadness": 0.1, "fear": 0.2, "joy": 0.5, "love": 0.3}
		prev := DistressLevel(base)
		for _, label := range negativeEmotions {
			for step := 0.0; step <= 1.0; step += 0.1 {
				scores := map[string]float64{}
				for k, v := range base {
					scores[k] = v
				}
				scores[label] += step
				got := DistressLevel(scores)
				assert.GreaterOrEqual(t, got, prev-1e-12)
				assert.LessOrEqual(t, got, 1.0)
			}
		}
	})
}

func TestDominantTieBreak(t *testing.T) {
	label, score := Dominant(map[string]float64{"sadness": 0.5, "anger": 0.5, "joy": 0.2})
	assert.Equal(t, "anger", label)
	assert.Equal(t, 0.5, score)

	label, _ = Dominant(nil)
	assert.Equal(t, LabelNeutral, label)
}

func TestParseEmotionScores(t *testing.T) {
	scores, err := parseEmotionScores("```json\n{\"Joy\": 0.8, \"sadness\": 0.1}\n```")
	require.NoError(t, err)
	assert.Equal(t, 0.8, scores["Joy"])

	_, err = parseEmotionScores("not json")
	assert.Error(t, err)

	_, err = parseEmotionScores("{}")
	assert.Error(t, err)
}

func TestSanitizeScores(t *testing.T) {
	got := sanitize(map[string]float64{" Joy ": 1.7, "fear": -0.2, "": 0.4})
	assert.Equal(t, map[string]float64{"joy": 1, "fear": 0}, got)
}
