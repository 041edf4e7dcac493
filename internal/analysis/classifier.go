package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mchatbot.io/support-backend/internal/cache"
)

const DefaultScorerTimeout = 5 * time.Second

var crisisPhrases = []string{
	"suicide", "kill myself", "end it all", "don't want to live",
	"hurt myself", "self-harm", "ending my life", "suicide plan",
}

// DetectCrisis reports whether text contains self-harm or suicide language.
func DetectCrisis(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range crisisPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Classifier turns raw text into a Result. It never returns an error;
// every failure path degrades to a safe default.
type Classifier struct {
	scorer   Scorer
	rules    *RuleScorer
	cache    *cache.TTL[Result]
	group    singleflight.Group
	timeout  time.Duration
	logger   *zap.Logger
	observer func(Result, bool)
}

type ClassifierOption func(*Classifier)

// WithScorerTimeout bounds how long the primary scorer may run.
func WithScorerTimeout(d time.Duration) ClassifierOption {
	return func(c *Classifier) { c.timeout = d }
}

// WithObserver registers a callback invoked with every result and whether
// it was served from the cache.
func WithObserver(fn func(r Result, cached bool)) ClassifierOption {
	return func(c *Classifier) { c.observer = fn }
}

func NewClassifier(scorer Scorer, resultCache *cache.TTL[Result], logger *zap.Logger, opts ...ClassifierOption) *Classifier {
	if scorer == nil {
		scorer = NewRuleScorer()
	}
	if resultCache == nil {
		resultCache = cache.New[Result]()
	}
	c := &Classifier{
		scorer:  scorer,
		rules:   NewRuleScorer(),
		cache:   resultCache,
		timeout: DefaultScorerTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Classifier) Classify(ctx context.Context, text string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("emotion analysis panicked", zap.Any("panic", r))
			result = NeutralFallback()
		}
	}()

	text = strings.ToValidUTF8(text, "")
	key := cache.Key(cache.KindEmotion, text)

	if DetectCrisis(text) {
		result = crisisResult()
		c.cache.Put(key, result)
		c.observe(result, false)
		return result.clone()
	}

	if cached, ok := c.cache.Get(key); ok {
		c.logger.Debug("emotion analysis cache hit", zap.String("text", preview(text)))
		c.observe(cached, true)
		return cached.clone()
	}

	ch := c.group.DoChan(key, func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("emotion analysis panicked: %v", r)
			}
		}()
		// Detached so an abandoned request does not discard a result
		// other callers, or the cache, can still use.
		r := c.compute(context.WithoutCancel(ctx), text)
		c.cache.Put(key, r)
		return r, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			c.logger.Error("emotion analysis failed", zap.Error(res.Err))
			return NeutralFallback()
		}
		result = res.Val.(Result)
		c.observe(result, false)
		return result.clone()
	case <-ctx.Done():
		return NeutralFallback()
	}
}

func (c *Classifier) compute(ctx context.Context, text string) Result {
	scores, source, err := c.score(ctx, text)
	if err != nil {
		c.logger.Warn("emotion scorer failed, falling back to keyword detection",
			zap.String("scorer", c.scorer.Name()), zap.Error(err))
		scores = c.rules.score(text)
		source = SourceFallback
	}
	if len(scores) == 0 {
		scores = map[string]float64{LabelNeutral: 1.0}
	}

	dominant, maxScore := Dominant(scores)
	return Result{
		DominantLabel:  dominant,
		Scores:         scores,
		DistressLevel:  DistressLevel(scores),
		CrisisDetected: false,
		Source:         source,
		Confidence:     clamp(confidence(source, maxScore)),
	}
}

func (c *Classifier) score(ctx context.Context, text string) (map[string]float64, Source, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	type outcome struct {
		scores map[string]float64
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("scorer panicked: %v", r)}
			}
		}()
		s, err := c.scorer.Score(ctx, text)
		done <- outcome{scores: s, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, "", out.err
		}
		return sanitize(out.scores), c.scorer.Source(), nil
	case <-ctx.Done():
		return nil, "", fmt.Errorf("scorer %s: %w", c.scorer.Name(), ctx.Err())
	}
}

func (c *Classifier) observe(r Result, cached bool) {
	if c.observer != nil {
		c.observer(r, cached)
	}
}

func sanitize(raw map[string]float64) map[string]float64 {
	scores := make(map[string]float64, len(raw))
	for label, score := range raw {
		label = strings.ToLower(strings.TrimSpace(label))
		if label == "" {
			continue
		}
		scores[label] = clamp(score)
	}
	return scores
}

func preview(text string) string {
	r := []rune(text)
	if len(r) > 50 {
		return string(r[:50]) + "..."
	}
	return text
}
