package analysis

import (
	"context"
	"strings"
)

// Scorer produces a label -> score map for a piece of text.
// Implementations may call out to a model and must honour ctx.
type Scorer interface {
	Name() string
	Source() Source
	Score(ctx context.Context, text string) (map[string]float64, error)
}

var emotionKeywords = map[string][]string{
	"sadness":  {"sad", "depressed", "down", "blue", "miserable", "hopeless", "empty"},
	"anxiety":  {"anxious", "worried", "nervous", "scared", "panic", "afraid", "fearful"},
	"anger":    {"angry", "mad", "furious", "annoyed", "irritated", "frustrated"},
	"joy":      {"happy", "joyful", "excited", "great", "amazing", "wonderful", "good"},
	"fear":     {"terrified", "frightened", "scared", "afraid", "worried", "anxious"},
	"disgust":  {"disgusted", "sick", "revolted", "repulsed"},
	"surprise": {"surprised", "shocked", "amazed", "astonished"},
}

// RuleScorer scores emotions by keyword matching. It never fails.
type RuleScorer struct{}

func NewRuleScorer() *RuleScorer {
	return &RuleScorer{}
}

func (RuleScorer) Name() string { return "keywords" }

func (RuleScorer) Source() Source { return SourceRuleBased }

func (s RuleScorer) Score(_ context.Context, text string) (map[string]float64, error) {
	return s.score(text), nil
}

func (RuleScorer) score(text string) map[string]float64 {
	lower := strings.ToLower(text)
	scores := make(map[string]float64)

	for emotion, keywords := range emotionKeywords {
		matched := 0
		for _, keyword := range keywords {
			if strings.Contains(lower, keyword) {
				matched++
			}
		}
		if matched > 0 {
			scores[emotion] = clamp(float64(matched) / float64(len(keywords)))
		}
	}

	if len(scores) == 0 {
		scores[LabelNeutral] = 1.0
	}
	return scores
}
