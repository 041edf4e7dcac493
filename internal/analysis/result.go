package analysis

import (
	"math"
	"sort"
)

// Source identifies how a Result was produced.
type Source string

const (
	SourceModel      Source = "model"
	SourceRuleBased  Source = "rule_based"
	SourceCrisisRule Source = "crisis_rule"
	SourceFallback   Source = "fallback"
)

const (
	LabelCrisis  = "crisis"
	LabelNeutral = "neutral"

	// baselineDistress is reported when no polarised emotion was detected.
	baselineDistress = 0.3
)

// Result is the outcome of classifying one utterance.
type Result struct {
	DominantLabel  string             `json:"dominant_emotion"`
	Scores         map[string]float64 `json:"emotions"`
	DistressLevel  float64            `json:"distress_level"`
	CrisisDetected bool               `json:"crisis_detected"`
	Source         Source             `json:"model_used"`
	Confidence     float64            `json:"confidence"`
}

// clone returns a copy whose score map is not shared with the cache.
func (r Result) clone() Result {
	scores := make(map[string]float64, len(r.Scores))
	for k, v := range r.Scores {
		scores[k] = v
	}
	r.Scores = scores
	return r
}

var (
	negativeEmotions = []string{"sadness", "anger", "fear", "anxiety", "disgust"}
	positiveEmotions = []string{"joy", "happiness", "love", "optimism"}
)

func crisisResult() Result {
	return Result{
		DominantLabel:  LabelCrisis,
		Scores:         map[string]float64{LabelCrisis: 1.0},
		DistressLevel:  1.0,
		CrisisDetected: true,
		Source:         SourceCrisisRule,
		Confidence:     0.95,
	}
}

// NeutralFallback is returned whenever classification itself fails.
func NeutralFallback() Result {
	return Result{
		DominantLabel: LabelNeutral,
		Scores:        map[string]float64{LabelNeutral: 1.0},
		DistressLevel: baselineDistress,
		Source:        SourceFallback,
		Confidence:    0.1,
	}
}

// DistressLevel is the share of negative emotional intensity in scores.
func DistressLevel(scores map[string]float64) float64 {
	var negative, positive float64
	for _, label := range negativeEmotions {
		negative += scores[label]
	}
	for _, label := range positiveEmotions {
		positive += scores[label]
	}

	total := negative + positive
	if total == 0 {
		return baselineDistress
	}
	return clamp(negative / total)
}

// Dominant returns the highest scoring label. Ties go to the
// lexicographically smallest label so results are stable across runs.
func Dominant(scores map[string]float64) (string, float64) {
	if len(scores) == 0 {
		return LabelNeutral, 0
	}
	labels := make([]string, 0, len(scores))
	for label := range scores {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	best, bestScore := labels[0], scores[labels[0]]
	for _, label := range labels[1:] {
		if scores[label] > bestScore {
			best, bestScore = label, scores[label]
		}
	}
	return best, bestScore
}

func confidence(source Source, maxScore float64) float64 {
	switch source {
	case SourceModel:
		return min(maxScore*1.2, 1.0)
	case SourceRuleBased:
		return maxScore * 0.7
	case SourceCrisisRule:
		return 0.95
	default:
		return 0.3
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
