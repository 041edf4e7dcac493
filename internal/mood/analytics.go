package mood

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	minTrendEntries       = 7
	trendDelta            = 0.5
	minCorrelationPairs   = 4
	volatilityWindow      = 7
	minVolatilityEntries  = 5
	volatilitySpread      = 5
	dominantEmotionShare  = 0.3
	maxRecommendations    = 5
	strongCorrelation     = 0.5
	stressAntiCorrelation = -0.3
)

// Distribution bucket names, lowest first.
var bucketNames = []string{"very_low", "low", "moderate", "good", "excellent"}

var (
	positiveEmotions = []string{"happy", "joyful", "excited", "content", "grateful", "peaceful", "energetic"}
	negativeEmotions = []string{"sad", "angry", "frustrated", "anxious", "worried", "depressed", "irritated", "stressed"}
)

var emotionRecommendations = map[string]string{
	"anxious":  "Try grounding techniques like the 5-4-3-2-1 method when feeling anxious.",
	"sad":      "Engaging in activities you enjoy and connecting with supportive people can help with sadness.",
	"angry":    "Physical activity or journaling might help process angry feelings constructively.",
	"stressed": "Break large tasks into smaller steps and practice saying no to non-essential commitments.",
}

var genericRecommendations = []string{
	"Keep tracking your mood to identify patterns and triggers.",
	"Consider establishing a daily routine that includes activities you enjoy.",
	"Regular check-ins with supportive friends or family can boost your mood.",
}

// Analyze builds a report from entries. It is a pure function of its input.
func Analyze(entries []Entry) Report {
	if len(entries) == 0 {
		return emptyReport()
	}

	sorted := slices.Clone(entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	scores := make([]float64, len(sorted))
	for i, e := range sorted {
		scores[i] = float64(e.MoodScore)
	}

	average := mean(scores)
	trend := TrendOf(scores)
	frequency := emotionFrequency(sorted)
	correlations := correlate(sorted, scores)

	return Report{
		CurrentAverage:   round(average, 2),
		Trend:            trend,
		Distribution:     distribution(sorted),
		EmotionFrequency: frequency,
		Correlations:     correlations,
		Insights:         insights(scores, average, trend, frequency),
		Recommendations:  recommendations(correlations, frequency),
	}
}

// TrendOf compares the mean of the later half of chronologically ordered
// scores with the earlier half. The later half takes the odd entry.
func TrendOf(scores []float64) Trend {
	if len(scores) < minTrendEntries {
		return InsufficientData
	}
	mid := len(scores) / 2
	diff := mean(scores[mid:]) - mean(scores[:mid])
	switch {
	case diff > trendDelta:
		return Improving
	case diff < -trendDelta:
		return Declining
	default:
		return Stable
	}
}

// Pearson returns the correlation coefficient of x and y rounded to three
// decimals, or 0 when the series differ in length, are too short, or either
// is constant.
func Pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return round(r, 3)
}

func distribution(entries []Entry) map[string]int {
	out := make(map[string]int, len(bucketNames))
	for _, name := range bucketNames {
		out[name] = 0
	}
	for _, e := range entries {
		out[bucketFor(e.MoodScore)]++
	}
	return out
}

func bucketFor(score int) string {
	switch {
	case score <= 2:
		return "very_low"
	case score <= 4:
		return "low"
	case score <= 6:
		return "moderate"
	case score <= 8:
		return "good"
	default:
		return "excellent"
	}
}

// emotionFrequency counts the entries each emotion appears in. A label
// repeated within one entry counts once.
func emotionFrequency(entries []Entry) map[string]int {
	out := map[string]int{}
	for _, e := range entries {
		seen := make(map[string]bool, len(e.Emotions))
		for _, emotion := range e.Emotions {
			if seen[emotion] {
				continue
			}
			seen[emotion] = true
			out[emotion]++
		}
	}
	return out
}

func correlate(entries []Entry, scores []float64) map[string]float64 {
	factors := []struct {
		name string
		get  func(Entry) *int
	}{
		{"energy", func(e Entry) *int { return e.EnergyLevel }},
		{"sleep", func(e Entry) *int { return e.SleepQuality }},
		{"stress", func(e Entry) *int { return e.StressLevel }},
	}

	out := map[string]float64{}
	if len(entries) < minCorrelationPairs {
		return out
	}
	for _, f := range factors {
		values := make([]float64, 0, len(entries))
		for _, e := range entries {
			if v := f.get(e); v != nil {
				values = append(values, float64(*v))
			}
		}
		if len(values) != len(scores) {
			continue
		}
		out[f.name] = Pearson(scores, values)
	}
	return out
}

func insights(scores []float64, average float64, trend Trend, frequency map[string]int) []string {
	out := []string{}

	switch trend {
	case Improving:
		out = append(out, "Your mood has been trending upward - great progress!")
	case Declining:
		out = append(out, "Your mood has been declining recently. Consider reaching out for additional support.")
	}

	switch {
	case average >= 7:
		out = append(out, "You're maintaining good overall mood levels.")
	case average <= 4:
		out = append(out, "Your recent mood levels suggest you might benefit from additional coping strategies.")
	}

	recent := scores[max(0, len(scores)-volatilityWindow):]
	if len(recent) >= minVolatilityEntries && slices.Max(recent)-slices.Min(recent) > volatilitySpread {
		out = append(out, "You've experienced significant mood fluctuations recently.")
	}

	total := 0
	for _, n := range frequency {
		total += n
	}
	if emotion, n := mostFrequent(frequency, nil); n > 0 && float64(n) > float64(total)*dominantEmotionShare {
		switch {
		case slices.Contains(negativeEmotions, emotion):
			out = append(out, fmt.Sprintf("You've been experiencing %s frequently. Consider exploring coping strategies for this emotion.", emotion))
		case slices.Contains(positiveEmotions, emotion):
			out = append(out, fmt.Sprintf("You've been feeling %s often - that's wonderful!", emotion))
		}
	}
	return out
}

func recommendations(correlations map[string]float64, frequency map[string]int) []string {
	out := []string{}

	if v, ok := correlations["sleep"]; ok && v > strongCorrelation {
		out = append(out, "Your mood appears to be strongly linked to sleep quality. Prioritizing good sleep hygiene could help improve your overall wellbeing.")
	}
	if v, ok := correlations["energy"]; ok && v > strongCorrelation {
		out = append(out, "Your energy levels seem to correlate with your mood. Regular exercise and proper nutrition might help boost both.")
	}
	if v, ok := correlations["stress"]; ok && v < stressAntiCorrelation {
		out = append(out, "High stress levels appear to negatively impact your mood. Consider stress-reduction techniques like meditation or deep breathing.")
	}

	negative := func(emotion string) bool { return slices.Contains(negativeEmotions, emotion) }
	if emotion, n := mostFrequent(frequency, negative); n > 0 {
		if rec, ok := emotionRecommendations[emotion]; ok {
			out = append(out, rec)
		}
	}

	if len(out) == 0 {
		out = append(out, genericRecommendations...)
	}
	if len(out) > maxRecommendations {
		out = out[:maxRecommendations]
	}
	return out
}

// mostFrequent returns the highest-count emotion accepted by keep (all when
// nil). Equal counts resolve to the lexicographically smallest label.
func mostFrequent(frequency map[string]int, keep func(string) bool) (string, int) {
	labels := make([]string, 0, len(frequency))
	for label := range frequency {
		if keep == nil || keep(label) {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)

	best, bestN := "", 0
	for _, label := range labels {
		if frequency[label] > bestN {
			best, bestN = label, frequency[label]
		}
	}
	return best, bestN
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
