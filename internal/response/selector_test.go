package response

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mchatbot.io/support-backend/internal/analysis"
)

type stubLookup struct {
	strategy *CopingStrategy
	err      error
	panics   bool
	asked    []string
}

func (s *stubLookup) FindCopingStrategy(_ context.Context, emotion string) (*CopingStrategy, error) {
	s.asked = append(s.asked, emotion)
	if s.panics {
		panic("catalog corrupted")
	}
	return s.strategy, s.err
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		name     string
		result   analysis.Result
		expected Tier
	}{
		{"crisis wins over low distress", analysis.Result{CrisisDetected: true, DistressLevel: 0}, Crisis},
		{"0.71 is high distress", analysis.Result{DistressLevel: 0.71}, HighDistress},
		{"0.70 is moderate", analysis.Result{DistressLevel: 0.70}, ModerateSupport},
		{"0.41 is moderate", analysis.Result{DistressLevel: 0.41}, ModerateSupport},
		{"0.40 is conversational", analysis.Result{DistressLevel: 0.40}, Conversational},
		{"zero is conversational", analysis.Result{}, Conversational},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TierFor(tt.result))
		})
	}
}

func TestTierText(t *testing.T) {
	b, err := HighDistress.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "high_distress", string(b))
	assert.Equal(t, "tier(9)", Tier(9).String())

	var parsed Tier
	require.NoError(t, parsed.UnmarshalText([]byte("moderate_support")))
	assert.Equal(t, ModerateSupport, parsed)
	assert.Error(t, parsed.UnmarshalText([]byte("panic")))
}

func TestRespondCrisis(t *testing.T) {
	lookup := &stubLookup{}
	s := NewSelector(lookup, zap.NewNop())
	result := analysis.Result{CrisisDetected: true, DistressLevel: 1, DominantLabel: analysis.LabelCrisis}

	resp := s.Respond(context.Background(), result, "I want to kill myself", ConversationContext{
		Profile: Profile{DisplayName: "Sam"},
	})

	assert.Equal(t, Crisis, resp.Tier)
	assert.True(t, len(resp.Text) > 0)
	assert.Contains(t, resp.Text, "Sam, ")
	for _, hotline := range CrisisHotlines {
		assert.Contains(t, resp.Text, hotline)
	}
	assert.Empty(t, lookup.asked)
}

func TestRespondHighDistress(t *testing.T) {
	result := analysis.Result{DistressLevel: 0.9, DominantLabel: "anxiety"}

	t.Run("embeds matching strategy", func(t *testing.T) {
		lookup := &stubLookup{strategy: &CopingStrategy{Name: "Box Breathing", Instructions: "Inhale for 4."}}
		resp := NewSelector(lookup, zap.NewNop()).Respond(context.Background(), result, "help", ConversationContext{})

		assert.Equal(t, HighDistress, resp.Tier)
		assert.Contains(t, resp.Text, "**Box Breathing**")
		assert.Contains(t, resp.Text, "Inhale for 4.")
		assert.Contains(t, resp.Text, checkInQuestion)
		assert.Equal(t, []string{"anxiety"}, lookup.asked)
		require.NotNil(t, resp.Strategy)
	})

	t.Run("breathing fallback when nothing matches", func(t *testing.T) {
		resp := NewSelector(&stubLookup{}, zap.NewNop()).Respond(context.Background(), result, "help", ConversationContext{})

		assert.Contains(t, resp.Text, "Breathe in slowly for 4 counts")
		assert.Contains(t, resp.Text, "?")
		assert.Nil(t, resp.Strategy)
	})

	t.Run("lookup error yields generic fallback", func(t *testing.T) {
		lookup := &stubLookup{err: errors.New("database is locked")}
		resp := NewSelector(lookup, zap.NewNop()).Respond(context.Background(), result, "help", ConversationContext{})

		assert.Equal(t, HighDistress, resp.Tier)
		assert.Equal(t, FallbackText, resp.Text)
	})

	t.Run("lookup panic yields generic fallback", func(t *testing.T) {
		lookup := &stubLookup{panics: true}
		resp := NewSelector(lookup, zap.NewNop()).Respond(context.Background(), result, "help", ConversationContext{})

		assert.Equal(t, FallbackText, resp.Text)
	})

	t.Run("nil lookup uses breathing fallback", func(t *testing.T) {
		resp := NewSelector(nil, zap.NewNop()).Respond(context.Background(), result, "help", ConversationContext{})
		assert.Contains(t, resp.Text, breathingFallback)
	})
}

func TestRespondModerateSupport(t *testing.T) {
	s := NewSelector(&stubLookup{}, zap.NewNop())

	resp := s.Respond(context.Background(), analysis.Result{DistressLevel: 0.5, DominantLabel: "sadness"}, "meh", ConversationContext{})
	assert.Equal(t, ModerateSupport, resp.Tier)
	assert.Contains(t, resp.Text, empathyOpeners["sadness"])
	assert.Contains(t, resp.Text, reflectivePrompt)

	resp = s.Respond(context.Background(), analysis.Result{DistressLevel: 0.5, DominantLabel: "surprise"}, "meh", ConversationContext{})
	assert.Contains(t, resp.Text, genericEmpathyOpener)
}

func TestRespondConversational(t *testing.T) {
	s := NewSelector(&stubLookup{}, zap.NewNop())
	calm := analysis.Result{DistressLevel: 0}

	tests := []struct {
		message  string
		expected string
	}{
		{"I feel great today!", positiveFollowUp},
		{"Things are getting BETTER", positiveFollowUp},
		{"My job is fine", workLifePrompt},
		{"Saw a friend", relationshipPrompt},
		{"abcd", supportivePool[0]},
		{"abcde", supportivePool[1]},
		{"héllo", supportivePool[1]},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			resp := s.Respond(context.Background(), calm, tt.message, ConversationContext{})
			assert.Equal(t, Conversational, resp.Tier)
			assert.Equal(t, tt.expected, resp.Text)
		})
	}
}
