package response

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"mchatbot.io/support-backend/internal/analysis"
)

// CopingStrategy is a technique offered to users in high distress.
type CopingStrategy struct {
	ID              int64    `json:"id" yaml:"-"`
	Name            string   `json:"name" yaml:"name"`
	Category        string   `json:"category" yaml:"category"`
	Description     string   `json:"description" yaml:"description"`
	Instructions    string   `json:"instructions" yaml:"instructions"`
	DurationMinutes int      `json:"duration_minutes" yaml:"duration_minutes"`
	Difficulty      string   `json:"difficulty_level" yaml:"difficulty_level"`
	Emotions        []string `json:"effectiveness_emotions" yaml:"effectiveness_emotions"`
}

// CopingStrategyLookup finds a strategy applicable to emotion.
// A nil strategy with a nil error means nothing matched.
type CopingStrategyLookup interface {
	FindCopingStrategy(ctx context.Context, emotion string) (*CopingStrategy, error)
}

// Profile is the part of the user record used for personalisation.
type Profile struct {
	DisplayName string `json:"display_name"`
	AgeRange    string `json:"age_range,omitempty"`
}

// ConversationContext is rebuilt per request from persisted history.
type ConversationContext struct {
	SubjectID      int64    `json:"subject_id"`
	RecentMessages []string `json:"recent_messages"`
	Profile        Profile  `json:"profile"`
	SessionLength  int      `json:"session_length"`
}

// MaxRecentMessages bounds ConversationContext.RecentMessages.
const MaxRecentMessages = 10

// Response is what the selector hands back to the chat service.
type Response struct {
	Tier     Tier            `json:"response_type"`
	Text     string          `json:"content"`
	Strategy *CopingStrategy `json:"coping_strategy,omitempty"`
}

// Selector builds the reply for a classified message.
type Selector struct {
	strategies CopingStrategyLookup
	logger     *zap.Logger
}

func NewSelector(strategies CopingStrategyLookup, logger *zap.Logger) *Selector {
	return &Selector{strategies: strategies, logger: logger}
}

// Respond never fails: lookup errors and panics yield FallbackText.
func (s *Selector) Respond(ctx context.Context, result analysis.Result, message string, cc ConversationContext) (resp Response) {
	tier := TierFor(result)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("response generation panicked", zap.Any("panic", r), zap.Stringer("tier", tier))
			resp = Response{Tier: tier, Text: FallbackText}
		}
	}()

	name := namePrefix(cc.Profile)
	switch tier {
	case Crisis:
		return Response{Tier: tier, Text: name + crisisText}
	case HighDistress:
		return s.highDistress(ctx, name, result.DominantLabel)
	case ModerateSupport:
		return Response{Tier: tier, Text: moderateSupport(name, result.DominantLabel)}
	default:
		return Response{Tier: tier, Text: conversational(message)}
	}
}

func (s *Selector) highDistress(ctx context.Context, name, emotion string) Response {
	base := name + highDistressOpener

	var strategy *CopingStrategy
	if s.strategies != nil {
		var err error
		strategy, err = s.strategies.FindCopingStrategy(ctx, emotion)
		if err != nil {
			s.logger.Error("coping strategy lookup failed", zap.String("emotion", emotion), zap.Error(err))
			return Response{Tier: HighDistress, Text: FallbackText}
		}
	}

	if strategy == nil {
		return Response{Tier: HighDistress, Text: base + "\n\n" + breathingFallback}
	}

	text := fmt.Sprintf("%s\n\n%s\n\n**%s**\n%s\n\nThis technique is particularly helpful for %s. %s\n\n%s",
		base, strategyIntro, strategy.Name, strategy.Instructions, emotion, strategyReassurance, checkInQuestion)
	return Response{Tier: HighDistress, Text: text, Strategy: strategy}
}

func moderateSupport(name, emotion string) string {
	opener, ok := empathyOpeners[emotion]
	if !ok {
		opener = genericEmpathyOpener
	}
	return name + opener + "\n\n" + reflectivePrompt
}

func conversational(message string) string {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "good", "better", "great"):
		return positiveFollowUp
	case containsAny(lower, "work", "job"):
		return workLifePrompt
	case containsAny(lower, "family", "friend"):
		return relationshipPrompt
	default:
		return supportivePool[utf8.RuneCountInString(message)%len(supportivePool)]
	}
}

func namePrefix(p Profile) string {
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		return ""
	}
	return name + ", "
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
