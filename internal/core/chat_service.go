package core

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"mchatbot.io/support-backend/internal/analysis"
	"mchatbot.io/support-backend/internal/response"
	"mchatbot.io/support-backend/internal/store"
)

const (
	MaxMessageLength    = 1000
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

type ChatStore interface {
	CreateChatMessage(ctx context.Context, msg *store.ChatMessage) error
	RecentChatMessages(ctx context.Context, userID int64, n int) ([]store.ChatMessage, error)
	GetUserByID(ctx context.Context, id int64) (*store.User, error)
}

type ChatService struct {
	dbStore    ChatStore
	classifier *analysis.Classifier
	sentiment  *analysis.SentimentAnalyzer
	selector   *response.Selector
	logger     *zap.Logger
	onReply    func(response.Tier)
}

type ChatOption func(*ChatService)

// WithReplyObserver registers a callback invoked with the tier of every reply.
func WithReplyObserver(fn func(response.Tier)) ChatOption {
	return func(s *ChatService) { s.onReply = fn }
}

func NewChatService(db ChatStore, classifier *analysis.Classifier, sentiment *analysis.SentimentAnalyzer,
	selector *response.Selector, logger *zap.Logger, opts ...ChatOption) *ChatService {
	s := &ChatService{
		dbStore:    db,
		classifier: classifier,
		sentiment:  sentiment,
		selector:   selector,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reply is the assistant's answer to one user message.
type Reply struct {
	ID              string                   `json:"id"`
	Content         string                   `json:"content"`
	IsUser          bool                     `json:"is_user"`
	Timestamp       time.Time                `json:"timestamp"`
	ResponseType    response.Tier            `json:"response_type"`
	EmotionAnalysis analysis.Result          `json:"emotion_analysis"`
	Sentiment       analysis.Sentiment       `json:"sentiment"`
	CopingStrategy  *response.CopingStrategy `json:"coping_strategy,omitempty"`
	EscalationInfo  *EscalationInfo          `json:"escalation_info,omitempty"`
}

type EscalationInfo struct {
	Reason   string   `json:"reason"`
	Hotlines []string `json:"hotlines"`
}

// ValidateMessage trims content and enforces the length limits.
func ValidateMessage(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", invalid("content", "message content cannot be empty")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return "", invalid("content", "message content too long (max %d characters)", MaxMessageLength)
	}
	return content, nil
}

// SendMessage classifies a user message, stores it, and stores and returns
// the tiered reply.
func (s *ChatService) SendMessage(ctx context.Context, userID int64, content string) (*Reply, error) {
	content, err := ValidateMessage(content)
	if err != nil {
		return nil, err
	}

	result := s.classifier.Classify(ctx, content)
	sentiment := s.sentiment.Analyze(ctx, content)

	distress := result.DistressLevel
	userMsg := store.ChatMessage{
		UserID:              userID,
		Content:             content,
		IsUser:              true,
		Sentiment:           &sentiment.Label,
		EmotionScore:        &distress,
		DetectedEmotions:    result.Scores,
		EscalationTriggered: result.CrisisDetected,
	}
	if err := s.dbStore.CreateChatMessage(ctx, &userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	cc, err := s.conversationContext(ctx, userID)
	if err != nil {
		// Replies are still possible without personalisation.
		s.logger.Warn("failed to build conversation context", zap.Int64("user_id", userID), zap.Error(err))
		cc = response.ConversationContext{SubjectID: userID}
	}

	resp := s.selector.Respond(ctx, result, content, cc)
	tier := resp.Tier.String()
	modelMsg := store.ChatMessage{
		UserID:              userID,
		Content:             resp.Text,
		IsUser:              false,
		ResponseType:        &tier,
		EscalationTriggered: resp.Tier == response.Crisis,
	}
	if err := s.dbStore.CreateChatMessage(ctx, &modelMsg); err != nil {
		return nil, fmt.Errorf("failed to store model message: %w", err)
	}

	if result.CrisisDetected {
		s.logger.Warn("crisis language detected", zap.Int64("user_id", userID), zap.String("message_id", userMsg.ID))
	}
	s.logger.Debug("reply generated",
		zap.Int64("user_id", userID),
		zap.Stringer("tier", resp.Tier),
		zap.String("dominant_emotion", result.DominantLabel),
		zap.Float64("distress_level", result.DistressLevel),
		zap.String("source", string(result.Source)))
	if s.onReply != nil {
		s.onReply(resp.Tier)
	}

	reply := &Reply{
		ID:              modelMsg.ID,
		Content:         resp.Text,
		Timestamp:       modelMsg.Timestamp,
		ResponseType:    resp.Tier,
		EmotionAnalysis: result,
		Sentiment:       sentiment,
		CopingStrategy:  resp.Strategy,
	}
	if resp.Tier == response.Crisis {
		reply.EscalationInfo = &EscalationInfo{Reason: "crisis_language", Hotlines: response.CrisisHotlines}
	}
	return reply, nil
}

// History returns up to limit of the user's messages, oldest first. A
// non-positive limit means DefaultHistoryLimit.
func (s *ChatService) History(ctx context.Context, userID int64, limit int) ([]store.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return nil, invalid("limit", "must be at most %d", MaxHistoryLimit)
	}
	messages, err := s.dbStore.RecentChatMessages(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	if messages == nil {
		messages = []store.ChatMessage{}
	}
	return messages, nil
}

func (s *ChatService) conversationContext(ctx context.Context, userID int64) (response.ConversationContext, error) {
	recent, err := s.dbStore.RecentChatMessages(ctx, userID, response.MaxRecentMessages)
	if err != nil {
		return response.ConversationContext{}, err
	}
	user, err := s.dbStore.GetUserByID(ctx, userID)
	if err != nil {
		return response.ConversationContext{}, err
	}

	cc := response.ConversationContext{
		SubjectID:      userID,
		RecentMessages: make([]string, 0, len(recent)),
		SessionLength:  len(recent),
	}
	for _, m := range recent {
		cc.RecentMessages = append(cc.RecentMessages, m.Content)
	}
	if user != nil {
		cc.Profile.DisplayName = user.DisplayName()
		if user.AgeRange != nil {
			cc.Profile.AgeRange = *user.AgeRange
		}
	}
	return cc, nil
}
