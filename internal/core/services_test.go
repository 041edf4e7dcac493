package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mchatbot.io/support-backend/internal/analysis"
	"mchatbot.io/support-backend/internal/auth"
	"mchatbot.io/support-backend/internal/cache"
	"mchatbot.io/support-backend/internal/mood"
	"mchatbot.io/support-backend/internal/response"
	"mchatbot.io/support-backend/internal/store"
)

type fixedScorer map[string]float64

func (fixedScorer) Name() string            { return "fixed" }
func (fixedScorer) Source() analysis.Source { return analysis.SourceModel }

func (f fixedScorer) Score(context.Context, string) (map[string]float64, error) {
	out := make(map[string]float64, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out, nil
}

type services struct {
	db    *store.SQLiteStore
	users *UserService
	chat  *ChatService
	mood  *MoodService
}

func newServices(t *testing.T, scorer analysis.Scorer) services {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.SeedDefaultStrategies(context.Background())
	require.NoError(t, err)

	logger := zap.NewNop()
	classifier := analysis.NewClassifier(scorer, cache.New[analysis.Result](), logger)
	sentiment := analysis.NewSentimentAnalyzer(cache.New[analysis.Sentiment](), logger)
	selector := response.NewSelector(db, logger)

	return services{
		db:    db,
		users: NewUserService(db, auth.NewTokenIssuer("test-secret", time.Hour), logger),
		chat:  NewChatService(db, classifier, sentiment, selector, logger),
		mood:  NewMoodService(db, mood.NewAggregator(db, logger), logger),
	}
}

func register(t *testing.T, s services, email string) *store.User {
	t.Helper()
	u, err := s.users.Register(context.Background(), RegisterRequest{Email: email, Name: "Jordan", Password: "password123"})
	require.NoError(t, err)
	return u
}

func TestRegisterAndLogin(t *testing.T) {
	s := newServices(t, analysis.NewRuleScorer())
	ctx := context.Background()
	preferred := "  Jo "

	u, err := s.users.Register(ctx, RegisterRequest{
		Email:         "Jordan@Example.com",
		Name:          " Jordan ",
		Password:      "password123",
		PreferredName: &preferred,
	})
	require.NoError(t, err)
	assert.Equal(t, "jordan@example.com", u.Email)
	assert.Equal(t, "Jordan", u.Name)
	assert.Equal(t, "Jo", u.DisplayName())

	_, err = s.users.Register(ctx, RegisterRequest{Email: "jordan@example.com", Name: "Jordan", Password: "password123"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	res, err := s.users.Login(ctx, "JORDAN@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "bearer", res.TokenType)

	authed, err := s.users.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, authed.ID)

	_, err = s.users.Login(ctx, "jordan@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.users.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, s.db.SetUserActive(ctx, u.ID, false))
	_, err = s.users.Login(ctx, "jordan@example.com", "password123")
	assert.ErrorIs(t, err, ErrUserInactive)
	_, err = s.users.Authenticate(ctx, res.AccessToken)
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestRegisterValidation(t *testing.T) {
	s := newServices(t, analysis.NewRuleScorer())

	tests := []struct {
		name  string
		req   RegisterRequest
		field string
	}{
		{"bad email", RegisterRequest{Email: "not-an-email", Name: "Jordan", Password: "password123"}, "email"},
		{"display name email", RegisterRequest{Email: "Jo <jo@example.com>", Name: "Jordan", Password: "password123"}, "email"},
		{"short name", RegisterRequest{Email: "a@example.com", Name: " J ", Password: "password123"}, "name"},
		{"short password", RegisterRequest{Email: "a@example.com", Name: "Jordan", Password: "short"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.users.Register(context.Background(), tt.req)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSendMessageCrisis(t *testing.T) {
	s := newServices(t, fixedScorer{"joy": 1})
	u := register(t, s, "crisis@example.com")

	reply, err := s.chat.SendMessage(context.Background(), u.ID, "  I want to kill myself  ")
	require.NoError(t, err)

	assert.Equal(t, response.Crisis, reply.ResponseType)
	assert.True(t, reply.EmotionAnalysis.CrisisDetected)
	assert.Contains(t, reply.Content, "988")
	assert.True(t, strings.HasPrefix(reply.Content, "Jordan, "))
	require.NotNil(t, reply.EscalationInfo)

	history, err := s.chat.History(context.Background(), u.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].IsUser)
	assert.Equal(t, "I want to kill myself", history[0].Content)
	assert.True(t, history[0].EscalationTriggered)
	assert.Equal(t, 1.0, *history[0].EmotionScore)
	assert.False(t, history[1].IsUser)
	assert.Equal(t, "crisis", *history[1].ResponseType)

	history, err = s.chat.History(context.Background(), u.ID, MaxHistoryLimit)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = s.chat.History(context.Background(), u.ID, MaxHistoryLimit+1)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "limit", verr.Field)
}

func TestSendMessageConversational(t *testing.T) {
	s := newServices(t, fixedScorer{"joy": 0.9})
	u := register(t, s, "happy@example.com")

	reply, err := s.chat.SendMessage(context.Background(), u.ID, "I feel great today!")
	require.NoError(t, err)

	assert.Equal(t, response.Conversational, reply.ResponseType)
	assert.InDelta(t, 0.0, reply.EmotionAnalysis.DistressLevel, 1e-9)
	assert.Contains(t, reply.Content, "I'm so glad to hear that!")
	assert.Equal(t, analysis.SentimentPositive, reply.Sentiment.Label)
	assert.Nil(t, reply.EscalationInfo)
}

func TestSendMessageHighDistressOffersStrategy(t *testing.T) {
	s := newServices(t, fixedScorer{"anxiety": 0.9, "joy": 0.1})
	u := register(t, s, "anxious@example.com")

	var tiers []response.Tier
	s.chat.onReply = func(tier response.Tier) { tiers = append(tiers, tier) }

	reply, err := s.chat.SendMessage(context.Background(), u.ID, "Everything is spinning out of control")
	require.NoError(t, err)

	assert.Equal(t, response.HighDistress, reply.ResponseType)
	require.NotNil(t, reply.CopingStrategy)
	assert.Equal(t, "4-7-8 Breathing", reply.CopingStrategy.Name)
	assert.Contains(t, reply.Content, "**4-7-8 Breathing**")
	assert.Equal(t, []response.Tier{response.HighDistress}, tiers)
}

func TestSendMessageValidation(t *testing.T) {
	s := newServices(t, analysis.NewRuleScorer())
	u := register(t, s, "valid@example.com")

	_, err := s.chat.SendMessage(context.Background(), u.ID, "   ")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	_, err = s.chat.SendMessage(context.Background(), u.ID, strings.Repeat("a", MaxMessageLength+1))
	require.True(t, errors.As(err, &verr))

	_, err = s.chat.SendMessage(context.Background(), u.ID, strings.Repeat("é", MaxMessageLength))
	assert.NoError(t, err, "length is counted in characters")
}

func TestMoodService(t *testing.T) {
	s := newServices(t, analysis.NewRuleScorer())
	u := register(t, s, "mood@example.com")
	ctx := context.Background()

	scores := []int{2, 2, 2, 8, 8, 8, 8}
	start := time.Now().Add(-time.Duration(len(scores)) * time.Hour)
	for i, score := range scores {
		at := start.Add(time.Duration(i) * time.Hour)
		s.mood.now = func() time.Time { return at }
		_, err := s.mood.CreateEntry(ctx, u.ID, MoodEntryRequest{MoodScore: score, Emotions: []string{" Happy "}})
		require.NoError(t, err)
	}
	s.mood.now = time.Now

	history, err := s.mood.History(ctx, u.ID, 30)
	require.NoError(t, err)
	require.Len(t, history, 7)
	assert.Equal(t, []string{"happy"}, history[0].Emotions)

	report, err := s.mood.Analytics(ctx, u.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, mood.Improving, report.Trend)
	assert.Equal(t, 7, report.EmotionFrequency["happy"])

	_, err = s.mood.CreateEntry(ctx, u.ID, MoodEntryRequest{MoodScore: 0})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "mood_score", verr.Field)

	bad := 11
	_, err = s.mood.CreateEntry(ctx, u.ID, MoodEntryRequest{MoodScore: 5, SleepQuality: &bad})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "sleep_quality", verr.Field)
}

func TestMoodEntryLabelsAreASet(t *testing.T) {
	s := newServices(t, analysis.NewRuleScorer())
	u := register(t, s, "labels@example.com")
	ctx := context.Background()

	entry, err := s.mood.CreateEntry(ctx, u.ID, MoodEntryRequest{
		MoodScore: 5,
		Emotions:  []string{"sad", "Sad", " sad ", "", "tired"},
		Triggers:  []string{"Work", "work"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sad", "tired"}, entry.Emotions)
	assert.Equal(t, []string{"work"}, entry.Triggers)

	_, err = s.mood.CreateEntry(ctx, u.ID, MoodEntryRequest{MoodScore: 5, Emotions: []string{"happy", "content"}})
	require.NoError(t, err)

	report, err := s.mood.Analytics(ctx, u.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"sad": 1, "tired": 1, "happy": 1, "content": 1}, report.EmotionFrequency)
}
