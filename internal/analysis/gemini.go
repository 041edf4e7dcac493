package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const (
	DefaultGeminiModel = "gemini-1.5-flash-latest"

	emotionSystemInstruction = "You are an emotion classifier for a mental health support service. " +
		"Given a user message, return a JSON object mapping each of these emotions to a score between 0 and 1: " +
		"joy, sadness, anger, fear, anxiety, disgust, surprise, love, optimism. " +
		"Return only the JSON object, nothing else."
)

// GeminiScorer asks a Gemini model for emotion scores.
type GeminiScorer struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGeminiScorer creates a client for apiKey. requestsPerSecond bounds the
// outgoing call rate; callers wait for a slot or their context to end.
func NewGeminiScorer(ctx context.Context, apiKey, model string, requestsPerSecond float64, logger *zap.Logger) (*GeminiScorer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}

	return &GeminiScorer{
		client:  client,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
	}, nil
}

func (s *GeminiScorer) Name() string { return s.model }

func (s *GeminiScorer) Source() Source { return SourceModel }

func (s *GeminiScorer) Close() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		s.logger.Warn("error closing GenAI client", zap.Error(err))
	} else {
		s.logger.Info("GenAI client closed")
	}
}

func (s *GeminiScorer) Score(ctx context.Context, text string) (map[string]float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("gemini throttle: %w", err)
	}

	model := s.client.GenerativeModel(s.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(emotionSystemInstruction)},
	}
	temp := float32(0)
	model.Temperature = &temp
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini emotion request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var raw strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			raw.WriteString(string(txt))
		}
	}

	return parseEmotionScores(raw.String())
}

// parseEmotionScores decodes a model reply such as {"joy":0.8,"sadness":0.1}.
func parseEmotionScores(payload string) (map[string]float64, error) {
	payload = strings.TrimSpace(payload)
	payload = strings.TrimPrefix(payload, "```json")
	payload = strings.TrimPrefix(payload, "```")
	payload = strings.TrimSuffix(payload, "```")

	var decoded map[string]float64
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode emotion scores: %w", err)
	}
	if len(decoded) == 0 {
		return nil, fmt.Errorf("model returned no emotion scores")
	}

	return decoded, nil
}
