package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/nexhire/internal/ai"
	"github.com/spigell/nexhire/internal/secrets"
)

const (
	// Provider is the provider name used in logs and configuration.
	Provider = "gemini"

	jsonMIMEType = "application/json"
)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	chat, err := c.chats.Create(ctx, model, config, history)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// Options configure every request sent to Gemini.
type Options struct {
	// Temperature is left to the model default when nil.
	Temperature *float32
	// DisableSafetyFilters lowers the blocking threshold of all harm
	// categories; résumés regularly trip them with false positives.
	DisableSafetyFilters bool
	MaxOutputTokens      int32
}

// Backend performs single generation attempts against the Gemini API. One
// client is kept per API key.
type Backend struct {
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	clients  map[string]chatCreator
	newChats func(ctx context.Context, apiKey string) (chatCreator, error)
}

// NewBackend creates a Backend for the Gemini API.
func NewBackend(opts Options, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Backend{
		opts:     opts,
		logger:   logger,
		clients:  make(map[string]chatCreator),
		newChats: newGenaiChats,
	}
}

func newGenaiChats(ctx context.Context, apiKey string) (chatCreator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return genaiChats{chats: client.Chats}, nil
}

// Generate implements ai.Backend.
func (b *Backend) Generate(ctx context.Context, attempt ai.Attempt) (string, error) {
	if b == nil {
		return "", errors.New("gemini backend is not initialized")
	}

	if strings.TrimSpace(attempt.Request.User) == "" {
		return "", &ai.AttemptError{Reason: ai.ReasonUnknown, Err: errors.New("prompt must not be empty")}
	}

	chats, err := b.chatsFor(ctx, attempt.Credential)
	if err != nil {
		return "", &ai.AttemptError{Reason: ai.ReasonUnknown, Err: err}
	}

	chat, err := chats.Create(ctx, attempt.Model, b.contentConfig(attempt.Request), nil)
	if err != nil {
		return "", classifyError(fmt.Errorf("create chat: %w", err))
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: attempt.Request.User})
	if err != nil {
		return "", classifyError(fmt.Errorf("generate content: %w", err))
	}

	output := extractText(resp)
	if output == "" {
		return "", &ai.AttemptError{Reason: ai.ReasonUnknown, Err: errors.New("gemini api returned empty response")}
	}

	return output, nil
}

func (b *Backend) chatsFor(ctx context.Context, apiKey string) (chatCreator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if chats, ok := b.clients[apiKey]; ok {
		return chats, nil
	}

	chats, err := b.newChats(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	b.clients[apiKey] = chats
	b.logger.Debug("created gemini client", zap.String("credential", secrets.Fingerprint(apiKey)))

	return chats, nil
}

func (b *Backend) contentConfig(req ai.PromptRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: b.opts.Temperature,
	}

	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	if req.Shape == ai.ShapeJSON {
		cfg.ResponseMIMEType = jsonMIMEType
	}

	if b.opts.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = b.opts.MaxOutputTokens
	}

	if b.opts.DisableSafetyFilters {
		cfg.SafetySettings = relaxedSafetySettings()
	}

	return cfg
}

func relaxedSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}

	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, category := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  category,
			Threshold: genai.HarmBlockThresholdBlockNone,
		})
	}
	return settings
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}
