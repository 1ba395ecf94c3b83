// Package ai implements the AI responder adapter over Google's Gemini API.
// It forwards free-text messages to the completion service and returns
// generated text; each call is stateless, keyed by a conversation session
// identifier the provider may use for its own context handling.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/caixaflow/caixabot/internal/config"
)

// ErrUpstream indicates a provider failure. Callers must have a non-AI
// fallback reply ready; this error never reaches the conversation.
var ErrUpstream = errors.New("ai: upstream completion failure")

// Completion is the result of a single completion call.
type Completion struct {
	Text       string
	TokensUsed int32
}

// Responder is the contract the reply pipeline uses for AI-generated replies.
type Responder interface {
	Complete(ctx context.Context, sessionID, userText string, contextTags []string) (Completion, error)
}

type geminiResponder struct {
	client      *genai.Client
	log         *slog.Logger
	model       string
	system      string
	temperature float32
	maxRetries  int
	retryDelay  time.Duration
	timeout     time.Duration
}

// NewResponder creates a Gemini-backed responder. Model and system prompt come
// from the bot settings so an administrative settings replace can swap them.
func NewResponder(ctx context.Context, cfg config.AIConfig, reply config.AIReplyConfig, log *slog.Logger) (Responder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ai API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logger := log.With("component", "ai_responder")
	logger.Info("AI responder initialized", "model", reply.Model)

	return &geminiResponder{
		client:      client,
		log:         logger,
		model:       reply.Model,
		system:      reply.SystemPrompt,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		timeout:     cfg.Timeout,
	}, nil
}

// Complete forwards userText to the completion service. Transient provider
// failures are retried a bounded number of times before ErrUpstream is
// returned.
func (r *geminiResponder) Complete(ctx context.Context, sessionID, userText string, contextTags []string) (Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		Temperature: &r.temperature,
	}
	if r.system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: r.system}}}
	}

	prompt := userText
	if len(contextTags) > 0 {
		prompt = fmt.Sprintf("[context: %s]\n%s", strings.Join(contextTags, ", "), userText)
	}

	contents := []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{{Text: prompt}}},
	}

	var resp *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		resp, err = r.client.Models.GenerateContent(ctx, r.model, contents, cfg)
		if err == nil {
			break
		}

		r.log.WarnContext(ctx, "Completion call failed",
			"session_id", sessionID, "attempt", attempt+1, "max_retries", r.maxRetries, "error", err)

		if attempt == r.maxRetries || ctx.Err() != nil {
			return Completion{}, fmt.Errorf("%w: %v", ErrUpstream, err)
		}

		select {
		case <-time.After(r.retryDelay):
		case <-ctx.Done():
			return Completion{}, fmt.Errorf("%w: %v", ErrUpstream, ctx.Err())
		}
	}

	text, err := extractText(resp)
	if err != nil {
		return Completion{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	out := Completion{Text: text}
	if resp.UsageMetadata != nil {
		out.TokensUsed = resp.UsageMetadata.TotalTokenCount
	}

	r.log.DebugContext(ctx, "Completion generated",
		"session_id", sessionID, "tokens_used", out.TokensUsed)
	return out, nil
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty completion response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("completion response has no content parts")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("completion response text is empty")
	}
	return text, nil
}
