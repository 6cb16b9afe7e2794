package magma

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/logging"
)

// Answer is the synthesized response to a memory query.
type Answer struct {
	Text         string     `json:"text"`
	Intent       IntentType `json:"intent"`
	ContextNodes int        `json:"contextNodes"`
	InputTokens  int        `json:"inputTokens,omitempty"`
	OutputTokens int        `json:"outputTokens,omitempty"`
}

// Synthesizer turns a linearized context into a natural-language answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, linearized *LinearizedContext, intent Intent, query string) (*Answer, error)
}

const synthesizerSystemPrompt = `You answer questions using only the retrieved memory context below. Cite the context; if it does not contain the answer, say so plainly. Keep answers short and factual.`

// AnthropicSynthesizer generates answers with a Claude model.
type AnthropicSynthesizer struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *logging.Logger
}

// NewAnthropicSynthesizer creates an LLM-backed synthesizer. The API key
// is read from ANTHROPIC_API_KEY when apiKey is empty.
func NewAnthropicSynthesizer(apiKey, model string, maxTokens int) *AnthropicSynthesizer {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicSynthesizer{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
		logger:    logging.GetLogger("magma.synthesizer"),
	}
}

// Synthesize prompts the model with the linearized context and the
// original query.
func (s *AnthropicSynthesizer) Synthesize(ctx context.Context, linearized *LinearizedContext, intent Intent, query string) (*Answer, error) {
	if linearized == nil || strings.TrimSpace(linearized.Text) == "" {
		return nil, errors.NewValidation("Synthesize", "linearized context must not be empty")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.NewValidation("Synthesize", "query must not be empty")
	}

	prompt := fmt.Sprintf("%s\n\nQuestion: %s", linearized.Text, query)

	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: synthesizerSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, errors.NewBackend("Synthesize", "answer generation failed").Wrap(err)
	}

	var text strings.Builder
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			text.WriteString(resp.Content[i].Text)
		}
	}

	s.logger.Debug("Synthesized answer from %d context nodes (%d output tokens)",
		linearized.NodeCount, resp.Usage.OutputTokens)
	return &Answer{
		Text:         text.String(),
		Intent:       intent.Type,
		ContextNodes: linearized.NodeCount,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}
