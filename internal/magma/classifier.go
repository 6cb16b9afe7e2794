package magma

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/logging"
)

// Classifier turns a raw query into a retrieval intent. The executor is
// policy-free; classification decides depths and the linearization
// strategy.
type Classifier interface {
	Classify(ctx context.Context, query string) (Intent, error)
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, query string) (Intent, error)

func (f ClassifierFunc) Classify(ctx context.Context, query string) (Intent, error) {
	return f(ctx, query)
}

// KeywordClassifier is a deterministic heuristic classifier. It needs no
// external calls and serves as the fallback when the LLM classifier is
// unavailable or misbehaves.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the heuristic classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify picks an intent type by keyword inspection.
func (c *KeywordClassifier) Classify(_ context.Context, query string) (Intent, error) {
	lower := strings.ToLower(query)
	intent := DefaultIntent()
	intent.Confidence = 0.6

	switch {
	case containsAny(lower, "why", "cause", "caused", "reason", "because", "led to"):
		intent.Type = IntentWhy
		intent.DepthHints = DepthHints{Entity: 1, Temporal: 1, Causal: 3}
	case containsAny(lower, "when", "timeline", "history", "before", "after", "during"):
		intent.Type = IntentWhen
		intent.DepthHints = DepthHints{Entity: 1, Temporal: 3, Causal: 1}
	case containsAny(lower, "who", "whom", "whose"):
		intent.Type = IntentWho
		intent.DepthHints = DepthHints{Entity: 3, Temporal: 1, Causal: 1}
	case containsAny(lower, "what is", "what are", "describe", "tell me about"):
		intent.Type = IntentWhat
		intent.DepthHints = DepthHints{Entity: 2, Temporal: 1, Causal: 1}
	}

	return intent, nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

const classifierSystemPrompt = `You classify memory retrieval queries. Respond with a single JSON object:
{"type": "WHY"|"WHEN"|"WHO"|"WHAT"|"EXPLORE", "entities": [strings], "temporalHints": [strings], "depthHints": {"entity": 1-5, "temporal": 1-5, "causal": 1-5}, "confidence": 0.0-1.0}
WHY = cause/effect questions, WHEN = time questions, WHO = people/actors, WHAT = descriptions, EXPLORE = everything else. No prose, JSON only.`

// AnthropicClassifier asks a Claude model for the intent and falls back to
// the keyword heuristic on any failure.
type AnthropicClassifier struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	fallback  *KeywordClassifier
	logger    *logging.Logger
}

// NewAnthropicClassifier creates an LLM-backed classifier. The API key is
// read from ANTHROPIC_API_KEY when apiKey is empty.
func NewAnthropicClassifier(apiKey, model string, maxTokens int) *AnthropicClassifier {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &AnthropicClassifier{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
		fallback:  NewKeywordClassifier(),
		logger:    logging.GetLogger("magma.classifier"),
	}
}

// Classify asks the model and validates its answer against the intent
// schema. Any API or schema failure degrades to the keyword heuristic.
func (c *AnthropicClassifier) Classify(ctx context.Context, query string) (Intent, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: classifierSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(query)),
		},
	})
	if err != nil {
		c.logger.Warn("Intent classification call failed, using keyword fallback: %v", err)
		return c.fallback.Classify(ctx, query)
	}

	var text strings.Builder
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			text.WriteString(resp.Content[i].Text)
		}
	}

	intent, err := parseIntentJSON(text.String())
	if err != nil {
		c.logger.Warn("Intent classification returned unusable output, using keyword fallback: %v", err)
		return c.fallback.Classify(ctx, query)
	}
	return intent, nil
}

// parseIntentJSON extracts and validates the intent object from model
// output, tolerating surrounding prose.
func parseIntentJSON(raw string) (Intent, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Intent{}, errors.NewParse("parseIntentJSON", "no JSON object in classifier output")
	}

	var intent Intent
	if err := json.Unmarshal([]byte(raw[start:end+1]), &intent); err != nil {
		return Intent{}, err
	}

	// Fill gaps the model left before validating.
	defaults := DefaultIntent()
	if intent.DepthHints.Entity == 0 {
		intent.DepthHints.Entity = defaults.DepthHints.Entity
	}
	if intent.DepthHints.Temporal == 0 {
		intent.DepthHints.Temporal = defaults.DepthHints.Temporal
	}
	if intent.DepthHints.Causal == 0 {
		intent.DepthHints.Causal = defaults.DepthHints.Causal
	}
	if intent.Type == "" {
		intent.Type = IntentExplore
	}

	if err := intent.Validate(); err != nil {
		return Intent{}, err
	}
	return intent, nil
}
