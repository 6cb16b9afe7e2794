package embedding

import (
	"context"

	"google.golang.org/genai"
)

// DefaultGenAIModel is the default Gemini embeddings model.
const DefaultGenAIModel = "gemini-embedding-001"

var _ Provider = (*GenAIProvider)(nil)

// GenAIProvider implements Provider using Google's Gemini API.
type GenAIProvider struct {
	client   *genai.Client
	model    string
	taskType string
}

// NewGenAIProvider constructs a Gemini embeddings provider. An empty model
// selects DefaultGenAIModel; an empty taskType selects semantic similarity.
func NewGenAIProvider(ctx context.Context, apiKey, model, taskType string) (*GenAIProvider, error) {
	if apiKey == "" {
		return nil, NewProviderError(CodeConfig, "genai embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultGenAIModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, &ProviderError{Code: CodeConfig, Message: "failed to create GenAI client", Err: err}
	}

	switch taskType {
	case "SEMANTIC_SIMILARITY", "RETRIEVAL_DOCUMENT", "RETRIEVAL_QUERY", "CLUSTERING":
	default:
		taskType = "SEMANTIC_SIMILARITY"
	}

	return &GenAIProvider{
		client:   client,
		model:    model,
		taskType: taskType,
	}, nil
}

// Embed implements Provider.
func (p *GenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := p.client.Models.EmbedContent(ctx,
		p.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: p.taskType,
		},
	)
	if err != nil {
		return nil, &ProviderError{Code: CodeServer, Message: "genai embed failed", Err: err}
	}
	if len(result.Embeddings) == 0 {
		return nil, NewProviderError(CodeServer, "genai embeddings: no embeddings returned")
	}

	return result.Embeddings[0].Values, nil
}

// EmbedBatch implements Provider. The Gemini API supports batches natively.
func (p *GenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := p.client.Models.EmbedContent(ctx,
		p.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: p.taskType,
		},
	)
	if err != nil {
		return nil, &ProviderError{Code: CodeServer, Message: "genai batch embed failed", Err: err}
	}
	if len(result.Embeddings) != len(texts) {
		return nil, NewProviderError(CodeServer, "genai embeddings: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

// Dimensions implements Provider. gemini-embedding-001 produces
// 768-dimensional vectors.
func (p *GenAIProvider) Dimensions() int {
	return 768
}

// ModelID implements Provider.
func (p *GenAIProvider) ModelID() string {
	return p.model
}
