package embedding

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/moolen/magma/internal/logging"
)

// DefaultOpenAIModel is the default OpenAI embeddings model.
const DefaultOpenAIModel = oai.EmbeddingModelTextEmbedding3Small

var _ Provider = (*OpenAIProvider)(nil)

// OpenAIProvider implements Provider using the OpenAI embeddings API.
type OpenAIProvider struct {
	client oai.Client
	model  string
	logger *logging.Logger
}

// OpenAIOption configures the provider.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	baseURL string
	timeout time.Duration
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) { c.timeout = d }
}

// NewOpenAIProvider constructs an OpenAI embeddings provider. An empty model
// selects DefaultOpenAIModel.
func NewOpenAIProvider(apiKey, model string, opts ...OpenAIOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, NewProviderError(CodeConfig, "openai embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := &openAIConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &OpenAIProvider{
		client: oai.NewClient(reqOpts...),
		model:  model,
		logger: logging.GetLogger("embedding.openai"),
	}, nil
}

// Embed implements Provider.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) == 0 {
		return nil, NewProviderError(CodeServer, "openai embeddings: empty response")
	}
	return float64ToFloat32(resp.Data[0].Embedding), nil
}

// EmbedBatch implements Provider.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, NewProviderError(CodeServer, "openai embeddings: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	result := make([][]float32, len(texts))
	for _, e := range resp.Data {
		if int(e.Index) >= len(texts) {
			return nil, NewProviderError(CodeServer, "openai embeddings: unexpected index %d", e.Index)
		}
		result[e.Index] = float64ToFloat32(e.Embedding)
	}
	return result, nil
}

// Dimensions implements Provider.
func (p *OpenAIProvider) Dimensions() int {
	return openAIModelDimensions(p.model)
}

// ModelID implements Provider.
func (p *OpenAIProvider) ModelID() string {
	return p.model
}

// openAIModelDimensions returns the embedding dimensions for known OpenAI
// models.
func openAIModelDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "text-embedding-3-large"):
		return 3072
	case strings.Contains(lower, "text-embedding-3-small"):
		return 1536
	case strings.Contains(lower, "text-embedding-ada-002"):
		return 1536
	default:
		return 1536
	}
}

// classifyOpenAIError maps an openai-go API error to the provider taxonomy.
func classifyOpenAIError(err error) error {
	var apierr *oai.Error
	if stderrors.As(err, &apierr) {
		return WrapHTTPStatus(apierr.StatusCode, err)
	}
	return &ProviderError{Code: CodeUnknown, Message: "openai embeddings request failed", Err: err}
}
