// Package embedding provides text-to-vector providers used by the semantic
// graph. All vectors returned by a single Provider share the dimensionality
// reported by Dimensions; mixing vectors from different providers in one
// similarity computation is undefined.
package embedding

import "context"

// Provider is the abstraction over a text-embedding backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The
	// returned slice has length Dimensions().
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of texts in one
	// provider call. The i-th element corresponds to texts[i]. On error the
	// entire result is nil; partial results are not returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, for logging
	// and for schema initialization.
	ModelID() string
}

// float64ToFloat32 converts a []float64 slice to []float32.
func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
