// Package magma implements the multi-graph retrieval pipeline: semantic
// vector search locates entry points, seed extraction derives entity
// anchors, three graph expansions run in parallel, and the merger and
// linearizer turn the combined views into a token-budgeted context.
package magma

import (
	"github.com/moolen/magma/internal/errors"
)

// IntentType steers linearization strategy and, through the classifier,
// the depth hints. The executor itself only consumes depth hints.
type IntentType string

const (
	IntentWhy     IntentType = "WHY"
	IntentWhen    IntentType = "WHEN"
	IntentWho     IntentType = "WHO"
	IntentWhat    IntentType = "WHAT"
	IntentExplore IntentType = "EXPLORE"
)

// ValidIntentType reports whether t is a known intent type.
func ValidIntentType(t IntentType) bool {
	switch t {
	case IntentWhy, IntentWhen, IntentWho, IntentWhat, IntentExplore:
		return true
	}
	return false
}

// DepthHints bounds each graph expansion. All hints are in [1,5].
type DepthHints struct {
	Entity   int `json:"entity"`
	Temporal int `json:"temporal"`
	Causal   int `json:"causal"`
}

// Intent is the classified retrieval intent for one query.
type Intent struct {
	Type          IntentType `json:"type"`
	Entities      []string   `json:"entities,omitempty"`
	TemporalHints []string   `json:"temporalHints,omitempty"`
	DepthHints    DepthHints `json:"depthHints"`
	Confidence    float64    `json:"confidence"`
}

const (
	minDepthHint = 1
	maxDepthHint = 5
)

// DefaultIntent is the fallback when no classifier is wired or
// classification fails: explore with shallow expansions.
func DefaultIntent() Intent {
	return Intent{
		Type:       IntentExplore,
		DepthHints: DepthHints{Entity: 2, Temporal: 1, Causal: 2},
		Confidence: 0.5,
	}
}

// Validate checks the intent against its schema.
func (i Intent) Validate() error {
	if !ValidIntentType(i.Type) {
		return errors.NewValidation("Intent.Validate", "unknown intent type %q", i.Type)
	}
	for name, depth := range map[string]int{
		"entity":   i.DepthHints.Entity,
		"temporal": i.DepthHints.Temporal,
		"causal":   i.DepthHints.Causal,
	} {
		if depth < minDepthHint || depth > maxDepthHint {
			return errors.NewValidation("Intent.Validate",
				"depth hint %s = %d out of range [%d,%d]", name, depth, minDepthHint, maxDepthHint)
		}
	}
	if i.Confidence < 0 || i.Confidence > 1 {
		return errors.NewValidation("Intent.Validate", "confidence %g out of range [0,1]", i.Confidence)
	}
	return nil
}
