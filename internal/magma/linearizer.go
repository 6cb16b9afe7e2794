package magma

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/logging"
)

// Strategy is the node ordering and formatting policy.
type Strategy string

const (
	StrategyCausalChain   Strategy = "causal_chain"
	StrategyTemporal      Strategy = "temporal"
	StrategyEntityGrouped Strategy = "entity_grouped"
	StrategyScoreRanked   Strategy = "score_ranked"
)

// Fixed section headers per strategy. These strings are part of the
// output contract and must not change.
var strategyHeaders = map[Strategy]string{
	StrategyCausalChain:   "## Causal Analysis Context\nThe following shows cause-and-effect relationships:\n",
	StrategyTemporal:      "## Temporal Context\nThe following events are ordered chronologically:\n",
	StrategyScoreRanked:   "## Retrieved Context\nThe following information is relevant to your query:\n",
	StrategyEntityGrouped: "## Entity Context\nThe following entities are relevant to your query:\n",
}

const (
	whoHeader  = "## Entity Context\nThe following entities are relevant to your query:\n"
	whatHeader = "## Descriptive Context\nThe following information describes the subject:\n"

	truncationMarker = "\n[... additional context truncated ...]"

	maxDescriptionChars = 200

	minMaxTokens     = 100
	maxMaxTokens     = 100_000
	defaultMaxTokens = 4000
)

// dateFields is probed in order when extracting a node's date.
var dateFields = []string{"occurred_at", "valid_from", "created_at", "date", "timestamp"}

// LinearizedContext is the token-budgeted textual rendering of a merged
// subgraph. NodeCount reflects the nodes actually included.
type LinearizedContext struct {
	Text            string   `json:"text"`
	NodeCount       int      `json:"nodeCount"`
	Strategy        Strategy `json:"strategy"`
	EstimatedTokens int      `json:"estimatedTokens"`
}

// Linearizer renders merged subgraphs as intent-shaped context text. It is
// pure and deterministic for a given input.
type Linearizer struct {
	maxTokens int
	logger    *logging.Logger
}

// NewLinearizer creates a linearizer with a validated token budget. A zero
// maxTokens selects the default of 4000.
func NewLinearizer(maxTokens int) (*Linearizer, error) {
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	if maxTokens < minMaxTokens || maxTokens > maxMaxTokens {
		return nil, errors.NewValidation("NewLinearizer", "maxTokens %d out of range [%d,%d]", maxTokens, minMaxTokens, maxMaxTokens)
	}
	return &Linearizer{
		maxTokens: maxTokens,
		logger:    logging.GetLogger("magma.linearizer"),
	}, nil
}

// StrategyFor maps an intent type to its linearization strategy.
func StrategyFor(intent IntentType) Strategy {
	switch intent {
	case IntentWhy:
		return StrategyCausalChain
	case IntentWhen:
		return StrategyTemporal
	case IntentWho, IntentWhat:
		return StrategyEntityGrouped
	default:
		return StrategyScoreRanked
	}
}

// headerFor returns the section header. WHO and WHAT share the
// entity_grouped strategy but carry different headers.
func headerFor(intent IntentType, strategy Strategy) string {
	switch intent {
	case IntentWho:
		return whoHeader
	case IntentWhat:
		return whatHeader
	}
	return strategyHeaders[strategy]
}

// Linearize orders the merged nodes per the intent's strategy and formats
// them into the token budget.
func (l *Linearizer) Linearize(merged *MergedSubgraph, intent IntentType) (*LinearizedContext, error) {
	if merged == nil {
		return nil, errors.NewLinearization("Linearize", "nil subgraph (intent: %s)", intent)
	}
	if intent == "" {
		intent = IntentExplore
	}
	if !ValidIntentType(intent) {
		return nil, errors.NewValidation("Linearize", "unknown intent type %q", intent)
	}

	strategy := StrategyFor(intent)
	ordered := orderNodes(merged.Nodes, strategy)

	var b strings.Builder
	b.WriteString(headerFor(intent, strategy))

	included := 0
	truncated := false
	for _, node := range ordered {
		block := formatNode(node, strategy)
		if estimateTokens(b.Len()+len(block)) > l.maxTokens {
			b.WriteString(truncationMarker)
			truncated = true
			break
		}
		b.WriteString(block)
		included++
	}

	footer := contributionFooter(merged.ViewContributions, included)
	if estimateTokens(b.Len()+len(footer)) <= l.maxTokens {
		b.WriteString(footer)
	}

	text := b.String()
	if truncated {
		l.logger.Debug("Linearized %d/%d nodes before hitting the %d token budget", included, len(ordered), l.maxTokens)
	}
	return &LinearizedContext{
		Text:            text,
		NodeCount:       included,
		Strategy:        strategy,
		EstimatedTokens: estimateTokens(len(text)),
	}, nil
}

// estimateTokens approximates tokens as ceil(chars/4).
func estimateTokens(chars int) int {
	return (chars + 3) / 4
}

func orderNodes(nodes []ScoredNode, strategy Strategy) []ScoredNode {
	ordered := make([]ScoredNode, len(nodes))
	copy(ordered, nodes)

	switch strategy {
	case StrategyCausalChain:
		sort.SliceStable(ordered, func(i, j int) bool {
			ci, cj := ordered[i].InView(SourceCausal), ordered[j].InView(SourceCausal)
			if ci != cj {
				return ci
			}
			return ordered[i].FinalScore > ordered[j].FinalScore
		})

	case StrategyTemporal:
		sort.SliceStable(ordered, func(i, j int) bool {
			ti, tj := ordered[i].InView(SourceTemporal), ordered[j].InView(SourceTemporal)
			if ti != tj {
				return ti
			}
			di, okI := nodeDate(ordered[i])
			dj, okJ := nodeDate(ordered[j])
			if okI && okJ {
				return di.Before(dj)
			}
			return ordered[i].FinalScore > ordered[j].FinalScore
		})

	case StrategyEntityGrouped:
		sort.SliceStable(ordered, func(i, j int) bool {
			ti, tj := nodeType(ordered[i]), nodeType(ordered[j])
			if ti != tj {
				return ti < tj
			}
			return ordered[i].FinalScore > ordered[j].FinalScore
		})

	default:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].FinalScore > ordered[j].FinalScore
		})
	}

	return ordered
}

func formatNode(node ScoredNode, strategy Strategy) string {
	display := nodeDisplay(node)

	var b strings.Builder
	fmt.Fprintf(&b, "- **%s** (%s)\n", display, nodeType(node))

	if strategy == StrategyCausalChain {
		if confidence, ok := node.Data["confidence"]; ok {
			fmt.Fprintf(&b, "  Confidence: %v\n", confidence)
		}
	}
	if strategy == StrategyTemporal {
		if raw := rawDate(node); raw != "" {
			fmt.Fprintf(&b, "  Date: %s\n", raw)
		}
	}

	if description := stringField(node, "description"); description != "" && description != display {
		// Truncate on rune boundaries so multibyte text stays valid UTF-8.
		if runes := []rune(description); len(runes) > maxDescriptionChars {
			description = string(runes[:maxDescriptionChars])
		}
		fmt.Fprintf(&b, "  %s\n", description)
	}

	views := make([]string, len(node.Views))
	for i, v := range node.Views {
		views[i] = string(v)
	}
	fmt.Fprintf(&b, "  [Found in: %s]\n", strings.Join(views, ", "))

	return b.String()
}

func contributionFooter(contributions map[ViewSource]int, included int) string {
	parts := make([]string, 0, len(contributions))
	for _, source := range AllViewSources {
		if count, ok := contributions[source]; ok && count > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", source, count))
		}
	}
	return fmt.Sprintf("\n---\nSources: %s | Total nodes: %d", strings.Join(parts, ", "), included)
}

// nodeDisplay falls back through name, description, content, uuid.
func nodeDisplay(node ScoredNode) string {
	for _, field := range []string{"name", "description", "content"} {
		if v := stringField(node, field); v != "" {
			return v
		}
	}
	return node.UUID
}

// nodeType falls back through entity_type, node_type, type.
func nodeType(node ScoredNode) string {
	for _, field := range []string{"entity_type", "node_type", "type"} {
		if v := stringField(node, field); v != "" {
			return v
		}
	}
	return "unknown"
}

func stringField(node ScoredNode, field string) string {
	if node.Data == nil {
		return ""
	}
	if v, ok := node.Data[field].(string); ok {
		return v
	}
	return ""
}

// rawDate returns the first present date field, unparsed.
func rawDate(node ScoredNode) string {
	for _, field := range dateFields {
		if v := stringField(node, field); v != "" {
			return v
		}
	}
	return ""
}

// nodeDate returns the first parseable date among the probed fields.
func nodeDate(node ScoredNode) (time.Time, bool) {
	for _, field := range dateFields {
		raw := stringField(node, field)
		if raw == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
