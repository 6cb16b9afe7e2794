package magma

// ViewSource tags which graph produced a view.
type ViewSource string

const (
	SourceSemantic ViewSource = "semantic"
	SourceEntity   ViewSource = "entity"
	SourceTemporal ViewSource = "temporal"
	SourceCausal   ViewSource = "causal"
)

// AllViewSources lists the four graph sources in canonical order.
var AllViewSources = []ViewSource{SourceSemantic, SourceEntity, SourceTemporal, SourceCausal}

// ValidViewSource reports whether s is one of the four graph sources.
func ValidViewSource(s ViewSource) bool {
	switch s {
	case SourceSemantic, SourceEntity, SourceTemporal, SourceCausal:
		return true
	}
	return false
}

// ViewNode is one raw node inside a graph view. Data is deliberately
// schema-less; it carries whatever the source graph produced. A nil
// Score means "not scored" and merges as 1.0; an explicit zero is kept.
type ViewNode struct {
	UUID  string                 `json:"uuid"`
	Data  map[string]interface{} `json:"data,omitempty"`
	Score *float64               `json:"score,omitempty"`
}

// ScoreOf wraps a score value for ViewNode literals.
func ScoreOf(v float64) *float64 { return &v }

// GraphView is a partial result set produced by one graph's expansion.
type GraphView struct {
	Source ViewSource `json:"source"`
	Nodes  []ViewNode `json:"nodes"`
}

// ScoredNode is a merged node with its cross-view score.
type ScoredNode struct {
	UUID       string                 `json:"uuid"`
	Data       map[string]interface{} `json:"data,omitempty"`
	ViewCount  int                    `json:"viewCount"`
	Views      []ViewSource           `json:"views"`
	FinalScore float64                `json:"finalScore"`
}

// InView reports whether the node was contributed by the given source.
func (n ScoredNode) InView(source ViewSource) bool {
	for _, v := range n.Views {
		if v == source {
			return true
		}
	}
	return false
}

// MergedSubgraph is the merger output: nodes sorted by finalScore
// descending plus the per-view contribution counts.
type MergedSubgraph struct {
	Nodes             []ScoredNode       `json:"nodes"`
	ViewContributions map[ViewSource]int `json:"viewContributions"`
}

// emptyContributions returns a contribution map with every source at zero.
func emptyContributions() map[ViewSource]int {
	contributions := make(map[ViewSource]int, len(AllViewSources))
	for _, source := range AllViewSources {
		contributions[source] = 0
	}
	return contributions
}
