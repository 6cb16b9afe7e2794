package magma

import (
	"math"
	"sort"

	"github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/logging"
)

// MergerConfig tunes how views are combined.
type MergerConfig struct {
	// MultiViewBoost amplifies nodes corroborated by several views:
	// boost = MultiViewBoost^(viewCount-1). Range [1,10].
	MultiViewBoost float64
	// MinNodesPerView is consulted only by HasMinimumNodes. Range [0,100].
	MinNodesPerView int
	// MaxNodesPerView caps each view before merging. Range [1,1000].
	MaxNodesPerView int
}

// DefaultMergerConfig returns the default merge options.
func DefaultMergerConfig() MergerConfig {
	return MergerConfig{
		MultiViewBoost:  1.5,
		MinNodesPerView: 3,
		MaxNodesPerView: 50,
	}
}

// Validate checks the options against their ranges.
func (c MergerConfig) Validate() error {
	if c.MultiViewBoost < 1 || c.MultiViewBoost > 10 {
		return errors.NewValidation("MergerConfig.Validate", "multiViewBoost %g out of range [1,10]", c.MultiViewBoost)
	}
	if c.MinNodesPerView < 0 || c.MinNodesPerView > 100 {
		return errors.NewValidation("MergerConfig.Validate", "minNodesPerView %d out of range [0,100]", c.MinNodesPerView)
	}
	if c.MaxNodesPerView < 1 || c.MaxNodesPerView > 1000 {
		return errors.NewValidation("MergerConfig.Validate", "maxNodesPerView %d out of range [1,1000]", c.MaxNodesPerView)
	}
	return nil
}

// Merger combines graph views into one scored node set. It is pure: all
// configuration is bound at construction and never mutated.
type Merger struct {
	config MergerConfig
	logger *logging.Logger
}

// NewMerger creates a merger with validated options.
func NewMerger(config MergerConfig) (*Merger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Merger{
		config: config,
		logger: logging.GetLogger("magma.merger"),
	}, nil
}

type mergeAccumulator struct {
	data      map[string]interface{}
	scores    []float64
	views     []ViewSource
	viewSet   map[ViewSource]bool
	insertion int
}

// Merge combines the views into a MergedSubgraph. Per-view caps are
// applied first; each node's final score is the mean of its observed
// scores times the multi-view boost. Equal scores tie-break on first
// insertion order, which makes one run deterministic.
func (m *Merger) Merge(views []GraphView) (*MergedSubgraph, error) {
	contributions := emptyContributions()
	if len(views) == 0 {
		return &MergedSubgraph{Nodes: []ScoredNode{}, ViewContributions: contributions}, nil
	}

	for _, view := range views {
		if !ValidViewSource(view.Source) {
			return nil, errors.NewValidation("Merge", "unknown view source %q", view.Source)
		}
	}

	accumulators := make(map[string]*mergeAccumulator)
	order := 0

	for _, view := range views {
		nodes := view.Nodes
		if len(nodes) > m.config.MaxNodesPerView {
			nodes = nodes[:m.config.MaxNodesPerView]
		}
		contributions[view.Source] += len(nodes)

		for _, node := range nodes {
			if node.UUID == "" {
				return nil, errors.NewMerge("Merge", "view %q contains a node without uuid (input views: %d)", view.Source, len(views))
			}
			acc, ok := accumulators[node.UUID]
			if !ok {
				acc = &mergeAccumulator{
					data:      node.Data,
					viewSet:   make(map[ViewSource]bool),
					insertion: order,
				}
				order++
				accumulators[node.UUID] = acc
			}
			if acc.data == nil {
				acc.data = node.Data
			}

			score := 1.0
			if node.Score != nil {
				score = *node.Score
			}
			acc.scores = append(acc.scores, score)
			if !acc.viewSet[view.Source] {
				acc.viewSet[view.Source] = true
				acc.views = append(acc.views, view.Source)
			}
		}
	}

	type rankedNode struct {
		node      ScoredNode
		insertion int
	}
	ranked := make([]rankedNode, 0, len(accumulators))
	for nodeUUID, acc := range accumulators {
		var sum float64
		for _, s := range acc.scores {
			sum += s
		}
		avg := sum / float64(len(acc.scores))
		boost := 1.0
		if len(acc.views) > 1 {
			boost = math.Pow(m.config.MultiViewBoost, float64(len(acc.views)-1))
		}
		ranked = append(ranked, rankedNode{
			node: ScoredNode{
				UUID:       nodeUUID,
				Data:       acc.data,
				ViewCount:  len(acc.views),
				Views:      acc.views,
				FinalScore: avg * boost,
			},
			insertion: acc.insertion,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].node.FinalScore != ranked[j].node.FinalScore {
			return ranked[i].node.FinalScore > ranked[j].node.FinalScore
		}
		return ranked[i].insertion < ranked[j].insertion
	})

	nodes := make([]ScoredNode, len(ranked))
	for i, r := range ranked {
		nodes[i] = r.node
	}

	m.logger.Debug("Merged %d views into %d nodes", len(views), len(nodes))
	return &MergedSubgraph{Nodes: nodes, ViewContributions: contributions}, nil
}

// HasMinimumNodes reports whether every view that contributed at all
// contributed at least MinNodesPerView nodes.
func (m *Merger) HasMinimumNodes(merged *MergedSubgraph) bool {
	for _, count := range merged.ViewContributions {
		if count > 0 && count < m.config.MinNodesPerView {
			return false
		}
	}
	return true
}

// TopN returns a copy of the subgraph keeping only the first n nodes.
func TopN(merged *MergedSubgraph, n int) (*MergedSubgraph, error) {
	if n < 0 {
		return nil, errors.NewValidation("TopN", "n must not be negative")
	}
	nodes := merged.Nodes
	if n < len(nodes) {
		nodes = nodes[:n]
	}
	return &MergedSubgraph{Nodes: nodes, ViewContributions: merged.ViewContributions}, nil
}

// FilterByViewCount keeps nodes corroborated by at least minViews views.
func FilterByViewCount(merged *MergedSubgraph, minViews int) (*MergedSubgraph, error) {
	if minViews < 1 {
		return nil, errors.NewValidation("FilterByViewCount", "minViews must be at least 1")
	}
	nodes := make([]ScoredNode, 0, len(merged.Nodes))
	for _, node := range merged.Nodes {
		if node.ViewCount >= minViews {
			nodes = append(nodes, node)
		}
	}
	return &MergedSubgraph{Nodes: nodes, ViewContributions: merged.ViewContributions}, nil
}

// FilterByScore keeps nodes with finalScore >= minScore.
func FilterByScore(merged *MergedSubgraph, minScore float64) (*MergedSubgraph, error) {
	if minScore < 0 {
		return nil, errors.NewValidation("FilterByScore", "minScore must not be negative")
	}
	nodes := make([]ScoredNode, 0, len(merged.Nodes))
	for _, node := range merged.Nodes {
		if node.FinalScore >= minScore {
			nodes = append(nodes, node)
		}
	}
	return &MergedSubgraph{Nodes: nodes, ViewContributions: merged.ViewContributions}, nil
}

// NodesFromView returns the nodes whose views include source.
func NodesFromView(merged *MergedSubgraph, source ViewSource) []ScoredNode {
	nodes := make([]ScoredNode, 0, len(merged.Nodes))
	for _, node := range merged.Nodes {
		if node.InView(source) {
			nodes = append(nodes, node)
		}
	}
	return nodes
}
