package magma

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/graph"
	"github.com/moolen/magma/internal/logging"
	"github.com/moolen/magma/internal/memory"
)

// seedBatchSize bounds how many concepts are resolved concurrently when
// extracting seeds through the cross-linker.
const seedBatchSize = 10

// EntitySeed anchors graph traversal on an entity derived from a concept
// hit. The first concept that introduces an entity wins the attribution.
type EntitySeed struct {
	EntityID        string  `json:"entityId"`
	SourceConceptID string  `json:"sourceConceptId"`
	SemanticScore   float64 `json:"semanticScore"`
}

// SeedStats summarizes one extraction pass.
type SeedStats struct {
	ConceptsSearched     int `json:"conceptsSearched"`
	EntitiesFound        int `json:"entitiesFound"`
	ConceptsWithoutLinks int `json:"conceptsWithoutLinks"`
}

// SeedExtractionResult carries the seeds plus the concepts they came from.
type SeedExtractionResult struct {
	EntitySeeds []EntitySeed `json:"entitySeeds"`
	ConceptIDs  []string     `json:"conceptIds"`
	Stats       SeedStats    `json:"stats"`
}

// conceptLinker is the slice of the cross-linker the extractor needs.
type conceptLinker interface {
	GetLinksFrom(ctx context.Context, sourceUUID string, linkType graph.RelationType) ([]memory.CrossLink, error)
}

// SeedExtractor derives entity seeds from semantic matches via
// X_REPRESENTS cross-links.
type SeedExtractor struct {
	linker conceptLinker
	logger *logging.Logger
}

// NewSeedExtractor creates a seed extractor over the given cross-linker.
func NewSeedExtractor(linker conceptLinker) *SeedExtractor {
	return &SeedExtractor{
		linker: linker,
		logger: logging.GetLogger("magma.seeds"),
	}
}

// Extract resolves each concept's X_REPRESENTS links serially and emits
// deduplicated entity seeds.
func (e *SeedExtractor) Extract(ctx context.Context, matches []memory.SemanticMatch) (*SeedExtractionResult, error) {
	result := &SeedExtractionResult{
		EntitySeeds: []EntitySeed{},
		ConceptIDs:  make([]string, 0, len(matches)),
	}
	seen := make(map[string]bool)

	for _, match := range matches {
		result.ConceptIDs = append(result.ConceptIDs, match.Concept.UUID)
		result.Stats.ConceptsSearched++

		links, err := e.linker.GetLinksFrom(ctx, match.Concept.UUID, graph.RelRepresents)
		if err != nil {
			return nil, errors.NewBackend("ExtractSeeds", "cross-link lookup for concept %q failed", match.Concept.UUID).Wrap(err)
		}

		e.mergeConceptLinks(result, seen, match, links)
	}

	return result, nil
}

// ExtractBatched resolves cross-links for groups of concepts in parallel.
// Deduplication happens in the serial merge after each batch, so the
// first-concept-wins attribution is preserved.
func (e *SeedExtractor) ExtractBatched(ctx context.Context, matches []memory.SemanticMatch) (*SeedExtractionResult, error) {
	result := &SeedExtractionResult{
		EntitySeeds: []EntitySeed{},
		ConceptIDs:  make([]string, 0, len(matches)),
	}
	seen := make(map[string]bool)

	for start := 0; start < len(matches); start += seedBatchSize {
		end := start + seedBatchSize
		if end > len(matches) {
			end = len(matches)
		}
		batch := matches[start:end]

		linksByIndex := make([][]memory.CrossLink, len(batch))
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for i, match := range batch {
			g.Go(func() error {
				links, err := e.linker.GetLinksFrom(gctx, match.Concept.UUID, graph.RelRepresents)
				if err != nil {
					return errors.NewBackend("ExtractSeedsBatched", "cross-link lookup for concept %q failed", match.Concept.UUID).Wrap(err)
				}
				mu.Lock()
				linksByIndex[i] = links
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for i, match := range batch {
			result.ConceptIDs = append(result.ConceptIDs, match.Concept.UUID)
			result.Stats.ConceptsSearched++
			e.mergeConceptLinks(result, seen, match, linksByIndex[i])
		}
	}

	return result, nil
}

// ExtractFromEnriched operates on matches that already carry their linked
// entities, skipping the cross-linker round-trips entirely. Matches below
// minScore are ignored.
func (e *SeedExtractor) ExtractFromEnriched(matches []memory.EnrichedSemanticMatch, minScore float64) *SeedExtractionResult {
	result := &SeedExtractionResult{
		EntitySeeds: []EntitySeed{},
		ConceptIDs:  make([]string, 0, len(matches)),
	}
	seen := make(map[string]bool)

	for _, match := range matches {
		if match.Score < minScore {
			continue
		}
		result.ConceptIDs = append(result.ConceptIDs, match.Concept.UUID)
		result.Stats.ConceptsSearched++

		if len(match.LinkedEntityIDs) == 0 {
			result.Stats.ConceptsWithoutLinks++
			continue
		}
		for _, entityID := range match.LinkedEntityIDs {
			if seen[entityID] {
				continue
			}
			seen[entityID] = true
			result.EntitySeeds = append(result.EntitySeeds, EntitySeed{
				EntityID:        entityID,
				SourceConceptID: match.Concept.UUID,
				SemanticScore:   match.Score,
			})
			result.Stats.EntitiesFound++
		}
	}

	return result
}

func (e *SeedExtractor) mergeConceptLinks(result *SeedExtractionResult, seen map[string]bool, match memory.SemanticMatch, links []memory.CrossLink) {
	if len(links) == 0 {
		result.Stats.ConceptsWithoutLinks++
		return
	}
	for _, link := range links {
		if seen[link.TargetUUID] {
			continue
		}
		seen[link.TargetUUID] = true
		result.EntitySeeds = append(result.EntitySeeds, EntitySeed{
			EntityID:        link.TargetUUID,
			SourceConceptID: match.Concept.UUID,
			SemanticScore:   match.Score,
		})
		result.Stats.EntitiesFound++
	}
}

// GetEntityIDs returns the seed entity ids in seed order.
func GetEntityIDs(seeds []EntitySeed) []string {
	ids := make([]string, len(seeds))
	for i, seed := range seeds {
		ids[i] = seed.EntityID
	}
	return ids
}

// FilterSeedsByScore keeps exactly the seeds with semanticScore >= minScore,
// preserving order.
func FilterSeedsByScore(seeds []EntitySeed, minScore float64) ([]EntitySeed, error) {
	if minScore < 0 || minScore > 1 {
		return nil, errors.NewValidation("FilterSeedsByScore", "minScore %g out of range [0,1]", minScore)
	}
	filtered := make([]EntitySeed, 0, len(seeds))
	for _, seed := range seeds {
		if seed.SemanticScore >= minScore {
			filtered = append(filtered, seed)
		}
	}
	return filtered, nil
}
