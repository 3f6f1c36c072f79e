package retrieval

import (
	"context"
	"fmt"
	"sort"

	"docchat/internal/model"
	"docchat/internal/repository"
)

// ScoredSegment pairs a candidate segment with its similarity to the query.
type ScoredSegment struct {
	Segment    model.Segment
	Similarity float64
}

// Engine ranks segments by cosine similarity against a query vector. It is a
// brute-force O(n) scan over the candidate set: candidates are scoped to the
// documents of one conversation, so no index is maintained. That is the
// scalability boundary of this engine; swapping in an ANN index must keep
// the FindSimilar contract.
type Engine struct {
	segments repository.SegmentRepository
}

// NewEngine creates a retrieval engine over the given segment repository.
func NewEngine(segments repository.SegmentRepository) *Engine {
	return &Engine{segments: segments}
}

// FindSimilar returns up to k segments from the given documents (scoped to
// ownerID when non-empty), ordered by non-increasing similarity. Ties are
// broken by (document id, ordinal) so results are deterministic.
func (e *Engine) FindSimilar(ctx context.Context, queryVec []float32, k int, documentIDs []string, ownerID string) ([]ScoredSegment, error) {
	if k <= 0 || len(documentIDs) == 0 {
		return nil, nil
	}

	candidates, err := e.segments.ListByDocuments(ctx, documentIDs, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load candidate segments: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	scored := make([]ScoredSegment, 0, len(candidates))
	for _, seg := range candidates {
		scored = append(scored, ScoredSegment{
			Segment:    seg,
			Similarity: CosineSimilarity(queryVec, seg.Embedding.Slice()),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		if scored[i].Segment.DocumentID != scored[j].Segment.DocumentID {
			return scored[i].Segment.DocumentID < scored[j].Segment.DocumentID
		}
		return scored[i].Segment.Ordinal < scored[j].Segment.Ordinal
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}
