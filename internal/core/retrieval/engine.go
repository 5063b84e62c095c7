// Package retrieval answers similarity queries against a user's
// shard/namespace, then filters, ranks and dedupes the candidates.
package retrieval

import (
	"context"
	"sort"

	"github.com/saved-ai/engine/internal/core"
	"github.com/saved-ai/engine/internal/models"
)

const (
	// DefaultTopK is how many candidates to request from the store.
	DefaultTopK = 5
	// ScoreThreshold drops weak matches; candidates at or below it are
	// discarded before ranking.
	ScoreThreshold = 0.6
)

type Engine struct {
	store     core.VectorStore
	embedder  core.EmbeddingProvider
	topK      int
	threshold float64
}

func NewEngine(store core.VectorStore, emb core.EmbeddingProvider) *Engine {
	return &Engine{
		store:     store,
		embedder:  emb,
		topK:      DefaultTopK,
		threshold: ScoreThreshold,
	}
}

// Search returns the ranked, deduplicated documents relevant to query.
// A user with no ingested content (no shard yet) gets an empty result,
// not an error. Dedupe is by source message id: only the highest-scoring
// chunk per source survives.
func (e *Engine) Search(ctx context.Context, user *models.User, query string) ([]models.SearchResult, error) {
	if user.ShardID == nil {
		return nil, nil
	}

	vecs, err := e.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, &core.TransportError{Op: "embed query", Err: err}
	}
	if len(vecs) == 0 {
		return nil, nil
	}

	candidates, err := e.store.Query(ctx, *user.ShardID, user.Namespace(), vecs[0], e.topK)
	if err != nil {
		return nil, &core.TransportError{Op: "vector query", Err: err}
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if c.Score > e.threshold {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})

	seen := make(map[int64]bool, len(kept))
	out := make([]models.SearchResult, 0, len(kept))
	for _, c := range kept {
		if seen[c.Metadata.Source] {
			continue
		}
		seen[c.Metadata.Source] = true
		out = append(out, c)
	}
	return out, nil
}
