package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/evapo/evapo/internal/index"
	"github.com/evapo/evapo/internal/log"
)

// Excerpt is one retrieved document fragment, ready for prompt assembly.
type Excerpt struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// Snapshotter yields the current index snapshot. A nil snapshot means
// retrieval is unavailable and callers degrade to no excerpts.
type Snapshotter interface {
	Snapshot() *index.Index
}

// Retriever embeds a query and searches the current index snapshot.
type Retriever struct {
	embedder ai.Embedder
	source   Snapshotter
	timeout  time.Duration
	logger   log.Logger
}

// NewRetriever creates a retriever over the given snapshot source. The
// timeout bounds the embedding call per query.
func NewRetriever(embedder ai.Embedder, source Snapshotter, timeout time.Duration, logger log.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		source:   source,
		timeout:  timeout,
		logger:   logger,
	}
}

// Retrieve returns the top-k excerpts for query, best first. An unavailable
// or empty index yields no excerpts rather than an error; only the embedding
// call can fail.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Excerpt, error) {
	snap := r.source.Snapshot()
	if snap == nil || snap.Len() == 0 {
		r.logger.Debug("retrieval skipped, no index snapshot")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{{Content: []*ai.Part{ai.NewTextPart(query)}}},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("embedding query: empty response")
	}

	hits := snap.Query(resp.Embeddings[0].Embedding, k)
	excerpts := make([]Excerpt, 0, len(hits))
	for _, h := range hits {
		excerpts = append(excerpts, Excerpt{
			Source: h.Chunk.DocID,
			Text:   h.Chunk.Text,
			Score:  h.Score,
		})
	}
	return excerpts, nil
}
