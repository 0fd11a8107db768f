package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// FixedEmbedder produces deterministic vectors so retrieval tests can pin
// down exact cosine rankings. Texts without an explicit vector get a unit
// vector derived from their SHA-256 hash, so distinct texts land far apart
// and equal texts embed identically.
//
// Safe for concurrent use.
type FixedEmbedder struct {
	mu   sync.Mutex
	dim  int
	pins map[string][]float32
	err  error
}

// NewFixedEmbedder creates an embedder producing dim-wide vectors.
func NewFixedEmbedder(dim int) *FixedEmbedder {
	return &FixedEmbedder{dim: dim, pins: make(map[string][]float32)}
}

// Pin fixes the vector returned for an exact text.
func (e *FixedEmbedder) Pin(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pins[text] = vec
}

// FailWith makes every subsequent embed call return err.
func (e *FixedEmbedder) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Register defines the embedder on g under "mock/embedder".
func (e *FixedEmbedder) Register(g *genkit.Genkit) ai.Embedder {
	return genkit.DefineEmbedder(g, "mock/embedder", &ai.EmbedderOptions{
		Label:      "Fixed Embedder",
		Dimensions: e.dim,
	}, e.embed)
}

func (e *FixedEmbedder) embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		text := docText(doc)
		vec, ok := e.pins[text]
		if !ok {
			vec = hashVector(text, e.dim)
		}
		embeddings[i] = &ai.Embedding{Embedding: vec}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func docText(doc *ai.Document) string {
	var sb strings.Builder
	for _, p := range doc.Content {
		if p.Kind == ai.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// hashVector maps text to a unit vector seeded from its SHA-256 digest.
func hashVector(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	for i := range vec {
		idx := (i * 4) % len(sum)
		bits := binary.LittleEndian.Uint32([]byte{
			sum[idx%32], sum[(idx+1)%32], sum[(idx+2)%32], sum[(idx+3)%32],
		})
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
