// Package index provides the embedding index: an in-memory nearest-neighbor
// structure over chunk vectors, persisted as a JSON snapshot on disk.
//
// An index is immutable once built. The only way to change it is a full
// rebuild (see internal/ingest) followed by an explicit reload; Manager swaps
// the in-memory snapshot atomically so in-flight queries always observe a
// fully-old or fully-new index, never a mix.
//
// Every index is tagged with the identifier of the embedding model that
// produced its vectors. Loading a snapshot built with a different model than
// the runtime is configured for fails hard: mixing embedding spaces degrades
// relevance silently, which is worse than refusing to start.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"

	"github.com/evapo/evapo/internal/chunk"
)

// Sentinel errors. ErrModelMismatch is a configuration error: callers must
// refuse to serve retrieval rather than degrade silently.
var (
	// ErrEmptyIndex indicates a build over an empty document set.
	ErrEmptyIndex = errors.New("index: empty chunk set")

	// ErrVectorMismatch indicates chunks and vectors do not line up.
	ErrVectorMismatch = errors.New("index: chunk/vector mismatch")

	// ErrModelMismatch indicates the persisted index was built with a
	// different embedding model than the runtime is configured for.
	ErrModelMismatch = errors.New("index: embedding model mismatch")
)

// Entry pairs a chunk with its embedding vector.
type Entry struct {
	Chunk  chunk.Chunk `json:"chunk"`
	Vector []float32   `json:"vector"`
}

// Hit is a single query result.
type Hit struct {
	Chunk chunk.Chunk
	Score float64 // cosine similarity in [-1, 1]
}

// Index is an immutable collection of (chunk, vector) pairs tagged with the
// embedding model that produced the vectors.
type Index struct {
	ModelID string  `json:"model_id"`
	Entries []Entry `json:"entries"`
}

// snapshotVersion guards the on-disk format.
const snapshotVersion = 1

// snapshot is the on-disk representation.
type snapshot struct {
	Version int     `json:"version"`
	ModelID string  `json:"model_id"`
	Entries []Entry `json:"entries"`
}

// Build creates an index from parallel chunk and vector slices.
// Fails fast on an empty set, length mismatch, or inconsistent dimensions.
func Build(chunks []chunk.Chunk, vectors [][]float32, modelID string) (*Index, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", ErrVectorMismatch, len(chunks), len(vectors))
	}
	if modelID == "" {
		return nil, fmt.Errorf("%w: empty model id", ErrModelMismatch)
	}

	dim := len(vectors[0])
	entries := make([]Entry, len(chunks))
	for i := range chunks {
		if len(vectors[i]) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d",
				ErrVectorMismatch, i, len(vectors[i]), dim)
		}
		entries[i] = Entry{Chunk: chunks[i], Vector: vectors[i]}
	}

	return &Index{ModelID: modelID, Entries: entries}, nil
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	return len(idx.Entries)
}

// Query returns the k entries most similar to vec, highest similarity first.
// Ties keep original corpus order (stable sort over insertion order).
func (idx *Index) Query(vec []float32, k int) []Hit {
	if k <= 0 || len(idx.Entries) == 0 {
		return nil
	}

	hits := make([]Hit, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		hits = append(hits, Hit{Chunk: e.Chunk, Score: cosineSimilarity(vec, e.Vector)})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

// Save persists the index atomically: write to a temp file in the target
// directory, then rename over the destination. A file lock serializes
// concurrent writers (offline rebuild vs. a second rebuild).
func (idx *Index) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking index file: %w", err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	data, err := json.Marshal(snapshot{
		Version: snapshotVersion,
		ModelID: idx.ModelID,
		Entries: idx.Entries,
	})
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.json")
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp index file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing index file: %w", err)
	}
	return nil
}

// Load reads a persisted index and verifies its embedding model tag against
// wantModelID. A mismatch returns ErrModelMismatch.
func Load(path, wantModelID string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading index file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding index file %s: %w", path, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("decoding index file %s: unsupported version %d", path, snap.Version)
	}
	if snap.ModelID != wantModelID {
		return nil, fmt.Errorf("%w: index built with %q, runtime configured for %q",
			ErrModelMismatch, snap.ModelID, wantModelID)
	}

	return &Index{ModelID: snap.ModelID, Entries: snap.Entries}, nil
}

// cosineSimilarity computes the cosine of the angle between a and b.
// Mismatched dimensions or zero vectors score 0 rather than erroring:
// a malformed entry must not poison a whole query.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
