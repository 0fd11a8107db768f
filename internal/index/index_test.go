package index

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evapo/evapo/internal/chunk"
	"github.com/evapo/evapo/internal/log"
)

const testModel = "test-embedder-001"

func testChunks() ([]chunk.Chunk, [][]float32) {
	chunks := []chunk.Chunk{
		{DocID: "manual-SP500C.md", Ordinal: 0, Text: "mounting requirements"},
		{DocID: "manual-SP500C.md", Ordinal: 1, Text: "electrical wiring"},
		{DocID: "brochure-CDF40.md", Ordinal: 0, Text: "cellar dehumidification"},
	}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	return chunks, vectors
}

func TestBuild_Validation(t *testing.T) {
	t.Parallel()

	chunks, vectors := testChunks()

	t.Run("empty chunk set", func(t *testing.T) {
		t.Parallel()
		_, err := Build(nil, nil, testModel)
		assert.ErrorIs(t, err, ErrEmptyIndex)
	})

	t.Run("length mismatch", func(t *testing.T) {
		t.Parallel()
		_, err := Build(chunks, vectors[:2], testModel)
		assert.ErrorIs(t, err, ErrVectorMismatch)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		t.Parallel()
		bad := [][]float32{{1, 0, 0}, {0, 1}, {0, 0, 1}}
		_, err := Build(chunks, bad, testModel)
		assert.ErrorIs(t, err, ErrVectorMismatch)
	})

	t.Run("empty model id", func(t *testing.T) {
		t.Parallel()
		_, err := Build(chunks, vectors, "")
		assert.ErrorIs(t, err, ErrModelMismatch)
	})

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		idx, err := Build(chunks, vectors, testModel)
		require.NoError(t, err)
		assert.Equal(t, 3, idx.Len())
		assert.Equal(t, testModel, idx.ModelID)
	})
}

func TestQuery_SelfRetrieval(t *testing.T) {
	t.Parallel()

	chunks, vectors := testChunks()
	idx, err := Build(chunks, vectors, testModel)
	require.NoError(t, err)

	// Querying with the embedding of any indexed chunk returns that chunk
	// first.
	for i, vec := range vectors {
		hits := idx.Query(vec, 2)
		require.NotEmpty(t, hits)
		assert.Equal(t, chunks[i], hits[0].Chunk, "chunk %d not self-retrieved", i)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	}
}

func TestQuery_OrderingAndTies(t *testing.T) {
	t.Parallel()

	chunks := []chunk.Chunk{
		{DocID: "a.md", Ordinal: 0, Text: "first"},
		{DocID: "a.md", Ordinal: 1, Text: "second"},
		{DocID: "b.md", Ordinal: 0, Text: "third"},
	}
	// First two vectors are identical: a tie, broken by corpus order.
	vectors := [][]float32{{1, 1, 0}, {1, 1, 0}, {0, 0, 1}}

	idx, err := Build(chunks, vectors, testModel)
	require.NoError(t, err)

	hits := idx.Query([]float32{1, 1, 0}, 3)
	require.Len(t, hits, 3)
	assert.Equal(t, "first", hits[0].Chunk.Text)
	assert.Equal(t, "second", hits[1].Chunk.Text)
	assert.Equal(t, "third", hits[2].Chunk.Text)
}

func TestQuery_Bounds(t *testing.T) {
	t.Parallel()

	chunks, vectors := testChunks()
	idx, err := Build(chunks, vectors, testModel)
	require.NoError(t, err)

	assert.Nil(t, idx.Query([]float32{1, 0, 0}, 0))
	assert.Len(t, idx.Query([]float32{1, 0, 0}, 100), 3)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	chunks, vectors := testChunks()
	idx, err := Build(chunks, vectors, testModel)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, idx.Save(path))

	loaded, err := Load(path, testModel)
	require.NoError(t, err)
	assert.Equal(t, idx.ModelID, loaded.ModelID)
	assert.Equal(t, idx.Entries, loaded.Entries)
}

func TestLoad_ModelMismatch(t *testing.T) {
	t.Parallel()

	chunks, vectors := testChunks()
	idx, err := Build(chunks, vectors, "model-a")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, idx.Save(path))

	// Loading with a different configured model must fail, never silently
	// degrade.
	_, err = Load(path, "model-b")
	assert.ErrorIs(t, err, ErrModelMismatch)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"), testModel)
	assert.Error(t, err)
}

func TestManager_LoadAndSnapshot(t *testing.T) {
	t.Parallel()

	chunks, vectors := testChunks()
	idx, err := Build(chunks, vectors, testModel)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, idx.Save(path))

	m := NewManager(path, testModel, log.NewNop())
	assert.Nil(t, m.Snapshot(), "snapshot before load must be nil")

	require.NoError(t, m.Load())
	snap := m.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 3, snap.Len())
}

func TestManager_ReloadSwapsAtomically(t *testing.T) {
	t.Parallel()

	chunks, vectors := testChunks()
	idx, err := Build(chunks, vectors, testModel)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, idx.Save(path))

	m := NewManager(path, testModel, log.NewNop())
	require.NoError(t, m.Load())

	// Rebuild with a smaller corpus and overwrite the snapshot on disk.
	smaller, err := Build(chunks[:1], vectors[:1], testModel)
	require.NoError(t, err)
	require.NoError(t, smaller.Save(path))

	// Concurrent readers only ever observe 3 or 1 chunks, never a mix.
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if snap := m.Snapshot(); snap != nil {
					n := snap.Len()
					if n != 3 && n != 1 {
						t.Errorf("torn snapshot: %d chunks", n)
						return
					}
				}
			}
		}()
	}
	require.NoError(t, m.Reload())
	wg.Wait()

	assert.Equal(t, 1, m.Snapshot().Len())
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}), "dimension mismatch scores zero")
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 0}), "zero vector scores zero")
}
