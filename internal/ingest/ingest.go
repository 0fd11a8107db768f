// Package ingest builds the embedding index from a directory of product
// documents. It walks the corpus, splits every document into chunks,
// embeds the chunks and writes an index snapshot to disk.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/evapo/evapo/internal/chunk"
	"github.com/evapo/evapo/internal/index"
	"github.com/evapo/evapo/internal/log"
)

// supportedExtensions are the document types accepted by the pipeline.
// Product manuals and brochures ship as Markdown or plain text.
var supportedExtensions = map[string]bool{
	".md":  true,
	".txt": true,
}

// MaxFileSize caps a single source document. Anything larger is almost
// certainly not a product document and is skipped with a warning.
const MaxFileSize = 2 * 1024 * 1024

// embedBatchSize bounds how many chunks go into one embedding request.
const embedBatchSize = 64

// ErrNoDocuments indicates the corpus directory contained nothing to index.
var ErrNoDocuments = errors.New("ingest: no documents found")

// Result summarizes one indexing run.
type Result struct {
	FilesIndexed int
	FilesSkipped int
	Chunks       int
	Duration     time.Duration
}

// Pipeline turns a document directory into a persisted index snapshot.
type Pipeline struct {
	splitter *chunk.Splitter
	embedder ai.Embedder
	modelID  string
	logger   log.Logger
}

// New creates a pipeline. modelID tags the snapshot with the embedding
// model so loads under a different model fail loudly.
func New(splitter *chunk.Splitter, embedder ai.Embedder, modelID string, logger log.Logger) *Pipeline {
	return &Pipeline{
		splitter: splitter,
		embedder: embedder,
		modelID:  modelID,
		logger:   logger,
	}
}

// Run indexes every supported document under docsDir and writes the
// snapshot to indexPath. The walk order is sorted so repeated runs over
// the same corpus produce identical snapshots.
func (p *Pipeline) Run(ctx context.Context, docsDir, indexPath string) (*Result, error) {
	start := time.Now()

	paths, skipped, err := p.collect(docsDir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDocuments, docsDir)
	}

	var (
		chunks  []chunk.Chunk
		indexed int
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			p.logger.Warn("skipping unreadable document", "path", path, "error", err)
			skipped++
			continue
		}
		rel, err := filepath.Rel(docsDir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		doc := chunk.Document{
			ID:     filepath.ToSlash(rel),
			Text:   string(data),
			Format: strings.TrimPrefix(filepath.Ext(path), "."),
		}
		docChunks := p.splitter.Split(doc)
		if len(docChunks) == 0 {
			p.logger.Warn("document produced no chunks", "path", path)
			skipped++
			continue
		}
		chunks = append(chunks, docChunks...)
		indexed++
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDocuments, docsDir)
	}

	vectors, err := p.embedAll(ctx, chunks)
	if err != nil {
		return nil, err
	}

	idx, err := index.Build(chunks, vectors, p.modelID)
	if err != nil {
		return nil, err
	}
	if err := idx.Save(indexPath); err != nil {
		return nil, err
	}

	res := &Result{
		FilesIndexed: indexed,
		FilesSkipped: skipped,
		Chunks:       len(chunks),
		Duration:     time.Since(start),
	}
	p.logger.Info("index built",
		"files", res.FilesIndexed,
		"skipped", res.FilesSkipped,
		"chunks", res.Chunks,
		"duration", res.Duration,
		"path", indexPath)
	return res, nil
}

// collect walks docsDir and returns the sorted list of indexable files.
func (p *Pipeline) collect(docsDir string) (paths []string, skipped int, err error) {
	err = filepath.WalkDir(docsDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != docsDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			skipped++
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > MaxFileSize {
			p.logger.Warn("skipping oversized document", "path", path, "size", info.Size())
			skipped++
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walking document directory: %w", err)
	}
	sort.Strings(paths)
	return paths, skipped, nil
}

// embedAll embeds every chunk in fixed-size batches, preserving order.
func (p *Pipeline) embedAll(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for lo := 0; lo < len(chunks); lo += embedBatchSize {
		hi := min(lo+embedBatchSize, len(chunks))
		docs := make([]*ai.Document, 0, hi-lo)
		for _, c := range chunks[lo:hi] {
			docs = append(docs, &ai.Document{Content: []*ai.Part{ai.NewTextPart(c.Text)}})
		}
		resp, err := p.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", lo, hi-1, err)
		}
		if len(resp.Embeddings) != len(docs) {
			return nil, fmt.Errorf("embedding chunks %d-%d: got %d vectors for %d chunks",
				lo, hi-1, len(resp.Embeddings), len(docs))
		}
		for _, e := range resp.Embeddings {
			vectors = append(vectors, e.Embedding)
		}
	}
	return vectors, nil
}
