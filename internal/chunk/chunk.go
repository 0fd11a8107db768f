// Package chunk splits raw documents into overlapping text segments for
// embedding and retrieval.
//
// Splitting prefers structural boundaries (section breaks, paragraphs,
// sentences, whitespace) and only falls back to hard character cuts when no
// separator exists within the size budget. A fenced data block at the start
// of a document is kept intact as a single atomic chunk so machine-readable
// spec tables survive retrieval unbroken.
//
// Splitting is deterministic: identical input always yields identical chunk
// boundaries.
package chunk

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Document is a raw source document as read from the corpus directory.
type Document struct {
	ID     string // filename or model tag, stable across rebuilds
	Text   string
	Format string // "md", "txt", ...
}

// Chunk is a bounded text segment derived from a document. It is the unit of
// retrieval.
type Chunk struct {
	DocID   string   `json:"doc_id"`
	Ordinal int      `json:"ordinal"`
	Text    string   `json:"text"`
	Models  []string `json:"models,omitempty"` // product-model tokens found in the text
}

// separators is the structural boundary priority, strongest first. The empty
// string terminates the list and means "hard character cut".
var separators = []string{"\n## ", "\n# ", "\n\n", ". ", " ", ""}

// fenceMarker delimits an atomic structured-data block.
const fenceMarker = "```"

// modelTokenRe matches product-model designations such as SP500C or CDF-40.
var modelTokenRe = regexp.MustCompile(`\b[A-Z]{2,}[A-Z0-9]*-?\d[0-9A-Z]*\b`)

// ErrInvalidSize indicates the splitter size/overlap configuration is unusable.
var ErrInvalidSize = errors.New("invalid splitter configuration")

// Splitter splits documents into chunks of at most MaxSize runes, with
// consecutive chunks from the same document overlapping by Overlap runes.
type Splitter struct {
	maxSize int
	overlap int
}

// NewSplitter creates a Splitter. Overlap must be smaller than maxSize.
func NewSplitter(maxSize, overlap int) (*Splitter, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: max size %d", ErrInvalidSize, maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidSize, overlap, maxSize)
	}
	return &Splitter{maxSize: maxSize, overlap: overlap}, nil
}

// budget is the maximum size of a single piece before merging. Keeping
// pieces at maxSize-overlap guarantees that prefixing the overlap tail of
// the previous chunk never pushes a chunk past maxSize.
func (s *Splitter) budget() int {
	return s.maxSize - s.overlap
}

// Split splits a document into ordered chunks.
func (s *Splitter) Split(doc Document) []Chunk {
	text := strings.ReplaceAll(doc.Text, "\r\n", "\n")

	var segments []string
	if fence, rest, ok := leadingFence(text); ok {
		// Atomic block: never split, even past the size budget.
		segments = append(segments, fence)
		text = rest
	}
	segments = append(segments, s.merge(s.split(text, separators))...)

	chunks := make([]Chunk, 0, len(segments))
	for _, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			DocID:   doc.ID,
			Ordinal: len(chunks),
			Text:    seg,
			Models:  extractModelTokens(seg),
		})
	}
	return chunks
}

// leadingFence returns the fenced block at the very start of text, if any,
// together with the remaining text.
func leadingFence(text string) (fence, rest string, ok bool) {
	trimmed := strings.TrimLeft(text, "\n")
	if !strings.HasPrefix(trimmed, fenceMarker) {
		return "", "", false
	}
	closing := strings.Index(trimmed[len(fenceMarker):], fenceMarker)
	if closing < 0 {
		return "", "", false
	}
	end := len(fenceMarker) + closing + len(fenceMarker)
	return trimmed[:end], trimmed[end:], true
}

// split recursively cuts text into pieces no longer than the piece budget,
// preferring the strongest separator present.
func (s *Splitter) split(text string, seps []string) []string {
	if runeLen(text) <= s.budget() {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	sep := ""
	remaining := seps
	for i, candidate := range seps {
		if candidate == "" {
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			remaining = seps[i+1:]
			break
		}
	}

	if sep == "" {
		return s.hardCut(text)
	}

	var pieces []string
	for _, piece := range splitKeepSep(text, sep) {
		if runeLen(piece) > s.budget() {
			pieces = append(pieces, s.split(piece, remaining)...)
		} else {
			pieces = append(pieces, piece)
		}
	}
	return pieces
}

// splitKeepSep splits text on sep, keeping the separator attached to the
// preceding piece so no characters are lost and re-chunking stays
// byte-identical across runs.
func splitKeepSep(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// merge greedily joins pieces into chunks within the size budget. Each chunk
// after the first starts with the overlap tail of its predecessor so atomic
// facts that straddle a boundary appear in both chunks.
func (s *Splitter) merge(pieces []string) []string {
	var out []string
	var current strings.Builder

	for _, piece := range pieces {
		if current.Len() > 0 && runeLen(current.String())+runeLen(piece) > s.maxSize {
			out = append(out, current.String())
			tail := overlapTail(current.String(), s.overlap)
			current.Reset()
			current.WriteString(tail)
		}
		current.WriteString(piece)
	}
	if strings.TrimSpace(current.String()) != "" {
		out = append(out, current.String())
	}
	return out
}

// hardCut slices text into budget-sized rune windows. Overlap between the
// resulting chunks is added later by merge.
func (s *Splitter) hardCut(text string) []string {
	runes := []rune(text)
	size := s.budget()
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// overlapTail returns the last n runes of text.
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}

func runeLen(s string) int {
	return len([]rune(s))
}

// extractModelTokens returns the distinct product-model tokens in text, in
// order of first appearance.
func extractModelTokens(text string) []string {
	matches := modelTokenRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
