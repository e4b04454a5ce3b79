package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zero1hq/rag-assistant/rag/ingest"
)

// Chunk is a slice of a source document, sized for embedding.
type Chunk struct {
	// ID is "<docID>#<seq>", stable across re-indexing so an updated
	// document overwrites its own chunks.
	ID string

	// DocID identifies the source document.
	DocID string

	// Seq is the zero-based position of the chunk within the document.
	Seq int

	// Text is the chunk content.
	Text string

	// Meta carries the document name and source for answer attribution.
	Meta map[string]string
}

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is how many characters consecutive chunks
	// share, so sentences cut at a boundary stay retrievable.
	DefaultChunkOverlap = 200
)

// Chunker splits documents into overlapping chunks.
//
// Splitting prefers paragraph boundaries: paragraphs are packed into
// chunks up to Size characters, and a paragraph longer than Size is
// split at word boundaries with Overlap characters carried between
// pieces.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker creates a Chunker. Non-positive size or overlap fall back
// to the defaults, and overlap is capped below size.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// Split chunks a document. Documents with no usable text produce no
// chunks.
func (c *Chunker) Split(doc ingest.Document) []Chunk {
	text := strings.TrimSpace(doc.Content)
	if text == "" {
		return nil
	}

	pieces := c.pack(splitParagraphs(text))
	chunks := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, Chunk{
			ID:    fmt.Sprintf("%s#%d", doc.ID, i),
			DocID: doc.ID,
			Seq:   i,
			Text:  piece,
			Meta: map[string]string{
				"doc_id": doc.ID,
				"name":   doc.Name,
				"source": doc.Source,
			},
		})
	}
	return chunks
}

// pack greedily joins paragraphs into chunks of at most Size
// characters, splitting oversized paragraphs at word boundaries.
func (c *Chunker) pack(paragraphs []string) []string {
	var out []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
		}
	}

	for _, para := range paragraphs {
		if len(para) > c.Size {
			flush()
			out = append(out, c.splitLong(para)...)
			continue
		}
		if current.Len() > 0 && current.Len()+2+len(para) > c.Size {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return out
}

// splitLong splits a single oversized paragraph at word boundaries,
// carrying Overlap characters of trailing context into each new piece.
func (c *Chunker) splitLong(para string) []string {
	words := strings.Fields(para)
	var out []string
	var current strings.Builder

	for _, word := range words {
		if current.Len() > 0 && current.Len()+1+len(word) > c.Size {
			piece := current.String()
			out = append(out, piece)
			current.Reset()
			if c.Overlap > 0 {
				current.WriteString(tailWords(piece, c.Overlap))
			}
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

// tailWords returns the last whole words of s totaling at most n
// characters.
func tailWords(s string, n int) string {
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	// Advance to a rune boundary so the window never opens mid-rune.
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	cut := s[start:]
	if idx := strings.IndexByte(cut, ' '); idx >= 0 {
		return strings.TrimSpace(cut[idx:])
	}
	return strings.TrimSpace(cut)
}

// splitParagraphs splits text on blank lines.
func splitParagraphs(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
