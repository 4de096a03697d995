package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultCollection is the collection ingestion writes to and queries read from.
const DefaultCollection = "pdf_knowledge_base"

const paragraphSep = "\n\n"

// Chunk is one paragraph of one page of a source document.
type Chunk struct {
	ID     string
	Text   string
	Source string
	Page   int
}

// Metadata returns the metadata stored alongside the chunk.
func (c Chunk) Metadata() map[string]any {
	return map[string]any{"source": c.Source, "page": c.Page}
}

// ChunkID names the n-th chunk of a page. Only the base name of source is
// used, so two files with the same name collide.
func ChunkID(source string, page, n int) string {
	return fmt.Sprintf("%s_page%d_chunk%d", filepath.Base(source), page, n)
}

// SplitPage splits page text on blank lines and trims each piece. Empty
// pieces are kept, so a whitespace-only page yields one empty chunk.
func SplitPage(text string) []string {
	parts := strings.Split(text, paragraphSep)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// Chunks splits every page of source into chunks. Pages whose text is the
// empty string produce nothing.
func Chunks(source string, pages []string) []Chunk {
	var chunks []Chunk
	for page, text := range pages {
		if text == "" {
			continue
		}
		for n, part := range SplitPage(text) {
			chunks = append(chunks, Chunk{
				ID:     ChunkID(source, page, n),
				Text:   part,
				Source: source,
				Page:   page,
			})
		}
	}
	return chunks
}
