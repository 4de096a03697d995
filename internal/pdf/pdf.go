// Package pdf extracts per-page plain text from PDF files.
package pdf

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
)

// Extractor returns the text of every page in a PDF, indexed from 0. A page
// without extractable text yields the empty string.
type Extractor interface {
	Pages(ctx context.Context, path string) ([]string, error)
}

// Reader is an Extractor backed by github.com/ledongthuc/pdf.
type Reader struct{}

// NewReader returns a Reader.
func NewReader() *Reader { return &Reader{} }

// Pages opens path and extracts each page's plain text.
func (Reader) Pages(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat pdf: %w", err)
	}
	return ReadPages(ctx, f, stat.Size())
}

// ReadPages extracts per-page text from a PDF held in r. The parser opens
// every text object with a newline; those are trimmed, and a page holding
// only whitespace yields the empty string.
func ReadPages(ctx context.Context, r io.ReaderAt, size int64) (pages []string, err error) {
	// The parser panics on some malformed documents.
	defer func() {
		if p := recover(); p != nil {
			pages, err = nil, fmt.Errorf("parse pdf: %v", p)
		}
	}()

	doc, err := lpdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	n := doc.NumPage()
	pages = make([]string, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i-1, err)
		}
		pages[i-1] = cleanText(text)
	}
	return pages, nil
}

func cleanText(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return strings.Trim(text, "\n")
}

var _ Extractor = Reader{}
