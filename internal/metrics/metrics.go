package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// IngestReport collects statistics for one create-collection run.
type IngestReport struct {
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at,omitempty"`
	Duration     time.Duration `json:"duration_ns,omitempty"`
	DurationMS   int64         `json:"duration_ms,omitempty"`
	Source       string        `json:"source"`
	Collection   string        `json:"collection"`
	Pages        int           `json:"pages"`
	SkippedPages int           `json:"skipped_pages"`
	Chunks       int           `json:"chunks"`
	EmptyChunks  int           `json:"empty_chunks"`
	TextBytes    int           `json:"text_bytes"`
	Stored       int           `json:"stored"` // collection size after the run
	Lineage      bool          `json:"lineage"`
	Errors       []string      `json:"errors,omitempty"`
}

// New starts tracking an ingestion of source into collection.
func New(source, collection string) *IngestReport {
	return &IngestReport{
		StartedAt:  time.Now(),
		Source:     source,
		Collection: collection,
	}
}

// AddPage records one extracted page. Pages with empty text count as skipped.
func (r *IngestReport) AddPage(text string) {
	r.Pages++
	if text == "" {
		r.SkippedPages++
		return
	}
	r.TextBytes += len(text)
}

// AddChunk records one stored chunk.
func (r *IngestReport) AddChunk(text string) {
	r.Chunks++
	if text == "" {
		r.EmptyChunks++
	}
}

// Finish marks the run as complete.
func (r *IngestReport) Finish(stored int, err error) {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	r.DurationMS = r.Duration.Milliseconds()
	r.Stored = stored
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}

// PrintSummary writes a human-readable summary.
func (r *IngestReport) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║        GLOOMBOT INGEST REPORT        ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Collection:  %-23s║\n", r.Collection)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ SOURCE %s\n", r.Source)
	fmt.Fprintf(w, "║   Pages:       %d (%d skipped)\n", r.Pages, r.SkippedPages)
	fmt.Fprintf(w, "║   Text:        %s\n", formatBytes(r.TextBytes))
	fmt.Fprintf(w, "║   Chunks:      %d (%d empty)\n", r.Chunks, r.EmptyChunks)
	fmt.Fprintf(w, "║   Stored:      %d\n", r.Stored)
	if r.Lineage {
		fmt.Fprintf(w, "║   Lineage:     recorded\n")
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the report as formatted JSON.
func (r *IngestReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func formatBytes(b int) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
