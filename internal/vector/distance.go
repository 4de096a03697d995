package vector

import (
	"fmt"
	"math"
	"sort"
)

// CosineDistance returns 1 - cos(a, b). A zero vector is at distance 1 from
// everything.
func CosineDistance(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1, nil
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb))), nil
}

// Nearest ranks records by cosine distance to query and returns the closest
// topK. Ties keep the input order.
func Nearest(records []Record, query []float32, topK int) ([]Match, error) {
	matches := make([]Match, 0, len(records))
	for _, r := range records {
		d, err := CosineDistance(query, r.Embedding)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.ID, err)
		}
		matches = append(matches, Match{
			ID:       r.ID,
			Document: r.Document,
			Metadata: r.Metadata,
			Distance: d,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if topK >= 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}
