// Package knowledge exposes brand knowledge as a ranked snippet lookup.
// Ingestion lives elsewhere; the engine only ever queries.
package knowledge

import (
	"context"
	"sort"
	"strings"
)

// Snippet is one ranked piece of brand knowledge.
type Snippet struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float32 `json:"score"`
}

// Lookup answers free-text queries with the topK most relevant snippets.
type Lookup interface {
	Query(ctx context.Context, text string, topK int) ([]Snippet, error)
}

// Static is an in-memory Lookup over a fixed snippet set, ranked by
// word overlap. Used in tests and as the default when no vector store
// is configured.
type Static struct {
	snippets []Snippet
}

// NewStatic returns a Lookup over the given snippets.
func NewStatic(snippets []Snippet) *Static {
	return &Static{snippets: snippets}
}

// Query ranks snippets by the number of query words they contain.
func (s *Static) Query(_ context.Context, text string, topK int) ([]Snippet, error) {
	words := strings.Fields(strings.ToLower(text))
	var out []Snippet
	for _, sn := range s.snippets {
		lower := strings.ToLower(sn.Content)
		score := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				score++
			}
		}
		if score > 0 {
			sn.Score = float32(score) / float32(len(words)+1)
			out = append(out, sn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
