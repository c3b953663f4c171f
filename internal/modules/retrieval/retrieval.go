// Package retrieval provides session-scoped search over ingested
// source chunks. Results are best-effort: an unavailable backend, an
// empty index or a timeout all yield an empty list, never an error the
// caller must branch on.
package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/studycompanion/core/internal/modules/outline"
)

// Chunk is one retrievable unit of parsed source material.
type Chunk struct {
	ID     string         `json:"id"`
	Text   string         `json:"text"`
	Anchor outline.Anchor `json:"anchor"`
	Score  float64        `json:"score,omitempty"`
}

// Gateway is the retrieval capability consumed by note generation.
// Implementations must scope results strictly to the given session.
type Gateway interface {
	Query(ctx context.Context, sessionID, text string, k int) ([]Chunk, error)
}

// Store extends Gateway with chunk ingestion for session uploads.
type Store interface {
	Gateway
	Ingest(ctx context.Context, sessionID string, chunks []Chunk) error
	Count(ctx context.Context, sessionID string) (int, error)
	Clear(ctx context.Context, sessionID string) error
}

// Options tune query behavior shared by all Store implementations.
type Options struct {
	TopK     int
	MinScore float64
	Timeout  time.Duration
}

func (o Options) normalized() Options {
	if o.TopK <= 0 {
		o.TopK = 3
	}
	if o.MinScore <= 0 {
		o.MinScore = 0.1
	}
	if o.Timeout <= 0 {
		o.Timeout = 3 * time.Second
	}
	return o
}

// tokenize splits text into comparable tokens. Latin-script runs become
// lowercased words; CJK runs become character bigrams so that queries
// match without word segmentation.
func tokenize(text string) []string {
	var tokens []string
	var word strings.Builder
	var prevCJK rune

	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, strings.ToLower(word.String()))
			word.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			if prevCJK != 0 {
				tokens = append(tokens, string([]rune{prevCJK, r}))
			} else {
				tokens = append(tokens, string(r))
			}
			prevCJK = r
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			prevCJK = 0
			word.WriteRune(r)
		default:
			prevCJK = 0
			flush()
		}
	}
	flush()
	return tokens
}

// score rates a chunk against query tokens as the fraction of distinct
// query tokens the chunk contains.
func score(queryTokens []string, chunkText string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	chunkSet := make(map[string]struct{})
	for _, tok := range tokenize(chunkText) {
		chunkSet[tok] = struct{}{}
	}

	seen := make(map[string]struct{})
	matched := 0
	distinct := 0
	for _, tok := range queryTokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		distinct++
		if _, ok := chunkSet[tok]; ok {
			matched++
		}
	}
	if distinct == 0 {
		return 0
	}
	return float64(matched) / float64(distinct)
}

// rank scores, filters and truncates candidate chunks for a query.
func rank(query string, candidates []Chunk, opts Options) []Chunk {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return []Chunk{}
	}

	scored := make([]Chunk, 0, len(candidates))
	for _, c := range candidates {
		s := score(queryTokens, c.Text)
		if s < opts.MinScore {
			continue
		}
		c.Score = s
		scored = append(scored, c)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > opts.TopK {
		scored = scored[:opts.TopK]
	}
	return scored
}
