package document

import (
	"context"
	"sort"

	"github.com/acgodson/blueband-algo/internal/tokenizer"
	"github.com/acgodson/blueband-algo/internal/vector"
)

// Result is a document paired with the chunks that matched a query. Its
// score, used to rank documents, is the best chunk score.
type Result struct {
	*Document
	Chunks []vector.QueryResult
}

// Section is a rendered piece of a document, sized for prompt assembly.
type Section struct {
	Text       string
	TokenCount int
	Score      float64
}

func newResult(index *Index, id, uri string, chunks []vector.QueryResult) *Result {
	return &Result{Document: newDocument(index, id, uri), Chunks: chunks}
}

// Score returns the maximum chunk score for the document.
func (r *Result) Score() float64 {
	best := 0.0
	for _, c := range r.Chunks {
		if c.Score > best {
			best = c.Score
		}
	}
	return best
}

// RenderSections returns up to maxSections of the document's text, best
// chunks first, each capped at maxTokens tokens. Chunk offsets index the
// stored text, so the text is fetched once and sliced per chunk.
func (r *Result) RenderSections(ctx context.Context, maxTokens, maxSections int) ([]Section, error) {
	if maxSections <= 0 {
		maxSections = 1
	}
	text, err := r.LoadText(ctx)
	if err != nil {
		return nil, err
	}

	ranked := make([]vector.QueryResult, len(r.Chunks))
	copy(ranked, r.Chunks)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > maxSections {
		ranked = ranked[:maxSections]
	}

	tok := r.index.tokenizer
	sections := make([]Section, 0, len(ranked))
	for _, chunk := range ranked {
		start := metaInt(chunk.Item.Metadata["startPos"])
		end := metaInt(chunk.Item.Metadata["endPos"])
		if start < 0 || end > len(text) || start >= end {
			continue
		}
		piece := text[start:end]
		tokens := tok.Encode(piece)
		if maxTokens > 0 && len(tokens) > maxTokens {
			piece = truncateToTokens(piece, tok, maxTokens)
			tokens = tok.Encode(piece)
		}
		sections = append(sections, Section{
			Text:       piece,
			TokenCount: len(tokens),
			Score:      chunk.Score,
		})
	}
	return sections, nil
}

// truncateToTokens shortens text on a rune boundary until it fits the token
// budget.
func truncateToTokens(text string, tok tokenizer.Tokenizer, budget int) string {
	for len(text) > 0 && len(tok.Encode(text)) > budget {
		cut := len(text) * 3 / 4
		for cut > 0 && text[cut]&0xC0 == 0x80 {
			cut--
		}
		text = text[:cut]
	}
	return text
}

// metaInt reads an integer metadata value. Values arrive as int when written
// in-process and as float64 after a JSON round trip.
func metaInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return -1
	}
}
