// Package splitter divides document text into token-bounded chunks with
// character offsets back into the source.
package splitter

import (
	"strings"

	"github.com/acgodson/blueband-algo/internal/tokenizer"
)

// Config controls how text is split.
type Config struct {
	// ChunkSize is the token budget per chunk. Defaults to 512.
	ChunkSize int
	// ChunkOverlap is the number of tokens from the end of a chunk repeated
	// at the start of the next one. Defaults to 0.
	ChunkOverlap int
	// KeepSeparators keeps separator text attached to the following segment
	// instead of dropping it.
	KeepSeparators bool
	// DocType selects the separator hierarchy (for example "md" or "go").
	// Empty means plain text.
	DocType string
	// Tokenizer counts tokens. Defaults to the heuristic tokenizer.
	Tokenizer tokenizer.Tokenizer
}

// Chunk is one token-bounded piece of the source text. StartPos and EndPos
// are byte offsets into the source such that text[StartPos:EndPos] == Text.
type Chunk struct {
	Text     string
	Tokens   []int
	StartPos int
	EndPos   int
}

// Splitter splits text by a document-type specific separator hierarchy, then
// merges adjacent segments up to the chunk token budget.
type Splitter struct {
	cfg        Config
	separators []string
}

// New returns a splitter for cfg, applying defaults for unset fields.
func New(cfg Config) *Splitter {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 512
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.Tokenizer == nil {
		cfg.Tokenizer = tokenizer.NewHeuristic()
	}
	return &Splitter{cfg: cfg, separators: separatorsFor(cfg.DocType)}
}

func separatorsFor(docType string) []string {
	switch docType {
	case "md", "markdown", "mdx":
		return []string{"\n## ", "\n### ", "\n# ", "\n\n", "\n", " "}
	case "go", "js", "ts", "py", "java", "rs", "c", "cpp":
		return []string{"\n\n", "\n", " "}
	default:
		return []string{"\n\n", "\n", ". ", " "}
	}
}

// span is a half-open byte range into the source text.
type span struct {
	start, end int
}

// Split divides text into ordered chunks. Whitespace-only segments are
// dropped; every returned chunk is non-empty and within the token budget
// except single segments that cannot be subdivided further.
func (s *Splitter) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	leaves := s.splitSpan(text, span{0, len(text)}, 0)
	merged := s.merge(text, leaves)
	if s.cfg.ChunkOverlap > 0 {
		merged = s.overlap(text, merged)
	}

	chunks := make([]Chunk, 0, len(merged))
	for _, sp := range merged {
		piece := text[sp.start:sp.end]
		if strings.TrimSpace(piece) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Text:     piece,
			Tokens:   s.cfg.Tokenizer.Encode(piece),
			StartPos: sp.start,
			EndPos:   sp.end,
		})
	}
	return chunks
}

// splitSpan recursively divides a span until each piece fits the budget,
// walking down the separator hierarchy. A span no separator can divide is
// halved on a rune boundary as a last resort.
func (s *Splitter) splitSpan(text string, sp span, sepIndex int) []span {
	piece := text[sp.start:sp.end]
	if len(s.cfg.Tokenizer.Encode(piece)) <= s.cfg.ChunkSize {
		return []span{sp}
	}
	if sepIndex >= len(s.separators) {
		return s.halve(text, sp)
	}
	parts := s.splitBySeparator(text, sp, s.separators[sepIndex])
	if len(parts) < 2 {
		return s.splitSpan(text, sp, sepIndex+1)
	}
	var out []span
	for _, part := range parts {
		out = append(out, s.splitSpan(text, part, sepIndex+1)...)
	}
	return out
}

// splitBySeparator cuts a span at each occurrence of sep. With KeepSeparators
// the separator bytes stay attached to the segment that follows them;
// otherwise they belong to no segment.
func (s *Splitter) splitBySeparator(text string, sp span, sep string) []span {
	var cuts []int
	pos := sp.start
	for {
		i := strings.Index(text[pos:sp.end], sep)
		if i < 0 {
			break
		}
		cuts = append(cuts, pos+i)
		pos = pos + i + len(sep)
	}
	if len(cuts) == 0 {
		return []span{sp}
	}
	var parts []span
	prev := sp.start
	for _, cut := range cuts {
		if cut > prev {
			parts = append(parts, span{prev, cut})
		}
		if s.cfg.KeepSeparators {
			prev = cut
		} else {
			prev = cut + len(sep)
		}
	}
	if prev < sp.end {
		parts = append(parts, span{prev, sp.end})
	}
	return parts
}

// halve splits a span in two on a rune boundary near the middle.
func (s *Splitter) halve(text string, sp span) []span {
	mid := sp.start + (sp.end-sp.start)/2
	for mid > sp.start && !isRuneStart(text[mid]) {
		mid--
	}
	if mid == sp.start {
		return []span{sp}
	}
	left := s.splitSpan(text, span{sp.start, mid}, len(s.separators))
	right := s.splitSpan(text, span{mid, sp.end}, len(s.separators))
	return append(left, right...)
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// merge greedily joins adjacent leaf spans while the combined text stays
// within the token budget. Adjacent spans may have a gap between them when a
// separator was dropped; merged spans always cover the full range so offsets
// stay truthful.
func (s *Splitter) merge(text string, leaves []span) []span {
	var out []span
	for _, leaf := range leaves {
		if len(out) > 0 {
			joined := span{out[len(out)-1].start, leaf.end}
			if len(s.cfg.Tokenizer.Encode(text[joined.start:joined.end])) <= s.cfg.ChunkSize {
				out[len(out)-1] = joined
				continue
			}
		}
		out = append(out, leaf)
	}
	return out
}

// overlap extends each span backward over the tail of its predecessor by up
// to ChunkOverlap tokens.
func (s *Splitter) overlap(text string, spans []span) []span {
	out := make([]span, len(spans))
	copy(out, spans)
	for i := 1; i < len(out); i++ {
		prev := spans[i-1]
		start := out[i].start
		// Walk backward a word at a time until the overlap budget is spent.
		for start > prev.start {
			next := lastWordStart(text[prev.start:start]) + prev.start
			if next >= start {
				break
			}
			if len(s.cfg.Tokenizer.Encode(text[next:out[i].start])) > s.cfg.ChunkOverlap {
				break
			}
			start = next
		}
		out[i].start = start
	}
	return out
}

func lastWordStart(s string) int {
	i := len(s)
	for i > 0 && isSpaceByte(s[i-1]) {
		i--
	}
	for i > 0 && !isSpaceByte(s[i-1]) {
		i--
	}
	return i
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
