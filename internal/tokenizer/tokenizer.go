// Package tokenizer counts tokens for chunk sizing and batch budgeting.
package tokenizer

import "unicode"

// Tokenizer converts text into token ids. Only the count of ids matters to
// callers; the ids themselves just need to be deterministic.
type Tokenizer interface {
	Encode(text string) []int
}

// Heuristic is a word-piece tokenizer with hash-based ids. It approximates
// model tokenizers closely enough for budgeting: runs of letters or digits are
// one token each, with long runs split every pieceLen runes, and every
// punctuation rune is its own token.
type Heuristic struct{}

const pieceLen = 6

// NewHeuristic returns the default tokenizer.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Encode splits text into word pieces and returns one hash id per piece.
func (h *Heuristic) Encode(text string) []int {
	var ids []int
	run := make([]rune, 0, pieceLen)
	flush := func() {
		if len(run) > 0 {
			ids = append(ids, hashRunes(run))
			run = run[:0]
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			run = append(run, r)
			if len(run) == pieceLen {
				flush()
			}
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			ids = append(ids, hashRunes([]rune{r}))
		}
	}
	flush()
	return ids
}

func hashRunes(rs []rune) int {
	h := 0
	for _, r := range rs {
		h = 31*h + int(r)
	}
	if h < 0 {
		h = -h
	}
	return h % 50000
}
