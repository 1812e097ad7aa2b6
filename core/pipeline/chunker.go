package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/siherrmann/briefings/model"
)

// TokenChunker splits text into windows of at most maxTokens tokens where
// consecutive windows share exactly overlap tokens.
type TokenChunker struct {
	tokenizer Tokenizer
	maxTokens int
	overlap   int
}

// NewTokenChunker validates the window budget. overlap must be in [0, maxTokens).
func NewTokenChunker(tokenizer Tokenizer, maxTokens int, overlap int) (*TokenChunker, error) {
	if tokenizer == nil {
		return nil, fmt.Errorf("%w: tokenizer is nil", model.ErrInvalidConfig)
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens must be positive, got %d", model.ErrInvalidConfig, maxTokens)
	}
	if overlap < 0 || overlap >= maxTokens {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", model.ErrInvalidConfig, maxTokens, overlap)
	}

	return &TokenChunker{
		tokenizer: tokenizer,
		maxTokens: maxTokens,
		overlap:   overlap,
	}, nil
}

// Chunk returns the windows of text in order. Blank text has no windows,
// text of at most maxTokens tokens has exactly one. Window text is the
// decoded token span without trimming. A window is shortened so that neither
// its end nor the start of the next window cuts a multi-byte character.
// Only when no such cut exists within the budget are the broken bytes at the
// edge replaced with U+FFFD.
func (c *TokenChunker) Chunk(text string) []model.Window {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	tokens := c.tokenizer.Encode(text)
	n := len(tokens)
	if n == 0 {
		return nil
	}
	boundary := c.runeBoundaries(tokens)

	var windows []model.Window
	start := 0
	for {
		end := c.windowEnd(start, n, boundary)
		span := append([]int(nil), tokens[start:end]...)

		windows = append(windows, model.Window{
			Index:      len(windows),
			Text:       strings.ToValidUTF8(c.tokenizer.Decode(span), "\uFFFD"),
			Tokens:     span,
			TokenStart: start,
			TokenEnd:   end,
		})

		if end == n {
			break
		}
		start = end - c.overlap
	}

	return windows
}

// windowEnd picks the largest end within the budget at which both the window
// end and the next window start fall between characters.
func (c *TokenChunker) windowEnd(start int, n int, boundary []bool) int {
	end := min(start+c.maxTokens, n)
	if end == n {
		return end
	}
	for e := end; e-c.overlap > start; e-- {
		if boundary[e] && boundary[e-c.overlap] {
			return e
		}
	}
	return end
}

// runeBoundaries reports for every token offset whether the decoded text up to
// it ends on a character boundary. Tokenizers whose single token decodings do
// not add up to the full decoding are taken to never split characters.
func (c *TokenChunker) runeBoundaries(tokens []int) []bool {
	boundary := make([]bool, len(tokens)+1)
	for i := range boundary {
		boundary[i] = true
	}

	full := c.tokenizer.Decode(tokens)
	offsets := make([]int, len(tokens)+1)
	for i, token := range tokens {
		offsets[i+1] = offsets[i] + len(c.tokenizer.Decode([]int{token}))
	}
	if offsets[len(tokens)] != len(full) {
		return boundary
	}

	for i, offset := range offsets {
		if offset < len(full) {
			boundary[i] = utf8.RuneStart(full[offset])
		}
	}
	return boundary
}

// Overlap returns the configured overlap in tokens.
func (c *TokenChunker) Overlap() int {
	return c.overlap
}
