package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

var setBpeLoader sync.Once

// TiktokenTokenizer tokenizes with an OpenAI BPE encoding such as cl100k_base.
// The encoding files are embedded, no download happens at runtime.
type TiktokenTokenizer struct {
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the named encoding.
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	setBpeLoader.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer encoding %s: %w", encoding, err)
	}

	return &TiktokenTokenizer{encoding: encoding, enc: enc}, nil
}

// Encode returns the token ids of text. Special tokens are treated as text.
func (t *TiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode returns the text of the tokens.
func (t *TiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// WordTokenizer treats every word together with its leading whitespace as one
// token. It needs no model files and is used offline and in tests. Ids are
// assigned in order of first appearance, so they are stable for one instance.
type WordTokenizer struct {
	mu    sync.Mutex
	ids   map[string]int
	words []string
}

func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{ids: map[string]int{}}
}

// Encode splits text into whitespace prefixed words. Trailing whitespace
// becomes a token of its own.
func (t *WordTokenizer) Encode(text string) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var tokens []int
	start := 0
	inWord := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if inWord && space {
			tokens = append(tokens, t.id(text[start:i]))
			start = i
		}
		inWord = !space
	}
	if start < len(text) {
		tokens = append(tokens, t.id(text[start:]))
	}
	return tokens
}

func (t *WordTokenizer) id(word string) int {
	if id, ok := t.ids[word]; ok {
		return id
	}
	id := len(t.words)
	t.ids[word] = id
	t.words = append(t.words, word)
	return id
}

// Decode joins the words of the tokens. Unknown ids are skipped.
func (t *WordTokenizer) Decode(tokens []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	for _, id := range tokens {
		if id >= 0 && id < len(t.words) {
			sb.WriteString(t.words[id])
		}
	}
	return sb.String()
}
