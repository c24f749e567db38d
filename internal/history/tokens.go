package history

import (
	"strings"
	"sync"
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// tokenizer counts answer tokens with tiktoken, falling back to a
// heuristic when the BPE tables are unavailable (offline machines).
type tokenizer struct {
	encoder  *tiktoken.Tiktoken
	fallback bool
}

var (
	defaultTokenizer     *tokenizer
	defaultTokenizerOnce sync.Once
)

func getTokenizer() *tokenizer {
	defaultTokenizerOnce.Do(func() {
		t := &tokenizer{}
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			t.fallback = true
		} else {
			t.encoder = enc
		}
		defaultTokenizer = t
	})
	return defaultTokenizer
}

// CountTokens estimates the token length of text.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	t := getTokenizer()
	if t.fallback {
		return heuristicTokenCount(text)
	}
	return len(t.encoder.Encode(text, nil, nil))
}

// heuristicTokenCount approximates BPE: ~4 chars per token for ASCII,
// CJK runes counted individually.
func heuristicTokenCount(text string) int {
	ascii := 0
	wide := 0
	for _, r := range text {
		if r < 128 {
			ascii++
		} else {
			wide++
		}
	}
	tokens := ascii/4 + wide
	if tokens == 0 && utf8.RuneCountInString(strings.TrimSpace(text)) > 0 {
		tokens = 1
	}
	return tokens
}
