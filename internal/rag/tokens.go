package rag

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// CountTokens returns the cl100k_base token count of text. When the
// encoding cannot be loaded it estimates four characters per token.
func CountTokens(text string) int {
	encOnce.Do(func() {
		if e, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			enc = e
		}
	})
	if enc == nil {
		return EstimateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateTokens approximates a token count without an encoding table.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
