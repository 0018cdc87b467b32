// Package tokencount estimates token counts for stored content (chunks,
// summaries, profile text) using the same tokenizer family the core model
// calls use, so stored token_count fields are comparable to the budgets in
// config.
package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*tiktoken.Tiktoken)
)

// Get returns a cached tiktoken encoder for model, falling back to
// cl100k_base for unrecognized identifiers.
func Get(model string) (*tiktoken.Tiktoken, error) {
	cacheMu.RLock()
	if tkm, ok := cache[model]; ok {
		cacheMu.RUnlock()
		return tkm, nil
	}
	cacheMu.RUnlock()

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if tkm, ok := cache[model]; ok {
		return tkm, nil
	}

	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	cache[model] = tkm
	return tkm, nil
}

// Count returns the token length of text under model's tokenizer. On
// tokenizer resolution failure it falls back to a CHARS_PER_TOKEN=4
// character-based estimate, matching the heuristic the context assembler
// uses for budget enforcement when no tokenizer is applicable.
func Count(text, model string) int {
	tkm, err := Get(model)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(tkm.Encode(text, nil, nil))
}
