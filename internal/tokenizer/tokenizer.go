// Package tokenizer wraps a Hugging Face tokenizer (C1: Tokenizer Facade)
// so the rest of the service can count tokens without knowing anything
// about the underlying model's vocabulary or FFI binding.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/daulet/tokenizers"
)

// ModelName is the embedding model whose tokenizer defines "a token" for
// chunk sizing purposes throughout the service (spec §3).
const ModelName = "silatus/gte-Qwen2-7B-instruct-INT4"

// padTokenID and maxSequenceLength mirror the tokenizer configuration the
// original implementation applies on load (instances.rs): batch-longest
// padding against a fixed pad id, and truncation at 65536 tokens.
const (
	padToken          = "<|endoftext|>"
	padTokenID        = uint32(151643)
	maxSequenceLength = 65536
)

// Error reports a tokenizer load or encode failure (EmbeddingError's
// TokenizerError(String) variant).
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("tokenizer %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Tokenizer counts tokens in UTF-8 text. It is safe for concurrent use.
type Tokenizer struct {
	mu   sync.Mutex
	tk   *tokenizers.Tokenizer
}

// Load loads ModelName from the given local path (a directory containing
// tokenizer.json, previously fetched using hfToken if the repo is gated).
// It uses the tokenizer file's own settings as-is: no truncation or padding
// (padTokenID, maxSequenceLength) is applied on top of them.
//
// Loading is expensive and is meant to happen once per process; cmd/vecembed
// loads it once in main, not per request.
func Load(tokenizerPath string) (*Tokenizer, error) {
	tk, err := tokenizers.FromFile(tokenizerPath)
	if err != nil {
		return nil, &Error{Op: "load", Err: err}
	}
	return &Tokenizer{tk: tk}, nil
}

// Close releases the underlying FFI resources. Call once at process exit.
func (t *Tokenizer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tk.Close()
}

// Count returns the number of tokens text encodes to, including any
// special tokens the model's tokenizer adds. Used by the Chunk Iterator
// (C2) to decide where a chunk boundary falls (spec §4.2).
func (t *Tokenizer) Count(text string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	encoding := t.tk.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())
	return len(encoding.IDs), nil
}

// MaxSequenceLength returns maxSequenceLength (65536). Load does not apply
// it to the underlying tokenizer, so Count is not capped at this value.
func (t *Tokenizer) MaxSequenceLength() int { return maxSequenceLength }
