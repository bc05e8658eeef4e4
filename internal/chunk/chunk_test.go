package chunk

import (
	"strings"
	"testing"
)

// wordCounter is a deterministic stand-in for a real tokenizer: it counts
// whitespace-delimited words, which is enough to exercise the shrink loop
// and boundary snapping without linking a real model.
type wordCounter struct{}

func (wordCounter) Count(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

// byteCounter treats every byte as one token, useful for tests that want
// exact control over the mechanical cut point.
type byteCounter struct{}

func (byteCounter) Count(text string) (int, error) {
	return len(text), nil
}

func TestIterator_CoversEntireInput(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)
	chunks, err := CountAll(text, wordCounter{}, 20)
	if err != nil {
		t.Fatalf("CountAll: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}

	// P2 (elision invariant): each chunk's Start is exactly one past the
	// previous chunk's End, never equal to it.
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Start != chunks[i-1].End+1 {
			t.Fatalf("chunk %d starts at %d, want %d (prev end %d)", i, chunks[i].Start, chunks[i-1].End+1, chunks[i-1].End)
		}
	}

	last := chunks[len(chunks)-1]
	if last.End < len(text)-1 {
		t.Fatalf("last chunk ends at %d, want to reach near end of text (%d)", last.End, len(text))
	}
}

func TestIterator_RespectsTokenBudget(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon zeta eta theta iota kappa ", 30)
	chunks, err := CountAll(text, wordCounter{}, 10)
	if err != nil {
		t.Fatalf("CountAll: %v", err)
	}
	for i, c := range chunks {
		n, _ := wordCounter{}.Count(c.Text)
		if n > 10 {
			t.Fatalf("chunk %d has %d tokens, want <= 10", i, n)
		}
	}
}

func TestIterator_NeverSplitsUTF8Rune(t *testing.T) {
	text := strings.Repeat("héllo wörld café naïve résumé ", 40)
	chunks, err := CountAll(text, wordCounter{}, 8)
	if err != nil {
		t.Fatalf("CountAll: %v", err)
	}
	for i, c := range chunks {
		if !isValidUTF8(c.Text) {
			t.Fatalf("chunk %d is not valid utf-8: %q", i, c.Text)
		}
	}
}

func TestIterator_PrefersSentenceBoundary(t *testing.T) {
	// Construct text where a '.' sits within the search window of the
	// mechanical cut point so the iterator should prefer cutting there.
	text := "This is a short sentence. " + strings.Repeat("x", 5) + " more filler text continues here without punctuation for a while"
	it := New(text, byteCounter{}, 40)
	c, ok, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatal("expected a chunk")
	}
	if !strings.HasSuffix(c.Text, ".") {
		t.Fatalf("expected chunk to end at sentence boundary, got %q", c.Text)
	}
}

func TestIterator_EmptyInput(t *testing.T) {
	chunks, err := CountAll("", wordCounter{}, 10)
	if err != nil {
		t.Fatalf("CountAll: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty input, got %d", len(chunks))
	}
}

func TestIterator_SingleOversizedTokenMakesProgress(t *testing.T) {
	// A counter that always reports more tokens than the budget allows
	// must still let the iterator terminate rather than loop forever.
	text := "abcdefghij"
	it := New(text, constCounter{n: 1000}, 1)
	c, ok, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatal("expected forward progress even when over budget")
	}
	if len(c.Text) == 0 {
		t.Fatal("expected a non-empty chunk")
	}
}

type constCounter struct{ n int }

func (c constCounter) Count(string) (int, error) { return c.n, nil }

func TestIterator_MaxBytesCapsChunkSizeIndependentlyOfTokenBudget(t *testing.T) {
	// A counter that wildly undercounts tokens (relative to the 4:1
	// chars-per-token estimate) would otherwise produce a huge mechanical
	// cut; SetMaxBytes should still cap it.
	text := strings.Repeat("x", 1000)
	it := New(text, constCounter{n: 1}, 100) // budget allows plenty of tokens
	it.SetMaxBytes(50)

	c, ok, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatal("expected a chunk")
	}
	if len(c.Text) > 50 {
		t.Fatalf("chunk length %d exceeds configured max bytes 50", len(c.Text))
	}
}

func isValidUTF8(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return true
}
