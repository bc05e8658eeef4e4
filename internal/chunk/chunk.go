// Package chunk implements the Chunk Iterator (C2): splitting a document's
// text into token-bounded, UTF-8-safe chunks with a sentence-boundary
// heuristic, mirroring the original StringChunkIterator algorithm.
package chunk

import (
	"strings"
)

// TokenCounter counts tokens in a string (C1's contract, as seen by C2).
type TokenCounter interface {
	Count(text string) (int, error)
}

// charsPerTokenEstimate is the rough starting guess used to size the first
// mechanical cut before token-counting narrows it down (spec §4.2 step 2).
const charsPerTokenEstimate = 4

// maxSentenceSearchDistance bounds how far back from the mechanical cut
// point the iterator will look for a sentence-ending '.' (spec §4.2 step 4).
const maxSentenceSearchDistance = 50

// minSentenceSearchDistance is the closest a '.' can be to the mechanical
// cut point and still count as "found a sentence boundary" rather than
// "too close to matter" (spec §4.2 step 4).
const minSentenceSearchDistance = 10

// Chunk is one token-bounded slice of a document's text, with its byte
// offsets into the original string (spec §3).
type Chunk struct {
	Text  string
	Start int
	End   int // exclusive
}

// Iterator lazily produces Chunks from text, each containing at most
// maxTokens tokens as counted by counter. It is not safe for concurrent use
// by multiple goroutines; one Iterator per document.
type Iterator struct {
	text      string
	counter   TokenCounter
	maxTokens int
	maxBytes  int // 0 means unbounded
	start     int
	done      bool
}

// New returns an Iterator over text. maxTokens must be positive.
func New(text string, counter TokenCounter, maxTokens int) *Iterator {
	return &Iterator{text: text, counter: counter, maxTokens: maxTokens}
}

// SetMaxBytes imposes a hard ceiling on any single chunk's byte length,
// independent of the token budget. This guards against the
// charsPerTokenEstimate mechanical cut producing a pathologically large
// substring when real token density is much lower than the 4-chars-per-
// token estimate (configured via MAX_CHUNK_TEXT_LENGTH, spec §6). Zero
// (the default) leaves chunks bounded only by the token budget.
func (it *Iterator) SetMaxBytes(n int) { it.maxBytes = n }

// Next returns the next chunk, or ok=false once the iterator is exhausted.
//
// The algorithm: take a starting byte slice of length maxTokens*4 from the
// current position, snap it to a UTF-8 character boundary, then shrink it
// token-by-token-overshoot until its token count is at most maxTokens. Once
// within budget, look backward from the mechanical cut point for the nearest
// '.'; if it is more than 10 and at most 50 bytes before the cut, cut just
// after it instead, trading a slightly shorter chunk for a cleaner sentence
// boundary. The next chunk then starts one byte past the cut (an
// intentional one-byte elision, not an off-by-one: see the original
// implementation's `self.start = new_end + 1`), moved forward to the next
// UTF-8 character boundary if that byte falls inside a multi-byte rune.
func (it *Iterator) Next() (Chunk, bool, error) {
	if it.done || it.start >= len(it.text) {
		return Chunk{}, false, nil
	}

	remaining := it.text[it.start:]
	if len(remaining) == 0 {
		it.done = true
		return Chunk{}, false, nil
	}

	substrSize := it.maxTokens * charsPerTokenEstimate
	if substrSize > len(remaining) {
		substrSize = len(remaining)
	}
	if it.maxBytes > 0 && substrSize > it.maxBytes {
		substrSize = it.maxBytes
	}
	substrSize = snapToCharBoundary(remaining, substrSize)

	for substrSize > 0 {
		candidate := remaining[:substrSize]
		tokenCount, err := it.counter.Count(candidate)
		if err != nil {
			return Chunk{}, false, err
		}
		if tokenCount <= it.maxTokens {
			break
		}
		overshoot := tokenCount - it.maxTokens
		shrinkBy := overshoot
		if shrinkBy < 1 {
			shrinkBy = 1
		}
		substrSize -= shrinkBy
		substrSize = snapToCharBoundary(remaining, substrSize)
	}
	if substrSize <= 0 {
		// A single rune already exceeds the budget; emit it anyway so the
		// iterator always makes forward progress.
		substrSize = 1
		for substrSize < len(remaining) && isUTF8Continuation(remaining[substrSize]) {
			substrSize++
		}
	}

	cutPoint := substrSize
	if sentenceCut, ok := findSentenceBoundary(remaining, cutPoint); ok {
		cutPoint = sentenceCut
	}

	chunkText := remaining[:cutPoint]
	startOffset := it.start
	endOffset := it.start + cutPoint

	nextStart := endOffset + 1
	for nextStart < len(it.text) && isUTF8Continuation(it.text[nextStart]) {
		nextStart++
	}
	if nextStart >= len(it.text) {
		it.done = true
	}
	it.start = nextStart

	return Chunk{Text: chunkText, Start: startOffset, End: endOffset}, true, nil
}

// snapToCharBoundary walks size backward until it no longer splits a
// multi-byte UTF-8 rune in s.
func snapToCharBoundary(s string, size int) int {
	if size >= len(s) {
		return len(s)
	}
	for size > 0 && isUTF8Continuation(s[size]) {
		size--
	}
	return size
}

func isUTF8Continuation(b byte) bool { return b&0xC0 == 0x80 }

// findSentenceBoundary looks backward from cutPoint in s for the single
// nearest '.' and returns the byte offset just after it (so the '.' itself
// is included in the emitted chunk) only if its distance from cutPoint
// falls in (minSentenceSearchDistance, maxSentenceSearchDistance]. Unlike a
// search that keeps walking past a too-close '.' to find an earlier one in
// range, only the nearest '.' is ever considered — if it's out of range, or
// there is none, the mechanical cut point is kept as-is.
func findSentenceBoundary(s string, cutPoint int) (int, bool) {
	if cutPoint <= 0 || cutPoint > len(s) {
		return 0, false
	}
	window := s[:cutPoint]
	idx := strings.LastIndexByte(window, '.')
	if idx < 0 {
		return 0, false
	}
	distance := cutPoint - (idx + 1)
	if distance <= minSentenceSearchDistance || distance > maxSentenceSearchDistance {
		return 0, false
	}
	return idx + 1, true
}

// CountAll is a convenience used by callers (and tests) that want every
// chunk of a document at once rather than driving the iterator themselves.
func CountAll(text string, counter TokenCounter, maxTokens int) ([]Chunk, error) {
	return CountAllBounded(text, counter, maxTokens, 0)
}

// CountAllBounded is CountAll with an additional hard per-chunk byte
// ceiling (0 means unbounded); see Iterator.SetMaxBytes.
func CountAllBounded(text string, counter TokenCounter, maxTokens, maxBytes int) ([]Chunk, error) {
	it := New(text, counter, maxTokens)
	it.SetMaxBytes(maxBytes)
	var out []Chunk
	for {
		c, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

// TrimmedLen reports the length of s with trailing whitespace removed.
func TrimmedLen(s string) int { return len(strings.TrimRight(s, " \t\r\n")) }
