// Package ingest implements the Ingest Engine (C5): the orchestration
// between chunking, embedding, and vector-store writes for a batch of
// documents, including parallelism, collection bootstrap, and the
// replace-not-duplicate semantics that keep re-ingesting a document
// idempotent.
package ingest

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/prattcmp/vecembed/internal/chunk"
	"github.com/prattcmp/vecembed/internal/vectorstore"
)

// Embedder is C3's contract as seen by the Ingest Engine. Satisfied by
// *embedclient.Client.
type Embedder interface {
	EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error)
	Model() string
}

// SyncMarker is the contract the Ingest Engine needs from the relational
// source to satisfy the updated_at == qdrant_sync_at invariant: once a
// document's own chunks are all upserted, its row is marked synced
// immediately, independent of the rest of its ingest group (spec §3, §4.5
// step 6; original: create.rs's process_chunks). cmd/vecembed satisfies it
// with an adapter over (*sourcedb.DB).MarkSyncedByTable.
type SyncMarker interface {
	MarkSynced(ctx context.Context, tableName string, ids []int64) error
}

// DefaultMaxDocumentBatchSize caps the size of each group of documents that
// IngestAll processes concurrently, regardless of available parallelism
// (spec §5, env MAX_DOCUMENT_BATCH_SIZE, default 50).
const DefaultMaxDocumentBatchSize = 50

// DefaultMaxTextChunkBatchSize bounds how many chunks are embedded in a
// single request to the embedding service (spec §5, env
// MAX_TEXT_CHUNK_BATCH_SIZE, default 64).
const DefaultMaxTextChunkBatchSize = 64

// DefaultMaxChunkTextLength is the default Engine.MaxChunkBytes: a hard
// per-chunk byte ceiling the Chunk Iterator applies on top of the token
// budget (env MAX_CHUNK_TEXT_LENGTH, default 25000).
const DefaultMaxChunkTextLength = 25000

// DefaultMaxTokens is the per-chunk token budget the Chunk Iterator sizes
// against (spec §3: "MAX_TOKENS default 8192"; spec §4.5 step 3b: "Stream
// chunks from C2 with L = 8192"). This is unrelated to the tokenizer's own
// truncation bound (tokenizer.Tokenizer.MaxSequenceLength).
const DefaultMaxTokens = 8192

// Error reports an ingest failure tagged with the document it occurred on
// (EmbeddingError's various From-converted variants, applied per document
// in the original's per-document JoinSet).
type Error struct {
	DocumentID int64
	Op         string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ingest document %d: %s: %v", e.DocumentID, e.Op, e.Err)
}
func (e *Error) Unwrap() error { return e.Err }

// Document is one unit of ingest work: a table scope, a primary key, the
// full text to chunk and embed, and an optional owning user.
type Document struct {
	TableName string
	ID        int64
	UserID    *int64
	Text      string
}

// Engine drives C2–C4 to turn Documents into vector-store points.
type Engine struct {
	Tokenizer     *tokenEncoderAdapter
	Embedder      Embedder
	Store         vectorstore.Store
	Sync          SyncMarker // optional; nil skips sync-marking (e.g. tests with no source DB)
	MaxTokens     int
	MaxChunkBytes int // MAX_CHUNK_TEXT_LENGTH; 0 means unbounded
	BatchSize     int // MAX_DOCUMENT_BATCH_SIZE
	ChunkBatch    int // MAX_TEXT_CHUNK_BATCH_SIZE

	collectionExists atomic.Bool
	bootstrapMu      sync.Mutex
	bootstrapDone    bool
}

// tokenEncoderAdapter exists so Engine only depends on the Count method,
// matching chunk.TokenCounter, without importing the tokenizer package's
// FFI-bound concrete type into this package's public surface.
type tokenEncoderAdapter struct {
	Count func(string) (int, error)
}

func (a *tokenEncoderAdapter) count(text string) (int, error) { return a.Count(text) }

// NewTokenCounter adapts any `func(string) (int, error)` (typically
// (*tokenizer.Tokenizer).Count) into the counter Engine needs.
func NewTokenCounter(count func(string) (int, error)) *tokenEncoderAdapter {
	return &tokenEncoderAdapter{Count: count}
}

// New constructs an Engine with the defaults from spec §5. sync may be nil
// if the caller has no source-DB dependency to satisfy the sync invariant
// with (only acceptable outside of production use, e.g. tests). Whether the
// collection already exists is discovered lazily, from a real
// Store.CollectionExists(ctx) check, on the first IngestAll call — not
// assumed true or false up front.
func New(counter *tokenEncoderAdapter, embedder Embedder, store vectorstore.Store, sync SyncMarker, maxTokens int) *Engine {
	e := &Engine{
		Tokenizer:     counter,
		Embedder:      embedder,
		Store:         store,
		Sync:          sync,
		MaxTokens:     maxTokens,
		MaxChunkBytes: DefaultMaxChunkTextLength,
		BatchSize:     DefaultMaxDocumentBatchSize,
		ChunkBatch:    DefaultMaxTextChunkBatchSize,
	}
	return e
}

// IngestAll partitions documents into groups of at most BatchSize,
// processes groups sequentially, and processes documents within a group
// concurrently (spec §5: P = available_parallelism(), grouped,
// concurrent-within-group).
func (e *Engine) IngestAll(ctx context.Context, documents []Document) error {
	if err := e.ensureCollectionKnowledge(ctx); err != nil {
		return err
	}

	size := groupSize(len(documents), e.BatchSize)
	for start := 0; start < len(documents); start += size {
		end := start + size
		if end > len(documents) {
			end = len(documents)
		}
		group := documents[start:end]
		if err := e.ingestGroup(ctx, group); err != nil {
			return err
		}
	}
	return nil
}

// groupSize mirrors the original's `(len / available_parallelism).max(1)`,
// additionally capped by maxBatch (spec §5).
func groupSize(total, maxBatch int) int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	size := total / p
	if size < 1 {
		size = 1
	}
	if size > maxBatch {
		size = maxBatch
	}
	return size
}

// ensureCollectionKnowledge seeds collectionExists from a real
// Store.CollectionExists(ctx) check the first time it's needed, rather than
// only ever flipping the flag reactively after a successful upsert/create.
// Without this, a long-lived Engine that restarts against an already-
// populated collection would skip the first group's pre-delete and leave
// stale duplicate points behind (spec P3/P4: replace, not duplicate). The
// check itself only needs to happen once; a transient failure leaves
// bootstrapDone false so the next call retries it.
func (e *Engine) ensureCollectionKnowledge(ctx context.Context) error {
	if e.collectionExists.Load() {
		return nil
	}
	e.bootstrapMu.Lock()
	defer e.bootstrapMu.Unlock()
	if e.collectionExists.Load() || e.bootstrapDone {
		return nil
	}
	exists, err := e.Store.CollectionExists(ctx)
	if err != nil {
		return fmt.Errorf("check collection existence: %w", err)
	}
	e.bootstrapDone = true
	if exists {
		e.collectionExists.Store(true)
	}
	return nil
}

// ingestGroup pre-deletes any existing points for this group's document ids
// (if the collection is known to exist), then embeds and upserts every
// document in the group concurrently.
func (e *Engine) ingestGroup(ctx context.Context, group []Document) error {
	if e.collectionExists.Load() {
		ids := make([]int64, len(group))
		for i, d := range group {
			ids[i] = d.ID
		}
		if err := e.Store.DeleteByDocumentIDs(ctx, ids); err != nil {
			return fmt.Errorf("pre-delete group: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, doc := range group {
		doc := doc
		g.Go(func() error {
			return e.ingestDocument(gctx, doc)
		})
	}
	return g.Wait()
}

// ingestDocument chunks one document, embeds its chunks in sub-batches of
// at most ChunkBatch, builds points with fresh UUIDv7 ids, and upserts
// them. When an upsert fails because the collection is missing, it
// creates the collection (sized from the embedding dimension just
// observed) and retries once; per the resolved open question in
// SPEC_FULL.md §5.1, a successful retry is treated as success, not as the
// error the original's process_chunks unconditionally returned. Once every
// one of this document's own chunks is upserted, its row is marked synced
// immediately (spec §4.5 step 6) — independent of whether any other
// document in the same group succeeds or fails.
func (e *Engine) ingestDocument(ctx context.Context, doc Document) error {
	chunks, err := chunk.CountAllBounded(doc.Text, &countAdapter{e.Tokenizer}, e.MaxTokens, e.MaxChunkBytes)
	if err != nil {
		return &Error{DocumentID: doc.ID, Op: "chunk", Err: err}
	}
	if len(chunks) == 0 {
		return nil
	}

	for batchStart := 0; batchStart < len(chunks); batchStart += e.ChunkBatch {
		batchEnd := batchStart + e.ChunkBatch
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		sub := chunks[batchStart:batchEnd]

		texts := make([]string, len(sub))
		for i, c := range sub {
			texts[i] = c.Text
		}
		vectors, err := e.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return &Error{DocumentID: doc.ID, Op: "embed", Err: err}
		}
		if len(vectors) != len(sub) {
			return &Error{DocumentID: doc.ID, Op: "embed", Err: fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(sub))}
		}

		points := make([]vectorstore.Point, len(sub))
		for i, c := range sub {
			id, err := uuid.NewV7()
			if err != nil {
				return &Error{DocumentID: doc.ID, Op: "generate_id", Err: err}
			}
			points[i] = vectorstore.Point{
				ID:     id.String(),
				Vector: vectors[i],
				Payload: vectorstore.Payload{
					DocumentID: doc.ID,
					TableName:  doc.TableName,
					Start:      uint64(c.Start),
					End:        uint64(c.End),
					Model:      e.Embedder.Model(),
					UserID:     userIDUint64(doc.UserID),
				},
			}
		}

		if err := e.upsertWithBootstrap(ctx, points, len(vectors[0])); err != nil {
			return &Error{DocumentID: doc.ID, Op: "upsert", Err: err}
		}
	}

	if e.Sync != nil {
		if err := e.Sync.MarkSynced(ctx, doc.TableName, []int64{doc.ID}); err != nil {
			return &Error{DocumentID: doc.ID, Op: "mark_synced", Err: err}
		}
	}
	return nil
}

// upsertWithBootstrap tries an upsert; if it fails because the collection
// doesn't exist yet, it creates the collection (sized from dimension) and
// retries exactly once. A successful retry is success.
func (e *Engine) upsertWithBootstrap(ctx context.Context, points []vectorstore.Point, dimension int) error {
	err := e.Store.Upsert(ctx, points)
	if err == nil {
		e.collectionExists.Store(true)
		return nil
	}
	if !vectorstore.IsNotFound(err) {
		return err
	}

	if createErr := e.Store.CreateCollection(ctx, dimension); createErr != nil {
		return fmt.Errorf("create collection after upsert miss: %w (original upsert error: %v)", createErr, err)
	}
	e.collectionExists.Store(true)

	if retryErr := e.Store.Upsert(ctx, points); retryErr != nil {
		return fmt.Errorf("retry upsert after collection create: %w", retryErr)
	}
	return nil
}

func userIDUint64(id *int64) *uint64 {
	if id == nil {
		return nil
	}
	v := uint64(*id)
	return &v
}

// countAdapter satisfies chunk.TokenCounter using a tokenEncoderAdapter.
type countAdapter struct {
	a *tokenEncoderAdapter
}

func (c *countAdapter) Count(text string) (int, error) { return c.a.count(text) }
