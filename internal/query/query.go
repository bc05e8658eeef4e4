// Package query implements the Query Engine (C7): embedding a single
// natural-language query and retrieving matching document chunks from the
// vector store, scoped to zero or more document ids per source table.
package query

import (
	"context"
	"fmt"

	"github.com/prattcmp/vecembed/internal/embedclient"
	"github.com/prattcmp/vecembed/internal/vectorstore"
)

// DefaultTaskDescription is the instruction given to the embedding model
// for retrieval queries, matching the original's fixed task string.
const DefaultTaskDescription = "Given a search query, retrieve relevant passages that answer the query"

// DefaultLimit is the number of results returned when the caller doesn't
// override it (spec §6).
const DefaultLimit = 100

// contentsTable and uploadedFilesTable are the two source tables the
// filter built by Retrieve always covers (spec §4.7 step 2): these two
// branches are fixed, not caller-configurable, which is precisely what
// keeps the uploaded_files branch's user scope from ever being something a
// caller can widen (P5).
const (
	contentsTable      = "contents"
	uploadedFilesTable = "uploaded_files"
)

// Embedder is C3's contract as seen by the Query Engine.
type Embedder interface {
	EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error)
}

// Document is one retrieved chunk's location, owning user, and relevance
// score, sufficient for the caller to re-fetch the underlying text from the
// source table.
type Document struct {
	TableName  string
	DocumentID int64
	UserID     int64
	Start      uint64
	End        uint64
	Score      float32
}

// Engine answers retrieval queries against the vector store.
type Engine struct {
	Embedder Embedder
	Store    vectorstore.Store
}

// New constructs a Query Engine over embedder and store.
func New(embedder Embedder, store vectorstore.Store) *Engine {
	return &Engine{Embedder: embedder, Store: store}
}

// Retrieve embeds q (with the taskDescription instruction prefix, defaulting
// to DefaultTaskDescription when empty) and searches a filter built from
// exactly two fixed branches (spec §4.7 step 2): contents, optionally
// narrowed to filterIDs["contents"], and uploaded_files, always pinned to
// userID in addition to any filterIDs["uploaded_files"] narrowing. The
// caller cannot widen or remove the uploaded_files branch's user scope —
// userID always comes from the request's own authenticated identity, never
// from a per-branch value the caller supplies. limit <= 0 uses
// DefaultLimit.
func (e *Engine) Retrieve(ctx context.Context, q, taskDescription string, userID int64, filterIDs map[string][]int64, limit uint64, params *vectorstore.SearchParams) ([]Document, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if taskDescription == "" {
		taskDescription = DefaultTaskDescription
	}

	formatted := embedclient.FormatQuery(taskDescription, q)
	vectors, err := e.Embedder.EmbedBatch(ctx, []string{formatted})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: no vector returned")
	}

	uid := userID
	filter := &vectorstore.Filter{Branches: []vectorstore.Branch{
		{TableName: contentsTable, IDs: filterIDs[contentsTable]},
		{TableName: uploadedFilesTable, UserID: &uid, IDs: filterIDs[uploadedFilesTable]},
	}}

	hits, err := e.Store.Search(ctx, vectors[0], limit, filter, params)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]Document, len(hits))
	for i, h := range hits {
		out[i] = Document{
			TableName:  h.TableName,
			DocumentID: h.DocumentID,
			UserID:     h.UserID,
			Start:      h.Start,
			End:        h.End,
			Score:      h.Score,
		}
	}
	return out, nil
}
