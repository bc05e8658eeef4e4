// Package rpcapi implements the RPC Facade (C8): the three unary methods
// spec.md §6 defines, their wire messages, and the mapping from internal
// error kinds to gRPC status codes.
package rpcapi

// VectorEmbeddingRequest is the wire shape of a single document to embed
// and store (spec §6).
type VectorEmbeddingRequest struct {
	TableName  string `json:"table_name"`
	DocumentID int64  `json:"document_id"`
	UserID     *int64 `json:"user_id,omitempty"`
	Text       string `json:"text"`
}

// StoreVectorEmbeddingsRequest batches multiple single-document requests
// into one call (spec §6).
type StoreVectorEmbeddingsRequest struct {
	Requests []VectorEmbeddingRequest `json:"requests"`
}

// StoreReply acknowledges a successful store call; it carries no payload
// beyond success, matching the original's unit-returning RPCs.
type StoreReply struct{}

// IDList is a repeated list of document ids scoped to one source table
// (spec §6).
type IDList struct {
	IDs []int64 `json:"ids"`
}

// RetrieveDocumentsRequest asks for the documents most relevant to Query,
// using TaskDescription as the embedding instruction, scoped to the
// caller's own UserID and optionally narrowed per table by FilterIDs (spec
// §4.7, §6). There is deliberately no per-table, caller-supplied user
// scope: the service pins the uploaded_files branch to UserID itself (see
// Service.RetrieveDocuments), so a caller can never widen it.
type RetrieveDocumentsRequest struct {
	Query           string            `json:"query"`
	TaskDescription string            `json:"task_description,omitempty"`
	UserID          int64             `json:"user_id"`
	FilterIDs       map[string]IDList `json:"filter_ids,omitempty"`
	Limit           uint64            `json:"limit,omitempty"`
}

// DocumentReply is one retrieved chunk's location, owning user, and
// relevance score (spec §6).
type DocumentReply struct {
	TableName    string  `json:"table_name"`
	DocumentID   uint64  `json:"id"`
	UserID       int64   `json:"user_id"`
	RankingScore float32 `json:"ranking_score"`
	Start        uint64  `json:"start"`
	End          uint64  `json:"end"`
}

// RetrieveDocumentsReply wraps the ordered list of matches.
type RetrieveDocumentsReply struct {
	Documents []DocumentReply `json:"documents"`
}
