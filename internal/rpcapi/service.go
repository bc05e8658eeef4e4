package rpcapi

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/prattcmp/vecembed/internal/embedclient"
	"github.com/prattcmp/vecembed/internal/ingest"
	"github.com/prattcmp/vecembed/internal/query"
	"github.com/prattcmp/vecembed/internal/sourcedb"
	"github.com/prattcmp/vecembed/internal/tokenizer"
	"github.com/prattcmp/vecembed/internal/vectorstore"
)

// Ingester is C5's contract as seen by the RPC facade.
type Ingester interface {
	IngestAll(ctx context.Context, documents []ingest.Document) error
}

// Retriever is C7's contract as seen by the RPC facade.
type Retriever interface {
	Retrieve(ctx context.Context, q, taskDescription string, userID int64, filterIDs map[string][]int64, limit uint64, params *vectorstore.SearchParams) ([]query.Document, error)
}

// Service implements the three unary RPCs of spec §6, translating wire
// messages to and from the Ingest Engine and Query Engine's domain types.
type Service struct {
	Ingester  Ingester
	Retriever Retriever
}

// NewService constructs a Service over the given engines.
func NewService(ingester Ingester, retriever Retriever) *Service {
	return &Service{Ingester: ingester, Retriever: retriever}
}

// StoreVectorEmbedding embeds and stores a single document (spec §6).
func (s *Service) StoreVectorEmbedding(ctx context.Context, req *VectorEmbeddingRequest) (*StoreReply, error) {
	if req == nil || req.Text == "" {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}
	doc, err := toIngestDocument(*req)
	if err != nil {
		return nil, err
	}
	if err := s.Ingester.IngestAll(ctx, []ingest.Document{doc}); err != nil {
		return nil, toStatus(err)
	}
	return &StoreReply{}, nil
}

// StoreVectorEmbeddings embeds and stores a batch of documents (spec §6).
func (s *Service) StoreVectorEmbeddings(ctx context.Context, req *StoreVectorEmbeddingsRequest) (*StoreReply, error) {
	if req == nil || len(req.Requests) == 0 {
		return nil, status.Error(codes.InvalidArgument, "requests must be non-empty")
	}
	docs := make([]ingest.Document, len(req.Requests))
	for i, r := range req.Requests {
		doc, err := toIngestDocument(r)
		if err != nil {
			return nil, err
		}
		docs[i] = doc
	}
	if err := s.Ingester.IngestAll(ctx, docs); err != nil {
		return nil, toStatus(err)
	}
	return &StoreReply{}, nil
}

// RetrieveDocuments answers a natural-language query with the most
// relevant document chunks (spec §6). The caller supplies only its own
// user_id and, per table, an optional id allow-list; the fixed two-branch
// filter construction (contents, uploaded_files pinned to that user_id) is
// the Query Engine's job, not something a caller can shape directly (spec
// §4.7 step 2, P5).
func (s *Service) RetrieveDocuments(ctx context.Context, req *RetrieveDocumentsRequest) (*RetrieveDocumentsReply, error) {
	if req == nil || req.Query == "" {
		return nil, status.Error(codes.InvalidArgument, "query is required")
	}

	filterIDs := make(map[string][]int64, len(req.FilterIDs))
	for table, list := range req.FilterIDs {
		filterIDs[table] = list.IDs
	}

	docs, err := s.Retriever.Retrieve(ctx, req.Query, req.TaskDescription, req.UserID, filterIDs, req.Limit, nil)
	if err != nil {
		return nil, toStatus(err)
	}

	out := make([]DocumentReply, len(docs))
	for i, d := range docs {
		out[i] = DocumentReply{
			TableName:    d.TableName,
			DocumentID:   uint64(d.DocumentID),
			UserID:       d.UserID,
			RankingScore: d.Score,
			Start:        d.Start,
			End:          d.End,
		}
	}
	return &RetrieveDocumentsReply{Documents: out}, nil
}

func toIngestDocument(req VectorEmbeddingRequest) (ingest.Document, error) {
	if req.TableName == "" {
		return ingest.Document{}, status.Error(codes.InvalidArgument, "table_name is required")
	}
	return ingest.Document{
		TableName: req.TableName,
		ID:        req.DocumentID,
		UserID:    req.UserID,
		Text:      req.Text,
	}, nil
}

// toStatus maps the service's closed set of error kinds (spec §7) to gRPC
// status codes. Everything that isn't a recognized invalid-argument case
// maps to Internal, matching the original's From<EmbeddingError> for
// Status implementation.
func toStatus(err error) error {
	if err == nil {
		return nil
	}

	var unknownEntity *sourcedb.UnknownEntity
	if errors.As(err, &unknownEntity) {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	var tokenizerErr *tokenizer.Error
	if errors.As(err, &tokenizerErr) {
		return status.Error(codes.Internal, err.Error())
	}
	var embedErr *embedclient.Error
	if errors.As(err, &embedErr) {
		return status.Error(codes.Internal, err.Error())
	}
	var storeErr *vectorstore.Error
	if errors.As(err, &storeErr) {
		return status.Error(codes.Internal, err.Error())
	}
	var dbErr *sourcedb.Error
	if errors.As(err, &dbErr) {
		return status.Error(codes.Internal, err.Error())
	}
	var ingestErr *ingest.Error
	if errors.As(err, &ingestErr) {
		return status.Error(codes.Internal, err.Error())
	}

	return status.Error(codes.Internal, err.Error())
}
