package rpcapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/prattcmp/vecembed/internal/ingest"
	"github.com/prattcmp/vecembed/internal/query"
	"github.com/prattcmp/vecembed/internal/sourcedb"
	"github.com/prattcmp/vecembed/internal/vectorstore"
)

type fakeIngester struct {
	lastDocs []ingest.Document
	err      error
}

func (f *fakeIngester) IngestAll(ctx context.Context, documents []ingest.Document) error {
	f.lastDocs = documents
	return f.err
}

type fakeRetriever struct {
	docs       []query.Document
	err        error
	lastUserID int64
	lastFilter map[string][]int64
}

func (f *fakeRetriever) Retrieve(ctx context.Context, q, taskDescription string, userID int64, filterIDs map[string][]int64, limit uint64, params *vectorstore.SearchParams) ([]query.Document, error) {
	f.lastUserID = userID
	f.lastFilter = filterIDs
	return f.docs, f.err
}

func TestService_StoreVectorEmbedding_RejectsEmptyText(t *testing.T) {
	svc := NewService(&fakeIngester{}, &fakeRetriever{})
	_, err := svc.StoreVectorEmbedding(context.Background(), &VectorEmbeddingRequest{TableName: "contents", DocumentID: 1})
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestService_StoreVectorEmbedding_Success(t *testing.T) {
	ing := &fakeIngester{}
	svc := NewService(ing, &fakeRetriever{})
	_, err := svc.StoreVectorEmbedding(context.Background(), &VectorEmbeddingRequest{TableName: "contents", DocumentID: 1, Text: "hello"})
	require.NoError(t, err)
	require.Len(t, ing.lastDocs, 1)
	require.Equal(t, int64(1), ing.lastDocs[0].ID)
}

func TestService_StoreVectorEmbeddings_RejectsEmptyBatch(t *testing.T) {
	svc := NewService(&fakeIngester{}, &fakeRetriever{})
	_, err := svc.StoreVectorEmbeddings(context.Background(), &StoreVectorEmbeddingsRequest{})
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestService_RetrieveDocuments_RequiresQuery(t *testing.T) {
	svc := NewService(&fakeIngester{}, &fakeRetriever{})
	_, err := svc.RetrieveDocuments(context.Background(), &RetrieveDocumentsRequest{})
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestService_RetrieveDocuments_Success(t *testing.T) {
	retr := &fakeRetriever{docs: []query.Document{{TableName: "contents", DocumentID: 7, UserID: 3, Start: 0, End: 50, Score: 0.8}}}
	svc := NewService(&fakeIngester{}, retr)
	reply, err := svc.RetrieveDocuments(context.Background(), &RetrieveDocumentsRequest{
		Query:  "refund policy",
		UserID: 3,
	})
	require.NoError(t, err)
	require.Len(t, reply.Documents, 1)
	require.Equal(t, uint64(7), reply.Documents[0].DocumentID)
	require.Equal(t, int64(3), reply.Documents[0].UserID)
	require.Equal(t, float32(0.8), reply.Documents[0].RankingScore)
}

func TestService_RetrieveDocuments_PassesUserIDAndFilterIDsThrough(t *testing.T) {
	retr := &fakeRetriever{}
	svc := NewService(&fakeIngester{}, retr)
	_, err := svc.RetrieveDocuments(context.Background(), &RetrieveDocumentsRequest{
		Query:     "q",
		UserID:    9,
		FilterIDs: map[string]IDList{"contents": {IDs: []int64{1, 2}}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(9), retr.lastUserID)
	require.ElementsMatch(t, []int64{1, 2}, retr.lastFilter["contents"])
}

func TestToStatus_MapsUnknownEntityToInvalidArgument(t *testing.T) {
	err := toStatus(&sourcedb.UnknownEntity{Name: "bogus"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestToStatus_MapsStoreErrorToInternal(t *testing.T) {
	err := toStatus(&vectorstore.Error{Op: "upsert", Err: context.DeadlineExceeded})
	require.Equal(t, codes.Internal, status.Code(err))
}
