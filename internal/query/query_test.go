package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prattcmp/vecembed/internal/vectorstore"
)

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	return [][]float32{{0.1, 0.2, 0.3}}, nil
}

type fakeStore struct {
	lastFilter *vectorstore.Filter
	lastLimit  uint64
	results    []vectorstore.ScoredPoint
}

func (f *fakeStore) CollectionExists(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeStore) CreateCollection(ctx context.Context, dimension int) error { return nil }
func (f *fakeStore) Upsert(ctx context.Context, points []vectorstore.Point) error { return nil }
func (f *fakeStore) DeleteByDocumentIDs(ctx context.Context, ids []int64) error { return nil }

func (f *fakeStore) Search(ctx context.Context, vector []float32, limit uint64, filter *vectorstore.Filter, params *vectorstore.SearchParams) ([]vectorstore.ScoredPoint, error) {
	f.lastFilter = filter
	f.lastLimit = limit
	return f.results, nil
}

func TestEngine_Retrieve_AlwaysIncludesBothFixedBranches(t *testing.T) {
	store := &fakeStore{results: []vectorstore.ScoredPoint{
		{Score: 0.9, DocumentID: 5, TableName: "contents", Start: 0, End: 100},
	}}
	e := New(fakeEmbedder{}, store)

	filterIDs := map[string][]int64{"contents": {5, 6}}
	docs, err := e.Retrieve(context.Background(), "what is the refund policy", "", 7, filterIDs, 0, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, int64(5), docs[0].DocumentID)

	require.NotNil(t, store.lastFilter)
	require.Len(t, store.lastFilter.Branches, 2, "both fixed branches must appear even though only one has an id restriction")

	var sawContents, sawUploaded bool
	for _, b := range store.lastFilter.Branches {
		if b.TableName == "contents" {
			sawContents = true
			require.ElementsMatch(t, []int64{5, 6}, b.IDs)
			require.Nil(t, b.UserID, "contents is never user-scoped")
		}
		if b.TableName == "uploaded_files" {
			sawUploaded = true
			require.Empty(t, b.IDs)
			require.NotNil(t, b.UserID)
			require.Equal(t, int64(7), *b.UserID, "uploaded_files must always be pinned to the caller's own user_id")
		}
	}
	require.True(t, sawContents)
	require.True(t, sawUploaded)
}

func TestEngine_Retrieve_UploadedFilesBranchIgnoresCallerOverride(t *testing.T) {
	// filterIDs only narrows ids within a table; it can never substitute a
	// different user_id for the uploaded_files branch.
	store := &fakeStore{}
	e := New(fakeEmbedder{}, store)

	filterIDs := map[string][]int64{"uploaded_files": {1, 2}}
	_, err := e.Retrieve(context.Background(), "q", "", 42, filterIDs, 0, nil)
	require.NoError(t, err)

	for _, b := range store.lastFilter.Branches {
		if b.TableName == "uploaded_files" {
			require.Equal(t, int64(42), *b.UserID)
		}
	}
}

func TestEngine_Retrieve_DefaultLimit(t *testing.T) {
	store := &fakeStore{}
	e := New(fakeEmbedder{}, store)
	_, err := e.Retrieve(context.Background(), "q", "", 1, nil, 0, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(DefaultLimit), store.lastLimit)
}
