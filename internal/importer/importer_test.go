package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prattcmp/vecembed/internal/ingest"
	"github.com/prattcmp/vecembed/internal/sourcedb"
)

type fakeSource struct {
	pages     [][]sourcedb.Row
	texts     map[int64]string
	pageCalls int
}

func (f *fakeSource) FetchPage(ctx context.Context, d sourcedb.Descriptor, afterID int64, pageSize int) ([]sourcedb.Row, error) {
	if f.pageCalls >= len(f.pages) {
		return nil, nil
	}
	page := f.pages[f.pageCalls]
	f.pageCalls++
	return page, nil
}

func (f *fakeSource) StreamText(ctx context.Context, d sourcedb.Descriptor, id int64, offset, maxBytes int) (string, error) {
	text := f.texts[id]
	if offset >= len(text) {
		return "", nil
	}
	end := offset + maxBytes
	if end > len(text) {
		end = len(text)
	}
	return text[offset:end], nil
}

type fakeIngester struct {
	batches [][]ingest.Document
}

func (f *fakeIngester) IngestAll(ctx context.Context, documents []ingest.Document) error {
	f.batches = append(f.batches, documents)
	return nil
}

func TestDriver_Run_ImportsAllPages(t *testing.T) {
	source := &fakeSource{
		pages: [][]sourcedb.Row{
			{
				{ID: 1, ContentLen: 5},
				{ID: 2, ContentLen: 7},
			},
		},
		texts: map[int64]string{
			1: "hello",
			2: "goodbye",
		},
	}
	ing := &fakeIngester{}
	d := New(source, ing, 8192)

	err := d.Run(context.Background(), "contents", 0)
	require.NoError(t, err)
	require.NotEmpty(t, ing.batches)

	var seenIDs []int64
	for _, batch := range ing.batches {
		for _, doc := range batch {
			seenIDs = append(seenIDs, doc.ID)
		}
	}
	require.ElementsMatch(t, []int64{1, 2}, seenIDs)
}

func TestDriver_Run_UnknownTableReturnsError(t *testing.T) {
	d := New(&fakeSource{}, &fakeIngester{}, 0)
	err := d.Run(context.Background(), "not_a_real_table", 0)
	require.Error(t, err)
	var unknown *sourcedb.UnknownEntity
	require.ErrorAs(t, err, &unknown)
}

func TestDriver_ProcessPage_FlushesOnMemoryBudget(t *testing.T) {
	source := &fakeSource{
		texts: map[int64]string{
			1: "aaaaaaaaaa", // 10 bytes
			2: "bbbbbbbbbb", // 10 bytes
		},
	}
	ing := &fakeIngester{}
	d := &Driver{Source: source, Ingester: ing, MemLimit: 15} // forces a flush between rows

	descriptor, _ := sourcedb.Lookup("contents")
	rows := []sourcedb.Row{
		{ID: 1, ContentLen: 10},
		{ID: 2, ContentLen: 10},
	}
	err := d.processPage(context.Background(), descriptor, rows)
	require.NoError(t, err)
	require.Len(t, ing.batches, 2, "expected the memory budget to force two separate flushes")
}
