// Package importer implements the Import Driver (C6): paginating a source
// table, streaming each row's text in bounded slices, accumulating
// documents within a memory budget, and handing completed batches to the
// Ingest Engine.
package importer

import (
	"context"
	"fmt"

	"github.com/prattcmp/vecembed/internal/ingest"
	"github.com/prattcmp/vecembed/internal/sourcedb"
)

// PageSize is how many rows are fetched from the source table per page
// (original: IMPORT_PAGE_SIZE).
const PageSize = 100

// StreamSliceBytes bounds a single SUBSTRING read from a row's text column
// (original: MAX_TEXT_CHUNK_SIZE, 1 MiB).
const StreamSliceBytes = 1 << 20

// DefaultMemLimitMB is the default total memory budget for accumulated,
// not-yet-flushed document text (spec §6: MEM_LIMIT_MB, default 8192 ≈ 8
// GiB).
const DefaultMemLimitMB = 8192

// Ingester is the contract importer needs from the Ingest Engine.
type Ingester interface {
	IngestAll(ctx context.Context, documents []ingest.Document) error
}

// Source is the contract importer needs from the relational database.
// Marking rows synced is the Ingest Engine's responsibility (it happens per
// document, immediately after that document's own upsert succeeds — see
// ingest.Engine.Sync), not the Import Driver's.
type Source interface {
	FetchPage(ctx context.Context, d sourcedb.Descriptor, afterID int64, pageSize int) ([]sourcedb.Row, error)
	StreamText(ctx context.Context, d sourcedb.Descriptor, id int64, offset, maxBytes int) (string, error)
}

// Driver runs an import pass over one table.
type Driver struct {
	Source    Source
	Ingester  Ingester
	MemLimit  int64 // bytes
}

// New constructs a Driver with memLimitMB converted to bytes. memLimitMB <=
// 0 uses DefaultMemLimitMB.
func New(source Source, ingester Ingester, memLimitMB int) *Driver {
	if memLimitMB <= 0 {
		memLimitMB = DefaultMemLimitMB
	}
	return &Driver{Source: source, Ingester: ingester, MemLimit: int64(memLimitMB) * 1024 * 1024}
}

// Run imports every stale row (qdrant_sync_at != updated_at, by
// FetchPage's filter) from table, starting after startFrom, flushing
// accumulated documents to the Ingest Engine whenever the running byte
// total would exceed the configured memory budget (spec §4.6). The Ingest
// Engine marks each row synced itself, per document, as soon as that
// document's own upsert succeeds.
func (d *Driver) Run(ctx context.Context, tableName string, startFrom int64) error {
	descriptor, err := sourcedb.Lookup(tableName)
	if err != nil {
		return err
	}

	afterID := startFrom
	for {
		rows, err := d.Source.FetchPage(ctx, descriptor, afterID, PageSize)
		if err != nil {
			return fmt.Errorf("fetch page after %d: %w", afterID, err)
		}
		if len(rows) == 0 {
			return nil
		}

		if err := d.processPage(ctx, descriptor, rows); err != nil {
			return err
		}
		afterID = rows[len(rows)-1].ID
	}
}

// processPage streams and accumulates every row in the page, flushing to
// the Ingest Engine whenever adding the next row's text would exceed the
// memory budget, and always flushing whatever remains at the end of the
// page.
func (d *Driver) processPage(ctx context.Context, descriptor sourcedb.Descriptor, rows []sourcedb.Row) error {
	var (
		batch     []ingest.Document
		batchSize int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := d.Ingester.IngestAll(ctx, batch); err != nil {
			return fmt.Errorf("ingest batch: %w", err)
		}
		batch = nil
		batchSize = 0
		return nil
	}

	for _, row := range rows {
		text, err := d.readFullText(ctx, descriptor, row)
		if err != nil {
			return fmt.Errorf("read row %d: %w", row.ID, err)
		}

		rowBytes := int64(len(text))
		if batchSize+rowBytes > d.MemLimit && len(batch) > 0 {
			if err := flush(); err != nil {
				return err
			}
		}

		batch = append(batch, ingest.Document{
			TableName: descriptor.TableName,
			ID:        row.ID,
			UserID:    row.UserID,
			Text:      text,
		})
		batchSize += rowBytes
	}
	return flush()
}

// readFullText streams a row's text column in StreamSliceBytes slices
// until a short read signals the end, matching the original's
// SUBSTRING-based streaming (spec §4.6 step 2).
func (d *Driver) readFullText(ctx context.Context, descriptor sourcedb.Descriptor, row sourcedb.Row) (string, error) {
	if row.ContentLen <= 0 {
		return "", nil
	}

	var out []byte
	offset := 0
	for offset < row.ContentLen {
		slice, err := d.Source.StreamText(ctx, descriptor, row.ID, offset, StreamSliceBytes)
		if err != nil {
			return "", err
		}
		if len(slice) == 0 {
			break
		}
		out = append(out, slice...)
		offset += len(slice)
		if len(slice) < StreamSliceBytes {
			break
		}
	}
	return string(out), nil
}
