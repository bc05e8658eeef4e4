// Package sourcedb describes the relational tables the Import Driver (C6)
// reads from, and provides the Postgres queries needed to page through
// rows, stream their text in bounded slices, and mark them synced.
package sourcedb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Error wraps a failing query (EmbeddingError::DbError in the original).
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("sourcedb %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// UnknownEntity is returned when a table name isn't one sourcedb knows how
// to import (EmbeddingError::UnknownCombination in the original).
type UnknownEntity struct {
	Name string
}

func (e *UnknownEntity) Error() string { return fmt.Sprintf("unknown entity table: %q", e.Name) }

// Descriptor names the columns needed to page, stream, and mark-synced a
// single embeddable table (original: the EmbeddableEntityColumn trait,
// implemented once per entity via macro).
type Descriptor struct {
	TableName       string
	PrimaryKeyCol   string
	UserIDCol       string // empty if this table has no user scoping
	TextCol         string
	UpdatedAtCol    string
	QdrantSyncCol   string
}

// Contents and UploadedFiles are the two tables the original service
// imports from (original: src/embed/collections.rs).
var (
	Contents = Descriptor{
		TableName:     "contents",
		PrimaryKeyCol: "id",
		UserIDCol:     "",
		TextCol:       "content",
		UpdatedAtCol:  "updated_at",
		QdrantSyncCol: "qdrant_sync_at",
	}
	UploadedFiles = Descriptor{
		TableName:     "uploaded_files",
		PrimaryKeyCol: "id",
		UserIDCol:     "user_id",
		TextCol:       "content",
		UpdatedAtCol:  "updated_at",
		QdrantSyncCol: "qdrant_sync_at",
	}
)

// Lookup resolves a table name to its Descriptor (original:
// dynamic_import_embeddings's dispatch on "contents"/"uploaded_files").
func Lookup(name string) (Descriptor, error) {
	switch name {
	case Contents.TableName:
		return Contents, nil
	case UploadedFiles.TableName:
		return UploadedFiles, nil
	default:
		return Descriptor{}, &UnknownEntity{Name: name}
	}
}

// Row is one page of a source table awaiting import: its primary key,
// optional owning user id, content length, and last-modified timestamp.
// Text itself is streamed separately via StreamText to keep a page's
// memory footprint bounded (spec §4.6).
type Row struct {
	ID          int64
	UserID      *int64
	ContentLen  int
	UpdatedUnix int64
}

// DB is the Postgres-backed relational source.
type DB struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres using dsn (spec §6: DATABASE_URL).
func Open(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, &Error{Op: "connect", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &Error{Op: "ping", Err: err}
	}
	return &DB{pool: pool}, nil
}

func (db *DB) Close() { db.pool.Close() }

// FetchPage returns up to pageSize rows from d's table, ordered by primary
// key, starting after afterID, whose qdrant sync state is stale: either
// qdrant_sync_at differs from updated_at, or either is NULL (original:
// import.rs's IMPORT_PAGE_SIZE-driven pagination filter).
func (db *DB) FetchPage(ctx context.Context, d Descriptor, afterID int64, pageSize int) ([]Row, error) {
	userIDSelect := "NULL"
	if d.UserIDCol != "" {
		userIDSelect = d.UserIDCol
	}

	query := fmt.Sprintf(`
		SELECT %s, %s, length(%s), extract(epoch from %s)::bigint
		FROM %s
		WHERE %s > $1
		  AND (%s IS DISTINCT FROM %s OR %s IS NULL)
		ORDER BY %s ASC
		LIMIT $2
	`, d.PrimaryKeyCol, userIDSelect, d.TextCol, d.UpdatedAtCol,
		d.TableName,
		d.PrimaryKeyCol,
		d.QdrantSyncCol, d.UpdatedAtCol, d.QdrantSyncCol,
		d.PrimaryKeyCol)

	rows, err := db.pool.Query(ctx, query, afterID, pageSize)
	if err != nil {
		return nil, &Error{Op: "fetch_page:" + d.TableName, Err: err}
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var userID *int64
		if err := rows.Scan(&r.ID, &userID, &r.ContentLen, &r.UpdatedUnix); err != nil {
			return nil, &Error{Op: "scan_row:" + d.TableName, Err: err}
		}
		r.UserID = userID
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "fetch_page:" + d.TableName, Err: err}
	}
	return out, nil
}

// StreamText reads [offset, offset+maxBytes) of a row's text column
// (original: import.rs's SUBSTRING-based streaming reads, at 1 MiB
// slices), snapped to a UTF-8 boundary by the caller before use.
func (db *DB) StreamText(ctx context.Context, d Descriptor, id int64, offset, maxBytes int) (string, error) {
	query := fmt.Sprintf(`SELECT substring(%s from $1 for $2) FROM %s WHERE %s = $3`,
		d.TextCol, d.TableName, d.PrimaryKeyCol)

	var text string
	// Postgres SUBSTRING is 1-indexed.
	if err := db.pool.QueryRow(ctx, query, offset+1, maxBytes, id).Scan(&text); err != nil {
		return "", &Error{Op: "stream_text:" + d.TableName, Err: err}
	}
	return text, nil
}

// MarkSynced sets both updated_at and qdrant_sync_at to a single fresh
// timestamp for the given row ids, establishing the sync invariant the next
// FetchPage relies on to skip already-embedded rows (spec §3, §4.5 step 6).
// Postgres evaluates now() once per statement, so both columns land on the
// exact same instant.
func (db *DB) MarkSynced(ctx context.Context, d Descriptor, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE %s SET %s = now(), %s = now() WHERE %s = ANY($1)`,
		d.TableName, d.UpdatedAtCol, d.QdrantSyncCol, d.PrimaryKeyCol)
	if _, err := db.pool.Exec(ctx, query, ids); err != nil {
		return &Error{Op: "mark_synced:" + d.TableName, Err: err}
	}
	return nil
}

// MarkSyncedByTable resolves tableName to its Descriptor and marks ids
// synced. cmd/vecembed adapts it to ingest.SyncMarker, so the ingest
// package neither imports sourcedb nor performs Descriptor lookups.
func (db *DB) MarkSyncedByTable(ctx context.Context, tableName string, ids []int64) error {
	d, err := Lookup(tableName)
	if err != nil {
		return err
	}
	return db.MarkSynced(ctx, d, ids)
}
