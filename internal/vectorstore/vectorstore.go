// Package vectorstore implements the Vector Store Facade (C4): collection
// lifecycle, indexed field creation, upsert, filtered delete, and filtered
// search against Qdrant.
package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// CollectionName is the single collection this service writes to and reads
// from (spec §3).
const CollectionName = "silatus_documents"

// optimizerThreshold is shared between memmap_threshold and
// indexing_threshold per spec §4.4.
const optimizerThreshold = 500_000

// connectTimeout bounds each CollectionExists call to Qdrant. New sets no
// dial or connection timeout of its own.
const connectTimeout = 30 * time.Second

// Point is an immutable vector-store record as described in spec §3.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Payload mirrors the payload keys fixed by spec §3.
type Payload struct {
	DocumentID int64
	TableName  string
	Start      uint64
	End        uint64
	Model      string
	UserID     *uint64
}

// SearchParams mirrors the optional search tuning knobs of spec §6.
type SearchParams struct {
	HNSWEf       *uint64
	Exact        *bool
	IndexedOnly  *bool
	Quantization *QuantizationSearchParams
}

// QuantizationSearchParams mirrors spec §6.
type QuantizationSearchParams struct {
	Ignore       *bool
	Rescore      *bool
	Oversampling *float64
}

// ScoredPoint is a single filtered-search result.
type ScoredPoint struct {
	Score      float32
	DocumentID int64
	TableName  string
	Start      uint64
	End        uint64
	UserID     int64 // 0 when the point carries no user_id payload field
}

// Store is the C4 contract. Implemented by *Qdrant.
type Store interface {
	CollectionExists(ctx context.Context) (bool, error)
	CreateCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, points []Point) error
	DeleteByDocumentIDs(ctx context.Context, ids []int64) error
	Search(ctx context.Context, vector []float32, limit uint64, filter *Filter, params *SearchParams) ([]ScoredPoint, error)
}

// Filter is a disjunction ("should") of conjunctions ("must"); it is built
// by the Query Engine (C7) and consumed here untouched. Each Branch becomes
// a nested must-Filter inside a top-level should-Filter, per the resolution
// recorded in SPEC_FULL.md §5.2.
type Filter struct {
	Branches []Branch
}

// Branch is one must-conjunction: a table scope, an optional user scope,
// and an optional id allow-list.
type Branch struct {
	TableName string
	UserID    *int64
	IDs       []int64
}

// Qdrant is the concrete C4 implementation backed by qdrant/go-client.
type Qdrant struct {
	client *qdrant.Client
}

// New dials Qdrant at dsn (e.g. "http://localhost:6334" or
// "https://host:6334?api_key=...") and returns a facade bound to
// CollectionName. It does not create the collection — that happens lazily
// on first successful ingest (spec §3).
func New(dsn, apiKey string) (*Qdrant, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port: %w", err)
	}

	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if v := parsed.Query().Get("api_key"); v != "" {
		cfg.APIKey = v
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &Qdrant{client: client}, nil
}

func (q *Qdrant) Close() error { return q.client.Close() }

func (q *Qdrant) CollectionExists(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	exists, err := q.client.CollectionExists(ctx, CollectionName)
	if err != nil {
		return false, &Error{Op: "collection_exists", Err: err}
	}
	return exists, nil
}

// CreateCollection creates CollectionName with the invariants of spec §3:
// cosine distance, on-disk vectors, and the three field indexes. Racing
// "already exists" failures are swallowed per spec §4.4/§7.
func (q *Qdrant) CreateCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return &Error{Op: "create_collection", Err: fmt.Errorf("dimension must be > 0, got %d", dimension)}
	}
	onDisk := true
	threshold := uint64(optimizerThreshold)

	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
			OnDisk:   &onDisk,
		}),
		OptimizersConfig: &qdrant.OptimizersConfigDiff{
			MemmapThreshold:   &threshold,
			IndexingThreshold: &threshold,
		},
	})
	if err != nil && !isAlreadyExists(err) {
		return &Error{Op: "create_collection", Err: err}
	}

	for _, idx := range []struct {
		field string
		typ   qdrant.FieldType
	}{
		{"document_id", qdrant.FieldType_FieldTypeInteger},
		{"user_id", qdrant.FieldType_FieldTypeInteger},
		{"table_name", qdrant.FieldType_FieldTypeKeyword},
	} {
		wait := true
		fieldType := idx.typ
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: CollectionName,
			FieldName:      idx.field,
			FieldType:      &fieldType,
			Wait:           &wait,
		}); err != nil && !isAlreadyExists(err) {
			return &Error{Op: "create_field_index:" + idx.field, Err: err}
		}
	}
	return nil
}

// Upsert writes points. It does not retry or create the collection; that
// policy lives in the Ingest Engine (C5) per spec §4.5 step 4.
func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	out := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		out[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectorsDense(p.Vector),
			Payload: payloadToValueMap(p.Payload),
		}
	}
	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: CollectionName,
		Points:         out,
	}); err != nil {
		return &Error{Op: "upsert", Err: err}
	}
	return nil
}

// DeleteByDocumentIDs removes every point whose document_id is in ids,
// regardless of table_name (spec §4.5 step 2: pre-delete of a whole
// group's ids in a single call).
func (q *Qdrant) DeleteByDocumentIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	filter := &qdrant.Filter{Must: []*qdrant.Condition{matchIntegers("document_id", ids)}}
	if _, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	}); err != nil {
		return &Error{Op: "delete_by_filter", Err: err}
	}
	return nil
}

// Search issues a filtered similarity search, returning only the five
// payload fields the Query Engine needs (document_id, start, end,
// table_name, user_id).
func (q *Qdrant) Search(ctx context.Context, vector []float32, limit uint64, filter *Filter, params *SearchParams) ([]ScoredPoint, error) {
	req := &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          &limit,
		Filter:         toQdrantFilter(filter),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Include{
				Include: &qdrant.PayloadIncludeSelector{
					Fields: []string{"document_id", "start", "end", "table_name", "user_id"},
				},
			},
		},
		Params: toQdrantSearchParams(params),
	}
	results, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, &Error{Op: "search", Err: err}
	}

	out := make([]ScoredPoint, 0, len(results))
	for _, hit := range results {
		sp := ScoredPoint{Score: hit.GetScore()}
		if v, ok := hit.Payload["document_id"]; ok {
			sp.DocumentID = v.GetIntegerValue()
		}
		if v, ok := hit.Payload["table_name"]; ok {
			sp.TableName = v.GetStringValue()
		}
		if v, ok := hit.Payload["start"]; ok {
			sp.Start = uint64(v.GetIntegerValue())
		}
		if v, ok := hit.Payload["end"]; ok {
			sp.End = uint64(v.GetIntegerValue())
		}
		if v, ok := hit.Payload["user_id"]; ok {
			sp.UserID = v.GetIntegerValue()
		}
		out = append(out, sp)
	}
	return out, nil
}

func toQdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil || len(f.Branches) == 0 {
		return nil
	}
	should := make([]*qdrant.Condition, 0, len(f.Branches))
	for _, b := range f.Branches {
		must := []*qdrant.Condition{matchKeyword("table_name", b.TableName)}
		if b.UserID != nil {
			must = append(must, matchInteger("user_id", *b.UserID))
		}
		if len(b.IDs) > 0 {
			must = append(must, matchIntegers("document_id", b.IDs))
		}
		should = append(should, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{Filter: &qdrant.Filter{Must: must}},
		})
	}
	return &qdrant.Filter{Should: should}
}

func toQdrantSearchParams(p *SearchParams) *qdrant.SearchParams {
	if p == nil {
		return nil
	}
	out := &qdrant.SearchParams{
		HnswEf:      p.HNSWEf,
		Exact:       p.Exact,
		IndexedOnly: p.IndexedOnly,
	}
	if p.Quantization != nil {
		out.Quantization = &qdrant.QuantizationSearchParams{
			Ignore:       p.Quantization.Ignore,
			Rescore:      p.Quantization.Rescore,
			Oversampling: p.Quantization.Oversampling,
		}
	}
	return out
}

func matchKeyword(field, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   field,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func matchInteger(field string, value int64) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   field,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: value}},
			},
		},
	}
}

func matchIntegers(field string, values []int64) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: field,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Integers{
					Integers: &qdrant.RepeatedIntegers{Integers: values},
				}},
			},
		},
	}
}

func payloadToValueMap(p Payload) map[string]*qdrant.Value {
	out := map[string]*qdrant.Value{
		"document_id": {Kind: &qdrant.Value_IntegerValue{IntegerValue: p.DocumentID}},
		"table_name":  {Kind: &qdrant.Value_StringValue{StringValue: p.TableName}},
		"start":       {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.Start)}},
		"end":         {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.End)}},
		"model":       {Kind: &qdrant.Value_StringValue{StringValue: p.Model}},
	}
	if p.UserID != nil {
		out["user_id"] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(*p.UserID)}}
	}
	return out
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// Error wraps a failing Qdrant RPC with the operation name, matching
// EmbeddingError's QdrantClient(#[from] QdrantClientError) variant from the
// original implementation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("qdrant %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err is the class of failure that the Ingest
// Engine should treat as "collection missing, retry after creating it"
// (spec §4.4/§7).
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found") ||
		strings.Contains(err.Error(), "NotFound")
}
