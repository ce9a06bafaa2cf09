// Package docstore defines a collection-oriented document store and its
// Badger-backed implementation.
//
// Documents are schemaless JSON objects keyed by an opaque string id. The
// adapter may use a distinct internal key; callers only ever see the `id`
// field. Filters are conjunctive equality predicates with Mongo-style array
// semantics: a scalar filter value matches an array field when the array
// contains the value.
package docstore

import (
	"context"
	"errors"
)

// Document is a schemaless record. Values follow JSON conventions
// (string, float64, bool, []any, map[string]any, nil).
type Document = map[string]any

// Filter is a conjunction of field equality predicates.
type Filter map[string]any

// SortField orders query results by one field.
type SortField struct {
	Field string
	Desc  bool
}

// Index declares a (possibly compound) index on a collection.
type Index struct {
	Name   string
	Fields []string
	Unique bool
	// Sparse indexes skip documents that lack any of the indexed fields.
	Sparse bool
}

// Internal error taxonomy. The gateway maps these to its public kinds.
var (
	ErrDuplicateKey       = errors.New("docstore: duplicate key")
	ErrNotFound           = errors.New("docstore: document not found")
	ErrCollectionNotFound = errors.New("docstore: collection not found")
	ErrConnection         = errors.New("docstore: connection error")
	ErrQuery              = errors.New("docstore: query error")
)

// Store is the document store contract.
//
// Identity mapping is part of the contract: every returned Document carries
// its identity only under "id", and no underscore-prefixed adapter key may
// escape. GetByID and FindOne return (nil, nil) when nothing matches;
// Update fails with ErrNotFound; Delete is idempotent and reports whether a
// document was removed.
type Store interface {
	Create(ctx context.Context, collection string, doc Document) (Document, error)
	GetByID(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, filter Filter, skip, limit int, sort []SortField) ([]Document, error)
	FindOne(ctx context.Context, collection string, filter Filter) (Document, error)
	Update(ctx context.Context, collection, id string, patch Document) (Document, error)
	Delete(ctx context.Context, collection, id string) (bool, error)
	Count(ctx context.Context, collection string, filter Filter) (int, error)
	Exists(ctx context.Context, collection, id string) (bool, error)

	CreateCollection(ctx context.Context, collection string) error
	DropCollection(ctx context.Context, collection string) error
	TruncateCollection(ctx context.Context, collection string) error
	EnsureIndex(ctx context.Context, collection string, idx Index) error
	DropIndex(ctx context.Context, collection, name string) error

	Close() error
}
