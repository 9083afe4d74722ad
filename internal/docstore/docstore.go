// Package docstore is the document database the rest of the application
// reads from and writes to. Collections hold schemaless JSON documents keyed
// by a server-assigned id, and every committed write wakes the collection's
// live watchers.
package docstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Document is one stored record. Timestamps in Data are Timestamp values.
type Document struct {
	ID   string
	Data map[string]any
}

// Snapshot is the full, ordered result of a watched query after a change.
type Snapshot struct {
	Docs []Document
	Err  error
}

// Filter matches documents whose top-level Field equals Value.
type Filter struct {
	Field string
	Value any
}

// Query selects and orders documents of one collection.
// OrderBy sorts ascending by a top-level field; ties keep insertion order.
type Query struct {
	OrderBy string
	Where   []Filter
}

// Client is the store contract used by bindings and services.
type Client interface {
	// Add creates a document and returns its new id.
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	// Set creates or replaces the document with the given id.
	Set(ctx context.Context, collection, id string, data map[string]any) error
	// Get returns a document, or nil if it does not exist.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Update merges top-level fields into an existing document.
	Update(ctx context.Context, collection, id string, data map[string]any) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Query returns the current matching documents.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	// Watch delivers a Snapshot now and after every committed change to the
	// collection, until ctx is done. The channel is closed on return.
	Watch(ctx context.Context, collection string, q Query) (<-chan Snapshot, error)
}

// OpKind is the kind of a batched write.
type OpKind int

// Batched write kinds.
const (
	OpSet OpKind = iota
	OpUpdate
	OpDelete
)

// Op is one write in a batch.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Data       map[string]any
	// If must match the stored document when the op runs, or the whole
	// batch fails with ErrConflict. A missing document never matches.
	If []Filter
}

// Batcher is implemented by clients that can apply several writes atomically.
type Batcher interface {
	Batch(ctx context.Context, ops []Op) error
}

// NewID returns a fresh document id.
func NewID() string {
	return uuid.NewString()
}

func validateCollection(collection string) error {
	if collection == "" {
		return fmt.Errorf("collection name required")
	}
	return nil
}

func validateOps(ops []Op) error {
	for i, op := range ops {
		if err := validateCollection(op.Collection); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
		if op.ID == "" {
			return fmt.Errorf("op %d: document id required", i)
		}
	}
	return nil
}

// checkIf verifies op.If against the stored document raw.
func checkIf(op Op, raw []byte, found bool) error {
	if len(op.If) == 0 {
		return nil
	}
	if !found {
		return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, ErrConflict)
	}
	data, err := decodeDocument(raw)
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	if !matches(Document{ID: op.ID, Data: data}, op.If) {
		return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, ErrConflict)
	}
	return nil
}
