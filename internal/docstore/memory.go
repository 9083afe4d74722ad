package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

type memDoc struct {
	seq int64
	raw []byte
}

// Memory is an in-process Client. Documents are kept in stored form so reads
// always return fresh copies.
type Memory struct {
	mu          sync.RWMutex
	seq         int64
	collections map[string]map[string]memDoc
	broker      *broker
	calls       atomic.Int64
}

var (
	_ Client  = (*Memory)(nil)
	_ Batcher = (*Memory)(nil)
)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]memDoc),
		broker:      newBroker(),
	}
}

// Calls returns the number of operations invoked on the store.
func (m *Memory) Calls() int64 {
	return m.calls.Load()
}

// Watchers returns the number of open watches on a collection.
func (m *Memory) Watchers(collection string) int {
	return m.broker.count(collection)
}

// Add creates a document with a new id.
func (m *Memory) Add(_ context.Context, collection string, data map[string]any) (string, error) {
	m.calls.Add(1)
	if err := validateCollection(collection); err != nil {
		return "", err
	}
	id := NewID()
	if err := m.set(collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// Set creates or replaces a document.
func (m *Memory) Set(_ context.Context, collection, id string, data map[string]any) error {
	m.calls.Add(1)
	if err := validateCollection(collection); err != nil {
		return err
	}
	return m.set(collection, id, data)
}

func (m *Memory) set(collection, id string, data map[string]any) error {
	raw, err := encodeDocument(data)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}

	m.mu.Lock()
	m.setLocked(collection, id, raw)
	m.mu.Unlock()

	m.broker.publish(collection)
	return nil
}

func (m *Memory) setLocked(collection, id string, raw []byte) {
	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]memDoc)
		m.collections[collection] = docs
	}
	if existing, ok := docs[id]; ok {
		docs[id] = memDoc{seq: existing.seq, raw: raw}
		return
	}
	m.seq++
	docs[id] = memDoc{seq: m.seq, raw: raw}
}

// Get returns a document by id.
func (m *Memory) Get(_ context.Context, collection, id string) (*Document, error) {
	m.calls.Add(1)
	m.mu.RLock()
	doc, ok := m.collections[collection][id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	data, err := decodeDocument(doc.raw)
	if err != nil {
		return nil, fmt.Errorf("decoding document %s/%s: %w", collection, id, err)
	}
	return &Document{ID: id, Data: data}, nil
}

// Update merges data into an existing document.
func (m *Memory) Update(_ context.Context, collection, id string, data map[string]any) error {
	m.calls.Add(1)
	m.mu.Lock()
	err := m.mergeLocked(collection, id, data)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.broker.publish(collection)
	return nil
}

func (m *Memory) mergeLocked(collection, id string, data map[string]any) error {
	doc, ok := m.collections[collection][id]
	if !ok {
		return fmt.Errorf("updating %s/%s: %w", collection, id, ErrNotFound)
	}
	merged, err := mergeDocument(doc.raw, data)
	if err != nil {
		return fmt.Errorf("merging document: %w", err)
	}
	m.collections[collection][id] = memDoc{seq: doc.seq, raw: merged}
	return nil
}

// Delete removes a document.
func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.calls.Add(1)
	m.mu.Lock()
	delete(m.collections[collection], id)
	m.mu.Unlock()
	m.broker.publish(collection)
	return nil
}

// Query returns the documents of a collection, filtered and ordered.
func (m *Memory) Query(_ context.Context, collection string, q Query) ([]Document, error) {
	m.calls.Add(1)
	return m.query(collection, q)
}

func (m *Memory) query(collection string, q Query) ([]Document, error) {
	m.mu.RLock()
	stored := make([]struct {
		id string
		memDoc
	}, 0, len(m.collections[collection]))
	for id, d := range m.collections[collection] {
		stored = append(stored, struct {
			id string
			memDoc
		}{id, d})
	}
	m.mu.RUnlock()

	sort.Slice(stored, func(i, j int) bool { return stored[i].seq < stored[j].seq })

	docs := make([]Document, 0, len(stored))
	for _, s := range stored {
		data, err := decodeDocument(s.raw)
		if err != nil {
			return nil, fmt.Errorf("decoding document %s/%s: %w", collection, s.id, err)
		}
		docs = append(docs, Document{ID: s.id, Data: data})
	}
	return apply(docs, q), nil
}

// Watch streams snapshots of a query until ctx is done.
func (m *Memory) Watch(ctx context.Context, collection string, q Query) (<-chan Snapshot, error) {
	m.calls.Add(1)
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	return m.broker.watch(ctx, collection, func(context.Context) ([]Document, error) {
		return m.query(collection, q)
	}), nil
}

// Batch applies ops atomically: either all of them or none.
func (m *Memory) Batch(_ context.Context, ops []Op) error {
	m.calls.Add(1)
	if err := validateOps(ops); err != nil {
		return err
	}

	m.mu.Lock()
	// Work on a copy of the touched collections so a failing op leaves no trace.
	backup := make(map[string]map[string]memDoc)
	for _, c := range collectionsOf(ops) {
		docs := make(map[string]memDoc, len(m.collections[c]))
		for id, d := range m.collections[c] {
			docs[id] = d
		}
		backup[c] = docs
	}
	seq := m.seq

	for i, op := range ops {
		current, found := m.collections[op.Collection][op.ID]
		err := checkIf(op, current.raw, found)
		switch {
		case err != nil:
		case op.Kind == OpSet:
			var raw []byte
			raw, err = encodeDocument(op.Data)
			if err == nil {
				m.setLocked(op.Collection, op.ID, raw)
			}
		case op.Kind == OpUpdate:
			err = m.mergeLocked(op.Collection, op.ID, op.Data)
		case op.Kind == OpDelete:
			delete(m.collections[op.Collection], op.ID)
		default:
			err = fmt.Errorf("unknown op kind %d", op.Kind)
		}
		if err != nil {
			for c, docs := range backup {
				m.collections[c] = docs
			}
			m.seq = seq
			m.mu.Unlock()
			return fmt.Errorf("batch op %d: %w", i, err)
		}
	}
	m.mu.Unlock()

	m.broker.publish(collectionsOf(ops)...)
	return nil
}
