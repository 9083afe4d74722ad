// Package binding keeps a local, ordered copy of one store collection in sync
// through a live subscription, and writes through to the store.
package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/erazemk/stojala/internal/docstore"
	"github.com/erazemk/stojala/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultCreatedField is stamped on Add when Options.CreatedField is empty.
const DefaultCreatedField = "createdAt"

// Store hands out the configured store client.
type Store interface {
	Client() (docstore.Client, error)
}

// Options describe one collection binding.
type Options struct {
	Collection string
	// OrderField sorts items ascending; empty keeps store order.
	OrderField string
	// Where restricts the subscription to matching documents.
	Where []docstore.Filter
	// TimestampFields are converted to time.Time on read and write.
	TimestampFields []string
	// CreatedField is set to the current time on Add.
	CreatedField string
	// ModifiedField, when set, is stamped on Add and Update.
	ModifiedField string
}

// State is a consistent view of a binding.
type State[T any] struct {
	Items   []T
	Loading bool
	Err     error
}

// Binding is a live view of a collection decoded into T.
type Binding[T any] struct {
	store Store
	opts  Options
	now   func() time.Time

	mu        sync.RWMutex
	items     []T
	ids       []string
	loading   bool
	err       error
	cancel    context.CancelFunc
	done      chan struct{}
	ready     chan struct{}
	listeners map[int]func(State[T])
	nextID    int
}

// New returns a binding for opts.Collection. It does nothing until Start.
func New[T any](store Store, opts Options) *Binding[T] {
	if opts.CreatedField == "" {
		opts.CreatedField = DefaultCreatedField
	}
	if !contains(opts.TimestampFields, opts.CreatedField) {
		opts.TimestampFields = append(opts.TimestampFields, opts.CreatedField)
	}
	if opts.ModifiedField != "" && !contains(opts.TimestampFields, opts.ModifiedField) {
		opts.TimestampFields = append(opts.TimestampFields, opts.ModifiedField)
	}
	return &Binding[T]{
		store:     store,
		opts:      opts,
		now:       time.Now,
		ready:     make(chan struct{}),
		listeners: make(map[int]func(State[T])),
	}
}

// reconfigurable is implemented by stores whose client can be replaced at
// runtime, such as *docstore.Handle.
type reconfigurable interface {
	Changed() <-chan struct{}
}

// subscription is one Watch on one store client.
type subscription struct {
	snaps   <-chan docstore.Snapshot
	changed <-chan struct{}
	cancel  context.CancelFunc
}

// subscribe watches the collection on the current client. changed is set
// even when opening the watch fails.
func (b *Binding[T]) subscribe(ctx context.Context) (subscription, error) {
	var sub subscription
	if r, ok := b.store.(reconfigurable); ok {
		sub.changed = r.Changed()
	}
	client, err := b.store.Client()
	if err != nil {
		return sub, err
	}

	wctx, cancel := context.WithCancel(ctx)
	snaps, err := client.Watch(wctx, b.opts.Collection, docstore.Query{
		OrderBy: b.opts.OrderField,
		Where:   b.opts.Where,
	})
	if err != nil {
		cancel()
		return sub, err
	}
	sub.snaps, sub.cancel = snaps, cancel
	return sub, nil
}

// Start opens the live subscription. It fails immediately, without
// contacting the store, when no store is configured. Cancelling ctx has the
// same effect as Close. When the store's client is replaced later, the
// subscription moves to the new client.
func (b *Binding[T]) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		return fmt.Errorf("binding %s already started", b.opts.Collection)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub, err := b.subscribe(ctx)
	if err != nil {
		cancel()
		b.err = &ReadError{Collection: b.opts.Collection, Err: err}
		b.loading = false
		b.markReady()
		b.mu.Unlock()
		b.notify()
		return b.err
	}

	b.cancel = cancel
	b.done = make(chan struct{})
	b.ready = make(chan struct{})
	b.loading = true
	b.err = nil
	done := b.done
	b.mu.Unlock()

	metrics.BindingOpened(b.opts.Collection)
	go b.run(ctx, sub, done)
	return nil
}

func (b *Binding[T]) run(ctx context.Context, sub subscription, done chan struct{}) {
	defer close(done)
	defer metrics.BindingClosed(b.opts.Collection)
	defer func() {
		if sub.cancel != nil {
			sub.cancel()
		}
	}()

	for {
		select {
		case snap, ok := <-sub.snaps:
			if !ok {
				// The store closes the feed on its own only if something went wrong.
				if ctx.Err() != nil {
					return
				}
				b.fail(errors.New("subscription closed"))
				if sub.changed == nil {
					return
				}
				sub.snaps = nil
				continue
			}
			metrics.ObserveSnapshot(b.opts.Collection, snap.Err)
			if snap.Err != nil {
				b.fail(snap.Err)
				continue
			}
			b.replace(snap.Docs)

		case <-sub.changed:
			if sub.cancel != nil {
				sub.cancel()
			}
			next, err := b.subscribe(ctx)
			sub = next
			if err != nil {
				b.fail(err)
				continue
			}
			slog.Info("subscription moved to new store client", "collection", b.opts.Collection)

		case <-ctx.Done():
			return
		}
	}
}

func (b *Binding[T]) replace(docs []docstore.Document) {
	items := make([]T, 0, len(docs))
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		item, err := b.decode(d)
		if err != nil {
			slog.Warn("skipping undecodable document", "collection", b.opts.Collection, "id", d.ID, "error", err)
			continue
		}
		items = append(items, item)
		ids = append(ids, d.ID)
	}

	b.mu.Lock()
	b.items = items
	b.ids = ids
	b.loading = false
	b.err = nil
	b.markReady()
	b.mu.Unlock()
	b.notify()
}

func (b *Binding[T]) fail(err error) {
	slog.Warn("subscription error", "collection", b.opts.Collection, "error", err)
	b.mu.Lock()
	b.err = &ReadError{Collection: b.opts.Collection, Err: err}
	b.loading = false
	b.markReady()
	b.mu.Unlock()
	b.notify()
}

// markReady must be called with mu held.
func (b *Binding[T]) markReady() {
	select {
	case <-b.ready:
	default:
		close(b.ready)
	}
}

// Decode converts a stored document to T the same way snapshots are decoded.
func (b *Binding[T]) Decode(d docstore.Document) (T, error) {
	return b.decode(d)
}

// Get reads one item directly from the store, bypassing the local cache.
// It reports false when the item does not exist.
func (b *Binding[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	client, err := b.store.Client()
	if err != nil {
		return zero, false, &ReadError{Collection: b.opts.Collection, Err: err}
	}
	doc, err := client.Get(ctx, b.opts.Collection, id)
	if err != nil {
		return zero, false, &ReadError{Collection: b.opts.Collection, Err: err}
	}
	if doc == nil {
		return zero, false, nil
	}
	item, err := b.decode(*doc)
	if err != nil {
		return zero, false, &ReadError{Collection: b.opts.Collection, Err: err}
	}
	return item, true, nil
}

func (b *Binding[T]) decode(d docstore.Document) (T, error) {
	var item T
	data := make(map[string]any, len(d.Data)+1)
	for k, v := range d.Data {
		data[k] = v
	}
	data["id"] = d.ID
	NormalizeTimestamps(data, b.opts.TimestampFields)
	if err := decode(data, &item); err != nil {
		return item, err
	}
	return item, nil
}

// Close tears down the subscription and waits for it to finish. The last
// items stay readable.
func (b *Binding[T]) Close() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	b.mu.Lock()
	b.loading = false
	b.mu.Unlock()
}

// Wait blocks until the first snapshot or error arrives, or ctx is done.
func (b *Binding[T]) Wait(ctx context.Context) error {
	b.mu.RLock()
	ready := b.ready
	b.mu.RUnlock()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Items returns a copy of the current items.
func (b *Binding[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]T(nil), b.items...)
}

// Loading reports whether the first snapshot is still outstanding.
func (b *Binding[T]) Loading() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loading
}

// Err returns the last read error, or nil.
func (b *Binding[T]) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// State returns items, loading and error from the same moment.
func (b *Binding[T]) State() State[T] {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stateLocked()
}

func (b *Binding[T]) stateLocked() State[T] {
	return State[T]{
		Items:   append([]T(nil), b.items...),
		Loading: b.loading,
		Err:     b.err,
	}
}

// Find returns the cached item with the given id.
func (b *Binding[T]) Find(id string) (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i, itemID := range b.ids {
		if itemID == id {
			return b.items[i], true
		}
	}
	var zero T
	return zero, false
}

// OnChange calls fn with the new state after every change. The returned
// function removes the listener.
func (b *Binding[T]) OnChange(fn func(State[T])) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *Binding[T]) notify() {
	b.mu.RLock()
	state := b.stateLocked()
	fns := make([]func(State[T]), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(state)
	}
}

// Encode converts item to store form: the id is dropped, timestamp fields
// become time values and the created (and modified) fields are stamped.
func (b *Binding[T]) Encode(item T) (map[string]any, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encoding %s item: %w", b.opts.Collection, err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("encoding %s item: %w", b.opts.Collection, err)
	}
	if data == nil {
		return nil, fmt.Errorf("encoding %s item: not an object", b.opts.Collection)
	}
	delete(data, "id")

	for _, f := range b.opts.TimestampFields {
		v, ok := data[f]
		if !ok {
			continue
		}
		t, ok := ToTime(v)
		if !ok || t.IsZero() {
			delete(data, f)
			continue
		}
		data[f] = t
	}

	now := b.now().UTC()
	data[b.opts.CreatedField] = now
	if b.opts.ModifiedField != "" {
		data[b.opts.ModifiedField] = now
	}
	return data, nil
}

// Add writes a new item and returns its store-assigned id. The item shows up
// in Items only once the subscription delivers it.
func (b *Binding[T]) Add(ctx context.Context, item T) (string, error) {
	client, err := b.store.Client()
	if err != nil {
		return "", b.writeErr("add", err)
	}
	data, err := b.Encode(item)
	if err != nil {
		return "", b.writeErr("add", err)
	}
	id, err := client.Add(ctx, b.opts.Collection, data)
	metrics.ObserveWrite(b.opts.Collection, "add", err)
	if err != nil {
		return "", b.writeErr("add", err)
	}
	return id, nil
}

// Put writes item under a caller-chosen id, replacing any existing document.
func (b *Binding[T]) Put(ctx context.Context, id string, item T) error {
	client, err := b.store.Client()
	if err != nil {
		return b.writeErr("put", err)
	}
	data, err := b.Encode(item)
	if err != nil {
		return b.writeErr("put", err)
	}
	err = client.Set(ctx, b.opts.Collection, id, data)
	metrics.ObserveWrite(b.opts.Collection, "put", err)
	if err != nil {
		return b.writeErr("put", err)
	}
	return nil
}

// Patch prepares a partial update: timestamp fields become time values and
// the modified field is stamped.
func (b *Binding[T]) Patch(fields map[string]any) map[string]any {
	data := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		if k == "id" {
			continue
		}
		data[k] = v
	}
	NormalizeTimestamps(data, b.opts.TimestampFields)
	if b.opts.ModifiedField != "" {
		data[b.opts.ModifiedField] = b.now().UTC()
	}
	return data
}

// Update merges fields into the stored item.
func (b *Binding[T]) Update(ctx context.Context, id string, fields map[string]any) error {
	client, err := b.store.Client()
	if err != nil {
		return b.writeErr("update", err)
	}
	err = client.Update(ctx, b.opts.Collection, id, b.Patch(fields))
	metrics.ObserveWrite(b.opts.Collection, "update", err)
	if err != nil {
		return b.writeErr("update", err)
	}
	return nil
}

// Delete removes the stored item.
func (b *Binding[T]) Delete(ctx context.Context, id string) error {
	client, err := b.store.Client()
	if err != nil {
		return b.writeErr("delete", err)
	}
	err = client.Delete(ctx, b.opts.Collection, id)
	metrics.ObserveWrite(b.opts.Collection, "delete", err)
	if err != nil {
		return b.writeErr("delete", err)
	}
	return nil
}

func (b *Binding[T]) writeErr(op string, err error) error {
	return &WriteError{Op: op, Collection: b.opts.Collection, Err: err}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
