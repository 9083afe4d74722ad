package docstore

import (
	"context"
	"sync"
)

// broker wakes watchers of a collection after a committed write.
type broker struct {
	mu       sync.Mutex
	watchers map[string]map[chan struct{}]struct{}
}

func newBroker() *broker {
	return &broker{watchers: make(map[string]map[chan struct{}]struct{})}
}

func (b *broker) subscribe(collection string) chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.watchers[collection]
	if !ok {
		set = make(map[chan struct{}]struct{})
		b.watchers[collection] = set
	}
	set[ch] = struct{}{}
	return ch
}

func (b *broker) unsubscribe(collection string, ch chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.watchers[collection]
	delete(set, ch)
	if len(set) == 0 {
		delete(b.watchers, collection)
	}
}

// publish never blocks; a pending wake-up already covers this change.
func (b *broker) publish(collections ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range collections {
		for ch := range b.watchers[c] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

func (b *broker) count(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.watchers[collection])
}

// watch runs query now and after every wake-up, delivering each result.
func (b *broker) watch(ctx context.Context, collection string, query func(context.Context) ([]Document, error)) <-chan Snapshot {
	// Subscribe before the first query so no change is missed.
	wake := b.subscribe(collection)
	out := make(chan Snapshot)

	go func() {
		defer close(out)
		defer b.unsubscribe(collection, wake)

		for {
			docs, err := query(ctx)
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- Snapshot{Docs: docs, Err: err}:
			case <-ctx.Done():
				return
			}

			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func collectionsOf(ops []Op) []string {
	seen := make(map[string]bool, len(ops))
	var out []string
	for _, op := range ops {
		if !seen[op.Collection] {
			seen[op.Collection] = true
			out = append(out, op.Collection)
		}
	}
	return out
}
