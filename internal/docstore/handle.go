package docstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Connector opens a client for a validated configuration.
type Connector func(ctx context.Context, cfg Config) (Client, error)

// Handle is the application's single store client. It is constructed once at
// startup and stays unusable until Configure succeeds.
type Handle struct {
	connect Connector

	mu      sync.RWMutex
	client  Client
	cfg     Config
	changed chan struct{}
}

// NewHandle returns an unconfigured handle.
func NewHandle(connect Connector) *Handle {
	return &Handle{connect: connect, changed: make(chan struct{})}
}

// Configure validates cfg, connects and replaces the current client.
// The previous client is closed if it implements io.Closer.
func (h *Handle) Configure(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	client, err := h.connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}

	h.mu.Lock()
	old := h.client
	h.client = client
	h.cfg = cfg
	h.swappedLocked()
	h.mu.Unlock()

	if c, ok := old.(io.Closer); ok && old != client {
		if err := c.Close(); err != nil {
			return fmt.Errorf("closing previous store: %w", err)
		}
	}
	return nil
}

// Client returns the configured client or ErrNotConfigured.
func (h *Handle) Client() (Client, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.client == nil {
		return nil, ErrNotConfigured
	}
	return h.client, nil
}

// Configured reports whether a configuration has been applied.
func (h *Handle) Configured() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client != nil
}

// Config returns the applied configuration and whether there is one.
func (h *Handle) Config() (Config, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg, h.client != nil
}

// Changed returns a channel that is closed the next time the client is
// replaced or closed. Subscriptions opened on the current client must be
// reopened once it fires.
func (h *Handle) Changed() <-chan struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.changed
}

func (h *Handle) swappedLocked() {
	close(h.changed)
	h.changed = make(chan struct{})
}

// Close closes the current client.
func (h *Handle) Close() error {
	h.mu.Lock()
	client := h.client
	h.client = nil
	if client != nil {
		h.swappedLocked()
	}
	h.mu.Unlock()

	if c, ok := client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// SQLiteConnector opens one database file per project under dataDir.
func SQLiteConnector(dataDir string) Connector {
	return func(_ context.Context, cfg Config) (Client, error) {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return OpenSQLite(filepath.Join(dataDir, cfg.Project()+".db"))
	}
}

// MemoryConnector returns the same in-memory store for every configuration.
func MemoryConnector(m *Memory) Connector {
	return func(context.Context, Config) (Client, error) {
		return m, nil
	}
}
