package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/erazemk/stojala/internal/blobstore"
	"github.com/erazemk/stojala/internal/docstore"
	"github.com/erazemk/stojala/internal/inventory"
	"github.com/erazemk/stojala/internal/settings"
	"github.com/erazemk/stojala/internal/toast"
)

// Services are the dependencies served by the API.
type Services struct {
	// Context outlives requests; subscriptions opened on reconfiguration use it.
	Context  context.Context
	Store    *docstore.Handle
	Settings *settings.Settings
	Catalog  *inventory.Catalog
	Blobs    *blobstore.Store
	Notices  *toast.Queue
}

func (s *Services) baseContext() context.Context {
	if s.Context == nil {
		return context.Background()
	}
	return s.Context
}

// Configure connects the store, points object storage at the configured
// bucket and reopens every subscription.
func (s *Services) Configure(ctx context.Context, cfg docstore.Config) error {
	if err := s.Store.Configure(ctx, cfg); err != nil {
		return err
	}
	if missing := cfg.Missing(); len(missing) > 0 {
		slog.Warn("recommended store settings missing", "fields", missing)
	}
	if s.Blobs != nil {
		if err := s.Blobs.Configure(cfg.Bucket(), cfg.APIKey); err != nil {
			return fmt.Errorf("configuring object storage: %w", err)
		}
	}
	if err := s.Catalog.Restart(s.baseContext()); err != nil {
		return err
	}
	slog.Info("store configured", "project", cfg.Project(), "bucket", cfg.Bucket())
	return nil
}

// Disconnect forgets the saved store settings and closes the store. Open
// subscriptions report the store as not configured until Configure is
// called again.
func (s *Services) Disconnect() error {
	if s.Settings != nil {
		if err := s.Settings.Clear(); err != nil {
			return err
		}
	}
	if s.Blobs != nil {
		s.Blobs.Reset()
	}
	if err := s.Store.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	slog.Info("store disconnected")
	return nil
}

// handler serves the JSON API.
type handler struct {
	*Services
}

// fail writes the error response of a failed mutation and queues a notice.
func (h *handler) fail(w http.ResponseWriter, action string, err error) {
	status := statusFor(err)
	msg := errorMessage(err)
	if status == http.StatusInternalServerError {
		slog.Error(action, "error", err)
	}
	h.Notices.ShowError(fmt.Sprintf("Could not %s: %s", action, msg))
	jsonError(w, status, msg)
}

// ok writes the response of a successful mutation and queues a notice.
func (h *handler) ok(w http.ResponseWriter, status int, notice string, data any) {
	h.Notices.ShowSuccess(notice)
	jsonResponse(w, status, data)
}

// readFail writes the error response of a failed read.
func readFail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("read failed", "error", err)
	}
	jsonError(w, status, errorMessage(err))
}

// requireStore rejects the request when no store is configured.
func (h *handler) requireStore(w http.ResponseWriter) bool {
	if !h.Store.Configured() {
		jsonError(w, http.StatusServiceUnavailable, docstore.ErrNotConfigured.Error())
		return false
	}
	return true
}
