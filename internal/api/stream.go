package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/stojala/internal/binding"
	"github.com/erazemk/stojala/internal/inventory"
	"github.com/erazemk/stojala/internal/model"
	"github.com/erazemk/stojala/internal/toast"
)

// stream handles GET /api/stream/{collection}. Every connection opens its own
// subscription and receives "snapshot" events for the collection and
// "notices" events for the notice queue.
func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	opts, ok := inventory.Options(collection)
	if !ok {
		jsonError(w, http.StatusNotFound, "unknown collection")
		return
	}

	switch collection {
	case inventory.CollMaterials:
		streamBinding[model.Material](h, w, r, opts)
	case inventory.CollStands:
		streamBinding[model.Stand](h, w, r, opts)
	case inventory.CollReports:
		streamBinding[model.Report](h, w, r, opts)
	case inventory.CollResponsibles:
		streamBinding[model.Responsible](h, w, r, opts)
	case inventory.CollChecklist:
		streamBinding[model.ChecklistItem](h, w, r, opts)
	case inventory.CollTransactions:
		streamBinding[model.Transaction](h, w, r, opts)
	}
}

func streamBinding[T any](h *handler, w http.ResponseWriter, r *http.Request, opts binding.Options) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, http.StatusInternalServerError, "stream unsupported")
		return
	}

	b := binding.New[T](h.Store, opts)

	// Register before Start so the first snapshot is not missed.
	states := make(chan binding.State[T], 1)
	cancelState := b.OnChange(func(s binding.State[T]) {
		// Keep only the newest state for slow clients.
		select {
		case <-states:
		default:
		}
		select {
		case states <- s:
		default:
		}
	})
	defer cancelState()

	if err := b.Start(r.Context()); err != nil {
		readFail(w, err)
		return
	}
	defer b.Close()

	notices := make(chan []toast.Notice, 1)
	cancelNotices := h.Notices.OnChange(func(n []toast.Notice) {
		select {
		case <-notices:
		default:
		}
		select {
		case notices <- n:
		default:
		}
	})
	defer cancelNotices()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	for {
		select {
		case s := <-states:
			if !writeEvent(w, "snapshot", newList(s)) {
				return
			}
			flusher.Flush()
		case n := <-notices:
			if n == nil {
				n = []toast.Notice{}
			}
			if !writeEvent(w, "notices", n) {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, data any) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("encoding event", "event", event, "error", err)
		return false
	}
	if _, err := w.Write([]byte("event: " + event + "\ndata: ")); err != nil {
		return false
	}
	if _, err := w.Write(payload); err != nil {
		return false
	}
	_, err = w.Write([]byte("\n\n"))
	return err == nil
}
