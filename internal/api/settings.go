package api

import (
	"net/http"

	"github.com/erazemk/stojala/internal/docstore"
)

type settingsResponse struct {
	Configured bool            `json:"configured"`
	Store      docstore.Config `json:"store"`
	Missing    []string        `json:"missing,omitempty"`
}

// getSettings handles GET /api/settings.
func (h *handler) getSettings(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.Store.Config()
	resp := settingsResponse{Configured: ok}
	if ok {
		resp.Store = cfg.Masked()
		resp.Missing = cfg.Missing()
	}
	jsonResponse(w, http.StatusOK, resp)
}

// putSettings handles PUT /api/settings.
func (h *handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var cfg docstore.Config
	if err := decodeJSON(r, &cfg); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := cfg.Validate(); err != nil {
		h.fail(w, "save settings", err)
		return
	}

	if err := h.Services.Configure(r.Context(), cfg); err != nil {
		h.fail(w, "connect to the store", err)
		return
	}
	if h.Settings != nil {
		if err := h.Settings.Save(cfg); err != nil {
			h.fail(w, "save settings", err)
			return
		}
	}

	h.ok(w, http.StatusOK, "Settings saved", settingsResponse{
		Configured: true,
		Store:      cfg.Masked(),
		Missing:    cfg.Missing(),
	})
}

// deleteSettings handles DELETE /api/settings.
func (h *handler) deleteSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.Disconnect(); err != nil {
		h.fail(w, "clear settings", err)
		return
	}
	h.ok(w, http.StatusOK, "Settings cleared", settingsResponse{})
}
