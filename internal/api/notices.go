package api

import (
	"net/http"

	"github.com/erazemk/stojala/internal/toast"
)

// listNotices handles GET /api/notices.
func (h *handler) listNotices(w http.ResponseWriter, r *http.Request) {
	notices := h.Notices.List()
	if notices == nil {
		notices = []toast.Notice{}
	}
	jsonResponse(w, http.StatusOK, notices)
}

// dismissNotice handles DELETE /api/notices/{id}.
func (h *handler) dismissNotice(w http.ResponseWriter, r *http.Request) {
	if !h.Notices.Dismiss(r.PathValue("id")) {
		jsonError(w, http.StatusNotFound, "notice not found")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "notice dismissed"})
}
