package api

import (
	"net/http"
	"strconv"

	"github.com/erazemk/stojala/internal/export"
	"github.com/erazemk/stojala/internal/inventory"
	"github.com/erazemk/stojala/internal/model"
)

type standResponse struct {
	Stand   model.Stand               `json:"stand"`
	Shelves []inventory.ResolvedShelf `json:"shelves"`
}

type shelfRequest struct {
	MaterialIDs []string `json:"materialIds"`
}

// listStands handles GET /api/stands.
func (h *handler) listStands(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	state := h.Catalog.Stands.State()
	if status := r.URL.Query().Get("status"); status != "" {
		kept := state.Items[:0]
		for _, s := range state.Items {
			if s.Status == status || (status == model.StatusInHall && s.InHall()) {
				kept = append(kept, s)
			}
		}
		state.Items = kept
	}
	jsonResponse(w, http.StatusOK, newList(state))
}

// createStand handles POST /api/stands.
func (h *handler) createStand(w http.ResponseWriter, r *http.Request) {
	var req inventory.StandInput
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := h.Catalog.CreateStand(r.Context(), req)
	if err != nil {
		h.fail(w, "add stand", err)
		return
	}
	h.ok(w, http.StatusCreated, "Stand "+req.Number+" added", map[string]string{"id": id})
}

// getStand handles GET /api/stands/{id}.
func (h *handler) getStand(w http.ResponseWriter, r *http.Request) {
	stand, ok := h.Catalog.Stands.Find(r.PathValue("id"))
	if !ok {
		jsonError(w, http.StatusNotFound, "stand not found")
		return
	}
	jsonResponse(w, http.StatusOK, standResponse{
		Stand:   stand,
		Shelves: h.Catalog.ResolveShelves(stand),
	})
}

// lookupStand handles GET /api/stands/lookup?code=.
func (h *handler) lookupStand(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		jsonError(w, http.StatusBadRequest, "code required")
		return
	}
	stand, ok := h.Catalog.LookupStand(code)
	if !ok {
		jsonError(w, http.StatusNotFound, "stand not found")
		return
	}
	jsonResponse(w, http.StatusOK, standResponse{
		Stand:   stand,
		Shelves: h.Catalog.ResolveShelves(stand),
	})
}

// updateStand handles PUT /api/stands/{id}.
func (h *handler) updateStand(w http.ResponseWriter, r *http.Request) {
	var req inventory.StandInput
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := r.PathValue("id")
	if err := h.Catalog.UpdateStand(r.Context(), id, req); err != nil {
		h.fail(w, "update stand", err)
		return
	}
	h.ok(w, http.StatusOK, "Stand "+req.Number+" updated", map[string]string{"id": id})
}

// deleteStand handles DELETE /api/stands/{id}.
func (h *handler) deleteStand(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteStand(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, "delete stand", err)
		return
	}
	h.ok(w, http.StatusOK, "Stand deleted", map[string]string{"message": "stand deleted"})
}

// setShelf handles PUT /api/stands/{id}/shelves/{index}.
func (h *handler) setShelf(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid shelf index")
		return
	}
	var req shelfRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Catalog.SetShelf(r.Context(), r.PathValue("id"), index, req.MaterialIDs); err != nil {
		h.fail(w, "update shelf", err)
		return
	}
	h.ok(w, http.StatusOK, "Shelf updated", map[string]string{"message": "shelf updated"})
}

// standQR handles GET /api/stands/{id}/qr.png.
func (h *handler) standQR(w http.ResponseWriter, r *http.Request) {
	stand, ok := h.Catalog.Stands.Find(r.PathValue("id"))
	if !ok {
		jsonError(w, http.StatusNotFound, "stand not found")
		return
	}
	code := stand.QRCode
	if code == "" {
		code = inventory.QRCode(stand.Number)
	}
	data, err := export.StandQR(code)
	if err != nil {
		readFail(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", contentDisposition("inline", "stand-"+stand.Number+".png"))
	w.Write(data)
}

// issueStand handles POST /api/stands/{id}/issue.
func (h *handler) issueStand(w http.ResponseWriter, r *http.Request) {
	var req inventory.IssueInput
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	txID, err := h.Catalog.IssueStand(r.Context(), r.PathValue("id"), req)
	if err != nil {
		h.fail(w, "issue stand", err)
		return
	}
	h.ok(w, http.StatusOK, "Stand issued", map[string]string{"transactionId": txID})
}

// receiveStand handles POST /api/stands/{id}/receive.
func (h *handler) receiveStand(w http.ResponseWriter, r *http.Request) {
	var req inventory.ReceiveInput
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reportID, err := h.Catalog.ReceiveStand(r.Context(), r.PathValue("id"), req)
	if err != nil {
		h.fail(w, "receive stand", err)
		return
	}
	h.ok(w, http.StatusOK, "Stand received", map[string]string{"reportId": reportID})
}
