package api

import (
	"net/http"

	"github.com/erazemk/stojala/internal/inventory"
)

// listResponsibles handles GET /api/responsibles.
func (h *handler) listResponsibles(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	jsonResponse(w, http.StatusOK, newList(h.Catalog.Responsibles.State()))
}

// createResponsible handles POST /api/responsibles.
func (h *handler) createResponsible(w http.ResponseWriter, r *http.Request) {
	var req inventory.ResponsibleInput
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := h.Catalog.CreateResponsible(r.Context(), req)
	if err != nil {
		h.fail(w, "add responsible person", err)
		return
	}
	h.ok(w, http.StatusCreated, "Responsible person added", map[string]string{"id": id})
}

// updateResponsible handles PUT /api/responsibles/{id}.
func (h *handler) updateResponsible(w http.ResponseWriter, r *http.Request) {
	var req inventory.ResponsibleInput
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := r.PathValue("id")
	if err := h.Catalog.UpdateResponsible(r.Context(), id, req); err != nil {
		h.fail(w, "update responsible person", err)
		return
	}
	h.ok(w, http.StatusOK, "Responsible person updated", map[string]string{"id": id})
}

// deleteResponsible handles DELETE /api/responsibles/{id}.
func (h *handler) deleteResponsible(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteResponsible(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, "delete responsible person", err)
		return
	}
	h.ok(w, http.StatusOK, "Responsible person deleted", map[string]string{"message": "responsible deleted"})
}

// listChecklist handles GET /api/checklist.
func (h *handler) listChecklist(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	jsonResponse(w, http.StatusOK, newList(h.Catalog.Checklist.State()))
}

// createChecklistItem handles POST /api/checklist.
func (h *handler) createChecklistItem(w http.ResponseWriter, r *http.Request) {
	var req inventory.ChecklistInput
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := h.Catalog.CreateChecklistItem(r.Context(), req)
	if err != nil {
		h.fail(w, "add question", err)
		return
	}
	h.ok(w, http.StatusCreated, "Question added", map[string]string{"id": id})
}

// updateChecklistItem handles PUT /api/checklist/{id}.
func (h *handler) updateChecklistItem(w http.ResponseWriter, r *http.Request) {
	var req inventory.ChecklistInput
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := r.PathValue("id")
	if err := h.Catalog.UpdateChecklistItem(r.Context(), id, req); err != nil {
		h.fail(w, "update question", err)
		return
	}
	h.ok(w, http.StatusOK, "Question updated", map[string]string{"id": id})
}

// deleteChecklistItem handles DELETE /api/checklist/{id}.
func (h *handler) deleteChecklistItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteChecklistItem(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, "delete question", err)
		return
	}
	h.ok(w, http.StatusOK, "Question deleted", map[string]string{"message": "question deleted"})
}
