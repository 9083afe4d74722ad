package api

import (
	"net/http"

	"github.com/erazemk/stojala/internal/imaging"
)

type materialRequest struct {
	Name string `json:"name"`
}

// listMaterials handles GET /api/materials.
func (h *handler) listMaterials(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	jsonResponse(w, http.StatusOK, newList(h.Catalog.Materials.State()))
}

// createMaterial handles POST /api/materials.
func (h *handler) createMaterial(w http.ResponseWriter, r *http.Request) {
	var req materialRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := h.Catalog.CreateMaterial(r.Context(), req.Name)
	if err != nil {
		h.fail(w, "add material", err)
		return
	}
	h.ok(w, http.StatusCreated, "Material added", map[string]string{"id": id})
}

// updateMaterial handles PUT /api/materials/{id}.
func (h *handler) updateMaterial(w http.ResponseWriter, r *http.Request) {
	var req materialRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := r.PathValue("id")
	if err := h.Catalog.RenameMaterial(r.Context(), id, req.Name); err != nil {
		h.fail(w, "update material", err)
		return
	}
	h.ok(w, http.StatusOK, "Material updated", map[string]string{"id": id})
}

// deleteMaterial handles DELETE /api/materials/{id}.
func (h *handler) deleteMaterial(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteMaterial(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, "delete material", err)
		return
	}
	h.ok(w, http.StatusOK, "Material deleted", map[string]string{"message": "material deleted"})
}

// uploadMaterialImage handles PUT /api/materials/{id}/image.
func (h *handler) uploadMaterialImage(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	limit := imaging.DefaultOptions.MaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)

	if err := r.ParseMultipartForm(limit); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	url, err := h.Catalog.SetMaterialImage(r.Context(), r.PathValue("id"), header.Filename, file)
	if err != nil {
		h.fail(w, "upload image", err)
		return
	}
	h.ok(w, http.StatusOK, "Image uploaded", map[string]string{"imageUrl": url})
}
