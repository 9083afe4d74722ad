package api

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/erazemk/stojala/internal/binding"
	"github.com/erazemk/stojala/internal/blobstore"
	"github.com/erazemk/stojala/internal/docstore"
	"github.com/erazemk/stojala/internal/imaging"
	"github.com/erazemk/stojala/internal/inventory"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// contentDisposition builds a Content-Disposition value with filename
// quoted and escaped.
func contentDisposition(disposition, filename string) string {
	if v := mime.FormatMediaType(disposition, map[string]string{"filename": filename}); v != "" {
		return v
	}
	return disposition
}

// listResponse is the body of every collection listing.
type listResponse[T any] struct {
	Items   []T    `json:"items"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

func newList[T any](state binding.State[T]) listResponse[T] {
	resp := listResponse[T]{Items: state.Items, Loading: state.Loading}
	if resp.Items == nil {
		resp.Items = []T{}
	}
	if state.Err != nil {
		resp.Error = errorMessage(state.Err)
	}
	return resp
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, docstore.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, docstore.ErrInvalidConfig), errors.Is(err, inventory.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, imaging.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, inventory.ErrNotFound), errors.Is(err, blobstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is the text shown to users for err.
func errorMessage(err error) string {
	if errors.Is(err, docstore.ErrNotConfigured) {
		return docstore.ErrNotConfigured.Error()
	}
	var werr *binding.WriteError
	if errors.As(err, &werr) {
		return werr.Err.Error()
	}
	var rerr *binding.ReadError
	if errors.As(err, &rerr) {
		return rerr.Err.Error()
	}
	return err.Error()
}
