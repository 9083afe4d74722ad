package blobstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir(), "http://stojala.test/")
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }
	require.NoError(t, s.Configure("hall", "api-key"))
	return s
}

// splitURL returns the object path and token of a download URL.
func splitURL(t *testing.T, raw string) (string, string) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u.Path, "/blobs/"))
	return strings.TrimPrefix(u.Path, "/blobs/"), u.Query().Get("token")
}

func TestNotConfigured(t *testing.T) {
	s := New(t.TempDir(), "http://x")
	_, err := s.Upload(context.Background(), "materials", "a.jpg", []byte("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = s.Open("materials/a.jpg", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	url, err := s.Upload(context.Background(), "materials", "a.jpg", []byte("x"))
	require.NoError(t, err)
	path, token := splitURL(t, url)

	s.Reset()
	_, err = s.Open(path, token)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = s.Upload(context.Background(), "materials", "b.jpg", []byte("y"))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestUploadAndOpen(t *testing.T) {
	s := newTestStore(t)

	raw, err := s.Upload(context.Background(), "materials", "poster.jpg", []byte("image-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "http://stojala.test/blobs/materials/1700000000123_poster.jpg?token="))

	objectPath, token := splitURL(t, raw)
	data, err := s.Open(objectPath, token)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
}

func TestOpenRejectsBadTokens(t *testing.T) {
	s := newTestStore(t)
	raw, err := s.Upload(context.Background(), "materials", "a.jpg", []byte("a"))
	require.NoError(t, err)
	objectPath, token := splitURL(t, raw)

	_, err = s.Open(objectPath, "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = s.Open("materials/other.jpg", token)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, s.Configure("hall", "rotated-key"))
	_, err = s.Open(objectPath, token)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestOpenRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	for _, p := range []string{"../secret", "materials/../../x", "/etc/passwd", "materials//a"} {
		_, err := s.Open(p, "token")
		assert.ErrorIs(t, err, ErrNotFound, p)
	}
}

func TestUploadValidatesNames(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Upload(context.Background(), "../x", "a.jpg", nil)
	assert.Error(t, err)
	_, err = s.Upload(context.Background(), "materials", "a/b.jpg", nil)
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	s := newTestStore(t)
	raw, err := s.Upload(context.Background(), "materials", "a.txt", []byte("hello"))
	require.NoError(t, err)
	objectPath, token := splitURL(t, raw)

	mux := http.NewServeMux()
	mux.Handle("GET /blobs/{path...}", s.Handler())

	req := httptest.NewRequest("GET", "/blobs/"+objectPath+"?token="+url.QueryEscape(token), nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())
	etag := w.Header().Get("ETag")
	assert.Equal(t, ETag([]byte("hello")), etag)

	req = httptest.NewRequest("GET", "/blobs/"+objectPath+"?token="+url.QueryEscape(token), nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)

	req = httptest.NewRequest("GET", "/blobs/"+objectPath, nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
