// Package blobstore is the object storage for uploaded files. Objects live on
// disk under one directory per bucket and are fetched through signed URLs.
package blobstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/erazemk/stojala/internal/docstore"
)

var (
	// ErrNotConfigured is returned before Configure has been called.
	ErrNotConfigured = docstore.ErrNotConfigured

	// ErrNotFound is returned for objects that do not exist.
	ErrNotFound = errors.New("object not found")

	// ErrForbidden is returned for missing or invalid download tokens.
	ErrForbidden = errors.New("invalid download token")
)

var segment = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Store keeps objects under root.
type Store struct {
	root    string
	baseURL string
	now     func() time.Time

	mu     sync.RWMutex
	bucket string
	key    []byte
}

// New returns an unconfigured store. baseURL is the public address of the
// server, used to build download URLs.
func New(root, baseURL string) *Store {
	return &Store{
		root:    root,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		now:     time.Now,
	}
}

// Configure selects the bucket and the key download tokens are signed with.
func (s *Store) Configure(bucket, apiKey string) error {
	if !segment.MatchString(bucket) {
		return fmt.Errorf("invalid bucket name %q", bucket)
	}
	if apiKey == "" {
		return fmt.Errorf("signing key required")
	}
	s.mu.Lock()
	s.bucket = bucket
	s.key = []byte(apiKey)
	s.mu.Unlock()
	return nil
}

// Reset forgets the bucket and key. Uploads and downloads fail with
// ErrNotConfigured until Configure is called again.
func (s *Store) Reset() {
	s.mu.Lock()
	s.bucket = ""
	s.key = nil
	s.mu.Unlock()
}

func (s *Store) current() (string, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bucket == "" {
		return "", nil, ErrNotConfigured
	}
	return s.bucket, s.key, nil
}

// Upload stores data at {category}/{unixMillis}_{filename} and returns a URL
// it can be downloaded from.
func (s *Store) Upload(ctx context.Context, category, filename string, data []byte) (string, error) {
	bucket, key, err := s.current()
	if err != nil {
		return "", err
	}
	if !segment.MatchString(category) {
		return "", fmt.Errorf("invalid category %q", category)
	}
	if !segment.MatchString(filename) {
		return "", fmt.Errorf("invalid file name %q", filename)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := s.now()
	objectPath := category + "/" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + filename
	full := filepath.Join(s.root, bucket, filepath.FromSlash(objectPath))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating object directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating object: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing object: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storing object: %w", err)
	}

	token, err := signToken(key, bucket, objectPath, now)
	if err != nil {
		return "", err
	}

	slog.Info("object uploaded", "bucket", bucket, "path", objectPath, "bytes", len(data))
	return s.baseURL + "/blobs/" + objectPath + "?token=" + url.QueryEscape(token), nil
}

// Open returns the content of the object at objectPath if token grants access to it.
func (s *Store) Open(objectPath, token string) ([]byte, error) {
	bucket, key, err := s.current()
	if err != nil {
		return nil, err
	}
	clean := path.Clean("/" + objectPath)[1:]
	if clean != objectPath {
		return nil, ErrNotFound
	}
	for _, part := range strings.Split(clean, "/") {
		if !segment.MatchString(part) {
			return nil, ErrNotFound
		}
	}
	if err := verifyToken(key, bucket, objectPath, token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
	}

	data, err := os.ReadFile(filepath.Join(s.root, bucket, filepath.FromSlash(objectPath)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading object: %w", err)
	}
	return data, nil
}

// ETag returns a strong entity tag for data.
func ETag(data []byte) string {
	sum := blake2b.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// Handler serves GET /blobs/{path...}?token=...
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := s.Open(r.PathValue("path"), r.URL.Query().Get("token"))
		switch {
		case errors.Is(err, ErrNotConfigured):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		case errors.Is(err, ErrForbidden):
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		case errors.Is(err, ErrNotFound):
			http.NotFound(w, r)
			return
		case err != nil:
			slog.Error("serving object", "path", r.PathValue("path"), "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		etag := ETag(data)
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "private, max-age=86400")
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	})
}
