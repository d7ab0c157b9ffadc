// Package blob stores uploaded post images.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store saves opaque blobs under a key and tells where they are served from.
type Store interface {
	Save(ctx context.Context, key, contentType string, r io.Reader) error
	// Delete removes a blob; a missing key is not an error.
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// NewImageKey returns a fresh key for an uploaded post image; ext includes the dot.
func NewImageKey(ext string) string {
	return "posts/" + uuid.NewString() + ext
}

// --- filesystem ---

// FSStore writes blobs below Root; the server exposes Root at BaseURL.
type FSStore struct {
	Root    string
	BaseURL string
}

func NewFSStore(root, baseURL string) *FSStore {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &FSStore{Root: root, BaseURL: baseURL}
}

func (s *FSStore) Save(_ context.Context, key, _ string, r io.Reader) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create media dir: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create media file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write media file: %w", err)
	}
	return f.Close()
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}

func (s *FSStore) URL(key string) string {
	return s.BaseURL + key
}

// path resolves key inside Root and refuses anything that escapes it.
func (s *FSStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean)), nil
}

// --- memory (tests) ---

type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte

	ShouldFail bool // Save and Delete return an error
}

var errMemoryFail = errors.New("simulated blob store failure")

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, key, _ string, r io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ShouldFail {
		return errMemoryFail
	}
	s.blobs[key] = buf.Bytes()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ShouldFail {
		return errMemoryFail
	}
	delete(s.blobs, key)
	return nil
}

func (s *MemoryStore) URL(key string) string {
	return "/media/" + key
}

// Get returns a saved blob.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[key]
	return b, ok
}

// Len counts saved blobs.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
