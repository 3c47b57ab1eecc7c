// Package filestore keeps uploaded document bytes on disk. Paths recorded in
// the database are relative to the store root, so the root can move between
// deployments without rewriting rows.
package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store writes and reads uploaded files under a single root directory.
// Layout: <root>/message_files/<message id>/<sanitized name>.
type Store struct {
	root string
}

// New creates a Store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store root must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating file store root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Save writes the upload and returns its store-relative path and size.
func (s *Store) Save(messageID uuid.UUID, fileName string, r io.Reader) (string, int64, error) {
	name := sanitize(fileName)
	rel := filepath.Join("message_files", messageID.String(), name)
	abs := filepath.Join(s.root, rel)

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", 0, fmt.Errorf("creating upload directory: %w", err)
	}

	f, err := os.Create(abs)
	if err != nil {
		return "", 0, fmt.Errorf("creating upload file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(abs)
		return "", 0, fmt.Errorf("writing upload: %w", err)
	}
	return rel, n, nil
}

// Open returns the stored bytes for a path previously returned by Save.
func (s *Store) Open(rel string) (io.ReadCloser, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(abs)
}

// ReadText loads an entire stored file as a string, for chunking.
func (s *Store) ReadText(rel string) (string, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("reading stored file: %w", err)
	}
	return string(b), nil
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Store) Remove(rel string) error {
	abs, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stored file: %w", err)
	}
	return nil
}

// resolve maps a store-relative path onto the root, refusing anything that
// would escape it.
func (s *Store) resolve(rel string) (string, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes file store", rel)
	}
	return filepath.Join(s.root, clean), nil
}

// sanitize reduces an untrusted upload name to a bare file name.
func sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}
