// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package filesystem keeps uploaded documents on local disk.
package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leseb/docchat-gw/pkg/filestore"
)

func init() {
	filestore.Providers.Register("filesystem", func(_ context.Context, params map[string]string) (filestore.FileStore, error) {
		return New(params["base_dir"])
	})
}

// compile-time check
var _ filestore.FileStore = (*Store)(nil)

const (
	contentName  = "content"
	metadataName = "metadata.json"
)

// fileMetadata is the on-disk representation stored in metadata.json.
type fileMetadata struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	OwnerID   string    `json:"owner_id"`
	MimeType  string    `json:"mime_type"`
	Bytes     int64     `json:"bytes"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *fileMetadata) file() *filestore.File {
	return &filestore.File{
		ID:        m.ID,
		Filename:  m.Filename,
		OwnerID:   m.OwnerID,
		MimeType:  m.MimeType,
		Bytes:     m.Bytes,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
	}
}

// Store implements filestore.FileStore on a local directory.
//
// Layout:
//
//	<baseDir>/<file_id>/content
//	<baseDir>/<file_id>/metadata.json
type Store struct {
	baseDir string
}

// New creates a filesystem-backed Store, creating baseDir if it does not exist.
func New(baseDir string) (*Store, error) {
	if baseDir == "" {
		return nil, errors.New("filesystem filestore: base_dir is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base dir %s: %w", baseDir, err)
	}
	return &Store{baseDir: baseDir}, nil
}

// dir returns the directory for fileID, refusing IDs that would escape
// baseDir.
func (s *Store) dir(fileID string) (string, error) {
	if fileID == "" || fileID == "." || fileID == ".." || strings.ContainsAny(fileID, `/\`) {
		return "", fmt.Errorf("file %q: %w", fileID, filestore.ErrFileNotFound)
	}
	return filepath.Join(s.baseDir, fileID), nil
}

// CreateFile writes content and metadata; each is written to a temp file
// and renamed into place.
func (s *Store) CreateFile(_ context.Context, file *filestore.File) error {
	dir, err := s.dir(file.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create file dir: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, contentName), file.Content); err != nil {
		return fmt.Errorf("write content: %w", err)
	}

	size := file.Bytes
	if size == 0 {
		size = int64(len(file.Content))
	}
	meta, err := json.Marshal(fileMetadata{
		ID:        file.ID,
		Filename:  file.Filename,
		OwnerID:   file.OwnerID,
		MimeType:  file.MimeType,
		Bytes:     size,
		Status:    file.Status,
		CreatedAt: file.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, metadataName), meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// GetFile returns file metadata (Content is nil).
func (s *Store) GetFile(_ context.Context, fileID string) (*filestore.File, error) {
	meta, err := s.readMetadata(fileID)
	if err != nil {
		return nil, err
	}
	return meta.file(), nil
}

func (s *Store) GetFileContent(_ context.Context, fileID string) ([]byte, error) {
	dir, err := s.dir(fileID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, contentName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("file %s: %w", fileID, filestore.ErrFileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return data, nil
}

// DeleteFile removes the file directory and all its contents.
func (s *Store) DeleteFile(_ context.Context, fileID string) error {
	dir, err := s.dir(fileID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("file %s: %w", fileID, filestore.ErrFileNotFound)
		}
		return fmt.Errorf("stat file dir: %w", err)
	}
	return os.RemoveAll(dir)
}

func (s *Store) ListFilesPaginated(_ context.Context, after, before string, limit int, order, ownerID string) ([]*filestore.File, bool, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, false, fmt.Errorf("read base dir: %w", err)
	}

	var matched []*filestore.File
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.readMetadata(entry.Name())
		if err != nil {
			continue // half-written or foreign directory
		}
		if ownerID != "" && meta.OwnerID != ownerID {
			continue
		}
		matched = append(matched, meta.file())
	}

	page, hasMore := filestore.Paginate(matched, after, before, limit, order)
	return page, hasMore, nil
}

// Close is a no-op for the filesystem store.
func (s *Store) Close(_ context.Context) error {
	return nil
}

func (s *Store) readMetadata(fileID string) (*fileMetadata, error) {
	dir, err := s.dir(fileID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, metadataName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("file %s: %w", fileID, filestore.ErrFileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var meta fileMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata for %s: %w", fileID, err)
	}
	return &meta, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
