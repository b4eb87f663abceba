// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package filestore keeps the raw bytes of uploaded documents.
package filestore

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/leseb/docchat-gw/pkg/provider"
)

// ErrFileNotFound is returned when a file does not exist.
var ErrFileNotFound = errors.New("file not found")

// Providers is the registry of file store backend implementations.
// Import implementation packages with blank imports to register them:
//
//	import _ "github.com/leseb/docchat-gw/pkg/filestore/memory"
//	import _ "github.com/leseb/docchat-gw/pkg/filestore/filesystem"
//	import _ "github.com/leseb/docchat-gw/pkg/filestore/s3"
var Providers = provider.NewRegistry[FileStore]("file_store")

// Status values of a stored file.
const (
	StatusUploaded  = "uploaded"
	StatusProcessed = "processed"
)

// File is an uploaded document together with its metadata.
type File struct {
	ID        string
	Filename  string
	OwnerID   string // user that uploaded the file
	MimeType  string
	Bytes     int64
	Content   []byte // populated for CreateFile input; nil for GetFile output
	Status    string
	CreatedAt time.Time
}

// FileStore defines the interface for pluggable file storage backends.
type FileStore interface {
	CreateFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, fileID string) (*File, error)
	GetFileContent(ctx context.Context, fileID string) ([]byte, error)
	DeleteFile(ctx context.Context, fileID string) error
	// ListFilesPaginated lists files by CreatedAt. An empty ownerID lists
	// every owner.
	ListFilesPaginated(ctx context.Context, after, before string, limit int, order, ownerID string) ([]*File, bool, error)
	Close(ctx context.Context) error
}

// URLSigner is implemented by stores that can hand out time-limited direct
// download links.
type URLSigner interface {
	SignURL(ctx context.Context, fileID string, expiry time.Duration) (string, error)
}

// Paginate sorts files by CreatedAt (ties broken by ID) and applies the
// after/before cursors. limit outside (0, 100] falls back to 50.
func Paginate(files []*File, after, before string, limit int, order string) ([]*File, bool) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	sort.Slice(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if order == "desc" {
			a, b = b, a
		}
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	var page []*File
	started := after == ""
	for _, f := range files {
		if !started {
			started = f.ID == after
			continue
		}
		if before != "" && f.ID == before {
			break
		}
		if len(page) == limit {
			return page, true
		}
		page = append(page, f)
	}
	return page, false
}
