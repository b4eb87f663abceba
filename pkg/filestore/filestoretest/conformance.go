// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package filestoretest provides a shared conformance test suite for
// filestore.FileStore implementations. Each backend should call
// RunConformanceTests from its own _test.go file.
package filestoretest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leseb/docchat-gw/pkg/filestore"
)

func pdfFile(id, owner string, createdAt time.Time) *filestore.File {
	content := []byte("%PDF-1.4 " + id)
	return &filestore.File{
		ID:        id,
		Filename:  id + ".pdf",
		OwnerID:   owner,
		MimeType:  "application/pdf",
		Bytes:     int64(len(content)),
		Content:   content,
		Status:    filestore.StatusUploaded,
		CreatedAt: createdAt,
	}
}

// RunConformanceTests exercises a FileStore implementation against the shared
// contract. The newStore function is called once per sub-test to provide an
// isolated store instance.
func RunConformanceTests(t *testing.T, newStore func(t *testing.T) filestore.FileStore) {
	t.Helper()

	open := func(t *testing.T) filestore.FileStore {
		store := newStore(t)
		t.Cleanup(func() { _ = store.Close(context.Background()) })
		return store
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		f := pdfFile("doc_abc123", "user_1", time.Now().Truncate(time.Millisecond))
		if err := store.CreateFile(ctx, f); err != nil {
			t.Fatalf("CreateFile: %v", err)
		}

		got, err := store.GetFile(ctx, f.ID)
		if err != nil {
			t.Fatalf("GetFile: %v", err)
		}
		if got.ID != f.ID || got.Filename != f.Filename || got.OwnerID != f.OwnerID ||
			got.MimeType != f.MimeType || got.Bytes != f.Bytes || got.Status != f.Status {
			t.Errorf("GetFile returned unexpected metadata: %+v", got)
		}
		if !got.CreatedAt.Equal(f.CreatedAt) {
			t.Errorf("CreatedAt = %s, want %s", got.CreatedAt, f.CreatedAt)
		}
		if got.Content != nil {
			t.Errorf("expected Content to be nil from GetFile, got %d bytes", len(got.Content))
		}
	})

	t.Run("GetContent", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		f := pdfFile("doc_content", "user_1", time.Now())
		if err := store.CreateFile(ctx, f); err != nil {
			t.Fatalf("CreateFile: %v", err)
		}

		got, err := store.GetFileContent(ctx, f.ID)
		if err != nil {
			t.Fatalf("GetFileContent: %v", err)
		}
		if string(got) != string(f.Content) {
			t.Errorf("content mismatch: got %q, want %q", got, f.Content)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		f := pdfFile("doc_del", "user_1", time.Now())
		if err := store.CreateFile(ctx, f); err != nil {
			t.Fatalf("CreateFile: %v", err)
		}
		if err := store.DeleteFile(ctx, f.ID); err != nil {
			t.Fatalf("DeleteFile: %v", err)
		}

		if _, err := store.GetFile(ctx, f.ID); !errors.Is(err, filestore.ErrFileNotFound) {
			t.Errorf("GetFile after delete: expected ErrFileNotFound, got %v", err)
		}
		if _, err := store.GetFileContent(ctx, f.ID); !errors.Is(err, filestore.ErrFileNotFound) {
			t.Errorf("GetFileContent after delete: expected ErrFileNotFound, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		if _, err := store.GetFile(ctx, "doc_missing"); !errors.Is(err, filestore.ErrFileNotFound) {
			t.Errorf("GetFile expected ErrFileNotFound, got: %v", err)
		}
		if _, err := store.GetFileContent(ctx, "doc_missing"); !errors.Is(err, filestore.ErrFileNotFound) {
			t.Errorf("GetFileContent expected ErrFileNotFound, got: %v", err)
		}
		if err := store.DeleteFile(ctx, "doc_missing"); !errors.Is(err, filestore.ErrFileNotFound) {
			t.Errorf("DeleteFile expected ErrFileNotFound, got: %v", err)
		}
	})

	t.Run("ListPaginated", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := range 5 {
			f := pdfFile(fmt.Sprintf("doc_list%d", i), "user_1", base.Add(time.Duration(i)*time.Second))
			if err := store.CreateFile(ctx, f); err != nil {
				t.Fatalf("CreateFile[%d]: %v", i, err)
			}
		}

		files, hasMore, err := store.ListFilesPaginated(ctx, "", "", 10, "asc", "")
		if err != nil {
			t.Fatalf("ListFilesPaginated: %v", err)
		}
		if len(files) != 5 || hasMore {
			t.Fatalf("got %d files hasMore=%v, want 5 false", len(files), hasMore)
		}
		for i := 1; i < len(files); i++ {
			if files[i].CreatedAt.Before(files[i-1].CreatedAt) {
				t.Errorf("files not in ascending order at index %d", i)
			}
		}

		files, hasMore, err = store.ListFilesPaginated(ctx, "", "", 3, "desc", "")
		if err != nil {
			t.Fatalf("ListFilesPaginated: %v", err)
		}
		if len(files) != 3 || !hasMore {
			t.Fatalf("got %d files hasMore=%v, want 3 true", len(files), hasMore)
		}
		if files[0].ID != "doc_list4" {
			t.Errorf("first desc file = %s, want doc_list4", files[0].ID)
		}

		files, _, err = store.ListFilesPaginated(ctx, files[2].ID, "", 10, "desc", "")
		if err != nil {
			t.Fatalf("ListFilesPaginated after cursor: %v", err)
		}
		if len(files) != 2 || files[0].ID != "doc_list1" {
			t.Errorf("after cursor returned %d files starting %v", len(files), files)
		}
	})

	t.Run("ListFilterByOwner", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		for i, owner := range []string{"user_a", "user_b", "user_a"} {
			f := pdfFile(fmt.Sprintf("doc_owner%d", i), owner, base.Add(time.Duration(i)*time.Second))
			if err := store.CreateFile(ctx, f); err != nil {
				t.Fatalf("CreateFile[%d]: %v", i, err)
			}
		}

		files, _, err := store.ListFilesPaginated(ctx, "", "", 10, "asc", "user_a")
		if err != nil {
			t.Fatalf("ListFilesPaginated: %v", err)
		}
		if len(files) != 2 {
			t.Errorf("expected 2 files for user_a, got %d", len(files))
		}
		for _, f := range files {
			if f.OwnerID != "user_a" {
				t.Errorf("expected owner user_a, got %s", f.OwnerID)
			}
			if f.Content != nil {
				t.Errorf("listed file %s carries content", f.ID)
			}
		}
	})

	t.Run("DuplicateCreate", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		f := pdfFile("doc_dup", "user_1", time.Now())
		if err := store.CreateFile(ctx, f); err != nil {
			t.Fatalf("first CreateFile: %v", err)
		}

		// Memory rejects duplicates; filesystem and S3 overwrite.
		_ = store.CreateFile(ctx, f)

		if _, err := store.GetFile(ctx, f.ID); err != nil {
			t.Errorf("GetFile after duplicate create: %v", err)
		}
	})
}
