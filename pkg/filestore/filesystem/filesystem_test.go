// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package filesystem_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leseb/docchat-gw/pkg/filestore"
	"github.com/leseb/docchat-gw/pkg/filestore/filestoretest"
	"github.com/leseb/docchat-gw/pkg/filestore/filesystem"
)

func TestFilesystemConformance(t *testing.T) {
	filestoretest.RunConformanceTests(t, func(t *testing.T) filestore.FileStore {
		store, err := filesystem.New(t.TempDir())
		if err != nil {
			t.Fatalf("filesystem.New: %v", err)
		}
		return store
	})
}

func TestFilesystem_RejectsPathTraversal(t *testing.T) {
	base := t.TempDir()
	store, err := filesystem.New(filepath.Join(base, "files"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	err = store.CreateFile(ctx, &filestore.File{ID: "../escape", Content: []byte("x"), CreatedAt: time.Now()})
	if !errors.Is(err, filestore.ErrFileNotFound) {
		t.Fatalf("CreateFile(../escape) error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "escape")); !os.IsNotExist(err) {
		t.Errorf("file escaped base dir: %v", err)
	}
	if _, err := store.GetFileContent(ctx, ".."); !errors.Is(err, filestore.ErrFileNotFound) {
		t.Errorf("GetFileContent(..) error = %v", err)
	}
}

func TestFilesystem_SkipsForeignDirectories(t *testing.T) {
	base := t.TempDir()
	store, err := filesystem.New(base)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(base, "lost+found"), 0o755); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := store.CreateFile(ctx, &filestore.File{ID: "doc_1", OwnerID: "u", Content: []byte("%PDF-"), CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	files, _, err := store.ListFilesPaginated(ctx, "", "", 10, "asc", "")
	if err != nil {
		t.Fatalf("ListFilesPaginated: %v", err)
	}
	if len(files) != 1 || files[0].ID != "doc_1" || files[0].Bytes != 5 {
		t.Errorf("files = %+v", files)
	}
}
