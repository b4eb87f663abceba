// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package s3_test

import (
	"context"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/leseb/docchat-gw/pkg/filestore"
	"github.com/leseb/docchat-gw/pkg/filestore/filestoretest"
	fss3 "github.com/leseb/docchat-gw/pkg/filestore/s3"
)

func s3Options(t *testing.T) fss3.Options {
	t.Helper()
	bucket := os.Getenv("FILE_STORE_S3_BUCKET")
	endpoint := os.Getenv("FILE_STORE_S3_ENDPOINT")
	if bucket == "" || endpoint == "" {
		t.Skip("Skipping S3 tests: FILE_STORE_S3_BUCKET and FILE_STORE_S3_ENDPOINT must be set (e.g. with MinIO)")
	}
	region := os.Getenv("FILE_STORE_S3_REGION")
	if region == "" {
		region = "us-east-1"
	}
	return fss3.Options{
		Bucket:   bucket,
		Region:   region,
		Prefix:   "test-" + strings.ReplaceAll(t.Name(), "/", "_") + "/",
		Endpoint: endpoint,
	}
}

func TestS3Conformance(t *testing.T) {
	filestoretest.RunConformanceTests(t, func(t *testing.T) filestore.FileStore {
		store, err := fss3.New(context.Background(), s3Options(t))
		if err != nil {
			t.Fatalf("s3.New: %v", err)
		}
		return store
	})
}

func TestS3_SignURL(t *testing.T) {
	ctx := context.Background()
	store, err := fss3.New(ctx, s3Options(t))
	if err != nil {
		t.Fatalf("s3.New: %v", err)
	}
	f := &filestore.File{
		ID:        "doc_signed",
		Filename:  "report.pdf",
		OwnerID:   "user_1",
		MimeType:  "application/pdf",
		Content:   []byte("%PDF-1.4"),
		Status:    filestore.StatusUploaded,
		CreatedAt: time.Now(),
	}
	if err := store.CreateFile(ctx, f); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	t.Cleanup(func() { _ = store.DeleteFile(ctx, f.ID) })

	raw, err := store.SignURL(ctx, f.ID, 10*time.Minute)
	if err != nil {
		t.Fatalf("SignURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	if u.Query().Get("X-Amz-Expires") != "600" {
		t.Errorf("X-Amz-Expires = %q, want 600", u.Query().Get("X-Amz-Expires"))
	}
	if !strings.Contains(u.Path, "doc_signed/content") {
		t.Errorf("signed path = %q", u.Path)
	}
}

func TestNew_RequiresBucket(t *testing.T) {
	if _, err := fss3.New(context.Background(), fss3.Options{}); err == nil {
		t.Fatal("expected error without bucket")
	}
}
