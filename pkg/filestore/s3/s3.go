// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package s3 keeps uploaded documents in an S3 compatible bucket (AWS S3,
// Cloudflare R2, MinIO).
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/leseb/docchat-gw/pkg/filestore"
)

func init() {
	filestore.Providers.Register("s3", func(ctx context.Context, params map[string]string) (filestore.FileStore, error) {
		return New(ctx, Options{
			Bucket:   params["bucket"],
			Region:   params["region"],
			Prefix:   params["prefix"],
			Endpoint: params["endpoint"],
		})
	})
}

// compile-time checks
var (
	_ filestore.FileStore = (*Store)(nil)
	_ filestore.URLSigner = (*Store)(nil)
)

// Options configures the S3 backend.
type Options struct {
	Bucket   string // required
	Region   string // e.g. "us-east-1"; R2 uses "auto"
	Prefix   string // key prefix, e.g. "documents/"
	Endpoint string // custom endpoint for R2 or MinIO
}

// fileMetadata is the JSON sidecar stored alongside each file.
type fileMetadata struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	OwnerID   string    `json:"owner_id"`
	MimeType  string    `json:"mime_type"`
	Bytes     int64     `json:"bytes"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Store implements filestore.FileStore on S3.
//
// Object layout:
//
//	<prefix><file_id>/content
//	<prefix><file_id>/metadata.json
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
}

// New creates an S3-backed Store.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 filestore: bucket is required")
	}

	var optFns []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(cfg, s3Opts...)
	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
		prefix:  opts.Prefix,
	}, nil
}

func (s *Store) contentKey(fileID string) string {
	return s.prefix + fileID + "/content"
}

func (s *Store) metadataKey(fileID string) string {
	return s.prefix + fileID + "/metadata.json"
}

// CreateFile uploads the content object first so a visible metadata
// sidecar always has its content.
func (s *Store) CreateFile(ctx context.Context, file *filestore.File) error {
	size := file.Bytes
	if size == 0 {
		size = int64(len(file.Content))
	}
	metaBytes, err := json.Marshal(fileMetadata{
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

	contentType := file.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.contentKey(file.ID)),
		Body:        bytes.NewReader(file.Content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put content: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.metadataKey(file.ID)),
		Body:        bytes.NewReader(metaBytes),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put metadata: %w", err)
	}
	return nil
}

// GetFile returns file metadata (Content is nil).
func (s *Store) GetFile(ctx context.Context, fileID string) (*filestore.File, error) {
	meta, err := s.readMetadata(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return meta.file(), nil
}

func (s *Store) GetFileContent(ctx context.Context, fileID string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.contentKey(fileID)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("file %s: %w", fileID, filestore.ErrFileNotFound)
		}
		return nil, fmt.Errorf("get content: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read content body: %w", err)
	}
	return data, nil
}

// DeleteFile removes both the content and metadata objects.
func (s *Store) DeleteFile(ctx context.Context, fileID string) error {
	if _, err := s.readMetadata(ctx, fileID); err != nil {
		return err
	}

	_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &s3types.Delete{
			Objects: []s3types.ObjectIdentifier{
				{Key: aws.String(s.contentKey(fileID))},
				{Key: aws.String(s.metadataKey(fileID))},
			},
			Quiet: aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("delete objects: %w", err)
	}
	return nil
}

// ListFilesPaginated lists the file "directories" under the prefix and reads
// their metadata with bounded concurrency.
func (s *Store) ListFilesPaginated(ctx context.Context, after, before string, limit int, order, ownerID string) ([]*filestore.File, bool, error) {
	var fileIDs []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("list objects: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			id := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), s.prefix), "/")
			if id != "" {
				fileIDs = append(fileIDs, id)
			}
		}
	}

	const maxConcurrency = 10
	sem := make(chan struct{}, maxConcurrency)
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		matched  []*filestore.File
		fetchErr error
	)
	for _, id := range fileIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(fileID string) {
			defer wg.Done()
			defer func() { <-sem }()

			meta, err := s.readMetadata(ctx, fileID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, filestore.ErrFileNotFound):
				// upload in progress
			case err != nil:
				if fetchErr == nil {
					fetchErr = err
				}
			case ownerID == "" || meta.OwnerID == ownerID:
				matched = append(matched, meta.file())
			}
		}(id)
	}
	wg.Wait()

	if fetchErr != nil {
		return nil, false, fetchErr
	}

	page, hasMore := filestore.Paginate(matched, after, before, limit, order)
	return page, hasMore, nil
}

// SignURL returns a presigned GET URL for the file content. The download is
// served with the original filename.
func (s *Store) SignURL(ctx context.Context, fileID string, expiry time.Duration) (string, error) {
	meta, err := s.readMetadata(ctx, fileID)
	if err != nil {
		return "", err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.contentKey(fileID)),
	}
	if meta.Filename != "" {
		input.ResponseContentDisposition = aws.String(mime.FormatMediaType("inline", map[string]string{"filename": meta.Filename}))
	}

	req, err := s.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", fileID, err)
	}
	return req.URL, nil
}

// Close is a no-op for the S3 store.
func (s *Store) Close(_ context.Context) error {
	return nil
}

func (s *Store) readMetadata(ctx context.Context, fileID string) (*fileMetadata, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.metadataKey(fileID)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("file %s: %w", fileID, filestore.ErrFileNotFound)
		}
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	defer out.Body.Close()

	var meta fileMetadata
	if err := json.NewDecoder(out.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", fileID, err)
	}
	return &meta, nil
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

// isNotFound checks whether the error indicates a missing S3 object.
func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	// Some S3-compatible services only report the code in the message.
	return strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "NotFound")
}
