package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures an S3-compatible object store.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
}

// S3Store keeps objects in a single S3-compatible bucket.
type S3Store struct {
	cl     *minio.Client
	bucket string
}

// NewS3Store connects to the endpoint and checks that the bucket exists.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	cl, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, err
	}

	ok, err := cl.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, classifyS3("bucket_exists", cfg.Bucket, err)
	}
	if !ok {
		return nil, fmt.Errorf("s3 bucket %q does not exist", cfg.Bucket)
	}
	return &S3Store{cl: cl, bucket: cfg.Bucket}, nil
}

// Put uploads r under key.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.cl.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return classifyS3(OpPut, key, err)
	}
	return nil
}

// Open streams the object at key.
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.cl.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyS3(OpOpen, key, err)
	}
	// GetObject is lazy; Stat forces the request so missing keys surface here.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, classifyS3(OpOpen, key, err)
	}
	return obj, nil
}

// Delete removes key. S3 reports success for missing keys.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	err := s.cl.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err == nil {
		return nil
	}
	classified := classifyS3(OpDelete, key, err)
	if errors.Is(classified, ErrNotFound) {
		return nil
	}
	return classified
}

// List iterates objects under prefix.
func (s *S3Store) List(ctx context.Context, prefix string, fn func(ObjectInfo) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.cl.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return classifyS3(OpList, prefix, obj.Err)
		}
		if err := fn(ObjectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified.UTC()}); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// classifyS3 turns a minio error into a StoreError, or ErrNotFound for missing keys.
func classifyS3(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound && (resp.Code == "NoSuchKey" || resp.Code == "") {
		return ErrNotFound
	}
	if resp.StatusCode == 0 && resp.Code == "" {
		return &StoreError{Op: op, Key: key, Err: err}
	}
	return &StoreError{Op: op, Key: key, StatusCode: resp.StatusCode, Service: true, Err: err}
}
