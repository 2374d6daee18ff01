// Package storage defines the interface for namespaced object storage.
// Swap implementations by changing the concrete type injected at startup:
// MinioStore works with any S3-compatible provider, S3Store goes through the
// AWS SDK, MemoryStore keeps everything in process for development and tests.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrBucketExists is returned by MakeBucket when the bucket is already there,
// including the case where a concurrent caller created it first.
var ErrBucketExists = errors.New("bucket already exists")

// ErrBucketNotFound is returned when an operation targets a missing bucket.
var ErrBucketNotFound = errors.New("bucket not found")

// Object describes a stored blob.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// PutOptions carries per-object metadata for uploads.
type PutOptions struct {
	ContentType  string
	CacheControl string
}

// Store is the interface for bucket and object operations.
type Store interface {
	// BucketExists reports whether bucket is present.
	BucketExists(ctx context.Context, bucket string) (bool, error)
	// MakeBucket creates bucket.
	MakeBucket(ctx context.Context, bucket string) error
	// SetPublic attaches an anonymous read policy to bucket. Safe to repeat.
	SetPublic(ctx context.Context, bucket string) error
	// Put streams data to bucket under key. size may be -1 when unknown.
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, opts PutOptions) error
	// List returns every object whose key starts with prefix.
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
	// Remove deletes a single object.
	Remove(ctx context.Context, bucket, key string) error
	// PublicURL constructs the browser-accessible URL for a key.
	PublicURL(bucket, key string) string
}

func joinURL(base, bucket, key string) string {
	return base + "/" + bucket + "/" + key
}
