package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memBucket struct {
	public  bool
	objects map[string]memObject
}

type memObject struct {
	data []byte
	info Object
}

// MemoryStore keeps buckets in process. Contents are lost on restart.
type MemoryStore struct {
	mu         sync.RWMutex
	buckets    map[string]*memBucket
	publicBase string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(publicBase string) *MemoryStore {
	return &MemoryStore{
		buckets:    make(map[string]*memBucket),
		publicBase: strings.TrimRight(publicBase, "/"),
	}
}

func (s *MemoryStore) BucketExists(_ context.Context, bucket string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.buckets[bucket]
	return ok, nil
}

func (s *MemoryStore) MakeBucket(_ context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; ok {
		return ErrBucketExists
	}
	s.buckets[bucket] = &memBucket{objects: make(map[string]memObject)}
	return nil
}

func (s *MemoryStore) SetPublic(_ context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return ErrBucketNotFound
	}
	b.public = true
	return nil
}

// IsPublic reports whether SetPublic ran for bucket.
func (s *MemoryStore) IsPublic(bucket string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[bucket]
	return ok && b.public
}

func (s *MemoryStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, opts PutOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("put object %q: read %d bytes, expected %d", key, len(data), size)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucket]
	if !ok {
		return ErrBucketNotFound
	}
	b.objects[key] = memObject{
		data: data,
		info: Object{
			Key:          key,
			Size:         int64(len(data)),
			ContentType:  opts.ContentType,
			LastModified: time.Now().UTC(),
		},
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, bucket, prefix string) ([]Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buckets[bucket]
	if !ok {
		return nil, ErrBucketNotFound
	}

	out := make([]Object, 0, len(b.objects))
	for key, obj := range b.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Remove(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucket]
	if !ok {
		return ErrBucketNotFound
	}
	delete(b.objects, key)
	return nil
}

// Get returns a reader over a stored object.
func (s *MemoryStore) Get(_ context.Context, bucket, key string) (io.Reader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return nil, false
	}
	obj, ok := b.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.NewReader(obj.data), true
}

func (s *MemoryStore) PublicURL(bucket, key string) string {
	return joinURL(s.publicBase, bucket, key)
}
