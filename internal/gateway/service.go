// Package gateway uploads files into namespaced object storage and keeps the
// ledger of what was uploaded.
//
// A namespace maps to one bucket. It has to be ensured before anything is
// uploaded into it; EnsureNamespace is idempotent and safe to call from many
// goroutines at once.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/radif/dropzone/internal/cache"
	"github.com/radif/dropzone/internal/logger"
	"github.com/radif/dropzone/internal/queue"
	"github.com/radif/dropzone/internal/records"
	"github.com/radif/dropzone/internal/storage"
)

// CacheControl is set on every uploaded object.
const CacheControl = "max-age=3600"

const (
	defaultContentType   = "application/octet-stream"
	defaultEnsureTimeout = 30 * time.Second
)

// ErrNamespaceNotReady is matched by uploads into a namespace that was never
// ensured or whose creation failed.
var ErrNamespaceNotReady = errors.New("namespace not ready")

// ErrInvalidNamespace rejects empty namespace names.
var ErrInvalidNamespace = errors.New("invalid namespace name")

// Record is an uploaded object.
type Record = records.Record

// State is the lifecycle of a namespace.
type State string

const (
	StateChecking State = "checking"
	StateCreating State = "creating"
	StateReady    State = "ready"
	StateError    State = "error"
)

// NamespaceStatus describes what the gateway knows about a namespace.
type NamespaceStatus struct {
	Name    string `json:"name"`
	State   State  `json:"state"`
	Error   string `json:"error,omitempty"`
	MaxSize int64  `json:"maxSize"`
}

// File is one upload. Body is read exactly once.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// Failure is a file of a batch that did not make it.
type Failure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// BatchResult holds the outcome of every file of a batch. Successes keep the
// order of the input.
type BatchResult struct {
	Uploaded []Record  `json:"uploaded"`
	Failed   []Failure `json:"failed"`
}

// Options tunes a Service.
type Options struct {
	// MaxSize is the per-file ceiling recorded on every ensured namespace.
	MaxSize int64
	// Concurrency bounds the transfers of one batch.
	Concurrency int
}

// Service owns namespace state and runs uploads against a storage.Store.
type Service struct {
	store   storage.Store
	records records.Repository
	cache   cache.ListingCache
	opts    Options

	newID         func() string
	now           func() time.Time
	ensureTimeout time.Duration

	group singleflight.Group

	mu         sync.RWMutex
	namespaces map[string]NamespaceStatus
}

// NewService creates a gateway over store. A nil repo keeps records in memory
// and a nil listing cache disables caching.
func NewService(store storage.Store, repo records.Repository, listings cache.ListingCache, opts Options) *Service {
	if repo == nil {
		repo = records.NewMemoryRepository()
	}
	if listings == nil {
		listings = cache.NewNoop()
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = queue.DefaultLimits.MaxSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Service{
		store:         store,
		records:       repo,
		cache:         listings,
		opts:          opts,
		newID:         uuid.NewString,
		now:           time.Now,
		ensureTimeout: defaultEnsureTimeout,
		namespaces:    make(map[string]NamespaceStatus),
	}
}

// EnsureNamespace makes sure the bucket behind name exists and is publicly
// readable. A bucket that already exists, or is created by a concurrent
// caller, counts as success. Calls for the same name are coalesced; the
// shared attempt is detached from ctx, so a caller giving up does not fail
// the others.
func (s *Service) EnsureNamespace(ctx context.Context, name string) (NamespaceStatus, error) {
	if name == "" {
		return NamespaceStatus{}, ErrInvalidNamespace
	}
	if st, ok := s.NamespaceStatus(name); ok && st.State == StateReady {
		return st, nil
	}

	ch := s.group.DoChan(name, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ensureTimeout)
		defer cancel()
		return s.ensure(ctx, name)
	})

	select {
	case res := <-ch:
		return res.Val.(NamespaceStatus), res.Err
	case <-ctx.Done():
		st, _ := s.NamespaceStatus(name)
		return st, ctx.Err()
	}
}

func (s *Service) ensure(ctx context.Context, name string) (NamespaceStatus, error) {
	s.setState(name, StateChecking, "")

	exists, err := s.store.BucketExists(ctx, name)
	if err != nil {
		return s.failNamespace(name, fmt.Errorf("check bucket: %w", err))
	}

	if !exists {
		s.setState(name, StateCreating, "")
		err := s.store.MakeBucket(ctx, name)
		switch {
		case errors.Is(err, storage.ErrBucketExists):
			logger.Log.Debug().Str("namespace", name).Msg("bucket created concurrently")
		case err != nil:
			return s.failNamespace(name, fmt.Errorf("create bucket: %w", err))
		default:
			logger.Log.Info().Str("namespace", name).Msg("bucket created")
		}
	}

	// Applied on every attempt: a bucket left private by an earlier failure
	// must not become ready.
	if err := s.store.SetPublic(ctx, name); err != nil {
		return s.failNamespace(name, fmt.Errorf("set public policy: %w", err))
	}

	return s.setState(name, StateReady, ""), nil
}

func (s *Service) failNamespace(name string, err error) (NamespaceStatus, error) {
	logger.Log.Error().Err(err).Str("namespace", name).Msg("ensure namespace failed")
	return s.setState(name, StateError, err.Error()), err
}

func (s *Service) setState(name string, state State, msg string) NamespaceStatus {
	st := NamespaceStatus{Name: name, State: state, Error: msg, MaxSize: s.opts.MaxSize}
	s.mu.Lock()
	s.namespaces[name] = st
	s.mu.Unlock()
	return st
}

// NamespaceStatus reports the state of name, if EnsureNamespace ever ran for it.
func (s *Service) NamespaceStatus(name string) (NamespaceStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.namespaces[name]
	return st, ok
}

// MaxSize is the per-file ceiling of ensured namespaces.
func (s *Service) MaxSize() int64 {
	return s.opts.MaxSize
}

// Upload stores f under folder/<uuid><ext> in namespace and records it.
func (s *Service) Upload(ctx context.Context, namespace, folder string, f File) (Record, error) {
	if st, ok := s.NamespaceStatus(namespace); !ok || st.State != StateReady {
		return Record{}, NotReadyError()
	}
	if f.Size > s.opts.MaxSize {
		return Record{}, queue.FileTooLargeError(f.Name, s.opts.MaxSize)
	}

	key := objectKey(folder, f.Name, s.newID())
	contentType := detectContentType(f.Name, f.ContentType)

	err := s.store.Put(ctx, namespace, key, f.Body, f.Size, storage.PutOptions{
		ContentType:  contentType,
		CacheControl: CacheControl,
	})
	if err != nil {
		logger.Log.Warn().Err(err).Str("namespace", namespace).Str("file", f.Name).Msg("upload failed")
		return Record{}, &UploadError{Name: f.Name, Err: err}
	}

	rec := Record{
		Namespace:   namespace,
		Path:        key,
		URL:         s.store.PublicURL(namespace, key),
		Name:        f.Name,
		Size:        f.Size,
		ContentType: contentType,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.records.Save(ctx, rec); err != nil {
		logger.Log.Error().Err(err).Str("path", key).Msg("record not saved")
	}
	s.invalidate(ctx, namespace)

	logger.Log.Info().Str("namespace", namespace).Str("path", key).Int64("size", f.Size).Msg("file uploaded")
	return rec, nil
}

// UploadBatch uploads every file concurrently and waits for all of them.
// One failing file does not stop the others.
func (s *Service) UploadBatch(ctx context.Context, namespace, folder string, files []File) BatchResult {
	recs := make([]Record, len(files))
	errs := make([]error, len(files))

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, f := range files {
		g.Go(func() error {
			recs[i], errs[i] = s.Upload(ctx, namespace, folder, f)
			return nil
		})
	}
	_ = g.Wait()

	res := BatchResult{Uploaded: []Record{}, Failed: []Failure{}}
	for i, f := range files {
		if errs[i] != nil {
			res.Failed = append(res.Failed, Failure{Name: f.Name, Error: errs[i].Error()})
			continue
		}
		res.Uploaded = append(res.Uploaded, recs[i])
	}
	return res
}

// List returns the objects under folder, without folder markers.
func (s *Service) List(ctx context.Context, namespace, folder string) ([]storage.Object, error) {
	folder = cleanFolder(folder)

	if objs, ok, err := s.cache.Get(ctx, namespace, folder); err != nil {
		logger.Log.Warn().Err(err).Str("namespace", namespace).Msg("listing cache read failed")
	} else if ok {
		return objs, nil
	}

	prefix := ""
	if folder != "" {
		prefix = folder + "/"
	}
	all, err := s.store.List(ctx, namespace, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", namespace, folder, err)
	}

	objs := make([]storage.Object, 0, len(all))
	for _, o := range all {
		if !isFolderMarker(o.Key) {
			objs = append(objs, o)
		}
	}

	if err := s.cache.Set(ctx, namespace, folder, objs); err != nil {
		logger.Log.Warn().Err(err).Str("namespace", namespace).Msg("listing cache write failed")
	}
	return objs, nil
}

// Remove deletes one object and its record. Failures are reported, not retried.
func (s *Service) Remove(ctx context.Context, namespace, key string) error {
	if err := s.store.Remove(ctx, namespace, key); err != nil {
		return &RemoveError{Err: err}
	}
	if err := s.records.Delete(ctx, namespace, key); err != nil {
		logger.Log.Error().Err(err).Str("path", key).Msg("record not deleted")
	}
	s.invalidate(ctx, namespace)
	return nil
}

// Records returns what was uploaded into namespace.
func (s *Service) Records(ctx context.Context, namespace string) ([]Record, error) {
	return s.records.List(ctx, namespace)
}

func (s *Service) invalidate(ctx context.Context, namespace string) {
	if err := s.cache.Invalidate(ctx, namespace); err != nil {
		logger.Log.Warn().Err(err).Str("namespace", namespace).Msg("listing cache invalidation failed")
	}
}

func cleanFolder(folder string) string {
	return strings.Trim(folder, "/")
}

func objectKey(folder, name, id string) string {
	base := id + path.Ext(path.Base(name))
	if folder = cleanFolder(folder); folder == "" {
		return base
	}
	return folder + "/" + base
}

func detectContentType(name, declared string) string {
	if declared != "" {
		return declared
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return defaultContentType
}

func isFolderMarker(key string) bool {
	if strings.HasSuffix(key, "/") {
		return true
	}
	switch path.Base(key) {
	case ".folder", ".emptyFolderPlaceholder":
		return true
	}
	return false
}
