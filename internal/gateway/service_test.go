package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radif/dropzone/internal/queue"
	"github.com/radif/dropzone/internal/storage"
)

// flakyStore fails puts of a chosen content type and counts bucket creation.
type flakyStore struct {
	*storage.MemoryStore
	failType  string
	existsErr error
	makeErr   error
	removeErr error
	makes     atomic.Int32

	// policyFailures is how many SetPublic calls fail before one succeeds.
	policyFailures atomic.Int32
	// existsGate, when set, holds BucketExists until it is closed or ctx ends.
	existsGate   chan struct{}
	existsCalled chan struct{}
	existsOnce   sync.Once
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: storage.NewMemoryStore("http://cdn.local")}
}

func (s *flakyStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if s.existsGate != nil {
		s.existsOnce.Do(func() { close(s.existsCalled) })
		select {
		case <-s.existsGate:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.MemoryStore.BucketExists(ctx, bucket)
}

func (s *flakyStore) MakeBucket(ctx context.Context, bucket string) error {
	s.makes.Add(1)
	if errors.Is(s.makeErr, storage.ErrBucketExists) {
		// Another writer won the race.
		_ = s.MemoryStore.MakeBucket(ctx, bucket)
	}
	if s.makeErr != nil {
		return s.makeErr
	}
	return s.MemoryStore.MakeBucket(ctx, bucket)
}

func (s *flakyStore) SetPublic(ctx context.Context, bucket string) error {
	if s.policyFailures.Add(-1) >= 0 {
		return errors.New("policy rejected")
	}
	return s.MemoryStore.SetPublic(ctx, bucket)
}

func (s *flakyStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, opts storage.PutOptions) error {
	if s.failType != "" && opts.ContentType == s.failType {
		return errors.New("connection reset by peer")
	}
	return s.MemoryStore.Put(ctx, bucket, key, r, size, opts)
}

func (s *flakyStore) Remove(ctx context.Context, bucket, key string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	return s.MemoryStore.Remove(ctx, bucket, key)
}

func newTestService(t *testing.T, store storage.Store) *Service {
	t.Helper()
	svc := NewService(store, nil, nil, Options{MaxSize: 1024, Concurrency: 2})
	var n atomic.Int32
	svc.newID = func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return svc
}

func textFile(name, body string) File {
	return File{Name: name, Size: int64(len(body)), Body: strings.NewReader(body)}
}

func TestEnsureNamespaceCreatesBucket(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	svc := newTestService(t, store)

	_, ok := svc.NamespaceStatus("public")
	assert.False(t, ok)

	st, err := svc.EnsureNamespace(ctx, "public")
	require.NoError(t, err)
	assert.Equal(t, StateReady, st.State)
	assert.Equal(t, int64(1024), st.MaxSize)

	exists, _ := store.BucketExists(ctx, "public")
	assert.True(t, exists)
	assert.True(t, store.IsPublic("public"))

	st, err = svc.EnsureNamespace(ctx, "public")
	require.NoError(t, err)
	assert.Equal(t, StateReady, st.State)
	assert.Equal(t, int32(1), store.makes.Load())
}

func TestEnsureNamespaceConcurrentCallers(t *testing.T) {
	store := newFlakyStore()
	svc := newTestService(t, store)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.EnsureNamespace(context.Background(), "public")
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), store.makes.Load())
}

func TestEnsureNamespaceAlreadyExistsIsSuccess(t *testing.T) {
	store := newFlakyStore()
	store.makeErr = storage.ErrBucketExists
	svc := newTestService(t, store)

	st, err := svc.EnsureNamespace(context.Background(), "public")
	require.NoError(t, err)
	assert.Equal(t, StateReady, st.State)
	assert.True(t, store.IsPublic("public"))
}

func TestEnsureNamespaceMakesExistingBucketPublic(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	require.NoError(t, store.MemoryStore.MakeBucket(ctx, "public"))
	svc := newTestService(t, store)

	st, err := svc.EnsureNamespace(ctx, "public")
	require.NoError(t, err)
	assert.Equal(t, StateReady, st.State)
	assert.Zero(t, store.makes.Load())
	assert.True(t, store.IsPublic("public"))
}

func TestEnsureNamespaceRetriesPolicyAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	store.policyFailures.Store(1)
	svc := newTestService(t, store)

	st, err := svc.EnsureNamespace(ctx, "public")
	require.Error(t, err)
	assert.Equal(t, StateError, st.State)
	assert.Contains(t, st.Error, "policy rejected")
	assert.False(t, store.IsPublic("public"))

	st, err = svc.EnsureNamespace(ctx, "public")
	require.NoError(t, err)
	assert.Equal(t, StateReady, st.State)
	assert.True(t, store.IsPublic("public"))
	assert.Equal(t, int32(1), store.makes.Load())
}

func TestEnsureNamespaceSurvivesCallerCancel(t *testing.T) {
	store := newFlakyStore()
	store.existsGate = make(chan struct{})
	store.existsCalled = make(chan struct{})
	svc := newTestService(t, store)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.EnsureNamespace(ctxA, "public")
		errA <- err
	}()
	<-store.existsCalled

	type result struct {
		st  NamespaceStatus
		err error
	}
	resB := make(chan result, 1)
	go func() {
		st, err := svc.EnsureNamespace(context.Background(), "public")
		resB <- result{st, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)
	close(store.existsGate)

	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Equal(t, StateReady, r.st.State)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
	st, ok := svc.NamespaceStatus("public")
	require.True(t, ok)
	assert.Equal(t, StateReady, st.State)
}

func TestEnsureNamespaceFailure(t *testing.T) {
	store := newFlakyStore()
	store.existsErr = errors.New("access denied")
	svc := newTestService(t, store)

	st, err := svc.EnsureNamespace(context.Background(), "public")
	require.Error(t, err)
	assert.Equal(t, StateError, st.State)
	assert.Contains(t, st.Error, "access denied")

	got, ok := svc.NamespaceStatus("public")
	require.True(t, ok)
	assert.Equal(t, StateError, got.State)

	_, err = svc.Upload(context.Background(), "public", "uploads", textFile("a.txt", "a"))
	assert.ErrorIs(t, err, ErrNamespaceNotReady)
}

func TestEnsureNamespaceRejectsEmptyName(t *testing.T) {
	svc := newTestService(t, newFlakyStore())
	_, err := svc.EnsureNamespace(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidNamespace)
}

func TestUploadBeforeEnsure(t *testing.T) {
	svc := newTestService(t, newFlakyStore())

	_, err := svc.Upload(context.Background(), "public", "uploads", textFile("a.txt", "a"))
	require.ErrorIs(t, err, ErrNamespaceNotReady)
	assert.Equal(t, "Storage is not ready yet. Please wait a moment and try again.", err.Error())
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	svc := newTestService(t, store)
	_, err := svc.EnsureNamespace(ctx, "public")
	require.NoError(t, err)

	rec, err := svc.Upload(ctx, "public", "/uploads/", textFile("photo.PNG", "png-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "uploads/id-1.PNG", rec.Path)
	assert.Equal(t, "http://cdn.local/public/uploads/id-1.PNG", rec.URL)
	assert.Equal(t, "photo.PNG", rec.Name)
	assert.Equal(t, int64(9), rec.Size)
	assert.Equal(t, "image/png", rec.ContentType)

	r, ok := store.Get(ctx, "public", "uploads/id-1.PNG")
	require.True(t, ok)
	body, _ := io.ReadAll(r)
	assert.Equal(t, "png-bytes", string(body))

	recs, err := svc.Records(ctx, "public")
	require.NoError(t, err)
	assert.Equal(t, []Record{rec}, recs)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newFlakyStore())
	_, err := svc.EnsureNamespace(ctx, "public")
	require.NoError(t, err)

	_, err = svc.Upload(ctx, "public", "uploads", textFile("big.bin", strings.Repeat("x", 2048)))
	assert.ErrorIs(t, err, queue.ErrFileTooLarge)
}

func TestUploadBatchPartialFailure(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	store.failType = "application/x-broken"
	svc := newTestService(t, store)
	_, err := svc.EnsureNamespace(ctx, "public")
	require.NoError(t, err)

	res := svc.UploadBatch(ctx, "public", "uploads", []File{
		textFile("good.txt", "fine"),
		{Name: "bad.bin", Size: 3, ContentType: "application/x-broken", Body: strings.NewReader("bad")},
	})

	require.Len(t, res.Uploaded, 1)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "good.txt", res.Uploaded[0].Name)
	assert.Equal(t, "bad.bin", res.Failed[0].Name)
	assert.Equal(t, "Error uploading file bad.bin: connection reset by peer", res.Failed[0].Error)

	recs, err := svc.Records(ctx, "public")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestUploadBatchEmpty(t *testing.T) {
	svc := newTestService(t, newFlakyStore())
	res := svc.UploadBatch(context.Background(), "public", "uploads", nil)
	assert.Empty(t, res.Uploaded)
	assert.Empty(t, res.Failed)
	assert.NotNil(t, res.Uploaded)
}

func TestListSkipsFolderMarkers(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	svc := newTestService(t, store)
	_, err := svc.EnsureNamespace(ctx, "public")
	require.NoError(t, err)

	for _, key := range []string{"uploads/.folder", "uploads/.emptyFolderPlaceholder", "uploads/nested/", "uploads/a.txt", "other/b.txt"} {
		require.NoError(t, store.Put(ctx, "public", key, strings.NewReader(""), 0, storage.PutOptions{}))
	}

	objs, err := svc.List(ctx, "public", "uploads")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "uploads/a.txt", objs[0].Key)

	_, err = svc.List(ctx, "missing", "uploads")
	assert.ErrorIs(t, err, storage.ErrBucketNotFound)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	svc := newTestService(t, store)
	_, err := svc.EnsureNamespace(ctx, "public")
	require.NoError(t, err)

	rec, err := svc.Upload(ctx, "public", "uploads", textFile("a.txt", "a"))
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, "public", rec.Path))
	objs, err := svc.List(ctx, "public", "uploads")
	require.NoError(t, err)
	assert.Empty(t, objs)
	recs, err := svc.Records(ctx, "public")
	require.NoError(t, err)
	assert.Empty(t, recs)

	store.removeErr = errors.New("forbidden")
	err = svc.Remove(ctx, "public", "uploads/x.txt")
	require.Error(t, err)
	assert.Equal(t, "Error removing file: forbidden", err.Error())
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		folder, name, want string
	}{
		{"uploads", "cat.jpg", "uploads/u.jpg"},
		{"/uploads/", "archive.tar.gz", "uploads/u.gz"},
		{"uploads", "README", "uploads/u"},
		{"", "cat.jpg", "u.jpg"},
		{"a/b", "dir/cat.jpg", "a/b/u.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.folder+"|"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, objectKey(tt.folder, tt.name, "u"))
		})
	}
}

// chunkReader returns at most n bytes per Read.
type chunkReader struct {
	r io.Reader
	n int
}

func (c chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}

func TestTrackerReportsByteProgress(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newFlakyStore())
	_, err := svc.EnsureNamespace(ctx, "public")
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		progress []int
	)
	m := queue.NewManager(queue.Limits{MaxFiles: 5, MaxSize: 1024},
		queue.WithTracker(svc.Tracker("public", "uploads")),
		queue.OnChange(func(entries []queue.Entry) {
			mu.Lock()
			defer mu.Unlock()
			progress = append(progress, entries[0].Progress)
		}),
	)
	defer m.Close()

	body := strings.Repeat("z", 100)
	res, err := m.Add([]queue.File{{
		Name: "z.txt",
		Size: int64(len(body)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(chunkReader{r: strings.NewReader(body), n: 10}), nil
		},
	}})
	require.NoError(t, err)
	m.Wait()

	e, ok := m.Get(res.Accepted[0].ID)
	require.True(t, ok)
	assert.Equal(t, queue.StatusSuccess, e.Status)
	assert.Equal(t, 100, e.Progress)
	assert.Equal(t, "http://cdn.local/public/uploads/id-1.txt", e.Location)

	mu.Lock()
	defer mu.Unlock()
	assert.IsNonDecreasing(t, progress)
	assert.Contains(t, progress, 50)
}

func TestTrackerWithoutContent(t *testing.T) {
	svc := newTestService(t, newFlakyStore())
	var got queue.Event
	svc.Tracker("public", "uploads").Track(context.Background(), queue.Entry{Name: "a.txt"}, func(ev queue.Event) {
		got = ev
	})
	require.Error(t, got.Err)
	assert.Equal(t, "Error uploading file a.txt: no content to upload", got.Err.Error())
}
