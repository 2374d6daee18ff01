package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualTracker hands emit functions to the test instead of driving them.
type manualTracker struct {
	mu    sync.Mutex
	emits map[string]func(Event)
}

func newManualTracker() *manualTracker {
	return &manualTracker{emits: make(map[string]func(Event))}
}

func (m *manualTracker) Track(_ context.Context, e Entry, emit func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emits[e.ID] = emit
}

func (m *manualTracker) emit(id string, ev Event) {
	m.mu.Lock()
	fn := m.emits[id]
	m.mu.Unlock()
	fn(ev)
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(Limits{MaxFiles: 5, MaxSize: 1024}, opts...)
	t.Cleanup(m.Close)
	return m
}

func TestAddRejectsWholeBatchOverMaxFiles(t *testing.T) {
	var added int
	m := newTestManager(t,
		WithTracker(newManualTracker()),
		OnFilesAdded(func(f []File) { added += len(f) }),
	)

	_, err := m.Add(files(1))
	require.NoError(t, err)
	before := m.Len()

	_, err = m.Add(files(1, 1, 1, 1, 1, 1))
	require.ErrorIs(t, err, ErrTooManyFiles)
	assert.Equal(t, "You can only upload a maximum of 5 files.", err.Error())
	assert.Equal(t, before, m.Len())
	assert.Equal(t, 1, added)
}

func TestAddSkipsOversizedFile(t *testing.T) {
	var got []File
	m := newTestManager(t,
		WithTracker(newManualTracker()),
		OnFilesAdded(func(f []File) { got = f }),
	)

	res, err := m.Add(files(10, 4096, 20))
	require.NoError(t, err)

	require.Len(t, res.Accepted, 2)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "b.png", res.Rejected[0].Name)
	assert.ErrorIs(t, res.Rejected[0].Err, ErrFileTooLarge)
	assert.Equal(t, 2, m.Len())
	require.Len(t, got, 2)
	assert.Equal(t, "a.png", got[0].Name)
	assert.Equal(t, "c.png", got[1].Name)
}

func TestAddWithNothingAcceptedSkipsCallback(t *testing.T) {
	called := false
	m := newTestManager(t,
		WithTracker(newManualTracker()),
		OnFilesAdded(func([]File) { called = true }),
	)

	res, err := m.Add(files(4096))
	require.NoError(t, err)
	assert.Empty(t, res.Accepted)
	assert.Len(t, res.Rejected, 1)
	assert.False(t, called)
	assert.Zero(t, m.Len())
}

func TestIDsAreUniqueAcrossAdds(t *testing.T) {
	m := newTestManager(t, WithTracker(newManualTracker()))
	seen := make(map[string]bool)

	for i := 0; i < 5; i++ {
		res, err := m.Add(files(1))
		require.NoError(t, err)
		for _, e := range res.Accepted {
			assert.False(t, seen[e.ID], "duplicate id %s", e.ID)
			seen[e.ID] = true
		}
	}
	assert.Len(t, seen, 5)
}

func TestIDsStayUniqueWithCollidingGenerator(t *testing.T) {
	seq := []string{"x", "x", "", "y", "x", "z"}
	var n int
	m := newTestManager(t,
		WithTracker(newManualTracker()),
		WithIDGenerator(func() string {
			id := seq[n%len(seq)]
			n++
			return id
		}),
	)

	res, err := m.Add(files(1, 1, 1))
	require.NoError(t, err)
	ids := []string{res.Accepted[0].ID, res.Accepted[1].ID, res.Accepted[2].ID}
	assert.ElementsMatch(t, []string{"x", "y", "z"}, ids)
}

func TestRemove(t *testing.T) {
	var removed []string
	m := newTestManager(t,
		WithTracker(newManualTracker()),
		OnFileRemove(func(id string) { removed = append(removed, id) }),
	)

	res, err := m.Add(files(1, 2))
	require.NoError(t, err)

	m.Remove("does-not-exist")
	assert.Equal(t, 2, m.Len())

	m.Remove(res.Accepted[0].ID)
	assert.Equal(t, 1, m.Len())
	_, ok := m.Get(res.Accepted[0].ID)
	assert.False(t, ok)

	assert.Equal(t, []string{"does-not-exist", res.Accepted[0].ID}, removed)
}

func TestRemovedEntryIgnoresLateEvents(t *testing.T) {
	tr := newManualTracker()
	m := newTestManager(t, WithTracker(tr))

	res, err := m.Add(files(1))
	require.NoError(t, err)
	id := res.Accepted[0].ID
	m.Wait()

	m.Remove(id)
	tr.emit(id, Event{Progress: 50})
	tr.emit(id, Event{Done: true})

	assert.Zero(t, m.Len())
}

func TestFailureIsIsolatedToOneEntry(t *testing.T) {
	tr := newManualTracker()
	m := newTestManager(t, WithTracker(tr))

	res, err := m.Add(files(1, 2))
	require.NoError(t, err)
	m.Wait()
	a, b := res.Accepted[0].ID, res.Accepted[1].ID

	tr.emit(a, Event{Err: errors.New("Error uploading file a.png: connection reset")})
	tr.emit(b, Event{Progress: 40})
	tr.emit(b, Event{Done: true, Location: "http://cdn/b.png"})

	ea, _ := m.Get(a)
	eb, _ := m.Get(b)
	assert.Equal(t, StatusError, ea.Status)
	assert.Equal(t, "Error uploading file a.png: connection reset", ea.Error)
	assert.Equal(t, StatusSuccess, eb.Status)
	assert.Equal(t, 100, eb.Progress)
	assert.Equal(t, "http://cdn/b.png", eb.Location)
}

func TestEntriesStartUploading(t *testing.T) {
	m := newTestManager(t, WithTracker(newManualTracker()))

	res, err := m.Add(files(1))
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, res.Accepted[0].Status)

	e, ok := m.Get(res.Accepted[0].ID)
	require.True(t, ok)
	assert.Equal(t, StatusUploading, e.Status)
}

func TestSimulatedProgress(t *testing.T) {
	var (
		mu    sync.Mutex
		trace []Entry
	)
	m := newTestManager(t,
		WithTracker(Simulator{Interval: time.Millisecond, Step: func() float64 { return 7.4 }}),
		OnChange(func(entries []Entry) {
			mu.Lock()
			defer mu.Unlock()
			for _, e := range entries {
				trace = append(trace, e)
			}
		}),
	)

	res, err := m.Add(files(1, 2))
	require.NoError(t, err)
	m.Wait()

	for _, added := range res.Accepted {
		e, ok := m.Get(added.ID)
		require.True(t, ok)
		assert.Equal(t, StatusSuccess, e.Status)
		assert.Equal(t, 100, e.Progress)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, added := range res.Accepted {
		last := -1
		done := false
		for _, e := range trace {
			if e.ID != added.ID {
				continue
			}
			require.GreaterOrEqual(t, e.Progress, last, fmt.Sprintf("progress went backwards for %s", e.ID))
			if done {
				assert.Equal(t, StatusSuccess, e.Status, "entry changed after success")
				assert.Equal(t, 100, e.Progress)
			}
			if e.Status == StatusSuccess {
				done = true
			} else {
				assert.Less(t, e.Progress, 100)
			}
			last = e.Progress
		}
		assert.True(t, done)
	}
}

func TestCloseStopsTrackers(t *testing.T) {
	m := NewManager(Limits{MaxFiles: 5, MaxSize: 1024},
		WithTracker(Simulator{Interval: time.Hour}),
	)
	_, err := m.Add(files(1))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		m.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	_, err = m.Add(files(1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNoopProgressPublishesNothing(t *testing.T) {
	tr := newManualTracker()
	var changes atomic.Int32
	m := newTestManager(t,
		WithTracker(tr),
		OnChange(func([]Entry) { changes.Add(1) }),
	)

	res, err := m.Add(files(1))
	require.NoError(t, err)
	id := res.Accepted[0].ID
	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.emits[id] != nil
	}, time.Second, time.Millisecond)

	tr.emit(id, Event{Progress: 50})
	base := changes.Load()

	tr.emit(id, Event{Progress: 50})
	tr.emit(id, Event{Progress: 30})
	assert.Equal(t, base, changes.Load())

	tr.emit(id, Event{Progress: 60})
	assert.Equal(t, base+1, changes.Load())
}

// blockingTracker counts trackers that started and returned; each one runs
// until its context ends.
type blockingTracker struct {
	started, finished atomic.Int32
}

func (b *blockingTracker) Track(ctx context.Context, _ Entry, _ func(Event)) {
	b.started.Add(1)
	<-ctx.Done()
	b.finished.Add(1)
}

func TestCloseWaitsForConcurrentAdds(t *testing.T) {
	for range 20 {
		tr := &blockingTracker{}
		m := NewManager(Limits{MaxFiles: 1000, MaxSize: 1024}, WithTracker(tr))

		var (
			wg       sync.WaitGroup
			accepted atomic.Int32
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					res, err := m.Add(files(1))
					if err != nil {
						return
					}
					accepted.Add(int32(len(res.Accepted)))
				}
			}()
		}

		time.Sleep(time.Millisecond)
		m.Close()
		// Every tracker counted before Close returned must already be done.
		finished := tr.finished.Load()
		wg.Wait()

		assert.Equal(t, accepted.Load(), finished)
		assert.Equal(t, tr.started.Load(), finished)
	}
}
