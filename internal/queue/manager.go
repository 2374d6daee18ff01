package queue

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned by Add after Close.
var ErrClosed = errors.New("queue closed")

// Event is what a Tracker reports about one entry. Err ends the entry in
// StatusError, Done ends it in StatusSuccess, anything else is progress.
type Event struct {
	Progress int
	Done     bool
	Location string
	Err      error
}

// Tracker drives one entry to a terminal state by calling emit. Track may
// return before the transfer finishes as long as emit keeps being called.
type Tracker interface {
	Track(ctx context.Context, e Entry, emit func(Event))
}

// TrackerFunc adapts a function to Tracker.
type TrackerFunc func(ctx context.Context, e Entry, emit func(Event))

func (f TrackerFunc) Track(ctx context.Context, e Entry, emit func(Event)) { f(ctx, e, emit) }

// AddResult lists what Add did with each file of a batch.
type AddResult struct {
	Accepted []Entry
	Rejected []Rejection
}

// Option configures a Manager.
type Option func(*Manager)

// WithTracker replaces the default Simulator.
func WithTracker(t Tracker) Option {
	return func(m *Manager) { m.tracker = t }
}

// WithIDGenerator replaces uuid-based ids.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// OnFilesAdded is called with the accepted files of every batch.
func OnFilesAdded(fn func([]File)) Option {
	return func(m *Manager) { m.onAdded = fn }
}

// OnFileRemove is called with the id passed to every Remove.
func OnFileRemove(fn func(id string)) Option {
	return func(m *Manager) { m.onRemove = fn }
}

// OnChange receives a snapshot after every state change, in order.
// The callback must not call Add or Remove.
func OnChange(fn func([]Entry)) Option {
	return func(m *Manager) { m.onChange = fn }
}

// Manager owns the entry list.
type Manager struct {
	limits   Limits
	tracker  Tracker
	newID    func() string
	onAdded  func([]File)
	onRemove func(string)
	onChange func([]Entry)

	mu       sync.Mutex
	notifyMu sync.Mutex
	entries  []Entry
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager returns an empty queue bounded by limits.
func NewManager(limits Limits, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		limits:  limits,
		tracker: Simulator{},
		newID:   uuid.NewString,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Limits returns the configured bounds.
func (m *Manager) Limits() Limits {
	return m.limits
}

// Add validates files against the current queue, appends the accepted ones
// as idle entries and starts tracking them. The returned error is only set
// when the whole batch was rejected.
func (m *Manager) Add(files []File) (AddResult, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return AddResult{}, ErrClosed
	}

	accepted, rejected, err := Validate(m.limits, len(m.entries), files)
	if err != nil {
		m.mu.Unlock()
		return AddResult{}, err
	}
	if len(accepted) == 0 {
		m.mu.Unlock()
		return AddResult{Rejected: rejected}, nil
	}

	added := make([]Entry, 0, len(accepted))
	for _, f := range accepted {
		added = append(added, Entry{
			ID:          m.uniqueIDLocked(added),
			Name:        f.Name,
			Size:        f.Size,
			ContentType: f.ContentType,
			Status:      StatusIdle,
			file:        f,
		})
	}
	// Counted before mu is released so a concurrent Close waits for them.
	m.wg.Add(len(added))
	m.commitLocked(addEntries{entries: added})

	if m.onAdded != nil {
		m.onAdded(accepted)
	}
	for _, e := range added {
		m.track(e)
	}

	return AddResult{Accepted: added, Rejected: rejected}, nil
}

// Remove drops the entry with id if present and always notifies OnFileRemove.
// An in-flight transfer for the entry keeps running; its events are ignored.
func (m *Manager) Remove(id string) {
	m.dispatch(removeEntry{id: id})
	if m.onRemove != nil {
		m.onRemove(id)
	}
}

// Entries returns a snapshot of the queue in insertion order.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

// Get returns the entry with id.
func (m *Manager) Get(id string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.entries, func(e Entry) bool { return e.ID == id })
	if i < 0 {
		return Entry{}, false
	}
	return m.entries[i], true
}

// Len returns the number of entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Wait blocks until every tracker started so far has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels running trackers and waits for them. Add fails afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// track starts the tracker for e. The caller has already counted it in wg.
func (m *Manager) track(e Entry) {
	m.dispatch(startUpload{id: e.ID})

	go func() {
		defer m.wg.Done()
		m.tracker.Track(m.ctx, e, func(ev Event) { m.handle(e.ID, ev) })
	}()
}

func (m *Manager) handle(id string, ev Event) {
	switch {
	case ev.Err != nil:
		m.dispatch(fail{id: id, msg: ev.Err.Error()})
	case ev.Done:
		m.dispatch(succeed{id: id, location: ev.Location})
	default:
		m.dispatch(setProgress{id: id, progress: ev.Progress})
	}
}

func (m *Manager) dispatch(a action) {
	m.mu.Lock()
	m.commitLocked(a)
}

// commitLocked applies a, releases mu and publishes the new snapshot.
// notifyMu is taken before mu is released so subscribers see changes in order.
func (m *Manager) commitLocked(a action) {
	prev := m.entries
	m.entries = reduce(m.entries, a)
	changed := !sameBacking(prev, m.entries)

	if m.onChange == nil || !changed {
		m.mu.Unlock()
		return
	}

	snap := slices.Clone(m.entries)
	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()
	m.onChange(snap)
}

func (m *Manager) uniqueIDLocked(pending []Entry) string {
	taken := func(id string) bool {
		has := func(e Entry) bool { return e.ID == id }
		return slices.ContainsFunc(m.entries, has) || slices.ContainsFunc(pending, has)
	}
	for {
		if id := m.newID(); id != "" && !taken(id) {
			return id
		}
	}
}

// sameBacking reports whether reduce returned its input unchanged.
func sameBacking(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}
