package queue

import "slices"

// maxInFlight caps progress before the transport reports completion, so 100
// is only ever seen together with StatusSuccess.
const maxInFlight = 99

// action is a state transition keyed by entry id.
type action interface {
	isAction()
}

type (
	addEntries  struct{ entries []Entry }
	removeEntry struct{ id string }
	startUpload struct{ id string }
	setProgress struct {
		id       string
		progress int
	}
	succeed struct {
		id       string
		location string
	}
	fail struct {
		id  string
		msg string
	}
)

func (addEntries) isAction()  {}
func (removeEntry) isAction() {}
func (startUpload) isAction() {}
func (setProgress) isAction() {}
func (succeed) isAction()     {}
func (fail) isAction()        {}

// reduce returns the state after applying a. It never mutates state.
// Transitions on unknown ids and on entries in a terminal state are no-ops.
func reduce(state []Entry, a action) []Entry {
	switch a := a.(type) {
	case addEntries:
		next := make([]Entry, 0, len(state)+len(a.entries))
		next = append(next, state...)
		return append(next, a.entries...)

	case removeEntry:
		i := slices.IndexFunc(state, func(e Entry) bool { return e.ID == a.id })
		if i < 0 {
			return state
		}
		return slices.Delete(slices.Clone(state), i, i+1)

	case startUpload:
		return update(state, a.id, func(e *Entry) {
			if e.Status == StatusIdle {
				e.Status = StatusUploading
			}
		})

	case setProgress:
		return update(state, a.id, func(e *Entry) {
			p := min(a.progress, maxInFlight)
			if p > e.Progress {
				e.Progress = p
			}
			e.Status = StatusUploading
		})

	case succeed:
		return update(state, a.id, func(e *Entry) {
			e.Progress = 100
			e.Status = StatusSuccess
			e.Location = a.location
		})

	case fail:
		return update(state, a.id, func(e *Entry) {
			e.Status = StatusError
			e.Error = a.msg
		})
	}
	return state
}

// update applies fn to the entry with id. State is returned as is when the
// entry is missing, terminal or left unchanged by fn.
func update(state []Entry, id string, fn func(*Entry)) []Entry {
	i := slices.IndexFunc(state, func(e Entry) bool { return e.ID == id })
	if i < 0 || state[i].Status.Terminal() {
		return state
	}
	e := state[i]
	fn(&e)
	if sameFields(e, state[i]) {
		return state
	}
	next := slices.Clone(state)
	next[i] = e
	return next
}

func sameFields(a, b Entry) bool {
	return a.Progress == b.Progress &&
		a.Status == b.Status &&
		a.Error == b.Error &&
		a.Location == b.Location
}
