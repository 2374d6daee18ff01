// Package queue tracks a bounded set of file entries from selection to a
// terminal upload state.
//
// Entries move idle → uploading → success | error. State is owned by a
// Manager and changed only through the reducer; progress comes from a
// Tracker, which is either the Simulator or a real transport.
package queue

import (
	"io"
)

// Status is the upload state of an entry.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusUploading Status = "uploading"
	StatusError     Status = "error"
	StatusSuccess   Status = "success"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// File is a candidate for the queue. Open is optional; trackers that move
// real bytes need it.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// Entry is one tracked file.
type Entry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
	Progress    int    `json:"progress"`
	Status      Status `json:"status"`
	Error       string `json:"error,omitempty"`
	// Location is where the transport put the file, when it reports one.
	Location string `json:"location,omitempty"`

	file File
}

// File returns the source file of the entry.
func (e Entry) File() File {
	return e.file
}
