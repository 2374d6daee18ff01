package queue

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrTooManyFiles rejects a whole batch.
var ErrTooManyFiles = errors.New("too many files")

// ErrFileTooLarge rejects a single file.
var ErrFileTooLarge = errors.New("file too large")

// Limits bound what the queue accepts.
type Limits struct {
	MaxFiles int
	MaxSize  int64
}

// DefaultLimits are 5 files of at most 10 MiB each.
var DefaultLimits = Limits{MaxFiles: 5, MaxSize: 10 * 1024 * 1024}

// Rejection explains why one file was skipped.
type Rejection struct {
	Name string `json:"name"`
	Err  error  `json:"-"`
}

// Message is the user-facing text of the rejection.
func (r Rejection) Message() string {
	return r.Err.Error()
}

// validationError carries a message meant for end users and matches its
// sentinel with errors.Is.
type validationError struct {
	kind error
	msg  string
}

func (e *validationError) Error() string { return e.msg }
func (e *validationError) Unwrap() error { return e.kind }

// TooManyFilesError formats the batch rejection for max files.
func TooManyFilesError(max int) error {
	return &validationError{
		kind: ErrTooManyFiles,
		msg:  fmt.Sprintf("You can only upload a maximum of %d files.", max),
	}
}

// FileTooLargeError formats the rejection of an oversized file.
func FileTooLargeError(name string, max int64) error {
	return &validationError{
		kind: ErrFileTooLarge,
		msg:  fmt.Sprintf("File %s is too large. Maximum size is %sMB.", name, formatMB(max)),
	}
}

// Validate applies limits to a batch arriving at a queue that already holds
// current entries. A batch that would exceed MaxFiles is rejected whole and
// nothing is accepted. Otherwise each file over MaxSize is rejected on its
// own and the rest are accepted in order.
func Validate(limits Limits, current int, files []File) (accepted []File, rejected []Rejection, err error) {
	if current+len(files) > limits.MaxFiles {
		return nil, nil, TooManyFilesError(limits.MaxFiles)
	}

	for _, f := range files {
		if f.Size > limits.MaxSize {
			rejected = append(rejected, Rejection{Name: f.Name, Err: FileTooLargeError(f.Name, limits.MaxSize)})
			continue
		}
		accepted = append(accepted, f)
	}
	return accepted, rejected, nil
}

func formatMB(n int64) string {
	return strconv.FormatFloat(float64(n)/(1024*1024), 'f', -1, 64)
}
