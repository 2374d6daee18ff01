package gateway

import "fmt"

// userError carries a message that is shown to end users as is.
type userError struct {
	kind error
	msg  string
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.kind }

// NotReadyError is returned for uploads into a namespace that is not ready.
func NotReadyError() error {
	return &userError{
		kind: ErrNamespaceNotReady,
		msg:  "Storage is not ready yet. Please wait a moment and try again.",
	}
}

// UploadError wraps a transport failure for one file.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("Error uploading file %s: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// RemoveError wraps a failed delete.
type RemoveError struct {
	Err error
}

func (e *RemoveError) Error() string {
	return fmt.Sprintf("Error removing file: %v", e.Err)
}

func (e *RemoveError) Unwrap() error { return e.Err }
