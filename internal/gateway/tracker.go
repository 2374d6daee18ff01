package gateway

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/radif/dropzone/internal/queue"
)

// Tracker uploads queue entries through the gateway and reports progress as
// the transport consumes the file.
type Tracker struct {
	svc       *Service
	namespace string
	folder    string
}

// Tracker returns a queue.Tracker uploading into namespace/folder.
func (s *Service) Tracker(namespace, folder string) *Tracker {
	return &Tracker{svc: s, namespace: namespace, folder: folder}
}

var errNoContent = errors.New("no content to upload")

// Track opens the entry's file and uploads it synchronously.
func (t *Tracker) Track(ctx context.Context, e queue.Entry, emit func(queue.Event)) {
	f := e.File()
	if f.Open == nil {
		emit(queue.Event{Err: &UploadError{Name: e.Name, Err: errNoContent}})
		return
	}
	rc, err := f.Open()
	if err != nil {
		emit(queue.Event{Err: &UploadError{Name: e.Name, Err: err}})
		return
	}
	defer rc.Close()

	body := &progressReader{r: rc, total: e.Size, report: func(p int) {
		emit(queue.Event{Progress: p})
	}}
	rec, err := t.svc.Upload(ctx, t.namespace, t.folder, File{
		Name:        e.Name,
		Size:        e.Size,
		ContentType: e.ContentType,
		Body:        body,
	})
	if err != nil {
		emit(queue.Event{Err: err})
		return
	}
	emit(queue.Event{Progress: 100, Done: true, Location: rec.URL})
}

// progressReader reports whole percentages of total as they are read.
type progressReader struct {
	r      io.Reader
	total  int64
	read   atomic.Int64
	last   atomic.Int64
	report func(int)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 && pr.total > 0 {
		cur := pr.read.Add(int64(n))
		pct := min(cur*100/pr.total, 100)
		if prev := pr.last.Load(); pct > prev && pr.last.CompareAndSwap(prev, pct) {
			pr.report(int(pct))
		}
	}
	return n, err
}
