// Package records keeps the ledger of objects uploaded through the gateway.
package records

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Record is an uploaded object. Immutable once saved.
type Record struct {
	Namespace   string    `json:"namespace"`
	Path        string    `json:"path"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Repository stores records.
type Repository interface {
	Save(ctx context.Context, rec Record) error
	List(ctx context.Context, namespace string) ([]Record, error)
	// Delete is a no-op when nothing matches.
	Delete(ctx context.Context, namespace, path string) error
}

// MemoryRepository keeps records in process, in insertion order.
type MemoryRepository struct {
	mu   sync.RWMutex
	recs []Record
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Save(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = slices.DeleteFunc(r.recs, func(x Record) bool {
		return x.Namespace == rec.Namespace && x.Path == rec.Path
	})
	r.recs = append(r.recs, rec)
	return nil
}

func (r *MemoryRepository) List(_ context.Context, namespace string) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0)
	for _, rec := range r.recs {
		if rec.Namespace == namespace {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Delete(_ context.Context, namespace, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = slices.DeleteFunc(r.recs, func(x Record) bool {
		return x.Namespace == namespace && x.Path == path
	})
	return nil
}
