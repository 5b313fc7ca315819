package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// NamedPersister labels a persister for error reporting.
type NamedPersister struct {
	Name      string
	Persister Persister
}

// MultiPersister writes every batch to all backends.
// Every backend is attempted; the batch fails if any backend fails.
type MultiPersister struct {
	backends []NamedPersister
}

// NewMultiPersister combines backends in the given order.
func NewMultiPersister(backends ...NamedPersister) *MultiPersister {
	return &MultiPersister{backends: backends}
}

// Persist writes to each backend and joins the failures.
func (m *MultiPersister) Persist(ctx context.Context, batch []*telemetry.Record) error {
	var errs []error
	for _, b := range m.backends {
		if err := b.Persister.Persist(ctx, batch); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of backends.
func (m *MultiPersister) Len() int {
	return len(m.backends)
}
