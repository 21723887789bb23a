package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-shrinker/internal/metrics"
)

// DefaultStatusTTL is how long status records are kept.
const DefaultStatusTTL = 7 * 24 * time.Hour

// ErrTerminalState is returned when a write would move a record out of a
// terminal state.
var ErrTerminalState = errors.New("job already in a terminal state")

// Store persists job records. Get returns nil, nil for an absent (or
// expired) record. Put validates the record, stamps UpdatedAt/ExpiresAt and
// refuses to overwrite a terminal record with ErrTerminalState.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, key string, record *Record) error
}

// checkTransition enforces that terminal records are never replaced.
func checkTransition(key string, prev, next *Record) error {
	if prev != nil && prev.State.IsTerminal() {
		return fmt.Errorf("%s is %s, refusing %s: %w", key, prev.State, next.State, ErrTerminalState)
	}
	return nil
}

func observeStore(backend, operation string, start time.Time, err error) {
	status := metrics.StatusLabel(err)
	if errors.Is(err, ErrTerminalState) {
		status = "terminal"
	}
	metrics.StatusStoreOperationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
	metrics.StatusStoreOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}
