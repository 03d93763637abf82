// Package refresh keeps the board store in line with the board service.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"thirdangle/board"
	"thirdangle/gateway"
)

// Dependent is a view derived from the same remote data as the board that
// must be refetched together with it.
type Dependent interface {
	Reconcile(ctx context.Context) error
}

// DependentFunc adapts a function to Dependent.
type DependentFunc func(ctx context.Context) error

func (f DependentFunc) Reconcile(ctx context.Context) error { return f(ctx) }

// Reconciler replaces the store with the latest board read. Fetches are
// numbered when issued; a response that arrives after a later-issued fetch
// has already been installed is discarded.
type Reconciler struct {
	gw         gateway.Gateway
	store      *board.Store
	dependents []Dependent
	logger     *log.Logger

	issued  atomic.Uint64
	mu      sync.Mutex
	applied uint64
}

// NewReconciler creates a reconciler. Dependents run after every installed board.
func NewReconciler(gw gateway.Gateway, store *board.Store, logger *log.Logger, dependents ...Dependent) *Reconciler {
	if gw == nil || store == nil {
		panic("refresh.NewReconciler: gateway and store are required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Reconciler{gw: gw, store: store, dependents: dependents, logger: logger}
}

// Refresh fetches the board, installs it with a single ReplaceAll and then
// refreshes the dependents. On any fetch error the store keeps its
// last-known-good snapshot.
func (r *Reconciler) Refresh(ctx context.Context) error {
	seq := r.issued.Add(1)

	b, err := r.gw.FetchBoard(ctx)
	if err != nil {
		return fmt.Errorf("refresh board: %w", err)
	}

	r.mu.Lock()
	if seq < r.applied {
		r.mu.Unlock()
		r.logger.WithFields(log.Fields{"fetch": seq, "applied": r.applied}).Debug("discarding stale board fetch")
		return nil
	}
	if err := r.store.ReplaceBoard(b); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("refresh board: %w", err)
	}
	r.applied = seq
	r.mu.Unlock()

	var errs []error
	for _, d := range r.dependents {
		if err := d.Reconcile(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("refresh dependents: %w", err)
	}
	return nil
}
