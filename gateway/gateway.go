// Package gateway talks to the board service. It never retries and never
// caches: every call is one round trip.
package gateway

import (
	"context"
	"errors"

	"thirdangle/domain"
)

// Gateway is the read/write surface the move coordinator depends on.
type Gateway interface {
	FetchBoard(ctx context.Context) (domain.Board, error)
	UpdateStatus(ctx context.Context, taskID string, status domain.Status) error
}

// Queries are the read-only endpoints consumed by the dashboard.
type Queries interface {
	FetchUsers(ctx context.Context) ([]domain.User, error)
	FetchAggregate(ctx context.Context, kind domain.AggregateKind) (domain.Aggregate, error)
	FetchNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
}

// Reason classifies why a remote call failed.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNotFound          Reason = "not_found"
	ReasonConflict          Reason = "conflict"
	ReasonRemoteUnavailable Reason = "remote_unavailable"
	ReasonTimeout           Reason = "timeout"
)

// ReasonOf maps an error to its failure reason. Errors that match none of
// the known sentinels count as RemoteUnavailable.
func ReasonOf(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, domain.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, domain.ErrConflict):
		return ReasonConflict
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonRemoteUnavailable
	}
}
