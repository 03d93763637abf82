package api

import (
	"context"

	"thirdangle/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	FetchTasks(ctx context.Context) ([]domain.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status domain.Status) (domain.Task, domain.Status, error)
	FetchUsers(ctx context.Context) ([]domain.User, error)
	FetchAggregate(ctx context.Context, kind domain.AggregateKind) (domain.Aggregate, error)
	FetchNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
	EnqueueStatusChange(ctx context.Context, ch domain.StatusChange) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents a retried status write from being applied twice.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the write fails.
	Remove(ctx context.Context, userID, key string) error
}

// Publisher announces board changes to listening clients.
type Publisher interface {
	PublishBoardUpdate(ctx context.Context, upd domain.BoardUpdate) error
}
