// Package notifier turns board status changes into user notifications.
package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"thirdangle/board"
	"thirdangle/domain"
)

// Store persists notifications.
type Store interface {
	InsertNotification(ctx context.Context, n domain.Notification) error
}

// Notifier writes one notification per recipient of a status change.
type Notifier struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
}

func New(store Store, logger *log.Logger) *Notifier {
	if store == nil {
		panic("notifier.New: store is required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Notifier{store: store, logger: logger, now: time.Now}
}

// Handle stores the notifications for ch. Notification ids are derived from
// the change id, so handling a redelivered change writes nothing new.
func (n *Notifier) Handle(ctx context.Context, ch domain.StatusChange) error {
	for _, note := range Build(ch, n.now()) {
		if err := n.store.InsertNotification(ctx, note); err != nil {
			return fmt.Errorf("notify %s about %s: %w", note.UserID, ch.TaskID, err)
		}
		n.logger.WithFields(log.Fields{"task": ch.TaskID, "user": note.UserID, "to": ch.To}).Debug("notification stored")
	}
	return nil
}

// Build derives the notifications for a status change. The assignee is
// notified unless they made the change themselves.
func Build(ch domain.StatusChange, now time.Time) []domain.Notification {
	if ch.AssignedTo == "" || ch.AssignedTo == ch.ChangedBy || ch.From == ch.To {
		return nil
	}
	created := now.UTC()
	if ch.Time > 0 {
		created = time.UnixMilli(ch.Time).UTC()
	}
	return []domain.Notification{{
		ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(ch.ID+"/"+ch.AssignedTo)).String(),
		UserID:      ch.AssignedTo,
		Title:       title(ch.To),
		Message:     fmt.Sprintf("%q moved from %s to %s", ch.Title, board.ColumnTitle(ch.From), board.ColumnTitle(ch.To)),
		CreatedDate: created,
	}}
}

func title(to domain.Status) string {
	switch to {
	case domain.StatusDone:
		return "Task completed"
	case domain.StatusBlocked:
		return "Task blocked"
	default:
		return "Task moved"
	}
}
