package moves

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"thirdangle/domain"
	"thirdangle/gateway"
)

// NoticeKind tells views what went wrong.
type NoticeKind string

const (
	NoticeMoveFailed    NoticeKind = "move_failed"
	NoticeRefreshFailed NoticeKind = "refresh_failed"
)

// Notice is a failure surfaced to the user.
type Notice struct {
	Kind   NoticeKind
	TaskID string
	From   domain.Status
	To     domain.Status
	Reason gateway.Reason
	Err    error
	At     time.Time
}

// Message is a short human readable description.
func (n Notice) Message() string {
	switch n.Kind {
	case NoticeMoveFailed:
		switch n.Reason {
		case gateway.ReasonNotFound:
			return fmt.Sprintf("Task %s no longer exists.", n.TaskID)
		case gateway.ReasonConflict:
			return fmt.Sprintf("Task %s was changed by someone else. Try again.", n.TaskID)
		case gateway.ReasonTimeout:
			return fmt.Sprintf("Moving task %s timed out. Try again.", n.TaskID)
		default:
			return fmt.Sprintf("Could not move task %s: the board service is unavailable.", n.TaskID)
		}
	case NoticeRefreshFailed:
		return "Task moved, but the board could not be refreshed."
	}
	return string(n.Kind)
}

// NoticeSink receives failure notices.
type NoticeSink interface {
	Notice(n Notice)
}

// NoticeFunc adapts a function to NoticeSink.
type NoticeFunc func(n Notice)

func (f NoticeFunc) Notice(n Notice) { f(n) }

// ChanSink delivers notices on a buffered channel. Notices are dropped when
// nobody drains the channel.
type ChanSink struct {
	C      chan Notice
	logger *log.Logger
}

// NewChanSink buffers up to size notices.
func NewChanSink(size int, logger *log.Logger) *ChanSink {
	return &ChanSink{C: make(chan Notice, size), logger: logger}
}

// Notice delivers n without blocking.
func (s *ChanSink) Notice(n Notice) {
	select {
	case s.C <- n:
	default:
		if s.logger != nil {
			s.logger.WithFields(log.Fields{"task": n.TaskID, "kind": n.Kind}).Warn("notice channel full; dropping notice")
		}
	}
}

// LogSink writes notices to a logger.
type LogSink struct {
	Logger *log.Logger
}

// Notice logs n at warning level.
func (s LogSink) Notice(n Notice) {
	entry := s.Logger.WithFields(log.Fields{
		"task":   n.TaskID,
		"from":   n.From,
		"to":     n.To,
		"kind":   n.Kind,
		"reason": n.Reason,
	})
	if n.Err != nil {
		entry = entry.WithError(n.Err)
	}
	entry.Warn(n.Message())
}
