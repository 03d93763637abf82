package notifier

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"thirdangle/domain"
)

// Message is one delivery of a queued status change.
type Message struct {
	ID         string
	PopReceipt string
	Text       string
	Attempts   int64
}

// Queue receives and acknowledges status change messages.
type Queue interface {
	Receive(ctx context.Context, max int32) ([]Message, error)
	Delete(ctx context.Context, msg Message) error
}

// Handler consumes one status change.
type Handler interface {
	Handle(ctx context.Context, ch domain.StatusChange) error
}

// Worker drains the status change queue. A message whose handling fails
// stays on the queue and is redelivered after its visibility timeout, up to
// MaxAttempts deliveries.
type Worker struct {
	queue   Queue
	handler Handler
	logger  *log.Logger

	BatchSize   int32
	MaxAttempts int64
	Idle        time.Duration
}

func NewWorker(queue Queue, handler Handler, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Worker{queue: queue, handler: handler, logger: logger, BatchSize: 16, MaxAttempts: 5, Idle: time.Second}
}

// Run polls until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	for {
		n, err := w.Poll(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.logger.WithError(err).Error("receive status changes")
		}
		if err != nil || n == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.Idle):
			}
		}
	}
}

// Poll handles one batch and reports how many messages it received.
func (w *Worker) Poll(ctx context.Context) (int, error) {
	msgs, err := w.queue.Receive(ctx, w.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, msg := range msgs {
		w.process(ctx, msg)
	}
	return len(msgs), nil
}

func (w *Worker) process(ctx context.Context, msg Message) {
	entry := w.logger.WithField("message", msg.ID)

	var ch domain.StatusChange
	if err := sonic.UnmarshalString(msg.Text, &ch); err != nil {
		entry.WithError(err).Error("dropping malformed status change")
		w.delete(ctx, msg)
		return
	}

	if err := w.handler.Handle(ctx, ch); err != nil {
		fields := log.Fields{"task": ch.TaskID, "attempts": msg.Attempts}
		if msg.Attempts >= w.MaxAttempts {
			entry.WithFields(fields).WithError(err).Error("giving up on status change")
			w.delete(ctx, msg)
			return
		}
		entry.WithFields(fields).WithError(err).Warn("status change will be retried")
		return
	}
	w.delete(ctx, msg)
}

func (w *Worker) delete(ctx context.Context, msg Message) {
	if err := w.queue.Delete(ctx, msg); err != nil {
		w.logger.WithField("message", msg.ID).WithError(err).Warn("unable to delete message")
	}
}
