// Package moves turns drag and drop gestures into status transitions.
//
// A move goes Idle → Dragging → Dropped → Committing → Settled or RolledBack
// and then back to Idle. The board store is never edited locally: a
// settled move is reflected by refetching the whole board, a failed one by
// leaving the store as it was.
package moves

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"thirdangle/board"
	"thirdangle/domain"
	"thirdangle/gateway"
)

var (
	// ErrMoveInFlight rejects a drop while the same task is still committing.
	ErrMoveInFlight = errors.New("task move already in flight")
	// ErrUnknownTask rejects a pickup of a task that is not on the board.
	ErrUnknownTask = errors.New("task is not on the board")
)

// Refresher reconciles the store with the board service after a write.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Options configure a Coordinator.
type Options struct {
	// CommitTimeout bounds the status write. Zero means no deadline.
	CommitTimeout time.Duration
	Sink          NoticeSink
	Logger        *log.Logger
}

// Coordinator owns the drag state and the set of committing tasks.
type Coordinator struct {
	store     *board.Store
	gw        gateway.Gateway
	refresher Refresher
	sink      NoticeSink
	logger    *log.Logger
	timeout   time.Duration
	tracer    trace.Tracer
	now       func() time.Time

	mu         sync.Mutex
	held       *Move
	committing map[string]*Move
}

// NewCoordinator wires a coordinator to the store it reads pre-move status
// from, the gateway it writes through and the refresher it settles with.
func NewCoordinator(store *board.Store, gw gateway.Gateway, refresher Refresher, opts Options) *Coordinator {
	if store == nil || gw == nil || refresher == nil {
		panic("moves.NewCoordinator: store, gateway and refresher are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	sink := opts.Sink
	if sink == nil {
		sink = LogSink{Logger: logger}
	}
	return &Coordinator{
		store:      store,
		gw:         gw,
		refresher:  refresher,
		sink:       sink,
		logger:     logger,
		timeout:    opts.CommitTimeout,
		tracer:     otel.Tracer("thirdangle/moves"),
		now:        time.Now,
		committing: make(map[string]*Move),
	}
}

// Pickup starts dragging a task and records its current status for the
// held-task indicator. Picking up a second task abandons the first gesture.
func (c *Coordinator) Pickup(taskID string) error {
	from, ok := c.store.Snapshot().StatusOf(taskID)
	if !ok {
		return fmt.Errorf("pickup %s: %w", taskID, ErrUnknownTask)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held != nil && c.held.TaskID != taskID {
		c.logger.WithFields(log.Fields{"task": c.held.TaskID}).Debug("drag abandoned by new pickup")
	}
	c.held = &Move{TaskID: taskID, From: from, Phase: PhaseDragging, StartedAt: c.now()}
	return nil
}

// Cancel drops the current gesture without a target.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	c.held = nil
	c.mu.Unlock()
}

// Held returns the gesture in progress, if any.
func (c *Coordinator) Held() (Move, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held == nil {
		return Move{}, false
	}
	return *c.held, true
}

// Phase reports where a task currently is in the move state machine.
func (c *Coordinator) Phase(taskID string) Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.committing[taskID]; ok {
		return m.Phase
	}
	if c.held != nil && c.held.TaskID == taskID {
		return c.held.Phase
	}
	return PhaseIdle
}

// Drop releases the held task over target and, when that changes its
// column, commits the move. It blocks for the write and the follow-up
// refresh; callers that must not block run it on their own goroutine.
//
// The returned error is non-nil for rejected and rolled back moves. A
// failed refresh after a successful write is reported in Result.RefreshErr.
func (c *Coordinator) Drop(ctx context.Context, target domain.Status) (Result, error) {
	m, res, err := c.beginCommit(target)
	if m == nil {
		return res, err
	}

	ctx, span := c.tracer.Start(ctx, "board.move", trace.WithAttributes(
		attribute.String("task.id", m.TaskID),
		attribute.String("move.from", string(m.From)),
		attribute.String("move.to", string(m.To)),
	))
	defer span.End()

	writeErr := c.write(ctx, m)

	c.mu.Lock()
	delete(c.committing, m.TaskID)
	c.mu.Unlock()

	if writeErr != nil {
		return c.rollBack(span, *m, writeErr)
	}
	return c.settle(ctx, span, *m)
}

// beginCommit runs the Dropped transition. It returns the move to commit, or
// a nil move together with the final result when nothing is to be written.
func (c *Coordinator) beginCommit(target domain.Status) (*Move, Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.held
	c.held = nil
	if m == nil {
		movesTotal.WithLabelValues(string(OutcomeNoop)).Inc()
		return nil, Result{Outcome: OutcomeNoop}, nil
	}
	m.To = target
	m.Phase = PhaseDropped

	if !target.Valid() {
		movesTotal.WithLabelValues(string(OutcomeRejected)).Inc()
		err := fmt.Errorf("drop %s: %w: %q", m.TaskID, domain.ErrInvalidStatus, target)
		return nil, Result{Move: *m, Outcome: OutcomeRejected, Err: err}, err
	}

	current := m.From
	if st, ok := c.store.Snapshot().StatusOf(m.TaskID); ok {
		current = st
	}
	if current == target {
		m.Phase = PhaseIdle
		movesTotal.WithLabelValues(string(OutcomeNoop)).Inc()
		return nil, Result{Move: *m, Outcome: OutcomeNoop}, nil
	}

	if _, busy := c.committing[m.TaskID]; busy {
		m.Phase = PhaseIdle
		movesTotal.WithLabelValues(string(OutcomeRejected)).Inc()
		c.logger.WithFields(log.Fields{"task": m.TaskID, "to": target}).Info("move rejected: task already committing")
		err := fmt.Errorf("drop %s: %w", m.TaskID, ErrMoveInFlight)
		return nil, Result{Move: *m, Outcome: OutcomeRejected, Err: err}, err
	}

	m.From = current
	m.Phase = PhaseCommitting
	c.committing[m.TaskID] = m
	return m, Result{}, nil
}

func (c *Coordinator) write(ctx context.Context, m *Move) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := c.now()
	err := c.gw.UpdateStatus(ctx, m.TaskID, m.To)
	c.logger.WithFields(log.Fields{
		"task":     m.TaskID,
		"from":     m.From,
		"to":       m.To,
		"write_ms": float64(c.now().Sub(start)) / float64(time.Millisecond),
	}).Debug("status write finished")
	return err
}

func (c *Coordinator) rollBack(span trace.Span, m Move, err error) (Result, error) {
	reason := gateway.ReasonOf(err)
	m.Phase = PhaseRolledBack

	span.RecordError(err)
	span.SetStatus(codes.Error, string(reason))
	movesTotal.WithLabelValues(string(OutcomeRolledBack)).Inc()
	moveFailures.WithLabelValues(string(reason)).Inc()

	c.logger.WithFields(log.Fields{"task": m.TaskID, "from": m.From, "to": m.To, "reason": reason}).WithError(err).Warn("move rolled back")
	c.sink.Notice(Notice{Kind: NoticeMoveFailed, TaskID: m.TaskID, From: m.From, To: m.To, Reason: reason, Err: err, At: c.now()})
	return Result{Move: m, Outcome: OutcomeRolledBack, Reason: reason, Err: err}, err
}

func (c *Coordinator) settle(ctx context.Context, span trace.Span, m Move) (Result, error) {
	m.Phase = PhaseSettled
	res := Result{Move: m, Outcome: OutcomeSettled}
	movesTotal.WithLabelValues(string(OutcomeSettled)).Inc()

	if err := c.refresher.Refresh(ctx); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("move.refresh_failed", true))
		c.logger.WithFields(log.Fields{"task": m.TaskID, "to": m.To}).WithError(err).Warn("move settled but refresh failed")
		c.sink.Notice(Notice{Kind: NoticeRefreshFailed, TaskID: m.TaskID, From: m.From, To: m.To, Reason: gateway.ReasonOf(err), Err: err, At: c.now()})
		res.RefreshErr = err
		return res, nil
	}
	c.logger.WithFields(log.Fields{"task": m.TaskID, "from": m.From, "to": m.To}).Info("move settled")
	return res, nil
}
