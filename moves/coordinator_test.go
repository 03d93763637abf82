package moves

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"thirdangle/board"
	"thirdangle/domain"
	"thirdangle/gateway"
	"thirdangle/refresh"
)

type harness struct {
	remote *fakeRemote
	store  *board.Store
	sink   *ChanSink
	coord  *Coordinator

	mu            sync.Mutex
	overviewCalls int
}

func newHarness(t *testing.T, opts Options, tasks ...domain.Task) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	h := &harness{remote: newFakeRemote(tasks...), store: board.NewStore(), sink: NewChanSink(8, logger)}
	overview := refresh.DependentFunc(func(context.Context) error {
		h.mu.Lock()
		h.overviewCalls++
		h.mu.Unlock()
		return nil
	})
	rec := refresh.NewReconciler(h.remote, h.store, logger, overview)
	if err := rec.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	opts.Sink = h.sink
	opts.Logger = logger
	h.coord = NewCoordinator(h.store, h.remote, rec, opts)
	return h
}

func (h *harness) overviews() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.overviewCalls
}

func (h *harness) columnIDs(status domain.Status) []string {
	var out []string
	for _, t := range h.store.ByStatus(status) {
		out = append(out, t.ID)
	}
	return out
}

func (h *harness) expectNoNotice(t *testing.T) {
	t.Helper()
	select {
	case n := <-h.sink.C:
		t.Fatalf("unexpected notice: %#v", n)
	default:
	}
}

func waitEntered(t *testing.T, f *fakeRemote, want string) {
	t.Helper()
	select {
	case got := <-f.entered:
		if got != want {
			t.Fatalf("expected write for %s, got %s", want, got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for write of %s", want)
	}
}

func TestDropSettlesAndRefetches(t *testing.T) {
	h := newHarness(t, Options{}, domain.Task{ID: "T1", Title: "Plan sprint", Status: domain.StatusTodo})

	if err := h.coord.Pickup("T1"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if h.coord.Phase("T1") != PhaseDragging {
		t.Fatalf("expected dragging, got %s", h.coord.Phase("T1"))
	}

	res, err := h.coord.Drop(context.Background(), domain.StatusInProgress)
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if res.Outcome != OutcomeSettled || res.Move.Phase != PhaseSettled || res.Move.From != domain.StatusTodo {
		t.Fatalf("unexpected result: %#v", res)
	}

	r := board.Project(h.store.Snapshot(), nil)
	todo, _ := r.Column(domain.StatusTodo)
	inProgress, _ := r.Column(domain.StatusInProgress)
	if todo.Count != 0 || inProgress.Count != 1 || inProgress.Cards[0].ID != "T1" {
		t.Fatalf("unexpected board: todo=%d in_progress=%#v", todo.Count, inProgress.Cards)
	}
	for _, st := range domain.Statuses {
		if st == domain.StatusInProgress {
			continue
		}
		for _, id := range h.columnIDs(st) {
			if id == "T1" {
				t.Fatalf("T1 also listed under %s", st)
			}
		}
	}
	if h.overviews() != 2 {
		t.Fatalf("expected team overview refreshed after settle, calls=%d", h.overviews())
	}
	if h.coord.Phase("T1") != PhaseIdle {
		t.Fatalf("expected idle after settle, got %s", h.coord.Phase("T1"))
	}
	h.expectNoNotice(t)
}

func TestDropOnSameColumnIsNoop(t *testing.T) {
	h := newHarness(t, Options{}, domain.Task{ID: "T1", Status: domain.StatusDone})
	fetchesBefore := h.remote.fetchCount()

	if err := h.coord.Pickup("T1"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	res, err := h.coord.Drop(context.Background(), domain.StatusDone)
	if err != nil || res.Outcome != OutcomeNoop {
		t.Fatalf("expected noop, got %#v %v", res, err)
	}
	if h.remote.writeCount() != 0 {
		t.Fatalf("expected no writes, got %d", h.remote.writeCount())
	}
	if h.remote.fetchCount() != fetchesBefore {
		t.Fatal("noop drop must not refetch")
	}
	if _, held := h.coord.Held(); held {
		t.Fatal("expected hand to be empty after drop")
	}
}

func TestDropWithoutHeldTaskIsSilent(t *testing.T) {
	h := newHarness(t, Options{}, domain.Task{ID: "T1", Status: domain.StatusTodo})

	res, err := h.coord.Drop(context.Background(), domain.StatusDone)
	if err != nil || res.Outcome != OutcomeNoop {
		t.Fatalf("expected silent noop, got %#v %v", res, err)
	}

	if err := h.coord.Pickup("T1"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	h.coord.Cancel()
	if res, err := h.coord.Drop(context.Background(), domain.StatusDone); err != nil || res.Outcome != OutcomeNoop {
		t.Fatalf("expected noop after cancel, got %#v %v", res, err)
	}
	if h.remote.writeCount() != 0 {
		t.Fatalf("expected no writes, got %d", h.remote.writeCount())
	}
	h.expectNoNotice(t)
}

func TestPickupUnknownTask(t *testing.T) {
	h := newHarness(t, Options{}, domain.Task{ID: "T1", Status: domain.StatusTodo})
	if err := h.coord.Pickup("ghost"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
	if _, held := h.coord.Held(); held {
		t.Fatal("unknown pickup must not hold anything")
	}
}

func TestDropOnInvalidColumnIsRejected(t *testing.T) {
	h := newHarness(t, Options{}, domain.Task{ID: "T1", Status: domain.StatusTodo})
	if err := h.coord.Pickup("T1"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	res, err := h.coord.Drop(context.Background(), domain.Status("archived"))
	if !errors.Is(err, domain.ErrInvalidStatus) || res.Outcome != OutcomeRejected {
		t.Fatalf("expected rejection, got %#v %v", res, err)
	}
	if h.remote.writeCount() != 0 {
		t.Fatal("invalid drop must not write")
	}
}

func TestSecondMoveWhileCommittingIsRejected(t *testing.T) {
	h := newHarness(t, Options{},
		domain.Task{ID: "T1", Status: domain.StatusTodo},
		domain.Task{ID: "T5", Status: domain.StatusTodo},
	)
	release := h.remote.holdTask("T1")

	if err := h.coord.Pickup("T1"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	first := make(chan Result, 1)
	go func() {
		res, _ := h.coord.Drop(context.Background(), domain.StatusInProgress)
		first <- res
	}()
	waitEntered(t, h.remote, "T1")

	if h.coord.Phase("T1") != PhaseCommitting {
		t.Fatalf("expected committing, got %s", h.coord.Phase("T1"))
	}
	before := h.store.Snapshot()

	if err := h.coord.Pickup("T1"); err != nil {
		t.Fatalf("second pickup: %v", err)
	}
	res, err := h.coord.Drop(context.Background(), domain.StatusBlocked)
	if !errors.Is(err, ErrMoveInFlight) || res.Outcome != OutcomeRejected {
		t.Fatalf("expected in-flight rejection, got %#v %v", res, err)
	}
	if h.store.Snapshot() != before {
		t.Fatal("rejected move must not touch the store")
	}
	if got, _ := h.store.Lookup("T1"); got.Status != domain.StatusTodo {
		t.Fatalf("expected T1 still in todo, got %s", got.Status)
	}

	// A different task is never blocked by T1's commit.
	if err := h.coord.Pickup("T5"); err != nil {
		t.Fatalf("pickup T5: %v", err)
	}
	if res, err := h.coord.Drop(context.Background(), domain.StatusDone); err != nil || res.Outcome != OutcomeSettled {
		t.Fatalf("expected T5 to settle, got %#v %v", res, err)
	}
	waitEntered(t, h.remote, "T5")

	close(release)
	select {
	case r := <-first:
		if r.Outcome != OutcomeSettled {
			t.Fatalf("expected first move to settle, got %#v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("first move did not finish")
	}
	if h.remote.writeCount() != 2 {
		t.Fatalf("expected exactly two writes, got %d", h.remote.writeCount())
	}
	if got, _ := h.store.Lookup("T1"); got.Status != domain.StatusInProgress {
		t.Fatalf("expected T1 in progress after settle, got %s", got.Status)
	}
}

func TestConflictRollsBackWithSingleNotice(t *testing.T) {
	h := newHarness(t, Options{}, domain.Task{ID: "T2", Title: "Vendor contract", Status: domain.StatusBlocked})
	h.remote.failTask("T2", fmt.Errorf("update: %w", domain.ErrConflict))
	before := h.store.Snapshot()
	fetchesBefore := h.remote.fetchCount()

	if err := h.coord.Pickup("T2"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	res, err := h.coord.Drop(context.Background(), domain.StatusDone)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if res.Outcome != OutcomeRolledBack || res.Reason != gateway.ReasonConflict || res.Move.Phase != PhaseRolledBack {
		t.Fatalf("unexpected result: %#v", res)
	}
	if h.store.Snapshot() != before {
		t.Fatal("rolled back move must leave the store snapshot untouched")
	}
	if got := h.columnIDs(domain.StatusBlocked); len(got) != 1 || got[0] != "T2" {
		t.Fatalf("expected T2 under blocked, got %v", got)
	}
	if h.remote.fetchCount() != fetchesBefore {
		t.Fatal("rolled back move must not refetch")
	}

	select {
	case n := <-h.sink.C:
		if n.Kind != NoticeMoveFailed || n.TaskID != "T2" || n.Reason != gateway.ReasonConflict {
			t.Fatalf("unexpected notice: %#v", n)
		}
		if n.Message() == "" {
			t.Fatal("expected a notice message")
		}
	default:
		t.Fatal("expected a failure notice")
	}
	h.expectNoNotice(t)

	if h.coord.Phase("T2") != PhaseIdle {
		t.Fatalf("expected idle after rollback, got %s", h.coord.Phase("T2"))
	}
}

func TestEveryFailureReasonRollsBack(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want gateway.Reason
	}{
		{name: "notFound", err: domain.ErrNotFound, want: gateway.ReasonNotFound},
		{name: "conflict", err: domain.ErrConflict, want: gateway.ReasonConflict},
		{name: "unavailable", err: domain.ErrRemoteUnavailable, want: gateway.ReasonRemoteUnavailable},
		{name: "timeout", err: domain.ErrTimeout, want: gateway.ReasonTimeout},
		{name: "unclassified", err: errors.New("boom"), want: gateway.ReasonRemoteUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{}, domain.Task{ID: "T1", Status: domain.StatusTodo})
			h.remote.failTask("T1", tt.err)
			before := h.store.Snapshot()

			if err := h.coord.Pickup("T1"); err != nil {
				t.Fatalf("pickup: %v", err)
			}
			res, err := h.coord.Drop(context.Background(), domain.StatusDone)
			if err == nil || res.Outcome != OutcomeRolledBack || res.Reason != tt.want {
				t.Fatalf("unexpected result: %#v %v", res, err)
			}
			if h.store.Snapshot() != before {
				t.Fatal("store changed on failure")
			}
			if n := <-h.sink.C; n.Reason != tt.want {
				t.Fatalf("unexpected notice reason: %s", n.Reason)
			}
		})
	}
}

func TestCommitTimeoutRollsBack(t *testing.T) {
	h := newHarness(t, Options{CommitTimeout: 20 * time.Millisecond}, domain.Task{ID: "T1", Status: domain.StatusTodo})
	h.remote.holdTask("T1")

	if err := h.coord.Pickup("T1"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	res, err := h.coord.Drop(context.Background(), domain.StatusDone)
	if err == nil || res.Reason != gateway.ReasonTimeout {
		t.Fatalf("expected timeout rollback, got %#v %v", res, err)
	}
	if got, _ := h.store.Lookup("T1"); got.Status != domain.StatusTodo {
		t.Fatalf("expected T1 still todo, got %s", got.Status)
	}
}

func TestRefreshFailureAfterWriteKeepsLastGoodSnapshot(t *testing.T) {
	h := newHarness(t, Options{}, domain.Task{ID: "T1", Status: domain.StatusTodo})
	h.remote.setFetchErr(domain.ErrRemoteUnavailable)
	before := h.store.Snapshot()

	if err := h.coord.Pickup("T1"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	res, err := h.coord.Drop(context.Background(), domain.StatusDone)
	if err != nil {
		t.Fatalf("write succeeded, drop should not fail: %v", err)
	}
	if res.Outcome != OutcomeSettled || res.RefreshErr == nil {
		t.Fatalf("expected settled with refresh error, got %#v", res)
	}
	if h.store.Snapshot() != before {
		t.Fatal("failed refresh must keep the last-known-good snapshot")
	}
	n := <-h.sink.C
	if n.Kind != NoticeRefreshFailed {
		t.Fatalf("expected refresh notice, got %#v", n)
	}

	h.remote.setFetchErr(nil)
	if err := h.coord.Pickup("T1"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	// The stale store still says todo, but the service already has done.
	res, err = h.coord.Drop(context.Background(), domain.StatusDone)
	if err != nil || res.Outcome != OutcomeSettled {
		t.Fatalf("unexpected result: %#v %v", res, err)
	}
	if got, _ := h.store.Lookup("T1"); got.Status != domain.StatusDone {
		t.Fatalf("expected store to catch up, got %s", got.Status)
	}
}

func TestConcurrentMovesOfDistinctTasksSettle(t *testing.T) {
	h := newHarness(t, Options{},
		domain.Task{ID: "T3", Status: domain.StatusTodo},
		domain.Task{ID: "T4", Status: domain.StatusInProgress},
	)
	releaseT3 := h.remote.holdTask("T3")
	releaseT4 := h.remote.holdTask("T4")

	var wg sync.WaitGroup
	results := make(chan Result, 2)
	drop := func() {
		defer wg.Done()
		res, err := h.coord.Drop(context.Background(), domain.StatusDone)
		if err != nil {
			t.Errorf("drop: %v", err)
		}
		results <- res
	}

	if err := h.coord.Pickup("T3"); err != nil {
		t.Fatalf("pickup T3: %v", err)
	}
	wg.Add(1)
	go drop()
	waitEntered(t, h.remote, "T3")

	if err := h.coord.Pickup("T4"); err != nil {
		t.Fatalf("pickup T4: %v", err)
	}
	wg.Add(1)
	go drop()
	waitEntered(t, h.remote, "T4")

	// Complete in reverse order of issue.
	close(releaseT4)
	close(releaseT3)
	wg.Wait()
	close(results)

	for r := range results {
		if r.Outcome != OutcomeSettled {
			t.Fatalf("expected settled, got %#v", r)
		}
	}
	done := h.columnIDs(domain.StatusDone)
	if len(done) != 2 {
		t.Fatalf("expected both tasks done, got %v", done)
	}
	if len(h.columnIDs(domain.StatusTodo)) != 0 || len(h.columnIDs(domain.StatusInProgress)) != 0 {
		t.Fatal("expected other columns to be empty")
	}
}

func TestMoveIsTraced(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	h := newHarness(t, Options{}, domain.Task{ID: "T1", Status: domain.StatusTodo})
	h.remote.failTask("T1", domain.ErrNotFound)
	if err := h.coord.Pickup("T1"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	_, _ = h.coord.Drop(context.Background(), domain.StatusDone)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "board.move" || span.Status.Code != codes.Error || span.Status.Description != string(gateway.ReasonNotFound) {
		t.Fatalf("unexpected span: %s %#v", span.Name, span.Status)
	}
}

func TestLogSinkWritesNotice(t *testing.T) {
	logger, hook := test.NewNullLogger()
	LogSink{Logger: logger}.Notice(Notice{Kind: NoticeMoveFailed, TaskID: "T9", Reason: gateway.ReasonTimeout, Err: domain.ErrTimeout})

	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.WarnLevel {
		t.Fatalf("expected warn entry, got %#v", entry)
	}
	if entry.Data["task"] != "T9" || entry.Data["reason"] != gateway.ReasonTimeout {
		t.Fatalf("unexpected fields: %#v", entry.Data)
	}
}
