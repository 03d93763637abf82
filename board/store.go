package board

import (
	"fmt"
	"sync/atomic"

	"thirdangle/domain"
)

// Snapshot is an immutable, status-partitioned copy of every task on the
// board. Readers may hold on to a snapshot for as long as they like.
type Snapshot struct {
	version uint64
	columns map[domain.Status][]domain.Task
	index   map[string]domain.Status
}

var emptySnapshot = &Snapshot{
	columns: map[domain.Status][]domain.Task{},
	index:   map[string]domain.Status{},
}

// Version increases by one on every successful replacement.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of tasks across all columns.
func (s *Snapshot) Len() int { return len(s.index) }

// ByStatus returns a copy of the tasks in one column, in store order.
func (s *Snapshot) ByStatus(status domain.Status) []domain.Task {
	col := s.columns[status]
	out := make([]domain.Task, len(col))
	for i, t := range col {
		out[i] = t.Clone()
	}
	return out
}

// StatusOf reports the column a task currently sits in.
func (s *Snapshot) StatusOf(taskID string) (domain.Status, bool) {
	st, ok := s.index[taskID]
	return st, ok
}

// Lookup returns a copy of a single task.
func (s *Snapshot) Lookup(taskID string) (domain.Task, bool) {
	st, ok := s.index[taskID]
	if !ok {
		return domain.Task{}, false
	}
	for _, t := range s.columns[st] {
		if t.ID == taskID {
			return t.Clone(), true
		}
	}
	return domain.Task{}, false
}

// Board returns the snapshot as a board with all four columns present.
func (s *Snapshot) Board() domain.Board {
	b := make(domain.Board, len(domain.Statuses))
	for _, st := range domain.Statuses {
		b[st] = s.ByStatus(st)
	}
	return b
}

// Store holds the board's single source of truth. Every update swaps the
// whole snapshot; nothing is ever edited in place.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(emptySnapshot)
	return s
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot { return s.current.Load() }

// Version returns the version of the current snapshot.
func (s *Store) Version() uint64 { return s.Snapshot().version }

// ByStatus returns the tasks of one column from the current snapshot.
func (s *Store) ByStatus(status domain.Status) []domain.Task {
	return s.Snapshot().ByStatus(status)
}

// Lookup returns a task from the current snapshot.
func (s *Store) Lookup(taskID string) (domain.Task, bool) {
	return s.Snapshot().Lookup(taskID)
}

// ReplaceAll partitions tasks by status and atomically installs the result.
// Input with an unknown status or a repeated id is rejected and the previous
// snapshot stays in place.
func (s *Store) ReplaceAll(tasks []domain.Task) error {
	columns := make(map[domain.Status][]domain.Task, len(domain.Statuses))
	index := make(map[string]domain.Status, len(tasks))
	for _, t := range tasks {
		if !t.Status.Valid() {
			return fmt.Errorf("replace board: task %s: %w: %q", t.ID, domain.ErrInvalidStatus, t.Status)
		}
		if _, dup := index[t.ID]; dup {
			return fmt.Errorf("replace board: duplicate task %s", t.ID)
		}
		index[t.ID] = t.Status
		columns[t.Status] = append(columns[t.Status], t.Clone())
	}

	for {
		prev := s.current.Load()
		next := &Snapshot{version: prev.version + 1, columns: columns, index: index}
		if s.current.CompareAndSwap(prev, next) {
			return nil
		}
	}
}

// ReplaceBoard validates a fetched board and installs it with ReplaceAll.
func (s *Store) ReplaceBoard(b domain.Board) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("replace board: %w", err)
	}
	return s.ReplaceAll(b.Tasks())
}
