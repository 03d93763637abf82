package moves

import (
	"context"
	"sync"

	"thirdangle/domain"
)

// fakeRemote is an in-memory board service. Writes can be failed or held
// per task to drive the coordinator through its phases.
type fakeRemote struct {
	mu       sync.Mutex
	tasks    []domain.Task
	fail     map[string]error
	hold     map[string]chan struct{}
	entered  chan string
	fetchErr error
	writes   []string
	fetches  int
}

func newFakeRemote(tasks ...domain.Task) *fakeRemote {
	return &fakeRemote{
		tasks:   tasks,
		fail:    map[string]error{},
		hold:    map[string]chan struct{}{},
		entered: make(chan string, 16),
	}
}

func (f *fakeRemote) FetchBoard(ctx context.Context) (domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	tasks := make([]domain.Task, len(f.tasks))
	copy(tasks, f.tasks)
	return domain.GroupByStatus(tasks), nil
}

func (f *fakeRemote) UpdateStatus(ctx context.Context, taskID string, status domain.Status) error {
	f.mu.Lock()
	f.writes = append(f.writes, taskID+"->"+string(status))
	gate := f.hold[taskID]
	failErr := f.fail[taskID]
	f.mu.Unlock()

	f.entered <- taskID
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failErr != nil {
		return failErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == taskID {
			f.tasks[i].Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeRemote) holdTask(taskID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.hold[taskID] = ch
	return ch
}

func (f *fakeRemote) failTask(taskID string, err error) {
	f.mu.Lock()
	f.fail[taskID] = err
	f.mu.Unlock()
}

func (f *fakeRemote) setFetchErr(err error) {
	f.mu.Lock()
	f.fetchErr = err
	f.mu.Unlock()
}

func (f *fakeRemote) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeRemote) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}
