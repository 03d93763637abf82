package domain

import "fmt"

// Status is the workflow column a task currently sits in.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// Statuses lists the board columns in display order.
var Statuses = [...]Status{StatusTodo, StatusInProgress, StatusDone, StatusBlocked}

// Valid reports whether s is one of the four board columns.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusBlocked:
		return true
	}
	return false
}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Task is a single board item as returned by the board service.
type Task struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Status         Status   `json:"status"`
	Priority       Priority `json:"priority"`
	AssignedTo     string   `json:"assigned_to,omitempty"`
	AssignedUsers  []string `json:"assigned_users,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	CommentsCount  int      `json:"comments_count"`
	EstimatedHours float64  `json:"estimated_hours,omitempty"`
}

// Clone returns a copy that shares no slices with t.
func (t Task) Clone() Task {
	if t.AssignedUsers != nil {
		t.AssignedUsers = append([]string(nil), t.AssignedUsers...)
	}
	if t.Tags != nil {
		t.Tags = append([]string(nil), t.Tags...)
	}
	return t
}

// Board groups tasks by status. Keys outside Statuses make a board invalid.
type Board map[Status][]Task

// Tasks flattens the board in column display order, keeping per-column order.
func (b Board) Tasks() []Task {
	n := 0
	for _, tasks := range b {
		n += len(tasks)
	}
	out := make([]Task, 0, n)
	for _, s := range Statuses {
		out = append(out, b[s]...)
	}
	return out
}

// Validate checks that every bucket is a known status and that each task
// sits in the bucket named by its own status field.
func (b Board) Validate() error {
	for s, tasks := range b {
		if !s.Valid() {
			return fmt.Errorf("%w: board column %q", ErrInvalidStatus, s)
		}
		for _, t := range tasks {
			if t.Status != s {
				return fmt.Errorf("task %s has status %q but is listed under %q", t.ID, t.Status, s)
			}
		}
	}
	return nil
}

// GroupByStatus builds a board with all four columns present.
func GroupByStatus(tasks []Task) Board {
	b := make(Board, len(Statuses))
	for _, s := range Statuses {
		b[s] = []Task{}
	}
	for _, t := range tasks {
		b[t.Status] = append(b[t.Status], t)
	}
	return b
}
