package domain

// StatusChange is published by the board service every time a task moves
// between columns. The notifier turns it into a notification for the assignee.
type StatusChange struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id"`
	Title      string `json:"title"`
	From       Status `json:"from"`
	To         Status `json:"to"`
	AssignedTo string `json:"assigned_to,omitempty"`
	ChangedBy  string `json:"changed_by,omitempty"`
	Time       int64  `json:"time"`
}

// BoardUpdate is the payload broadcast on the board updates channel.
type BoardUpdate struct {
	TaskID string `json:"task_id"`
	Status Status `json:"status"`
	Time   int64  `json:"time"`
}
