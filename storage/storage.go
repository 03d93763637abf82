// Package storage persists the board service's tasks, users, notifications
// and analytics documents in Azure tables and publishes status changes on
// an Azure queue.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"thirdangle/domain"
)

const (
	boardPartition     = "board"
	analyticsPartition = "analytics"
)

// Tables names the tables the service reads and writes.
type Tables struct {
	Tasks         string
	Users         string
	Notifications string
	Aggregates    string
}

type messageQueue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Storage provides access to underlying persistence mechanisms.
type Storage struct {
	taskTable         *aztables.Client
	userTable         *aztables.Client
	notificationTable *aztables.Client
	aggregateTable    *aztables.Client
	eventQueue        messageQueue
}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables, eventsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:         svc.NewClient(tables.Tasks),
		userTable:         svc.NewClient(tables.Users),
		notificationTable: svc.NewClient(tables.Notifications),
		aggregateTable:    svc.NewClient(tables.Aggregates),
		eventQueue:        q,
	}, nil
}

type taskEntity struct {
	aztables.Entity
	Title          string  `json:"Title"`
	Description    string  `json:"Description"`
	Status         string  `json:"Status"`
	Priority       string  `json:"Priority"`
	AssignedTo     string  `json:"AssignedTo"`
	AssignedUsers  string  `json:"AssignedUsers"`
	Tags           string  `json:"Tags"`
	CommentsCount  int     `json:"CommentsCount"`
	EstimatedHours float64 `json:"EstimatedHours"`
	Position       int     `json:"Position"`
}

type userEntity struct {
	aztables.Entity
	Name      string `json:"Name"`
	Email     string `json:"Email"`
	AvatarURL string `json:"AvatarURL"`
	Role      string `json:"Role"`
}

type notificationEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Message     string `json:"Message"`
	Read        bool   `json:"Read"`
	CreatedDate int64  `json:"CreatedDate"`
}

type aggregateEntity struct {
	aztables.Entity
	Data string `json:"Data"`
}

func decodeTaskEntity(data []byte) (domain.Task, int, error) {
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, 0, err
	}
	t := domain.Task{
		ID:             ent.RowKey,
		Title:          ent.Title,
		Description:    ent.Description,
		Status:         domain.Status(ent.Status),
		Priority:       domain.Priority(ent.Priority),
		AssignedTo:     ent.AssignedTo,
		CommentsCount:  ent.CommentsCount,
		EstimatedHours: ent.EstimatedHours,
	}
	if ent.AssignedUsers != "" {
		if err := sonic.UnmarshalString(ent.AssignedUsers, &t.AssignedUsers); err != nil {
			return domain.Task{}, 0, fmt.Errorf("task %s assigned users: %w", ent.RowKey, err)
		}
	}
	if ent.Tags != "" {
		if err := sonic.UnmarshalString(ent.Tags, &t.Tags); err != nil {
			return domain.Task{}, 0, fmt.Errorf("task %s tags: %w", ent.RowKey, err)
		}
	}
	return t, ent.Position, nil
}

func encodeTaskEntity(t domain.Task, position int) ([]byte, error) {
	ent := taskEntity{
		Entity:         aztables.Entity{PartitionKey: boardPartition, RowKey: t.ID},
		Title:          t.Title,
		Description:    t.Description,
		Status:         string(t.Status),
		Priority:       string(t.Priority),
		AssignedTo:     t.AssignedTo,
		CommentsCount:  t.CommentsCount,
		EstimatedHours: t.EstimatedHours,
		Position:       position,
	}
	if len(t.AssignedUsers) > 0 {
		s, err := sonic.MarshalString(t.AssignedUsers)
		if err != nil {
			return nil, err
		}
		ent.AssignedUsers = s
	}
	if len(t.Tags) > 0 {
		s, err := sonic.MarshalString(t.Tags)
		if err != nil {
			return nil, err
		}
		ent.Tags = s
	}
	return sonic.Marshal(ent)
}

// FetchTasks lists every task in board order.
func (s *Storage) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + boardPartition + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	type positioned struct {
		task domain.Task
		pos  int
	}
	var rows []positioned
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify(err)
		}
		for _, e := range resp.Entities {
			t, pos, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			rows = append(rows, positioned{task: t, pos: pos})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].pos != rows[j].pos {
			return rows[i].pos < rows[j].pos
		}
		return rows[i].task.ID < rows[j].task.ID
	})
	tasks := make([]domain.Task, len(rows))
	for i, r := range rows {
		tasks[i] = r.task
	}
	return tasks, nil
}

// UpdateTaskStatus moves a task to status and returns the updated task and
// the status it had before. The write is conditional on the ETag read, so a
// concurrent writer surfaces as domain.ErrConflict.
func (s *Storage) UpdateTaskStatus(ctx context.Context, taskID string, status domain.Status) (domain.Task, domain.Status, error) {
	resp, err := s.taskTable.GetEntity(ctx, boardPartition, taskID, nil)
	if err != nil {
		return domain.Task{}, "", classify(err)
	}
	task, _, err := decodeTaskEntity(resp.Value)
	if err != nil {
		return domain.Task{}, "", err
	}
	prev := task.Status
	if prev == status {
		return task, prev, nil
	}

	patch, err := sonic.Marshal(map[string]any{
		"PartitionKey": boardPartition,
		"RowKey":       taskID,
		"Status":       string(status),
	})
	if err != nil {
		return domain.Task{}, "", err
	}
	etag := resp.ETag
	if _, err := s.taskTable.UpdateEntity(ctx, patch, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeMerge}); err != nil {
		return domain.Task{}, "", classify(err)
	}
	task.Status = status
	return task, prev, nil
}

// UpsertTask writes a full task row. Used for seeding.
func (s *Storage) UpsertTask(ctx context.Context, t domain.Task, position int) error {
	payload, err := encodeTaskEntity(t, position)
	if err != nil {
		return err
	}
	_, err = s.taskTable.UpsertEntity(ctx, payload, nil)
	return classify(err)
}

// FetchUsers lists the team directory ordered by name.
func (s *Storage) FetchUsers(ctx context.Context) ([]domain.User, error) {
	pager := s.userTable.NewListEntitiesPager(nil)
	users := []domain.User{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify(err)
		}
		for _, e := range resp.Entities {
			var ent userEntity
			if err := sonic.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			users = append(users, domain.User{ID: ent.RowKey, Name: ent.Name, Email: ent.Email, AvatarURL: ent.AvatarURL, Role: ent.Role})
		}
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

// UpsertUser writes a directory entry. Used for seeding.
func (s *Storage) UpsertUser(ctx context.Context, u domain.User) error {
	payload, err := sonic.Marshal(userEntity{
		Entity:    aztables.Entity{PartitionKey: u.ID, RowKey: u.ID},
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		Role:      u.Role,
	})
	if err != nil {
		return err
	}
	_, err = s.userTable.UpsertEntity(ctx, payload, nil)
	return classify(err)
}

// FetchAggregate returns a stored analytics document.
func (s *Storage) FetchAggregate(ctx context.Context, kind domain.AggregateKind) (domain.Aggregate, error) {
	resp, err := s.aggregateTable.GetEntity(ctx, analyticsPartition, string(kind), nil)
	if err != nil {
		return domain.Aggregate{}, classify(err)
	}
	var ent aggregateEntity
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Aggregate{}, err
	}
	if !sonic.ConfigStd.Valid([]byte(ent.Data)) {
		return domain.Aggregate{}, fmt.Errorf("aggregate %s: stored document is not JSON", kind)
	}
	return domain.Aggregate{Kind: kind, Data: []byte(ent.Data)}, nil
}

// FetchNotifications lists a user's notifications, newest first.
func (s *Storage) FetchNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	filter := "PartitionKey eq '" + escapeFilterValue(userID) + "'"
	pager := s.notificationTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []domain.Notification{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify(err)
		}
		for _, e := range resp.Entities {
			n, err := decodeNotificationEntity(e)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedDate.After(out[j].CreatedDate) })
	return out, nil
}

func decodeNotificationEntity(data []byte) (domain.Notification, error) {
	var ent notificationEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Notification{}, err
	}
	return domain.Notification{
		ID:          ent.RowKey,
		UserID:      ent.PartitionKey,
		Title:       ent.Title,
		Message:     ent.Message,
		Read:        ent.Read,
		CreatedDate: time.UnixMilli(ent.CreatedDate).UTC(),
	}, nil
}

// InsertNotification stores a new notification. Inserting the same id twice
// is not an error so queue redeliveries stay harmless.
func (s *Storage) InsertNotification(ctx context.Context, n domain.Notification) error {
	payload, err := sonic.Marshal(notificationEntity{
		Entity:      aztables.Entity{PartitionKey: n.UserID, RowKey: n.ID},
		Title:       n.Title,
		Message:     n.Message,
		Read:        n.Read,
		CreatedDate: n.CreatedDate.UnixMilli(),
	})
	if err != nil {
		return err
	}
	_, err = s.notificationTable.AddEntity(ctx, payload, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.EntityAlreadyExists) {
			return nil
		}
		return classify(err)
	}
	return nil
}

// EnqueueStatusChange publishes a status change for the notifier.
func (s *Storage) EnqueueStatusChange(ctx context.Context, ch domain.StatusChange) error {
	data, err := sonic.MarshalString(ch)
	if err != nil {
		return err
	}
	_, err = s.eventQueue.EnqueueMessage(ctx, data, nil)
	return err
}

// classify maps Azure response codes onto the domain error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}
	switch respErr.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case http.StatusPreconditionFailed, http.StatusConflict:
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	}
	return err
}

func escapeFilterValue(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
