package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"thirdangle/domain"
)

const maxResponseSize = 4 << 20 // 4 MiB

// HTTPGateway implements Gateway and Queries against the board service API.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
	newKey  func() string
}

// NewHTTP creates a gateway for the service at baseURL. token, when set, is
// sent as a bearer token. A nil client uses http.DefaultClient.
func NewHTTP(baseURL, token string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
		newKey:  uuid.NewString,
	}
}

type updateStatusRequest struct {
	Status domain.Status `json:"status"`
}

// FetchBoard reads the whole board grouped by status.
func (g *HTTPGateway) FetchBoard(ctx context.Context) (domain.Board, error) {
	var b domain.Board
	if err := g.do(ctx, http.MethodGet, "/api/tasks/kanban", nil, nil, &b); err != nil {
		return nil, fmt.Errorf("fetch board: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("fetch board: %w: empty board payload", domain.ErrRemoteUnavailable)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("fetch board: %w: %w", domain.ErrRemoteUnavailable, err)
	}
	return b, nil
}

// UpdateStatus asks the service to move a task. Each call carries a fresh
// idempotency key so a duplicated delivery is applied once.
func (g *HTTPGateway) UpdateStatus(ctx context.Context, taskID string, status domain.Status) error {
	body, err := sonic.Marshal(updateStatusRequest{Status: status})
	if err != nil {
		return err
	}
	hdr := http.Header{}
	hdr.Set("Idempotency-Key", g.newKey())
	path := "/api/tasks/" + url.PathEscape(taskID)
	if err := g.do(ctx, http.MethodPut, path, body, hdr, nil); err != nil {
		return fmt.Errorf("update task %s to %s: %w", taskID, status, err)
	}
	return nil
}

// FetchUsers reads the team directory.
func (g *HTTPGateway) FetchUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := g.do(ctx, http.MethodGet, "/api/users", nil, nil, &users); err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	return users, nil
}

// FetchAggregate reads one analytics document without interpreting it.
func (g *HTTPGateway) FetchAggregate(ctx context.Context, kind domain.AggregateKind) (domain.Aggregate, error) {
	var raw []byte
	if err := g.do(ctx, http.MethodGet, "/api/analytics/"+string(kind), nil, nil, &raw); err != nil {
		return domain.Aggregate{}, fmt.Errorf("fetch %s: %w", kind, err)
	}
	return domain.Aggregate{Kind: kind, Data: sonic.NoCopyRawMessage(raw)}, nil
}

// FetchNotifications reads the notifications of one user, newest first.
func (g *HTTPGateway) FetchNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	var out []domain.Notification
	if err := g.do(ctx, http.MethodGet, "/api/notifications/"+url.PathEscape(userID), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch notifications: %w", err)
	}
	return out, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body []byte, hdr http.Header, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, rd)
	if err != nil {
		return err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	lr := io.LimitReader(resp.Body, maxResponseSize)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(lr)
		return statusError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	switch v := out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, lr)
		return nil
	case *[]byte:
		data, err := io.ReadAll(lr)
		if err != nil {
			return fmt.Errorf("%w: read response: %w", domain.ErrRemoteUnavailable, err)
		}
		if !sonic.ConfigStd.Valid(data) {
			return fmt.Errorf("%w: response is not valid json", domain.ErrRemoteUnavailable)
		}
		*v = data
		return nil
	}
	if err := sonic.ConfigStd.NewDecoder(lr).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", domain.ErrRemoteUnavailable, err)
	}
	return nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrRemoteUnavailable, err)
}

// StatusError carries the HTTP status of a rejected call.
type StatusError struct {
	Code    int
	Message string
	kind    error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (http %d)", e.kind, e.Code)
	}
	return fmt.Sprintf("%v (http %d): %s", e.kind, e.Code, e.Message)
}

func (e *StatusError) Unwrap() error { return e.kind }

func statusError(code int, msg string) error {
	var kind error
	switch code {
	case http.StatusNotFound:
		kind = domain.ErrNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		kind = domain.ErrConflict
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		kind = domain.ErrTimeout
	case http.StatusBadRequest:
		kind = domain.ErrInvalidStatus
	default:
		kind = domain.ErrRemoteUnavailable
	}
	return &StatusError{Code: code, Message: msg, kind: kind}
}
