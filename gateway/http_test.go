package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"thirdangle/domain"
)

func newTestServer(t *testing.T, register func(e *echo.Echo)) *httptest.Server {
	t.Helper()
	e := echo.New()
	register(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchBoard(t *testing.T) {
	srv := newTestServer(t, func(e *echo.Echo) {
		e.GET("/api/tasks/kanban", func(c echo.Context) error {
			if got := c.Request().Header.Get(echo.HeaderAuthorization); got != "Bearer tok" {
				return c.String(http.StatusUnauthorized, "missing token")
			}
			return c.JSON(http.StatusOK, domain.Board{
				domain.StatusTodo:       {{ID: "t1", Title: "Plan", Status: domain.StatusTodo}},
				domain.StatusInProgress: {},
				domain.StatusDone:       {{ID: "t2", Title: "Ship", Status: domain.StatusDone, Tags: []string{"release"}}},
				domain.StatusBlocked:    {},
			})
		})
	})

	gw := NewHTTP(srv.URL+"/", "tok", srv.Client())
	b, err := gw.FetchBoard(context.Background())
	if err != nil {
		t.Fatalf("fetch board: %v", err)
	}
	if len(b[domain.StatusTodo]) != 1 || b[domain.StatusTodo][0].ID != "t1" {
		t.Fatalf("unexpected todo column: %#v", b[domain.StatusTodo])
	}
	if done := b[domain.StatusDone]; len(done) != 1 || done[0].Tags[0] != "release" {
		t.Fatalf("unexpected done column: %#v", done)
	}
}

func TestFetchBoardRejectsUnknownColumn(t *testing.T) {
	srv := newTestServer(t, func(e *echo.Echo) {
		e.GET("/api/tasks/kanban", func(c echo.Context) error {
			return c.JSONBlob(http.StatusOK, []byte(`{"archived":[{"id":"t1","status":"archived"}]}`))
		})
	})

	_, err := NewHTTP(srv.URL, "", srv.Client()).FetchBoard(context.Background())
	if ReasonOf(err) != ReasonRemoteUnavailable {
		t.Fatalf("expected remote unavailable, got %v", err)
	}
}

func TestFetchBoardRejectsNullPayload(t *testing.T) {
	srv := newTestServer(t, func(e *echo.Echo) {
		e.GET("/api/tasks/kanban", func(c echo.Context) error {
			return c.JSONBlob(http.StatusOK, []byte(`null`))
		})
	})

	b, err := NewHTTP(srv.URL, "", srv.Client()).FetchBoard(context.Background())
	if ReasonOf(err) != ReasonRemoteUnavailable || b != nil {
		t.Fatalf("expected remote unavailable, got board=%v err=%v", b, err)
	}
}

func TestUpdateStatusSendsStatusAndIdempotencyKey(t *testing.T) {
	type received struct {
		id, key string
		body    updateStatusRequest
	}
	got := make(chan received, 1)
	srv := newTestServer(t, func(e *echo.Echo) {
		e.PUT("/api/tasks/:id", func(c echo.Context) error {
			var body updateStatusRequest
			if err := sonic.ConfigStd.NewDecoder(c.Request().Body).Decode(&body); err != nil {
				return c.String(http.StatusBadRequest, "invalid body")
			}
			got <- received{id: c.Param("id"), key: c.Request().Header.Get("Idempotency-Key"), body: body}
			return c.JSON(http.StatusOK, domain.Task{ID: c.Param("id"), Status: body.Status})
		})
	})

	gw := NewHTTP(srv.URL, "", srv.Client())
	gw.newKey = func() string { return "key-1" }
	if err := gw.UpdateStatus(context.Background(), "t1", domain.StatusDone); err != nil {
		t.Fatalf("update: %v", err)
	}

	r := <-got
	if r.id != "t1" || r.key != "key-1" || r.body.Status != domain.StatusDone {
		t.Fatalf("unexpected request: %#v", r)
	}
}

func TestUpdateStatusFailureReasons(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Reason
	}{
		{name: "notFound", status: http.StatusNotFound, want: ReasonNotFound},
		{name: "conflict", status: http.StatusConflict, want: ReasonConflict},
		{name: "preconditionFailed", status: http.StatusPreconditionFailed, want: ReasonConflict},
		{name: "gatewayTimeout", status: http.StatusGatewayTimeout, want: ReasonTimeout},
		{name: "unavailable", status: http.StatusServiceUnavailable, want: ReasonRemoteUnavailable},
		{name: "internal", status: http.StatusInternalServerError, want: ReasonRemoteUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(e *echo.Echo) {
				e.PUT("/api/tasks/:id", func(c echo.Context) error {
					return c.String(tt.status, "nope")
				})
			})
			err := NewHTTP(srv.URL, "", srv.Client()).UpdateStatus(context.Background(), "t1", domain.StatusDone)
			if got := ReasonOf(err); got != tt.want {
				t.Fatalf("ReasonOf(%v) = %s, want %s", err, got, tt.want)
			}
		})
	}
}

func TestUpdateStatusTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewHTTP(url, "", nil).UpdateStatus(context.Background(), "t1", domain.StatusDone)
	if ReasonOf(err) != ReasonRemoteUnavailable {
		t.Fatalf("expected remote unavailable, got %v", err)
	}
}

func TestWithTimeoutReportsTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	srv := newTestServer(t, func(e *echo.Echo) {
		e.PUT("/api/tasks/:id", func(c echo.Context) error {
			select {
			case <-release:
			case <-c.Request().Context().Done():
			}
			return c.NoContent(http.StatusOK)
		})
	})

	gw := WithTimeout(NewHTTP(srv.URL, "", srv.Client()), 20*time.Millisecond)
	err := gw.UpdateStatus(context.Background(), "t1", domain.StatusDone)
	if ReasonOf(err) != ReasonTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestFetchAggregatePassesPayloadThrough(t *testing.T) {
	srv := newTestServer(t, func(e *echo.Echo) {
		e.GET("/api/analytics/:kind", func(c echo.Context) error {
			return c.JSONBlob(http.StatusOK, []byte(`{"kind":"`+c.Param("kind")+`","rows":[1,2,3]}`))
		})
	})

	agg, err := NewHTTP(srv.URL, "", srv.Client()).FetchAggregate(context.Background(), domain.AggregateTeamLeaderboard)
	if err != nil {
		t.Fatalf("fetch aggregate: %v", err)
	}
	if agg.Kind != domain.AggregateTeamLeaderboard || string(agg.Data) != `{"kind":"team-leaderboard","rows":[1,2,3]}` {
		t.Fatalf("unexpected aggregate: %s %s", agg.Kind, agg.Data)
	}
}

func TestFetchNotificationsEscapesUserID(t *testing.T) {
	srv := newTestServer(t, func(e *echo.Echo) {
		e.GET("/api/notifications/:user", func(c echo.Context) error {
			return c.JSON(http.StatusOK, []domain.Notification{{ID: "n1", UserID: c.Param("user"), Title: "Moved"}})
		})
	})

	out, err := NewHTTP(srv.URL, "", srv.Client()).FetchNotifications(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("fetch notifications: %v", err)
	}
	if len(out) != 1 || out[0].UserID != "user-1" {
		t.Fatalf("unexpected notifications: %#v", out)
	}
}

func TestReasonOf(t *testing.T) {
	tests := []struct {
		err  error
		want Reason
	}{
		{nil, ReasonNone},
		{domain.ErrNotFound, ReasonNotFound},
		{domain.ErrConflict, ReasonConflict},
		{domain.ErrTimeout, ReasonTimeout},
		{context.DeadlineExceeded, ReasonTimeout},
		{domain.ErrRemoteUnavailable, ReasonRemoteUnavailable},
		{context.Canceled, ReasonRemoteUnavailable},
	}
	for _, tt := range tests {
		if got := ReasonOf(tt.err); got != tt.want {
			t.Fatalf("ReasonOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
