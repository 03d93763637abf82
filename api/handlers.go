// Package api serves the board over HTTP: the kanban read, status writes,
// the user directory, analytics and notifications.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"thirdangle/domain"
)

const (
	userIDKey          = "userID"
	statusBodyMaxSize  = 4 << 10
	headerIdempotency  = "Idempotency-Key"
	sideEffectsTimeout = 5 * time.Second
)

// Deps are the collaborators of the board routes. Deduper and Publisher may
// be nil. Registry defaults to the global Prometheus registry.
type Deps struct {
	Store     Storage
	Auth      Authenticator
	Deduper   Deduper
	Publisher Publisher
	Logger    *log.Logger
	Registry  *prometheus.Registry
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if d.Registry != nil {
		reg, gatherer = d.Registry, d.Registry
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{Subsystem: "board", Registerer: reg}))
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/healthz", healthz(d.Store))

	g := e.Group("/api", requireUser(d.Auth))
	g.GET("/tasks/kanban", getKanban(d.Store, d.Logger))
	g.PUT("/tasks/:id", putTaskStatus(d, d.Logger))
	g.GET("/users", getUsers(d.Store))
	g.GET("/analytics/:kind", getAnalytics(d.Store, d.Logger))
	g.GET("/notifications/:userId", getNotifications(d.Store))
}

func requireUser(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return c.String(http.StatusUnauthorized, err.Error())
			}
			c.Set(userIDKey, userID)
			c.Set("authDuration", time.Since(start))
			return next(c)
		}
	}
}

func userFrom(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

func authDuration(c echo.Context) time.Duration {
	d, _ := c.Get("authDuration").(time.Duration)
	return d
}

func healthz(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		if store == nil {
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	}
}

func getKanban(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, "/api/tasks/kanban")
		var logErr error
		defer func() { metrics.Log(c.Response().Status, logErr) }()
		metrics.ObserveAuth(authDuration(c))

		fetchStart := time.Now()
		tasks, fetchErr := store.FetchTasks(ctx)
		metrics.ObserveStore(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			logErr = fetchErr
			c.Logger().Error(fetchErr)
			return c.String(http.StatusInternalServerError, "failed to load board")
		}
		metrics.SetItemsReturned(len(tasks))
		if err = c.JSON(http.StatusOK, domain.GroupByStatus(tasks)); err != nil {
			metrics.SetErrorStage("encode_response")
			logErr = err
		}
		return err
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

func putTaskStatus(d Deps, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, "/api/tasks/:id")
		var logErr error
		defer func() { metrics.Log(c.Response().Status, logErr) }()
		metrics.ObserveAuth(authDuration(c))

		userID := userFrom(c)
		taskID := c.Param("id")

		var body statusRequest
		dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, statusBodyMaxSize))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			metrics.SetErrorStage("invalid_body")
			return c.String(http.StatusBadRequest, "invalid body")
		}
		status, err := domain.ParseStatus(body.Status)
		if err != nil {
			metrics.SetErrorStage("invalid_status")
			return c.String(http.StatusBadRequest, err.Error())
		}

		idemKey := c.Request().Header.Get(headerIdempotency)
		if idemKey != "" && d.Deduper != nil {
			added, err := d.Deduper.Add(ctx, userID, idemKey)
			if err != nil {
				logger.WithError(err).Warn("idempotency check failed; applying write")
			} else if !added {
				return replayStatus(c, d.Store, taskID, status)
			}
		}

		writeStart := time.Now()
		task, prev, err := d.Store.UpdateTaskStatus(ctx, taskID, status)
		metrics.ObserveStore(time.Since(writeStart))
		if err != nil {
			if idemKey != "" && d.Deduper != nil {
				if rerr := d.Deduper.Remove(ctx, userID, idemKey); rerr != nil {
					logger.WithError(rerr).Warn("unable to release idempotency key")
				}
			}
			switch {
			case errors.Is(err, domain.ErrNotFound):
				metrics.SetErrorStage("not_found")
				return c.String(http.StatusNotFound, "task not found")
			case errors.Is(err, domain.ErrConflict):
				metrics.SetErrorStage("conflict")
				return c.String(http.StatusConflict, "task was modified concurrently")
			}
			metrics.SetErrorStage("storage")
			logErr = err
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to update task")
		}

		if prev != status {
			announce(ctx, d, logger, userID, task, prev)
		}
		return c.JSON(http.StatusOK, task)
	}
}

// replayStatus answers a retried write whose first attempt already landed.
func replayStatus(c echo.Context, store Storage, taskID string, status domain.Status) error {
	tasks, err := store.FetchTasks(c.Request().Context())
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, "failed to load board")
	}
	for _, t := range tasks {
		if t.ID != taskID {
			continue
		}
		if t.Status != status {
			return c.String(http.StatusConflict, "task was modified concurrently")
		}
		return c.JSON(http.StatusOK, t)
	}
	return c.String(http.StatusNotFound, "task not found")
}

// announce queues the status change for the notifier and tells listening
// clients to refresh. Failures are logged: the write itself already landed.
func announce(ctx context.Context, d Deps, logger *log.Logger, userID string, task domain.Task, prev domain.Status) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectsTimeout)
	defer cancel()
	now := time.Now()

	change := domain.StatusChange{
		ID:         uuid.NewString(),
		TaskID:     task.ID,
		Title:      task.Title,
		From:       prev,
		To:         task.Status,
		AssignedTo: task.AssignedTo,
		ChangedBy:  userID,
		Time:       now.UnixMilli(),
	}
	if err := d.Store.EnqueueStatusChange(ctx, change); err != nil {
		logger.WithFields(log.Fields{"task": task.ID}).WithError(err).Warn("unable to enqueue status change")
	}
	if d.Publisher == nil {
		return
	}
	upd := domain.BoardUpdate{TaskID: task.ID, Status: task.Status, Time: now.UnixMilli()}
	if err := d.Publisher.PublishBoardUpdate(ctx, upd); err != nil {
		logger.WithFields(log.Fields{"task": task.ID}).WithError(err).Warn("unable to publish board update")
	}
}

func getUsers(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		users, err := store.FetchUsers(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to load users")
		}
		return c.JSON(http.StatusOK, users)
	}
}

func getAnalytics(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		kind := domain.AggregateKind(c.Param("kind"))
		if !kind.Valid() {
			return c.String(http.StatusNotFound, "unknown analytics document")
		}

		if kind == domain.AggregateTeamOverview {
			tasks, err := store.FetchTasks(ctx)
			if err != nil {
				c.Logger().Error(err)
				return c.String(http.StatusInternalServerError, "failed to load board")
			}
			users, err := store.FetchUsers(ctx)
			if err != nil {
				c.Logger().Error(err)
				return c.String(http.StatusInternalServerError, "failed to load users")
			}
			return c.JSON(http.StatusOK, domain.ComputeTeamOverview(tasks, len(users)))
		}

		agg, err := store.FetchAggregate(ctx, kind)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return c.String(http.StatusNotFound, "analytics document not available")
			}
			logger.WithFields(log.Fields{"kind": kind}).WithError(err).Error("unable to load analytics")
			return c.String(http.StatusInternalServerError, "failed to load analytics")
		}
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, agg.Data)
	}
}

func getNotifications(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		notifications, err := store.FetchNotifications(c.Request().Context(), c.Param("userId"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to load notifications")
		}
		return c.JSON(http.StatusOK, notifications)
	}
}
