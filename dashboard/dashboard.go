// Package dashboard holds the read-only views that sit next to the board:
// the user directory, the analytics documents and notifications.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"thirdangle/board"
	"thirdangle/domain"
	"thirdangle/gateway"
)

// NotificationsShown is how many notifications the header dropdown lists.
const NotificationsShown = 5

// Dashboard caches the latest successful read of every analytics document.
// A failed read keeps the previous value.
type Dashboard struct {
	q      gateway.Queries
	logger *log.Logger

	mu         sync.RWMutex
	users      []domain.User
	directory  board.Directory
	aggregates map[domain.AggregateKind]domain.Aggregate
	selected   string
}

func New(q gateway.Queries, logger *log.Logger) *Dashboard {
	if q == nil {
		panic("dashboard.New: queries are required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Dashboard{
		q:          q,
		logger:     logger,
		directory:  board.Directory{},
		aggregates: make(map[domain.AggregateKind]domain.Aggregate, len(domain.AggregateKinds)),
	}
}

// LoadAll runs the initial load: users, the board (through loadBoard) and
// every analytics document, all in parallel. One failing read does not stop
// the others; the first error is returned after all have finished.
func (d *Dashboard) LoadAll(ctx context.Context, loadBoard func(context.Context) error) error {
	var g errgroup.Group
	g.Go(func() error { return d.logged("users", d.RefreshUsers(ctx)) })
	if loadBoard != nil {
		g.Go(func() error { return d.logged("board", loadBoard(ctx)) })
	}
	for _, kind := range domain.AggregateKinds {
		g.Go(func() error { return d.logged(string(kind), d.RefreshAggregate(ctx, kind)) })
	}
	return g.Wait()
}

func (d *Dashboard) logged(what string, err error) error {
	if err != nil {
		d.logger.WithField("view", what).WithError(err).Error("dashboard load failed")
	}
	return err
}

// RefreshUsers reloads the directory. The first user becomes the selected
// user when none is selected yet.
func (d *Dashboard) RefreshUsers(ctx context.Context) error {
	users, err := d.q.FetchUsers(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users = users
	d.directory = board.NewDirectory(users)
	if d.selected == "" && len(users) > 0 {
		d.selected = users[0].ID
	}
	return nil
}

// RefreshAggregate reloads one analytics document.
func (d *Dashboard) RefreshAggregate(ctx context.Context, kind domain.AggregateKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown aggregate %q", kind)
	}
	agg, err := d.q.FetchAggregate(ctx, kind)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.aggregates[kind] = agg
	d.mu.Unlock()
	return nil
}

// RefreshOverview reloads the team overview. It is the dependent view the
// reconciler refreshes after each settled move.
func (d *Dashboard) RefreshOverview(ctx context.Context) error {
	return d.RefreshAggregate(ctx, domain.AggregateTeamOverview)
}

// Aggregate returns the last loaded document of a kind.
func (d *Dashboard) Aggregate(kind domain.AggregateKind) (domain.Aggregate, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	agg, ok := d.aggregates[kind]
	return agg, ok
}

// TeamOverview decodes the cached team overview document.
func (d *Dashboard) TeamOverview() (domain.TeamOverview, bool) {
	agg, ok := d.Aggregate(domain.AggregateTeamOverview)
	if !ok {
		return domain.TeamOverview{}, false
	}
	var ov domain.TeamOverview
	if err := sonic.Unmarshal(agg.Data, &ov); err != nil {
		d.logger.WithError(err).Warn("team overview payload is malformed")
		return domain.TeamOverview{}, false
	}
	return ov, true
}

// Directory returns the user directory for board projection.
func (d *Dashboard) Directory() board.Directory {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.directory
}

// Users returns the loaded users in service order.
func (d *Dashboard) Users() []domain.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.User(nil), d.users...)
}

// SelectedUser is the user whose notifications are shown.
func (d *Dashboard) SelectedUser() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selected
}

// SelectUser switches the notifications view to another user.
func (d *Dashboard) SelectUser(id string) {
	d.mu.Lock()
	d.selected = id
	d.mu.Unlock()
}

// Notifications fetches the selected user's notifications on demand, newest
// first, capped at NotificationsShown. Nothing is cached.
func (d *Dashboard) Notifications(ctx context.Context) ([]domain.Notification, error) {
	userID := d.SelectedUser()
	if userID == "" {
		return nil, nil
	}
	out, err := d.q.FetchNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedDate.After(out[j].CreatedDate) })
	if len(out) > NotificationsShown {
		out = out[:NotificationsShown]
	}
	return out, nil
}
