package board

import (
	"net/url"
	"strconv"
	"strings"

	"thirdangle/domain"
)

const avatarFallbackBase = "https://ui-avatars.com/api/?name="

// Limits caps how much of a task's lists a card shows.
type Limits struct {
	Tags      int
	Assignees int
}

// DefaultLimits match the dashboard cards: two tags, three extra avatars.
var DefaultLimits = Limits{Tags: 2, Assignees: 3}

// Directory resolves user references for display.
type Directory map[string]domain.User

// NewDirectory indexes users by id. Later duplicates win.
func NewDirectory(users []domain.User) Directory {
	d := make(Directory, len(users))
	for _, u := range users {
		d[u.ID] = u
	}
	return d
}

// Resolve returns the user for ref, or a placeholder built from ref itself.
// The boolean reports whether the directory had an entry.
func (d Directory) Resolve(ref string) (Assignee, bool) {
	if u, ok := d[ref]; ok {
		avatar := u.AvatarURL
		if avatar == "" {
			avatar = AvatarFallback(u.Name)
		}
		return Assignee{ID: u.ID, Name: u.Name, AvatarURL: avatar}, true
	}
	return Assignee{ID: ref, Name: ref, AvatarURL: AvatarFallback(ref), Placeholder: true}, false
}

// AvatarFallback builds a generated avatar URL for a display name.
func AvatarFallback(name string) string {
	return avatarFallbackBase + url.QueryEscape(name) + "&background=random"
}

// Assignee is a resolved user reference.
type Assignee struct {
	ID          string
	Name        string
	AvatarURL   string
	Placeholder bool
}

// Card is the display form of one task.
type Card struct {
	ID             string
	Title          string
	Description    string
	Status         domain.Status
	Priority       domain.Priority
	Assignee       *Assignee
	Others         []Assignee
	OthersCount    int
	Tags           []string
	CommentsCount  int
	EstimatedHours float64
	Held           bool
}

// OthersLabel renders the "+N" counter shown next to the main avatar.
func (c Card) OthersLabel() string {
	if c.OthersCount == 0 {
		return ""
	}
	return "+" + strconv.Itoa(c.OthersCount)
}

// Column is one rendered board column.
type Column struct {
	Status domain.Status
	Title  string
	Count  int
	Cards  []Card
}

// Rendered is the full board as handed to a view.
type Rendered struct {
	Version uint64
	Columns []Column
}

// Column returns the rendered column for a status.
func (r Rendered) Column(status domain.Status) (Column, bool) {
	for _, c := range r.Columns {
		if c.Status == status {
			return c, true
		}
	}
	return Column{}, false
}

// WithHold marks the card being dragged. The board itself is untouched.
func (r Rendered) WithHold(taskID string) Rendered {
	if taskID == "" {
		return r
	}
	cols := make([]Column, len(r.Columns))
	for i, col := range r.Columns {
		cards := make([]Card, len(col.Cards))
		copy(cards, col.Cards)
		for j := range cards {
			if cards[j].ID == taskID {
				cards[j].Held = true
			}
		}
		col.Cards = cards
		cols[i] = col
	}
	r.Columns = cols
	return r
}

// Project renders a snapshot with the default limits.
func Project(snap *Snapshot, dir Directory) Rendered {
	return ProjectWith(snap, dir, DefaultLimits)
}

// ProjectWith renders every column of snap in display order. It never
// reorders tasks and never fails on unknown users.
func ProjectWith(snap *Snapshot, dir Directory, lim Limits) Rendered {
	r := Rendered{Version: snap.Version(), Columns: make([]Column, 0, len(domain.Statuses))}
	for _, st := range domain.Statuses {
		tasks := snap.columns[st]
		col := Column{Status: st, Title: ColumnTitle(st), Count: len(tasks), Cards: make([]Card, 0, len(tasks))}
		for _, t := range tasks {
			col.Cards = append(col.Cards, projectCard(t, dir, lim))
		}
		r.Columns = append(r.Columns, col)
	}
	return r
}

func projectCard(t domain.Task, dir Directory, lim Limits) Card {
	c := Card{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Status:         t.Status,
		Priority:       t.Priority,
		Tags:           truncate(t.Tags, lim.Tags),
		CommentsCount:  t.CommentsCount,
		EstimatedHours: t.EstimatedHours,
		OthersCount:    len(t.AssignedUsers),
	}
	if t.AssignedTo != "" {
		a, _ := dir.Resolve(t.AssignedTo)
		c.Assignee = &a
	}
	for _, ref := range truncate(t.AssignedUsers, lim.Assignees) {
		a, _ := dir.Resolve(ref)
		c.Others = append(c.Others, a)
	}
	return c
}

func truncate(in []string, limit int) []string {
	if limit < 0 {
		limit = 0
	}
	if len(in) > limit {
		in = in[:limit]
	}
	return append([]string(nil), in...)
}

// ColumnTitle turns a status into its column heading.
func ColumnTitle(s domain.Status) string {
	return strings.Replace(string(s), "_", " ", 1)
}
