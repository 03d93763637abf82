package board

import (
	"net/url"
	"reflect"
	"testing"

	"thirdangle/domain"
)

func TestProjectResolvesAssigneesAndTruncates(t *testing.T) {
	s := NewStore()
	err := s.ReplaceAll([]domain.Task{
		{
			ID:            "t1",
			Title:         "Ship dashboard",
			Status:        domain.StatusInProgress,
			Priority:      domain.PriorityHigh,
			AssignedTo:    "u1",
			AssignedUsers: []string{"u2", "u3", "u4", "u5"},
			Tags:          []string{"frontend", "charts", "q3"},
			CommentsCount: 4,
		},
		{ID: "t2", Title: "Unowned", Status: domain.StatusInProgress},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	dir := NewDirectory([]domain.User{
		{ID: "u1", Name: "Ada Lovelace", AvatarURL: "https://img/ada.png"},
		{ID: "u2", Name: "Grace Hopper"},
	})

	r := Project(s.Snapshot(), dir)
	col, ok := r.Column(domain.StatusInProgress)
	if !ok || col.Count != 2 || col.Title != "in progress" {
		t.Fatalf("unexpected column: %#v", col)
	}

	card := col.Cards[0]
	if card.Assignee == nil || card.Assignee.Name != "Ada Lovelace" || card.Assignee.AvatarURL != "https://img/ada.png" {
		t.Fatalf("unexpected assignee: %#v", card.Assignee)
	}
	if !reflect.DeepEqual(card.Tags, []string{"frontend", "charts"}) {
		t.Fatalf("expected two tags, got %v", card.Tags)
	}
	if len(card.Others) != DefaultLimits.Assignees || card.OthersCount != 4 || card.OthersLabel() != "+4" {
		t.Fatalf("unexpected others: %#v count=%d", card.Others, card.OthersCount)
	}
	if card.Others[0].AvatarURL != "https://ui-avatars.com/api/?name=Grace+Hopper&background=random" {
		t.Fatalf("unexpected generated avatar: %s", card.Others[0].AvatarURL)
	}
	if !card.Others[1].Placeholder || card.Others[1].Name != "u3" {
		t.Fatalf("expected placeholder for unknown user, got %#v", card.Others[1])
	}
	if col.Cards[1].Assignee != nil || col.Cards[1].OthersLabel() != "" {
		t.Fatalf("expected no assignee on unowned card: %#v", col.Cards[1])
	}
}

func TestAvatarFallbackKeepsNameIntact(t *testing.T) {
	for _, name := range []string{"Jane Doe", "R&D Team", "Ann+Bob", "a=b", "Zoë/Ops?"} {
		t.Run(name, func(t *testing.T) {
			u, err := url.Parse(AvatarFallback(name))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			q := u.Query()
			if got := q.Get("name"); got != name {
				t.Fatalf("name = %q, want %q", got, name)
			}
			if q.Get("background") != "random" {
				t.Fatalf("unexpected query: %s", u.RawQuery)
			}
		})
	}
}

func TestProjectPlaceholderForMissingUser(t *testing.T) {
	s := NewStore()
	if err := s.ReplaceAll([]domain.Task{{ID: "t1", Status: domain.StatusTodo, AssignedTo: "Jane Doe"}}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	r := Project(s.Snapshot(), nil)
	col, _ := r.Column(domain.StatusTodo)
	a := col.Cards[0].Assignee
	if a == nil || !a.Placeholder || a.Name != "Jane Doe" {
		t.Fatalf("unexpected placeholder: %#v", a)
	}
	if a.AvatarURL != AvatarFallback("Jane Doe") {
		t.Fatalf("unexpected avatar: %s", a.AvatarURL)
	}
}

func TestProjectKeepsStoreOrderAndAllColumns(t *testing.T) {
	s := NewStore()
	err := s.ReplaceAll([]domain.Task{
		{ID: "z", Status: domain.StatusDone},
		{ID: "a", Status: domain.StatusDone},
		{ID: "m", Status: domain.StatusDone},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	r := Project(s.Snapshot(), nil)
	if len(r.Columns) != 4 {
		t.Fatalf("expected four columns, got %d", len(r.Columns))
	}
	for i, st := range domain.Statuses {
		if r.Columns[i].Status != st {
			t.Fatalf("column %d: expected %s, got %s", i, st, r.Columns[i].Status)
		}
	}
	done, _ := r.Column(domain.StatusDone)
	var got []string
	for _, c := range done.Cards {
		got = append(got, c.ID)
	}
	if !reflect.DeepEqual(got, []string{"z", "a", "m"}) {
		t.Fatalf("projection reordered tasks: %v", got)
	}
	if r.Version != s.Version() {
		t.Fatalf("expected version %d, got %d", s.Version(), r.Version)
	}
}

func TestWithHoldMarksOnlyHeldCard(t *testing.T) {
	s := NewStore()
	if err := s.ReplaceAll(sampleTasks()); err != nil {
		t.Fatalf("replace: %v", err)
	}
	r := Project(s.Snapshot(), nil)
	held := r.WithHold("t3")

	todo, _ := held.Column(domain.StatusTodo)
	if todo.Cards[0].Held || !todo.Cards[1].Held {
		t.Fatalf("unexpected held flags: %#v", todo.Cards)
	}
	orig, _ := r.Column(domain.StatusTodo)
	if orig.Cards[1].Held {
		t.Fatal("WithHold must not modify the original render")
	}
}

func TestFormatHelpers(t *testing.T) {
	if FormatBadge("task_master_50") != "🏆 Task Expert" {
		t.Fatalf("unexpected badge: %s", FormatBadge("task_master_50"))
	}
	if FormatBadge("mystery") != "mystery" {
		t.Fatal("unknown badge should pass through")
	}
	if StatusTone(domain.StatusBlocked) != ToneDanger || PriorityTone(domain.PriorityMedium) != ToneWarning || BurnoutTone("low") != ToneSuccess {
		t.Fatal("unexpected tones")
	}
}
