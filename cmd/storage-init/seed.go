package main

import (
	"context"
	"fmt"

	"thirdangle/domain"
	"thirdangle/storage"
)

var demoUsers = []domain.User{
	{ID: "u1", Name: "Ada Park", Email: "ada@thirdangle.dev", Role: "Engineer"},
	{ID: "u2", Name: "Luis Ortega", Email: "luis@thirdangle.dev", Role: "Designer"},
	{ID: "u3", Name: "Mina Sato", Email: "mina@thirdangle.dev", Role: "Product"},
}

var demoTasks = []domain.Task{
	{ID: "T1", Title: "Sketch onboarding flow", Status: domain.StatusTodo, Priority: domain.PriorityMedium, AssignedTo: "u2", Tags: []string{"design", "ux", "q3"}, EstimatedHours: 6},
	{ID: "T2", Title: "Wire status endpoint", Status: domain.StatusInProgress, Priority: domain.PriorityHigh, AssignedTo: "u1", AssignedUsers: []string{"u1", "u3"}, Tags: []string{"api"}, CommentsCount: 3, EstimatedHours: 4},
	{ID: "T3", Title: "Release notes", Status: domain.StatusDone, Priority: domain.PriorityLow, AssignedTo: "u3"},
	{ID: "T4", Title: "Cache invalidation bug", Status: domain.StatusBlocked, Priority: domain.PriorityHigh, AssignedTo: "u1", Tags: []string{"bug", "redis"}, CommentsCount: 7, EstimatedHours: 2.5},
}

func seedDemo(ctx context.Context, store *storage.Storage) error {
	for _, u := range demoUsers {
		if err := store.UpsertUser(ctx, u); err != nil {
			return fmt.Errorf("user %s: %w", u.ID, err)
		}
	}
	for i, t := range demoTasks {
		if err := store.UpsertTask(ctx, t, i); err != nil {
			return fmt.Errorf("task %s: %w", t.ID, err)
		}
	}
	return nil
}
