package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"thirdangle/board"
	"thirdangle/domain"
	"thirdangle/moves"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Print the kanban board and the team overview",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		if err := s.load(cmd.Context()); err != nil {
			return err
		}
		printBoard(os.Stdout, board.Project(s.store.Snapshot(), s.dash.Directory()))
		if ov, ok := s.dash.TeamOverview(); ok {
			printOverview(os.Stdout, ov)
		}
		return nil
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <task-id> <status>",
	Short: "Move a task to another column",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := domain.ParseStatus(args[1])
		if err != nil {
			return err
		}
		s, err := newSession()
		if err != nil {
			return err
		}
		if err := s.load(cmd.Context()); err != nil {
			return err
		}
		return runMove(cmd.Context(), os.Stdout, s, args[0], target)
	},
}

func runMove(ctx context.Context, w io.Writer, s *session, taskID string, target domain.Status) error {
	coord := moves.NewCoordinator(s.store, s.writes, s.reconciler, moves.Options{
		CommitTimeout: s.cfg.Timeout,
		Logger:        s.logger,
	})
	if err := coord.Pickup(taskID); err != nil {
		return err
	}
	res, err := coord.Drop(ctx, target)
	switch res.Outcome {
	case moves.OutcomeNoop:
		fmt.Fprintf(w, "%s is already in %s\n", taskID, board.ColumnTitle(target))
	case moves.OutcomeSettled:
		fmt.Fprintf(w, "%s moved from %s to %s\n", taskID, board.ColumnTitle(res.Move.From), board.ColumnTitle(res.Move.To))
		if res.RefreshErr != nil {
			fmt.Fprintln(w, "warning: the board could not be refreshed")
		} else {
			printBoard(w, board.Project(s.store.Snapshot(), s.dash.Directory()))
		}
	}
	return err
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications [user-id]",
	Short: "List the latest notifications of a user",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		if err := s.dash.RefreshUsers(cmd.Context()); err != nil {
			return err
		}
		if len(args) == 1 {
			s.dash.SelectUser(args[0])
		}
		list, err := s.dash.Notifications(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("no notifications")
		}
		for _, n := range list {
			mark := " "
			if !n.Read {
				mark = "*"
			}
			fmt.Printf("%s %s  %s: %s\n", mark, n.CreatedDate.Format("Jan 02 15:04"), n.Title, n.Message)
		}
		return nil
	},
}

func printBoard(w io.Writer, r board.Rendered) {
	for _, col := range r.Columns {
		fmt.Fprintf(w, "== %s (%d)\n", col.Title, col.Count)
		for _, c := range col.Cards {
			fmt.Fprintf(w, "  %s\n", formatCard(c))
		}
	}
}

func formatCard(c board.Card) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (%s)", c.ID, c.Title, c.Priority)
	if c.Assignee != nil {
		fmt.Fprintf(&b, " @%s", c.Assignee.Name)
	}
	if l := c.OthersLabel(); l != "" {
		b.WriteString(" " + l)
	}
	if len(c.Tags) > 0 {
		b.WriteString(" #" + strings.Join(c.Tags, " #"))
	}
	if c.CommentsCount > 0 {
		fmt.Fprintf(&b, " %dc", c.CommentsCount)
	}
	if c.EstimatedHours > 0 {
		fmt.Fprintf(&b, " %gh", c.EstimatedHours)
	}
	return b.String()
}

func printOverview(w io.Writer, ov domain.TeamOverview) {
	fmt.Fprintf(w, "team %d  tasks %d  completed %.1f%%\n", ov.TeamSize, ov.TotalTasks, ov.CompletionRate)
}
