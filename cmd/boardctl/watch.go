package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"thirdangle/board"
	"thirdangle/config"
	"thirdangle/refresh"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the board current and print it after every change",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		if err := s.load(cmd.Context()); err != nil {
			return err
		}

		var rc *redis.Client
		if s.cfg.RedisConn != "" {
			opts, err := config.RedisOptions(s.cfg.RedisConn)
			if err != nil {
				return err
			}
			rc = redis.NewClient(opts)
			defer rc.Close()
		} else if s.cfg.PollInterval == 0 {
			return fmt.Errorf("set REDIS_CONNECTION_STRING or BOARD_POLL_INTERVAL to watch the board")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		printed := s.store.Version()
		printBoard(os.Stdout, board.Project(s.store.Snapshot(), s.dash.Directory()))
		sub := refresh.NewSubscriber(rc, s.cfg.UpdatesChannel, refreshFunc(func(ctx context.Context) error {
			if err := s.reconciler.Refresh(ctx); err != nil {
				return err
			}
			if v := s.store.Version(); v != printed {
				printed = v
				fmt.Println()
				printBoard(os.Stdout, board.Project(s.store.Snapshot(), s.dash.Directory()))
			}
			return nil
		}), s.cfg.PollInterval, s.logger)
		sub.Run(ctx)
		return nil
	},
}

type refreshFunc func(ctx context.Context) error

func (f refreshFunc) Refresh(ctx context.Context) error { return f(ctx) }
