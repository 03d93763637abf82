package main

import (
	"context"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"thirdangle/board"
	"thirdangle/config"
	"thirdangle/dashboard"
	"thirdangle/gateway"
	"thirdangle/refresh"
)

// session is the client side of the board: one store, reconciled through
// the gateway, with the dashboard views next to it.
type session struct {
	cfg        config.Client
	gw         *gateway.HTTPGateway
	writes     gateway.Gateway
	store      *board.Store
	dash       *dashboard.Dashboard
	reconciler *refresh.Reconciler
	logger     *log.Logger
}

func newSession() (*session, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if cfg.Token == "" {
		return nil, errors.New("BOARD_API_TOKEN is not set; mint one with `boardctl token`")
	}
	logger := log.StandardLogger()
	gw := gateway.NewHTTP(cfg.BaseURL, cfg.Token, &http.Client{})
	writes := gateway.Gateway(gw)
	if cfg.Timeout > 0 {
		writes = gateway.WithTimeout(gw, cfg.Timeout)
	}
	store := board.NewStore()
	dash := dashboard.New(gw, logger)
	rec := refresh.NewReconciler(writes, store, logger, refresh.DependentFunc(dash.RefreshOverview))
	return &session{cfg: cfg, gw: gw, writes: writes, store: store, dash: dash, reconciler: rec, logger: logger}, nil
}

// load runs the initial dashboard load. Only a failed board read is fatal.
func (s *session) load(ctx context.Context) error {
	var boardErr error
	_ = s.dash.LoadAll(ctx, func(ctx context.Context) error {
		boardErr = s.reconciler.Refresh(ctx)
		return boardErr
	})
	return boardErr
}
