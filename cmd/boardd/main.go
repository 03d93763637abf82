package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"thirdangle/api"
	"thirdangle/config"
	"thirdangle/storage"
)

func main() {
	config.SetupLogging()
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal(err)
	}

	base, err := storage.New(cfg.Storage.ConnectionString, storage.Tables{
		Tasks:         cfg.Storage.TasksTable,
		Users:         cfg.Storage.UsersTable,
		Notifications: cfg.Storage.NotificationsTable,
		Aggregates:    cfg.Storage.AggregatesTable,
	}, cfg.Storage.EventsQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisOpts, err := config.RedisOptions(cfg.RedisConn)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	auth, err := newAuth(cfg.Auth)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))

	logger := log.StandardLogger()
	api.Register(e, api.Deps{
		Store:     storage.NewCache(base, rc, cfg.BoardCacheTTL),
		Auth:      auth,
		Deduper:   api.NewRedisDeduper(rc, cfg.DeduperTTL),
		Publisher: api.NewRedisPublisher(rc, cfg.UpdatesChannel),
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
}

func newAuth(cfg config.Auth) (*api.Auth, error) {
	if cfg.Local() {
		log.Warn("local HS256 auth enabled")
		return api.NewLocalAuth([]byte(cfg.LocalSecret)), nil
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour, RefreshUnknownKID: true})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg.Audience, "https://"+cfg.Domain+"/", cfg.JWKSCacheTTL), nil
}
