package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"thirdangle/config"
	"thirdangle/notifier"
	"thirdangle/storage"
)

func main() {
	config.SetupLogging()
	cfg, err := config.LoadNotifier()
	if err != nil {
		log.Fatal(err)
	}
	log.Info("notifier starting")

	store, err := storage.New(cfg.Storage.ConnectionString, storage.Tables{
		Tasks:         cfg.Storage.TasksTable,
		Users:         cfg.Storage.UsersTable,
		Notifications: cfg.Storage.NotificationsTable,
		Aggregates:    cfg.Storage.AggregatesTable,
	}, cfg.Storage.EventsQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	qc, err := azqueue.NewQueueClientFromConnectionString(cfg.Storage.ConnectionString, cfg.Storage.EventsQueue, nil)
	if err != nil {
		log.Fatalf("queue client: %v", err)
	}

	logger := log.StandardLogger()
	w := notifier.NewWorker(notifier.NewAzureQueue(qc), notifier.New(store, logger), logger)
	w.BatchSize = int32(cfg.BatchSize)
	w.MaxAttempts = int64(cfg.MaxAttempts)
	w.Idle = cfg.Idle

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	w.Run(ctx)
	log.Info("notifier stopped")
}
