package main

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"thirdangle/config"
	"thirdangle/storage"
)

func main() {
	config.SetupLogging()
	log.Info("storage init starting")

	cfg, err := config.LoadStorage()
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()

	tables := storage.Tables{
		Tasks:         cfg.TasksTable,
		Users:         cfg.UsersTable,
		Notifications: cfg.NotificationsTable,
		Aggregates:    cfg.AggregatesTable,
	}
	if err := createTables(ctx, cfg.ConnectionString, []string{tables.Tasks, tables.Users, tables.Notifications, tables.Aggregates}); err != nil {
		log.Fatalf("create tables: %v", err)
	}
	if err := createQueue(ctx, cfg.ConnectionString, cfg.EventsQueue); err != nil {
		log.Fatalf("create queue: %v", err)
	}

	if seed, err := strconv.ParseBool(os.Getenv("SEED_DEMO")); err == nil && seed {
		store, err := storage.New(cfg.ConnectionString, tables, cfg.EventsQueue)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		if err := seedDemo(ctx, store); err != nil {
			log.Fatalf("seed: %v", err)
		}
		log.Info("demo board seeded")
	}

	log.Info("storage init complete")
}

func createTables(ctx context.Context, connStr string, names []string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := svc.NewClient(name).CreateTable(ctx, nil); err != nil && !alreadyExists(err, string(aztables.TableAlreadyExists)) {
			return err
		}
	}
	return nil
}

func createQueue(ctx context.Context, connStr, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return err
	}
	if _, err := q.Create(ctx, nil); err != nil && !alreadyExists(err, "QueueAlreadyExists") {
		return err
	}
	return nil
}

func alreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
