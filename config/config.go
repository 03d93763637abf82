// Package config reads service settings from the environment. A .env file in
// the working directory is loaded first when present; real environment
// variables win over it.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

var dotenvOnce sync.Once

func loadDotenv() {
	dotenvOnce.Do(func() { _ = godotenv.Load() })
}

// SetupLogging switches logrus to debug level when DEBUG is true.
func SetupLogging() {
	loadDotenv()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
}

// Storage locates the Azure tables and queue of the board service.
type Storage struct {
	ConnectionString   string
	TasksTable         string
	UsersTable         string
	NotificationsTable string
	AggregatesTable    string
	EventsQueue        string
}

// Auth configures bearer token validation.
type Auth struct {
	Domain       string
	Audience     string
	LocalMode    string
	LocalSecret  string
	JWKSCacheTTL time.Duration
}

// Local reports whether tokens are checked with the shared HS256 secret.
func (a Auth) Local() bool { return a.LocalMode == "hs256" }

// Server is the configuration of boardd.
type Server struct {
	Port           string
	Storage        Storage
	RedisConn      string
	UpdatesChannel string
	BoardCacheTTL  time.Duration
	DeduperTTL     time.Duration
	Auth           Auth
}

// Notifier is the configuration of the notifier worker.
type Notifier struct {
	Storage     Storage
	BatchSize   int
	MaxAttempts int
	Idle        time.Duration
}

// Client is the configuration of boardctl.
type Client struct {
	BaseURL        string
	Token          string
	LocalSecret    string
	Timeout        time.Duration
	RedisConn      string
	UpdatesChannel string
	PollInterval   time.Duration
}

func loadStorage() (Storage, error) {
	s := Storage{
		ConnectionString:   os.Getenv("STORAGE_CONNECTION_STRING"),
		TasksTable:         env("TASKS_TABLE", "Tasks"),
		UsersTable:         env("USERS_TABLE", "Users"),
		NotificationsTable: env("NOTIFICATIONS_TABLE", "Notifications"),
		AggregatesTable:    env("AGGREGATES_TABLE", "Aggregates"),
		EventsQueue:        env("BOARD_EVENTS_QUEUE", "board-events"),
	}
	if s.ConnectionString == "" {
		return Storage{}, errors.New("missing STORAGE_CONNECTION_STRING")
	}
	return s, nil
}

// LoadServer reads boardd settings.
func LoadServer() (Server, error) {
	loadDotenv()
	st, err := loadStorage()
	if err != nil {
		return Server{}, err
	}
	cfg := Server{
		Port:           env("PORT", "8080"),
		Storage:        st,
		RedisConn:      os.Getenv("REDIS_CONNECTION_STRING"),
		UpdatesChannel: env("BOARD_UPDATES_CHANNEL", "board-updates"),
	}
	if cfg.RedisConn == "" {
		return Server{}, errors.New("missing REDIS_CONNECTION_STRING")
	}
	if cfg.BoardCacheTTL, err = envDur("BOARD_CACHE_TTL", time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.DeduperTTL, err = envDur("DEDUPER_TTL", 24*time.Hour); err != nil {
		return Server{}, err
	}
	if cfg.Auth, err = loadAuth(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func loadAuth() (Auth, error) {
	a := Auth{
		Domain:      os.Getenv("AUTH0_DOMAIN"),
		Audience:    os.Getenv("AUTH0_AUDIENCE"),
		LocalMode:   strings.ToLower(os.Getenv("LOCAL_AUTH_MODE")),
		LocalSecret: os.Getenv("LOCAL_AUTH_SHARED_SECRET"),
	}
	var err error
	if a.JWKSCacheTTL, err = envDur("JWKS_CACHE_TTL", 15*time.Minute); err != nil {
		return Auth{}, err
	}
	switch a.LocalMode {
	case "":
		if a.Domain == "" || a.Audience == "" {
			return Auth{}, errors.New("missing Auth0 config")
		}
	case "hs256":
		if a.LocalSecret == "" {
			return Auth{}, errors.New("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
		}
	default:
		return Auth{}, fmt.Errorf("unsupported LOCAL_AUTH_MODE %q", a.LocalMode)
	}
	return a, nil
}

// LoadNotifier reads notifier worker settings.
func LoadNotifier() (Notifier, error) {
	loadDotenv()
	st, err := loadStorage()
	if err != nil {
		return Notifier{}, err
	}
	cfg := Notifier{Storage: st}
	if cfg.BatchSize, err = envInt("NOTIFIER_BATCH_SIZE", 16); err != nil {
		return Notifier{}, err
	}
	if cfg.BatchSize > 32 {
		return Notifier{}, errors.New("invalid NOTIFIER_BATCH_SIZE: at most 32 messages per receive")
	}
	if cfg.MaxAttempts, err = envInt("NOTIFIER_MAX_ATTEMPTS", 5); err != nil {
		return Notifier{}, err
	}
	if cfg.Idle, err = envDur("NOTIFIER_IDLE", time.Second); err != nil {
		return Notifier{}, err
	}
	return cfg, nil
}

// LoadStorage reads the storage location only, for storage-init.
func LoadStorage() (Storage, error) {
	loadDotenv()
	return loadStorage()
}

// LoadClient reads boardctl settings. GATEWAY_TIMEOUT and
// BOARD_POLL_INTERVAL may be zero to disable them.
func LoadClient() (Client, error) {
	loadDotenv()
	cfg := Client{
		BaseURL:        env("BOARD_API_URL", "http://localhost:8080"),
		Token:          os.Getenv("BOARD_API_TOKEN"),
		LocalSecret:    os.Getenv("LOCAL_AUTH_SHARED_SECRET"),
		RedisConn:      os.Getenv("REDIS_CONNECTION_STRING"),
		UpdatesChannel: env("BOARD_UPDATES_CHANNEL", "board-updates"),
	}
	var err error
	if cfg.Timeout, err = envDurAllowZero("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return Client{}, err
	}
	if cfg.PollInterval, err = envDurAllowZero("BOARD_POLL_INTERVAL", 0); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

// RedisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	if opts.Addr == "" || strings.Contains(opts.Addr, "=") {
		return nil, fmt.Errorf("invalid redis connection string %q", conn)
	}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return n, nil
}

func envDur(key string, def time.Duration) (time.Duration, error) {
	d, err := envDurAllowZero(key, def)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return d, nil
}

func envDurAllowZero(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}
