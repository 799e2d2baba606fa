package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"cluster-semaphore/semaphore/application"
	"cluster-semaphore/semaphore/domain"
	"cluster-semaphore/semaphore/infra"
)

// janitor roda varreduras agendadas de poda sobre um conjunto de locks.
//
// A poda já acontece em toda leitura do documento; o janitor recupera
// capacidade mais cedo em locks pouco lidos, gravando de volta somente
// quando removeu algum holder expirado.

func main() {
	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer closeStore()

	svc := application.Service{Store: store, Codec: cfg.codec}

	c := cron.New()
	_, err = c.AddFunc(cfg.schedule, func() { sweepAll(ctx, svc, cfg.locks, cfg.sweepTimeout) })
	if err != nil {
		log.Fatalf("invalid JANITOR_SCHEDULE %q: %v", cfg.schedule, err)
	}

	log.Printf("janitor watching %d lock(s), schedule=%q backend=%s", len(cfg.locks), cfg.schedule, cfg.backend)
	c.Start()

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
}

func sweepAll(ctx context.Context, svc application.Service, locks []string, timeout time.Duration) {
	for _, lock := range locks {
		sweepCtx, cancel := context.WithTimeout(ctx, timeout)
		removed, err := svc.Sweep(sweepCtx, lock)
		cancel()
		if err != nil {
			log.Printf("sweep %s: %v", lock, err)
			continue
		}
		if removed > 0 {
			log.Printf("sweep %s: reclaimed %d expired slot(s)", lock, removed)
		}
	}
}

type config struct {
	backend string

	redisAddrs    []string
	redisPassword string
	redisDB       int
	redisPrefix   string

	pgDSN   string
	pgTable string

	locks        []string
	schedule     string
	sweepTimeout time.Duration
	codec        domain.Codec
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.backend = getenvDefault("SEM_BACKEND", "redis")
	cfg.redisAddrs = splitList(getenvDefault("SEM_REDIS_ADDRS", "127.0.0.1:6379"))
	cfg.redisPassword = os.Getenv("SEM_REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("SEM_REDIS_DB", 0)
	cfg.redisPrefix = getenvDefault("SEM_REDIS_PREFIX", "semaphore:")
	cfg.pgDSN = os.Getenv("SEM_PG_DSN")
	cfg.pgTable = getenvDefault("SEM_PG_TABLE", "semaphore_kv")

	cfg.locks = splitList(os.Getenv("SEM_LOCKS"))
	cfg.schedule = getenvDefault("JANITOR_SCHEDULE", "@every 1m")
	cfg.sweepTimeout = getenvDurationDefault("JANITOR_SWEEP_TIMEOUT", 10*time.Second)

	switch getenvDefault("SEM_CODEC", "json") {
	case "json":
		cfg.codec = infra.JSONCodec{}
	case "msgpack":
		cfg.codec = infra.MsgpackCodec{}
	default:
		return config{}, errors.New("SEM_CODEC must be json or msgpack")
	}

	if len(cfg.locks) == 0 {
		return config{}, errors.New("SEM_LOCKS is required (comma-separated lock names)")
	}
	if cfg.backend != "redis" && cfg.backend != "postgres" {
		return config{}, errors.New("SEM_BACKEND must be redis or postgres")
	}
	if cfg.backend == "postgres" && cfg.pgDSN == "" {
		return config{}, errors.New("SEM_PG_DSN is required when SEM_BACKEND=postgres")
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg config) (domain.KV, func(), error) {
	if cfg.backend == "postgres" {
		db, err := sql.Open("postgres", cfg.pgDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return infra.NewPostgresKV(db, infra.WithTable(cfg.pgTable)), func() { _ = db.Close() }, nil
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.redisAddrs,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return infra.NewRedisKV(rdb, infra.WithKeyPrefix(cfg.redisPrefix)), func() { _ = rdb.Close() }, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
