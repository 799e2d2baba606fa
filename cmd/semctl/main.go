package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"cluster-semaphore/semaphore"
	"cluster-semaphore/semaphore/domain"
	"cluster-semaphore/semaphore/infra"
)

// semctl é o CLI de operação do semáforo: down/up/status sobre um lock.
//
// down sai com código 0 se adquiriu a vaga e 3 se foi recusado (capacidade
// ou contenção), para uso direto em scripts. Pares down/up em processos
// diferentes precisam do mesmo SEM_CLIENT_ID.

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: semctl <down|up|status>")
	}
	op := os.Args[1]

	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if cfg.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer closeStore()

	sem, err := semaphore.New(ctx, semaphore.Options{
		Store:        store,
		Lock:         cfg.lock,
		ClientID:     cfg.clientID,
		Count:        cfg.count,
		HoldTime:     cfg.holdTime,
		Retries:      cfg.retries,
		Codec:        cfg.codec,
		PollInterval: cfg.waitInterval,
	})
	if err != nil {
		log.Fatalf("init error: %v", err)
	}

	switch op {
	case "down":
		runDown(ctx, sem, cfg.lock, cfg.wait)
	case "up":
		runUp(ctx, sem, cfg.lock)
	case "status":
		runStatus(ctx, sem)
	default:
		log.Fatalf("unknown operation %q (want down, up or status)", op)
	}
}

func runDown(ctx context.Context, sem *semaphore.Semaphore, lock string, wait bool) {
	if wait {
		if err := sem.DownWait(ctx); err != nil {
			log.Fatalf("down error: %v", err)
		}
		log.Printf("acquired lock=%s client=%s", lock, sem.ClientID())
		return
	}

	ok, err := sem.Down(ctx)
	if errors.Is(err, semaphore.ErrContended) {
		log.Printf("rejected (contention) lock=%s client=%s", lock, sem.ClientID())
		os.Exit(3)
	}
	if err != nil {
		log.Fatalf("down error: %v", err)
	}
	if !ok {
		log.Printf("rejected (full) lock=%s client=%s", lock, sem.ClientID())
		os.Exit(3)
	}
	log.Printf("acquired lock=%s client=%s", lock, sem.ClientID())
}

func runUp(ctx context.Context, sem *semaphore.Semaphore, lock string) {
	err := sem.Up(ctx)
	if errors.Is(err, semaphore.ErrReleaseLost) {
		// a vaga fica presa até o lease expirar: vale um aviso explícito
		log.Fatalf("release lost: slot stays occupied until lease expiry (client=%s)", sem.ClientID())
	}
	if err != nil {
		log.Fatalf("up error: %v", err)
	}
	log.Printf("released lock=%s client=%s", lock, sem.ClientID())
}

func runStatus(ctx context.Context, sem *semaphore.Semaphore) {
	doc, err := sem.Peek(ctx)
	if err != nil {
		log.Fatalf("status error: %v", err)
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Fatalf("status encode error: %v", err)
	}
	fmt.Printf("%s\n", out)
	log.Printf("occupants=%d max=%d holdtime=%ds", doc.Occupants(), doc.Max, doc.HoldTime)
}

type config struct {
	backend string

	redisAddrs    []string
	redisPassword string
	redisDB       int
	redisPrefix   string

	pgDSN   string
	pgTable string

	lock         string
	clientID     string
	count        int
	holdTime     int64
	retries      int
	codec        domain.Codec
	wait         bool
	waitInterval time.Duration
	timeout      time.Duration
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

	cfg.lock = os.Getenv("SEM_LOCK")
	cfg.clientID = getenvDefault("SEM_CLIENT_ID", defaultClientID())
	cfg.count = getenvIntDefault("SEM_COUNT", 1)
	cfg.holdTime = int64(getenvIntDefault("SEM_HOLDTIME", 600))
	cfg.retries = getenvIntDefault("SEM_RETRIES", 0)
	cfg.wait = getenvBoolDefault("SEM_WAIT", false)
	cfg.waitInterval = getenvDurationDefault("SEM_WAIT_INTERVAL", 250*time.Millisecond)
	cfg.timeout = getenvDurationDefault("SEM_TIMEOUT", 0)

	switch getenvDefault("SEM_CODEC", "json") {
	case "json":
		cfg.codec = infra.JSONCodec{}
	case "msgpack":
		cfg.codec = infra.MsgpackCodec{}
	default:
		return config{}, errors.New("SEM_CODEC must be json or msgpack")
	}

	if cfg.lock == "" {
		return config{}, errors.New("SEM_LOCK is required")
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
		store := infra.NewPostgresKV(db, infra.WithTable(cfg.pgTable))
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() { _ = db.Close() }, nil
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

func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "semctl"
	}
	return host
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

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
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
