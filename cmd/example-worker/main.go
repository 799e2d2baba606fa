package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"cluster-semaphore/semaphore"
	"cluster-semaphore/semaphore/domain"
	"cluster-semaphore/semaphore/infra"
)

// Exemplo: vários workers disputando as vagas de um mesmo lock.
//
// Sem WORKERS_REDIS_ADDR usa o store em memória (a disputa fica dentro do
// processo, mas o protocolo é o mesmo); com Redis os workers podem rodar em
// processos/máquinas separados.

func main() {
	workers := getenvIntDefault("WORKERS", 8)
	jobs := getenvIntDefault("WORKERS_JOBS", 5)
	count := getenvIntDefault("WORKERS_SLOTS", 3)
	redisAddr := os.Getenv("WORKERS_REDIS_ADDR")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store domain.KV
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer func() { _ = rdb.Close() }()
		store = infra.NewRedisKV(rdb)
	} else {
		store = infra.NewMemoryKV()
	}

	log.Printf("starting %d workers over %d slot(s), %d job(s) each", workers, count, jobs)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		id := fmt.Sprintf("worker-%d", i)
		g.Go(func() error { return run(ctx, store, id, count, jobs) })
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("worker error: %v", err)
	}
	log.Printf("all workers done")
}

func run(ctx context.Context, store domain.KV, id string, count, jobs int) error {
	sem, err := semaphore.New(ctx, semaphore.Options{
		Store:        store,
		Lock:         "example-resource",
		ClientID:     id,
		Count:        count,
		HoldTime:     60,
		PollInterval: 20 * time.Millisecond,
	})
	if err != nil {
		return err
	}

	for j := 0; j < jobs; j++ {
		if err := sem.DownWait(ctx); err != nil {
			return err
		}
		log.Printf("%s: slot acquired (job %d)", id, j+1)
		// simula trabalho segurando a vaga
		time.Sleep(time.Duration(10+rand.Intn(40)) * time.Millisecond)
		if err := sem.Up(ctx); err != nil {
			return err
		}
	}
	return nil
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
