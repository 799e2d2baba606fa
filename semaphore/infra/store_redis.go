package infra

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"cluster-semaphore/semaphore/domain"
)

// RedisKV implementa domain.KV sobre Redis.
//
// Cada chave vira um hash {payload, ver}. Add e CompareAndSwap rodam como
// scripts Lua para que a comparação de versão e a escrita sejam atômicas no
// servidor — o Redis executa scripts sem intercalar outros comandos, então o
// script é o ponto de serialização.
type RedisKV struct {
	rdb    redis.UniversalClient
	prefix string
}

// addScript cria o hash somente se a chave ainda não existe.
// KEYS[1] = chave, ARGV[1] = payload
var addScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'payload', ARGV[1], 'ver', 1)
return 1
`)

// casScript troca o payload somente se a versão armazenada ainda é a que o
// cliente leu. KEYS[1] = chave, ARGV[1] = payload, ARGV[2] = versão esperada
var casScript = redis.NewScript(`
local ver = redis.call('HGET', KEYS[1], 'ver')
if ver == false then
	return -1
end
if tonumber(ver) ~= tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'payload', ARGV[1], 'ver', tonumber(ver) + 1)
return 1
`)

type RedisKVOption func(*RedisKV)

// WithKeyPrefix muda o prefixo aplicado a todas as chaves (padrão "semaphore:").
func WithKeyPrefix(prefix string) RedisKVOption {
	return func(s *RedisKV) { s.prefix = prefix }
}

func NewRedisKV(rdb redis.UniversalClient, opts ...RedisKVOption) *RedisKV {
	s := &RedisKV{
		rdb:    rdb,
		prefix: "semaphore:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisKV) key(k string) string { return s.prefix + k }

func (s *RedisKV) Add(ctx context.Context, key string, value []byte) error {
	created, err := addScript.Run(ctx, s.rdb, []string{s.key(key)}, value).Int()
	if err != nil {
		return fmt.Errorf("redis add %s: %w", key, err)
	}
	if created == 0 {
		return domain.ErrKeyExists
	}
	return nil
}

func (s *RedisKV) Get(ctx context.Context, key string) ([]byte, int64, error) {
	vals, err := s.rdb.HMGet(ctx, s.key(key), "payload", "ver").Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	payload, okPayload := vals[0].(string)
	verStr, okVer := vals[1].(string)
	if !okPayload || !okVer {
		return nil, 0, domain.ErrKeyNotFound
	}
	ver, err := strconv.ParseInt(verStr, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("redis get %s: bad version %q: %w", key, verStr, err)
	}
	return []byte(payload), ver, nil
}

func (s *RedisKV) CompareAndSwap(ctx context.Context, key string, value []byte, version int64) error {
	res, err := casScript.Run(ctx, s.rdb, []string{s.key(key)}, value, version).Int()
	if err != nil {
		return fmt.Errorf("redis cas %s: %w", key, err)
	}
	switch res {
	case -1:
		return domain.ErrKeyNotFound
	case 0:
		return domain.ErrCASConflict
	}
	return nil
}
