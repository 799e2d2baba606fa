package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cluster-semaphore/semaphore/domain"
)

// PostgresKV implementa domain.KV sobre uma tabela Postgres.
//
// Add usa INSERT .. ON CONFLICT DO NOTHING e CompareAndSwap usa um UPDATE
// condicionado à coluna version; ambos são atômicos por linha, então não há
// transação explícita nem advisory lock.
//
// O driver (ex: github.com/lib/pq) é registrado por quem abre o *sql.DB.
type PostgresKV struct {
	db    *sql.DB
	table string
}

type PostgresKVOption func(*PostgresKV)

// WithTable muda a tabela usada (padrão "semaphore_kv").
func WithTable(table string) PostgresKVOption {
	return func(s *PostgresKV) { s.table = table }
}

func NewPostgresKV(db *sql.DB, opts ...PostgresKVOption) *PostgresKV {
	s := &PostgresKV{
		db:    db,
		table: "semaphore_kv",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema cria a tabela se ainda não existir. Chamada opcional de
// conveniência para ambientes onde o operador não gerencia o schema.
func (s *PostgresKV) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name    TEXT PRIMARY KEY,
			value   BYTEA NOT NULL,
			version BIGINT NOT NULL
		)`, s.table))
	if err != nil {
		return fmt.Errorf("postgres ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresKV) Add(ctx context.Context, key string, value []byte) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (name, value, version) VALUES ($1, $2, 1)
			ON CONFLICT (name) DO NOTHING`, s.table),
		key, value)
	if err != nil {
		return fmt.Errorf("postgres add %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres add %s: %w", key, err)
	}
	if n == 0 {
		return domain.ErrKeyExists
	}
	return nil
}

func (s *PostgresKV) Get(ctx context.Context, key string) ([]byte, int64, error) {
	var value []byte
	var version int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value, version FROM %s WHERE name = $1`, s.table),
		key).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, domain.ErrKeyNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return value, version, nil
}

func (s *PostgresKV) CompareAndSwap(ctx context.Context, key string, value []byte, version int64) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET value = $2, version = version + 1
			WHERE name = $1 AND version = $3`, s.table),
		key, value, version)
	if err != nil {
		return fmt.Errorf("postgres cas %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres cas %s: %w", key, err)
	}
	if n == 1 {
		return nil
	}

	// 0 linhas: ou a versão ficou obsoleta, ou a chave sumiu.
	var exists bool
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE name = $1)`, s.table),
		key).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres cas %s: %w", key, err)
	}
	if !exists {
		return domain.ErrKeyNotFound
	}
	return domain.ErrCASConflict
}
