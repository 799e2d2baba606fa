package infra

import (
	"context"
	"sync"

	"cluster-semaphore/semaphore/domain"
)

// MemoryKV é uma implementação simples em memória do contrato domain.KV.
// Útil para testes e desenvolvimento.
//
// As versões são contadores monotônicos por chave, começando em 1.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]*memEntry
}

type memEntry struct {
	value   []byte
	version int64
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]*memEntry)}
}

func (s *MemoryKV) Add(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		return domain.ErrKeyExists
	}
	s.entries[key] = &memEntry{value: cloneBytes(value), version: 1}
	return nil
}

func (s *MemoryKV) Get(_ context.Context, key string) ([]byte, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		return nil, 0, domain.ErrKeyNotFound
	}
	return cloneBytes(ent.value), ent.version, nil
}

func (s *MemoryKV) CompareAndSwap(_ context.Context, key string, value []byte, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		return domain.ErrKeyNotFound
	}
	if ent.version != version {
		return domain.ErrCASConflict
	}
	ent.value = cloneBytes(value)
	ent.version++
	return nil
}

// cloneBytes isola o chamador do buffer interno (e vice-versa).
func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
