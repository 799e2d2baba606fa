package domain

import "context"

// KV é o contrato mínimo que o store remoto precisa oferecer para o
// protocolo funcionar: criação atômica e escrita condicional por versão.
//
// O token de versão é um contador monotônico por chave. Todo Get devolve o
// token corrente, e esse token é consumido pelo próximo CompareAndSwap —
// nunca reutilize um token de uma leitura antiga.
type KV interface {
	// Add cria a chave somente se ela ainda não existir.
	// Retorna ErrKeyExists se outro cliente criou primeiro.
	Add(ctx context.Context, key string, value []byte) error

	// Get lê o valor e o token de versão corrente.
	// Retorna ErrKeyNotFound se a chave não existe.
	Get(ctx context.Context, key string) (value []byte, version int64, err error)

	// CompareAndSwap grava value somente se nenhuma escrita aconteceu desde
	// que version foi emitido. Retorna ErrCASConflict se perdeu a corrida e
	// ErrKeyNotFound se a chave sumiu.
	CompareAndSwap(ctx context.Context, key string, value []byte, version int64) error
}
