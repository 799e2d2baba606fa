// Package infra contém implementações concretas (infraestrutura) para os
// contratos definidos no pacote domain.
//
// Exemplos:
//   - MemoryKV: store versionado em memória, para testes e desenvolvimento
//   - RedisKV: store sobre Redis com scripts Lua para Add/CAS atômicos
//   - PostgresKV: store sobre Postgres com CAS via UPDATE condicional
//   - JSONCodec / MsgpackCodec: codificações do documento
package infra
