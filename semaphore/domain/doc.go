// Package domain define contratos e tipos de domínio do semáforo distribuído.
//
// Este pacote não depende de rede nem de implementações concretas de store.
// A intenção é permitir testes de unidade puros e desacoplar o protocolo
// de detalhes de infraestrutura (Redis, Postgres, memória).
package domain
