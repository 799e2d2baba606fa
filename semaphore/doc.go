// Package semaphore implementa um semáforo contador de cluster: processos
// independentes combinam "no máximo N holders simultâneos do recurso R" sem
// serviço de lock dedicado, usando um documento compartilhado num store
// chave-valor com add-if-absent e compare-and-swap.
//
// Visão geral (camadas):
//
//   - domain: o documento compartilhado (max/holdtime/slots) e os contratos
//     de store e codec, sem I/O
//   - application: o protocolo read-modify-CAS-retry (init, acquire, release)
//   - infra: backends concretos (memória, Redis, Postgres) e codecs
//     (JSON canônico, msgpack)
//   - semaphore (este pacote): a superfície pública — construção com
//     criar-ou-adotar, Down/Up e o helper de polling DownWait
//
// Tolerância a falhas: um holder que morre sem chamar Up ocupa a vaga até o
// holdtime expirar; a poda acontece em toda leitura do documento. Não há
// garantia de fairness entre clientes disputando, e nenhum laço do protocolo
// bloqueia esperando vaga — DownWait apenas repete Down num ritmo limitado.
//
// As binárias em cmd/ (semctl, janitor, example-worker) mostram o uso
// operacional.
package semaphore
