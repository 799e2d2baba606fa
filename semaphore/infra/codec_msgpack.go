package infra

import (
	"github.com/vmihailenco/msgpack/v5"

	"cluster-semaphore/semaphore/domain"
)

// MsgpackCodec é uma codificação binária compacta, alternativa ao JSON.
//
// Útil quando o documento cresce (muitos holders) e o tráfego com o store
// importa. Todos os clientes do mesmo lock precisam usar o mesmo codec.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(doc *domain.Document) ([]byte, error) {
	return msgpack.Marshal(doc)
}

func (MsgpackCodec) Unmarshal(raw []byte, doc *domain.Document) error {
	return msgpack.Unmarshal(raw, doc)
}
