package infra

import (
	"encoding/json"

	"cluster-semaphore/semaphore/domain"
)

// JSONCodec é o formato canônico do documento:
//
//	{ "max": <int>, "holdtime": <int>, "slots": { "<clientID>": <unix>, ... } }
//
// É o formato de intercâmbio entre implementações; use-o a menos que todos
// os clientes do mesmo lock combinem outra codificação.
type JSONCodec struct{}

func (JSONCodec) Marshal(doc *domain.Document) ([]byte, error) {
	return json.Marshal(doc)
}

func (JSONCodec) Unmarshal(raw []byte, doc *domain.Document) error {
	return json.Unmarshal(raw, doc)
}
