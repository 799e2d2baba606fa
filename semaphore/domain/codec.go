package domain

// Codec é a estratégia de serialização do documento.
//
// JSON é o formato canônico (interoperável entre implementações); a infra
// pode oferecer codificações alternativas desde que o round-trip seja exato
// para documentos sem entradas expiradas.
type Codec interface {
	Marshal(doc *Document) ([]byte, error)
	Unmarshal(raw []byte, doc *Document) error
}
