package domain

import "errors"

// Erros sentinela do contrato de store e do documento.
//
// As implementações de infra devem traduzir os erros nativos do backend
// para estes valores; o protocolo decide o que fazer via errors.Is.
var (
	// ErrKeyExists indica que Add falhou porque a chave já existe.
	ErrKeyExists = errors.New("semaphore: key already exists")

	// ErrKeyNotFound indica que a chave não existe no store.
	ErrKeyNotFound = errors.New("semaphore: key not found")

	// ErrCASConflict indica que outro cliente escreveu entre o Get e o
	// CompareAndSwap (o token de versão ficou obsoleto).
	ErrCASConflict = errors.New("semaphore: cas conflict")

	// ErrMalformedDocument indica que o valor lido não decodifica como um
	// documento de semáforo. Nunca deve ser tratado como documento vazio.
	ErrMalformedDocument = errors.New("semaphore: malformed document")
)
