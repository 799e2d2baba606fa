package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cluster-semaphore/semaphore/domain"
)

// DefaultRetries é o orçamento padrão de tentativas por operação.
// Ele cobre apenas corridas de CAS; erros de transporte abortam na hora.
const DefaultRetries = 10

var (
	// ErrContended indica que o orçamento de tentativas foi consumido por
	// escritores concorrentes sem que a operação se resolvesse.
	ErrContended = errors.New("semaphore: retries exhausted by concurrent writers")

	// ErrReleaseLost indica que a liberação não conseguiu ser gravada dentro
	// do orçamento. A vaga fica ocupada até o lease expirar, reduzindo a
	// capacidade efetiva do cluster nesse intervalo.
	ErrReleaseLost = errors.New("semaphore: release not persisted, slot held until lease expiry")

	// ErrDocumentMissing indica que o documento sumiu depois da
	// inicialização — violação de protocolo, não uma condição transitória.
	ErrDocumentMissing = errors.New("semaphore: document missing after initialization")
)

// Service concentra a regra do protocolo: laços read-modify-CAS sobre um
// domain.KV. Ele não sabe nada sobre identidade de processo nem sobre o
// backend concreto.
type Service struct {
	Store domain.KV
	Codec domain.Codec

	// Retries limita as repetições por corrida de CAS; <= 0 usa DefaultRetries.
	Retries int

	// Now é o relógio, injetável em testes; nil usa time.Now.
	Now func() time.Time
}

func (s Service) retries() int {
	if s.Retries > 0 {
		return s.Retries
	}
	return DefaultRetries
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Init cria o documento em lock com os parâmetros locais; se outro cliente
// criou primeiro, lê o documento existente e devolve os parâmetros dele —
// quem chega depois adota max/holdtime armazenados, nunca impõe os seus.
//
// Qualquer falha aqui é fatal para o cliente: sem documento legível não há
// protocolo.
func (s Service) Init(ctx context.Context, lock string, max int, holdTime int64) (*domain.Document, error) {
	doc := domain.NewDocument(max, holdTime)
	raw, err := doc.Encode(s.Codec)
	if err != nil {
		return nil, fmt.Errorf("semaphore: init encode: %w", err)
	}

	err = s.Store.Add(ctx, lock, raw)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, domain.ErrKeyExists) {
		return nil, fmt.Errorf("semaphore: init %s: %w", lock, err)
	}

	// perdemos a corrida de criação: adota o documento do vencedor
	existing, _, err := s.Store.Get(ctx, lock)
	if err != nil {
		return nil, fmt.Errorf("semaphore: init read %s: %w", lock, err)
	}
	adopted, err := domain.Parse(s.Codec, existing, s.now())
	if err != nil {
		return nil, fmt.Errorf("semaphore: init %s: %w", lock, err)
	}
	return adopted, nil
}

// Acquire tenta ocupar uma vaga para clientID.
//
// Retorna (false, nil) quando o semáforo está cheio no momento da tentativa
// (recusa por capacidade — não é corrida, não repete) e (false, ErrContended)
// quando o orçamento de tentativas acabou em corridas de CAS.
func (s Service) Acquire(ctx context.Context, lock, clientID string) (bool, error) {
	for attempt := 0; attempt < s.retries(); attempt++ {
		doc, version, err := s.read(ctx, lock)
		if err != nil {
			return false, err
		}

		if !doc.TryAcquire(clientID, s.now()) {
			return false, nil
		}

		err = s.write(ctx, lock, doc, version)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, domain.ErrCASConflict) {
			return false, err
		}
		// outro cliente escreveu primeiro: relê o estado e tenta de novo
	}
	return false, ErrContended
}

// Release remove a vaga de clientID. Sobre o documento a liberação sempre
// funciona (liberar vaga não ocupada é no-op); o que pode falhar é persistir
// a mudança, e nesse caso o erro é ErrReleaseLost.
func (s Service) Release(ctx context.Context, lock, clientID string) error {
	for attempt := 0; attempt < s.retries(); attempt++ {
		doc, version, err := s.read(ctx, lock)
		if err != nil {
			return err
		}

		doc.Release(clientID)

		err = s.write(ctx, lock, doc, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrCASConflict) {
			return err
		}
	}
	return ErrReleaseLost
}

// Peek lê o documento sem mutação. Para inspeção/status.
func (s Service) Peek(ctx context.Context, lock string) (*domain.Document, error) {
	doc, _, err := s.read(ctx, lock)
	return doc, err
}

// Sweep poda holders expirados de lock e grava de volta somente se a poda
// removeu alguma coisa. Devolve quantos holders foram removidos.
//
// A poda já acontece de graça em toda leitura; o Sweep existe para recuperar
// capacidade mais cedo em locks pouco lidos (ferramenta de operador).
func (s Service) Sweep(ctx context.Context, lock string) (int, error) {
	for attempt := 0; attempt < s.retries(); attempt++ {
		raw, version, err := s.Store.Get(ctx, lock)
		if errors.Is(err, domain.ErrKeyNotFound) {
			// lock nunca usado: nada a podar
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("semaphore: read %s: %w", lock, err)
		}

		var doc domain.Document
		if err := s.Codec.Unmarshal(raw, &doc); err != nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrMalformedDocument, err)
		}
		removed := doc.Prune(s.now())
		if removed == 0 {
			return 0, nil
		}

		err = s.write(ctx, lock, &doc, version)
		if err == nil {
			return removed, nil
		}
		if !errors.Is(err, domain.ErrCASConflict) {
			return 0, err
		}
	}
	return 0, ErrContended
}

func (s Service) read(ctx context.Context, lock string) (*domain.Document, int64, error) {
	raw, version, err := s.Store.Get(ctx, lock)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return nil, 0, fmt.Errorf("%w: %s", ErrDocumentMissing, lock)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("semaphore: read %s: %w", lock, err)
	}
	doc, err := domain.Parse(s.Codec, raw, s.now())
	if err != nil {
		return nil, 0, err
	}
	return doc, version, nil
}

func (s Service) write(ctx context.Context, lock string, doc *domain.Document, version int64) error {
	raw, err := doc.Encode(s.Codec)
	if err != nil {
		return fmt.Errorf("semaphore: encode %s: %w", lock, err)
	}
	err = s.Store.CompareAndSwap(ctx, lock, raw, version)
	if err == nil || errors.Is(err, domain.ErrCASConflict) {
		return err
	}
	return fmt.Errorf("semaphore: write %s: %w", lock, err)
}
