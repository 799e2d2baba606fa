package semaphore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"cluster-semaphore/semaphore/application"
	"cluster-semaphore/semaphore/domain"
	"cluster-semaphore/semaphore/infra"
)

// Erros do protocolo reexportados para quem só importa este pacote.
var (
	ErrContended       = application.ErrContended
	ErrReleaseLost     = application.ErrReleaseLost
	ErrDocumentMissing = application.ErrDocumentMissing
)

type Options struct {
	// Store é o backend compartilhado (obrigatório). Veja infra.NewRedisKV,
	// infra.NewPostgresKV e infra.NewMemoryKV.
	Store domain.KV

	// Lock é a chave do documento no store (obrigatório).
	Lock string

	// ClientID identifica este holder entre os concorrentes.
	// Vazio gera um UUID novo.
	ClientID string

	// Count é a capacidade desejada. Vale somente se este cliente criar o
	// documento; senão o valor armazenado é adotado.
	Count int

	// HoldTime é o lease desejado, em segundos. Mesma regra do Count.
	HoldTime int64

	// Retries limita as repetições por corrida de CAS (padrão 10).
	Retries int

	// Codec do documento (padrão infra.JSONCodec).
	Codec domain.Codec

	// PollInterval é o ritmo do DownWait (padrão 250ms).
	PollInterval time.Duration

	// Now é o relógio, injetável em testes; nil usa time.Now.
	Now func() time.Time
}

// Semaphore é um cliente do semáforo já inicializado: o documento existe e
// Count/HoldTime refletem os valores efetivos (adotados, não os pedidos).
type Semaphore struct {
	svc      application.Service
	lock     string
	clientID string

	count    int
	holdTime int64

	poll *rate.Limiter
}

// New estabelece o cliente: cria o documento se ele não existir, ou adota os
// parâmetros do documento que outro cliente criou primeiro.
//
// Falha de criação E de leitura é fatal: sem documento legível o cliente não
// pode ser usado.
func New(ctx context.Context, opts Options) (*Semaphore, error) {
	if opts.Store == nil {
		return nil, errors.New("semaphore: Options.Store is required")
	}
	if opts.Lock == "" {
		return nil, errors.New("semaphore: Options.Lock is required")
	}
	if opts.Count <= 0 {
		return nil, errors.New("semaphore: Options.Count must be > 0")
	}
	if opts.HoldTime <= 0 {
		return nil, errors.New("semaphore: Options.HoldTime must be > 0")
	}
	if opts.Codec == nil {
		opts.Codec = infra.JSONCodec{}
	}
	if opts.ClientID == "" {
		opts.ClientID = uuid.NewString()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}

	svc := application.Service{
		Store:   opts.Store,
		Codec:   opts.Codec,
		Retries: opts.Retries,
		Now:     opts.Now,
	}

	doc, err := svc.Init(ctx, opts.Lock, opts.Count, opts.HoldTime)
	if err != nil {
		return nil, err
	}

	return &Semaphore{
		svc:      svc,
		lock:     opts.Lock,
		clientID: opts.ClientID,
		count:    doc.Max,
		holdTime: doc.HoldTime,
		poll:     rate.NewLimiter(rate.Every(opts.PollInterval), 1),
	}, nil
}

// Down tenta ocupar uma vaga, sem bloquear esperando capacidade.
//
// (false, nil) é recusa por capacidade: o semáforo estava cheio no momento.
// (false, ErrContended) é esgotamento do orçamento em corridas de CAS —
// observável igual para quem só olha o booleano, mas quem loga pode querer
// distinguir.
func (s *Semaphore) Down(ctx context.Context) (bool, error) {
	return s.svc.Acquire(ctx, s.lock, s.clientID)
}

// DownWait repete Down até conseguir a vaga ou o ctx encerrar, num ritmo
// limitado por PollInterval. É polling do lado do chamador; o protocolo em
// si continua não-bloqueante e sem fairness.
func (s *Semaphore) DownWait(ctx context.Context) error {
	for {
		ok, err := s.Down(ctx)
		if ok {
			return nil
		}
		// ErrContended é transitório aqui: a próxima rodada relê tudo
		if err != nil && !errors.Is(err, ErrContended) {
			return err
		}
		if err := s.poll.Wait(ctx); err != nil {
			return err
		}
	}
}

// Up libera a vaga deste cliente. ErrReleaseLost indica que a liberação não
// foi gravada dentro do orçamento: a vaga fica ocupada até o lease expirar.
func (s *Semaphore) Up(ctx context.Context) error {
	return s.svc.Release(ctx, s.lock, s.clientID)
}

// Peek lê o documento sem mutação (inspeção/status).
func (s *Semaphore) Peek(ctx context.Context) (*domain.Document, error) {
	return s.svc.Peek(ctx, s.lock)
}

// ClientID é a identidade efetiva deste cliente (gerada se não fornecida).
func (s *Semaphore) ClientID() string { return s.clientID }

// Count é a capacidade efetiva — a armazenada no documento, que pode diferir
// da pedida nas Options.
func (s *Semaphore) Count() int { return s.count }

// HoldTime é o lease efetivo em segundos, mesma regra do Count.
func (s *Semaphore) HoldTime() int64 { return s.holdTime }
