package domain

import (
	"fmt"
	"time"
)

// Document é o estado compartilhado do semáforo, persistido sob uma única
// chave no store.
//
// Max e HoldTime são fixados por quem cria o documento; clientes posteriores
// devem adotar os valores armazenados, nunca impor os seus.
type Document struct {
	// Max é a capacidade: número máximo de holders simultâneos.
	Max int `json:"max" msgpack:"max"`

	// HoldTime é o tempo máximo (em segundos) que um holder pode ocupar uma
	// vaga antes de ser considerado abandonado.
	HoldTime int64 `json:"holdtime" msgpack:"holdtime"`

	// Slots mapeia clientID -> unix timestamp da aquisição.
	Slots map[string]int64 `json:"slots" msgpack:"slots"`
}

func NewDocument(max int, holdTime int64) *Document {
	return &Document{Max: max, HoldTime: holdTime, Slots: make(map[string]int64)}
}

// Parse decodifica raw e remove imediatamente os holders expirados, de modo
// que toda instância viva reflete apenas ocupantes dentro do lease.
//
// Valor que não decodifica vira ErrMalformedDocument — nunca um documento
// vazio silencioso.
func Parse(c Codec, raw []byte, now time.Time) (*Document, error) {
	var doc Document
	if err := c.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if doc.Slots == nil {
		doc.Slots = make(map[string]int64)
	}
	doc.Prune(now)
	return &doc, nil
}

// Encode produz a representação canônica de {max, holdtime, slots}.
func (d *Document) Encode(c Codec) ([]byte, error) {
	return c.Marshal(d)
}

// Prune remove holders cujo timestamp ficou para trás de now - HoldTime e
// retorna quantos foram removidos.
func (d *Document) Prune(now time.Time) int {
	cutoff := now.Unix() - d.HoldTime
	removed := 0
	for id, ts := range d.Slots {
		if ts < cutoff {
			delete(d.Slots, id)
			removed++
		}
	}
	return removed
}

// TryAcquire insere (ou renova) a vaga de clientID somente se houver
// capacidade. Readquirir com o mesmo clientID continua contando como um
// único ocupante.
//
// Em caso de recusa o documento fica intacto.
func (d *Document) TryAcquire(clientID string, now time.Time) bool {
	if _, held := d.Slots[clientID]; !held && len(d.Slots) >= d.Max {
		return false
	}
	d.Slots[clientID] = now.Unix()
	return true
}

// Release remove a vaga de clientID. Liberar uma vaga não ocupada (ou já
// expirada) é um no-op, não um erro.
func (d *Document) Release(clientID string) {
	delete(d.Slots, clientID)
}

// Occupants é a contagem de holders após a poda.
func (d *Document) Occupants() int {
	return len(d.Slots)
}
