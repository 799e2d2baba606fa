package domain

import (
	"testing"
	"time"
)

func TestDocument_TryAcquireRespectsCapacity(t *testing.T) {
	now := time.Unix(1000, 0)
	d := NewDocument(2, 600)

	if !d.TryAcquire("c1", now) {
		t.Fatalf("expected first acquire to succeed")
	}
	if !d.TryAcquire("c2", now) {
		t.Fatalf("expected second acquire to succeed")
	}
	if d.TryAcquire("c3", now) {
		t.Fatalf("expected acquire over capacity to fail")
	}
	if d.Occupants() != 2 {
		t.Fatalf("expected 2 occupants, got %d", d.Occupants())
	}
}

func TestDocument_TryAcquireFullLeavesSlotsUnchanged(t *testing.T) {
	now := time.Unix(1000, 0)
	d := NewDocument(1, 600)
	d.TryAcquire("c1", now)

	if d.TryAcquire("c2", now.Add(5*time.Second)) {
		t.Fatalf("expected acquire to fail on full document")
	}
	if _, ok := d.Slots["c2"]; ok {
		t.Fatalf("failed acquire must not insert a slot")
	}
	if d.Slots["c1"] != now.Unix() {
		t.Fatalf("failed acquire must not touch existing slots")
	}
}

func TestDocument_TryAcquireIsIdempotentPerClient(t *testing.T) {
	now := time.Unix(1000, 0)
	later := now.Add(30 * time.Second)
	d := NewDocument(1, 600)

	if !d.TryAcquire("c1", now) {
		t.Fatalf("expected acquire to succeed")
	}
	// readquirir com o documento cheio deve funcionar: é o mesmo ocupante
	if !d.TryAcquire("c1", later) {
		t.Fatalf("expected re-acquire by same client to succeed")
	}
	if d.Occupants() != 1 {
		t.Fatalf("expected 1 occupant, got %d", d.Occupants())
	}
	if d.Slots["c1"] != later.Unix() {
		t.Fatalf("expected re-acquire to refresh timestamp")
	}
}

func TestDocument_ReleaseAbsentIsNoop(t *testing.T) {
	now := time.Unix(1000, 0)
	d := NewDocument(3, 600)
	d.TryAcquire("c1", now)

	d.Release("ghost")

	if d.Occupants() != 1 {
		t.Fatalf("expected release of absent client to change nothing, got %d occupants", d.Occupants())
	}
}

func TestDocument_PruneRemovesOnlyExpired(t *testing.T) {
	d := NewDocument(10, 600)
	d.Slots["old"] = 100
	d.Slots["edge"] = 400 // exatamente no corte: ainda válido
	d.Slots["fresh"] = 900

	removed := d.Prune(time.Unix(1000, 0))

	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := d.Slots["old"]; ok {
		t.Fatalf("expected expired holder to be pruned")
	}
	if _, ok := d.Slots["edge"]; !ok {
		t.Fatalf("holder at the exact cutoff must survive")
	}
	if _, ok := d.Slots["fresh"]; !ok {
		t.Fatalf("fresh holder must survive")
	}
}
