package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func buildChain(entityID string, types ...string) []AuditEvent {
	var events []AuditEvent
	prev := ""
	at := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	for i, eventType := range types {
		payload := json.RawMessage(`{"status":"` + eventType + `"}`)
		createdAt := at.Add(time.Duration(i) * time.Second)
		hash := ComputeAuditHash(prev, entityID, eventType, payload, createdAt, i+1)
		events = append(events, AuditEvent{
			EventID:   eventType,
			EntityID:  entityID,
			EntitySeq: i + 1,
			Type:      eventType,
			Payload:   payload,
			CreatedAt: createdAt,
			PrevHash:  prev,
			Hash:      hash,
		})
		prev = hash
	}
	return events
}

func TestVerifyAuditChain(t *testing.T) {
	events := buildChain("b-1", "booking.created", "booking.approved", "booking.cancelled")
	if err := VerifyAuditChain(events); err != nil {
		t.Fatalf("expected valid chain, got %v", err)
	}

	tampered := append([]AuditEvent(nil), events...)
	tampered[1].Payload = json.RawMessage(`{"status":"booking.rejected"}`)
	if err := VerifyAuditChain(tampered); !errors.Is(err, ErrAuditChainBroken) {
		t.Fatalf("expected broken chain for tampered payload, got %v", err)
	}

	missing := []AuditEvent{events[0], events[2]}
	if err := VerifyAuditChain(missing); !errors.Is(err, ErrAuditChainBroken) {
		t.Fatalf("expected broken chain for missing event, got %v", err)
	}
}

func TestComputeAuditHashIgnoresLocation(t *testing.T) {
	at := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	local := at.In(time.FixedZone("IST", 5*3600+1800))
	payload := json.RawMessage(`{}`)
	if ComputeAuditHash("", "p", "pass.issued", payload, at, 1) != ComputeAuditHash("", "p", "pass.issued", payload, local, 1) {
		t.Fatalf("hash must not depend on the time zone of created_at")
	}
}
