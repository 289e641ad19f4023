package store

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrAuditChainBroken = errors.New("audit chain broken")

func ComputeAuditHash(prevHash, entityID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, entityID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyAuditChain checks that events (ordered by EntitySeq) of one entity link
// to each other and that every hash matches its content.
func VerifyAuditChain(events []AuditEvent) error {
	prev := ""
	for i, event := range events {
		if event.EntitySeq != i+1 {
			return fmt.Errorf("%w: event %s has seq %d, want %d", ErrAuditChainBroken, event.EventID, event.EntitySeq, i+1)
		}
		if event.PrevHash != prev {
			return fmt.Errorf("%w: event %s does not link to its predecessor", ErrAuditChainBroken, event.EventID)
		}
		want := ComputeAuditHash(prev, event.EntityID, event.Type, event.Payload, event.CreatedAt, event.EntitySeq)
		if event.Hash != want {
			return fmt.Errorf("%w: event %s hash mismatch", ErrAuditChainBroken, event.EventID)
		}
		prev = event.Hash
	}
	return nil
}
