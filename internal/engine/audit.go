package engine

import (
	"context"

	"estate/amenity-service/internal/models"
	"estate/amenity-service/internal/store"
)

// AuditTrail is the ordered history of one entity.
type AuditTrail struct {
	EntityType string             `json:"entity_type"`
	EntityID   string             `json:"entity_id"`
	ChainValid bool               `json:"chain_valid"`
	ChainError string             `json:"chain_error,omitempty"`
	Events     []store.AuditEvent `json:"events"`
}

func (e *Engine) ListAuditEvents(ctx context.Context, caller models.Caller, entityType, entityID string) (AuditTrail, error) {
	if err := authorize(caller, actionReadAuditTrail); err != nil {
		return AuditTrail{}, err
	}
	switch entityType {
	case store.EntityBooking, store.EntityPass, store.EntityAmenity:
	default:
		return AuditTrail{}, store.Validation("unknown entity type %q", entityType)
	}
	if err := requireUUID("entity_id", entityID); err != nil {
		return AuditTrail{}, err
	}

	events, err := e.store.ListAuditEvents(ctx, entityType, entityID)
	if err != nil {
		return AuditTrail{}, err
	}
	if len(events) > 0 {
		if err := inBuilding(caller, events[0].BuildingID); err != nil {
			return AuditTrail{}, err
		}
	}

	trail := AuditTrail{
		EntityType: entityType,
		EntityID:   entityID,
		ChainValid: true,
		Events:     events,
	}
	if trail.Events == nil {
		trail.Events = []store.AuditEvent{}
	}
	if err := store.VerifyAuditChain(events); err != nil {
		trail.ChainValid = false
		trail.ChainError = err.Error()
		e.logger.Warn("audit chain broken", "entity_type", entityType, "entity_id", entityID, "error", err)
	}
	return trail, nil
}
