package engine

import (
	"context"
	"strings"
	"time"

	"estate/amenity-service/internal/models"
	"estate/amenity-service/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

type CreateAmenityInput struct {
	BuildingID string
	Name       string
	Active     *bool
	Slots      []models.SlotDefinition
}

type UpdateAmenityInput struct {
	AmenityID string
	Name      *string
	Active    *bool
	Slots     []models.SlotDefinition
}

const maxSlotsPerAmenity = 48

// ValidateSlots checks a slot list and returns it with names and times
// trimmed. Names must be unique ignoring case.
func ValidateSlots(slots []models.SlotDefinition) ([]models.SlotDefinition, error) {
	if len(slots) == 0 {
		return nil, store.Validation("at least one slot is required")
	}
	if len(slots) > maxSlotsPerAmenity {
		return nil, store.Validation("at most %d slots are allowed", maxSlotsPerAmenity)
	}
	seen := make(map[string]bool, len(slots))
	cleaned := make([]models.SlotDefinition, 0, len(slots))
	for _, slot := range slots {
		slot.Name = strings.TrimSpace(slot.Name)
		slot.StartTime = strings.TrimSpace(slot.StartTime)
		slot.EndTime = strings.TrimSpace(slot.EndTime)
		if slot.Name == "" {
			return nil, store.Validation("slot name is required")
		}
		key := strings.ToLower(slot.Name)
		if seen[key] {
			return nil, store.Validation("duplicate slot %q", slot.Name)
		}
		seen[key] = true
		start, err := time.Parse("15:04", slot.StartTime)
		if err != nil {
			return nil, store.Validation("slot %q start_time must be HH:MM", slot.Name)
		}
		end, err := time.Parse("15:04", slot.EndTime)
		if err != nil {
			return nil, store.Validation("slot %q end_time must be HH:MM", slot.Name)
		}
		if !start.Before(end) {
			return nil, store.Validation("slot %q must start before it ends", slot.Name)
		}
		if slot.MaxPerDay < 1 {
			return nil, store.Validation("slot %q max_per_day must be at least 1", slot.Name)
		}
		cleaned = append(cleaned, slot)
	}
	return cleaned, nil
}

func (e *Engine) CreateAmenity(ctx context.Context, caller models.Caller, input CreateAmenityInput) (amenity models.Amenity, err error) {
	ctx, span := e.startSpan(ctx, "CreateAmenity")
	defer func() { endSpan(span, err) }()

	if err := authorize(caller, actionManageAmenity); err != nil {
		return models.Amenity{}, err
	}
	buildingID, err := callerBuilding(caller, strings.TrimSpace(input.BuildingID))
	if err != nil {
		return models.Amenity{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return models.Amenity{}, store.Validation("name is required")
	}
	slots, err := ValidateSlots(input.Slots)
	if err != nil {
		return models.Amenity{}, err
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}

	amenity, err = e.store.CreateAmenity(ctx, models.Amenity{
		BuildingID: buildingID,
		Name:       name,
		Active:     active,
		Slots:      slots,
		CreatedAt:  e.clock.Now(),
	})
	if err != nil {
		return models.Amenity{}, err
	}
	e.logger.Info("amenity created", "amenity_id", amenity.AmenityID, "building_id", buildingID, "actor_id", caller.UserID)
	return amenity, nil
}

func (e *Engine) UpdateAmenity(ctx context.Context, caller models.Caller, input UpdateAmenityInput) (amenity models.Amenity, err error) {
	ctx, span := e.startSpan(ctx, "UpdateAmenity", attribute.String("amenity_id", input.AmenityID))
	defer func() { endSpan(span, err) }()

	if err := authorize(caller, actionManageAmenity); err != nil {
		return models.Amenity{}, err
	}
	if err := requireUUID("amenity_id", input.AmenityID); err != nil {
		return models.Amenity{}, err
	}
	current, err := e.store.GetAmenity(ctx, input.AmenityID)
	if err != nil {
		return models.Amenity{}, err
	}
	if err := inBuilding(caller, current.BuildingID); err != nil {
		return models.Amenity{}, err
	}

	update := store.UpdateAmenityInput{
		AmenityID: input.AmenityID,
		Active:    input.Active,
		ActorID:   caller.UserID,
		UpdatedAt: e.clock.Now(),
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return models.Amenity{}, store.Validation("name must not be empty")
		}
		update.Name = &name
	}
	if input.Slots != nil {
		slots, err := ValidateSlots(input.Slots)
		if err != nil {
			return models.Amenity{}, err
		}
		update.Slots = slots
	}

	amenity, err = e.store.UpdateAmenity(ctx, update)
	if err != nil {
		return models.Amenity{}, err
	}
	e.logger.Info("amenity updated", "amenity_id", amenity.AmenityID, "actor_id", caller.UserID)
	return amenity, nil
}

func (e *Engine) GetAmenity(ctx context.Context, caller models.Caller, amenityID string) (models.Amenity, error) {
	if err := authorize(caller, actionReadAmenities); err != nil {
		return models.Amenity{}, err
	}
	if err := requireUUID("amenity_id", amenityID); err != nil {
		return models.Amenity{}, err
	}
	amenity, err := e.store.GetAmenity(ctx, amenityID)
	if err != nil {
		return models.Amenity{}, err
	}
	if err := inBuilding(caller, amenity.BuildingID); err != nil {
		return models.Amenity{}, err
	}
	return amenity, nil
}

// ListAmenities lists a building's amenities. Only admins see inactive ones.
func (e *Engine) ListAmenities(ctx context.Context, caller models.Caller, buildingID string) ([]models.Amenity, error) {
	if err := authorize(caller, actionReadAmenities); err != nil {
		return nil, err
	}
	buildingID, err := callerBuilding(caller, buildingID)
	if err != nil {
		return nil, err
	}
	return e.store.ListAmenities(ctx, buildingID, !caller.IsAdmin())
}
