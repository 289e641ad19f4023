package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"estate/amenity-service/internal/models"
	"estate/amenity-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const amenityColumns = `amenity_id, building_id, name, active, slots, created_at, updated_at`

const amenityNameConstraint = "amenities_building_id_name_key"

func scanAmenity(row pgx.Row) (models.Amenity, error) {
	var amenity models.Amenity
	var slots []byte
	if err := row.Scan(&amenity.AmenityID, &amenity.BuildingID, &amenity.Name, &amenity.Active, &slots, &amenity.CreatedAt, &amenity.UpdatedAt); err != nil {
		return models.Amenity{}, err
	}
	if len(slots) > 0 {
		if err := json.Unmarshal(slots, &amenity.Slots); err != nil {
			return models.Amenity{}, err
		}
	}
	amenity.CreatedAt = amenity.CreatedAt.UTC()
	amenity.UpdatedAt = amenity.UpdatedAt.UTC()
	return amenity, nil
}

func slotsJSON(slots []models.SlotDefinition) ([]byte, error) {
	if slots == nil {
		slots = []models.SlotDefinition{}
	}
	return json.Marshal(slots)
}

func (s *Store) CreateAmenity(ctx context.Context, amenity models.Amenity) (models.Amenity, error) {
	return s.saveAmenity(ctx, amenity, false)
}

// UpsertAmenity creates the amenity or, when the building already has one with
// the same name, replaces its active flag and slot list.
func (s *Store) UpsertAmenity(ctx context.Context, amenity models.Amenity) (models.Amenity, error) {
	return s.saveAmenity(ctx, amenity, true)
}

func (s *Store) saveAmenity(ctx context.Context, amenity models.Amenity, upsert bool) (models.Amenity, error) {
	if amenity.AmenityID == "" {
		amenity.AmenityID = uuid.NewString()
	}
	now := time.Now().UTC()
	if amenity.CreatedAt.IsZero() {
		amenity.CreatedAt = now
	}
	slots, err := slotsJSON(amenity.Slots)
	if err != nil {
		return models.Amenity{}, err
	}

	query := `
		INSERT INTO amenities (amenity_id, building_id, name, active, slots, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
	`
	eventType := "amenity.created"
	if upsert {
		query += `
		ON CONFLICT (building_id, name) DO UPDATE
		SET active = EXCLUDED.active, slots = EXCLUDED.slots, updated_at = EXCLUDED.updated_at
		`
		eventType = "amenity.saved"
	}
	query += ` RETURNING ` + amenityColumns

	var saved models.Amenity
	err = withTx(ctx, s.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		var err error
		saved, err = scanAmenity(tx.QueryRow(ctx, query, amenity.AmenityID, amenity.BuildingID, amenity.Name, amenity.Active, slots, amenity.CreatedAt))
		if err != nil {
			return err
		}
		return insertAuditEvent(ctx, tx, auditRecord{
			BuildingID: saved.BuildingID,
			EntityType: store.EntityAmenity,
			EntityID:   saved.AmenityID,
			Type:       eventType,
			Payload:    saved,
			OccurredAt: amenity.CreatedAt,
		})
	})
	if err != nil {
		if isUniqueViolation(err, amenityNameConstraint) {
			return models.Amenity{}, store.ErrAmenityExists
		}
		if isForeignKeyViolation(err) {
			return models.Amenity{}, store.Validation("building %s does not exist", amenity.BuildingID)
		}
		return models.Amenity{}, classify(err)
	}
	return saved, nil
}

func (s *Store) UpdateAmenity(ctx context.Context, input store.UpdateAmenityInput) (models.Amenity, error) {
	var slots []byte
	if input.Slots != nil {
		var err error
		if slots, err = slotsJSON(input.Slots); err != nil {
			return models.Amenity{}, err
		}
	}
	updatedAt := input.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	var updated models.Amenity
	err := withTx(ctx, s.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		var err error
		updated, err = scanAmenity(tx.QueryRow(ctx, `
			UPDATE amenities
			SET name = COALESCE($2, name),
				active = COALESCE($3, active),
				slots = COALESCE($4, slots),
				updated_at = $5
			WHERE amenity_id = $1
			RETURNING `+amenityColumns,
			input.AmenityID, input.Name, input.Active, slots, updatedAt))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrAmenityNotFound
			}
			return err
		}
		return insertAuditEvent(ctx, tx, auditRecord{
			BuildingID: updated.BuildingID,
			EntityType: store.EntityAmenity,
			EntityID:   updated.AmenityID,
			Type:       "amenity.updated",
			ActorID:    input.ActorID,
			Payload:    updated,
			OccurredAt: updatedAt,
		})
	})
	if err != nil {
		if isUniqueViolation(err, amenityNameConstraint) {
			return models.Amenity{}, store.ErrAmenityExists
		}
		return models.Amenity{}, classify(err)
	}
	return updated, nil
}

func (s *Store) GetAmenity(ctx context.Context, amenityID string) (models.Amenity, error) {
	amenity, err := getAmenity(ctx, s.pool, amenityID)
	if err != nil {
		return models.Amenity{}, classify(err)
	}
	return amenity, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func getAmenity(ctx context.Context, q querier, amenityID string) (models.Amenity, error) {
	amenity, err := scanAmenity(q.QueryRow(ctx, `
		SELECT `+amenityColumns+`
		FROM amenities
		WHERE amenity_id = $1
	`, amenityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Amenity{}, store.ErrAmenityNotFound
		}
		return models.Amenity{}, err
	}
	return amenity, nil
}

func (s *Store) ListAmenities(ctx context.Context, buildingID string, activeOnly bool) ([]models.Amenity, error) {
	query := `
		SELECT ` + amenityColumns + `
		FROM amenities
		WHERE building_id = $1
	`
	if activeOnly {
		query += " AND active"
	}
	query += " ORDER BY name ASC"

	rows, err := s.pool.Query(ctx, query, buildingID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var amenities []models.Amenity
	for rows.Next() {
		amenity, err := scanAmenity(rows)
		if err != nil {
			return nil, classify(err)
		}
		amenities = append(amenities, amenity)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return amenities, nil
}

// UpsertBuilding registers a building row owned by the directory collaborator.
// It is used when seeding a catalog into an empty database.
func (s *Store) UpsertBuilding(ctx context.Context, buildingID, name string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO buildings (building_id, name)
		VALUES ($1, $2)
		ON CONFLICT (building_id) DO UPDATE SET name = EXCLUDED.name
	`, buildingID, name)
	return classify(err)
}
