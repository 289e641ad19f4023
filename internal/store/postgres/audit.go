package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"estate/amenity-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type auditRecord struct {
	BuildingID string
	EntityType string
	EntityID   string
	Type       string
	ActorID    string
	Payload    interface{}
	// OccurredAt is the business time of the change; zero means now.
	OccurredAt time.Time
}

func insertAuditEvent(ctx context.Context, tx pgx.Tx, record auditRecord) error {
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return err
	}

	if err := lockKey(ctx, tx, "audit|"+record.EntityID); err != nil {
		return err
	}

	var lastSeq int
	var prevHash sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT entity_seq, hash
		FROM audit_events
		WHERE entity_id = $1
		ORDER BY entity_seq DESC
		LIMIT 1
	`, record.EntityID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	nextSeq := lastSeq + 1
	prev := nullString(prevHash)

	// timestamptz keeps microseconds; hash what will be read back.
	createdAt := record.OccurredAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	createdAt = createdAt.UTC().Truncate(time.Microsecond)
	hash := store.ComputeAuditHash(prev, record.EntityID, record.Type, payload, createdAt, nextSeq)

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_events (
			event_id, building_id, entity_type, entity_id, entity_seq, type, actor_id,
			payload, created_at, prev_hash, hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, uuid.NewString(), record.BuildingID, record.EntityType, record.EntityID, nextSeq, record.Type, nullIfEmpty(record.ActorID), payload, createdAt, prev, hash)
	return err
}

const auditColumns = `event_id, building_id, entity_type, entity_id, entity_seq, type, actor_id, payload, created_at, prev_hash, hash, published_at`

func scanAuditEvent(row pgx.Row) (store.AuditEvent, error) {
	var event store.AuditEvent
	var actorID sql.NullString
	var payload []byte
	var publishedAt sql.NullTime
	if err := row.Scan(&event.EventID, &event.BuildingID, &event.EntityType, &event.EntityID, &event.EntitySeq, &event.Type, &actorID, &payload, &event.CreatedAt, &event.PrevHash, &event.Hash, &publishedAt); err != nil {
		return store.AuditEvent{}, err
	}
	event.ActorID = nullString(actorID)
	event.Payload = json.RawMessage(payload)
	event.CreatedAt = event.CreatedAt.UTC()
	event.PublishedAt = nullTimePtr(publishedAt)
	return event, nil
}

func (s *Store) ListAuditEvents(ctx context.Context, entityType, entityID string) ([]store.AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+auditColumns+`
		FROM audit_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY entity_seq ASC
	`, entityType, entityID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var events []store.AuditEvent
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, classify(err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return events, nil
}

func (s *Store) ListUnpublishedEvents(ctx context.Context, limit int) ([]store.AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+auditColumns+`
		FROM audit_events
		WHERE published_at IS NULL
		ORDER BY created_at ASC, entity_seq ASC
		LIMIT $1
	`, normalizeLimit(limit))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var events []store.AuditEvent
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, classify(err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return events, nil
}

func (s *Store) MarkEventsPublished(ctx context.Context, eventIDs []string, publishedAt time.Time) error {
	if len(eventIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE audit_events
		SET published_at = $1
		WHERE event_id::text = ANY($2) AND published_at IS NULL
	`, publishedAt.UTC(), eventIDs)
	return classify(err)
}
