package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"estate/amenity-service/internal/models"
	"estate/amenity-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	passColumns        = `pass_id, building_id, apartment_id, code, visitor_name, status, created_by, created_at, expires_at, verified_at, verified_by, cancelled_at, cancelled_by`
	passCodeConstraint = "visitor_passes_code_key"
)

func scanPass(row pgx.Row) (models.VisitorPass, error) {
	var pass models.VisitorPass
	var apartmentID, visitorName, verifiedBy, cancelledBy sql.NullString
	var verifiedAt, cancelledAt sql.NullTime
	if err := row.Scan(
		&pass.PassID, &pass.BuildingID, &apartmentID, &pass.Code, &visitorName, &pass.Status, &pass.CreatedBy,
		&pass.CreatedAt, &pass.ExpiresAt, &verifiedAt, &verifiedBy, &cancelledAt, &cancelledBy,
	); err != nil {
		return models.VisitorPass{}, err
	}
	pass.ApartmentID = nullString(apartmentID)
	pass.VisitorName = nullString(visitorName)
	pass.CreatedAt = pass.CreatedAt.UTC()
	pass.ExpiresAt = pass.ExpiresAt.UTC()
	pass.VerifiedAt = nullTimePtr(verifiedAt)
	pass.VerifiedBy = nullStringPtr(verifiedBy)
	pass.CancelledAt = nullTimePtr(cancelledAt)
	pass.CancelledBy = nullStringPtr(cancelledBy)
	return pass, nil
}

func passAudit(pass models.VisitorPass, eventType, actorID string, at time.Time) auditRecord {
	return auditRecord{
		BuildingID: pass.BuildingID,
		EntityType: store.EntityPass,
		EntityID:   pass.PassID,
		Type:       eventType,
		ActorID:    actorID,
		Payload: map[string]interface{}{
			"pass_id":      pass.PassID,
			"building_id":  pass.BuildingID,
			"apartment_id": pass.ApartmentID,
			"code":         pass.Code,
			"status":       pass.Status,
			"expires_at":   pass.ExpiresAt,
			"actor_id":     actorID,
		},
		OccurredAt: at,
	}
}

func (s *Store) InsertPass(ctx context.Context, input store.IssuePassInput) (models.VisitorPass, error) {
	if input.PassID == "" {
		input.PassID = uuid.NewString()
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var pass models.VisitorPass
	err := withTx(ctx, s.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		var err error
		pass, err = scanPass(tx.QueryRow(ctx, `
			INSERT INTO visitor_passes (
				pass_id, building_id, apartment_id, code, visitor_name, status, created_by, created_at, expires_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING `+passColumns,
			input.PassID, input.BuildingID, nullIfEmpty(input.ApartmentID), input.Code, nullIfEmpty(input.VisitorName),
			models.PassActive, input.ActorID, createdAt.UTC(), input.ExpiresAt.UTC()))
		if err != nil {
			return err
		}
		return insertAuditEvent(ctx, tx, passAudit(pass, "pass.issued", input.ActorID, createdAt))
	})
	if err != nil {
		if isUniqueViolation(err, passCodeConstraint) {
			return models.VisitorPass{}, store.ErrCodeTaken
		}
		if isForeignKeyViolation(err) {
			return models.VisitorPass{}, store.Validation("unknown building %s", input.BuildingID)
		}
		return models.VisitorPass{}, classify(err)
	}
	return pass, nil
}

func getPass(ctx context.Context, q querier, passID string) (models.VisitorPass, error) {
	pass, err := scanPass(q.QueryRow(ctx, `
		SELECT `+passColumns+`
		FROM visitor_passes
		WHERE pass_id = $1
	`, passID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.VisitorPass{}, store.ErrPassNotFound
		}
		return models.VisitorPass{}, err
	}
	return pass, nil
}

// expirePass is the guarded write shared by every path that notices a
// lapsed pass.
func expirePass(ctx context.Context, tx pgx.Tx, passID string, now time.Time) (models.VisitorPass, error) {
	return scanPass(tx.QueryRow(ctx, `
		UPDATE visitor_passes
		SET status = 'expired'
		WHERE pass_id = $1 AND status = 'active' AND expires_at < $2
		RETURNING `+passColumns,
		passID, now.UTC()))
}

// GetPass reads a pass and persists its expiry when it has lapsed by now.
func (s *Store) GetPass(ctx context.Context, passID string, now time.Time) (models.VisitorPass, error) {
	pass, _, err := run(ctx, s.pool, transition[models.VisitorPass]{
		load: func(ctx context.Context, tx pgx.Tx) (models.VisitorPass, error) {
			return getPass(ctx, tx, passID)
		},
		decide: func(current models.VisitorPass) (bool, error) {
			return store.IsExpired(current, now), nil
		},
		apply: func(ctx context.Context, tx pgx.Tx, current models.VisitorPass) (models.VisitorPass, error) {
			return expirePass(ctx, tx, current.PassID, now)
		},
		audit: func(next models.VisitorPass) auditRecord {
			return passAudit(next, "pass.expired", "", now)
		},
	})
	return pass, err
}

func (s *Store) ListPasses(ctx context.Context, filter store.PassFilter) ([]models.VisitorPass, error) {
	query := `
		SELECT ` + passColumns + `
		FROM visitor_passes
		WHERE building_id = $1
	`
	args := []interface{}{filter.BuildingID}
	if filter.ApartmentID != "" {
		args = append(args, filter.ApartmentID)
		query += fmt.Sprintf(" AND apartment_id = $%d", len(args))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		query += fmt.Sprintf(" AND created_by = $%d", len(args))
	}
	switch filter.Status {
	case "":
	case models.PassActive:
		args = append(args, filter.Now.UTC())
		query += fmt.Sprintf(" AND status = 'active' AND expires_at >= $%d", len(args))
	case models.PassExpired:
		args = append(args, filter.Now.UTC())
		query += fmt.Sprintf(" AND (status = 'expired' OR (status = 'active' AND expires_at < $%d))", len(args))
	default:
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, normalizeLimit(filter.Limit))
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var passes []models.VisitorPass
	for rows.Next() {
		pass, err := scanPass(rows)
		if err != nil {
			return nil, classify(err)
		}
		passes = append(passes, pass)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return passes, nil
}

// VerifyPass presents a code at the gate of input.BuildingID. Exactly one of
// any number of concurrent callers moves an active pass to verified; the rest
// read the winner's row and are told it was already verified.
func (s *Store) VerifyPass(ctx context.Context, input store.VerifyPassInput) (models.Verification, error) {
	now := input.Now.UTC()
	pass, applied, err := run(ctx, s.pool, transition[models.VisitorPass]{
		load: func(ctx context.Context, tx pgx.Tx) (models.VisitorPass, error) {
			pass, err := scanPass(tx.QueryRow(ctx, `
				SELECT `+passColumns+`
				FROM visitor_passes
				WHERE building_id = $1 AND code = upper($2)
			`, input.BuildingID, input.Code))
			if errors.Is(err, pgx.ErrNoRows) {
				return models.VisitorPass{}, store.ErrPassNotFound
			}
			return pass, err
		},
		decide: func(current models.VisitorPass) (bool, error) {
			target, _ := store.PlanVerification(current, now)
			return target != "", nil
		},
		apply: func(ctx context.Context, tx pgx.Tx, current models.VisitorPass) (models.VisitorPass, error) {
			target, _ := store.PlanVerification(current, now)
			if target == models.PassExpired {
				return expirePass(ctx, tx, current.PassID, now)
			}
			return scanPass(tx.QueryRow(ctx, `
				UPDATE visitor_passes
				SET status = 'verified', verified_at = $2, verified_by = $3
				WHERE pass_id = $1 AND status = 'active' AND expires_at >= $2
				RETURNING `+passColumns,
				current.PassID, now, input.VerifierID))
		},
		audit: func(next models.VisitorPass) auditRecord {
			if next.Status == models.PassExpired {
				return passAudit(next, "pass.expired", input.VerifierID, now)
			}
			return passAudit(next, "pass.verified", input.VerifierID, now)
		},
	})
	if err != nil {
		return models.Verification{}, err
	}
	if applied && pass.Status == models.PassVerified {
		return models.Verification{
			Valid:      true,
			Message:    models.VerifyMessageVerified,
			VerifiedBy: pass.VerifiedBy,
			VerifiedAt: pass.VerifiedAt,
			Pass:       pass,
		}, nil
	}
	_, verification := store.PlanVerification(pass, now)
	return verification, nil
}

func (s *Store) CancelPass(ctx context.Context, input store.PassActionInput) (models.VisitorPass, error) {
	now := input.Now.UTC()
	pass, _, err := run(ctx, s.pool, transition[models.VisitorPass]{
		load: func(ctx context.Context, tx pgx.Tx) (models.VisitorPass, error) {
			return getPass(ctx, tx, input.PassID)
		},
		decide: func(current models.VisitorPass) (bool, error) {
			if store.EffectiveStatus(current, now) != models.PassActive {
				return false, store.ErrPassNotActive
			}
			return true, nil
		},
		apply: func(ctx context.Context, tx pgx.Tx, current models.VisitorPass) (models.VisitorPass, error) {
			return scanPass(tx.QueryRow(ctx, `
				UPDATE visitor_passes
				SET status = 'cancelled', cancelled_at = $2, cancelled_by = $3
				WHERE pass_id = $1 AND status = 'active' AND expires_at >= $2
				RETURNING `+passColumns,
				current.PassID, now, input.ActorID))
		},
		audit: func(next models.VisitorPass) auditRecord {
			return passAudit(next, "pass.cancelled", input.ActorID, now)
		},
	})
	return pass, err
}

// ExpirePasses persists the expiry of up to batchSize lapsed passes. Rows held
// by a concurrent verification or cancellation are skipped and picked up by a
// later sweep if they are still active.
func (s *Store) ExpirePasses(ctx context.Context, now time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultListLimit
	}
	expired := 0
	err := withTx(ctx, s.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			WITH due AS (
				SELECT pass_id
				FROM visitor_passes
				WHERE status = 'active' AND expires_at < $1
				ORDER BY expires_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			UPDATE visitor_passes p
			SET status = 'expired'
			FROM due
			WHERE p.pass_id = due.pass_id
			RETURNING `+prefixColumns("p", passColumns),
			now.UTC(), batchSize)
		if err != nil {
			return err
		}
		var passes []models.VisitorPass
		for rows.Next() {
			pass, err := scanPass(rows)
			if err != nil {
				rows.Close()
				return err
			}
			passes = append(passes, pass)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, pass := range passes {
			if err := insertAuditEvent(ctx, tx, passAudit(pass, "pass.expired", "", now)); err != nil {
				return err
			}
		}
		expired = len(passes)
		return nil
	})
	if err != nil {
		return 0, classify(err)
	}
	if expired > 0 {
		s.logger.Info("passes expired", "count", expired)
	}
	return expired, nil
}
