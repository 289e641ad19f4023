package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"estate/amenity-service/internal/models"
	"estate/amenity-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const bookingColumns = `booking_id, building_id, apartment_id, amenity_id, to_char(booking_date, 'YYYY-MM-DD'), slot_name, purpose, status,
	created_by, approved_by, approved_at, rejected_by, rejection_reason, cancelled_by, cancelled_at, created_at, updated_at`

func scanBooking(row pgx.Row) (models.Booking, error) {
	var booking models.Booking
	var apartmentID, purpose, approvedBy, rejectedBy, rejectionReason, cancelledBy sql.NullString
	var approvedAt, cancelledAt sql.NullTime
	if err := row.Scan(
		&booking.BookingID, &booking.BuildingID, &apartmentID, &booking.AmenityID, &booking.Date, &booking.SlotName, &purpose, &booking.Status,
		&booking.CreatedBy, &approvedBy, &approvedAt, &rejectedBy, &rejectionReason, &cancelledBy, &cancelledAt, &booking.CreatedAt, &booking.UpdatedAt,
	); err != nil {
		return models.Booking{}, err
	}
	booking.ApartmentID = nullString(apartmentID)
	booking.Purpose = nullString(purpose)
	booking.ApprovedBy = nullStringPtr(approvedBy)
	booking.ApprovedAt = nullTimePtr(approvedAt)
	booking.RejectedBy = nullStringPtr(rejectedBy)
	booking.RejectionReason = nullStringPtr(rejectionReason)
	booking.CancelledBy = nullStringPtr(cancelledBy)
	booking.CancelledAt = nullTimePtr(cancelledAt)
	booking.CreatedAt = booking.CreatedAt.UTC()
	booking.UpdatedAt = booking.UpdatedAt.UTC()
	return booking, nil
}

// admission is the state a new booking is admitted against.
type admission struct {
	amenity   models.Amenity
	slot      models.SlotDefinition
	slotFound bool
	booked    int
	duplicate bool
	booking   models.Booking
}

func (s *Store) CreateBooking(ctx context.Context, input store.CreateBookingInput) (models.Booking, error) {
	date, err := parseDate(input.Date)
	if err != nil {
		return models.Booking{}, err
	}
	if input.BookingID == "" {
		input.BookingID = uuid.NewString()
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, _, err := run(ctx, s.pool, transition[admission]{
		load: func(ctx context.Context, tx pgx.Tx) (admission, error) {
			return loadAdmission(ctx, tx, input, date)
		},
		decide: func(current admission) (bool, error) {
			if !current.amenity.Active {
				return false, store.ErrAmenityInactive
			}
			if !current.slotFound {
				return false, store.ErrSlotNotFound
			}
			if store.RemainingCapacity(current.slot.MaxPerDay, current.booked) <= 0 {
				return false, store.ErrSlotFull
			}
			if current.duplicate {
				return false, store.ErrDuplicateBooking
			}
			return true, nil
		},
		apply: func(ctx context.Context, tx pgx.Tx, current admission) (admission, error) {
			booking, err := scanBooking(tx.QueryRow(ctx, `
				INSERT INTO bookings (
					booking_id, building_id, apartment_id, amenity_id, booking_date, slot_name, purpose,
					status, created_by, created_at, updated_at
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
				ON CONFLICT (created_by, amenity_id, booking_date) WHERE status IN ('pending', 'approved') DO NOTHING
				RETURNING `+bookingColumns,
				input.BookingID, input.BuildingID, nullIfEmpty(input.ApartmentID), input.AmenityID, date, current.slot.Name,
				nullIfEmpty(input.Purpose), models.BookingPending, input.ActorID, createdAt))
			if err != nil {
				return admission{}, err
			}
			current.booking = booking
			return current, nil
		},
		audit: func(next admission) auditRecord {
			return auditRecord{
				BuildingID: next.booking.BuildingID,
				EntityType: store.EntityBooking,
				EntityID:   next.booking.BookingID,
				Type:       "booking.created",
				ActorID:    input.ActorID,
				Payload: map[string]interface{}{
					"booking_id":   next.booking.BookingID,
					"amenity_id":   next.booking.AmenityID,
					"building_id":  next.booking.BuildingID,
					"apartment_id": next.booking.ApartmentID,
					"date":         next.booking.Date,
					"slot_name":    next.booking.SlotName,
					"status":       next.booking.Status,
					"actor_id":     input.ActorID,
				},
				OccurredAt: createdAt,
			}
		},
	})
	if err != nil {
		return models.Booking{}, err
	}
	if result.booking.BookingID == "" {
		// Lost the insert to a concurrent booking by the same user.
		return models.Booking{}, store.ErrDuplicateBooking
	}
	return result.booking, nil
}

// loadAdmission serializes admissions first per (user, amenity, date) and then
// per (amenity, building, date, slot). The lock order is fixed so two
// admissions can never wait on each other in a cycle. Counts are read after
// both locks are held, so under READ COMMITTED they include every booking
// committed by an earlier holder.
func loadAdmission(ctx context.Context, tx pgx.Tx, input store.CreateBookingInput, date time.Time) (admission, error) {
	var state admission
	amenity, err := getAmenity(ctx, tx, input.AmenityID)
	if err != nil {
		return admission{}, err
	}
	if amenity.BuildingID != input.BuildingID {
		return admission{}, store.ErrAmenityNotFound
	}
	state.amenity = amenity
	state.slot, state.slotFound = amenity.Slot(input.SlotName)

	if err := lockKey(ctx, tx, fmt.Sprintf("booking-user|%s|%s|%s", input.ActorID, input.AmenityID, input.Date)); err != nil {
		return admission{}, err
	}
	if !state.slotFound {
		return state, nil
	}
	if err := lockKey(ctx, tx, fmt.Sprintf("booking-slot|%s|%s|%s|%s", input.AmenityID, input.BuildingID, input.Date, strings.ToLower(state.slot.Name))); err != nil {
		return admission{}, err
	}

	row := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM bookings
		WHERE amenity_id = $1 AND building_id = $2 AND booking_date = $3 AND lower(slot_name) = lower($4)
			AND status IN ('pending', 'approved')
	`, input.AmenityID, input.BuildingID, date, state.slot.Name)
	if err := row.Scan(&state.booked); err != nil {
		return admission{}, err
	}

	row = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE created_by = $1 AND amenity_id = $2 AND booking_date = $3
				AND status IN ('pending', 'approved')
		)
	`, input.ActorID, input.AmenityID, date)
	if err := row.Scan(&state.duplicate); err != nil {
		return admission{}, err
	}
	return state, nil
}

func (s *Store) GetBooking(ctx context.Context, bookingID string) (models.Booking, error) {
	booking, err := getBooking(ctx, s.pool, bookingID)
	if err != nil {
		return models.Booking{}, classify(err)
	}
	return booking, nil
}

func getBooking(ctx context.Context, q querier, bookingID string) (models.Booking, error) {
	booking, err := scanBooking(q.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE booking_id = $1
	`, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Booking{}, store.ErrBookingNotFound
		}
		return models.Booking{}, err
	}
	return booking, nil
}

func (s *Store) ListBookings(ctx context.Context, filter store.BookingFilter) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE building_id = $1
	`
	args := []interface{}{filter.BuildingID}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		query += fmt.Sprintf(" AND created_by = $%d", len(args))
	}
	if filter.AmenityID != "" {
		args = append(args, filter.AmenityID)
		query += fmt.Sprintf(" AND amenity_id = $%d", len(args))
	}
	if filter.Date != "" {
		date, err := parseDate(filter.Date)
		if err != nil {
			return nil, err
		}
		args = append(args, date)
		query += fmt.Sprintf(" AND booking_date = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, normalizeLimit(filter.Limit))
	query += fmt.Sprintf(" ORDER BY booking_date DESC, created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, classify(err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return bookings, nil
}

func (s *Store) ApproveBooking(ctx context.Context, input store.BookingActionInput) (models.Booking, error) {
	return s.transitionBooking(ctx, input, store.ActionApprove, "booking.approved", `
		UPDATE bookings
		SET status = 'approved', approved_by = $2, approved_at = $3, updated_at = $3
		WHERE booking_id = $1 AND status = 'pending'
		RETURNING `+bookingColumns)
}

func (s *Store) RejectBooking(ctx context.Context, input store.BookingActionInput) (models.Booking, error) {
	return s.transitionBooking(ctx, input, store.ActionReject, "booking.rejected", `
		UPDATE bookings
		SET status = 'rejected', rejected_by = $2, rejection_reason = $4, updated_at = $3
		WHERE booking_id = $1 AND status = 'pending'
		RETURNING `+bookingColumns)
}

func (s *Store) CancelBooking(ctx context.Context, input store.BookingActionInput) (models.Booking, error) {
	return s.transitionBooking(ctx, input, store.ActionCancel, "booking.cancelled", `
		UPDATE bookings
		SET status = 'cancelled', cancelled_by = $2, cancelled_at = $3, updated_at = $3
		WHERE booking_id = $1 AND status IN ('pending', 'approved')
		RETURNING `+bookingColumns)
}

// transitionBooking runs a lifecycle action. update takes $1 booking id,
// $2 actor, $3 timestamp and optionally $4 reason; its WHERE clause must guard
// on the statuses the action is allowed from.
func (s *Store) transitionBooking(ctx context.Context, input store.BookingActionInput, action, eventType, update string) (models.Booking, error) {
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	args := []interface{}{input.BookingID, input.ActorID, occurredAt}
	if strings.Contains(update, "$4") {
		args = append(args, input.Reason)
	}

	booking, _, err := run(ctx, s.pool, transition[models.Booking]{
		load: func(ctx context.Context, tx pgx.Tx) (models.Booking, error) {
			return getBooking(ctx, tx, input.BookingID)
		},
		decide: func(current models.Booking) (bool, error) {
			if err := store.BookingTransitionError(action, current.Status); err != nil {
				return false, err
			}
			return true, nil
		},
		apply: func(ctx context.Context, tx pgx.Tx, _ models.Booking) (models.Booking, error) {
			return scanBooking(tx.QueryRow(ctx, update, args...))
		},
		audit: func(next models.Booking) auditRecord {
			payload := map[string]interface{}{
				"booking_id": next.BookingID,
				"amenity_id": next.AmenityID,
				"date":       next.Date,
				"slot_name":  next.SlotName,
				"status":     next.Status,
				"actor_id":   input.ActorID,
			}
			if input.Reason != "" {
				payload["reason"] = input.Reason
			}
			return auditRecord{
				BuildingID: next.BuildingID,
				EntityType: store.EntityBooking,
				EntityID:   next.BookingID,
				Type:       eventType,
				ActorID:    input.ActorID,
				Payload:    payload,
				OccurredAt: occurredAt,
			}
		},
	})
	if err != nil {
		return models.Booking{}, err
	}
	return booking, nil
}

func (s *Store) CountSlotBookings(ctx context.Context, amenityID, buildingID, fromDate, toDate string) ([]store.SlotCount, error) {
	from, err := parseDate(fromDate)
	if err != nil {
		return nil, err
	}
	to, err := parseDate(toDate)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT to_char(booking_date, 'YYYY-MM-DD'), lower(slot_name), COUNT(*)
		FROM bookings
		WHERE amenity_id = $1 AND building_id = $2 AND booking_date BETWEEN $3 AND $4
			AND status IN ('pending', 'approved')
		GROUP BY booking_date, lower(slot_name)
		ORDER BY booking_date, lower(slot_name)
	`, amenityID, buildingID, from, to)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var counts []store.SlotCount
	for rows.Next() {
		var count store.SlotCount
		if err := rows.Scan(&count.Date, &count.SlotName, &count.Count); err != nil {
			return nil, classify(err)
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return counts, nil
}
