package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"estate/amenity-service/internal/models"
	"estate/amenity-service/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type CreateBookingInput struct {
	AmenityID string
	Date      string
	SlotName  string
	Purpose   string
}

type BookingFilter struct {
	AmenityID string
	Date      string
	Status    string
	Limit     int
}

const maxPurposeLength = 500

// CreateBooking admits a resident's booking into a slot. Capacity and the
// one-open-booking-per-day rule are enforced by the store inside the same
// transaction as the insert.
func (e *Engine) CreateBooking(ctx context.Context, caller models.Caller, input CreateBookingInput) (booking models.Booking, err error) {
	ctx, span := e.startSpan(ctx, "CreateBooking",
		attribute.String("amenity_id", input.AmenityID),
		attribute.String("date", input.Date),
		attribute.String("slot", input.SlotName),
	)
	defer func() { endSpan(span, err) }()

	if err := authorize(caller, actionCreateBooking); err != nil {
		return models.Booking{}, err
	}
	if caller.BuildingID == "" {
		return models.Booking{}, fmt.Errorf("%w: caller has no building", store.ErrForbidden)
	}
	if err := requireUUID("amenity_id", input.AmenityID); err != nil {
		return models.Booking{}, err
	}
	slotName := strings.TrimSpace(input.SlotName)
	if slotName == "" {
		return models.Booking{}, store.Validation("slot_name is required")
	}
	date, err := time.Parse(models.DateLayout, strings.TrimSpace(input.Date))
	if err != nil {
		return models.Booking{}, store.Validation("date must be YYYY-MM-DD")
	}
	day := date.Format(models.DateLayout)
	if day < e.today() {
		return models.Booking{}, store.Validation("date must not be in the past")
	}
	purpose := strings.TrimSpace(input.Purpose)
	if utf8.RuneCountInString(purpose) > maxPurposeLength {
		return models.Booking{}, store.Validation("purpose must be at most %d characters", maxPurposeLength)
	}

	booking, err = e.store.CreateBooking(ctx, store.CreateBookingInput{
		BookingID:   uuid.NewString(),
		BuildingID:  caller.BuildingID,
		ApartmentID: caller.ApartmentID,
		AmenityID:   input.AmenityID,
		Date:        day,
		SlotName:    slotName,
		Purpose:     purpose,
		ActorID:     caller.UserID,
		CreatedAt:   e.clock.Now(),
	})
	if err != nil {
		e.logger.Info("booking refused", "amenity_id", input.AmenityID, "date", day, "slot", slotName, "actor_id", caller.UserID, "error", err)
		return models.Booking{}, err
	}
	e.logger.Info("booking created", "booking_id", booking.BookingID, "amenity_id", booking.AmenityID, "date", booking.Date, "slot", booking.SlotName, "actor_id", caller.UserID)
	return booking, nil
}

func (e *Engine) ApproveBooking(ctx context.Context, caller models.Caller, bookingID string) (booking models.Booking, err error) {
	ctx, span := e.startSpan(ctx, "ApproveBooking", attribute.String("booking_id", bookingID))
	defer func() { endSpan(span, err) }()

	if _, err := e.scopedBooking(ctx, caller, actionReviewBooking, bookingID); err != nil {
		return models.Booking{}, err
	}
	booking, err = e.store.ApproveBooking(ctx, store.BookingActionInput{
		BookingID:  bookingID,
		ActorID:    caller.UserID,
		OccurredAt: e.clock.Now(),
	})
	if err != nil {
		return models.Booking{}, err
	}
	e.logger.Info("booking approved", "booking_id", bookingID, "actor_id", caller.UserID)
	return booking, nil
}

func (e *Engine) RejectBooking(ctx context.Context, caller models.Caller, bookingID, reason string) (booking models.Booking, err error) {
	ctx, span := e.startSpan(ctx, "RejectBooking", attribute.String("booking_id", bookingID))
	defer func() { endSpan(span, err) }()

	if _, err := e.scopedBooking(ctx, caller, actionReviewBooking, bookingID); err != nil {
		return models.Booking{}, err
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < minReasonLength {
		return models.Booking{}, store.Validation("reason must be at least %d characters", minReasonLength)
	}
	booking, err = e.store.RejectBooking(ctx, store.BookingActionInput{
		BookingID:  bookingID,
		ActorID:    caller.UserID,
		Reason:     reason,
		OccurredAt: e.clock.Now(),
	})
	if err != nil {
		return models.Booking{}, err
	}
	e.logger.Info("booking rejected", "booking_id", bookingID, "actor_id", caller.UserID)
	return booking, nil
}

// CancelBooking is open to the booking's owner and to admins of its building.
func (e *Engine) CancelBooking(ctx context.Context, caller models.Caller, bookingID string) (booking models.Booking, err error) {
	ctx, span := e.startSpan(ctx, "CancelBooking", attribute.String("booking_id", bookingID))
	defer func() { endSpan(span, err) }()

	if _, err := e.scopedBooking(ctx, caller, actionCancelBooking, bookingID); err != nil {
		return models.Booking{}, err
	}
	booking, err = e.store.CancelBooking(ctx, store.BookingActionInput{
		BookingID:  bookingID,
		ActorID:    caller.UserID,
		OccurredAt: e.clock.Now(),
	})
	if err != nil {
		return models.Booking{}, err
	}
	e.logger.Info("booking cancelled", "booking_id", bookingID, "actor_id", caller.UserID)
	return booking, nil
}

func (e *Engine) GetBooking(ctx context.Context, caller models.Caller, bookingID string) (models.Booking, error) {
	return e.scopedBooking(ctx, caller, actionReadBookings, bookingID)
}

// ListBookings lists bookings in the caller's building. Residents only see
// their own.
func (e *Engine) ListBookings(ctx context.Context, caller models.Caller, buildingID string, filter BookingFilter) ([]models.Booking, error) {
	if err := authorize(caller, actionReadBookings); err != nil {
		return nil, err
	}
	buildingID, err := callerBuilding(caller, buildingID)
	if err != nil {
		return nil, err
	}
	if filter.AmenityID != "" && !isUUID(filter.AmenityID) {
		return nil, store.Validation("amenity_id must be a UUID")
	}
	if filter.Date != "" {
		if _, err := time.Parse(models.DateLayout, filter.Date); err != nil {
			return nil, store.Validation("date must be YYYY-MM-DD")
		}
	}
	switch filter.Status {
	case "", models.BookingPending, models.BookingApproved, models.BookingRejected, models.BookingCancelled:
	default:
		return nil, store.Validation("unknown status %q", filter.Status)
	}

	query := store.BookingFilter{
		BuildingID: buildingID,
		AmenityID:  filter.AmenityID,
		Date:       filter.Date,
		Status:     filter.Status,
		Limit:      filter.Limit,
	}
	if caller.Role == models.RoleResident {
		query.CreatedBy = caller.UserID
	}
	return e.store.ListBookings(ctx, query)
}

// scopedBooking authorizes act, loads the booking and checks the caller may
// touch it. Role failures are reported before the lookup.
func (e *Engine) scopedBooking(ctx context.Context, caller models.Caller, act action, bookingID string) (models.Booking, error) {
	if err := authorize(caller, act); err != nil {
		return models.Booking{}, err
	}
	if err := requireUUID("booking_id", bookingID); err != nil {
		return models.Booking{}, err
	}
	booking, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if err := inBuilding(caller, booking.BuildingID); err != nil {
		return models.Booking{}, err
	}
	if caller.Role == models.RoleResident && booking.CreatedBy != caller.UserID {
		return models.Booking{}, fmt.Errorf("%w: booking belongs to another resident", store.ErrForbidden)
	}
	return booking, nil
}

// ListAvailability reports capacity for every slot of amenityID on every day
// of the month.
func (e *Engine) ListAvailability(ctx context.Context, caller models.Caller, amenityID string, month, year int) (availability []models.SlotAvailability, err error) {
	ctx, span := e.startSpan(ctx, "ListAvailability", attribute.String("amenity_id", amenityID), attribute.Int("month", month), attribute.Int("year", year))
	defer func() { endSpan(span, err) }()

	if err := authorize(caller, actionReadAmenities); err != nil {
		return nil, err
	}
	if month < 1 || month > 12 {
		return nil, store.Validation("month must be between 1 and 12")
	}
	if year < 2000 || year > 9999 {
		return nil, store.Validation("year must be between 2000 and 9999")
	}
	if err := requireUUID("amenity_id", amenityID); err != nil {
		return nil, err
	}
	amenity, err := e.store.GetAmenity(ctx, amenityID)
	if err != nil {
		return nil, err
	}
	if err := inBuilding(caller, amenity.BuildingID); err != nil {
		return nil, err
	}

	first, last := monthRange(year, time.Month(month))
	counts, err := e.store.CountSlotBookings(ctx, amenity.AmenityID, amenity.BuildingID, first.Format(models.DateLayout), last.Format(models.DateLayout))
	if err != nil {
		return nil, err
	}
	return BuildAvailability(amenity, year, time.Month(month), counts), nil
}
