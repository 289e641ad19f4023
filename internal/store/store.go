package store

import (
	"context"
	"encoding/json"
	"time"

	"estate/amenity-service/internal/models"
)

type UpdateAmenityInput struct {
	AmenityID string
	Name      *string
	Active    *bool
	Slots     []models.SlotDefinition
	ActorID   string
	UpdatedAt time.Time
}

type CreateBookingInput struct {
	BookingID   string
	BuildingID  string
	ApartmentID string
	AmenityID   string
	Date        string
	SlotName    string
	Purpose     string
	ActorID     string
	CreatedAt   time.Time
}

type BookingActionInput struct {
	BookingID  string
	ActorID    string
	Reason     string
	OccurredAt time.Time
}

type BookingFilter struct {
	BuildingID string
	CreatedBy  string
	AmenityID  string
	Date       string
	Status     string
	Limit      int
}

// SlotCount is the number of non-terminal bookings for one date and slot.
type SlotCount struct {
	Date     string
	SlotName string
	Count    int
}

type IssuePassInput struct {
	PassID      string
	BuildingID  string
	ApartmentID string
	Code        string
	VisitorName string
	ActorID     string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

type VerifyPassInput struct {
	BuildingID string
	Code       string
	VerifierID string
	Now        time.Time
}

type PassActionInput struct {
	PassID  string
	ActorID string
	Now     time.Time
}

// PassFilter selects passes. Status matches the effective status at Now, so
// an active pass past its expiry is listed as expired.
type PassFilter struct {
	BuildingID  string
	ApartmentID string
	CreatedBy   string
	Status      string
	Now         time.Time
	Limit       int
}

type AmenityStore interface {
	CreateAmenity(ctx context.Context, amenity models.Amenity) (models.Amenity, error)
	UpsertAmenity(ctx context.Context, amenity models.Amenity) (models.Amenity, error)
	UpdateAmenity(ctx context.Context, input UpdateAmenityInput) (models.Amenity, error)
	GetAmenity(ctx context.Context, amenityID string) (models.Amenity, error)
	ListAmenities(ctx context.Context, buildingID string, activeOnly bool) ([]models.Amenity, error)
}

type BookingStore interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (models.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (models.Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]models.Booking, error)
	ApproveBooking(ctx context.Context, input BookingActionInput) (models.Booking, error)
	RejectBooking(ctx context.Context, input BookingActionInput) (models.Booking, error)
	CancelBooking(ctx context.Context, input BookingActionInput) (models.Booking, error)
	CountSlotBookings(ctx context.Context, amenityID, buildingID, fromDate, toDate string) ([]SlotCount, error)
}

type PassStore interface {
	InsertPass(ctx context.Context, input IssuePassInput) (models.VisitorPass, error)
	GetPass(ctx context.Context, passID string, now time.Time) (models.VisitorPass, error)
	ListPasses(ctx context.Context, filter PassFilter) ([]models.VisitorPass, error)
	VerifyPass(ctx context.Context, input VerifyPassInput) (models.Verification, error)
	CancelPass(ctx context.Context, input PassActionInput) (models.VisitorPass, error)
	ExpirePasses(ctx context.Context, now time.Time, batchSize int) (int, error)
}

type AuditStore interface {
	ListAuditEvents(ctx context.Context, entityType, entityID string) ([]AuditEvent, error)
	ListUnpublishedEvents(ctx context.Context, limit int) ([]AuditEvent, error)
	MarkEventsPublished(ctx context.Context, eventIDs []string, publishedAt time.Time) error
}

type Store interface {
	AmenityStore
	BookingStore
	PassStore
	AuditStore
}

const (
	EntityBooking = "booking"
	EntityPass    = "pass"
	EntityAmenity = "amenity"
)

type AuditEvent struct {
	EventID     string          `json:"event_id"`
	BuildingID  string          `json:"building_id"`
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	EntitySeq   int             `json:"entity_seq"`
	Type        string          `json:"type"`
	ActorID     string          `json:"actor_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	PrevHash    string          `json:"prev_hash"`
	Hash        string          `json:"hash"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}
