package models

import "time"

type Booking struct {
	BookingID       string     `json:"booking_id"`
	BuildingID      string     `json:"building_id"`
	ApartmentID     string     `json:"apartment_id,omitempty"`
	AmenityID       string     `json:"amenity_id"`
	Date            string     `json:"date"`
	SlotName        string     `json:"slot_name"`
	Purpose         string     `json:"purpose,omitempty"`
	Status          string     `json:"status"`
	CreatedBy       string     `json:"created_by"`
	ApprovedBy      *string    `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectedBy      *string    `json:"rejected_by,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	CancelledBy     *string    `json:"cancelled_by,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

const (
	BookingPending   = "pending"
	BookingApproved  = "approved"
	BookingRejected  = "rejected"
	BookingCancelled = "cancelled"
)

// DateLayout is the calendar date format used for booking dates.
const DateLayout = "2006-01-02"

// NonTerminal reports whether the booking still consumes slot capacity.
func (b Booking) NonTerminal() bool {
	return b.Status == BookingPending || b.Status == BookingApproved
}
