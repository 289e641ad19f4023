package models

import "time"

type VisitorPass struct {
	PassID      string     `json:"pass_id"`
	BuildingID  string     `json:"building_id"`
	ApartmentID string     `json:"apartment_id,omitempty"`
	Code        string     `json:"code"`
	VisitorName string     `json:"visitor_name,omitempty"`
	Status      string     `json:"status"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	VerifiedBy  *string    `json:"verified_by,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy *string    `json:"cancelled_by,omitempty"`
}

const (
	PassActive    = "active"
	PassVerified  = "verified"
	PassCancelled = "cancelled"
	PassExpired   = "expired"
)

// Verification is the answer given to a verifier. It describes the pass state;
// an invalid pass is still a successful verification call.
type Verification struct {
	Valid      bool        `json:"valid"`
	Message    string      `json:"message"`
	VerifiedBy *string     `json:"verified_by,omitempty"`
	VerifiedAt *time.Time  `json:"verified_at,omitempty"`
	Pass       VisitorPass `json:"pass"`
}

const (
	VerifyMessageVerified        = "verified"
	VerifyMessageAlreadyVerified = "already verified"
	VerifyMessageExpired         = "expired"
	VerifyMessageCancelled       = "cancelled"
)
