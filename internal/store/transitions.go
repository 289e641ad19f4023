package store

import (
	"time"

	"estate/amenity-service/internal/models"
)

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionCancel  = "cancel"
	ActionVerify  = "verify"
	ActionExpire  = "expire"
)

var bookingTransitions = map[string][]string{
	ActionApprove: {models.BookingPending},
	ActionReject:  {models.BookingPending},
	ActionCancel:  {models.BookingPending, models.BookingApproved},
}

var passTransitions = map[string][]string{
	ActionVerify: {models.PassActive},
	ActionExpire: {models.PassActive},
	ActionCancel: {models.PassActive},
}

func ValidBookingTransition(action, fromStatus string) bool {
	return allowed(bookingTransitions, action, fromStatus)
}

func ValidPassTransition(action, fromStatus string) bool {
	return allowed(passTransitions, action, fromStatus)
}

// BookingTransitionError returns nil when action may run on a booking in
// fromStatus, otherwise the conflict the caller should see.
func BookingTransitionError(action, fromStatus string) error {
	if ValidBookingTransition(action, fromStatus) {
		return nil
	}
	switch {
	case action == ActionCancel && fromStatus == models.BookingCancelled:
		return ErrAlreadyCancelled
	case action == ActionApprove || action == ActionReject:
		return ErrNotPending
	default:
		return ErrInvalidState
	}
}

func allowed(table map[string][]string, action, fromStatus string) bool {
	statuses, ok := table[action]
	if !ok {
		return false
	}
	for _, status := range statuses {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// IsExpired is the single expiry rule: a pass still marked active is expired
// once now is strictly after its expiry instant.
func IsExpired(pass models.VisitorPass, now time.Time) bool {
	return pass.Status == models.PassActive && now.After(pass.ExpiresAt)
}

// EffectiveStatus is the status a reader should see at now.
func EffectiveStatus(pass models.VisitorPass, now time.Time) string {
	if IsExpired(pass, now) {
		return models.PassExpired
	}
	return pass.Status
}

// PlanVerification decides what presenting pass at now does. target is the
// status to move the pass to, empty when no mutation is needed. For a
// successful verification the caller fills VerifiedBy/VerifiedAt after the
// transition commits.
func PlanVerification(pass models.VisitorPass, now time.Time) (string, models.Verification) {
	result := models.Verification{Pass: pass}
	if IsExpired(pass, now) {
		result.Message = models.VerifyMessageExpired
		return models.PassExpired, result
	}
	switch pass.Status {
	case models.PassCancelled:
		result.Message = models.VerifyMessageCancelled
		return "", result
	case models.PassVerified:
		result.Valid = true
		result.Message = models.VerifyMessageAlreadyVerified
		result.VerifiedBy = pass.VerifiedBy
		result.VerifiedAt = pass.VerifiedAt
		return "", result
	case models.PassExpired:
		result.Message = models.VerifyMessageExpired
		return "", result
	default:
		result.Valid = true
		result.Message = models.VerifyMessageVerified
		return models.PassVerified, result
	}
}
