package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"estate/amenity-service/internal/models"
	"estate/amenity-service/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type IssuePassInput struct {
	BuildingID  string
	ApartmentID string
	VisitorName string
	Code        string
	ExpiresAt   string
}

type VerifyPassInput struct {
	BuildingID string
	Code       string
}

type PassFilter struct {
	ApartmentID string
	Status      string
	Limit       int
}

const maxVisitorNameLength = 200

var expiryLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"}

// resolveExpiry parses a caller supplied expiry. Anything unparseable or not
// after issuedAt falls back to the default validity window.
func (e *Engine) resolveExpiry(raw string, issuedAt time.Time) time.Time {
	fallback := issuedAt.Add(e.passValidity)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	for _, layout := range expiryLayouts {
		expiresAt, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if !expiresAt.After(issuedAt) {
			return fallback
		}
		return expiresAt.UTC()
	}
	return fallback
}

// IssuePass mints an active pass. A generated code that collides with an
// existing one is regenerated; an explicit code that collides is refused.
func (e *Engine) IssuePass(ctx context.Context, caller models.Caller, input IssuePassInput) (pass models.VisitorPass, err error) {
	ctx, span := e.startSpan(ctx, "IssuePass")
	defer func() { endSpan(span, err) }()

	if err := authorize(caller, actionIssuePass); err != nil {
		return models.VisitorPass{}, err
	}
	buildingID, err := callerBuilding(caller, strings.TrimSpace(input.BuildingID))
	if err != nil {
		return models.VisitorPass{}, err
	}
	apartmentID := strings.TrimSpace(input.ApartmentID)
	if caller.Role == models.RoleResident {
		if apartmentID != "" && apartmentID != caller.ApartmentID {
			return models.VisitorPass{}, fmt.Errorf("%w: residents issue passes for their own apartment", store.ErrForbidden)
		}
		apartmentID = caller.ApartmentID
	}
	visitorName := strings.TrimSpace(input.VisitorName)
	if utf8.RuneCountInString(visitorName) > maxVisitorNameLength {
		return models.VisitorPass{}, store.Validation("visitor_name must be at most %d characters", maxVisitorNameLength)
	}
	explicit := strings.TrimSpace(input.Code) != ""
	code := ""
	if explicit {
		if code, err = validateExplicitCode(input.Code); err != nil {
			return models.VisitorPass{}, err
		}
	}

	issuedAt := e.clock.Now()
	expiresAt := e.resolveExpiry(input.ExpiresAt, issuedAt)

	for attempt := 1; ; attempt++ {
		if !explicit {
			if code, err = e.generateCode(); err != nil {
				return models.VisitorPass{}, err
			}
		}
		pass, err = e.store.InsertPass(ctx, store.IssuePassInput{
			PassID:      uuid.NewString(),
			BuildingID:  buildingID,
			ApartmentID: apartmentID,
			Code:        code,
			VisitorName: visitorName,
			ActorID:     caller.UserID,
			CreatedAt:   issuedAt,
			ExpiresAt:   expiresAt,
		})
		if err == nil {
			break
		}
		if explicit || !errors.Is(err, store.ErrCodeTaken) || attempt >= codeAttempts {
			return models.VisitorPass{}, err
		}
		e.logger.Warn("pass code collision", "attempt", attempt)
	}
	e.logger.Info("pass issued", "pass_id", pass.PassID, "building_id", buildingID, "expires_at", pass.ExpiresAt, "actor_id", caller.UserID)
	return pass, nil
}

// VerifyPass presents a code at a building's gate. Expired, cancelled and
// already verified passes are described in the result, not reported as
// errors.
func (e *Engine) VerifyPass(ctx context.Context, caller models.Caller, input VerifyPassInput) (result models.Verification, err error) {
	ctx, span := e.startSpan(ctx, "VerifyPass")
	defer func() { endSpan(span, err) }()

	if err := authorize(caller, actionVerifyPass); err != nil {
		return models.Verification{}, err
	}
	buildingID, err := callerBuilding(caller, strings.TrimSpace(input.BuildingID))
	if err != nil {
		return models.Verification{}, err
	}
	code := NormalizePassCode(input.Code)
	if code == "" {
		return models.Verification{}, store.Validation("code is required")
	}

	result, err = e.store.VerifyPass(ctx, store.VerifyPassInput{
		BuildingID: buildingID,
		Code:       code,
		VerifierID: caller.UserID,
		Now:        e.clock.Now(),
	})
	if err != nil {
		return models.Verification{}, err
	}
	span.SetAttributes(attribute.String("pass_id", result.Pass.PassID), attribute.String("outcome", result.Message))
	e.logger.Info("pass presented", "pass_id", result.Pass.PassID, "valid", result.Valid, "message", result.Message, "actor_id", caller.UserID)
	return result, nil
}

// CancelPass is open to the pass's issuer and to admins of its building.
func (e *Engine) CancelPass(ctx context.Context, caller models.Caller, passID string) (pass models.VisitorPass, err error) {
	ctx, span := e.startSpan(ctx, "CancelPass", attribute.String("pass_id", passID))
	defer func() { endSpan(span, err) }()

	if _, err := e.scopedPass(ctx, caller, actionCancelPass, passID); err != nil {
		return models.VisitorPass{}, err
	}
	pass, err = e.store.CancelPass(ctx, store.PassActionInput{
		PassID:  passID,
		ActorID: caller.UserID,
		Now:     e.clock.Now(),
	})
	if err != nil {
		return models.VisitorPass{}, err
	}
	e.logger.Info("pass cancelled", "pass_id", passID, "actor_id", caller.UserID)
	return pass, nil
}

func (e *Engine) GetPass(ctx context.Context, caller models.Caller, passID string) (models.VisitorPass, error) {
	return e.scopedPass(ctx, caller, actionReadPasses, passID)
}

// ListPasses lists passes in the caller's building with their effective
// status. Residents only see the passes they issued.
func (e *Engine) ListPasses(ctx context.Context, caller models.Caller, buildingID string, filter PassFilter) ([]models.VisitorPass, error) {
	if err := authorize(caller, actionReadPasses); err != nil {
		return nil, err
	}
	buildingID, err := callerBuilding(caller, buildingID)
	if err != nil {
		return nil, err
	}
	switch filter.Status {
	case "", models.PassActive, models.PassVerified, models.PassCancelled, models.PassExpired:
	default:
		return nil, store.Validation("unknown status %q", filter.Status)
	}

	now := e.clock.Now()
	query := store.PassFilter{
		BuildingID:  buildingID,
		ApartmentID: strings.TrimSpace(filter.ApartmentID),
		Status:      filter.Status,
		Now:         now,
		Limit:       filter.Limit,
	}
	if caller.Role == models.RoleResident {
		query.CreatedBy = caller.UserID
	}
	passes, err := e.store.ListPasses(ctx, query)
	if err != nil {
		return nil, err
	}
	for i := range passes {
		passes[i].Status = store.EffectiveStatus(passes[i], now)
	}
	return passes, nil
}

// scopedPass authorizes act, loads the pass and checks the caller may touch
// it. The returned pass carries its effective status.
func (e *Engine) scopedPass(ctx context.Context, caller models.Caller, act action, passID string) (models.VisitorPass, error) {
	if err := authorize(caller, act); err != nil {
		return models.VisitorPass{}, err
	}
	if err := requireUUID("pass_id", passID); err != nil {
		return models.VisitorPass{}, err
	}
	now := e.clock.Now()
	pass, err := e.store.GetPass(ctx, passID, now)
	if err != nil {
		return models.VisitorPass{}, err
	}
	if err := inBuilding(caller, pass.BuildingID); err != nil {
		return models.VisitorPass{}, err
	}
	if caller.Role == models.RoleResident && pass.CreatedBy != caller.UserID {
		return models.VisitorPass{}, fmt.Errorf("%w: pass belongs to another resident", store.ErrForbidden)
	}
	pass.Status = store.EffectiveStatus(pass, now)
	return pass, nil
}

// SweepExpiredPasses persists the expiry of passes that lapsed without being
// presented.
func (e *Engine) SweepExpiredPasses(ctx context.Context) (expired int, err error) {
	ctx, span := e.startSpan(ctx, "SweepExpiredPasses")
	defer func() { endSpan(span, err) }()

	expired, err = e.store.ExpirePasses(ctx, e.clock.Now(), e.sweepBatch)
	span.SetAttributes(attribute.Int("expired", expired))
	return expired, err
}
