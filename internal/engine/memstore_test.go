package engine

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"estate/amenity-service/internal/models"
	"estate/amenity-service/internal/store"

	"github.com/google/uuid"
)

// memStore is an in-memory store.Store. Every method holds one lock for its
// whole read-check-write, which gives the same atomicity as a store
// transaction.
type memStore struct {
	mu        sync.Mutex
	amenities map[string]models.Amenity
	bookings  map[string]models.Booking
	passes    map[string]models.VisitorPass
	events    []store.AuditEvent

	// insertPassHook, when set, may fail an insert before it is applied.
	insertPassHook func(input store.IssuePassInput) error
}

var _ store.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		amenities: make(map[string]models.Amenity),
		bookings:  make(map[string]models.Booking),
		passes:    make(map[string]models.VisitorPass),
	}
}

func (m *memStore) audit(buildingID, entityType, entityID, eventType, actorID string, payload interface{}) {
	m.auditAt(time.Now(), buildingID, entityType, entityID, eventType, actorID, payload)
}

func (m *memStore) auditAt(at time.Time, buildingID, entityType, entityID, eventType, actorID string, payload interface{}) {
	raw, _ := json.Marshal(payload)
	seq, prev := 0, ""
	for _, event := range m.events {
		if event.EntityID == entityID {
			seq, prev = event.EntitySeq, event.Hash
		}
	}
	createdAt := at.UTC()
	m.events = append(m.events, store.AuditEvent{
		EventID:    uuid.NewString(),
		BuildingID: buildingID,
		EntityType: entityType,
		EntityID:   entityID,
		EntitySeq:  seq + 1,
		Type:       eventType,
		ActorID:    actorID,
		Payload:    raw,
		CreatedAt:  createdAt,
		PrevHash:   prev,
		Hash:       store.ComputeAuditHash(prev, entityID, eventType, raw, createdAt, seq+1),
	})
}

func (m *memStore) eventTypes(entityID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var types []string
	for _, event := range m.events {
		if event.EntityID == entityID {
			types = append(types, event.Type)
		}
	}
	return types
}

func (m *memStore) CreateAmenity(ctx context.Context, amenity models.Amenity) (models.Amenity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.amenities {
		if existing.BuildingID == amenity.BuildingID && existing.Name == amenity.Name {
			return models.Amenity{}, store.ErrAmenityExists
		}
	}
	if amenity.AmenityID == "" {
		amenity.AmenityID = uuid.NewString()
	}
	amenity.UpdatedAt = amenity.CreatedAt
	m.amenities[amenity.AmenityID] = amenity
	m.auditAt(amenity.CreatedAt, amenity.BuildingID, store.EntityAmenity, amenity.AmenityID, "amenity.created", "", amenity)
	return amenity, nil
}

func (m *memStore) UpsertAmenity(ctx context.Context, amenity models.Amenity) (models.Amenity, error) {
	m.mu.Lock()
	for id, existing := range m.amenities {
		if existing.BuildingID == amenity.BuildingID && existing.Name == amenity.Name {
			existing.Active = amenity.Active
			existing.Slots = amenity.Slots
			m.amenities[id] = existing
			m.mu.Unlock()
			return existing, nil
		}
	}
	m.mu.Unlock()
	return m.CreateAmenity(ctx, amenity)
}

func (m *memStore) UpdateAmenity(ctx context.Context, input store.UpdateAmenityInput) (models.Amenity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	amenity, ok := m.amenities[input.AmenityID]
	if !ok {
		return models.Amenity{}, store.ErrAmenityNotFound
	}
	if input.Name != nil {
		amenity.Name = *input.Name
	}
	if input.Active != nil {
		amenity.Active = *input.Active
	}
	if input.Slots != nil {
		amenity.Slots = input.Slots
	}
	amenity.UpdatedAt = input.UpdatedAt
	m.amenities[amenity.AmenityID] = amenity
	m.auditAt(input.UpdatedAt, amenity.BuildingID, store.EntityAmenity, amenity.AmenityID, "amenity.updated", input.ActorID, amenity)
	return amenity, nil
}

func (m *memStore) GetAmenity(ctx context.Context, amenityID string) (models.Amenity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	amenity, ok := m.amenities[amenityID]
	if !ok {
		return models.Amenity{}, store.ErrAmenityNotFound
	}
	return amenity, nil
}

func (m *memStore) ListAmenities(ctx context.Context, buildingID string, activeOnly bool) ([]models.Amenity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var amenities []models.Amenity
	for _, amenity := range m.amenities {
		if amenity.BuildingID == buildingID && (amenity.Active || !activeOnly) {
			amenities = append(amenities, amenity)
		}
	}
	sort.Slice(amenities, func(i, j int) bool { return amenities[i].Name < amenities[j].Name })
	return amenities, nil
}

func (m *memStore) CreateBooking(ctx context.Context, input store.CreateBookingInput) (models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	amenity, ok := m.amenities[input.AmenityID]
	if !ok || amenity.BuildingID != input.BuildingID {
		return models.Booking{}, store.ErrAmenityNotFound
	}
	if !amenity.Active {
		return models.Booking{}, store.ErrAmenityInactive
	}
	slot, ok := amenity.Slot(input.SlotName)
	if !ok {
		return models.Booking{}, store.ErrSlotNotFound
	}
	booked, duplicate := 0, false
	for _, booking := range m.bookings {
		if !booking.NonTerminal() || booking.AmenityID != input.AmenityID || booking.Date != input.Date {
			continue
		}
		if booking.BuildingID == input.BuildingID && strings.EqualFold(booking.SlotName, slot.Name) {
			booked++
		}
		if booking.CreatedBy == input.ActorID {
			duplicate = true
		}
	}
	if store.RemainingCapacity(slot.MaxPerDay, booked) <= 0 {
		return models.Booking{}, store.ErrSlotFull
	}
	if duplicate {
		return models.Booking{}, store.ErrDuplicateBooking
	}
	booking := models.Booking{
		BookingID:   input.BookingID,
		BuildingID:  input.BuildingID,
		ApartmentID: input.ApartmentID,
		AmenityID:   input.AmenityID,
		Date:        input.Date,
		SlotName:    slot.Name,
		Purpose:     input.Purpose,
		Status:      models.BookingPending,
		CreatedBy:   input.ActorID,
		CreatedAt:   input.CreatedAt,
		UpdatedAt:   input.CreatedAt,
	}
	m.bookings[booking.BookingID] = booking
	m.audit(booking.BuildingID, store.EntityBooking, booking.BookingID, "booking.created", input.ActorID, booking)
	return booking, nil
}

func (m *memStore) GetBooking(ctx context.Context, bookingID string) (models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.bookings[bookingID]
	if !ok {
		return models.Booking{}, store.ErrBookingNotFound
	}
	return booking, nil
}

func (m *memStore) ListBookings(ctx context.Context, filter store.BookingFilter) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var bookings []models.Booking
	for _, booking := range m.bookings {
		if booking.BuildingID != filter.BuildingID ||
			(filter.CreatedBy != "" && booking.CreatedBy != filter.CreatedBy) ||
			(filter.AmenityID != "" && booking.AmenityID != filter.AmenityID) ||
			(filter.Date != "" && booking.Date != filter.Date) ||
			(filter.Status != "" && booking.Status != filter.Status) {
			continue
		}
		bookings = append(bookings, booking)
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].CreatedAt.After(bookings[j].CreatedAt) })
	return bookings, nil
}

func (m *memStore) transitionBooking(input store.BookingActionInput, act, eventType string, mutate func(*models.Booking)) (models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.bookings[input.BookingID]
	if !ok {
		return models.Booking{}, store.ErrBookingNotFound
	}
	if err := store.BookingTransitionError(act, booking.Status); err != nil {
		return models.Booking{}, err
	}
	mutate(&booking)
	booking.UpdatedAt = input.OccurredAt
	m.bookings[booking.BookingID] = booking
	m.audit(booking.BuildingID, store.EntityBooking, booking.BookingID, eventType, input.ActorID, booking)
	return booking, nil
}

func (m *memStore) ApproveBooking(ctx context.Context, input store.BookingActionInput) (models.Booking, error) {
	return m.transitionBooking(input, store.ActionApprove, "booking.approved", func(b *models.Booking) {
		at := input.OccurredAt
		b.Status = models.BookingApproved
		b.ApprovedBy = &input.ActorID
		b.ApprovedAt = &at
	})
}

func (m *memStore) RejectBooking(ctx context.Context, input store.BookingActionInput) (models.Booking, error) {
	return m.transitionBooking(input, store.ActionReject, "booking.rejected", func(b *models.Booking) {
		reason := input.Reason
		b.Status = models.BookingRejected
		b.RejectedBy = &input.ActorID
		b.RejectionReason = &reason
	})
}

func (m *memStore) CancelBooking(ctx context.Context, input store.BookingActionInput) (models.Booking, error) {
	return m.transitionBooking(input, store.ActionCancel, "booking.cancelled", func(b *models.Booking) {
		at := input.OccurredAt
		b.Status = models.BookingCancelled
		b.CancelledBy = &input.ActorID
		b.CancelledAt = &at
	})
}

func (m *memStore) CountSlotBookings(ctx context.Context, amenityID, buildingID, fromDate, toDate string) ([]store.SlotCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[[2]string]int)
	for _, booking := range m.bookings {
		if !booking.NonTerminal() || booking.AmenityID != amenityID || booking.BuildingID != buildingID {
			continue
		}
		if booking.Date < fromDate || booking.Date > toDate {
			continue
		}
		counts[[2]string{booking.Date, strings.ToLower(booking.SlotName)}]++
	}
	var result []store.SlotCount
	for key, n := range counts {
		result = append(result, store.SlotCount{Date: key[0], SlotName: key[1], Count: n})
	}
	return result, nil
}

func (m *memStore) InsertPass(ctx context.Context, input store.IssuePassInput) (models.VisitorPass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertPassHook != nil {
		if err := m.insertPassHook(input); err != nil {
			return models.VisitorPass{}, err
		}
	}
	for _, pass := range m.passes {
		if pass.Code == input.Code {
			return models.VisitorPass{}, store.ErrCodeTaken
		}
	}
	pass := models.VisitorPass{
		PassID:      input.PassID,
		BuildingID:  input.BuildingID,
		ApartmentID: input.ApartmentID,
		Code:        input.Code,
		VisitorName: input.VisitorName,
		Status:      models.PassActive,
		CreatedBy:   input.ActorID,
		CreatedAt:   input.CreatedAt,
		ExpiresAt:   input.ExpiresAt,
	}
	m.passes[pass.PassID] = pass
	m.audit(pass.BuildingID, store.EntityPass, pass.PassID, "pass.issued", input.ActorID, pass)
	return pass, nil
}

// expireLocked persists a lazy expiry. m.mu must be held.
func (m *memStore) expireLocked(pass models.VisitorPass, now time.Time, actorID string) models.VisitorPass {
	if !store.IsExpired(pass, now) {
		return pass
	}
	pass.Status = models.PassExpired
	m.passes[pass.PassID] = pass
	m.audit(pass.BuildingID, store.EntityPass, pass.PassID, "pass.expired", actorID, pass)
	return pass
}

func (m *memStore) GetPass(ctx context.Context, passID string, now time.Time) (models.VisitorPass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pass, ok := m.passes[passID]
	if !ok {
		return models.VisitorPass{}, store.ErrPassNotFound
	}
	return m.expireLocked(pass, now, ""), nil
}

func (m *memStore) ListPasses(ctx context.Context, filter store.PassFilter) ([]models.VisitorPass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var passes []models.VisitorPass
	for _, pass := range m.passes {
		if pass.BuildingID != filter.BuildingID ||
			(filter.ApartmentID != "" && pass.ApartmentID != filter.ApartmentID) ||
			(filter.CreatedBy != "" && pass.CreatedBy != filter.CreatedBy) ||
			(filter.Status != "" && store.EffectiveStatus(pass, filter.Now) != filter.Status) {
			continue
		}
		passes = append(passes, pass)
	}
	sort.Slice(passes, func(i, j int) bool { return passes[i].CreatedAt.After(passes[j].CreatedAt) })
	if filter.Limit > 0 && len(passes) > filter.Limit {
		passes = passes[:filter.Limit]
	}
	return passes, nil
}

func (m *memStore) VerifyPass(ctx context.Context, input store.VerifyPassInput) (models.Verification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pass models.VisitorPass
	found := false
	for _, candidate := range m.passes {
		if candidate.BuildingID == input.BuildingID && candidate.Code == strings.ToUpper(input.Code) {
			pass, found = candidate, true
			break
		}
	}
	if !found {
		return models.Verification{}, store.ErrPassNotFound
	}
	target, result := store.PlanVerification(pass, input.Now)
	switch target {
	case models.PassExpired:
		result.Pass = m.expireLocked(pass, input.Now, input.VerifierID)
	case models.PassVerified:
		at, by := input.Now, input.VerifierID
		pass.Status = models.PassVerified
		pass.VerifiedAt = &at
		pass.VerifiedBy = &by
		m.passes[pass.PassID] = pass
		m.audit(pass.BuildingID, store.EntityPass, pass.PassID, "pass.verified", by, pass)
		result.Pass = pass
		result.VerifiedAt = pass.VerifiedAt
		result.VerifiedBy = pass.VerifiedBy
	}
	return result, nil
}

func (m *memStore) CancelPass(ctx context.Context, input store.PassActionInput) (models.VisitorPass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pass, ok := m.passes[input.PassID]
	if !ok {
		return models.VisitorPass{}, store.ErrPassNotFound
	}
	if store.EffectiveStatus(pass, input.Now) != models.PassActive {
		return models.VisitorPass{}, store.ErrPassNotActive
	}
	at, by := input.Now, input.ActorID
	pass.Status = models.PassCancelled
	pass.CancelledAt = &at
	pass.CancelledBy = &by
	m.passes[pass.PassID] = pass
	m.audit(pass.BuildingID, store.EntityPass, pass.PassID, "pass.cancelled", by, pass)
	return pass, nil
}

func (m *memStore) ExpirePasses(ctx context.Context, now time.Time, batchSize int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expired := 0
	for _, pass := range m.passes {
		if expired >= batchSize {
			break
		}
		if store.IsExpired(pass, now) {
			m.expireLocked(pass, now, "")
			expired++
		}
	}
	return expired, nil
}

func (m *memStore) ListAuditEvents(ctx context.Context, entityType, entityID string) ([]store.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []store.AuditEvent
	for _, event := range m.events {
		if event.EntityType == entityType && event.EntityID == entityID {
			events = append(events, event)
		}
	}
	return events, nil
}

func (m *memStore) ListUnpublishedEvents(ctx context.Context, limit int) ([]store.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []store.AuditEvent
	for _, event := range m.events {
		if event.PublishedAt == nil && len(events) < limit {
			events = append(events, event)
		}
	}
	return events, nil
}

func (m *memStore) MarkEventsPublished(ctx context.Context, eventIDs []string, publishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		ids[id] = true
	}
	for i := range m.events {
		if ids[m.events[i].EventID] && m.events[i].PublishedAt == nil {
			at := publishedAt
			m.events[i].PublishedAt = &at
		}
	}
	return nil
}
