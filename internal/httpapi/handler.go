package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"estate/amenity-service/internal/engine"
	"estate/amenity-service/internal/models"
	"estate/amenity-service/internal/passrender"
	"estate/amenity-service/internal/store"

	"github.com/julienschmidt/httprouter"
)

// Service is the engine surface exposed over HTTP.
type Service interface {
	CreateAmenity(ctx context.Context, caller models.Caller, input engine.CreateAmenityInput) (models.Amenity, error)
	UpdateAmenity(ctx context.Context, caller models.Caller, input engine.UpdateAmenityInput) (models.Amenity, error)
	GetAmenity(ctx context.Context, caller models.Caller, amenityID string) (models.Amenity, error)
	ListAmenities(ctx context.Context, caller models.Caller, buildingID string) ([]models.Amenity, error)
	ListAvailability(ctx context.Context, caller models.Caller, amenityID string, month, year int) ([]models.SlotAvailability, error)

	CreateBooking(ctx context.Context, caller models.Caller, input engine.CreateBookingInput) (models.Booking, error)
	ApproveBooking(ctx context.Context, caller models.Caller, bookingID string) (models.Booking, error)
	RejectBooking(ctx context.Context, caller models.Caller, bookingID, reason string) (models.Booking, error)
	CancelBooking(ctx context.Context, caller models.Caller, bookingID string) (models.Booking, error)
	GetBooking(ctx context.Context, caller models.Caller, bookingID string) (models.Booking, error)
	ListBookings(ctx context.Context, caller models.Caller, buildingID string, filter engine.BookingFilter) ([]models.Booking, error)

	IssuePass(ctx context.Context, caller models.Caller, input engine.IssuePassInput) (models.VisitorPass, error)
	VerifyPass(ctx context.Context, caller models.Caller, input engine.VerifyPassInput) (models.Verification, error)
	CancelPass(ctx context.Context, caller models.Caller, passID string) (models.VisitorPass, error)
	GetPass(ctx context.Context, caller models.Caller, passID string) (models.VisitorPass, error)
	ListPasses(ctx context.Context, caller models.Caller, buildingID string, filter engine.PassFilter) ([]models.VisitorPass, error)

	ListAuditEvents(ctx context.Context, caller models.Caller, entityType, entityID string) (engine.AuditTrail, error)
}

type Handler struct {
	svc      Service
	location *time.Location
	logger   *slog.Logger
}

type Options struct {
	// Location is used when printing pass expiry times.
	Location *time.Location
	Logger   *slog.Logger
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type createAmenityRequest struct {
	BuildingID string                  `json:"building_id"`
	Name       string                  `json:"name"`
	Active     *bool                   `json:"active"`
	Slots      []models.SlotDefinition `json:"slots"`
}

type updateAmenityRequest struct {
	Name   *string                 `json:"name"`
	Active *bool                   `json:"active"`
	Slots  []models.SlotDefinition `json:"slots"`
}

type createBookingRequest struct {
	AmenityID string `json:"amenity_id"`
	Date      string `json:"date"`
	SlotName  string `json:"slot_name"`
	Purpose   string `json:"purpose"`
}

type rejectBookingRequest struct {
	Reason string `json:"reason"`
}

type issuePassRequest struct {
	BuildingID  string `json:"building_id"`
	ApartmentID string `json:"apartment_id"`
	VisitorName string `json:"visitor_name"`
	Code        string `json:"code"`
	ExpiresAt   string `json:"expires_at"`
}

type verifyPassRequest struct {
	BuildingID string `json:"building_id"`
	Code       string `json:"code"`
}

func NewHandler(svc Service, options Options) *Handler {
	h := &Handler{
		svc:      svc,
		location: options.Location,
		logger:   options.Logger,
	}
	if h.location == nil {
		h.location = time.UTC
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

func (h *Handler) Routes() http.Handler {
	router := httprouter.New()
	router.GET("/healthz", h.handleHealth)
	router.Handler(http.MethodGet, "/debug/vars", expvar.Handler())

	router.GET("/api/amenities", h.handleListAmenities)
	router.POST("/api/amenities", h.handleCreateAmenity)
	router.GET("/api/amenities/:id", h.handleGetAmenity)
	router.PATCH("/api/amenities/:id", h.handleUpdateAmenity)
	router.GET("/api/amenities/:id/availability", h.handleAvailability)

	router.GET("/api/bookings", h.handleListBookings)
	router.POST("/api/bookings", h.handleCreateBooking)
	router.GET("/api/bookings/:id", h.handleGetBooking)
	router.POST("/api/bookings/:id/approve", h.handleApproveBooking)
	router.POST("/api/bookings/:id/reject", h.handleRejectBooking)
	router.POST("/api/bookings/:id/cancel", h.handleCancelBooking)

	router.GET("/api/passes", h.handleListPasses)
	router.POST("/api/passes", h.handleIssuePass)
	router.GET("/api/passes/:id", h.handleGetPass)
	// httprouter cannot hold a static "verify" segment beside :id.
	router.POST("/api/passes/:id", h.handlePassAction)
	router.POST("/api/passes/:id/cancel", h.handleCancelPass)
	router.GET("/api/passes/:id/qr", h.handlePassQR)
	router.GET("/api/passes/:id/print", h.handlePassPrint)

	router.GET("/api/audit/:entity_type/:entity_id", h.handleAuditTrail)

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return router
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListAmenities(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	amenities, err := h.svc.ListAmenities(r.Context(), caller, queryValue(r, "building_id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(amenities))
}

func (h *Handler) handleCreateAmenity(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req createAmenityRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	amenity, err := h.svc.CreateAmenity(r.Context(), caller, engine.CreateAmenityInput{
		BuildingID: strings.TrimSpace(req.BuildingID),
		Name:       strings.TrimSpace(req.Name),
		Active:     req.Active,
		Slots:      req.Slots,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, amenity)
}

func (h *Handler) handleGetAmenity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	amenity, err := h.svc.GetAmenity(r.Context(), caller, ps.ByName("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amenity)
}

func (h *Handler) handleUpdateAmenity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req updateAmenityRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	amenity, err := h.svc.UpdateAmenity(r.Context(), caller, engine.UpdateAmenityInput{
		AmenityID: ps.ByName("id"),
		Name:      req.Name,
		Active:    req.Active,
		Slots:     req.Slots,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amenity)
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	month, err := strconv.Atoi(queryValue(r, "month"))
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "month must be a number")
		return
	}
	year, err := strconv.Atoi(queryValue(r, "year"))
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "year must be a number")
		return
	}
	availability, err := h.svc.ListAvailability(r.Context(), caller, ps.ByName("id"), month, year)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(availability))
}

func (h *Handler) handleListBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	bookings, err := h.svc.ListBookings(r.Context(), caller, queryValue(r, "building_id"), engine.BookingFilter{
		AmenityID: queryValue(r, "amenity_id"),
		Date:      queryValue(r, "date"),
		Status:    queryValue(r, "status"),
		Limit:     limit,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(bookings))
}

func (h *Handler) handleCreateBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req createBookingRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	booking, err := h.svc.CreateBooking(r.Context(), caller, engine.CreateBookingInput{
		AmenityID: strings.TrimSpace(req.AmenityID),
		Date:      strings.TrimSpace(req.Date),
		SlotName:  strings.TrimSpace(req.SlotName),
		Purpose:   strings.TrimSpace(req.Purpose),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (h *Handler) handleGetBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	booking, err := h.svc.GetBooking(r.Context(), caller, ps.ByName("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) handleApproveBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	booking, err := h.svc.ApproveBooking(r.Context(), caller, ps.ByName("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) handleRejectBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req rejectBookingRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	booking, err := h.svc.RejectBooking(r.Context(), caller, ps.ByName("id"), strings.TrimSpace(req.Reason))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) handleCancelBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	booking, err := h.svc.CancelBooking(r.Context(), caller, ps.ByName("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) handleListPasses(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	passes, err := h.svc.ListPasses(r.Context(), caller, queryValue(r, "building_id"), engine.PassFilter{
		ApartmentID: queryValue(r, "apartment_id"),
		Status:      queryValue(r, "status"),
		Limit:       limit,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(passes))
}

func (h *Handler) handleIssuePass(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req issuePassRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	pass, err := h.svc.IssuePass(r.Context(), caller, engine.IssuePassInput{
		BuildingID:  strings.TrimSpace(req.BuildingID),
		ApartmentID: strings.TrimSpace(req.ApartmentID),
		VisitorName: strings.TrimSpace(req.VisitorName),
		Code:        strings.TrimSpace(req.Code),
		ExpiresAt:   strings.TrimSpace(req.ExpiresAt),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pass)
}

func (h *Handler) handlePassAction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if ps.ByName("id") != "verify" {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
		return
	}
	h.handleVerifyPass(w, r)
}

func (h *Handler) handleVerifyPass(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req verifyPassRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	result, err := h.svc.VerifyPass(r.Context(), caller, engine.VerifyPassInput{
		BuildingID: strings.TrimSpace(req.BuildingID),
		Code:       strings.TrimSpace(req.Code),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetPass(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	pass, err := h.svc.GetPass(r.Context(), caller, ps.ByName("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pass)
}

func (h *Handler) handleCancelPass(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	pass, err := h.svc.CancelPass(r.Context(), caller, ps.ByName("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pass)
}

func (h *Handler) handlePassQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	pass, err := h.svc.GetPass(r.Context(), caller, ps.ByName("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	png, err := passrender.QRCode(pass)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeBinary(w, "image/png", "", png)
}

func (h *Handler) handlePassPrint(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	pass, err := h.svc.GetPass(r.Context(), caller, ps.ByName("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	pdf, err := passrender.PrintablePass(pass, h.location)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeBinary(w, "application/pdf", fmt.Sprintf("inline; filename=\"pass-%s.pdf\"", pass.Code), pdf)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	trail, err := h.svc.ListAuditEvents(r.Context(), caller, ps.ByName("entity_type"), ps.ByName("entity_id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trail)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (models.Caller, bool) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing caller identity")
		return models.Caller{}, false
	}
	return caller, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err, "request_id", requestIDFromRequest(r))
	}
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

const maxBodyBytes = 1 << 20

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := queryValue(r, "limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "limit must be a positive number")
		return 0, false
	}
	return limit, true
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrSlotFull):
		return http.StatusConflict, "slot_full", "slot is fully booked"
	case errors.Is(err, store.ErrDuplicateBooking):
		return http.StatusConflict, "duplicate_booking", "you already have a booking for this amenity on that date"
	case errors.Is(err, store.ErrAlreadyCancelled):
		return http.StatusConflict, "already_cancelled", "booking is already cancelled"
	case errors.Is(err, store.ErrNotPending):
		return http.StatusConflict, "not_pending", "booking is not pending"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "current state does not allow this action"
	case errors.Is(err, store.ErrPassNotActive):
		return http.StatusConflict, "pass_not_active", "pass is not active"
	case errors.Is(err, store.ErrCodeTaken):
		return http.StatusConflict, "code_taken", "pass code already in use"
	case errors.Is(err, store.ErrAmenityExists):
		return http.StatusConflict, "amenity_exists", "amenity name already in use"
	case errors.Is(err, store.ErrAmenityNotFound):
		return http.StatusNotFound, "amenity_not_found", "amenity not found"
	case errors.Is(err, store.ErrBookingNotFound):
		return http.StatusNotFound, "booking_not_found", "booking not found"
	case errors.Is(err, store.ErrPassNotFound):
		return http.StatusNotFound, "pass_not_found", "pass not found"
	case errors.Is(err, store.ErrSlotNotFound):
		return http.StatusBadRequest, "slot_not_found", "slot not defined for amenity"
	case errors.Is(err, store.ErrAmenityInactive):
		return http.StatusBadRequest, "amenity_inactive", "amenity is not active"
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, "invalid_request", validationMessage(err)
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden, "access_denied", "access denied"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict", "request conflicts with current state"
	case errors.Is(err, store.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable", "temporarily unavailable, retry"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, store.ErrValidation.Error()+": "); i >= 0 {
		return msg[i+len(store.ErrValidation.Error())+2:]
	}
	return msg
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBinary(w http.ResponseWriter, contentType, disposition string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Cache-Control", "no-store")
	if disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
