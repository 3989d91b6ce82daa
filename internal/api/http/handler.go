package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/service"
)

// Handler exposes the scheduler over JSON/HTTP.
type Handler struct {
	scheduler service.SchedulerService
	auth      *AuthMiddleware
}

// NewHandler serves scheduler over HTTP. Every /api/v1 route requires auth.
func NewHandler(scheduler service.SchedulerService, auth *AuthMiddleware) *Handler {
	return &Handler{scheduler: scheduler, auth: auth}
}

// RegisterRoutes mounts the health check and the /api/v1 routes on router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(LoggingMiddleware, h.auth.Handler)

	api.HandleFunc("/reservations", h.RequestReservation).Methods(http.MethodPost)
	api.HandleFunc("/reservations/pending", h.ListPendingReservations).Methods(http.MethodGet)
	api.HandleFunc("/reservations/{id:[0-9]+}", h.GetReservation).Methods(http.MethodGet)
	api.HandleFunc("/reservations/{id:[0-9]+}/approve", h.Approve).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id:[0-9]+}/reject", h.Reject).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id:[0-9]+}/cancel", h.Cancel).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id:[0-9]+}/checkout", h.Checkout).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id:[0-9]+}/checkin", h.Checkin).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id:[0-9]+}/loan", h.GetLoan).Methods(http.MethodGet)
	api.HandleFunc("/reservations/{id:[0-9]+}/loan/extend", h.ExtendLoan).Methods(http.MethodPost)

	api.HandleFunc("/equipment/lost", h.ListLostEquipment).Methods(http.MethodGet)
	api.HandleFunc("/equipment/{id:[0-9]+}/reservations", h.ListEquipmentReservations).Methods(http.MethodGet)
	api.HandleFunc("/equipment/{id:[0-9]+}/availability", h.CheckAvailability).Methods(http.MethodGet)
	api.HandleFunc("/equipment/{id:[0-9]+}/scans", h.ListScans).Methods(http.MethodGet)
	api.HandleFunc("/equipment/{id:[0-9]+}/maintenance/reset", h.ResetMaintenanceAlert).Methods(http.MethodPost)

	api.HandleFunc("/rfid/scans", h.RecordScan).Methods(http.MethodPost)
	api.HandleFunc("/me/reservations", h.ListMyReservations).Methods(http.MethodGet)
	api.HandleFunc("/loans/overdue", h.ListOverdueLoans).Methods(http.MethodGet)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) RequestReservation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req createReservationRequest
	if !decode(w, r, &req) {
		return
	}
	window, ok := parseWindow(w, req.Start, req.End)
	if !ok {
		return
	}

	res, err := h.scheduler.RequestReservation(r.Context(), actor, req.EquipmentID, window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationResponse(res))
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.scheduler.GetReservation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponse(res))
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.scheduler.Approve(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponse(res))
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.reasoned(w, r, h.scheduler.Reject)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.reasoned(w, r, h.scheduler.Cancel)
}

func (h *Handler) reasoned(w http.ResponseWriter, r *http.Request,
	transition func(context.Context, domain.Actor, int32, string) (*domain.Reservation, error)) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	res, err := transition(r.Context(), actor, id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponse(res))
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	var expected *time.Time
	if req.ExpectedReturnAt != "" {
		t, err := domain.ParseDateTime(req.ExpectedReturnAt)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		expected = &t
	}

	loan, err := h.scheduler.Checkout(r.Context(), actor, id, expected)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanResponse(loan))
}

func (h *Handler) Checkin(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	loan, err := h.scheduler.Checkin(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanResponse(loan))
}

func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	loan, err := h.scheduler.GetLoan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanResponse(loan))
}

func (h *Handler) ExtendLoan(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req extendRequest
	if !decode(w, r, &req) {
		return
	}
	expected, err := domain.ParseDateTime(req.ExpectedReturnAt)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	loan, err := h.scheduler.ExtendLoan(r.Context(), actor, id, expected)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanResponse(loan))
}

func (h *Handler) ListEquipmentReservations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	statuses, ok := statusFilter(w, r)
	if !ok {
		return
	}
	list, err := h.scheduler.ListEquipmentReservations(r.Context(), id, statuses...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationList(list))
}

func (h *Handler) ListMyReservations(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	statuses, ok := statusFilter(w, r)
	if !ok {
		return
	}
	list, err := h.scheduler.ListRequesterReservations(r.Context(), actor.UserID, statuses...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationList(list))
}

func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	window, ok := parseWindow(w, query.Get("start"), query.Get("end"))
	if !ok {
		return
	}

	conflicts, err := h.scheduler.CheckAvailability(r.Context(), id, window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		EquipmentID: id,
		Start:       formatTime(window.Start),
		End:         formatTime(window.End),
		Available:   len(conflicts) == 0,
		Conflicts:   toReservationList(conflicts),
	})
}

func (h *Handler) ListScans(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	scans, err := h.scheduler.ListScans(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]scanEventResponse, len(scans))
	for i, e := range scans {
		out[i] = toScanEventResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ResetMaintenanceAlert(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	eq, err := h.scheduler.ResetMaintenanceAlert(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, equipmentResponse{ID: eq.ID, Name: eq.Name, MaintenanceAlertSent: eq.MaintenanceAlertSent})
}

// RecordScan accepts reads from staff and reader tokens only, since a
// custody reader moves equipment in and out of loan.
func (h *Handler) RecordScan(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req scanRequest
	if !decode(w, r, &req) {
		return
	}
	scan := service.ScanRequest{ReaderID: req.ReaderID, EquipmentID: req.EquipmentID, RfidTag: req.RfidTag}
	if req.ScannedAt != "" {
		t, err := domain.ParseDateTime(req.ScannedAt)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		scan.ScannedAt = t
	}

	res, err := h.scheduler.RecordScan(r.Context(), actor, scan)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toScanResponse(res))
}

func (h *Handler) ListPendingReservations(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	queue, err := h.scheduler.ListPendingReservations(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pendingResponse{Count: len(queue), Reservations: toReservationList(queue)})
}

func (h *Handler) ListLostEquipment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var olderThan time.Duration
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, "days must be a positive integer")
			return
		}
		olderThan = time.Duration(n) * 24 * time.Hour
	}

	items, err := h.scheduler.ListLostEquipment(r.Context(), actor, olderThan)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]lostEquipmentResponse, len(items))
	for i := range items {
		out[i] = toLostEquipmentResponse(&items[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ListOverdueLoans(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	if actor.Kind != domain.ActorStaff {
		writeError(w, domain.ErrNotPermitted)
		return
	}
	loans, err := h.scheduler.ListOverdueLoans(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanList(loans))
}

func actorOrUnauthorized(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Message: "no actor in request"})
	}
	return actor, ok
}

func pathID(w http.ResponseWriter, r *http.Request) (int32, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		badRequest(w, "invalid id")
		return 0, false
	}
	return int32(id), true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return decode(w, r, v)
}

func parseWindow(w http.ResponseWriter, start, end string) (domain.TimeWindow, bool) {
	s, err := domain.ParseDateTime(start)
	if err != nil {
		badRequest(w, "invalid start: "+err.Error())
		return domain.TimeWindow{}, false
	}
	e, err := domain.ParseDateTime(end)
	if err != nil {
		badRequest(w, "invalid end: "+err.Error())
		return domain.TimeWindow{}, false
	}
	window, err := domain.NewTimeWindow(s, e)
	if err != nil {
		writeError(w, err)
		return domain.TimeWindow{}, false
	}
	return window, true
}

func statusFilter(w http.ResponseWriter, r *http.Request) ([]domain.ReservationStatus, bool) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, true
	}
	var statuses []domain.ReservationStatus
	for _, part := range strings.Split(raw, ",") {
		status, err := domain.ParseReservationStatus(strings.TrimSpace(part))
		if err != nil {
			badRequest(w, err.Error())
			return nil, false
		}
		statuses = append(statuses, status)
	}
	return statuses, true
}
