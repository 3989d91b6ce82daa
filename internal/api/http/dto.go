package http

import (
	"time"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/service"
)

type createReservationRequest struct {
	EquipmentID int32  `json:"equipment_id"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type checkoutRequest struct {
	ExpectedReturnAt string `json:"expected_return_at"`
}

type extendRequest struct {
	ExpectedReturnAt string `json:"expected_return_at"`
}

type scanRequest struct {
	ReaderID    string `json:"reader_id"`
	EquipmentID int32  `json:"equipment_id"`
	RfidTag     string `json:"rfid_tag"`
	ScannedAt   string `json:"scanned_at"`
}

type reservationResponse struct {
	ID          int32  `json:"id"`
	EquipmentID int32  `json:"equipment_id"`
	UserID      int32  `json:"user_id"`
	Start       string `json:"start_datetime"`
	End         string `json:"end_datetime"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

type loanResponse struct {
	ReservationID    int32   `json:"reservation_id"`
	CheckoutAt       string  `json:"checkout_at"`
	ExpectedReturnAt string  `json:"expected_return_at"`
	ActualReturnAt   *string `json:"actual_return_at"`
	ReminderSent     bool    `json:"return_reminder_sent"`
}

type pendingResponse struct {
	Count        int                   `json:"count"`
	Reservations []reservationResponse `json:"reservations"`
}

type lostEquipmentResponse struct {
	ID           int32   `json:"id"`
	Name         string  `json:"name"`
	RfidTag      string  `json:"rfid_tag"`
	LastScanAt   *string `json:"last_scan_at"`
	LastLocation string  `json:"last_location,omitempty"`
}

type availabilityResponse struct {
	EquipmentID int32                 `json:"equipment_id"`
	Start       string                `json:"start"`
	End         string                `json:"end"`
	Available   bool                  `json:"available"`
	Conflicts   []reservationResponse `json:"conflicts"`
}

type scanEventResponse struct {
	ID          int64  `json:"id"`
	EquipmentID int32  `json:"equipment_id"`
	ReaderID    string `json:"reader_id"`
	Location    string `json:"location"`
	ScannedAt   string `json:"scanned_at"`
}

type scanResponse struct {
	Event       scanEventResponse    `json:"event"`
	Action      string               `json:"action,omitempty"`
	Reservation *reservationResponse `json:"reservation,omitempty"`
	Loan        *loanResponse        `json:"loan,omitempty"`
	Refused     string               `json:"refused,omitempty"`
}

type equipmentResponse struct {
	ID                   int32  `json:"id"`
	Name                 string `json:"name"`
	MaintenanceAlertSent bool   `json:"maintenance_alert_sent"`
}

type errorResponse struct {
	Error       string  `json:"error"`
	Message     string  `json:"message"`
	ConflictIDs []int32 `json:"conflict_ids,omitempty"`
}

func formatTime(t time.Time) string {
	return t.Format(domain.DateTimeLayout)
}

func toReservationResponse(r *domain.Reservation) reservationResponse {
	return reservationResponse{
		ID:          r.ID,
		EquipmentID: r.EquipmentID,
		UserID:      r.RequesterID,
		Start:       formatTime(r.Window.Start),
		End:         formatTime(r.Window.End),
		Status:      string(r.Status),
		CreatedAt:   formatTime(r.CreatedAt),
	}
}

func toReservationList(rs []domain.Reservation) []reservationResponse {
	out := make([]reservationResponse, len(rs))
	for i := range rs {
		out[i] = toReservationResponse(&rs[i])
	}
	return out
}

func toLoanResponse(l *domain.Loan) loanResponse {
	res := loanResponse{
		ReservationID:    l.ReservationID,
		CheckoutAt:       formatTime(l.CheckoutAt),
		ExpectedReturnAt: formatTime(l.ExpectedReturnAt),
		ReminderSent:     l.ReturnReminderSent,
	}
	if l.ActualReturnAt != nil {
		returned := formatTime(*l.ActualReturnAt)
		res.ActualReturnAt = &returned
	}
	return res
}

func toLoanList(ls []domain.Loan) []loanResponse {
	out := make([]loanResponse, len(ls))
	for i := range ls {
		out[i] = toLoanResponse(&ls[i])
	}
	return out
}

func toScanEventResponse(e domain.RfidEvent) scanEventResponse {
	return scanEventResponse{
		ID:          e.ID,
		EquipmentID: e.EquipmentID,
		ReaderID:    e.ReaderID,
		Location:    e.Location,
		ScannedAt:   formatTime(e.ScannedAt),
	}
}

func toScanResponse(res *service.ScanResult) scanResponse {
	out := scanResponse{
		Event:   toScanEventResponse(res.Event),
		Action:  string(res.Action),
		Refused: res.Refused,
	}
	if res.Reservation != nil {
		r := toReservationResponse(res.Reservation)
		out.Reservation = &r
	}
	if res.Loan != nil {
		l := toLoanResponse(res.Loan)
		out.Loan = &l
	}
	return out
}

func toLostEquipmentResponse(e *domain.Equipment) lostEquipmentResponse {
	out := lostEquipmentResponse{ID: e.ID, Name: e.Name}
	if e.RfidTag != nil {
		out.RfidTag = *e.RfidTag
	}
	if e.LastScan != nil {
		seen := formatTime(e.LastScan.ScannedAt)
		out.LastScanAt = &seen
		out.LastLocation = e.LastScan.Location
	}
	return out
}
