package domain

import "time"

// Equipment is owned by the inventory subsystem. The scheduling engine only
// writes MaintenanceAlertSent and LastScan.
type Equipment struct {
	ID                   int32      `json:"id"`
	Name                 string     `json:"name"`
	RfidTag              *string    `json:"rfid_tag,omitempty"`
	RequiresApproval     bool       `json:"requires_approval"`
	NextMaintenance      *time.Time `json:"next_maintenance,omitempty"`
	MaintenanceAlertSent bool       `json:"maintenance_alert_sent"`
	LastScan             *RfidScan  `json:"last_scan,omitempty"`
}

// RfidScan is the last-known position of an equipment item.
type RfidScan struct {
	ScannedAt time.Time `json:"scanned_at"`
	Location  string    `json:"location"`
	ReaderID  string    `json:"reader_id"`
}

// RfidEvent is an append-only scan record.
type RfidEvent struct {
	ID          int64     `json:"id"`
	EquipmentID int32     `json:"equipment_id"`
	ReaderID    string    `json:"reader_id"`
	Location    string    `json:"location"`
	ScannedAt   time.Time `json:"scanned_at"`
}

// CustodyRole decides whether a reader scan moves custody.
type CustodyRole string

const (
	CustodyNone     CustodyRole = ""
	CustodyCheckout CustodyRole = "checkout"
	CustodyCheckin  CustodyRole = "checkin"
)

// RfidReader is a configured reader. Readers with a custody role are
// authoritative for automatic checkout or checkin.
type RfidReader struct {
	ID       string      `json:"id" yaml:"id"`
	Location string      `json:"location" yaml:"location"`
	Custody  CustodyRole `json:"custody,omitempty" yaml:"custody"`
}
