package models

import (
	"time"

	"gorm.io/datatypes"
)

// Shipment statuses owned by this system. Other values are carrier codes,
// upper-cased with spaces replaced by underscores.
const (
	ShipmentStatusCreated      = "CREATED"
	ShipmentStatusDelivered    = "DELIVERED"
	ShipmentStatusCancelled    = "CANCELLED"
	ShipmentStatusRTODelivered = "RTO_DELIVERED"
)

// TerminalShipmentStatuses are never polled again.
var TerminalShipmentStatuses = []string{
	ShipmentStatusDelivered,
	ShipmentStatusCancelled,
	ShipmentStatusRTODelivered,
}

// Shipment is the carrier-side record of a dispatched order
type Shipment struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	OrderID           uint           `gorm:"not null;uniqueIndex" json:"order_id"`
	Order             *Order         `gorm:"foreignKey:OrderID" json:"-"`
	AWB               *string        `gorm:"index" json:"awb"`
	CourierName       string         `json:"courier_name"`
	CourierID         string         `json:"courier_id"`
	CarrierOrderID    string         `json:"carrier_order_id"`
	CarrierShipmentID string         `json:"carrier_shipment_id"`
	Status            string         `gorm:"not null;index" json:"status"`
	LabelURL          string         `json:"label_url"`
	ManifestURL       string         `json:"manifest_url"`
	TrackingHistory   datatypes.JSON `json:"tracking_history,omitempty"`
	LastTrackedAt     *time.Time     `json:"last_tracked_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TableName specifies the table name for the Shipment model
func (Shipment) TableName() string {
	return "shipments"
}

// Released reports whether the shipment ended without reaching the customer,
// leaving the order free to be cancelled.
func (s *Shipment) Released() bool {
	for _, status := range TerminalShipmentStatuses {
		if s.Status == status {
			return status != ShipmentStatusDelivered
		}
	}
	return false
}
