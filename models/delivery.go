package models

import (
	"time"

	"gorm.io/gorm"
)

// Delivery represents the actual-event record for one transportation request.
// It exists only while the owning request is processing or completed; a
// processing-phase re-log destroys and replaces it together with its ratings.
type Delivery struct {
	ID               uint                  `json:"id" gorm:"primaryKey"`
	RequestID        uint                  `json:"request_id" gorm:"not null;index"`
	Request          TransportationRequest `json:"request,omitempty" gorm:"foreignKey:RequestID"`
	ActualPickupDate time.Time             `json:"actual_pickup_date" gorm:"not null"`
	ActualTruckCount int                   `json:"actual_truck_count" gorm:"not null;default:1"`
	InvoiceAmount    float64               `json:"invoice_amount" gorm:"type:decimal(12,2);default:0"`
	Notes            string                `json:"notes" gorm:"type:text"`
	PhotoURL         *string               `json:"photo_url" gorm:"type:varchar(500)"` // proof of delivery
	LoggedByID       uint                  `json:"logged_by_id"`
	LoggedBy         User                  `json:"logged_by,omitempty" gorm:"foreignKey:LoggedByID"`
	LoggedAt         time.Time             `json:"logged_at"`

	Ratings []DriverRating `json:"ratings,omitempty" gorm:"foreignKey:DeliveryID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// DeliveryLog is the body for POST /requests/:id/delivery (phase 1 of completion)
type DeliveryLog struct {
	ActualPickupDate time.Time          `json:"actual_pickup_date" binding:"required"`
	ActualTruckCount int                `json:"actual_truck_count" binding:"required,min=1"`
	InvoiceAmount    float64            `json:"invoice_amount" binding:"min=0"`
	Notes            string             `json:"notes"`
	Drivers          []DriverAssignment `json:"drivers" binding:"required,min=1,dive"`
}

// DriverAssignment carries one driver's identity (existing id or inline
// creation data) plus the scores awarded for this delivery.
type DriverAssignment struct {
	DriverID *uint         `json:"driver_id"`
	Driver   *DriverCreate `json:"driver"` // required when driver_id is absent
	Rating   RatingScores  `json:"rating" binding:"required"`
}

// DeliveryUpdate is the body for the post-completion edit flow. The ratings
// slice is a client-declared diff: entries with an id update that rating,
// entries without an id create a new one, and persisted ratings missing from
// the slice are deleted.
type DeliveryUpdate struct {
	ActualPickupDate *time.Time   `json:"actual_pickup_date"`
	ActualTruckCount *int         `json:"actual_truck_count" binding:"omitempty,min=1"`
	InvoiceAmount    *float64     `json:"invoice_amount" binding:"omitempty,min=0"`
	Notes            *string      `json:"notes"`
	Ratings          []RatingEdit `json:"ratings" binding:"omitempty,dive"`
}

// RatingEdit is one entry of the client-declared rating diff
type RatingEdit struct {
	ID       *uint        `json:"id"`
	DriverID uint         `json:"driver_id" binding:"required"`
	Rating   RatingScores `json:"rating" binding:"required"`
}

// TableName specifies the table name for the Delivery model
func (Delivery) TableName() string {
	return "deliveries"
}
