package models

import (
	"time"

	"gorm.io/gorm"
)

// TransportationRequestStatus represents the current status of a transportation request
type TransportationRequestStatus string

const (
	RequestStatusPlanned    TransportationRequestStatus = "planned"
	RequestStatusProcessing TransportationRequestStatus = "processing"
	RequestStatusCompleted  TransportationRequestStatus = "completed"
	RequestStatusCancelled  TransportationRequestStatus = "cancelled"
)

// TransportationRequest represents a shipment request created by a coordinator
type TransportationRequest struct {
	ID            uint                        `json:"id" gorm:"primaryKey"`
	RequestNumber string                      `json:"request_number" gorm:"type:varchar(20);uniqueIndex;not null"` // REQ-<year>-<seq>
	Origin        string                      `json:"origin" gorm:"type:varchar(200);not null"`
	Destination   string                      `json:"destination" gorm:"type:varchar(200);not null"`
	PickupDate    time.Time                   `json:"pickup_date" gorm:"not null"`
	TruckCount    int                         `json:"truck_count" gorm:"not null;default:1"`
	TruckType     string                      `json:"truck_type" gorm:"type:varchar(50)"`
	EstimatedCost float64                     `json:"estimated_cost" gorm:"type:decimal(12,2);default:0"`
	UrgencyLevel  string                      `json:"urgency_level" gorm:"type:varchar(20);not null;default:'medium'"` // low, medium, high, critical
	Status        TransportationRequestStatus `json:"status" gorm:"type:varchar(20);not null;default:'planned'"`
	Notes         string                      `json:"notes" gorm:"type:text"`
	CreatedByID   uint                        `json:"created_by_id"`
	CreatedBy     User                        `json:"created_by,omitempty" gorm:"foreignKey:CreatedByID"`

	// At most one live delivery per request; replaced wholesale on re-log
	Delivery *Delivery `json:"delivery,omitempty" gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TransportationRequestCreate represents the request structure for creating a transportation request
type TransportationRequestCreate struct {
	Origin        string    `json:"origin" binding:"required"`
	Destination   string    `json:"destination" binding:"required"`
	PickupDate    time.Time `json:"pickup_date" binding:"required"`
	TruckCount    int       `json:"truck_count" binding:"required,min=1"`
	TruckType     string    `json:"truck_type"`
	EstimatedCost float64   `json:"estimated_cost" binding:"min=0"`
	UrgencyLevel  string    `json:"urgency_level" binding:"omitempty,oneof=low medium high critical"`
	Notes         string    `json:"notes"`
}

// TransportationRequestUpdate represents the request structure for editing a request.
// Pointer fields distinguish "not sent" from zero values.
type TransportationRequestUpdate struct {
	Origin        *string    `json:"origin"`
	Destination   *string    `json:"destination"`
	PickupDate    *time.Time `json:"pickup_date"`
	TruckCount    *int       `json:"truck_count" binding:"omitempty,min=1"`
	TruckType     *string    `json:"truck_type"`
	EstimatedCost *float64   `json:"estimated_cost" binding:"omitempty,min=0"`
	UrgencyLevel  *string    `json:"urgency_level" binding:"omitempty,oneof=low medium high critical"`
	Notes         *string    `json:"notes"`
}

// CanTransitionTo reports whether the status machine allows moving to next.
// Transitions are monotonic: planned -> processing -> completed, with
// cancellation possible from planned or processing. Completed is terminal.
func (s TransportationRequestStatus) CanTransitionTo(next TransportationRequestStatus) bool {
	switch s {
	case RequestStatusPlanned:
		return next == RequestStatusProcessing || next == RequestStatusCancelled
	case RequestStatusProcessing:
		return next == RequestStatusProcessing || next == RequestStatusCompleted || next == RequestStatusCancelled
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are allowed
func (s TransportationRequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusCancelled
}

// TableName specifies the table name for the TransportationRequest model
func (TransportationRequest) TableName() string {
	return "transportation_requests"
}
