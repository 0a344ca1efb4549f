package models

import (
	"time"

	"gorm.io/gorm"
)

// DriverRating represents one driver's scored performance on one delivery.
// Punctuality, professionalism and overall are always scored; the remaining
// dimensions are optional (0 = not scored) and depend on the driver variant:
// delivery quality and communication for transporters, safety and policy
// compliance for in-house drivers.
type DriverRating struct {
	ID         uint     `json:"id" gorm:"primaryKey"`
	DeliveryID uint     `json:"delivery_id" gorm:"not null;index"`
	Delivery   Delivery `json:"delivery,omitempty" gorm:"foreignKey:DeliveryID"`
	DriverID   uint     `json:"driver_id" gorm:"not null;index"`
	Driver     Driver   `json:"driver,omitempty" gorm:"foreignKey:DriverID"`

	Punctuality      int    `json:"punctuality" gorm:"type:int;not null;check:punctuality >= 1 AND punctuality <= 5"`
	Professionalism  int    `json:"professionalism" gorm:"type:int;not null;check:professionalism >= 1 AND professionalism <= 5"`
	DeliveryQuality  int    `json:"delivery_quality" gorm:"type:int;check:delivery_quality >= 0 AND delivery_quality <= 5"`
	Communication    int    `json:"communication" gorm:"type:int;check:communication >= 0 AND communication <= 5"`
	Safety           int    `json:"safety" gorm:"type:int;check:safety >= 0 AND safety <= 5"`
	PolicyCompliance int    `json:"policy_compliance" gorm:"type:int;check:policy_compliance >= 0 AND policy_compliance <= 5"`
	Overall          int    `json:"overall" gorm:"type:int;not null;check:overall >= 1 AND overall <= 5"`
	Comments         string `json:"comments" gorm:"type:text"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// RatingScores carries the scored dimensions of one rating on the wire
type RatingScores struct {
	Punctuality      int    `json:"punctuality" binding:"required,min=1,max=5"`
	Professionalism  int    `json:"professionalism" binding:"required,min=1,max=5"`
	DeliveryQuality  int    `json:"delivery_quality" binding:"omitempty,min=1,max=5"`
	Communication    int    `json:"communication" binding:"omitempty,min=1,max=5"`
	Safety           int    `json:"safety" binding:"omitempty,min=1,max=5"`
	PolicyCompliance int    `json:"policy_compliance" binding:"omitempty,min=1,max=5"`
	Overall          int    `json:"overall" binding:"required,min=1,max=5"`
	Comments         string `json:"comments"`
}

// DriverRatingSummary represents a summary of all ratings for a driver.
// All fields are zero when the driver has no ratings yet.
type DriverRatingSummary struct {
	DriverID               uint    `json:"driver_id"`
	TotalRatings           int     `json:"total_ratings"`
	AveragePunctuality     float64 `json:"average_punctuality"`
	AverageProfessionalism float64 `json:"average_professionalism"`
	AverageDeliveryQuality float64 `json:"average_delivery_quality"`
	AverageCommunication   float64 `json:"average_communication"`
	AverageSafety          float64 `json:"average_safety"`
	AverageOverall         float64 `json:"average_overall"`
}

// TableName specifies the table name for the DriverRating model
func (DriverRating) TableName() string {
	return "driver_ratings"
}
