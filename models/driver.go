package models

import (
	"time"

	"gorm.io/gorm"
)

// DriverType discriminates the two driver variants
type DriverType string

const (
	DriverTypeTransporter DriverType = "transporter"
	DriverTypeInHouse     DriverType = "in_house"
)

// Driver represents a person performing deliveries. The record is a tagged
// union on DriverType: transporter drivers carry company/phone/license,
// in-house drivers carry employee number/department/hire date. OverallRating,
// TotalDeliveries and LastDelivery are running aggregates maintained by the
// completion workflow and the reconciliation job, never set directly.
type Driver struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	Name       string     `json:"name" gorm:"type:varchar(200);not null"`
	DriverType DriverType `json:"driver_type" gorm:"type:varchar(20);not null;index"`

	// Transporter fields
	CompanyName   *string `json:"company_name,omitempty" gorm:"type:varchar(200)"`
	PhoneNumber   *string `json:"phone_number,omitempty" gorm:"type:varchar(20)"`
	LicenseNumber *string `json:"license_number,omitempty" gorm:"type:varchar(50)"`

	// In-house fields
	EmployeeNumber *string    `json:"employee_number,omitempty" gorm:"type:varchar(50)"`
	Department     *string    `json:"department,omitempty" gorm:"type:varchar(100)"`
	HireDate       *time.Time `json:"hire_date,omitempty"`

	// Running aggregates (derived)
	OverallRating   float64    `json:"overall_rating" gorm:"type:decimal(3,1);default:0"`
	TotalDeliveries int        `json:"total_deliveries" gorm:"default:0"`
	LastDelivery    *time.Time `json:"last_delivery"`

	// Drivers referenced by ratings are archived instead of deleted
	IsArchived bool `json:"is_archived" gorm:"default:false"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// DriverCreate represents the request structure for creating a driver,
// inline during delivery logging or via the driver endpoints
type DriverCreate struct {
	Name       string     `json:"name" binding:"required"`
	DriverType DriverType `json:"driver_type" binding:"required,oneof=transporter in_house"`

	// Transporter fields (required for driver_type=transporter)
	CompanyName   *string `json:"company_name"`
	PhoneNumber   *string `json:"phone_number"`
	LicenseNumber *string `json:"license_number"`

	// In-house fields (required for driver_type=in_house)
	EmployeeNumber *string    `json:"employee_number"`
	Department     *string    `json:"department"`
	HireDate       *time.Time `json:"hire_date"`
}

// DriverUpdate represents the request structure for editing a driver.
// The variant and the derived aggregates are not editable.
type DriverUpdate struct {
	Name           *string    `json:"name"`
	CompanyName    *string    `json:"company_name"`
	PhoneNumber    *string    `json:"phone_number"`
	LicenseNumber  *string    `json:"license_number"`
	EmployeeNumber *string    `json:"employee_number"`
	Department     *string    `json:"department"`
	HireDate       *time.Time `json:"hire_date"`
}

// VariantFieldsValid reports whether the variant-specific required fields are
// present for the declared driver type
func (d *DriverCreate) VariantFieldsValid() bool {
	switch d.DriverType {
	case DriverTypeTransporter:
		return d.CompanyName != nil && *d.CompanyName != "" &&
			d.PhoneNumber != nil && *d.PhoneNumber != "" &&
			d.LicenseNumber != nil && *d.LicenseNumber != ""
	case DriverTypeInHouse:
		return d.EmployeeNumber != nil && *d.EmployeeNumber != "" &&
			d.Department != nil && *d.Department != "" &&
			d.HireDate != nil
	default:
		return false
	}
}

// ToDriver builds the entity, keeping only the fields valid for the variant
// so a transporter row never carries in-house columns and vice versa
func (d *DriverCreate) ToDriver() Driver {
	driver := Driver{
		Name:       d.Name,
		DriverType: d.DriverType,
	}
	switch d.DriverType {
	case DriverTypeTransporter:
		driver.CompanyName = d.CompanyName
		driver.PhoneNumber = d.PhoneNumber
		driver.LicenseNumber = d.LicenseNumber
	case DriverTypeInHouse:
		driver.EmployeeNumber = d.EmployeeNumber
		driver.Department = d.Department
		driver.HireDate = d.HireDate
	}
	return driver
}

// TableName specifies the table name for the Driver model
func (Driver) TableName() string {
	return "drivers"
}
