package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is a billable clinic service. Unit price is stored in minor
// currency units and is copied onto invoice line items at creation time, so
// later edits here never rewrite issued invoices.
type Service struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	ClinicID       snowflake.ID `gorm:"not null;index;uniqueIndex:ux_services_clinic_code,priority:1"`
	Code           string       `gorm:"type:text;not null;uniqueIndex:ux_services_clinic_code,priority:2"`
	Name           string       `gorm:"type:text;not null"`
	Category       string       `gorm:"type:text;not null;index"`
	UnitPriceCents int64        `gorm:"not null"`
	Active         bool         `gorm:"not null;default:true"`
	IdempotencyKey *string      `gorm:"type:text;index"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Service) TableName() string { return "services" }
