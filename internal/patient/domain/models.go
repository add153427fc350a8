package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Patient is a registered clinic patient. A patient carries at most one
// insurance policy link at a time; invoices resolve coverage through it.
type Patient struct {
	ID         snowflake.ID  `gorm:"primaryKey"`
	ClinicID   snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_patients_clinic_document,priority:1"`
	DocumentID string        `gorm:"type:text;not null;uniqueIndex:ux_patients_clinic_document,priority:2"`
	FirstName  string        `gorm:"type:text;not null"`
	LastName   string        `gorm:"type:text;not null"`
	BirthDate  *time.Time    `gorm:""`
	Phone      *string       `gorm:"type:text"`
	Email      *string       `gorm:"type:text"`
	PolicyID   *snowflake.ID `gorm:"index"`
	Active     bool          `gorm:"not null;default:true"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Patient) TableName() string { return "patients" }
