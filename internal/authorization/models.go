package authorization

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// StaffMember ties a user to a clinic with a role. One row per
// (clinic, user).
type StaffMember struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	ClinicID    snowflake.ID `gorm:"not null;uniqueIndex:ux_staff_members_clinic_user,priority:1"`
	UserID      snowflake.ID `gorm:"not null;uniqueIndex:ux_staff_members_clinic_user,priority:2"`
	Role        string       `gorm:"type:text;not null"`
	DisplayName string       `gorm:"type:text;not null"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (StaffMember) TableName() string { return "staff_members" }
