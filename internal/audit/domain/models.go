package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog is an append-only record of a mutating request. Rows are never
// updated or deleted.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	ClinicID   snowflake.ID      `gorm:"not null;index:ix_audit_logs_clinic_time,priority:1"`
	ActorType  string            `gorm:"type:text;not null"`
	ActorID    *string           `gorm:"type:text"`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:"type:text"`
	IPAddress  *string           `gorm:"type:text"`
	UserAgent  *string           `gorm:"type:text"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null;index:ix_audit_logs_clinic_time,priority:2"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
