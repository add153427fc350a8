package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InsurancePolicy is an insurer contract a patient can be linked to.
type InsurancePolicy struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	ClinicID  snowflake.ID `gorm:"not null;index"`
	Name      string       `gorm:"type:text;not null"`
	Active    bool         `gorm:"not null;default:true"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InsurancePolicy) TableName() string { return "insurance_policies" }

// CoverageRule maps a (policy, service) pair to a whole-percent coverage
// share. The unique index gives the pair upsert semantics: writing a rule for
// an existing pair updates it in place. Inactive rules count as absent.
type CoverageRule struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	ClinicID  snowflake.ID `gorm:"not null;index"`
	PolicyID  snowflake.ID `gorm:"not null;uniqueIndex:ux_coverage_rules_policy_service,priority:1"`
	ServiceID snowflake.ID `gorm:"not null;uniqueIndex:ux_coverage_rules_policy_service,priority:2"`
	Percent   int          `gorm:"not null"`
	Active    bool         `gorm:"not null;default:true"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CoverageRule) TableName() string { return "coverage_rules" }
