package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Appointment is a booked slot for one doctor and one patient. Overlap
// checks only consider scheduled appointments; completed and cancelled rows
// free the slot.
type Appointment struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	ClinicID  snowflake.ID      `gorm:"not null;index:ix_appointments_clinic_doctor,priority:1"`
	PatientID snowflake.ID      `gorm:"not null;index"`
	DoctorID  snowflake.ID      `gorm:"not null;index:ix_appointments_clinic_doctor,priority:2"`
	ServiceID *snowflake.ID     `gorm:"index"`
	Status    AppointmentStatus `gorm:"type:text;not null;default:'scheduled'"`
	StartsAt  time.Time         `gorm:"not null;index:ix_appointments_clinic_doctor,priority:3"`
	EndsAt    time.Time         `gorm:"not null"`
	Notes     *string           `gorm:"type:text"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Appointment) TableName() string { return "appointments" }
