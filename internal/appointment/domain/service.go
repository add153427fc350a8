package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, appt *Appointment) error
	FindByID(ctx context.Context, db *gorm.DB, clinicID, id snowflake.ID) (*Appointment, error)
	// CountOverlapping counts scheduled appointments for the doctor whose
	// [starts_at, ends_at) window intersects the given one, excluding the
	// appointment being rescheduled when excludeID is non-zero.
	CountOverlapping(ctx context.Context, db *gorm.DB, clinicID, doctorID snowflake.ID, startsAt, endsAt time.Time, excludeID snowflake.ID) (int64, error)
	Update(ctx context.Context, db *gorm.DB, appt *Appointment) error
	List(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*Appointment, error)
}

type ListFilter struct {
	Status    *AppointmentStatus
	DoctorID  *snowflake.ID
	PatientID *snowflake.ID
	From      *time.Time
	To        *time.Time
}

// AppointmentService books clinic visits and moves them through their
// lifecycle.
type AppointmentService interface {
	Book(ctx context.Context, req BookRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Reschedule(ctx context.Context, req RescheduleRequest) (*Response, error)
	Complete(ctx context.Context, id string) (*Response, error)
	Cancel(ctx context.Context, id string) (*Response, error)
}

type BookRequest struct {
	PatientID string    `json:"patient_id"`
	DoctorID  string    `json:"doctor_id"`
	ServiceID string    `json:"service_id"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Notes     *string   `json:"notes"`
}

type RescheduleRequest struct {
	ID       string    `json:"-"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type ListRequest struct {
	Status    string
	DoctorID  string
	PatientID string
	From      *time.Time
	To        *time.Time
	PageToken string
	PageSize  int32
}

type ListResponse struct {
	PageInfo     pagination.PageInfo `json:"page_info"`
	Appointments []Response          `json:"appointments"`
}

type Response struct {
	ID        string            `json:"id"`
	ClinicID  string            `json:"clinic_id"`
	PatientID string            `json:"patient_id"`
	DoctorID  string            `json:"doctor_id"`
	ServiceID *string           `json:"service_id,omitempty"`
	Status    AppointmentStatus `json:"status"`
	StartsAt  time.Time         `json:"starts_at"`
	EndsAt    time.Time         `json:"ends_at"`
	Notes     *string           `json:"notes,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

var (
	ErrInvalidClinic   = errors.New("invalid_clinic")
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidSlot     = errors.New("invalid_slot")
	ErrSlotTaken       = errors.New("slot_taken")
	ErrPatientNotFound = errors.New("patient_not_found")
	ErrNotFound        = errors.New("appointment_not_found")
	ErrInvalidState    = errors.New("invalid_state")
	ErrInvalidFilter   = errors.New("invalid_filter")
)
