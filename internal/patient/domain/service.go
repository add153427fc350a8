package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	Search string
	Active *bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, patient *Patient) error
	FindByID(ctx context.Context, db *gorm.DB, clinicID, id snowflake.ID) (*Patient, error)
	FindByDocument(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, documentID string) (*Patient, error)
	List(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*Patient, error)
	Update(ctx context.Context, db *gorm.DB, patient *Patient) error
}

// PatientService manages the patient registry.
type PatientService interface {
	Register(ctx context.Context, req RegisterRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	LinkPolicy(ctx context.Context, patientID, policyID string) (*Response, error)
	UnlinkPolicy(ctx context.Context, patientID string) (*Response, error)
}

type RegisterRequest struct {
	DocumentID string     `json:"document_id"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	BirthDate  *time.Time `json:"birth_date"`
	Phone      *string    `json:"phone"`
	Email      *string    `json:"email"`
}

type UpdateRequest struct {
	ID        string     `json:"id"`
	FirstName *string    `json:"first_name,omitempty"`
	LastName  *string    `json:"last_name,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	Email     *string    `json:"email,omitempty"`
	Active    *bool      `json:"active,omitempty"`
}

type ListRequest struct {
	Search    string
	Active    *bool
	PageToken string
	PageSize  int32
}

type ListResponse struct {
	PageInfo pagination.PageInfo `json:"page_info"`
	Patients []Response          `json:"patients"`
}

type Response struct {
	ID         string     `json:"id"`
	ClinicID   string     `json:"clinic_id"`
	DocumentID string     `json:"document_id"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
	Phone      *string    `json:"phone,omitempty"`
	Email      *string    `json:"email,omitempty"`
	PolicyID   *string    `json:"policy_id,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

var (
	ErrInvalidClinic    = errors.New("invalid_clinic")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidDocument  = errors.New("invalid_document")
	ErrDuplicateDocument = errors.New("duplicate_document")
	ErrNotFound         = errors.New("patient_not_found")
)
