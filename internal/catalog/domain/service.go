package domain

import (
	"context"
	"errors"
	"time"

	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
)

// CatalogService manages the clinic's billable service catalog.
type CatalogService interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Archive(ctx context.Context, id string) (*Response, error)
}

type CreateRequest struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Active         *bool  `json:"active"`
	IdempotencyKey string `json:"-"`
}

type UpdateRequest struct {
	ID             string  `json:"id"`
	Name           *string `json:"name,omitempty"`
	Category       *string `json:"category,omitempty"`
	UnitPriceCents *int64  `json:"unit_price_cents,omitempty"`
	Active         *bool   `json:"active,omitempty"`
}

type ListRequest struct {
	Category  string
	Name      string
	Active    *bool
	PageToken string
	PageSize  int32
}

type ListResponse struct {
	PageInfo pagination.PageInfo `json:"page_info"`
	Services []Response          `json:"services"`
}

type Response struct {
	ID             string    `json:"id"`
	ClinicID       string    `json:"clinic_id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

var (
	ErrInvalidClinic = errors.New("invalid_clinic")
	ErrInvalidID     = errors.New("invalid_id")
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidPrice  = errors.New("invalid_price")
	ErrNotFound      = errors.New("service_not_found")
)
