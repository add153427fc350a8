package domain

import (
	"context"
	"errors"
	"time"

	"github.com/kronusitsolutions/kronusmed/internal/coverage"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
)

// LedgerService owns the lifecycle of an invoice's monetary state: totals,
// cumulative payments, the remaining pending balance, and status transitions,
// including the one-time exoneration write-off.
type LedgerService interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)

	AddLineItem(ctx context.Context, req AddLineItemRequest) (*Response, error)
	RemoveLineItem(ctx context.Context, invoiceID, itemID string) (*Response, error)

	RecordPayment(ctx context.Context, req RecordPaymentRequest) (*Response, error)
	Exonerate(ctx context.Context, req ExonerateRequest) (*Response, error)
	Cancel(ctx context.Context, invoiceID string) (*Response, error)
	MarkOverdue(ctx context.Context, invoiceID string) (*Response, error)

	// RefreshCoverage recomputes the insurance snapshot of a pending
	// invoice against current coverage rules. The snapshot is otherwise
	// frozen at creation time.
	RefreshCoverage(ctx context.Context, invoiceID string) (*Response, error)
}

// Service is the package alias for LedgerService.
type Service = LedgerService

type LineItemInput struct {
	ServiceID string `json:"service_id"`
	Quantity  int    `json:"quantity"`
}

type CreateRequest struct {
	PatientID string          `json:"patient_id"`
	DoctorID  string          `json:"doctor_id"`
	DueDate   *time.Time      `json:"due_date"`
	LineItems []LineItemInput `json:"line_items"`
}

type AddLineItemRequest struct {
	InvoiceID string `json:"-"`
	ServiceID string `json:"service_id"`
	Quantity  int    `json:"quantity"`
}

type RecordPaymentRequest struct {
	InvoiceID   string  `json:"-"`
	AmountCents int64   `json:"amount_cents"`
	Method      *string `json:"method"`
	Notes       *string `json:"notes"`
}

type ExonerateRequest struct {
	InvoiceID    string `json:"-"`
	Reason       string `json:"reason"`
	AuthorizedBy string `json:"authorized_by"`
}

type ListRequest struct {
	Status    string
	PatientID string
	DoctorID  string
	Overdue   *bool
	From      *time.Time
	To        *time.Time
	PageToken string
	PageSize  int32
}

type ListResponse struct {
	PageInfo pagination.PageInfo `json:"page_info"`
	Invoices []Response          `json:"invoices"`
}

type LineItemResponse struct {
	ID              string `json:"id"`
	ServiceID       string `json:"service_id"`
	Description     string `json:"description"`
	Quantity        int    `json:"quantity"`
	UnitPriceCents  int64  `json:"unit_price_cents"`
	TotalPriceCents int64  `json:"total_price_cents"`
}

type PaymentResponse struct {
	ID          string    `json:"id"`
	AmountCents int64     `json:"amount_cents"`
	Method      *string   `json:"method,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	Reference   string    `json:"reference"`
	ReceivedAt  time.Time `json:"received_at"`
}

type ExonerationResponse struct {
	ID                    string    `json:"id"`
	OriginalAmountCents   int64     `json:"original_amount_cents"`
	ExoneratedAmountCents int64     `json:"exonerated_amount_cents"`
	Reason                string    `json:"reason"`
	AuthorizedBy          string    `json:"authorized_by"`
	CreatedAt             time.Time `json:"created_at"`
}

type Response struct {
	ID                 string               `json:"id"`
	ClinicID           string               `json:"clinic_id"`
	InvoiceNumber      string               `json:"invoice_number"`
	PatientID          string               `json:"patient_id"`
	DoctorID           *string              `json:"doctor_id,omitempty"`
	PolicyID           *string              `json:"policy_id,omitempty"`
	Status             InvoiceStatus        `json:"status"`
	TotalAmountCents   int64                `json:"total_amount_cents"`
	PaidAmountCents    int64                `json:"paid_amount_cents"`
	PendingAmountCents int64                `json:"pending_amount_cents"`
	DueDate            *time.Time           `json:"due_date,omitempty"`
	Overdue            bool                 `json:"overdue"`
	LineItems          []LineItemResponse   `json:"line_items,omitempty"`
	Payments           []PaymentResponse    `json:"payments,omitempty"`
	Exoneration        *ExonerationResponse `json:"exoneration,omitempty"`
	InsuranceSnapshot  *coverage.Breakdown  `json:"insurance_snapshot,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

var (
	ErrInvalidClinic       = errors.New("invalid_clinic")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("invoice_not_found")
	ErrPatientNotFound     = errors.New("patient_not_found")
	ErrServiceNotFound     = errors.New("service_not_found")
	ErrServiceInactive     = errors.New("service_inactive")
	ErrNoLineItems         = errors.New("no_line_items")
	ErrLineItemNotFound    = errors.New("line_item_not_found")
	ErrLastLineItem        = errors.New("last_line_item")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidState        = errors.New("invalid_state")
	ErrOverpayment         = errors.New("overpayment")
	ErrAlreadyExonerated   = errors.New("already_exonerated")
	ErrMissingReason       = errors.New("missing_reason")
	ErrMissingAuthorizer   = errors.New("missing_authorizer")
	ErrInvalidFilter       = errors.New("invalid_filter")
	ErrConcurrencyConflict = errors.New("concurrency_conflict")
	ErrNumberExhausted     = errors.New("invoice_number_exhausted")
)
