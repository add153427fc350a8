package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"gorm.io/gorm"
)

// ListFilter is the structured query filter for invoice listings. Every
// field is optional; the service validates values before they reach SQL.
type ListFilter struct {
	Status    *InvoiceStatus
	PatientID *snowflake.ID
	DoctorID  *snowflake.ID
	Overdue   *bool
	From      *time.Time
	To        *time.Time
}

type Repository interface {
	InsertInvoice(ctx context.Context, db *gorm.DB, inv *Invoice) error
	InsertLineItems(ctx context.Context, db *gorm.DB, items []InvoiceLineItem) error
	FindByID(ctx context.Context, db *gorm.DB, clinicID, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*Invoice, error)

	// UpdateInvoiceState persists the monetary fields and status if and only
	// if the stored version still matches expectedVersion. It reports
	// whether the conditional update won; a false return means a concurrent
	// writer got there first.
	UpdateInvoiceState(ctx context.Context, db *gorm.DB, inv *Invoice, expectedVersion int64) (bool, error)

	MaxInvoiceSequence(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, prefix string) (int64, error)

	FindLineItems(ctx context.Context, db *gorm.DB, clinicID, invoiceID snowflake.ID) ([]InvoiceLineItem, error)
	CountLineItems(ctx context.Context, db *gorm.DB, clinicID, invoiceID snowflake.ID) (int64, error)
	FindLineItem(ctx context.Context, db *gorm.DB, clinicID, invoiceID, itemID snowflake.ID) (*InvoiceLineItem, error)
	InsertLineItem(ctx context.Context, db *gorm.DB, item *InvoiceLineItem) error
	DeleteLineItem(ctx context.Context, db *gorm.DB, clinicID, invoiceID, itemID snowflake.ID) error
	SumLineItems(ctx context.Context, db *gorm.DB, clinicID, invoiceID snowflake.ID) (int64, error)

	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindPayments(ctx context.Context, db *gorm.DB, clinicID, invoiceID snowflake.ID) ([]Payment, error)
	SumPayments(ctx context.Context, db *gorm.DB, clinicID, invoiceID snowflake.ID) (int64, error)

	InsertExoneration(ctx context.Context, db *gorm.DB, ex *Exoneration) error
	FindExoneration(ctx context.Context, db *gorm.DB, clinicID, invoiceID snowflake.ID) (*Exoneration, error)
}
