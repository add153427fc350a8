package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus is the settlement state of an invoice.
type InvoiceStatus string

const (
	// InvoiceStatusPending means no payment has been recorded yet.
	InvoiceStatusPending InvoiceStatus = "pending"
	// InvoiceStatusPartial means some, but not all, of the total is paid.
	InvoiceStatusPartial InvoiceStatus = "partial"
	// InvoiceStatusPaid is terminal: the pending balance reached zero.
	InvoiceStatusPaid InvoiceStatus = "paid"
	// InvoiceStatusExonerated is terminal: the outstanding balance was
	// written off by an authorized actor.
	InvoiceStatusExonerated InvoiceStatus = "exonerated"
	// InvoiceStatusCancelled is terminal: administratively voided.
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Terminal reports whether the status accepts no further mutation.
func (s InvoiceStatus) Terminal() bool {
	switch s {
	case InvoiceStatusPaid, InvoiceStatusExonerated, InvoiceStatusCancelled:
		return true
	}
	return false
}

// Invoice is the settlement aggregate root. The monetary fields are
// authoritative: pending == total - paid at all times, and reporting reads
// them directly instead of recomputing from payment history. Version backs
// optimistic concurrency on every monetary mutation.
type Invoice struct {
	ID                snowflake.ID   `gorm:"primaryKey"`
	ClinicID          snowflake.ID   `gorm:"not null;index;uniqueIndex:ux_invoices_clinic_number,priority:1"`
	InvoiceNumber     string         `gorm:"type:text;not null;uniqueIndex:ux_invoices_clinic_number,priority:2"`
	PatientID         snowflake.ID   `gorm:"not null;index"`
	DoctorID          *snowflake.ID  `gorm:"index"`
	PolicyID          *snowflake.ID  `gorm:"index"`
	Status            InvoiceStatus  `gorm:"type:text;not null;index"`
	TotalAmountCents  int64          `gorm:"not null"`
	PaidAmountCents   int64          `gorm:"not null;default:0"`
	PendingAmountCents int64         `gorm:"not null"`
	DueDate           *time.Time     `gorm:""`
	Overdue           bool           `gorm:"not null;default:false"`
	// Denormalized coverage breakdown captured at creation. A cached
	// computation result, never a source of truth, and never recomputed
	// implicitly on later edits.
	InsuranceSnapshot datatypes.JSON `gorm:"type:jsonb"`
	Version           int64          `gorm:"not null;default:1"`
	CreatedAt         time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceLineItem is one billed service on an invoice. Unit price is copied
// from the catalog at creation time; the line never tracks later price edits.
type InvoiceLineItem struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	ClinicID        snowflake.ID `gorm:"not null;index"`
	InvoiceID       snowflake.ID `gorm:"not null;index"`
	ServiceID       snowflake.ID `gorm:"not null;index"`
	Description     string       `gorm:"type:text;not null"`
	Quantity        int          `gorm:"not null"`
	UnitPriceCents  int64        `gorm:"not null"`
	TotalPriceCents int64        `gorm:"not null"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceLineItem) TableName() string { return "invoice_line_items" }

// Payment is an immutable record of money received against an invoice. The
// ledger guarantees sum(payments.amount) == invoice.paid_amount_cents.
type Payment struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	ClinicID    snowflake.ID `gorm:"not null;index"`
	InvoiceID   snowflake.ID `gorm:"not null;index"`
	AmountCents int64        `gorm:"not null"`
	Method      *string      `gorm:"type:text"`
	Notes       *string      `gorm:"type:text"`
	Reference   string       `gorm:"type:text;not null"`
	ReceivedAt  time.Time    `gorm:"not null"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// Exoneration is the one-time, irreversible write-off of an invoice's
// outstanding balance. The unique index on invoice_id enforces at most one
// per invoice at the datastore level.
type Exoneration struct {
	ID                    snowflake.ID `gorm:"primaryKey"`
	ClinicID              snowflake.ID `gorm:"not null;index"`
	InvoiceID             snowflake.ID `gorm:"not null;uniqueIndex:ux_exonerations_invoice"`
	OriginalAmountCents   int64        `gorm:"not null"`
	ExoneratedAmountCents int64        `gorm:"not null"`
	Reason                string       `gorm:"type:text;not null"`
	AuthorizedBy          string       `gorm:"type:text;not null"`
	CreatedAt             time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Exoneration) TableName() string { return "exonerations" }
