package repository

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/kronusitsolutions/kronusmed/internal/invoice/domain"
	"github.com/kronusitsolutions/kronusmed/pkg/db/option"
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

func (r *repo) InsertInvoice(ctx context.Context, db *gorm.DB, inv *invoicedomain.Invoice) error {
	return db.WithContext(ctx).Create(inv).Error
}

func (r *repo) InsertLineItems(ctx context.Context, db *gorm.DB, items []invoicedomain.InvoiceLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, clinicID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("clinic_id = ? AND id = ?", clinicID, id).
		Limit(1).
		Find(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.ID == 0 {
		return nil, nil
	}
	return &inv, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, filter invoicedomain.ListFilter, page pagination.Pagination) ([]*invoicedomain.Invoice, error) {
	var items []*invoicedomain.Invoice

	query := db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("clinic_id = ?", clinicID)

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PatientID != nil {
		query = query.Where("patient_id = ?", *filter.PatientID)
	}
	if filter.DoctorID != nil {
		query = query.Where("doctor_id = ?", *filter.DoctorID)
	}
	if filter.Overdue != nil {
		query = query.Where("overdue = ?", *filter.Overdue)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}

	query = option.ApplyPagination(page).Apply(query)
	if page.PageToken != "" || page.PageSize > 0 {
		query = query.Order("created_at desc, id desc")
	} else {
		query = query.Order("created_at DESC")
	}

	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateInvoiceState is the single write path for the monetary fields. The
// version predicate makes it a compare-and-swap: a lost race updates zero
// rows and the caller maps that to a retryable conflict.
func (r *repo) UpdateInvoiceState(ctx context.Context, db *gorm.DB, inv *invoicedomain.Invoice, expectedVersion int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, total_amount_cents = ?, paid_amount_cents = ?,
		     pending_amount_cents = ?, overdue = ?, insurance_snapshot = ?,
		     version = ?, updated_at = ?
		 WHERE clinic_id = ? AND id = ? AND version = ?`,
		inv.Status,
		inv.TotalAmountCents,
		inv.PaidAmountCents,
		inv.PendingAmountCents,
		inv.Overdue,
		inv.InsuranceSnapshot,
		expectedVersion+1,
		inv.UpdatedAt,
		inv.ClinicID,
		inv.ID,
		expectedVersion,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	inv.Version = expectedVersion + 1
	return true, nil
}

// MaxInvoiceSequence parses the numeric tail of the highest invoice number
// under the prefix. The caller still relies on the unique index: this is
// only the starting guess for the insert-with-retry loop.
func (r *repo) MaxInvoiceSequence(ctx context.Context, db *gorm.DB, clinicID snowflake.ID, prefix string) (int64, error) {
	var numbers []string
	err := db.WithContext(ctx).Raw(
		`SELECT invoice_number FROM invoices
		 WHERE clinic_id = ? AND invoice_number LIKE ?
		 ORDER BY invoice_number DESC LIMIT 1`,
		clinicID,
		prefix+"-%",
	).Scan(&numbers).Error
	if err != nil {
		return 0, err
	}
	if len(numbers) == 0 {
		return 0, nil
	}
	tail := strings.TrimPrefix(numbers[0], prefix+"-")
	seq, err := strconv.ParseInt(tail, 10, 64)
	if err != nil {
		return 0, nil
	}
	return seq, nil
}

func (r *repo) FindLineItems(ctx context.Context, db *gorm.DB, clinicID, invoiceID snowflake.ID) ([]invoicedomain.InvoiceLineItem, error) {
	var items []invoicedomain.InvoiceLineItem
	err := db.WithContext(ctx).
		Model(&invoicedomain.InvoiceLineItem{}).
		Where("clinic_id = ? AND invoice_id = ?", clinicID, invoiceID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountLineItems(ctx context.Context, db *gorm.DB, clinicID, invoiceID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&invoicedomain.InvoiceLineItem{}).
		Where("clinic_id = ? AND invoice_id = ?", clinicID, invoiceID).
		Count(&count).Error
	return count, err
}

func (r *repo) FindLineItem(ctx context.Context, db *gorm.DB, clinicID, invoiceID, itemID snowflake.ID) (*invoicedomain.InvoiceLineItem, error) {
	var item invoicedomain.InvoiceLineItem
	err := db.WithContext(ctx).
		Model(&invoicedomain.InvoiceLineItem{}).
		Where("clinic_id = ? AND invoice_id = ? AND id = ?", clinicID, invoiceID, itemID).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertLineItem(ctx context.Context, db *gorm.DB, item *invoicedomain.InvoiceLineItem) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) DeleteLineItem(ctx context.Context, db *gorm.DB, clinicID, invoiceID, itemID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM invoice_line_items WHERE clinic_id = ? AND invoice_id = ? AND id = ?`,
		clinicID,
		invoiceID,
		itemID,
	).Error
}

func (r *repo) SumLineItems(ctx context.Context, db *gorm.DB, clinicID, invoiceID snowflake.ID) (int64, error) {
	var total *int64
	err := db.WithContext(ctx).Raw(
		`SELECT SUM(total_price_cents) FROM invoice_line_items
		 WHERE clinic_id = ? AND invoice_id = ?`,
		clinicID,
		invoiceID,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *invoicedomain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindPayments(ctx context.Context, db *gorm.DB, clinicID, invoiceID snowflake.ID) ([]invoicedomain.Payment, error) {
	var payments []invoicedomain.Payment
	err := db.WithContext(ctx).
		Model(&invoicedomain.Payment{}).
		Where("clinic_id = ? AND invoice_id = ?", clinicID, invoiceID).
		Order("received_at ASC, id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) SumPayments(ctx context.Context, db *gorm.DB, clinicID, invoiceID snowflake.ID) (int64, error) {
	var total *int64
	err := db.WithContext(ctx).Raw(
		`SELECT SUM(amount_cents) FROM payments
		 WHERE clinic_id = ? AND invoice_id = ?`,
		clinicID,
		invoiceID,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (r *repo) InsertExoneration(ctx context.Context, db *gorm.DB, ex *invoicedomain.Exoneration) error {
	return db.WithContext(ctx).Create(ex).Error
}

func (r *repo) FindExoneration(ctx context.Context, db *gorm.DB, clinicID, invoiceID snowflake.ID) (*invoicedomain.Exoneration, error) {
	var ex invoicedomain.Exoneration
	err := db.WithContext(ctx).
		Model(&invoicedomain.Exoneration{}).
		Where("clinic_id = ? AND invoice_id = ?", clinicID, invoiceID).
		Limit(1).
		Find(&ex).Error
	if err != nil {
		return nil, err
	}
	if ex.ID == 0 {
		return nil, nil
	}
	return &ex, nil
}
