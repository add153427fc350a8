package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/kronusitsolutions/kronusmed/internal/clinicctx"
	"github.com/kronusitsolutions/kronusmed/internal/coverage"
	"github.com/kronusitsolutions/kronusmed/internal/invoice/domain"
	"gorm.io/gorm"
)

// ExplanationService answers "why does this invoice cost what it costs":
// each line item joined with the coverage split captured when the invoice
// was issued.
type ExplanationService struct {
	db *gorm.DB
}

func NewExplanationService(db *gorm.DB) *ExplanationService {
	return &ExplanationService{db: db}
}

type InvoiceExplanation struct {
	InvoiceID       string                `json:"invoice_id"`
	InvoiceNumber   string                `json:"invoice_number"`
	TotalCents      int64                 `json:"total_cents"`
	InsuranceCents  int64                 `json:"insurance_cents"`
	PatientCents    int64                 `json:"patient_cents"`
	Breakdown       []LineItemExplanation `json:"breakdown"`
	SnapshotMissing bool                  `json:"snapshot_missing,omitempty"`
}

type LineItemExplanation struct {
	LineItemID      string  `json:"line_item_id"`
	ServiceID       string  `json:"service_id"`
	Description     string  `json:"description"`
	Quantity        int     `json:"quantity"`
	UnitPriceCents  int64   `json:"unit_price_cents"`
	TotalPriceCents int64   `json:"total_price_cents"`
	Coverage        *LineCoverageExplanation `json:"coverage,omitempty"`
}

type LineCoverageExplanation struct {
	Percent        int    `json:"percent"`
	InsuranceCents int64  `json:"insurance_cents"`
	PatientCents   int64  `json:"patient_cents"`
	PolicyID       string `json:"policy_id,omitempty"`
}

func (s *ExplanationService) ExplainInvoice(ctx context.Context, rawID string) (*InvoiceExplanation, error) {
	clinicID, ok := clinicctx.ClinicIDFromContext(ctx)
	if !ok || clinicID == 0 {
		return nil, domain.ErrInvalidClinic
	}
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	var invoice domain.Invoice
	if err := s.db.WithContext(ctx).
		Where("clinic_id = ? AND id = ?", clinicID, invoiceID).
		First(&invoice).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	var items []domain.InvoiceLineItem
	if err := s.db.WithContext(ctx).Raw(`
		SELECT *
		FROM invoice_line_items
		WHERE clinic_id = ? AND invoice_id = ?
		ORDER BY created_at ASC, id ASC
	`, clinicID, invoiceID).Scan(&items).Error; err != nil {
		return nil, err
	}

	out := &InvoiceExplanation{
		InvoiceID:     invoice.ID.String(),
		InvoiceNumber: invoice.InvoiceNumber,
		TotalCents:    invoice.TotalAmountCents,
	}

	var snapshot *coverage.Breakdown
	if len(invoice.InsuranceSnapshot) > 0 {
		var parsed coverage.Breakdown
		if err := json.Unmarshal(invoice.InsuranceSnapshot, &parsed); err == nil {
			snapshot = &parsed
			out.InsuranceCents = parsed.TotalInsuranceCents
			out.PatientCents = parsed.TotalPatientCents
		}
	}
	if snapshot == nil {
		out.SnapshotMissing = true
	}

	policyID := ""
	if invoice.PolicyID != nil {
		policyID = invoice.PolicyID.String()
	}

	// The snapshot stores one entry per distinct service; consume entries
	// in order so repeated services map to their own snapshot lines.
	consumed := map[snowflake.ID]int{}
	out.Breakdown = make([]LineItemExplanation, 0, len(items))
	for _, item := range items {
		entry := LineItemExplanation{
			LineItemID:      item.ID.String(),
			ServiceID:       item.ServiceID.String(),
			Description:     item.Description,
			Quantity:        item.Quantity,
			UnitPriceCents:  item.UnitPriceCents,
			TotalPriceCents: item.TotalPriceCents,
		}
		if snapshot != nil {
			if ln := nextSnapshotLine(snapshot, item.ServiceID, consumed); ln != nil {
				entry.Coverage = &LineCoverageExplanation{
					Percent:        ln.CoveragePercent,
					InsuranceCents: ln.InsuranceCoversCents,
					PatientCents:   ln.PatientPaysCents,
					PolicyID:       policyID,
				}
			}
		}
		out.Breakdown = append(out.Breakdown, entry)
	}
	return out, nil
}

func nextSnapshotLine(snapshot *coverage.Breakdown, serviceID snowflake.ID, consumed map[snowflake.ID]int) *coverage.LineBreakdown {
	skip := consumed[serviceID]
	seen := 0
	for i := range snapshot.Lines {
		if snapshot.Lines[i].ServiceID != serviceID {
			continue
		}
		if seen == skip {
			consumed[serviceID] = skip + 1
			return &snapshot.Lines[i]
		}
		seen++
	}
	// More line items than snapshot entries for this service; reuse the
	// last matching entry rather than dropping coverage from the view.
	var last *coverage.LineBreakdown
	for i := range snapshot.Lines {
		if snapshot.Lines[i].ServiceID == serviceID {
			last = &snapshot.Lines[i]
		}
	}
	return last
}
