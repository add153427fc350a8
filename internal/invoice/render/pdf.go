// Package render produces printable invoice documents from ledger responses.
package render

import (
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	marotocfg "github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/kronusitsolutions/kronusmed/internal/invoice/domain"
)

// PDFRenderer renders an invoice response as an A4 PDF.
type PDFRenderer struct {
	clinicName string
}

func NewPDFRenderer(clinicName string) *PDFRenderer {
	if strings.TrimSpace(clinicName) == "" {
		clinicName = "KronusMed Clinic"
	}
	return &PDFRenderer{clinicName: clinicName}
}

func (r *PDFRenderer) Render(inv *domain.Response) ([]byte, error) {
	if inv == nil {
		return nil, fmt.Errorf("render: nil invoice")
	}

	cfg := marotocfg.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(12).
		WithRightMargin(12).
		WithTopMargin(12).
		Build()
	m := maroto.New(cfg)

	r.header(m, inv)
	r.lineItems(m, inv)
	r.totals(m, inv)
	if inv.InsuranceSnapshot != nil {
		r.coverage(m, inv)
	}
	r.payments(m, inv)
	if inv.Exoneration != nil {
		r.exoneration(m, inv)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return doc.GetBytes(), nil
}

func (r *PDFRenderer) header(m core.Maroto, inv *domain.Response) {
	m.AddRow(12,
		text.NewCol(8, r.clinicName, props.Text{Size: 16, Style: fontstyle.Bold}),
		text.NewCol(4, inv.InvoiceNumber, props.Text{Size: 14, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(6,
		text.NewCol(8, "Patient: "+inv.PatientID, props.Text{Size: 9}),
		text.NewCol(4, "Status: "+strings.ToUpper(string(inv.Status)), props.Text{Size: 9, Align: align.Right}),
	)
	dateLine := "Issued: " + inv.CreatedAt.Format("2006-01-02")
	if inv.DueDate != nil {
		dateLine += "    Due: " + inv.DueDate.Format("2006-01-02")
	}
	m.AddRow(6, text.NewCol(12, dateLine, props.Text{Size: 9}))
	m.AddRow(4, line.NewCol(12))
}

func (r *PDFRenderer) lineItems(m core.Maroto, inv *domain.Response) {
	m.AddRow(8,
		text.NewCol(6, "Service", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, "Qty", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
		text.NewCol(2, "Unit", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
		text.NewCol(2, "Total", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)
	for _, item := range inv.LineItems {
		m.AddRow(6,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, FormatCents(item.UnitPriceCents), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, FormatCents(item.TotalPriceCents), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(4, line.NewCol(12))
}

func (r *PDFRenderer) totals(m core.Maroto, inv *domain.Response) {
	rows := []struct {
		label string
		cents int64
		bold  bool
	}{
		{"Total", inv.TotalAmountCents, true},
		{"Paid", inv.PaidAmountCents, false},
		{"Pending", inv.PendingAmountCents, true},
	}
	for _, tr := range rows {
		style := fontstyle.Normal
		if tr.bold {
			style = fontstyle.Bold
		}
		m.AddRow(6,
			col.New(8),
			text.NewCol(2, tr.label, props.Text{Size: 9, Style: style, Align: align.Right}),
			text.NewCol(2, FormatCents(tr.cents), props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}
}

func (r *PDFRenderer) coverage(m core.Maroto, inv *domain.Response) {
	snap := inv.InsuranceSnapshot
	m.AddRow(8, text.NewCol(12, "Insurance coverage", props.Text{Size: 10, Style: fontstyle.Bold}))
	for _, ln := range snap.Lines {
		m.AddRow(5,
			text.NewCol(6, ln.ServiceID.String(), props.Text{Size: 8}),
			text.NewCol(2, fmt.Sprintf("%d%%", ln.CoveragePercent), props.Text{Size: 8, Align: align.Right}),
			text.NewCol(2, FormatCents(ln.InsuranceCoversCents), props.Text{Size: 8, Align: align.Right}),
			text.NewCol(2, FormatCents(ln.PatientPaysCents), props.Text{Size: 8, Align: align.Right}),
		)
	}
	m.AddRow(6,
		col.New(6),
		text.NewCol(2, "Insurer", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
		text.NewCol(2, FormatCents(snap.TotalInsuranceCents), props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, FormatCents(snap.TotalPatientCents), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(4, line.NewCol(12))
}

func (r *PDFRenderer) payments(m core.Maroto, inv *domain.Response) {
	if len(inv.Payments) == 0 {
		return
	}
	m.AddRow(8, text.NewCol(12, "Payments", props.Text{Size: 10, Style: fontstyle.Bold}))
	for _, p := range inv.Payments {
		method := ""
		if p.Method != nil {
			method = *p.Method
		}
		m.AddRow(5,
			text.NewCol(4, p.ReceivedAt.Format("2006-01-02 15:04"), props.Text{Size: 8}),
			text.NewCol(3, method, props.Text{Size: 8}),
			text.NewCol(3, p.Reference, props.Text{Size: 8}),
			text.NewCol(2, FormatCents(p.AmountCents), props.Text{Size: 8, Align: align.Right}),
		)
	}
}

func (r *PDFRenderer) exoneration(m core.Maroto, inv *domain.Response) {
	ex := inv.Exoneration
	m.AddRow(8, text.NewCol(12, "Exoneration", props.Text{Size: 10, Style: fontstyle.Bold}))
	m.AddRow(5, text.NewCol(12,
		fmt.Sprintf("Written off %s of %s. Reason: %s. Authorized by: %s.",
			FormatCents(ex.ExoneratedAmountCents), FormatCents(ex.OriginalAmountCents),
			ex.Reason, ex.AuthorizedBy),
		props.Text{Size: 8},
	))
}

// FormatCents renders a minor-unit amount as a decimal string. Negative
// amounts keep the sign on the whole value, not just the integer part.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
