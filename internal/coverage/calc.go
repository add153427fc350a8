// Package coverage splits invoice line amounts between an insurer and the
// patient. All amounts are integer minor currency units; the insurer share is
// rounded per line and the patient share is derived by subtraction, so every
// line reconciles to its base price exactly and aggregate totals are plain
// sums of the already-rounded line values.
package coverage

import (
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Line is one requested billable line: a service, how many units, and the
// unit price in minor units (already copied from the catalog).
type Line struct {
	ServiceID      snowflake.ID
	Quantity       int
	UnitPriceCents int64
}

// LineBreakdown is the computed split for a single line.
type LineBreakdown struct {
	ServiceID            snowflake.ID `json:"service_id"`
	Quantity             int          `json:"quantity"`
	UnitPriceCents       int64        `json:"unit_price_cents"`
	BasePriceCents       int64        `json:"base_price_cents"`
	CoveragePercent      int          `json:"coverage_percent"`
	InsuranceCoversCents int64        `json:"insurance_covers_cents"`
	PatientPaysCents     int64        `json:"patient_pays_cents"`
}

// Breakdown is the full calculation result persisted as the invoice's
// insurance snapshot.
type Breakdown struct {
	Lines                []LineBreakdown `json:"lines"`
	TotalBaseCents       int64           `json:"total_base_cents"`
	TotalInsuranceCents  int64           `json:"total_insurance_cents"`
	TotalPatientCents    int64           `json:"total_patient_cents"`
}

var (
	ErrNoLines          = errors.New("no_lines")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidUnitPrice = errors.New("invalid_unit_price")
	ErrInvalidPercent   = errors.New("invalid_percent")
)

// Calculate applies the resolved coverage percentages to the requested lines.
// Services absent from the percent map are billed at 0% coverage.
func Calculate(lines []Line, percents map[snowflake.ID]int) (Breakdown, error) {
	if len(lines) == 0 {
		return Breakdown{}, ErrNoLines
	}

	out := Breakdown{Lines: make([]LineBreakdown, 0, len(lines))}
	for _, line := range lines {
		if line.Quantity < 1 {
			return Breakdown{}, ErrInvalidQuantity
		}
		if line.UnitPriceCents < 0 {
			return Breakdown{}, ErrInvalidUnitPrice
		}
		percent := percents[line.ServiceID]
		if percent < 0 || percent > 100 {
			return Breakdown{}, ErrInvalidPercent
		}

		base := int64(line.Quantity) * line.UnitPriceCents
		covers := roundedShare(base, percent)

		lb := LineBreakdown{
			ServiceID:            line.ServiceID,
			Quantity:             line.Quantity,
			UnitPriceCents:       line.UnitPriceCents,
			BasePriceCents:       base,
			CoveragePercent:      percent,
			InsuranceCoversCents: covers,
			PatientPaysCents:     base - covers,
		}
		out.Lines = append(out.Lines, lb)
		out.TotalBaseCents += lb.BasePriceCents
		out.TotalInsuranceCents += lb.InsuranceCoversCents
		out.TotalPatientCents += lb.PatientPaysCents
	}
	return out, nil
}

// roundedShare computes base*percent/100 rounded half up. 0 and 100 percent
// hit the exact endpoints with no rounding involved.
func roundedShare(base int64, percent int) int64 {
	switch percent {
	case 0:
		return 0
	case 100:
		return base
	}
	return (base*int64(percent) + 50) / 100
}
