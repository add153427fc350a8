package coverage

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
)

func TestCalculateEightyPercentScenario(t *testing.T) {
	// Policy covers S1 at 80%; qty 2 @ $50.00 → base $100.00,
	// insurer $80.00, patient $20.00.
	s1 := snowflake.ID(1)
	got, err := Calculate(
		[]Line{{ServiceID: s1, Quantity: 2, UnitPriceCents: 5000}},
		map[snowflake.ID]int{s1: 80},
	)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	require.Equal(t, int64(10000), got.Lines[0].BasePriceCents)
	require.Equal(t, int64(8000), got.Lines[0].InsuranceCoversCents)
	require.Equal(t, int64(2000), got.Lines[0].PatientPaysCents)
	require.Equal(t, int64(10000), got.TotalBaseCents)
	require.Equal(t, int64(8000), got.TotalInsuranceCents)
	require.Equal(t, int64(2000), got.TotalPatientCents)
}

func TestCalculateZeroPercentIsExactBase(t *testing.T) {
	s1 := snowflake.ID(7)
	got, err := Calculate(
		[]Line{{ServiceID: s1, Quantity: 3, UnitPriceCents: 3333}},
		map[snowflake.ID]int{s1: 0},
	)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.Lines[0].InsuranceCoversCents)
	require.Equal(t, got.Lines[0].BasePriceCents, got.Lines[0].PatientPaysCents)
}

func TestCalculateHundredPercentIsExactZero(t *testing.T) {
	s1 := snowflake.ID(7)
	got, err := Calculate(
		[]Line{{ServiceID: s1, Quantity: 3, UnitPriceCents: 3333}},
		map[snowflake.ID]int{s1: 100},
	)
	require.NoError(t, err)
	require.Equal(t, got.Lines[0].BasePriceCents, got.Lines[0].InsuranceCoversCents)
	require.Equal(t, int64(0), got.Lines[0].PatientPaysCents)
}

func TestCalculateMissingServiceDefaultsToZeroCoverage(t *testing.T) {
	s1 := snowflake.ID(1)
	got, err := Calculate(
		[]Line{{ServiceID: s1, Quantity: 1, UnitPriceCents: 1500}},
		map[snowflake.ID]int{},
	)
	require.NoError(t, err)
	require.Equal(t, 0, got.Lines[0].CoveragePercent)
	require.Equal(t, int64(1500), got.Lines[0].PatientPaysCents)
}

func TestCalculateLinesAlwaysReconcile(t *testing.T) {
	// Odd amounts and odd percentages must never leak a cent: for every
	// line, covers + pays == base, and the totals are sums of the lines.
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	lines := make([]Line, 0, 101)
	percents := make(map[snowflake.ID]int, 101)
	for pct := 0; pct <= 100; pct++ {
		id := node.Generate()
		lines = append(lines, Line{ServiceID: id, Quantity: 1 + pct%5, UnitPriceCents: int64(pct*137 + 1)})
		percents[id] = pct
	}

	got, err := Calculate(lines, percents)
	require.NoError(t, err)

	var base, covers, pays int64
	for _, lb := range got.Lines {
		require.Equal(t, lb.BasePriceCents, lb.InsuranceCoversCents+lb.PatientPaysCents,
			"line with %d%% must reconcile", lb.CoveragePercent)
		require.GreaterOrEqual(t, lb.InsuranceCoversCents, int64(0))
		require.GreaterOrEqual(t, lb.PatientPaysCents, int64(0))
		base += lb.BasePriceCents
		covers += lb.InsuranceCoversCents
		pays += lb.PatientPaysCents
	}
	require.Equal(t, base, got.TotalBaseCents)
	require.Equal(t, covers, got.TotalInsuranceCents)
	require.Equal(t, pays, got.TotalPatientCents)
	require.Equal(t, got.TotalBaseCents, got.TotalInsuranceCents+got.TotalPatientCents)
}

func TestCalculateRoundsHalfUpPerLine(t *testing.T) {
	// 33% of $0.50 is 16.5 cents → rounds to 17; patient pays 33.
	s1 := snowflake.ID(1)
	got, err := Calculate(
		[]Line{{ServiceID: s1, Quantity: 1, UnitPriceCents: 50}},
		map[snowflake.ID]int{s1: 33},
	)
	require.NoError(t, err)
	require.Equal(t, int64(17), got.Lines[0].InsuranceCoversCents)
	require.Equal(t, int64(33), got.Lines[0].PatientPaysCents)
}

func TestCalculateRejectsBadInput(t *testing.T) {
	s1 := snowflake.ID(1)

	_, err := Calculate(nil, nil)
	require.ErrorIs(t, err, ErrNoLines)

	_, err = Calculate([]Line{{ServiceID: s1, Quantity: 0, UnitPriceCents: 100}}, nil)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = Calculate([]Line{{ServiceID: s1, Quantity: 1, UnitPriceCents: -1}}, nil)
	require.ErrorIs(t, err, ErrInvalidUnitPrice)

	_, err = Calculate(
		[]Line{{ServiceID: s1, Quantity: 1, UnitPriceCents: 100}},
		map[snowflake.ID]int{s1: 101},
	)
	require.ErrorIs(t, err, ErrInvalidPercent)
}
