package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenderbid/models"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(NewUomService(testUomDefinitions()))
}

func matchedTo(rowIndex, masterItemID int) models.ItemMatch {
	return models.ItemMatch{
		LineRowIndex: rowIndex,
		MasterItemID: &masterItemID,
		MatchType:    models.MatchExact,
		Confidence:   100,
	}
}

func validLine(rowIndex int, qty, rate, amount string) models.RawBidLine {
	line := models.RawBidLine{RowIndex: rowIndex, ItemNumber: "1.01", Description: "work item"}
	if qty != "" {
		line.Quantity = nullDecimal(decimal.RequireFromString(qty))
	}
	if rate != "" {
		line.UnitRate = nullDecimal(decimal.RequireFromString(rate))
	}
	if amount != "" {
		line.Amount = nullDecimal(decimal.RequireFromString(amount))
	}
	return line
}

func TestNormalizeRateConvertsUomAndCurrency(t *testing.T) {
	master := []models.MasterBoqItem{{ID: 1, ItemNumber: "1.01", Uom: "m2"}}
	line := validLine(3, "100", "10", "1000")
	line.Uom = "sqft"

	result, err := newTestNormalizer().Normalize(models.PricingLevelItem, master,
		[]models.RawBidLine{line}, []models.ItemMatch{matchedTo(3, 1)}, decimal.NewFromInt(1))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	item := result.Items[0]
	assert.Equal(t, "m2", item.TargetUom)
	require.True(t, item.UomFactor.Valid)
	assert.True(t, item.UomFactor.Decimal.Equal(decimal.RequireFromString("0.092903")))

	// 10 per sqft = 10 / 0.092903 = 107.6392... per m2
	require.True(t, item.NormalizedUnitRate.Valid)
	rate := item.NormalizedUnitRate.Decimal.Round(2)
	assert.True(t, rate.Equal(decimal.RequireFromString("107.64")), "got %s", rate)

	require.True(t, item.NormalizedAmount.Valid)
	assert.True(t, item.NormalizedAmount.Decimal.Equal(decimal.NewFromInt(1000)))
}

func TestNormalizeCurrencyOnlyIsExact(t *testing.T) {
	master := []models.MasterBoqItem{{ID: 1, ItemNumber: "1.01", Uom: "m3"}}
	line := validLine(3, "1", "100", "100")
	line.Uom = "m3"
	fx := decimal.RequireFromString("3.75")

	result, err := newTestNormalizer().Normalize(models.PricingLevelItem, master,
		[]models.RawBidLine{line}, []models.ItemMatch{matchedTo(3, 1)}, fx)
	require.NoError(t, err)

	item := result.Items[0]
	require.True(t, item.NormalizedUnitRate.Valid)
	assert.True(t, item.NormalizedUnitRate.Decimal.Equal(decimal.RequireFromString("375")),
		"got %s", item.NormalizedUnitRate.Decimal)
	require.True(t, item.NormalizedAmount.Valid)
	assert.True(t, item.NormalizedAmount.Decimal.Equal(decimal.RequireFromString("375")))
	assert.True(t, result.NormalizedTotal.Equal(decimal.RequireFromString("375")))
}

func TestNormalizeNonComparableUom(t *testing.T) {
	master := []models.MasterBoqItem{{ID: 1, ItemNumber: "1.01", Uom: "m2"}}
	line := validLine(3, "1", "5000", "5000")
	line.Uom = "LS"

	result, err := newTestNormalizer().Normalize(models.PricingLevelItem, master,
		[]models.RawBidLine{line}, []models.ItemMatch{matchedTo(3, 1)}, decimal.NewFromInt(1))
	require.NoError(t, err)

	item := result.Items[0]
	assert.True(t, item.IsNonComparable)
	assert.Equal(t, "different categories: Lump vs Area", item.NonComparableReason)
	assert.False(t, item.NormalizedUnitRate.Valid)
	assert.False(t, item.NormalizedAmount.Valid)
	assert.False(t, item.UomFactor.Valid)
	assert.False(t, item.IsIncludedInTotal)
	assert.True(t, result.NormalizedTotal.IsZero())
}

func TestNormalizeNoBidLineProducesNoFigures(t *testing.T) {
	master := []models.MasterBoqItem{{ID: 1, ItemNumber: "1.01", Uom: "m2"}}
	line := models.RawBidLine{RowIndex: 3, ItemNumber: "1.01", Uom: "m2", IsNoBid: true}

	result, err := newTestNormalizer().Normalize(models.PricingLevelItem, master,
		[]models.RawBidLine{line}, []models.ItemMatch{matchedTo(3, 1)}, decimal.NewFromInt(1))
	require.NoError(t, err)

	item := result.Items[0]
	assert.True(t, item.IsNoBid)
	assert.False(t, item.NormalizedUnitRate.Valid)
	assert.False(t, item.NormalizedAmount.Valid)
	assert.False(t, item.IsIncludedInTotal)
	assert.True(t, result.NormalizedTotal.IsZero())
}

func TestNormalizeFormulaMismatchCounted(t *testing.T) {
	master := []models.MasterBoqItem{{ID: 1, ItemNumber: "1.01", Uom: "m3"}}
	good := validLine(3, "100", "10", "1000")
	good.Uom = "m3"
	offByFivePct := validLine(4, "100", "10", "950")
	offByFivePct.Uom = "m3"
	withinTolerance := validLine(5, "100", "10", "1005")
	withinTolerance.Uom = "m3"

	result, err := newTestNormalizer().Normalize(models.PricingLevelItem, master,
		[]models.RawBidLine{good, offByFivePct, withinTolerance},
		[]models.ItemMatch{matchedTo(3, 1), matchedTo(4, 1), matchedTo(5, 1)},
		decimal.NewFromInt(1))
	require.NoError(t, err)

	assert.Equal(t, 1, result.MismatchCount)
	assert.False(t, result.Items[0].HasFormulaError)
	assert.True(t, result.Items[1].HasFormulaError)
	assert.False(t, result.Items[2].HasFormulaError, "0.5% deviation is within the 1% tolerance")
}

func TestNormalizeMissingAmountFallsBackToCalculated(t *testing.T) {
	master := []models.MasterBoqItem{{ID: 1, ItemNumber: "1.01", Uom: "m3"}}
	line := validLine(3, "20", "5", "")
	line.Uom = "m3"

	result, err := newTestNormalizer().Normalize(models.PricingLevelItem, master,
		[]models.RawBidLine{line}, []models.ItemMatch{matchedTo(3, 1)}, decimal.NewFromInt(1))
	require.NoError(t, err)

	item := result.Items[0]
	assert.False(t, item.HasFormulaError)
	require.True(t, item.NormalizedAmount.Valid)
	assert.True(t, item.NormalizedAmount.Decimal.Equal(decimal.NewFromInt(100)))
	assert.True(t, item.IsIncludedInTotal)
}

func TestNormalizeUnmatchedLineKeepsNativeUom(t *testing.T) {
	line := validLine(7, "1", "100", "100")
	line.Uom = "m2"
	extra := models.ItemMatch{LineRowIndex: 7, MatchType: models.MatchExtraItem, NeedsReview: true}

	result, err := newTestNormalizer().Normalize(models.PricingLevelItem, nil,
		[]models.RawBidLine{line}, []models.ItemMatch{extra}, decimal.NewFromInt(2))
	require.NoError(t, err)

	item := result.Items[0]
	assert.Equal(t, "m2", item.TargetUom)
	assert.Nil(t, item.MasterItemID)
	require.True(t, item.NormalizedUnitRate.Valid)
	assert.True(t, item.NormalizedUnitRate.Decimal.Equal(decimal.NewFromInt(200)))
}

func TestNormalizePricingLevelControlsTotals(t *testing.T) {
	bill := validLine(2, "", "", "10000")
	bill.ItemNumber = "1"
	bill.Uom = "m3"
	item := validLine(3, "100", "10", "1000")
	item.Uom = "m3"
	subItem := validLine(4, "10", "5", "50")
	subItem.ItemNumber = "1.01.a"
	subItem.Uom = "m3"
	lines := []models.RawBidLine{bill, item, subItem}

	result, err := newTestNormalizer().Normalize(models.PricingLevelItem, nil, lines, nil, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.False(t, result.Items[0].IsIncludedInTotal)
	assert.True(t, result.Items[1].IsIncludedInTotal)
	assert.False(t, result.Items[2].IsIncludedInTotal)
	assert.True(t, result.NormalizedTotal.Equal(decimal.NewFromInt(1000)))

	result, err = newTestNormalizer().Normalize(models.PricingLevelBill, nil, lines, nil, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, result.NormalizedTotal.Equal(decimal.NewFromInt(10000)))

	result, err = newTestNormalizer().Normalize(models.PricingLevelSubItem, nil, lines, nil, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, result.NormalizedTotal.Equal(decimal.NewFromInt(50)))
}

func TestNormalizeRejectsNonPositiveFx(t *testing.T) {
	_, err := newTestNormalizer().Normalize(models.PricingLevelItem, nil, nil, nil, decimal.Zero)
	require.Error(t, err)
	assert.True(t, IsErrType(err, ErrInvalidState))
}

func TestFormulaDeviationEdgeCases(t *testing.T) {
	assert.True(t, FormulaDeviationPct(decimal.Zero, decimal.Zero).IsZero())
	assert.True(t, FormulaDeviationPct(decimal.Zero, decimal.NewFromInt(50)).
		Equal(decimal.NewFromInt(100)))
	assert.True(t, FormulaDeviationPct(decimal.NewFromInt(100), decimal.NewFromInt(95)).
		Equal(decimal.NewFromInt(5)))
}
