package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenderbid/models"
)

func normalizedItem(rowIndex int, masterItemID *int, qty, rate, amount string) models.NormalizedLineItem {
	item := models.NormalizedLineItem{
		RowIndex:     rowIndex,
		MasterItemID: masterItemID,
		ItemNumber:   "1.01",
		FxRate:       decimal.NewFromInt(1),
	}
	if qty != "" {
		item.NativeQuantity = nullDecimal(decimal.RequireFromString(qty))
	}
	if rate != "" {
		item.NativeUnitRate = nullDecimal(decimal.RequireFromString(rate))
		item.NormalizedUnitRate = item.NativeUnitRate
	}
	if amount != "" {
		item.NativeAmount = nullDecimal(decimal.RequireFromString(amount))
		item.NormalizedAmount = item.NativeAmount
	}
	return item
}

func issuesByCode(result *models.ValidationResult, code string) []models.ValidationIssue {
	var out []models.ValidationIssue
	for _, issue := range result.Issues {
		if issue.Code == code {
			out = append(out, issue)
		}
	}
	return out
}

func TestValidateFormulaCheck(t *testing.T) {
	id := 1
	items := []models.NormalizedLineItem{
		normalizedItem(3, &id, "100", "10", "1000"),
		normalizedItem(4, &id, "100", "10", "950"),
	}

	result := NewValidationService().Validate(7, nil, items, nil, ValidationOptions{})

	mismatches := issuesByCode(result, models.IssueFormulaMismatch)
	require.Len(t, mismatches, 1)
	issue := mismatches[0]
	assert.Equal(t, models.SeverityWarning, issue.Severity)
	require.NotNil(t, issue.RowIndex)
	assert.Equal(t, 4, *issue.RowIndex)
	assert.True(t, issue.CanAutoCorrect)
	require.True(t, issue.SuggestedValue.Valid)
	assert.True(t, issue.SuggestedValue.Decimal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, result.HasWarnings)
	assert.False(t, result.HasErrors)
}

func TestValidateNegativeValueIsBlocking(t *testing.T) {
	id := 1
	items := []models.NormalizedLineItem{
		normalizedItem(3, &id, "-5", "10", ""),
	}

	result := NewValidationService().Validate(7, nil, items, nil, ValidationOptions{})

	negatives := issuesByCode(result, models.IssueNegativeValue)
	require.Len(t, negatives, 1)
	assert.Equal(t, models.SeverityError, negatives[0].Severity)
	assert.True(t, result.HasErrors)
	assert.True(t, result.Blocked(true), "errors block even when forced")
}

func TestValidateZeroAndMissingRates(t *testing.T) {
	id := 1
	zeroRate := normalizedItem(3, &id, "10", "0", "")
	missingRate := normalizedItem(4, &id, "10", "", "")
	noBid := normalizedItem(5, &id, "", "", "")
	noBid.IsNoBid = true

	result := NewValidationService().Validate(7, nil,
		[]models.NormalizedLineItem{zeroRate, missingRate, noBid}, nil, ValidationOptions{})

	assert.Len(t, issuesByCode(result, models.IssueZeroRate), 1)
	assert.Len(t, issuesByCode(result, models.IssueMissingRate), 1)
	assert.True(t, result.HasWarnings)
	assert.False(t, result.HasErrors)
	assert.True(t, result.Blocked(false))
	assert.False(t, result.Blocked(true), "warnings alone are forceable")
}

func TestValidateCoverage(t *testing.T) {
	master := []models.MasterBoqItem{
		{ID: 1, ItemNumber: "1", Description: "Earthworks", IsGroup: true},
		{ID: 2, ItemNumber: "1.01", Description: "Excavation"},
		{ID: 3, ItemNumber: "1.02", Description: "Backfilling"},
	}
	matched := 2
	items := []models.NormalizedLineItem{
		normalizedItem(3, &matched, "10", "5", "50"),
		normalizedItem(4, nil, "1", "100", "100"),
	}

	result := NewValidationService().Validate(7, master, items, nil, ValidationOptions{})

	unmatched := issuesByCode(result, models.IssueUnmatchedMasterItem)
	require.Len(t, unmatched, 1)
	assert.Equal(t, models.SeverityWarning, unmatched[0].Severity)
	require.NotNil(t, unmatched[0].MasterItemID)
	assert.Equal(t, 3, *unmatched[0].MasterItemID)

	extras := issuesByCode(result, models.IssueExtraItem)
	require.Len(t, extras, 1)
	assert.Equal(t, models.SeverityInfo, extras[0].Severity)

	// 1 of 2 leaves matched = 50%, below the 90% floor.
	assert.Len(t, issuesByCode(result, models.IssueLowCoverage), 1)
}

func TestValidateCoverageFullWithNoMasterItems(t *testing.T) {
	items := []models.NormalizedLineItem{
		normalizedItem(3, nil, "10", "5", "50"),
	}

	result := NewValidationService().Validate(7, nil, items, nil, ValidationOptions{})

	assert.Empty(t, issuesByCode(result, models.IssueLowCoverage))
	var coverage *models.CheckSummary
	for i := range result.Summaries {
		if result.Summaries[i].CheckName == "coverage" {
			coverage = &result.Summaries[i]
		}
	}
	require.NotNil(t, coverage)
	assert.Contains(t, coverage.Detail, "coverage 100.0%")
}

func TestValidateOutlierBoundariesInclusive(t *testing.T) {
	id := 1
	peer := map[int][]decimal.Decimal{
		1: {decimal.NewFromInt(100), decimal.NewFromInt(110), decimal.NewFromInt(120)},
	}
	// Cross-bid average is 110.
	cases := []struct {
		rate string
		code string
	}{
		{"121", models.IssueRateOutlierMedium},  // exactly +10%
		{"132", models.IssueRateOutlierMedium},  // exactly +20%
		{"132.11", models.IssueRateOutlierHigh}, // 20.1%
		{"88", models.IssueRateOutlierMedium},   // exactly -20%
		{"80", models.IssueRateOutlierHigh},     // -27%
	}
	for _, tc := range cases {
		items := []models.NormalizedLineItem{
			normalizedItem(3, &id, "1", tc.rate, tc.rate),
		}
		result := NewValidationService().Validate(7, nil, items, peer,
			ValidationOptions{DetectOutliers: true})
		require.Len(t, issuesByCode(result, tc.code), 1, "rate %s", tc.rate)
	}

	// Below 10% deviation is never flagged.
	items := []models.NormalizedLineItem{
		normalizedItem(3, &id, "1", "119", "119"),
	}
	result := NewValidationService().Validate(7, nil, items, peer,
		ValidationOptions{DetectOutliers: true})
	assert.Empty(t, issuesByCode(result, models.IssueRateOutlierMedium))
	assert.Empty(t, issuesByCode(result, models.IssueRateOutlierHigh))
}

func TestValidateOutlierSkipsExcludedLines(t *testing.T) {
	id := 1
	peer := map[int][]decimal.Decimal{1: {decimal.NewFromInt(100)}}

	noBid := normalizedItem(3, &id, "", "", "")
	noBid.IsNoBid = true
	nonComparable := normalizedItem(4, &id, "1", "500", "500")
	nonComparable.IsNonComparable = true
	nonComparable.NormalizedUnitRate = decimal.NullDecimal{}

	result := NewValidationService().Validate(7, nil,
		[]models.NormalizedLineItem{noBid, nonComparable}, peer,
		ValidationOptions{DetectOutliers: true})

	assert.Empty(t, issuesByCode(result, models.IssueRateOutlierMedium))
	assert.Empty(t, issuesByCode(result, models.IssueRateOutlierHigh))
}

func TestValidateOutliersOnlyWhenRequested(t *testing.T) {
	id := 1
	peer := map[int][]decimal.Decimal{1: {decimal.NewFromInt(100)}}
	items := []models.NormalizedLineItem{
		normalizedItem(3, &id, "1", "500", "500"),
	}

	result := NewValidationService().Validate(7, nil, items, peer, ValidationOptions{})
	assert.Empty(t, issuesByCode(result, models.IssueRateOutlierHigh))
	for _, s := range result.Summaries {
		assert.NotEqual(t, "outliers", s.CheckName)
	}
}
