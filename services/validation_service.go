package services

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tenderbid/models"
)

// Validation defaults. Thresholds are percentages.
var (
	defaultFormulaTolerancePct = decimal.NewFromInt(1)
	defaultOutlierThresholdPct = decimal.NewFromInt(10)
	lowCoverageThresholdPct    = decimal.NewFromInt(90)
)

// ValidationOptions tunes one validation pass. Zero values fall back to the
// defaults, so an empty struct is a valid configuration.
type ValidationOptions struct {
	// TolerancePct is the formula-check tolerance, default 1%.
	TolerancePct decimal.Decimal

	// OutlierThresholdPct is the lower edge of the medium outlier band,
	// default 10%. The high band starts at twice this value.
	OutlierThresholdPct decimal.Decimal

	// DetectOutliers enables the cross-bid outlier check. It only has an
	// effect when peer rates are supplied.
	DetectOutliers bool
}

func (o ValidationOptions) tolerance() decimal.Decimal {
	if o.TolerancePct.Sign() <= 0 {
		return defaultFormulaTolerancePct
	}
	return o.TolerancePct
}

func (o ValidationOptions) outlierThreshold() decimal.Decimal {
	if o.OutlierThresholdPct.Sign() <= 0 {
		return defaultOutlierThresholdPct
	}
	return o.OutlierThresholdPct
}

// ValidationService runs the four independent checks over a submission's
// resolved, normalized line items. It is stateless and side-effect-free;
// peer rates for the outlier check are handed in by the caller.
type ValidationService struct{}

func NewValidationService() *ValidationService {
	return &ValidationService{}
}

// Validate runs formula, data-sanity, coverage and (optionally) outlier
// checks. peerRates maps master item IDs to the normalized unit rates of all
// other imported bids for the same tender, already excluding no-bid and
// non-comparable lines.
func (s *ValidationService) Validate(submissionID int, masterItems []models.MasterBoqItem, items []models.NormalizedLineItem, peerRates map[int][]decimal.Decimal, opts ValidationOptions) *models.ValidationResult {
	result := &models.ValidationResult{
		SubmissionID: submissionID,
		CheckedAt:    time.Now().UTC(),
	}

	s.runCheck(result, "formula", s.formulaCheck(items, opts.tolerance()))
	s.runCheck(result, "data_sanity", s.sanityCheck(items))
	issues, detail := s.coverageCheck(masterItems, items)
	s.runCheckWithDetail(result, "coverage", issues, detail)
	if opts.DetectOutliers {
		s.runCheck(result, "outliers", s.outlierCheck(items, peerRates, opts.outlierThreshold()))
	}
	return result
}

func (s *ValidationService) runCheck(result *models.ValidationResult, name string, issues []models.ValidationIssue) {
	s.runCheckWithDetail(result, name, issues, "")
}

func (s *ValidationService) runCheckWithDetail(result *models.ValidationResult, name string, issues []models.ValidationIssue, detail string) {
	summary := models.CheckSummary{CheckName: name, IssueCount: len(issues), Detail: detail}
	for _, issue := range issues {
		switch issue.Severity {
		case models.SeverityError:
			summary.ErrorCount++
			result.HasErrors = true
		case models.SeverityWarning:
			summary.WarningCount++
			result.HasWarnings = true
		default:
			summary.InfoCount++
		}
	}
	result.Issues = append(result.Issues, issues...)
	result.Summaries = append(result.Summaries, summary)
}

// formulaCheck verifies amount = quantity * rate within tolerance for every
// line that carries all three values.
func (s *ValidationService) formulaCheck(items []models.NormalizedLineItem, tolerance decimal.Decimal) []models.ValidationIssue {
	var issues []models.ValidationIssue
	for _, item := range items {
		if item.IsNoBid || !item.NativeQuantity.Valid || !item.NativeUnitRate.Valid || !item.NativeAmount.Valid {
			continue
		}
		calculated := item.NativeQuantity.Decimal.Mul(item.NativeUnitRate.Decimal)
		deviation := FormulaDeviationPct(item.NativeAmount.Decimal, calculated)
		if deviation.LessThanOrEqual(tolerance) {
			continue
		}
		row := item.RowIndex
		issues = append(issues, models.ValidationIssue{
			Severity: models.SeverityWarning,
			Code:     models.IssueFormulaMismatch,
			Message: fmt.Sprintf("row %d: calculated amount %s deviates %s%% from provided %s",
				item.RowIndex, calculated.StringFixed(2), deviation.StringFixed(1), item.NativeAmount.Decimal.StringFixed(2)),
			RowIndex:       &row,
			MasterItemID:   item.MasterItemID,
			CanAutoCorrect: true,
			SuggestedValue: nullDecimal(calculated),
		})
	}
	return issues
}

// sanityCheck flags negative values as blocking errors and zero or missing
// rates on priced lines as warnings.
func (s *ValidationService) sanityCheck(items []models.NormalizedLineItem) []models.ValidationIssue {
	var issues []models.ValidationIssue
	for _, item := range items {
		row := item.RowIndex

		for _, v := range []struct {
			name  string
			value decimal.NullDecimal
		}{
			{"quantity", item.NativeQuantity},
			{"rate", item.NativeUnitRate},
			{"amount", item.NativeAmount},
		} {
			if v.value.Valid && v.value.Decimal.IsNegative() {
				issues = append(issues, models.ValidationIssue{
					Severity:     models.SeverityError,
					Code:         models.IssueNegativeValue,
					Message:      fmt.Sprintf("row %d: negative %s %s", item.RowIndex, v.name, v.value.Decimal),
					RowIndex:     &row,
					MasterItemID: item.MasterItemID,
				})
			}
		}

		if item.IsNoBid {
			continue
		}
		switch {
		case !item.NativeUnitRate.Valid:
			issues = append(issues, models.ValidationIssue{
				Severity:     models.SeverityWarning,
				Code:         models.IssueMissingRate,
				Message:      fmt.Sprintf("row %d: line is priced but has no unit rate", item.RowIndex),
				RowIndex:     &row,
				MasterItemID: item.MasterItemID,
			})
		case item.NativeUnitRate.Decimal.IsZero():
			issues = append(issues, models.ValidationIssue{
				Severity:     models.SeverityWarning,
				Code:         models.IssueZeroRate,
				Message:      fmt.Sprintf("row %d: zero unit rate on a line not marked no-bid", item.RowIndex),
				RowIndex:     &row,
				MasterItemID: item.MasterItemID,
			})
		}
	}
	return issues
}

// coverageCheck reports unmatched master items, extra bid lines and overall
// coverage. Coverage is 100% when the master BOQ has no leaf items.
func (s *ValidationService) coverageCheck(masterItems []models.MasterBoqItem, items []models.NormalizedLineItem) ([]models.ValidationIssue, string) {
	matched := make(map[int]bool)
	for _, item := range items {
		if item.MasterItemID != nil {
			matched[*item.MasterItemID] = true
		}
	}

	var issues []models.ValidationIssue
	totalLeaves, matchedLeaves := 0, 0
	for _, master := range masterItems {
		if master.IsGroup {
			continue
		}
		totalLeaves++
		if matched[master.ID] {
			matchedLeaves++
			continue
		}
		id := master.ID
		issues = append(issues, models.ValidationIssue{
			Severity:     models.SeverityWarning,
			Code:         models.IssueUnmatchedMasterItem,
			Message:      fmt.Sprintf("master item %s (%s) has no bid line", master.ItemNumber, master.Description),
			MasterItemID: &id,
		})
	}

	for _, item := range items {
		if item.MasterItemID != nil || item.IsNoBid {
			continue
		}
		row := item.RowIndex
		issues = append(issues, models.ValidationIssue{
			Severity: models.SeverityInfo,
			Code:     models.IssueExtraItem,
			Message:  fmt.Sprintf("row %d: item %q does not appear in the master BOQ", item.RowIndex, item.ItemNumber),
			RowIndex: &row,
		})
	}

	coverage := decimal.NewFromInt(100)
	if totalLeaves > 0 {
		coverage = decimal.NewFromInt(int64(matchedLeaves)).
			Div(decimal.NewFromInt(int64(totalLeaves))).
			Mul(decimal.NewFromInt(100))
	}
	if coverage.LessThan(lowCoverageThresholdPct) {
		issues = append(issues, models.ValidationIssue{
			Severity: models.SeverityWarning,
			Code:     models.IssueLowCoverage,
			Message: fmt.Sprintf("only %s%% of master items are priced (%d of %d)",
				coverage.StringFixed(1), matchedLeaves, totalLeaves),
		})
	}
	detail := fmt.Sprintf("coverage %s%% (%d/%d items matched)", coverage.StringFixed(1), matchedLeaves, totalLeaves)
	return issues, detail
}

// outlierCheck compares each comparable matched rate against the average of
// the other imported bids for the same master item. Boundaries are
// inclusive: deviation of exactly the threshold (or twice it) is medium.
func (s *ValidationService) outlierCheck(items []models.NormalizedLineItem, peerRates map[int][]decimal.Decimal, threshold decimal.Decimal) []models.ValidationIssue {
	highEdge := threshold.Mul(decimal.NewFromInt(2))

	var issues []models.ValidationIssue
	for _, item := range items {
		if item.MasterItemID == nil || item.IsNoBid || item.IsNonComparable || !item.NormalizedUnitRate.Valid {
			continue
		}
		rates := peerRates[*item.MasterItemID]
		if len(rates) == 0 {
			continue
		}
		avg := averageRate(rates)
		if avg.IsZero() {
			continue
		}
		deviation := item.NormalizedUnitRate.Decimal.Sub(avg).Div(avg).Mul(decimal.NewFromInt(100))
		abs := deviation.Abs()
		if abs.LessThan(threshold) {
			continue
		}

		direction := "above"
		if deviation.IsNegative() {
			direction = "below"
		}
		severity := models.SeverityInfo
		code := models.IssueRateOutlierMedium
		if abs.GreaterThan(highEdge) {
			severity = models.SeverityWarning
			code = models.IssueRateOutlierHigh
		}
		row := item.RowIndex
		issues = append(issues, models.ValidationIssue{
			Severity: severity,
			Code:     code,
			Message: fmt.Sprintf("row %d: rate %s is %s%% %s the cross-bid average %s",
				item.RowIndex, item.NormalizedUnitRate.Decimal.StringFixed(2),
				abs.StringFixed(1), direction, avg.StringFixed(2)),
			RowIndex:     &row,
			MasterItemID: item.MasterItemID,
		})
	}
	return issues
}

func averageRate(rates []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rates {
		sum = sum.Add(r)
	}
	return sum.Div(decimal.NewFromInt(int64(len(rates))))
}
