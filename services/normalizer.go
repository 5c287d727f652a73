package services

import (
	"strings"

	"github.com/shopspring/decimal"

	"tenderbid/models"
)

// formulaTolerancePct is the allowed deviation between a provided amount and
// quantity times rate before a line counts as a formula mismatch.
var formulaTolerancePct = decimal.NewFromInt(1)

// Normalizer converts extracted bid lines into the tender's base currency
// and each master item's unit of measure.
type Normalizer struct {
	uoms *UomService
}

func NewNormalizer(uoms *UomService) *Normalizer {
	return &Normalizer{uoms: uoms}
}

// Normalize produces one NormalizedLineItem per raw line.
//
// Rates convert as nativeRate * fxRate / factor(nativeUom -> targetUom), so a
// rate quoted per square foot becomes a higher rate per square metre. Amounts
// only need the currency leg: nativeAmount * fxRate. A line whose unit cannot
// convert to its master item's unit is marked non-comparable and gets no
// normalized figures at all.
//
// Only lines whose item-number depth matches the tender's pricing level
// contribute to the normalized total; summing bill, item and sub-item rows
// together would count the same money more than once.
func (n *Normalizer) Normalize(pricingLevel models.PricingLevel, masterItems []models.MasterBoqItem, lines []models.RawBidLine, matches []models.ItemMatch, fxRate decimal.Decimal) (*models.NormalizationResult, error) {
	if fxRate.Sign() <= 0 {
		return nil, NewErrorf(ErrInvalidState, "fx rate must be positive, got %s", fxRate)
	}

	masterByID := make(map[int]models.MasterBoqItem, len(masterItems))
	for _, item := range masterItems {
		masterByID[item.ID] = item
	}
	matchByRow := make(map[int]models.ItemMatch, len(matches))
	for _, m := range matches {
		matchByRow[m.LineRowIndex] = m
	}

	result := &models.NormalizationResult{FxRate: fxRate}
	total := decimal.Zero
	for _, line := range lines {
		item := n.normalizeLine(pricingLevel, line, matchByRow[line.RowIndex], masterByID, fxRate)
		if item.HasFormulaError {
			result.MismatchCount++
		}
		if item.IsIncludedInTotal {
			total = total.Add(item.NormalizedAmount.Decimal)
		}
		result.Items = append(result.Items, item)
	}
	result.NormalizedTotal = total
	return result, nil
}

func (n *Normalizer) normalizeLine(pricingLevel models.PricingLevel, line models.RawBidLine, match models.ItemMatch, masterByID map[int]models.MasterBoqItem, fxRate decimal.Decimal) models.NormalizedLineItem {
	item := models.NormalizedLineItem{
		RowIndex:       line.RowIndex,
		MasterItemID:   match.MasterItemID,
		ItemNumber:     line.ItemNumber,
		Description:    line.Description,
		NativeQuantity: line.Quantity,
		NativeUom:      line.Uom,
		TargetUom:      line.Uom,
		NativeUnitRate: line.UnitRate,
		NativeAmount:   line.Amount,
		Currency:       line.Currency,
		FxRate:         fxRate,
		IsNoBid:        line.IsNoBid,
	}
	if line.IsNoBid {
		return item
	}

	// Target UOM is the master item's when matched, otherwise the bidder's
	// own (factor 1).
	levelNumber := line.ItemNumber
	factor := decimal.NewFromInt(1)
	if match.MasterItemID != nil {
		if master, ok := masterByID[*match.MasterItemID]; ok {
			if master.ItemNumber != "" {
				levelNumber = master.ItemNumber
			}
			if master.Uom != "" {
				item.TargetUom = master.Uom
				if f := n.uoms.GetConversionFactor(line.Uom, master.Uom); f != nil {
					factor = *f
				} else {
					item.IsNonComparable = true
					item.NonComparableReason = n.uoms.GetNonConvertibleReason(line.Uom, master.Uom)
				}
			}
		}
	}

	calculated := calculatedAmount(line)
	item.HasFormulaError = formulaMismatch(line.Amount, calculated)

	if item.IsNonComparable {
		return item
	}

	item.UomFactor = nullDecimal(factor)
	if line.UnitRate.Valid {
		item.NormalizedUnitRate = nullDecimal(line.UnitRate.Decimal.Mul(fxRate).Div(factor))
	}

	effectiveAmount := line.Amount
	if !effectiveAmount.Valid {
		effectiveAmount = calculated
	}
	if effectiveAmount.Valid {
		item.NormalizedAmount = nullDecimal(effectiveAmount.Decimal.Mul(fxRate))
		item.IsIncludedInTotal = matchesPricingLevel(pricingLevel, levelNumber)
	}
	return item
}

// matchesPricingLevel reports whether an item number sits at the depth the
// tender prices at: "1" is a bill, "1.01" an item, "1.01.a" and deeper are
// sub-items.
func matchesPricingLevel(level models.PricingLevel, itemNumber string) bool {
	depth := itemNumberDepth(itemNumber)
	switch level {
	case models.PricingLevelBill:
		return depth == 1
	case models.PricingLevelSubItem:
		return depth >= 3
	default:
		return depth == 2
	}
}

func itemNumberDepth(itemNumber string) int {
	trimmed := normalizeItemNumber(itemNumber)
	if trimmed == "" {
		return 1
	}
	return strings.Count(trimmed, ".") + 1
}

// calculatedAmount is quantity times rate when both are present.
func calculatedAmount(line models.RawBidLine) decimal.NullDecimal {
	if !line.Quantity.Valid || !line.UnitRate.Valid {
		return decimal.NullDecimal{}
	}
	return nullDecimal(line.Quantity.Decimal.Mul(line.UnitRate.Decimal))
}

// formulaMismatch reports whether the provided amount deviates from the
// calculated one by more than the tolerance. A zero provided amount against
// a non-zero calculated one counts as a full deviation.
func formulaMismatch(provided, calculated decimal.NullDecimal) bool {
	if !provided.Valid || !calculated.Valid {
		return false
	}
	return FormulaDeviationPct(provided.Decimal, calculated.Decimal).GreaterThan(formulaTolerancePct)
}

// FormulaDeviationPct returns |provided - calculated| / provided as a
// percentage. When provided is zero and calculated is not, the deviation is
// defined as 100%.
func FormulaDeviationPct(provided, calculated decimal.Decimal) decimal.Decimal {
	if provided.IsZero() {
		if calculated.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(100)
	}
	return provided.Sub(calculated).Abs().Div(provided.Abs()).Mul(decimal.NewFromInt(100))
}

func nullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
