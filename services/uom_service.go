package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tenderbid/models"
)

// UomService converts quantities and rates between units of measure.
// Definitions are loaded once at startup and the table is immutable
// afterwards, so the service is safe for concurrent use.
type UomService struct {
	byCode map[string]models.UomDefinition
}

// NewUomService builds the conversion table. Lookups are case-insensitive.
func NewUomService(definitions []models.UomDefinition) *UomService {
	byCode := make(map[string]models.UomDefinition, len(definitions))
	for _, def := range definitions {
		byCode[strings.ToLower(strings.TrimSpace(def.Code))] = def
	}
	return &UomService{byCode: byCode}
}

// Lookup returns the definition for a unit code, case-insensitively.
func (s *UomService) Lookup(code string) (models.UomDefinition, bool) {
	def, ok := s.byCode[strings.ToLower(strings.TrimSpace(code))]
	return def, ok
}

// CanConvert reports whether a conversion factor exists from unit a to unit b.
func (s *UomService) CanConvert(from, to string) bool {
	factor, _ := s.conversionFactor(from, to)
	return factor != nil
}

// GetConversionFactor returns the factor f such that a quantity in `from`
// times f yields the quantity in `to`. Returns nil when the pair is not
// convertible.
func (s *UomService) GetConversionFactor(from, to string) *decimal.Decimal {
	factor, _ := s.conversionFactor(from, to)
	return factor
}

// GetNonConvertibleReason returns a human-readable reason when the pair is
// not convertible, and "" when it is.
func (s *UomService) GetNonConvertibleReason(from, to string) string {
	_, reason := s.conversionFactor(from, to)
	return reason
}

// conversionFactor is the single source of truth: a non-nil factor always
// comes with an empty reason and vice versa.
func (s *UomService) conversionFactor(from, to string) (*decimal.Decimal, string) {
	fromDef, ok := s.Lookup(from)
	if !ok {
		return nil, fmt.Sprintf("unknown unit: %s", strings.TrimSpace(from))
	}
	toDef, ok := s.Lookup(to)
	if !ok {
		return nil, fmt.Sprintf("unknown unit: %s", strings.TrimSpace(to))
	}

	sameCode := strings.EqualFold(strings.TrimSpace(from), strings.TrimSpace(to))

	// Lump-sum and percentage units only ever convert to themselves.
	if fromDef.Category == models.CategoryLump || fromDef.Category == models.CategoryPercentage ||
		toDef.Category == models.CategoryLump || toDef.Category == models.CategoryPercentage {
		if sameCode && fromDef.Category == toDef.Category {
			one := decimal.NewFromInt(1)
			return &one, ""
		}
		if fromDef.Category == toDef.Category {
			return nil, fmt.Sprintf("%s units convert only to the identical code", fromDef.Category)
		}
		return nil, fmt.Sprintf("different categories: %s vs %s", fromDef.Category, toDef.Category)
	}

	if fromDef.Category != toDef.Category {
		return nil, fmt.Sprintf("different categories: %s vs %s", fromDef.Category, toDef.Category)
	}

	if sameCode {
		one := decimal.NewFromInt(1)
		return &one, ""
	}

	if toDef.FactorToBase.IsZero() {
		return nil, fmt.Sprintf("unit %s has no base factor", toDef.Code)
	}

	factor := fromDef.FactorToBase.Div(toDef.FactorToBase)
	return &factor, ""
}
