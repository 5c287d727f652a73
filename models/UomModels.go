package models

import "github.com/shopspring/decimal"

// UomCategory groups units that convert among each other via a base unit.
type UomCategory string

const (
	CategoryArea       UomCategory = "Area"
	CategoryLength     UomCategory = "Length"
	CategoryWeight     UomCategory = "Weight"
	CategoryVolume     UomCategory = "Volume"
	CategoryCount      UomCategory = "Count"
	CategoryLump       UomCategory = "Lump"
	CategoryTime       UomCategory = "Time"
	CategoryPercentage UomCategory = "Percentage"
)

// UomDefinition describes one unit of measure. FactorToBase expresses
// "1 unit of this code equals FactorToBase units of the category base unit";
// the base unit itself has factor 1 and a nil BaseUnitCode.
type UomDefinition struct {
	ID           int             `json:"id" example:"1"`
	Code         string          `json:"code" example:"sqft"`
	Description  string          `json:"description" example:"Square foot"`
	Category     UomCategory     `json:"category" example:"Area"`
	FactorToBase decimal.Decimal `json:"factor_to_base" swaggertype:"number" example:"0.092903"`
	BaseUnitCode *string         `json:"base_unit_code,omitempty" example:"m2"`
}
