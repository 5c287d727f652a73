package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenderbid/models"
)

func testUomDefinitions() []models.UomDefinition {
	m2 := "m2"
	m := "m"
	kg := "kg"
	return []models.UomDefinition{
		{ID: 1, Code: "m2", Description: "Square metre", Category: models.CategoryArea, FactorToBase: decimal.NewFromInt(1)},
		{ID: 2, Code: "sqft", Description: "Square foot", Category: models.CategoryArea, FactorToBase: decimal.RequireFromString("0.092903"), BaseUnitCode: &m2},
		{ID: 3, Code: "m", Description: "Metre", Category: models.CategoryLength, FactorToBase: decimal.NewFromInt(1)},
		{ID: 4, Code: "ft", Description: "Foot", Category: models.CategoryLength, FactorToBase: decimal.RequireFromString("0.3048"), BaseUnitCode: &m},
		{ID: 5, Code: "kg", Description: "Kilogram", Category: models.CategoryWeight, FactorToBase: decimal.NewFromInt(1)},
		{ID: 6, Code: "ton", Description: "Metric ton", Category: models.CategoryWeight, FactorToBase: decimal.NewFromInt(1000), BaseUnitCode: &kg},
		{ID: 7, Code: "LS", Description: "Lump sum", Category: models.CategoryLump, FactorToBase: decimal.NewFromInt(1)},
		{ID: 8, Code: "%", Description: "Percentage", Category: models.CategoryPercentage, FactorToBase: decimal.NewFromInt(1)},
		{ID: 9, Code: "nos", Description: "Numbers", Category: models.CategoryCount, FactorToBase: decimal.NewFromInt(1)},
		{ID: 10, Code: "m3", Description: "Cubic metre", Category: models.CategoryVolume, FactorToBase: decimal.NewFromInt(1)},
	}
}

func TestUomConversionWithinCategory(t *testing.T) {
	svc := NewUomService(testUomDefinitions())

	factor := svc.GetConversionFactor("sqft", "m2")
	require.NotNil(t, factor)
	assert.True(t, factor.Equal(decimal.RequireFromString("0.092903")), "got %s", factor)

	factor = svc.GetConversionFactor("ton", "kg")
	require.NotNil(t, factor)
	assert.True(t, factor.Equal(decimal.NewFromInt(1000)))
}

func TestUomConversionInverseProperty(t *testing.T) {
	svc := NewUomService(testUomDefinitions())

	pairs := [][2]string{{"sqft", "m2"}, {"ft", "m"}, {"ton", "kg"}}
	for _, p := range pairs {
		forward := svc.GetConversionFactor(p[0], p[1])
		backward := svc.GetConversionFactor(p[1], p[0])
		require.NotNil(t, forward)
		require.NotNil(t, backward)
		product := forward.Mul(*backward).Round(12)
		assert.True(t, product.Equal(decimal.NewFromInt(1)),
			"%s<->%s product = %s", p[0], p[1], product)
	}
}

func TestUomConversionCaseInsensitive(t *testing.T) {
	svc := NewUomService(testUomDefinitions())

	assert.True(t, svc.CanConvert("SQFT", "M2"))
	assert.True(t, svc.CanConvert(" sqft ", "m2"))

	factor := svc.GetConversionFactor("TON", "Kg")
	require.NotNil(t, factor)
	assert.True(t, factor.Equal(decimal.NewFromInt(1000)))
}

func TestUomConversionAcrossCategories(t *testing.T) {
	svc := NewUomService(testUomDefinitions())

	assert.False(t, svc.CanConvert("m2", "kg"))
	assert.Nil(t, svc.GetConversionFactor("m2", "kg"))
	assert.Equal(t, "different categories: Area vs Weight", svc.GetNonConvertibleReason("m2", "kg"))
}

func TestUomConversionUnknownUnit(t *testing.T) {
	svc := NewUomService(testUomDefinitions())

	assert.False(t, svc.CanConvert("xyz", "m2"))
	assert.Equal(t, "unknown unit: xyz", svc.GetNonConvertibleReason("xyz", "m2"))
	assert.Equal(t, "unknown unit: abc", svc.GetNonConvertibleReason("m2", "abc"))
}

func TestUomLumpAndPercentageSelfOnly(t *testing.T) {
	svc := NewUomService(testUomDefinitions())

	factor := svc.GetConversionFactor("LS", "ls")
	require.NotNil(t, factor)
	assert.True(t, factor.Equal(decimal.NewFromInt(1)))

	factor = svc.GetConversionFactor("%", "%")
	require.NotNil(t, factor)
	assert.True(t, factor.Equal(decimal.NewFromInt(1)))

	assert.False(t, svc.CanConvert("LS", "m2"))
	assert.Equal(t, "different categories: Lump vs Area", svc.GetNonConvertibleReason("LS", "m2"))
	assert.False(t, svc.CanConvert("m2", "LS"))
	assert.False(t, svc.CanConvert("LS", "%"))
}

func TestUomDistinctLumpCodesDoNotConvert(t *testing.T) {
	defs := append(testUomDefinitions(), models.UomDefinition{
		ID: 10, Code: "Sum", Description: "Lump sum (alias)", Category: models.CategoryLump, FactorToBase: decimal.NewFromInt(1),
	})
	svc := NewUomService(defs)

	assert.False(t, svc.CanConvert("LS", "Sum"))
	assert.Nil(t, svc.GetConversionFactor("LS", "Sum"))
	assert.Equal(t, "Lump units convert only to the identical code", svc.GetNonConvertibleReason("LS", "Sum"))

	// Mixed-category pairs keep the category mismatch wording.
	assert.Equal(t, "different categories: Lump vs Area", svc.GetNonConvertibleReason("Sum", "m2"))
}

func TestUomIdenticalCodeIsFactorOne(t *testing.T) {
	svc := NewUomService(testUomDefinitions())

	factor := svc.GetConversionFactor("nos", "nos")
	require.NotNil(t, factor)
	assert.True(t, factor.Equal(decimal.NewFromInt(1)))
	assert.Empty(t, svc.GetNonConvertibleReason("nos", "nos"))
}
