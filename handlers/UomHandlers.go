package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tenderbid/models"
	"tenderbid/repository"
	"tenderbid/services"
	"tenderbid/utils"
)

// GetUomDefinitions godoc
// @Summary      List unit-of-measure definitions
// @Tags         uom
// @Success      200  {array}  models.UomDefinition
// @Router       /api/uom [get]
func GetUomDefinitions(repo *repository.MasterDataRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := utils.GetDefaultQueryContext(c.Request.Context())
		defer cancel()

		defs, err := repo.UomDefinitions(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, defs)
	}
}

// CreateUomDefinition godoc
// @Summary      Create unit-of-measure definition
// @Tags         uom
// @Accept       json
// @Produce      json
// @Param        body  body      models.UomDefinition  true  "UOM definition"
// @Success      201   {object}  models.UomDefinition
// @Failure      400   {object}  models.ErrorResponse
// @Router       /api/uom [post]
func CreateUomDefinition(repo *repository.MasterDataRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var def models.UomDefinition
		if err := c.ShouldBindJSON(&def); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if def.Code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
			return
		}
		if def.FactorToBase.LessThanOrEqual(decimal.Zero) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "factor_to_base must be positive"})
			return
		}

		ctx, cancel := utils.GetDefaultQueryContext(c.Request.Context())
		defer cancel()

		id, err := repo.CreateUomDefinition(ctx, &def)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		def.ID = id
		c.JSON(http.StatusCreated, def)
	}
}

// ConvertUom godoc
// @Summary      Preview a unit conversion factor
// @Description  Returns the multiplicative factor from one unit to another, or the reason they do not convert.
// @Tags         uom
// @Param        from  query  string  true  "Source unit code"
// @Param        to    query  string  true  "Target unit code"
// @Success      200   {object}  object
// @Failure      400   {object}  models.ErrorResponse
// @Router       /api/uom/convert [get]
func ConvertUom(repo *repository.MasterDataRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		from := c.Query("from")
		to := c.Query("to")
		if from == "" || to == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from and to query parameters are required"})
			return
		}

		ctx, cancel := utils.GetDefaultQueryContext(c.Request.Context())
		defer cancel()

		defs, err := repo.UomDefinitions(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		svc := services.NewUomService(defs)
		factor := svc.GetConversionFactor(from, to)
		if factor == nil {
			c.JSON(http.StatusOK, gin.H{
				"from":        from,
				"to":          to,
				"convertible": false,
				"reason":      svc.GetNonConvertibleReason(from, to),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"from":        from,
			"to":          to,
			"convertible": true,
			"factor":      factor,
		})
	}
}
