package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tenderbid/models"
	"tenderbid/repository"
	"tenderbid/services"
	"tenderbid/utils"
)

// pipelineErrorResponse translates a typed pipeline error into an HTTP reply.
func pipelineErrorResponse(c *gin.Context, err error) {
	switch {
	case services.IsErrType(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case services.IsErrType(err, services.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case services.IsErrType(err, services.ErrInvalidFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case services.IsErrType(err, services.ErrValidationBlocking),
		services.IsErrType(err, services.ErrValidationWarning):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ValidateBidRequest tunes a validation pass. All fields are optional.
type ValidateBidRequest struct {
	TolerancePct        *float64 `json:"tolerance_pct,omitempty" example:"1"`
	OutlierThresholdPct *float64 `json:"outlier_threshold_pct,omitempty" example:"10"`
	DetectOutliers      bool     `json:"detect_outliers" example:"true"`
}

func (r ValidateBidRequest) options() services.ValidationOptions {
	opts := services.ValidationOptions{DetectOutliers: r.DetectOutliers}
	if r.TolerancePct != nil {
		opts.TolerancePct = decimal.NewFromFloat(*r.TolerancePct)
	}
	if r.OutlierThresholdPct != nil {
		opts.OutlierThresholdPct = decimal.NewFromFloat(*r.OutlierThresholdPct)
	}
	return opts
}

// NormalizeBidRequest drives a normalization pass.
type NormalizeBidRequest struct {
	FxRate  *decimal.Decimal `json:"fx_rate,omitempty" swaggertype:"number" example:"3.6725"`
	Persist bool             `json:"persist" example:"false"`
}

// ExecuteImportRequest drives the final import step.
type ExecuteImportRequest struct {
	Force          bool             `json:"force" example:"false"`
	CreateSnapshot bool             `json:"create_snapshot" example:"true"`
	FxRate         *decimal.Decimal `json:"fx_rate,omitempty" swaggertype:"number" example:"3.6725"`
}

// MapBidColumns godoc
// @Summary      Map spreadsheet columns and extract bid lines
// @Description  Applies a column mapping to the uploaded workbook and extracts the raw bid lines. Requires status parsed; success moves the submission to mapped.
// @Tags         bid-import
// @Accept       json
// @Produce      json
// @Param        tender_id  path  int                   true  "Tender ID"
// @Param        bid_id     path  int                   true  "Bid submission ID"
// @Param        body       body  models.ColumnMapping  true  "Column mapping"
// @Success      200  {object}  object
// @Failure      400  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /api/tenders/{tender_id}/bids/{bid_id}/map_columns [post]
func MapBidColumns(db *sql.DB, svc *services.ImportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenderID, bidID, ok := tenderBidParams(c)
		if !ok {
			return
		}

		var mapping models.ColumnMapping
		if err := c.ShouldBindJSON(&mapping); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		sessionID := c.GetHeader("Authorization")
		session, userName, err := GetSessionDetails(db, sessionID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
			return
		}

		ctx, cancel := utils.GetQueryContext(c.Request.Context(), utils.ImportTimeout)
		defer cancel()

		lines, err := svc.MapColumns(ctx, tenderID, bidID, mapping)
		if err != nil {
			pipelineErrorResponse(c, err)
			return
		}

		_ = SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "bid import",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Mapped columns for bid %d, extracted %d lines", bidID, len(lines)),
			EventName:    "map_columns",
			TenderID:     tenderID,
		})

		c.JSON(http.StatusOK, gin.H{"lines": lines, "line_count": len(lines)})
	}
}

// ValidateBid godoc
// @Summary      Validate a mapped bid
// @Description  Runs the validation checks (formula, data sanity, coverage and optionally cross-bid outliers) without changing any state.
// @Tags         bid-import
// @Accept       json
// @Produce      json
// @Param        tender_id  path  int                          true   "Tender ID"
// @Param        bid_id     path  int                          true   "Bid submission ID"
// @Param        body       body  handlers.ValidateBidRequest  false  "Validation options"
// @Success      200  {object}  models.ValidationResult
// @Failure      409  {object}  models.ErrorResponse
// @Router       /api/tenders/{tender_id}/bids/{bid_id}/validate [post]
func ValidateBid(svc *services.ImportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenderID, bidID, ok := tenderBidParams(c)
		if !ok {
			return
		}

		var req ValidateBidRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		ctx, cancel := utils.GetQueryContext(c.Request.Context(), utils.ImportTimeout)
		defer cancel()

		result, err := svc.ValidateImport(ctx, tenderID, bidID, req.options())
		if err != nil {
			pipelineErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// NormalizeBid godoc
// @Summary      Normalize a mapped bid
// @Description  Converts rates to the tender's base currency and the master item units. Preview by default; persist=true stores the result.
// @Tags         bid-import
// @Accept       json
// @Produce      json
// @Param        tender_id  path  int                           true   "Tender ID"
// @Param        bid_id     path  int                           true   "Bid submission ID"
// @Param        body       body  handlers.NormalizeBidRequest  false  "Normalization options"
// @Success      200  {object}  models.NormalizationResult
// @Failure      409  {object}  models.ErrorResponse
// @Router       /api/tenders/{tender_id}/bids/{bid_id}/normalize [post]
func NormalizeBid(db *sql.DB, svc *services.ImportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenderID, bidID, ok := tenderBidParams(c)
		if !ok {
			return
		}

		var req NormalizeBidRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		ctx, cancel := utils.GetQueryContext(c.Request.Context(), utils.ImportTimeout)
		defer cancel()

		result, err := svc.NormalizeBid(ctx, tenderID, bidID, req.FxRate, req.Persist)
		if err != nil {
			pipelineErrorResponse(c, err)
			return
		}

		if req.Persist {
			sessionID := c.GetHeader("Authorization")
			if session, userName, err := GetSessionDetails(db, sessionID); err == nil {
				_ = SaveActivityLog(db, models.ActivityLog{
					CreatedAt:    time.Now(),
					UserName:     userName,
					HostName:     session.HostName,
					EventContext: "bid import",
					IPAddress:    session.IPAddress,
					Description:  fmt.Sprintf("Normalized bid %d, total %s", bidID, result.NormalizedTotal.StringFixed(2)),
					EventName:    "normalize",
					TenderID:     tenderID,
				})
			}
		}

		c.JSON(http.StatusOK, result)
	}
}

// ExecuteBidImport godoc
// @Summary      Execute the final bid import
// @Description  Validates, normalizes and commits the bid in one transaction. A blocked validation returns status failed in the result body rather than an error. force=true overrides warnings; errors always block.
// @Tags         bid-import
// @Accept       json
// @Produce      json
// @Param        tender_id  path  int                            true   "Tender ID"
// @Param        bid_id     path  int                            true   "Bid submission ID"
// @Param        body       body  handlers.ExecuteImportRequest  false  "Import options"
// @Success      200  {object}  models.ImportResult
// @Failure      409  {object}  models.ErrorResponse
// @Router       /api/tenders/{tender_id}/bids/{bid_id}/execute_import [post]
func ExecuteBidImport(db *sql.DB, svc *services.ImportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenderID, bidID, ok := tenderBidParams(c)
		if !ok {
			return
		}

		var req ExecuteImportRequest
		req.CreateSnapshot = true
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		sessionID := c.GetHeader("Authorization")
		session, userName, err := GetSessionDetails(db, sessionID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
			return
		}

		ctx, cancel := utils.GetQueryContext(c.Request.Context(), utils.ImportTimeout)
		defer cancel()

		result, err := svc.ExecuteImport(ctx, tenderID, bidID, req.Force, req.CreateSnapshot, req.FxRate)
		if err != nil {
			pipelineErrorResponse(c, err)
			return
		}

		_ = SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "bid import",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Executed import for bid %d, status %s", bidID, result.Status),
			EventName:    "execute_import",
			TenderID:     tenderID,
		})

		c.JSON(http.StatusOK, result)
	}
}

// GetPricingSnapshot godoc
// @Summary      Get one vendor pricing snapshot
// @Tags         snapshots
// @Param        id  path  int  true  "Snapshot ID"
// @Success      200  {object}  models.VendorPricingSnapshot
// @Failure      404  {object}  models.ErrorResponse
// @Router       /api/snapshots/{id} [get]
func GetPricingSnapshot(repo *repository.SnapshotRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid snapshot ID"})
			return
		}

		ctx, cancel := utils.GetDefaultQueryContext(c.Request.Context())
		defer cancel()

		snapshot, err := repo.GetSnapshot(ctx, id)
		if err != nil {
			pipelineErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, snapshot)
	}
}

// GetTenderComparison godoc
// @Summary      Compare imported bids of a tender
// @Description  Returns the latest pricing snapshot per vendor side by side.
// @Tags         snapshots
// @Param        tender_id  path  int  true  "Tender ID"
// @Success      200  {object}  object
// @Router       /api/tenders/{tender_id}/comparison [get]
func GetTenderComparison(repo *repository.SnapshotRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenderID, err := strconv.Atoi(c.Param("tender_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tender ID"})
			return
		}

		ctx, cancel := utils.GetDefaultQueryContext(c.Request.Context())
		defer cancel()

		snapshots, err := repo.ListSnapshotsByTender(ctx, tenderID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tender_id": tenderID, "snapshots": snapshots})
	}
}
