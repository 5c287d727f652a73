package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tenderbid/models"
	"tenderbid/repository"
	"tenderbid/services"
	"tenderbid/storage"
	"tenderbid/utils"
)

// maxBidFileSize caps uploaded workbooks at 20 MB.
const maxBidFileSize = 20 << 20

// UploadBidSubmission godoc
// @Summary      Upload a bidder's BOQ workbook
// @Description  Accepts a spreadsheet (xlsx, xlsm, xls, csv), stores it and registers the submission. The file is opened once to confirm it parses; a readable file moves straight to status parsed.
// @Tags         bids
// @Accept       multipart/form-data
// @Produce      json
// @Param        tender_id  path      int     true   "Tender ID"
// @Param        file       formData  file    true   "Bid workbook"
// @Param        vendor_id  formData  int     true   "Vendor ID"
// @Param        currency   formData  string  true   "Bid currency code"
// @Param        fx_rate    formData  number  false  "Exchange rate to tender base currency"
// @Success      201  {object}  models.BidSubmission
// @Failure      400  {object}  models.ErrorResponse
// @Router       /api/tenders/{tender_id}/bids [post]
func UploadBidSubmission(db *sql.DB, repo *repository.SubmissionRepository, files *storage.LocalFileStore, parser services.SheetParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenderID, err := strconv.Atoi(c.Param("tender_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tender ID"})
			return
		}

		sessionID := c.GetHeader("Authorization")
		session, userName, err := GetSessionDetails(db, sessionID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
			return
		}

		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File is required"})
			return
		}
		if !services.IsAllowedUpload(file.Filename) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported file type, expected xlsx, xlsm, xls or csv"})
			return
		}

		vendorID, err := strconv.Atoi(c.PostForm("vendor_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "vendor_id is required"})
			return
		}
		currency := c.PostForm("currency")
		if currency == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "currency is required"})
			return
		}

		var fxRate decimal.NullDecimal
		if raw := c.PostForm("fx_rate"); raw != "" {
			parsed, err := decimal.NewFromString(raw)
			if err != nil || parsed.LessThanOrEqual(decimal.Zero) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "fx_rate must be a positive number"})
				return
			}
			fxRate = decimal.NullDecimal{Decimal: parsed, Valid: true}
		}

		ctx, cancel := utils.GetDefaultQueryContext(c.Request.Context())
		defer cancel()

		if _, err := repo.GetTender(ctx, tenderID); err != nil {
			pipelineErrorResponse(c, err)
			return
		}

		path, err := files.Save(file, maxBidFileSize)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// A workbook that cannot be opened stays at status uploaded so the
		// vendor can be asked to resend it.
		status := models.StatusParsed
		if _, err := parser.SheetNames(path); err != nil {
			log.Printf("uploaded file %s does not parse: %v", path, err)
			status = models.StatusUploaded
		}

		submission := models.BidSubmission{
			TenderID:  tenderID,
			VendorID:  vendorID,
			Status:    status,
			Currency:  currency,
			FxRate:    fxRate,
			FilePath:  path,
			FileName:  file.Filename,
			CreatedBy: userName,
		}
		id, err := repo.CreateSubmission(ctx, &submission)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		submission.ID = id

		_ = SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "bid submissions",
			IPAddress:    session.IPAddress,
			Description:  "Uploaded bid workbook " + file.Filename,
			EventName:    "upload",
			TenderID:     tenderID,
		})

		c.JSON(http.StatusCreated, submission)
	}
}

// GetBidSubmissions godoc
// @Summary      List bid submissions for a tender
// @Tags         bids
// @Param        tender_id  path  int  true  "Tender ID"
// @Success      200  {array}  models.BidSubmission
// @Router       /api/tenders/{tender_id}/bids [get]
func GetBidSubmissions(repo *repository.SubmissionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenderID, err := strconv.Atoi(c.Param("tender_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tender ID"})
			return
		}

		ctx, cancel := utils.GetDefaultQueryContext(c.Request.Context())
		defer cancel()

		submissions, err := repo.ListSubmissions(ctx, tenderID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, submissions)
	}
}

// GetBidSubmission godoc
// @Summary      Get one bid submission
// @Tags         bids
// @Param        tender_id  path  int  true  "Tender ID"
// @Param        bid_id     path  int  true  "Bid submission ID"
// @Success      200  {object}  models.BidSubmission
// @Failure      404  {object}  models.ErrorResponse
// @Router       /api/tenders/{tender_id}/bids/{bid_id} [get]
func GetBidSubmission(repo *repository.SubmissionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenderID, bidID, ok := tenderBidParams(c)
		if !ok {
			return
		}

		ctx, cancel := utils.GetDefaultQueryContext(c.Request.Context())
		defer cancel()

		submission, err := repo.GetSubmission(ctx, tenderID, bidID)
		if err != nil {
			pipelineErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, submission)
	}
}

// GetBidSheets godoc
// @Summary      List sheet names of an uploaded bid workbook
// @Description  Helper for the column mapping screen.
// @Tags         bids
// @Param        tender_id  path  int  true  "Tender ID"
// @Param        bid_id     path  int  true  "Bid submission ID"
// @Success      200  {object}  object
// @Router       /api/tenders/{tender_id}/bids/{bid_id}/sheets [get]
func GetBidSheets(repo *repository.SubmissionRepository, files *storage.LocalFileStore, parser services.SheetParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenderID, bidID, ok := tenderBidParams(c)
		if !ok {
			return
		}

		ctx, cancel := utils.GetDefaultQueryContext(c.Request.Context())
		defer cancel()

		submission, err := repo.GetSubmission(ctx, tenderID, bidID)
		if err != nil {
			pipelineErrorResponse(c, err)
			return
		}

		path, err := files.Download(submission.FilePath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		sheets, err := parser.SheetNames(path)
		if err != nil {
			pipelineErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sheets": sheets})
	}
}

// GetBidRawLines godoc
// @Summary      Get the extracted raw lines of a bid
// @Tags         bids
// @Param        tender_id  path  int  true  "Tender ID"
// @Param        bid_id     path  int  true  "Bid submission ID"
// @Success      200  {object}  object
// @Router       /api/tenders/{tender_id}/bids/{bid_id}/lines [get]
func GetBidRawLines(repo *repository.SubmissionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenderID, bidID, ok := tenderBidParams(c)
		if !ok {
			return
		}

		ctx, cancel := utils.GetDefaultQueryContext(c.Request.Context())
		defer cancel()

		if _, err := repo.GetSubmission(ctx, tenderID, bidID); err != nil {
			pipelineErrorResponse(c, err)
			return
		}

		lines, skipped, err := repo.GetRawLines(ctx, bidID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"lines": lines, "skipped_rows": skipped})
	}
}

// GetBidNormalizedLines godoc
// @Summary      Get the persisted normalized line items of a bid
// @Tags         bids
// @Param        tender_id  path  int  true  "Tender ID"
// @Param        bid_id     path  int  true  "Bid submission ID"
// @Success      200  {array}  models.NormalizedLineItem
// @Router       /api/tenders/{tender_id}/bids/{bid_id}/items [get]
func GetBidNormalizedLines(repo *repository.SubmissionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenderID, bidID, ok := tenderBidParams(c)
		if !ok {
			return
		}

		ctx, cancel := utils.GetDefaultQueryContext(c.Request.Context())
		defer cancel()

		if _, err := repo.GetSubmission(ctx, tenderID, bidID); err != nil {
			pipelineErrorResponse(c, err)
			return
		}

		items, err := repo.GetNormalizedLines(ctx, bidID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

func tenderBidParams(c *gin.Context) (int, int, bool) {
	tenderID, err := strconv.Atoi(c.Param("tender_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tender ID"})
		return 0, 0, false
	}
	bidID, err := strconv.Atoi(c.Param("bid_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bid ID"})
		return 0, 0, false
	}
	return tenderID, bidID, true
}
