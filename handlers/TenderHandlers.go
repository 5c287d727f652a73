package handlers

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tenderbid/models"
	"tenderbid/repository"
	"tenderbid/utils"
)

// CreateTender godoc
// @Summary      Create tender
// @Tags         tenders
// @Accept       json
// @Produce      json
// @Param        body  body      models.Tender  true  "Tender"
// @Success      201   {object}  models.Tender
// @Failure      400   {object}  models.ErrorResponse
// @Router       /api/tenders [post]
func CreateTender(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tender models.Tender
		if err := c.ShouldBindJSON(&tender); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if tender.PricingLevel == "" {
			tender.PricingLevel = models.PricingLevelItem
		}
		switch tender.PricingLevel {
		case models.PricingLevelBill, models.PricingLevelItem, models.PricingLevelSubItem:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "pricing_level must be bill, item or sub_item"})
			return
		}
		if tender.BaseCurrency == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "base_currency is required"})
			return
		}
		if tender.Status == "" {
			tender.Status = "open"
		}

		sessionID := c.GetHeader("Authorization")
		session, userName, err := GetSessionDetails(db, sessionID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
			return
		}
		tender.CreatedBy = userName

		query := `INSERT INTO tenders (name, reference, base_currency, pricing_level, status, created_at, updated_at, created_by)
		          VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), $6) RETURNING id, created_at, updated_at`
		err = db.QueryRow(query,
			tender.Name, tender.Reference, tender.BaseCurrency, tender.PricingLevel, tender.Status, tender.CreatedBy,
		).Scan(&tender.ID, &tender.CreatedAt, &tender.UpdatedAt)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		_ = SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "tenders",
			IPAddress:    session.IPAddress,
			Description:  "Created tender " + tender.Reference,
			EventName:    "create",
			TenderID:     tender.ID,
		})

		c.JSON(http.StatusCreated, tender)
	}
}

// GetTenders godoc
// @Summary      List tenders
// @Tags         tenders
// @Success      200  {array}  models.Tender
// @Router       /api/tenders [get]
func GetTenders(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := db.Query(`SELECT id, name, reference, base_currency, pricing_level, status, created_at, updated_at, created_by
		                       FROM tenders ORDER BY created_at DESC`)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer rows.Close()

		var tenders []models.Tender
		for rows.Next() {
			var t models.Tender
			var createdBy sql.NullString
			if err := rows.Scan(&t.ID, &t.Name, &t.Reference, &t.BaseCurrency, &t.PricingLevel, &t.Status, &t.CreatedAt, &t.UpdatedAt, &createdBy); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			t.CreatedBy = createdBy.String
			tenders = append(tenders, t)
		}

		c.JSON(http.StatusOK, tenders)
	}
}

// GetTenderByID godoc
// @Summary      Get tender by ID
// @Tags         tenders
// @Param        id   path      int  true  "Tender ID"
// @Success      200  {object}  models.Tender
// @Router       /api/tenders/{id} [get]
func GetTenderByID(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var t models.Tender
		var createdBy sql.NullString
		err := db.QueryRow(`SELECT id, name, reference, base_currency, pricing_level, status, created_at, updated_at, created_by
		                    FROM tenders WHERE id=$1`, id).
			Scan(&t.ID, &t.Name, &t.Reference, &t.BaseCurrency, &t.PricingLevel, &t.Status, &t.CreatedAt, &t.UpdatedAt, &createdBy)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tender not found"})
			return
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		t.CreatedBy = createdBy.String

		c.JSON(http.StatusOK, t)
	}
}

// UpdateTender godoc
// @Summary      Update tender
// @Tags         tenders
// @Param        id    path      int            true  "Tender ID"
// @Param        body  body      models.Tender  true  "Tender"
// @Success      200   {object}  models.Tender
// @Router       /api/tenders/{id} [put]
func UpdateTender(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		var tender models.Tender
		if err := c.ShouldBindJSON(&tender); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		query := `UPDATE tenders SET name=$1, reference=$2, base_currency=$3, pricing_level=$4, status=$5, updated_at=NOW() WHERE id=$6`
		res, err := db.Exec(query, tender.Name, tender.Reference, tender.BaseCurrency, tender.PricingLevel, tender.Status, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		rowsAffected, _ := res.RowsAffected()
		if rowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tender not found"})
			return
		}

		tender.ID, _ = strconv.Atoi(id)
		c.JSON(http.StatusOK, tender)
	}
}

// GetMasterBoq godoc
// @Summary      List a tender's master BOQ items
// @Tags         tenders
// @Param        tender_id  path  int  true  "Tender ID"
// @Success      200  {array}  models.MasterBoqItem
// @Router       /api/tenders/{tender_id}/boq [get]
func GetMasterBoq(repo *repository.MasterDataRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenderID, err := strconv.Atoi(c.Param("tender_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tender ID"})
			return
		}

		ctx, cancel := utils.GetDefaultQueryContext(c.Request.Context())
		defer cancel()

		items, err := repo.MasterBoqItems(ctx, tenderID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

// ReplaceMasterBoq godoc
// @Summary      Replace a tender's master BOQ
// @Description  Swaps the whole bill of quantities in one transaction. Rejected once any bid has been imported against the tender.
// @Tags         tenders
// @Accept       json
// @Param        tender_id  path  int                    true  "Tender ID"
// @Param        body       body  []models.MasterBoqItem true  "Master BOQ items"
// @Success      200  {object}  object
// @Failure      409  {object}  models.ErrorResponse
// @Router       /api/tenders/{tender_id}/boq [put]
func ReplaceMasterBoq(db *sql.DB, repo *repository.MasterDataRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenderID, err := strconv.Atoi(c.Param("tender_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tender ID"})
			return
		}

		var items []models.MasterBoqItem
		if err := c.ShouldBindJSON(&items); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(items) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "At least one BOQ item is required"})
			return
		}

		var imported bool
		checkQuery := `SELECT EXISTS(SELECT 1 FROM bid_submissions WHERE tender_id = $1 AND status IN ('imported', 'imported_with_warnings', 'partially_imported'))`
		if err := db.QueryRow(checkQuery, tenderID).Scan(&imported); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if imported {
			c.JSON(http.StatusConflict, gin.H{"error": "Master BOQ is frozen once bids have been imported"})
			return
		}

		ctx, cancel := utils.GetDefaultQueryContext(c.Request.Context())
		defer cancel()

		if err := repo.ReplaceMasterBoqItems(ctx, tenderID, items); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		sessionID := c.GetHeader("Authorization")
		if session, userName, err := GetSessionDetails(db, sessionID); err == nil {
			_ = SaveActivityLog(db, models.ActivityLog{
				CreatedAt:    time.Now(),
				UserName:     userName,
				HostName:     session.HostName,
				EventContext: "master boq",
				IPAddress:    session.IPAddress,
				Description:  "Replaced master BOQ (" + strconv.Itoa(len(items)) + " items)",
				EventName:    "replace_boq",
				TenderID:     tenderID,
			})
		}

		c.JSON(http.StatusOK, gin.H{"message": "Master BOQ replaced successfully", "item_count": len(items)})
	}
}
