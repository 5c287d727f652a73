package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"tenderbid/models"
	"tenderbid/services"
)

// SubmissionRepository persists bid submissions and their line items. It
// implements the pipeline's SubmissionStore against Postgres.
type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) GetTender(ctx context.Context, tenderID int) (models.Tender, error) {
	var t models.Tender
	query := `SELECT id, name, reference, base_currency, pricing_level, status, created_at, updated_at, created_by
	          FROM tenders WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, tenderID).Scan(
		&t.ID, &t.Name, &t.Reference, &t.BaseCurrency, &t.PricingLevel,
		&t.Status, &t.CreatedAt, &t.UpdatedAt, &t.CreatedBy,
	)
	if err == sql.ErrNoRows {
		return t, services.NotFoundError("tender", tenderID)
	}
	if err != nil {
		return t, fmt.Errorf("failed to query tender: %v", err)
	}
	return t, nil
}

func (r *SubmissionRepository) GetSubmission(ctx context.Context, tenderID, bidID int) (models.BidSubmission, error) {
	var s models.BidSubmission
	var warnings pq.StringArray
	var importedAt sql.NullTime
	query := `SELECT b.id, b.tender_id, b.vendor_id, COALESCE(v.name, ''), b.status, b.currency, b.fx_rate,
	                 b.file_path, b.file_name, b.grand_total, b.line_count, b.skipped_count,
	                 b.import_warnings, b.created_at, b.updated_at, b.imported_at, b.created_by
	          FROM bid_submissions b
	          LEFT JOIN vendors v ON v.vendor_id = b.vendor_id
	          WHERE b.id = $1 AND b.tender_id = $2`
	err := r.db.QueryRowContext(ctx, query, bidID, tenderID).Scan(
		&s.ID, &s.TenderID, &s.VendorID, &s.VendorName, &s.Status, &s.Currency, &s.FxRate,
		&s.FilePath, &s.FileName, &s.GrandTotal, &s.LineCount, &s.SkippedCount,
		&warnings, &s.CreatedAt, &s.UpdatedAt, &importedAt, &s.CreatedBy,
	)
	if err == sql.ErrNoRows {
		return s, services.NotFoundError("submission", bidID)
	}
	if err != nil {
		return s, fmt.Errorf("failed to query submission: %v", err)
	}
	s.ImportWarnings = warnings
	if importedAt.Valid {
		s.ImportedAt = &importedAt.Time
	}
	return s, nil
}

// CreateSubmission registers a fresh upload in status Uploaded and returns
// its ID.
func (r *SubmissionRepository) CreateSubmission(ctx context.Context, s *models.BidSubmission) (int, error) {
	query := `INSERT INTO bid_submissions (tender_id, vendor_id, status, currency, file_path, file_name, created_at, updated_at, created_by)
	          VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), $7) RETURNING id`
	var id int
	err := r.db.QueryRowContext(ctx, query,
		s.TenderID, s.VendorID, s.Status, s.Currency, s.FilePath, s.FileName, s.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert submission: %v", err)
	}
	return id, nil
}

// ListSubmissions returns all submissions for a tender, newest first.
func (r *SubmissionRepository) ListSubmissions(ctx context.Context, tenderID int) ([]models.BidSubmission, error) {
	query := `SELECT b.id, b.tender_id, b.vendor_id, COALESCE(v.name, ''), b.status, b.currency, b.fx_rate,
	                 b.file_path, b.file_name, b.grand_total, b.line_count, b.skipped_count,
	                 b.import_warnings, b.created_at, b.updated_at, b.imported_at, b.created_by
	          FROM bid_submissions b
	          LEFT JOIN vendors v ON v.vendor_id = b.vendor_id
	          WHERE b.tender_id = $1
	          ORDER BY b.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, tenderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %v", err)
	}
	defer rows.Close()

	var submissions []models.BidSubmission
	for rows.Next() {
		var s models.BidSubmission
		var warnings pq.StringArray
		var importedAt sql.NullTime
		if err := rows.Scan(
			&s.ID, &s.TenderID, &s.VendorID, &s.VendorName, &s.Status, &s.Currency, &s.FxRate,
			&s.FilePath, &s.FileName, &s.GrandTotal, &s.LineCount, &s.SkippedCount,
			&warnings, &s.CreatedAt, &s.UpdatedAt, &importedAt, &s.CreatedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %v", err)
		}
		s.ImportWarnings = warnings
		if importedAt.Valid {
			s.ImportedAt = &importedAt.Time
		}
		submissions = append(submissions, s)
	}
	return submissions, rows.Err()
}

func (r *SubmissionRepository) UpdateSubmissionStatus(ctx context.Context, bidID int, status models.ImportStatus) error {
	query := `UPDATE bid_submissions SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, bidID)
	if err != nil {
		return fmt.Errorf("failed to update submission status: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update: %v", err)
	}
	if rows == 0 {
		return services.NotFoundError("submission", bidID)
	}
	return nil
}

// SaveColumnMapping stores the mapping as JSONB, replacing any previous one.
func (r *SubmissionRepository) SaveColumnMapping(ctx context.Context, bidID int, mapping models.ColumnMapping) error {
	payload, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal column mapping: %v", err)
	}
	query := `INSERT INTO bid_column_mappings (submission_id, config, updated_at)
	          VALUES ($1, $2, NOW())
	          ON CONFLICT (submission_id) DO UPDATE SET config = $2, updated_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, bidID, payload); err != nil {
		return fmt.Errorf("failed to save column mapping: %v", err)
	}
	return nil
}

// GetColumnMapping loads the stored mapping for a submission.
func (r *SubmissionRepository) GetColumnMapping(ctx context.Context, bidID int) (models.ColumnMapping, error) {
	var payload []byte
	var mapping models.ColumnMapping
	query := `SELECT config FROM bid_column_mappings WHERE submission_id = $1`
	err := r.db.QueryRowContext(ctx, query, bidID).Scan(&payload)
	if err == sql.ErrNoRows {
		return mapping, services.NotFoundError("column mapping for submission", bidID)
	}
	if err != nil {
		return mapping, fmt.Errorf("failed to query column mapping: %v", err)
	}
	if err := json.Unmarshal(payload, &mapping); err != nil {
		return mapping, fmt.Errorf("failed to unmarshal column mapping: %v", err)
	}
	return mapping, nil
}

// SaveRawLines replaces the extracted lines of a submission.
func (r *SubmissionRepository) SaveRawLines(ctx context.Context, bidID int, lines []models.RawBidLine, skippedRows int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bid_raw_lines WHERE submission_id = $1`, bidID); err != nil {
		return fmt.Errorf("failed to clear raw lines: %v", err)
	}

	insertQuery := `INSERT INTO bid_raw_lines (submission_id, row_index, item_number, description, quantity, uom, unit_rate, amount, currency, is_no_bid)
	                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, line := range lines {
		if _, err := tx.ExecContext(ctx, insertQuery,
			bidID, line.RowIndex, line.ItemNumber, line.Description, line.Quantity,
			line.Uom, line.UnitRate, line.Amount, line.Currency, line.IsNoBid,
		); err != nil {
			return fmt.Errorf("failed to insert raw line %d: %v", line.RowIndex, err)
		}
	}

	countQuery := `UPDATE bid_submissions SET line_count = $1, skipped_count = $2, updated_at = NOW() WHERE id = $3`
	if _, err := tx.ExecContext(ctx, countQuery, len(lines), skippedRows, bidID); err != nil {
		return fmt.Errorf("failed to update line counts: %v", err)
	}

	return tx.Commit()
}

func (r *SubmissionRepository) GetRawLines(ctx context.Context, bidID int) ([]models.RawBidLine, int, error) {
	var skipped int
	if err := r.db.QueryRowContext(ctx,
		`SELECT skipped_count FROM bid_submissions WHERE id = $1`, bidID).Scan(&skipped); err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, services.NotFoundError("submission", bidID)
		}
		return nil, 0, fmt.Errorf("failed to query skipped count: %v", err)
	}

	query := `SELECT row_index, item_number, description, quantity, uom, unit_rate, amount, currency, is_no_bid
	          FROM bid_raw_lines WHERE submission_id = $1 ORDER BY row_index`
	rows, err := r.db.QueryContext(ctx, query, bidID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query raw lines: %v", err)
	}
	defer rows.Close()

	var lines []models.RawBidLine
	for rows.Next() {
		var line models.RawBidLine
		if err := rows.Scan(
			&line.RowIndex, &line.ItemNumber, &line.Description, &line.Quantity,
			&line.Uom, &line.UnitRate, &line.Amount, &line.Currency, &line.IsNoBid,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan raw line: %v", err)
		}
		lines = append(lines, line)
	}
	return lines, skipped, rows.Err()
}

// SaveNormalizedLines replaces the normalized line items of a submission
// without touching its status (normalization preview in persist mode).
func (r *SubmissionRepository) SaveNormalizedLines(ctx context.Context, bidID int, items []models.NormalizedLineItem, total decimal.Decimal) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if err := insertNormalizedLines(ctx, tx, bidID, items); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE bid_submissions SET grand_total = $1, updated_at = NOW() WHERE id = $2`, total, bidID); err != nil {
		return fmt.Errorf("failed to update grand total: %v", err)
	}
	return tx.Commit()
}

// GetNormalizedLines returns the persisted normalized lines of a submission.
func (r *SubmissionRepository) GetNormalizedLines(ctx context.Context, bidID int) ([]models.NormalizedLineItem, error) {
	query := `SELECT id, row_index, master_item_id, item_number, description, native_quantity, native_uom,
	                 target_uom, native_unit_rate, native_amount, currency, fx_rate, uom_factor,
	                 normalized_unit_rate, normalized_amount, is_no_bid, is_non_comparable,
	                 non_comparable_reason, is_included_in_total, has_formula_error
	          FROM bid_line_items WHERE submission_id = $1 ORDER BY row_index`
	rows, err := r.db.QueryContext(ctx, query, bidID)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %v", err)
	}
	defer rows.Close()

	var items []models.NormalizedLineItem
	for rows.Next() {
		var item models.NormalizedLineItem
		var masterItemID sql.NullInt64
		if err := rows.Scan(
			&item.LineItemID, &item.RowIndex, &masterItemID, &item.ItemNumber, &item.Description,
			&item.NativeQuantity, &item.NativeUom, &item.TargetUom, &item.NativeUnitRate,
			&item.NativeAmount, &item.Currency, &item.FxRate, &item.UomFactor,
			&item.NormalizedUnitRate, &item.NormalizedAmount, &item.IsNoBid, &item.IsNonComparable,
			&item.NonComparableReason, &item.IsIncludedInTotal, &item.HasFormulaError,
		); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %v", err)
		}
		if masterItemID.Valid {
			id := int(masterItemID.Int64)
			item.MasterItemID = &id
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// PeerNormalizedRates collects, per master item, the normalized unit rates
// of every other committed bid on the tender. No-bid and non-comparable
// lines never enter the average.
func (r *SubmissionRepository) PeerNormalizedRates(ctx context.Context, tenderID, excludeBidID int) (map[int][]decimal.Decimal, error) {
	query := `SELECT li.master_item_id, li.normalized_unit_rate
	          FROM bid_line_items li
	          JOIN bid_submissions b ON b.id = li.submission_id
	          WHERE b.tender_id = $1
	            AND b.id <> $2
	            AND b.status IN ('imported', 'imported_with_warnings')
	            AND li.master_item_id IS NOT NULL
	            AND li.normalized_unit_rate IS NOT NULL
	            AND li.is_no_bid = false
	            AND li.is_non_comparable = false`
	rows, err := r.db.QueryContext(ctx, query, tenderID, excludeBidID)
	if err != nil {
		return nil, fmt.Errorf("failed to query peer rates: %v", err)
	}
	defer rows.Close()

	rates := make(map[int][]decimal.Decimal)
	for rows.Next() {
		var masterItemID int
		var rate decimal.Decimal
		if err := rows.Scan(&masterItemID, &rate); err != nil {
			return nil, fmt.Errorf("failed to scan peer rate: %v", err)
		}
		rates[masterItemID] = append(rates[masterItemID], rate)
	}
	return rates, rows.Err()
}

// CommitImport persists the complete import outcome in a single
// transaction: line items, submission totals and status, and the optional
// pricing snapshot. Nothing is visible to readers until commit.
func (r *SubmissionRepository) CommitImport(ctx context.Context, commit services.ImportCommit) (*int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if err := insertNormalizedLines(ctx, tx, commit.SubmissionID, commit.Items); err != nil {
		return nil, err
	}

	updateQuery := `UPDATE bid_submissions
	                SET status = $1, grand_total = $2, fx_rate = $3, import_warnings = $4,
	                    imported_at = $5, updated_at = NOW()
	                WHERE id = $6`
	if _, err := tx.ExecContext(ctx, updateQuery,
		commit.Status, commit.GrandTotal, commit.FxRate, pq.Array(commit.Warnings),
		commit.ImportedAt, commit.SubmissionID,
	); err != nil {
		return nil, fmt.Errorf("failed to update submission: %v", err)
	}

	var snapshotID *int
	if commit.Snapshot != nil {
		id, err := insertSnapshot(ctx, tx, commit.Snapshot)
		if err != nil {
			return nil, err
		}
		snapshotID = &id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %v", err)
	}
	return snapshotID, nil
}

func insertNormalizedLines(ctx context.Context, tx *sql.Tx, bidID int, items []models.NormalizedLineItem) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM bid_line_items WHERE submission_id = $1`, bidID); err != nil {
		return fmt.Errorf("failed to clear line items: %v", err)
	}

	insertQuery := `INSERT INTO bid_line_items (submission_id, row_index, master_item_id, item_number, description,
	                    native_quantity, native_uom, target_uom, native_unit_rate, native_amount, currency,
	                    fx_rate, uom_factor, normalized_unit_rate, normalized_amount, is_no_bid,
	                    is_non_comparable, non_comparable_reason, is_included_in_total, has_formula_error)
	                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
	for _, item := range items {
		var masterItemID interface{}
		if item.MasterItemID != nil {
			masterItemID = *item.MasterItemID
		}
		if _, err := tx.ExecContext(ctx, insertQuery,
			bidID, item.RowIndex, masterItemID, item.ItemNumber, item.Description,
			item.NativeQuantity, item.NativeUom, item.TargetUom, item.NativeUnitRate,
			item.NativeAmount, item.Currency, item.FxRate, item.UomFactor,
			item.NormalizedUnitRate, item.NormalizedAmount, item.IsNoBid,
			item.IsNonComparable, item.NonComparableReason, item.IsIncludedInTotal, item.HasFormulaError,
		); err != nil {
			return fmt.Errorf("failed to insert line item row %d: %v", item.RowIndex, err)
		}
	}
	return nil
}

func insertSnapshot(ctx context.Context, tx *sql.Tx, snapshot *models.VendorPricingSnapshot) (int, error) {
	var snapshotID int
	snapQuery := `INSERT INTO vendor_pricing_snapshots (tender_id, submission_id, vendor_id, currency, fx_rate, grand_total, created_at, created_by)
	              VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	if err := tx.QueryRowContext(ctx, snapQuery,
		snapshot.TenderID, snapshot.SubmissionID, snapshot.VendorID, snapshot.Currency,
		snapshot.FxRate, snapshot.GrandTotal, snapshot.CreatedAt, snapshot.CreatedBy,
	).Scan(&snapshotID); err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %v", err)
	}

	rateQuery := `INSERT INTO vendor_item_rates (snapshot_id, master_item_id, item_number, normalized_unit_rate, normalized_amount, is_no_bid, is_non_comparable)
	              VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, rate := range snapshot.ItemRates {
		var masterItemID interface{}
		if rate.MasterItemID != nil {
			masterItemID = *rate.MasterItemID
		}
		if _, err := tx.ExecContext(ctx, rateQuery,
			snapshotID, masterItemID, rate.ItemNumber, rate.NormalizedUnitRate,
			rate.NormalizedAmount, rate.IsNoBid, rate.IsNonComparable,
		); err != nil {
			return 0, fmt.Errorf("failed to insert item rate: %v", err)
		}
	}

	return snapshotID, nil
}
