package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tenderbid/models"
)

// MasterDataRepository reads the tender master data the pipeline consumes:
// master BOQ items and the UOM conversion table.
type MasterDataRepository struct {
	db *sql.DB
}

func NewMasterDataRepository(db *sql.DB) *MasterDataRepository {
	return &MasterDataRepository{db: db}
}

func (r *MasterDataRepository) MasterBoqItems(ctx context.Context, tenderID int) ([]models.MasterBoqItem, error) {
	query := `SELECT id, tender_id, item_number, description, quantity, uom, is_group, parent_id, sort_order
	          FROM master_boq_items WHERE tender_id = $1 ORDER BY sort_order, id`
	rows, err := r.db.QueryContext(ctx, query, tenderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query master boq items: %v", err)
	}
	defer rows.Close()

	var items []models.MasterBoqItem
	for rows.Next() {
		var item models.MasterBoqItem
		var parentID sql.NullInt64
		if err := rows.Scan(
			&item.ID, &item.TenderID, &item.ItemNumber, &item.Description,
			&item.Quantity, &item.Uom, &item.IsGroup, &parentID, &item.SortOrder,
		); err != nil {
			return nil, fmt.Errorf("failed to scan master boq item: %v", err)
		}
		if parentID.Valid {
			id := int(parentID.Int64)
			item.ParentID = &id
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ReplaceMasterBoqItems swaps a tender's BOQ for the given items in one
// transaction. Used by the BOQ upload endpoint.
func (r *MasterDataRepository) ReplaceMasterBoqItems(ctx context.Context, tenderID int, items []models.MasterBoqItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM master_boq_items WHERE tender_id = $1`, tenderID); err != nil {
		return fmt.Errorf("failed to clear master boq: %v", err)
	}

	insertQuery := `INSERT INTO master_boq_items (tender_id, item_number, description, quantity, uom, is_group, parent_id, sort_order)
	                VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for i, item := range items {
		var parentID interface{}
		if item.ParentID != nil {
			parentID = *item.ParentID
		}
		if _, err := tx.ExecContext(ctx, insertQuery,
			tenderID, item.ItemNumber, item.Description, item.Quantity,
			item.Uom, item.IsGroup, parentID, i+1,
		); err != nil {
			return fmt.Errorf("failed to insert master boq item %s: %v", item.ItemNumber, err)
		}
	}
	return tx.Commit()
}

func (r *MasterDataRepository) UomDefinitions(ctx context.Context) ([]models.UomDefinition, error) {
	query := `SELECT id, code, description, category, factor_to_base, base_unit_code
	          FROM uom_definitions ORDER BY category, code`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query uom definitions: %v", err)
	}
	defer rows.Close()

	var defs []models.UomDefinition
	for rows.Next() {
		var def models.UomDefinition
		var baseCode sql.NullString
		if err := rows.Scan(
			&def.ID, &def.Code, &def.Description, &def.Category, &def.FactorToBase, &baseCode,
		); err != nil {
			return nil, fmt.Errorf("failed to scan uom definition: %v", err)
		}
		if baseCode.Valid {
			code := baseCode.String
			def.BaseUnitCode = &code
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// CreateUomDefinition adds one unit to the conversion table.
func (r *MasterDataRepository) CreateUomDefinition(ctx context.Context, def *models.UomDefinition) (int, error) {
	query := `INSERT INTO uom_definitions (code, description, category, factor_to_base, base_unit_code)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id`
	var baseCode interface{}
	if def.BaseUnitCode != nil {
		baseCode = *def.BaseUnitCode
	}
	var id int
	err := r.db.QueryRowContext(ctx, query,
		def.Code, def.Description, def.Category, def.FactorToBase, baseCode,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert uom definition: %v", err)
	}
	return id, nil
}
