package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"tenderbid/models"
	"tenderbid/services"
)

// SnapshotRepository reads the immutable pricing snapshots through GORM.
// Snapshot writes happen inside the import commit transaction; this side is
// read-only.
type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// GetSnapshot loads one snapshot with its item rates.
func (r *SnapshotRepository) GetSnapshot(ctx context.Context, snapshotID int) (*models.VendorPricingSnapshot, error) {
	var snapshot models.VendorPricingSnapshot
	err := r.db.WithContext(ctx).Preload("ItemRates").First(&snapshot, snapshotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, services.NotFoundError("snapshot", snapshotID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %v", err)
	}
	return &snapshot, nil
}

// ListSnapshotsByTender returns the latest snapshot per submission for a
// tender, item rates included, ordered by vendor.
func (r *SnapshotRepository) ListSnapshotsByTender(ctx context.Context, tenderID int) ([]models.VendorPricingSnapshot, error) {
	var snapshots []models.VendorPricingSnapshot
	subQuery := r.db.Model(&models.VendorPricingSnapshot{}).
		Select("MAX(id)").
		Where("tender_id = ?", tenderID).
		Group("submission_id")
	err := r.db.WithContext(ctx).
		Preload("ItemRates").
		Where("id IN (?)", subQuery).
		Order("vendor_id").
		Find(&snapshots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %v", err)
	}
	return snapshots, nil
}
