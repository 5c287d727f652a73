package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GORM-backed models for the immutable pricing snapshot tables.

// VendorPricingSnapshot is a point-in-time capture of a committed import's
// normalized pricing, created once per successful execution. Rows are never
// updated after creation.
type VendorPricingSnapshot struct {
	ID           int              `gorm:"primaryKey;column:id" json:"id"`
	TenderID     int              `gorm:"column:tender_id;not null;index" json:"tender_id"`
	SubmissionID int              `gorm:"column:submission_id;not null;index" json:"submission_id"`
	VendorID     int              `gorm:"column:vendor_id;not null" json:"vendor_id"`
	Currency     string           `gorm:"column:currency;not null" json:"currency"`
	FxRate       decimal.Decimal  `gorm:"column:fx_rate;type:numeric(18,8);not null" json:"fx_rate" swaggertype:"number"`
	GrandTotal   decimal.Decimal  `gorm:"column:grand_total;type:numeric(18,4);not null" json:"grand_total" swaggertype:"number"`
	CreatedAt    time.Time        `gorm:"column:created_at;not null" json:"created_at"`
	CreatedBy    string           `gorm:"column:created_by;not null" json:"created_by"`
	ItemRates    []VendorItemRate `gorm:"foreignKey:SnapshotID" json:"item_rates,omitempty"`
}

func (VendorPricingSnapshot) TableName() string {
	return "vendor_pricing_snapshots"
}

// VendorItemRate is one normalized per-item rate inside a snapshot.
type VendorItemRate struct {
	ID                 int                 `gorm:"primaryKey;column:id" json:"id"`
	SnapshotID         int                 `gorm:"column:snapshot_id;not null;index" json:"snapshot_id"`
	MasterItemID       *int                `gorm:"column:master_item_id" json:"master_item_id,omitempty"`
	ItemNumber         string              `gorm:"column:item_number" json:"item_number"`
	NormalizedUnitRate decimal.NullDecimal `gorm:"column:normalized_unit_rate;type:numeric(18,6)" json:"normalized_unit_rate" swaggertype:"number"`
	NormalizedAmount   decimal.NullDecimal `gorm:"column:normalized_amount;type:numeric(18,4)" json:"normalized_amount" swaggertype:"number"`
	IsNoBid            bool                `gorm:"column:is_no_bid;default:false" json:"is_no_bid"`
	IsNonComparable    bool                `gorm:"column:is_non_comparable;default:false" json:"is_non_comparable"`
}

func (VendorItemRate) TableName() string {
	return "vendor_item_rates"
}
