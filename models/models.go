package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ImportStatus tracks a bid submission through the import pipeline.
type ImportStatus string

const (
	StatusUploaded             ImportStatus = "uploaded"
	StatusParsed               ImportStatus = "parsed"
	StatusMapping              ImportStatus = "mapping"
	StatusMapped               ImportStatus = "mapped"
	StatusImported             ImportStatus = "imported"
	StatusImportedWithWarnings ImportStatus = "imported_with_warnings"
	StatusPartiallyImported    ImportStatus = "partially_imported"
	StatusFailed               ImportStatus = "failed"
)

// PricingLevel controls which line items contribute to the submission grand total.
type PricingLevel string

const (
	PricingLevelBill    PricingLevel = "bill"
	PricingLevelItem    PricingLevel = "item"
	PricingLevelSubItem PricingLevel = "sub_item"
)

type Tender struct {
	ID           int          `json:"id" example:"1"`
	Name         string       `json:"name" example:"Warehouse Expansion Phase 2"`
	Reference    string       `json:"reference" example:"TND-2026-014"`
	BaseCurrency string       `json:"base_currency" example:"AED"`
	PricingLevel PricingLevel `json:"pricing_level" example:"item"`
	Status       string       `json:"status" example:"open"`
	CreatedAt    time.Time    `json:"created_at" example:"2026-01-15T10:30:00Z"`
	UpdatedAt    time.Time    `json:"updated_at" example:"2026-01-15T10:30:00Z"`
	CreatedBy    string       `json:"created_by" example:"admin"`
}

// MasterBoqItem is one authoritative line of the tender's bill of quantities.
// Read-only to the import pipeline.
type MasterBoqItem struct {
	ID          int                 `json:"id" example:"1"`
	TenderID    int                 `json:"tender_id" example:"1"`
	ItemNumber  string              `json:"item_number" example:"1.01.a"`
	Description string              `json:"description" example:"Reinforced concrete grade 40 for columns"`
	Quantity    decimal.NullDecimal `json:"quantity" swaggertype:"number"`
	Uom         string              `json:"uom" example:"m3"`
	IsGroup     bool                `json:"is_group" example:"false"`
	ParentID    *int                `json:"parent_id,omitempty" example:"2"`
	SortOrder   int                 `json:"sort_order" example:"3"`
}

// BidSubmission is the aggregate root of one vendor's priced bid for a tender.
// Created on first file upload and never deleted (audit trail).
type BidSubmission struct {
	ID             int                 `json:"id" example:"7"`
	TenderID       int                 `json:"tender_id" example:"1"`
	VendorID       int                 `json:"vendor_id" example:"3"`
	VendorName     string              `json:"vendor_name,omitempty" example:"Alfa Contracting LLC"`
	Status         ImportStatus        `json:"status" example:"parsed"`
	Currency       string              `json:"currency" example:"USD"`
	FxRate         decimal.NullDecimal `json:"fx_rate" swaggertype:"number"`
	FilePath       string              `json:"file_path" example:"/var/www/tenderbid/uploads/1706000000-bid.xlsx"`
	FileName       string              `json:"file_name" example:"bid.xlsx"`
	GrandTotal     decimal.NullDecimal `json:"grand_total" swaggertype:"number"`
	LineCount      int                 `json:"line_count" example:"120"`
	SkippedCount   int                 `json:"skipped_count" example:"2"`
	ImportWarnings []string            `json:"import_warnings,omitempty"`
	CreatedAt      time.Time           `json:"created_at" example:"2026-01-15T10:30:00Z"`
	UpdatedAt      time.Time           `json:"updated_at" example:"2026-01-15T10:30:00Z"`
	ImportedAt     *time.Time          `json:"imported_at,omitempty"`
	CreatedBy      string              `json:"created_by" example:"admin"`
}

type Vendor struct {
	VendorID  int       `json:"vendor_id" example:"3"`
	Name      string    `json:"name" example:"Alfa Contracting LLC"`
	Email     string    `json:"email" example:"bids@alfacontracting.com"`
	Phone     string    `json:"phone" example:"+971501234567"`
	Address   string    `json:"address" example:"Industrial Area 4, Sharjah"`
	Status    string    `json:"status" example:"active"`
	CreatedAt time.Time `json:"created_at" example:"2026-01-15T10:30:00Z"`
	UpdatedAt time.Time `json:"updated_at" example:"2026-01-15T10:30:00Z"`
}

type User struct {
	ID        int       `json:"id" example:"1"`
	Email     string    `json:"email" example:"user@example.com"`
	Password  string    `json:"password" example:""`
	FirstName string    `json:"first_name" example:"John"`
	LastName  string    `json:"last_name" example:"Doe"`
	IsAdmin   bool      `json:"is_admin" example:"false"`
	Suspended bool      `json:"suspended" example:"false"`
	CreatedAt time.Time `json:"created_at" example:"2026-01-15T10:30:00Z"`
	UpdatedAt time.Time `json:"updated_at" example:"2026-01-15T10:30:00Z"`
}

type Session struct {
	UserID                int       `json:"user_id"`
	SessionID             string    `json:"session_id"`
	HostName              string    `json:"host_name"`
	IPAddress             string    `json:"ip_address"`
	Timestamp             time.Time `json:"timestp"`
	ExpiresAt             time.Time `json:"expires_at"`
	RefreshToken          string    `json:"refresh_token,omitempty"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at,omitempty"`
}

type ActivityLog struct {
	ID           int       `json:"id" example:"1"`
	CreatedAt    time.Time `json:"created_at" example:"2026-01-15T10:30:00Z"`
	UserName     string    `json:"user_name" example:"John Doe"`
	HostName     string    `json:"host_name" example:"workstation-01"`
	EventContext string    `json:"event_context" example:"bid import"`
	IPAddress    string    `json:"ip_address" example:"192.168.1.1"`
	Description  string    `json:"description" example:"User executed bid import"`
	EventName    string    `json:"event_name" example:"import"`
	TenderID     int       `json:"tender_id" example:"1"`
}
