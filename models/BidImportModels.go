package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ColumnMapping tells the extractor which spreadsheet column feeds which
// semantic field. Column values are header names as returned by the parser.
type ColumnMapping struct {
	SheetName       string `json:"sheet_name" example:"BOQ"`
	SheetIndex      *int   `json:"sheet_index,omitempty" example:"0"`
	StartRow        int    `json:"start_row" example:"2"`
	ItemNumberCol   string `json:"item_number_col" example:"Item"`
	SubItemCol      string `json:"sub_item_col,omitempty" example:"Sub"`
	DescriptionCol  string `json:"description_col" example:"Description"`
	QuantityCol     string `json:"quantity_col" example:"Qty"`
	UomCol          string `json:"uom_col" example:"Unit"`
	UnitRateCol     string `json:"unit_rate_col" example:"Rate"`
	AmountCol       string `json:"amount_col" example:"Amount"`
	CurrencyCol     string `json:"currency_col,omitempty" example:"Currency"`
	DefaultCurrency string `json:"default_currency" example:"USD"`
}

// RawBidLine is one extracted spreadsheet row. Immutable once extracted;
// consumed by the resolver and normalizer and then discarded.
type RawBidLine struct {
	RowIndex    int                 `json:"row_index" example:"12"`
	ItemNumber  string              `json:"item_number" example:"1.01.a"`
	Description string              `json:"description" example:"Excavation in ordinary soil"`
	Quantity    decimal.NullDecimal `json:"quantity" swaggertype:"number"`
	Uom         string              `json:"uom" example:"m3"`
	UnitRate    decimal.NullDecimal `json:"unit_rate" swaggertype:"number"`
	Amount      decimal.NullDecimal `json:"amount" swaggertype:"number"`
	Currency    string              `json:"currency" example:"USD"`
	IsNoBid     bool                `json:"is_no_bid" example:"false"`
	RawCells    map[string]string   `json:"raw_cells,omitempty"`
}

// MatchType classifies how a bid line was linked to a master BOQ item.
type MatchType string

const (
	MatchExact     MatchType = "exact"
	MatchFuzzy     MatchType = "fuzzy"
	MatchManual    MatchType = "manual"
	MatchExtraItem MatchType = "extra_item"
	MatchNoBid     MatchType = "no_bid"
)

// MatchCandidate is one alternative master item kept for manual disambiguation.
type MatchCandidate struct {
	MasterItemID int    `json:"master_item_id" example:"14"`
	ItemNumber   string `json:"item_number" example:"2.03"`
	Description  string `json:"description" example:"Blockwork 200mm"`
	Confidence   int    `json:"confidence" example:"74"`
}

// ItemMatch links a RawBidLine to at most one MasterBoqItem.
type ItemMatch struct {
	LineRowIndex int              `json:"line_row_index" example:"12"`
	MasterItemID *int             `json:"master_item_id,omitempty" example:"14"`
	MatchType    MatchType        `json:"match_type" example:"fuzzy"`
	Confidence   int              `json:"confidence" example:"92"`
	NeedsReview  bool             `json:"needs_review" example:"false"`
	Alternatives []MatchCandidate `json:"alternatives,omitempty"`
}

// NormalizedLineItem carries a line's native values plus the FX- and
// UOM-normalized figures. When IsNonComparable is true the normalized rate
// and amount are unset and NonComparableReason says why.
type NormalizedLineItem struct {
	LineItemID          int                 `json:"line_item_id" example:"101"`
	RowIndex            int                 `json:"row_index" example:"12"`
	MasterItemID        *int                `json:"master_item_id,omitempty" example:"14"`
	ItemNumber          string              `json:"item_number" example:"1.01.a"`
	Description         string              `json:"description" example:"Excavation in ordinary soil"`
	NativeQuantity      decimal.NullDecimal `json:"native_quantity" swaggertype:"number"`
	NativeUom           string              `json:"native_uom" example:"sqft"`
	TargetUom           string              `json:"target_uom" example:"m2"`
	NativeUnitRate      decimal.NullDecimal `json:"native_unit_rate" swaggertype:"number"`
	NativeAmount        decimal.NullDecimal `json:"native_amount" swaggertype:"number"`
	Currency            string              `json:"currency" example:"USD"`
	FxRate              decimal.Decimal     `json:"fx_rate" swaggertype:"number"`
	UomFactor           decimal.NullDecimal `json:"uom_factor" swaggertype:"number"`
	NormalizedUnitRate  decimal.NullDecimal `json:"normalized_unit_rate" swaggertype:"number"`
	NormalizedAmount    decimal.NullDecimal `json:"normalized_amount" swaggertype:"number"`
	IsNoBid             bool                `json:"is_no_bid" example:"false"`
	IsNonComparable     bool                `json:"is_non_comparable" example:"false"`
	NonComparableReason string              `json:"non_comparable_reason,omitempty" example:"different categories: Lump vs Area"`
	IsIncludedInTotal   bool                `json:"is_included_in_total" example:"true"`
	HasFormulaError     bool                `json:"has_formula_error" example:"false"`
}

// IssueSeverity ranks validation findings.
type IssueSeverity string

const (
	SeverityInfo    IssueSeverity = "info"
	SeverityWarning IssueSeverity = "warning"
	SeverityError   IssueSeverity = "error"
)

// Validation issue codes.
const (
	IssueFormulaMismatch     = "FORMULA_MISMATCH"
	IssueNegativeValue       = "NEGATIVE_VALUE"
	IssueZeroRate            = "ZERO_RATE"
	IssueMissingRate         = "MISSING_RATE"
	IssueUnmatchedMasterItem = "UNMATCHED_MASTER_ITEM"
	IssueExtraItem           = "EXTRA_ITEM"
	IssueLowCoverage         = "LOW_COVERAGE"
	IssueRateOutlierHigh     = "RATE_OUTLIER_HIGH"
	IssueRateOutlierMedium   = "RATE_OUTLIER_MEDIUM"
)

// ValidationIssue is one finding from the validation engine. Pure output,
// never persisted as pipeline state.
type ValidationIssue struct {
	Severity       IssueSeverity       `json:"severity" example:"warning"`
	Code           string              `json:"code" example:"FORMULA_MISMATCH"`
	Message        string              `json:"message" example:"row 12: calculated amount 1250.00 deviates 4.2% from provided 1200.00"`
	RowIndex       *int                `json:"row_index,omitempty" example:"12"`
	MasterItemID   *int                `json:"master_item_id,omitempty" example:"14"`
	CanAutoCorrect bool                `json:"can_auto_correct" example:"true"`
	SuggestedValue decimal.NullDecimal `json:"suggested_value" swaggertype:"number"`
}

// CheckSummary aggregates one validation check's outcome.
type CheckSummary struct {
	CheckName    string `json:"check_name" example:"formula"`
	IssueCount   int    `json:"issue_count" example:"3"`
	ErrorCount   int    `json:"error_count" example:"0"`
	WarningCount int    `json:"warning_count" example:"3"`
	InfoCount    int    `json:"info_count" example:"0"`
	Detail       string `json:"detail,omitempty" example:"coverage 87.5% (35/40 items matched)"`
}

// ValidationResult is the full outcome of a validation pass.
type ValidationResult struct {
	SubmissionID int               `json:"submission_id" example:"7"`
	Issues       []ValidationIssue `json:"issues"`
	Summaries    []CheckSummary    `json:"summaries"`
	HasErrors    bool              `json:"has_errors" example:"false"`
	HasWarnings  bool              `json:"has_warnings" example:"true"`
	CheckedAt    time.Time         `json:"checked_at" example:"2026-01-15T10:30:00Z"`
}

// Blocked reports whether the validation outcome blocks an import.
// Errors always block; warnings block unless the caller forces the import.
func (r *ValidationResult) Blocked(force bool) bool {
	if r.HasErrors {
		return true
	}
	return r.HasWarnings && !force
}

// NormalizationResult is the outcome of a normalization pass.
type NormalizationResult struct {
	SubmissionID     int                  `json:"submission_id" example:"7"`
	Items            []NormalizedLineItem `json:"items"`
	MismatchCount    int                  `json:"mismatch_count" example:"2"`
	NormalizedTotal  decimal.Decimal      `json:"normalized_total" swaggertype:"number"`
	FxRate           decimal.Decimal      `json:"fx_rate" swaggertype:"number"`
	Persisted        bool                 `json:"persisted" example:"false"`
}

// ImportResult is the outcome of ExecuteImport.
type ImportResult struct {
	SubmissionID      int             `json:"submission_id" example:"7"`
	Status            ImportStatus    `json:"status" example:"imported_with_warnings"`
	GrandTotal        decimal.Decimal `json:"grand_total" swaggertype:"number"`
	ImportedLines     int             `json:"imported_lines" example:"118"`
	SkippedLines      int             `json:"skipped_lines" example:"2"`
	SnapshotID        *int            `json:"snapshot_id,omitempty" example:"4"`
	ValidationSummary []CheckSummary  `json:"validation_summary"`
	Warnings          []string        `json:"warnings,omitempty"`
}
