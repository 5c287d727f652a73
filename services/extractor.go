package services

import (
	"strings"

	"github.com/shopspring/decimal"

	"tenderbid/models"
)

// noBidMarkers are the cell values a bidder uses to decline an item. Matched
// case-insensitively against the rate and amount cells.
var noBidMarkers = map[string]bool{
	"no bid":   true,
	"nobid":    true,
	"no-bid":   true,
	"n/a":      true,
	"na":       true,
	"nil":      true,
	"excluded": true,
	"excl":     true,
	"-":        true,
}

// ExtractionResult is the output of one extraction pass over a workbook.
type ExtractionResult struct {
	SheetName   string              `json:"sheet_name"`
	Lines       []models.RawBidLine `json:"lines"`
	SkippedRows int                 `json:"skipped_rows"`
}

// Extractor turns a mapped spreadsheet into raw bid lines. It never types
// beyond decimals; matching and normalization happen downstream.
type Extractor struct {
	parser SheetParser
}

func NewExtractor(parser SheetParser) *Extractor {
	return &Extractor{parser: parser}
}

// Extract reads the mapped sheet and produces one RawBidLine per data row.
// Rows with no item number and no description are counted as skipped, as are
// fully empty rows. The header row is the row immediately above StartRow.
func (e *Extractor) Extract(path string, mapping models.ColumnMapping) (*ExtractionResult, error) {
	sheetName, err := e.resolveSheet(path, mapping)
	if err != nil {
		return nil, err
	}

	rows, err := e.parser.ReadSheet(path, sheetName)
	if err != nil {
		return nil, err
	}
	if mapping.StartRow < 2 || mapping.StartRow > len(rows) {
		return nil, NewErrorf(ErrInvalidFormat, "start row %d out of range for sheet %q with %d rows",
			mapping.StartRow, sheetName, len(rows))
	}

	headerRow := rows[mapping.StartRow-2]
	cols, err := resolveColumns(headerRow, mapping)
	if err != nil {
		return nil, err
	}

	result := &ExtractionResult{SheetName: sheetName}
	parentContext := ""
	for i := mapping.StartRow - 1; i < len(rows); i++ {
		line, ok := extractLine(rows[i], i+1, cols, mapping, &parentContext)
		if !ok {
			result.SkippedRows++
			continue
		}
		result.Lines = append(result.Lines, line)
	}
	if len(result.Lines) == 0 {
		return nil, NewErrorf(ErrInvalidFormat, "sheet %q contains no bid lines below row %d",
			sheetName, mapping.StartRow)
	}
	return result, nil
}

func (e *Extractor) resolveSheet(path string, mapping models.ColumnMapping) (string, error) {
	names, err := e.parser.SheetNames(path)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", NewError(ErrInvalidFormat, "workbook contains no sheets")
	}
	if mapping.SheetName != "" {
		for _, name := range names {
			if strings.EqualFold(name, mapping.SheetName) {
				return name, nil
			}
		}
		return "", NewErrorf(ErrInvalidFormat, "sheet %q not found in workbook", mapping.SheetName)
	}
	if mapping.SheetIndex != nil {
		idx := *mapping.SheetIndex
		if idx < 0 || idx >= len(names) {
			return "", NewErrorf(ErrInvalidFormat, "sheet index %d out of range, workbook has %d sheets", idx, len(names))
		}
		return names[idx], nil
	}
	return names[0], nil
}

// columnIndexes holds the resolved 0-based column positions. Optional
// columns are -1 when unmapped.
type columnIndexes struct {
	itemNumber  int
	subItem     int
	description int
	quantity    int
	uom         int
	unitRate    int
	amount      int
	currency    int
}

func resolveColumns(header []string, mapping models.ColumnMapping) (columnIndexes, error) {
	find := func(name string) int {
		if name == "" {
			return -1
		}
		for i, cell := range header {
			if strings.EqualFold(strings.TrimSpace(cell), strings.TrimSpace(name)) {
				return i
			}
		}
		return -1
	}

	cols := columnIndexes{
		itemNumber:  find(mapping.ItemNumberCol),
		subItem:     find(mapping.SubItemCol),
		description: find(mapping.DescriptionCol),
		quantity:    find(mapping.QuantityCol),
		uom:         find(mapping.UomCol),
		unitRate:    find(mapping.UnitRateCol),
		amount:      find(mapping.AmountCol),
		currency:    find(mapping.CurrencyCol),
	}

	required := []struct {
		name string
		idx  int
	}{
		{mapping.ItemNumberCol, cols.itemNumber},
		{mapping.DescriptionCol, cols.description},
	}
	for _, r := range required {
		if r.name == "" {
			return cols, NewError(ErrInvalidFormat, "column mapping is missing a required column")
		}
		if r.idx < 0 {
			return cols, NewErrorf(ErrInvalidFormat, "mapped column %q not found in header row", r.name)
		}
	}
	if cols.unitRate < 0 && cols.amount < 0 {
		return cols, NewError(ErrInvalidFormat, "column mapping must include a unit rate or amount column")
	}
	return cols, nil
}

func extractLine(row []string, rowIndex int, cols columnIndexes, mapping models.ColumnMapping, parentContext *string) (models.RawBidLine, bool) {
	cell := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	// An explicit item number becomes the parent context for following rows;
	// a lone sub-item suffix attaches to that context ("1.01" + "a" = "1.01.a").
	itemCell := cell(cols.itemNumber)
	subCell := cell(cols.subItem)
	if itemCell != "" {
		*parentContext = itemCell
	}
	itemNumber := itemCell
	if subCell != "" {
		switch {
		case itemCell != "":
			itemNumber = itemCell + "." + subCell
		case *parentContext != "":
			itemNumber = *parentContext + "." + subCell
		default:
			itemNumber = subCell
		}
	}

	description := cell(cols.description)
	quantityCell := cell(cols.quantity)
	rateCell := cell(cols.unitRate)
	amountCell := cell(cols.amount)
	if itemCell == "" && subCell == "" && description == "" &&
		quantityCell == "" && rateCell == "" && amountCell == "" {
		return models.RawBidLine{}, false
	}
	isNoBid := isNoBidMarker(rateCell) || isNoBidMarker(amountCell)

	line := models.RawBidLine{
		RowIndex:    rowIndex,
		ItemNumber:  itemNumber,
		Description: description,
		Quantity:    parseDecimalCell(quantityCell),
		Uom:         cell(cols.uom),
		Currency:    cell(cols.currency),
		IsNoBid:     isNoBid,
		RawCells:    map[string]string{},
	}
	if !isNoBid {
		line.UnitRate = parseDecimalCell(rateCell)
		line.Amount = parseDecimalCell(amountCell)
	}
	if line.Currency == "" {
		line.Currency = mapping.DefaultCurrency
	}
	for i, v := range row {
		if strings.TrimSpace(v) != "" {
			line.RawCells[columnLabel(i)] = v
		}
	}
	return line, true
}

func isNoBidMarker(cell string) bool {
	return noBidMarkers[strings.ToLower(strings.TrimSpace(cell))]
}

// currencySymbols are stripped from numeric cells before parsing, so
// "AED 1,200.50" and "$15.00" both parse.
var currencySymbols = []string{"$", "£", "€", "AED", "USD", "EUR", "GBP", "SAR", "INR"}

// parseDecimalCell parses a spreadsheet numeric cell, tolerating currency
// symbols, thousands separators and surrounding whitespace. Unparseable
// cells come back null, never zero.
func parseDecimalCell(cell string) decimal.NullDecimal {
	cleaned := strings.TrimSpace(cell)
	for _, sym := range currencySymbols {
		cleaned = strings.ReplaceAll(cleaned, sym, "")
		cleaned = strings.ReplaceAll(cleaned, strings.ToLower(sym), "")
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if cleaned == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// columnLabel converts a 0-based column index to its spreadsheet letter.
func columnLabel(idx int) string {
	label := ""
	for idx >= 0 {
		label = string(rune('A'+idx%26)) + label
		idx = idx/26 - 1
	}
	return label
}
