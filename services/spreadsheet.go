package services

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SheetParser reads a bidder workbook into raw cell grids. The pipeline only
// ever sees string cells; all typing happens later in the extractor.
type SheetParser interface {
	// SheetNames lists the sheets of the workbook at path, in file order.
	SheetNames(path string) ([]string, error)

	// ReadSheet returns the full cell grid of one sheet. Trailing empty
	// cells within a row may be absent, rows are never nil.
	ReadSheet(path, sheetName string) ([][]string, error)
}

// allowedUploadExtensions is the upload allow-list. CSV files are treated as
// single-sheet workbooks.
var allowedUploadExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xls":  true,
	".csv":  true,
}

// IsAllowedUpload reports whether the filename carries an accepted
// spreadsheet extension.
func IsAllowedUpload(filename string) bool {
	return allowedUploadExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ExcelSheetParser parses .xlsx/.xlsm workbooks with excelize and .csv files
// with the standard csv reader.
type ExcelSheetParser struct{}

func NewExcelSheetParser() *ExcelSheetParser {
	return &ExcelSheetParser{}
}

func (p *ExcelSheetParser) SheetNames(path string) ([]string, error) {
	if isCSV(path) {
		return []string{csvSheetName(path)}, nil
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, WrapError(ErrInvalidFormat, "unable to open workbook", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

func (p *ExcelSheetParser) ReadSheet(path, sheetName string) ([][]string, error) {
	if isCSV(path) {
		return readCSV(path)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, WrapError(ErrInvalidFormat, "unable to open workbook", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, WrapError(ErrInvalidFormat, "unable to read sheet "+sheetName, err)
	}
	for i, row := range rows {
		if row == nil {
			rows[i] = []string{}
		}
	}
	return rows, nil
}

func isCSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}

func csvSheetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, WrapError(ErrInvalidFormat, "unable to open file", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, WrapError(ErrInvalidFormat, "unable to parse csv", err)
	}
	return records, nil
}
