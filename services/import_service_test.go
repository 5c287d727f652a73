package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenderbid/models"
)

// fakeStore is an in-memory SubmissionStore for pipeline tests.
type fakeStore struct {
	tender      models.Tender
	submission  models.BidSubmission
	rawLines    []models.RawBidLine
	skippedRows int
	peerRates   map[int][]decimal.Decimal

	savedMapping    *models.ColumnMapping
	savedNormalized []models.NormalizedLineItem
	committed       *ImportCommit
	commitErr       error
	saveRawLinesErr error
	statusHistory   []models.ImportStatus
}

func (f *fakeStore) GetTender(ctx context.Context, tenderID int) (models.Tender, error) {
	if tenderID != f.tender.ID {
		return models.Tender{}, NotFoundError("tender", tenderID)
	}
	return f.tender, nil
}

func (f *fakeStore) GetSubmission(ctx context.Context, tenderID, bidID int) (models.BidSubmission, error) {
	if bidID != f.submission.ID {
		return models.BidSubmission{}, NotFoundError("submission", bidID)
	}
	return f.submission, nil
}

func (f *fakeStore) UpdateSubmissionStatus(ctx context.Context, bidID int, status models.ImportStatus) error {
	f.submission.Status = status
	f.statusHistory = append(f.statusHistory, status)
	return nil
}

func (f *fakeStore) SaveColumnMapping(ctx context.Context, bidID int, mapping models.ColumnMapping) error {
	f.savedMapping = &mapping
	return nil
}

func (f *fakeStore) SaveRawLines(ctx context.Context, bidID int, lines []models.RawBidLine, skippedRows int) error {
	if f.saveRawLinesErr != nil {
		return f.saveRawLinesErr
	}
	f.rawLines = lines
	f.skippedRows = skippedRows
	return nil
}

func (f *fakeStore) GetRawLines(ctx context.Context, bidID int) ([]models.RawBidLine, int, error) {
	return f.rawLines, f.skippedRows, nil
}

func (f *fakeStore) SaveNormalizedLines(ctx context.Context, bidID int, items []models.NormalizedLineItem, total decimal.Decimal) error {
	f.savedNormalized = items
	return nil
}

func (f *fakeStore) PeerNormalizedRates(ctx context.Context, tenderID, excludeBidID int) (map[int][]decimal.Decimal, error) {
	return f.peerRates, nil
}

func (f *fakeStore) CommitImport(ctx context.Context, commit ImportCommit) (*int, error) {
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	f.committed = &commit
	f.submission.Status = commit.Status
	f.statusHistory = append(f.statusHistory, commit.Status)
	if commit.Snapshot != nil {
		id := 4
		return &id, nil
	}
	return nil, nil
}

// fakeMaster serves static master data.
type fakeMaster struct {
	items []models.MasterBoqItem
	uoms  []models.UomDefinition
}

func (f *fakeMaster) MasterBoqItems(ctx context.Context, tenderID int) ([]models.MasterBoqItem, error) {
	return f.items, nil
}

func (f *fakeMaster) UomDefinitions(ctx context.Context) ([]models.UomDefinition, error) {
	return f.uoms, nil
}

// fakeFiles passes paths through untouched.
type fakeFiles struct{}

func (fakeFiles) Download(path string) (string, error) { return path, nil }

func pipelineFixture(status models.ImportStatus) (*ImportService, *fakeStore) {
	store := &fakeStore{
		tender: models.Tender{
			ID:           1,
			BaseCurrency: "AED",
			PricingLevel: models.PricingLevelItem,
		},
		submission: models.BidSubmission{
			ID:       7,
			TenderID: 1,
			VendorID: 3,
			Status:   status,
			Currency: "AED",
			FilePath: "bid.xlsx",
		},
	}
	master := &fakeMaster{
		items: []models.MasterBoqItem{
			{ID: 1, ItemNumber: "1.01", Description: "Excavation in ordinary soil", Uom: "m3"},
			{ID: 2, ItemNumber: "1.02", Description: "Backfilling with approved material", Uom: "m3"},
			{ID: 3, ItemNumber: "1.03", Description: "Anti-termite treatment", Uom: "m2"},
		},
		uoms: testUomDefinitions(),
	}
	parser := &fakeSheetParser{
		sheets: map[string][][]string{"BOQ": testBoqGrid()},
		order:  []string{"BOQ"},
	}
	return NewImportService(store, master, fakeFiles{}, parser), store
}

func mappedLines() []models.RawBidLine {
	mk := func(row int, number, desc, qty, rate, amount, uom string) models.RawBidLine {
		line := models.RawBidLine{RowIndex: row, ItemNumber: number, Description: desc, Uom: uom, Currency: "AED"}
		if qty != "" {
			line.Quantity = nullDecimal(decimal.RequireFromString(qty))
		}
		if rate != "" {
			line.UnitRate = nullDecimal(decimal.RequireFromString(rate))
		}
		if amount != "" {
			line.Amount = nullDecimal(decimal.RequireFromString(amount))
		}
		return line
	}
	return []models.RawBidLine{
		mk(3, "1.01", "Excavation in ordinary soil", "100", "10", "1000", "m3"),
		mk(4, "1.02", "Backfilling with approved material", "80", "5", "400", "m3"),
		mk(5, "1.03", "Anti-termite treatment", "50", "2", "100", "m2"),
	}
}

func TestMapColumnsTransitionsToMapped(t *testing.T) {
	svc, store := pipelineFixture(models.StatusParsed)

	lines, err := svc.MapColumns(context.Background(), 1, 7, testMapping())
	require.NoError(t, err)
	assert.NotEmpty(t, lines)
	assert.Equal(t, models.StatusMapped, store.submission.Status)
	assert.Equal(t, []models.ImportStatus{models.StatusMapping, models.StatusMapped}, store.statusHistory)
	require.NotNil(t, store.savedMapping)
	assert.Equal(t, 1, store.skippedRows)
}

func TestMapColumnsRequiresParsedStatus(t *testing.T) {
	svc, _ := pipelineFixture(models.StatusMapped)

	_, err := svc.MapColumns(context.Background(), 1, 7, testMapping())
	require.Error(t, err)
	assert.True(t, IsErrType(err, ErrInvalidState))
}

func TestMapColumnsBadMappingDropsBackToParsed(t *testing.T) {
	svc, store := pipelineFixture(models.StatusParsed)
	mapping := testMapping()
	mapping.SheetName = "Missing"

	_, err := svc.MapColumns(context.Background(), 1, 7, mapping)
	require.Error(t, err)
	assert.True(t, IsErrType(err, ErrInvalidFormat))
	assert.Equal(t, models.StatusParsed, store.submission.Status)
}

func TestMapColumnsUnexpectedFailureEndsFailed(t *testing.T) {
	svc, store := pipelineFixture(models.StatusParsed)
	store.saveRawLinesErr = errors.New("pq: deadlock detected")

	_, err := svc.MapColumns(context.Background(), 1, 7, testMapping())
	require.Error(t, err)
	assert.True(t, IsErrType(err, ErrUnexpected))
	assert.Equal(t, models.StatusFailed, store.submission.Status)
	assert.Equal(t, []models.ImportStatus{models.StatusMapping, models.StatusFailed}, store.statusHistory)
	assert.Contains(t, err.Error(), sanitizedFailureSummary)
	assert.NotContains(t, err.Error(), "deadlock",
		"raw storage errors must never reach the caller")
}

func TestValidateImportIsSideEffectFree(t *testing.T) {
	svc, store := pipelineFixture(models.StatusMapped)
	store.rawLines = mappedLines()

	result, err := svc.ValidateImport(context.Background(), 1, 7, ValidationOptions{})
	require.NoError(t, err)
	assert.Equal(t, 7, result.SubmissionID)
	assert.False(t, result.HasErrors)
	assert.Empty(t, store.statusHistory, "validation must not change state")
}

func TestNormalizeBidPreviewAndPersist(t *testing.T) {
	svc, store := pipelineFixture(models.StatusMapped)
	store.rawLines = mappedLines()

	preview, err := svc.NormalizeBid(context.Background(), 1, 7, nil, false)
	require.NoError(t, err)
	assert.False(t, preview.Persisted)
	assert.Nil(t, store.savedNormalized)
	assert.True(t, preview.NormalizedTotal.Equal(decimal.NewFromInt(1500)))

	persisted, err := svc.NormalizeBid(context.Background(), 1, 7, nil, true)
	require.NoError(t, err)
	assert.True(t, persisted.Persisted)
	assert.Len(t, store.savedNormalized, 3)
}

func TestNormalizeBidFxOverride(t *testing.T) {
	svc, store := pipelineFixture(models.StatusMapped)
	store.rawLines = mappedLines()
	fx := decimal.RequireFromString("3.75")

	result, err := svc.NormalizeBid(context.Background(), 1, 7, &fx, false)
	require.NoError(t, err)
	assert.True(t, result.FxRate.Equal(fx))
	assert.True(t, result.NormalizedTotal.Equal(decimal.RequireFromString("5625")))
}

func TestExecuteImportHappyPath(t *testing.T) {
	svc, store := pipelineFixture(models.StatusMapped)
	store.rawLines = mappedLines()

	result, err := svc.ExecuteImport(context.Background(), 1, 7, false, true, nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusImported, result.Status)
	assert.True(t, result.GrandTotal.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, 3, result.ImportedLines)
	require.NotNil(t, result.SnapshotID)
	assert.Equal(t, 4, *result.SnapshotID)
	assert.Empty(t, result.Warnings)

	require.NotNil(t, store.committed)
	assert.Equal(t, models.StatusImported, store.committed.Status)
	require.NotNil(t, store.committed.Snapshot)
	assert.Len(t, store.committed.Snapshot.ItemRates, 3)
}

func TestExecuteImportSkippedRowsEndPartiallyImported(t *testing.T) {
	svc, store := pipelineFixture(models.StatusMapped)
	store.rawLines = mappedLines()
	store.skippedRows = 2

	result, err := svc.ExecuteImport(context.Background(), 1, 7, false, false, nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPartiallyImported, result.Status)
	assert.Equal(t, 2, result.SkippedLines)
	assert.Equal(t, 3, result.ImportedLines)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, models.StatusPartiallyImported, store.submission.Status)
	require.NotNil(t, store.committed)
	assert.Equal(t, models.StatusPartiallyImported, store.committed.Status)
}

func TestExecuteImportBlockedByErrorEndsFailed(t *testing.T) {
	svc, store := pipelineFixture(models.StatusMapped)
	lines := mappedLines()
	lines[0].Quantity = nullDecimal(decimal.NewFromInt(-5))
	store.rawLines = lines

	result, err := svc.ExecuteImport(context.Background(), 1, 7, true, false, nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Equal(t, models.StatusFailed, store.submission.Status)
	assert.NotEmpty(t, result.Warnings)
	assert.Nil(t, store.committed, "blocked imports must not commit")
}

func TestExecuteImportWarningsBlockUnlessForced(t *testing.T) {
	svc, store := pipelineFixture(models.StatusMapped)
	lines := mappedLines()
	lines[1].UnitRate = nullDecimal(decimal.Zero) // zero rate warning
	store.rawLines = lines

	result, err := svc.ExecuteImport(context.Background(), 1, 7, false, false, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Nil(t, store.committed)

	// Reset and force.
	store.submission.Status = models.StatusMapped
	store.statusHistory = nil
	result, err = svc.ExecuteImport(context.Background(), 1, 7, true, false, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusImportedWithWarnings, result.Status)
	assert.NotEmpty(t, result.Warnings)
	require.NotNil(t, store.committed)
}

func TestExecuteImportRequiresMappedStatus(t *testing.T) {
	svc, _ := pipelineFixture(models.StatusUploaded)

	_, err := svc.ExecuteImport(context.Background(), 1, 7, false, false, nil)
	require.Error(t, err)
	assert.True(t, IsErrType(err, ErrInvalidState))
}

func TestExecuteImportCancelledBeforeCommitLeavesStateUntouched(t *testing.T) {
	svc, store := pipelineFixture(models.StatusMapped)
	store.rawLines = mappedLines()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ExecuteImport(ctx, 1, 7, false, false, nil)
	require.Error(t, err)
	assert.Equal(t, models.StatusMapped, store.submission.Status)
	assert.Nil(t, store.committed)
}

func TestExecuteImportUnexpectedCommitFailureSanitized(t *testing.T) {
	svc, store := pipelineFixture(models.StatusMapped)
	store.rawLines = mappedLines()
	store.commitErr = NewError(ErrUnexpected, "pq: connection reset by peer")

	result, err := svc.ExecuteImport(context.Background(), 1, 7, false, false, nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Equal(t, models.StatusFailed, store.submission.Status)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, sanitizedFailureSummary, result.Warnings[0],
		"raw database errors must never reach the caller")
}

func TestResolveFxRateFallbacks(t *testing.T) {
	tender := models.Tender{BaseCurrency: "AED"}

	fx, err := resolveFxRate(tender, models.BidSubmission{Currency: "AED"}, nil)
	require.NoError(t, err)
	assert.True(t, fx.Equal(decimal.NewFromInt(1)))

	stored := models.BidSubmission{Currency: "USD", FxRate: nullDecimal(decimal.RequireFromString("3.67"))}
	fx, err = resolveFxRate(tender, stored, nil)
	require.NoError(t, err)
	assert.True(t, fx.Equal(decimal.RequireFromString("3.67")))

	override := decimal.RequireFromString("3.75")
	fx, err = resolveFxRate(tender, stored, &override)
	require.NoError(t, err)
	assert.True(t, fx.Equal(override))

	_, err = resolveFxRate(tender, models.BidSubmission{Currency: "USD"}, nil)
	require.Error(t, err)
	assert.True(t, IsErrType(err, ErrInvalidState))
}
