package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tenderbid/models"
)

// sanitizedFailureSummary is the only failure text surfaced to callers when
// an import dies unexpectedly. Full detail goes to the server log.
const sanitizedFailureSummary = "import failed unexpectedly; see server logs"

// SubmissionStore is the persistence surface the pipeline needs. The
// repository package implements it against Postgres.
type SubmissionStore interface {
	GetTender(ctx context.Context, tenderID int) (models.Tender, error)
	GetSubmission(ctx context.Context, tenderID, bidID int) (models.BidSubmission, error)
	UpdateSubmissionStatus(ctx context.Context, bidID int, status models.ImportStatus) error
	SaveColumnMapping(ctx context.Context, bidID int, mapping models.ColumnMapping) error
	SaveRawLines(ctx context.Context, bidID int, lines []models.RawBidLine, skippedRows int) error
	GetRawLines(ctx context.Context, bidID int) ([]models.RawBidLine, int, error)
	SaveNormalizedLines(ctx context.Context, bidID int, items []models.NormalizedLineItem, total decimal.Decimal) error

	// PeerNormalizedRates returns, per master item, the normalized unit
	// rates of every other imported bid on the tender, excluding no-bid
	// and non-comparable lines.
	PeerNormalizedRates(ctx context.Context, tenderID, excludeBidID int) (map[int][]decimal.Decimal, error)

	// CommitImport persists the full import outcome in one transaction:
	// normalized lines, submission totals and status, and the optional
	// pricing snapshot. Returns the snapshot ID when one was created.
	CommitImport(ctx context.Context, commit ImportCommit) (*int, error)
}

// MasterDataReader provides the read-only tender master data.
type MasterDataReader interface {
	MasterBoqItems(ctx context.Context, tenderID int) ([]models.MasterBoqItem, error)
	UomDefinitions(ctx context.Context) ([]models.UomDefinition, error)
}

// FileStore resolves a stored upload to a local path the parser can open.
type FileStore interface {
	Download(path string) (string, error)
}

// ImportCommit is everything CommitImport writes atomically.
type ImportCommit struct {
	SubmissionID int
	Status       models.ImportStatus
	GrandTotal   decimal.Decimal
	FxRate       decimal.Decimal
	Items        []models.NormalizedLineItem
	Warnings     []string
	ImportedAt   time.Time
	Snapshot     *models.VendorPricingSnapshot
}

// ImportService drives a bid submission through the import pipeline:
// extract, resolve, normalize, validate, commit. All heavy lifting lives in
// the stage services; this type owns status transitions and serialization.
type ImportService struct {
	store     SubmissionStore
	master    MasterDataReader
	files     FileStore
	parser    SheetParser
	matcher   *FuzzyMatcher
	validator *ValidationService

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewImportService(store SubmissionStore, master MasterDataReader, files FileStore, parser SheetParser) *ImportService {
	return &ImportService{
		store:     store,
		master:    master,
		files:     files,
		parser:    parser,
		matcher:   NewFuzzyMatcher(DefaultMatchThreshold),
		validator: NewValidationService(),
		locks:     map[int]*sync.Mutex{},
	}
}

// lockFor serializes pipeline runs per submission. Concurrent ExecuteImport
// calls against the same bid queue up instead of interleaving. Entries stay
// for the life of the process: the map holds one bare mutex per submission
// ever touched, and evicting on a terminal status would let a queued caller
// race a freshly created mutex for the same bid.
func (s *ImportService) lockFor(bidID int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[bidID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[bidID] = lock
	}
	return lock
}

// MapColumns extracts bid lines from the uploaded workbook using the given
// column mapping. Requires status Parsed; ends in Mapped, or Failed on an
// unexpected error.
func (s *ImportService) MapColumns(ctx context.Context, tenderID, bidID int, mapping models.ColumnMapping) ([]models.RawBidLine, error) {
	lock := s.lockFor(bidID)
	lock.Lock()
	defer lock.Unlock()

	submission, err := s.store.GetSubmission(ctx, tenderID, bidID)
	if err != nil {
		return nil, err
	}
	if submission.Status != models.StatusParsed {
		return nil, InvalidStateError(string(models.StatusParsed), string(submission.Status))
	}

	if err := s.store.UpdateSubmissionStatus(ctx, bidID, models.StatusMapping); err != nil {
		return nil, err
	}

	lines, err := s.mapColumns(ctx, submission, mapping)
	if err != nil {
		if IsErrType(err, ErrInvalidFormat) {
			// A bad mapping is recoverable; drop back to Parsed so the
			// caller can try again.
			if stErr := s.store.UpdateSubmissionStatus(ctx, bidID, models.StatusParsed); stErr != nil {
				log.Printf("Error resetting submission %d status: %v", bidID, stErr)
			}
			return nil, err
		}
		log.Printf("Error mapping columns for submission %d: %v", bidID, err)
		if stErr := s.store.UpdateSubmissionStatus(ctx, bidID, models.StatusFailed); stErr != nil {
			log.Printf("Error failing submission %d: %v", bidID, stErr)
		}
		return nil, NewError(ErrUnexpected, sanitizedFailureSummary)
	}

	if err := s.store.UpdateSubmissionStatus(ctx, bidID, models.StatusMapped); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *ImportService) mapColumns(ctx context.Context, submission models.BidSubmission, mapping models.ColumnMapping) ([]models.RawBidLine, error) {
	if mapping.DefaultCurrency == "" {
		mapping.DefaultCurrency = submission.Currency
	}

	localPath, err := s.files.Download(submission.FilePath)
	if err != nil {
		return nil, WrapError(ErrNotFound, "bid file is missing from storage", err)
	}

	extraction, err := NewExtractor(s.parser).Extract(localPath, mapping)
	if err != nil {
		return nil, err
	}

	if err := s.store.SaveColumnMapping(ctx, submission.ID, mapping); err != nil {
		return nil, err
	}
	if err := s.store.SaveRawLines(ctx, submission.ID, extraction.Lines, extraction.SkippedRows); err != nil {
		return nil, err
	}
	return extraction.Lines, nil
}

// ValidateImport runs the validation engine without touching any state.
func (s *ImportService) ValidateImport(ctx context.Context, tenderID, bidID int, opts ValidationOptions) (*models.ValidationResult, error) {
	stage, err := s.loadStage(ctx, tenderID, bidID, nil)
	if err != nil {
		return nil, err
	}
	return s.validate(ctx, stage, opts)
}

// NormalizeBid converts the submission's lines into the tender's base
// currency and master UOMs. With persist=false this is a pure preview.
func (s *ImportService) NormalizeBid(ctx context.Context, tenderID, bidID int, fxRate *decimal.Decimal, persist bool) (*models.NormalizationResult, error) {
	if persist {
		lock := s.lockFor(bidID)
		lock.Lock()
		defer lock.Unlock()
	}

	stage, err := s.loadStage(ctx, tenderID, bidID, fxRate)
	if err != nil {
		return nil, err
	}
	result := stage.normalization
	result.SubmissionID = bidID

	if persist {
		if err := s.store.SaveNormalizedLines(ctx, bidID, result.Items, result.NormalizedTotal); err != nil {
			return nil, err
		}
		result.Persisted = true
	}
	return result, nil
}

// ExecuteImport is the terminal pipeline stage. It validates, normalizes in
// commit mode, recomputes totals, optionally snapshots, and persists the
// final state atomically. Blocking validation outcomes abort with status
// Failed and are reported in the result rather than as an error.
func (s *ImportService) ExecuteImport(ctx context.Context, tenderID, bidID int, force, createSnapshot bool, fxRate *decimal.Decimal) (*models.ImportResult, error) {
	lock := s.lockFor(bidID)
	lock.Lock()
	defer lock.Unlock()

	stage, err := s.loadStage(ctx, tenderID, bidID, fxRate)
	if err != nil {
		return nil, err
	}

	validation, err := s.validate(ctx, stage, ValidationOptions{DetectOutliers: true})
	if err != nil {
		return nil, err
	}

	result := &models.ImportResult{
		SubmissionID:      bidID,
		ValidationSummary: validation.Summaries,
	}
	if validation.Blocked(force) {
		result.Status = models.StatusFailed
		result.Warnings = blockingWarnings(validation)
		if err := s.store.UpdateSubmissionStatus(ctx, bidID, models.StatusFailed); err != nil {
			return nil, err
		}
		return result, nil
	}

	// State change is the irreversible point; cancellation up to here must
	// leave the submission untouched.
	if err := ctx.Err(); err != nil {
		return nil, WrapError(ErrUnexpected, "import cancelled before commit", err)
	}

	normalization := stage.normalization
	status := models.StatusImported
	if validation.HasWarnings {
		status = models.StatusImportedWithWarnings
	} else if stage.skippedRows > 0 {
		status = models.StatusPartiallyImported
	}

	commit := ImportCommit{
		SubmissionID: bidID,
		Status:       status,
		GrandTotal:   normalization.NormalizedTotal,
		FxRate:       normalization.FxRate,
		Items:        normalization.Items,
		Warnings:     warningMessages(validation),
		ImportedAt:   time.Now().UTC(),
	}
	if createSnapshot {
		commit.Snapshot = buildSnapshot(stage.tender, stage.submission, normalization)
	}

	snapshotID, err := s.store.CommitImport(ctx, commit)
	if err != nil {
		log.Printf("Error committing import for submission %d: %v", bidID, err)
		if stErr := s.store.UpdateSubmissionStatus(ctx, bidID, models.StatusFailed); stErr != nil {
			log.Printf("Error failing submission %d: %v", bidID, stErr)
		}
		result.Status = models.StatusFailed
		result.Warnings = append(result.Warnings, sanitizedFailureSummary)
		return result, nil
	}

	result.Status = status
	result.GrandTotal = normalization.NormalizedTotal
	result.ImportedLines = len(normalization.Items)
	result.SkippedLines = stage.skippedRows
	result.SnapshotID = snapshotID
	result.Warnings = commit.Warnings
	return result, nil
}

// stageData is everything the later pipeline stages need, loaded and
// computed once per call.
type stageData struct {
	tender        models.Tender
	submission    models.BidSubmission
	masterItems   []models.MasterBoqItem
	lines         []models.RawBidLine
	skippedRows   int
	matches       []models.ItemMatch
	normalization *models.NormalizationResult
}

// loadStage loads the submission, resolves matches and normalizes. Requires
// status Mapped.
func (s *ImportService) loadStage(ctx context.Context, tenderID, bidID int, fxOverride *decimal.Decimal) (*stageData, error) {
	tender, err := s.store.GetTender(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	submission, err := s.store.GetSubmission(ctx, tenderID, bidID)
	if err != nil {
		return nil, err
	}
	if submission.Status != models.StatusMapped {
		return nil, InvalidStateError(string(models.StatusMapped), string(submission.Status))
	}

	masterItems, err := s.master.MasterBoqItems(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	uomDefs, err := s.master.UomDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	lines, skipped, err := s.store.GetRawLines(ctx, bidID)
	if err != nil {
		return nil, err
	}

	fx, err := resolveFxRate(tender, submission, fxOverride)
	if err != nil {
		return nil, err
	}

	matches := NewItemResolver(s.matcher).Resolve(masterItems, lines)
	normalization, err := NewNormalizer(NewUomService(uomDefs)).
		Normalize(tender.PricingLevel, masterItems, lines, matches, fx)
	if err != nil {
		return nil, err
	}
	normalization.SubmissionID = bidID

	return &stageData{
		tender:        tender,
		submission:    submission,
		masterItems:   masterItems,
		lines:         lines,
		skippedRows:   skipped,
		matches:       matches,
		normalization: normalization,
	}, nil
}

func (s *ImportService) validate(ctx context.Context, stage *stageData, opts ValidationOptions) (*models.ValidationResult, error) {
	var peerRates map[int][]decimal.Decimal
	if opts.DetectOutliers {
		var err error
		peerRates, err = s.store.PeerNormalizedRates(ctx, stage.tender.ID, stage.submission.ID)
		if err != nil {
			return nil, err
		}
		if len(peerRates) == 0 {
			opts.DetectOutliers = false
		}
	}
	return s.validator.Validate(stage.submission.ID, stage.masterItems, stage.normalization.Items, peerRates, opts), nil
}

// resolveFxRate picks the explicit override, then the submission's stored
// rate, then 1 when the bid is already in the tender currency.
func resolveFxRate(tender models.Tender, submission models.BidSubmission, override *decimal.Decimal) (decimal.Decimal, error) {
	if override != nil {
		return *override, nil
	}
	if submission.FxRate.Valid {
		return submission.FxRate.Decimal, nil
	}
	if submission.Currency == "" || submission.Currency == tender.BaseCurrency {
		return decimal.NewFromInt(1), nil
	}
	return decimal.Decimal{}, NewErrorf(ErrInvalidState,
		"no fx rate available for %s to %s", submission.Currency, tender.BaseCurrency)
}

func buildSnapshot(tender models.Tender, submission models.BidSubmission, normalization *models.NormalizationResult) *models.VendorPricingSnapshot {
	snapshot := &models.VendorPricingSnapshot{
		TenderID:     tender.ID,
		SubmissionID: submission.ID,
		VendorID:     submission.VendorID,
		Currency:     submission.Currency,
		FxRate:       normalization.FxRate,
		GrandTotal:   normalization.NormalizedTotal,
		CreatedAt:    time.Now().UTC(),
		CreatedBy:    submission.CreatedBy,
	}
	for _, item := range normalization.Items {
		snapshot.ItemRates = append(snapshot.ItemRates, models.VendorItemRate{
			MasterItemID:       item.MasterItemID,
			ItemNumber:         item.ItemNumber,
			NormalizedUnitRate: item.NormalizedUnitRate,
			NormalizedAmount:   item.NormalizedAmount,
			IsNoBid:            item.IsNoBid,
			IsNonComparable:    item.IsNonComparable,
		})
	}
	return snapshot
}

// blockingWarnings turns the blocking issues into caller-facing strings.
func blockingWarnings(validation *models.ValidationResult) []string {
	var out []string
	for _, issue := range validation.Issues {
		if issue.Severity == models.SeverityError || issue.Severity == models.SeverityWarning {
			out = append(out, issue.Message)
		}
	}
	return out
}

// warningMessages collects warning-level messages that survive a forced
// import.
func warningMessages(validation *models.ValidationResult) []string {
	var out []string
	for _, issue := range validation.Issues {
		if issue.Severity == models.SeverityWarning {
			out = append(out, issue.Message)
		}
	}
	return out
}
