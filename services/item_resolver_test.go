package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenderbid/models"
)

func testMasterItems() []models.MasterBoqItem {
	group := 1
	return []models.MasterBoqItem{
		{ID: 1, ItemNumber: "1", Description: "Earthworks", IsGroup: true},
		{ID: 2, ItemNumber: "1.01", Description: "Excavation in ordinary soil", ParentID: &group, SortOrder: 1},
		{ID: 3, ItemNumber: "1.02", Description: "Backfilling with approved material", ParentID: &group, SortOrder: 2},
		{ID: 4, ItemNumber: "1.03", Description: "Anti-termite treatment to foundations", ParentID: &group, SortOrder: 3},
	}
}

func newTestResolver() *ItemResolver {
	return NewItemResolver(NewFuzzyMatcher(DefaultMatchThreshold))
}

func TestResolveExactItemNumber(t *testing.T) {
	lines := []models.RawBidLine{
		{RowIndex: 3, ItemNumber: "1.01", Description: "completely different wording"},
		{RowIndex: 4, ItemNumber: " 1.02. ", Description: ""},
	}

	matches := newTestResolver().Resolve(testMasterItems(), lines)
	require.Len(t, matches, 2)

	assert.Equal(t, models.MatchExact, matches[0].MatchType)
	require.NotNil(t, matches[0].MasterItemID)
	assert.Equal(t, 2, *matches[0].MasterItemID)
	assert.Equal(t, 100, matches[0].Confidence)
	assert.False(t, matches[0].NeedsReview)

	assert.Equal(t, models.MatchExact, matches[1].MatchType)
	require.NotNil(t, matches[1].MasterItemID)
	assert.Equal(t, 3, *matches[1].MasterItemID)
}

func TestResolveFuzzyByDescription(t *testing.T) {
	lines := []models.RawBidLine{
		{RowIndex: 5, ItemNumber: "A-7", Description: "Excavation in ordinary soils"},
	}

	matches := newTestResolver().Resolve(testMasterItems(), lines)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, models.MatchFuzzy, m.MatchType)
	require.NotNil(t, m.MasterItemID)
	assert.Equal(t, 2, *m.MasterItemID)
	assert.GreaterOrEqual(t, m.Confidence, DefaultMatchThreshold)
	assert.False(t, m.NeedsReview)
}

func TestResolveLowConfidenceStillRecordedForReview(t *testing.T) {
	lines := []models.RawBidLine{
		{RowIndex: 6, ItemNumber: "9.99", Description: "Termite control works"},
	}

	matches := newTestResolver().Resolve(testMasterItems(), lines)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, models.MatchFuzzy, m.MatchType)
	require.NotNil(t, m.MasterItemID)
	if m.Confidence < DefaultMatchThreshold {
		assert.True(t, m.NeedsReview, "sub-threshold matches must be flagged for review")
	}
}

func TestResolveGroupRowsAreNotTargets(t *testing.T) {
	lines := []models.RawBidLine{
		{RowIndex: 2, ItemNumber: "1", Description: "Earthworks"},
	}

	matches := newTestResolver().Resolve(testMasterItems(), lines)
	require.Len(t, matches, 1)
	// Item number "1" belongs to a group row, so no exact match exists.
	assert.NotEqual(t, models.MatchExact, matches[0].MatchType)
	if matches[0].MasterItemID != nil {
		assert.NotEqual(t, 1, *matches[0].MasterItemID)
	}
}

func TestResolveMasterItemConsumedOnce(t *testing.T) {
	master := []models.MasterBoqItem{
		{ID: 2, ItemNumber: "1.01", Description: "Excavation in ordinary soil"},
	}
	lines := []models.RawBidLine{
		{RowIndex: 3, ItemNumber: "1.01", Description: "Excavation in ordinary soil"},
		{RowIndex: 4, ItemNumber: "1.01", Description: "Excavation in ordinary soil"},
	}

	matches := newTestResolver().Resolve(master, lines)
	require.Len(t, matches, 2)

	assert.Equal(t, models.MatchExact, matches[0].MatchType)
	require.NotNil(t, matches[0].MasterItemID)
	assert.Equal(t, 2, *matches[0].MasterItemID)

	// The single master item is already consumed by row 3.
	assert.Equal(t, models.MatchExtraItem, matches[1].MatchType)
	assert.Nil(t, matches[1].MasterItemID)
	assert.True(t, matches[1].NeedsReview)
}

func TestResolveNoBidLineWithNoCandidates(t *testing.T) {
	lines := []models.RawBidLine{
		{RowIndex: 10, ItemNumber: "9.99", Description: "Decorative water feature", IsNoBid: true},
	}

	matches := newTestResolver().Resolve(nil, lines)
	require.Len(t, matches, 1)
	assert.Equal(t, models.MatchNoBid, matches[0].MatchType)
	assert.Nil(t, matches[0].MasterItemID)
}

func TestResolveTieBreaksOnItemNumber(t *testing.T) {
	master := []models.MasterBoqItem{
		{ID: 7, ItemNumber: "2.02", Description: "Blockwork 200mm thick"},
		{ID: 6, ItemNumber: "2.01", Description: "Blockwork 200mm thick"},
	}
	lines := []models.RawBidLine{
		{RowIndex: 4, ItemNumber: "X", Description: "Blockwork 200mm thick"},
	}

	matches := newTestResolver().Resolve(master, lines)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, models.MatchFuzzy, m.MatchType)
	require.NotNil(t, m.MasterItemID)
	assert.Equal(t, 6, *m.MasterItemID, "equal scores resolve to the smaller item number")
	assert.True(t, m.NeedsReview, "a tied match always needs review")
	require.Len(t, m.Alternatives, 1)
	assert.Equal(t, 7, m.Alternatives[0].MasterItemID)
}

func TestResolveAlternativesCapped(t *testing.T) {
	master := []models.MasterBoqItem{
		{ID: 1, ItemNumber: "3.01", Description: "Paint to internal walls one coat"},
		{ID: 2, ItemNumber: "3.02", Description: "Paint to internal walls two coats"},
		{ID: 3, ItemNumber: "3.03", Description: "Paint to internal ceilings one coat"},
		{ID: 4, ItemNumber: "3.04", Description: "Paint to external walls one coat"},
		{ID: 5, ItemNumber: "3.05", Description: "Paint to external ceilings two coats"},
	}
	lines := []models.RawBidLine{
		{RowIndex: 6, ItemNumber: "Z", Description: "Paint to internal walls one coat"},
	}

	matches := newTestResolver().Resolve(master, lines)
	require.Len(t, matches, 1)
	assert.LessOrEqual(t, len(matches[0].Alternatives), maxAlternatives)
}
