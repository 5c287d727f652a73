package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDescription(t *testing.T) {
	assert.Equal(t, "excavation in ordinary soil",
		NormalizeDescription("  Excavation,   in ORDINARY soil!  "))
	assert.Equal(t, "blockwork 200mm thick",
		NormalizeDescription("Blockwork (200mm) - thick"))
	assert.Equal(t, "", NormalizeDescription("  --- "))
}

func TestRatioIdenticalAfterNormalization(t *testing.T) {
	m := NewFuzzyMatcher(DefaultMatchThreshold)

	assert.Equal(t, 100, m.Ratio("Excavation in ordinary soil", "excavation in ordinary soil"))
	assert.Equal(t, 100, m.Score("Blockwork, 200mm", "blockwork 200mm"))
}

func TestTokenSetRatioIgnoresWordOrder(t *testing.T) {
	m := NewFuzzyMatcher(DefaultMatchThreshold)

	score := m.TokenSetRatio("Reinforced concrete grade 40 for columns", "Columns reinforced concrete grade 40")
	assert.GreaterOrEqual(t, score, 90, "reordered tokens must score at least 90, got %d", score)

	score = m.TokenSetRatio("supply fix supply fix tiles", "tiles supply fix")
	assert.GreaterOrEqual(t, score, 90, "duplicate tokens must not lower the score, got %d", score)
}

func TestPartialRatioFindsEmbeddedString(t *testing.T) {
	m := NewFuzzyMatcher(DefaultMatchThreshold)

	score := m.PartialRatio("ceramic floor tiles",
		"Supply and fix ceramic floor tiles to bathrooms including skirting")
	assert.Equal(t, 100, score)
}

func TestScoreNearMatchesClearThreshold(t *testing.T) {
	m := NewFuzzyMatcher(DefaultMatchThreshold)

	score := m.Score("Excavation in ordinary soil", "Excavation in ordinary soils")
	assert.True(t, m.IsMatch(score), "score %d", score)

	score = m.Score("Supply and fix ceramic floor tiles", "Supply and fix ceramic floor tile")
	assert.True(t, m.IsMatch(score), "score %d", score)
}

func TestScoreUnrelatedStaysLow(t *testing.T) {
	m := NewFuzzyMatcher(DefaultMatchThreshold)

	score := m.Score("Excavation in ordinary soil", "Aluminium window frames powder coated")
	assert.False(t, m.IsMatch(score), "score %d", score)
}

func TestScoreSymmetric(t *testing.T) {
	m := NewFuzzyMatcher(DefaultMatchThreshold)

	a := "Reinforced concrete grade 30 in columns"
	b := "RC grade 30 columns"
	assert.Equal(t, m.Score(a, b), m.Score(b, a))
}

func TestScoreEmptyInputs(t *testing.T) {
	m := NewFuzzyMatcher(DefaultMatchThreshold)

	assert.Equal(t, 0, m.Score("", "anything"))
	assert.Equal(t, 0, m.Score("anything", ""))
	assert.Equal(t, 0, m.Score("", ""))
}

func TestFindBestMatch(t *testing.T) {
	m := NewFuzzyMatcher(DefaultMatchThreshold)
	candidates := []string{
		"Backfilling with approved material",
		"Excavation in ordinary soil",
		"Anti-termite treatment to foundations",
	}

	idx, score := m.FindBestMatch("Excavation in ordinary soils", candidates)
	assert.Equal(t, 1, idx)
	assert.GreaterOrEqual(t, score, DefaultMatchThreshold)

	idx, score = m.FindBestMatch("anything", nil)
	assert.Equal(t, -1, idx)
	assert.Equal(t, 0, score)
}

func TestFindMatchesOrderedAndStable(t *testing.T) {
	m := NewFuzzyMatcher(DefaultMatchThreshold)
	candidates := []string{
		"Blockwork 200mm thick",
		"Aluminium window frames",
		"Blockwork 200mm thick",
	}

	matches := m.FindMatches("Blockwork 200mm thick", candidates, 80)
	require.Len(t, matches, 2)
	assert.Equal(t, 0, matches[0].Index, "ties keep candidate input order")
	assert.Equal(t, 2, matches[1].Index)
	assert.Equal(t, matches[0].Score, matches[1].Score)
}

func TestFuzzyMatcherThresholdFallback(t *testing.T) {
	assert.Equal(t, DefaultMatchThreshold, NewFuzzyMatcher(0).Threshold())
	assert.Equal(t, DefaultMatchThreshold, NewFuzzyMatcher(150).Threshold())
	assert.Equal(t, 70, NewFuzzyMatcher(70).Threshold())
}
