package services

import (
	"sort"
	"strings"

	"tenderbid/models"
)

// maxAlternatives caps how many runner-up candidates a match carries for
// manual disambiguation.
const maxAlternatives = 3

// ItemResolver links raw bid lines to master BOQ items. Resolution is
// two-phase per line: exact item-number match first, fuzzy description
// fallback second. A master item is consumed by its first match and is no
// longer a candidate for later lines.
type ItemResolver struct {
	matcher *FuzzyMatcher
}

func NewItemResolver(matcher *FuzzyMatcher) *ItemResolver {
	return &ItemResolver{matcher: matcher}
}

// Resolve processes lines in row order. Group rows of the master BOQ are
// never match targets. A line ends up as:
//   - exact: normalized item numbers are equal, confidence 100
//   - fuzzy: best description score among unmatched masters; below the
//     threshold the match is still recorded but flagged NeedsReview
//   - extra_item: no candidate scored at all
//   - no_bid: a declined line that matched no master item
func (r *ItemResolver) Resolve(masterItems []models.MasterBoqItem, lines []models.RawBidLine) []models.ItemMatch {
	pool := make([]models.MasterBoqItem, 0, len(masterItems))
	for _, item := range masterItems {
		if !item.IsGroup {
			pool = append(pool, item)
		}
	}
	consumed := make(map[int]bool, len(pool))

	matches := make([]models.ItemMatch, 0, len(lines))
	for _, line := range lines {
		match := r.resolveLine(pool, consumed, line)
		if match.MasterItemID != nil {
			consumed[*match.MasterItemID] = true
		}
		matches = append(matches, match)
	}
	return matches
}

func (r *ItemResolver) resolveLine(pool []models.MasterBoqItem, consumed map[int]bool, line models.RawBidLine) models.ItemMatch {
	match := models.ItemMatch{LineRowIndex: line.RowIndex}

	if number := normalizeItemNumber(line.ItemNumber); number != "" {
		for _, item := range pool {
			if consumed[item.ID] {
				continue
			}
			if normalizeItemNumber(item.ItemNumber) == number {
				id := item.ID
				match.MasterItemID = &id
				match.MatchType = models.MatchExact
				match.Confidence = 100
				return match
			}
		}
	}

	candidates := r.rankCandidates(pool, consumed, line.Description)
	if len(candidates) > 0 {
		best := candidates[0]
		id := best.MasterItemID
		match.MasterItemID = &id
		match.MatchType = models.MatchFuzzy
		match.Confidence = best.Confidence
		match.NeedsReview = !r.matcher.IsMatch(best.Confidence) ||
			(len(candidates) > 1 && candidates[1].Confidence == best.Confidence)
		match.Alternatives = capAlternatives(candidates[1:])
		return match
	}

	if line.IsNoBid {
		match.MatchType = models.MatchNoBid
	} else {
		match.MatchType = models.MatchExtraItem
	}
	match.NeedsReview = true
	return match
}

// rankCandidates scores the line description against every unconsumed leaf
// item and sorts best first. Equal scores order by item number so a tie
// always resolves to the smallest item number.
func (r *ItemResolver) rankCandidates(pool []models.MasterBoqItem, consumed map[int]bool, description string) []models.MatchCandidate {
	if strings.TrimSpace(description) == "" {
		return nil
	}
	var candidates []models.MatchCandidate
	for _, item := range pool {
		if consumed[item.ID] {
			continue
		}
		score := r.matcher.Score(description, item.Description)
		if score == 0 {
			continue
		}
		candidates = append(candidates, models.MatchCandidate{
			MasterItemID: item.ID,
			ItemNumber:   item.ItemNumber,
			Description:  item.Description,
			Confidence:   score,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].ItemNumber < candidates[j].ItemNumber
	})
	return candidates
}

func capAlternatives(candidates []models.MatchCandidate) []models.MatchCandidate {
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) > maxAlternatives {
		candidates = candidates[:maxAlternatives]
	}
	out := make([]models.MatchCandidate, len(candidates))
	copy(out, candidates)
	return out
}

// normalizeItemNumber makes "1.01." and " 1.01" compare equal.
func normalizeItemNumber(number string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(number)), ".")
}
