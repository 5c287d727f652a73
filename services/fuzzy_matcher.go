package services

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
)

// DefaultMatchThreshold is the minimum confidence for an automatic fuzzy
// match. Scores below it still record a match but flag it for review.
const DefaultMatchThreshold = 80

// FuzzyMatcher scores textual similarity between bid line descriptions and
// master BOQ descriptions on a 0-100 scale. Three complementary ratios are
// exposed; Score takes the best of them, so reordered words and embedded
// substrings both score high while unrelated descriptions stay low.
type FuzzyMatcher struct {
	threshold int
	params    *levenshtein.Params
}

// NewFuzzyMatcher creates a matcher with the given auto-match threshold.
func NewFuzzyMatcher(threshold int) *FuzzyMatcher {
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultMatchThreshold
	}
	return &FuzzyMatcher{
		threshold: threshold,
		params:    levenshtein.NewParams(),
	}
}

// Threshold returns the auto-match threshold.
func (m *FuzzyMatcher) Threshold() int {
	return m.threshold
}

// Ratio is the normalized edit-distance similarity over the two full
// strings, 0-100.
func (m *FuzzyMatcher) Ratio(a, b string) int {
	na, nb := NormalizeDescription(a), NormalizeDescription(b)
	if na == "" || nb == "" {
		return 0
	}
	return toScore(levenshtein.Similarity(na, nb, m.params))
}

// TokenSetRatio tokenizes both strings and compares their token sets, so it
// is invariant to word reordering and duplicate tokens.
func (m *FuzzyMatcher) TokenSetRatio(a, b string) int {
	na, nb := NormalizeDescription(a), NormalizeDescription(b)
	if na == "" || nb == "" {
		return 0
	}
	setA, setB := tokenSet(na), tokenSet(nb)
	common := sortedJoin(intersect(setA, setB))
	onlyA := sortedJoin(subtract(setA, setB))
	onlyB := sortedJoin(subtract(setB, setA))

	combinedA := strings.TrimSpace(common + " " + onlyA)
	combinedB := strings.TrimSpace(common + " " + onlyB)

	best := 0.0
	for _, pair := range [][2]string{
		{common, combinedA},
		{common, combinedB},
		{combinedA, combinedB},
	} {
		if pair[0] == "" && pair[1] == "" {
			continue
		}
		if sim := levenshtein.Similarity(pair[0], pair[1], m.params); sim > best {
			best = sim
		}
	}
	return toScore(best)
}

// PartialRatio is the best alignment of the shorter string against any
// equally long window of the longer one, suited to detecting a short string
// embedded in a longer one.
func (m *FuzzyMatcher) PartialRatio(a, b string) int {
	na, nb := NormalizeDescription(a), NormalizeDescription(b)
	if na == "" || nb == "" {
		return 0
	}
	shorter, longer := []rune(na), []rune(nb)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) == len(longer) {
		return toScore(levenshtein.Similarity(string(shorter), string(longer), m.params))
	}

	best := 0.0
	for i := 0; i+len(shorter) <= len(longer); i++ {
		window := string(longer[i : i+len(shorter)])
		if sim := levenshtein.Similarity(string(shorter), window, m.params); sim > best {
			best = sim
			if best == 1 {
				break
			}
		}
	}
	return toScore(best)
}

// Score returns the best of the three ratios.
func (m *FuzzyMatcher) Score(a, b string) int {
	best := m.Ratio(a, b)
	if s := m.TokenSetRatio(a, b); s > best {
		best = s
	}
	if s := m.PartialRatio(a, b); s > best {
		best = s
	}
	return best
}

// IsMatch reports whether the score clears the auto-match threshold.
func (m *FuzzyMatcher) IsMatch(score int) bool {
	return score >= m.threshold
}

// ScoredCandidate is one candidate with its similarity to the query.
type ScoredCandidate struct {
	Index int
	Score int
}

// FindBestMatch returns the index and score of the highest-scoring
// candidate, or (-1, 0) when there are no candidates. Ties keep the earliest
// candidate.
func (m *FuzzyMatcher) FindBestMatch(query string, candidates []string) (int, int) {
	bestIdx, bestScore := -1, 0
	for i, c := range candidates {
		if score := m.Score(query, c); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return bestIdx, bestScore
}

// FindMatches returns all candidates scoring at or above minConfidence,
// ordered by descending confidence. Ties keep candidate input order.
func (m *FuzzyMatcher) FindMatches(query string, candidates []string, minConfidence int) []ScoredCandidate {
	var matches []ScoredCandidate
	for i, c := range candidates {
		if score := m.Score(query, c); score >= minConfidence && score > 0 {
			matches = append(matches, ScoredCandidate{Index: i, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// NormalizeDescription lowercases, strips punctuation and collapses
// whitespace so cosmetic spreadsheet differences do not affect matching.
func NormalizeDescription(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func toScore(similarity float64) int {
	return int(similarity*100 + 0.5)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

func intersect(a, b map[string]struct{}) []string {
	var out []string
	for tok := range a {
		if _, ok := b[tok]; ok {
			out = append(out, tok)
		}
	}
	return out
}

func subtract(a, b map[string]struct{}) []string {
	var out []string
	for tok := range a {
		if _, ok := b[tok]; !ok {
			out = append(out, tok)
		}
	}
	return out
}

func sortedJoin(tokens []string) string {
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
