// =============================================================================
// Invoice Rollup - Similarity Engine
// =============================================================================
//
// Scores two cleaned names and ranks mapping-store keys against a new name.
//
//	score = 0.6 * edit-distance ratio + 0.4 * trigram Jaccard (+0.1 brand bonus)
//
// The bonus can push a score above 1.0. Score is symmetric.
//
// =============================================================================

package similarity

import (
	"sort"
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

const (
	// Threshold is the minimum score for a stored key to be offered as a hint.
	Threshold = 0.80

	// DefaultK is the number of ranked candidates considered.
	DefaultK = 3

	editWeight    = 0.6
	jaccardWeight = 0.4
	brandBonus    = 0.1
	brandFallback = 6
)

// storeMarkers end a brand token.
var storeMarkers = []rune{'店'}

// Candidate is a ranked mapping-store key.
type Candidate struct {
	Key   string
	Score float64
}

// Score returns the similarity of two cleaned strings.
func Score(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)

	s := editWeight*editRatio(ra, rb) + jaccardWeight*jaccard(trigrams(ra), trigrams(rb))
	if brandToken(ra) == brandToken(rb) {
		s += brandBonus
	}
	return s
}

// editRatio is 1 - normalized edit distance, with substitutions costing two
// edits, which equals 2*matches/total.
func editRatio(a, b []rune) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	return levenshtein.RatioForStrings(a, b, levenshtein.DefaultOptions)
}

// trigrams returns the set of 3-rune shingles; strings shorter than three
// runes are their own single shingle.
func trigrams(r []rune) map[string]struct{} {
	set := make(map[string]struct{})
	if len(r) < 3 {
		set[string(r)] = struct{}{}
		return set
	}
	for i := 0; i+3 <= len(r); i++ {
		set[string(r[i:i+3])] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// brandToken is the leading part of a name up to a store marker or
// whitespace, else its first six runes.
func brandToken(r []rune) string {
	for i, c := range r {
		if i > 0 && (unicode.IsSpace(c) || containsRune(storeMarkers, c)) {
			return string(r[:i])
		}
	}
	if len(r) > brandFallback {
		return string(r[:brandFallback])
	}
	return string(r)
}

func containsRune(set []rune, r rune) bool {
	for _, c := range set {
		if c == r {
			return true
		}
	}
	return false
}

// =============================================================================
// RANKING
// =============================================================================

// TopK scores every key against cleaned and returns the best k, highest
// first. Equal scores keep the order of keys.
func TopK(cleaned string, keys []string, k int) []Candidate {
	out := make([]Candidate, 0, len(keys))
	for _, key := range keys {
		out = append(out, Candidate{Key: key, Score: Score(cleaned, key)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// AboveThreshold keeps candidates scoring at least threshold.
func AboveThreshold(cands []Candidate, threshold float64) []Candidate {
	var out []Candidate
	for _, c := range cands {
		if c.Score >= threshold {
			out = append(out, c)
		}
	}
	return out
}

// Hints returns the top DefaultK keys scoring at least Threshold.
func Hints(cleaned string, keys []string) []Candidate {
	if strings.TrimSpace(cleaned) == "" {
		return nil
	}
	return AboveThreshold(TopK(cleaned, keys, DefaultK), Threshold)
}
