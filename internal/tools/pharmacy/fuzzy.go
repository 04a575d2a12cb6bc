package pharmacy

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/wonderful-ai/pharmagent/internal/store"
)

const (
	// phoneticThreshold is the minimum Jaro-Winkler score for a candidate
	// whose Double Metaphone code overlaps the input ("iburprofen" and
	// "ibuprofen" share a code but differ as strings).
	phoneticThreshold = 0.70

	// fuzzyThreshold is the minimum Jaro-Winkler score for a candidate with
	// no phonetic overlap.
	fuzzyThreshold = 0.85

	maxCandidates = 5
)

// Candidate is one fuzzy-matched catalog entry.
type Candidate struct {
	Med   store.Medication
	Score float64
}

// Fuzzy recovers from misspelled medication names by combining Double
// Metaphone phonetic codes with Jaro-Winkler string similarity. Phonetic
// overlap admits a candidate at a lower similarity bar; otherwise pure
// string similarity must clear a higher one.
//
// Fuzzy is read-only after construction and safe for concurrent use.
type Fuzzy struct{}

// NewFuzzy returns a ready-to-use matcher.
func NewFuzzy() *Fuzzy {
	return &Fuzzy{}
}

// Candidates ranks meds against the (possibly misspelled) name and returns
// at most five, best first. An empty result means nothing plausible matched.
func (f *Fuzzy) Candidates(name string, meds []store.Medication) []Candidate {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	inputCodes := metaphoneCodes(name)
	var candidates []Candidate

	for _, med := range meds {
		score := bestSimilarity(name, med)
		phonetic := codesOverlap(inputCodes, metaphoneCodes(med.BrandName)) ||
			codesOverlap(inputCodes, metaphoneCodes(med.GenericName))

		switch {
		case phonetic && score >= phoneticThreshold:
			candidates = append(candidates, Candidate{Med: med, Score: score})
		case score >= fuzzyThreshold:
			candidates = append(candidates, Candidate{Med: med, Score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Med.BrandName < candidates[j].Med.BrandName
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates
}

// bestSimilarity is the higher Jaro-Winkler score of the input against the
// medication's brand and generic names, case-insensitive.
func bestSimilarity(name string, med store.Medication) float64 {
	lower := strings.ToLower(name)
	brand := matchr.JaroWinkler(lower, strings.ToLower(med.BrandName), false)
	generic := matchr.JaroWinkler(lower, strings.ToLower(med.GenericName), false)
	if generic > brand {
		return generic
	}
	return brand
}

// metaphoneCodes returns the Double Metaphone codes of every word in s.
func metaphoneCodes(s string) []string {
	var codes []string
	for _, word := range strings.Fields(strings.ToLower(s)) {
		p, secondary := matchr.DoubleMetaphone(word)
		if p != "" {
			codes = append(codes, p)
		}
		if secondary != "" && secondary != p {
			codes = append(codes, secondary)
		}
	}
	return codes
}

// codesOverlap reports whether any code appears in both sets.
func codesOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
