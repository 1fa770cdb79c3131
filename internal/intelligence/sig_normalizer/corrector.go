package sig_normalizer

import (
	"sort"

	"github.com/sajari/fuzzy"
)

// Corrector is the spell-correction step. Correct returns the replacement
// for an unknown word, or the word itself when nothing fits.
type Corrector interface {
	Known(word string) bool
	Correct(word string) string
}

// minCorrectLen is the shortest word the fuzzy corrector will rewrite.
const minCorrectLen = 3

// FuzzyCorrector corrects words against the protected vocabulary using a
// symmetric-delete fuzzy model.
type FuzzyCorrector struct {
	model *fuzzy.Model
	known map[string]struct{}
}

// NewFuzzyCorrector trains a model on words.
func NewFuzzyCorrector(words []string) *FuzzyCorrector {
	model := fuzzy.NewModel()
	model.SetThreshold(1)
	model.SetDepth(2)
	model.SetUseAutocomplete(false)
	model.Train(words)

	known := make(map[string]struct{}, len(words))
	for _, w := range words {
		known[w] = struct{}{}
	}
	return &FuzzyCorrector{model: model, known: known}
}

// Known reports whether word is protected.
func (c *FuzzyCorrector) Known(word string) bool {
	_, ok := c.known[word]
	return ok
}

// Correct returns the closest protected word. Short words are only
// rewritten when one edit away or when the candidate is an anagram, which
// covers transpositions such as "dya".
func (c *FuzzyCorrector) Correct(word string) string {
	if c.Known(word) || len(word) < minCorrectLen {
		return word
	}
	cand, dist := c.closest(word)
	if cand == "" {
		return word
	}
	switch {
	case dist <= 1:
		return cand
	case dist == 2 && (len(word) > 4 || isAnagram(word, cand)):
		return cand
	}
	return word
}

// closest ranks every candidate the model proposes by edit distance, then
// anagrams first, then lexical order, so equal-count ties always resolve
// the same way.
func (c *FuzzyCorrector) closest(word string) (string, int) {
	best, bestDist, bestAnagram := "", 0, false
	for term := range c.model.Potentials(word, true) {
		if term == word {
			continue
		}
		dist := fuzzy.Levenshtein(&word, &term)
		anagram := isAnagram(word, term)
		switch {
		case best == "":
		case dist != bestDist:
			if dist > bestDist {
				continue
			}
		case anagram != bestAnagram:
			if !anagram {
				continue
			}
		case term > best:
			continue
		}
		best, bestDist, bestAnagram = term, dist, anagram
	}
	return best, bestDist
}

func isAnagram(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	ra, rb := []rune(a), []rune(b)
	sort.Slice(ra, func(i, j int) bool { return ra[i] < ra[j] })
	sort.Slice(rb, func(i, j int) bool { return rb[i] < rb[j] })
	return string(ra) == string(rb)
}

// NopCorrector leaves every word unchanged.
type NopCorrector struct{}

func (NopCorrector) Known(string) bool { return true }

func (NopCorrector) Correct(word string) string { return word }
