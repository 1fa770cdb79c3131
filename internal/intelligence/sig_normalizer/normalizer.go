// Package sig_normalizer rewrites raw dose instructions into the canonical
// token stream the tagger expects: known substitutions, spelling
// correction, punctuation padding, number words and fractions turned into
// numerals, and single spacing.
package sig_normalizer

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	reAlpha        = regexp.MustCompile(`^[a-zA-Z]+$`)
	reNumber       = regexp.MustCompile(`(\d+(\.\d+)?)`)
	reSpaces       = regexp.MustCompile(`\s+`)
	parenReplacer  = strings.NewReplacer("(", " ", ")", " ")
	unicodeSlashes = strings.NewReplacer("⁄", "/", "∕", "/")
)

// Normalizer is safe for concurrent use; it holds no mutable state.
type Normalizer struct {
	replacements map[string]string
	corrector    Corrector
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithCorrector replaces the spell corrector built from the keep words.
func WithCorrector(c Corrector) Option {
	return func(n *Normalizer) {
		if c != nil {
			n.corrector = c
		}
	}
}

// New builds a Normalizer from assets. Unless overridden, spell correction
// uses a FuzzyCorrector trained on assets.KeepWords.
func New(assets *Assets, opts ...Option) *Normalizer {
	n := &Normalizer{replacements: map[string]string{}}
	if assets != nil {
		for k, v := range assets.Replacements {
			n.replacements[strings.ToLower(k)] = v
		}
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.corrector == nil {
		var keep []string
		if assets != nil {
			keep = assets.KeepWords
		}
		n.corrector = NewFuzzyCorrector(keep)
	}
	return n
}

// NewDefault builds a Normalizer from the embedded assets.
func NewDefault(opts ...Option) (*Normalizer, error) {
	assets, err := DefaultAssets()
	if err != nil {
		return nil, err
	}
	return New(assets, opts...), nil
}

// Normalize applies the full pipeline. It never fails: anything it does not
// recognise passes through unchanged.
func (n *Normalizer) Normalize(text string) string {
	text = unicodeSlashes.Replace(norm.NFKC.String(text))
	text = n.substitute(text)
	text = n.autocorrect(text)
	text = removeParentheses(text)
	text = padHyphensAndSlashes(text)
	text = convertWordsToNumbers(text)
	text = padNumbers(text)
	return strings.TrimSpace(reSpaces.ReplaceAllString(text, " "))
}

// substitute replaces whole words found in the substitution table.
func (n *Normalizer) substitute(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		if r, ok := n.replacements[strings.ToLower(w)]; ok {
			words[i] = r
		}
	}
	return strings.Join(words, " ")
}

// autocorrect lower-cases the text and corrects purely alphabetic words
// that are not protected.
func (n *Normalizer) autocorrect(text string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	for i, w := range words {
		if !reAlpha.MatchString(w) || n.corrector.Known(w) {
			continue
		}
		if c := n.corrector.Correct(w); c != "" {
			words[i] = c
		}
	}
	return strings.Join(words, " ")
}

func removeParentheses(s string) string {
	return parenReplacer.Replace(s)
}

// padHyphensAndSlashes turns "-", "\" and "/" into separate tokens. A slash
// between two digits is kept so "1/3" can become a fraction.
func padHyphensAndSlashes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '-', '\\':
			b.WriteByte(' ')
			b.WriteByte(c)
			b.WriteByte(' ')
		case '/':
			if i > 0 && i+1 < len(s) && isDigitByte(s[i-1]) && isDigitByte(s[i+1]) {
				b.WriteByte(c)
				continue
			}
			b.WriteString(" / ")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// convertWordsToNumbers handles fractions first, then number words.
func convertWordsToNumbers(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		w = fractionToDecimal(w)
		if num, ok := wordToNumber(w); ok {
			w = num
		}
		words[i] = w
	}
	return strings.Join(words, " ")
}

func padNumbers(s string) string {
	return reNumber.ReplaceAllString(s, " $1 ")
}

func isDigitByte(c byte) bool { return c >= '0' && c <= '9' }
