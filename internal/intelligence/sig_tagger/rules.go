package sig_tagger

import (
	"context"
	"regexp"

	"github.com/jinzhu/inflection"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
)

// ---------------------------------------------------------------------------
// Lexicon
// ---------------------------------------------------------------------------

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var (
	// Dosage forms, matched after singularization.
	formWords = wordSet(
		"tablet", "capsule", "puff", "spoonful", "teaspoonful", "tablespoonful",
		"drop", "sachet", "patch", "inhalation", "dose", "application", "injection",
		"lozenge", "pessary", "suppository", "pastille", "vial", "ampoule", "pill",
		"spray", "actuation", "unit", "pump", "caplet", "blister", "pouch",
	)

	continuousUnits = wordSet("ml", "mg")

	ceilingWords = wordSet("max", "maximum", "upto")

	// Connectors allowed between two numbers of a range or product.
	rangeConnectors = wordSet("-", "to", "or", "x")

	// Words that turn the number before them into a frequency count.
	freqUnitsAfterNumber = wordSet(
		"times", "time", "hourly", "hrly", "hour", "hours", "hr", "hrs", "h",
		"am", "pm", "minutes", "mins",
	)

	// Words that turn the number after them into a frequency count.
	freqNumberLeads = wordSet("every", "each", "per", "in")

	freqCore = wordSet(
		"daily", "day", "days", "morning", "mornings", "night", "nights", "nightly",
		"evening", "evenings", "noon", "midday", "lunch", "lunchtime", "breakfast",
		"tea", "teatime", "dinner", "supper", "bedtime", "meal", "meals", "food",
		"feed", "feeds", "am", "pm", "week", "weeks", "weekly", "month", "months",
		"monthly", "year", "yearly", "annually", "hour", "hours", "hourly", "hrly",
		"hr", "hrs", "h", "times", "time", "alternate", "other", "every", "each",
		"fortnight", "fortnightly", "weekdays", "weekday", "once", "twice",
		"bd", "bid", "tds", "tid", "qds", "qid", "qd", "od", "nocte", "mane",
		"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	)

	// Glue may sit inside a frequency span but never ends one.
	freqGlue = wordSet("and", ",", "/", "-", "to", "or", "of", "x", "&")

	// Leads may open a frequency span.
	freqLeads = wordSet(
		"at", "in", "the", "a", "an", "with", "after", "before", "per", "on",
		"max", "maximum", "up", "upto",
	)

	durationUnits = wordSet(
		"day", "days", "week", "weeks", "month", "months", "year", "years",
		"fortnight", "fortnights", "hour", "hours", "hr", "hrs",
	)

	durationQuantifiers = wordSet("a", "an", "another", "further", "more", "the", "next", "one")

	asRequiredPhrases = [][]string{
		{"as", "and", "when", "required"},
		{"as", "and", "when", "needed"},
		{"as", "required"},
		{"as", "needed"},
		{"as", "necessary"},
		{"when", "required"},
		{"when", "needed"},
		{"when", "necessary"},
		{"if", "required"},
		{"if", "needed"},
		{"if", "necessary"},
		{"prn"},
	}

	asDirectedPhrases = [][]string{
		{"as", "per", "instructions"},
		{"as", "directed"},
		{"as", "dir"},
		{"as", "advised"},
		{"as", "instructed"},
		{"as", "prescribed"},
		{"as", "discussed"},
	}

	routePhrases = [][]string{
		{"by", "mouth"},
		{"orally"},
		{"oral"},
		{"po"},
		{"topically"},
		{"rectally"},
		{"vaginally"},
	}
)

var reNumber = regexp.MustCompile(`^(\d+(\.\d+)?|\.\d+)$`)

func isNumber(tok string) bool {
	return reNumber.MatchString(tok)
}

func isForm(tok string) bool {
	return tok != "" && formWords[inflection.Singular(tok)]
}

// ---------------------------------------------------------------------------
// RuleExtractor
// ---------------------------------------------------------------------------

// RuleExtractor tags tokens from a fixed lexicon of dose-instruction
// vocabulary. It is deterministic and has no external dependencies.
type RuleExtractor struct {
	logger logging.Logger
}

// NewRuleExtractor returns a RuleExtractor.
func NewRuleExtractor(logger logging.Logger) *RuleExtractor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RuleExtractor{logger: logger.Named("rule_extractor")}
}

// Extract implements Extractor.
func (r *RuleExtractor) Extract(ctx context.Context, normalized string) ([]instruction.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spans := tokenize(normalized)
	labels := Tag(tokenTexts(spans))
	entities := bioToEntities(normalized, spans, labels, nil)
	r.logger.Debug("entities tagged",
		logging.Int("tokens", len(spans)),
		logging.Int("entities", len(entities)),
	)
	return entities, nil
}

// Tag returns one BIO tag per lower-cased token.
func Tag(tokens []string) []string {
	t := &ruleTagger{toks: tokens, labels: make([]string, len(tokens))}
	for i := range t.labels {
		t.labels[i] = LabelO
	}
	t.run()
	return t.labels
}

type ruleTagger struct {
	toks   []string
	labels []string
}

// at returns token i, or "" past either end.
func (t *ruleTagger) at(i int) string {
	if i < 0 || i >= len(t.toks) {
		return ""
	}
	return t.toks[i]
}

func (t *ruleTagger) mark(start, end int, label instruction.Label) {
	for k := start; k < end; k++ {
		if k == start {
			t.labels[k] = "B-" + string(label)
		} else {
			t.labels[k] = "I-" + string(label)
		}
	}
}

func (t *ruleTagger) run() {
	n := len(t.toks)
	for i := 0; i < n; {
		if end := t.phrase(i, asRequiredPhrases); end > i {
			t.mark(i, end, instruction.LabelAsRequired)
			i = end
			continue
		}
		if end := t.phrase(i, asDirectedPhrases); end > i {
			t.mark(i, end, instruction.LabelAsDirected)
			i = end
			continue
		}
		if end := t.phrase(i, routePhrases); end > i {
			t.mark(i, end, instruction.LabelRoute)
			i = end
			continue
		}
		if end := t.duration(i); end > i {
			t.mark(i, end, instruction.LabelDuration)
			i = end
			continue
		}
		if end := t.frequency(i); end > i {
			t.mark(i, end, instruction.LabelFrequency)
			i = end
			continue
		}
		if end := t.dosage(i); end > i {
			t.mark(i, end, instruction.LabelDosage)
			i = end
			if isForm(t.at(i)) {
				t.mark(i, i+1, instruction.LabelForm)
				i++
			}
			continue
		}
		if isForm(t.at(i)) {
			t.mark(i, i+1, instruction.LabelForm)
		}
		i++
	}
}

// phrase returns the end of the first phrase matching at i, or i.
func (t *ruleTagger) phrase(i int, phrases [][]string) int {
outer:
	for _, p := range phrases {
		for k, w := range p {
			if t.at(i+k) != w {
				continue outer
			}
		}
		return i + len(p)
	}
	return i
}

// skipNumbers returns the index after a run of numbers joined by range
// connectors starting at i.
func (t *ruleTagger) skipNumbers(i int) int {
	j := i
	for j < len(t.toks) {
		switch {
		case isNumber(t.at(j)):
			j++
		case rangeConnectors[t.at(j)] && j > i && isNumber(t.at(j+1)):
			j++
		default:
			return j
		}
	}
	return j
}

// isFreqNumber reports whether the number at i counts administrations or
// hours rather than units of medicine: "2 times", "6 hourly", "every 4",
// "3 x a day".
func (t *ruleTagger) isFreqNumber(i int) bool {
	if !isNumber(t.at(i)) {
		return false
	}
	if freqNumberLeads[t.at(i-1)] {
		return true
	}
	next := t.at(t.skipNumbers(i))
	return next == "x" || freqUnitsAfterNumber[next]
}

// duration matches "for" followed by a quantity and a unit, or a bare
// number run followed by a unit: "for a further 2 weeks", "5 days".
func (t *ruleTagger) duration(i int) int {
	j := i
	switch {
	case t.at(j) == "for":
		j++
		start := j
		for j-start < 5 {
			tok := t.at(j)
			if isNumber(tok) || durationQuantifiers[tok] || (rangeConnectors[tok] && isNumber(t.at(j+1))) {
				j++
				continue
			}
			break
		}
		if j == start {
			return i
		}
	case isNumber(t.at(j)) && !t.isFreqNumber(j):
		j = t.skipNumbers(j)
	default:
		return i
	}
	if !durationUnits[t.at(j)] {
		return i
	}
	return j + 1
}

// frequency matches a run of frequency words with glue between them. The
// run must open with a lead, a frequency word or a frequency count, and it
// ends at its last frequency word.
func (t *ruleTagger) frequency(i int) int {
	first := t.at(i)
	if !freqLeads[first] && !freqCore[first] && !t.isFreqNumber(i) {
		return i
	}

	lastCore := -1
	for j := i; j < len(t.toks); j++ {
		tok := t.at(j)
		if freqCore[tok] {
			lastCore = j
			continue
		}
		if isNumber(tok) {
			if t.isFreqNumber(j) {
				continue
			}
			break
		}
		if freqGlue[tok] || freqLeads[tok] {
			continue
		}
		break
	}
	if lastCore < 0 {
		return i
	}
	return lastCore + 1
}

// dosage matches a number run, optionally behind a ceiling word, with its
// measure units. When a unit is present the following form word joins the
// span so "5 ml spoonful" is read as one measured dose.
func (t *ruleTagger) dosage(i int) int {
	j := i
	switch {
	case ceilingWords[t.at(j)]:
		j++
	case t.at(j) == "up" && t.at(j+1) == "to":
		j += 2
	}
	if !isNumber(t.at(j)) || t.isFreqNumber(j) {
		return i
	}

	sawUnit := false
	for j < len(t.toks) {
		tok := t.at(j)
		switch {
		case isNumber(tok) && !sawUnit:
			j++
		case rangeConnectors[tok] && isNumber(t.at(j+1)) && !sawUnit:
			j++
		case continuousUnits[tok]:
			sawUnit = true
			j++
		default:
			if sawUnit && isForm(tok) {
				j++
			}
			return j
		}
	}
	return j
}
