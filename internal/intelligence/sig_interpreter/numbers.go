package sig_interpreter

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/turtacn/sigparse/pkg/errors"
)

var (
	reNumber       = regexp.MustCompile(`\d*\.?\d+`)
	reDecimalToken = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)
)

// numberStrings returns every decimal number in text, left to right.
func numberStrings(text string) []string {
	return reNumber.FindAllString(text, -1)
}

// findNumbers returns every decimal number in text as floats.
func findNumbers(text string) []float64 {
	raw := numberStrings(text)
	out := make([]float64, 0, len(raw))
	for _, s := range raw {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// findNumbersNoCommas is findNumbers after dropping thousands separators.
func findNumbersNoCommas(text string) []float64 {
	return findNumbers(strings.ReplaceAll(text, ",", ""))
}

// parseToken converts a whitespace token to a float. Only plain decimal
// notation is accepted.
func parseToken(tok string) (float64, bool) {
	if !reDecimalToken.MatchString(tok) {
		return 0, false
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// isStrFloat reports whether s reads as a float.
func isStrFloat(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

// isDigits reports whether s is a non-empty run of decimal digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// isLeadingNumber accepts digit strings with at most one decimal point, as
// long as at least one digit remains when the point is removed.
func isLeadingNumber(s string) bool {
	return isDigits(strings.Replace(s, ".", "", 1))
}

func minMax(nums []float64) (float64, float64) {
	lo, hi := nums[0], nums[0]
	for _, n := range nums[1:] {
		if n < lo {
			lo = n
		}
		if n > hi {
			hi = n
		}
	}
	return lo, hi
}

func ptr(f float64) *float64 { return &f }

func strPtr(s string) *string { return &s }

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ---------------------------------------------------------------------------
// Bounding numbers
// ---------------------------------------------------------------------------

// BoundKind selects which end of a candidate list boundingNumbers reads.
type BoundKind int

const (
	BoundMin BoundKind = iota + 1
	BoundMax
)

func (k BoundKind) String() string {
	switch k {
	case BoundMin:
		return "min"
	case BoundMax:
		return "max"
	}
	return fmt.Sprintf("BoundKind(%d)", int(k))
}

// boundingNumbers reads one end of a range from nums. BoundMin yields
// (smallest, nil) for "at least" phrasing. BoundMax yields (0, largest) for
// "up to" phrasing. An empty list yields (nil, nil).
//
// Any other kind is a programming error and panics with an AppError coded
// ErrCodeContractViolation.
func boundingNumbers(nums []float64, kind BoundKind, diags *Diagnostics) (*float64, *float64) {
	if kind != BoundMin && kind != BoundMax {
		panic(errors.ContractViolation("bound kind must be BoundMin or BoundMax").
			WithDetail(kind.String()))
	}
	if len(nums) == 0 {
		return nil, nil
	}
	if len(nums) > 1 {
		diags.Warnf("bounding-number", "more than one number found for bounding number: %v", nums)
	}
	lo, hi := minMax(nums)
	if kind == BoundMin {
		return ptr(lo), nil
	}
	return ptr(0), ptr(hi)
}

// smallestNumberString returns the candidate with the lowest numeric value,
// keeping its original spelling.
func smallestNumberString(cands []string) string {
	sorted := make([]string, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, _ := strconv.ParseFloat(sorted[i], 64)
		b, _ := strconv.ParseFloat(sorted[j], 64)
		return a < b
	})
	return sorted[0]
}
