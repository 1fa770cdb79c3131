package sig_normalizer

import (
	"math"
	"strconv"
	"strings"
)

var numberWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
	"hundred": 100, "thousand": 1000, "million": 1000000,
	// Quantity words used as unit multiples ("every third day").
	"second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9,
}

var fractionWords = map[string]string{
	"half":    "0.5",
	"quarter": "0.25",
}

// wordToNumber converts a single number word to its numeral. Compound
// numbers are not joined: "twenty five" becomes "20 5".
func wordToNumber(word string) (string, bool) {
	n, ok := numberWords[word]
	if !ok {
		return word, false
	}
	return strconv.Itoa(n), true
}

// fractionToDecimal converts "half", "quarter" and "n/d" to a decimal
// rounded to three places. A zero denominator leaves the word unchanged.
func fractionToDecimal(word string) string {
	if d, ok := fractionWords[word]; ok {
		return d
	}
	parts := strings.Split(word, "/")
	if len(parts) != 2 || !isDigits(parts[0]) || !isDigits(parts[1]) {
		return word
	}
	num, err1 := strconv.Atoi(parts[0])
	den, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || den == 0 {
		return word
	}
	v := math.Round(float64(num)/float64(den)*1000) / 1000
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
