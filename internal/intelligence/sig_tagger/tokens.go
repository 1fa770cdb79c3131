package sig_tagger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenSpan is one token with its byte offsets in the source text.
type tokenSpan struct {
	Text      string
	StartChar int
	EndChar   int
}

// tokenize splits text on whitespace and peels punctuation off both ends
// of each word, so "dir," yields "dir" and ",". A full stop is only peeled
// from the end, which keeps ".5" and "0.5" intact.
func tokenize(text string) []tokenSpan {
	var spans []tokenSpan
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}
		start := i
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if unicode.IsSpace(r) {
				break
			}
			i += size
		}
		spans = appendWord(spans, text, start, i)
	}
	return spans
}

func appendWord(spans []tokenSpan, text string, start, end int) []tokenSpan {
	for start < end && isPunctuation(text[start]) {
		spans = append(spans, tokenSpan{Text: text[start : start+1], StartChar: start, EndChar: start + 1})
		start++
	}

	var trailing []tokenSpan
	for end > start && (isPunctuation(text[end-1]) || text[end-1] == '.') {
		trailing = append(trailing, tokenSpan{Text: text[end-1 : end], StartChar: end - 1, EndChar: end})
		end--
	}

	if start < end {
		spans = append(spans, tokenSpan{Text: text[start:end], StartChar: start, EndChar: end})
	}
	for k := len(trailing) - 1; k >= 0; k-- {
		spans = append(spans, trailing[k])
	}
	return spans
}

func isPunctuation(c byte) bool {
	switch c {
	case ',', ';', ':', '!', '?', '(', ')', '[', ']', '{', '}', '"':
		return true
	}
	return false
}

// tokenTexts returns the lower-cased token strings.
func tokenTexts(spans []tokenSpan) []string {
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = strings.ToLower(s.Text)
	}
	return out
}
