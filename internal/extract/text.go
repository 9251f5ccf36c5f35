package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxPageChars caps the text kept for a single page.
const MaxPageChars = 50000

const truncatedMarker = "\n[TRUNCATED]"

// CountWords counts runs of letters or digits.
func CountWords(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if !inWord {
				count++
				inWord = true
			}
			continue
		}
		inWord = false
	}
	return count
}

// CapText truncates text to at most limit runes and marks the cut.
func CapText(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i] + truncatedMarker
		}
		n++
	}
	return text
}

// normalizeSpace collapses runs of spaces while keeping line breaks.
func normalizeSpace(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func newPage(number int, text string, languages []string) Page {
	text = normalizeSpace(text)
	return Page{
		Number:    number,
		Text:      CapText(text, MaxPageChars),
		WordCount: CountWords(text),
		Languages: languages,
	}
}
