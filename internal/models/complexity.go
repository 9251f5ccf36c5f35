package models

import "strings"

// Complexity is the classifier's difficulty label for a page.
type Complexity string

const (
	ComplexityEasy   Complexity = "easy"
	ComplexityMedium Complexity = "medium"
	ComplexityHard   Complexity = "hard"
)

// ParseComplexity accepts any casing plus a few common synonyms.
func ParseComplexity(s string) (Complexity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy", "low", "simple":
		return ComplexityEasy, true
	case "medium", "moderate", "normal":
		return ComplexityMedium, true
	case "hard", "high", "difficult", "complex":
		return ComplexityHard, true
	}
	return "", false
}

// Multiplier is the numeric weight of the label. Unknown labels are neutral.
func (c Complexity) Multiplier() float64 {
	switch c {
	case ComplexityMedium:
		return 1.1
	case ComplexityHard:
		return 1.25
	}
	return 1.0
}
