package classify

import (
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/Lllllllleong/translationquoteflow/internal/models"
)

// stringField reads the first present key, falling back to def.
type stringField struct {
	keys []string
	def  string
}

func (f stringField) from(m map[string]any) string {
	for _, k := range f.keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return f.def
}

// listField reads the first present key holding a list or a comma-separated
// string.
type listField struct {
	keys []string
}

func (f listField) from(m map[string]any) []string {
	for _, k := range f.keys {
		switch v := m[k].(type) {
		case []any:
			var out []string
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			var out []string
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

// numberField reads the first key holding a number or a numeric string.
type numberField struct {
	keys []string
	def  float64
}

func (f numberField) from(m map[string]any) float64 {
	for _, k := range f.keys {
		switch v := m[k].(type) {
		case float64:
			return v
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return n
			}
		}
	}
	return f.def
}

var (
	complexityField = stringField{keys: []string{"complexity", "complexity_level", "complexityLevel", "difficulty"}, def: string(models.ComplexityMedium)}
	docTypeField    = stringField{keys: []string{"doc_type", "docType", "document_type", "documentType", "type"}, def: DocTypeOther}
	primaryField    = stringField{keys: []string{"primary_language", "primaryLanguage", "language", "language_code", "languageCode"}}
	secondaryField  = listField{keys: []string{"secondary_languages", "secondaryLanguages", "other_languages", "otherLanguages"}}
	namesField      = listField{keys: []string{"names", "detected_names", "detectedNames", "people"}}
	confidenceField = numberField{keys: []string{"confidence", "confidence_score", "confidenceScore", "score"}}
	pageNumberField = numberField{keys: []string{"page", "page_number", "pageNumber"}}
)

// Normalize maps one page object, in any accepted key style, onto a
// PageClassification.
func Normalize(m map[string]any) PageClassification {
	complexity, ok := models.ParseComplexity(complexityField.from(m))
	if !ok {
		complexity = models.ComplexityMedium
	}

	docType := strings.ToLower(docTypeField.from(m))
	docType = strings.ReplaceAll(strings.ReplaceAll(docType, " ", "_"), "-", "_")
	if !slices.Contains(DocTypes, docType) {
		docType = DocTypeOther
	}

	primary := normalizeLanguage(primaryField.from(m))
	var secondary []string
	for _, l := range secondaryField.from(m) {
		l = normalizeLanguage(l)
		if l != "" && l != primary && !slices.Contains(secondary, l) {
			secondary = append(secondary, l)
		}
	}

	var names []string
	for _, n := range namesField.from(m) {
		if !slices.Contains(names, n) {
			names = append(names, n)
		}
		if len(names) == MaxNames {
			break
		}
	}

	confidence := confidenceField.from(m)
	if math.IsNaN(confidence) {
		confidence = 0
	}
	confidence = math.Max(0, math.Min(1, confidence))

	return PageClassification{
		Complexity:         complexity,
		DocType:            docType,
		PrimaryLanguage:    primary,
		SecondaryLanguages: secondary,
		Names:              names,
		Confidence:         confidence,
	}
}

func normalizeLanguage(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// pageFields picks the object describing pageNumber out of a decoded
// payload. A single object is returned as is. Per-page data may arrive as
// {"pages": {"1": {...}}}, {"pages": [{...}]} or a bare array; entries
// without a page number are numbered by position. When pageNumber is
// missing the lowest numbered entry is used.
func pageFields(v any, pageNumber int) (map[string]any, bool) {
	var entries any
	switch t := v.(type) {
	case map[string]any:
		p, ok := t["pages"]
		if !ok {
			return t, true
		}
		entries = p
	case []any:
		entries = t
	default:
		return nil, false
	}

	pages := map[int]map[string]any{}
	switch t := entries.(type) {
	case map[string]any:
		for k, raw := range t {
			obj, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(k))
			if err != nil {
				n = int(pageNumberField.from(obj))
			}
			if n > 0 {
				pages[n] = obj
			}
		}
	case []any:
		for i, raw := range t {
			obj, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			n := int(pageNumberField.from(obj))
			if n <= 0 {
				n = i + 1
			}
			pages[n] = obj
		}
	}
	if len(pages) == 0 {
		return nil, false
	}
	if obj, ok := pages[pageNumber]; ok {
		return obj, true
	}
	keys := make([]int, 0, len(pages))
	for k := range pages {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return pages[keys[0]], true
}
