package classify

import "slices"

// FileSummary condenses the page results of one file.
type FileSummary struct {
	DocType            string   `json:"doc_type"`
	PrimaryLanguage    string   `json:"primary_language"`
	SecondaryLanguages []string `json:"secondary_languages"`
	Names              []string `json:"names"`
	Confidence         float64  `json:"confidence"`
}

// Summarize picks the most frequent specific document type and primary
// language across pages (earliest page wins ties), unions the remaining
// languages and the names, and averages the confidence.
func Summarize(pages []PageClassification) FileSummary {
	summary := FileSummary{
		DocType:            DocTypeOther,
		SecondaryLanguages: []string{},
		Names:              []string{},
	}
	if len(pages) == 0 {
		return summary
	}

	docTypes := make([]string, 0, len(pages))
	primaries := make([]string, 0, len(pages))
	total := 0.0
	for _, p := range pages {
		if p.DocType != DocTypeOther {
			docTypes = append(docTypes, p.DocType)
		}
		primaries = append(primaries, p.PrimaryLanguage)
		total += p.Confidence
	}
	if dt := mostFrequent(docTypes); dt != "" {
		summary.DocType = dt
	}
	summary.PrimaryLanguage = mostFrequent(primaries)
	summary.Confidence = total / float64(len(pages))

	for _, p := range pages {
		for _, l := range p.Languages() {
			if l != summary.PrimaryLanguage && !slices.Contains(summary.SecondaryLanguages, l) {
				summary.SecondaryLanguages = append(summary.SecondaryLanguages, l)
			}
		}
		for _, n := range p.Names {
			if len(summary.Names) < MaxNames && !slices.Contains(summary.Names, n) {
				summary.Names = append(summary.Names, n)
			}
		}
	}
	return summary
}

func mostFrequent(values []string) string {
	counts := map[string]int{}
	for _, v := range values {
		if v != "" {
			counts[v]++
		}
	}
	best := ""
	for _, v := range values {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best
}
