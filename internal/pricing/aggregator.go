// Package pricing turns analysis results and rate reference data into a
// price breakdown. Nothing in here does I/O.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Lllllllleong/translationquoteflow/internal/models"
)

// WordsPerBillablePage is the number of words billed as one page.
const WordsPerBillablePage = 250

// Page is one physical page as seen by the aggregator.
type Page struct {
	WordCount  int
	Complexity models.Complexity
}

// File groups the pages of one uploaded file.
type File struct {
	Name  string
	Pages []Page
}

// Request is everything needed to price a quote.
type Request struct {
	IntendedUse    string
	SourceLanguage string
	TargetLanguage string
	Files          []File
}

// FileBreakdown is the display line for one file.
type FileBreakdown struct {
	Name                 string          `json:"name"`
	Words                int             `json:"words"`
	BillablePages        int             `json:"pages"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	ComplexityMultiplier float64         `json:"complexity_multiplier"`
}

// Quote is the priced result.
type Quote struct {
	CertificationType string          `json:"certification_type,omitempty"`
	BasePrice         decimal.Decimal `json:"base_price"`
	Multiplier        decimal.Decimal `json:"multiplier"`
	Rate              decimal.Decimal `json:"rate"`
	BillablePages     int             `json:"billable_pages"`
	Total             decimal.Decimal `json:"total"`
	Files             []FileBreakdown `json:"files"`
}

// BillablePages is ceil(words / WordsPerBillablePage). Empty pages bill nothing.
func BillablePages(words int) int {
	if words <= 0 {
		return 0
	}
	return (words + WordsPerBillablePage - 1) / WordsPerBillablePage
}

// Calculate prices a quote. Missing rate data degrades to a base price of 0
// and a multiplier of 1; it never fails.
//
// Complexity does not change the bill. Each file carries the mean complexity
// multiplier of its pages for display only.
func Calculate(req Request, rates models.RateTable) Quote {
	certType, base := resolveBasePrice(req.IntendedUse, rates)
	mult := resolveMultiplier(req.SourceLanguage, req.TargetLanguage, rates)
	rate := base.Mul(mult).Round(2)

	q := Quote{
		CertificationType: certType,
		BasePrice:         base,
		Multiplier:        mult,
		Rate:              rate,
		Files:             make([]FileBreakdown, 0, len(req.Files)),
	}
	for _, f := range req.Files {
		line := FileBreakdown{Name: f.Name, ComplexityMultiplier: 1}
		var multSum float64
		for _, p := range f.Pages {
			line.Words += p.WordCount
			line.BillablePages += BillablePages(p.WordCount)
			multSum += p.Complexity.Multiplier()
		}
		if len(f.Pages) > 0 {
			line.ComplexityMultiplier = roundFloat(multSum / float64(len(f.Pages)))
		}
		line.Subtotal = rate.Mul(decimal.NewFromInt(int64(line.BillablePages))).Round(2)
		q.BillablePages += line.BillablePages
		q.Files = append(q.Files, line)
	}
	q.Total = rate.Mul(decimal.NewFromInt(int64(q.BillablePages))).Round(2)
	return q
}

func resolveBasePrice(intendedUse string, rates models.RateTable) (string, decimal.Decimal) {
	certType, ok := lookup(rates.IntendedUseCertType, intendedUse)
	if !ok {
		return "", decimal.Zero
	}
	price, ok := lookup(rates.CertTypePrices, certType)
	if !ok {
		return certType, decimal.Zero
	}
	return certType, decimal.NewFromFloat(price)
}

// resolveMultiplier picks the larger tier multiplier of the pair. The harder
// language dominates; the two are never averaged.
func resolveMultiplier(source, target string, rates models.RateTable) decimal.Decimal {
	src, srcOK := tierMultiplier(source, rates)
	dst, dstOK := tierMultiplier(target, rates)
	switch {
	case srcOK && dstOK:
		return decimal.Max(src, dst)
	case srcOK:
		return src
	case dstOK:
		return dst
	}
	return decimal.NewFromInt(1)
}

func tierMultiplier(language string, rates models.RateTable) (decimal.Decimal, bool) {
	tier, ok := lookup(rates.LanguageTiers, language)
	if !ok {
		return decimal.Zero, false
	}
	m, ok := lookup(rates.TierMultipliers, tier)
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(m), true
}

// lookup tries an exact key first, then a trimmed case-insensitive match.
func lookup[V any](m map[string]V, key string) (V, bool) {
	var zero V
	if key == "" {
		return zero, false
	}
	if v, ok := m[key]; ok {
		return v, true
	}
	want := strings.TrimSpace(key)
	for k, v := range m {
		if strings.EqualFold(strings.TrimSpace(k), want) {
			return v, true
		}
	}
	return zero, false
}

func roundFloat(f float64) float64 {
	v, _ := decimal.NewFromFloat(f).Round(2).Float64()
	return v
}
