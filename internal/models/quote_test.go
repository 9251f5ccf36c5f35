package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileStatus(t *testing.T) {
	tests := []struct {
		status   FileStatus
		eligible bool
		terminal bool
	}{
		{"", true, false},
		{StatusPending, true, false},
		{StatusError, true, true},
		{StatusProcessing, false, false},
		{StatusSuccess, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.eligible, tt.status.Eligible())
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestTruncateMessage(t *testing.T) {
	assert.Equal(t, "short", TruncateMessage("short"))

	long := strings.Repeat("a", 1000)
	assert.Len(t, TruncateMessage(long), MaxStatusMessageLen)

	// A multi-byte rune straddling the limit is dropped whole.
	multi := strings.Repeat("a", MaxStatusMessageLen-1) + "é"
	got := TruncateMessage(multi)
	assert.Equal(t, strings.Repeat("a", MaxStatusMessageLen-1), got)
}

func TestSortedPageNumbers(t *testing.T) {
	m := map[string]int{"10": 1, "2": 1, "1": 1, "x": 1, "0": 1}
	assert.Equal(t, []int{1, 2, 10}, SortedPageNumbers(m))
}

func TestRateRowsTable(t *testing.T) {
	rows := RateRows{
		Languages:          []LanguageRow{{Language: "French", Tier: "A"}, {Language: "Tigrinya", Tier: "C"}},
		Tiers:              []TierRow{{Tier: "A", Multiplier: 1}, {Tier: "C", Multiplier: 1.5}},
		CertificationTypes: []CertificationTypeRow{{CertificationType: "certified", Price: 50}},
		CertificationMap:   []CertificationMapRow{{IntendedUse: "Immigration", CertificationType: "certified"}},
	}
	table := rows.Table()
	assert.Equal(t, "C", table.LanguageTiers["Tigrinya"])
	assert.Equal(t, 1.5, table.TierMultipliers["C"])
	assert.Equal(t, "certified", table.IntendedUseCertType["Immigration"])
	assert.Equal(t, 50.0, table.CertTypePrices["certified"])
}

func TestParseComplexity(t *testing.T) {
	tests := []struct {
		in   string
		want Complexity
		ok   bool
		mult float64
	}{
		{"Easy", ComplexityEasy, true, 1.0},
		{" MEDIUM ", ComplexityMedium, true, 1.1},
		{"high", ComplexityHard, true, 1.25},
		{"unknown", "", false, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseComplexity(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.mult, got.Multiplier())
		})
	}
}
