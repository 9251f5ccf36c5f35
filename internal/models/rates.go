package models

// Rate table collection names, shared by every store backend.
const (
	LanguagesCollection          = "Languages"
	TiersCollection              = "Tiers"
	CertificationTypesCollection = "CertificationTypes"
	CertificationMapCollection   = "CertificationMap"
)

// RateTable is the reference data used by the pricing aggregator.
type RateTable struct {
	LanguageTiers       map[string]string  `yaml:"language_tiers" json:"language_tiers"`
	TierMultipliers     map[string]float64 `yaml:"tier_multipliers" json:"tier_multipliers"`
	IntendedUseCertType map[string]string  `yaml:"intended_use_cert_type" json:"intended_use_cert_type"`
	CertTypePrices      map[string]float64 `yaml:"cert_type_prices" json:"cert_type_prices"`
}

// LanguageRow is one document of the Languages collection.
type LanguageRow struct {
	Language string `firestore:"language" yaml:"language"`
	Tier     string `firestore:"tier" yaml:"tier"`
}

// TierRow is one document of the Tiers collection.
type TierRow struct {
	Tier       string  `firestore:"tier" yaml:"tier"`
	Multiplier float64 `firestore:"multiplier" yaml:"multiplier"`
}

// CertificationTypeRow is one document of the CertificationTypes collection.
type CertificationTypeRow struct {
	CertificationType string  `firestore:"certificationType" yaml:"certification_type"`
	Price             float64 `firestore:"price" yaml:"price"`
}

// CertificationMapRow is one document of the CertificationMap collection.
type CertificationMapRow struct {
	IntendedUse       string `firestore:"intendedUse" yaml:"intended_use"`
	CertificationType string `firestore:"certificationType" yaml:"certification_type"`
}

// RateRows is the row-shaped form of a RateTable, as seeded from YAML.
type RateRows struct {
	Languages          []LanguageRow          `yaml:"languages"`
	Tiers              []TierRow              `yaml:"tiers"`
	CertificationTypes []CertificationTypeRow `yaml:"certification_types"`
	CertificationMap   []CertificationMapRow  `yaml:"certification_map"`
}

// Table folds the rows into lookup maps. Later rows win on duplicate keys.
func (r RateRows) Table() RateTable {
	t := RateTable{
		LanguageTiers:       make(map[string]string, len(r.Languages)),
		TierMultipliers:     make(map[string]float64, len(r.Tiers)),
		IntendedUseCertType: make(map[string]string, len(r.CertificationMap)),
		CertTypePrices:      make(map[string]float64, len(r.CertificationTypes)),
	}
	for _, l := range r.Languages {
		t.LanguageTiers[l.Language] = l.Tier
	}
	for _, tr := range r.Tiers {
		t.TierMultipliers[tr.Tier] = tr.Multiplier
	}
	for _, c := range r.CertificationMap {
		t.IntendedUseCertType[c.IntendedUse] = c.CertificationType
	}
	for _, c := range r.CertificationTypes {
		t.CertTypePrices[c.CertificationType] = c.Price
	}
	return t
}
