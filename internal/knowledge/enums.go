package knowledge

import (
	"fmt"
	"strings"
)

// SourceType ranks where a URL comes from.
type SourceType int

const (
	SourceUnknown SourceType = iota
	SourceFirstParty
	SourceRegulator
	SourceAMC
)

var sourceTypeNames = map[SourceType]string{
	SourceUnknown:    "UNKNOWN",
	SourceFirstParty: "FIRST_PARTY",
	SourceRegulator:  "REGULATOR",
	SourceAMC:        "AMC",
}

func (s SourceType) String() string {
	if name, ok := sourceTypeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SourceType(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s SourceType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SourceType) UnmarshalText(b []byte) error {
	for k, v := range sourceTypeNames {
		if strings.EqualFold(v, string(b)) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown source type %q", string(b))
}

// FallbackTier records how the final answer was sourced.
type FallbackTier int

const (
	TierFirstParty FallbackTier = iota
	TierExternal
	TierFirstPartySourcesOnly
	TierGeneric
)

var fallbackTierNames = map[FallbackTier]string{
	TierFirstParty:            "FIRST_PARTY",
	TierExternal:              "EXTERNAL",
	TierFirstPartySourcesOnly: "FIRST_PARTY_SOURCES_ONLY",
	TierGeneric:               "GENERIC",
}

func (t FallbackTier) String() string {
	if name, ok := fallbackTierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FallbackTier(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t FallbackTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// BaseConfidence is the confidence assigned to an answer of this tier before
// it is scaled by the number of supporting chunks.
func (t FallbackTier) BaseConfidence() float64 {
	switch t {
	case TierFirstParty:
		return 0.95
	case TierExternal:
		return 0.85
	case TierFirstPartySourcesOnly:
		return 0.90
	case TierGeneric:
		return 0.3
	default:
		return 0
	}
}

// ViolationType is the kind of compliance finding.
type ViolationType int

const (
	ViolationInvestmentAdvice ViolationType = iota
	ViolationRecommendation
	ViolationPrediction
	ViolationPersonalOpinion
)

var violationTypeNames = map[ViolationType]string{
	ViolationInvestmentAdvice: "INVESTMENT_ADVICE",
	ViolationRecommendation:   "RECOMMENDATION",
	ViolationPrediction:       "PREDICTION",
	ViolationPersonalOpinion:  "PERSONAL_OPINION",
}

func (v ViolationType) String() string {
	if name, ok := violationTypeNames[v]; ok {
		return name
	}
	return fmt.Sprintf("ViolationType(%d)", int(v))
}

// MarshalText implements encoding.TextMarshaler.
func (v ViolationType) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *ViolationType) UnmarshalText(b []byte) error {
	for k, name := range violationTypeNames {
		if strings.EqualFold(name, string(b)) {
			*v = k
			return nil
		}
	}
	return fmt.Errorf("unknown violation type %q", string(b))
}

// Severity of a violation.
type Severity int

const (
	SeverityHigh Severity = iota
	SeverityMedium
	SeverityLow
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	case SeverityLow:
		return "low"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "high", "":
		*s = SeverityHigh
	case "medium":
		*s = SeverityMedium
	case "low":
		*s = SeverityLow
	default:
		return fmt.Errorf("unknown severity %q", string(b))
	}
	return nil
}

// InformationCategory is the kind of information a query asks for.
type InformationCategory int

const (
	CategoryFundDetails InformationCategory = iota
	CategoryAMCOverview
	CategoryAMCFundsList
	CategoryFundComparison
	CategorySchemeDocuments
	CategoryTaxTreatment
	CategoryGeneralInfo
)

var categoryNames = map[InformationCategory]string{
	CategoryFundDetails:     "fund_details",
	CategoryAMCOverview:     "amc_overview",
	CategoryAMCFundsList:    "amc_funds_list",
	CategoryFundComparison:  "fund_comparison",
	CategorySchemeDocuments: "scheme_documents",
	CategoryTaxTreatment:    "tax_treatment",
	CategoryGeneralInfo:     "general_info",
}

// Categories lists every category in the order queries are matched against
// them. Categories that can never have a first-party page come first so that
// a tax or scheme-document question is not routed to a fund page.
func Categories() []InformationCategory {
	return []InformationCategory{
		CategorySchemeDocuments,
		CategoryTaxTreatment,
		CategoryFundDetails,
		CategoryAMCOverview,
		CategoryAMCFundsList,
		CategoryFundComparison,
		CategoryGeneralInfo,
	}
}

func (c InformationCategory) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("InformationCategory(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c InformationCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseCategory maps a table key such as "fund_details" to its category.
func ParseCategory(s string) (InformationCategory, bool) {
	for k, v := range categoryNames {
		if v == strings.ToLower(strings.TrimSpace(s)) {
			return k, true
		}
	}
	return CategoryGeneralInfo, false
}

// Resolvable reports whether a first-party page can exist for the category.
// Scheme legal documents and tax treatment are always answered from external
// sources.
func (c InformationCategory) Resolvable() bool {
	switch c {
	case CategoryFundDetails, CategoryAMCOverview, CategoryAMCFundsList, CategoryFundComparison:
		return true
	default:
		return false
	}
}
