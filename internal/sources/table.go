package sources

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

// DefaultBaseURL is the first-party site root.
const DefaultBaseURL = "https://groww.in"

var defaultURLPatterns = map[knowledge.InformationCategory]string{
	knowledge.CategoryFundDetails:    "/mutual-funds/{fund_slug}",
	knowledge.CategoryAMCOverview:    "/mutual-funds/amc/{amc_slug}",
	knowledge.CategoryAMCFundsList:   "/mutual-funds/top/best-{amc_name}-equity-mutual-funds",
	knowledge.CategoryFundComparison: "/mutual-funds/compare",
}

// Table holds the lookup data the resolver works from. The zero value is a
// valid empty table: nothing can be resolved and every query falls through
// to external or generic sources.
type Table struct {
	BaseURL string
	// AMCSlugs maps a lower-cased AMC name variant to its first-party slug.
	AMCSlugs map[string]string
	// URLPatterns maps a category to a path template.
	URLPatterns map[knowledge.InformationCategory]string
	// CategoryKeywords maps a category to the phrases that identify it.
	CategoryKeywords map[knowledge.InformationCategory][]string
	// Sections are page anchors on a fund page, sorted by ID.
	Sections []Section
}

// Section is an anchor on a fund details page.
type Section struct {
	ID       string
	Keywords []string
	Anchor   string
}

type tableFile struct {
	BaseURL      string                 `yaml:"base_url" json:"base_url"`
	AMCMappings  map[string]string      `yaml:"amc_mappings" json:"amc_mappings"`
	URLPatterns  map[string]string      `yaml:"url_patterns" json:"url_patterns"`
	QueryPattern map[string][]string    `yaml:"query_patterns" json:"query_patterns"`
	PageSections map[string]sectionFile `yaml:"page_sections" json:"page_sections"`
}

type sectionFile struct {
	Keywords []string `yaml:"keywords" json:"keywords"`
	Anchor   string   `yaml:"anchor" json:"anchor"`
}

// ParseTable decodes a YAML or JSON mapping document.
func ParseTable(data []byte) (Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Table{}, fmt.Errorf("%w: decoding source table: %w", knowledge.ErrConfiguration, err)
	}

	t := Table{
		BaseURL:          strings.TrimSuffix(strings.TrimSpace(f.BaseURL), "/"),
		AMCSlugs:         make(map[string]string, len(f.AMCMappings)),
		URLPatterns:      make(map[knowledge.InformationCategory]string),
		CategoryKeywords: make(map[knowledge.InformationCategory][]string),
	}

	for variant, slug := range f.AMCMappings {
		variant = strings.ToLower(strings.TrimSpace(variant))
		if variant == "" || slug == "" {
			continue
		}
		t.AMCSlugs[variant] = slug
	}

	for key, pattern := range f.URLPatterns {
		cat, ok := knowledge.ParseCategory(key)
		if !ok {
			return Table{}, fmt.Errorf("%w: unknown url pattern category %q", knowledge.ErrConfiguration, key)
		}
		t.URLPatterns[cat] = pattern
	}

	for key, keywords := range f.QueryPattern {
		cat, ok := knowledge.ParseCategory(key)
		if !ok {
			return Table{}, fmt.Errorf("%w: unknown query pattern category %q", knowledge.ErrConfiguration, key)
		}
		for _, kw := range keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				t.CategoryKeywords[cat] = append(t.CategoryKeywords[cat], kw)
			}
		}
	}

	for id, s := range f.PageSections {
		section := Section{ID: id, Anchor: s.Anchor}
		for _, kw := range s.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				section.Keywords = append(section.Keywords, kw)
			}
		}
		if section.Anchor == "" {
			section.Anchor = "#" + strings.ReplaceAll(id, "_", "-")
		}
		t.Sections = append(t.Sections, section)
	}
	sort.Slice(t.Sections, func(i, j int) bool { return t.Sections[i].ID < t.Sections[j].ID })

	return t, nil
}

// LoadTable reads the mapping document at path. Any failure is logged and
// yields an empty table.
func LoadTable(path string, logger *slog.Logger) Table {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return Table{}
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		logger.Warn("source table not readable, first-party resolution disabled", "path", path, "error", err)
		return Table{}
	}

	t, err := ParseTable(data)
	if err != nil {
		logger.Warn("source table invalid, first-party resolution disabled", "path", path, "error", err)
		return Table{}
	}

	logger.Info("loaded source table",
		"path", path,
		"amc_mappings", len(t.AMCSlugs),
		"url_patterns", len(t.URLPatterns),
		"sections", len(t.Sections),
	)
	return t
}

func (t Table) urlPattern(cat knowledge.InformationCategory) string {
	if p, ok := t.URLPatterns[cat]; ok && p != "" {
		return p
	}
	return defaultURLPatterns[cat]
}

// amcVariants returns the variant keys longest first so that
// "icici prudential" wins over "icici".
func (t Table) amcVariants() []string {
	variants := make([]string, 0, len(t.AMCSlugs))
	for v := range t.AMCSlugs {
		variants = append(variants, v)
	}
	sort.Slice(variants, func(i, j int) bool {
		if len(variants[i]) != len(variants[j]) {
			return len(variants[i]) > len(variants[j])
		}
		return variants[i] < variants[j]
	})
	return variants
}
