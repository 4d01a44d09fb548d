// Package sources decides which URL an answer should cite, preferring the
// first-party site over regulator and AMC pages, and classifies every URL
// it sees.
package sources

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

const fundPathMarker = "/mutual-funds/"

// reservedSegments are path segments under /mutual-funds/ that are listing
// or tool pages rather than fund slugs.
var reservedSegments = map[string]bool{
	"amc":     true,
	"top":     true,
	"user":    true,
	"compare": true,
	"explore": true,
}

const firstPartyDomain = "groww.in"

var regulatorDomains = []string{"sebi.gov.in", "amfiindia.com"}

// Resolution is the outcome of source resolution for one query.
type Resolution struct {
	// Canonical is the first-party page chosen for the answer, if any.
	Canonical *knowledge.Citation
	// Citations lists every source to show, canonical first, then first-party
	// pages, then everything else, each group in retrieval order.
	Citations []knowledge.Citation
	// External holds the citations that are not first-party.
	External []knowledge.Citation
	Tier     knowledge.FallbackTier
	Category knowledge.InformationCategory
}

// Resolver picks citations from retrieved candidates and the mapping table.
// It is read-only after construction.
type Resolver struct {
	table   Table
	baseURL string
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBaseURL sets the first-party root used when the table does not name one.
func WithBaseURL(base string) Option {
	return func(r *Resolver) {
		if base != "" {
			r.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver over table.
func NewResolver(table Table, opts ...Option) *Resolver {
	r := &Resolver{
		table:   table,
		baseURL: DefaultBaseURL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if table.BaseURL != "" {
		r.baseURL = table.BaseURL
	}
	return r
}

// Classify reports where a URL comes from. Domain markers are matched as
// substrings of the lower-cased URL in fixed order; input without a
// parseable host is SourceUnknown.
func Classify(raw string) knowledge.SourceType {
	if hostOf(raw) == "" {
		return knowledge.SourceUnknown
	}
	u := strings.ToLower(raw)
	if strings.Contains(u, firstPartyDomain) {
		return knowledge.SourceFirstParty
	}
	for _, d := range regulatorDomains {
		if strings.Contains(u, d) {
			return knowledge.SourceRegulator
		}
	}
	return knowledge.SourceAMC
}

// Resolve chooses the canonical citation and the fallback tier for query.
func (r *Resolver) Resolve(query string, candidates []knowledge.Candidate) Resolution {
	res := Resolution{Category: r.Category(query)}

	all := collectCitations(candidates)
	for _, c := range all {
		if c.SourceType != knowledge.SourceFirstParty {
			res.External = append(res.External, c)
		}
	}

	res.Canonical = fromCandidates(candidates)
	if res.Canonical == nil && res.Category.Resolvable() {
		if u := r.construct(res.Category, query, candidates); u != "" {
			res.Canonical = &knowledge.Citation{
				URL:        u,
				Title:      TitleFromURL(u),
				SourceType: knowledge.SourceFirstParty,
			}
		}
	}

	switch {
	case res.Canonical != nil:
		res.Tier = knowledge.TierFirstParty
		res.Citations = append(res.Citations, *res.Canonical)
		for _, c := range all {
			if c.URL != res.Canonical.URL {
				res.Citations = append(res.Citations, c)
			}
		}
	case len(res.External) > 0:
		res.Tier = knowledge.TierExternal
		res.Citations = all
	case len(all) > 0:
		// Not reached with fromCandidates as written: any first-party source
		// URL already yields a canonical citation above.
		res.Tier = knowledge.TierFirstPartySourcesOnly
		res.Citations = all
	default:
		res.Tier = knowledge.TierGeneric
	}

	r.logger.Debug("resolved sources",
		"category", res.Category.String(),
		"fallback_tier", res.Tier.String(),
		"citations", len(res.Citations),
	)
	return res
}

// Category identifies what kind of information query asks for.
func (r *Resolver) Category(query string) knowledge.InformationCategory {
	q := strings.ToLower(query)
	for _, cat := range knowledge.Categories() {
		for _, kw := range r.table.CategoryKeywords[cat] {
			if strings.Contains(q, kw) {
				return cat
			}
		}
	}
	return knowledge.CategoryGeneralInfo
}

// fromCandidates returns the first candidate-supplied first-party page.
func fromCandidates(candidates []knowledge.Candidate) *knowledge.Citation {
	for _, c := range candidates {
		u := c.Metadata.FirstPartyURL
		if u == "" && Classify(c.SourceURL) == knowledge.SourceFirstParty {
			u = c.SourceURL
		}
		if u == "" {
			continue
		}
		title := c.Metadata.Title
		if title == "" || u != c.SourceURL {
			title = TitleFromURL(u)
		}
		return &knowledge.Citation{
			URL:            u,
			Title:          title,
			SourceType:     knowledge.SourceFirstParty,
			AMCName:        c.Metadata.AMCName,
			RelevanceScore: knowledge.Float64(c.Score),
		}
	}
	return nil
}

func (r *Resolver) construct(cat knowledge.InformationCategory, query string, candidates []knowledge.Candidate) string {
	amcSlug := r.amcSlug(query)
	fundSlug := fundSlug(candidates)

	var anchor string
	switch cat {
	case knowledge.CategoryFundDetails:
		if fundSlug == "" {
			return ""
		}
		anchor = r.sectionAnchor(query)
	case knowledge.CategoryAMCOverview, knowledge.CategoryAMCFundsList:
		if amcSlug == "" {
			return ""
		}
	case knowledge.CategoryFundComparison:
		if amcSlug == "" && fundSlug == "" {
			return ""
		}
	default:
		return ""
	}

	amcName, _, _ := strings.Cut(amcSlug, "-")
	path := strings.NewReplacer(
		"{fund_slug}", fundSlug,
		"{amc_slug}", amcSlug,
		"{amc_name}", amcName,
	).Replace(r.table.urlPattern(cat))
	if path == "" || strings.Contains(path, "{") {
		return ""
	}

	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path + anchor
	}
	return r.baseURL + "/" + strings.TrimPrefix(path, "/") + anchor
}

func (r *Resolver) amcSlug(query string) string {
	q := strings.ToLower(query)
	for _, variant := range r.table.amcVariants() {
		if strings.Contains(q, variant) {
			return r.table.AMCSlugs[variant]
		}
	}
	return ""
}

func (r *Resolver) sectionAnchor(query string) string {
	q := strings.ToLower(query)
	for _, s := range r.table.Sections {
		if strings.Contains(q, strings.ReplaceAll(s.ID, "_", " ")) {
			return s.Anchor
		}
		for _, kw := range s.Keywords {
			if strings.Contains(q, kw) {
				return s.Anchor
			}
		}
	}
	return ""
}

// fundSlug extracts the fund slug from the first first-party fund page URL
// among the candidates.
func fundSlug(candidates []knowledge.Candidate) string {
	for _, c := range candidates {
		for _, raw := range []string{c.Metadata.FirstPartyURL, c.SourceURL} {
			if Classify(raw) != knowledge.SourceFirstParty {
				continue
			}
			u, err := url.Parse(raw)
			if err != nil {
				continue
			}
			_, rest, ok := strings.Cut(u.Path, fundPathMarker)
			if !ok {
				continue
			}
			seg, _, _ := strings.Cut(strings.Trim(rest, "/"), "/")
			if seg != "" && !reservedSegments[seg] {
				return seg
			}
		}
	}
	return ""
}

// collectCitations turns candidates into deduplicated citations, first-party
// pages before everything else.
func collectCitations(candidates []knowledge.Candidate) []knowledge.Citation {
	seen := make(map[string]bool)
	var firstParty, other []knowledge.Citation

	for _, c := range candidates {
		for _, u := range []string{c.Metadata.FirstPartyURL, c.SourceURL} {
			u = strings.TrimSpace(u)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true

			title := c.Metadata.Title
			if title == "" || u != c.SourceURL {
				title = TitleFromURL(u)
			}
			cit := knowledge.Citation{
				URL:            u,
				Title:          title,
				SourceType:     Classify(u),
				AMCName:        c.Metadata.AMCName,
				RelevanceScore: knowledge.Float64(c.Score),
			}
			if cit.SourceType == knowledge.SourceFirstParty {
				firstParty = append(firstParty, cit)
			} else {
				other = append(other, cit)
			}
		}
	}
	return append(firstParty, other...)
}

func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if !strings.Contains(host, ".") {
		return ""
	}
	return host
}
