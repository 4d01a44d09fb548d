// Package knowledge defines the request-scoped values that flow through the
// answer pipeline: retrieved candidates, citations, guardrail violations and
// the final response.
package knowledge

// ContentType classifies the page a passage was extracted from.
type ContentType string

const (
	ContentTypeFundPage    ContentType = "fund_page"
	ContentTypeAMCOverview ContentType = "amc_overview"
	ContentTypeBlog        ContentType = "blog"
	ContentTypeFAQ         ContentType = "faq"
	ContentTypeSIDKIM      ContentType = "sid_kim"
)

// Metadata carries the optional descriptive fields attached to an indexed passage.
type Metadata struct {
	AMCName     string
	Title       string
	ContentType ContentType
	// FirstPartyURL is a pre-mapped canonical page for the passage, if any.
	FirstPartyURL string
	// Extra holds any remaining payload fields as strings.
	Extra map[string]string
}

// Candidate is a retrieved passage.
type Candidate struct {
	ID        string
	Text      string
	SourceURL string
	// Similarity is the score reported by the index. It is never modified.
	Similarity float64
	// Score is the working score after re-ranking, in [0, 1].
	Score    float64
	Metadata Metadata
}

// RetrievalResult is the output of one retrieval pass.
type RetrievalResult struct {
	Candidates      []Candidate
	Query           string
	RetrievalTimeMs int64
}

// Citation is a source shown to the user alongside an answer.
type Citation struct {
	URL            string     `json:"url"`
	Title          string     `json:"title,omitempty"`
	SourceType     SourceType `json:"source_type"`
	AMCName        string     `json:"amc_name,omitempty"`
	RelevanceScore *float64   `json:"relevance_score,omitempty"`
}

// Violation is a single compliance finding.
type Violation struct {
	Type           ViolationType `json:"type"`
	MatchedPattern string        `json:"matched_pattern"`
	Context        string        `json:"context"`
	Severity       Severity      `json:"severity"`
}

// ResponseResult is the outcome of answering one query.
type ResponseResult struct {
	AnswerText         string
	Citations          []Citation
	ConfidenceScore    float64
	FallbackTier       FallbackTier
	ChunksRetrieved    int
	BlockedByGuardrail bool

	Query     string
	SessionID string
	Category  InformationCategory
	// Violation is set when the query itself was blocked.
	Violation *Violation
	// ViolationCount is the number of findings in the generated answer.
	ViolationCount   int
	Sanitized        bool
	RetrievalTimeMs  int64
	GenerationTimeMs int64
	TotalTimeMs      int64
	PromptTokens     int
	CompletionTokens int
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}
