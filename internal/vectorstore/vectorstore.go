// Package vectorstore provides the passage indexes the retriever searches:
// a Qdrant collection for production and an in-process chromem-go
// collection for local runs and tests.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

// Payload keys shared by every backend.
const (
	keyPassageID     = "passage_id"
	keyContent       = "content"
	keySourceURL     = "source_url"
	keyTitle         = "title"
	keyAMCName       = "amc_name"
	keyContentType   = "content_type"
	keyFirstPartyURL = "first_party_url"
	// keyLegacyFirstParty is the field name older ingestion runs wrote.
	keyLegacyFirstParty = "groww_page_url"
)

// Passage is a unit of text to be indexed.
type Passage struct {
	ID        string
	Text      string
	SourceURL string
	Metadata  knowledge.Metadata
	// Vector is optional; backends embed Text when it is nil.
	Vector []float32
}

// Index is a searchable passage collection.
type Index interface {
	// Search returns up to topK passages similar to query with a similarity
	// of at least minScore. filters restrict results to passages whose
	// metadata field equals the given value (e.g. "amc_name").
	Search(ctx context.Context, query string, topK int, minScore float64, filters map[string]string) ([]knowledge.Candidate, error)

	// Ready reports knowledge.ErrIndexUnavailable when the collection is
	// missing, empty, or unreachable.
	Ready(ctx context.Context) error
}

// Loader adds passages to an index.
type Loader interface {
	Add(ctx context.Context, passages []Passage) error
}

// candidateFromFields builds a candidate from flat string metadata. It
// returns false when the passage has no text or no source URL.
func candidateFromFields(id string, score float64, fields map[string]string) (knowledge.Candidate, bool) {
	text := strings.TrimSpace(fields[keyContent])
	source := strings.TrimSpace(fields[keySourceURL])
	if text == "" || source == "" {
		return knowledge.Candidate{}, false
	}

	if pid := fields[keyPassageID]; pid != "" {
		id = pid
	}

	md := knowledge.Metadata{
		AMCName:       fields[keyAMCName],
		Title:         fields[keyTitle],
		ContentType:   knowledge.ContentType(fields[keyContentType]),
		FirstPartyURL: fields[keyFirstPartyURL],
	}
	if md.FirstPartyURL == "" {
		md.FirstPartyURL = fields[keyLegacyFirstParty]
	}

	for k, v := range fields {
		switch k {
		case keyPassageID, keyContent, keySourceURL, keyTitle, keyAMCName, keyContentType, keyFirstPartyURL, keyLegacyFirstParty:
			continue
		}
		if md.Extra == nil {
			md.Extra = make(map[string]string)
		}
		md.Extra[k] = v
	}

	return knowledge.Candidate{
		ID:         id,
		Text:       text,
		SourceURL:  source,
		Similarity: score,
		Score:      score,
		Metadata:   md,
	}, true
}

// passageFields flattens a passage into the stored payload.
func passageFields(p Passage) map[string]string {
	fields := make(map[string]string, 7+len(p.Metadata.Extra))
	for k, v := range p.Metadata.Extra {
		fields[k] = v
	}
	fields[keyPassageID] = passageID(p)
	fields[keySourceURL] = p.SourceURL
	set := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	set(keyTitle, p.Metadata.Title)
	set(keyAMCName, p.Metadata.AMCName)
	set(keyContentType, string(p.Metadata.ContentType))
	set(keyFirstPartyURL, p.Metadata.FirstPartyURL)
	return fields
}

// passageID returns p.ID, or a stable id derived from the source and text.
func passageID(p Passage) string {
	if p.ID != "" {
		return p.ID
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(p.SourceURL+"\n"+p.Text)).String()
}

// embeddingError tags err with knowledge.ErrEmbedding unless it already is.
func embeddingError(err error) error {
	if errors.Is(err, knowledge.ErrEmbedding) {
		return err
	}
	return fmt.Errorf("%w: %w", knowledge.ErrEmbedding, err)
}
